package msgcat

import (
	"os"
	"path/filepath"
	"testing"
)

func TestEmbeddedKeysRender(t *testing.T) {
	c := MustDefault()
	keys := []string{KeyUnbound, KeyBanned, KeyShuttingDown, KeyBadDebugKey, KeyDebugDisabled, KeyMalformed, KeyInvalidDelta, KeyInternal}
	for _, k := range keys {
		if _, err := c.Render(k, nil); err != nil {
			t.Errorf("Render(%s): %v", k, err)
		}
	}
	got, err := c.Render(KeyLeft, map[string]any{"Username": "Alice"})
	if err != nil {
		t.Fatalf("Render left: %v", err)
	}
	if got != "Alice has left the chat" {
		t.Fatalf("unexpected left text: %q", got)
	}
}

func TestMissingDataFallsBackToKey(t *testing.T) {
	c := MustDefault()
	if _, err := c.Render(KeyLeft, map[string]any{}); err == nil {
		t.Fatalf("expected missingkey error")
	}
	if got := c.Text(KeyLeft, map[string]any{}); got != KeyLeft {
		t.Fatalf("Text fallback = %q", got)
	}
	if got := c.Text("no.such.key", nil); got != "no.such.key" {
		t.Fatalf("unknown key fallback = %q", got)
	}
}

func TestOverrideDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.yaml"), []byte("error:\n  banned: \"nope\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := c.Text(KeyBanned, nil); got != "nope" {
		t.Fatalf("override not applied: %q", got)
	}
	if got := c.Text(KeyUnbound, nil); got == KeyUnbound {
		t.Fatalf("embedded key lost after override")
	}
}

func TestDuplicateOverrideKeysRejected(t *testing.T) {
	dir := t.TempDir()
	body := []byte("error:\n  banned: \"x\"\n")
	for _, n := range []string{"a.yaml", "b.yml"} {
		if err := os.WriteFile(filepath.Join(dir, n), body, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := New(dir); err == nil {
		t.Fatalf("expected duplicate key error")
	}
}
