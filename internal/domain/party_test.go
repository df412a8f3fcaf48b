package domain

import (
	"testing"
	"time"
)

func TestMonthKeyUsesUTC(t *testing.T) {
	loc := time.FixedZone("UTC+9", 9*3600)
	// 2026-11-01 03:00 at +9 is still October in UTC.
	at := time.Date(2026, time.November, 1, 3, 0, 0, 0, loc)
	if got := MonthKey(at); got != "2026-10" {
		t.Fatalf("MonthKey = %s", got)
	}
}

func TestClampScore(t *testing.T) {
	cases := []struct{ old, delta, want int64 }{
		{0, 5, 5},
		{10, -50, 0},
		{10, -10, 0},
		{7, 0, 7},
		{0, -1, 0},
	}
	for _, c := range cases {
		if got := ClampScore(c.old, c.delta); got != c.want {
			t.Errorf("ClampScore(%d, %d) = %d, want %d", c.old, c.delta, got, c.want)
		}
	}
}

func TestNewChatMessage(t *testing.T) {
	at := time.UnixMilli(1700000000123)
	m := NewChatMessage("Alice", "hi", at)
	if m.Type != "chat" || m.From != "Alice" || m.Text != "hi" || m.Timestamp != 1700000000123 {
		t.Fatalf("unexpected message: %+v", m)
	}
}
