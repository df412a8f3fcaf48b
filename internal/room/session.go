package room

import (
	"github.com/google/uuid"

	"github.com/park285/focus-party/internal/domain"
	"github.com/park285/focus-party/pkg/partyproto"
)

// Conn is the room's view of one client connection.
type Conn interface {
	// Send queues a frame without blocking; false means the client is not keeping up.
	Send(frame []byte) bool
	Close(reason string)
}

// Session is the per-connection state. Fields are touched only on the room executor.
type Session struct {
	ID   string
	conn Conn

	userID   string
	username string
	task     string
	role     string
	warnings int
	bound    bool
}

func newSession(conn Conn) *Session {
	return &Session{ID: uuid.NewString(), conn: conn, username: domain.AnonymousName}
}

func (s *Session) view() partyproto.SessionView {
	return partyproto.SessionView{
		ID:           s.ID,
		UserID:       s.userID,
		Username:     s.username,
		Task:         s.task,
		Role:         s.role,
		WarningCount: s.warnings,
		Bound:        s.bound,
	}
}

func (s *Session) applyHello(m partyproto.Hello) {
	s.userID = m.UserID
	s.bound = true
	if m.Nickname != nil {
		s.username = nameOrAnonymous(*m.Nickname)
	}
	if m.CurrentTask != nil {
		s.task = *m.CurrentTask
	}
	if m.Role != nil {
		s.role = *m.Role
	}
}

func (s *Session) applyProfile(m partyproto.UpdateProfile) {
	if m.Name != nil {
		s.username = nameOrAnonymous(*m.Name)
	}
	if m.Task != nil {
		s.task = *m.Task
	}
	if m.Role != nil {
		s.role = *m.Role
	}
}
