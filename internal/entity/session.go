package entity

import (
	"fmt"
	"time"

	"github.com/gofrs/uuid"
)

// Session defines a server side login session, keyed by an opaque token
type Session struct {
	Token     string    `json:"-"`
	UserID    uuid.UUID `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s *Session) String() string {
	return fmt.Sprintf("UserID: %v, ExpiresAt: %v", s.UserID, s.ExpiresAt)
}
