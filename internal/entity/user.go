package entity

import (
	"fmt"
	"time"

	"github.com/gofrs/uuid"
)

// User defines an account that owns feeds
type User struct {
	ID    uuid.UUID `json:"id"`
	Email string    `json:"email"`
	// PasswordHash is the Argon2id hash in PHC string form, never serialized
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

func (u *User) String() string {
	return fmt.Sprintf("ID: %v, Email: %s", u.ID, u.Email)
}
