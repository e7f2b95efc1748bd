// Package authentication provides Argon2id password hashing in PHC string
// form and credential verification against the user store.
package authentication

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/gofrs/uuid"
	"golang.org/x/crypto/argon2"

	"github.com/Tarick/servare/internal/entity"
)

const (
	memory      uint32 = 15000
	iterations  uint32 = 2
	parallelism uint8  = 1
	saltLength  uint32 = 16
	keyLength   uint32 = 32
)

// phantomHash is verified when the email is unknown, so a failed lookup
// costs the same as a wrong password and response timing doesn't reveal
// which emails are registered.
const phantomHash = "$argon2id$v=19$m=15000,t=2,p=1$BokfVUn7/enzPijRjUFZ+A$xblte87CXTeoN+2scm5DUwQFOgYFM2vglzpoZsqeRPU"

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidHash        = errors.New("invalid password hash format")
)

// UserStore fetches stored credentials by email, nil user means unknown.
type UserStore interface {
	GetUserByEmail(ctx context.Context, email string) (*entity.User, error)
}

// HashPassword computes an Argon2id hash with a fresh random salt and
// encodes it as a PHC string.
func HashPassword(password string) (string, error) {
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("couldn't generate salt: %w", err)
	}
	hash := argon2.IDKey([]byte(password), salt, iterations, memory, parallelism, keyLength)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		memory,
		iterations,
		parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	), nil
}

// Authenticate validates the credentials and returns the user id. Unknown
// email and wrong password are indistinguishable to the caller.
func Authenticate(ctx context.Context, store UserStore, email, password string) (uuid.UUID, error) {
	expected := phantomHash
	user, err := store.GetUserByEmail(ctx, email)
	if err != nil {
		return uuid.Nil, fmt.Errorf("couldn't get stored credentials: %w", err)
	}
	if user != nil {
		expected = user.PasswordHash
	}
	match, err := verifyPassword(password, expected)
	if err != nil {
		return uuid.Nil, err
	}
	if !match || user == nil {
		return uuid.Nil, ErrInvalidCredentials
	}
	return user.ID, nil
}

func verifyPassword(password, encodedHash string) (bool, error) {
	m, t, p, salt, hash, err := decodeHash(encodedHash)
	if err != nil {
		return false, err
	}
	candidate := argon2.IDKey([]byte(password), salt, t, m, p, uint32(len(hash)))
	return subtle.ConstantTimeCompare(hash, candidate) == 1, nil
}

// decodeHash parses $argon2id$v=19$m=...,t=...,p=...$salt$hash
func decodeHash(encodedHash string) (m, t uint32, p uint8, salt, hash []byte, err error) {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return 0, 0, 0, nil, nil, ErrInvalidHash
	}
	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return 0, 0, 0, nil, nil, ErrInvalidHash
	}
	if version != argon2.Version {
		return 0, 0, 0, nil, nil, fmt.Errorf("%w: unsupported argon2 version %d", ErrInvalidHash, version)
	}
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &m, &t, &p); err != nil {
		return 0, 0, 0, nil, nil, ErrInvalidHash
	}
	salt, err = base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return 0, 0, 0, nil, nil, ErrInvalidHash
	}
	hash, err = base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return 0, 0, 0, nil, nil, ErrInvalidHash
	}
	return m, t, p, salt, hash, nil
}
