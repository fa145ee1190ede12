package txn

import "github.com/google/uuid"

// TokenGenerator produces session tokens.
type TokenGenerator interface {
	Generate() string
}

// UUIDGenerator issues random version 4 UUIDs.
type UUIDGenerator struct{}

// Generate returns a new random UUID string.
func (UUIDGenerator) Generate() string {
	return uuid.NewString()
}
