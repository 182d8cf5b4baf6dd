package models

import (
	"time"

	"github.com/google/uuid"
)

// User represents an account holder. Authentication lives in the web layer;
// the core only needs the identity a wallet hangs off.
type User struct {
	ID        uuid.UUID `db:"id"`
	Email     string    `db:"email"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}
