package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Wallet holds a user's funds in a fixed currency. Balance is mutated only
// through ledger operations, each paired with an appended Transaction.
type Wallet struct {
	ID        uuid.UUID       `db:"id"`
	UserID    uuid.UUID       `db:"user_id"`
	Balance   decimal.Decimal `db:"balance"`
	Currency  string          `db:"currency"`
	CreatedAt time.Time       `db:"created_at"`
	UpdatedAt time.Time       `db:"updated_at"`
}
