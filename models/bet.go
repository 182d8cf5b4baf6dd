package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BetStatus represents the settlement state of a bet
type BetStatus string

const (
	BetStatusPending  BetStatus = "pending"
	BetStatusWon      BetStatus = "won"
	BetStatusLost     BetStatus = "lost"
	BetStatusRefunded BetStatus = "refunded"
)

// Bet represents a user's stake on one outcome of a market.
// Amount is fixed at placement; Status and Payout are written exactly once,
// by the settlement pass for the owning market.
type Bet struct {
	ID        uuid.UUID        `db:"id"`
	UserID    uuid.UUID        `db:"user_id"`
	MarketID  uuid.UUID        `db:"market_id"`
	Outcome   Outcome          `db:"outcome"`
	Amount    decimal.Decimal  `db:"amount"`
	Status    BetStatus        `db:"status"`
	Payout    *decimal.Decimal `db:"payout"`
	CreatedAt time.Time        `db:"created_at"`
	SettledAt *time.Time       `db:"settled_at"`
}

// IsTerminal checks if the bet has been settled
func (b *Bet) IsTerminal() bool {
	return b.Status != BetStatusPending
}
