package models

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SettlementResult represents the outcome of a settlement pass over a market
type SettlementResult struct {
	MarketID      uuid.UUID
	Resolution    Outcome
	Pool          decimal.Decimal
	WinningPool   decimal.Decimal
	Distributable decimal.Decimal
	TotalPaid     decimal.Decimal
	Rake          decimal.Decimal
	Won           []*Bet
	Lost          []*Bet
	Refunded      []*Bet
}
