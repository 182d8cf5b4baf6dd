package models

import (
	"time"

	"github.com/google/uuid"
)

// MarketStatus represents the lifecycle state of a market
type MarketStatus string

const (
	MarketStatusOpen     MarketStatus = "open"
	MarketStatusClosed   MarketStatus = "closed"
	MarketStatusResolved MarketStatus = "resolved"
)

// Outcome represents a side of a binary market
type Outcome string

const (
	OutcomeUp   Outcome = "up"
	OutcomeDown Outcome = "down"
	OutcomeNA   Outcome = "na"
)

// Market represents a resolvable binary proposition users can stake on
type Market struct {
	ID          uuid.UUID    `db:"id"`
	Symbol      string       `db:"symbol"`
	Title       string       `db:"title"`
	Description string       `db:"description"`
	ResolveBy   time.Time    `db:"resolve_by"`
	Status      MarketStatus `db:"status"`
	Resolution  Outcome      `db:"resolution"`
	CreatedAt   time.Time    `db:"created_at"`
	ResolvedAt  *time.Time   `db:"resolved_at"`
}

// CanAcceptBets checks if the market is still taking stakes
func (m *Market) CanAcceptBets() bool {
	return m.Status == MarketStatusOpen
}

// CanBeClosed checks if the market can transition to closed
func (m *Market) CanBeClosed() bool {
	return m.Status == MarketStatusOpen
}

// CanBeResolved checks if the market can transition to resolved
func (m *Market) CanBeResolved() bool {
	return m.Status == MarketStatusClosed
}

// IsResolved checks if the market has a fixed resolution
func (m *Market) IsResolved() bool {
	return m.Status == MarketStatusResolved
}

// IsExpired checks if the market's resolve-by deadline has passed
func (m *Market) IsExpired(now time.Time) bool {
	return now.After(m.ResolveBy)
}
