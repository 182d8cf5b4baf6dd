package testutil

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"stockbet/models"
)

// CreateTestUser creates a test user with a unique email
func CreateTestUser() *models.User {
	id := uuid.New()
	return &models.User{
		ID:    id,
		Email: id.String() + "@test.local",
	}
}

// CreateTestWallet creates a zero-balance wallet owned by a user
func CreateTestWallet(userID uuid.UUID) *models.Wallet {
	return &models.Wallet{
		ID:     uuid.New(),
		UserID: userID,
	}
}

// CreateTestMarket creates an open market resolving a day from now
func CreateTestMarket(symbol string) *models.Market {
	return &models.Market{
		ID:         uuid.New(),
		Symbol:     symbol,
		Title:      symbol + " up by end of day?",
		Status:     models.MarketStatusOpen,
		Resolution: models.OutcomeNA,
		ResolveBy:  time.Now().Add(24 * time.Hour),
	}
}

// CreateTestBet creates a pending bet
func CreateTestBet(userID, marketID uuid.UUID, outcome models.Outcome, amount string) *models.Bet {
	return &models.Bet{
		ID:       uuid.New(),
		UserID:   userID,
		MarketID: marketID,
		Outcome:  outcome,
		Amount:   decimal.RequireFromString(amount),
		Status:   models.BetStatusPending,
	}
}
