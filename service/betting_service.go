package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"stockbet/events"
	"stockbet/models"
)

type bettingService struct {
	uowFactory UnitOfWorkFactory
}

// NewBettingService creates a new betting service
func NewBettingService(uowFactory UnitOfWorkFactory) BettingService {
	return &bettingService{
		uowFactory: uowFactory,
	}
}

// PlaceBet stakes amount on one outcome of an open market. The debit and
// the bet row commit together or not at all. The market row is share-locked
// for the duration of the transaction, so a concurrent resolve (and any
// settlement behind it) waits until this placement has committed.
func (s *bettingService) PlaceBet(ctx context.Context, userID, marketID uuid.UUID, outcome models.Outcome, amount decimal.Decimal) (*models.Bet, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("stake of %s: %w", amount, models.ErrInvalidAmount)
	}
	if outcome != models.OutcomeUp && outcome != models.OutcomeDown {
		return nil, fmt.Errorf("cannot bet outcome %q: %w", outcome, models.ErrInvalidOutcome)
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback() // No-op if already committed

	market, err := uow.MarketRepository().GetByIDForShare(ctx, marketID)
	if err != nil {
		return nil, fmt.Errorf("failed to get market: %w", err)
	}
	if market == nil {
		return nil, fmt.Errorf("market %s: %w", marketID, models.ErrNotFound)
	}
	if !market.CanAcceptBets() {
		return nil, fmt.Errorf("market %s is %s: %w", marketID, market.Status, models.ErrMarketNotOpen)
	}

	wallet, err := uow.WalletRepository().GetByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}
	if wallet == nil {
		return nil, fmt.Errorf("wallet for user %s: %w", userID, models.ErrNotFound)
	}

	// Reserve the stake before the bet row exists: a failed debit leaves no bet
	if _, err := debitWallet(ctx, uow, wallet.ID, amount, models.TransactionTypeWager, "bet:"+marketID.String()); err != nil {
		return nil, err
	}

	bet := &models.Bet{
		ID:       uuid.New(),
		UserID:   userID,
		MarketID: marketID,
		Outcome:  outcome,
		Amount:   amount,
	}
	if err := uow.BetRepository().Create(ctx, bet); err != nil {
		return nil, fmt.Errorf("failed to create bet: %w", err)
	}

	uow.EventBus().Publish(events.BetPlacedEvent{
		BetID:    bet.ID,
		UserID:   userID,
		MarketID: marketID,
		Outcome:  outcome,
		Amount:   amount,
	})

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return bet, nil
}

// GetBet retrieves a bet by id
func (s *bettingService) GetBet(ctx context.Context, betID uuid.UUID) (*models.Bet, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	bet, err := uow.BetRepository().GetByID(ctx, betID)
	if err != nil {
		return nil, fmt.Errorf("failed to get bet: %w", err)
	}
	if bet == nil {
		return nil, fmt.Errorf("bet %s: %w", betID, models.ErrNotFound)
	}

	return bet, nil
}

// BetsForUser returns the most recent bets for a user
func (s *bettingService) BetsForUser(ctx context.Context, userID uuid.UUID, limit int) ([]*models.Bet, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	bets, err := uow.BetRepository().GetByUser(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get bets: %w", err)
	}

	return bets, nil
}

// BetsForMarket returns all bets on a market
func (s *bettingService) BetsForMarket(ctx context.Context, marketID uuid.UUID) ([]*models.Bet, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	bets, err := uow.BetRepository().GetByMarket(ctx, marketID)
	if err != nil {
		return nil, fmt.Errorf("failed to get bets: %w", err)
	}

	return bets, nil
}
