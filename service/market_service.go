package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"stockbet/events"
	"stockbet/models"
)

type marketService struct {
	uowFactory UnitOfWorkFactory
}

// NewMarketService creates a new market service
func NewMarketService(uowFactory UnitOfWorkFactory) MarketService {
	return &marketService{
		uowFactory: uowFactory,
	}
}

func (s *marketService) Create(ctx context.Context, symbol, title, description string, resolveBy time.Time) (*models.Market, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}
	if !resolveBy.After(time.Now()) {
		return nil, fmt.Errorf("resolve_by must be in the future")
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	market := &models.Market{
		ID:          uuid.New(),
		Symbol:      symbol,
		Title:       title,
		Description: description,
		Status:      models.MarketStatusOpen,
		Resolution:  models.OutcomeNA,
		ResolveBy:   resolveBy,
	}
	if err := uow.MarketRepository().Create(ctx, market); err != nil {
		return nil, fmt.Errorf("failed to create market: %w", err)
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.WithFields(log.Fields{
		"marketID":  market.ID,
		"symbol":    symbol,
		"resolveBy": resolveBy,
	}).Info("Market created")

	return market, nil
}

func (s *marketService) Get(ctx context.Context, marketID uuid.UUID) (*models.Market, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	market, err := uow.MarketRepository().GetByID(ctx, marketID)
	if err != nil {
		return nil, fmt.Errorf("failed to get market: %w", err)
	}
	if market == nil {
		return nil, fmt.Errorf("market %s: %w", marketID, models.ErrNotFound)
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return market, nil
}

func (s *marketService) List(ctx context.Context, status *models.MarketStatus) ([]*models.Market, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	markets, err := uow.MarketRepository().List(ctx, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list markets: %w", err)
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return markets, nil
}

// Close moves an open market to closed, after which no new bets are
// accepted. Closing is a prerequisite for resolving.
func (s *marketService) Close(ctx context.Context, marketID uuid.UUID) (*models.Market, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	market, err := uow.MarketRepository().GetByIDForUpdate(ctx, marketID)
	if err != nil {
		return nil, fmt.Errorf("failed to get market: %w", err)
	}
	if market == nil {
		return nil, fmt.Errorf("market %s: %w", marketID, models.ErrNotFound)
	}
	if !market.CanBeClosed() {
		return nil, fmt.Errorf("market %s is %s: %w", marketID, market.Status, models.ErrMarketNotOpen)
	}

	oldStatus := market.Status
	market.Status = models.MarketStatusClosed
	if err := uow.MarketRepository().Update(ctx, market); err != nil {
		return nil, fmt.Errorf("failed to update market: %w", err)
	}

	uow.EventBus().Publish(events.MarketStateChangeEvent{
		MarketID:  marketID,
		OldStatus: oldStatus,
		NewStatus: market.Status,
	})

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.WithField("marketID", marketID).Info("Market closed")
	return market, nil
}

// Resolve records the observed outcome on a closed market. Resolving to na
// voids the market: settlement refunds every stake. The market row is
// locked so a resolve racing a bet placement cannot interleave.
func (s *marketService) Resolve(ctx context.Context, marketID uuid.UUID, resolution models.Outcome) (*models.Market, error) {
	switch resolution {
	case models.OutcomeUp, models.OutcomeDown, models.OutcomeNA:
	default:
		return nil, fmt.Errorf("unknown resolution %q: %w", resolution, models.ErrInvalidOutcome)
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	market, err := uow.MarketRepository().GetByIDForUpdate(ctx, marketID)
	if err != nil {
		return nil, fmt.Errorf("failed to get market: %w", err)
	}
	if market == nil {
		return nil, fmt.Errorf("market %s: %w", marketID, models.ErrNotFound)
	}
	if !market.CanBeResolved() {
		return nil, fmt.Errorf("market %s is %s: %w", marketID, market.Status, models.ErrMarketNotClosed)
	}

	now := time.Now()
	oldStatus := market.Status
	market.Status = models.MarketStatusResolved
	market.Resolution = resolution
	market.ResolvedAt = &now
	if err := uow.MarketRepository().Update(ctx, market); err != nil {
		return nil, fmt.Errorf("failed to update market: %w", err)
	}

	uow.EventBus().Publish(events.MarketStateChangeEvent{
		MarketID:   marketID,
		OldStatus:  oldStatus,
		NewStatus:  market.Status,
		Resolution: resolution,
	})

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.WithFields(log.Fields{
		"marketID":   marketID,
		"resolution": resolution,
	}).Info("Market resolved")

	return market, nil
}

// CloseExpired closes every open market whose resolve_by has passed and
// returns the number closed. Called from the settlement worker loop.
func (s *marketService) CloseExpired(ctx context.Context) (int, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	markets, err := uow.MarketRepository().GetExpiredOpen(ctx, time.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to get expired markets: %w", err)
	}

	for _, market := range markets {
		oldStatus := market.Status
		market.Status = models.MarketStatusClosed
		if err := uow.MarketRepository().Update(ctx, market); err != nil {
			return 0, fmt.Errorf("failed to close market %s: %w", market.ID, err)
		}
		uow.EventBus().Publish(events.MarketStateChangeEvent{
			MarketID:  market.ID,
			OldStatus: oldStatus,
			NewStatus: market.Status,
		})
	}

	if err := uow.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	if len(markets) > 0 {
		log.WithField("count", len(markets)).Info("Closed expired markets")
	}
	return len(markets), nil
}
