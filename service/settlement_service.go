package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"stockbet/config"
	"stockbet/events"
	"stockbet/models"
)

const (
	// sharePrecision is the number of fractional digits a winner's pool
	// share is computed at before the payout is truncated to currency scale.
	sharePrecision = 12

	// payoutScale is the currency display precision
	payoutScale = 2
)

type settlementService struct {
	uowFactory UnitOfWorkFactory
	config     *config.Config
}

// NewSettlementService creates a new settlement service
func NewSettlementService(uowFactory UnitOfWorkFactory, cfg *config.Config) SettlementService {
	return &settlementService{
		uowFactory: uowFactory,
		config:     cfg,
	}
}

// Settle distributes a resolved market's pool. The whole pass runs in one
// transaction: the market row is locked FOR UPDATE, so concurrent Settle
// calls serialize here; the loser of that race finds no pending bets and
// gets ErrAlreadySettled without touching a wallet.
//
// With winners, each winner's payout is distributable (pool minus the
// platform fee) times their share of the winning pool, the share computed
// half-up at 12 fractional digits and the payout truncated to cents. The
// truncation residue plus the fee is banked on the house wallet so the sum
// of all ledger entries for the market is exactly zero. When nobody holds
// the winning side every stake is refunded in full and no fee is taken.
func (s *settlementService) Settle(ctx context.Context, marketID uuid.UUID) (*models.SettlementResult, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback() // No-op if already committed

	market, err := uow.MarketRepository().GetByIDForUpdate(ctx, marketID)
	if err != nil {
		return nil, fmt.Errorf("failed to get market: %w", err)
	}
	if market == nil {
		return nil, fmt.Errorf("market %s: %w", marketID, models.ErrNotFound)
	}
	if !market.IsResolved() {
		return nil, fmt.Errorf("market %s is %s: %w", marketID, market.Status, models.ErrMarketNotResolved)
	}

	bets, err := uow.BetRepository().GetByMarket(ctx, marketID)
	if err != nil {
		return nil, fmt.Errorf("failed to get bets: %w", err)
	}

	result := &models.SettlementResult{
		MarketID:   marketID,
		Resolution: market.Resolution,
	}

	if len(bets) == 0 {
		// Nothing staked, nothing to do
		if err := uow.Commit(); err != nil {
			return nil, fmt.Errorf("failed to commit transaction: %w", err)
		}
		return result, nil
	}

	pending := 0
	for _, bet := range bets {
		if !bet.IsTerminal() {
			pending++
		}
		result.Pool = result.Pool.Add(bet.Amount)
		if bet.Outcome == market.Resolution {
			result.WinningPool = result.WinningPool.Add(bet.Amount)
		}
	}
	if pending == 0 {
		return nil, fmt.Errorf("market %s: %w", marketID, models.ErrAlreadySettled)
	}

	now := time.Now()

	if result.WinningPool.IsZero() {
		// No winner: refund every stake in full, no fee
		for _, bet := range bets {
			refund := bet.Amount
			bet.Status = models.BetStatusRefunded
			bet.Payout = &refund
			bet.SettledAt = &now
			if err := uow.BetRepository().UpdateSettlement(ctx, bet); err != nil {
				return nil, err
			}

			wallet, err := uow.WalletRepository().GetByUserID(ctx, bet.UserID)
			if err != nil {
				return nil, fmt.Errorf("failed to get bettor wallet: %w", err)
			}
			if wallet == nil {
				return nil, fmt.Errorf("wallet for user %s: %w", bet.UserID, models.ErrNotFound)
			}
			if _, err := creditWallet(ctx, uow, wallet.ID, refund, models.TransactionTypeRefund, "refund:"+bet.ID.String()); err != nil {
				return nil, err
			}

			result.TotalPaid = result.TotalPaid.Add(refund)
			result.Refunded = append(result.Refunded, bet)
		}
	} else {
		result.Distributable = result.Pool.Mul(decimal.NewFromInt(1).Sub(s.config.FeeRate))

		for _, bet := range bets {
			if bet.Outcome == market.Resolution {
				share := bet.Amount.DivRound(result.WinningPool, sharePrecision)
				payout := result.Distributable.Mul(share).RoundDown(payoutScale)

				bet.Status = models.BetStatusWon
				bet.Payout = &payout
				bet.SettledAt = &now
				if err := uow.BetRepository().UpdateSettlement(ctx, bet); err != nil {
					return nil, err
				}

				wallet, err := uow.WalletRepository().GetByUserID(ctx, bet.UserID)
				if err != nil {
					return nil, fmt.Errorf("failed to get winner wallet: %w", err)
				}
				if wallet == nil {
					return nil, fmt.Errorf("wallet for user %s: %w", bet.UserID, models.ErrNotFound)
				}
				if _, err := creditWallet(ctx, uow, wallet.ID, payout, models.TransactionTypePayout, "payout:"+bet.ID.String()); err != nil {
					return nil, err
				}

				result.TotalPaid = result.TotalPaid.Add(payout)
				result.Won = append(result.Won, bet)
			} else {
				zero := decimal.Zero
				bet.Status = models.BetStatusLost
				bet.Payout = &zero
				bet.SettledAt = &now
				if err := uow.BetRepository().UpdateSettlement(ctx, bet); err != nil {
					return nil, err
				}

				result.Lost = append(result.Lost, bet)
			}
		}

		// Bank the fee plus truncation breakage on the house wallet so
		// retained funds stay visible on the ledger
		result.Rake = result.Pool.Sub(result.TotalPaid)
		if result.Rake.IsPositive() {
			houseWallet, err := uow.WalletRepository().GetByUserID(ctx, s.config.HouseUserID)
			if err != nil {
				return nil, fmt.Errorf("failed to get house wallet: %w", err)
			}
			if houseWallet == nil {
				return nil, fmt.Errorf("house wallet for user %s: %w", s.config.HouseUserID, models.ErrNotFound)
			}
			if _, err := creditWallet(ctx, uow, houseWallet.ID, result.Rake, models.TransactionTypePayout, "rake:"+marketID.String()); err != nil {
				return nil, err
			}
		}
	}

	uow.EventBus().Publish(events.MarketSettledEvent{
		MarketID:   marketID,
		Resolution: market.Resolution,
		Pool:       result.Pool,
		TotalPaid:  result.TotalPaid,
		Rake:       result.Rake,
		BetCount:   len(bets),
	})

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.WithFields(log.Fields{
		"marketID":   marketID,
		"resolution": market.Resolution,
		"pool":       result.Pool,
		"totalPaid":  result.TotalPaid,
		"rake":       result.Rake,
		"won":        len(result.Won),
		"lost":       len(result.Lost),
		"refunded":   len(result.Refunded),
	}).Info("Market settled")

	return result, nil
}

// SettleDue finds every resolved market with pending bets and settles each
// in its own transaction, so one failing market does not block the rest.
func (s *settlementService) SettleDue(ctx context.Context) (int, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	markets, err := uow.MarketRepository().GetResolvedWithPendingBets(ctx)
	uow.Rollback()
	if err != nil {
		return 0, fmt.Errorf("failed to get markets due for settlement: %w", err)
	}

	settled := 0
	for _, market := range markets {
		if _, err := s.Settle(ctx, market.ID); err != nil {
			if errors.Is(err, models.ErrAlreadySettled) {
				// Another settler got here first
				continue
			}
			log.WithError(err).WithField("marketID", market.ID).Error("Failed to settle market")
			continue
		}
		settled++
	}
	return settled, nil
}
