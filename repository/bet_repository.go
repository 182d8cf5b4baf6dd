package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"stockbet/database"
	"stockbet/models"
)

// BetRepository implements the service.BetRepository interface
type BetRepository struct {
	q queryable
}

// NewBetRepository creates a new bet repository
func NewBetRepository(db *database.DB) *BetRepository {
	return &BetRepository{q: db.Pool}
}

// newBetRepositoryWithTx creates a new bet repository with a transaction
func newBetRepositoryWithTx(tx queryable) *BetRepository {
	return &BetRepository{q: tx}
}

const betColumns = `id, user_id, market_id, outcome, amount, status, payout, created_at, settled_at`

func scanBet(row pgx.Row) (*models.Bet, error) {
	var b models.Bet
	err := row.Scan(
		&b.ID,
		&b.UserID,
		&b.MarketID,
		&b.Outcome,
		&b.Amount,
		&b.Status,
		&b.Payout,
		&b.CreatedAt,
		&b.SettledAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// Create creates a new pending bet
func (r *BetRepository) Create(ctx context.Context, bet *models.Bet) error {
	query := `
		INSERT INTO bets (id, user_id, market_id, outcome, amount)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING status, created_at
	`

	err := r.q.QueryRow(ctx, query,
		bet.ID,
		bet.UserID,
		bet.MarketID,
		bet.Outcome,
		bet.Amount,
	).Scan(&bet.Status, &bet.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create bet for user %s on market %s: %w", bet.UserID, bet.MarketID, err)
	}

	return nil
}

// GetByID retrieves a bet by id
func (r *BetRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Bet, error) {
	query := `SELECT ` + betColumns + ` FROM bets WHERE id = $1`

	bet, err := scanBet(r.q.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("failed to get bet %s: %w", id, err)
	}
	return bet, nil
}

// GetByMarket returns every bet on a market in placement order. Settlement
// iterates this list, so the order fixes the credit order deterministically.
func (r *BetRepository) GetByMarket(ctx context.Context, marketID uuid.UUID) ([]*models.Bet, error) {
	query := `SELECT ` + betColumns + ` FROM bets WHERE market_id = $1 ORDER BY created_at, id`

	rows, err := r.q.Query(ctx, query, marketID)
	if err != nil {
		return nil, fmt.Errorf("failed to get bets for market %s: %w", marketID, err)
	}
	defer rows.Close()

	return collectBets(rows)
}

// GetByUser returns the most recent bets for a user
func (r *BetRepository) GetByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*models.Bet, error) {
	query := `SELECT ` + betColumns + ` FROM bets WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`

	rows, err := r.q.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get bets for user %s: %w", userID, err)
	}
	defer rows.Close()

	return collectBets(rows)
}

// UpdateSettlement writes a bet's terminal status and payout. Only pending
// bets may transition; settling an already-terminal bet is a bug upstream
// and surfaces as ErrAlreadySettled here.
func (r *BetRepository) UpdateSettlement(ctx context.Context, bet *models.Bet) error {
	query := `
		UPDATE bets
		SET status = $1, payout = $2, settled_at = $3
		WHERE id = $4 AND status = 'pending'
	`

	result, err := r.q.Exec(ctx, query, bet.Status, bet.Payout, bet.SettledAt, bet.ID)
	if err != nil {
		return fmt.Errorf("failed to settle bet %s: %w", bet.ID, err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("bet %s is not pending: %w", bet.ID, models.ErrAlreadySettled)
	}

	return nil
}

func collectBets(rows pgx.Rows) ([]*models.Bet, error) {
	var bets []*models.Bet
	for rows.Next() {
		bet, err := scanBet(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bet: %w", err)
		}
		bets = append(bets, bet)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate bets: %w", err)
	}

	return bets, nil
}
