package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"stockbet/database"
	"stockbet/models"
)

// MarketRepository implements the service.MarketRepository interface
type MarketRepository struct {
	q queryable
}

// NewMarketRepository creates a new market repository
func NewMarketRepository(db *database.DB) *MarketRepository {
	return &MarketRepository{q: db.Pool}
}

// newMarketRepositoryWithTx creates a new market repository with a transaction
func newMarketRepositoryWithTx(tx queryable) *MarketRepository {
	return &MarketRepository{q: tx}
}

const marketColumns = `id, symbol, title, description, resolve_by, status, resolution, created_at, resolved_at`

func scanMarket(row pgx.Row) (*models.Market, error) {
	var m models.Market
	err := row.Scan(
		&m.ID,
		&m.Symbol,
		&m.Title,
		&m.Description,
		&m.ResolveBy,
		&m.Status,
		&m.Resolution,
		&m.CreatedAt,
		&m.ResolvedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// Create creates a new market in the open state
func (r *MarketRepository) Create(ctx context.Context, market *models.Market) error {
	query := `
		INSERT INTO markets (id, symbol, title, description, resolve_by)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING status, resolution, created_at
	`

	err := r.q.QueryRow(ctx, query,
		market.ID,
		market.Symbol,
		market.Title,
		market.Description,
		market.ResolveBy,
	).Scan(&market.Status, &market.Resolution, &market.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create market %s: %w", market.Symbol, err)
	}

	return nil
}

// GetByID retrieves a market by id
func (r *MarketRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Market, error) {
	query := `SELECT ` + marketColumns + ` FROM markets WHERE id = $1`

	market, err := scanMarket(r.q.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("failed to get market %s: %w", id, err)
	}
	return market, nil
}

// GetByIDForUpdate retrieves a market holding its row lock for the rest of
// the transaction. Resolve and settlement go through here: the lock is the
// per-market exclusive section.
func (r *MarketRepository) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Market, error) {
	query := `SELECT ` + marketColumns + ` FROM markets WHERE id = $1 FOR UPDATE`

	market, err := scanMarket(r.q.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("failed to lock market %s: %w", id, err)
	}
	return market, nil
}

// GetByIDForShare retrieves a market holding a shared row lock. Bet
// placement goes through here: placements run concurrently with each other
// but mutually exclude the FOR UPDATE lock taken by resolve and settlement,
// so the status check stays valid until the placing transaction commits.
func (r *MarketRepository) GetByIDForShare(ctx context.Context, id uuid.UUID) (*models.Market, error) {
	query := `SELECT ` + marketColumns + ` FROM markets WHERE id = $1 FOR SHARE`

	market, err := scanMarket(r.q.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("failed to share-lock market %s: %w", id, err)
	}
	return market, nil
}

// Update persists a market's status, resolution and resolved_at
func (r *MarketRepository) Update(ctx context.Context, market *models.Market) error {
	query := `
		UPDATE markets
		SET status = $1, resolution = $2, resolved_at = $3
		WHERE id = $4
	`

	result, err := r.q.Exec(ctx, query, market.Status, market.Resolution, market.ResolvedAt, market.ID)
	if err != nil {
		return fmt.Errorf("failed to update market %s: %w", market.ID, err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("market %s: %w", market.ID, models.ErrNotFound)
	}

	return nil
}

// List returns markets, optionally filtered by status, newest first
func (r *MarketRepository) List(ctx context.Context, status *models.MarketStatus) ([]*models.Market, error) {
	query := `SELECT ` + marketColumns + ` FROM markets`
	var args []any
	if status != nil {
		query += ` WHERE status = $1`
		args = append(args, *status)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list markets: %w", err)
	}
	defer rows.Close()

	return collectMarkets(rows)
}

// GetExpiredOpen returns open markets whose resolve-by deadline has passed
func (r *MarketRepository) GetExpiredOpen(ctx context.Context, now time.Time) ([]*models.Market, error) {
	query := `SELECT ` + marketColumns + ` FROM markets WHERE status = 'open' AND resolve_by < $1`

	rows, err := r.q.Query(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("failed to get expired open markets: %w", err)
	}
	defer rows.Close()

	return collectMarkets(rows)
}

// GetResolvedWithPendingBets returns resolved markets that still have at
// least one pending bet, i.e. markets awaiting a settlement pass
func (r *MarketRepository) GetResolvedWithPendingBets(ctx context.Context) ([]*models.Market, error) {
	query := `
		SELECT ` + marketColumns + `
		FROM markets m
		WHERE m.status = 'resolved'
		  AND EXISTS (SELECT 1 FROM bets b WHERE b.market_id = m.id AND b.status = 'pending')
	`

	rows, err := r.q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get markets pending settlement: %w", err)
	}
	defer rows.Close()

	return collectMarkets(rows)
}

func collectMarkets(rows pgx.Rows) ([]*models.Market, error) {
	var markets []*models.Market
	for rows.Next() {
		market, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan market: %w", err)
		}
		markets = append(markets, market)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate markets: %w", err)
	}

	return markets, nil
}
