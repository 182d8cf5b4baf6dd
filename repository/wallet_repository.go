package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"stockbet/database"
	"stockbet/models"
)

// WalletRepository implements the service.WalletRepository interface
type WalletRepository struct {
	q queryable
}

// NewWalletRepository creates a new wallet repository
func NewWalletRepository(db *database.DB) *WalletRepository {
	return &WalletRepository{q: db.Pool}
}

// newWalletRepositoryWithTx creates a new wallet repository with a transaction
func newWalletRepositoryWithTx(tx queryable) *WalletRepository {
	return &WalletRepository{q: tx}
}

const walletColumns = `id, user_id, balance, currency, created_at, updated_at`

func scanWallet(row pgx.Row) (*models.Wallet, error) {
	var w models.Wallet
	err := row.Scan(
		&w.ID,
		&w.UserID,
		&w.Balance,
		&w.Currency,
		&w.CreatedAt,
		&w.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// Create creates a new wallet with a zero balance
func (r *WalletRepository) Create(ctx context.Context, wallet *models.Wallet) error {
	query := `
		INSERT INTO wallets (id, user_id, currency)
		VALUES ($1, $2, $3)
		RETURNING balance, created_at, updated_at
	`

	if wallet.Currency == "" {
		wallet.Currency = "USD"
	}

	err := r.q.QueryRow(ctx, query, wallet.ID, wallet.UserID, wallet.Currency).Scan(
		&wallet.Balance,
		&wallet.CreatedAt,
		&wallet.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create wallet for user %s: %w", wallet.UserID, err)
	}

	return nil
}

// GetByID retrieves a wallet by id
func (r *WalletRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE id = $1`

	wallet, err := scanWallet(r.q.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("failed to get wallet %s: %w", id, err)
	}
	return wallet, nil
}

// GetByUserID retrieves the wallet owned by a user
func (r *WalletRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE user_id = $1`

	wallet, err := scanWallet(r.q.QueryRow(ctx, query, userID))
	if err != nil {
		return nil, fmt.Errorf("failed to get wallet for user %s: %w", userID, err)
	}
	return wallet, nil
}

// Debit decreases a wallet's balance, failing with ErrInsufficientFunds if
// the balance would go negative. The conditional UPDATE takes the row lock,
// so concurrent debits against the same wallet serialize here. Returns the
// balance after the debit.
func (r *WalletRepository) Debit(ctx context.Context, walletID uuid.UUID, amount decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, fmt.Errorf("debit of %s: %w", amount, models.ErrInvalidAmount)
	}

	query := `
		UPDATE wallets
		SET balance = balance - $1, updated_at = NOW()
		WHERE id = $2 AND balance >= $1
		RETURNING balance
	`

	var newBalance decimal.Decimal
	err := r.q.QueryRow(ctx, query, amount, walletID).Scan(&newBalance)
	if err == pgx.ErrNoRows {
		// Either the wallet does not exist or the balance is short
		wallet, lookupErr := r.GetByID(ctx, walletID)
		if lookupErr != nil {
			return decimal.Zero, fmt.Errorf("failed to check wallet %s: %w", walletID, lookupErr)
		}
		if wallet == nil {
			return decimal.Zero, fmt.Errorf("wallet %s: %w", walletID, models.ErrNotFound)
		}
		return decimal.Zero, fmt.Errorf("have %s, need %s: %w", wallet.Balance, amount, models.ErrInsufficientFunds)
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to debit wallet %s: %w", walletID, err)
	}

	return newBalance, nil
}

// Credit increases a wallet's balance. Returns the balance after the credit.
func (r *WalletRepository) Credit(ctx context.Context, walletID uuid.UUID, amount decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, fmt.Errorf("credit of %s: %w", amount, models.ErrInvalidAmount)
	}

	query := `
		UPDATE wallets
		SET balance = balance + $1, updated_at = NOW()
		WHERE id = $2
		RETURNING balance
	`

	var newBalance decimal.Decimal
	err := r.q.QueryRow(ctx, query, amount, walletID).Scan(&newBalance)
	if err == pgx.ErrNoRows {
		return decimal.Zero, fmt.Errorf("wallet %s: %w", walletID, models.ErrNotFound)
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to credit wallet %s: %w", walletID, err)
	}

	return newBalance, nil
}
