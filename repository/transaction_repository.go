package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"stockbet/database"
	"stockbet/models"
)

// TransactionRepository implements the service.TransactionRepository
// interface. The ledger is append-only: there is deliberately no update or
// delete path.
type TransactionRepository struct {
	q queryable
}

// NewTransactionRepository creates a new ledger repository
func NewTransactionRepository(db *database.DB) *TransactionRepository {
	return &TransactionRepository{q: db.Pool}
}

// newTransactionRepositoryWithTx creates a new ledger repository with a transaction
func newTransactionRepositoryWithTx(tx queryable) *TransactionRepository {
	return &TransactionRepository{q: tx}
}

// Append records a new ledger entry
func (r *TransactionRepository) Append(ctx context.Context, txn *models.Transaction) error {
	query := `
		INSERT INTO wallet_transactions (id, wallet_id, type, amount, balance_after, reference)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`

	err := r.q.QueryRow(ctx, query,
		txn.ID,
		txn.WalletID,
		txn.Type,
		txn.Amount,
		txn.BalanceAfter,
		txn.Reference,
	).Scan(&txn.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append transaction for wallet %s: %w", txn.WalletID, err)
	}

	return nil
}

// GetByWallet returns the most recent ledger entries for a wallet
func (r *TransactionRepository) GetByWallet(ctx context.Context, walletID uuid.UUID, limit int) ([]*models.Transaction, error) {
	query := `
		SELECT id, wallet_id, type, amount, balance_after, reference, created_at
		FROM wallet_transactions
		WHERE wallet_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.q.Query(ctx, query, walletID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get transactions for wallet %s: %w", walletID, err)
	}
	defer rows.Close()

	var txns []*models.Transaction
	for rows.Next() {
		var txn models.Transaction
		err := rows.Scan(
			&txn.ID,
			&txn.WalletID,
			&txn.Type,
			&txn.Amount,
			&txn.BalanceAfter,
			&txn.Reference,
			&txn.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txns = append(txns, &txn)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transactions: %w", err)
	}

	return txns, nil
}

// SumByWallet returns the signed sum of all ledger entries for a wallet.
// By the conservation invariant this always equals the wallet's balance.
func (r *TransactionRepository) SumByWallet(ctx context.Context, walletID uuid.UUID) (decimal.Decimal, error) {
	query := `
		SELECT COALESCE(SUM(amount), 0)
		FROM wallet_transactions
		WHERE wallet_id = $1
	`

	var sum decimal.Decimal
	if err := r.q.QueryRow(ctx, query, walletID).Scan(&sum); err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum transactions for wallet %s: %w", walletID, err)
	}

	return sum, nil
}
