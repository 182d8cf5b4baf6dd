package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionType represents the kind of balance change
type TransactionType string

const (
	TransactionTypeDeposit    TransactionType = "deposit"
	TransactionTypeWithdrawal TransactionType = "withdrawal"
	TransactionTypeWager      TransactionType = "wager"
	TransactionTypePayout     TransactionType = "payout"
	TransactionTypeRefund     TransactionType = "refund"
)

// Transaction is an immutable ledger entry. Amounts are signed: wagers and
// withdrawals are negative, deposits, payouts and refunds positive. The
// ledger is append-only and is the sole source of truth for balance
// reconstruction.
type Transaction struct {
	ID           uuid.UUID       `db:"id"`
	WalletID     uuid.UUID       `db:"wallet_id"`
	Type         TransactionType `db:"type"`
	Amount       decimal.Decimal `db:"amount"`
	BalanceAfter decimal.Decimal `db:"balance_after"`
	Reference    string          `db:"reference"`
	CreatedAt    time.Time       `db:"created_at"`
}
