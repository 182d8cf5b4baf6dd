package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"stockbet/events"
	"stockbet/models"
)

// debitWallet decreases a wallet balance and appends the matching negative
// ledger entry inside the caller's unit of work. This is the single entry
// point for all balance decreases: the balance mutation and the ledger
// append commit or roll back together with the rest of the transaction.
func debitWallet(ctx context.Context, uow UnitOfWork, walletID uuid.UUID, amount decimal.Decimal, txType models.TransactionType, reference string) (*models.Transaction, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("debit of %s: %w", amount, models.ErrInvalidAmount)
	}

	newBalance, err := uow.WalletRepository().Debit(ctx, walletID, amount)
	if err != nil {
		return nil, err
	}

	txn := &models.Transaction{
		ID:           uuid.New(),
		WalletID:     walletID,
		Type:         txType,
		Amount:       amount.Neg(),
		BalanceAfter: newBalance,
		Reference:    reference,
	}
	if err := uow.TransactionRepository().Append(ctx, txn); err != nil {
		return nil, fmt.Errorf("failed to record debit: %w", err)
	}

	uow.EventBus().Publish(events.BalanceChangeEvent{
		WalletID:        walletID,
		TransactionType: txType,
		Amount:          txn.Amount,
		BalanceAfter:    newBalance,
		Reference:       reference,
	})

	return txn, nil
}

// creditWallet increases a wallet balance and appends the matching positive
// ledger entry inside the caller's unit of work. A zero amount is a legal
// no-op: no balance change, no ledger entry, no event.
func creditWallet(ctx context.Context, uow UnitOfWork, walletID uuid.UUID, amount decimal.Decimal, txType models.TransactionType, reference string) (*models.Transaction, error) {
	if amount.IsZero() {
		return nil, nil
	}
	if amount.IsNegative() {
		return nil, fmt.Errorf("credit of %s: %w", amount, models.ErrInvalidAmount)
	}

	newBalance, err := uow.WalletRepository().Credit(ctx, walletID, amount)
	if err != nil {
		return nil, err
	}

	txn := &models.Transaction{
		ID:           uuid.New(),
		WalletID:     walletID,
		Type:         txType,
		Amount:       amount,
		BalanceAfter: newBalance,
		Reference:    reference,
	}
	if err := uow.TransactionRepository().Append(ctx, txn); err != nil {
		return nil, fmt.Errorf("failed to record credit: %w", err)
	}

	uow.EventBus().Publish(events.BalanceChangeEvent{
		WalletID:        walletID,
		TransactionType: txType,
		Amount:          amount,
		BalanceAfter:    newBalance,
		Reference:       reference,
	})

	return txn, nil
}

type ledgerService struct {
	uowFactory UnitOfWorkFactory
}

// NewLedgerService creates a new ledger service
func NewLedgerService(uowFactory UnitOfWorkFactory) LedgerService {
	return &ledgerService{
		uowFactory: uowFactory,
	}
}

// Deposit credits a user's wallet
func (s *ledgerService) Deposit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, reference string) (*models.Transaction, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("deposit of %s: %w", amount, models.ErrInvalidAmount)
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback() // No-op if already committed

	wallet, err := uow.WalletRepository().GetByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}
	if wallet == nil {
		return nil, fmt.Errorf("wallet for user %s: %w", userID, models.ErrNotFound)
	}

	txn, err := creditWallet(ctx, uow, wallet.ID, amount, models.TransactionTypeDeposit, reference)
	if err != nil {
		return nil, err
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return txn, nil
}

// Withdraw debits a user's wallet, failing with ErrInsufficientFunds if the
// balance is short. On failure the wallet and ledger are untouched.
func (s *ledgerService) Withdraw(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, reference string) (*models.Transaction, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("withdrawal of %s: %w", amount, models.ErrInvalidAmount)
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	wallet, err := uow.WalletRepository().GetByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}
	if wallet == nil {
		return nil, fmt.Errorf("wallet for user %s: %w", userID, models.ErrNotFound)
	}

	txn, err := debitWallet(ctx, uow, wallet.ID, amount, models.TransactionTypeWithdrawal, reference)
	if err != nil {
		return nil, err
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return txn, nil
}

// BalanceOf returns a user's current wallet balance
func (s *ledgerService) BalanceOf(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return decimal.Zero, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	wallet, err := uow.WalletRepository().GetByUserID(ctx, userID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get wallet: %w", err)
	}
	if wallet == nil {
		return decimal.Zero, fmt.Errorf("wallet for user %s: %w", userID, models.ErrNotFound)
	}

	return wallet.Balance, nil
}

// History returns the most recent ledger entries for a user's wallet
func (s *ledgerService) History(ctx context.Context, userID uuid.UUID, limit int) ([]*models.Transaction, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	wallet, err := uow.WalletRepository().GetByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}
	if wallet == nil {
		return nil, fmt.Errorf("wallet for user %s: %w", userID, models.ErrNotFound)
	}

	txns, err := uow.TransactionRepository().GetByWallet(ctx, wallet.ID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get transactions: %w", err)
	}

	return txns, nil
}

// Reconcile recomputes the ledger sum for a user's wallet and returns it
// alongside the stored balance. The two are equal unless the ledger has
// been tampered with outside this package.
func (s *ledgerService) Reconcile(ctx context.Context, userID uuid.UUID) (decimal.Decimal, decimal.Decimal, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	wallet, err := uow.WalletRepository().GetByUserID(ctx, userID)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("failed to get wallet: %w", err)
	}
	if wallet == nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("wallet for user %s: %w", userID, models.ErrNotFound)
	}

	sum, err := uow.TransactionRepository().SumByWallet(ctx, wallet.ID)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("failed to sum ledger: %w", err)
	}

	return wallet.Balance, sum, nil
}
