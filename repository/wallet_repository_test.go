package repository

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockbet/models"
	"stockbet/repository/testutil"
)

func TestWalletRepository_CreateAndGet(t *testing.T) {
	t.Parallel()
	testDB := testutil.SetupTestDatabase(t)

	userRepo := NewUserRepository(testDB.DB)
	walletRepo := NewWalletRepository(testDB.DB)
	ctx := context.Background()

	t.Run("wallet not found", func(t *testing.T) {
		wallet, err := walletRepo.GetByUserID(ctx, uuid.New())
		require.NoError(t, err)
		assert.Nil(t, wallet)
	})

	t.Run("new wallet starts empty", func(t *testing.T) {
		user := testutil.CreateTestUser()
		require.NoError(t, userRepo.Create(ctx, user))

		wallet := testutil.CreateTestWallet(user.ID)
		require.NoError(t, walletRepo.Create(ctx, wallet))

		assert.True(t, wallet.Balance.IsZero())
		assert.Equal(t, "USD", wallet.Currency)
		assert.False(t, wallet.CreatedAt.IsZero())

		found, err := walletRepo.GetByUserID(ctx, user.ID)
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, wallet.ID, found.ID)
		assert.True(t, found.Balance.IsZero())
	})

	t.Run("one wallet per user", func(t *testing.T) {
		user := testutil.CreateTestUser()
		require.NoError(t, userRepo.Create(ctx, user))
		require.NoError(t, walletRepo.Create(ctx, testutil.CreateTestWallet(user.ID)))

		err := walletRepo.Create(ctx, testutil.CreateTestWallet(user.ID))
		assert.Error(t, err)
	})
}

func TestWalletRepository_DebitCredit(t *testing.T) {
	t.Parallel()
	testDB := testutil.SetupTestDatabase(t)

	userRepo := NewUserRepository(testDB.DB)
	walletRepo := NewWalletRepository(testDB.DB)
	ctx := context.Background()

	setupWallet := func(t *testing.T, funded string) *models.Wallet {
		user := testutil.CreateTestUser()
		require.NoError(t, userRepo.Create(ctx, user))
		wallet := testutil.CreateTestWallet(user.ID)
		require.NoError(t, walletRepo.Create(ctx, wallet))
		if funded != "" {
			_, err := walletRepo.Credit(ctx, wallet.ID, decimal.RequireFromString(funded))
			require.NoError(t, err)
		}
		return wallet
	}

	t.Run("credit increases balance", func(t *testing.T) {
		wallet := setupWallet(t, "")

		newBalance, err := walletRepo.Credit(ctx, wallet.ID, decimal.RequireFromString("100.00"))
		require.NoError(t, err)
		assert.True(t, newBalance.Equal(decimal.RequireFromString("100.00")))

		newBalance, err = walletRepo.Credit(ctx, wallet.ID, decimal.RequireFromString("0.01"))
		require.NoError(t, err)
		assert.True(t, newBalance.Equal(decimal.RequireFromString("100.01")))
	})

	t.Run("debit decreases balance", func(t *testing.T) {
		wallet := setupWallet(t, "100.00")

		newBalance, err := walletRepo.Debit(ctx, wallet.ID, decimal.RequireFromString("40.00"))
		require.NoError(t, err)
		assert.True(t, newBalance.Equal(decimal.RequireFromString("60.00")))
	})

	t.Run("debit to exactly zero", func(t *testing.T) {
		wallet := setupWallet(t, "25.00")

		newBalance, err := walletRepo.Debit(ctx, wallet.ID, decimal.RequireFromString("25.00"))
		require.NoError(t, err)
		assert.True(t, newBalance.IsZero())
	})

	t.Run("overdraft is rejected and balance untouched", func(t *testing.T) {
		wallet := setupWallet(t, "10.00")

		_, err := walletRepo.Debit(ctx, wallet.ID, decimal.RequireFromString("10.01"))
		assert.ErrorIs(t, err, models.ErrInsufficientFunds)

		found, err := walletRepo.GetByID(ctx, wallet.ID)
		require.NoError(t, err)
		assert.True(t, found.Balance.Equal(decimal.RequireFromString("10.00")))
	})

	t.Run("debit unknown wallet", func(t *testing.T) {
		_, err := walletRepo.Debit(ctx, uuid.New(), decimal.RequireFromString("1.00"))
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("non-positive debit is rejected", func(t *testing.T) {
		wallet := setupWallet(t, "10.00")

		_, err := walletRepo.Debit(ctx, wallet.ID, decimal.Zero)
		assert.ErrorIs(t, err, models.ErrInvalidAmount)
	})
}

func TestWalletRepository_ConcurrentDebits(t *testing.T) {
	t.Parallel()
	testDB := testutil.SetupTestDatabase(t)

	userRepo := NewUserRepository(testDB.DB)
	walletRepo := NewWalletRepository(testDB.DB)
	ctx := context.Background()

	user := testutil.CreateTestUser()
	require.NoError(t, userRepo.Create(ctx, user))
	wallet := testutil.CreateTestWallet(user.ID)
	require.NoError(t, walletRepo.Create(ctx, wallet))
	_, err := walletRepo.Credit(ctx, wallet.ID, decimal.RequireFromString("100.00"))
	require.NoError(t, err)

	// 20 workers race to pull 7.00 each from a 100.00 wallet. The
	// conditional UPDATE serializes on the row, so exactly 14 debits fit
	// and the rest bounce off the balance guard.
	const workers = 20
	debit := decimal.RequireFromString("7.00")

	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = walletRepo.Debit(ctx, wallet.ID, debit)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, models.ErrInsufficientFunds)
		}
	}
	assert.Equal(t, 14, succeeded)

	found, err := walletRepo.GetByID(ctx, wallet.ID)
	require.NoError(t, err)
	assert.True(t, found.Balance.Equal(decimal.RequireFromString("2.00")),
		"expected 2.00 after 14 debits of 7.00, got %s", found.Balance)
	assert.False(t, found.Balance.IsNegative())
}

func TestTransactionRepository_LedgerMatchesBalance(t *testing.T) {
	t.Parallel()
	testDB := testutil.SetupTestDatabase(t)

	userRepo := NewUserRepository(testDB.DB)
	walletRepo := NewWalletRepository(testDB.DB)
	txnRepo := NewTransactionRepository(testDB.DB)
	ctx := context.Background()

	user := testutil.CreateTestUser()
	require.NoError(t, userRepo.Create(ctx, user))
	wallet := testutil.CreateTestWallet(user.ID)
	require.NoError(t, walletRepo.Create(ctx, wallet))

	record := func(t *testing.T, txType models.TransactionType, amount, after string) {
		txn := &models.Transaction{
			ID:           uuid.New(),
			WalletID:     wallet.ID,
			Type:         txType,
			Amount:       decimal.RequireFromString(amount),
			BalanceAfter: decimal.RequireFromString(after),
			Reference:    "test",
		}
		require.NoError(t, txnRepo.Append(ctx, txn))
		assert.False(t, txn.CreatedAt.IsZero())
	}

	t.Run("empty ledger sums to zero", func(t *testing.T) {
		sum, err := txnRepo.SumByWallet(ctx, wallet.ID)
		require.NoError(t, err)
		assert.True(t, sum.IsZero())
	})

	t.Run("signed entries sum to the running balance", func(t *testing.T) {
		record(t, models.TransactionTypeDeposit, "100.00", "100.00")
		record(t, models.TransactionTypeWager, "-30.00", "70.00")
		record(t, models.TransactionTypePayout, "58.80", "128.80")

		sum, err := txnRepo.SumByWallet(ctx, wallet.ID)
		require.NoError(t, err)
		assert.True(t, sum.Equal(decimal.RequireFromString("128.80")))
	})

	t.Run("history is newest first and bounded", func(t *testing.T) {
		txns, err := txnRepo.GetByWallet(ctx, wallet.ID, 2)
		require.NoError(t, err)
		require.Len(t, txns, 2)
		assert.Equal(t, models.TransactionTypePayout, txns[0].Type)
		assert.Equal(t, models.TransactionTypeWager, txns[1].Type)
	})
}
