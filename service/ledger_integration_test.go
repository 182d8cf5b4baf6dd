package service_test

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockbet/events"
	"stockbet/models"
	"stockbet/repository"
	"stockbet/repository/testutil"
	"stockbet/service"
)

func TestLedger_ConcurrentWithdrawals(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	testDB := testutil.SetupTestDatabase(t)
	ctx := context.Background()

	eventBus := events.NewBus()
	uowFactory := repository.NewUnitOfWorkFactory(testDB.DB, eventBus)

	userService := service.NewUserService(uowFactory)
	ledgerService := service.NewLedgerService(uowFactory)

	user, err := userService.Register(ctx, "race@example.com")
	require.NoError(t, err)
	_, err = ledgerService.Deposit(ctx, user.ID, decimal.RequireFromString("100.00"), "signup")
	require.NoError(t, err)

	// 20 workers race to withdraw 7.00 each from 100.00. Debits serialize
	// on the wallet row, so exactly 14 commit and the rest are rejected
	// without touching the balance or the ledger.
	const workers = 20
	amount := decimal.RequireFromString("7.00")

	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = ledgerService.Withdraw(ctx, user.ID, amount, "cashout")
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

	balance, err := ledgerService.BalanceOf(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.RequireFromString("2.00")),
		"expected 2.00 after 14 withdrawals of 7.00, got %s", balance)
	assert.False(t, balance.IsNegative())

	// No withdrawal was lost or double-counted
	stored, sum, err := ledgerService.Reconcile(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, stored.Equal(sum), "wallet balance %s diverged from ledger sum %s", stored, sum)

	history, err := ledgerService.History(ctx, user.ID, 50)
	require.NoError(t, err)
	assert.Len(t, history, 15) // one deposit plus fourteen withdrawals
}
