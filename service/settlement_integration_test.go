package service_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockbet/config"
	"stockbet/events"
	"stockbet/models"
	"stockbet/repository"
	"stockbet/repository/testutil"
	"stockbet/service"
)

func TestSettlement_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	testDB := testutil.SetupTestDatabase(t)
	ctx := context.Background()

	cfg := &config.Config{
		FeeRate:     decimal.RequireFromString("0.02"),
		HouseUserID: uuid.MustParse("00000000-0000-0000-0000-000000000001"),
	}

	eventBus := events.NewBus()
	uowFactory := repository.NewUnitOfWorkFactory(testDB.DB, eventBus)

	userService := service.NewUserService(uowFactory)
	ledgerService := service.NewLedgerService(uowFactory)
	marketService := service.NewMarketService(uowFactory)
	bettingService := service.NewBettingService(uowFactory)
	settlementService := service.NewSettlementService(uowFactory, cfg)

	// Three funded accounts
	alice, err := userService.Register(ctx, "alice@example.com")
	require.NoError(t, err)
	bob, err := userService.Register(ctx, "bob@example.com")
	require.NoError(t, err)
	carol, err := userService.Register(ctx, "carol@example.com")
	require.NoError(t, err)

	for _, u := range []*models.User{alice, bob, carol} {
		_, err := ledgerService.Deposit(ctx, u.ID, decimal.RequireFromString("100.00"), "signup")
		require.NoError(t, err)
	}

	market, err := marketService.Create(ctx, "AAPL", "AAPL up by Friday close?", "", time.Now().Add(time.Hour))
	require.NoError(t, err)

	// Alice and Bob back up, Carol backs down
	aliceBet, err := bettingService.PlaceBet(ctx, alice.ID, market.ID, models.OutcomeUp, decimal.RequireFromString("30.00"))
	require.NoError(t, err)
	_, err = bettingService.PlaceBet(ctx, bob.ID, market.ID, models.OutcomeUp, decimal.RequireFromString("20.00"))
	require.NoError(t, err)
	_, err = bettingService.PlaceBet(ctx, carol.ID, market.ID, models.OutcomeDown, decimal.RequireFromString("50.00"))
	require.NoError(t, err)

	// Stakes left every wallet immediately
	balance, err := ledgerService.BalanceOf(ctx, alice.ID)
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.RequireFromString("70.00")))

	_, err = marketService.Close(ctx, market.ID)
	require.NoError(t, err)

	// No bets after close
	_, err = bettingService.PlaceBet(ctx, alice.ID, market.ID, models.OutcomeUp, decimal.RequireFromString("1.00"))
	assert.ErrorIs(t, err, models.ErrMarketNotOpen)

	_, err = marketService.Resolve(ctx, market.ID, models.OutcomeUp)
	require.NoError(t, err)

	result, err := settlementService.Settle(ctx, market.ID)
	require.NoError(t, err)

	// Pool 100.00, distributable 98.00. Alice holds 30/50 of the winning
	// side (58.80), Bob 20/50 (39.20), Carol loses her stake.
	assert.True(t, result.Pool.Equal(decimal.RequireFromString("100.00")))
	assert.True(t, result.TotalPaid.Equal(decimal.RequireFromString("98.00")))
	assert.True(t, result.Rake.Equal(decimal.RequireFromString("2.00")))

	aliceBalance, err := ledgerService.BalanceOf(ctx, alice.ID)
	require.NoError(t, err)
	assert.True(t, aliceBalance.Equal(decimal.RequireFromString("128.80")))

	bobBalance, err := ledgerService.BalanceOf(ctx, bob.ID)
	require.NoError(t, err)
	assert.True(t, bobBalance.Equal(decimal.RequireFromString("119.20")))

	carolBalance, err := ledgerService.BalanceOf(ctx, carol.ID)
	require.NoError(t, err)
	assert.True(t, carolBalance.Equal(decimal.RequireFromString("50.00")))

	houseBalance, err := ledgerService.BalanceOf(ctx, cfg.HouseUserID)
	require.NoError(t, err)
	assert.True(t, houseBalance.Equal(decimal.RequireFromString("2.00")))

	// Money is conserved: deposits in, balances out
	total := aliceBalance.Add(bobBalance).Add(carolBalance).Add(houseBalance)
	assert.True(t, total.Equal(decimal.RequireFromString("300.00")))

	// Every wallet's ledger sums to its stored balance
	for _, u := range []*models.User{alice, bob, carol} {
		stored, sum, err := ledgerService.Reconcile(ctx, u.ID)
		require.NoError(t, err)
		assert.True(t, stored.Equal(sum), "wallet balance diverged from ledger for %s", u.Email)
	}

	// Settlement is not repeatable
	_, err = settlementService.Settle(ctx, market.ID)
	assert.ErrorIs(t, err, models.ErrAlreadySettled)

	// The settled bet carries its payout
	settledBet, err := bettingService.GetBet(ctx, aliceBet.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BetStatusWon, settledBet.Status)
	require.NotNil(t, settledBet.Payout)
	assert.True(t, settledBet.Payout.Equal(decimal.RequireFromString("58.80")))
}

func TestSettlement_Integration_RefundWhenWinningSideEmpty(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	testDB := testutil.SetupTestDatabase(t)
	ctx := context.Background()

	cfg := &config.Config{
		FeeRate:     decimal.RequireFromString("0.02"),
		HouseUserID: uuid.MustParse("00000000-0000-0000-0000-000000000001"),
	}

	eventBus := events.NewBus()
	uowFactory := repository.NewUnitOfWorkFactory(testDB.DB, eventBus)

	userService := service.NewUserService(uowFactory)
	ledgerService := service.NewLedgerService(uowFactory)
	marketService := service.NewMarketService(uowFactory)
	bettingService := service.NewBettingService(uowFactory)
	settlementService := service.NewSettlementService(uowFactory, cfg)

	dave, err := userService.Register(ctx, "dave@example.com")
	require.NoError(t, err)
	_, err = ledgerService.Deposit(ctx, dave.ID, decimal.RequireFromString("100.00"), "signup")
	require.NoError(t, err)

	market, err := marketService.Create(ctx, "TSLA", "TSLA up by Friday close?", "", time.Now().Add(time.Hour))
	require.NoError(t, err)

	bet, err := bettingService.PlaceBet(ctx, dave.ID, market.ID, models.OutcomeDown, decimal.RequireFromString("40.00"))
	require.NoError(t, err)

	_, err = marketService.Close(ctx, market.ID)
	require.NoError(t, err)
	_, err = marketService.Resolve(ctx, market.ID, models.OutcomeUp)
	require.NoError(t, err)

	result, err := settlementService.Settle(ctx, market.ID)
	require.NoError(t, err)

	// Whole stake comes back, fee-free
	assert.True(t, result.WinningPool.IsZero())
	assert.True(t, result.Rake.IsZero())
	assert.Len(t, result.Refunded, 1)

	balance, err := ledgerService.BalanceOf(ctx, dave.ID)
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.RequireFromString("100.00")))

	refunded, err := bettingService.GetBet(ctx, bet.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BetStatusRefunded, refunded.Status)
}

func TestSettlement_PlacementRacesResolution(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	testDB := testutil.SetupTestDatabase(t)
	ctx := context.Background()

	cfg := &config.Config{
		FeeRate:     decimal.RequireFromString("0.02"),
		HouseUserID: uuid.MustParse("00000000-0000-0000-0000-000000000001"),
	}

	eventBus := events.NewBus()
	uowFactory := repository.NewUnitOfWorkFactory(testDB.DB, eventBus)

	userService := service.NewUserService(uowFactory)
	ledgerService := service.NewLedgerService(uowFactory)
	marketService := service.NewMarketService(uowFactory)
	bettingService := service.NewBettingService(uowFactory)
	settlementService := service.NewSettlementService(uowFactory, cfg)

	eve, err := userService.Register(ctx, "eve@example.com")
	require.NoError(t, err)
	frank, err := userService.Register(ctx, "frank@example.com")
	require.NoError(t, err)
	for _, u := range []*models.User{eve, frank} {
		_, err := ledgerService.Deposit(ctx, u.ID, decimal.RequireFromString("200.00"), "signup")
		require.NoError(t, err)
	}

	// A placement holds the market row FOR SHARE while resolution wants it
	// FOR UPDATE, so each iteration has exactly two legal outcomes: the
	// late bet commits before the market closes and gets settled with the
	// rest, or it finds the market no longer open and is rejected. A bet
	// left pending after settlement would mean the locks let both through.
	for i := 0; i < 5; i++ {
		t.Run(fmt.Sprintf("race %d", i), func(t *testing.T) {
			market, err := marketService.Create(ctx, "NVDA", "NVDA up by Friday close?", "", time.Now().Add(time.Hour))
			require.NoError(t, err)
			_, err = bettingService.PlaceBet(ctx, eve.ID, market.ID, models.OutcomeUp, decimal.RequireFromString("10.00"))
			require.NoError(t, err)

			start := make(chan struct{})
			var wg sync.WaitGroup
			wg.Add(2)

			var lateBet *models.Bet
			var placeErr error
			go func() {
				defer wg.Done()
				<-start
				lateBet, placeErr = bettingService.PlaceBet(ctx, frank.ID, market.ID, models.OutcomeDown, decimal.RequireFromString("20.00"))
			}()

			var closeErr, resolveErr, settleErr error
			go func() {
				defer wg.Done()
				<-start
				if _, closeErr = marketService.Close(ctx, market.ID); closeErr != nil {
					return
				}
				if _, resolveErr = marketService.Resolve(ctx, market.ID, models.OutcomeUp); resolveErr != nil {
					return
				}
				_, settleErr = settlementService.Settle(ctx, market.ID)
			}()

			close(start)
			wg.Wait()

			require.NoError(t, closeErr)
			require.NoError(t, resolveErr)
			require.NoError(t, settleErr)

			if placeErr != nil {
				// Lost the race: rejected cleanly, stake untouched
				assert.ErrorIs(t, placeErr, models.ErrMarketNotOpen)
			} else {
				// Won the race: the bet was in before the close committed,
				// so settlement picked it up
				settled, err := bettingService.GetBet(ctx, lateBet.ID)
				require.NoError(t, err)
				assert.True(t, settled.IsTerminal(),
					"late bet still %s after settlement", settled.Status)
			}

			// Every path conserves the deposits
			eveBalance, err := ledgerService.BalanceOf(ctx, eve.ID)
			require.NoError(t, err)
			frankBalance, err := ledgerService.BalanceOf(ctx, frank.ID)
			require.NoError(t, err)
			houseBalance, err := ledgerService.BalanceOf(ctx, cfg.HouseUserID)
			require.NoError(t, err)

			total := eveBalance.Add(frankBalance).Add(houseBalance)
			assert.True(t, total.Equal(decimal.RequireFromString("400.00")),
				"money not conserved: %s + %s + %s = %s", eveBalance, frankBalance, houseBalance, total)
			assert.False(t, eveBalance.IsNegative())
			assert.False(t, frankBalance.IsNegative())

			for _, u := range []*models.User{eve, frank} {
				stored, sum, err := ledgerService.Reconcile(ctx, u.ID)
				require.NoError(t, err)
				assert.True(t, stored.Equal(sum), "wallet balance diverged from ledger for %s", u.Email)
			}
		})
	}
}
