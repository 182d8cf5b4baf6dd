package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"stockbet/events"
	"stockbet/models"
)

// UserRepository defines the interface for user data access
type UserRepository interface {
	// Create creates a new user
	Create(ctx context.Context, user *models.User) error

	// GetByID retrieves a user by id, nil if not found
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)

	// GetByEmail retrieves a user by email, nil if not found
	GetByEmail(ctx context.Context, email string) (*models.User, error)
}

// WalletRepository defines the interface for wallet data access
type WalletRepository interface {
	// Create creates a new zero-balance wallet
	Create(ctx context.Context, wallet *models.Wallet) error

	// GetByID retrieves a wallet by id, nil if not found
	GetByID(ctx context.Context, id uuid.UUID) (*models.Wallet, error)

	// GetByUserID retrieves the wallet owned by a user, nil if not found
	GetByUserID(ctx context.Context, userID uuid.UUID) (*models.Wallet, error)

	// Debit atomically decreases the balance, failing with
	// ErrInsufficientFunds if it would go negative. Returns the new balance.
	Debit(ctx context.Context, walletID uuid.UUID, amount decimal.Decimal) (decimal.Decimal, error)

	// Credit atomically increases the balance. Returns the new balance.
	Credit(ctx context.Context, walletID uuid.UUID, amount decimal.Decimal) (decimal.Decimal, error)
}

// TransactionRepository defines the interface for the append-only ledger
type TransactionRepository interface {
	// Append records a new ledger entry
	Append(ctx context.Context, txn *models.Transaction) error

	// GetByWallet returns the most recent ledger entries for a wallet
	GetByWallet(ctx context.Context, walletID uuid.UUID, limit int) ([]*models.Transaction, error)

	// SumByWallet returns the signed sum of all entries for a wallet
	SumByWallet(ctx context.Context, walletID uuid.UUID) (decimal.Decimal, error)
}

// MarketRepository defines the interface for market data access
type MarketRepository interface {
	// Create creates a new open market
	Create(ctx context.Context, market *models.Market) error

	// GetByID retrieves a market by id, nil if not found
	GetByID(ctx context.Context, id uuid.UUID) (*models.Market, error)

	// GetByIDForUpdate retrieves a market holding its exclusive row lock
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Market, error)

	// GetByIDForShare retrieves a market holding a shared row lock
	GetByIDForShare(ctx context.Context, id uuid.UUID) (*models.Market, error)

	// Update persists status, resolution and resolved_at
	Update(ctx context.Context, market *models.Market) error

	// List returns markets, optionally filtered by status
	List(ctx context.Context, status *models.MarketStatus) ([]*models.Market, error)

	// GetExpiredOpen returns open markets past their resolve-by deadline
	GetExpiredOpen(ctx context.Context, now time.Time) ([]*models.Market, error)

	// GetResolvedWithPendingBets returns resolved markets awaiting settlement
	GetResolvedWithPendingBets(ctx context.Context) ([]*models.Market, error)
}

// BetRepository defines the interface for bet data access
type BetRepository interface {
	// Create creates a new pending bet
	Create(ctx context.Context, bet *models.Bet) error

	// GetByID retrieves a bet by id, nil if not found
	GetByID(ctx context.Context, id uuid.UUID) (*models.Bet, error)

	// GetByMarket returns all bets on a market in placement order
	GetByMarket(ctx context.Context, marketID uuid.UUID) ([]*models.Bet, error)

	// GetByUser returns the most recent bets for a user
	GetByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*models.Bet, error)

	// UpdateSettlement writes a bet's terminal status and payout
	UpdateSettlement(ctx context.Context, bet *models.Bet) error
}

// LedgerService defines the interface for wallet ledger operations
type LedgerService interface {
	// Deposit credits a user's wallet
	Deposit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, reference string) (*models.Transaction, error)

	// Withdraw debits a user's wallet, failing on insufficient funds
	Withdraw(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, reference string) (*models.Transaction, error)

	// BalanceOf returns a user's current wallet balance
	BalanceOf(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error)

	// History returns the most recent ledger entries for a user's wallet
	History(ctx context.Context, userID uuid.UUID, limit int) ([]*models.Transaction, error)

	// Reconcile recomputes the ledger sum and checks it against the stored
	// balance, returning both
	Reconcile(ctx context.Context, userID uuid.UUID) (balance, ledgerSum decimal.Decimal, err error)
}

// BettingService defines the interface for bet placement
type BettingService interface {
	// PlaceBet stakes amount on one outcome of an open market
	PlaceBet(ctx context.Context, userID, marketID uuid.UUID, outcome models.Outcome, amount decimal.Decimal) (*models.Bet, error)

	// GetBet retrieves a bet by id
	GetBet(ctx context.Context, betID uuid.UUID) (*models.Bet, error)

	// BetsForUser returns the most recent bets for a user
	BetsForUser(ctx context.Context, userID uuid.UUID, limit int) ([]*models.Bet, error)

	// BetsForMarket returns all bets on a market
	BetsForMarket(ctx context.Context, marketID uuid.UUID) ([]*models.Bet, error)
}

// SettlementService defines the interface for the settlement engine
type SettlementService interface {
	// Settle distributes a resolved market's pool to winners (or refunds
	// everyone when the winning side is empty) in one atomic pass
	Settle(ctx context.Context, marketID uuid.UUID) (*models.SettlementResult, error)

	// SettleDue settles every resolved market that still has pending bets
	// and returns the number of markets settled
	SettleDue(ctx context.Context) (int, error)
}

// MarketService defines the interface for market lifecycle operations
type MarketService interface {
	// Create creates a new open market
	Create(ctx context.Context, symbol, title, description string, resolveBy time.Time) (*models.Market, error)

	// Get retrieves a market by id
	Get(ctx context.Context, id uuid.UUID) (*models.Market, error)

	// List returns markets, optionally filtered by status
	List(ctx context.Context, status *models.MarketStatus) ([]*models.Market, error)

	// Close transitions an open market to closed
	Close(ctx context.Context, id uuid.UUID) (*models.Market, error)

	// Resolve transitions a closed market to resolved with a fixed outcome
	Resolve(ctx context.Context, id uuid.UUID, outcome models.Outcome) (*models.Market, error)

	// CloseExpired closes open markets past their resolve-by deadline
	CloseExpired(ctx context.Context) (int, error)
}

// UserService defines the interface for account operations
type UserService interface {
	// Register creates a user together with their wallet
	Register(ctx context.Context, email string) (*models.User, error)

	// Get retrieves a user by id
	Get(ctx context.Context, id uuid.UUID) (*models.User, error)

	// GetByEmail retrieves a user by email
	GetByEmail(ctx context.Context, email string) (*models.User, error)
}

// EventPublisher defines the interface for publishing events
type EventPublisher interface {
	Publish(event events.Event)
}

// UnitOfWork defines the interface for transactional repository operations
type UnitOfWork interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) error

	// Commit commits the transaction
	Commit() error

	// Rollback rolls back the transaction
	Rollback() error

	// Repository getters
	UserRepository() UserRepository
	WalletRepository() WalletRepository
	TransactionRepository() TransactionRepository
	MarketRepository() MarketRepository
	BetRepository() BetRepository
	EventBus() EventPublisher
}

// UnitOfWorkFactory defines the interface for creating UnitOfWork instances
type UnitOfWorkFactory interface {
	// Create creates a new UnitOfWork instance
	Create() UnitOfWork
}
