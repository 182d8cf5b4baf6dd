package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"stockbet/events"
	"stockbet/models"
)

// MockUserRepository is a mock implementation of UserRepository
type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) Create(ctx context.Context, user *models.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

// MockWalletRepository is a mock implementation of WalletRepository
type MockWalletRepository struct {
	mock.Mock
}

func (m *MockWalletRepository) Create(ctx context.Context, wallet *models.Wallet) error {
	args := m.Called(ctx, wallet)
	return args.Error(0)
}

func (m *MockWalletRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Wallet, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Wallet), args.Error(1)
}

func (m *MockWalletRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Wallet), args.Error(1)
}

func (m *MockWalletRepository) Debit(ctx context.Context, walletID uuid.UUID, amount decimal.Decimal) (decimal.Decimal, error) {
	args := m.Called(ctx, walletID, amount)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *MockWalletRepository) Credit(ctx context.Context, walletID uuid.UUID, amount decimal.Decimal) (decimal.Decimal, error) {
	args := m.Called(ctx, walletID, amount)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

// MockTransactionRepository is a mock implementation of TransactionRepository
type MockTransactionRepository struct {
	mock.Mock
}

func (m *MockTransactionRepository) Append(ctx context.Context, txn *models.Transaction) error {
	args := m.Called(ctx, txn)
	return args.Error(0)
}

func (m *MockTransactionRepository) GetByWallet(ctx context.Context, walletID uuid.UUID, limit int) ([]*models.Transaction, error) {
	args := m.Called(ctx, walletID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Transaction), args.Error(1)
}

func (m *MockTransactionRepository) SumByWallet(ctx context.Context, walletID uuid.UUID) (decimal.Decimal, error) {
	args := m.Called(ctx, walletID)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

// MockMarketRepository is a mock implementation of MarketRepository
type MockMarketRepository struct {
	mock.Mock
}

func (m *MockMarketRepository) Create(ctx context.Context, market *models.Market) error {
	args := m.Called(ctx, market)
	return args.Error(0)
}

func (m *MockMarketRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Market, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Market), args.Error(1)
}

func (m *MockMarketRepository) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Market, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Market), args.Error(1)
}

func (m *MockMarketRepository) GetByIDForShare(ctx context.Context, id uuid.UUID) (*models.Market, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Market), args.Error(1)
}

func (m *MockMarketRepository) Update(ctx context.Context, market *models.Market) error {
	args := m.Called(ctx, market)
	return args.Error(0)
}

func (m *MockMarketRepository) List(ctx context.Context, status *models.MarketStatus) ([]*models.Market, error) {
	args := m.Called(ctx, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Market), args.Error(1)
}

func (m *MockMarketRepository) GetExpiredOpen(ctx context.Context, now time.Time) ([]*models.Market, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Market), args.Error(1)
}

func (m *MockMarketRepository) GetResolvedWithPendingBets(ctx context.Context) ([]*models.Market, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Market), args.Error(1)
}

// MockBetRepository is a mock implementation of BetRepository
type MockBetRepository struct {
	mock.Mock
}

func (m *MockBetRepository) Create(ctx context.Context, bet *models.Bet) error {
	args := m.Called(ctx, bet)
	return args.Error(0)
}

func (m *MockBetRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Bet, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Bet), args.Error(1)
}

func (m *MockBetRepository) GetByMarket(ctx context.Context, marketID uuid.UUID) ([]*models.Bet, error) {
	args := m.Called(ctx, marketID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Bet), args.Error(1)
}

func (m *MockBetRepository) GetByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*models.Bet, error) {
	args := m.Called(ctx, userID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Bet), args.Error(1)
}

func (m *MockBetRepository) UpdateSettlement(ctx context.Context, bet *models.Bet) error {
	args := m.Called(ctx, bet)
	return args.Error(0)
}

// MockEventPublisher is a mock implementation of EventPublisher for testing
type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) Publish(event events.Event) {
	m.Called(event)
}

// NoopEventPublisher swallows events in tests that do not assert on them
type NoopEventPublisher struct{}

func (NoopEventPublisher) Publish(event events.Event) {}

// MockUnitOfWork is a mock implementation of UnitOfWork
type MockUnitOfWork struct {
	mock.Mock

	userRepo        UserRepository
	walletRepo      WalletRepository
	transactionRepo TransactionRepository
	marketRepo      MarketRepository
	betRepo         BetRepository
	eventBus        EventPublisher
}

// SetRepositories wires the mock repositories the unit of work hands out
func (m *MockUnitOfWork) SetRepositories(
	userRepo UserRepository,
	walletRepo WalletRepository,
	transactionRepo TransactionRepository,
	marketRepo MarketRepository,
	betRepo BetRepository,
) {
	m.userRepo = userRepo
	m.walletRepo = walletRepo
	m.transactionRepo = transactionRepo
	m.marketRepo = marketRepo
	m.betRepo = betRepo
	m.eventBus = NoopEventPublisher{}
}

// SetEventBus overrides the default no-op publisher
func (m *MockUnitOfWork) SetEventBus(bus EventPublisher) {
	m.eventBus = bus
}

func (m *MockUnitOfWork) Begin(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockUnitOfWork) Commit() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockUnitOfWork) Rollback() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockUnitOfWork) UserRepository() UserRepository {
	return m.userRepo
}

func (m *MockUnitOfWork) WalletRepository() WalletRepository {
	return m.walletRepo
}

func (m *MockUnitOfWork) TransactionRepository() TransactionRepository {
	return m.transactionRepo
}

func (m *MockUnitOfWork) MarketRepository() MarketRepository {
	return m.marketRepo
}

func (m *MockUnitOfWork) BetRepository() BetRepository {
	return m.betRepo
}

func (m *MockUnitOfWork) EventBus() EventPublisher {
	return m.eventBus
}

// MockUnitOfWorkFactory is a mock implementation of UnitOfWorkFactory
type MockUnitOfWorkFactory struct {
	mock.Mock
}

func (m *MockUnitOfWorkFactory) Create() UnitOfWork {
	args := m.Called()
	return args.Get(0).(UnitOfWork)
}
