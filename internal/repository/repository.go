package repository

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"evotrade/internal/models"
)

// Sentinel errors surfaced by the transactional methods. Callers branch
// with errors.Is; the gorm layer wraps driver errors around them.
var (
	// ErrArmSessionUnavailable means the conditional arm-session spend
	// matched no row: the session expired, was disarmed, or its order
	// budget is already spent.
	ErrArmSessionUnavailable = errors.New("arm session expired or spent")

	// ErrVersionConflict means a version-checked update lost a race and
	// should be retried from a fresh read.
	ErrVersionConflict = errors.New("version conflict")

	// ErrInsufficientCash is raised inside the commit transaction when the
	// locked account balance no longer covers the fill.
	ErrInsufficientCash = errors.New("insufficient cash")
)

// CommitTradeParams carries one approved, simulated fill into the atomic
// commit: insert order and fill, move the position and the account cash,
// and (live mode) spend an arm-session slot, all in one transaction.
type CommitTradeParams struct {
	AccountID string
	Symbol    string
	Side      string
	Quantity  decimal.Decimal
	FillPrice decimal.Decimal
	Fee       decimal.Decimal
	FilledAt  time.Time

	// Order is inserted as-is; fill fields and status must be prefilled.
	Order models.Order

	// ArmSessionID, when set, requires one live-order slot to be spent or
	// the whole transaction fails with ErrArmSessionUnavailable.
	ArmSessionID string
}

type CommitTradeResult struct {
	Order         models.Order
	Fill          models.Fill
	Position      models.Position
	CashAfter     decimal.Decimal
	RealizedDelta decimal.Decimal
}

type Repository interface {
	// Accounts
	EnsureAccount(ctx context.Context, item *models.Account) error
	GetAccount(ctx context.Context, id string) (*models.Account, error)

	// Market prices
	UpsertMarketPrice(ctx context.Context, item *models.MarketPrice) error
	GetMarketPrice(ctx context.Context, symbol string) (*models.MarketPrice, error)
	ListMarketPrices(ctx context.Context) ([]models.MarketPrice, error)
	ListMarketPricesBySymbols(ctx context.Context, symbols []string) ([]models.MarketPrice, error)

	// Orders
	InsertOrder(ctx context.Context, item *models.Order) error
	GetOrderByID(ctx context.Context, id uint64) (*models.Order, error)
	GetOrderByClientOrderID(ctx context.Context, clientOrderID string) (*models.Order, error)
	ListOrders(ctx context.Context, params ListOrdersParams) ([]models.Order, error)
	CountOrders(ctx context.Context, params ListOrdersParams) (int64, error)
	CountFilledOrdersSince(ctx context.Context, since time.Time) (int64, error)
	CountLiveFilledOrdersSince(ctx context.Context, since time.Time) (int64, error)

	// Trade commit (atomic)
	CommitTrade(ctx context.Context, params CommitTradeParams) (*CommitTradeResult, error)

	// Fills
	ListFills(ctx context.Context, params ListFillsParams) ([]models.Fill, error)
	CountFills(ctx context.Context, params ListFillsParams) (int64, error)
	DistinctFillStrategyIDs(ctx context.Context, since *time.Time) ([]string, error)

	// Positions
	ListPositions(ctx context.Context, params ListPositionsParams) ([]models.Position, error)
	CountPositions(ctx context.Context, params ListPositionsParams) (int64, error)
	ListOpenPositions(ctx context.Context, accountID string) ([]models.Position, error)
	PositionsSummary(ctx context.Context, accountID string) (PositionsSummary, error)

	// Performance records
	UpsertPerformanceRecord(ctx context.Context, item *models.PerformanceRecord) error
	ListPerformanceRecords(ctx context.Context, params ListPerformanceParams) ([]models.PerformanceRecord, error)
	CountPerformanceRecords(ctx context.Context, params ListPerformanceParams) (int64, error)
	LatestPerformanceRecords(ctx context.Context) ([]models.PerformanceRecord, error)

	// Strategies
	UpsertStrategy(ctx context.Context, item *models.Strategy) error
	GetStrategyByID(ctx context.Context, id string) (*models.Strategy, error)
	ListStrategies(ctx context.Context) ([]models.Strategy, error)
	UpdateStrategyFitness(ctx context.Context, id string, score float64, evaluatedAt time.Time) error

	// Loss-reaction sessions
	GetLossSessionByDay(ctx context.Context, tradingDay string) (*models.LossReactionSession, error)
	InsertLossSession(ctx context.Context, item *models.LossReactionSession) error
	UpdateLossSessionVersioned(ctx context.Context, item *models.LossReactionSession) error

	// Arm sessions
	InsertArmSession(ctx context.Context, item *models.ArmSession) error
	GetActiveArmSession(ctx context.Context, now time.Time) (*models.ArmSession, error)
	GetLatestArmSession(ctx context.Context) (*models.ArmSession, error)
	DisarmArmSession(ctx context.Context, id string, at time.Time) error
	SweepExpiredArmSessions(ctx context.Context, now time.Time) (int64, error)

	// Decisions
	InsertDecision(ctx context.Context, item *models.Decision) error
	ListDecisions(ctx context.Context, params ListDecisionsParams) ([]models.Decision, error)
	CountDecisions(ctx context.Context, params ListDecisionsParams) (int64, error)
	CountDecisionsByActionSince(ctx context.Context, action string, since time.Time) (int64, error)

	// Drought state (singleton row)
	UpsertDroughtState(ctx context.Context, item *models.DroughtState) error
	GetDroughtState(ctx context.Context) (*models.DroughtState, error)

	// Equity snapshots
	InsertEquitySnapshot(ctx context.Context, item *models.EquitySnapshot) error
	ListEquitySnapshots(ctx context.Context, params ListEquitySnapshotsParams) ([]models.EquitySnapshot, error)

	// System settings
	UpsertSystemSetting(ctx context.Context, item *models.SystemSetting) error
	InsertSystemSettingIfAbsent(ctx context.Context, item *models.SystemSetting) error
	GetSystemSettingByKey(ctx context.Context, key string) (*models.SystemSetting, error)
	ListSystemSettings(ctx context.Context, params ListSystemSettingsParams) ([]models.SystemSetting, error)
}

type ListOrdersParams struct {
	Limit      int
	Offset     int
	AccountID  *string
	Status     *string
	StrategyID *string
	Symbol     *string
	Mode       *string
	Since      *time.Time
	OrderBy    string
	Asc        *bool
}

type ListFillsParams struct {
	Limit      int
	Offset     int
	AccountID  *string
	StrategyID *string
	Symbol     *string
	Learnable  *bool
	Since      *time.Time
	Until      *time.Time
	OrderBy    string
	Asc        *bool
}

type ListPositionsParams struct {
	Limit     int
	Offset    int
	AccountID *string
	Status    *string
	Symbol    *string
	OrderBy   string
	Asc       *bool
}

type ListPerformanceParams struct {
	Limit      int
	Offset     int
	StrategyID *string
	Period     *string
	OrderBy    string
	Asc        *bool
}

type ListDecisionsParams struct {
	Limit      int
	Offset     int
	StrategyID *string
	Symbol     *string
	Action     *string
	Since      *time.Time
	OrderBy    string
	Asc        *bool
}

type ListEquitySnapshotsParams struct {
	Limit     int
	Offset    int
	AccountID *string
	Since     *time.Time
	Until     *time.Time
}

type ListSystemSettingsParams struct {
	Limit   int
	Offset  int
	Prefix  *string
	OrderBy string
	Asc     *bool
}

type PositionsSummary struct {
	TotalOpen      int64
	TotalCostBasis float64
	TotalMarketVal float64
	UnrealizedPnL  float64
	RealizedPnL    float64
}
