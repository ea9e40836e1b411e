package risk

import (
	"context"
	"sync"
	"time"

	"gorm.io/gorm"

	"evotrade/internal/models"
	"evotrade/internal/repository"
)

// stubRepo is a test-only in-memory implementation of repository.Repository.
// It implements the full interface but only the session rows, window counters
// and drought state carry behavior the risk tests exercise.
type stubRepo struct {
	mu sync.Mutex

	sessionsByDay map[string]models.LossReactionSession
	nextSessionID uint64
	failUpdates   int

	filledSince     int64
	liveFilledSince int64
	holdsSince      int64

	droughtState *models.DroughtState
}

func newStubRepo() *stubRepo {
	return &stubRepo{sessionsByDay: map[string]models.LossReactionSession{}}
}

func (s *stubRepo) GetLossSessionByDay(ctx context.Context, tradingDay string) (*models.LossReactionSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessionsByDay[tradingDay]
	if !ok {
		return nil, nil
	}
	out := sess
	return &out, nil
}

func (s *stubRepo) InsertLossSession(ctx context.Context, item *models.LossReactionSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessionsByDay[item.TradingDay]; ok {
		return gorm.ErrDuplicatedKey
	}
	s.nextSessionID++
	item.ID = s.nextSessionID
	s.sessionsByDay[item.TradingDay] = *item
	return nil
}

func (s *stubRepo) UpdateLossSessionVersioned(ctx context.Context, item *models.LossReactionSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failUpdates > 0 {
		s.failUpdates--
		return repository.ErrVersionConflict
	}
	stored, ok := s.sessionsByDay[item.TradingDay]
	if !ok || stored.Version != item.Version {
		return repository.ErrVersionConflict
	}
	item.Version++
	s.sessionsByDay[item.TradingDay] = *item
	return nil
}

func (s *stubRepo) CountFilledOrdersSince(ctx context.Context, since time.Time) (int64, error) {
	return s.filledSince, nil
}

func (s *stubRepo) CountLiveFilledOrdersSince(ctx context.Context, since time.Time) (int64, error) {
	return s.liveFilledSince, nil
}

func (s *stubRepo) CountDecisionsByActionSince(ctx context.Context, action string, since time.Time) (int64, error) {
	if action == "hold" {
		return s.holdsSince, nil
	}
	return 0, nil
}

func (s *stubRepo) UpsertDroughtState(ctx context.Context, item *models.DroughtState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := *item
	s.droughtState = &out
	return nil
}

func (s *stubRepo) GetDroughtState(ctx context.Context) (*models.DroughtState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.droughtState == nil {
		return nil, nil
	}
	out := *s.droughtState
	return &out, nil
}

func (s *stubRepo) EnsureAccount(ctx context.Context, item *models.Account) error { return nil }
func (s *stubRepo) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	return nil, nil
}
func (s *stubRepo) UpsertMarketPrice(ctx context.Context, item *models.MarketPrice) error { return nil }
func (s *stubRepo) GetMarketPrice(ctx context.Context, symbol string) (*models.MarketPrice, error) {
	return nil, nil
}
func (s *stubRepo) ListMarketPrices(ctx context.Context) ([]models.MarketPrice, error) {
	return nil, nil
}
func (s *stubRepo) ListMarketPricesBySymbols(ctx context.Context, symbols []string) ([]models.MarketPrice, error) {
	return nil, nil
}
func (s *stubRepo) InsertOrder(ctx context.Context, item *models.Order) error { return nil }
func (s *stubRepo) GetOrderByID(ctx context.Context, id uint64) (*models.Order, error) {
	return nil, nil
}
func (s *stubRepo) GetOrderByClientOrderID(ctx context.Context, clientOrderID string) (*models.Order, error) {
	return nil, nil
}
func (s *stubRepo) ListOrders(ctx context.Context, params repository.ListOrdersParams) ([]models.Order, error) {
	return nil, nil
}
func (s *stubRepo) CountOrders(ctx context.Context, params repository.ListOrdersParams) (int64, error) {
	return 0, nil
}
func (s *stubRepo) CommitTrade(ctx context.Context, params repository.CommitTradeParams) (*repository.CommitTradeResult, error) {
	return nil, nil
}
func (s *stubRepo) ListFills(ctx context.Context, params repository.ListFillsParams) ([]models.Fill, error) {
	return nil, nil
}
func (s *stubRepo) CountFills(ctx context.Context, params repository.ListFillsParams) (int64, error) {
	return 0, nil
}
func (s *stubRepo) DistinctFillStrategyIDs(ctx context.Context, since *time.Time) ([]string, error) {
	return nil, nil
}
func (s *stubRepo) ListPositions(ctx context.Context, params repository.ListPositionsParams) ([]models.Position, error) {
	return nil, nil
}
func (s *stubRepo) CountPositions(ctx context.Context, params repository.ListPositionsParams) (int64, error) {
	return 0, nil
}
func (s *stubRepo) ListOpenPositions(ctx context.Context, accountID string) ([]models.Position, error) {
	return nil, nil
}
func (s *stubRepo) PositionsSummary(ctx context.Context, accountID string) (repository.PositionsSummary, error) {
	return repository.PositionsSummary{}, nil
}
func (s *stubRepo) UpsertPerformanceRecord(ctx context.Context, item *models.PerformanceRecord) error {
	return nil
}
func (s *stubRepo) ListPerformanceRecords(ctx context.Context, params repository.ListPerformanceParams) ([]models.PerformanceRecord, error) {
	return nil, nil
}
func (s *stubRepo) CountPerformanceRecords(ctx context.Context, params repository.ListPerformanceParams) (int64, error) {
	return 0, nil
}
func (s *stubRepo) LatestPerformanceRecords(ctx context.Context) ([]models.PerformanceRecord, error) {
	return nil, nil
}
func (s *stubRepo) UpsertStrategy(ctx context.Context, item *models.Strategy) error { return nil }
func (s *stubRepo) GetStrategyByID(ctx context.Context, id string) (*models.Strategy, error) {
	return nil, nil
}
func (s *stubRepo) ListStrategies(ctx context.Context) ([]models.Strategy, error) { return nil, nil }
func (s *stubRepo) UpdateStrategyFitness(ctx context.Context, id string, score float64, evaluatedAt time.Time) error {
	return nil
}
func (s *stubRepo) InsertArmSession(ctx context.Context, item *models.ArmSession) error { return nil }
func (s *stubRepo) GetActiveArmSession(ctx context.Context, now time.Time) (*models.ArmSession, error) {
	return nil, nil
}
func (s *stubRepo) GetLatestArmSession(ctx context.Context) (*models.ArmSession, error) {
	return nil, nil
}
func (s *stubRepo) DisarmArmSession(ctx context.Context, id string, at time.Time) error { return nil }
func (s *stubRepo) SweepExpiredArmSessions(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}
func (s *stubRepo) InsertDecision(ctx context.Context, item *models.Decision) error { return nil }
func (s *stubRepo) ListDecisions(ctx context.Context, params repository.ListDecisionsParams) ([]models.Decision, error) {
	return nil, nil
}
func (s *stubRepo) CountDecisions(ctx context.Context, params repository.ListDecisionsParams) (int64, error) {
	return 0, nil
}
func (s *stubRepo) InsertEquitySnapshot(ctx context.Context, item *models.EquitySnapshot) error {
	return nil
}
func (s *stubRepo) ListEquitySnapshots(ctx context.Context, params repository.ListEquitySnapshotsParams) ([]models.EquitySnapshot, error) {
	return nil, nil
}
func (s *stubRepo) UpsertSystemSetting(ctx context.Context, item *models.SystemSetting) error {
	return nil
}
func (s *stubRepo) InsertSystemSettingIfAbsent(ctx context.Context, item *models.SystemSetting) error {
	return nil
}
func (s *stubRepo) GetSystemSettingByKey(ctx context.Context, key string) (*models.SystemSetting, error) {
	return nil, nil
}
func (s *stubRepo) ListSystemSettings(ctx context.Context, params repository.ListSystemSettingsParams) ([]models.SystemSetting, error) {
	return nil, nil
}
