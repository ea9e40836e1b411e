package service

import (
	"context"
	"time"

	"evotrade/internal/models"
	"evotrade/internal/repository"
)

// stubRepo implements the full repository interface; only the settings,
// account, position, price, and snapshot methods do real work here.
type stubRepo struct {
	settings  map[string]models.SystemSetting
	accounts  map[string]models.Account
	positions []models.Position
	prices    map[string]models.MarketPrice
	snapshots []models.EquitySnapshot
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		settings: map[string]models.SystemSetting{},
		accounts: map[string]models.Account{},
		prices:   map[string]models.MarketPrice{},
	}
}

func (s *stubRepo) EnsureAccount(ctx context.Context, item *models.Account) error {
	if _, ok := s.accounts[item.ID]; !ok {
		s.accounts[item.ID] = *item
	}
	return nil
}

func (s *stubRepo) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	if acct, ok := s.accounts[id]; ok {
		cp := acct
		return &cp, nil
	}
	return nil, nil
}

func (s *stubRepo) UpsertMarketPrice(ctx context.Context, item *models.MarketPrice) error {
	s.prices[item.Symbol] = *item
	return nil
}

func (s *stubRepo) GetMarketPrice(ctx context.Context, symbol string) (*models.MarketPrice, error) {
	if p, ok := s.prices[symbol]; ok {
		cp := p
		return &cp, nil
	}
	return nil, nil
}

func (s *stubRepo) ListMarketPrices(ctx context.Context) ([]models.MarketPrice, error) {
	return nil, nil
}

func (s *stubRepo) ListMarketPricesBySymbols(ctx context.Context, symbols []string) ([]models.MarketPrice, error) {
	var out []models.MarketPrice
	for _, sym := range symbols {
		if p, ok := s.prices[sym]; ok {
			out = append(out, p)
		}
	}
	return out, nil
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

func (s *stubRepo) CountFilledOrdersSince(ctx context.Context, since time.Time) (int64, error) {
	return 0, nil
}

func (s *stubRepo) CountLiveFilledOrdersSince(ctx context.Context, since time.Time) (int64, error) {
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
	var out []models.Position
	for _, p := range s.positions {
		if p.AccountID == accountID && p.Status == "open" {
			out = append(out, p)
		}
	}
	return out, nil
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

func (s *stubRepo) GetLossSessionByDay(ctx context.Context, tradingDay string) (*models.LossReactionSession, error) {
	return nil, nil
}

func (s *stubRepo) InsertLossSession(ctx context.Context, item *models.LossReactionSession) error {
	return nil
}

func (s *stubRepo) UpdateLossSessionVersioned(ctx context.Context, item *models.LossReactionSession) error {
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

func (s *stubRepo) CountDecisionsByActionSince(ctx context.Context, action string, since time.Time) (int64, error) {
	return 0, nil
}

func (s *stubRepo) UpsertDroughtState(ctx context.Context, item *models.DroughtState) error {
	return nil
}

func (s *stubRepo) GetDroughtState(ctx context.Context) (*models.DroughtState, error) {
	return nil, nil
}

func (s *stubRepo) InsertEquitySnapshot(ctx context.Context, item *models.EquitySnapshot) error {
	s.snapshots = append(s.snapshots, *item)
	return nil
}

func (s *stubRepo) ListEquitySnapshots(ctx context.Context, params repository.ListEquitySnapshotsParams) ([]models.EquitySnapshot, error) {
	return nil, nil
}

func (s *stubRepo) UpsertSystemSetting(ctx context.Context, item *models.SystemSetting) error {
	s.settings[item.Key] = *item
	return nil
}

func (s *stubRepo) InsertSystemSettingIfAbsent(ctx context.Context, item *models.SystemSetting) error {
	if _, ok := s.settings[item.Key]; !ok {
		s.settings[item.Key] = *item
	}
	return nil
}

func (s *stubRepo) GetSystemSettingByKey(ctx context.Context, key string) (*models.SystemSetting, error) {
	if item, ok := s.settings[key]; ok {
		cp := item
		return &cp, nil
	}
	return nil, nil
}

func (s *stubRepo) ListSystemSettings(ctx context.Context, params repository.ListSystemSettingsParams) ([]models.SystemSetting, error) {
	return nil, nil
}
