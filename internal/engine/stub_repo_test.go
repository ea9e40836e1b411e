package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"evotrade/internal/ledger"
	"evotrade/internal/models"
	"evotrade/internal/repository"
)

// stubRepo implements the full repository interface but only the methods on
// the order pipeline do real work. CommitTrade mirrors the transactional
// semantics in memory (ledger apply, cash guard, conditional arm spend)
// behind one mutex so the concurrency tests are meaningful.
type stubRepo struct {
	mu sync.Mutex

	accounts  map[string]models.Account
	prices    map[string]models.MarketPrice
	positions map[string]models.Position
	orders    []models.Order
	fills     []models.Fill
	sessions  []models.ArmSession

	// positionOverride is what the limiter sees, when set; CommitTrade
	// still applies against the positions map.
	positionOverride *models.Position

	commitCalls int
	failCommits int
	cashErrOnce bool
	nextOrderID uint64
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		accounts:  map[string]models.Account{},
		prices:    map[string]models.MarketPrice{},
		positions: map[string]models.Position{},
	}
}

func posKey(accountID, symbol string) string { return accountID + "|" + symbol }

func (s *stubRepo) EnsureAccount(ctx context.Context, item *models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[item.ID]; !ok {
		s.accounts[item.ID] = *item
	}
	return nil
}

func (s *stubRepo) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if acct, ok := s.accounts[id]; ok {
		cp := acct
		return &cp, nil
	}
	return nil, nil
}

func (s *stubRepo) UpsertMarketPrice(ctx context.Context, item *models.MarketPrice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[item.Symbol] = *item
	return nil
}

func (s *stubRepo) GetMarketPrice(ctx context.Context, symbol string) (*models.MarketPrice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
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
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.MarketPrice
	for _, sym := range symbols {
		if p, ok := s.prices[sym]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *stubRepo) InsertOrder(ctx context.Context, item *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextOrderID++
	item.ID = s.nextOrderID
	item.CreatedAt = time.Now().UTC()
	s.orders = append(s.orders, *item)
	return nil
}

func (s *stubRepo) GetOrderByID(ctx context.Context, id uint64) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.orders {
		if s.orders[i].ID == id {
			cp := s.orders[i]
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *stubRepo) GetOrderByClientOrderID(ctx context.Context, clientOrderID string) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.orders {
		if s.orders[i].ClientOrderID == clientOrderID {
			cp := s.orders[i]
			return &cp, nil
		}
	}
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
	s.mu.Lock()
	defer s.mu.Unlock()

	s.commitCalls++
	if s.failCommits > 0 {
		s.failCommits--
		return nil, errors.New("deadlock detected")
	}
	if s.cashErrOnce {
		s.cashErrOnce = false
		return nil, repository.ErrInsufficientCash
	}

	acct, ok := s.accounts[params.AccountID]
	if !ok {
		return nil, errors.New("account missing")
	}
	pos := s.positions[posKey(params.AccountID, params.Symbol)]

	state := ledger.State{
		Quantity:      pos.Quantity,
		AvgEntryPrice: pos.AvgEntryPrice,
		CostBasis:     pos.CostBasis,
		RealizedPnL:   pos.RealizedPnL,
	}
	next, delta, err := ledger.Apply(state, params.Side, params.Quantity, params.FillPrice, params.Fee)
	if err != nil {
		return nil, err
	}

	cashAfter := acct.CurrentCash.Add(delta.CashDelta)
	if cashAfter.LessThan(decimal.Zero) {
		return nil, repository.ErrInsufficientCash
	}

	if params.ArmSessionID != "" {
		spent := false
		for i := range s.sessions {
			sess := &s.sessions[i]
			if sess.ID == params.ArmSessionID && sess.DisarmedAt == nil &&
				sess.ExpiresAt.After(params.FilledAt) && sess.OrdersExecuted < sess.MaxLiveOrders {
				sess.OrdersExecuted++
				spent = true
				break
			}
		}
		if !spent {
			return nil, repository.ErrArmSessionUnavailable
		}
	}

	order := params.Order
	s.nextOrderID++
	order.ID = s.nextOrderID
	s.orders = append(s.orders, order)

	fill := models.Fill{
		OrderID:     order.ID,
		AccountID:   params.AccountID,
		StrategyID:  order.StrategyID,
		Symbol:      params.Symbol,
		Side:        params.Side,
		Mode:        order.Mode,
		Price:       params.FillPrice,
		Quantity:    params.Quantity,
		Fee:         params.Fee,
		RealizedPnL: delta.RealizedDelta,
		Learnable:   order.Learnable,
		FilledAt:    params.FilledAt,
	}
	s.fills = append(s.fills, fill)

	pos.AccountID = params.AccountID
	pos.Symbol = params.Symbol
	pos.Quantity = next.Quantity
	pos.AvgEntryPrice = next.AvgEntryPrice
	pos.CostBasis = next.CostBasis
	pos.RealizedPnL = next.RealizedPnL
	if pos.OpenedAt.IsZero() {
		pos.OpenedAt = params.FilledAt
		pos.Status = "open"
	}
	if delta.Closed {
		pos.Status = "closed"
	}
	s.positions[posKey(params.AccountID, params.Symbol)] = pos

	acct.CurrentCash = cashAfter
	acct.Version++
	s.accounts[params.AccountID] = acct

	return &repository.CommitTradeResult{
		Order:         order,
		Fill:          fill,
		Position:      pos,
		CashAfter:     cashAfter,
		RealizedDelta: delta.RealizedDelta,
	}, nil
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
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.positionOverride != nil {
		return []models.Position{*s.positionOverride}, nil
	}
	var out []models.Position
	for _, pos := range s.positions {
		if pos.AccountID == accountID && pos.Status == "open" && pos.Quantity.IsPositive() {
			out = append(out, pos)
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

func (s *stubRepo) InsertArmSession(ctx context.Context, item *models.ArmSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = append(s.sessions, *item)
	return nil
}

func (s *stubRepo) GetActiveArmSession(ctx context.Context, now time.Time) (*models.ArmSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.sessions) - 1; i >= 0; i-- {
		sess := s.sessions[i]
		if sess.DisarmedAt == nil && sess.ExpiresAt.After(now) && sess.OrdersExecuted < sess.MaxLiveOrders {
			cp := sess
			return &cp, nil
		}
	}
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
