package gormrepository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"evotrade/internal/ledger"
	"evotrade/internal/models"
	"evotrade/internal/repository"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// --- Accounts ----------------------------------------------------------------

func (s *Store) EnsureAccount(ctx context.Context, item *models.Account) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	item.ID = strings.TrimSpace(item.ID)
	if item.ID == "" {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoNothing: true,
	}).Create(item).Error
}

func (s *Store) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, nil
	}
	var item models.Account
	err := s.db.WithContext(ctx).Model(&models.Account{}).Where("id = ?", id).First(&item).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// --- Market prices -----------------------------------------------------------

func (s *Store) UpsertMarketPrice(ctx context.Context, item *models.MarketPrice) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	item.Symbol = strings.TrimSpace(item.Symbol)
	if item.Symbol == "" {
		return nil
	}
	if item.UpdatedAt.IsZero() {
		item.UpdatedAt = time.Now().UTC()
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "symbol"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"price",
			"source",
			"trade_ts",
			"updated_at",
		}),
	}).Create(item).Error
}

func (s *Store) GetMarketPrice(ctx context.Context, symbol string) (*models.MarketPrice, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		return nil, nil
	}
	var item models.MarketPrice
	err := s.db.WithContext(ctx).Model(&models.MarketPrice{}).Where("symbol = ?", symbol).First(&item).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListMarketPrices(ctx context.Context) ([]models.MarketPrice, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.MarketPrice
	if err := s.db.WithContext(ctx).
		Model(&models.MarketPrice{}).
		Order("symbol asc").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListMarketPricesBySymbols(ctx context.Context, symbols []string) ([]models.MarketPrice, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	symbols = cleanStrings(symbols)
	if len(symbols) == 0 {
		return nil, nil
	}
	var items []models.MarketPrice
	if err := s.db.WithContext(ctx).
		Model(&models.MarketPrice{}).
		Where("symbol IN ?", symbols).
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// --- Orders ------------------------------------------------------------------

func (s *Store) InsertOrder(ctx context.Context, item *models.Order) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) GetOrderByID(ctx context.Context, id uint64) (*models.Order, error) {
	if s == nil || s.db == nil || id == 0 {
		return nil, nil
	}
	var item models.Order
	err := s.db.WithContext(ctx).Model(&models.Order{}).Where("id = ?", id).First(&item).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) GetOrderByClientOrderID(ctx context.Context, clientOrderID string) (*models.Order, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	clientOrderID = strings.TrimSpace(clientOrderID)
	if clientOrderID == "" {
		return nil, nil
	}
	var item models.Order
	err := s.db.WithContext(ctx).Model(&models.Order{}).Where("client_order_id = ?", clientOrderID).First(&item).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func ordersQuery(db *gorm.DB, params repository.ListOrdersParams) *gorm.DB {
	query := db.Model(&models.Order{})
	if params.AccountID != nil && strings.TrimSpace(*params.AccountID) != "" {
		query = query.Where("account_id = ?", strings.TrimSpace(*params.AccountID))
	}
	if params.Status != nil && strings.TrimSpace(*params.Status) != "" {
		query = query.Where("status = ?", strings.TrimSpace(*params.Status))
	}
	if params.StrategyID != nil && strings.TrimSpace(*params.StrategyID) != "" {
		query = query.Where("strategy_id = ?", strings.TrimSpace(*params.StrategyID))
	}
	if params.Symbol != nil && strings.TrimSpace(*params.Symbol) != "" {
		query = query.Where("symbol = ?", strings.TrimSpace(*params.Symbol))
	}
	if params.Mode != nil && strings.TrimSpace(*params.Mode) != "" {
		query = query.Where("mode = ?", strings.TrimSpace(*params.Mode))
	}
	if params.Since != nil && !params.Since.IsZero() {
		query = query.Where("created_at >= ?", params.Since.UTC())
	}
	return query
}

func (s *Store) ListOrders(ctx context.Context, params repository.ListOrdersParams) ([]models.Order, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := ordersQuery(s.db.WithContext(ctx), params)
	query = applyOrder(query, params.OrderBy, params.Asc, "created_at")
	limit := normalizeLimit(params.Limit, 100)
	offset := normalizeOffset(params.Offset)
	var items []models.Order
	if err := query.Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountOrders(ctx context.Context, params repository.ListOrdersParams) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var total int64
	if err := ordersQuery(s.db.WithContext(ctx), params).Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Store) CountFilledOrdersSince(ctx context.Context, since time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var total int64
	err := s.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("status = ?", "filled").
		Where("filled_at >= ?", since.UTC()).
		Count(&total).Error
	if err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Store) CountLiveFilledOrdersSince(ctx context.Context, since time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var total int64
	err := s.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("mode = ?", "live").
		Where("status = ?", "filled").
		Where("filled_at >= ?", since.UTC()).
		Count(&total).Error
	if err != nil {
		return 0, err
	}
	return total, nil
}

// --- Trade commit ------------------------------------------------------------

// CommitTrade books one simulated fill atomically. The account row lock
// serializes all commits for an account, so position math runs against
// current rows; arm-session spending is a conditional update whose
// RowsAffected decides whether a live order may proceed.
func (s *Store) CommitTrade(ctx context.Context, params repository.CommitTradeParams) (*repository.CommitTradeResult, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("repository not initialized")
	}
	var result repository.CommitTradeResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var acct models.Account
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", params.AccountID).
			First(&acct).Error; err != nil {
			return err
		}

		var pos models.Position
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("account_id = ? AND symbol = ?", params.AccountID, params.Symbol).
			First(&pos).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			pos = models.Position{
				AccountID:     params.AccountID,
				Symbol:        params.Symbol,
				Quantity:      decimal.Zero,
				AvgEntryPrice: decimal.Zero,
				CostBasis:     decimal.Zero,
				RealizedPnL:   decimal.Zero,
				Status:        "open",
				OpenedAt:      params.FilledAt,
			}
		} else if err != nil {
			return err
		}

		state := ledger.State{
			Quantity:      pos.Quantity,
			AvgEntryPrice: pos.AvgEntryPrice,
			CostBasis:     pos.CostBasis,
			RealizedPnL:   pos.RealizedPnL,
		}
		next, delta, err := ledger.Apply(state, params.Side, params.Quantity, params.FillPrice, params.Fee)
		if err != nil {
			return err
		}

		cashAfter := acct.CurrentCash.Add(delta.CashDelta)
		if cashAfter.LessThan(decimal.Zero) {
			return repository.ErrInsufficientCash
		}

		if params.ArmSessionID != "" {
			res := tx.Model(&models.ArmSession{}).
				Where("id = ?", params.ArmSessionID).
				Where("disarmed_at IS NULL").
				Where("expires_at > ?", params.FilledAt).
				Where("orders_executed < max_live_orders").
				Update("orders_executed", gorm.Expr("orders_executed + 1"))
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected != 1 {
				return repository.ErrArmSessionUnavailable
			}
		}

		order := params.Order
		if err := tx.Create(&order).Error; err != nil {
			return err
		}

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
		if err := tx.Create(&fill).Error; err != nil {
			return err
		}

		pos.Quantity = next.Quantity
		pos.AvgEntryPrice = next.AvgEntryPrice
		pos.CostBasis = next.CostBasis
		pos.RealizedPnL = next.RealizedPnL
		if next.Quantity.IsZero() {
			pos.Status = "closed"
			closedAt := params.FilledAt
			pos.ClosedAt = &closedAt
		} else {
			pos.Status = "open"
			pos.ClosedAt = nil
		}
		pos.UpdatedAt = time.Now().UTC()
		if err := tx.Save(&pos).Error; err != nil {
			return err
		}

		if err := tx.Model(&models.Account{}).
			Where("id = ?", acct.ID).
			Updates(map[string]any{
				"current_cash": cashAfter,
				"version":      gorm.Expr("version + 1"),
				"updated_at":   time.Now().UTC(),
			}).Error; err != nil {
			return err
		}

		result = repository.CommitTradeResult{
			Order:         order,
			Fill:          fill,
			Position:      pos,
			CashAfter:     cashAfter,
			RealizedDelta: delta.RealizedDelta,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// --- Fills -------------------------------------------------------------------

func fillsQuery(db *gorm.DB, params repository.ListFillsParams) *gorm.DB {
	query := db.Model(&models.Fill{})
	if params.AccountID != nil && strings.TrimSpace(*params.AccountID) != "" {
		query = query.Where("account_id = ?", strings.TrimSpace(*params.AccountID))
	}
	if params.StrategyID != nil && strings.TrimSpace(*params.StrategyID) != "" {
		query = query.Where("strategy_id = ?", strings.TrimSpace(*params.StrategyID))
	}
	if params.Symbol != nil && strings.TrimSpace(*params.Symbol) != "" {
		query = query.Where("symbol = ?", strings.TrimSpace(*params.Symbol))
	}
	if params.Learnable != nil {
		query = query.Where("learnable = ?", *params.Learnable)
	}
	if params.Since != nil && !params.Since.IsZero() {
		query = query.Where("filled_at >= ?", params.Since.UTC())
	}
	if params.Until != nil && !params.Until.IsZero() {
		query = query.Where("filled_at < ?", params.Until.UTC())
	}
	return query
}

func (s *Store) ListFills(ctx context.Context, params repository.ListFillsParams) ([]models.Fill, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := fillsQuery(s.db.WithContext(ctx), params)
	query = applyOrder(query, params.OrderBy, params.Asc, "filled_at")
	limit := normalizeLimit(params.Limit, 200)
	offset := normalizeOffset(params.Offset)
	var items []models.Fill
	if err := query.Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountFills(ctx context.Context, params repository.ListFillsParams) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var total int64
	if err := fillsQuery(s.db.WithContext(ctx), params).Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Store) DistinctFillStrategyIDs(ctx context.Context, since *time.Time) ([]string, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).
		Model(&models.Fill{}).
		Where("strategy_id <> ''")
	if since != nil && !since.IsZero() {
		query = query.Where("filled_at >= ?", since.UTC())
	}
	var ids []string
	if err := query.Distinct("strategy_id").Order("strategy_id asc").Pluck("strategy_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// --- Positions ---------------------------------------------------------------

func positionsQuery(db *gorm.DB, params repository.ListPositionsParams) *gorm.DB {
	query := db.Model(&models.Position{})
	if params.AccountID != nil && strings.TrimSpace(*params.AccountID) != "" {
		query = query.Where("account_id = ?", strings.TrimSpace(*params.AccountID))
	}
	if params.Status != nil && strings.TrimSpace(*params.Status) != "" {
		query = query.Where("status = ?", strings.TrimSpace(*params.Status))
	}
	if params.Symbol != nil && strings.TrimSpace(*params.Symbol) != "" {
		query = query.Where("symbol = ?", strings.TrimSpace(*params.Symbol))
	}
	return query
}

func (s *Store) ListPositions(ctx context.Context, params repository.ListPositionsParams) ([]models.Position, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := positionsQuery(s.db.WithContext(ctx), params)
	query = applyOrder(query, params.OrderBy, params.Asc, "updated_at")
	limit := normalizeLimit(params.Limit, 200)
	offset := normalizeOffset(params.Offset)
	var items []models.Position
	if err := query.Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountPositions(ctx context.Context, params repository.ListPositionsParams) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var total int64
	if err := positionsQuery(s.db.WithContext(ctx), params).Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Store) ListOpenPositions(ctx context.Context, accountID string) ([]models.Position, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.Position{}).Where("status = ?", "open")
	if strings.TrimSpace(accountID) != "" {
		query = query.Where("account_id = ?", strings.TrimSpace(accountID))
	}
	var items []models.Position
	if err := query.Order("symbol asc").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) PositionsSummary(ctx context.Context, accountID string) (repository.PositionsSummary, error) {
	if s == nil || s.db == nil {
		return repository.PositionsSummary{}, nil
	}
	var row struct {
		TotalOpen      int64
		TotalCostBasis float64
		TotalMarketVal float64
		UnrealizedPnL  float64
		RealizedPnL    float64
	}
	query := s.db.WithContext(ctx).
		Table("positions p").
		Select(`
			COALESCE(SUM(CASE WHEN p.status = 'open' THEN 1 ELSE 0 END),0) AS total_open,
			COALESCE(SUM(CASE WHEN p.status = 'open' THEN p.cost_basis ELSE 0 END),0) AS total_cost_basis,
			COALESCE(SUM(CASE WHEN p.status = 'open' THEN (p.quantity * COALESCE(mp.price, 0)) ELSE 0 END),0) AS total_market_val,
			COALESCE(SUM(CASE WHEN p.status = 'open' THEN (p.quantity * COALESCE(mp.price, 0)) - p.cost_basis ELSE 0 END),0) AS unrealized_pnl,
			COALESCE(SUM(p.realized_pnl),0) AS realized_pnl
		`).
		Joins("LEFT JOIN market_prices mp ON mp.symbol = p.symbol")
	if strings.TrimSpace(accountID) != "" {
		query = query.Where("p.account_id = ?", strings.TrimSpace(accountID))
	}
	if err := query.Scan(&row).Error; err != nil {
		return repository.PositionsSummary{}, err
	}
	return repository.PositionsSummary{
		TotalOpen:      row.TotalOpen,
		TotalCostBasis: row.TotalCostBasis,
		TotalMarketVal: row.TotalMarketVal,
		UnrealizedPnL:  row.UnrealizedPnL,
		RealizedPnL:    row.RealizedPnL,
	}, nil
}

// --- Performance records -----------------------------------------------------

func (s *Store) UpsertPerformanceRecord(ctx context.Context, item *models.PerformanceRecord) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	item.StrategyID = strings.TrimSpace(item.StrategyID)
	item.Period = strings.TrimSpace(item.Period)
	if item.StrategyID == "" || item.Period == "" {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "strategy_id"}, {Name: "period"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"fitness_score",
			"norm_pnl",
			"sharpe",
			"norm_sharpe",
			"max_drawdown",
			"profitable_days",
			"overtrading_penalty",
			"realized_pnl",
			"total_fees",
			"trade_count",
			"components",
			"evaluated_at",
			"updated_at",
		}),
	}).Create(item).Error
}

func performanceQuery(db *gorm.DB, params repository.ListPerformanceParams) *gorm.DB {
	query := db.Model(&models.PerformanceRecord{})
	if params.StrategyID != nil && strings.TrimSpace(*params.StrategyID) != "" {
		query = query.Where("strategy_id = ?", strings.TrimSpace(*params.StrategyID))
	}
	if params.Period != nil && strings.TrimSpace(*params.Period) != "" {
		query = query.Where("period = ?", strings.TrimSpace(*params.Period))
	}
	return query
}

func (s *Store) ListPerformanceRecords(ctx context.Context, params repository.ListPerformanceParams) ([]models.PerformanceRecord, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := performanceQuery(s.db.WithContext(ctx), params)
	query = applyOrder(query, params.OrderBy, params.Asc, "evaluated_at")
	limit := normalizeLimit(params.Limit, 100)
	offset := normalizeOffset(params.Offset)
	var items []models.PerformanceRecord
	if err := query.Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountPerformanceRecords(ctx context.Context, params repository.ListPerformanceParams) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var total int64
	if err := performanceQuery(s.db.WithContext(ctx), params).Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Store) LatestPerformanceRecords(ctx context.Context) ([]models.PerformanceRecord, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.PerformanceRecord
	err := s.db.WithContext(ctx).Raw(`
		SELECT pr.* FROM performance_records pr
		JOIN (
			SELECT strategy_id, MAX(period) AS period
			FROM performance_records
			GROUP BY strategy_id
		) latest ON latest.strategy_id = pr.strategy_id AND latest.period = pr.period
		ORDER BY pr.fitness_score DESC
	`).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// --- Strategies ----------------------------------------------------------------

func (s *Store) UpsertStrategy(ctx context.Context, item *models.Strategy) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	item.ID = strings.TrimSpace(item.ID)
	if item.ID == "" {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"cohort_id",
			"name",
			"status",
			"params",
			"updated_at",
		}),
	}).Create(item).Error
}

func (s *Store) GetStrategyByID(ctx context.Context, id string) (*models.Strategy, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, nil
	}
	var item models.Strategy
	err := s.db.WithContext(ctx).Model(&models.Strategy{}).Where("id = ?", id).First(&item).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListStrategies(ctx context.Context) ([]models.Strategy, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.Strategy
	if err := s.db.WithContext(ctx).
		Model(&models.Strategy{}).
		Order("created_at asc").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) UpdateStrategyFitness(ctx context.Context, id string, score float64, evaluatedAt time.Time) error {
	if s == nil || s.db == nil {
		return nil
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil
	}
	return s.db.WithContext(ctx).
		Model(&models.Strategy{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"latest_fitness":    score,
			"last_evaluated_at": evaluatedAt.UTC(),
			"updated_at":        time.Now().UTC(),
		}).Error
}

// --- Loss-reaction sessions ----------------------------------------------------

func (s *Store) GetLossSessionByDay(ctx context.Context, tradingDay string) (*models.LossReactionSession, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	tradingDay = strings.TrimSpace(tradingDay)
	if tradingDay == "" {
		return nil, nil
	}
	var item models.LossReactionSession
	err := s.db.WithContext(ctx).
		Model(&models.LossReactionSession{}).
		Where("trading_day = ?", tradingDay).
		First(&item).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) InsertLossSession(ctx context.Context, item *models.LossReactionSession) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

// UpdateLossSessionVersioned writes the session only if nobody else has
// since the caller's read. On success the item's Version is advanced to
// match the stored row.
func (s *Store) UpdateLossSessionVersioned(ctx context.Context, item *models.LossReactionSession) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	res := s.db.WithContext(ctx).
		Model(&models.LossReactionSession{}).
		Where("id = ? AND version = ?", item.ID, item.Version).
		Updates(map[string]any{
			"consecutive_losses": item.ConsecutiveLosses,
			"last_loss_at":       item.LastLossAt,
			"cooldown_until":     item.CooldownUntil,
			"size_multiplier":    item.SizeMultiplier,
			"day_stopped":        item.DayStopped,
			"day_stop_reason":    item.DayStopReason,
			"day_realized_pnl":   item.DayRealizedPnL,
			"day_start_equity":   item.DayStartEquity,
			"trades_today":       item.TradesToday,
			"version":            item.Version + 1,
			"updated_at":         time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repository.ErrVersionConflict
	}
	item.Version++
	return nil
}

// --- Arm sessions ----------------------------------------------------------------

func (s *Store) InsertArmSession(ctx context.Context, item *models.ArmSession) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) GetActiveArmSession(ctx context.Context, now time.Time) (*models.ArmSession, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}
	var item models.ArmSession
	err := s.db.WithContext(ctx).
		Model(&models.ArmSession{}).
		Where("disarmed_at IS NULL").
		Where("expires_at > ?", now).
		Where("orders_executed < max_live_orders").
		Order("created_at desc").
		First(&item).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) GetLatestArmSession(ctx context.Context) (*models.ArmSession, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.ArmSession
	err := s.db.WithContext(ctx).
		Model(&models.ArmSession{}).
		Order("created_at desc").
		First(&item).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) DisarmArmSession(ctx context.Context, id string, at time.Time) error {
	if s == nil || s.db == nil {
		return nil
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}
	return s.db.WithContext(ctx).
		Model(&models.ArmSession{}).
		Where("id = ? AND disarmed_at IS NULL", id).
		Update("disarmed_at", at).Error
}

// SweepExpiredArmSessions stamps disarmed_at on sessions whose expiry has
// passed. Display hygiene only: the spend query re-checks expires_at, so
// correctness never depends on this running.
func (s *Store) SweepExpiredArmSessions(ctx context.Context, now time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}
	res := s.db.WithContext(ctx).
		Model(&models.ArmSession{}).
		Where("disarmed_at IS NULL").
		Where("expires_at <= ?", now).
		Update("disarmed_at", now)
	return res.RowsAffected, res.Error
}

// --- Decisions -------------------------------------------------------------------

func (s *Store) InsertDecision(ctx context.Context, item *models.Decision) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func decisionsQuery(db *gorm.DB, params repository.ListDecisionsParams) *gorm.DB {
	query := db.Model(&models.Decision{})
	if params.StrategyID != nil && strings.TrimSpace(*params.StrategyID) != "" {
		query = query.Where("strategy_id = ?", strings.TrimSpace(*params.StrategyID))
	}
	if params.Symbol != nil && strings.TrimSpace(*params.Symbol) != "" {
		query = query.Where("symbol = ?", strings.TrimSpace(*params.Symbol))
	}
	if params.Action != nil && strings.TrimSpace(*params.Action) != "" {
		query = query.Where("action = ?", strings.TrimSpace(*params.Action))
	}
	if params.Since != nil && !params.Since.IsZero() {
		query = query.Where("created_at >= ?", params.Since.UTC())
	}
	return query
}

func (s *Store) ListDecisions(ctx context.Context, params repository.ListDecisionsParams) ([]models.Decision, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := decisionsQuery(s.db.WithContext(ctx), params)
	query = applyOrder(query, params.OrderBy, params.Asc, "created_at")
	limit := normalizeLimit(params.Limit, 200)
	offset := normalizeOffset(params.Offset)
	var items []models.Decision
	if err := query.Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountDecisions(ctx context.Context, params repository.ListDecisionsParams) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var total int64
	if err := decisionsQuery(s.db.WithContext(ctx), params).Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Store) CountDecisionsByActionSince(ctx context.Context, action string, since time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return 0, nil
	}
	var total int64
	err := s.db.WithContext(ctx).
		Model(&models.Decision{}).
		Where("action = ?", action).
		Where("created_at >= ?", since.UTC()).
		Count(&total).Error
	if err != nil {
		return 0, err
	}
	return total, nil
}

// --- Drought state -----------------------------------------------------------------

func (s *Store) UpsertDroughtState(ctx context.Context, item *models.DroughtState) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	if item.ID == 0 {
		item.ID = 1
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"detected",
			"reason",
			"short_window_holds",
			"short_window_orders",
			"long_window_holds",
			"long_window_orders",
			"diagnostics",
			"computed_at",
			"updated_at",
		}),
	}).Create(item).Error
}

func (s *Store) GetDroughtState(ctx context.Context) (*models.DroughtState, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.DroughtState
	err := s.db.WithContext(ctx).Model(&models.DroughtState{}).Where("id = ?", 1).First(&item).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// --- Equity snapshots -----------------------------------------------------------------

func (s *Store) InsertEquitySnapshot(ctx context.Context, item *models.EquitySnapshot) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "account_id"}, {Name: "snapshot_at"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"cash",
			"position_value",
			"equity",
			"unrealized_pnl",
			"realized_pnl",
			"open_positions",
		}),
	}).Create(item).Error
}

func (s *Store) ListEquitySnapshots(ctx context.Context, params repository.ListEquitySnapshotsParams) ([]models.EquitySnapshot, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.EquitySnapshot{})
	if params.AccountID != nil && strings.TrimSpace(*params.AccountID) != "" {
		query = query.Where("account_id = ?", strings.TrimSpace(*params.AccountID))
	}
	if params.Since != nil && !params.Since.IsZero() {
		query = query.Where("snapshot_at >= ?", params.Since.UTC())
	}
	if params.Until != nil && !params.Until.IsZero() {
		query = query.Where("snapshot_at < ?", params.Until.UTC())
	}
	limit := normalizeLimit(params.Limit, 500)
	offset := normalizeOffset(params.Offset)
	var items []models.EquitySnapshot
	if err := query.Order("snapshot_at desc").Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// --- System settings -----------------------------------------------------------------

func (s *Store) UpsertSystemSetting(ctx context.Context, item *models.SystemSetting) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	item.Key = strings.TrimSpace(item.Key)
	if item.Key == "" {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"value",
			"description",
			"updated_at",
		}),
	}).Create(item).Error
}

func (s *Store) InsertSystemSettingIfAbsent(ctx context.Context, item *models.SystemSetting) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	item.Key = strings.TrimSpace(item.Key)
	if item.Key == "" {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoNothing: true,
	}).Create(item).Error
}

func (s *Store) GetSystemSettingByKey(ctx context.Context, key string) (*models.SystemSetting, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, nil
	}
	var item models.SystemSetting
	err := s.db.WithContext(ctx).Model(&models.SystemSetting{}).Where("key = ?", key).First(&item).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListSystemSettings(ctx context.Context, params repository.ListSystemSettingsParams) ([]models.SystemSetting, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.SystemSetting{})
	if params.Prefix != nil && strings.TrimSpace(*params.Prefix) != "" {
		pattern := strings.TrimSpace(*params.Prefix) + "%"
		query = query.Where("key LIKE ?", pattern)
	}
	query = applyOrder(query, params.OrderBy, params.Asc, "key")
	limit := normalizeLimit(params.Limit, 500)
	offset := normalizeOffset(params.Offset)
	var items []models.SystemSetting
	if err := query.Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// --- helpers -----------------------------------------------------------------

func applyOrder(query *gorm.DB, orderBy string, asc *bool, fallback string) *gorm.DB {
	column := strings.TrimSpace(orderBy)
	if column == "" {
		column = fallback
	}
	direction := "desc"
	if asc != nil && *asc {
		direction = "asc"
	}
	return query.Order(column + " " + direction)
}

func normalizeLimit(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > 500 {
		return 500
	}
	return limit
}

func normalizeOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	seen := map[string]struct{}{}
	for _, raw := range items {
		val := strings.TrimSpace(raw)
		if val == "" {
			continue
		}
		if _, ok := seen[val]; ok {
			continue
		}
		seen[val] = struct{}{}
		out = append(out, val)
	}
	return out
}
