package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"evotrade/internal/config"
	"evotrade/internal/ledger"
	"evotrade/internal/models"
	"evotrade/internal/repository"
	"evotrade/internal/risk"
	"evotrade/internal/sim"
)

// Errors returned for failures that are NOT persisted as rejected orders.
// Rejections travel back as OrderResult{Ok: false} with a nil error.
var (
	// ErrValidation means the intent was malformed; nothing was persisted.
	ErrValidation = errors.New("invalid order intent")

	// ErrConcurrencyConflict means the commit kept losing races past the
	// retry budget. The intent may be resubmitted as-is: the client order
	// id makes the retry idempotent.
	ErrConcurrencyConflict = errors.New("concurrent commit conflict")

	// ErrInvariantViolation means the ledger refused an order the limiter
	// approved. The transaction rolled back; nothing was booked.
	ErrInvariantViolation = errors.New("order invariant violated")
)

// Settings keys the engine reads. Defaults are ensured at boot by the
// system settings service.
const (
	SettingTradingStatus     = "trading.status"
	SettingTradingMode       = "trading.mode"
	SettingGovernorAutotrack = "feature.governor_autotrack"

	TradingStatusRunning = "running"
	TradingStatusStopped = "stopped"
)

// Reject kinds persisted on rejected order rows.
const (
	RejectKindValidation      = "validation"
	RejectKindGuard           = "guard"
	RejectKindDataUnavailable = "data_unavailable"
	RejectKindRisk            = "risk"
	RejectKindCanary          = "canary"
)

const armUnavailableReason = "arm session expired or spent"

// OrderIntent is one trade request as received from a strategy or the API.
type OrderIntent struct {
	ClientOrderID string
	AccountID     string
	StrategyID    string
	CohortID      string
	Symbol        string
	Side          string
	OrderType     string
	Quantity      decimal.Decimal
	LimitPrice    *decimal.Decimal
	Mode          string
	// Learnable defaults to true; test-mode trades set it false so they
	// never reach the fitness replay.
	Learnable *bool
	Tags      datatypes.JSON
}

// OrderResult is the synchronous outcome. Ok false means the order was
// rejected or cancelled and the row carries the reason.
type OrderResult struct {
	Ok              bool
	Order           *models.Order
	RejectionReason string

	Fill      *models.Fill
	Position  *models.Position
	CashAfter decimal.Decimal
}

// Engine runs the full order pipeline: gates, risk limits, simulated fill,
// atomic commit. Every decision it takes lands on an order row.
type Engine struct {
	Config config.Config
	Logger *zap.Logger
	Repo   repository.Repository
	Sim    *sim.Simulator

	Governor interface {
		Blocked(ctx context.Context, now time.Time) (bool, string, error)
		State(ctx context.Context, now time.Time) (*models.LossReactionSession, error)
		TradeCompleted(ctx context.Context, pnl decimal.Decimal, now time.Time) (*models.LossReactionSession, error)
	}

	Settings interface {
		GetString(ctx context.Context, key, fallback string) string
		IsEnabled(ctx context.Context, key string, fallback bool) bool
	}
}

// PlaceOrder takes an intent to a terminal state: filled, rejected, or
// cancelled. Rejections after validation are persisted for audit and
// returned with a nil error.
func (e *Engine) PlaceOrder(ctx context.Context, intent OrderIntent, now time.Time) (*OrderResult, error) {
	if e == nil || e.Repo == nil {
		return nil, nil
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	if err := e.normalize(&intent); err != nil {
		return nil, err
	}

	// Replays of the same client order id return the original outcome.
	if existing, err := e.Repo.GetOrderByClientOrderID(ctx, intent.ClientOrderID); err != nil {
		return nil, err
	} else if existing != nil {
		return resultFromOrder(existing), nil
	}

	if status := e.setting(ctx, SettingTradingStatus, TradingStatusRunning); status == TradingStatusStopped {
		return e.reject(ctx, intent, now, RejectKindGuard, "system stopped")
	}
	systemMode := e.setting(ctx, SettingTradingMode, models.ModePaper)
	if intent.Mode == "" {
		intent.Mode = systemMode
	} else if intent.Mode != systemMode {
		return e.reject(ctx, intent, now, RejectKindGuard,
			fmt.Sprintf("trade mode mismatch: intent %s, system %s", intent.Mode, systemMode))
	}

	if e.Governor != nil {
		blocked, reason, err := e.Governor.Blocked(ctx, now)
		if err != nil {
			return nil, err
		}
		if blocked {
			return e.reject(ctx, intent, now, RejectKindGuard, reason)
		}
	}

	price, err := e.Repo.GetMarketPrice(ctx, intent.Symbol)
	if err != nil {
		return nil, err
	}
	maxAge := e.Config.MarketData.MaxPriceAge
	if price == nil || (maxAge > 0 && now.Sub(price.UpdatedAt) > maxAge) {
		return e.reject(ctx, intent, now, RejectKindDataUnavailable,
			fmt.Sprintf("no market price for %s", intent.Symbol))
	}

	book, err := e.accountBook(ctx, intent.AccountID, intent.Symbol, price.Price)
	if err != nil {
		return nil, err
	}

	mult := decimal.Zero
	if e.Governor != nil {
		sess, err := e.Governor.State(ctx, now)
		if err != nil {
			return nil, err
		}
		if sess != nil {
			mult = sess.SizeMultiplier
		}
	}

	if rej := risk.ValidateOrder(e.Config.Risk, risk.ValidateInput{
		Side:           intent.Side,
		Quantity:       intent.Quantity,
		MarkPrice:      price.Price,
		Cash:           book.cash,
		Equity:         book.equity,
		PositionQty:    book.positionQty,
		PositionValue:  book.positionValue,
		EstimatedCost:  e.Sim.WorstCaseCost(intent.Quantity, price.Price),
		SizeMultiplier: mult,
	}); rej != nil {
		return e.reject(ctx, intent, now, RejectKindRisk, rej.Reason)
	}

	fill := e.Sim.Simulate(intent.Side, intent.Quantity, price.Price)

	if intent.OrderType == models.OrderTypeLimit && intent.LimitPrice != nil {
		limit := *intent.LimitPrice
		crossed := (intent.Side == ledger.SideBuy && fill.Price.GreaterThan(limit)) ||
			(intent.Side == ledger.SideSell && fill.Price.LessThan(limit))
		if crossed {
			return e.cancel(ctx, intent, now, "limit price not marketable")
		}
	}

	armSessionID := ""
	if intent.Mode == models.ModeLive {
		sess, err := e.Repo.GetActiveArmSession(ctx, now)
		if err != nil {
			return nil, err
		}
		if sess == nil {
			return e.reject(ctx, intent, now, RejectKindCanary, armUnavailableReason)
		}
		armSessionID = sess.ID
	}

	order := e.buildOrder(intent, models.OrderStatusFilled)
	order.FillPrice = &fill.Price
	order.FillQuantity = &intent.Quantity
	order.SlippagePct = &fill.SlippagePct
	order.Fee = &fill.Fee
	order.FilledAt = &now
	if armSessionID != "" {
		order.ArmSessionID = &armSessionID
	}

	res, err := e.commit(ctx, repository.CommitTradeParams{
		AccountID:    intent.AccountID,
		Symbol:       intent.Symbol,
		Side:         intent.Side,
		Quantity:     intent.Quantity,
		FillPrice:    fill.Price,
		Fee:          fill.Fee,
		FilledAt:     now,
		Order:        order,
		ArmSessionID: armSessionID,
	})
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrArmSessionUnavailable):
			return e.reject(ctx, intent, now, RejectKindCanary, armUnavailableReason)
		case errors.Is(err, repository.ErrInsufficientCash):
			return e.reject(ctx, intent, now, RejectKindRisk, err.Error())
		case errors.Is(err, ledger.ErrInsufficientQuantity), errors.Is(err, ledger.ErrUnknownSide):
			if e.Logger != nil {
				e.Logger.Error("engine: ledger refused approved order",
					zap.String("client_order_id", intent.ClientOrderID),
					zap.String("symbol", intent.Symbol),
					zap.Error(err),
				)
			}
			return nil, fmt.Errorf("%w: %v", ErrInvariantViolation, err)
		}
		return nil, err
	}

	if e.Logger != nil {
		e.Logger.Info("engine: order filled",
			zap.String("client_order_id", res.Order.ClientOrderID),
			zap.String("symbol", intent.Symbol),
			zap.String("side", intent.Side),
			zap.String("mode", intent.Mode),
			zap.String("fill_price", fill.Price.String()),
			zap.String("realized_pnl", res.RealizedDelta.String()),
		)
	}

	e.autotrack(ctx, intent, res.RealizedDelta, now)

	return &OrderResult{
		Ok:        true,
		Order:     &res.Order,
		Fill:      &res.Fill,
		Position:  &res.Position,
		CashAfter: res.CashAfter,
	}, nil
}

func (e *Engine) commit(ctx context.Context, params repository.CommitTradeParams) (*repository.CommitTradeResult, error) {
	retries := e.Config.Execution.CommitRetries
	if retries <= 0 {
		retries = 3
	}
	var lastErr error
	for attempt := 0; attempt < retries; attempt++ {
		res, err := e.Repo.CommitTrade(ctx, params)
		if err == nil {
			return res, nil
		}
		if errors.Is(err, repository.ErrArmSessionUnavailable) ||
			errors.Is(err, repository.ErrInsufficientCash) ||
			errors.Is(err, ledger.ErrInsufficientQuantity) ||
			errors.Is(err, ledger.ErrUnknownSide) {
			return nil, err
		}
		lastErr = err
		if e.Logger != nil {
			e.Logger.Warn("engine: commit retry",
				zap.String("client_order_id", params.Order.ClientOrderID),
				zap.Int("attempt", attempt+1),
				zap.Error(err),
			)
		}
	}
	return nil, fmt.Errorf("%w: %v", ErrConcurrencyConflict, lastErr)
}

// autotrack reports realized P&L on sells to the loss-reaction governor.
// It runs outside the commit transaction; failures are logged, never fatal.
func (e *Engine) autotrack(ctx context.Context, intent OrderIntent, realized decimal.Decimal, now time.Time) {
	if e.Governor == nil || intent.Side != ledger.SideSell {
		return
	}
	if !e.flag(ctx, SettingGovernorAutotrack, true) {
		return
	}
	if _, err := e.Governor.TradeCompleted(ctx, realized, now); err != nil && e.Logger != nil {
		e.Logger.Warn("engine: governor autotrack failed",
			zap.String("client_order_id", intent.ClientOrderID),
			zap.Error(err),
		)
	}
}

// accountBook is the limiter's view of the account: cash, marked equity,
// and the position in the traded symbol.
type accountBook struct {
	cash          decimal.Decimal
	equity        decimal.Decimal
	positionQty   decimal.Decimal
	positionValue decimal.Decimal
}

func (e *Engine) accountBook(ctx context.Context, accountID, symbol string, mark decimal.Decimal) (accountBook, error) {
	acct, err := e.Repo.GetAccount(ctx, accountID)
	if err != nil {
		return accountBook{}, err
	}
	if acct == nil {
		return accountBook{}, fmt.Errorf("%w: account %s not found", ErrValidation, accountID)
	}

	positions, err := e.Repo.ListOpenPositions(ctx, accountID)
	if err != nil {
		return accountBook{}, err
	}
	symbols := make([]string, 0, len(positions))
	for _, p := range positions {
		symbols = append(symbols, p.Symbol)
	}
	prices, err := e.Repo.ListMarketPricesBySymbols(ctx, symbols)
	if err != nil {
		return accountBook{}, err
	}
	marks := make(map[string]decimal.Decimal, len(prices))
	for _, p := range prices {
		marks[p.Symbol] = p.Price
	}
	marks[symbol] = mark

	book := accountBook{cash: acct.CurrentCash, equity: acct.CurrentCash}
	for _, p := range positions {
		px, ok := marks[p.Symbol]
		if !ok {
			// No fresh mark: carry the position at entry.
			px = p.AvgEntryPrice
		}
		value := p.Quantity.Mul(px)
		book.equity = book.equity.Add(value)
		if p.Symbol == symbol {
			book.positionQty = p.Quantity
			book.positionValue = value
		}
	}
	return book, nil
}

func (e *Engine) reject(ctx context.Context, intent OrderIntent, now time.Time, kind, reason string) (*OrderResult, error) {
	order := e.buildOrder(intent, models.OrderStatusRejected)
	order.RejectKind = kind
	order.RejectionReason = reason
	return e.persistTerminal(ctx, order, now, reason)
}

func (e *Engine) cancel(ctx context.Context, intent OrderIntent, now time.Time, reason string) (*OrderResult, error) {
	order := e.buildOrder(intent, models.OrderStatusCancelled)
	order.RejectionReason = reason
	return e.persistTerminal(ctx, order, now, reason)
}

func (e *Engine) persistTerminal(ctx context.Context, order models.Order, now time.Time, reason string) (*OrderResult, error) {
	if err := e.Repo.InsertOrder(ctx, &order); err != nil {
		return nil, err
	}
	if e.Logger != nil {
		e.Logger.Info("engine: order refused",
			zap.String("client_order_id", order.ClientOrderID),
			zap.String("symbol", order.Symbol),
			zap.String("status", order.Status),
			zap.String("kind", order.RejectKind),
			zap.String("reason", reason),
		)
	}
	return &OrderResult{Order: &order, RejectionReason: reason}, nil
}

func (e *Engine) buildOrder(intent OrderIntent, status string) models.Order {
	learnable := true
	if intent.Learnable != nil {
		learnable = *intent.Learnable
	}
	return models.Order{
		ClientOrderID: intent.ClientOrderID,
		AccountID:     intent.AccountID,
		StrategyID:    intent.StrategyID,
		CohortID:      intent.CohortID,
		Symbol:        intent.Symbol,
		Side:          intent.Side,
		OrderType:     intent.OrderType,
		Mode:          intent.Mode,
		Quantity:      intent.Quantity,
		LimitPrice:    intent.LimitPrice,
		Status:        status,
		Learnable:     learnable,
		Tags:          intent.Tags,
	}
}

// normalize validates the intent in place and fills defaults. Failures are
// ErrValidation: returned to the caller, never persisted.
func (e *Engine) normalize(intent *OrderIntent) error {
	intent.Symbol = strings.ToUpper(strings.TrimSpace(intent.Symbol))
	if intent.Symbol == "" {
		return fmt.Errorf("%w: symbol is required", ErrValidation)
	}
	intent.Side = strings.ToLower(strings.TrimSpace(intent.Side))
	if intent.Side != ledger.SideBuy && intent.Side != ledger.SideSell {
		return fmt.Errorf("%w: side must be buy or sell", ErrValidation)
	}
	if !intent.Quantity.IsPositive() {
		return fmt.Errorf("%w: quantity must be positive", ErrValidation)
	}

	switch intent.OrderType = strings.ToLower(strings.TrimSpace(intent.OrderType)); intent.OrderType {
	case "":
		intent.OrderType = models.OrderTypeMarket
	case models.OrderTypeMarket:
	case models.OrderTypeLimit:
		if intent.LimitPrice == nil || !intent.LimitPrice.IsPositive() {
			return fmt.Errorf("%w: limit orders need a positive limit price", ErrValidation)
		}
	default:
		return fmt.Errorf("%w: unsupported order type %q", ErrValidation, intent.OrderType)
	}

	switch intent.Mode = strings.ToLower(strings.TrimSpace(intent.Mode)); intent.Mode {
	case "", models.ModePaper, models.ModeLive:
	default:
		return fmt.Errorf("%w: mode must be paper or live", ErrValidation)
	}

	if intent.AccountID == "" {
		intent.AccountID = e.Config.App.AccountID
	}
	if intent.AccountID == "" {
		return fmt.Errorf("%w: account id is required", ErrValidation)
	}

	if intent.ClientOrderID == "" {
		intent.ClientOrderID = uuid.NewString()
	}
	if len(intent.ClientOrderID) > 64 {
		return fmt.Errorf("%w: client order id exceeds 64 characters", ErrValidation)
	}
	return nil
}

func (e *Engine) setting(ctx context.Context, key, fallback string) string {
	if e.Settings == nil {
		return fallback
	}
	return e.Settings.GetString(ctx, key, fallback)
}

func (e *Engine) flag(ctx context.Context, key string, fallback bool) bool {
	if e.Settings == nil {
		return fallback
	}
	return e.Settings.IsEnabled(ctx, key, fallback)
}

func resultFromOrder(order *models.Order) *OrderResult {
	return &OrderResult{
		Ok:              order.Status == models.OrderStatusFilled,
		Order:           order,
		RejectionReason: order.RejectionReason,
	}
}
