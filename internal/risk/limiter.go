package risk

import (
	"fmt"

	"github.com/shopspring/decimal"

	"evotrade/internal/config"
	"evotrade/internal/ledger"
)

// Rejection codes, persisted on the order row.
const (
	RejectMaxTradeNotional     = "max_trade_notional"
	RejectMaxPositionValue     = "max_position_value"
	RejectInsufficientCash     = "insufficient_cash"
	RejectInsufficientQuantity = "insufficient_quantity"
)

type Rejection struct {
	Code   string
	Reason string
}

// ValidateInput is everything the limiter needs, assembled by the engine.
// Equity is cash plus marked position value across the account. The checks
// are pure so they test without a repository.
type ValidateInput struct {
	Side      string
	Quantity  decimal.Decimal
	MarkPrice decimal.Decimal

	Cash   decimal.Decimal
	Equity decimal.Decimal

	PositionQty   decimal.Decimal
	PositionValue decimal.Decimal

	// EstimatedCost is the worst-case cash a buy could need (max slippage
	// plus fee); ignored for sells.
	EstimatedCost decimal.Decimal

	// SizeMultiplier comes from the loss-reaction governor; 1 when unscaled.
	SizeMultiplier decimal.Decimal
}

// ValidateOrder checks an intent against the notional and inventory limits.
// A nil return means the order may proceed. Each rejection reason carries
// the computed value and the limit it broke so callers never have to
// recompute them.
func ValidateOrder(cfg config.RiskConfig, in ValidateInput) *Rejection {
	notional := in.Quantity.Mul(in.MarkPrice)

	mult := in.SizeMultiplier
	if mult.LessThanOrEqual(decimal.Zero) {
		mult = decimal.NewFromInt(1)
	}

	if cfg.MaxTradePct > 0 {
		limit := in.Equity.Mul(decimal.NewFromFloat(cfg.MaxTradePct)).Mul(mult)
		if notional.GreaterThan(limit) {
			reason := fmt.Sprintf("trade notional %s exceeds limit %s (%.0f%% of equity %s",
				notional.StringFixed(2), limit.StringFixed(2), cfg.MaxTradePct*100, in.Equity.StringFixed(2))
			if mult.Cmp(decimal.NewFromInt(1)) != 0 {
				reason += fmt.Sprintf(", size multiplier %s", mult.String())
			}
			reason += ")"
			return &Rejection{Code: RejectMaxTradeNotional, Reason: reason}
		}
	}

	switch in.Side {
	case ledger.SideBuy:
		if cfg.MaxPositionPct > 0 {
			limit := in.Equity.Mul(decimal.NewFromFloat(cfg.MaxPositionPct))
			projected := in.PositionValue.Add(notional)
			if projected.GreaterThan(limit) {
				return &Rejection{
					Code: RejectMaxPositionValue,
					Reason: fmt.Sprintf("position value %s would exceed limit %s (%.0f%% of equity %s)",
						projected.StringFixed(2), limit.StringFixed(2), cfg.MaxPositionPct*100, in.Equity.StringFixed(2)),
				}
			}
		}
		need := in.EstimatedCost
		if need.LessThanOrEqual(decimal.Zero) {
			need = notional
		}
		if in.Cash.LessThan(need) {
			return &Rejection{
				Code: RejectInsufficientCash,
				Reason: fmt.Sprintf("insufficient cash: need %s, have %s",
					need.StringFixed(2), in.Cash.StringFixed(2)),
			}
		}
	case ledger.SideSell:
		if in.Quantity.GreaterThan(in.PositionQty) {
			return &Rejection{
				Code: RejectInsufficientQuantity,
				Reason: fmt.Sprintf("sell quantity %s exceeds held quantity %s",
					in.Quantity.String(), in.PositionQty.String()),
			}
		}
	}

	return nil
}
