package ledger

import (
	"errors"

	"github.com/shopspring/decimal"
)

const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// ErrInsufficientQuantity means a sell asked for more than the position
// holds. The risk limiter screens for this before commit; if it still
// reaches the ledger the caller must abort the transaction.
var ErrInsufficientQuantity = errors.New("sell quantity exceeds held quantity")

var ErrUnknownSide = errors.New("unknown trade side")

// State is the average-cost view of one (account, symbol) position.
type State struct {
	Quantity      decimal.Decimal
	AvgEntryPrice decimal.Decimal
	CostBasis     decimal.Decimal
	RealizedPnL   decimal.Decimal
}

// Delta is the effect of booking one fill against a State.
type Delta struct {
	QuantityAfter  decimal.Decimal
	AvgEntryAfter  decimal.Decimal
	CostBasisAfter decimal.Decimal
	// Realized P&L booked by this fill alone; zero on buys.
	RealizedDelta decimal.Decimal
	// Cash movement: negative on buys (notional plus fee), positive on
	// sells (notional minus fee).
	CashDelta decimal.Decimal
	Closed    bool
}

// Apply books one fill. Buys fold the fee into cost basis so the average
// entry price reflects the true cost of acquisition:
//
//	avg = (costBasis + price*qty + fee) / (heldQty + qty)
//
// Sells realize (price - avg) * qty - fee and reduce cost basis at the
// unchanged average. Quantity reaching zero closes the position.
func Apply(pos State, side string, qty, price, fee decimal.Decimal) (State, Delta, error) {
	if qty.LessThanOrEqual(decimal.Zero) {
		return pos, Delta{}, errors.New("quantity must be positive")
	}
	var next State
	var cash decimal.Decimal
	switch side {
	case SideBuy:
		next = applyBuy(pos, qty, price, fee)
		cash = price.Mul(qty).Add(fee).Neg()
	case SideSell:
		if qty.GreaterThan(pos.Quantity) {
			return pos, Delta{}, ErrInsufficientQuantity
		}
		next = applySell(pos, qty, price, fee)
		cash = price.Mul(qty).Sub(fee)
	default:
		return pos, Delta{}, ErrUnknownSide
	}
	d := Delta{
		QuantityAfter:  next.Quantity,
		AvgEntryAfter:  next.AvgEntryPrice,
		CostBasisAfter: next.CostBasis,
		RealizedDelta:  next.RealizedPnL.Sub(pos.RealizedPnL),
		CashDelta:      cash,
		Closed:         next.Quantity.IsZero() && !pos.Quantity.IsZero(),
	}
	return next, d, nil
}

func applyBuy(pos State, qty, price, fee decimal.Decimal) State {
	pos.CostBasis = pos.CostBasis.Add(price.Mul(qty)).Add(fee)
	pos.Quantity = pos.Quantity.Add(qty)
	if pos.Quantity.GreaterThan(decimal.Zero) {
		pos.AvgEntryPrice = pos.CostBasis.Div(pos.Quantity)
	}
	return pos
}

func applySell(pos State, qty, price, fee decimal.Decimal) State {
	realized := price.Sub(pos.AvgEntryPrice).Mul(qty).Sub(fee)
	pos.RealizedPnL = pos.RealizedPnL.Add(realized)
	pos.Quantity = pos.Quantity.Sub(qty)
	if pos.Quantity.GreaterThan(decimal.Zero) {
		pos.CostBasis = pos.AvgEntryPrice.Mul(pos.Quantity)
	} else {
		pos.Quantity = decimal.Zero
		pos.CostBasis = decimal.Zero
		pos.AvgEntryPrice = decimal.Zero
	}
	return pos
}
