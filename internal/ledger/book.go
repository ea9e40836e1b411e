package ledger

import "github.com/shopspring/decimal"

// Book replays a trade history across symbols. Unlike Apply, it tolerates
// the gaps a partial history has: a sell larger than the tracked quantity
// realizes only the tracked part, and a sell with no tracked position at
// all books just the fee as a loss. The live execution path never takes
// those branches; the fitness replay does.
type Book struct {
	positions map[string]State
}

func NewBook() *Book {
	return &Book{positions: make(map[string]State)}
}

func (b *Book) Position(symbol string) State {
	return b.positions[symbol]
}

// ApplyTrade books one historical trade and returns the realized P&L delta.
func (b *Book) ApplyTrade(symbol, side string, qty, price, fee decimal.Decimal) decimal.Decimal {
	if b == nil || qty.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}
	pos := b.positions[symbol]
	switch side {
	case SideBuy:
		b.positions[symbol] = applyBuy(pos, qty, price, fee)
		return decimal.Zero
	case SideSell:
		if pos.Quantity.LessThanOrEqual(decimal.Zero) {
			realized := fee.Neg()
			pos.RealizedPnL = pos.RealizedPnL.Add(realized)
			b.positions[symbol] = pos
			return realized
		}
		sellQty := qty
		if sellQty.GreaterThan(pos.Quantity) {
			sellQty = pos.Quantity
		}
		before := pos.RealizedPnL
		next := applySell(pos, sellQty, price, fee)
		b.positions[symbol] = next
		return next.RealizedPnL.Sub(before)
	default:
		return decimal.Zero
	}
}
