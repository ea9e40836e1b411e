package ledger

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestApply_BuyFoldsFeeIntoCost(t *testing.T) {
	pos, d, err := Apply(State{}, SideBuy, dec("1"), dec("50000"), dec("10"))
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if pos.AvgEntryPrice.Cmp(dec("50010")) != 0 {
		t.Fatalf("avg=%s want=50010", pos.AvgEntryPrice.String())
	}
	if pos.CostBasis.Cmp(dec("50010")) != 0 {
		t.Fatalf("cost=%s want=50010", pos.CostBasis.String())
	}
	if d.CashDelta.Cmp(dec("-50010")) != 0 {
		t.Fatalf("cash=%s want=-50010", d.CashDelta.String())
	}
	if !d.RealizedDelta.IsZero() {
		t.Fatalf("realized=%s want=0", d.RealizedDelta.String())
	}
}

func TestApply_BuyAveragesAcrossLots(t *testing.T) {
	pos, _, err := Apply(State{}, SideBuy, dec("2"), dec("100"), dec("0"))
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	pos, _, err = Apply(pos, SideBuy, dec("2"), dec("200"), dec("0"))
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if pos.Quantity.Cmp(dec("4")) != 0 {
		t.Fatalf("qty=%s want=4", pos.Quantity.String())
	}
	if pos.AvgEntryPrice.Cmp(dec("150")) != 0 {
		t.Fatalf("avg=%s want=150", pos.AvgEntryPrice.String())
	}
}

func TestApply_RoundTripRealizedPnL(t *testing.T) {
	// Buy 1 @ 50000 with 10 fee, sell 1 @ 51000 with 10 fee.
	// Realized = (51000 - 50010) * 1 - 10 = 980.
	pos, _, err := Apply(State{}, SideBuy, dec("1"), dec("50000"), dec("10"))
	if err != nil {
		t.Fatalf("buy err=%v", err)
	}
	pos, d, err := Apply(pos, SideSell, dec("1"), dec("51000"), dec("10"))
	if err != nil {
		t.Fatalf("sell err=%v", err)
	}
	if d.RealizedDelta.Cmp(dec("980")) != 0 {
		t.Fatalf("realized=%s want=980", d.RealizedDelta.String())
	}
	if !d.Closed {
		t.Fatalf("expected position closed")
	}
	if !pos.Quantity.IsZero() || !pos.CostBasis.IsZero() || !pos.AvgEntryPrice.IsZero() {
		t.Fatalf("closed position not zeroed: %+v", pos)
	}
	if pos.RealizedPnL.Cmp(dec("980")) != 0 {
		t.Fatalf("cumulative realized=%s want=980", pos.RealizedPnL.String())
	}
}

func TestApply_PartialSellKeepsAverage(t *testing.T) {
	pos, _, err := Apply(State{}, SideBuy, dec("10"), dec("100"), dec("0"))
	if err != nil {
		t.Fatalf("buy err=%v", err)
	}
	pos, d, err := Apply(pos, SideSell, dec("4"), dec("110"), dec("2"))
	if err != nil {
		t.Fatalf("sell err=%v", err)
	}
	// (110-100)*4 - 2 = 38
	if d.RealizedDelta.Cmp(dec("38")) != 0 {
		t.Fatalf("realized=%s want=38", d.RealizedDelta.String())
	}
	if pos.Quantity.Cmp(dec("6")) != 0 {
		t.Fatalf("qty=%s want=6", pos.Quantity.String())
	}
	if pos.AvgEntryPrice.Cmp(dec("100")) != 0 {
		t.Fatalf("avg=%s want=100 (unchanged by sell)", pos.AvgEntryPrice.String())
	}
	if pos.CostBasis.Cmp(dec("600")) != 0 {
		t.Fatalf("cost=%s want=600", pos.CostBasis.String())
	}
	if d.Closed {
		t.Fatalf("partial sell must not close")
	}
}

func TestApply_SellBeyondHeldFails(t *testing.T) {
	pos, _, err := Apply(State{}, SideBuy, dec("1"), dec("100"), dec("0"))
	if err != nil {
		t.Fatalf("buy err=%v", err)
	}
	before := pos
	_, _, err = Apply(pos, SideSell, dec("2"), dec("110"), dec("0"))
	if !errors.Is(err, ErrInsufficientQuantity) {
		t.Fatalf("err=%v want ErrInsufficientQuantity", err)
	}
	if before.Quantity.Cmp(pos.Quantity) != 0 {
		t.Fatalf("failed apply mutated state")
	}
}

func TestApply_RejectsBadInput(t *testing.T) {
	if _, _, err := Apply(State{}, SideBuy, decimal.Zero, dec("100"), decimal.Zero); err == nil {
		t.Fatalf("zero quantity accepted")
	}
	if _, _, err := Apply(State{}, "short", dec("1"), dec("100"), decimal.Zero); !errors.Is(err, ErrUnknownSide) {
		t.Fatalf("err=%v want ErrUnknownSide", err)
	}
}

func TestBook_UntrackedSellCostsFeeOnly(t *testing.T) {
	b := NewBook()
	realized := b.ApplyTrade("BTCUSDT", SideSell, dec("1"), dec("50000"), dec("7"))
	if realized.Cmp(dec("-7")) != 0 {
		t.Fatalf("realized=%s want=-7", realized.String())
	}
	if !b.Position("BTCUSDT").Quantity.IsZero() {
		t.Fatalf("untracked sell created quantity")
	}
}

func TestBook_OversizedSellClampsToTracked(t *testing.T) {
	b := NewBook()
	b.ApplyTrade("ETHUSDT", SideBuy, dec("2"), dec("1000"), dec("0"))
	realized := b.ApplyTrade("ETHUSDT", SideSell, dec("5"), dec("1100"), dec("3"))
	// Only the tracked 2 units realize: (1100-1000)*2 - 3 = 197.
	if realized.Cmp(dec("197")) != 0 {
		t.Fatalf("realized=%s want=197", realized.String())
	}
	if !b.Position("ETHUSDT").Quantity.IsZero() {
		t.Fatalf("clamped sell should close the position")
	}
}

func TestBook_TracksSymbolsIndependently(t *testing.T) {
	b := NewBook()
	b.ApplyTrade("BTCUSDT", SideBuy, dec("1"), dec("50000"), dec("0"))
	b.ApplyTrade("ETHUSDT", SideBuy, dec("10"), dec("1000"), dec("0"))
	if b.Position("BTCUSDT").Quantity.Cmp(dec("1")) != 0 {
		t.Fatalf("btc qty=%s want=1", b.Position("BTCUSDT").Quantity.String())
	}
	if b.Position("ETHUSDT").Quantity.Cmp(dec("10")) != 0 {
		t.Fatalf("eth qty=%s want=10", b.Position("ETHUSDT").Quantity.String())
	}
}
