package sim

import (
	"math/rand"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"evotrade/internal/config"
	"evotrade/internal/ledger"
)

// Simulator prices accepted orders. Slippage is drawn uniformly from the
// configured range and always applied adversely: buys fill above market,
// sells below. The RNG is owned by the simulator so tests get deterministic
// fills from a fixed seed.
type Simulator struct {
	cfg config.ExecutionConfig

	mu  sync.Mutex
	rng *rand.Rand
}

func New(cfg config.ExecutionConfig) *Simulator {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Simulator{cfg: cfg, rng: rand.New(rand.NewSource(seed))}
}

// Result is one priced fill.
type Result struct {
	Price       decimal.Decimal
	SlippagePct decimal.Decimal
	Notional    decimal.Decimal
	Fee         decimal.Decimal
}

func (s *Simulator) Simulate(side string, qty, marketPrice decimal.Decimal) Result {
	slip := s.drawSlippage()
	price := marketPrice
	if side == ledger.SideSell {
		price = marketPrice.Mul(decimal.NewFromFloat(1 - slip))
	} else {
		price = marketPrice.Mul(decimal.NewFromFloat(1 + slip))
	}
	notional := price.Mul(qty)
	fee := notional.Mul(decimal.NewFromFloat(s.cfg.FeePct))
	return Result{
		Price:       price,
		SlippagePct: decimal.NewFromFloat(slip),
		Notional:    notional,
		Fee:         fee,
	}
}

// WorstCaseCost is the cash a buy could need at maximum slippage, fee
// included. The risk limiter uses it for the cash-sufficiency check so an
// approved order can never fail at fill time for lack of cash.
func (s *Simulator) WorstCaseCost(qty, marketPrice decimal.Decimal) decimal.Decimal {
	worst := marketPrice.Mul(decimal.NewFromFloat(1 + s.cfg.SlippageMaxPct)).Mul(qty)
	return worst.Add(worst.Mul(decimal.NewFromFloat(s.cfg.FeePct)))
}

func (s *Simulator) drawSlippage() float64 {
	lo, hi := s.cfg.SlippageMinPct, s.cfg.SlippageMaxPct
	if lo < 0 {
		lo = 0
	}
	if hi < lo {
		hi = lo
	}
	s.mu.Lock()
	v := s.rng.Float64()
	s.mu.Unlock()
	return lo + v*(hi-lo)
}
