package fitness

import (
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"evotrade/internal/config"
	"evotrade/internal/ledger"
)

// Composite weights. Drawdown and churn subtract; the rest add.
const (
	weightPnL      = 0.35
	weightSharpe   = 0.25
	weightProfDays = 0.15
	weightDrawdown = 0.15
	weightChurn    = 0.10
)

const (
	defaultPnLScale     = 1000.0
	defaultFeeThreshold = 0.30
	defaultMaxPerDay    = 20.0
)

// Trade is one executed fill in replay order.
type Trade struct {
	Symbol    string
	Side      string
	Quantity  decimal.Decimal
	Price     decimal.Decimal
	Fee       decimal.Decimal
	Learnable bool
	FilledAt  time.Time
}

// Components carries the composite score and every term behind it.
// Serialized as-is into the performance row's components column.
type Components struct {
	Score              float64 `json:"score"`
	NormPnL            float64 `json:"norm_pnl"`
	Sharpe             float64 `json:"sharpe"`
	NormSharpe         float64 `json:"norm_sharpe"`
	MaxDrawdown        float64 `json:"max_drawdown"`
	ProfitableDays     float64 `json:"profitable_days"`
	OvertradingPenalty float64 `json:"overtrading_penalty"`
	FeeRatio           float64 `json:"fee_ratio"`
	TradesPerDay       float64 `json:"trades_per_day"`

	RealizedPnL decimal.Decimal `json:"realized_pnl"`
	TotalFees   decimal.Decimal `json:"total_fees"`
	TradeCount  int             `json:"trade_count"`
	DayCount    int             `json:"day_count"`
}

// Evaluate replays the learnable trades through average-cost accounting and
// scores the outcome. Deterministic: the same trades always produce the
// same components.
func Evaluate(cfg config.FitnessConfig, trades []Trade, startingCapital decimal.Decimal) Components {
	out := Components{RealizedPnL: decimal.Zero, TotalFees: decimal.Zero}

	learnable := make([]Trade, 0, len(trades))
	for _, tr := range trades {
		if tr.Learnable {
			learnable = append(learnable, tr)
		}
	}
	if len(learnable) == 0 {
		return out
	}
	sort.SliceStable(learnable, func(i, j int) bool {
		return learnable[i].FilledAt.Before(learnable[j].FilledAt)
	})

	book := ledger.NewBook()
	cumRealized := decimal.Zero
	totalFees := decimal.Zero
	grossProfit := decimal.Zero

	equity := startingCapital
	peak := startingCapital
	maxDrawdown := 0.0

	type dayBucket struct {
		pnl         decimal.Decimal
		startEquity decimal.Decimal
		trades      int
	}
	var dayKeys []string
	buckets := map[string]*dayBucket{}

	for _, tr := range learnable {
		key := tr.FilledAt.UTC().Format("2006-01-02")
		bucket, ok := buckets[key]
		if !ok {
			bucket = &dayBucket{pnl: decimal.Zero, startEquity: equity}
			buckets[key] = bucket
			dayKeys = append(dayKeys, key)
		}

		realized := book.ApplyTrade(tr.Symbol, tr.Side, tr.Quantity, tr.Price, tr.Fee)
		cumRealized = cumRealized.Add(realized)
		totalFees = totalFees.Add(tr.Fee)
		if realized.IsPositive() {
			grossProfit = grossProfit.Add(realized)
		}
		bucket.pnl = bucket.pnl.Add(realized)
		bucket.trades++

		equity = startingCapital.Add(cumRealized)
		if equity.GreaterThan(peak) {
			peak = equity
		}
		if peak.IsPositive() {
			dd, _ := peak.Sub(equity).Div(peak).Float64()
			if dd > maxDrawdown {
				maxDrawdown = dd
			}
		}
	}

	returns := make([]float64, 0, len(dayKeys))
	profitable := 0
	for _, key := range dayKeys {
		bucket := buckets[key]
		if bucket.pnl.IsPositive() {
			profitable++
		}
		if bucket.startEquity.IsPositive() {
			r, _ := bucket.pnl.Div(bucket.startEquity).Float64()
			returns = append(returns, r)
		} else {
			returns = append(returns, 0)
		}
	}

	scale := cfg.PnLScale
	if scale <= 0 {
		scale = defaultPnLScale
	}
	pnlFloat, _ := cumRealized.Float64()

	out.TradeCount = len(learnable)
	out.DayCount = len(dayKeys)
	out.RealizedPnL = cumRealized
	out.TotalFees = totalFees
	out.NormPnL = math.Tanh(pnlFloat / scale)
	out.Sharpe = clamp(annualizedSharpe(returns), -3, 3)
	out.NormSharpe = (out.Sharpe + 3) / 6
	out.MaxDrawdown = maxDrawdown
	out.ProfitableDays = float64(profitable) / float64(len(dayKeys))
	out.OvertradingPenalty, out.FeeRatio, out.TradesPerDay = overtrading(cfg, totalFees, grossProfit, len(learnable), len(dayKeys))

	out.Score = weightPnL*out.NormPnL +
		weightSharpe*out.NormSharpe +
		weightProfDays*out.ProfitableDays -
		weightDrawdown*out.MaxDrawdown -
		weightChurn*out.OvertradingPenalty
	return out
}

// overtrading sums a fee-burden part and a churn part, each capped at 0.5.
// The fee part compares total fees against the profit of winning trades
// only; losing streaks shrink the denominator and sharpen the penalty.
func overtrading(cfg config.FitnessConfig, totalFees, grossProfit decimal.Decimal, tradeCount, dayCount int) (penalty, feeRatio, tradesPerDay float64) {
	feeThreshold := cfg.FeeProfitThreshold
	if feeThreshold <= 0 {
		feeThreshold = defaultFeeThreshold
	}
	feesF, _ := totalFees.Float64()
	grossF, _ := grossProfit.Float64()

	var feePart float64
	switch {
	case feesF <= 0:
		feePart = 0
	case grossF <= 0:
		feePart = 0.5
	default:
		feeRatio = feesF / grossF
		feePart = clamp((feeRatio-feeThreshold)*2, 0, 0.5)
	}

	maxPerDay := cfg.MaxTradesPerDay
	if maxPerDay <= 0 {
		maxPerDay = defaultMaxPerDay
	}
	var churnPart float64
	if dayCount > 0 {
		tradesPerDay = float64(tradeCount) / float64(dayCount)
		churnPart = clamp((tradesPerDay/maxPerDay-1)*0.5, 0, 0.5)
	}

	return clamp(feePart+churnPart, 0, 1), feeRatio, tradesPerDay
}

// annualizedSharpe uses population stdev over daily returns. A single day
// or a flat return series has no dispersion and scores zero.
func annualizedSharpe(returns []float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		d := r - mean
		variance += d * d
	}
	variance /= float64(len(returns))
	stdev := math.Sqrt(variance)
	if stdev == 0 {
		return 0
	}
	return mean / stdev * math.Sqrt(365)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
