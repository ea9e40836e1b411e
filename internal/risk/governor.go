package risk

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"evotrade/internal/config"
	"evotrade/internal/models"
	"evotrade/internal/repository"
)

// governorWriteAttempts bounds optimistic retries on the day session row.
const governorWriteAttempts = 3

var (
	one  = decimal.New(1, 0)
	half = decimal.New(5, -1)
)

// Governor tracks consecutive losses, cooldowns and day-level drawdown in a
// per-day session row. The execution engine reads Blocked before accepting
// an order; trade completions drive the transitions.
type Governor struct {
	Config config.GovernorConfig
	Repo   repository.Repository
	Logger *zap.Logger

	// Equity baselines a fresh day session. Nil is tolerated; the day then
	// starts with zero equity and percentage triggers stay dormant.
	Equity func(ctx context.Context) (decimal.Decimal, error)
}

func tradingDay(now time.Time) string {
	return now.UTC().Format("2006-01-02")
}

// State returns today's session, creating it on first touch of a new day.
func (g *Governor) State(ctx context.Context, now time.Time) (*models.LossReactionSession, error) {
	if g == nil || g.Repo == nil {
		return nil, nil
	}
	return g.loadOrCreate(ctx, now)
}

// Blocked reports whether new orders must be refused right now, with a
// human-readable reason when they must.
func (g *Governor) Blocked(ctx context.Context, now time.Time) (bool, string, error) {
	if g == nil || g.Repo == nil {
		return false, "", nil
	}
	sess, err := g.loadOrCreate(ctx, now)
	if err != nil {
		return false, "", err
	}
	if sess.DayStopped {
		reason := sess.DayStopReason
		if reason == "" {
			reason = "trading stopped for the day"
		}
		return true, reason, nil
	}
	if sess.CooldownUntil != nil && now.Before(*sess.CooldownUntil) {
		return true, fmt.Sprintf("cooldown active until %s", sess.CooldownUntil.UTC().Format(time.RFC3339)), nil
	}
	return false, "", nil
}

// TradeCompleted applies one completed trade's realized P&L to the session.
func (g *Governor) TradeCompleted(ctx context.Context, pnl decimal.Decimal, now time.Time) (*models.LossReactionSession, error) {
	if g == nil || g.Repo == nil {
		return nil, nil
	}
	return g.withSession(ctx, now, func(sess *models.LossReactionSession) {
		sess.TradesToday++
		sess.DayRealizedPnL = sess.DayRealizedPnL.Add(pnl)

		if pnl.IsNegative() {
			sess.ConsecutiveLosses++
			lossAt := now.UTC()
			sess.LastLossAt = &lossAt
			until := now.UTC().Add(g.Config.Cooldown)
			sess.CooldownUntil = &until
			if g.Config.MaxConsecutiveLosses > 0 &&
				sess.ConsecutiveLosses >= g.Config.MaxConsecutiveLosses &&
				!sess.DayStopped {
				sess.DayStopped = true
				sess.DayStopReason = fmt.Sprintf("%d consecutive losses", sess.ConsecutiveLosses)
				if g.Logger != nil {
					g.Logger.Warn("governor: day stop",
						zap.String("reason", sess.DayStopReason),
						zap.String("day", sess.TradingDay),
					)
				}
			}
		} else {
			sess.ConsecutiveLosses = 0
			sess.CooldownUntil = nil
			sess.SizeMultiplier = one
		}

		g.applyDayDrawdown(sess)
	})
}

// applyDayDrawdown re-checks day-level loss triggers after every completion.
// Runs after the win-reset so a day still under water keeps its reduced size.
func (g *Governor) applyDayDrawdown(sess *models.LossReactionSession) {
	if !sess.DayStartEquity.IsPositive() {
		return
	}
	pct := sess.DayRealizedPnL.Div(sess.DayStartEquity)

	if g.Config.HalveThresholdPct > 0 {
		halveAt := decimal.NewFromFloat(g.Config.HalveThresholdPct).Neg()
		if pct.LessThan(halveAt) && sess.SizeMultiplier.Equal(one) {
			sess.SizeMultiplier = half
			if g.Logger != nil {
				g.Logger.Info("governor: size halved",
					zap.String("day_pnl_pct", pct.Mul(decimal.New(100, 0)).StringFixed(2)),
					zap.Float64("threshold_pct", g.Config.HalveThresholdPct*100),
				)
			}
		}
	}

	if g.Config.DayStopThresholdPct > 0 {
		stopAt := decimal.NewFromFloat(g.Config.DayStopThresholdPct).Neg()
		if pct.LessThan(stopAt) && !sess.DayStopped {
			sess.DayStopped = true
			sess.DayStopReason = fmt.Sprintf("day loss %s%% exceeds %.2f%% limit",
				pct.Mul(decimal.New(100, 0)).Abs().StringFixed(2),
				g.Config.DayStopThresholdPct*100,
			)
			if g.Logger != nil {
				g.Logger.Warn("governor: day stop",
					zap.String("reason", sess.DayStopReason),
					zap.String("day", sess.TradingDay),
				)
			}
		}
	}
}

// ResetSession clears all reactive state and re-baselines the day at the
// current equity. Administrative override; the trade count stays factual.
func (g *Governor) ResetSession(ctx context.Context, now time.Time) (*models.LossReactionSession, error) {
	if g == nil || g.Repo == nil {
		return nil, nil
	}
	baseline := decimal.Zero
	if g.Equity != nil {
		if eq, err := g.Equity(ctx); err == nil {
			baseline = eq
		} else if g.Logger != nil {
			g.Logger.Warn("governor: equity unavailable on reset", zap.Error(err))
		}
	}
	return g.withSession(ctx, now, func(sess *models.LossReactionSession) {
		sess.ConsecutiveLosses = 0
		sess.LastLossAt = nil
		sess.CooldownUntil = nil
		sess.SizeMultiplier = one
		sess.DayStopped = false
		sess.DayStopReason = ""
		sess.DayRealizedPnL = decimal.Zero
		sess.DayStartEquity = baseline
	})
}

// ClearCooldown lifts the cooldown gate without touching the loss streak.
func (g *Governor) ClearCooldown(ctx context.Context, now time.Time) (*models.LossReactionSession, error) {
	if g == nil || g.Repo == nil {
		return nil, nil
	}
	return g.withSession(ctx, now, func(sess *models.LossReactionSession) {
		sess.CooldownUntil = nil
	})
}

func (g *Governor) withSession(ctx context.Context, now time.Time, apply func(*models.LossReactionSession)) (*models.LossReactionSession, error) {
	var lastErr error
	for attempt := 0; attempt < governorWriteAttempts; attempt++ {
		sess, err := g.loadOrCreate(ctx, now)
		if err != nil {
			return nil, err
		}
		apply(sess)
		err = g.Repo.UpdateLossSessionVersioned(ctx, sess)
		if err == nil {
			return sess, nil
		}
		if !errors.Is(err, repository.ErrVersionConflict) {
			return nil, err
		}
		lastErr = err
		if g.Logger != nil {
			g.Logger.Debug("governor: session write conflict, retrying",
				zap.Int("attempt", attempt+1),
			)
		}
	}
	return nil, lastErr
}

func (g *Governor) loadOrCreate(ctx context.Context, now time.Time) (*models.LossReactionSession, error) {
	day := tradingDay(now)
	sess, err := g.Repo.GetLossSessionByDay(ctx, day)
	if err != nil {
		return nil, err
	}
	if sess != nil {
		return sess, nil
	}

	baseline := decimal.Zero
	if g.Equity != nil {
		if eq, eqErr := g.Equity(ctx); eqErr == nil {
			baseline = eq
		} else if g.Logger != nil {
			g.Logger.Warn("governor: equity unavailable for new day", zap.Error(eqErr))
		}
	}
	fresh := &models.LossReactionSession{
		TradingDay:     day,
		SizeMultiplier: one,
		DayStartEquity: baseline,
	}
	if err := g.Repo.InsertLossSession(ctx, fresh); err != nil {
		// Lost a creation race; the winner's row is authoritative.
		existing, getErr := g.Repo.GetLossSessionByDay(ctx, day)
		if getErr == nil && existing != nil {
			return existing, nil
		}
		return nil, err
	}
	return fresh, nil
}
