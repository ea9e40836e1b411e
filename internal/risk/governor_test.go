package risk

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"evotrade/internal/config"
	"evotrade/internal/repository"
)

func testGovernor(repo *stubRepo) *Governor {
	return &Governor{
		Config: config.GovernorConfig{
			MaxConsecutiveLosses: 3,
			Cooldown:             30 * time.Minute,
			HalveThresholdPct:    0.03,
			DayStopThresholdPct:  0.05,
		},
		Repo: repo,
		Equity: func(ctx context.Context) (decimal.Decimal, error) {
			return decimal.NewFromInt(100000), nil
		},
	}
}

func TestGovernor_ThreeConsecutiveLossesStopDay(t *testing.T) {
	repo := newStubRepo()
	g := testGovernor(repo)
	ctx := context.Background()
	now := time.Date(2025, 6, 2, 14, 0, 0, 0, time.UTC)

	loss := decimal.NewFromInt(-100)
	for i := 0; i < 2; i++ {
		sess, err := g.TradeCompleted(ctx, loss, now)
		if err != nil {
			t.Fatalf("TradeCompleted: %v", err)
		}
		if sess.DayStopped {
			t.Fatalf("stopped after %d losses, want threshold 3", i+1)
		}
	}

	sess, err := g.TradeCompleted(ctx, loss, now)
	if err != nil {
		t.Fatalf("TradeCompleted: %v", err)
	}
	if !sess.DayStopped {
		t.Fatal("day not stopped after 3 consecutive losses")
	}
	if sess.DayStopReason != "3 consecutive losses" {
		t.Fatalf("reason=%q want=%q", sess.DayStopReason, "3 consecutive losses")
	}

	blocked, reason, err := g.Blocked(ctx, now)
	if err != nil {
		t.Fatalf("Blocked: %v", err)
	}
	if !blocked || !strings.Contains(reason, "3 consecutive losses") {
		t.Fatalf("blocked=%v reason=%q", blocked, reason)
	}

	// A further loss keeps the original stop reason.
	sess, err = g.TradeCompleted(ctx, loss, now)
	if err != nil {
		t.Fatalf("TradeCompleted: %v", err)
	}
	if sess.ConsecutiveLosses != 4 || sess.DayStopReason != "3 consecutive losses" {
		t.Fatalf("losses=%d reason=%q", sess.ConsecutiveLosses, sess.DayStopReason)
	}
}

func TestGovernor_WinResetsStreakCooldownAndSize(t *testing.T) {
	repo := newStubRepo()
	g := testGovernor(repo)
	ctx := context.Background()
	now := time.Date(2025, 6, 2, 14, 0, 0, 0, time.UTC)

	if _, err := g.TradeCompleted(ctx, decimal.NewFromInt(-50), now); err != nil {
		t.Fatalf("loss: %v", err)
	}
	sess, err := g.TradeCompleted(ctx, decimal.NewFromInt(75), now.Add(time.Minute))
	if err != nil {
		t.Fatalf("win: %v", err)
	}
	if sess.ConsecutiveLosses != 0 {
		t.Fatalf("losses=%d want=0", sess.ConsecutiveLosses)
	}
	if sess.CooldownUntil != nil {
		t.Fatalf("cooldown=%v want cleared", sess.CooldownUntil)
	}
	if sess.SizeMultiplier.Cmp(decimal.New(1, 0)) != 0 {
		t.Fatalf("multiplier=%s want=1", sess.SizeMultiplier.String())
	}
}

func TestGovernor_CooldownBlocksUntilExpiry(t *testing.T) {
	repo := newStubRepo()
	g := testGovernor(repo)
	ctx := context.Background()
	now := time.Date(2025, 6, 2, 14, 0, 0, 0, time.UTC)

	if _, err := g.TradeCompleted(ctx, decimal.NewFromInt(-10), now); err != nil {
		t.Fatalf("loss: %v", err)
	}

	blocked, reason, err := g.Blocked(ctx, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("Blocked: %v", err)
	}
	if !blocked || !strings.Contains(reason, "cooldown") {
		t.Fatalf("blocked=%v reason=%q want cooldown block", blocked, reason)
	}

	blocked, _, err = g.Blocked(ctx, now.Add(31*time.Minute))
	if err != nil {
		t.Fatalf("Blocked: %v", err)
	}
	if blocked {
		t.Fatal("still blocked after cooldown expired")
	}
}

func TestGovernor_DayDrawdownHalvesThenStops(t *testing.T) {
	repo := newStubRepo()
	g := testGovernor(repo)
	ctx := context.Background()
	now := time.Date(2025, 6, 2, 14, 0, 0, 0, time.UTC)

	// -3.5% of the 100k baseline: under the halve line, above the stop line.
	sess, err := g.TradeCompleted(ctx, decimal.NewFromInt(-3500), now)
	if err != nil {
		t.Fatalf("TradeCompleted: %v", err)
	}
	if sess.SizeMultiplier.Cmp(decimal.New(5, -1)) != 0 {
		t.Fatalf("multiplier=%s want=0.5", sess.SizeMultiplier.String())
	}
	if sess.DayStopped {
		t.Fatal("stopped at -3.5%, stop line is -5%")
	}

	// Day total -5.5% forces the stop regardless of the streak length.
	sess, err = g.TradeCompleted(ctx, decimal.NewFromInt(-2000), now.Add(time.Minute))
	if err != nil {
		t.Fatalf("TradeCompleted: %v", err)
	}
	if !sess.DayStopped {
		t.Fatal("day not stopped at -5.5%")
	}
	if !strings.Contains(sess.DayStopReason, "5.50") || !strings.Contains(sess.DayStopReason, "5.00") {
		t.Fatalf("reason=%q want day loss and limit percentages", sess.DayStopReason)
	}
	if sess.SizeMultiplier.Cmp(decimal.New(5, -1)) != 0 {
		t.Fatalf("multiplier=%s want unchanged 0.5", sess.SizeMultiplier.String())
	}
}

func TestGovernor_WinWhileUnderWaterKeepsHalvedSize(t *testing.T) {
	repo := newStubRepo()
	g := testGovernor(repo)
	ctx := context.Background()
	now := time.Date(2025, 6, 2, 14, 0, 0, 0, time.UTC)

	if _, err := g.TradeCompleted(ctx, decimal.NewFromInt(-4000), now); err != nil {
		t.Fatalf("loss: %v", err)
	}
	sess, err := g.TradeCompleted(ctx, decimal.NewFromInt(500), now.Add(time.Minute))
	if err != nil {
		t.Fatalf("win: %v", err)
	}
	if sess.ConsecutiveLosses != 0 || sess.CooldownUntil != nil {
		t.Fatalf("losses=%d cooldown=%v want reset", sess.ConsecutiveLosses, sess.CooldownUntil)
	}
	// Day is still -3.5%, so the post-reset drawdown check halves again.
	if sess.SizeMultiplier.Cmp(decimal.New(5, -1)) != 0 {
		t.Fatalf("multiplier=%s want=0.5", sess.SizeMultiplier.String())
	}
}

func TestGovernor_ClearCooldownKeepsStreak(t *testing.T) {
	repo := newStubRepo()
	g := testGovernor(repo)
	ctx := context.Background()
	now := time.Date(2025, 6, 2, 14, 0, 0, 0, time.UTC)

	for i := 0; i < 2; i++ {
		if _, err := g.TradeCompleted(ctx, decimal.NewFromInt(-10), now); err != nil {
			t.Fatalf("loss: %v", err)
		}
	}
	sess, err := g.ClearCooldown(ctx, now)
	if err != nil {
		t.Fatalf("ClearCooldown: %v", err)
	}
	if sess.CooldownUntil != nil {
		t.Fatalf("cooldown=%v want cleared", sess.CooldownUntil)
	}
	if sess.ConsecutiveLosses != 2 {
		t.Fatalf("losses=%d want=2", sess.ConsecutiveLosses)
	}
}

func TestGovernor_ResetSessionRebaselines(t *testing.T) {
	repo := newStubRepo()
	g := testGovernor(repo)
	ctx := context.Background()
	now := time.Date(2025, 6, 2, 14, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		if _, err := g.TradeCompleted(ctx, decimal.NewFromInt(-100), now); err != nil {
			t.Fatalf("loss: %v", err)
		}
	}
	sess, err := g.ResetSession(ctx, now)
	if err != nil {
		t.Fatalf("ResetSession: %v", err)
	}
	if sess.DayStopped || sess.ConsecutiveLosses != 0 || sess.CooldownUntil != nil {
		t.Fatalf("session not reset: %+v", sess)
	}
	if sess.SizeMultiplier.Cmp(decimal.New(1, 0)) != 0 {
		t.Fatalf("multiplier=%s want=1", sess.SizeMultiplier.String())
	}
	if !sess.DayRealizedPnL.IsZero() {
		t.Fatalf("day pnl=%s want=0", sess.DayRealizedPnL.String())
	}
	if sess.DayStartEquity.Cmp(decimal.NewFromInt(100000)) != 0 {
		t.Fatalf("baseline=%s want=100000", sess.DayStartEquity.String())
	}
	if sess.TradesToday != 3 {
		t.Fatalf("trades=%d want factual count kept", sess.TradesToday)
	}

	blocked, _, err := g.Blocked(ctx, now)
	if err != nil {
		t.Fatalf("Blocked: %v", err)
	}
	if blocked {
		t.Fatal("still blocked after reset")
	}
}

func TestGovernor_RetriesVersionConflicts(t *testing.T) {
	repo := newStubRepo()
	g := testGovernor(repo)
	ctx := context.Background()
	now := time.Date(2025, 6, 2, 14, 0, 0, 0, time.UTC)

	repo.failUpdates = 2
	sess, err := g.TradeCompleted(ctx, decimal.NewFromInt(-10), now)
	if err != nil {
		t.Fatalf("TradeCompleted with 2 conflicts: %v", err)
	}
	if sess.TradesToday != 1 {
		t.Fatalf("trades=%d want=1", sess.TradesToday)
	}

	repo.failUpdates = 3
	if _, err := g.TradeCompleted(ctx, decimal.NewFromInt(-10), now); !errors.Is(err, repository.ErrVersionConflict) {
		t.Fatalf("err=%v want=ErrVersionConflict after exhausted retries", err)
	}
}

func TestGovernor_NewDayStartsFresh(t *testing.T) {
	repo := newStubRepo()
	g := testGovernor(repo)
	ctx := context.Background()
	day1 := time.Date(2025, 6, 2, 23, 50, 0, 0, time.UTC)
	day2 := time.Date(2025, 6, 3, 0, 5, 0, 0, time.UTC)

	if _, err := g.TradeCompleted(ctx, decimal.NewFromInt(-10), day1); err != nil {
		t.Fatalf("loss: %v", err)
	}

	blocked, _, err := g.Blocked(ctx, day2)
	if err != nil {
		t.Fatalf("Blocked: %v", err)
	}
	if blocked {
		t.Fatal("yesterday's cooldown leaked into the new day")
	}

	sess, err := g.State(ctx, day2)
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if sess.TradingDay != "2025-06-03" || sess.ConsecutiveLosses != 0 {
		t.Fatalf("day=%s losses=%d want fresh session", sess.TradingDay, sess.ConsecutiveLosses)
	}
	if len(repo.sessionsByDay) != 2 {
		t.Fatalf("sessions=%d want=2", len(repo.sessionsByDay))
	}
}
