package canary

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"evotrade/internal/config"
	"evotrade/internal/models"
	"evotrade/internal/repository"
)

var (
	// ErrAlreadyArmed refuses a second overlapping session; disarm first.
	ErrAlreadyArmed = errors.New("an arm session is already active")
	// ErrDailyCapReached refuses arming once today's live fills hit the cap.
	ErrDailyCapReached = errors.New("daily live order cap reached")
	// ErrNotArmed is returned by Disarm when no session is active.
	ErrNotArmed = errors.New("no active arm session")
)

// Manager issues and revokes arm sessions, the only authorization for live
// orders. Spending a session slot happens inside the order commit, not here;
// this type only controls the session lifecycle.
type Manager struct {
	Config config.CanaryConfig
	Repo   repository.Repository
	Logger *zap.Logger
}

type ArmStatus struct {
	Armed       bool
	Session     *models.ArmSession
	DailyLimit  int
	TradesToday int64
}

func dayStart(now time.Time) time.Time {
	u := now.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// Arm opens a live-order window. Duration zero means the configured default;
// anything above the configured maximum is clamped down to it.
func (m *Manager) Arm(ctx context.Context, duration time.Duration, now time.Time) (*ArmStatus, error) {
	if m == nil || m.Repo == nil {
		return nil, errors.New("canary manager not initialized")
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}
	if duration <= 0 {
		duration = m.Config.DefaultDuration
	}
	if m.Config.MaxDuration > 0 && duration > m.Config.MaxDuration {
		duration = m.Config.MaxDuration
	}

	today, err := m.Repo.CountLiveFilledOrdersSince(ctx, dayStart(now))
	if err != nil {
		return nil, err
	}
	if m.Config.DailyLiveCap > 0 && today >= int64(m.Config.DailyLiveCap) {
		return nil, fmt.Errorf("%w: %d of %d used", ErrDailyCapReached, today, m.Config.DailyLiveCap)
	}

	active, err := m.Repo.GetActiveArmSession(ctx, now)
	if err != nil {
		return nil, err
	}
	if active != nil {
		return nil, fmt.Errorf("%w: session %s expires %s", ErrAlreadyArmed, active.ID, active.ExpiresAt.UTC().Format(time.RFC3339))
	}

	maxOrders := m.Config.MaxLiveOrders
	if maxOrders <= 0 {
		maxOrders = 1
	}
	sess := &models.ArmSession{
		ID:            uuid.NewString(),
		Mode:          models.ModeLive,
		MaxLiveOrders: maxOrders,
		ExpiresAt:     now.Add(duration).UTC(),
	}
	if err := m.Repo.InsertArmSession(ctx, sess); err != nil {
		return nil, err
	}
	if m.Logger != nil {
		m.Logger.Warn("canary: armed",
			zap.String("session_id", sess.ID),
			zap.Time("expires_at", sess.ExpiresAt),
			zap.Int("max_live_orders", sess.MaxLiveOrders),
			zap.Int64("live_fills_today", today),
		)
	}
	return &ArmStatus{
		Armed:       true,
		Session:     sess,
		DailyLimit:  m.Config.DailyLiveCap,
		TradesToday: today,
	}, nil
}

// Disarm closes the active session. An in-flight commit that already passed
// the spend check is not rolled back.
func (m *Manager) Disarm(ctx context.Context, now time.Time) (*models.ArmSession, error) {
	if m == nil || m.Repo == nil {
		return nil, errors.New("canary manager not initialized")
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}
	sess, err := m.Repo.GetLatestArmSession(ctx)
	if err != nil {
		return nil, err
	}
	if sess == nil || sess.DisarmedAt != nil {
		return nil, ErrNotArmed
	}
	if err := m.Repo.DisarmArmSession(ctx, sess.ID, now); err != nil {
		return nil, err
	}
	disarmedAt := now.UTC()
	sess.DisarmedAt = &disarmedAt
	if m.Logger != nil {
		m.Logger.Warn("canary: disarmed",
			zap.String("session_id", sess.ID),
			zap.Int("orders_executed", sess.OrdersExecuted),
		)
	}
	return sess, nil
}

// Status reports the current session, if any, plus today's live usage.
func (m *Manager) Status(ctx context.Context, now time.Time) (*ArmStatus, error) {
	if m == nil || m.Repo == nil {
		return nil, errors.New("canary manager not initialized")
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}
	today, err := m.Repo.CountLiveFilledOrdersSince(ctx, dayStart(now))
	if err != nil {
		return nil, err
	}
	active, err := m.Repo.GetActiveArmSession(ctx, now)
	if err != nil {
		return nil, err
	}
	return &ArmStatus{
		Armed:       active != nil,
		Session:     active,
		DailyLimit:  m.Config.DailyLiveCap,
		TradesToday: today,
	}, nil
}

// Sweep stamps expired sessions so status listings stay honest. The spend
// check re-verifies expiry on its own, so this is not load-bearing.
func (m *Manager) Sweep(ctx context.Context, now time.Time) (int64, error) {
	if m == nil || m.Repo == nil {
		return 0, nil
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}
	n, err := m.Repo.SweepExpiredArmSessions(ctx, now)
	if err != nil {
		return 0, err
	}
	if n > 0 && m.Logger != nil {
		m.Logger.Info("canary: swept expired sessions", zap.Int64("count", n))
	}
	return n, nil
}
