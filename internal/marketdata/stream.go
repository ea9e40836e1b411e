package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"evotrade/internal/config"
	"evotrade/internal/models"
)

const defaultStreamURL = "wss://stream.binance.com:9443/stream"

// Stream consumes the exchange combined miniTicker websocket feed and
// upserts every tick. It reconnects forever with jittered exponential
// backoff; the poller remains the fallback when the stream is down.
type Stream struct {
	Store  PriceStore
	Logger *zap.Logger
	Flags  Flags
	Config config.PriceStreamConfig

	HeartbeatInterval time.Duration
	PingTimeout       time.Duration
	BackoffMin        time.Duration
	BackoffMax        time.Duration

	seenFirst bool
}

// combinedFrame is the envelope of the combined-stream endpoint. Raw single
// stream endpoints deliver the payload without it.
type combinedFrame struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

type miniTicker struct {
	EventType string `json:"e"`
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	Close     string `json:"c"`
}

func (s *Stream) Run(ctx context.Context) error {
	if s == nil || s.Store == nil {
		return nil
	}
	if s.HeartbeatInterval <= 0 {
		s.HeartbeatInterval = 20 * time.Second
	}
	if s.PingTimeout <= 0 {
		s.PingTimeout = 5 * time.Second
	}
	if s.BackoffMin <= 0 {
		s.BackoffMin = 1 * time.Second
	}
	if s.BackoffMax <= 0 {
		s.BackoffMax = 30 * time.Second
	}

	target, err := s.streamURL()
	if err != nil {
		return err
	}

	backoff := s.BackoffMin
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if s.Flags != nil && !s.Flags.IsEnabled(ctx, SettingStreamEnabled, false) {
			if err := sleepWithJitter(ctx, 10*time.Second); err != nil {
				return err
			}
			continue
		}

		conn, _, err := websocket.Dial(ctx, target, nil)
		if err != nil {
			if s.Logger != nil {
				s.Logger.Warn("marketdata: stream connect failed", zap.Error(err))
			}
			if err := sleepWithJitter(ctx, backoff); err != nil {
				return err
			}
			backoff = nextBackoff(backoff, s.BackoffMax)
			continue
		}
		if s.Logger != nil {
			s.Logger.Info("marketdata: stream connected", zap.Int("symbols", len(s.Config.Symbols)))
		}
		backoff = s.BackoffMin

		err = s.consume(ctx, conn)
		_ = conn.Close(websocket.StatusNormalClosure, "reconnect")
		if err == nil || errors.Is(err, context.Canceled) {
			return err
		}
		if s.Logger != nil {
			s.Logger.Warn("marketdata: stream dropped", zap.Error(err))
		}
		if err := sleepWithJitter(ctx, backoff); err != nil {
			return err
		}
		backoff = nextBackoff(backoff, s.BackoffMax)
	}
}

func (s *Stream) consume(ctx context.Context, conn *websocket.Conn) error {
	heartbeatErr := make(chan error, 1)
	heartbeatCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		ticker := time.NewTicker(s.HeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-heartbeatCtx.Done():
				heartbeatErr <- heartbeatCtx.Err()
				return
			case <-ticker.C:
				pingCtx, cancelPing := context.WithTimeout(heartbeatCtx, s.PingTimeout)
				err := conn.Ping(pingCtx)
				cancelPing()
				if err != nil {
					heartbeatErr <- err
					return
				}
			}
		}
	}()

	for {
		select {
		case err := <-heartbeatErr:
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		default:
		}
		_, raw, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		if s.Logger != nil && !s.seenFirst {
			s.seenFirst = true
			s.Logger.Info("marketdata: stream first message")
		}
		if err := s.handleFrame(ctx, raw, time.Now().UTC()); err != nil && s.Logger != nil {
			s.Logger.Warn("marketdata: stream frame skipped", zap.Error(err))
		}
	}
}

func (s *Stream) handleFrame(ctx context.Context, raw []byte, now time.Time) error {
	var frame combinedFrame
	payload := raw
	if err := json.Unmarshal(raw, &frame); err == nil && len(frame.Data) > 0 {
		payload = frame.Data
	}
	var tick miniTicker
	if err := json.Unmarshal(payload, &tick); err != nil {
		return err
	}
	if tick.Symbol == "" || tick.Close == "" {
		return nil
	}
	price, err := decimal.NewFromString(strings.TrimSpace(tick.Close))
	if err != nil || !price.IsPositive() {
		return fmt.Errorf("invalid close %q for %s", tick.Close, tick.Symbol)
	}
	item := &models.MarketPrice{
		Symbol:    strings.ToUpper(tick.Symbol),
		Price:     price,
		Source:    "binance_ws",
		UpdatedAt: now,
	}
	if tick.EventTime > 0 {
		ts := time.UnixMilli(tick.EventTime).UTC()
		item.TradeTS = &ts
	}
	return s.Store.UpsertMarketPrice(ctx, item)
}

func (s *Stream) streamURL() (string, error) {
	base := strings.TrimSpace(s.Config.URL)
	if base == "" {
		base = defaultStreamURL
	}
	streams := make([]string, 0, len(s.Config.Symbols))
	for _, symbol := range s.Config.Symbols {
		symbol = strings.ToLower(strings.TrimSpace(symbol))
		if symbol == "" {
			continue
		}
		streams = append(streams, symbol+"@miniTicker")
	}
	if len(streams) == 0 {
		return "", fmt.Errorf("no stream symbols configured")
	}
	return base + "?streams=" + strings.Join(streams, "/"), nil
}

func nextBackoff(current, max time.Duration) time.Duration {
	next := current * 2
	if next > max {
		return max
	}
	return next
}

func sleepWithJitter(ctx context.Context, base time.Duration) error {
	if base <= 0 {
		return nil
	}
	jitter := time.Duration(rand.Int63n(int64(base / 2)))
	timer := time.NewTimer(base + jitter)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
