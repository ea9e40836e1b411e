package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"evotrade/internal/config"
	"evotrade/internal/models"
)

// Runtime switches read by the collectors. Declared next to their reader;
// boot seeding lives in internal/service.
const (
	SettingPollEnabled   = "feature.marketdata_poll"
	SettingStreamEnabled = "feature.marketdata_stream"
)

// Flags is the runtime switch lookup, satisfied by the system settings
// service.
type Flags interface {
	IsEnabled(ctx context.Context, key string, fallback bool) bool
}

// PriceStore is the single write path both collectors share.
type PriceStore interface {
	UpsertMarketPrice(ctx context.Context, item *models.MarketPrice) error
}

// Poller polls the exchange REST ticker endpoint and keeps market_prices
// fresh. It is "no key" and minimal: one GET per symbol per interval,
// default endpoint https://api.binance.com/api/v3/ticker/price.
type Poller struct {
	HTTP   *http.Client
	Store  PriceStore
	Logger *zap.Logger
	Flags  Flags
	Config config.PricePollConfig

	mu        sync.Mutex
	lastPoll  *time.Time
	lastError *string
	status    string
}

type Health struct {
	Status     string
	LastPollAt *time.Time
	LastError  *string
}

const defaultPollEndpoint = "https://api.binance.com/api/v3/ticker/price"

func (p *Poller) Run(ctx context.Context) error {
	if p == nil || p.Store == nil {
		return nil
	}
	if p.HTTP == nil {
		timeout := p.Config.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		p.HTTP = &http.Client{Timeout: timeout}
	}
	interval := p.Config.PollInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}

	// Run immediately once.
	p.pollOnce(ctx)

	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			p.pollOnce(ctx)
		}
	}
}

func (p *Poller) Health() Health {
	if p == nil {
		return Health{Status: "unknown"}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	status := p.status
	if strings.TrimSpace(status) == "" {
		status = "unknown"
	}
	return Health{
		Status:     status,
		LastPollAt: p.lastPoll,
		LastError:  p.lastError,
	}
}

func (p *Poller) pollOnce(ctx context.Context) {
	now := time.Now().UTC()
	if p.Flags != nil && !p.Flags.IsEnabled(ctx, SettingPollEnabled, true) {
		return
	}
	endpoint := strings.TrimSpace(p.Config.Endpoint)
	if endpoint == "" {
		endpoint = defaultPollEndpoint
	}
	if len(p.Config.Symbols) == 0 {
		p.setHealth(now, "down", strPtr("no symbols configured"))
		return
	}

	var lastErr error
	for _, symbol := range p.Config.Symbols {
		symbol = strings.ToUpper(strings.TrimSpace(symbol))
		if symbol == "" {
			continue
		}
		price, err := p.fetchPrice(ctx, endpoint, symbol)
		if err != nil {
			lastErr = fmt.Errorf("%s: %w", symbol, err)
			continue
		}
		item := &models.MarketPrice{
			Symbol:    symbol,
			Price:     price,
			Source:    "binance_rest",
			UpdatedAt: now,
		}
		if err := p.Store.UpsertMarketPrice(ctx, item); err != nil {
			lastErr = fmt.Errorf("%s: %w", symbol, err)
		}
	}
	if lastErr != nil {
		p.setHealth(now, "down", strPtr(lastErr.Error()))
		if p.Logger != nil {
			p.Logger.Warn("marketdata: poll failed", zap.Error(lastErr))
		}
		return
	}
	p.setHealth(now, "healthy", nil)
}

func (p *Poller) fetchPrice(ctx context.Context, endpoint, symbol string) (decimal.Decimal, error) {
	target := endpoint + "?symbol=" + url.QueryEscape(symbol)
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	resp, err := p.HTTP.Do(req)
	if err != nil {
		return decimal.Zero, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decimal.Zero, fmt.Errorf("http %d", resp.StatusCode)
	}
	var parsed struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return decimal.Zero, err
	}
	price, err := decimal.NewFromString(strings.TrimSpace(parsed.Price))
	if err != nil || !price.IsPositive() {
		return decimal.Zero, fmt.Errorf("invalid price %q", parsed.Price)
	}
	return price, nil
}

func (p *Poller) setHealth(ts time.Time, status string, errStr *string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastPoll = &ts
	p.status = status
	p.lastError = errStr
}

func strPtr(s string) *string { return &s }
