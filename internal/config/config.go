package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App    AppConfig    `mapstructure:"app"`
	Server ServerConfig `mapstructure:"server"`
	Log    LogConfig    `mapstructure:"log"`
	DB     DBConfig     `mapstructure:"db"`
	Cron   CronConfig   `mapstructure:"cron"`

	MarketData MarketDataConfig `mapstructure:"marketdata"`
	Execution  ExecutionConfig  `mapstructure:"execution"`
	Risk       RiskConfig       `mapstructure:"risk"`
	Governor   GovernorConfig   `mapstructure:"governor"`
	Drought    DroughtConfig    `mapstructure:"drought"`
	Canary     CanaryConfig     `mapstructure:"canary"`
	Fitness    FitnessConfig    `mapstructure:"fitness"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
	// AccountID is the simulated account every order books against.
	AccountID string `mapstructure:"account_id"`
}

type ServerConfig struct {
	HTTPAddr string `mapstructure:"http_addr"`
	// AdminToken guards risk-control commands. Empty means those commands
	// are refused outright.
	AdminToken string `mapstructure:"admin_token"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Timezone        string        `mapstructure:"timezone"`
}

type CronConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Fitness  string `mapstructure:"fitness"`
	Snapshot string `mapstructure:"snapshot"`
	Drought  string `mapstructure:"drought"`
	ArmSweep string `mapstructure:"arm_sweep"`
}

type MarketDataConfig struct {
	Poll   PricePollConfig   `mapstructure:"poll"`
	Stream PriceStreamConfig `mapstructure:"stream"`
	// MaxPriceAge is the freshness gate: rows older than this are treated
	// as unavailable by the execution engine.
	MaxPriceAge time.Duration `mapstructure:"max_price_age"`
}

type PricePollConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Endpoint     string        `mapstructure:"endpoint"`
	Symbols      []string      `mapstructure:"symbols"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

type PriceStreamConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	URL     string   `mapstructure:"url"`
	Symbols []string `mapstructure:"symbols"`
}

type ExecutionConfig struct {
	StartingCash   float64 `mapstructure:"starting_cash"`
	SlippageMinPct float64 `mapstructure:"slippage_min_pct"`
	SlippageMaxPct float64 `mapstructure:"slippage_max_pct"`
	FeePct         float64 `mapstructure:"fee_pct"`
	// Seed fixes the slippage RNG; 0 seeds from the clock.
	Seed          int64 `mapstructure:"seed"`
	CommitRetries int   `mapstructure:"commit_retries"`
}

type RiskConfig struct {
	MaxTradePct    float64 `mapstructure:"max_trade_pct"`
	MaxPositionPct float64 `mapstructure:"max_position_pct"`
}

type GovernorConfig struct {
	MaxConsecutiveLosses int           `mapstructure:"max_consecutive_losses"`
	Cooldown             time.Duration `mapstructure:"cooldown"`
	HalveThresholdPct    float64       `mapstructure:"halve_threshold_pct"`
	DayStopThresholdPct  float64       `mapstructure:"day_stop_threshold_pct"`
}

type DroughtConfig struct {
	ShortWindow    time.Duration `mapstructure:"short_window"`
	LongWindow     time.Duration `mapstructure:"long_window"`
	ShortMinHolds  int           `mapstructure:"short_min_holds"`
	ShortMaxOrders int           `mapstructure:"short_max_orders"`
	LongMinHolds   int           `mapstructure:"long_min_holds"`
	LongMaxOrders  int           `mapstructure:"long_max_orders"`
}

type CanaryConfig struct {
	DefaultDuration time.Duration `mapstructure:"default_duration"`
	MaxDuration     time.Duration `mapstructure:"max_duration"`
	MaxLiveOrders   int           `mapstructure:"max_live_orders"`
	DailyLiveCap    int           `mapstructure:"daily_live_cap"`
}

type FitnessConfig struct {
	// PnLScale is the tanh normalization scale for realized P&L.
	PnLScale           float64 `mapstructure:"pnl_scale"`
	MaxTradesPerDay    float64 `mapstructure:"max_trades_per_day"`
	FeeProfitThreshold float64 `mapstructure:"fee_profit_threshold"`
	// LookbackDays limits the replayed fill history; 0 replays everything.
	LookbackDays int `mapstructure:"lookback_days"`
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("EVO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetDefault("app.env", "dev")
	v.SetDefault("app.account_id", "primary")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("server.admin_token", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("db.max_open_conns", 20)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("db.timezone", "UTC")
	v.SetDefault("cron.enabled", true)
	v.SetDefault("cron.fitness", "@every 1h")
	v.SetDefault("cron.snapshot", "@every 1h")
	v.SetDefault("cron.drought", "@every 1m")
	v.SetDefault("cron.arm_sweep", "@every 1m")

	v.SetDefault("marketdata.poll.enabled", true)
	v.SetDefault("marketdata.poll.endpoint", "https://api.binance.com/api/v3/ticker/price")
	v.SetDefault("marketdata.poll.symbols", []string{"BTCUSDT", "ETHUSDT"})
	v.SetDefault("marketdata.poll.poll_interval", "2s")
	v.SetDefault("marketdata.poll.timeout", "10s")
	v.SetDefault("marketdata.stream.enabled", false)
	v.SetDefault("marketdata.stream.url", "wss://stream.binance.com:9443/stream")
	v.SetDefault("marketdata.stream.symbols", []string{"BTCUSDT", "ETHUSDT"})
	v.SetDefault("marketdata.max_price_age", "30s")

	v.SetDefault("execution.starting_cash", 100000)
	v.SetDefault("execution.slippage_min_pct", 0.0005)
	v.SetDefault("execution.slippage_max_pct", 0.002)
	v.SetDefault("execution.fee_pct", 0.001)
	v.SetDefault("execution.seed", 0)
	v.SetDefault("execution.commit_retries", 3)

	v.SetDefault("risk.max_trade_pct", 0.10)
	v.SetDefault("risk.max_position_pct", 0.25)

	v.SetDefault("governor.max_consecutive_losses", 3)
	v.SetDefault("governor.cooldown", "30m")
	v.SetDefault("governor.halve_threshold_pct", 0.03)
	v.SetDefault("governor.day_stop_threshold_pct", 0.05)

	v.SetDefault("drought.short_window", "6h")
	v.SetDefault("drought.long_window", "48h")
	v.SetDefault("drought.short_min_holds", 12)
	v.SetDefault("drought.short_max_orders", 0)
	v.SetDefault("drought.long_min_holds", 48)
	v.SetDefault("drought.long_max_orders", 2)

	v.SetDefault("canary.default_duration", "30m")
	v.SetDefault("canary.max_duration", "4h")
	v.SetDefault("canary.max_live_orders", 1)
	v.SetDefault("canary.daily_live_cap", 5)

	v.SetDefault("fitness.pnl_scale", 1000)
	v.SetDefault("fitness.max_trades_per_day", 20)
	v.SetDefault("fitness.fee_profit_threshold", 0.30)
	v.SetDefault("fitness.lookback_days", 0)

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
