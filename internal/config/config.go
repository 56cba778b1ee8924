package config

import "time"

// TrackerConfig is the root configuration for a tracker instance.
type TrackerConfig struct {
	API      APIConfig      `yaml:"api"`
	SSO      SSOConfig      `yaml:"sso"`
	Database DBConfig       `yaml:"database"`
	Poller   PollerConfig   `yaml:"poller"`
	Fees     FeesConfig     `yaml:"fees"`
	Backfill BackfillConfig `yaml:"backfill"`
	Events   EventsConfig   `yaml:"events"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// APIConfig holds upstream market API settings.
type APIConfig struct {
	BaseURL    string        `yaml:"base_url"`
	UserAgent  string        `yaml:"user_agent"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
	PageDelay  time.Duration `yaml:"page_delay"` // Delay between pages of one paginated fetch
	CacheTTL   time.Duration `yaml:"cache_ttl"`  // Fallback expiry when the upstream omits Expires
}

// SSOConfig holds the credential exchange endpoint settings.
type SSOConfig struct {
	TokenURL     string `yaml:"token_url"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
}

// DBConfig holds the PostgreSQL connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// PollerConfig holds the per-owner polling loop settings.
type PollerConfig struct {
	Interval     time.Duration `yaml:"interval"`
	Concurrency  int           `yaml:"concurrency"`
	MaxRetries   int           `yaml:"max_retries"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`
}

// FeesConfig holds the estimated broker fee percentages, as fractions
// (0.015 = 1.5%). The upstream journal does not itemize broker fees per
// transaction, so they are always estimated.
type FeesConfig struct {
	BuyPct  float64 `yaml:"buy_pct"`
	SellPct float64 `yaml:"sell_pct"`
}

// BackfillConfig holds the gradual history backfill settings.
type BackfillConfig struct {
	StepDelay time.Duration `yaml:"step_delay"` // Pause between history pages during the cursor walk
}

// EventsConfig holds the notification buffer settings.
type EventsConfig struct {
	BufferSize int `yaml:"buffer_size"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}
