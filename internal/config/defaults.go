package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultBaseURL      = "https://esi.evetech.net"
	DefaultTokenURL     = "https://login.eveonline.com/v2/oauth/token"
	DefaultUserAgent    = "evetrack"
	DefaultAPITimeout   = 30 * time.Second
	DefaultMaxRetries   = 3
	DefaultPageDelay    = 100 * time.Millisecond
	DefaultCacheTTL     = 60 * time.Second
	DefaultDBPort       = 5432
	DefaultDBSSLMode    = "prefer"
	DefaultMaxConns     = 10
	DefaultMinConns     = 2
	DefaultPollInterval = 2 * time.Minute
	DefaultConcurrency  = 4
	DefaultPollRetries  = 3
	DefaultRetryBackoff = time.Second
	DefaultBuyFeePct    = 0.015
	DefaultSellFeePct   = 0.015
	DefaultStepDelay    = 5 * time.Second
	DefaultBufferSize   = 1024
	DefaultMetricsPort  = 9090
	DefaultMetricsPath  = "/metrics"
)

func (c *TrackerConfig) applyDefaults() {
	// API defaults
	if c.API.BaseURL == "" {
		c.API.BaseURL = DefaultBaseURL
	}
	if c.API.UserAgent == "" {
		c.API.UserAgent = DefaultUserAgent
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = DefaultAPITimeout
	}
	if c.API.MaxRetries == 0 {
		c.API.MaxRetries = DefaultMaxRetries
	}
	if c.API.PageDelay == 0 {
		c.API.PageDelay = DefaultPageDelay
	}
	if c.API.CacheTTL == 0 {
		c.API.CacheTTL = DefaultCacheTTL
	}

	// SSO defaults
	if c.SSO.TokenURL == "" {
		c.SSO.TokenURL = DefaultTokenURL
	}

	// Database defaults
	if c.Database.Port == 0 {
		c.Database.Port = DefaultDBPort
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = DefaultDBSSLMode
	}
	if c.Database.MaxConns == 0 {
		c.Database.MaxConns = DefaultMaxConns
	}
	if c.Database.MinConns == 0 {
		c.Database.MinConns = DefaultMinConns
	}

	// Poller defaults
	if c.Poller.Interval == 0 {
		c.Poller.Interval = DefaultPollInterval
	}
	if c.Poller.Concurrency == 0 {
		c.Poller.Concurrency = DefaultConcurrency
	}
	if c.Poller.MaxRetries == 0 {
		c.Poller.MaxRetries = DefaultPollRetries
	}
	if c.Poller.RetryBackoff == 0 {
		c.Poller.RetryBackoff = DefaultRetryBackoff
	}

	// Fee defaults
	if c.Fees.BuyPct == 0 {
		c.Fees.BuyPct = DefaultBuyFeePct
	}
	if c.Fees.SellPct == 0 {
		c.Fees.SellPct = DefaultSellFeePct
	}

	// Backfill defaults
	if c.Backfill.StepDelay == 0 {
		c.Backfill.StepDelay = DefaultStepDelay
	}

	// Events defaults
	if c.Events.BufferSize == 0 {
		c.Events.BufferSize = DefaultBufferSize
	}

	// Metrics defaults
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
}
