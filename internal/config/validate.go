package config

import (
	"errors"
	"fmt"
)

// Validate checks that all required fields are set and values are valid.
func (c *TrackerConfig) Validate() error {
	if c.SSO.ClientID == "" {
		return errors.New("sso.client_id is required")
	}
	if c.SSO.ClientSecret == "" {
		return errors.New("sso.client_secret is required")
	}

	if err := c.Database.validate("database"); err != nil {
		return err
	}

	if c.Poller.Concurrency < 1 {
		return errors.New("poller.concurrency must be >= 1")
	}
	if c.Poller.MaxRetries < 0 {
		return errors.New("poller.max_retries must be >= 0")
	}

	if c.Fees.BuyPct < 0 || c.Fees.BuyPct >= 1 {
		return fmt.Errorf("fees.buy_pct must be in [0, 1), got %v", c.Fees.BuyPct)
	}
	if c.Fees.SellPct < 0 || c.Fees.SellPct >= 1 {
		return fmt.Errorf("fees.sell_pct must be in [0, 1), got %v", c.Fees.SellPct)
	}

	if c.Events.BufferSize < 1 {
		return errors.New("events.buffer_size must be >= 1")
	}

	if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port)
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
