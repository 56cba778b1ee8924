// Package roster manages the set of tracked owners and their
// per-owner settings.
package roster

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/mwerner/evetrack/internal/model"
)

// Repository persists owners. New owners start with backfill armed so
// the poller picks up their history on the next cycle.
type Repository interface {
	Owners(ctx context.Context) ([]model.Owner, error)
	Owner(ctx context.Context, ownerID int64) (*model.Owner, error)
	AddOwner(ctx context.Context, owner model.Owner) error
	RemoveOwner(ctx context.Context, ownerID int64) error
	UpdateRefreshToken(ctx context.Context, ownerID int64, refreshToken string) error
	SetNotificationsEnabled(ctx context.Context, ownerID int64, enabled bool) error
	SetWalletThreshold(ctx context.Context, ownerID int64, threshold decimal.Decimal) error
}

// Setting names one adjustable per-owner setting.
type Setting string

const (
	SettingNotifications   Setting = "notifications"
	SettingWalletThreshold Setting = "wallet_threshold"
)

// ParseSetting maps a user-supplied setting name to a Setting.
func ParseSetting(name string) (Setting, error) {
	switch Setting(name) {
	case SettingNotifications, SettingWalletThreshold:
		return Setting(name), nil
	default:
		return "", fmt.Errorf("unknown setting %q", name)
	}
}

// Apply parses value for the setting and writes it through repo.
func Apply(ctx context.Context, repo Repository, ownerID int64, setting Setting, value string) error {
	switch setting {
	case SettingNotifications:
		switch value {
		case "on", "true":
			return repo.SetNotificationsEnabled(ctx, ownerID, true)
		case "off", "false":
			return repo.SetNotificationsEnabled(ctx, ownerID, false)
		default:
			return fmt.Errorf("setting %s wants on/off, got %q", setting, value)
		}
	case SettingWalletThreshold:
		threshold, err := decimal.NewFromString(value)
		if err != nil {
			return fmt.Errorf("setting %s wants a number: %w", setting, err)
		}
		if threshold.IsNegative() {
			return fmt.Errorf("setting %s cannot be negative", setting)
		}
		return repo.SetWalletThreshold(ctx, ownerID, threshold)
	default:
		return fmt.Errorf("unknown setting %q", setting)
	}
}
