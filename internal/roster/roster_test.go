package roster

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/mwerner/evetrack/internal/model"
)

type fakeRepo struct {
	notifications map[int64]bool
	thresholds    map[int64]decimal.Decimal
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		notifications: make(map[int64]bool),
		thresholds:    make(map[int64]decimal.Decimal),
	}
}

func (f *fakeRepo) Owners(context.Context) ([]model.Owner, error)      { return nil, nil }
func (f *fakeRepo) Owner(context.Context, int64) (*model.Owner, error) { return nil, nil }
func (f *fakeRepo) AddOwner(context.Context, model.Owner) error        { return nil }
func (f *fakeRepo) RemoveOwner(context.Context, int64) error           { return nil }
func (f *fakeRepo) UpdateRefreshToken(context.Context, int64, string) error {
	return nil
}

func (f *fakeRepo) SetNotificationsEnabled(_ context.Context, ownerID int64, enabled bool) error {
	f.notifications[ownerID] = enabled
	return nil
}

func (f *fakeRepo) SetWalletThreshold(_ context.Context, ownerID int64, threshold decimal.Decimal) error {
	f.thresholds[ownerID] = threshold
	return nil
}

func TestParseSetting(t *testing.T) {
	if _, err := ParseSetting("notifications"); err != nil {
		t.Errorf("notifications: %v", err)
	}
	if _, err := ParseSetting("wallet_threshold"); err != nil {
		t.Errorf("wallet_threshold: %v", err)
	}
	if _, err := ParseSetting("bogus"); err == nil {
		t.Error("bogus setting accepted")
	}
}

func TestApply(t *testing.T) {
	ctx := context.Background()

	t.Run("notifications", func(t *testing.T) {
		repo := newFakeRepo()
		if err := Apply(ctx, repo, 91, SettingNotifications, "off"); err != nil {
			t.Fatalf("Apply: %v", err)
		}
		if repo.notifications[91] {
			t.Error("notifications not disabled")
		}
		if err := Apply(ctx, repo, 91, SettingNotifications, "maybe"); err == nil {
			t.Error("bad boolean accepted")
		}
	})

	t.Run("wallet threshold", func(t *testing.T) {
		repo := newFakeRepo()
		if err := Apply(ctx, repo, 91, SettingWalletThreshold, "1000000.50"); err != nil {
			t.Fatalf("Apply: %v", err)
		}
		if !repo.thresholds[91].Equal(decimal.RequireFromString("1000000.50")) {
			t.Errorf("threshold = %s", repo.thresholds[91])
		}
		if err := Apply(ctx, repo, 91, SettingWalletThreshold, "-5"); err == nil {
			t.Error("negative threshold accepted")
		}
		if err := Apply(ctx, repo, 91, SettingWalletThreshold, "lots"); err == nil {
			t.Error("non-numeric threshold accepted")
		}
	})
}
