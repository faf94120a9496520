package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Cuffsss/studio/internal"
	"github.com/Cuffsss/studio/internal/storage"
)

type SettingsRequest struct {
	CheckupIntervalMinutes *int  `json:"checkup_interval_minutes" validate:"omitempty,gte=1,lte=1440"`
	AlarmIntervalMinutes   *int  `json:"alarm_interval_minutes" validate:"omitempty,gte=1,lte=1440"`
	NotificationsEnabled   *bool `json:"notifications_enabled"`
}

const settingsLookupTimeout = 2 * time.Second

// SettingsPolicy serves per-user settings to the scheduler. Saved settings
// are cached; users who never saved any get the configured defaults.
type SettingsPolicy struct {
	repo     storage.SettingsRepository
	defaults internal.Settings
	logger   internal.Logger

	mu    sync.RWMutex
	cache map[string]internal.Settings
}

func NewSettingsPolicy(repo storage.SettingsRepository, defaults internal.Settings, logger internal.Logger) *SettingsPolicy {
	return &SettingsPolicy{
		repo:     repo,
		defaults: defaults,
		logger:   logger,
		cache:    make(map[string]internal.Settings),
	}
}

// Settings satisfies scheduler.Policy. A storage failure falls back to the
// defaults without caching them.
func (p *SettingsPolicy) Settings(ownerID string) internal.Settings {
	ctx, cancel := context.WithTimeout(context.Background(), settingsLookupTimeout)
	defer cancel()
	st, err := p.Load(ctx, ownerID)
	if err != nil {
		p.logger.Warnf("settings: falling back to defaults for %s: %v", ownerID, err)
		return p.defaults
	}
	return st
}

func (p *SettingsPolicy) Load(ctx context.Context, ownerID string) (internal.Settings, error) {
	p.mu.RLock()
	st, ok := p.cache[ownerID]
	p.mu.RUnlock()
	if ok {
		return st, nil
	}

	st, err := p.repo.GetSettings(ctx, ownerID)
	switch {
	case errors.Is(err, internal.ErrNotFound):
		st = p.defaults
	case err != nil:
		return internal.Settings{}, err
	}
	p.mu.Lock()
	p.cache[ownerID] = st
	p.mu.Unlock()
	return st, nil
}

func (p *SettingsPolicy) Save(ctx context.Context, ownerID string, st internal.Settings) error {
	if err := p.repo.SaveSettings(ctx, ownerID, st); err != nil {
		return err
	}
	p.mu.Lock()
	p.cache[ownerID] = st
	p.mu.Unlock()
	return nil
}

func GetSettings(ctx context.Context, policy *SettingsPolicy, user *internal.User) (internal.Settings, error) {
	return policy.Load(ctx, user.Workspace())
}

// UpdateSettings applies the fields present in req. New intervals take effect
// from the next timer each session arms.
func UpdateSettings(ctx context.Context, policy *SettingsPolicy, user *internal.User, req *SettingsRequest) (internal.Settings, error) {
	if err := requireAdmin(user, "change settings"); err != nil {
		return internal.Settings{}, err
	}
	if err := ValidateRequest(req); err != nil {
		return internal.Settings{}, err
	}
	st, err := policy.Load(ctx, user.Workspace())
	if err != nil {
		return internal.Settings{}, err
	}
	if req.CheckupIntervalMinutes != nil {
		st.CheckupIntervalMinutes = *req.CheckupIntervalMinutes
	}
	if req.AlarmIntervalMinutes != nil {
		st.AlarmIntervalMinutes = *req.AlarmIntervalMinutes
	}
	if req.NotificationsEnabled != nil {
		st.NotificationsEnabled = *req.NotificationsEnabled
	}
	if err := policy.Save(ctx, user.Workspace(), st); err != nil {
		return internal.Settings{}, err
	}
	return st, nil
}
