package service

import (
	"context"

	"github.com/Cuffsss/studio/internal"
	"github.com/Cuffsss/studio/internal/scheduler"
	"github.com/Cuffsss/studio/internal/storage"
)

// DataSnapshot is everything a dashboard needs on first load.
type DataSnapshot struct {
	User           *internal.User       `json:"user"`
	Settings       internal.Settings    `json:"settings"`
	People         []internal.Person    `json:"people"`
	ActiveSessions []scheduler.Snapshot `json:"active_sessions"`
	Logs           []internal.SleepLog  `json:"logs"`
}

func LoadData(ctx context.Context, store storage.Store, policy *SettingsPolicy, sched *scheduler.Scheduler, user *internal.User) (*DataSnapshot, error) {
	settings, err := policy.Load(ctx, user.Workspace())
	if err != nil {
		return nil, err
	}
	people, err := store.ListPeople(ctx, user.Workspace())
	if err != nil {
		return nil, err
	}
	logs, err := store.ListLogs(ctx, user.Workspace(), storage.LogFilter{})
	if err != nil {
		return nil, err
	}
	return &DataSnapshot{
		User:           user,
		Settings:       settings,
		People:         people,
		ActiveSessions: sched.Active(user.Workspace()),
		Logs:           logs,
	}, nil
}
