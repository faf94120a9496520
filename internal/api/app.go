package api

import (
	"time"

	"github.com/Cuffsss/studio/internal"
	"github.com/Cuffsss/studio/internal/auth"
	"github.com/Cuffsss/studio/internal/clock"
	"github.com/Cuffsss/studio/internal/config"
	"github.com/Cuffsss/studio/internal/notify"
	"github.com/Cuffsss/studio/internal/scheduler"
	"github.com/Cuffsss/studio/internal/service"
	"github.com/Cuffsss/studio/internal/storage"
)

type App interface {
	Logger() internal.Logger
	Config() *config.Config
	Store() storage.Store
	Scheduler() *scheduler.Scheduler
	Settings() *service.SettingsPolicy
	Tokens() *auth.TokenIssuer
	Hub() *notify.Hub
	Clock() clock.Clock
	Location() *time.Location
}

// Deps is the production App: every collaborator is built once in main and
// shared by all handlers.
type Deps struct {
	Log      internal.Logger
	Cfg      *config.Config
	Storage  storage.Store
	Sched    *scheduler.Scheduler
	Policy   *service.SettingsPolicy
	Issuer   *auth.TokenIssuer
	Notifier *notify.Hub
	Time     clock.Clock
	Loc      *time.Location
}

func (d *Deps) Logger() internal.Logger           { return d.Log }
func (d *Deps) Config() *config.Config            { return d.Cfg }
func (d *Deps) Store() storage.Store              { return d.Storage }
func (d *Deps) Scheduler() *scheduler.Scheduler   { return d.Sched }
func (d *Deps) Settings() *service.SettingsPolicy { return d.Policy }
func (d *Deps) Tokens() *auth.TokenIssuer         { return d.Issuer }
func (d *Deps) Hub() *notify.Hub                  { return d.Notifier }

func (d *Deps) Clock() clock.Clock {
	if d.Time == nil {
		return clock.Real()
	}
	return d.Time
}

func (d *Deps) Location() *time.Location {
	if d.Loc == nil {
		return time.Local
	}
	return d.Loc
}

var _ App = (*Deps)(nil)
