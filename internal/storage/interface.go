package storage

import (
	"context"
	"time"

	"github.com/Cuffsss/studio/internal"
)

type UserRepository interface {
	CreateUser(ctx context.Context, user *internal.User) error
	GetUser(ctx context.Context, id string) (*internal.User, error)
	GetUserByEmail(ctx context.Context, email string) (*internal.User, error)
	UpdateUser(ctx context.Context, user *internal.User) error
	ListMembers(ctx context.Context, organizationID string) ([]internal.User, error)
}

// OrganizationRepository stores organizations. CreateOrganization also makes
// the owner the organization's admin, failing with ErrConflict when the owner
// already belongs to one.
type OrganizationRepository interface {
	CreateOrganization(ctx context.Context, org *internal.Organization) error
	GetOrganization(ctx context.Context, id string) (*internal.Organization, error)
	GetOrganizationByInvite(ctx context.Context, token string) (*internal.Organization, error)
	UpdateOrganization(ctx context.Context, org *internal.Organization) error
}

type SettingsRepository interface {
	GetSettings(ctx context.Context, userID string) (internal.Settings, error)
	SaveSettings(ctx context.Context, userID string, settings internal.Settings) error
}

type PersonRepository interface {
	SavePerson(ctx context.Context, person *internal.Person) error
	GetPerson(ctx context.Context, ownerID, id string) (*internal.Person, error)
	ListPeople(ctx context.Context, ownerID string) ([]internal.Person, error)
	DeletePerson(ctx context.Context, ownerID, id string) error
}

// LogFilter narrows a log listing. Zero fields match everything; Day matches
// the UTC calendar day of the timestamp.
type LogFilter struct {
	PersonID string
	Day      time.Time
}

func (f LogFilter) Match(l *internal.SleepLog) bool {
	if f.PersonID != "" && l.PersonID != f.PersonID {
		return false
	}
	if !f.Day.IsZero() {
		start, end := f.dayBounds()
		ts := l.Timestamp.UTC()
		if ts.Before(start) || !ts.Before(end) {
			return false
		}
	}
	return true
}

func (f LogFilter) dayBounds() (time.Time, time.Time) {
	d := f.Day.UTC()
	start := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 0, 1)
}

// LogRepository is append-only. ResetLogs is the only way to remove entries.
type LogRepository interface {
	AppendLog(ctx context.Context, log *internal.SleepLog) error
	ListLogs(ctx context.Context, ownerID string, filter LogFilter) ([]internal.SleepLog, error)
	ResetLogs(ctx context.Context, ownerID string) error
}

type Store interface {
	UserRepository
	OrganizationRepository
	SettingsRepository
	PersonRepository
	LogRepository
	Close() error
}
