package service

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/Cuffsss/studio/internal"
	"github.com/Cuffsss/studio/internal/scheduler"
	"github.com/Cuffsss/studio/internal/storage"
)

type EndSleepRequest struct {
	Notes string `json:"notes" validate:"max=1000"`
}

var errSchedulerClosed = internal.NewAppError(http.StatusServiceUnavailable, "scheduler is shutting down")

func StartSleep(ctx context.Context, people storage.PersonRepository, sched *scheduler.Scheduler, user *internal.User, personID string) (scheduler.Snapshot, error) {
	person, err := people.GetPerson(ctx, user.Workspace(), personID)
	if err != nil {
		return scheduler.Snapshot{}, err
	}
	snap, ok := sched.Start(ctx, user.Workspace(), *person)
	if !ok {
		if snap.ID != "" {
			return snap, fmt.Errorf("%s already has an active sleep session: %w", person.Name, internal.ErrConflict)
		}
		return scheduler.Snapshot{}, errSchedulerClosed
	}
	// The person may have been removed between the lookup and Start, in which
	// case RemovePerson found no session to cancel.
	if _, err := people.GetPerson(ctx, user.Workspace(), personID); err != nil {
		sched.RemovePerson(personID)
		return scheduler.Snapshot{}, err
	}
	return snap, nil
}

func GetSession(sched *scheduler.Scheduler, user *internal.User, sessionID string) (scheduler.Snapshot, error) {
	snap, ok := sched.Session(sessionID)
	if !ok || snap.OwnerID != user.Workspace() {
		return scheduler.Snapshot{}, fmt.Errorf("session %s: %w", sessionID, internal.ErrNotFound)
	}
	return snap, nil
}

func ActiveSessions(sched *scheduler.Scheduler, user *internal.User) []scheduler.Snapshot {
	return sched.Active(user.Workspace())
}

func Checkup(ctx context.Context, sched *scheduler.Scheduler, user *internal.User, sessionID string) (scheduler.Snapshot, error) {
	if _, err := GetSession(sched, user, sessionID); err != nil {
		return scheduler.Snapshot{}, err
	}
	snap, ok := sched.Checkup(ctx, sessionID)
	if !ok {
		return scheduler.Snapshot{}, fmt.Errorf("session %s: %w", sessionID, internal.ErrNotFound)
	}
	return snap, nil
}

func EndSleep(ctx context.Context, sched *scheduler.Scheduler, user *internal.User, sessionID string, req *EndSleepRequest) (internal.SleepSession, error) {
	req.Notes = strings.TrimSpace(req.Notes)
	if err := ValidateRequest(req); err != nil {
		return internal.SleepSession{}, err
	}
	if _, err := GetSession(sched, user, sessionID); err != nil {
		return internal.SleepSession{}, err
	}
	session, ok := sched.End(ctx, sessionID, req.Notes)
	if !ok {
		return internal.SleepSession{}, fmt.Errorf("session %s: %w", sessionID, internal.ErrNotFound)
	}
	return session, nil
}
