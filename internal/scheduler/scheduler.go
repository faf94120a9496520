// Package scheduler runs the check-up reminder state machine for active sleep
// sessions.
//
// Every active session holds at most one outstanding timer. A session is
// Pending after start or a check-up: when its check-up interval elapses a
// "check-up due" notification is emitted and the session turns Overdue. An
// Overdue session re-alarms every alarm interval until a check-up, the end of
// the session or the removal of the person cancels the timer.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Cuffsss/studio/internal"
	"github.com/Cuffsss/studio/internal/clock"
	"github.com/Cuffsss/studio/internal/notify"
)

type State int

const (
	StateIdle State = iota
	StatePending
	StateOverdue
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateOverdue:
		return "overdue"
	default:
		return "idle"
	}
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *State) UnmarshalText(text []byte) error {
	switch string(text) {
	case "idle":
		*s = StateIdle
	case "pending":
		*s = StatePending
	case "overdue":
		*s = StateOverdue
	default:
		return fmt.Errorf("scheduler: unknown state %q", text)
	}
	return nil
}

// Policy supplies the owner's reminder settings. It is consulted every time a
// timer is armed or fires, so changes apply from the next timer on. It may be
// slow and is never called with the scheduler lock held.
type Policy interface {
	Settings(ownerID string) internal.Settings
}

// Recorder persists the lifecycle log entries the scheduler produces.
type Recorder interface {
	AppendLog(ctx context.Context, log *internal.SleepLog) error
}

type Options struct {
	Clock    clock.Clock
	Policy   Policy
	Notifier notify.Notifier
	Recorder Recorder
	Logger   internal.Logger
}

// Snapshot is a copy of an active session together with its reminder state.
type Snapshot struct {
	internal.SleepSession
	State       State     `json:"state"`
	NextAlertAt time.Time `json:"next_alert_at"`
}

type tracked struct {
	session internal.SleepSession
	notify  bool
	state   State
	timer   *clock.Timer
	due     time.Time
	gen     uint64
}

type Scheduler struct {
	mu       sync.Mutex
	clock    clock.Clock
	policy   Policy
	notifier notify.Notifier
	recorder Recorder
	logger   internal.Logger
	sessions map[string]*tracked // sessionID -> session
	byPerson map[string]string   // personID -> sessionID
	closed   bool
}

func New(opts Options) *Scheduler {
	s := &Scheduler{
		clock:    opts.Clock,
		policy:   opts.Policy,
		notifier: opts.Notifier,
		recorder: opts.Recorder,
		logger:   opts.Logger,
		sessions: make(map[string]*tracked),
		byPerson: make(map[string]string),
	}
	if s.clock == nil {
		s.clock = clock.Real()
	}
	if s.logger == nil {
		s.logger = internal.NewNopLogger()
	}
	return s
}

// Start opens a sleep session for person and arms its first reminder. If the
// person already has an active session that session is returned with ok set
// to false and nothing changes.
func (s *Scheduler) Start(ctx context.Context, ownerID string, person internal.Person) (Snapshot, bool) {
	cfg := s.settings(ownerID)

	s.mu.Lock()
	if s.closed || person.ID == "" || ownerID == "" {
		s.mu.Unlock()
		return Snapshot{}, false
	}
	if id, ok := s.byPerson[person.ID]; ok {
		snap := s.sessions[id].snapshot()
		s.mu.Unlock()
		return snap, false
	}

	now := s.clock.Now()
	t := &tracked{
		session: internal.SleepSession{
			ID:         uuid.NewString(),
			OwnerID:    ownerID,
			PersonID:   person.ID,
			PersonName: person.Name,
			StartTime:  now,
			Checkups:   []time.Time{},
			Status:     internal.SessionActive,
		},
		notify: person.NotificationsEnabled,
	}
	s.sessions[t.session.ID] = t
	s.byPerson[person.ID] = t.session.ID
	s.armLocked(t, StatePending, cfg.CheckupInterval())
	snap := t.snapshot()
	s.mu.Unlock()

	s.record(ctx, snap.SleepSession, internal.ActionStart, now, "")
	return snap, true
}

// Checkup logs a check-up and restarts the reminder cycle.
func (s *Scheduler) Checkup(ctx context.Context, sessionID string) (Snapshot, bool) {
	owner, ok := s.owner(sessionID, nil)
	if !ok {
		return Snapshot{}, false
	}
	cfg := s.settings(owner)

	s.mu.Lock()
	t, ok := s.sessions[sessionID]
	if !ok {
		s.mu.Unlock()
		return Snapshot{}, false
	}
	now := s.clock.Now()
	t.session.Checkups = append(t.session.Checkups, now)
	s.armLocked(t, StatePending, cfg.CheckupInterval())
	snap := t.snapshot()
	s.mu.Unlock()

	s.record(ctx, snap.SleepSession, internal.ActionCheckup, now, "")
	return snap, true
}

// End completes the session and cancels its reminders.
func (s *Scheduler) End(ctx context.Context, sessionID, notes string) (internal.SleepSession, bool) {
	s.mu.Lock()
	t, ok := s.sessions[sessionID]
	if !ok {
		s.mu.Unlock()
		return internal.SleepSession{}, false
	}
	now := s.clock.Now()
	s.dropLocked(t)
	t.session.Status = internal.SessionCompleted
	t.session.EndTime = &now
	t.session.Notes = notes
	session := copySession(t.session)
	s.mu.Unlock()

	s.record(ctx, session, internal.ActionEnd, now, notes)
	return session, true
}

// RemovePerson cancels and forgets every session of the person. No log
// entries are written.
func (s *Scheduler) RemovePerson(personID string) []internal.SleepSession {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed []internal.SleepSession
	for _, t := range s.sessions {
		if t.session.PersonID == personID {
			s.dropLocked(t)
			removed = append(removed, copySession(t.session))
		}
	}
	return removed
}

// SetPersonNotifications updates the person's toggle on an active session.
func (s *Scheduler) SetPersonNotifications(personID string, enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.byPerson[personID]; ok {
		s.sessions[id].notify = enabled
	}
}

func (s *Scheduler) Session(sessionID string) (Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.sessions[sessionID]
	if !ok {
		return Snapshot{}, false
	}
	return t.snapshot(), true
}

// Active lists the owner's active sessions, oldest first.
func (s *Scheduler) Active(ownerID string) []Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []Snapshot{}
	for _, t := range s.sessions {
		if t.session.OwnerID == ownerID {
			out = append(out, t.snapshot())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartTime.Before(out[j].StartTime)
	})
	return out
}

// Close stops every timer. The scheduler ignores all calls afterwards.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.sessions {
		s.dropLocked(t)
	}
	s.closed = true
}

// armLocked cancels the outstanding timer, if any, before scheduling the next
// one, so a session never has two live timers.
func (s *Scheduler) armLocked(t *tracked, state State, d time.Duration) {
	if t.timer != nil {
		t.timer.Stop()
	}
	t.gen++
	gen, id := t.gen, t.session.ID
	t.state = state
	t.due = s.clock.Now().Add(d)
	t.timer = s.clock.AfterFunc(d, func() { s.fire(id, gen) })
}

func (s *Scheduler) dropLocked(t *tracked) {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.gen++
	t.state = StateIdle
	delete(s.sessions, t.session.ID)
	if s.byPerson[t.session.PersonID] == t.session.ID {
		delete(s.byPerson, t.session.PersonID)
	}
}

// owner returns the owner of a tracked session. With gen set, the session's
// timer generation must still match.
func (s *Scheduler) owner(sessionID string, gen *uint64) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.sessions[sessionID]
	if !ok || (gen != nil && t.gen != *gen) {
		return "", false
	}
	return t.session.OwnerID, true
}

func (s *Scheduler) fire(sessionID string, gen uint64) {
	owner, ok := s.owner(sessionID, &gen)
	if !ok {
		return
	}
	cfg := s.settings(owner)

	s.mu.Lock()
	t, ok := s.sessions[sessionID]
	// A superseded timer that fired while its replacement was being armed.
	if !ok || t.gen != gen || t.session.Status != internal.SessionActive {
		s.mu.Unlock()
		return
	}
	t.timer = nil

	now := s.clock.Now()
	enabled := cfg.NotificationsEnabled && t.notify

	var out *notify.Notification
	switch t.state {
	case StatePending:
		if enabled {
			n := notify.CheckupDue(t.session, now)
			out = &n
		}
		s.armLocked(t, StateOverdue, cfg.AlarmInterval())
	case StateOverdue:
		elapsed := now.Sub(t.session.LastEvent())
		if elapsed < cfg.CheckupInterval() {
			s.armLocked(t, StatePending, cfg.CheckupInterval()-elapsed)
			break
		}
		if enabled {
			n := notify.Overdue(t.session, cfg.AlarmIntervalMinutes, now)
			out = &n
		}
		s.armLocked(t, StateOverdue, cfg.AlarmInterval())
	}
	s.mu.Unlock()

	if out != nil && s.notifier != nil {
		if err := s.notifier.Notify(context.Background(), *out); err != nil {
			s.logger.Warnf("scheduler: notify %s for session %s: %v", out.Kind, sessionID, err)
		}
	}
}

func (s *Scheduler) settings(ownerID string) internal.Settings {
	var cfg internal.Settings
	if s.policy != nil {
		cfg = s.policy.Settings(ownerID)
	}
	if cfg.CheckupIntervalMinutes < 1 {
		cfg.CheckupIntervalMinutes = 1
	}
	if cfg.AlarmIntervalMinutes < 1 {
		cfg.AlarmIntervalMinutes = 1
	}
	return cfg
}

func (s *Scheduler) record(ctx context.Context, session internal.SleepSession, action internal.Action, at time.Time, notes string) {
	if s.recorder == nil {
		return
	}
	entry := &internal.SleepLog{
		ID:         uuid.NewString(),
		OwnerID:    session.OwnerID,
		PersonID:   session.PersonID,
		PersonName: session.PersonName,
		Action:     action,
		Timestamp:  at,
		SessionID:  session.ID,
		Notes:      notes,
	}
	if err := s.recorder.AppendLog(ctx, entry); err != nil {
		s.logger.Errorf("scheduler: record %s for session %s: %v", action, session.ID, err)
	}
}

func (t *tracked) snapshot() Snapshot {
	return Snapshot{
		SleepSession: copySession(t.session),
		State:        t.state,
		NextAlertAt:  t.due,
	}
}

func copySession(s internal.SleepSession) internal.SleepSession {
	s.Checkups = append([]time.Time{}, s.Checkups...)
	return s
}
