package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Cuffsss/studio/internal"
	"github.com/Cuffsss/studio/internal/clock"
	"github.com/Cuffsss/studio/internal/notify"
)

var t0 = time.Date(2026, 1, 1, 20, 0, 0, 0, time.UTC)

type stubPolicy struct {
	mu       sync.Mutex
	settings internal.Settings
}

func (p *stubPolicy) Settings(ownerID string) internal.Settings {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.settings
}

func (p *stubPolicy) set(fn func(*internal.Settings)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(&p.settings)
}

type recorded struct {
	mu     sync.Mutex
	events []notify.Notification
	logs   []internal.SleepLog
}

func (r *recorded) Notify(ctx context.Context, n notify.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, n)
	return nil
}

func (r *recorded) AppendLog(ctx context.Context, log *internal.SleepLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, *log)
	return nil
}

func (r *recorded) kinds() []notify.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []notify.Kind{}
	for _, e := range r.events {
		out = append(out, e.Kind)
	}
	return out
}

func (r *recorded) times() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []time.Duration{}
	for _, e := range r.events {
		out = append(out, e.At.Sub(t0))
	}
	return out
}

func setup(t *testing.T) (*Scheduler, *clock.FakeClock, *stubPolicy, *recorded) {
	t.Helper()
	c := clock.Fake(t0)
	p := &stubPolicy{settings: internal.Settings{
		CheckupIntervalMinutes: 10,
		AlarmIntervalMinutes:   2,
		NotificationsEnabled:   true,
	}}
	r := &recorded{}
	s := New(Options{Clock: c, Policy: p, Notifier: r, Recorder: r, Logger: internal.NewNopLogger()})
	t.Cleanup(s.Close)
	return s, c, p, r
}

func person(id, name string) internal.Person {
	return internal.Person{ID: id, OwnerID: "u1", Name: name, NotificationsEnabled: true}
}

func TestDueThenRepeatingOverdueThenCheckup(t *testing.T) {
	s, c, _, r := setup(t)
	snap, ok := s.Start(context.Background(), "u1", person("p1", "Ada"))
	require.True(t, ok)
	assert.Equal(t, StatePending, snap.State)
	assert.Equal(t, t0.Add(10*time.Minute), snap.NextAlertAt)

	c.Advance(10 * time.Minute)
	assert.Equal(t, []notify.Kind{notify.KindCheckupDue}, r.kinds())
	got, _ := s.Session(snap.ID)
	assert.Equal(t, StateOverdue, got.State)

	c.Advance(2 * time.Minute)
	c.Advance(2 * time.Minute)
	assert.Equal(t, []notify.Kind{notify.KindCheckupDue, notify.KindOverdue, notify.KindOverdue}, r.kinds())
	assert.Equal(t, []time.Duration{10 * time.Minute, 12 * time.Minute, 14 * time.Minute}, r.times())

	c.Advance(30 * time.Second)
	_, ok = s.Checkup(context.Background(), snap.ID)
	require.True(t, ok)
	assert.Equal(t, 1, c.PendingCount())

	c.Advance(10*time.Minute - time.Second)
	assert.Len(t, r.kinds(), 3)

	c.Advance(time.Second)
	assert.Equal(t, notify.KindCheckupDue, r.kinds()[3])
	assert.Equal(t, 24*time.Minute+30*time.Second, r.times()[3])
}

func TestOverdueRepeatsIndefinitely(t *testing.T) {
	s, c, _, r := setup(t)
	snap, _ := s.Start(context.Background(), "u1", person("p1", "Ada"))

	c.Advance(10*time.Minute + 20*2*time.Minute)

	kinds := r.kinds()
	require.Len(t, kinds, 21)
	for _, k := range kinds[1:] {
		assert.Equal(t, notify.KindOverdue, k)
	}
	r.mu.Lock()
	last := r.events[len(r.events)-1]
	r.mu.Unlock()
	assert.Equal(t, snap.ID, last.Tag)
	assert.True(t, last.Renotify)
	assert.Equal(t, 1, c.PendingCount())
}

func TestCheckupBeforeIntervalPreventsDue(t *testing.T) {
	s, c, _, r := setup(t)
	snap, _ := s.Start(context.Background(), "u1", person("p1", "Ada"))

	c.Advance(9 * time.Minute)
	s.Checkup(context.Background(), snap.ID)
	c.Advance(9 * time.Minute)

	assert.Empty(t, r.kinds())
	got, _ := s.Session(snap.ID)
	assert.Equal(t, StatePending, got.State)
	assert.Equal(t, t0.Add(19*time.Minute), got.NextAlertAt)
}

func TestAtMostOneTimerPerSession(t *testing.T) {
	s, c, _, _ := setup(t)
	snap, _ := s.Start(context.Background(), "u1", person("p1", "Ada"))
	assert.Equal(t, 1, c.PendingCount())

	for i := 0; i < 5; i++ {
		c.Advance(3 * time.Minute)
		s.Checkup(context.Background(), snap.ID)
		assert.Equal(t, 1, c.PendingCount())
	}
	c.Advance(13 * time.Minute)
	assert.Equal(t, 1, c.PendingCount())

	s.Start(context.Background(), "u1", person("p2", "Bo"))
	assert.Equal(t, 2, c.PendingCount())
}

func TestStartTwiceForSamePersonIsNoop(t *testing.T) {
	s, c, _, r := setup(t)
	first, ok := s.Start(context.Background(), "u1", person("p1", "Ada"))
	require.True(t, ok)

	second, ok := s.Start(context.Background(), "u1", person("p1", "Ada"))
	assert.False(t, ok)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, c.PendingCount())
	assert.Len(t, r.logs, 1)
}

func TestEndCancelsTimers(t *testing.T) {
	s, c, _, r := setup(t)
	snap, _ := s.Start(context.Background(), "u1", person("p1", "Ada"))
	c.Advance(11 * time.Minute)
	require.Len(t, r.kinds(), 1)

	ended, ok := s.End(context.Background(), snap.ID, "slept well")
	require.True(t, ok)
	assert.Equal(t, internal.SessionCompleted, ended.Status)
	require.NotNil(t, ended.EndTime)
	assert.Equal(t, t0.Add(11*time.Minute), *ended.EndTime)
	assert.Equal(t, 0, c.PendingCount())

	c.Advance(time.Hour)
	assert.Len(t, r.kinds(), 1)

	_, ok = s.Session(snap.ID)
	assert.False(t, ok)
	_, ok = s.End(context.Background(), snap.ID, "")
	assert.False(t, ok)

	// The person may start again once the previous session ended.
	_, ok = s.Start(context.Background(), "u1", person("p1", "Ada"))
	assert.True(t, ok)
}

func TestLifecycleLogs(t *testing.T) {
	s, c, _, r := setup(t)
	snap, _ := s.Start(context.Background(), "u1", person("p1", "Ada"))
	c.Advance(5 * time.Minute)
	s.Checkup(context.Background(), snap.ID)
	c.Advance(5 * time.Minute)
	s.End(context.Background(), snap.ID, "woke up once")

	require.Len(t, r.logs, 3)
	assert.Equal(t, internal.ActionStart, r.logs[0].Action)
	assert.Equal(t, internal.ActionCheckup, r.logs[1].Action)
	assert.Equal(t, internal.ActionEnd, r.logs[2].Action)
	assert.Equal(t, "woke up once", r.logs[2].Notes)
	for _, l := range r.logs {
		assert.Equal(t, snap.ID, l.SessionID)
		assert.Equal(t, "p1", l.PersonID)
		assert.Equal(t, "Ada", l.PersonName)
		assert.Equal(t, "u1", l.OwnerID)
		assert.NoError(t, internal.ValidateRecord(l))
	}
	assert.Equal(t, t0.Add(5*time.Minute), r.logs[1].Timestamp)
}

func TestRemovePersonDropsSessionsAndTimers(t *testing.T) {
	s, c, _, r := setup(t)
	a, _ := s.Start(context.Background(), "u1", person("p1", "Ada"))
	b, _ := s.Start(context.Background(), "u1", person("p2", "Bo"))
	require.Equal(t, 2, c.PendingCount())

	removed := s.RemovePerson("p1")
	require.Len(t, removed, 1)
	assert.Equal(t, a.ID, removed[0].ID)
	assert.Equal(t, 1, c.PendingCount())

	c.Advance(12 * time.Minute)
	r.mu.Lock()
	for _, e := range r.events {
		assert.Equal(t, b.ID, e.SessionID)
	}
	r.mu.Unlock()
	assert.Len(t, r.kinds(), 2)

	s.RemovePerson("p2")
	assert.Equal(t, 0, c.PendingCount())
	assert.Empty(t, s.Active("u1"))
}

func TestDisabledNotificationsKeepTimersRunning(t *testing.T) {
	s, c, p, r := setup(t)
	p.set(func(cfg *internal.Settings) { cfg.NotificationsEnabled = false })
	snap, _ := s.Start(context.Background(), "u1", person("p1", "Ada"))

	c.Advance(14 * time.Minute)
	assert.Empty(t, r.kinds())
	assert.Equal(t, 1, c.PendingCount())
	got, _ := s.Session(snap.ID)
	assert.Equal(t, StateOverdue, got.State)

	p.set(func(cfg *internal.Settings) { cfg.NotificationsEnabled = true })
	c.Advance(2 * time.Minute)
	assert.Equal(t, []notify.Kind{notify.KindOverdue}, r.kinds())
}

func TestPersonToggleSuppressesNotifications(t *testing.T) {
	s, c, _, r := setup(t)
	s.Start(context.Background(), "u1", person("p1", "Ada"))
	s.SetPersonNotifications("p1", false)

	c.Advance(20 * time.Minute)
	assert.Empty(t, r.kinds())

	s.SetPersonNotifications("p1", true)
	c.Advance(2 * time.Minute)
	assert.Equal(t, []notify.Kind{notify.KindOverdue}, r.kinds())
}

func TestOverdueNoLongerOverdueReturnsToPending(t *testing.T) {
	s, c, p, r := setup(t)
	snap, _ := s.Start(context.Background(), "u1", person("p1", "Ada"))
	c.Advance(10 * time.Minute)
	require.Equal(t, []notify.Kind{notify.KindCheckupDue}, r.kinds())

	// Interval raised while the alarm is pending: at 12m the session is no
	// longer overdue, so the next reminder is due at 20m.
	p.set(func(cfg *internal.Settings) { cfg.CheckupIntervalMinutes = 20 })
	c.Advance(2 * time.Minute)
	assert.Len(t, r.kinds(), 1)
	got, _ := s.Session(snap.ID)
	assert.Equal(t, StatePending, got.State)
	assert.Equal(t, t0.Add(20*time.Minute), got.NextAlertAt)
	assert.Equal(t, 1, c.PendingCount())

	c.Advance(8 * time.Minute)
	assert.Equal(t, []notify.Kind{notify.KindCheckupDue, notify.KindCheckupDue}, r.kinds())
}

func TestStaleTimerIsIgnored(t *testing.T) {
	s, c, _, r := setup(t)
	snap, _ := s.Start(context.Background(), "u1", person("p1", "Ada"))

	s.mu.Lock()
	staleGen := s.sessions[snap.ID].gen
	s.mu.Unlock()

	s.Checkup(context.Background(), snap.ID)
	s.fire(snap.ID, staleGen)

	assert.Empty(t, r.kinds())
	assert.Equal(t, 1, c.PendingCount())
}

func TestUnknownIdsAreNoops(t *testing.T) {
	s, c, _, r := setup(t)
	_, ok := s.Checkup(context.Background(), "missing")
	assert.False(t, ok)
	_, ok = s.End(context.Background(), "missing", "")
	assert.False(t, ok)
	assert.Empty(t, s.RemovePerson("missing"))
	_, ok = s.Start(context.Background(), "u1", internal.Person{})
	assert.False(t, ok)
	s.SetPersonNotifications("missing", false)

	assert.Equal(t, 0, c.PendingCount())
	assert.Empty(t, r.logs)
}

func TestActiveIsScopedToOwner(t *testing.T) {
	s, c, _, _ := setup(t)
	s.Start(context.Background(), "u1", person("p1", "Ada"))
	c.Advance(time.Minute)
	s.Start(context.Background(), "u1", person("p2", "Bo"))
	s.Start(context.Background(), "u2", internal.Person{ID: "p3", OwnerID: "u2", Name: "Cy"})

	active := s.Active("u1")
	require.Len(t, active, 2)
	assert.Equal(t, "Ada", active[0].PersonName)
	assert.Equal(t, "Bo", active[1].PersonName)
	assert.Len(t, s.Active("u2"), 1)
}

func TestCloseStopsEverything(t *testing.T) {
	s, c, _, r := setup(t)
	s.Start(context.Background(), "u1", person("p1", "Ada"))
	s.Close()

	assert.Equal(t, 0, c.PendingCount())
	c.Advance(time.Hour)
	assert.Empty(t, r.kinds())

	_, ok := s.Start(context.Background(), "u1", person("p2", "Bo"))
	assert.False(t, ok)
}

// gatedPolicy blocks lookups for one owner until released.
type gatedPolicy struct {
	slowOwner string
	entered   chan struct{}
	release   chan struct{}
}

func (p *gatedPolicy) Settings(ownerID string) internal.Settings {
	if ownerID == p.slowOwner {
		select {
		case p.entered <- struct{}{}:
		default:
		}
		<-p.release
	}
	return internal.Settings{CheckupIntervalMinutes: 10, AlarmIntervalMinutes: 2, NotificationsEnabled: true}
}

func TestSlowSettingsLookupDoesNotBlockOtherOwners(t *testing.T) {
	c := clock.Fake(t0)
	p := &gatedPolicy{slowOwner: "slow", entered: make(chan struct{}, 1), release: make(chan struct{})}
	s := New(Options{Clock: c, Policy: p, Logger: internal.NewNopLogger()})
	t.Cleanup(s.Close)

	slowDone := make(chan struct{})
	go func() {
		defer close(slowDone)
		s.Start(context.Background(), "slow", internal.Person{ID: "p-slow", OwnerID: "slow", Name: "Slow"})
	}()
	<-p.entered

	fast := make(chan bool, 1)
	go func() {
		_, ok := s.Start(context.Background(), "fast", internal.Person{ID: "p-fast", OwnerID: "fast", Name: "Fast"})
		fast <- ok
	}()
	select {
	case ok := <-fast:
		assert.True(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("Start for another owner waited on a pending settings lookup")
	}
	assert.Len(t, s.Active("fast"), 1)

	close(p.release)
	<-slowDone
	assert.Len(t, s.Active("slow"), 1)
	assert.Equal(t, 2, c.PendingCount())
}
