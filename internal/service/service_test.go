package service

import (
	"bytes"
	"context"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Cuffsss/studio/internal"
	"github.com/Cuffsss/studio/internal/clock"
	"github.com/Cuffsss/studio/internal/notify"
	"github.com/Cuffsss/studio/internal/scheduler"
	"github.com/Cuffsss/studio/internal/storage"
)

var t0 = time.Date(2024, 3, 1, 20, 0, 0, 0, time.UTC)

type fixture struct {
	store  *storage.FileStorage
	policy *SettingsPolicy
	sched  *scheduler.Scheduler
	clock  *clock.FakeClock
	sent   []notify.Notification
	user   *internal.User
}

func setup(t *testing.T) *fixture {
	logger := internal.NewNopLogger()
	store, err := storage.NewFileStorage(t.TempDir(), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	f := &fixture{store: store, clock: clock.Fake(t0)}
	f.policy = NewSettingsPolicy(store, internal.Settings{CheckupIntervalMinutes: 10, AlarmIntervalMinutes: 2, NotificationsEnabled: true}, logger)
	f.sched = scheduler.New(scheduler.Options{
		Clock:  f.clock,
		Policy: f.policy,
		Notifier: notify.Func(func(ctx context.Context, n notify.Notification) error {
			f.sent = append(f.sent, n)
			return nil
		}),
		Recorder: store,
		Logger:   logger,
	})
	t.Cleanup(f.sched.Close)

	f.user, err = Signup(context.Background(), store, &SignupRequest{Email: "carer@example.com", Password: "secret1", Name: "Carer"})
	require.NoError(t, err)
	return f
}

func (f *fixture) person(t *testing.T, name string) *internal.Person {
	p, err := CreatePerson(context.Background(), f.store, f.user, &PersonRequest{Name: name})
	require.NoError(t, err)
	return p
}

func TestSignupAndLogin(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	assert.NotEmpty(t, f.user.PasswordHash)

	_, err := Signup(ctx, f.store, &SignupRequest{Email: "  Carer@Example.com ", Password: "another1"})
	assert.ErrorIs(t, err, internal.ErrConflict)
	assert.Equal(t, http.StatusConflict, internal.StatusFor(err, 500))

	_, err = Signup(ctx, f.store, &SignupRequest{Email: "new@example.com", Password: "123"})
	assert.Equal(t, http.StatusBadRequest, internal.StatusFor(err, 500))

	user, err := Login(ctx, f.store, &LoginRequest{Email: "CARER@example.com", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, f.user.ID, user.ID)

	_, err = Login(ctx, f.store, &LoginRequest{Email: "carer@example.com", Password: "wrong-password"})
	assert.ErrorIs(t, err, internal.ErrUnauthorized)
	_, err = Login(ctx, f.store, &LoginRequest{Email: "nobody@example.com", Password: "wrong-password"})
	assert.ErrorIs(t, err, internal.ErrUnauthorized)
}

func TestPeopleLifecycle(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	age := 7

	p, err := CreatePerson(ctx, f.store, f.user, &PersonRequest{Name: "  Ada ", Age: &age})
	require.NoError(t, err)
	assert.Equal(t, "Ada", p.Name)
	assert.True(t, p.NotificationsEnabled)

	_, err = CreatePerson(ctx, f.store, f.user, &PersonRequest{Name: " "})
	assert.Equal(t, http.StatusBadRequest, internal.StatusFor(err, 500))

	updated, err := UpdatePerson(ctx, f.store, f.user, p.ID, &PersonRequest{Name: "Ada L", Notes: "light sleeper"})
	require.NoError(t, err)
	assert.Equal(t, "Ada L", updated.Name)
	assert.Nil(t, updated.Age)

	other := &internal.User{ID: "someone-else"}
	_, err = UpdatePerson(ctx, f.store, other, p.ID, &PersonRequest{Name: "X"})
	assert.ErrorIs(t, err, internal.ErrNotFound)

	off := false
	toggled, err := SetPersonNotifications(ctx, f.store, f.sched, f.user, p.ID, &NotificationToggleRequest{Enabled: &off})
	require.NoError(t, err)
	assert.False(t, toggled.NotificationsEnabled)

	_, err = SetPersonNotifications(ctx, f.store, f.sched, f.user, p.ID, &NotificationToggleRequest{})
	assert.Equal(t, http.StatusBadRequest, internal.StatusFor(err, 500))
}

func TestRemovePersonCancelsSession(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	p := f.person(t, "Bo")

	_, err := StartSleep(ctx, f.store, f.sched, f.user, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, f.clock.PendingCount())

	require.NoError(t, RemovePerson(ctx, f.store, f.sched, f.user, p.ID))
	assert.Equal(t, 0, f.clock.PendingCount())
	assert.Empty(t, ActiveSessions(f.sched, f.user))

	f.clock.Advance(time.Hour)
	assert.Empty(t, f.sent)

	assert.ErrorIs(t, RemovePerson(ctx, f.store, f.sched, f.user, p.ID), internal.ErrNotFound)
}

// removingPeople deletes the person right after StartSleep has looked them
// up, the way a concurrent DELETE request would.
type removingPeople struct {
	storage.PersonRepository
	once   sync.Once
	remove func()
}

func (r *removingPeople) GetPerson(ctx context.Context, ownerID, id string) (*internal.Person, error) {
	p, err := r.PersonRepository.GetPerson(ctx, ownerID, id)
	r.once.Do(r.remove)
	return p, err
}

func TestStartSleepRacingRemovePersonLeavesNoSession(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	p := f.person(t, "Eve")

	people := &removingPeople{PersonRepository: f.store}
	people.remove = func() {
		require.NoError(t, RemovePerson(ctx, f.store, f.sched, f.user, p.ID))
	}

	_, err := StartSleep(ctx, people, f.sched, f.user, p.ID)
	assert.ErrorIs(t, err, internal.ErrNotFound)
	assert.Empty(t, ActiveSessions(f.sched, f.user))
	assert.Equal(t, 0, f.clock.PendingCount())

	f.clock.Advance(14 * time.Minute)
	assert.Empty(t, f.sent)
}

func TestSleepSessionFlow(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	p := f.person(t, "Cy")

	snap, err := StartSleep(ctx, f.store, f.sched, f.user, p.ID)
	require.NoError(t, err)
	assert.Equal(t, scheduler.StatePending, snap.State)

	_, err = StartSleep(ctx, f.store, f.sched, f.user, p.ID)
	assert.ErrorIs(t, err, internal.ErrConflict)

	_, err = StartSleep(ctx, f.store, f.sched, f.user, "missing")
	assert.ErrorIs(t, err, internal.ErrNotFound)

	f.clock.Advance(10 * time.Minute)
	require.Len(t, f.sent, 1)
	assert.Equal(t, notify.KindCheckupDue, f.sent[0].Kind)

	other := &internal.User{ID: "someone-else"}
	_, err = Checkup(ctx, f.sched, other, snap.ID)
	assert.ErrorIs(t, err, internal.ErrNotFound)

	f.clock.Advance(30 * time.Second)
	checked, err := Checkup(ctx, f.sched, f.user, snap.ID)
	require.NoError(t, err)
	assert.Len(t, checked.Checkups, 1)
	assert.Equal(t, t0.Add(20*time.Minute+30*time.Second), checked.NextAlertAt)

	f.clock.Advance(time.Minute)
	ended, err := EndSleep(ctx, f.sched, f.user, snap.ID, &EndSleepRequest{Notes: " slept well "})
	require.NoError(t, err)
	assert.Equal(t, internal.SessionCompleted, ended.Status)
	assert.Equal(t, "slept well", ended.Notes)
	assert.Equal(t, 0, f.clock.PendingCount())

	_, err = EndSleep(ctx, f.sched, f.user, snap.ID, &EndSleepRequest{})
	assert.ErrorIs(t, err, internal.ErrNotFound)

	logs, err := ListLogs(ctx, f.store, f.user, &LogQuery{Person: p.ID})
	require.NoError(t, err)
	require.Len(t, logs, 3)
	assert.Equal(t, internal.ActionEnd, logs[0].Action)
	assert.Equal(t, "slept well", logs[0].Notes)
	assert.Equal(t, internal.ActionStart, logs[2].Action)
}

func TestSettings(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	st, err := GetSettings(ctx, f.policy, f.user)
	require.NoError(t, err)
	assert.Equal(t, 10, st.CheckupIntervalMinutes)
	assert.True(t, st.NotificationsEnabled)

	five := 5
	updated, err := UpdateSettings(ctx, f.policy, f.user, &SettingsRequest{CheckupIntervalMinutes: &five})
	require.NoError(t, err)
	assert.Equal(t, 5, updated.CheckupIntervalMinutes)
	assert.Equal(t, 2, updated.AlarmIntervalMinutes)

	stored, err := f.store.GetSettings(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, stored.CheckupIntervalMinutes)
	assert.Equal(t, 5, f.policy.Settings(f.user.ID).CheckupIntervalMinutes)

	zero := 0
	_, err = UpdateSettings(ctx, f.policy, f.user, &SettingsRequest{AlarmIntervalMinutes: &zero})
	assert.Equal(t, http.StatusBadRequest, internal.StatusFor(err, 500))
}

func TestSettingsDriveScheduler(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	p := f.person(t, "Di")

	three := 3
	off := false
	_, err := UpdateSettings(ctx, f.policy, f.user, &SettingsRequest{CheckupIntervalMinutes: &three, NotificationsEnabled: &off})
	require.NoError(t, err)

	snap, err := StartSleep(ctx, f.store, f.sched, f.user, p.ID)
	require.NoError(t, err)
	assert.Equal(t, t0.Add(3*time.Minute), snap.NextAlertAt)

	f.clock.Advance(10 * time.Minute)
	assert.Empty(t, f.sent)
	assert.Equal(t, 1, f.clock.PendingCount())
}

func sampleLogs() []internal.SleepLog {
	return []internal.SleepLog{
		{ID: "3", PersonID: "p1", PersonName: "Ada", Action: internal.ActionEnd, Timestamp: t0.Add(8 * time.Hour), SessionID: "s1", Notes: "woke up, once"},
		{ID: "2", PersonID: "p1", PersonName: "Ada", Action: internal.ActionCheckup, Timestamp: t0.Add(10 * time.Minute), SessionID: "s1"},
		{ID: "1", PersonID: "p1", PersonName: "Ada", Action: internal.ActionStart, Timestamp: t0, SessionID: "s1"},
	}
}

func TestWriteTextExport(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteTextExport(&buf, sampleLogs(), time.UTC))
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	assert.Equal(t, []string{
		"2024-03-02 04:00:00 - Ada: END",
		"  Notes: woke up, once",
		"2024-03-01 20:10:00 - Ada: CHECKUP",
		"2024-03-01 20:00:00 - Ada: START",
	}, lines)
}

func TestWriteCSVExport(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSVExport(&buf, sampleLogs()[:1], time.UTC))
	assert.Equal(t, "timestamp,person,action,notes,session_id\n2024-03-02T04:00:00Z,Ada,end,\"woke up, once\",s1\n", buf.String())
}

func TestExportFilename(t *testing.T) {
	assert.Equal(t, "sleep-logs-all-people-all-dates.txt", ExportFilename("", "", ExportText))
	assert.Equal(t, "sleep-logs-Ada_Lovelace-2024-03-01.csv", ExportFilename("Ada  Lovelace", "2024-03-01", ExportCSV))
}

func TestLogQueryFilter(t *testing.T) {
	f, err := (&LogQuery{Person: "p1", Date: "2024-03-01"}).Filter()
	require.NoError(t, err)
	assert.Equal(t, "p1", f.PersonID)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), f.Day)

	_, err = (&LogQuery{Date: "01/03/2024"}).Filter()
	assert.Error(t, err)
	_, err = (&LogQuery{Format: "pdf"}).Filter()
	assert.Error(t, err)
}

func TestExport(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	p := f.person(t, "Ada Lovelace")
	snap, err := StartSleep(ctx, f.store, f.sched, f.user, p.ID)
	require.NoError(t, err)
	_, err = EndSleep(ctx, f.sched, f.user, snap.ID, &EndSleepRequest{})
	require.NoError(t, err)

	var buf bytes.Buffer
	name, err := Export(ctx, &buf, f.store, f.user, &LogQuery{Person: p.ID, Format: ExportCSV}, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, "sleep-logs-Ada_Lovelace-all-dates.csv", name)
	assert.Equal(t, 3, strings.Count(buf.String(), "\n"))

	require.NoError(t, ResetLogs(ctx, f.store, f.user))
	logs, err := ListLogs(ctx, f.store, f.user, &LogQuery{})
	require.NoError(t, err)
	assert.Empty(t, logs)
}

func TestBuildReport(t *testing.T) {
	now := time.Date(2024, 3, 7, 12, 0, 0, 0, time.UTC)
	people := []internal.Person{{ID: "p1", Name: "Ada"}, {ID: "p2", Name: "Bo"}}
	logs := []internal.SleepLog{
		{PersonID: "p1", Action: internal.ActionStart, SessionID: "a", Timestamp: now.Add(-30 * time.Hour)},
		{PersonID: "p1", Action: internal.ActionEnd, SessionID: "a", Timestamp: now.Add(-22 * time.Hour)},
		{PersonID: "p1", Action: internal.ActionStart, SessionID: "b", Timestamp: now.Add(-6 * time.Hour)},
		{PersonID: "p1", Action: internal.ActionEnd, SessionID: "b", Timestamp: now.Add(-3 * time.Hour)},
		{PersonID: "p2", Action: internal.ActionStart, SessionID: "c", Timestamp: now.Add(-time.Hour)},
		{PersonID: "p2", Action: internal.ActionStart, SessionID: "old", Timestamp: now.AddDate(0, 0, -9)},
	}

	r := BuildReport(logs, people, now)
	assert.True(t, r.HasData)
	require.Len(t, r.AverageSleep, 1)
	assert.Equal(t, "Ada", r.AverageSleep[0].Name)
	assert.Equal(t, 5.5, r.AverageSleep[0].AverageHours)
	assert.Equal(t, 2, r.AverageSleep[0].Sessions)

	require.Len(t, r.SessionsLast7Days, 7)
	assert.Equal(t, "2024-03-01", r.SessionsLast7Days[0].Date)
	last := r.SessionsLast7Days[6]
	assert.Equal(t, "2024-03-07", last.Date)
	assert.Equal(t, "Mar 7", last.Label)
	assert.Equal(t, 2, last.Sessions)
	assert.Equal(t, 1, r.SessionsLast7Days[5].Sessions)

	empty := BuildReport(nil, people, now)
	assert.False(t, empty.HasData)
	assert.Empty(t, empty.AverageSleep)
}

func TestOrganizationInviteAndSharedWorkspace(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	p := f.person(t, "Fay")

	_, err := CreateOrganization(ctx, f.store, f.user, &OrganizationRequest{Name: " "})
	assert.Equal(t, http.StatusBadRequest, internal.StatusFor(err, 500))

	org, err := CreateOrganization(ctx, f.store, f.user, &OrganizationRequest{Name: " Sunny Days "})
	require.NoError(t, err)
	assert.Equal(t, "Sunny Days", org.Name)
	assert.Equal(t, f.user.ID, org.OwnerID)
	require.NotEmpty(t, org.InviteToken)
	require.Len(t, org.Members, 1)
	assert.Equal(t, internal.RoleAdmin, org.Members[0].Role)

	_, err = CreateOrganization(ctx, f.store, f.user, &OrganizationRequest{Name: "Again"})
	assert.ErrorIs(t, err, internal.ErrConflict)

	info, err := LookupInvite(ctx, f.store, org.InviteToken)
	require.NoError(t, err)
	assert.Equal(t, "Sunny Days", info.OrganizationName)

	_, err = Signup(ctx, f.store, &SignupRequest{Email: "x@example.com", Password: "secret1", Invite: "nope"})
	assert.Equal(t, http.StatusBadRequest, internal.StatusFor(err, 500))

	member, err := Signup(ctx, f.store, &SignupRequest{Email: "worker@example.com", Password: "secret1", Invite: org.InviteToken})
	require.NoError(t, err)
	assert.Equal(t, internal.RoleMember, member.Role)
	assert.Equal(t, f.user.ID, member.Workspace())

	// Members work on the owner's people and sessions.
	people, err := f.store.ListPeople(ctx, member.Workspace())
	require.NoError(t, err)
	require.Len(t, people, 1)
	snap, err := StartSleep(ctx, f.store, f.sched, member, p.ID)
	require.NoError(t, err)
	_, err = Checkup(ctx, f.sched, f.user, snap.ID)
	require.NoError(t, err)
	assert.Len(t, ActiveSessions(f.sched, member), 1)

	view, err := GetOrganization(ctx, f.store, member)
	require.NoError(t, err)
	assert.Empty(t, view.InviteToken)
	assert.Len(t, view.Members, 2)

	rotated, err := RotateInvite(ctx, f.store, f.user)
	require.NoError(t, err)
	assert.NotEqual(t, org.InviteToken, rotated.InviteToken)
	_, err = LookupInvite(ctx, f.store, org.InviteToken)
	assert.ErrorIs(t, err, internal.ErrNotFound)

	err = RemoveMember(ctx, f.store, f.user, f.user.ID)
	assert.Equal(t, http.StatusBadRequest, internal.StatusFor(err, 500))
	require.NoError(t, RemoveMember(ctx, f.store, f.user, member.ID))

	removed, err := f.store.GetUser(ctx, member.ID)
	require.NoError(t, err)
	assert.Equal(t, removed.ID, removed.Workspace())
	assert.True(t, removed.IsAdmin())
	_, err = GetOrganization(ctx, f.store, removed)
	assert.ErrorIs(t, err, internal.ErrNotFound)
}

func TestMembersCannotManageWorkspace(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	p := f.person(t, "Gus")

	org, err := CreateOrganization(ctx, f.store, f.user, &OrganizationRequest{Name: "Night Shift"})
	require.NoError(t, err)
	member, err := Signup(ctx, f.store, &SignupRequest{Email: "member@example.com", Password: "secret1", Invite: org.InviteToken})
	require.NoError(t, err)

	forbidden := func(err error) {
		t.Helper()
		assert.ErrorIs(t, err, internal.ErrForbidden)
		assert.Equal(t, http.StatusForbidden, internal.StatusFor(err, 500))
	}
	forbidden(RemovePerson(ctx, f.store, f.sched, member, p.ID))
	five := 5
	_, err = UpdateSettings(ctx, f.policy, member, &SettingsRequest{CheckupIntervalMinutes: &five})
	forbidden(err)
	forbidden(ResetLogs(ctx, f.store, member))
	_, err = RotateInvite(ctx, f.store, member)
	forbidden(err)
	forbidden(RemoveMember(ctx, f.store, member, member.ID))

	// Everyday care is open to members.
	_, err = CreatePerson(ctx, f.store, member, &PersonRequest{Name: "Hal"})
	require.NoError(t, err)
	st, err := GetSettings(ctx, f.policy, member)
	require.NoError(t, err)
	assert.Equal(t, 10, st.CheckupIntervalMinutes)
}
