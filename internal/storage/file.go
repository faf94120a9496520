package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/Cuffsss/studio/internal"
)

const (
	usersFileName         = "users.json"
	organizationsFileName = "organizations.json"
	settingsFileName      = "settings.json"
	peopleFileName        = "people.json"
	logsFileName          = "sleep_logs.json"

	defaultSaveDelay = 500 * time.Millisecond
)

// userRecord is the on-disk user shape; unlike internal.User it keeps the
// password hash.
type userRecord struct {
	ID             string        `json:"id" validate:"required"`
	Email          string        `json:"email" validate:"required,email"`
	Name           string        `json:"name,omitempty"`
	PasswordHash   string        `json:"password_hash" validate:"required"`
	OrganizationID string        `json:"organization_id,omitempty"`
	WorkspaceID    string        `json:"workspace_id,omitempty"`
	Role           internal.Role `json:"role,omitempty" validate:"omitempty,oneof=admin member"`
	CreatedAt      time.Time     `json:"created_at"`
}

func newUserRecord(u *internal.User) *userRecord {
	return &userRecord{
		ID:             u.ID,
		Email:          u.Email,
		Name:           u.Name,
		PasswordHash:   u.PasswordHash,
		OrganizationID: u.OrganizationID,
		WorkspaceID:    u.WorkspaceID,
		Role:           u.Role,
		CreatedAt:      u.CreatedAt,
	}
}

type settingsRecord struct {
	UserID string `json:"user_id" validate:"required"`
	internal.Settings
}

// fileSaver debounces writes of one JSON file.
type fileSaver struct {
	name   string
	signal chan struct{}
	save   func() error
}

type FileStorage struct {
	users         map[string]*userRecord            // id -> user
	usersByEmail  map[string]string                 // email -> id
	orgs          map[string]*internal.Organization // id -> organization
	orgsByInvite  map[string]string                 // invite token -> id
	settings      map[string]internal.Settings      // userID -> settings
	people        map[string]*internal.Person       // id -> person
	logs          map[string]*internal.SleepLog     // id -> log
	ownerLogIndex map[string][]*internal.SleepLog   // ownerID -> logs (sorted descending)
	mu            sync.RWMutex
	dir           string
	savers        []*fileSaver
	usersSaver    *fileSaver
	orgsSaver     *fileSaver
	settingsSaver *fileSaver
	peopleSaver   *fileSaver
	logsSaver     *fileSaver
	saveDelay     time.Duration
	shutdownChan  chan struct{}
	workers       sync.WaitGroup
	closeOnce     sync.Once
	logger        internal.Logger
}

func NewFileStorage(dir string, logger internal.Logger) (*FileStorage, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("storage: create data dir: %w", err)
	}
	s := &FileStorage{
		users:         make(map[string]*userRecord),
		usersByEmail:  make(map[string]string),
		orgs:          make(map[string]*internal.Organization),
		orgsByInvite:  make(map[string]string),
		settings:      make(map[string]internal.Settings),
		people:        make(map[string]*internal.Person),
		logs:          make(map[string]*internal.SleepLog),
		ownerLogIndex: make(map[string][]*internal.SleepLog),
		dir:           dir,
		saveDelay:     defaultSaveDelay,
		shutdownChan:  make(chan struct{}),
		logger:        logger,
	}
	s.usersSaver = s.newSaver(usersFileName, s.saveUsers)
	s.orgsSaver = s.newSaver(organizationsFileName, s.saveOrganizations)
	s.settingsSaver = s.newSaver(settingsFileName, s.saveSettings)
	s.peopleSaver = s.newSaver(peopleFileName, s.savePeople)
	s.logsSaver = s.newSaver(logsFileName, s.saveLogs)

	if err := s.load(); err != nil {
		logger.Errorf("storage: failed to load %s: %v", dir, err)
		return nil, err
	}

	for _, sv := range s.savers {
		s.workers.Add(1)
		go s.saveWorker(sv)
	}
	return s, nil
}

func (s *FileStorage) newSaver(name string, save func() error) *fileSaver {
	sv := &fileSaver{name: name, signal: make(chan struct{}, 1), save: save}
	s.savers = append(s.savers, sv)
	return sv
}

func (s *FileStorage) path(name string) string {
	return filepath.Join(s.dir, name)
}

// readJSONFile decodes a JSON array file. A missing or empty file yields no
// records.
func readJSONFile(path string, out interface{}) error {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer file.Close()

	if err := json.NewDecoder(file).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return nil
}

func (s *FileStorage) load() error {
	var users []*userRecord
	if err := readJSONFile(s.path(usersFileName), &users); err != nil {
		return err
	}
	var orgs []*internal.Organization
	if err := readJSONFile(s.path(organizationsFileName), &orgs); err != nil {
		return err
	}
	var settings []settingsRecord
	if err := readJSONFile(s.path(settingsFileName), &settings); err != nil {
		return err
	}
	var people []*internal.Person
	if err := readJSONFile(s.path(peopleFileName), &people); err != nil {
		return err
	}
	var logs []*internal.SleepLog
	if err := readJSONFile(s.path(logsFileName), &logs); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range users {
		if err := internal.ValidateRecord(u); err != nil {
			return fmt.Errorf("storage: invalid user %q: %w", u.ID, err)
		}
		s.users[u.ID] = u
		s.usersByEmail[u.Email] = u.ID
	}
	for _, o := range orgs {
		if err := internal.ValidateRecord(o); err != nil {
			return fmt.Errorf("storage: invalid organization %q: %w", o.ID, err)
		}
		s.orgs[o.ID] = o
		s.orgsByInvite[o.InviteToken] = o.ID
	}
	for _, rec := range settings {
		if err := internal.ValidateRecord(rec); err != nil {
			return fmt.Errorf("storage: invalid settings for %q: %w", rec.UserID, err)
		}
		s.settings[rec.UserID] = rec.Settings
	}
	for _, p := range people {
		if err := internal.ValidateRecord(p); err != nil {
			return fmt.Errorf("storage: invalid person %q: %w", p.ID, err)
		}
		s.people[p.ID] = p
	}
	// The file is in append order, so walking it backwards and sorting stably
	// keeps entries sharing a timestamp newest-appended first.
	for i := len(logs) - 1; i >= 0; i-- {
		l := logs[i]
		if err := internal.ValidateRecord(l); err != nil {
			return fmt.Errorf("storage: invalid sleep log %q: %w", l.ID, err)
		}
		s.logs[l.ID] = l
		s.ownerLogIndex[l.OwnerID] = append(s.ownerLogIndex[l.OwnerID], l)
	}
	for ownerID := range s.ownerLogIndex {
		owned := s.ownerLogIndex[ownerID]
		sort.SliceStable(owned, func(i, j int) bool {
			return owned[i].Timestamp.After(owned[j].Timestamp)
		})
	}
	return nil
}

func atomicWriteFileJSON(filePath string, data interface{}) error {
	tempFile := filePath + ".tmp"
	f, err := os.Create(tempFile)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		f.Close()
		os.Remove(tempFile)
		return err
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tempFile)
		return err
	}

	if err := f.Close(); err != nil {
		os.Remove(tempFile)
		return err
	}

	return os.Rename(tempFile, filePath)
}

func (s *FileStorage) saveUsers() error {
	s.mu.RLock()
	users := make([]*userRecord, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, u)
	}
	s.mu.RUnlock()
	sort.Slice(users, func(i, j int) bool { return users[i].CreatedAt.Before(users[j].CreatedAt) })
	return atomicWriteFileJSON(s.path(usersFileName), users)
}

func (s *FileStorage) saveOrganizations() error {
	s.mu.RLock()
	orgs := make([]*internal.Organization, 0, len(s.orgs))
	for _, o := range s.orgs {
		cp := *o
		orgs = append(orgs, &cp)
	}
	s.mu.RUnlock()
	sort.Slice(orgs, func(i, j int) bool { return orgs[i].CreatedAt.Before(orgs[j].CreatedAt) })
	return atomicWriteFileJSON(s.path(organizationsFileName), orgs)
}

func (s *FileStorage) saveSettings() error {
	s.mu.RLock()
	recs := make([]settingsRecord, 0, len(s.settings))
	for userID, st := range s.settings {
		recs = append(recs, settingsRecord{UserID: userID, Settings: st})
	}
	s.mu.RUnlock()
	sort.Slice(recs, func(i, j int) bool { return recs[i].UserID < recs[j].UserID })
	return atomicWriteFileJSON(s.path(settingsFileName), recs)
}

func (s *FileStorage) savePeople() error {
	s.mu.RLock()
	people := make([]*internal.Person, 0, len(s.people))
	for _, p := range s.people {
		people = append(people, p)
	}
	s.mu.RUnlock()
	sort.Slice(people, func(i, j int) bool { return people[i].CreatedAt.Before(people[j].CreatedAt) })
	return atomicWriteFileJSON(s.path(peopleFileName), people)
}

// saveLogs writes logs oldest first in append order.
func (s *FileStorage) saveLogs() error {
	s.mu.RLock()
	logs := make([]*internal.SleepLog, 0, len(s.logs))
	for _, owned := range s.ownerLogIndex {
		for i := len(owned) - 1; i >= 0; i-- {
			logs = append(logs, owned[i])
		}
	}
	s.mu.RUnlock()
	sort.SliceStable(logs, func(i, j int) bool { return logs[i].Timestamp.Before(logs[j].Timestamp) })
	return atomicWriteFileJSON(s.path(logsFileName), logs)
}

// saveWorker batches save operations to avoid frequent disk writes
func (s *FileStorage) saveWorker(sv *fileSaver) {
	defer s.workers.Done()
	timer := time.NewTimer(s.saveDelay)
	defer timer.Stop()

	for {
		select {
		case <-sv.signal:
			timer.Reset(s.saveDelay)
		case <-timer.C:
			if err := sv.save(); err != nil {
				s.logger.Errorf("storage: error saving %s: %v", sv.name, err)
			}
		case <-s.shutdownChan:
			return
		}
	}
}

func (s *FileStorage) markDirty(sv *fileSaver) {
	select {
	case sv.signal <- struct{}{}:
	default:
	}
}

// Close stops the save workers and flushes every file synchronously.
func (s *FileStorage) Close() error {
	var errs []error
	s.closeOnce.Do(func() {
		close(s.shutdownChan)
		s.workers.Wait()
		for _, sv := range s.savers {
			if err := sv.save(); err != nil {
				errs = append(errs, fmt.Errorf("storage: saving %s: %w", sv.name, err))
			}
		}
	})
	return errors.Join(errs...)
}

// --- UserRepository ---
func (s *FileStorage) CreateUser(ctx context.Context, user *internal.User) error {
	rec := newUserRecord(user)
	if err := internal.ValidateRecord(rec); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.usersByEmail[rec.Email]; ok {
		return fmt.Errorf("storage: user %s: %w", rec.Email, internal.ErrConflict)
	}
	if _, ok := s.users[rec.ID]; ok {
		return fmt.Errorf("storage: user %s: %w", rec.ID, internal.ErrConflict)
	}
	s.users[rec.ID] = rec
	s.usersByEmail[rec.Email] = rec.ID
	s.markDirty(s.usersSaver)
	return nil
}

func (s *FileStorage) GetUser(ctx context.Context, id string) (*internal.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("storage: user %s: %w", id, internal.ErrNotFound)
	}
	return rec.user(), nil
}

func (s *FileStorage) GetUserByEmail(ctx context.Context, email string) (*internal.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.usersByEmail[email]
	if !ok {
		return nil, fmt.Errorf("storage: user %s: %w", email, internal.ErrNotFound)
	}
	return s.users[id].user(), nil
}

// UpdateUser replaces the stored user. The email address is kept.
func (s *FileStorage) UpdateUser(ctx context.Context, user *internal.User) error {
	rec := newUserRecord(user)
	if err := internal.ValidateRecord(rec); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.users[rec.ID]
	if !ok {
		return fmt.Errorf("storage: user %s: %w", rec.ID, internal.ErrNotFound)
	}
	rec.Email = existing.Email
	rec.CreatedAt = existing.CreatedAt
	s.users[rec.ID] = rec
	s.markDirty(s.usersSaver)
	return nil
}

func (s *FileStorage) ListMembers(ctx context.Context, organizationID string) ([]internal.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	members := []internal.User{}
	for _, u := range s.users {
		if organizationID != "" && u.OrganizationID == organizationID {
			members = append(members, *u.user())
		}
	}
	sort.Slice(members, func(i, j int) bool { return members[i].CreatedAt.Before(members[j].CreatedAt) })
	return members, nil
}

func (r *userRecord) user() *internal.User {
	return &internal.User{
		ID:             r.ID,
		Email:          r.Email,
		Name:           r.Name,
		PasswordHash:   r.PasswordHash,
		OrganizationID: r.OrganizationID,
		WorkspaceID:    r.WorkspaceID,
		Role:           r.Role,
		CreatedAt:      r.CreatedAt,
	}
}

// --- OrganizationRepository ---
func (s *FileStorage) CreateOrganization(ctx context.Context, org *internal.Organization) error {
	if err := internal.ValidateRecord(org); err != nil {
		return err
	}
	cp := *org

	s.mu.Lock()
	defer s.mu.Unlock()
	owner, ok := s.users[cp.OwnerID]
	if !ok {
		return fmt.Errorf("storage: organization owner %s: %w", cp.OwnerID, internal.ErrNotFound)
	}
	if owner.OrganizationID != "" || (owner.WorkspaceID != "" && owner.WorkspaceID != owner.ID) {
		return fmt.Errorf("storage: user %s already belongs to an organization: %w", owner.ID, internal.ErrConflict)
	}
	if _, ok := s.orgs[cp.ID]; ok {
		return fmt.Errorf("storage: organization %s: %w", cp.ID, internal.ErrConflict)
	}
	if _, ok := s.orgsByInvite[cp.InviteToken]; ok {
		return fmt.Errorf("storage: organization invite: %w", internal.ErrConflict)
	}

	s.orgs[cp.ID] = &cp
	s.orgsByInvite[cp.InviteToken] = cp.ID
	updated := *owner
	updated.OrganizationID = cp.ID
	updated.Role = internal.RoleAdmin
	s.users[owner.ID] = &updated
	s.markDirty(s.orgsSaver)
	s.markDirty(s.usersSaver)
	return nil
}

func (s *FileStorage) GetOrganization(ctx context.Context, id string) (*internal.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orgs[id]
	if !ok {
		return nil, fmt.Errorf("storage: organization %s: %w", id, internal.ErrNotFound)
	}
	cp := *o
	return &cp, nil
}

func (s *FileStorage) GetOrganizationByInvite(ctx context.Context, token string) (*internal.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.orgsByInvite[token]
	if !ok || token == "" {
		return nil, fmt.Errorf("storage: organization invite: %w", internal.ErrNotFound)
	}
	cp := *s.orgs[id]
	return &cp, nil
}

// UpdateOrganization replaces the name and invite token. The owner is fixed.
func (s *FileStorage) UpdateOrganization(ctx context.Context, org *internal.Organization) error {
	if err := internal.ValidateRecord(org); err != nil {
		return err
	}
	cp := *org

	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.orgs[cp.ID]
	if !ok {
		return fmt.Errorf("storage: organization %s: %w", cp.ID, internal.ErrNotFound)
	}
	if id, ok := s.orgsByInvite[cp.InviteToken]; ok && id != cp.ID {
		return fmt.Errorf("storage: organization invite: %w", internal.ErrConflict)
	}
	cp.OwnerID = existing.OwnerID
	cp.CreatedAt = existing.CreatedAt
	delete(s.orgsByInvite, existing.InviteToken)
	s.orgs[cp.ID] = &cp
	s.orgsByInvite[cp.InviteToken] = cp.ID
	s.markDirty(s.orgsSaver)
	return nil
}

// --- SettingsRepository ---
func (s *FileStorage) GetSettings(ctx context.Context, userID string) (internal.Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.settings[userID]
	if !ok {
		return internal.Settings{}, fmt.Errorf("storage: settings for %s: %w", userID, internal.ErrNotFound)
	}
	return st, nil
}

func (s *FileStorage) SaveSettings(ctx context.Context, userID string, settings internal.Settings) error {
	if err := internal.ValidateRecord(settingsRecord{UserID: userID, Settings: settings}); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings[userID] = settings
	s.markDirty(s.settingsSaver)
	return nil
}

// --- PersonRepository ---
func (s *FileStorage) SavePerson(ctx context.Context, person *internal.Person) error {
	if err := internal.ValidateRecord(person); err != nil {
		return err
	}
	cp := *person
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.people[cp.ID]; ok && existing.OwnerID != cp.OwnerID {
		return fmt.Errorf("storage: person %s: %w", cp.ID, internal.ErrConflict)
	}
	s.people[cp.ID] = &cp
	s.markDirty(s.peopleSaver)
	return nil
}

func (s *FileStorage) GetPerson(ctx context.Context, ownerID, id string) (*internal.Person, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.people[id]
	if !ok || p.OwnerID != ownerID {
		return nil, fmt.Errorf("storage: person %s: %w", id, internal.ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

func (s *FileStorage) ListPeople(ctx context.Context, ownerID string) ([]internal.Person, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	people := []internal.Person{}
	for _, p := range s.people {
		if p.OwnerID == ownerID {
			people = append(people, *p)
		}
	}
	sort.Slice(people, func(i, j int) bool { return people[i].CreatedAt.Before(people[j].CreatedAt) })
	return people, nil
}

func (s *FileStorage) DeletePerson(ctx context.Context, ownerID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.people[id]
	if !ok || p.OwnerID != ownerID {
		return fmt.Errorf("storage: person %s: %w", id, internal.ErrNotFound)
	}
	delete(s.people, id)
	s.markDirty(s.peopleSaver)
	return nil
}

// --- LogRepository ---
func (s *FileStorage) AppendLog(ctx context.Context, log *internal.SleepLog) error {
	if err := internal.ValidateRecord(log); err != nil {
		return err
	}
	cp := *log
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.logs[cp.ID]; ok {
		return fmt.Errorf("storage: sleep log %s: %w", cp.ID, internal.ErrConflict)
	}

	s.logs[cp.ID] = &cp
	logs := s.ownerLogIndex[cp.OwnerID]
	inserted := false
	// Entries sharing a timestamp stay newest-appended first.
	for i, existing := range logs {
		if !existing.Timestamp.After(cp.Timestamp) {
			logs = append(logs[:i], append([]*internal.SleepLog{&cp}, logs[i:]...)...)
			inserted = true
			break
		}
	}
	if !inserted {
		logs = append(logs, &cp)
	}
	s.ownerLogIndex[cp.OwnerID] = logs
	s.markDirty(s.logsSaver)
	return nil
}

func (s *FileStorage) ListLogs(ctx context.Context, ownerID string, filter LogFilter) ([]internal.SleepLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	logs := []internal.SleepLog{}
	for _, l := range s.ownerLogIndex[ownerID] {
		if filter.Match(l) {
			logs = append(logs, *l)
		}
	}
	return logs, nil
}

func (s *FileStorage) ResetLogs(ctx context.Context, ownerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.ownerLogIndex[ownerID] {
		delete(s.logs, l.ID)
	}
	delete(s.ownerLogIndex, ownerID)
	s.markDirty(s.logsSaver)
	return nil
}

// --- Compile-time assertions ---
var _ Store = (*FileStorage)(nil)
