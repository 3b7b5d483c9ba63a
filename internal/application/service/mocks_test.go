package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/garyjia/timesheet-approval/internal/application/dispatcher"
	"github.com/garyjia/timesheet-approval/internal/application/port"
	"github.com/garyjia/timesheet-approval/internal/domain/apperr"
	"github.com/garyjia/timesheet-approval/internal/domain/entity"
	"github.com/garyjia/timesheet-approval/internal/domain/event"
	"github.com/garyjia/timesheet-approval/internal/domain/workflow"
)

// memStore is an in-memory TimesheetStore with the same version check as sqlite
type memStore struct {
	mu      sync.Mutex
	sheets  map[string]*entity.Timesheet
	entries map[string][]entity.TimeEntry
	history []entity.HistoryRecord
	nextID  int64

	// beforeWrite runs outside the lock at the start of AtomicReplace
	beforeWrite    func()
	alwaysConflict bool
	replaceCalls   int
}

func newMemStore() *memStore {
	return &memStore{
		sheets:  make(map[string]*entity.Timesheet),
		entries: make(map[string][]entity.TimeEntry),
	}
}

func (m *memStore) LoadTimesheet(ctx context.Context, id string) (*entity.Timesheet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ts, ok := m.sheets[id]
	if !ok || ts.IsDeleted() {
		return nil, fmt.Errorf("timesheet %s: %w", id, apperr.ErrNotFound)
	}
	return ts.Clone(), nil
}

func (m *memStore) LoadEntries(ctx context.Context, timesheetID string) ([]entity.TimeEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	live := []entity.TimeEntry{}
	for _, e := range m.entries[timesheetID] {
		if e.DeletedAt == nil {
			live = append(live, e)
		}
	}
	return live, nil
}

func (m *memStore) FindActive(ctx context.Context, ownerID string, weekStart time.Time) (*entity.Timesheet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ts := range m.sheets {
		if ts.OwnerID == ownerID && ts.WeekStart.Equal(weekStart) && !ts.IsDeleted() {
			return ts.Clone(), nil
		}
	}
	return nil, apperr.ErrNotFound
}

func (m *memStore) CreateTimesheet(ctx context.Context, ts *entity.Timesheet, record entity.HistoryRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.sheets {
		if existing.OwnerID == ts.OwnerID && existing.WeekStart.Equal(ts.WeekStart) && !existing.IsDeleted() {
			return apperr.ErrDuplicateTimesheet
		}
	}
	m.sheets[ts.ID] = ts.Clone()
	m.appendHistory(record)
	return nil
}

func (m *memStore) AtomicReplace(ctx context.Context, cs port.ChangeSet) error {
	if m.beforeWrite != nil {
		m.beforeWrite()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.replaceCalls++

	current, ok := m.sheets[cs.Timesheet.ID]
	if !ok {
		return apperr.ErrNotFound
	}
	if m.alwaysConflict || current.Version != cs.ExpectedVersion {
		return apperr.ErrConflict
	}

	m.sheets[cs.Timesheet.ID] = cs.Timesheet.Clone()
	if cs.Entries != nil {
		deletedAt := cs.Entries.DeletedAt
		all := m.entries[cs.Timesheet.ID]
		for i := range all {
			if all[i].DeletedAt == nil {
				all[i].DeletedAt = &deletedAt
			}
		}
		m.entries[cs.Timesheet.ID] = append(all, cs.Entries.Insert...)
	}
	for _, h := range cs.History {
		m.appendHistory(h)
	}
	return nil
}

func (m *memStore) appendHistory(h entity.HistoryRecord) {
	m.nextID++
	h.ID = m.nextID
	m.history = append(m.history, h)
}

func (m *memStore) ListByOwner(ctx context.Context, ownerID string) ([]*entity.Timesheet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.Timesheet
	for _, ts := range m.sheets {
		if ts.OwnerID == ownerID && !ts.IsDeleted() {
			out = append(out, ts.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WeekStart.After(out[j].WeekStart) })
	return out, nil
}

func (m *memStore) ListByStatus(ctx context.Context, status workflow.State, limit int) ([]*entity.Timesheet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.Timesheet
	for _, ts := range m.sheets {
		if ts.Status == status && !ts.IsDeleted() {
			out = append(out, ts.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) History(ctx context.Context, timesheetID string) ([]entity.HistoryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []entity.HistoryRecord
	for _, h := range m.history {
		if h.TimesheetID == timesheetID {
			out = append(out, h)
		}
	}
	return out, nil
}

func (m *memStore) PurgeDeletedEntries(ctx context.Context, timesheetID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var kept []entity.TimeEntry
	var purged int64
	for _, e := range m.entries[timesheetID] {
		if e.DeletedAt != nil {
			purged++
			continue
		}
		kept = append(kept, e)
	}
	m.entries[timesheetID] = kept
	return purged, nil
}

func (m *memStore) allEntries(timesheetID string) []entity.TimeEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]entity.TimeEntry(nil), m.entries[timesheetID]...)
}

// mockDirectory implements port.Directory over maps
type mockDirectory struct {
	mu       sync.Mutex
	users    map[string]*entity.User
	projects map[string][]string
}

func newMockDirectory(users ...entity.User) *mockDirectory {
	d := &mockDirectory{users: make(map[string]*entity.User), projects: make(map[string][]string)}
	for i := range users {
		u := users[i]
		d.users[u.ID] = &u
	}
	return d
}

func (d *mockDirectory) RoleOf(ctx context.Context, userID string) (entity.Role, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[userID]
	if !ok {
		return "", apperr.ErrNotFound
	}
	return u.Role, nil
}

func (d *mockDirectory) ManagerOf(ctx context.Context, userID string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[userID]
	if !ok {
		return "", apperr.ErrNotFound
	}
	return u.ManagerID, nil
}

func (d *mockDirectory) ManagedProjectIDs(ctx context.Context, userID string) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.projects[userID]...), nil
}

func (d *mockDirectory) GetUser(ctx context.Context, id string) (*entity.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	c := *u
	return &c, nil
}

func (d *mockDirectory) UpsertUser(ctx context.Context, user *entity.User) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	c := *user
	d.users[user.ID] = &c
	return nil
}

func (d *mockDirectory) SetProjectRole(ctx context.Context, projectID, userID, role string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.projects[userID] = append(d.projects[userID], projectID)
	return nil
}

func (d *mockDirectory) RemoveProjectRole(ctx context.Context, projectID, userID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	var kept []string
	for _, p := range d.projects[userID] {
		if p != projectID {
			kept = append(kept, p)
		}
	}
	d.projects[userID] = kept
	return nil
}

type mockTxManager struct {
	calls int
	mu    sync.Mutex
}

func (m *mockTxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	return fn(ctx)
}

// mockDispatcher records events synchronously
type mockDispatcher struct {
	mu     sync.Mutex
	events []*event.Event
}

func (m *mockDispatcher) Subscribe(eventType event.Type, handler dispatcher.Handler) {}

func (m *mockDispatcher) SubscribeNamed(eventType event.Type, name string, handler dispatcher.Handler) {
}

func (m *mockDispatcher) SubscribeAll(name string, handler dispatcher.Handler) {}

func (m *mockDispatcher) Unsubscribe(eventType event.Type, name string) {}

func (m *mockDispatcher) Dispatch(ctx context.Context, evt *event.Event) error {
	m.DispatchAsync(ctx, evt)
	return nil
}

func (m *mockDispatcher) DispatchAsync(ctx context.Context, evt *event.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, evt)
}

func (m *mockDispatcher) ListHandlers(eventType event.Type) []dispatcher.HandlerInfo { return nil }

func (m *mockDispatcher) Close() error { return nil }

func (m *mockDispatcher) Types() []event.Type {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]event.Type, len(m.events))
	for i, e := range m.events {
		out[i] = e.Type
	}
	return out
}

type mockLogger struct {
	mu     sync.Mutex
	infos  []string
	errors []string
}

func (m *mockLogger) Info(msg string, keysAndValues ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.infos = append(m.infos, msg)
}

func (m *mockLogger) Error(msg string, keysAndValues ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, msg)
}

func (m *mockLogger) InfoCount(msg string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, i := range m.infos {
		if i == msg {
			n++
		}
	}
	return n
}

type mockLocker struct {
	mu     sync.Mutex
	locks  int
	unlock int
	err    error
}

func (m *mockLocker) Lock(ctx context.Context, key string) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	m.locks++
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.unlock++
	}, nil
}

type mockSnapshotWriter struct {
	err      error
	rendered []string
}

func (m *mockSnapshotWriter) Render(ctx context.Context, ts *entity.Timesheet, entries []entity.TimeEntry) ([]byte, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.rendered = append(m.rendered, ts.ID)
	return []byte(fmt.Sprintf("%s:%d", ts.ID, len(entries))), nil
}

func (m *mockSnapshotWriter) Extension() string { return ".xlsx" }

type mockFileStorage struct {
	mu    sync.Mutex
	files map[string][]byte
}

func newMockFileStorage() *mockFileStorage {
	return &mockFileStorage{files: make(map[string][]byte)}
}

func (m *mockFileStorage) Save(ctx context.Context, path string, content []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[path] = content
	return nil
}

func (m *mockFileStorage) Read(ctx context.Context, path string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.files[path]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return c, nil
}

func (m *mockFileStorage) Exists(ctx context.Context, path string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.files[path]
	return ok
}

func (m *mockFileStorage) Delete(ctx context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, path)
	return nil
}

func (m *mockFileStorage) GetFullPath(relativePath string) string { return "/mem/" + relativePath }
