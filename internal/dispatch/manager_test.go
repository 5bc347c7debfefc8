package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/fieldworks/dispatchboard/internal/cache"
	"github.com/fieldworks/dispatchboard/internal/localstore"
	"github.com/fieldworks/dispatchboard/internal/models"
	"github.com/fieldworks/dispatchboard/internal/remote"
)

type fakeDispatchStore struct {
	mu          sync.Mutex
	nextID      int
	byID        map[string]remote.RemoteDispatch
	createCalls int
	deleteCalls []string
	updateCalls []remote.DispatchPatch
	createGate  chan struct{}
}

func newFakeDispatchStore() *fakeDispatchStore {
	return &fakeDispatchStore{byID: map[string]remote.RemoteDispatch{}}
}

func (f *fakeDispatchStore) GetAll(ctx context.Context, filter remote.DispatchFilter) (remote.DispatchPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var page remote.DispatchPage
	for _, d := range f.byID {
		page.Items = append(page.Items, d)
	}
	page.TotalCount = len(page.Items)
	return page, nil
}

func (f *fakeDispatchStore) GetByID(ctx context.Context, id string) (remote.RemoteDispatch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.byID[id]
	if !ok {
		return remote.RemoteDispatch{}, remote.ErrNotFound
	}
	return d, nil
}

func (f *fakeDispatchStore) CreateFromJob(ctx context.Context, jobID string, req remote.CreateDispatchRequest) (remote.RemoteDispatch, error) {
	if f.createGate != nil {
		<-f.createGate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	f.nextID++
	d := remote.RemoteDispatch{
		ID:            fmt.Sprintf("d%d", f.nextID),
		Status:        string(models.DispatchAssigned),
		Priority:      req.Priority,
		ScheduledDate: req.ScheduledDate,
		StartTime:     req.StartTime,
		EndTime:       req.EndTime,
		JobIDs:        []string{jobID},
		TechnicianIDs: []string{req.TechnicianID},
	}
	f.byID[d.ID] = d
	return d, nil
}

func (f *fakeDispatchStore) CreateFromInstallation(ctx context.Context, req remote.CreateInstallationDispatchRequest) (remote.RemoteDispatch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	f.nextID++
	d := remote.RemoteDispatch{
		ID:             fmt.Sprintf("d%d", f.nextID),
		Status:         string(models.DispatchAssigned),
		ScheduledDate:  req.ScheduledDate,
		StartTime:      req.StartTime,
		EndTime:        req.EndTime,
		JobIDs:         req.JobIDs,
		InstallationID: req.InstallationID,
		ServiceOrderID: req.ServiceOrderID,
		TechnicianIDs:  []string{req.TechnicianID},
	}
	f.byID[d.ID] = d
	return d, nil
}

func (f *fakeDispatchStore) Update(ctx context.Context, id string, patch remote.DispatchPatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.byID[id]
	if !ok {
		return remote.ErrNotFound
	}
	f.updateCalls = append(f.updateCalls, patch)
	if patch.ScheduledDate != nil {
		d.ScheduledDate = *patch.ScheduledDate
	}
	if patch.StartTime != nil {
		d.StartTime = *patch.StartTime
	}
	if patch.EndTime != nil {
		d.EndTime = *patch.EndTime
	}
	f.byID[id] = d
	return nil
}

func (f *fakeDispatchStore) UpdateStatus(ctx context.Context, id, status, substatus string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.byID[id]
	if !ok {
		return remote.ErrNotFound
	}
	d.Status = status
	d.Substatus = substatus
	f.byID[id] = d
	return nil
}

func (f *fakeDispatchStore) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byID[id]; !ok {
		return remote.ErrNotFound
	}
	delete(f.byID, id)
	f.deleteCalls = append(f.deleteCalls, id)
	return nil
}

func (f *fakeDispatchStore) AddNote(ctx context.Context, id, text, kind string) error {
	return nil
}

type fakeOrderStore struct {
	mu    sync.Mutex
	notes []remote.OrderNote
}

func (f *fakeOrderStore) GetAll(ctx context.Context, filter remote.ServiceOrderFilter) (remote.ServiceOrderPage, error) {
	return remote.ServiceOrderPage{}, nil
}

func (f *fakeOrderStore) GetByID(ctx context.Context, id string, includeJobs bool) (remote.RemoteServiceOrder, error) {
	return remote.RemoteServiceOrder{ID: id}, nil
}

func (f *fakeOrderStore) AddNote(ctx context.Context, id string, note remote.OrderNote) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notes = append(f.notes, note)
	return nil
}

type fakeNotifications struct {
	mu   sync.Mutex
	sent []remote.Notification
	fail bool
}

func (f *fakeNotifications) Create(ctx context.Context, n remote.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("notification service down")
	}
	f.sent = append(f.sent, n)
	return nil
}

func newTestManager(t *testing.T, store *fakeDispatchStore) (*Manager, *cache.Cache, *fakeOrderStore, *fakeNotifications) {
	t.Helper()
	c := cache.New(cache.DefaultTTLs())
	orders := &fakeOrderStore{}
	notes := &fakeNotifications{}
	m := NewManager(Config{}, Deps{
		Cache:         c,
		Dispatches:    store,
		Orders:        orders,
		Notifications: notes,
		Overrides:     localstore.NewMemoryStore(0),
		Identity:      StaticIdentity{Name: "Test Planner"},
		Logger:        zerolog.Nop(),
	})
	return m, c, orders, notes
}

func dayStart(hour, min int) time.Time {
	return time.Date(2024, 1, 1, hour, min, 0, 0, time.UTC)
}

func TestAssignJobCreatesDispatch(t *testing.T) {
	store := newFakeDispatchStore()
	m, c, orders, notes := newTestManager(t, store)
	c.SetDispatches([]models.Dispatch{{ID: "old"}})

	d, err := m.AssignJob(context.Background(), AssignJobRequest{
		JobID:           "j1",
		JobTitle:        "Boiler service",
		ServiceOrderID:  "so1",
		TechnicianID:    "t1",
		Start:           dayStart(9, 0),
		DurationMinutes: 60,
		Priority:        models.PriorityHigh,
	})
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if d.Status != models.DispatchAssigned {
		t.Fatalf("expected assigned status, got %s", d.Status)
	}
	if !d.ScheduledStart.Equal(dayStart(9, 0)) || !d.ScheduledEnd.Equal(dayStart(10, 0)) {
		t.Fatalf("expected interval 09:00-10:00, got %v-%v", d.ScheduledStart, d.ScheduledEnd)
	}
	if c.HasFreshDispatches() {
		t.Fatalf("dispatch cache must be invalidated after assign")
	}
	if len(orders.notes) != 1 {
		t.Fatalf("expected one audit note, got %d", len(orders.notes))
	}
	if len(notes.sent) != 1 || notes.sent[0].UserID != "t1" {
		t.Fatalf("expected one notification to t1, got %+v", notes.sent)
	}
}

func TestAssignJobSurvivesNotificationFailure(t *testing.T) {
	store := newFakeDispatchStore()
	m, _, _, notes := newTestManager(t, store)
	notes.fail = true

	_, err := m.AssignJob(context.Background(), AssignJobRequest{
		JobID: "j1", TechnicianID: "t1", Start: dayStart(9, 0),
	})
	if err != nil {
		t.Fatalf("notification failure must not abort assignment: %v", err)
	}
	if store.createCalls != 1 {
		t.Fatalf("expected dispatch created, got %d calls", store.createCalls)
	}
}

func TestDuplicateAssignGuard(t *testing.T) {
	store := newFakeDispatchStore()
	store.createGate = make(chan struct{})
	m, _, _, _ := newTestManager(t, store)

	firstDone := make(chan error, 1)
	go func() {
		_, err := m.AssignJob(context.Background(), AssignJobRequest{
			JobID: "j1", TechnicianID: "t1", Start: dayStart(9, 0),
		})
		firstDone <- err
	}()

	// wait for the first call to take the guard
	deadline := time.After(2 * time.Second)
	for {
		m.mu.Lock()
		_, held := m.inFlight["j1"]
		m.mu.Unlock()
		if held {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("first assign never acquired the guard")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	_, err := m.AssignJob(context.Background(), AssignJobRequest{
		JobID: "j1", TechnicianID: "t1", Start: dayStart(10, 0),
	})
	var inflight *InFlightError
	if !errors.As(err, &inflight) {
		t.Fatalf("expected InFlightError, got %v", err)
	}

	close(store.createGate)
	if err := <-firstDone; err != nil {
		t.Fatalf("first assign failed: %v", err)
	}
	if store.createCalls != 1 {
		t.Fatalf("expected exactly one dispatch created, got %d", store.createCalls)
	}
}

func TestDeleteBlockedWhenLocked(t *testing.T) {
	store := newFakeDispatchStore()
	store.byID["d1"] = remote.RemoteDispatch{ID: "d1", Status: string(models.DispatchConfirmed)}
	m, _, _, _ := newTestManager(t, store)

	err := m.UnassignJob(context.Background(), "d1")
	var conflict *StateConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected StateConflictError, got %v", err)
	}
	if conflict.Status != models.DispatchConfirmed {
		t.Fatalf("error must name the current status, got %s", conflict.Status)
	}
	if len(store.deleteCalls) != 0 {
		t.Fatalf("no remote delete may be issued for a locked dispatch")
	}
}

func TestDurationFloor(t *testing.T) {
	store := newFakeDispatchStore()
	store.byID["d1"] = remote.RemoteDispatch{
		ID: "d1", Status: string(models.DispatchAssigned),
		ScheduledDate: "2024-01-01", StartTime: "09:00", EndTime: "10:00",
	}
	m, _, _, _ := newTestManager(t, store)
	ctx := context.Background()

	err := m.UpdateSchedule(ctx, "d1", dayStart(9, 0), dayStart(9, 10))
	if !errors.Is(err, ErrDurationTooShort) {
		t.Fatalf("expected duration floor rejection, got %v", err)
	}
	if err := m.Resize(ctx, "d1", dayStart(9, 5)); !errors.Is(err, ErrDurationTooShort) {
		t.Fatalf("expected resize rejection, got %v", err)
	}
	if len(store.updateCalls) != 0 {
		t.Fatalf("no remote update may be issued below the floor")
	}
}

func TestResizePersistsOverride(t *testing.T) {
	store := newFakeDispatchStore()
	store.byID["d1"] = remote.RemoteDispatch{
		ID: "d1", Status: string(models.DispatchAssigned),
		ScheduledDate: "2024-01-01", StartTime: "09:00", EndTime: "10:00",
	}
	overrides := localstore.NewMemoryStore(0)
	c := cache.New(cache.DefaultTTLs())
	m := NewManager(Config{}, Deps{
		Cache: c, Dispatches: store, Overrides: overrides,
		Identity: StaticIdentity{}, Logger: zerolog.Nop(),
	})

	if err := m.Resize(context.Background(), "d1", dayStart(11, 0)); err != nil {
		t.Fatalf("resize: %v", err)
	}
	ov, ok, err := overrides.Override(context.Background(), "d1")
	if err != nil || !ok {
		t.Fatalf("expected override saved, ok=%v err=%v", ok, err)
	}
	if !ov.Start.Equal(dayStart(9, 0)) || !ov.End.Equal(dayStart(11, 0)) {
		t.Fatalf("override mismatch: %+v", ov)
	}
}

func TestBatchSequencing(t *testing.T) {
	store := newFakeDispatchStore()
	m, _, orders, _ := newTestManager(t, store)

	res, err := m.AssignServiceOrderBatch(context.Background(), BatchAssignRequest{
		ServiceOrderID: "so1",
		TechnicianID:   "t1",
		Start:          dayStart(9, 0),
		Jobs: []models.Job{
			{ID: "j1", Title: "First", EstimatedDuration: 30},
			{ID: "j2", Title: "Second", EstimatedDuration: 45},
			{ID: "j3", Title: "Third", EstimatedDuration: 60},
		},
	})
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	if len(res.Assigned) != 3 || len(res.Failed) != 0 {
		t.Fatalf("expected 3 assigned, got %d assigned %d failed", len(res.Assigned), len(res.Failed))
	}
	wantStarts := []time.Time{dayStart(9, 0), dayStart(9, 30), dayStart(10, 15)}
	for i, d := range res.Assigned {
		if !d.ScheduledStart.Equal(wantStarts[i]) {
			t.Fatalf("job %d: expected start %v, got %v", i, wantStarts[i], d.ScheduledStart)
		}
	}
	if !res.Assigned[2].ScheduledEnd.Equal(dayStart(11, 15)) {
		t.Fatalf("expected batch end 11:15, got %v", res.Assigned[2].ScheduledEnd)
	}
	// one note per job plus the batch summary
	if len(orders.notes) != 4 {
		t.Fatalf("expected 4 order notes, got %d", len(orders.notes))
	}
}

func TestInstallationGroupGuardAndDuration(t *testing.T) {
	store := newFakeDispatchStore()
	m, _, _, _ := newTestManager(t, store)

	group := models.InstallationGroup{
		InstallationID: "inst-9",
		ServiceOrderID: "so1",
		Jobs: []models.Job{
			{ID: "j1", EstimatedDuration: 30},
			{ID: "j2", EstimatedDuration: 90},
		},
	}
	d, err := m.AssignInstallationGroup(context.Background(), GroupAssignRequest{
		Group: group, TechnicianID: "t1", Start: dayStart(9, 0),
	})
	if err != nil {
		t.Fatalf("group assign: %v", err)
	}
	if !d.ScheduledEnd.Equal(dayStart(11, 0)) {
		t.Fatalf("expected combined duration 120m ending 11:00, got %v", d.ScheduledEnd)
	}
	if len(d.JobIDs) != 2 {
		t.Fatalf("expected one dispatch covering both jobs")
	}
	if store.createCalls != 1 {
		t.Fatalf("expected a single remote create for the group")
	}
}

func TestRescheduleUndoRestoresOriginalStart(t *testing.T) {
	store := newFakeDispatchStore()
	store.byID["d1"] = remote.RemoteDispatch{
		ID: "d1", Status: string(models.DispatchAssigned),
		ScheduledDate: "2024-01-01", StartTime: "09:00", EndTime: "10:00",
	}
	m, _, _, _ := newTestManager(t, store)
	ctx := context.Background()

	if err := m.Reschedule(ctx, "d1", dayStart(13, 0)); err != nil {
		t.Fatalf("reschedule: %v", err)
	}
	if store.byID["d1"].StartTime != "13:00" {
		t.Fatalf("expected moved start, got %s", store.byID["d1"].StartTime)
	}
	if !m.Undo(ctx) {
		t.Fatalf("expected undo to succeed")
	}
	if store.byID["d1"].StartTime != "09:00" {
		t.Fatalf("expected undo to restore 09:00, got %s", store.byID["d1"].StartTime)
	}
}

func TestUndoBoundedAtFive(t *testing.T) {
	store := newFakeDispatchStore()
	m, _, _, _ := newTestManager(t, store)
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		_, err := m.AssignJob(ctx, AssignJobRequest{
			JobID:        fmt.Sprintf("j%d", i+1),
			TechnicianID: "t1",
			Start:        dayStart(9, 0).Add(time.Duration(i) * time.Hour),
		})
		if err != nil {
			t.Fatalf("assign %d: %v", i, err)
		}
	}
	if m.UndoDepth() != 5 {
		t.Fatalf("expected undo depth capped at 5, got %d", m.UndoDepth())
	}
	// most recent first: undoing deletes the sixth dispatch
	if !m.Undo(ctx) {
		t.Fatalf("expected undo to succeed")
	}
	if len(store.deleteCalls) != 1 || store.deleteCalls[0] != "d6" {
		t.Fatalf("expected most recent dispatch deleted first, got %v", store.deleteCalls)
	}
}

func TestUndoOfUnassignReportsFailure(t *testing.T) {
	store := newFakeDispatchStore()
	store.byID["d1"] = remote.RemoteDispatch{ID: "d1", Status: string(models.DispatchAssigned)}
	m, _, _, _ := newTestManager(t, store)
	ctx := context.Background()

	if err := m.UnassignJob(ctx, "d1"); err != nil {
		t.Fatalf("unassign: %v", err)
	}
	if m.Undo(ctx) {
		t.Fatalf("undo of a delete must report false")
	}
	if m.UndoDepth() != 0 {
		t.Fatalf("the informational entry must still be consumed")
	}
}

func TestPlanSlotAutoShiftsAndFailsHard(t *testing.T) {
	store := newFakeDispatchStore()
	m, _, _, _ := newTestManager(t, store)

	s1, e1 := dayStart(9, 0), dayStart(10, 0)
	existing := []models.Job{{ID: "busy", Title: "Busy", ScheduledStart: &s1, ScheduledEnd: &e1}}

	slot, err := m.PlanSlot(dayStart(9, 30), 60, existing, "")
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if !slot.Equal(dayStart(10, 0)) {
		t.Fatalf("expected shift to 10:00, got %v", slot)
	}

	s2, e2 := dayStart(9, 0), dayStart(16, 45)
	allDay := []models.Job{{ID: "full", Title: "Full day", ScheduledStart: &s2, ScheduledEnd: &e2}}
	if _, err := m.PlanSlot(dayStart(9, 0), 60, allDay, ""); !errors.Is(err, ErrNoSlot) {
		t.Fatalf("expected ErrNoSlot, got %v", err)
	}
}

func TestLifecycleEndToEnd(t *testing.T) {
	store := newFakeDispatchStore()
	m, c, _, _ := newTestManager(t, store)
	ctx := context.Background()

	d, err := m.AssignJob(ctx, AssignJobRequest{
		JobID:           "J1",
		JobTitle:        "Install meter",
		TechnicianID:    "T1",
		Start:           dayStart(9, 0),
		DurationMinutes: 60,
	})
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if !d.ScheduledStart.Equal(dayStart(9, 0)) || !d.ScheduledEnd.Equal(dayStart(10, 0)) {
		t.Fatalf("expected [09:00,10:00), got %v-%v", d.ScheduledStart, d.ScheduledEnd)
	}

	if err := m.Lock(ctx, d.ID); err != nil {
		t.Fatalf("lock: %v", err)
	}
	locked, err := m.IsLocked(ctx, d.ID)
	if err != nil || !locked {
		t.Fatalf("expected locked dispatch, locked=%v err=%v", locked, err)
	}

	err = m.UnassignJob(ctx, d.ID)
	var conflict *StateConflictError
	if !errors.As(err, &conflict) || conflict.Status != models.DispatchConfirmed {
		t.Fatalf("expected conflict naming confirmed, got %v", err)
	}

	if err := m.Unlock(ctx, d.ID); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if err := m.UnassignJob(ctx, d.ID); err != nil {
		t.Fatalf("delete after unlock: %v", err)
	}
	if _, ok := store.byID[d.ID]; ok {
		t.Fatalf("expected dispatch gone from the system of record")
	}
	if c.HasFreshDispatches() || c.HasFreshUnassignedJobs() {
		t.Fatalf("dispatch-derived caches must be invalidated so the job reappears unassigned on next read")
	}
}

func TestIsLockedCachedNeverErrors(t *testing.T) {
	store := newFakeDispatchStore()
	m, c, _, _ := newTestManager(t, store)

	if m.IsLockedCached("missing") {
		t.Fatalf("unknown dispatch must default to unlocked")
	}
	c.SetDispatches([]models.Dispatch{{ID: "d1", Status: models.DispatchInProgress}})
	if !m.IsLockedCached("d1") {
		t.Fatalf("in_progress counts as locked")
	}
}
