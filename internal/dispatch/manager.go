// Package dispatch orchestrates the lifecycle of scheduling commitments
// against the remote system of record: assign, batch and group assign,
// reschedule, resize, lock/unlock, and delete, with in-flight mutation
// guards and a bounded undo log.
package dispatch

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/fieldworks/dispatchboard/internal/cache"
	"github.com/fieldworks/dispatchboard/internal/localstore"
	"github.com/fieldworks/dispatchboard/internal/models"
	"github.com/fieldworks/dispatchboard/internal/remote"
	"github.com/fieldworks/dispatchboard/internal/schedule"
)

// groupKeyPrefix namespaces installation-group guard keys away from
// plain job ids. The composite form must stay stable: other board
// clients build the same keys.
const groupKeyPrefix = "inst-"

type Config struct {
	WorkingHoursEnd           int
	DefaultJobDurationMinutes int
	UndoDepth                 int
}

type Deps struct {
	Cache         *cache.Cache
	Dispatches    remote.DispatchStore
	Orders        remote.ServiceOrderStore
	Notifications remote.NotificationSink
	Overrides     localstore.OverrideStore
	Identity      IdentityResolver
	Logger        zerolog.Logger
}

type Manager struct {
	cfg           Config
	cache         *cache.Cache
	dispatches    remote.DispatchStore
	orders        remote.ServiceOrderStore
	notifications remote.NotificationSink
	overrides     localstore.OverrideStore
	identity      IdentityResolver
	validate      *validator.Validate
	logger        zerolog.Logger
	clock         func() time.Time

	mu       sync.Mutex
	inFlight map[string]struct{}
	undo     *undoLog
}

func NewManager(cfg Config, deps Deps) *Manager {
	if cfg.WorkingHoursEnd <= 0 {
		cfg.WorkingHoursEnd = schedule.DefaultWorkingHoursEnd
	}
	if cfg.DefaultJobDurationMinutes <= 0 {
		cfg.DefaultJobDurationMinutes = models.DefaultJobDurationMinutes
	}
	identity := deps.Identity
	if identity == nil {
		identity = StaticIdentity{}
	}
	return &Manager{
		cfg:           cfg,
		cache:         deps.Cache,
		dispatches:    deps.Dispatches,
		orders:        deps.Orders,
		notifications: deps.Notifications,
		overrides:     deps.Overrides,
		identity:      identity,
		validate:      validator.New(),
		logger:        deps.Logger,
		clock:         time.Now,
		inFlight:      map[string]struct{}{},
		undo:          newUndoLog(cfg.UndoDepth),
	}
}

func (m *Manager) acquire(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, busy := m.inFlight[key]; busy {
		return &InFlightError{Key: key}
	}
	m.inFlight[key] = struct{}{}
	return nil
}

func (m *Manager) release(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.inFlight, key)
}

// PlanSlot pre-checks a proposed interval against a technician's
// existing jobs. On collision it auto-shifts to the next free slot; if
// the working day is exhausted it fails hard with ErrNoSlot.
func (m *Manager) PlanSlot(start time.Time, durationMinutes int, existing []models.Job, excludeJobID string) (time.Time, error) {
	if durationMinutes <= 0 {
		durationMinutes = m.cfg.DefaultJobDurationMinutes
	}
	end := start.Add(time.Duration(durationMinutes) * time.Minute)
	res := schedule.CheckCollision(start, end, existing, excludeJobID)
	if !res.HasCollision {
		return start, nil
	}
	slot, ok := schedule.FindNextAvailableSlot(start, durationMinutes, existing, m.cfg.WorkingHoursEnd)
	if !ok {
		return time.Time{}, fmt.Errorf("%w: %s", ErrNoSlot, res.Message)
	}
	m.logger.Debug().Time("proposed", start).Time("shifted", slot).Msg("slot auto-shifted around collision")
	return slot, nil
}

type AssignJobRequest struct {
	JobID           string `validate:"required"`
	JobTitle        string
	ServiceOrderID  string
	TechnicianID    string    `validate:"required"`
	Start           time.Time `validate:"required"`
	DurationMinutes int
	Priority        models.Priority
}

// AssignJob creates a dispatch for a single job. A second concurrent
// call for the same job id fails fast with an InFlightError; exactly
// one dispatch is ever created. Audit note and technician notification
// are best-effort and never abort the assignment.
func (m *Manager) AssignJob(ctx context.Context, req AssignJobRequest) (models.Dispatch, error) {
	if err := m.validate.Struct(req); err != nil {
		return models.Dispatch{}, fmt.Errorf("invalid assign request: %w", err)
	}
	if err := m.acquire(req.JobID); err != nil {
		return models.Dispatch{}, err
	}
	defer m.release(req.JobID)

	duration := req.DurationMinutes
	if duration <= 0 {
		duration = m.cfg.DefaultJobDurationMinutes
	}
	start := req.Start
	end := start.Add(time.Duration(duration) * time.Minute)
	actor := m.identity.DisplayName(ctx)

	rd, err := m.dispatches.CreateFromJob(ctx, req.JobID, remote.CreateDispatchRequest{
		TechnicianID:   req.TechnicianID,
		ScheduledDate:  start.Format(remote.DateLayout),
		StartTime:      start.Format(remote.TimeLayout),
		EndTime:        end.Format(remote.TimeLayout),
		Priority:       string(req.Priority),
		Notes:          fmt.Sprintf("%s assigned by %s", req.JobTitle, actor),
		IdempotencyKey: uuid.NewString(),
	})
	if err != nil {
		return models.Dispatch{}, err
	}

	created := models.Dispatch{
		ID:             rd.ID,
		Status:         models.DispatchAssigned,
		Priority:       req.Priority,
		TechnicianID:   req.TechnicianID,
		ScheduledStart: start,
		ScheduledEnd:   end,
		JobIDs:         []string{req.JobID},
		ServiceOrderID: req.ServiceOrderID,
		CreatedBy:      actor,
		CreatedAt:      m.clock(),
	}

	m.undo.push(UndoAction{
		Kind:        UndoAssign,
		DispatchID:  rd.ID,
		Description: fmt.Sprintf("assigned %s to technician %s", req.JobID, req.TechnicianID),
		At:          m.clock(),
		revert: func(ctx context.Context) error {
			return m.dispatches.Delete(ctx, rd.ID)
		},
	})
	m.cache.InvalidateDispatchData()

	m.addOrderNote(ctx, req.ServiceOrderID,
		fmt.Sprintf("Job %s scheduled %s %s-%s by %s", req.JobID,
			start.Format(remote.DateLayout), start.Format(remote.TimeLayout), end.Format(remote.TimeLayout), actor))
	m.notify(ctx, remote.Notification{
		UserID:            req.TechnicianID,
		Title:             "New job assigned",
		Description:       fmt.Sprintf("%s on %s at %s", req.JobTitle, start.Format(remote.DateLayout), start.Format(remote.TimeLayout)),
		Type:              "info",
		Category:          "dispatch",
		RelatedEntityID:   rd.ID,
		RelatedEntityType: "dispatch",
	})

	return created, nil
}

type BatchAssignRequest struct {
	ServiceOrderID string `validate:"required"`
	TechnicianID   string `validate:"required"`
	Start          time.Time
	Priority       models.Priority
	Jobs           []models.Job `validate:"required,min=1"`
}

type BatchFailure struct {
	JobID string
	Err   error
}

type BatchResult struct {
	Assigned []models.Dispatch
	Failed   []BatchFailure
}

// AssignServiceOrderBatch schedules a service order's jobs back to back
// on one technician. Starts are computed up front (each job begins at
// the previous job's end), then jobs are assigned strictly one at a
// time through the single-assign path; one failure does not abort the
// rest. The manager never errors on partial failure.
func (m *Manager) AssignServiceOrderBatch(ctx context.Context, req BatchAssignRequest) (BatchResult, error) {
	if err := m.validate.Struct(req); err != nil {
		return BatchResult{}, fmt.Errorf("invalid batch request: %w", err)
	}

	starts := make([]time.Time, len(req.Jobs))
	durations := make([]int, len(req.Jobs))
	cursor := req.Start
	for i, job := range req.Jobs {
		d := job.EstimatedDuration
		if d <= 0 {
			d = m.cfg.DefaultJobDurationMinutes
		}
		starts[i] = cursor
		durations[i] = d
		cursor = cursor.Add(time.Duration(d) * time.Minute)
	}

	var result BatchResult
	for i, job := range req.Jobs {
		d, err := m.AssignJob(ctx, AssignJobRequest{
			JobID:           job.ID,
			JobTitle:        job.Title,
			ServiceOrderID:  req.ServiceOrderID,
			TechnicianID:    req.TechnicianID,
			Start:           starts[i],
			DurationMinutes: durations[i],
			Priority:        req.Priority,
		})
		if err != nil {
			m.logger.Warn().Err(err).Str("job_id", job.ID).Msg("batch assign: job failed")
			result.Failed = append(result.Failed, BatchFailure{JobID: job.ID, Err: err})
			continue
		}
		result.Assigned = append(result.Assigned, d)
	}

	m.addOrderNote(ctx, req.ServiceOrderID,
		fmt.Sprintf("Batch assignment to technician %s: %d scheduled, %d failed",
			req.TechnicianID, len(result.Assigned), len(result.Failed)))
	return result, nil
}

type GroupAssignRequest struct {
	Group        models.InstallationGroup `validate:"required"`
	TechnicianID string                   `validate:"required"`
	Start        time.Time                `validate:"required"`
	Priority     models.Priority
}

// AssignInstallationGroup creates one dispatch covering every job that
// shares an installation. The guard key carries the installation id so
// duplicate group submissions are rejected without colliding with
// plain job-id guards.
func (m *Manager) AssignInstallationGroup(ctx context.Context, req GroupAssignRequest) (models.Dispatch, error) {
	if err := m.validate.Struct(req); err != nil {
		return models.Dispatch{}, fmt.Errorf("invalid group request: %w", err)
	}
	if len(req.Group.Jobs) == 0 {
		return models.Dispatch{}, fmt.Errorf("installation group %s has no jobs", req.Group.InstallationID)
	}

	key := groupKeyPrefix + req.Group.InstallationID
	if err := m.acquire(key); err != nil {
		return models.Dispatch{}, err
	}
	defer m.release(key)

	start := req.Start
	end := start.Add(time.Duration(req.Group.TotalDuration()) * time.Minute)
	actor := m.identity.DisplayName(ctx)

	jobIDs := make([]string, 0, len(req.Group.Jobs))
	for _, j := range req.Group.Jobs {
		jobIDs = append(jobIDs, j.ID)
	}

	rd, err := m.dispatches.CreateFromInstallation(ctx, remote.CreateInstallationDispatchRequest{
		InstallationID: req.Group.InstallationID,
		ServiceOrderID: req.Group.ServiceOrderID,
		JobIDs:         jobIDs,
		TechnicianID:   req.TechnicianID,
		ScheduledDate:  start.Format(remote.DateLayout),
		StartTime:      start.Format(remote.TimeLayout),
		EndTime:        end.Format(remote.TimeLayout),
		Priority:       string(req.Priority),
		Notes:          fmt.Sprintf("Installation %s (%d jobs) assigned by %s", req.Group.InstallationID, len(jobIDs), actor),
		IdempotencyKey: uuid.NewString(),
	})
	if err != nil {
		return models.Dispatch{}, err
	}

	created := models.Dispatch{
		ID:             rd.ID,
		Status:         models.DispatchAssigned,
		Priority:       req.Priority,
		TechnicianID:   req.TechnicianID,
		ScheduledStart: start,
		ScheduledEnd:   end,
		JobIDs:         jobIDs,
		ServiceOrderID: req.Group.ServiceOrderID,
		InstallationID: req.Group.InstallationID,
		CreatedBy:      actor,
		CreatedAt:      m.clock(),
	}

	m.undo.push(UndoAction{
		Kind:        UndoAssign,
		DispatchID:  rd.ID,
		Description: fmt.Sprintf("assigned installation %s to technician %s", req.Group.InstallationID, req.TechnicianID),
		At:          m.clock(),
		revert: func(ctx context.Context) error {
			return m.dispatches.Delete(ctx, rd.ID)
		},
	})
	m.cache.InvalidateDispatchData()

	m.addOrderNote(ctx, req.Group.ServiceOrderID,
		fmt.Sprintf("Installation %s scheduled with %d jobs by %s", req.Group.InstallationID, len(jobIDs), actor))
	m.notify(ctx, remote.Notification{
		UserID:            req.TechnicianID,
		Title:             "Installation assigned",
		Description:       fmt.Sprintf("%d jobs at %s", len(jobIDs), req.Group.InstallationName),
		Type:              "info",
		Category:          "dispatch",
		RelatedEntityID:   rd.ID,
		RelatedEntityType: "dispatch",
	})

	return created, nil
}

// UnassignJob deletes a dispatch, freeing its jobs back to the
// unassigned pool. Refused while the dispatch is confirmed or further
// along; the current status is resolved remotely first so a stale cache
// cannot permit a forbidden delete. The action lands in the undo log
// for history but is not revertible.
func (m *Manager) UnassignJob(ctx context.Context, dispatchID string) error {
	rd, err := m.dispatches.GetByID(ctx, dispatchID)
	if err != nil {
		return err
	}
	status := models.DispatchStatus(rd.Status)
	if status.Locked() {
		return &StateConflictError{DispatchID: dispatchID, Status: status}
	}

	if err := m.dispatches.Delete(ctx, dispatchID); err != nil {
		return err
	}

	m.undo.push(UndoAction{
		Kind:        UndoUnassign,
		DispatchID:  dispatchID,
		Description: fmt.Sprintf("unassigned dispatch %s (%s)", dispatchID, strings.Join(rd.JobIDs, ",")),
		At:          m.clock(),
	})
	m.cache.InvalidateDispatchData()
	m.addOrderNote(ctx, rd.ServiceOrderID,
		fmt.Sprintf("Dispatch %s removed by %s", dispatchID, m.identity.DisplayName(ctx)))
	return nil
}

// Reschedule moves a dispatch's start, keeping the remote record's end
// fields as the backend recomputes them. The original start is captured
// first so the move can be undone.
func (m *Manager) Reschedule(ctx context.Context, dispatchID string, newStart time.Time) error {
	rd, err := m.dispatches.GetByID(ctx, dispatchID)
	if err != nil {
		return err
	}
	origDate := rd.ScheduledDate
	origStart := rd.StartTime

	if err := m.patchTimes(ctx, dispatchID, newStart.Format(remote.DateLayout), newStart.Format(remote.TimeLayout), ""); err != nil {
		return err
	}

	m.undo.push(UndoAction{
		Kind:        UndoReschedule,
		DispatchID:  dispatchID,
		Description: fmt.Sprintf("rescheduled %s to %s %s", dispatchID, newStart.Format(remote.DateLayout), newStart.Format(remote.TimeLayout)),
		At:          m.clock(),
		revert: func(ctx context.Context) error {
			return m.patchTimes(ctx, dispatchID, origDate, origStart, "")
		},
	})
	m.cache.InvalidateDispatchData()
	return nil
}

// UpdateSchedule replaces a dispatch's full interval. The new times are
// also written to the local override store so reads can serve them
// before the backend's read path catches up.
func (m *Manager) UpdateSchedule(ctx context.Context, dispatchID string, start, end time.Time) error {
	if !end.After(start) || end.Sub(start) < models.MinDispatchDurationMinutes*time.Minute {
		return ErrDurationTooShort
	}

	rd, err := m.dispatches.GetByID(ctx, dispatchID)
	if err != nil {
		return err
	}
	origDate, origStart, origEnd := rd.ScheduledDate, rd.StartTime, rd.EndTime

	if err := m.patchTimes(ctx, dispatchID, start.Format(remote.DateLayout), start.Format(remote.TimeLayout), end.Format(remote.TimeLayout)); err != nil {
		return err
	}
	m.saveOverride(ctx, dispatchID, start, end)

	m.undo.push(UndoAction{
		Kind:        UndoReschedule,
		DispatchID:  dispatchID,
		Description: fmt.Sprintf("updated schedule of %s", dispatchID),
		At:          m.clock(),
		revert: func(ctx context.Context) error {
			if err := m.patchTimes(ctx, dispatchID, origDate, origStart, origEnd); err != nil {
				return err
			}
			return m.overrides.DeleteOverride(ctx, dispatchID)
		},
	})
	m.cache.InvalidateDispatchData()
	return nil
}

// Resize changes only the end of a dispatch. The start is recovered
// from the remote record, then the whole interval is persisted the same
// way UpdateSchedule does.
func (m *Manager) Resize(ctx context.Context, dispatchID string, newEnd time.Time) error {
	rd, err := m.dispatches.GetByID(ctx, dispatchID)
	if err != nil {
		return err
	}
	start, _, ok := rd.ExplicitTimes()
	if !ok {
		return fmt.Errorf("dispatch %s has no scheduled start to resize from", dispatchID)
	}
	if !newEnd.After(start) || newEnd.Sub(start) < models.MinDispatchDurationMinutes*time.Minute {
		return ErrDurationTooShort
	}

	if err := m.patchTimes(ctx, dispatchID, rd.ScheduledDate, rd.StartTime, newEnd.Format(remote.TimeLayout)); err != nil {
		return err
	}
	m.saveOverride(ctx, dispatchID, start, newEnd)
	m.cache.InvalidateDispatchData()
	return nil
}

// Lock confirms a dispatch, excluding it from further moves at the
// board boundary.
func (m *Manager) Lock(ctx context.Context, dispatchID string) error {
	if err := m.dispatches.UpdateStatus(ctx, dispatchID, string(models.DispatchConfirmed), ""); err != nil {
		return err
	}
	m.cache.InvalidateDispatchData()
	m.addDispatchNote(ctx, dispatchID, fmt.Sprintf("Locked by %s", m.identity.DisplayName(ctx)))
	return nil
}

// Unlock returns a confirmed dispatch to the assigned state.
func (m *Manager) Unlock(ctx context.Context, dispatchID string) error {
	if err := m.dispatches.UpdateStatus(ctx, dispatchID, string(models.DispatchAssigned), ""); err != nil {
		return err
	}
	m.cache.InvalidateDispatchData()
	m.addDispatchNote(ctx, dispatchID, fmt.Sprintf("Unlocked by %s", m.identity.DisplayName(ctx)))
	return nil
}

// UpdateStatus moves a dispatch along its lifecycle (in_progress,
// completed) without the lock/unlock note ceremony.
func (m *Manager) UpdateStatus(ctx context.Context, dispatchID string, status models.DispatchStatus, substatus string) error {
	if err := m.dispatches.UpdateStatus(ctx, dispatchID, string(status), substatus); err != nil {
		return err
	}
	m.cache.InvalidateDispatchData()
	return nil
}

// IsLocked resolves the dispatch status remotely and reports whether it
// counts as locked.
func (m *Manager) IsLocked(ctx context.Context, dispatchID string) (bool, error) {
	rd, err := m.dispatches.GetByID(ctx, dispatchID)
	if err != nil {
		return false, err
	}
	return models.DispatchStatus(rd.Status).Locked(), nil
}

// IsLockedCached answers from the dispatch cache only. Safe for
// render-hot paths: never errors, defaults to false when the dispatch
// is not cached.
func (m *Manager) IsLockedCached(dispatchID string) bool {
	for _, d := range m.cache.Dispatches() {
		if d.ID == dispatchID {
			return d.Status.Locked()
		}
	}
	return false
}

// Undo reverts the most recent reversible action. Popping an
// informational entry (an unassign) reports false: deletion cannot be
// reversed. Failures are reported as false and logged, never raised.
func (m *Manager) Undo(ctx context.Context) bool {
	a, ok := m.undo.pop()
	if !ok {
		return false
	}
	if !a.Reversible() {
		m.logger.Info().Str("dispatch_id", a.DispatchID).Str("kind", string(a.Kind)).Msg("undo: action is not reversible")
		return false
	}
	if err := a.revert(ctx); err != nil {
		m.logger.Error().Err(err).Str("dispatch_id", a.DispatchID).Str("kind", string(a.Kind)).Msg("undo failed")
		return false
	}
	m.cache.InvalidateDispatchData()
	return true
}

// UndoDepth reports how many actions the log currently holds.
func (m *Manager) UndoDepth() int {
	return m.undo.depth()
}

func (m *Manager) patchTimes(ctx context.Context, dispatchID, date, startTime, endTime string) error {
	actor := m.identity.DisplayName(ctx)
	patch := remote.DispatchPatch{ModifiedBy: &actor}
	if date != "" {
		patch.ScheduledDate = &date
	}
	if startTime != "" {
		patch.StartTime = &startTime
	}
	if endTime != "" {
		patch.EndTime = &endTime
	}
	return m.dispatches.Update(ctx, dispatchID, patch)
}

func (m *Manager) saveOverride(ctx context.Context, dispatchID string, start, end time.Time) {
	err := m.overrides.PutOverride(ctx, dispatchID, localstore.ScheduleOverride{
		Start:   start,
		End:     end,
		SavedAt: m.clock(),
	})
	if err != nil {
		m.logger.Warn().Err(err).Str("dispatch_id", dispatchID).Msg("failed to persist schedule override")
	}
}

func (m *Manager) addOrderNote(ctx context.Context, serviceOrderID, content string) {
	if serviceOrderID == "" || m.orders == nil {
		return
	}
	if err := m.orders.AddNote(ctx, serviceOrderID, remote.OrderNote{Content: content, Type: "dispatch"}); err != nil {
		m.logger.Warn().Err(err).Str("service_order_id", serviceOrderID).Msg("failed to add order note")
	}
}

func (m *Manager) addDispatchNote(ctx context.Context, dispatchID, text string) {
	if err := m.dispatches.AddNote(ctx, dispatchID, text, "status"); err != nil {
		m.logger.Warn().Err(err).Str("dispatch_id", dispatchID).Msg("failed to add dispatch note")
	}
}

func (m *Manager) notify(ctx context.Context, n remote.Notification) {
	if m.notifications == nil {
		return
	}
	if err := m.notifications.Create(ctx, n); err != nil {
		m.logger.Warn().Err(err).Str("user_id", n.UserID).Msg("failed to deliver notification")
	}
}
