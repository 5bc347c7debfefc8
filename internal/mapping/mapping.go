// Package mapping translates the backend's wire shapes into the local
// domain model the scheduler works with, including the unassigned-pool
// filter and installation-name resolution.
package mapping

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/fieldworks/dispatchboard/internal/cache"
	"github.com/fieldworks/dispatchboard/internal/dispatch"
	"github.com/fieldworks/dispatchboard/internal/localstore"
	"github.com/fieldworks/dispatchboard/internal/models"
	"github.com/fieldworks/dispatchboard/internal/remote"
)

// installationBatchSize bounds one round of name lookups.
const installationBatchSize = 15

// Job statuses that keep a job out of the unassigned pool even when no
// dispatch references it.
var pooledStatusExclusions = map[string]struct{}{
	"completed":   {},
	"cancelled":   {},
	"dispatched":  {},
	"in_progress": {},
	"scheduled":   {},
	"planned":     {},
	"assigned":    {},
}

// Service-order statuses whose jobs are candidates for the pool.
var plannableOrderStatuses = map[string]struct{}{
	string(models.OrderPending):          {},
	string(models.OrderReadyForPlanning): {},
}

type Mapper struct {
	Cache         *cache.Cache
	Installations remote.InstallationDirectory
	Overrides     localstore.OverrideStore
	Logger        zerolog.Logger
}

func JobFromRemote(rj remote.RemoteJob) models.Job {
	duration := rj.EstimatedDuration
	if duration <= 0 {
		duration = models.DefaultJobDurationMinutes
	}
	return models.Job{
		ID:                rj.ID,
		Title:             rj.Title,
		Description:       rj.Description,
		Status:            models.JobStatus(rj.Status),
		Priority:          models.Priority(rj.Priority),
		EstimatedDuration: duration,
		OriginalDuration:  duration,
		RequiredSkills:    rj.RequiredSkills,
		Location:          models.Location{Address: rj.Address, Lat: rj.Lat, Lng: rj.Lng},
		CustomerName:      rj.CustomerName,
		CustomerPhone:     rj.CustomerPhone,
		CustomerEmail:     rj.CustomerEmail,
		ServiceOrderID:    rj.ServiceOrderID,
		InstallationID:    rj.InstallationID,
	}
}

func TechnicianFromRemote(ru remote.RemoteUser) models.Technician {
	var hours map[string]models.DaySchedule
	if len(ru.WorkingHours) > 0 {
		hours = make(map[string]models.DaySchedule, len(ru.WorkingHours))
		for day, h := range ru.WorkingHours {
			hours[day] = models.DaySchedule{
				Start:      h.Start,
				End:        h.End,
				LunchStart: h.LunchStart,
				LunchEnd:   h.LunchEnd,
			}
		}
	}
	status := models.TechnicianStatus(ru.Status)
	if ru.Status == "" {
		status = models.TechnicianAvailable
	}
	return models.Technician{
		ID:           ru.ID,
		FirstName:    ru.FirstName,
		LastName:     ru.LastName,
		Email:        ru.Email,
		Skills:       ru.Skills,
		Status:       status,
		WorkingHours: hours,
	}
}

func ServiceOrderFromRemote(ro remote.RemoteServiceOrder) models.ServiceOrder {
	jobs := make([]models.Job, 0, len(ro.Jobs))
	for _, rj := range ro.Jobs {
		jobs = append(jobs, JobFromRemote(rj))
	}
	return models.ServiceOrder{
		ID:           ro.ID,
		Title:        ro.Title,
		Status:       models.ServiceOrderStatus(ro.Status),
		CustomerName: ro.CustomerName,
		Jobs:         jobs,
	}
}

// DispatchFromRemote builds the local dispatch record, resolving the
// technician reference through the tolerant extraction path.
func DispatchFromRemote(rd remote.RemoteDispatch) models.Dispatch {
	techID, _ := dispatch.ExtractTechnicianID(rd)
	start, end, ok := rd.ExplicitTimes()
	if !ok {
		if day, hasDay := rd.ScheduledDay(); hasDay {
			start = day
			end = day.Add(models.DefaultJobDurationMinutes * time.Minute)
		}
	}
	return models.Dispatch{
		ID:             rd.ID,
		Status:         models.DispatchStatus(rd.Status),
		Priority:       models.Priority(rd.Priority),
		TechnicianID:   techID,
		ScheduledStart: start,
		ScheduledEnd:   end,
		JobIDs:         rd.JobIDs,
		ServiceOrderID: rd.ServiceOrderID,
		InstallationID: rd.InstallationID,
		CreatedBy:      rd.CreatedBy,
		ModifiedBy:     rd.ModifiedBy,
	}
}

// UnassignedPool filters the plannable orders' jobs down to those not
// referenced by any known dispatch and not already in a terminal or
// in-progress-like status.
func UnassignedPool(orders []remote.RemoteServiceOrder, dispatches []models.Dispatch) []models.Job {
	referenced := map[string]struct{}{}
	for _, rd := range dispatches {
		for _, id := range rd.JobIDs {
			referenced[id] = struct{}{}
		}
	}

	var pool []models.Job
	for _, ro := range orders {
		if _, ok := plannableOrderStatuses[ro.Status]; !ok {
			continue
		}
		for _, rj := range ro.Jobs {
			if _, taken := referenced[rj.ID]; taken {
				continue
			}
			if _, excluded := pooledStatusExclusions[rj.Status]; excluded {
				continue
			}
			job := JobFromRemote(rj)
			job.Status = models.JobUnassigned
			pool = append(pool, job)
		}
	}
	return pool
}

// JobFromDispatch reconstructs the scheduled job a dispatch represents.
// Interval precedence: local schedule override, then the record's
// explicit start/end clock fields, then the scheduled date with the
// default duration. Display duration is clamped to the minimum floor.
func (m *Mapper) JobFromDispatch(ctx context.Context, rd remote.RemoteDispatch) models.Job {
	var start, end time.Time

	if m.Overrides != nil {
		if ov, ok, err := m.Overrides.Override(ctx, rd.ID); err == nil && ok {
			start, end = ov.Start, ov.End
		} else if err != nil {
			m.Logger.Warn().Err(err).Str("dispatch_id", rd.ID).Msg("override read failed")
		}
	}
	if start.IsZero() {
		if s, e, ok := rd.ExplicitTimes(); ok {
			start, end = s, e
		} else if day, ok := rd.ScheduledDay(); ok {
			start = day
			end = day.Add(models.DefaultJobDurationMinutes * time.Minute)
		}
	}
	if !start.IsZero() && end.Sub(start) < models.MinDispatchDurationMinutes*time.Minute {
		end = start.Add(models.MinDispatchDurationMinutes * time.Minute)
	}

	status := models.DispatchStatus(rd.Status)
	techID, _ := dispatch.ExtractTechnicianID(rd)

	job := models.Job{
		Status:         jobStatusFromDispatch(status),
		Priority:       models.Priority(rd.Priority),
		ServiceOrderID: rd.ServiceOrderID,
		InstallationID: rd.InstallationID,
		DispatchID:     rd.ID,
		TechnicianID:   techID,
		IsLocked:       status.Locked(),
	}
	if len(rd.JobIDs) > 0 {
		job.ID = rd.JobIDs[0]
	} else {
		job.ID = rd.ID
	}
	if !start.IsZero() {
		s, e := start, end
		job.ScheduledStart = &s
		job.ScheduledEnd = &e
		job.EstimatedDuration = int(e.Sub(s) / time.Minute)
	}
	return job
}

func jobStatusFromDispatch(s models.DispatchStatus) models.JobStatus {
	switch s {
	case models.DispatchInProgress:
		return models.JobInProgress
	case models.DispatchCompleted:
		return models.JobCompleted
	default:
		return models.JobAssigned
	}
}

// ResolveInstallationNames fills in display names for every referenced
// installation, batching directory lookups and applying results to both
// the flat job list and the orders' nested jobs. Individual lookup
// failures are logged and skipped.
func (m *Mapper) ResolveInstallationNames(ctx context.Context, jobs []models.Job, orders []models.ServiceOrder) {
	pending := map[string]struct{}{}
	collect := func(js []models.Job) {
		for _, j := range js {
			if j.InstallationID == "" {
				continue
			}
			if _, cached := m.Cache.InstallationName(j.InstallationID); !cached {
				pending[j.InstallationID] = struct{}{}
			}
		}
	}
	collect(jobs)
	for _, o := range orders {
		collect(o.Jobs)
	}

	batch := make([]string, 0, installationBatchSize)
	flush := func() {
		for _, id := range batch {
			inst, err := m.Installations.GetByID(ctx, id)
			if err != nil {
				m.Logger.Warn().Err(err).Str("installation_id", id).Msg("installation name lookup failed")
				continue
			}
			m.Cache.SetInstallationName(id, inst.Name)
		}
		batch = batch[:0]
	}
	for id := range pending {
		batch = append(batch, id)
		if len(batch) == installationBatchSize {
			flush()
		}
	}
	flush()

	apply := func(js []models.Job) {
		for i := range js {
			if js[i].InstallationID == "" {
				continue
			}
			if name, ok := m.Cache.InstallationName(js[i].InstallationID); ok {
				js[i].InstallationName = name
			}
		}
	}
	apply(jobs)
	for i := range orders {
		apply(orders[i].Jobs)
	}
}
