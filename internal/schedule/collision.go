package schedule

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/fieldworks/dispatchboard/internal/models"
)

// DefaultWorkingHoursEnd bounds the forward slot search when the caller
// does not supply an end-of-day hour.
const DefaultWorkingHoursEnd = 17

type CollisionResult struct {
	HasCollision    bool         `json:"has_collision"`
	OverlappingJobs []models.Job `json:"overlapping_jobs,omitempty"`
	Message         string       `json:"message,omitempty"`
}

// Overlaps reports whether the half-open intervals [s1,e1) and [s2,e2)
// intersect. Touching edges do not overlap.
func Overlaps(s1, e1, s2, e2 time.Time) bool {
	return s1.Before(e2) && s2.Before(e1)
}

// CheckCollision tests a proposed interval against a technician's
// existing jobs. Jobs without a complete interval are ignored, as is the
// job named by excludeJobID (used when re-checking a job against its own
// stored slot during a reschedule). All overlapping jobs are returned,
// not just the first.
func CheckCollision(start, end time.Time, existing []models.Job, excludeJobID string) CollisionResult {
	var hits []models.Job
	for _, j := range existing {
		if excludeJobID != "" && j.ID == excludeJobID {
			continue
		}
		if !j.Scheduled() {
			continue
		}
		if Overlaps(start, end, *j.ScheduledStart, *j.ScheduledEnd) {
			hits = append(hits, j)
		}
	}
	if len(hits) == 0 {
		return CollisionResult{}
	}
	titles := make([]string, 0, len(hits))
	for _, j := range hits {
		titles = append(titles, j.Title)
	}
	return CollisionResult{
		HasCollision:    true,
		OverlappingJobs: hits,
		Message:         fmt.Sprintf("proposed slot overlaps %d existing job(s): %s", len(hits), strings.Join(titles, ", ")),
	}
}

// FindNextAvailableSlot walks forward from the proposed start looking
// for the first gap wide enough for the requested duration. Existing
// jobs are scanned in start order; whenever the candidate would run into
// a job it is pushed to that job's end. The search fails when the
// resulting slot would end past workingHoursEnd (hour of day, not full
// datetime). Returns the slot start and whether one was found.
func FindNextAvailableSlot(proposedStart time.Time, durationMinutes int, existing []models.Job, workingHoursEnd int) (time.Time, bool) {
	if workingHoursEnd <= 0 {
		workingHoursEnd = DefaultWorkingHoursEnd
	}
	duration := time.Duration(durationMinutes) * time.Minute

	scheduled := make([]models.Job, 0, len(existing))
	for _, j := range existing {
		if j.Scheduled() {
			scheduled = append(scheduled, j)
		}
	}
	sort.Slice(scheduled, func(i, k int) bool {
		return scheduled[i].ScheduledStart.Before(*scheduled[k].ScheduledStart)
	})

	candidate := proposedStart
	for _, j := range scheduled {
		if !candidate.Add(duration).After(*j.ScheduledStart) {
			return candidate, true
		}
		if candidate.Before(*j.ScheduledEnd) {
			candidate = *j.ScheduledEnd
		}
	}

	end := candidate.Add(duration)
	if end.Hour() < workingHoursEnd || (end.Hour() == workingHoursEnd && end.Minute() == 0 && end.Second() == 0) {
		return candidate, true
	}
	return time.Time{}, false
}
