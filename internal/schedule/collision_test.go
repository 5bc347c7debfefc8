package schedule

import (
	"testing"
	"time"

	"github.com/fieldworks/dispatchboard/internal/models"
)

func at(t *testing.T, hour, min int) time.Time {
	t.Helper()
	return time.Date(2024, 1, 1, hour, min, 0, 0, time.UTC)
}

func scheduledJob(t *testing.T, id, title string, startH, startM, endH, endM int) models.Job {
	t.Helper()
	start := at(t, startH, startM)
	end := at(t, endH, endM)
	return models.Job{ID: id, Title: title, ScheduledStart: &start, ScheduledEnd: &end}
}

func TestOverlapsSymmetry(t *testing.T) {
	cases := []struct{ s1, e1, s2, e2 time.Time }{
		{at(t, 9, 0), at(t, 10, 0), at(t, 9, 30), at(t, 10, 30)},
		{at(t, 9, 0), at(t, 10, 0), at(t, 11, 0), at(t, 12, 0)},
		{at(t, 9, 0), at(t, 12, 0), at(t, 10, 0), at(t, 11, 0)},
	}
	for _, c := range cases {
		if Overlaps(c.s1, c.e1, c.s2, c.e2) != Overlaps(c.s2, c.e2, c.s1, c.e1) {
			t.Fatalf("overlap not symmetric for %v-%v vs %v-%v", c.s1, c.e1, c.s2, c.e2)
		}
	}
}

func TestTouchingEdgesDoNotOverlap(t *testing.T) {
	if Overlaps(at(t, 10, 0), at(t, 11, 0), at(t, 11, 0), at(t, 12, 0)) {
		t.Fatalf("touching intervals must not overlap")
	}
}

func TestCheckCollisionReportsAllOverlaps(t *testing.T) {
	existing := []models.Job{
		scheduledJob(t, "j1", "Boiler service", 9, 0, 10, 0),
		scheduledJob(t, "j2", "Filter swap", 9, 30, 10, 30),
		scheduledJob(t, "j3", "Afternoon visit", 14, 0, 15, 0),
	}
	res := CheckCollision(at(t, 9, 15), at(t, 10, 15), existing, "")
	if !res.HasCollision {
		t.Fatalf("expected collision")
	}
	if len(res.OverlappingJobs) != 2 {
		t.Fatalf("expected 2 overlapping jobs, got %d", len(res.OverlappingJobs))
	}
	if res.Message == "" {
		t.Fatalf("expected message listing titles")
	}
}

func TestCheckCollisionExclusion(t *testing.T) {
	existing := []models.Job{scheduledJob(t, "j1", "Self", 9, 0, 10, 0)}
	res := CheckCollision(at(t, 9, 0), at(t, 10, 0), existing, "j1")
	if res.HasCollision {
		t.Fatalf("excluded job must never be reported as overlapping")
	}
}

func TestCheckCollisionIgnoresUnscheduled(t *testing.T) {
	start := at(t, 9, 0)
	existing := []models.Job{
		{ID: "j1", Title: "No end", ScheduledStart: &start},
		{ID: "j2", Title: "Nothing"},
	}
	res := CheckCollision(at(t, 9, 0), at(t, 10, 0), existing, "")
	if res.HasCollision {
		t.Fatalf("jobs without both endpoints cannot conflict")
	}
}

func TestFindNextAvailableSlotSkipsShortGaps(t *testing.T) {
	existing := []models.Job{
		scheduledJob(t, "j1", "Morning", 9, 0, 10, 0),
		scheduledJob(t, "j2", "Midday", 10, 30, 11, 30),
	}
	slot, ok := FindNextAvailableSlot(at(t, 9, 0), 60, existing, 17)
	if !ok {
		t.Fatalf("expected a slot")
	}
	if !slot.Equal(at(t, 11, 30)) {
		t.Fatalf("expected slot at 11:30, got %v", slot)
	}
}

func TestFindNextAvailableSlotUsesFittingGap(t *testing.T) {
	existing := []models.Job{
		scheduledJob(t, "j1", "Morning", 9, 0, 10, 0),
		scheduledJob(t, "j2", "Late", 11, 0, 12, 0),
	}
	slot, ok := FindNextAvailableSlot(at(t, 9, 0), 60, existing, 17)
	if !ok {
		t.Fatalf("expected a slot")
	}
	if !slot.Equal(at(t, 10, 0)) {
		t.Fatalf("expected the 10:00-11:00 gap, got %v", slot)
	}
}

func TestFindNextAvailableSlotRespectsWorkingHours(t *testing.T) {
	existing := []models.Job{scheduledJob(t, "j1", "All day", 9, 0, 16, 30)}
	if _, ok := FindNextAvailableSlot(at(t, 9, 0), 60, existing, 17); ok {
		t.Fatalf("slot ending past working hours must not be returned")
	}
}

func TestFindNextAvailableSlotAllowsEndExactlyAtClose(t *testing.T) {
	existing := []models.Job{scheduledJob(t, "j1", "All day", 9, 0, 16, 0)}
	slot, ok := FindNextAvailableSlot(at(t, 9, 0), 60, existing, 17)
	if !ok {
		t.Fatalf("slot ending exactly at close must be allowed")
	}
	if !slot.Equal(at(t, 16, 0)) {
		t.Fatalf("expected 16:00, got %v", slot)
	}
}

func TestFindNextAvailableSlotEmptyCalendar(t *testing.T) {
	slot, ok := FindNextAvailableSlot(at(t, 9, 0), 45, nil, 17)
	if !ok || !slot.Equal(at(t, 9, 0)) {
		t.Fatalf("empty calendar should keep the proposed start, got %v ok=%v", slot, ok)
	}
}
