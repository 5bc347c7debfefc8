package models

import (
	"errors"
	"fmt"
	"time"
)

// MinDispatchDurationMinutes is the floor for any scheduled interval.
// Resize and schedule updates that would shrink a dispatch below this
// are rejected before any remote call is made.
const MinDispatchDurationMinutes = 15

// DefaultJobDurationMinutes is used when a job carries no estimate.
const DefaultJobDurationMinutes = 60

type JobStatus string

const (
	JobUnassigned JobStatus = "unassigned"
	JobAssigned   JobStatus = "assigned"
	JobInProgress JobStatus = "in_progress"
	JobCompleted  JobStatus = "completed"
	JobCancelled  JobStatus = "cancelled"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

type DispatchStatus string

const (
	DispatchAssigned   DispatchStatus = "assigned"
	DispatchConfirmed  DispatchStatus = "confirmed"
	DispatchInProgress DispatchStatus = "in_progress"
	DispatchCompleted  DispatchStatus = "completed"
)

// Locked reports whether a dispatch in this status may no longer be
// freely moved or deleted. Confirmed and anything past it counts.
func (s DispatchStatus) Locked() bool {
	switch s {
	case DispatchConfirmed, DispatchInProgress, DispatchCompleted:
		return true
	}
	return false
}

type TechnicianStatus string

const (
	TechnicianAvailable    TechnicianStatus = "available"
	TechnicianBusy         TechnicianStatus = "busy"
	TechnicianOffline      TechnicianStatus = "offline"
	TechnicianOnLeave      TechnicianStatus = "on_leave"
	TechnicianNotWorking   TechnicianStatus = "not_working"
	TechnicianOverCapacity TechnicianStatus = "over_capacity"
)

type Location struct {
	Address string   `json:"address"`
	Lat     *float64 `json:"lat,omitempty"`
	Lng     *float64 `json:"lng,omitempty"`
}

type Job struct {
	ID                string     `json:"id"`
	Title             string     `json:"title"`
	Description       string     `json:"description,omitempty"`
	Status            JobStatus  `json:"status"`
	Priority          Priority   `json:"priority"`
	EstimatedDuration int        `json:"estimated_duration"`
	OriginalDuration  int        `json:"original_duration"`
	RequiredSkills    []string   `json:"required_skills,omitempty"`
	Location          Location   `json:"location"`
	CustomerName      string     `json:"customer_name,omitempty"`
	CustomerPhone     string     `json:"customer_phone,omitempty"`
	CustomerEmail     string     `json:"customer_email,omitempty"`
	ServiceOrderID    string     `json:"service_order_id"`
	InstallationID    string     `json:"installation_id,omitempty"`
	InstallationName  string     `json:"installation_name,omitempty"`
	DispatchID        string     `json:"dispatch_id,omitempty"`
	TechnicianID      string     `json:"technician_id,omitempty"`
	ScheduledStart    *time.Time `json:"scheduled_start,omitempty"`
	ScheduledEnd      *time.Time `json:"scheduled_end,omitempty"`
	IsLocked          bool       `json:"is_locked"`
}

// Scheduled reports whether the job carries a complete interval. Jobs
// missing either endpoint cannot take part in collision checks.
func (j Job) Scheduled() bool {
	return j.ScheduledStart != nil && j.ScheduledEnd != nil
}

type DaySchedule struct {
	Start      string `json:"start"`
	End        string `json:"end"`
	LunchStart string `json:"lunch_start,omitempty"`
	LunchEnd   string `json:"lunch_end,omitempty"`
}

type Technician struct {
	ID           string                 `json:"id"`
	FirstName    string                 `json:"first_name"`
	LastName     string                 `json:"last_name"`
	Email        string                 `json:"email,omitempty"`
	Skills       []string               `json:"skills,omitempty"`
	Status       TechnicianStatus       `json:"status"`
	WorkingHours map[string]DaySchedule `json:"working_hours,omitempty"`
	Location     *Location              `json:"location,omitempty"`
}

func (t Technician) DisplayName() string {
	if t.FirstName == "" && t.LastName == "" {
		return t.Email
	}
	if t.LastName == "" {
		return t.FirstName
	}
	return t.FirstName + " " + t.LastName
}

type Dispatch struct {
	ID             string         `json:"id"`
	Status         DispatchStatus `json:"status"`
	Priority       Priority       `json:"priority"`
	TechnicianID   string         `json:"technician_id"`
	ScheduledStart time.Time      `json:"scheduled_start"`
	ScheduledEnd   time.Time      `json:"scheduled_end"`
	JobIDs         []string       `json:"job_ids"`
	ServiceOrderID string         `json:"service_order_id,omitempty"`
	InstallationID string         `json:"installation_id,omitempty"`
	CreatedBy      string         `json:"created_by,omitempty"`
	CreatedAt      time.Time      `json:"created_at,omitempty"`
	ModifiedBy     string         `json:"modified_by,omitempty"`
	ModifiedAt     time.Time      `json:"modified_at,omitempty"`
}

// References reports whether the dispatch covers the given job id.
func (d Dispatch) References(jobID string) bool {
	for _, id := range d.JobIDs {
		if id == jobID {
			return true
		}
	}
	return false
}

type ServiceOrderStatus string

const (
	OrderPending          ServiceOrderStatus = "pending"
	OrderReadyForPlanning ServiceOrderStatus = "ready_for_planning"
	OrderPlanned          ServiceOrderStatus = "planned"
	OrderCompleted        ServiceOrderStatus = "completed"
	OrderCancelled        ServiceOrderStatus = "cancelled"
)

type ServiceOrder struct {
	ID           string             `json:"id"`
	Title        string             `json:"title"`
	Status       ServiceOrderStatus `json:"status"`
	CustomerName string             `json:"customer_name,omitempty"`
	Jobs         []Job              `json:"jobs,omitempty"`
}

// InstallationGroup is a transient grouping of jobs that share an
// installation within one service order. It is never persisted; it only
// feeds a single grouped dispatch creation.
type InstallationGroup struct {
	InstallationID   string `json:"installation_id"`
	InstallationName string `json:"installation_name,omitempty"`
	ServiceOrderID   string `json:"service_order_id"`
	Jobs             []Job  `json:"jobs"`
}

// TotalDuration sums the member jobs' estimates, substituting the
// default for jobs without one.
func (g InstallationGroup) TotalDuration() int {
	total := 0
	for _, j := range g.Jobs {
		if j.EstimatedDuration > 0 {
			total += j.EstimatedDuration
		} else {
			total += DefaultJobDurationMinutes
		}
	}
	return total
}

var ErrIntervalInverted = errors.New("interval end must be after start")

// ValidateInterval enforces ordering and the minimum duration floor.
func ValidateInterval(start, end time.Time) error {
	if !end.After(start) {
		return ErrIntervalInverted
	}
	if end.Sub(start) < MinDispatchDurationMinutes*time.Minute {
		return fmt.Errorf("interval shorter than %d minutes", MinDispatchDurationMinutes)
	}
	return nil
}
