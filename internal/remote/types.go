package remote

import "time"

// Wire shapes for the field-service backend. Field names follow the
// backend's camelCase JSON, not the local snake_case domain model; the
// mapping package owns the translation.

// RemoteTechnicianRef is the object form of a technician reference on a
// dispatch record.
type RemoteTechnicianRef struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// RemoteDispatch carries the three technician encodings the backend has
// historically produced: a ref-object list, a bare id list, or a
// free-text "dispatchedBy" holding a numeric id. Extraction tries them
// in that order.
type RemoteDispatch struct {
	ID             string                `json:"id"`
	Status         string                `json:"status"`
	Substatus      string                `json:"substatus,omitempty"`
	Priority       string                `json:"priority,omitempty"`
	ScheduledDate  string                `json:"scheduledDate,omitempty"`
	StartTime      string                `json:"startTime,omitempty"`
	EndTime        string                `json:"endTime,omitempty"`
	JobIDs         []string              `json:"jobIds,omitempty"`
	ServiceOrderID string                `json:"serviceOrderId,omitempty"`
	InstallationID string                `json:"installationId,omitempty"`
	Technicians    []RemoteTechnicianRef `json:"technicians,omitempty"`
	TechnicianIDs  []string              `json:"technicianIds,omitempty"`
	DispatchedBy   string                `json:"dispatchedBy,omitempty"`
	CreatedBy      string                `json:"createdBy,omitempty"`
	CreatedAt      string                `json:"createdAt,omitempty"`
	ModifiedBy     string                `json:"modifiedBy,omitempty"`
	ModifiedAt     string                `json:"modifiedAt,omitempty"`
}

type CreateDispatchRequest struct {
	TechnicianID   string `json:"technicianId" validate:"required"`
	ScheduledDate  string `json:"scheduledDate" validate:"required"`
	StartTime      string `json:"startTime" validate:"required"`
	EndTime        string `json:"endTime" validate:"required"`
	Priority       string `json:"priority,omitempty"`
	Notes          string `json:"notes,omitempty"`
	IdempotencyKey string `json:"idempotencyKey,omitempty"`
}

type CreateInstallationDispatchRequest struct {
	InstallationID string   `json:"installationId" validate:"required"`
	ServiceOrderID string   `json:"serviceOrderId" validate:"required"`
	JobIDs         []string `json:"jobIds" validate:"required,min=1"`
	TechnicianID   string   `json:"technicianId" validate:"required"`
	ScheduledDate  string   `json:"scheduledDate" validate:"required"`
	StartTime      string   `json:"startTime" validate:"required"`
	EndTime        string   `json:"endTime" validate:"required"`
	Priority       string   `json:"priority,omitempty"`
	Notes          string   `json:"notes,omitempty"`
	IdempotencyKey string   `json:"idempotencyKey,omitempty"`
}

// DispatchPatch is a partial update; nil fields are left untouched.
type DispatchPatch struct {
	ScheduledDate *string `json:"scheduledDate,omitempty"`
	StartTime     *string `json:"startTime,omitempty"`
	EndTime       *string `json:"endTime,omitempty"`
	Priority      *string `json:"priority,omitempty"`
	ModifiedBy    *string `json:"modifiedBy,omitempty"`
}

type RemoteJob struct {
	ID                string   `json:"id"`
	Title             string   `json:"title"`
	Description       string   `json:"description,omitempty"`
	Status            string   `json:"status"`
	Priority          string   `json:"priority,omitempty"`
	EstimatedDuration int      `json:"estimatedDuration,omitempty"`
	RequiredSkills    []string `json:"requiredSkills,omitempty"`
	Address           string   `json:"address,omitempty"`
	Lat               *float64 `json:"lat,omitempty"`
	Lng               *float64 `json:"lng,omitempty"`
	CustomerName      string   `json:"customerName,omitempty"`
	CustomerPhone     string   `json:"customerPhone,omitempty"`
	CustomerEmail     string   `json:"customerEmail,omitempty"`
	ServiceOrderID    string   `json:"serviceOrderId,omitempty"`
	InstallationID    string   `json:"installationId,omitempty"`
}

type RemoteServiceOrder struct {
	ID           string      `json:"id"`
	Title        string      `json:"title"`
	Status       string      `json:"status"`
	CustomerName string      `json:"customerName,omitempty"`
	Jobs         []RemoteJob `json:"jobs,omitempty"`
}

type OrderNote struct {
	Content string `json:"content"`
	Type    string `json:"type"`
}

type RemoteUser struct {
	ID           string              `json:"id"`
	FirstName    string              `json:"firstName,omitempty"`
	LastName     string              `json:"lastName,omitempty"`
	Email        string              `json:"email,omitempty"`
	Skills       []string            `json:"skills,omitempty"`
	Status       string              `json:"status,omitempty"`
	WorkingHours map[string]DayHours `json:"workingHours,omitempty"`
}

type DayHours struct {
	Start      string `json:"start"`
	End        string `json:"end"`
	LunchStart string `json:"lunchStart,omitempty"`
	LunchEnd   string `json:"lunchEnd,omitempty"`
}

type RemoteInstallation struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Notification struct {
	ID                string `json:"id,omitempty"`
	UserID            string `json:"userId"`
	Title             string `json:"title"`
	Description       string `json:"description,omitempty"`
	Type              string `json:"type,omitempty"`
	Category          string `json:"category,omitempty"`
	Link              string `json:"link,omitempty"`
	RelatedEntityID   string `json:"relatedEntityId,omitempty"`
	RelatedEntityType string `json:"relatedEntityType,omitempty"`
}

// Date and clock layouts used by the backend's schedule fields.
const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// ScheduledDay parses the dispatch's calendar date.
func (d RemoteDispatch) ScheduledDay() (time.Time, bool) {
	if d.ScheduledDate == "" {
		return time.Time{}, false
	}
	day, err := time.Parse(DateLayout, d.ScheduledDate)
	if err != nil {
		return time.Time{}, false
	}
	return day, true
}

// ExplicitTimes combines the dispatch date with its start/end clock
// fields. Requires at least the start time; a missing end defaults to
// one hour after start.
func (d RemoteDispatch) ExplicitTimes() (time.Time, time.Time, bool) {
	day, ok := d.ScheduledDay()
	if !ok || d.StartTime == "" {
		return time.Time{}, time.Time{}, false
	}
	start, err := combineDayClock(day, d.StartTime)
	if err != nil {
		return time.Time{}, time.Time{}, false
	}
	end := start.Add(time.Hour)
	if d.EndTime != "" {
		if e, err := combineDayClock(day, d.EndTime); err == nil {
			end = e
		}
	}
	return start, end, true
}

func combineDayClock(day time.Time, clock string) (time.Time, error) {
	t, err := time.Parse(TimeLayout, clock)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(day.Year(), day.Month(), day.Day(), t.Hour(), t.Minute(), 0, 0, time.UTC), nil
}
