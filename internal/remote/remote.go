// Package remote defines the collaborator interfaces the scheduling
// engine depends on, together with HTTP implementations against the
// field-service backend. The engine itself only ever sees the
// interfaces; tests substitute in-memory fakes.
package remote

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("remote: not found")

type DispatchFilter struct {
	TechnicianID string `json:"technician_id,omitempty"`
	DateFrom     string `json:"date_from,omitempty"`
	DateTo       string `json:"date_to,omitempty"`
	Status       string `json:"status,omitempty"`
	Page         int    `json:"page,omitempty"`
	PageSize     int    `json:"page_size,omitempty"`
}

type DispatchPage struct {
	Items      []RemoteDispatch `json:"items"`
	TotalCount int              `json:"total_count"`
}

type ServiceOrderFilter struct {
	Status   string `json:"status,omitempty"`
	Page     int    `json:"page,omitempty"`
	PageSize int    `json:"page_size,omitempty"`
}

type ServiceOrderPage struct {
	Items      []RemoteServiceOrder `json:"items"`
	TotalCount int                  `json:"total_count"`
}

// DispatchStore is the remote system of record for dispatches.
type DispatchStore interface {
	GetAll(ctx context.Context, filter DispatchFilter) (DispatchPage, error)
	GetByID(ctx context.Context, id string) (RemoteDispatch, error)
	CreateFromJob(ctx context.Context, jobID string, req CreateDispatchRequest) (RemoteDispatch, error)
	CreateFromInstallation(ctx context.Context, req CreateInstallationDispatchRequest) (RemoteDispatch, error)
	Update(ctx context.Context, id string, patch DispatchPatch) error
	UpdateStatus(ctx context.Context, id, status, substatus string) error
	Delete(ctx context.Context, id string) error
	AddNote(ctx context.Context, id, text, kind string) error
}

type ServiceOrderStore interface {
	GetAll(ctx context.Context, filter ServiceOrderFilter) (ServiceOrderPage, error)
	GetByID(ctx context.Context, id string, includeJobs bool) (RemoteServiceOrder, error)
	AddNote(ctx context.Context, id string, note OrderNote) error
}

type UserDirectory interface {
	GetAll(ctx context.Context) ([]RemoteUser, error)
	GetByID(ctx context.Context, id string) (RemoteUser, error)
}

type InstallationDirectory interface {
	GetByID(ctx context.Context, id string) (RemoteInstallation, error)
}

// NotificationSink delivers board notifications. Calls are best-effort:
// callers swallow and log failures.
type NotificationSink interface {
	Create(ctx context.Context, n Notification) error
}
