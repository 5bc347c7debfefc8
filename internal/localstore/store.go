// Package localstore persists small device-local records that must
// survive process restarts: per-dispatch schedule overrides and
// per-technician metadata blobs.
package localstore

import (
	"context"
	"encoding/json"
	"time"
)

// ScheduleOverride is a locally saved interval for a dispatch. It takes
// precedence over the server-reported start/end when mapping a remote
// dispatch, compensating for the backend's eventual-consistency lag on
// reads right after a write.
type ScheduleOverride struct {
	Start   time.Time `json:"start"`
	End     time.Time `json:"end"`
	SavedAt time.Time `json:"saved_at"`
}

// OverrideStore holds schedule overrides keyed by dispatch id.
// Implementations drop overrides older than their configured max age so
// a forgotten override cannot mask server-side corrections forever.
type OverrideStore interface {
	Override(ctx context.Context, dispatchID string) (ScheduleOverride, bool, error)
	PutOverride(ctx context.Context, dispatchID string, ov ScheduleOverride) error
	DeleteOverride(ctx context.Context, dispatchID string) error
}

// TechnicianMetaStore holds free-form per-technician metadata.
type TechnicianMetaStore interface {
	TechnicianMeta(ctx context.Context, technicianID string) (json.RawMessage, bool, error)
	PutTechnicianMeta(ctx context.Context, technicianID string, meta json.RawMessage) error
}
