package cache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/fieldworks/dispatchboard/internal/models"
)

// TTLConfig carries the per-resource freshness windows.
type TTLConfig struct {
	Technicians    time.Duration
	Dispatches     time.Duration
	UnassignedJobs time.Duration
	ServiceOrders  time.Duration
	AssignedJobs   time.Duration
}

func DefaultTTLs() TTLConfig {
	return TTLConfig{
		Technicians:    120 * time.Second,
		Dispatches:     60 * time.Second,
		UnassignedJobs: 45 * time.Second,
		ServiceOrders:  45 * time.Second,
		AssignedJobs:   30 * time.Second,
	}
}

type assignedEntry struct {
	jobs []models.Job
	at   time.Time
}

// Cache is the process-local store for board data. It is constructed
// explicitly and injected into the lifecycle manager, mapper, and
// loader; nothing in this package holds package-level state.
//
// Concurrent fetches of the same resource are collapsed through a
// singleflight group: the second caller waits on the first caller's
// in-flight call instead of issuing its own. A generation counter makes
// a fetch that completes after ClearAll discard its write, so a forced
// refresh can never be repopulated with pre-refresh data.
type Cache struct {
	ttl TTLConfig
	now func() time.Time

	mu  sync.Mutex
	gen uint64

	technicians   []models.Technician
	techniciansAt time.Time

	dispatches   []models.Dispatch
	dispatchesAt time.Time

	unassignedJobs   []models.Job
	unassignedJobsAt time.Time

	serviceOrders   []models.ServiceOrder
	serviceOrdersAt time.Time

	assigned          map[string]assignedEntry
	installationNames map[string]string

	flight singleflight.Group
}

func New(ttl TTLConfig) *Cache {
	return NewWithClock(ttl, time.Now)
}

func NewWithClock(ttl TTLConfig, now func() time.Time) *Cache {
	return &Cache{
		ttl:               ttl,
		now:               now,
		assigned:          map[string]assignedEntry{},
		installationNames: map[string]string{},
	}
}

func (c *Cache) fresh(at time.Time, ttl time.Duration, empty bool) bool {
	if empty || at.IsZero() {
		return false
	}
	return c.now().Sub(at) < ttl
}

// Technicians

func (c *Cache) Technicians() []models.Technician {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.technicians
}

func (c *Cache) SetTechnicians(ts []models.Technician) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.technicians = ts
	c.techniciansAt = c.now()
}

func (c *Cache) HasFreshTechnicians() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fresh(c.techniciansAt, c.ttl.Technicians, len(c.technicians) == 0)
}

// FetchTechnicians returns the cached value when fresh, otherwise runs
// fetch. Concurrent callers share one in-flight fetch.
func (c *Cache) FetchTechnicians(ctx context.Context, fetch func(context.Context) ([]models.Technician, error)) ([]models.Technician, error) {
	if c.HasFreshTechnicians() {
		return c.Technicians(), nil
	}
	v, err, _ := c.flight.Do("technicians", func() (any, error) {
		gen := c.generation()
		out, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		c.storeTechnicians(out, gen)
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]models.Technician), nil
}

func (c *Cache) storeTechnicians(ts []models.Technician, gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return
	}
	c.technicians = ts
	c.techniciansAt = c.now()
}

// Dispatches

func (c *Cache) Dispatches() []models.Dispatch {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dispatches
}

func (c *Cache) SetDispatches(ds []models.Dispatch) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dispatches = ds
	c.dispatchesAt = c.now()
}

func (c *Cache) HasFreshDispatches() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fresh(c.dispatchesAt, c.ttl.Dispatches, len(c.dispatches) == 0)
}

func (c *Cache) FetchDispatches(ctx context.Context, fetch func(context.Context) ([]models.Dispatch, error)) ([]models.Dispatch, error) {
	if c.HasFreshDispatches() {
		return c.Dispatches(), nil
	}
	v, err, _ := c.flight.Do("dispatches", func() (any, error) {
		gen := c.generation()
		out, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		c.storeDispatches(out, gen)
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]models.Dispatch), nil
}

func (c *Cache) storeDispatches(ds []models.Dispatch, gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return
	}
	c.dispatches = ds
	c.dispatchesAt = c.now()
}

// Unassigned jobs

func (c *Cache) UnassignedJobs() []models.Job {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.unassignedJobs
}

func (c *Cache) SetUnassignedJobs(js []models.Job) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unassignedJobs = js
	c.unassignedJobsAt = c.now()
}

func (c *Cache) HasFreshUnassignedJobs() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fresh(c.unassignedJobsAt, c.ttl.UnassignedJobs, len(c.unassignedJobs) == 0)
}

// HasStaleUnassignedJobs reports whether any unassigned-job data is
// present at all, expired or not. Used for stale-while-revalidate reads.
func (c *Cache) HasStaleUnassignedJobs() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.unassignedJobs) > 0
}

func (c *Cache) FetchUnassignedJobs(ctx context.Context, fetch func(context.Context) ([]models.Job, error)) ([]models.Job, error) {
	if c.HasFreshUnassignedJobs() {
		return c.UnassignedJobs(), nil
	}
	v, err, _ := c.flight.Do("unassigned-jobs", func() (any, error) {
		gen := c.generation()
		out, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		c.storeUnassignedJobs(out, gen)
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]models.Job), nil
}

func (c *Cache) storeUnassignedJobs(js []models.Job, gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return
	}
	c.unassignedJobs = js
	c.unassignedJobsAt = c.now()
}

// Service orders

func (c *Cache) ServiceOrders() []models.ServiceOrder {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.serviceOrders
}

func (c *Cache) SetServiceOrders(os []models.ServiceOrder) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.serviceOrders = os
	c.serviceOrdersAt = c.now()
}

func (c *Cache) HasFreshServiceOrders() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fresh(c.serviceOrdersAt, c.ttl.ServiceOrders, len(c.serviceOrders) == 0)
}

func (c *Cache) HasStaleServiceOrders() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.serviceOrders) > 0
}

// Per technician+day assigned jobs

// AssignedJobsKey builds the cache key for one technician's jobs on one
// calendar day.
func AssignedJobsKey(technicianID string, day time.Time) string {
	return technicianID + "|" + day.Format("2006-01-02")
}

func (c *Cache) AssignedJobs(technicianID string, day time.Time) ([]models.Job, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.assigned[AssignedJobsKey(technicianID, day)]
	if !ok {
		return nil, false
	}
	return e.jobs, true
}

func (c *Cache) SetAssignedJobs(technicianID string, day time.Time, jobs []models.Job) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.assigned[AssignedJobsKey(technicianID, day)] = assignedEntry{jobs: jobs, at: c.now()}
}

func (c *Cache) HasFreshAssignedJobs(technicianID string, day time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.assigned[AssignedJobsKey(technicianID, day)]
	if !ok {
		return false
	}
	return c.fresh(e.at, c.ttl.AssignedJobs, false)
}

// Installation names

func (c *Cache) InstallationName(id string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	name, ok := c.installationNames[id]
	return name, ok
}

func (c *Cache) SetInstallationName(id, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.installationNames[id] = name
}

// Global queries and invalidation

// HasFreshAll reports whether an initial load can be skipped outright.
func (c *Cache) HasFreshAll() bool {
	return c.HasFreshTechnicians() && c.HasFreshUnassignedJobs() && c.HasFreshDispatches()
}

// InvalidateDispatchData drops everything derived from dispatch state
// while keeping technicians and resolved installation names. Every
// successful mutation must call this before returning.
func (c *Cache) InvalidateDispatchData() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.dispatches = nil
	c.dispatchesAt = time.Time{}
	c.unassignedJobs = nil
	c.unassignedJobsAt = time.Time{}
	c.serviceOrders = nil
	c.serviceOrdersAt = time.Time{}
	c.assigned = map[string]assignedEntry{}
}

// ClearAll wipes the whole cache. Used on forced refresh.
func (c *Cache) ClearAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.technicians = nil
	c.techniciansAt = time.Time{}
	c.dispatches = nil
	c.dispatchesAt = time.Time{}
	c.unassignedJobs = nil
	c.unassignedJobsAt = time.Time{}
	c.serviceOrders = nil
	c.serviceOrdersAt = time.Time{}
	c.assigned = map[string]assignedEntry{}
	c.installationNames = map[string]string{}
}

func (c *Cache) generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}
