// Package loader sequences the board's initial data fetch in three
// phases with incremental progress reporting, short-circuiting on a
// fully fresh cache and surfacing stale data optimistically while the
// refresh proceeds.
package loader

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/fieldworks/dispatchboard/internal/cache"
	"github.com/fieldworks/dispatchboard/internal/dispatch"
	"github.com/fieldworks/dispatchboard/internal/mapping"
	"github.com/fieldworks/dispatchboard/internal/models"
	"github.com/fieldworks/dispatchboard/internal/remote"
)

const (
	PhaseTechnicians = "technicians"
	PhaseDispatches  = "dispatches"
	PhaseOrders      = "service_orders"
	PhaseDone        = "done"
)

type Progress struct {
	Percent           int
	Phase             string
	TechniciansLoaded bool
	DispatchesLoaded  bool
	OrdersLoaded      bool
	FromCache         bool
	Stale             bool
	Snapshot          *Snapshot
}

type Snapshot struct {
	Technicians    []models.Technician
	Dispatches     []models.Dispatch
	UnassignedJobs []models.Job
	ServiceOrders  []models.ServiceOrder
}

type Orchestrator struct {
	Cache      *cache.Cache
	Users      remote.UserDirectory
	Dispatches remote.DispatchStore
	Orders     remote.ServiceOrderStore
	Mapper     *mapping.Mapper
	Logger     zerolog.Logger
}

// Load runs the three-phase fetch. It always terminates with a
// percent-100 report, even when phases fail; errors are logged and the
// snapshot carries whatever data could be loaded.
func (o *Orchestrator) Load(ctx context.Context, force bool, report func(Progress)) Snapshot {
	if report == nil {
		report = func(Progress) {}
	}

	if force {
		o.Cache.ClearAll()
	} else if o.Cache.HasFreshAll() {
		snap := o.snapshotFromCache()
		report(Progress{
			Percent: 100, Phase: PhaseDone,
			TechniciansLoaded: true, DispatchesLoaded: true, OrdersLoaded: true,
			FromCache: true, Snapshot: &snap,
		})
		return snap
	} else if o.Cache.HasStaleUnassignedJobs() || o.Cache.HasStaleServiceOrders() {
		// optimistic surface while the refresh below proceeds
		snap := o.snapshotFromCache()
		report(Progress{Percent: 5, Phase: PhaseTechnicians, Stale: true, Snapshot: &snap})
	}

	report(Progress{Percent: 10, Phase: PhaseTechnicians})
	technicians, err := o.Cache.FetchTechnicians(ctx, o.fetchTechnicians)
	if err != nil {
		o.Logger.Error().Err(err).Msg("technician load failed")
	}
	report(Progress{Percent: 35, Phase: PhaseDispatches, TechniciansLoaded: err == nil})

	dispatches, err := o.Cache.FetchDispatches(ctx, o.fetchDispatches)
	if err != nil {
		o.Logger.Error().Err(err).Msg("dispatch pre-warm failed")
	}
	report(Progress{Percent: 55, Phase: PhaseOrders, TechniciansLoaded: true, DispatchesLoaded: err == nil})

	unassigned, err := o.Cache.FetchUnassignedJobs(ctx, func(ctx context.Context) ([]models.Job, error) {
		return o.fetchOrdersAndPool(ctx, dispatches)
	})
	if err != nil {
		o.Logger.Error().Err(err).Msg("service order load failed")
	}

	snap := Snapshot{
		Technicians:    technicians,
		Dispatches:     dispatches,
		UnassignedJobs: unassigned,
		ServiceOrders:  o.Cache.ServiceOrders(),
	}
	report(Progress{
		Percent: 100, Phase: PhaseDone,
		TechniciansLoaded: true, DispatchesLoaded: true, OrdersLoaded: err == nil,
		Snapshot: &snap,
	})
	return snap
}

func (o *Orchestrator) snapshotFromCache() Snapshot {
	return Snapshot{
		Technicians:    o.Cache.Technicians(),
		Dispatches:     o.Cache.Dispatches(),
		UnassignedJobs: o.Cache.UnassignedJobs(),
		ServiceOrders:  o.Cache.ServiceOrders(),
	}
}

func (o *Orchestrator) fetchTechnicians(ctx context.Context) ([]models.Technician, error) {
	users, err := o.Users.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	technicians := make([]models.Technician, 0, len(users))
	for _, u := range users {
		technicians = append(technicians, mapping.TechnicianFromRemote(u))
	}
	return technicians, nil
}

func (o *Orchestrator) fetchDispatches(ctx context.Context) ([]models.Dispatch, error) {
	page, err := o.Dispatches.GetAll(ctx, remote.DispatchFilter{})
	if err != nil {
		return nil, err
	}
	dispatches := make([]models.Dispatch, 0, len(page.Items))
	for _, rd := range page.Items {
		dispatches = append(dispatches, mapping.DispatchFromRemote(rd))
	}
	return dispatches, nil
}

// TechnicianDayJobs returns the jobs scheduled for one technician on one
// calendar day, as the collision checker consumes them. Results are kept
// in the short-lived per-technician-per-day cache; dispatch records are
// matched tolerantly since older ones carry the technician id inside
// free text.
func (o *Orchestrator) TechnicianDayJobs(ctx context.Context, technicianID string, day time.Time) ([]models.Job, error) {
	if o.Cache.HasFreshAssignedJobs(technicianID, day) {
		if jobs, ok := o.Cache.AssignedJobs(technicianID, day); ok {
			return jobs, nil
		}
	}

	date := day.Format(remote.DateLayout)
	page, err := o.Dispatches.GetAll(ctx, remote.DispatchFilter{
		TechnicianID: technicianID,
		DateFrom:     date,
		DateTo:       date,
	})
	if err != nil {
		return nil, err
	}

	var jobs []models.Job
	for _, rd := range page.Items {
		if !dispatch.MatchesTechnician(rd, technicianID) {
			continue
		}
		jobs = append(jobs, o.Mapper.JobFromDispatch(ctx, rd))
	}
	o.Cache.SetAssignedJobs(technicianID, day, jobs)
	return jobs, nil
}

func (o *Orchestrator) fetchOrdersAndPool(ctx context.Context, dispatches []models.Dispatch) ([]models.Job, error) {
	page, err := o.Orders.GetAll(ctx, remote.ServiceOrderFilter{})
	if err != nil {
		return nil, err
	}

	orders := make([]models.ServiceOrder, 0, len(page.Items))
	for _, ro := range page.Items {
		orders = append(orders, mapping.ServiceOrderFromRemote(ro))
	}
	pool := mapping.UnassignedPool(page.Items, dispatches)
	o.Mapper.ResolveInstallationNames(ctx, pool, orders)
	o.Cache.SetServiceOrders(orders)
	return pool, nil
}
