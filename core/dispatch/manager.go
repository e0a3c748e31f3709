// Package dispatch runs reallocations: it snapshots a site's connectors,
// computes a new profile with the allocator and publishes it on the bus.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/sitepower/core/allocation"
	"github.com/kilianp07/sitepower/core/bus"
	"github.com/kilianp07/sitepower/core/dispatch/logging"
	"github.com/kilianp07/sitepower/core/events"
	"github.com/kilianp07/sitepower/core/logger"
	"github.com/kilianp07/sitepower/core/metrics"
	coremon "github.com/kilianp07/sitepower/core/monitoring"
	"github.com/kilianp07/sitepower/core/store"
	"github.com/kilianp07/sitepower/internal/eventbus"
	"github.com/kilianp07/sitepower/internal/keylock"
)

var (
	// ErrClosed is returned once the manager stopped accepting work.
	ErrClosed = errors.New("dispatch: manager closed")
	// ErrPublish is returned when at least one profile could not be sent.
	ErrPublish = errors.New("dispatch: profile publish failed")
)

// Outcome describes one reallocation run.
type Outcome struct {
	TaskID    string            `json:"task_id"`
	SiteNo    string            `json:"site_no"`
	Result    allocation.Result `json:"result"`
	Published int               `json:"published"`
	DryRun    bool              `json:"dry_run"`
}

// Manager serializes reallocations per site. Background runs requested
// through Trigger are coalesced: while a site is being reallocated only the
// latest requested demand is kept and run next.
type Manager struct {
	alloc     allocation.Allocator
	sites     store.SiteReader
	publisher bus.Publisher
	metrics   metrics.MetricsSink
	bus       eventbus.EventBus
	logger    logger.Logger
	tasks     logging.TaskStore
	locks     *keylock.Mutex
	timeout   time.Duration
	now       func() time.Time

	mu      sync.Mutex
	pending map[string]float64
	running map[string]bool
	closed  bool
	wg      sync.WaitGroup
}

// NewManager creates a new manager. sink and bus may be nil.
func NewManager(alloc allocation.Allocator, sites store.SiteReader, pub bus.Publisher, sink metrics.MetricsSink, evBus eventbus.EventBus, log logger.Logger) (*Manager, error) {
	if sites == nil || pub == nil || log == nil {
		return nil, fmt.Errorf("dispatch: nil parameter provided to NewManager")
	}
	if sink == nil {
		sink = metrics.NopSink{}
	}
	return &Manager{
		alloc:     alloc,
		sites:     sites,
		publisher: pub,
		metrics:   sink,
		bus:       evBus,
		logger:    log,
		locks:     keylock.New(),
		timeout:   30 * time.Second,
		now:       time.Now,
		pending:   make(map[string]float64),
		running:   make(map[string]bool),
	}, nil
}

// SetTaskStore configures the store used to persist optimization tasks.
func (m *Manager) SetTaskStore(ts logging.TaskStore) {
	m.mu.Lock()
	m.tasks = ts
	m.mu.Unlock()
}

// SetTimeout bounds each background run. Non-positive values are ignored.
func (m *Manager) SetTimeout(d time.Duration) {
	if d <= 0 {
		return
	}
	m.mu.Lock()
	m.timeout = d
	m.mu.Unlock()
}

// Trigger schedules a background reallocation of siteNo toward demand. It
// returns false once the manager is closed.
func (m *Manager) Trigger(siteNo string, demand float64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false
	}
	m.pending[siteNo] = demand
	if m.running[siteNo] {
		return true
	}
	m.running[siteNo] = true
	m.wg.Add(1)
	go m.drain(siteNo)
	return true
}

// drain runs the pending reallocations of one site until none is left.
func (m *Manager) drain(siteNo string) {
	defer m.wg.Done()
	for {
		m.mu.Lock()
		demand, ok := m.pending[siteNo]
		if !ok {
			delete(m.running, siteNo)
			m.mu.Unlock()
			return
		}
		delete(m.pending, siteNo)
		timeout := m.timeout
		m.mu.Unlock()

		tags := map[string]string{"module": "dispatch", "site_no": siteNo}
		coremon.Guard(tags, func() {
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()
			_, err := m.Reallocate(ctx, siteNo, demand, logging.TriggerDemandChange)
			if err != nil && !errors.Is(err, allocation.ErrCapacityInsufficient) {
				m.logger.Errorf("reallocation of site %s failed: %v", siteNo, err)
				coremon.CaptureException(err, tags)
			}
		})
	}
}

// Reallocate runs one reallocation of siteNo toward demand and publishes the
// complete profile. When the demand cannot be met the profile is still
// published and the returned error wraps allocation.ErrCapacityInsufficient.
func (m *Manager) Reallocate(ctx context.Context, siteNo string, demand float64, trigger string) (Outcome, error) {
	return m.run(ctx, siteNo, demand, trigger, false)
}

// Plan computes the profile for the site's stored demand without publishing
// it.
func (m *Manager) Plan(ctx context.Context, siteNo string) (Outcome, error) {
	site, err := m.sites.GetSite(ctx, siteNo)
	if err != nil {
		return Outcome{SiteNo: siteNo}, fmt.Errorf("load site %s: %w", siteNo, err)
	}
	return m.run(ctx, siteNo, site.Demand, logging.TriggerManual, true)
}

//gocyclo:ignore
func (m *Manager) run(ctx context.Context, siteNo string, demand float64, trigger string, dryRun bool) (Outcome, error) {
	unlock := m.locks.Lock(siteNo)
	defer unlock()

	start := m.now()
	out := Outcome{TaskID: uuid.NewString(), SiteNo: siteNo, DryRun: dryRun}
	cs, err := m.sites.GetConnectorStates(ctx, siteNo)
	if err != nil {
		reallocationsTotal.WithLabelValues("store_error").Inc()
		m.publishEvent(out, err)
		return out, fmt.Errorf("snapshot connectors of %s: %w", siteNo, err)
	}

	res, allocErr := m.alloc.Allocate(demand, cs)
	out.Result = res
	if allocErr != nil {
		m.logger.Warnf("site %s: demand %.2f kW not reachable, %.2f kW left after reducing %d/%d connectors",
			siteNo, demand, res.Shortfall, res.Adjusted, len(cs))
	} else {
		m.logger.Infof("site %s: reallocated %d/%d connectors for demand %.2f kW", siteNo, res.Adjusted, len(cs), demand)
	}
	siteShortfall.WithLabelValues(siteNo).Set(res.Shortfall)

	var pubErr error
	if !dryRun {
		out.Published, pubErr = m.publish(ctx, res)
	}

	runErr := errors.Join(pubErr, allocErr)
	switch {
	case pubErr != nil:
		reallocationsTotal.WithLabelValues("publish_error").Inc()
	case allocErr != nil:
		reallocationsTotal.WithLabelValues("capacity_insufficient").Inc()
	default:
		reallocationsTotal.WithLabelValues("ok").Inc()
	}
	end := m.now()
	reallocationDuration.Observe(end.Sub(start).Seconds())

	m.record(out, trigger, start, end, runErr)
	m.publishEvent(out, runErr)
	return out, runErr
}

// publish sends every profile and keeps going after a failure so the other
// connectors still receive their set-point.
func (m *Manager) publish(ctx context.Context, res allocation.Result) (int, error) {
	var (
		sent int
		errs []error
	)
	for _, p := range res.Profiles {
		if err := m.publisher.PublishProfile(ctx, p); err != nil {
			profilesPublished.WithLabelValues("error").Inc()
			errs = append(errs, fmt.Errorf("%s: %w", p.ChargerSN, err))
			continue
		}
		profilesPublished.WithLabelValues("ok").Inc()
		sent++
	}
	if len(errs) > 0 {
		return sent, fmt.Errorf("%w: %w", ErrPublish, errors.Join(errs...))
	}
	return sent, nil
}

func (m *Manager) record(out Outcome, trigger string, start, end time.Time, runErr error) {
	capErr := errors.Is(runErr, allocation.ErrCapacityInsufficient)
	if err := m.metrics.RecordReallocation(metrics.ReallocationEvent{
		TaskID:               out.TaskID,
		SiteNo:               out.SiteNo,
		Demand:               out.Result.Demand,
		TotalBefore:          out.Result.TotalBefore,
		TotalAfter:           out.Result.TotalAfter,
		Shortfall:            out.Result.Shortfall,
		Connectors:           len(out.Result.Profiles),
		Adjusted:             out.Result.Adjusted,
		Published:            out.Published,
		CapacityInsufficient: capErr,
		DryRun:               out.DryRun,
		Duration:             end.Sub(start),
		Time:                 end,
	}); err != nil {
		m.logger.Errorf("metrics error: %v", err)
	}

	m.mu.Lock()
	ts := m.tasks
	m.mu.Unlock()
	if ts == nil {
		return
	}
	cfg := m.alloc.Config()
	rec := logging.TaskRecord{
		TaskID:               out.TaskID,
		SiteNo:               out.SiteNo,
		Trigger:              trigger,
		Demand:               out.Result.Demand,
		TotalBefore:          out.Result.TotalBefore,
		TotalAfter:           out.Result.TotalAfter,
		Shortfall:            out.Result.Shortfall,
		CapacityInsufficient: capErr,
		DryRun:               out.DryRun,
		Limits:               logging.Limits{MaxReduction: cfg.MaxReduction, MinImpact: cfg.MinImpact},
		Profiles:             out.Result.Profiles,
		StartTime:            start,
		EndTime:              end,
	}
	if runErr != nil && !capErr {
		rec.Error = runErr.Error()
	}
	// the run context may already be done, the record must still land
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := ts.Append(ctx, rec); err != nil {
		m.logger.Errorf("task log append failed: %v", err)
	}
}

func (m *Manager) publishEvent(out Outcome, err error) {
	if m.bus == nil {
		return
	}
	m.bus.Publish(events.ReallocationEvent{
		TaskID:               out.TaskID,
		SiteNo:               out.SiteNo,
		Adjusted:             out.Result.Adjusted,
		Shortfall:            out.Result.Shortfall,
		CapacityInsufficient: errors.Is(err, allocation.ErrCapacityInsufficient),
		DryRun:               out.DryRun,
		Err:                  err,
	})
}

// Wait blocks until every background run has finished.
func (m *Manager) Wait() { m.wg.Wait() }

// Close stops accepting triggers, waits for in-flight runs and closes the
// task store.
func (m *Manager) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.wg.Wait()

	m.mu.Lock()
	ts := m.tasks
	m.tasks = nil
	m.mu.Unlock()
	if ts != nil {
		return ts.Close()
	}
	return nil
}
