// Package alerting audits site and connector state on a fixed interval and
// keeps one ACTIVE alert per ongoing condition.
package alerting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/sitepower/core/events"
	"github.com/kilianp07/sitepower/core/logger"
	"github.com/kilianp07/sitepower/core/metrics"
	"github.com/kilianp07/sitepower/core/model"
	coremon "github.com/kilianp07/sitepower/core/monitoring"
	"github.com/kilianp07/sitepower/core/store"
	"github.com/kilianp07/sitepower/internal/eventbus"
)

// Store is the part of the store the monitor uses.
type Store interface {
	store.SiteReader
	store.AlertStore
}

// PassReport summarises one audit pass.
type PassReport struct {
	Sites    int
	Failed   int
	Raised   int
	Resolved int
	Errors   error
}

// Monitor evaluates the rules over every active site.
type Monitor struct {
	store   Store
	rules   Rules
	cfg     Config
	metrics metrics.MetricsSink
	bus     eventbus.EventBus
	logger  logger.Logger
	now     func() time.Time
	newID   func() string
}

// NewMonitor creates a monitor with the default rules. sink and evBus may
// be nil.
func NewMonitor(st Store, cfg Config, sink metrics.MetricsSink, evBus eventbus.EventBus, log logger.Logger) (*Monitor, error) {
	if st == nil || log == nil {
		return nil, fmt.Errorf("alerting: nil parameter provided to NewMonitor")
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if sink == nil {
		sink = metrics.NopSink{}
	}
	return &Monitor{
		store:   st,
		rules:   DefaultRules(),
		cfg:     cfg,
		metrics: sink,
		bus:     evBus,
		logger:  log,
		now:     time.Now,
		newID:   uuid.NewString,
	}, nil
}

// SetRules replaces the rule set.
func (m *Monitor) SetRules(r Rules) { m.rules = r }

// Run performs a pass immediately and then once per interval until ctx is
// done.
func (m *Monitor) Run(ctx context.Context) error {
	m.logger.Infof("alert monitor started (interval=%s)", m.cfg.Interval())
	m.guardedPass(ctx)
	ticker := time.NewTicker(m.cfg.Interval())
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.guardedPass(ctx)
		case <-ctx.Done():
			m.logger.Infof("alert monitor stopped")
			return nil
		}
	}
}

// guardedPass runs one pass detached from ctx cancellation so a shutdown
// lets the current pass finish; each site stays bounded by its timeout.
func (m *Monitor) guardedPass(ctx context.Context) {
	coremon.Guard(map[string]string{"module": "alerting"}, func() {
		rep := m.RunOnce(context.WithoutCancel(ctx))
		if rep.Errors != nil && !errors.Is(rep.Errors, context.Canceled) {
			coremon.CaptureException(rep.Errors, map[string]string{"module": "alerting"})
		}
	})
}

// RunOnce performs one audit pass. A failure on one site is logged and the
// pass continues with the next site.
func (m *Monitor) RunOnce(ctx context.Context) PassReport {
	start := m.now()
	var rep PassReport
	defer func() {
		auditPasses.Inc()
		auditDuration.Observe(m.now().Sub(start).Seconds())
		if r, ok := m.metrics.(metrics.AuditRecorder); ok {
			if err := r.RecordAudit(metrics.AuditEvent{
				Sites: rep.Sites, Failed: rep.Failed, Raised: rep.Raised, Resolved: rep.Resolved,
				Duration: m.now().Sub(start), Time: m.now(),
			}); err != nil {
				m.logger.Errorf("audit metrics error: %v", err)
			}
		}
	}()

	sites, err := m.store.GetActiveSites(ctx)
	if err != nil {
		m.logger.Errorf("alert monitor: list sites: %v", err)
		rep.Errors = fmt.Errorf("list sites: %w", err)
		return rep
	}
	rep.Sites = len(sites)
	var errs []error
	for _, site := range sites {
		raised, resolved, err := m.auditSite(ctx, site)
		rep.Raised += raised
		rep.Resolved += resolved
		if err != nil {
			rep.Failed++
			auditSiteFailures.Inc()
			m.logger.Errorf("alert monitor: site %s: %v", site.SiteNo, err)
			errs = append(errs, fmt.Errorf("site %s: %w", site.SiteNo, err))
		}
	}
	rep.Errors = errors.Join(errs...)
	if rep.Raised > 0 || rep.Resolved > 0 {
		m.logger.Infof("alert monitor pass: %d sites, %d raised, %d resolved, %d failed", rep.Sites, rep.Raised, rep.Resolved, rep.Failed)
	}
	return rep
}

// auditSite reconciles the ACTIVE alerts of site with the current
// violations.
func (m *Monitor) auditSite(ctx context.Context, site model.Site) (raised, resolved int, err error) {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.siteTimeout())
	defer cancel()

	cs, err := m.store.GetConnectorStates(ctx, site.SiteNo)
	if err != nil {
		return 0, 0, fmt.Errorf("connectors: %w", err)
	}
	active, err := m.store.ActiveAlerts(ctx, site.SiteNo)
	if err != nil {
		return 0, 0, fmt.Errorf("active alerts: %w", err)
	}
	current := make(map[model.AlertKey]model.Alert, len(active))
	for _, a := range active {
		current[a.Key()] = a
	}
	violations := m.rules.Evaluate(site, cs)

	var errs []error
	now := m.now().UTC()
	for key, v := range violations {
		if _, ok := current[key]; ok {
			continue
		}
		a := model.Alert{
			ID:        m.newID(),
			SiteNo:    site.SiteNo,
			Subject:   v.Subject,
			Type:      v.Type,
			Message:   v.Message,
			Severity:  v.Type.Severity(),
			Status:    model.AlertActive,
			CreatedAt: now,
		}
		if err := m.store.SaveAlert(ctx, a); err != nil {
			errs = append(errs, fmt.Errorf("save %s/%s: %w", v.Subject, v.Type, err))
			continue
		}
		raised++
		m.logger.Warnf("alert raised: %s", v.Message)
		m.transition(a, events.AlertRaised, now)
	}
	for key, a := range current {
		if _, ok := violations[key]; ok {
			continue
		}
		if err := m.store.ResolveAlert(ctx, a.ID, now); err != nil {
			errs = append(errs, fmt.Errorf("resolve %s: %w", a.ID, err))
			continue
		}
		resolved++
		a.Status = model.AlertResolved
		a.ResolvedAt = &now
		m.logger.Infof("alert resolved: %s %s", a.Subject, a.Type)
		m.transition(a, events.AlertResolved, now)
	}
	return raised, resolved, errors.Join(errs...)
}

func (m *Monitor) transition(a model.Alert, tr string, at time.Time) {
	alertTransitions.WithLabelValues(string(a.Type), tr).Inc()
	if r, ok := m.metrics.(metrics.AlertRecorder); ok {
		if err := r.RecordAlert(metrics.AlertEvent{
			SiteNo: a.SiteNo, Subject: a.Subject, Type: a.Type, Severity: a.Severity, Transition: tr, Time: at,
		}); err != nil {
			m.logger.Errorf("alert metrics error: %v", err)
		}
	}
	if m.bus != nil {
		m.bus.Publish(events.AlertEvent{Alert: a, Transition: tr})
	}
}
