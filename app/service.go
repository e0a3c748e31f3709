package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kilianp07/sitepower/app/plugins"
	"github.com/kilianp07/sitepower/config"
	"github.com/kilianp07/sitepower/core/alerting"
	"github.com/kilianp07/sitepower/core/allocation"
	"github.com/kilianp07/sitepower/core/bus"
	"github.com/kilianp07/sitepower/core/demand"
	"github.com/kilianp07/sitepower/core/dispatch"
	"github.com/kilianp07/sitepower/core/dispatch/logging"
	"github.com/kilianp07/sitepower/core/ingest"
	coremetrics "github.com/kilianp07/sitepower/core/metrics"
	coremon "github.com/kilianp07/sitepower/core/monitoring"
	"github.com/kilianp07/sitepower/core/retention"
	"github.com/kilianp07/sitepower/infra/httpapi"
	"github.com/kilianp07/sitepower/infra/logger"
	"github.com/kilianp07/sitepower/infra/maintenance"
	"github.com/kilianp07/sitepower/infra/metrics"
	"github.com/kilianp07/sitepower/infra/monitoring"
	"github.com/kilianp07/sitepower/infra/sqlstore"
	"github.com/kilianp07/sitepower/internal/eventbus"
)

// Service wires the bus consumer, the reallocation manager, the alert
// monitor and the retention job around one store.
type Service struct {
	Store   *sqlstore.Store
	Manager *dispatch.Manager
	Monitor *alerting.Monitor
	Board   *metrics.StatusBoard

	source     bus.Source
	publisher  Publisher
	dispatcher *ingest.Dispatcher
	handlers   *ingest.Handlers
	retention  *retention.Job
	http       *httpapi.Server
	sink       coremetrics.MetricsSink
	bus        *eventbus.Bus
	log        logger.Logger
}

// Publisher is a closable profile publisher.
type Publisher interface {
	bus.Publisher
	Close() error
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

type options struct {
	source    bus.Source
	publisher Publisher
}

// Option customises New.
type Option func(*options)

// WithBus replaces the configured broker with src and pub.
func WithBus(src bus.Source, pub Publisher) Option {
	return func(o *options) {
		o.source = src
		o.publisher = pub
	}
}

// New creates a Service from the configuration. Everything opened before a
// failure is released again.
//
//gocyclo:ignore
func New(cfg *config.Config, opts ...Option) (svc *Service, err error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	logger.Configure(cfg.Logging.Level, cfg.Logging.Console)
	logg := logger.New("service")

	mon, err := monitoring.NewSentryMonitor(cfg.Sentry)
	if err != nil {
		return nil, fmt.Errorf("sentry: %w", err)
	}
	coremon.Init(mon)

	var closers []io.Closer
	defer func() {
		if err != nil {
			for i := len(closers) - 1; i >= 0; i-- {
				_ = closers[i].Close()
			}
		}
	}()

	st, err := sqlstore.Open(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	closers = append(closers, st)

	sink, err := coremetrics.NewMetricsSink(cfg.Metrics.Sinks)
	if err != nil {
		return nil, fmt.Errorf("metrics sink: %w", err)
	}
	closers = append(closers, closerFunc(func() error { return coremetrics.CloseSink(sink) }))

	src, pub := o.source, o.publisher
	if src == nil || pub == nil {
		src, pub, err = openBus(cfg)
		if err != nil {
			return nil, err
		}
	}
	closers = append(closers, src, pub)

	evBus := eventbus.New()
	manager, err := dispatch.NewManager(allocation.New(cfg.Allocation), st, pub, sink, evBus, logger.New("dispatch"))
	if err != nil {
		return nil, fmt.Errorf("dispatch manager: %w", err)
	}
	manager.SetTimeout(cfg.Dispatch.Timeout())
	tasks, err := logging.New(cfg.TaskLog)
	if err != nil {
		return nil, fmt.Errorf("task log: %w", err)
	}
	if tasks != nil {
		manager.SetTaskStore(tasks)
		closers = append(closers, tasks)
	}

	predictor, err := plugins.NewPredictor(cfg.Components.Predictor)
	if err != nil {
		return nil, fmt.Errorf("predictor: %w", err)
	}
	recognizer, err := plugins.NewRecognizer(cfg.Components.Recognizer)
	if err != nil {
		return nil, fmt.Errorf("recognizer: %w", err)
	}
	notifier, err := maintenance.New(cfg.Maintenance, logger.New("maintenance"))
	if err != nil {
		return nil, fmt.Errorf("maintenance notifier: %w", err)
	}
	handlers, err := ingest.NewHandlers(st, demand.NewTracker(), manager, logger.New("ingest"),
		ingest.WithPredictor(predictor),
		ingest.WithRecognizer(recognizer),
		ingest.WithNotifier(notifier, cfg.Ingest.NotifyTimeout()),
		ingest.WithMetrics(sink),
		ingest.WithEventBus(evBus),
	)
	if err != nil {
		return nil, fmt.Errorf("handlers: %w", err)
	}
	dec, err := ingest.NewDecoder()
	if err != nil {
		return nil, err
	}
	dispatcher, err := ingest.NewDispatcher(src, dec, handlers, cfg.Ingest, sink, evBus, logger.New("consumer"))
	if err != nil {
		return nil, fmt.Errorf("dispatcher: %w", err)
	}

	monitor, err := alerting.NewMonitor(st, cfg.Monitor, sink, evBus, logger.New("alerting"))
	if err != nil {
		return nil, fmt.Errorf("alert monitor: %w", err)
	}
	job, err := retention.NewJob(cfg.Retention, st, tasks, logger.New("retention"))
	if err != nil {
		return nil, fmt.Errorf("retention: %w", err)
	}

	board := metrics.NewStatusBoard()
	var srv *httpapi.Server
	if cfg.HTTP.Addr != "" {
		srv = httpapi.New(cfg.HTTP, logger.New("http"),
			httpapi.WithCheck("store", st.Ping),
			httpapi.WithStatusBoard(board),
		)
	}

	return &Service{
		Store:      st,
		Manager:    manager,
		Monitor:    monitor,
		Board:      board,
		source:     src,
		publisher:  pub,
		dispatcher: dispatcher,
		handlers:   handlers,
		retention:  job,
		http:       srv,
		sink:       sink,
		bus:        evBus,
		log:        logg,
	}, nil
}

// Run starts every component and blocks until ctx is cancelled or one of
// them fails. The bus source is closed when Run returns.
func (s *Service) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	collected := metrics.StartEventCollector(gctx, s.bus, s.Board)
	g.Go(func() error { return s.dispatcher.Run(gctx) })
	g.Go(func() error { return s.Monitor.Run(gctx) })
	g.Go(func() error { return s.retention.Run(gctx) })
	if s.http != nil {
		g.Go(func() error { return s.http.Run(gctx) })
	}
	s.log.Infof("service started")
	err := g.Wait()
	s.handlers.Wait()
	<-collected
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Close waits for in-flight reallocations and releases resources held by
// the service.
func (s *Service) Close() error {
	errs := []error{s.Manager.Close(), s.publisher.Close(), s.source.Close(), coremetrics.CloseSink(s.sink)}
	s.bus.Close()
	errs = append(errs, s.Store.Close())
	coremon.Flush(2 * time.Second)
	return errors.Join(errs...)
}
