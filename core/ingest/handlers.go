package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kilianp07/sitepower/core/demand"
	"github.com/kilianp07/sitepower/core/dispatch"
	"github.com/kilianp07/sitepower/core/events"
	"github.com/kilianp07/sitepower/core/logger"
	"github.com/kilianp07/sitepower/core/metrics"
	"github.com/kilianp07/sitepower/core/model"
	coremon "github.com/kilianp07/sitepower/core/monitoring"
	"github.com/kilianp07/sitepower/core/prediction"
	"github.com/kilianp07/sitepower/core/store"
	"github.com/kilianp07/sitepower/internal/eventbus"
)

// ErrRetryable marks a handler failure that may succeed on redelivery.
var ErrRetryable = errors.New("ingest: retryable failure")

// Handler processes one decoded payload. A returned error wrapping
// ErrRetryable asks for redelivery; any other error drops the message.
type Handler interface {
	Handle(ctx context.Context, p model.Payload) error
}

// Reallocator schedules a background reallocation.
type Reallocator interface {
	Trigger(siteNo string, demand float64) bool
}

// HandlerStore is the part of the store the handlers use.
type HandlerStore interface {
	store.SiteReader
	store.TelemetryWriter
}

// Handlers routes payloads to the per-type handling logic.
type Handlers struct {
	store         HandlerStore
	predictor     prediction.Predictor
	recognizer    prediction.Recognizer
	tracker       *demand.Tracker
	realloc       Reallocator
	notifier      dispatch.Notifier
	notifyTimeout time.Duration
	metrics       metrics.MetricsSink
	bus           eventbus.EventBus
	logger        logger.Logger
	now           func() time.Time

	notifyWG sync.WaitGroup
}

// HandlerOption customises Handlers.
type HandlerOption func(*Handlers)

// WithPredictor replaces the default charge curve.
func WithPredictor(p prediction.Predictor) HandlerOption {
	return func(h *Handlers) { h.predictor = p }
}

// WithRecognizer replaces the default vehicle recognizer.
func WithRecognizer(r prediction.Recognizer) HandlerOption {
	return func(h *Handlers) { h.recognizer = r }
}

// WithNotifier sets the maintenance notifier and the timeout of one call.
func WithNotifier(n dispatch.Notifier, timeout time.Duration) HandlerOption {
	return func(h *Handlers) {
		h.notifier = n
		if timeout > 0 {
			h.notifyTimeout = timeout
		}
	}
}

// WithMetrics sets the sink receiving prediction records.
func WithMetrics(s metrics.MetricsSink) HandlerOption {
	return func(h *Handlers) { h.metrics = s }
}

// WithEventBus sets the bus receiving demand change events.
func WithEventBus(b eventbus.EventBus) HandlerOption {
	return func(h *Handlers) { h.bus = b }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) HandlerOption {
	return func(h *Handlers) { h.now = now }
}

// NewHandlers wires the handlers. st, tracker, realloc and log are required.
func NewHandlers(st HandlerStore, tracker *demand.Tracker, realloc Reallocator, log logger.Logger, opts ...HandlerOption) (*Handlers, error) {
	if st == nil || tracker == nil || realloc == nil || log == nil {
		return nil, fmt.Errorf("ingest: nil parameter provided to NewHandlers")
	}
	h := &Handlers{
		store:         st,
		predictor:     prediction.CurveModel{},
		recognizer:    prediction.DefaultRecognizer{},
		tracker:       tracker,
		realloc:       realloc,
		notifier:      dispatch.NopNotifier{},
		notifyTimeout: 10 * time.Second,
		metrics:       metrics.NopSink{},
		logger:        log,
		now:           time.Now,
	}
	for _, o := range opts {
		o(h)
	}
	return h, nil
}

// Handle routes p by its message type.
func (h *Handlers) Handle(ctx context.Context, p model.Payload) error {
	switch v := p.(type) {
	case model.VehicleData:
		return h.handleVehicle(ctx, v)
	case model.PowerData:
		return h.handlePower(ctx, v)
	case model.PlugStatus:
		return h.handlePlug(ctx, v)
	default:
		return fmt.Errorf("%w: %T", ErrUnknownMessageType, p)
	}
}

// classify wraps transient store failures as retryable.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, store.ErrUnavailable) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: %w", op, ErrRetryable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (h *Handlers) handleVehicle(ctx context.Context, v model.VehicleData) error {
	name, err := h.recognizer.Recognize(v)
	if err != nil {
		return fmt.Errorf("recognize vehicle %s: %w", v.SessionID, err)
	}
	vm := model.VehicleModel{
		SessionID:  v.SessionID,
		MacAddr:    v.MacAddr,
		ChargerSN:  v.ChargerSN,
		Capacity:   v.Capacity,
		MaxVoltage: v.MaxVoltage,
		MaxCurrent: v.MaxCurrent,
		MaxPower:   v.MaxPower,
		Model:      name,
		ReportedAt: h.now().UTC(),
	}
	if err := h.store.SaveVehicleModel(ctx, vm); err != nil {
		return classify("save vehicle model", err)
	}
	h.logger.Debugw("vehicle recognized", map[string]any{"session_id": v.SessionID, "model": name})
	return nil
}

//gocyclo:ignore
func (h *Handlers) handlePower(ctx context.Context, p model.PowerData) error {
	results, predErr := h.predictor.Predict(p.SOC, p.Power, p.Capacity)
	if predErr != nil {
		h.logger.Warnf("prediction for session %s skipped: %v", p.SessionID, predErr)
	}

	target, err := h.resolveDemand(ctx, p)
	if err != nil {
		return err
	}

	if predErr == nil && len(results) > 0 {
		now := h.now().UTC()
		rec := model.PredictionRecord{
			SessionID: p.SessionID,
			SiteNo:    p.SiteNo,
			ChargerSN: p.ChargerSN,
			MacAddr:   p.MacAddr,
			SOC:       p.SOC,
			Power:     p.Power,
			Results:   results,
			CreatedAt: now,
		}
		if err := h.store.SavePredictions(ctx, rec); err != nil {
			return classify("save predictions", err)
		}
		if r, ok := h.metrics.(metrics.PredictionRecorder); ok {
			if err := r.RecordPrediction(metrics.PredictionEvent{
				SessionID: p.SessionID, SiteNo: p.SiteNo, ChargerSN: p.ChargerSN,
				SOC: p.SOC, Power: p.Power, Results: results, Time: now,
			}); err != nil {
				h.logger.Errorf("prediction metrics error: %v", err)
			}
		}
	}

	prev, _ := h.tracker.Last(p.SiteNo)
	if h.tracker.Observe(p.SiteNo, target) != demand.Reallocate {
		return nil
	}
	h.logger.Infof("site %s demand changed %.2f -> %.2f kW, reallocating", p.SiteNo, prev, target)
	now := h.now().UTC()
	if h.bus != nil {
		h.bus.Publish(events.DemandChangeEvent{SiteNo: p.SiteNo, Previous: prev, Demand: target, Time: now})
	}
	if r, ok := h.metrics.(metrics.DemandRecorder); ok {
		if err := r.RecordDemandChange(metrics.DemandChangeEvent{SiteNo: p.SiteNo, Previous: prev, Demand: target, Time: now}); err != nil {
			h.logger.Errorf("demand metrics error: %v", err)
		}
	}
	if !h.realloc.Trigger(p.SiteNo, target) {
		h.logger.Warnf("reallocation of site %s not scheduled: shutting down", p.SiteNo)
	}
	return nil
}

// resolveDemand returns the demand carried by the telemetry, falling back to
// the site's stored target.
func (h *Handlers) resolveDemand(ctx context.Context, p model.PowerData) (float64, error) {
	if p.Demand != nil {
		return *p.Demand, nil
	}
	site, err := h.store.GetSite(ctx, p.SiteNo)
	if err != nil {
		return 0, classify("load site "+p.SiteNo, err)
	}
	return site.Demand, nil
}

func (h *Handlers) handlePlug(ctx context.Context, p model.PlugStatus) error {
	st, err := model.ParseConnectorStatus(p.Status)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if err := h.store.UpdateConnectorStatus(ctx, p.SiteNo, p.ChargerSN, st); err != nil {
		return classify("update connector status", err)
	}
	h.logger.Debugw("connector status updated", map[string]any{"site_no": p.SiteNo, "charger_sn": p.ChargerSN, "status": string(st)})
	if st == model.StatusError {
		h.notify(p.SiteNo, []string{p.ChargerSN})
	}
	return nil
}

// notify forwards faulty connectors without blocking the consumer loop.
func (h *Handlers) notify(siteNo string, chargers []string) {
	h.notifyWG.Add(1)
	go func() {
		defer h.notifyWG.Done()
		tags := map[string]string{"module": "maintenance", "site_no": siteNo}
		coremon.Guard(tags, func() {
			ctx, cancel := context.WithTimeout(context.Background(), h.notifyTimeout)
			defer cancel()
			if err := h.notifier.Notify(ctx, siteNo, chargers); err != nil {
				h.logger.Errorf("maintenance notification for site %s failed: %v", siteNo, err)
				coremon.CaptureException(err, tags)
			}
		})
	}()
}

// Wait blocks until pending maintenance notifications are done.
func (h *Handlers) Wait() { h.notifyWG.Wait() }
