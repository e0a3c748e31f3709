// Package ingest consumes telemetry from the bus, validates it and routes
// each message to its handler. Delivery is at-least-once: a message is only
// acknowledged once handled, dropped as invalid, or failed permanently.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kilianp07/sitepower/core/bus"
	"github.com/kilianp07/sitepower/core/events"
	"github.com/kilianp07/sitepower/core/logger"
	"github.com/kilianp07/sitepower/core/metrics"
	"github.com/kilianp07/sitepower/core/model"
	coremon "github.com/kilianp07/sitepower/core/monitoring"
	"github.com/kilianp07/sitepower/internal/eventbus"
)

const settleTimeout = 5 * time.Second

// Dispatcher pulls batches from a Source and settles every message.
type Dispatcher struct {
	source  bus.Source
	decoder *Decoder
	handler Handler
	cfg     Config
	metrics metrics.MetricsSink
	bus     eventbus.EventBus
	logger  logger.Logger
	now     func() time.Time
}

// NewDispatcher creates a dispatcher. sink and evBus may be nil.
func NewDispatcher(src bus.Source, dec *Decoder, h Handler, cfg Config, sink metrics.MetricsSink, evBus eventbus.EventBus, log logger.Logger) (*Dispatcher, error) {
	if src == nil || dec == nil || h == nil || log == nil {
		return nil, fmt.Errorf("ingest: nil parameter provided to NewDispatcher")
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if sink == nil {
		sink = metrics.NopSink{}
	}
	return &Dispatcher{
		source:  src,
		decoder: dec,
		handler: h,
		cfg:     cfg,
		metrics: sink,
		bus:     evBus,
		logger:  log,
		now:     time.Now,
	}, nil
}

// Run consumes until ctx is cancelled or the source is closed. A batch that
// is already fetched is always settled before Run returns. The source is
// closed on exit.
func (d *Dispatcher) Run(ctx context.Context) error {
	defer func() {
		if err := d.source.Close(); err != nil {
			d.logger.Warnf("close source: %v", err)
		}
	}()
	d.logger.Infof("telemetry dispatcher started (batch=%d)", d.cfg.BatchSize)
	for {
		if ctx.Err() != nil {
			d.logger.Infof("telemetry dispatcher stopped")
			return nil
		}
		msgs, err := d.source.Fetch(ctx, d.cfg.BatchSize)
		if err != nil {
			if errors.Is(err, bus.ErrClosed) || ctx.Err() != nil {
				d.logger.Infof("telemetry dispatcher stopped")
				return nil
			}
			d.logger.Errorf("fetch failed: %v", err)
			coremon.CaptureException(err, map[string]string{"module": "ingest"})
			select {
			case <-ctx.Done():
			case <-time.After(d.cfg.backoff()):
			}
			continue
		}
		if len(msgs) == 0 {
			continue
		}
		batchSize.Observe(float64(len(msgs)))
		d.processBatch(context.WithoutCancel(ctx), msgs)
	}
}

// processBatch settles msgs in order. Once a message of a partition is
// redelivered, every later message of that partition in the batch is
// redelivered too so the partition order is kept.
func (d *Dispatcher) processBatch(ctx context.Context, msgs []bus.Message) {
	blocked := make(map[string]bool)
	for _, m := range msgs {
		start := d.now()
		part := m.Partition()
		if blocked[part] {
			d.settle(ctx, m, 0, events.OutcomeRedelivered, nil, start)
			continue
		}
		typ, outcome, err := d.handle(ctx, m)
		if outcome == events.OutcomeRedelivered {
			blocked[part] = true
		}
		d.settle(ctx, m, typ, outcome, err, start)
	}
}

func (d *Dispatcher) handle(ctx context.Context, m bus.Message) (model.MessageType, string, error) {
	p, typ, err := d.decoder.Decode(m.Payload())
	switch {
	case errors.Is(err, ErrUnknownMessageType):
		return typ, events.OutcomeUnknownType, err
	case err != nil:
		return typ, events.OutcomeInvalid, err
	}

	var herr error
	tags := map[string]string{"module": "ingest", "partition": m.Partition(), "type": typ.String()}
	panicked := coremon.Guard(tags, func() {
		hctx, cancel := context.WithTimeout(ctx, d.cfg.handlerTimeout())
		defer cancel()
		herr = d.handler.Handle(hctx, p)
	})
	switch {
	case panicked:
		return typ, events.OutcomeFailed, fmt.Errorf("handler panic")
	case herr == nil:
		return typ, events.OutcomeAcked, nil
	case errors.Is(herr, ErrRetryable):
		return typ, events.OutcomeRedelivered, herr
	case errors.Is(herr, ErrValidation):
		return typ, events.OutcomeInvalid, herr
	default:
		return typ, events.OutcomeFailed, herr
	}
}

//gocyclo:ignore
func (d *Dispatcher) settle(ctx context.Context, m bus.Message, typ model.MessageType, outcome string, herr error, start time.Time) {
	sctx, cancel := context.WithTimeout(ctx, settleTimeout)
	defer cancel()

	var err error
	if outcome == events.OutcomeRedelivered {
		err = m.Nak(sctx)
	} else {
		err = m.Ack(sctx)
	}
	if err != nil {
		d.logger.Errorf("settle %s message on %s: %v", outcome, m.Partition(), err)
	}

	switch outcome {
	case events.OutcomeInvalid, events.OutcomeUnknownType:
		d.logger.Warnf("dropped %s message on %s: %v", outcome, m.Partition(), herr)
	case events.OutcomeRedelivered:
		if herr != nil {
			d.logger.Warnf("message on %s will be redelivered: %v", m.Partition(), herr)
		}
	case events.OutcomeFailed:
		d.logger.Errorf("message on %s failed: %v", m.Partition(), herr)
		coremon.CaptureException(herr, map[string]string{"module": "ingest", "partition": m.Partition()})
	}

	end := d.now()
	latency := end.Sub(start)
	label := "unknown"
	if typ != 0 {
		label = typ.String()
	}
	messagesTotal.WithLabelValues(label, outcome).Inc()
	handlingSeconds.WithLabelValues(label).Observe(latency.Seconds())
	if r, ok := d.metrics.(metrics.MessageRecorder); ok {
		if err := r.RecordMessage(metrics.MessageEvent{Partition: m.Partition(), Type: typ, Outcome: outcome, Latency: latency, Time: end}); err != nil {
			d.logger.Errorf("message metrics error: %v", err)
		}
	}
	if d.bus != nil {
		d.bus.Publish(events.MessageEvent{Partition: m.Partition(), Type: typ, Outcome: outcome, Latency: latency, Err: herr})
	}
}
