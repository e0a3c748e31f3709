package nats

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kilianp07/sitepower/core/bus"
	"github.com/kilianp07/sitepower/core/logger"
)

// puller is the part of *nats.Subscription used for pull consumers.
type puller interface {
	Fetch(batch int, opts ...nats.PullOpt) ([]*nats.Msg, error)
}

type acker interface {
	Ack(opts ...nats.AckOpt) error
	// InProgress resets the server side ack timer.
	InProgress(opts ...nats.AckOpt) error
}

type partition struct {
	subject string
	sub     puller
}

// Source pulls from one durable consumer per subject. A Nak'ed message is
// kept in a local requeue and served again after the nak delay; its subject
// is not fetched from the server until the requeue has drained, so a
// redelivery never overtakes newer messages of the same subject.
type Source struct {
	conn     *nats.Conn
	parts    []partition
	wait     time.Duration
	nakDelay time.Duration
	logger   logger.Logger
	ackerFor func(*nats.Msg) acker

	mu      sync.Mutex
	next    int
	closed  bool
	order   uint64
	requeue map[string][]*message
	now     func() time.Time
}

type message struct {
	src     *Source
	subject string
	data    []byte
	acker   acker
	order   uint64
	due     time.Time
}

func (m *message) Partition() string { return m.subject }
func (m *message) Payload() []byte   { return m.data }

func (m *message) Ack(ctx context.Context) error {
	return m.acker.Ack(nats.Context(ctx))
}

// Nak holds the message for redelivery after the configured delay. The
// server ack timer is reset so the message is not redelivered twice.
func (m *message) Nak(ctx context.Context) error {
	if err := m.acker.InProgress(nats.Context(ctx)); err != nil {
		return err
	}
	m.src.hold(m)
	return nil
}

// hold inserts m into the requeue of its subject in arrival order.
func (s *Source) hold(m *message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m.due = s.now().Add(s.nakDelay)
	q := s.requeue[m.subject]
	i := len(q)
	for i > 0 && q[i-1].order > m.order {
		i--
	}
	q = append(q, nil)
	copy(q[i+1:], q[i:])
	q[i] = m
	s.requeue[m.subject] = q
}

// takeHeld pops up to max due messages of subject. blocked reports that the
// subject still has held messages, due or not.
func (s *Source) takeHeld(subject string, max int) (out []bus.Message, blocked bool, due time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := s.requeue[subject]
	if len(q) == 0 {
		return nil, false, time.Time{}
	}
	now := s.now()
	n := 0
	for n < len(q) && n < max && !q[n].due.After(now) {
		n++
	}
	for _, m := range q[:n] {
		out = append(out, m)
	}
	s.requeue[subject] = q[n:]
	if n == 0 {
		return nil, true, q[0].due
	}
	return out, true, time.Time{}
}

func durableName(base, subject string) string {
	r := strings.NewReplacer(".", "_", "*", "_", ">", "_")
	return base + "_" + r.Replace(subject)
}

// NewSource connects and binds a durable pull consumer for every subject.
func NewSource(cfg Config, subjects []string, log logger.Logger) (*Source, error) {
	if len(subjects) == 0 {
		return nil, fmt.Errorf("nats: no subject to consume")
	}
	conn, js, err := Connect(cfg, log)
	if err != nil {
		return nil, err
	}
	if cfg.CreateStream {
		if err := EnsureStream(js, cfg.Stream, subjects); err != nil {
			conn.Close()
			return nil, err
		}
	}
	s := newSource(cfg, log)
	s.conn = conn
	for _, subj := range subjects {
		opts := []nats.SubOpt{
			nats.BindStream(cfg.Stream),
			nats.AckExplicit(),
			nats.AckWait(time.Duration(cfg.AckWaitSeconds) * time.Second),
		}
		if cfg.MaxDeliver > 0 {
			opts = append(opts, nats.MaxDeliver(cfg.MaxDeliver))
		}
		sub, err := js.PullSubscribe(subj, durableName(cfg.Durable, subj), opts...)
		if err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("pull subscribe %s: %w", subj, err)
		}
		s.parts = append(s.parts, partition{subject: subj, sub: sub})
	}
	log.Infof("NATS source bound to stream %s (%d subjects)", cfg.Stream, len(subjects))
	return s, nil
}

func newSource(cfg Config, log logger.Logger) *Source {
	return &Source{
		wait:     ms(cfg.FetchWaitMS),
		nakDelay: ms(cfg.NakDelayMS),
		logger:   log,
		ackerFor: func(m *nats.Msg) acker { return m },
		requeue:  make(map[string][]*message),
		now:      time.Now,
	}
}

// Fetch polls the partitions in turn, starting after the one served last,
// and returns the first non-empty batch. Held messages of a partition are
// served before anything new is fetched for it. The fetch wait is shared
// across the partitions.
func (s *Source) Fetch(ctx context.Context, max int) ([]bus.Message, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, bus.ErrClosed
	}
	parts := s.parts
	start := s.next
	s.mu.Unlock()
	if len(parts) == 0 {
		return nil, nil
	}
	if max <= 0 {
		max = 1
	}
	per := s.wait / time.Duration(len(parts))
	if per < 10*time.Millisecond {
		per = 10 * time.Millisecond
	}
	var nextDue time.Time
	fetched := false
	for i := 0; i < len(parts); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		idx := (start + i) % len(parts)
		p := parts[idx]
		held, blocked, due := s.takeHeld(p.subject, max)
		if len(held) > 0 {
			s.mu.Lock()
			s.next = (idx + 1) % len(parts)
			s.mu.Unlock()
			return held, nil
		}
		if blocked {
			if nextDue.IsZero() || due.Before(nextDue) {
				nextDue = due
			}
			continue
		}
		fetched = true
		fctx, cancel := context.WithTimeout(ctx, per)
		msgs, err := p.sub.Fetch(max, nats.Context(fctx))
		cancel()
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, nats.ErrTimeout) {
				continue
			}
			if errors.Is(err, nats.ErrConnectionClosed) || errors.Is(err, nats.ErrBadSubscription) {
				return nil, bus.ErrClosed
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("fetch %s: %w", p.subject, err)
		}
		if len(msgs) == 0 {
			continue
		}
		s.mu.Lock()
		s.next = (idx + 1) % len(parts)
		out := make([]bus.Message, 0, len(msgs))
		for _, m := range msgs {
			s.order++
			out = append(out, &message{src: s, subject: p.subject, data: m.Data, acker: s.ackerFor(m), order: s.order})
		}
		s.mu.Unlock()
		return out, nil
	}
	if !fetched && !nextDue.IsZero() {
		// every partition is waiting for a held message
		wait := time.Until(nextDue)
		if wait > s.wait {
			wait = s.wait
		}
		t := time.NewTimer(wait)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.C:
		}
	}
	return nil, nil
}

// Close drops the subscriptions, keeping the durable consumers, and closes
// the connection.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.conn != nil {
		s.conn.Close()
	}
	return nil
}
