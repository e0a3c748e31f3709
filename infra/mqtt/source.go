package mqtt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/kilianp07/sitepower/core/bus"
	"github.com/kilianp07/sitepower/core/logger"
)

// Source consumes the inbound topics. Each topic is one partition.
type Source struct {
	cli    pahoClient
	topics []string
	qos    byte
	delay  time.Duration
	logger logger.Logger

	inbox chan *message
	done  chan struct{}
	once  sync.Once

	mu      sync.Mutex
	requeue []*message
}

type message struct {
	msg     paho.Message
	src     *Source
	due     time.Time
	settled atomic.Bool
}

func (m *message) Partition() string { return m.msg.Topic() }
func (m *message) Payload() []byte   { return m.msg.Payload() }

// Ack acknowledges the message to the broker.
func (m *message) Ack(context.Context) error {
	if !m.settled.CompareAndSwap(false, true) {
		return nil
	}
	m.msg.Ack()
	return nil
}

// Nak keeps the message unacknowledged and hands it out again after the
// redelivery delay, ahead of any newer message.
func (m *message) Nak(context.Context) error {
	if !m.settled.CompareAndSwap(false, true) {
		return nil
	}
	m.src.push(m)
	return nil
}

// NewSource connects with a persistent session and subscribes to topics.
func NewSource(cfg Config, topics []string, log logger.Logger) (*Source, error) {
	if len(topics) == 0 {
		return nil, fmt.Errorf("mqtt: no topic to consume")
	}
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}
	opts.SetClientID(cfg.clientID("source"))
	opts.SetCleanSession(false)
	opts.SetAutoAckDisabled(true)
	opts.SetOrderMatters(true)

	buf := cfg.BufferSize
	if buf <= 0 {
		buf = 256
	}
	s := &Source{
		topics: topics,
		qos:    cfg.qos("telemetry", 1),
		delay:  time.Duration(cfg.RedeliveryDelayMS) * time.Millisecond,
		logger: log,
		inbox:  make(chan *message, buf),
		done:   make(chan struct{}),
	}
	// subscriptions are renewed on every reconnect
	opts.OnConnect = func(c paho.Client) {
		log.Infof("MQTT source connected")
		for _, t := range s.topics {
			if token := c.Subscribe(t, s.qos, s.onMessage); token.Wait() && token.Error() != nil {
				log.Errorf("subscribe %s: %v", t, token.Error())
			}
		}
	}
	cli, err := connect(opts, log)
	if err != nil {
		return nil, err
	}
	s.cli = cli
	return s, nil
}

func (s *Source) onMessage(_ paho.Client, msg paho.Message) {
	select {
	case s.inbox <- &message{msg: msg, src: s}:
	case <-s.done:
	}
}

func (s *Source) push(m *message) {
	m.due = time.Now().Add(s.delay)
	m.settled.Store(false)
	s.mu.Lock()
	s.requeue = append(s.requeue, m)
	s.mu.Unlock()
}

// Fetch returns redelivered messages first, then waits for new ones.
func (s *Source) Fetch(ctx context.Context, max int) ([]bus.Message, error) {
	if max <= 0 {
		max = 1
	}
	if out, err := s.takeRequeued(ctx, max); out != nil || err != nil {
		return out, err
	}

	var out []bus.Message
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.done:
		return nil, bus.ErrClosed
	case m := <-s.inbox:
		out = append(out, m)
	}
	for len(out) < max {
		select {
		case m := <-s.inbox:
			out = append(out, m)
		default:
			return out, nil
		}
	}
	return out, nil
}

func (s *Source) takeRequeued(ctx context.Context, max int) ([]bus.Message, error) {
	for {
		s.mu.Lock()
		if len(s.requeue) == 0 {
			s.mu.Unlock()
			return nil, nil
		}
		wait := time.Until(s.requeue[0].due)
		if wait <= 0 {
			n := len(s.requeue)
			if n > max {
				n = max
			}
			out := make([]bus.Message, 0, n)
			for _, m := range s.requeue[:n] {
				out = append(out, m)
			}
			s.requeue = s.requeue[n:]
			s.mu.Unlock()
			return out, nil
		}
		s.mu.Unlock()

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-s.done:
			t.Stop()
			return nil, bus.ErrClosed
		case <-t.C:
		}
	}
}

// Close disconnects from the broker. Unacknowledged messages are redelivered
// by the broker on the next session.
func (s *Source) Close() error {
	s.once.Do(func() {
		close(s.done)
		if s.cli != nil && s.cli.IsConnected() {
			s.cli.Disconnect(250)
		}
	})
	return nil
}
