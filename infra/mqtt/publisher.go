package mqtt

import (
	"context"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/kilianp07/sitepower/core/bus"
	"github.com/kilianp07/sitepower/core/logger"
	"github.com/kilianp07/sitepower/core/model"
	coremon "github.com/kilianp07/sitepower/core/monitoring"
)

// Publisher sends power profiles to the allocation topic.
type Publisher struct {
	cli        pahoClient
	topic      string
	qos        byte
	maxRetries int
	backoff    time.Duration
	logger     logger.Logger
	now        func() time.Time
}

// NewPublisher connects a dedicated client for outbound profiles.
func NewPublisher(cfg Config, topic string, log logger.Logger) (*Publisher, error) {
	if topic == "" {
		return nil, fmt.Errorf("mqtt: publish topic is required")
	}
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}
	opts.SetClientID(cfg.clientID("publisher"))
	opts.OnConnect = func(_ paho.Client) { log.Infof("MQTT publisher connected") }
	cli, err := connect(opts, log)
	if err != nil {
		return nil, err
	}
	p := &Publisher{
		cli:        cli,
		topic:      topic,
		qos:        cfg.qos("profile", 1),
		maxRetries: cfg.MaxRetries,
		backoff:    time.Duration(cfg.BackoffMS) * time.Millisecond,
		logger:     log,
		now:        time.Now,
	}
	if p.maxRetries < 0 {
		p.maxRetries = 0
	}
	if p.backoff <= 0 {
		p.backoff = 100 * time.Millisecond
	}
	return p, nil
}

// PublishProfile sends one profile message, retrying with exponential
// backoff.
func (p *Publisher) PublishProfile(ctx context.Context, prof model.PowerProfile) error {
	payload, err := bus.EncodeProfile(prof, p.now())
	if err != nil {
		return fmt.Errorf("encode profile %s: %w", prof.ChargerSN, err)
	}
	var publishErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				publishErr = ctx.Err()
			case <-time.After(p.backoff * time.Duration(1<<(attempt-1))):
			}
			if ctx.Err() != nil {
				break
			}
		}
		token := p.cli.Publish(p.topic, p.qos, false, payload)
		select {
		case <-token.Done():
			publishErr = token.Error()
		case <-ctx.Done():
			publishErr = ctx.Err()
		}
		if publishErr == nil {
			p.logger.Debugw("profile sent", map[string]any{"charger_sn": prof.ChargerSN, "power": prof.Power, "topic": p.topic})
			return nil
		}
		p.logger.Errorf("publish attempt %d for %s failed: %v", attempt+1, prof.ChargerSN, publishErr)
		if ctx.Err() != nil {
			break
		}
	}
	coremon.CaptureException(publishErr, map[string]string{"module": "mqtt", "charger_sn": prof.ChargerSN})
	return fmt.Errorf("publish profile %s: %w", prof.ChargerSN, publishErr)
}

// Close gracefully closes the MQTT connection.
func (p *Publisher) Close() error {
	if p.cli != nil && p.cli.IsConnected() {
		p.cli.Disconnect(250)
	}
	return nil
}
