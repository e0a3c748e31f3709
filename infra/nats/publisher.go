package nats

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kilianp07/sitepower/core/bus"
	"github.com/kilianp07/sitepower/core/logger"
	"github.com/kilianp07/sitepower/core/model"
	coremon "github.com/kilianp07/sitepower/core/monitoring"
)

type jsPublisher interface {
	Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error)
}

// Publisher sends power profiles to a JetStream subject.
type Publisher struct {
	conn    *nats.Conn
	js      jsPublisher
	subject string
	logger  logger.Logger
	now     func() time.Time
}

// NewPublisher connects a dedicated connection for outbound profiles.
func NewPublisher(cfg Config, subject string, log logger.Logger) (*Publisher, error) {
	if subject == "" {
		return nil, fmt.Errorf("nats: publish subject is required")
	}
	conn, js, err := Connect(cfg, log)
	if err != nil {
		return nil, err
	}
	return &Publisher{conn: conn, js: js, subject: subject, logger: log, now: time.Now}, nil
}

// profileID identifies one allocation for a charger. Profiles without a
// timestamp get no id and are never de-duplicated.
func profileID(prof model.PowerProfile) string {
	if prof.Timestamp.IsZero() {
		return ""
	}
	return fmt.Sprintf("%s-%d", prof.ChargerSN, prof.Timestamp.UnixNano())
}

// PublishProfile sends one profile and waits for the stream ack. A profile
// published twice for the same allocation is dropped by the stream within
// its duplicate window.
func (p *Publisher) PublishProfile(ctx context.Context, prof model.PowerProfile) error {
	payload, err := bus.EncodeProfile(prof, p.now())
	if err != nil {
		return fmt.Errorf("encode profile %s: %w", prof.ChargerSN, err)
	}
	opts := []nats.PubOpt{nats.Context(ctx)}
	if id := profileID(prof); id != "" {
		opts = append(opts, nats.MsgId(id))
	}
	ack, err := p.js.Publish(p.subject, payload, opts...)
	if err != nil {
		coremon.CaptureException(err, map[string]string{"module": "nats", "charger_sn": prof.ChargerSN})
		return fmt.Errorf("publish profile %s: %w", prof.ChargerSN, err)
	}
	p.logger.Debugw("profile sent", map[string]any{"charger_sn": prof.ChargerSN, "stream": ack.Stream, "seq": ack.Sequence})
	return nil
}

// Close closes the connection.
func (p *Publisher) Close() error {
	if p.conn != nil {
		p.conn.Close()
	}
	return nil
}
