// Package nats implements the bus contracts on NATS JetStream. Every inbound
// subject is consumed through its own durable pull consumer and is one
// partition.
package nats

import (
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kilianp07/sitepower/core/logger"
)

// Config holds NATS configuration.
type Config struct {
	URL              string `json:"url"`
	Name             string `json:"name"`
	Stream           string `json:"stream"`
	Durable          string `json:"durable"`
	CreateStream     bool   `json:"create_stream"`
	ReconnectWaitMS  int    `json:"reconnect_wait_ms"`
	MaxReconnects    int    `json:"max_reconnects"`
	ConnectTimeoutMS int    `json:"connect_timeout_ms"`
	FetchWaitMS      int    `json:"fetch_wait_ms"`
	NakDelayMS       int    `json:"nak_delay_ms"`
	AckWaitSeconds   int    `json:"ack_wait_seconds"`
	MaxDeliver       int    `json:"max_deliver"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.URL == "" {
		c.URL = nats.DefaultURL
	}
	if c.Name == "" {
		c.Name = "sitepower"
	}
	if c.Stream == "" {
		c.Stream = "SITEPOWER"
	}
	if c.Durable == "" {
		c.Durable = "sitepower"
	}
	if c.ReconnectWaitMS == 0 {
		c.ReconnectWaitMS = 2000
	}
	if c.MaxReconnects == 0 {
		c.MaxReconnects = -1
	}
	if c.ConnectTimeoutMS == 0 {
		c.ConnectTimeoutMS = 5000
	}
	if c.FetchWaitMS == 0 {
		c.FetchWaitMS = 1000
	}
	if c.NakDelayMS == 0 {
		c.NakDelayMS = 1000
	}
	if c.AckWaitSeconds == 0 {
		c.AckWaitSeconds = 30
	}
}

// Validate checks the configured values.
func (c Config) Validate() error {
	if c.URL == "" {
		return errors.New("nats: url is required")
	}
	if c.Stream == "" || c.Durable == "" {
		return errors.New("nats: stream and durable are required")
	}
	if c.FetchWaitMS <= 0 || c.AckWaitSeconds <= 0 {
		return errors.New("nats: fetch_wait_ms and ack_wait_seconds must be positive")
	}
	if c.NakDelayMS < 0 || c.MaxDeliver < 0 {
		return errors.New("nats: nak_delay_ms and max_deliver must not be negative")
	}
	return nil
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

// Connect opens the connection and its JetStream context.
func Connect(cfg Config, log logger.Logger) (*nats.Conn, nats.JetStreamContext, error) {
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.ReconnectWait(ms(cfg.ReconnectWaitMS)),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.Timeout(ms(cfg.ConnectTimeoutMS)),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Warnf("reconnected to NATS %s", nc.ConnectedUrl())
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Errorf("NATS disconnected: %v", err)
			}
		}),
	}
	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}
	return conn, js, nil
}

// EnsureStream creates the stream over subjects when it does not exist.
func EnsureStream(js nats.JetStreamContext, name string, subjects []string) error {
	_, err := js.StreamInfo(name)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("stream %s info: %w", name, err)
	}
	if _, err := js.AddStream(&nats.StreamConfig{
		Name:      name,
		Subjects:  subjects,
		Storage:   nats.FileStorage,
		Retention: nats.LimitsPolicy,
	}); err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}
	return nil
}
