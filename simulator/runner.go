package simulator

import (
	"context"
	"encoding/json"
	"time"

	"github.com/kilianp07/sitepower/core/bus"
	"github.com/kilianp07/sitepower/core/logger"
)

// Transport is the broker connection used by Run.
type Transport interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	// Subscribe registers fn for every message received on topic.
	Subscribe(topic string, fn func(payload []byte)) error
	Close() error
}

// Run applies the profiles received on the allocation topic and publishes
// the site telemetry every cfg.Interval until ctx is done.
func Run(ctx context.Context, cfg Config, site *Site, tr Transport, log logger.Logger) error {
	err := tr.Subscribe(cfg.Topics.PowerAllocation, func(payload []byte) {
		var msg bus.ProfileMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			log.Warnf("discarding malformed profile: %v", err)
			return
		}
		if site.ApplyProfile(msg.Profile) {
			log.Debugw("profile applied", map[string]any{"charger_sn": msg.Profile.ChargerSN, "power": msg.Profile.Power})
		}
	})
	if err != nil {
		return err
	}

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()
	dt := cfg.StepDuration()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		msgs, err := site.Step(dt)
		if err != nil {
			return err
		}
		for _, m := range msgs {
			if err := tr.Publish(ctx, m.Topic, m.Payload); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				log.Errorf("publish to %s failed: %v", m.Topic, err)
			}
		}
		log.Debugf("step published %d messages, demand %.1f kW", len(msgs), site.Demand())
	}
}
