package app

import (
	"fmt"

	"github.com/kilianp07/sitepower/config"
	"github.com/kilianp07/sitepower/core/bus"
	"github.com/kilianp07/sitepower/infra/logger"
	"github.com/kilianp07/sitepower/infra/mqtt"
	natsbus "github.com/kilianp07/sitepower/infra/nats"
)

// openBus connects the inbound source and the profile publisher of the
// configured broker.
func openBus(cfg *config.Config) (bus.Source, Publisher, error) {
	log := logger.New("bus")
	switch cfg.Bus.Kind {
	case config.BusNATS:
		ncfg := cfg.NATS
		if ncfg.CreateStream {
			// the stream must also cover the outbound subject
			if err := ensureStream(ncfg, cfg.Topics, log); err != nil {
				return nil, nil, err
			}
			ncfg.CreateStream = false
		}
		src, err := natsbus.NewSource(ncfg, cfg.Topics.Inbound(), log)
		if err != nil {
			return nil, nil, fmt.Errorf("nats source: %w", err)
		}
		pub, err := natsbus.NewPublisher(ncfg, cfg.Topics.PowerAllocation, log)
		if err != nil {
			_ = src.Close()
			return nil, nil, fmt.Errorf("nats publisher: %w", err)
		}
		return src, pub, nil
	default:
		src, err := mqtt.NewSource(cfg.MQTT, cfg.Topics.Inbound(), log)
		if err != nil {
			return nil, nil, fmt.Errorf("mqtt source: %w", err)
		}
		pub, err := mqtt.NewPublisher(cfg.MQTT, cfg.Topics.PowerAllocation, log)
		if err != nil {
			_ = src.Close()
			return nil, nil, fmt.Errorf("mqtt publisher: %w", err)
		}
		return src, pub, nil
	}
}

func ensureStream(cfg natsbus.Config, topics bus.Topics, log logger.Logger) error {
	conn, js, err := natsbus.Connect(cfg, log)
	if err != nil {
		return err
	}
	defer conn.Close()
	return natsbus.EnsureStream(js, cfg.Stream, append(topics.Inbound(), topics.PowerAllocation))
}
