package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/sitepower/config"
	"github.com/kilianp07/sitepower/infra/logger"
	"github.com/kilianp07/sitepower/simulator"
)

var (
	simCfg    simulator.Config
	simDryRun int
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Publish telemetry for a simulated site and follow the allocated profiles",
	RunE:  runSimulate,
}

func init() {
	f := simulateCmd.Flags()
	f.StringVar(&simCfg.Broker, "broker", "", "MQTT broker URL (defaults to mqtt.broker of the config)")
	f.StringVar(&simCfg.SiteNo, "site", "SIM-1", "site number")
	f.IntVar(&simCfg.Connectors, "connectors", 4, "number of connectors")
	f.Float64Var(&simCfg.CapacityKWh, "capacity", 60, "battery capacity in kWh")
	f.Float64Var(&simCfg.MaxPowerKW, "max-power", 50, "connector power limit in kW")
	f.Float64SliceVar(&simCfg.Demand, "demand", []float64{200, 120}, "site demand schedule in kW")
	f.IntVar(&simCfg.DemandEvery, "demand-every", 10, "steps between demand changes")
	f.DurationVar(&simCfg.Interval, "interval", time.Second, "real time between steps")
	f.Float64Var(&simCfg.TimeScale, "time-scale", 60, "simulated seconds per real second")
	f.Float64Var(&simCfg.FaultRate, "fault-rate", 0, "probability per step that a connector faults")
	f.Int64Var(&simCfg.Seed, "seed", 0, "random seed (0 picks one)")
	f.IntVar(&simDryRun, "dry-run", 0, "print the messages of this many steps instead of connecting")
	rootCmd.AddCommand(simulateCmd)
}

func runSimulate(cmd *cobra.Command, args []string) error {
	sc := simCfg
	cfg, err := config.Load(cfgPath)
	switch {
	case err == nil:
		sc.Topics = cfg.Topics
		if sc.Broker == "" {
			sc.Broker = cfg.MQTT.Broker
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return fmt.Errorf("load config: %w", err)
	}
	sc.SetDefaults()
	if err := sc.Validate(); err != nil {
		return err
	}
	site := simulator.NewSite(sc)

	if simDryRun > 0 {
		enc := json.NewEncoder(cmd.OutOrStdout())
		for i := 0; i < simDryRun; i++ {
			msgs, err := site.Step(sc.StepDuration())
			if err != nil {
				return err
			}
			for _, m := range msgs {
				if err := enc.Encode(map[string]any{"topic": m.Topic, "payload": json.RawMessage(m.Payload)}); err != nil {
					return err
				}
			}
		}
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	tr, err := simulator.DialMQTT(sc.Broker, "simulator-"+sc.SiteNo)
	if err != nil {
		return err
	}
	defer func() { _ = tr.Close() }()
	log := logger.New("simulator")
	log.Infof("simulating site %s with %d connectors on %s", sc.SiteNo, sc.Connectors, sc.Broker)
	return simulator.Run(ctx, sc, site, tr, log)
}
