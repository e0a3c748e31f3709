package cmd

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/spf13/cobra"

	"github.com/kilianp07/sitepower/app/plugins"
	"github.com/kilianp07/sitepower/config"
	"github.com/kilianp07/sitepower/core/factory"
)

var (
	predictSOC      float64
	predictPower    float64
	predictCapacity float64
)

var predictCmd = &cobra.Command{
	Use:   "predict",
	Short: "Forecast charging power at the state-of-charge checkpoints",
	RunE:  runPredict,
}

func init() {
	predictCmd.Flags().Float64Var(&predictSOC, "soc", 0, "current state of charge in percent")
	predictCmd.Flags().Float64Var(&predictPower, "power", 0, "current charging power in kW")
	predictCmd.Flags().Float64Var(&predictCapacity, "capacity", 0, "battery capacity in kWh")
	_ = predictCmd.MarkFlagRequired("power")
	_ = predictCmd.MarkFlagRequired("capacity")
	rootCmd.AddCommand(predictCmd)
}

func runPredict(cmd *cobra.Command, args []string) error {
	if predictSOC < 0 || predictSOC > 100 {
		return fmt.Errorf("soc must be within [0,100], got %v", predictSOC)
	}
	if predictCapacity <= 0 {
		return fmt.Errorf("capacity must be positive, got %v", predictCapacity)
	}
	mc := factory.ModuleConfig{Type: "curve"}
	cfg, err := config.Load(cfgPath)
	switch {
	case err == nil:
		mc = cfg.Components.Predictor
	case errors.Is(err, fs.ErrNotExist):
	default:
		return fmt.Errorf("load config: %w", err)
	}
	p, err := plugins.NewPredictor(mc)
	if err != nil {
		return err
	}
	res, err := p.Predict(predictSOC, predictPower, predictCapacity)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), res)
}
