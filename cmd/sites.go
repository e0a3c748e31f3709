package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/sitepower/config"
	"github.com/kilianp07/sitepower/infra/sqlstore"
)

var sitesCmd = &cobra.Command{
	Use:   "sites",
	Short: "Site related commands",
}

var sitesLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List active sites with their demand and current draw",
	RunE:  runSitesLs,
}

func init() {
	sitesCmd.AddCommand(sitesLsCmd)
	rootCmd.AddCommand(sitesCmd)
}

func runSitesLs(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	st, err := sqlstore.Open(cfg.Store)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	defer func() { _ = st.Close() }()

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()
	sites, err := st.GetActiveSites(ctx)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%-16s %10s %10s %10s\n", "SITE", "LIMIT_KW", "DEMAND_KW", "DRAW_KW")
	for _, s := range sites {
		fmt.Fprintf(out, "%-16s %10.1f %10.1f %10.1f\n", s.SiteNo, s.TotalPowerLimit, s.Demand, s.CurrentPower)
	}
	return nil
}
