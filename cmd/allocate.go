package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/sitepower/config"
	"github.com/kilianp07/sitepower/core/allocation"
	"github.com/kilianp07/sitepower/core/dispatch"
	"github.com/kilianp07/sitepower/core/model"
	"github.com/kilianp07/sitepower/infra/logger"
	"github.com/kilianp07/sitepower/infra/sqlstore"
)

var allocateCmd = &cobra.Command{
	Use:   "allocate <site_no>",
	Short: "Compute the power profile of a site without publishing it",
	Args:  cobra.ExactArgs(1),
	RunE:  runAllocate,
}

func init() {
	rootCmd.AddCommand(allocateCmd)
}

// offlinePublisher refuses to publish; planning never reaches it.
type offlinePublisher struct{}

func (offlinePublisher) PublishProfile(context.Context, model.PowerProfile) error {
	return errors.New("publishing is disabled in offline mode")
}

func runAllocate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	st, err := sqlstore.Open(cfg.Store)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	defer func() { _ = st.Close() }()

	m, err := dispatch.NewManager(allocation.New(cfg.Allocation), st, offlinePublisher{}, nil, nil, logger.New("allocate"))
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()
	out, err := m.Plan(ctx, args[0])
	if err != nil && !errors.Is(err, allocation.ErrCapacityInsufficient) {
		return err
	}
	if perr := printJSON(cmd.OutOrStdout(), out); perr != nil {
		return perr
	}
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", err)
	}
	return nil
}
