package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/sitepower/config"
	"github.com/kilianp07/sitepower/core/dispatch/logging"
	"github.com/kilianp07/sitepower/pkg/export"
)

var (
	exportSite   string
	exportSince  time.Duration
	exportFormat string
)

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "Optimization task log commands",
}

var tasksExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export optimization task records as CSV or JSON",
	RunE:  runTasksExport,
}

func init() {
	tasksExportCmd.Flags().StringVar(&exportSite, "site", "", "only export tasks of this site")
	tasksExportCmd.Flags().DurationVar(&exportSince, "since", 24*time.Hour, "export tasks started within this window")
	tasksExportCmd.Flags().StringVar(&exportFormat, "format", "csv", "output format: csv or json")
	tasksCmd.AddCommand(tasksExportCmd)
	rootCmd.AddCommand(tasksCmd)
}

func runTasksExport(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	ts, err := logging.New(cfg.TaskLog)
	if err != nil {
		return fmt.Errorf("task log: %w", err)
	}
	if ts == nil {
		return fmt.Errorf("task log is disabled")
	}
	defer func() { _ = ts.Close() }()

	q := logging.TaskQuery{SiteNo: exportSite}
	if exportSince > 0 {
		q.Start = time.Now().Add(-exportSince)
	}
	recs, err := ts.Query(cmd.Context(), q)
	if err != nil {
		return err
	}
	switch exportFormat {
	case "csv":
		return export.WriteCSV(cmd.OutOrStdout(), recs)
	case "json":
		return export.WriteJSON(cmd.OutOrStdout(), recs)
	default:
		return fmt.Errorf("unknown format %q", exportFormat)
	}
}
