package commands

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	service "github.com/okian/dropwatch/internal/app"
	"github.com/okian/dropwatch/pkg/logger"
)

func newRecomputeCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "recompute",
		Short: "Rebuild the drop-rate projection once and print the report",
		Long: `Recompute folds every stored clear into a new generation of drop-rate
statistics. Run it from cron against the shared database when no server is
running its own schedule.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			svc, err := service.New(ctx, e.cfg, service.WithLogger(e.log))
			if err != nil {
				return fmt.Errorf("create service: %w", err)
			}
			defer func() {
				if err := svc.Stop(context.WithoutCancel(ctx)); err != nil {
					e.log.Error(ctx, "service shutdown failed", logger.Error(err))
				}
			}()

			report, err := svc.Recompute(ctx)
			if err != nil {
				return fmt.Errorf("recompute: %w", err)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}
}
