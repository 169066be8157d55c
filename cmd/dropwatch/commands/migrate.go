package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/okian/dropwatch/internal/adapters/repository/postgres"
	"github.com/okian/dropwatch/pkg/logger"
)

// ErrNoDatabase is returned by commands that need database_url when it is unset.
var ErrNoDatabase = errors.New("database_url is not configured")

func newMigrateCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:       "migrate [up|down]",
		Short:     "Apply or roll back the Postgres schema",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{string(postgres.Up), string(postgres.Down)},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if e.cfg.DatabaseURL == "" {
				return ErrNoDatabase
			}
			db, err := postgres.Open(ctx, e.cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer func() {
				if err := db.Close(); err != nil {
					e.log.Error(ctx, "failed to close database", logger.Error(err))
				}
			}()

			dir := postgres.Direction(args[0])
			if err := postgres.Migrate(db, dir); err != nil {
				return err
			}
			e.log.Info(ctx, "migration applied", logger.String("direction", string(dir)))
			fmt.Fprintf(cmd.OutOrStdout(), "migrate %s: ok\n", dir)
			return nil
		},
	}
}
