package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/dropwatch/internal/simulate"
)

func newSimulateCmd(e *env) *cobra.Command {
	sc := simulate.Config{}
	var url string

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Drive a running server with generated clears and verify its stats",
		Long: `Simulate posts randomly generated clears to a running dropwatch server,
resubmits some of them to check that duplicates in a reset period are
refused, forces a recompute and compares the published drop rates with
what was accepted. Run it against a server nobody else is writing to.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sc.BaseURL = url
			if sc.BaseURL == "" {
				sc.BaseURL = baseURL(e.cfg.Addr)
			}
			if sc.Seed == 0 {
				sc.Seed = uint64(time.Now().UnixNano())
			}

			stats, err := simulate.Run(cmd.Context(), &sc)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(),
				"submitted %d clears: %d accepted, %d duplicates refused; %d pairs verified, %d skipped\n",
				stats.Submitted, stats.Accepted, stats.Duplicates, stats.PairsVerified, stats.PairsSkipped)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&url, "url", "", "base URL of the server (default derived from addr)")
	f.IntVar(&sc.Characters, "characters", 50, "number of simulated characters")
	f.StringSliceVar(&sc.Bosses, "bosses", nil, "boss ids to clear (default every active boss)")
	f.Float64Var(&sc.DropChance, "drop-chance", 0.2, "chance of each catalog item dropping")
	f.Float64Var(&sc.FailRate, "fail-rate", 0.1, "chance of an attempt failing")
	f.Float64Var(&sc.DuplicateRate, "duplicate-rate", 0.1, "chance of resubmitting a clear")
	f.IntVar(&sc.Workers, "workers", 8, "concurrent submitters")
	f.DurationVar(&sc.Timeout, "timeout", 10*time.Second, "HTTP request timeout")
	f.Uint64Var(&sc.Seed, "seed", 0, "generator seed (default random)")
	f.StringVarP(&sc.OutputFile, "output", "o", "", "write the generated clears to this JSON file")
	return cmd
}

// baseURL turns a listen address into a URL on the local host.
func baseURL(addr string) string {
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	return "http://" + addr
}
