package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/comalice/hsm/internal/core"
	"github.com/comalice/hsm/internal/logging"
	"github.com/comalice/hsm/internal/production"
	"github.com/comalice/hsm/lifecycle"
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run a simulated service through start and stop",
	Long: `Starts a simulated service, waits for it to run, then stops it.
Workers left stuck after stop drive the machine through DirtyShutdown: each
timeout interrupts one of them, until they are gone or the retries run out.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfgPath, _ := cmd.Flags().GetString("config")
		stuck, _ := cmd.Flags().GetInt("stuck-workers")
		wait, _ := cmd.Flags().GetDuration("timeout")

		cfg := lifecycle.DefaultConfig()
		cfg.RetryInterval = 200 * time.Millisecond
		if cfgPath != "" {
			var err error
			if cfg, err = lifecycle.LoadConfig(cfgPath); err != nil {
				return err
			}
		}
		return simulate(cmd.OutOrStdout(), cfg, stuck, wait)
	},
}

func init() {
	rootCmd.AddCommand(simulateCmd)
	simulateCmd.Flags().StringP("config", "c", "", "Life cycle YAML config (default: constant 200ms retries)")
	simulateCmd.Flags().IntP("stuck-workers", "w", 0, "Workers that survive stop and need interrupting")
	simulateCmd.Flags().Duration("timeout", time.Minute, "Give up waiting after this long")
}

func simulate(out io.Writer, cfg lifecycle.Config, stuck int, wait time.Duration) error {
	records := make(chan core.Record, 256)
	pub := production.NewChannelPublisher(records).IncludeFaults()
	svc := newSimService("simulated", stuck, 10*time.Millisecond)

	lc, err := lifecycle.New(svc, svc,
		lifecycle.WithConfig(cfg),
		lifecycle.WithObserver(pub),
		lifecycle.WithLogger(logging.For(logging.ComponentLifecycle)),
	)
	if err != nil {
		return err
	}

	deadline := time.After(wait)
	await := func(states ...string) (string, error) {
		for {
			select {
			case rec := <-records:
				printRecord(out, rec)
				if len(rec.Active) > 1 {
					for _, s := range states {
						if rec.Active[1] == s {
							return s, nil
						}
					}
				}
			case <-deadline:
				return "", fmt.Errorf("timed out waiting for %s", strings.Join(states, " or "))
			}
		}
	}

	if err := lc.Start(); err != nil {
		return err
	}
	if _, err := await("Running", "Failed"); err != nil {
		return err
	}
	if err := lc.Stop(); err != nil {
		return err
	}
	final, err := await("Idle", "Failed")
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "final state: %s (dropped records: %d)\n", final, pub.Dropped())
	return pub.Close()
}

func printRecord(w io.Writer, rec core.Record) {
	line := fmt.Sprintf("%-28s %-10s", rec.Event, rec.Duration.Round(time.Microsecond))
	if len(rec.Entered) > 0 {
		line += " -> " + strings.Join(rec.Entered, ", ")
	}
	if rec.Err != nil {
		line += " error: " + rec.Err.Error()
	}
	fmt.Fprintln(w, line)
}
