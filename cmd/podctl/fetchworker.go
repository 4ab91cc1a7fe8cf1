package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/recoura/pod-engine/pkg/scheduler"
)

// fetchWorkerCmd runs one pass over claims awaiting their first POD fetch.
var fetchWorkerCmd = &cobra.Command{
	Use:   "fetch-worker",
	Short: "Fetch PODs for claims awaiting their first attempt",
	Long: `fetch-worker processes one batch of claims whose POD fetch is still
pending: it resolves the carrier (detecting it from the tracking number when
missing), gates each call behind the per-carrier quota, fetches the POD and
records the outcome on the claim.

Intended to run from cron. Exit codes:
  0  batch completed (including partial failures)
  1  fatal infrastructure error
  2  every claim in the batch failed`,
	RunE: runFetchWorker,
}

func init() {
	rootCmd.AddCommand(fetchWorkerCmd)

	fetchWorkerCmd.Flags().Int("batch-size", 50, "max claims per run")
	_ = viper.BindPFlag("worker.batch_size", fetchWorkerCmd.Flags().Lookup("batch-size"))
}

func runFetchWorker(cmd *cobra.Command, args []string) error {
	eng, err := newEngine("fetch-worker")
	if err != nil {
		return err
	}
	defer eng.Close()

	worker, err := scheduler.NewFetchWorker(
		eng.store,
		eng.fetcher,
		eng.limiter,
		eng.notifier,
		scheduler.WorkerConfig{BatchSize: viper.GetInt("worker.batch_size")},
		eng.logger,
	)
	if err != nil {
		return err
	}

	stats, err := worker.Run(context.Background())
	if err != nil {
		return err
	}

	if code := stats.ExitCode(); code != 0 {
		os.Exit(code)
	}
	return nil
}
