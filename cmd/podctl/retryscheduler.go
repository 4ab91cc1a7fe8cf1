package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/recoura/pod-engine/pkg/scheduler"
)

// leaseKey guards against overlapping retry scheduler invocations.
const leaseKey = "pod:retry_scheduler:lease"

// retrySchedulerCmd runs one retry pass over failed POD fetches.
var retrySchedulerCmd = &cobra.Command{
	Use:   "retry-scheduler",
	Short: "Retry failed POD fetches on the backoff schedule",
	Long: `retry-scheduler re-drives failed POD fetches whose backoff interval
has elapsed (1h, 6h, 24h, 72h after successive failures). Claims with a
persistent error are skipped after their first retry; rate-limited carriers
are skipped without consuming a retry slot.

A Redis lease keeps overlapping cron invocations from double-processing
claims; a run that finds the lease held exits cleanly with nothing done.

Intended to run from cron. Exit codes:
  0  run completed (including partial failures)
  1  fatal infrastructure error
  2  every retried claim failed`,
	RunE: runRetryScheduler,
}

func init() {
	rootCmd.AddCommand(retrySchedulerCmd)

	retrySchedulerCmd.Flags().Int("batch-size", 30, "max claims per run")
	retrySchedulerCmd.Flags().Int("max-retries", 4, "retry budget per claim")
	_ = viper.BindPFlag("retry.batch_size", retrySchedulerCmd.Flags().Lookup("batch-size"))
	_ = viper.BindPFlag("retry.max_retries", retrySchedulerCmd.Flags().Lookup("max-retries"))
}

func runRetryScheduler(cmd *cobra.Command, args []string) error {
	eng, err := newEngine("retry-scheduler")
	if err != nil {
		return err
	}
	defer eng.Close()

	lease := scheduler.NewRedisLease(eng.redis, leaseKey, viper.GetDuration("retry.lease_ttl"))

	retrier, err := scheduler.NewRetryScheduler(
		eng.store,
		eng.fetcher,
		eng.limiter,
		eng.notifier,
		lease,
		scheduler.Config{
			BatchSize:  viper.GetInt("retry.batch_size"),
			MaxRetries: viper.GetInt("retry.max_retries"),
		},
		eng.logger,
	)
	if err != nil {
		return err
	}

	stats, err := retrier.Run(context.Background())
	if err != nil {
		return err
	}

	if code := stats.ExitCode(); code != 0 {
		os.Exit(code)
	}
	return nil
}
