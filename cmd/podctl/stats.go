package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

// statsCmd prints carrier quota usage.
var statsCmd = &cobra.Command{
	Use:   "ratelimit-stats [carrier]",
	Short: "Show carrier API quota usage",
	Long: `ratelimit-stats prints the consumed quota per carrier for the current
window, from the persisted snapshot. With a carrier argument it reports that
carrier only.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	eng, err := newEngine("ratelimit-stats")
	if err != nil {
		return err
	}
	defer eng.Close()

	if len(args) == 1 {
		usage, ok := eng.limiter.Stats(args[0])
		if !ok {
			return fmt.Errorf("no quota configured for carrier %q", args[0])
		}
		printStats(usage.Carrier, usage.Count, usage.Limit, string(usage.Window), usage.ResetAt, usage.UsagePercent)
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CARRIER\tUSED\tLIMIT\tWINDOW\tUSAGE\tRESETS AT")
	for _, usage := range eng.limiter.AllStats() {
		fmt.Fprintf(w, "%s\t%d\t%d\t%s\t%.1f%%\t%s\n",
			usage.Carrier, usage.Count, usage.Limit, usage.Window,
			usage.UsagePercent, formatReset(usage.ResetAt))
	}
	return w.Flush()
}

func printStats(carrier string, count, limit int, window string, resetAt time.Time, percent float64) {
	fmt.Printf("Carrier:   %s\n", carrier)
	fmt.Printf("Used:      %d / %d (%.1f%%) per %s\n", count, limit, percent, window)
	fmt.Printf("Resets at: %s\n", formatReset(resetAt))
}

func formatReset(resetAt time.Time) string {
	if resetAt.IsZero() {
		return "-"
	}
	return resetAt.Format(time.RFC3339)
}
