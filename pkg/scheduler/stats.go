package scheduler

// Exit codes for the batch entrypoints.
const (
	// ExitOK means the run completed with zero or partial success.
	ExitOK = 0

	// ExitAllFailed means every attempted claim failed.
	ExitAllFailed = 2

	// ExitFatal means an infrastructure failure aborted the run.
	ExitFatal = 1
)

// Stats summarizes one batch run.
type Stats struct {
	Success           int
	Failed            int
	SkippedPersistent int
	SkippedRateLimit  int
	MaxRetriesReached int
	Total             int
}

// SuccessRate returns the percentage of processed claims that succeeded.
func (s *Stats) SuccessRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Success) / float64(s.Total) * 100
}

// ExitCode maps the run outcome to a process exit code. Infrastructure
// failures never reach here; they surface as an error from Run and map to
// ExitFatal in the CLI.
func (s *Stats) ExitCode() int {
	if s.Total > 0 && s.Failed == s.Total {
		return ExitAllFailed
	}
	return ExitOK
}
