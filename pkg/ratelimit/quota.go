// Package ratelimit enforces per-carrier API quotas over fixed day/hour
// windows and persists counters so a restart never forgets consumed budget.
package ratelimit

import (
	"time"
)

// Window is the quota accounting period. Windows are fixed, not sliding:
// counters reset lazily once the reset time passes, so bursts are possible
// at the boundary.
type Window string

const (
	WindowDay  Window = "day"
	WindowHour Window = "hour"
)

// Duration returns the length of the window.
func (w Window) Duration() time.Duration {
	if w == WindowHour {
		return time.Hour
	}
	return 24 * time.Hour
}

// Quota is the request ceiling for one carrier within its window.
type Quota struct {
	Max    int    `mapstructure:"max" json:"max"`
	Window Window `mapstructure:"window" json:"window"`
}

// DefaultQuotas returns the documented ceilings of the supported carrier APIs.
func DefaultQuotas() map[string]Quota {
	return map[string]Quota{
		"colissimo":  {Max: 1000, Window: WindowDay},
		"chronopost": {Max: 500, Window: WindowDay},
		"ups":        {Max: 200, Window: WindowHour},
		"dhl":        {Max: 2500, Window: WindowDay},
		"fedex":      {Max: 1000, Window: WindowDay},
	}
}

// Counter is the consumed budget of one carrier in one window.
type Counter struct {
	Count   int       `json:"count"`
	ResetAt time.Time `json:"reset_at"`
}

// Snapshot is the persisted form of all counters. The file layout is part of
// the operational surface: ops tooling reads it to watch quota consumption.
type Snapshot struct {
	LastUpdated  time.Time          `json:"last_updated"`
	DailyCounts  map[string]Counter `json:"daily_counts"`
	HourlyCounts map[string]Counter `json:"hourly_counts"`
}

// Stats is a read-only usage report for one carrier.
type Stats struct {
	Carrier      string    `json:"carrier"`
	Count        int       `json:"count"`
	Limit        int       `json:"limit"`
	Window       Window    `json:"window"`
	ResetAt      time.Time `json:"reset_at"`
	UsagePercent float64   `json:"usage_percent"`
}
