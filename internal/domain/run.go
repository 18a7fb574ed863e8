package domain

import "time"

// RunSummary reports the outcome of one dispatcher run. Per-unit failures are
// counted here, never raised; only resource-level failures abort a run.
type RunSummary struct {
	RunID     string        `json:"run_id"`
	Stage     string        `json:"stage"`
	Total     int           `json:"total"`
	Done      int           `json:"done"`
	Skipped   int           `json:"skipped"`
	Errored   int           `json:"errored"`
	Remaining int           `json:"remaining"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// Processed returns the number of units that reached a terminal state in this run
func (s *RunSummary) Processed() int {
	return s.Done + s.Skipped + s.Errored
}
