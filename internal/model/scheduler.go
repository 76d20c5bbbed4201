package model

import "time"

type PingResult struct {
	Number   int           `json:"number"`
	Email    string        `json:"email,omitempty"`
	OK       bool          `json:"ok"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

type SchedulerState struct {
	LastPing     time.Time    `json:"lastPing"`
	NextPing     time.Time    `json:"nextPing,omitempty"`
	SuccessCount int          `json:"successCount"`
	FailedCount  int          `json:"failedCount"`
	Results      []PingResult `json:"results,omitempty"`
}

// PendingSwitch marks a switch whose live writes may not have reached the registry.
type PendingSwitch struct {
	ID        string    `json:"id"`
	From      *int      `json:"from"`
	To        int       `json:"to"`
	StartedAt time.Time `json:"startedAt"`
}
