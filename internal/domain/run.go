package domain

import "time"

// RunStatus is the outcome of a RunOnce call.
type RunStatus string

const (
	RunCompleted RunStatus = "completed"
	RunPartial   RunStatus = "partial"
	RunFailed    RunStatus = "failed"
	RunSkipped   RunStatus = "skipped"
	RunCancelled RunStatus = "cancelled"
)

// Skip reasons reported alongside RunSkipped.
const (
	SkipNotDue   = "not_due"
	SkipInFlight = "in_flight"
	SkipInactive = "inactive"
)

// RunSummary is what a trigger receives back from a run.
type RunSummary struct {
	ConfigID    string        `json:"configId"`
	Status      RunStatus     `json:"status"`
	SkipReason  string        `json:"skipReason,omitempty"`
	StartedAt   time.Time     `json:"startedAt"`
	FinishedAt  time.Time     `json:"finishedAt"`
	Fetched     int           `json:"fetched"`
	Processed   int           `json:"processed"`
	Duplicates  int           `json:"duplicates"`
	Rejected    int           `json:"rejected"`
	Stored      int           `json:"stored"`
	Classified  int           `json:"classified"`
	Fallbacks   int           `json:"fallbacks"`
	Alerts      int           `json:"alerts"`
	Failed      int           `json:"failed"`
	Errors      []SourceError `json:"-"`
	ErrorDigest []string      `json:"errors"`
}

// AddError records a recoverable failure on the summary.
func (s *RunSummary) AddError(err SourceError) {
	s.Errors = append(s.Errors, err)
	s.ErrorDigest = append(s.ErrorDigest, err.Error())
}
