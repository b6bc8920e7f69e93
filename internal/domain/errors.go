package domain

import (
	"errors"
	"fmt"
)

var (
	ErrSourceFetch           = errors.New("source fetch failed")
	ErrParse                 = errors.New("payload parse failed")
	ErrClassifierRateLimited = errors.New("classifier rate limited")
	ErrClassifier            = errors.New("classifier failed")
	ErrPersistence           = errors.New("persistence failed")
	ErrConfigNotFound        = errors.New("monitoring config not found")
	ErrAlertNotFound         = errors.New("alert not found")
	ErrInvalidAnalysis       = errors.New("invalid analysis")
)

// ErrorKind labels a SourceError for run summaries.
type ErrorKind string

const (
	KindFetch       ErrorKind = "fetch"
	KindParse       ErrorKind = "parse"
	KindPersistence ErrorKind = "persistence"
)

// SourceError is a recoverable per-source failure recorded on a run.
type SourceError struct {
	SourceID string
	Kind     ErrorKind
	Err      error
}

// NewSourceError derives the kind from the wrapped sentinel.
func NewSourceError(sourceID string, err error) SourceError {
	kind := KindFetch
	switch {
	case errors.Is(err, ErrParse):
		kind = KindParse
	case errors.Is(err, ErrPersistence):
		kind = KindPersistence
	}
	return SourceError{SourceID: sourceID, Kind: kind, Err: err}
}

func (e SourceError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.SourceID, e.Kind, e.Err)
}

func (e SourceError) Unwrap() error {
	return e.Err
}
