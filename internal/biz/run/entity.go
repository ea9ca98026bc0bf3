package run

import (
	"fmt"
	"time"
)

// Outcome is the record of the most recent run. There is no history: only
// the latest outcome is kept and every write overwrites the previous one.
type Outcome struct {
	RunID     string
	Timestamp time.Time
	Class     Classification
	Detail    string
}

// NewSuccess records a fully completed run. Detail typically summarizes the
// applied work, or carries the analyzer error when the download succeeded
// but the analysis stage did not.
func NewSuccess(runID string, at time.Time, detail string) Outcome {
	return Outcome{RunID: runID, Timestamp: at, Class: ClassificationSuccess, Detail: detail}
}

// NewRedundant records a run declined by the execution guard.
func NewRedundant(runID string, at time.Time, sinceLastSuccess time.Duration) Outcome {
	return Outcome{
		RunID:     runID,
		Timestamp: at,
		Class:     ClassificationCancelledRedundant,
		Detail:    fmt.Sprintf("last success %d minutes ago", int(sinceLastSuccess.Minutes())),
	}
}

// NewDownloadError records a run whose download pipeline failed.
func NewDownloadError(runID string, at time.Time, err error) Outcome {
	return Outcome{RunID: runID, Timestamp: at, Class: ClassificationDownloadError, Detail: err.Error()}
}

// NewTimeout records a run cut short by the execution budget.
func NewTimeout(runID string, at time.Time) Outcome {
	return Outcome{RunID: runID, Timestamp: at, Class: ClassificationTimeout}
}

// DisplayString renders the operator-facing line the recorder persists:
// timestamp, classification and the optional detail.
func (o Outcome) DisplayString() string {
	s := fmt.Sprintf("%s %s", o.Timestamp.Format(time.RFC3339), o.Class)
	if o.Detail != "" {
		s += ": " + o.Detail
	}
	return s
}
