package importer

import (
	"errors"
	"fmt"
	"time"
)

// MaxJobs is the number of documents that may be queued at once
const MaxJobs = 100

// Status is the position of a job in its lifecycle
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusOK         Status = "OK"
	StatusError      Status = "ERROR"
	StatusSkipped    Status = "SKIPPED"
)

// Terminal reports whether a job in this status will never run again
func (s Status) Terminal() bool {
	return s == StatusOK || s == StatusError
}

// ErrRunInProgress is returned when a run or reset overlaps another run
var ErrRunInProgress = errors.New("a run is already in progress")

// Job is one submitted document
type Job struct {
	ID          string    `json:"id"`
	Filename    string    `json:"filename"`
	Path        string    `json:"path"`
	Status      Status    `json:"status"`
	Progress    int       `json:"progress"`
	Error       string    `json:"error,omitempty"`
	RecordCount int       `json:"record_count"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Upload is a document payload offered for submission
type Upload struct {
	Filename string
	Data     []byte
}

// Event describes a status or progress change of a job
type Event struct {
	JobID       string `json:"job_id"`
	Filename    string `json:"filename"`
	Status      Status `json:"status"`
	Progress    int    `json:"progress"`
	Error       string `json:"error,omitempty"`
	RecordCount int    `json:"record_count,omitempty"`
}

// EventReporter receives job events. It is called from several goroutines and must not block.
type EventReporter func(Event)

// LimitError reports uploads refused because the queue is full
type LimitError struct {
	Limit    int
	Rejected int
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("job limit of %d reached: %d file(s) rejected", e.Limit, e.Rejected)
}

// RunSummary counts the outcome of one run
type RunSummary struct {
	Processed int  `json:"processed"`
	OK        int  `json:"ok"`
	Failed    int  `json:"failed"`
	Skipped   int  `json:"skipped"`
	Remaining int  `json:"remaining"`
	Records   int  `json:"records"`
	Cancelled bool `json:"cancelled"`
}
