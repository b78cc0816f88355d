// Package storage persists conversion job history.
package storage

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus represents conversion job status.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Terminal reports whether no further transitions are possible.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusSucceeded, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// Job is one asynchronous conversion.
type Job struct {
	ID          uuid.UUID  `json:"id" db:"id"`
	SourceName  string     `json:"source_name" db:"source_name"`
	Fingerprint string     `json:"fingerprint" db:"fingerprint"`
	DPI         int        `json:"dpi" db:"dpi"`
	Language    string     `json:"language" db:"language"`
	SegMode     int        `json:"psm" db:"psm"`
	Status      JobStatus  `json:"status" db:"status"`
	Stage       string     `json:"stage,omitempty" db:"stage"`
	PagesDone   int        `json:"pages_done" db:"pages_done"`
	PagesTotal  int        `json:"pages_total" db:"pages_total"`
	OutputName  string     `json:"output_name,omitempty" db:"output_name"`
	ErrorKind   string     `json:"error_kind,omitempty" db:"error_kind"`
	Error       string     `json:"error,omitempty" db:"error"`
	CacheHit    bool       `json:"cache_hit" db:"cache_hit"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty" db:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" db:"completed_at"`
}
