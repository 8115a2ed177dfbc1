// Package model holds the records persisted and reported by a classification run.
package model

import "time"

// RunStatus represents the current state of a classification run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Run is one classification pass over one input.
type Run struct {
	ID          string     `json:"id"`
	Source      string     `json:"source"`
	Format      string     `json:"format"`
	Status      RunStatus  `json:"status"`
	Stats       *RunStats  `json:"stats,omitempty"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// RunStats counts what a run read and produced.
type RunStats struct {
	Nodes     int `json:"nodes"`
	Ways      int `json:"ways"`
	Relations int `json:"relations"`

	Buildings    int `json:"buildings"`
	Areas        int `json:"areas"`
	Containments int `json:"containments"`
	Duplicates   int `json:"duplicates"`

	// Unresolved counts building footprints with no polygon geometry, which
	// can only qualify through their own tags.
	Unresolved int `json:"unresolved"`

	Industrial         int `json:"industrial"`
	SelfTagged         int `json:"self_tagged"`
	IndustrialArea     int `json:"industrial_area"`
	IndustrialLikeArea int `json:"industrial_like_area"`

	DurationMS int64 `json:"duration_ms"`
}

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status RunStatus `json:"status,omitempty"`
	Limit  int       `json:"limit,omitempty"`
	Offset int       `json:"offset,omitempty"`
}
