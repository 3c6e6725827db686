// Package repository defines the audit records of passage service calls and their storage.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// Run statuses.
const (
	RunStatusSucceeded = "succeeded"
	RunStatusFailed    = "failed"
)

// Run records one call to the passage service.
type Run struct {
	ID uuid.UUID
	// Method is the service method, e.g. "Filter" or "Rerank".
	Method string
	// Subject is the authenticated caller, empty when authentication is disabled.
	Subject string
	Status  string

	QueryCount   int
	InputChunks  int
	OutputChunks int

	// Options holds the effective method options as JSON.
	Options json.RawMessage

	CacheHit     bool
	Duration     time.Duration
	ErrorMessage string
	CreatedAt    time.Time
}

// RunRepository defines operations for run persistence
type RunRepository interface {
	Create(ctx context.Context, run *Run) error
	GetByID(ctx context.Context, id uuid.UUID) (*Run, error)
	List(ctx context.Context, method string, limit, offset int) ([]*Run, int, error)
}
