// Package completion implements the completion detector (C7): polling
// an external acquisition registry for per-interface validity rows,
// tracking per-quartet validation state, and emitting exactly one
// completion event per quartet once it satisfies an all-expected,
// quiescence-timeout, or newer-quartet-signal rule.
package completion

import (
	"context"
	"time"
)

// RegistryRow is one row of the external acquisition registry.
type RegistryRow struct {
	Master     string
	Obsnum     int
	Subobsnum  int
	Scannum    int
	RoachIndex int
	Valid      bool
	Timestamp  time.Time
	Filename   string
}

// Registry is the acquisition registry's poll surface: every row with
// Timestamp strictly after since.
type Registry interface {
	PollSince(ctx context.Context, since time.Time) ([]RegistryRow, error)
}

// Reason is the closed vocabulary of completion causes carried on a
// CompletionEvent.
type Reason string

const (
	ReasonAllValid   Reason = "all-valid"
	ReasonTimeout    Reason = "timeout"
	ReasonNewQuartet Reason = "new-quartet-detected"
)

// CompletionEvent is the one-per-quartet record emitted once a
// quartet is judged complete.
type CompletionEvent struct {
	Master           string
	Obsnum           int
	Subobsnum        int
	Scannum          int
	ValidCount       int
	ExpectedCount    int
	CompletionReason Reason
	ObsDate          string
	ObsTimestamp     time.Time
}

// QuartetState is the per-quartet validation tracker entry: when the
// first and most recent Valid=1 transitions were observed, and how
// many enabled interfaces are currently valid.
type QuartetState struct {
	FirstValidTime time.Time
	LastValidTime  time.Time
	ValidCount     int
}

// Cursor is the detector's persisted progress marker: the latest
// processed registry timestamp, plus the validation state of every
// quartet that is not yet complete.
type Cursor struct {
	LastCheck     time.Time
	QuartetStates map[string]QuartetState
}

// CursorStore persists and reloads a Cursor across detector restarts.
type CursorStore interface {
	Load() (Cursor, error)
	Save(Cursor) error
}
