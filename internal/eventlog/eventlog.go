// Package eventlog implements the catalog's append-only EventLog
// stream: one record per material state transition, as named in the
// external-interfaces output contract. Every externally visible
// mutation (ingest_file, ingest_csv_row, create_association,
// register_group, event_log.append itself) calls Append so an
// operator can reconstruct "what happened and when" without re-deriving
// it from the relational rows.
package eventlog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/toltec-astro/tolteca-catalog/internal/logging"
	"github.com/toltec-astro/tolteca-catalog/internal/model"
)

// EventType enumerates the material state transitions the catalog
// emits events for.
type EventType string

const (
	EventQuartetIngested    EventType = "quartet_ingested"
	EventSourceAttached      EventType = "source_attached"
	EventSourceSkipped       EventType = "source_skipped"
	EventTelMerged           EventType = "tel_merged"
	EventCompletionEmitted   EventType = "completion_emitted"
	EventGroupCreated        EventType = "group_created"
	EventGroupUpdated        EventType = "group_updated"
	EventAssocCreated        EventType = "assoc_created"
	EventFlagRaised          EventType = "flag_raised"
	EventIngestionFailed     EventType = "ingestion_failed"
)

// EntityType names what EntityID refers to.
type EntityType string

const (
	EntityDataProduct       EntityType = "data_product"
	EntityDataProductSource EntityType = "data_product_source"
	EntityDataProductAssoc  EntityType = "data_product_assoc"
	EntityQuartet           EntityType = "quartet"
)

// Writer durably appends EventLog rows. The catalog store implements
// this directly against its event_log table; FileSink below is a
// filesystem-backed alternative for standalone/offline use.
type Writer interface {
	Append(ctx context.Context, event model.EventLog) error
}

// Logger wraps a Writer with a structured zap sink so every event is
// both durably recorded and visible in the process log stream.
type Logger struct {
	writer Writer
	zl     *zap.Logger
}

func New(w Writer) *Logger {
	return &Logger{writer: w, zl: logging.Get(logging.ComponentEventLog)}
}

// Emit appends one event, filling OccurredAt if unset, and mirrors it
// to the structured log. Append failures are logged but not returned:
// the event log is an audit trail, not a transactional participant —
// a write that already landed in the catalog should not roll back
// because its audit record could not be appended.
func (l *Logger) Emit(ctx context.Context, eventType EventType, entityType EntityType, entityID int64, payload map[string]any) {
	ev := model.EventLog{
		EventType:  string(eventType),
		EntityType: string(entityType),
		EntityID:   entityID,
		Payload:    payload,
		OccurredAt: time.Now().UTC(),
	}
	if err := l.writer.Append(ctx, ev); err != nil {
		l.zl.Warn("event append failed",
			zap.String("event_type", string(eventType)),
			zap.String("entity_type", string(entityType)),
			zap.Int64("entity_id", entityID),
			zap.Error(err))
		return
	}
	l.zl.Debug("event",
		zap.String("event_type", string(eventType)),
		zap.String("entity_type", string(entityType)),
		zap.Int64("entity_id", entityID))
}

// FileSink is a filesystem-backed Writer: one append-only JSON-lines
// file, used when no catalog connection is available (e.g. a dry-run
// CLI invocation) or as a supplementary audit trail alongside the
// catalog's own events table.
type FileSink struct {
	mu   sync.Mutex
	file *os.File
}

// NewFileSink opens (creating if needed) path for append.
func NewFileSink(path string) (*FileSink, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create eventlog directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open eventlog file: %w", err)
	}
	return &FileSink{file: f}, nil
}

func (s *FileSink) Append(_ context.Context, event model.EventLog) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.file.Write(append(data, '\n'))
	return err
}

func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}
