package catalog

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/toltec-astro/tolteca-catalog/internal/catalogerr"
	"github.com/toltec-astro/tolteca-catalog/internal/model"
)

// Append implements eventlog.Writer, persisting one EventLog row to
// the same database as the rest of the catalog so event history
// survives alongside it instead of only in a sidecar file sink.
func (s *Store) Append(ctx context.Context, event model.EventLog) error {
	if event.Payload == nil {
		event.Payload = map[string]any{}
	}
	encoded, err := json.Marshal(event.Payload)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		rebind(s.kind, `INSERT INTO event_log(event_type, entity_type, entity_id, payload, occurred_at) VALUES(?, ?, ?, ?, ?)`),
		event.EventType, event.EntityType, event.EntityID, string(encoded), event.OccurredAt.Format(timestampLayout))
	if err != nil {
		return fmt.Errorf("append event log: %w", err)
	}
	return nil
}

type eventLogRow struct {
	PK         int64  `db:"pk"`
	EventType  string `db:"event_type"`
	EntityType string `db:"entity_type"`
	EntityID   int64  `db:"entity_id"`
	Payload    string `db:"payload"`
	OccurredAt string `db:"occurred_at"`
}

// ListEventsForEntity returns every event recorded against one entity,
// ordered chronologically.
func (s *Store) ListEventsForEntity(ctx context.Context, entityType string, entityID int64) ([]model.EventLog, error) {
	var rows []eventLogRow
	if err := s.db.SelectContext(ctx, &rows,
		rebind(s.kind, `SELECT pk, event_type, entity_type, entity_id, payload, occurred_at FROM event_log
			WHERE entity_type = ? AND entity_id = ? ORDER BY pk ASC`), entityType, entityID); err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	out := make([]model.EventLog, 0, len(rows))
	for _, row := range rows {
		payload := map[string]any{}
		if row.Payload != "" {
			if err := json.Unmarshal([]byte(row.Payload), &payload); err != nil {
				return nil, catalogerr.New(catalogerr.ParseFailure, "event payload", err)
			}
		}
		occurredAt, err := parseTimestamp(row.OccurredAt)
		if err != nil {
			return nil, err
		}
		out = append(out, model.EventLog{
			PK: row.PK, EventType: row.EventType, EntityType: row.EntityType, EntityID: row.EntityID,
			Payload: payload, OccurredAt: occurredAt,
		})
	}
	return out, nil
}
