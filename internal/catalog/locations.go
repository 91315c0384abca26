package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/toltec-astro/tolteca-catalog/internal/catalogerr"
	"github.com/toltec-astro/tolteca-catalog/internal/model"
)

type locationRow struct {
	PK       int64  `db:"pk"`
	Label    string `db:"label"`
	Type     string `db:"type"`
	RootURI  string `db:"root_uri"`
	Priority int    `db:"priority"`
	Metadata string `db:"metadata"`
}

func (r locationRow) toModel() (model.Location, error) {
	meta := map[string]any{}
	if r.Metadata != "" {
		if err := json.Unmarshal([]byte(r.Metadata), &meta); err != nil {
			return model.Location{}, catalogerr.New(catalogerr.ParseFailure, "location metadata", err)
		}
	}
	return model.Location{
		PK: r.PK, Label: r.Label, Type: model.LocationType(r.Type),
		RootURI: r.RootURI, Priority: r.Priority, Metadata: meta,
	}, nil
}

// FindOrCreateLocation returns the Location for label, creating it with
// the given fields if it does not already exist. A Location is never
// deleted while referenced by a DataProductSource.
func (s *Store) FindOrCreateLocation(ctx context.Context, label string, typ model.LocationType, rootURI string, priority int) (model.Location, error) {
	var row locationRow
	err := s.db.GetContext(ctx, &row,
		rebind(s.kind, `SELECT pk, label, type, root_uri, priority, metadata FROM locations WHERE label = ?`), label)
	if err == nil {
		return row.toModel()
	}
	if err != sql.ErrNoRows {
		return model.Location{}, fmt.Errorf("find location: %w", err)
	}

	err = s.withWriteConflictRetry(func() error {
		_, insErr := s.db.ExecContext(ctx,
			rebind(s.kind, `INSERT INTO locations(label, type, root_uri, priority, metadata) VALUES(?, ?, ?, ?, '{}')`),
			label, typ, rootURI, priority)
		return insErr
	})
	if err != nil {
		return model.Location{}, s.translateIntegrityError("create location", err)
	}

	if err := s.db.GetContext(ctx, &row,
		rebind(s.kind, `SELECT pk, label, type, root_uri, priority, metadata FROM locations WHERE label = ?`), label); err != nil {
		return model.Location{}, fmt.Errorf("reload location: %w", err)
	}
	return row.toModel()
}

// GetLocationByLabel loads a Location by its label, without creating
// one if absent. Ingestors use this (rather than FindOrCreateLocation)
// because a missing Location at ingest time is an operator
// configuration error, not something to paper over.
func (s *Store) GetLocationByLabel(ctx context.Context, label string) (model.Location, error) {
	var row locationRow
	err := s.db.GetContext(ctx, &row,
		rebind(s.kind, `SELECT pk, label, type, root_uri, priority, metadata FROM locations WHERE label = ?`), label)
	if err == sql.ErrNoRows {
		return model.Location{}, catalogerr.New(catalogerr.MissingPrerequisite, "GetLocationByLabel", catalogerr.ErrNotFound)
	}
	if err != nil {
		return model.Location{}, fmt.Errorf("get location by label: %w", err)
	}
	return row.toModel()
}

// GetLocation loads a Location by primary key.
func (s *Store) GetLocation(ctx context.Context, pk int64) (model.Location, error) {
	var row locationRow
	err := s.db.GetContext(ctx, &row,
		rebind(s.kind, `SELECT pk, label, type, root_uri, priority, metadata FROM locations WHERE pk = ?`), pk)
	if err == sql.ErrNoRows {
		return model.Location{}, catalogerr.New(catalogerr.MissingPrerequisite, "GetLocation", catalogerr.ErrNotFound)
	}
	if err != nil {
		return model.Location{}, fmt.Errorf("get location: %w", err)
	}
	return row.toModel()
}

// ListLocations returns every Location ordered by priority value,
// highest first, then by pk.
func (s *Store) ListLocations(ctx context.Context) ([]model.Location, error) {
	var rows []locationRow
	if err := s.db.SelectContext(ctx, &rows,
		`SELECT pk, label, type, root_uri, priority, metadata FROM locations ORDER BY priority DESC, pk ASC`); err != nil {
		return nil, fmt.Errorf("list locations: %w", err)
	}
	out := make([]model.Location, 0, len(rows))
	for _, r := range rows {
		m, err := r.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}
