package catalog

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/toltec-astro/tolteca-catalog/internal/catalogerr"
	"github.com/toltec-astro/tolteca-catalog/internal/model"
)

type sourceRow struct {
	PK           int64          `db:"pk"`
	SourceURI    string         `db:"source_uri"`
	LocationFK   int64          `db:"location_fk"`
	DataProdFK   int64          `db:"data_prod_fk"`
	Role         string         `db:"role"`
	Availability string         `db:"availability"`
	SizeBytes    sql.NullInt64  `db:"size_bytes"`
	Checksum     string         `db:"checksum"`
	Metadata     string         `db:"metadata"`
}

func (r sourceRow) toModel() (model.DataProductSource, error) {
	meta, err := model.DecodeSourceMeta([]byte(r.Metadata))
	if err != nil {
		return model.DataProductSource{}, err
	}
	var size *int64
	if r.SizeBytes.Valid {
		size = &r.SizeBytes.Int64
	}
	return model.DataProductSource{
		PK: r.PK, SourceURI: r.SourceURI, LocationFK: r.LocationFK, DataProdFK: r.DataProdFK,
		Role: model.SourceRole(r.Role), Availability: model.Availability(r.Availability),
		SizeBytes: size, Checksum: r.Checksum, Metadata: meta,
	}, nil
}

// CreateSource attaches a physical source file to a DataProduct.
// Enforces the (location_fk, source_uri) uniqueness invariant: a
// second call for the same pair fails on the UNIQUE constraint and
// returns catalogerr.InvariantViolation wrapping the driver's error.
func (s *Store) CreateSource(ctx context.Context, src model.DataProductSource) (model.DataProductSource, error) {
	encoded, err := model.EncodeSourceMeta(src.Metadata)
	if err != nil {
		return model.DataProductSource{}, err
	}
	var pk int64
	err = s.withWriteConflictRetry(func() error {
		res, execErr := s.db.ExecContext(ctx,
			rebind(s.kind, `INSERT INTO data_product_sources(source_uri, location_fk, data_prod_fk, role, availability, size_bytes, checksum, metadata)
				VALUES(?, ?, ?, ?, ?, ?, ?, ?)`),
			src.SourceURI, src.LocationFK, src.DataProdFK, src.Role, src.Availability, src.SizeBytes, src.Checksum, string(encoded))
		if execErr != nil {
			return execErr
		}
		pk, execErr = res.LastInsertId()
		return execErr
	})
	if err != nil {
		return model.DataProductSource{}, s.translateIntegrityError("CreateSource", err)
	}
	src.PK = pk
	return src, nil
}

// FindSourceByURI looks up a source by its (location, uri) pair, the
// sole index the ingestors use to decide whether a file has already
// been registered under skip_existing.
func (s *Store) FindSourceByURI(ctx context.Context, locationFK int64, sourceURI string) (model.DataProductSource, error) {
	var row sourceRow
	err := s.db.GetContext(ctx, &row,
		rebind(s.kind, `SELECT pk, source_uri, location_fk, data_prod_fk, role, availability, size_bytes, checksum, metadata
			FROM data_product_sources WHERE location_fk = ? AND source_uri = ?`), locationFK, sourceURI)
	if err == sql.ErrNoRows {
		return model.DataProductSource{}, catalogerr.New(catalogerr.MissingPrerequisite, "FindSourceByURI", catalogerr.ErrNotFound)
	}
	if err != nil {
		return model.DataProductSource{}, fmt.Errorf("find source: %w", err)
	}
	return row.toModel()
}

// ListSourcesForProduct returns every source row attached to a
// DataProduct, the set the query bridge (C3) resolves to physical
// paths.
func (s *Store) ListSourcesForProduct(ctx context.Context, dataProdFK int64) ([]model.DataProductSource, error) {
	var rows []sourceRow
	if err := s.db.SelectContext(ctx, &rows,
		rebind(s.kind, `SELECT pk, source_uri, location_fk, data_prod_fk, role, availability, size_bytes, checksum, metadata
			FROM data_product_sources WHERE data_prod_fk = ? ORDER BY pk ASC`), dataProdFK); err != nil {
		return nil, fmt.Errorf("list sources for product: %w", err)
	}
	out := make([]model.DataProductSource, 0, len(rows))
	for _, row := range rows {
		src, err := row.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, src)
	}
	return out, nil
}

// UpdateSourceAvailability flips a source's availability flag, used by
// the completion detector and periodic re-scans to reflect files that
// have disappeared or reappeared on disk.
func (s *Store) UpdateSourceAvailability(ctx context.Context, pk int64, availability model.Availability) error {
	return s.withWriteConflictRetry(func() error {
		_, err := s.db.ExecContext(ctx,
			rebind(s.kind, `UPDATE data_product_sources SET availability = ? WHERE pk = ?`), availability, pk)
		return err
	})
}
