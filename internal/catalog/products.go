package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/toltec-astro/tolteca-catalog/internal/catalogerr"
	"github.com/toltec-astro/tolteca-catalog/internal/identity"
	"github.com/toltec-astro/tolteca-catalog/internal/model"
)

type dataProductRow struct {
	PK        int64  `db:"pk"`
	Type      string `db:"type_fk"`
	Metadata  string `db:"metadata"`
	CreatedAt string `db:"created_at"`
	UpdatedAt string `db:"updated_at"`
}

func (r dataProductRow) toModel() (model.DataProduct, error) {
	meta, err := model.DecodeProductMeta([]byte(r.Metadata))
	if err != nil {
		return model.DataProduct{}, err
	}
	createdAt, err := parseTimestamp(r.CreatedAt)
	if err != nil {
		return model.DataProduct{}, err
	}
	updatedAt, err := parseTimestamp(r.UpdatedAt)
	if err != nil {
		return model.DataProduct{}, err
	}
	return model.DataProduct{
		PK: r.PK, Type: model.ProductType(r.Type), Metadata: meta,
		CreatedAt: createdAt, UpdatedAt: updatedAt,
	}, nil
}

// FindRawObsByQuartet looks up a dp_raw_obs product by its identifying
// quartet, returning catalogerr(NotFound-style sentinel) when absent.
// This is the sole read side of the quartet-uniqueness invariant; the
// write side lives in CreateRawObs.
func (s *Store) FindRawObsByQuartet(ctx context.Context, master string, obsnum, subobsnum, scannum int) (model.DataProduct, error) {
	uid := identity.RawObsUID(master, obsnum, subobsnum, scannum)
	return s.findRawObsByUID(ctx, uid)
}

func (s *Store) findRawObsByUID(ctx context.Context, uid string) (model.DataProduct, error) {
	var rows []dataProductRow
	if err := s.db.SelectContext(ctx, &rows,
		rebind(s.kind, `SELECT pk, type_fk, metadata, created_at, updated_at FROM data_products WHERE type_fk = ?`),
		model.ProductRawObs); err != nil {
		return model.DataProduct{}, fmt.Errorf("find raw obs: %w", err)
	}
	for _, row := range rows {
		dp, err := row.toModel()
		if err != nil {
			continue
		}
		if meta, ok := dp.Metadata.(model.RawObsMeta); ok && identity.RawObsUID(meta.Master, meta.Obsnum, meta.Subobsnum, meta.Scannum) == uid {
			return dp, nil
		}
	}
	return model.DataProduct{}, catalogerr.New(catalogerr.MissingPrerequisite, "findRawObsByUID", catalogerr.ErrNotFound)
}

// CreateRawObs creates a dp_raw_obs product for the given quartet.
// Enforces the quartet-uniqueness invariant: a second call with the
// same quartet returns catalogerr.InvariantViolation wrapping
// catalogerr.ErrAlreadyExists, letting skip_existing callers use
// errors.Is against the sentinel.
func (s *Store) CreateRawObs(ctx context.Context, meta model.RawObsMeta) (model.DataProduct, error) {
	if _, err := s.findRawObsByUID(ctx, identity.RawObsUID(meta.Master, meta.Obsnum, meta.Subobsnum, meta.Scannum)); err == nil {
		return model.DataProduct{}, catalogerr.New(catalogerr.InvariantViolation, "CreateRawObs", catalogerr.ErrAlreadyExists)
	}
	return s.insertProduct(ctx, model.ProductRawObs, meta)
}

// CreateReducedObs creates a dp_reduced_obs product.
func (s *Store) CreateReducedObs(ctx context.Context, meta model.ReducedObsMeta) (model.DataProduct, error) {
	return s.insertProduct(ctx, model.ProductReducedObs, meta)
}

// CreateGroup creates a group product of the given type (cal, drivefit,
// focus, astig, or named) carrying the group's member roster.
func (s *Store) CreateGroup(ctx context.Context, typ model.ProductType, meta model.GroupMeta) (model.DataProduct, error) {
	return s.insertProduct(ctx, typ, meta)
}

// UpdateGroupMembers rewrites a group product's member roster and item
// count in place, used by the association generator (C10) when an open
// group grows.
func (s *Store) UpdateGroupMembers(ctx context.Context, pk int64, memberPKs []int64) error {
	dp, err := s.GetProduct(ctx, pk)
	if err != nil {
		return err
	}
	group, ok := dp.Metadata.(model.GroupMeta)
	if !ok {
		return catalogerr.New(catalogerr.InvariantViolation, "UpdateGroupMembers",
			fmt.Errorf("product %d is not a group", pk))
	}
	group.MemberPKs = memberPKs
	group.NItems = len(memberPKs)
	encoded, err := model.EncodeProductMeta(group)
	if err != nil {
		return err
	}
	return s.withWriteConflictRetry(func() error {
		_, execErr := s.db.ExecContext(ctx,
			rebind(s.kind, `UPDATE data_products SET metadata = ?, updated_at = ? WHERE pk = ?`),
			string(encoded), nowUTC().Format(timestampLayout), pk)
		return execErr
	})
}

// UpdateProductMetadata overwrites a DataProduct's metadata column in
// place, used by the tel-CSV ingestor (C6) to merge denormalized
// telescope fields into an existing raw-obs product.
func (s *Store) UpdateProductMetadata(ctx context.Context, pk int64, meta model.ProductMeta) error {
	encoded, err := model.EncodeProductMeta(meta)
	if err != nil {
		return err
	}
	err = s.withWriteConflictRetry(func() error {
		_, execErr := s.db.ExecContext(ctx,
			rebind(s.kind, `UPDATE data_products SET metadata = ?, updated_at = ? WHERE pk = ?`),
			string(encoded), nowUTC().Format(timestampLayout), pk)
		return execErr
	})
	if err != nil {
		return s.translateIntegrityError("UpdateProductMetadata", err)
	}
	return nil
}

func (s *Store) insertProduct(ctx context.Context, typ model.ProductType, meta model.ProductMeta) (model.DataProduct, error) {
	encoded, err := model.EncodeProductMeta(meta)
	if err != nil {
		return model.DataProduct{}, err
	}
	now := nowUTC()
	var pk int64
	err = s.withWriteConflictRetry(func() error {
		res, execErr := s.db.ExecContext(ctx,
			rebind(s.kind, `INSERT INTO data_products(type_fk, metadata, created_at, updated_at) VALUES(?, ?, ?, ?)`),
			typ, string(encoded), now.Format(timestampLayout), now.Format(timestampLayout))
		if execErr != nil {
			return execErr
		}
		pk, execErr = res.LastInsertId()
		return execErr
	})
	if err != nil {
		return model.DataProduct{}, s.translateIntegrityError("insertProduct", err)
	}
	return model.DataProduct{PK: pk, Type: typ, Metadata: meta, CreatedAt: now, UpdatedAt: now}, nil
}

// GetProduct loads a DataProduct by primary key.
func (s *Store) GetProduct(ctx context.Context, pk int64) (model.DataProduct, error) {
	var row dataProductRow
	err := s.db.GetContext(ctx, &row,
		rebind(s.kind, `SELECT pk, type_fk, metadata, created_at, updated_at FROM data_products WHERE pk = ?`), pk)
	if err == sql.ErrNoRows {
		return model.DataProduct{}, catalogerr.New(catalogerr.MissingPrerequisite, "GetProduct", catalogerr.ErrNotFound)
	}
	if err != nil {
		return model.DataProduct{}, fmt.Errorf("get product: %w", err)
	}
	return row.toModel()
}

// ListProductsByType returns every DataProduct of the given type,
// ordered by primary key (insertion order).
func (s *Store) ListProductsByType(ctx context.Context, typ model.ProductType) ([]model.DataProduct, error) {
	var rows []dataProductRow
	if err := s.db.SelectContext(ctx, &rows,
		rebind(s.kind, `SELECT pk, type_fk, metadata, created_at, updated_at FROM data_products WHERE type_fk = ? ORDER BY pk ASC`),
		typ); err != nil {
		return nil, fmt.Errorf("list products by type: %w", err)
	}
	out := make([]model.DataProduct, 0, len(rows))
	for _, row := range rows {
		dp, err := row.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, dp)
	}
	return out, nil
}

const timestampLayout = "2006-01-02T15:04:05.000000Z"

func parseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(timestampLayout, s)
	if err != nil {
		return time.Time{}, catalogerr.New(catalogerr.ParseFailure, "parseTimestamp", err)
	}
	return t, nil
}
