package catalog

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/toltec-astro/tolteca-catalog/internal/catalogerr"
	"github.com/toltec-astro/tolteca-catalog/internal/model"
)

type assocRow struct {
	PK          int64  `db:"pk"`
	SrcFK       int64  `db:"src_fk"`
	DstFK       int64  `db:"dst_fk"`
	AssocType   string `db:"assoc_type_fk"`
	ProcessCtx  string `db:"process_ctx"`
	CreatedAt   string `db:"created_at"`
}

func (r assocRow) toModel() (model.DataProductAssoc, error) {
	ctx := map[string]any{}
	if r.ProcessCtx != "" {
		if err := json.Unmarshal([]byte(r.ProcessCtx), &ctx); err != nil {
			return model.DataProductAssoc{}, catalogerr.New(catalogerr.ParseFailure, "assoc process_ctx", err)
		}
	}
	createdAt, err := parseTimestamp(r.CreatedAt)
	if err != nil {
		return model.DataProductAssoc{}, err
	}
	return model.DataProductAssoc{
		PK: r.PK, SrcFK: r.SrcFK, DstFK: r.DstFK, AssocType: model.AssocType(r.AssocType),
		ProcessCtx: ctx, CreatedAt: createdAt,
	}, nil
}

// CreateAssoc creates a directed, typed edge between two DataProducts,
// enforcing the endpoint product-type rule from AssocTypeRegistry
// (data-model invariant 3) before touching the database. A second call
// for the same (src, dst, assoc_type) triple fails on the schema's
// UNIQUE constraint and returns catalogerr.InvariantViolation wrapping
// the driver's error (see translateIntegrityError).
func (s *Store) CreateAssoc(ctx context.Context, srcPK, dstPK int64, assocType model.AssocType, processCtx map[string]any) (model.DataProductAssoc, error) {
	rule, ok := model.AssocTypeRegistry[assocType]
	if !ok {
		return model.DataProductAssoc{}, catalogerr.New(catalogerr.InvariantViolation, "CreateAssoc",
			fmt.Errorf("unknown assoc type %q", assocType))
	}

	src, err := s.GetProduct(ctx, srcPK)
	if err != nil {
		return model.DataProductAssoc{}, err
	}
	dst, err := s.GetProduct(ctx, dstPK)
	if err != nil {
		return model.DataProductAssoc{}, err
	}
	if src.Type != rule.AllowedSrc || dst.Type != rule.AllowedDst {
		return model.DataProductAssoc{}, catalogerr.New(catalogerr.InvariantViolation, "CreateAssoc",
			fmt.Errorf("assoc type %q requires src=%s dst=%s, got src=%s dst=%s",
				assocType, rule.AllowedSrc, rule.AllowedDst, src.Type, dst.Type))
	}

	if processCtx == nil {
		processCtx = map[string]any{}
	}
	encoded, err := json.Marshal(processCtx)
	if err != nil {
		return model.DataProductAssoc{}, err
	}

	now := nowUTC()
	var pk int64
	err = s.withWriteConflictRetry(func() error {
		res, execErr := s.db.ExecContext(ctx,
			rebind(s.kind, `INSERT INTO data_product_assocs(src_fk, dst_fk, assoc_type_fk, process_ctx, created_at) VALUES(?, ?, ?, ?, ?)`),
			srcPK, dstPK, assocType, string(encoded), now.Format(timestampLayout))
		if execErr != nil {
			return execErr
		}
		pk, execErr = res.LastInsertId()
		return execErr
	})
	if err != nil {
		return model.DataProductAssoc{}, s.translateIntegrityError("CreateAssoc", err)
	}
	return model.DataProductAssoc{
		PK: pk, SrcFK: srcPK, DstFK: dstPK, AssocType: assocType, ProcessCtx: processCtx, CreatedAt: now,
	}, nil
}

// ListAssocsBySrc returns every association of assocType rooted at
// srcPK; the DB-backed generator state (C11) uses it to count each
// group's members.
func (s *Store) ListAssocsBySrc(ctx context.Context, srcPK int64, assocType model.AssocType) ([]model.DataProductAssoc, error) {
	var rows []assocRow
	if err := s.db.SelectContext(ctx, &rows,
		rebind(s.kind, `SELECT pk, src_fk, dst_fk, assoc_type_fk, process_ctx, created_at FROM data_product_assocs
			WHERE src_fk = ? AND assoc_type_fk = ? ORDER BY pk ASC`), srcPK, assocType); err != nil {
		return nil, fmt.Errorf("list assocs by src: %w", err)
	}
	return decodeAssocRows(rows)
}

// ListAssocsByDst returns every association pointing at dstPK.
func (s *Store) ListAssocsByDst(ctx context.Context, dstPK int64, assocType model.AssocType) ([]model.DataProductAssoc, error) {
	var rows []assocRow
	if err := s.db.SelectContext(ctx, &rows,
		rebind(s.kind, `SELECT pk, src_fk, dst_fk, assoc_type_fk, process_ctx, created_at FROM data_product_assocs
			WHERE dst_fk = ? AND assoc_type_fk = ? ORDER BY pk ASC`), dstPK, assocType); err != nil {
		return nil, fmt.Errorf("list assocs by dst: %w", err)
	}
	return decodeAssocRows(rows)
}

// ListAssocsByType returns every association of one type, used by the
// association generator to reconstruct the full candidate-key set it
// has already emitted.
func (s *Store) ListAssocsByType(ctx context.Context, assocType model.AssocType) ([]model.DataProductAssoc, error) {
	var rows []assocRow
	if err := s.db.SelectContext(ctx, &rows,
		rebind(s.kind, `SELECT pk, src_fk, dst_fk, assoc_type_fk, process_ctx, created_at FROM data_product_assocs
			WHERE assoc_type_fk = ? ORDER BY pk ASC`), assocType); err != nil {
		return nil, fmt.Errorf("list assocs by type: %w", err)
	}
	return decodeAssocRows(rows)
}

func decodeAssocRows(rows []assocRow) ([]model.DataProductAssoc, error) {
	out := make([]model.DataProductAssoc, 0, len(rows))
	for _, row := range rows {
		a, err := row.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}
