package catalog

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/toltec-astro/tolteca-catalog/internal/catalogerr"
	"github.com/toltec-astro/tolteca-catalog/internal/model"
)

// CreateFlag attaches a severity-tagged flag to a DataProduct.
func (s *Store) CreateFlag(ctx context.Context, dataProdFK int64, severity model.FlagSeverity, name string, assertion map[string]any) (model.DataProductFlag, error) {
	if assertion == nil {
		assertion = map[string]any{}
	}
	encoded, err := json.Marshal(assertion)
	if err != nil {
		return model.DataProductFlag{}, err
	}
	now := nowUTC()
	var pk int64
	err = s.withWriteConflictRetry(func() error {
		res, execErr := s.db.ExecContext(ctx,
			rebind(s.kind, `INSERT INTO data_product_flags(data_prod_fk, severity, name, assertion, created_at) VALUES(?, ?, ?, ?, ?)`),
			dataProdFK, severity, name, string(encoded), now.Format(timestampLayout))
		if execErr != nil {
			return execErr
		}
		pk, execErr = res.LastInsertId()
		return execErr
	})
	if err != nil {
		return model.DataProductFlag{}, s.translateIntegrityError("CreateFlag", err)
	}
	return model.DataProductFlag{
		PK: pk, DataProdFK: dataProdFK, Severity: severity, Name: name, Assertion: assertion, CreatedAt: now,
	}, nil
}

type flagRow struct {
	PK         int64  `db:"pk"`
	DataProdFK int64  `db:"data_prod_fk"`
	Severity   string `db:"severity"`
	Name       string `db:"name"`
	Assertion  string `db:"assertion"`
	CreatedAt  string `db:"created_at"`
}

// ListFlagsForProduct returns every flag attached to a DataProduct.
func (s *Store) ListFlagsForProduct(ctx context.Context, dataProdFK int64) ([]model.DataProductFlag, error) {
	var rows []flagRow
	if err := s.db.SelectContext(ctx, &rows,
		rebind(s.kind, `SELECT pk, data_prod_fk, severity, name, assertion, created_at FROM data_product_flags
			WHERE data_prod_fk = ? ORDER BY pk ASC`), dataProdFK); err != nil {
		return nil, fmt.Errorf("list flags: %w", err)
	}
	out := make([]model.DataProductFlag, 0, len(rows))
	for _, row := range rows {
		assertion := map[string]any{}
		if row.Assertion != "" {
			if err := json.Unmarshal([]byte(row.Assertion), &assertion); err != nil {
				return nil, catalogerr.New(catalogerr.ParseFailure, "flag assertion", err)
			}
		}
		createdAt, err := parseTimestamp(row.CreatedAt)
		if err != nil {
			return nil, err
		}
		out = append(out, model.DataProductFlag{
			PK: row.PK, DataProdFK: row.DataProdFK, Severity: model.FlagSeverity(row.Severity),
			Name: row.Name, Assertion: assertion, CreatedAt: createdAt,
		})
	}
	return out, nil
}
