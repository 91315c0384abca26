// Package catalog implements the durable relational store (C2):
// schema bootstrap, registry seeding, typed JSON column codec, and the
// concurrent-writer discipline described in §4.2 — a single shared
// write connection for the embedded dialects, retry-on-conflict for
// the columnar dialect, a pooled read-only connection for the
// analytical path.
package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/toltec-astro/tolteca-catalog/internal/catalog/dialect"
	"github.com/toltec-astro/tolteca-catalog/internal/catalogerr"
	"github.com/toltec-astro/tolteca-catalog/internal/logging"
	"github.com/toltec-astro/tolteca-catalog/internal/model"
)

// Store is the catalog's durable relational store. It owns the single
// writer connection for the embedded dialects and exposes a
// read-only-session factory for the analytical path.
type Store struct {
	db   *sqlx.DB
	kind dialect.Kind
	zl   *zap.Logger
}

// Open opens databaseURL via dialect.Open and returns a writable Store.
func Open(databaseURL string) (*Store, error) {
	opened, err := dialect.Open(databaseURL)
	if err != nil {
		return nil, err
	}
	return &Store{db: opened.DB, kind: opened.Kind, zl: logging.Get(logging.ComponentCatalog)}, nil
}

// OpenReadOnly opens databaseURL for the read-only analytical session
// factory the query bridge (C3) uses in multi-process contexts. Any
// write attempted through the returned Store fails.
func OpenReadOnly(databaseURL string) (*Store, error) {
	opened, err := dialect.OpenReadOnly(databaseURL)
	if err != nil {
		return nil, err
	}
	return &Store{db: opened.DB, kind: opened.Kind, zl: logging.Get(logging.ComponentCatalog)}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Kind reports which concrete dialect this Store is backed by.
func (s *Store) Kind() dialect.Kind { return s.kind }

// CreateTables idempotently bootstraps the schema.
func (s *Store) CreateTables(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schemaFor(s.kind))
	if err != nil {
		return fmt.Errorf("create tables: %w", err)
	}
	return nil
}

// PopulateRegistryTables seeds the closed-vocabulary registry tables
// and a default Location, re-entrantly: only missing rows are
// inserted, so repeated calls are safe.
func (s *Store) PopulateRegistryTables(ctx context.Context, defaultLocationLabel, defaultLocationRootURI string) error {
	productTypes := []model.ProductType{
		model.ProductRawObs, model.ProductReducedObs, model.ProductCalGroup,
		model.ProductDriveFit, model.ProductFocusGroup, model.ProductAstigGroup,
		model.ProductNamedGroup,
	}
	for _, pt := range productTypes {
		if _, err := s.db.ExecContext(ctx,
			rebind(s.kind, `INSERT INTO product_types(name) VALUES(?) ON CONFLICT(name) DO NOTHING`), pt); err != nil {
			return fmt.Errorf("seed product_types: %w", err)
		}
	}

	for at := range model.AssocTypeRegistry {
		if _, err := s.db.ExecContext(ctx,
			rebind(s.kind, `INSERT INTO assoc_types(name) VALUES(?) ON CONFLICT(name) DO NOTHING`), at); err != nil {
			return fmt.Errorf("seed assoc_types: %w", err)
		}
	}

	severities := []model.FlagSeverity{model.SeverityInfo, model.SeverityWarn, model.SeverityBlock, model.SeverityCritical}
	for _, sv := range severities {
		if _, err := s.db.ExecContext(ctx,
			rebind(s.kind, `INSERT INTO flag_severities(name) VALUES(?) ON CONFLICT(name) DO NOTHING`), sv); err != nil {
			return fmt.Errorf("seed flag_severities: %w", err)
		}
	}

	if defaultLocationLabel != "" {
		_, err := s.FindOrCreateLocation(ctx, defaultLocationLabel, model.LocationFilesystem, defaultLocationRootURI, 0)
		if err != nil {
			return fmt.Errorf("seed default location: %w", err)
		}
	}

	return nil
}

// rebind converts "?" placeholders to the target dialect's bind style.
func rebind(kind dialect.Kind, query string) string {
	bindType := sqlx.QUESTION
	if kind == dialect.KindServer {
		bindType = sqlx.DOLLAR
	}
	return sqlx.Rebind(bindType, query)
}

// withWriteConflictRetry runs op with the embedded-engine retry policy
// when this Store is backed by the columnar dialect; other dialects
// run op directly.
func (s *Store) withWriteConflictRetry(op func() error) error {
	if s.kind != dialect.KindColumnar {
		return op()
	}
	return withConflictRetry(op)
}

func nowUTC() time.Time { return time.Now().UTC() }

// translateIntegrityError maps a raw driver error at the ingestor
// boundary to catalogerr.InvariantViolation (AlreadyExists-style) or
// catalogerr.MissingPrerequisite (FK violation), per §4.2's failure
// semantics. The server dialect classifies through its SQLSTATE code
// (dialect.ClassifyServerError); the embedded dialects, which return
// driver-specific string-formatted errors instead of a typed code,
// fall back to substring matching. Callers that already know which
// case applies should use catalogerr.New directly instead.
func (s *Store) translateIntegrityError(op string, err error) error {
	if err == nil {
		return nil
	}
	if s.kind == dialect.KindServer {
		switch dialect.ClassifyServerError(err) {
		case dialect.ServerErrorUniqueViolation:
			return catalogerr.New(catalogerr.InvariantViolation, op, err)
		case dialect.ServerErrorForeignKeyViolation:
			return catalogerr.New(catalogerr.MissingPrerequisite, op, err)
		}
	}
	return translateIntegrityError(op, err)
}

func translateIntegrityError(op string, err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	switch {
	case containsAny(msg, "unique", "UNIQUE"):
		return catalogerr.New(catalogerr.InvariantViolation, op, err)
	case containsAny(msg, "foreign key", "FOREIGN KEY", "violates foreign key"):
		return catalogerr.New(catalogerr.MissingPrerequisite, op, err)
	default:
		return err
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if len(sub) > 0 && stringsContains(s, sub) {
			return true
		}
	}
	return false
}

func stringsContains(s, sub string) bool {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return true
		}
	}
	return false
}
