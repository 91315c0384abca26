package bridge

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/apache/arrow/go/v16/arrow"
	"github.com/apache/arrow/go/v16/arrow/array"
	"github.com/apache/arrow/go/v16/arrow/memory"
	"github.com/apache/arrow/go/v16/parquet/file"
	"github.com/apache/arrow/go/v16/parquet/pqarrow"
	"go.uber.org/zap"

	"github.com/toltec-astro/tolteca-catalog/internal/catalogerr"
	"github.com/toltec-astro/tolteca-catalog/internal/logging"
	"github.com/toltec-astro/tolteca-catalog/internal/model"
)

// Store is the subset of catalog.Store the bridge needs: read-only
// location/source/product lookups. Kept as an interface so the bridge
// can be exercised against a fake in tests without an embedded engine.
type Store interface {
	GetProduct(ctx context.Context, pk int64) (model.DataProduct, error)
	ListSourcesForProduct(ctx context.Context, dataProdFK int64) ([]model.DataProductSource, error)
	GetLocation(ctx context.Context, pk int64) (model.Location, error)
}

// Bridge resolves DataProduct identities to physical Parquet paths and
// reads them with Arrow, a zero-copy-by-dataset (not zero-copy-by-row,
// since no SQL-over-Parquet engine is wired; see DESIGN.md) query path
// over externally-stored columnar data.
type Bridge struct {
	store     Store
	allocator memory.Allocator
	zl        *zap.Logger
}

// New builds a Bridge over the given Store using the default Arrow
// allocator.
func New(store Store) *Bridge {
	return &Bridge{store: store, allocator: memory.DefaultAllocator, zl: logging.Get(logging.ComponentBridge)}
}

// ResolveSource returns the resolved physical path of the named role's
// source for a DataProduct (defaulting to PRIMARY when role is empty).
func (b *Bridge) ResolveSource(ctx context.Context, dataProdFK int64, role model.SourceRole) (string, error) {
	if role == "" {
		role = model.RolePrimary
	}
	sources, err := b.store.ListSourcesForProduct(ctx, dataProdFK)
	if err != nil {
		return "", err
	}
	for _, src := range sources {
		if src.Role != role {
			continue
		}
		loc, err := b.store.GetLocation(ctx, src.LocationFK)
		if err != nil {
			return "", err
		}
		return ResolveSourcePath(loc, src), nil
	}
	return "", catalogerr.New(catalogerr.MissingPrerequisite, "ResolveSource",
		fmt.Errorf("no %s source for data product %d", role, dataProdFK))
}

// QueryProductTable resolves a DataProduct's source and reads the full
// Parquet table it points to. columns, if non-empty, projects the
// result to just the named fields.
func (b *Bridge) QueryProductTable(ctx context.Context, dataProdFK int64, role model.SourceRole, columns []string) (arrow.Table, error) {
	path, err := b.ResolveSource(ctx, dataProdFK, role)
	if err != nil {
		return nil, err
	}
	return b.readParquetTable(ctx, path, columns)
}

// QueryGlobTables reads every Parquet file matching a local glob
// pattern, mirroring join_metadata_with_data's ad hoc multi-file
// idiom without a SQL engine backing it: each matching file becomes
// one Arrow table, left for the caller to concatenate or iterate.
func (b *Bridge) QueryGlobTables(pattern string, columns []string) ([]arrow.Table, error) {
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("bridge: glob %q: %w", pattern, err)
	}
	sort.Strings(matches)
	if len(matches) == 0 {
		b.zl.Warn("glob matched no files", zap.String("pattern", pattern))
	}
	out := make([]arrow.Table, 0, len(matches))
	for _, m := range matches {
		tbl, err := b.readParquetTable(context.Background(), m, columns)
		if err != nil {
			return nil, fmt.Errorf("bridge: read %q: %w", m, err)
		}
		out = append(out, tbl)
	}
	return out, nil
}

func (b *Bridge) readParquetTable(ctx context.Context, resolvedPath string, columns []string) (arrow.Table, error) {
	if !IsLocalPath(resolvedPath) {
		return nil, errRemoteSourceUnsupported(resolvedPath)
	}

	rdr, err := file.OpenParquetFile(resolvedPath, false)
	if err != nil {
		return nil, catalogerr.New(catalogerr.MissingPrerequisite, "readParquetTable", err)
	}
	defer rdr.Close()

	fileReader, err := pqarrow.NewFileReader(rdr, pqarrow.ArrowReadProperties{}, b.allocator)
	if err != nil {
		return nil, fmt.Errorf("bridge: build arrow reader for %q: %w", resolvedPath, err)
	}

	tbl, err := fileReader.ReadTable(ctx)
	if err != nil {
		return nil, fmt.Errorf("bridge: read table from %q: %w", resolvedPath, err)
	}
	if len(columns) == 0 {
		return tbl, nil
	}
	return projectColumns(tbl, columns)
}

// projectColumns builds a new Table containing only the named fields,
// in the order requested. Unknown names are a hard error.
func projectColumns(tbl arrow.Table, columns []string) (arrow.Table, error) {
	schema := tbl.Schema()
	fields := make([]arrow.Field, 0, len(columns))
	cols := make([]arrow.Column, 0, len(columns))
	for _, name := range columns {
		idx := schema.FieldIndices(name)
		if len(idx) == 0 {
			return nil, catalogerr.New(catalogerr.ParseFailure, "projectColumns",
				fmt.Errorf("column %q not present in table", name))
		}
		col := tbl.Column(idx[0])
		fields = append(fields, col.Field())
		cols = append(cols, *col)
	}
	projected := arrow.NewSchema(fields, nil)
	return array.NewTable(projected, cols, tbl.NumRows()), nil
}
