package telcsv

import (
	"context"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/toltec-astro/tolteca-catalog/internal/catalogerr"
	"github.com/toltec-astro/tolteca-catalog/internal/eventlog"
	"github.com/toltec-astro/tolteca-catalog/internal/logging"
	"github.com/toltec-astro/tolteca-catalog/internal/model"
)

// master is implicit for every tel-CSV row: the telescope control
// system is always "tcs".
const master = "tcs"

// Store is the subset of catalog.Store the tel-CSV ingestor needs.
type Store interface {
	GetLocationByLabel(ctx context.Context, label string) (model.Location, error)
	FindRawObsByQuartet(ctx context.Context, master string, obsnum, subobsnum, scannum int) (model.DataProduct, error)
	CreateRawObs(ctx context.Context, meta model.RawObsMeta) (model.DataProduct, error)
	UpdateProductMetadata(ctx context.Context, pk int64, meta model.ProductMeta) error
	FindSourceByURI(ctx context.Context, locationFK int64, sourceURI string) (model.DataProductSource, error)
	CreateSource(ctx context.Context, src model.DataProductSource) (model.DataProductSource, error)
}

// Options controls Ingestor.IngestCSV.
type Options struct {
	SkipExisting    bool
	CreateDataProds bool
	CommitBatchSize int
}

// Ingestor merges telescope-metadata CSV rows into the catalog.
type Ingestor struct {
	store    Store
	events   *eventlog.Logger
	location model.Location
	zl       *zap.Logger
}

// New resolves locationLabel the same way the quartet ingestor does —
// a missing Location is a hard configuration error.
func New(ctx context.Context, store Store, events *eventlog.Logger, locationLabel string) (*Ingestor, error) {
	loc, err := store.GetLocationByLabel(ctx, locationLabel)
	if err != nil {
		return nil, fmt.Errorf("telcsv: resolve location %q: %w", locationLabel, err)
	}
	return &Ingestor{store: store, events: events, location: loc, zl: logging.Get(logging.ComponentTelCSV)}, nil
}

// Stats accumulates IngestCSV's outcome counts.
type Stats struct {
	RowsScanned      int
	RowsIngested     int
	RowsSkipped      int
	RowsFailed       int
	DataProdsCreated int
	DataProdsUpdated int
	SourcesCreated   int
}

func (s Stats) String() string {
	return fmt.Sprintf("rows_scanned=%d rows_ingested=%d rows_skipped=%d rows_failed=%d data_prods_created=%d data_prods_updated=%d sources_created=%d",
		s.RowsScanned, s.RowsIngested, s.RowsSkipped, s.RowsFailed, s.DataProdsCreated, s.DataProdsUpdated, s.SourcesCreated)
}

// IngestCSV reads and merges every row of a telescope-metadata CSV
// stream. A per-row failure is caught, counted, and logged; it does
// not abort the remaining rows.
func (ig *Ingestor) IngestCSV(ctx context.Context, r io.Reader, opts Options) (Stats, error) {
	batchSize := opts.CommitBatchSize
	if batchSize <= 0 {
		batchSize = 100
	}

	parsed, err := ReadAll(r)
	if err != nil {
		return Stats{}, err
	}

	var stats Stats
	for _, pr := range parsed {
		stats.RowsScanned++
		if pr.Err != nil {
			stats.RowsFailed++
			ig.zl.Warn("tel csv row parse failed", zap.Error(pr.Err))
			continue
		}

		ingested, err := ig.ingestRow(ctx, pr.Row, opts.SkipExisting, opts.CreateDataProds, &stats)
		if err != nil {
			stats.RowsFailed++
			ig.zl.Warn("tel csv row ingest failed", zap.Int("obsnum", pr.Row.Obsnum), zap.Error(err))
			continue
		}
		if ingested {
			stats.RowsIngested++
		} else {
			stats.RowsSkipped++
		}

		if stats.SourcesCreated > 0 && stats.SourcesCreated%batchSize == 0 {
			ig.zl.Info("tel csv ingest progress", zap.Int("sources_created", stats.SourcesCreated))
		}
	}
	return stats, nil
}

func (ig *Ingestor) ingestRow(ctx context.Context, row Row, skipExisting, createDataProds bool, stats *Stats) (bool, error) {
	product, err := ig.store.FindRawObsByQuartet(ctx, master, row.Obsnum, row.Subobsnum, row.Scannum)
	switch {
	case err == nil:
		meta := product.Metadata.(model.RawObsMeta)
		meta.ObsGoal = row.ObsGoal
		tel := row.Tel
		meta.Tel = &tel
		meta.DataKind = meta.DataKind | model.DataKindLmtTel
		if err := ig.store.UpdateProductMetadata(ctx, product.PK, meta); err != nil {
			return false, fmt.Errorf("telcsv: update raw obs metadata: %w", err)
		}
		stats.DataProdsUpdated++
		ig.events.Emit(ctx, eventlog.EventTelMerged, eventlog.EntityDataProduct, product.PK,
			map[string]any{"obsnum": row.Obsnum, "subobsnum": row.Subobsnum, "scannum": row.Scannum})

	case catalogerr.Is(err, catalogerr.MissingPrerequisite):
		if !createDataProds {
			return false, nil
		}
		tel := row.Tel
		created, err := ig.store.CreateRawObs(ctx, model.RawObsMeta{
			Name:      fmt.Sprintf("raw_%s_%d_%d_%d", master, row.Obsnum, row.Subobsnum, row.Scannum),
			Master:    master,
			Obsnum:    row.Obsnum,
			Subobsnum: row.Subobsnum,
			Scannum:   row.Scannum,
			DataKind:  model.DataKindLmtTel,
			ObsGoal:   row.ObsGoal,
			Tel:       &tel,
		})
		if err != nil {
			return false, fmt.Errorf("telcsv: create raw obs: %w", err)
		}
		product = created
		stats.DataProdsCreated++
		ig.events.Emit(ctx, eventlog.EventQuartetIngested, eventlog.EntityDataProduct, product.PK,
			map[string]any{"master": master, "obsnum": row.Obsnum, "subobsnum": row.Subobsnum, "scannum": row.Scannum})

	default:
		return false, fmt.Errorf("telcsv: find raw obs: %w", err)
	}

	sourceURI := relativeTelSourceURI(row.FilePath)

	if skipExisting {
		if _, err := ig.store.FindSourceByURI(ctx, ig.location.PK, sourceURI); err == nil {
			ig.events.Emit(ctx, eventlog.EventSourceSkipped, eventlog.EntityDataProductSource, 0,
				map[string]any{"source_uri": sourceURI})
			return false, nil
		} else if !catalogerr.Is(err, catalogerr.MissingPrerequisite) {
			return false, fmt.Errorf("telcsv: check existing source: %w", err)
		}
	}

	source, err := ig.store.CreateSource(ctx, model.DataProductSource{
		SourceURI:    sourceURI,
		LocationFK:   ig.location.PK,
		DataProdFK:   product.PK,
		Role:         model.RoleMetadata,
		Availability: model.Unknown,
		Metadata:     model.TelInterfaceMeta{Interface: "tel_toltec"},
	})
	if err != nil {
		return false, fmt.Errorf("telcsv: create source: %w", err)
	}
	stats.SourcesCreated++
	ig.events.Emit(ctx, eventlog.EventSourceAttached, eventlog.EntityDataProductSource, source.PK,
		map[string]any{"data_prod_fk": product.PK, "interface": "tel_toltec"})

	return true, nil
}

// relativeTelSourceURI strips the "data_lmt/" path segment from the
// CSV's absolute file path, so the stored URI is relative to the
// Location root the same way roach interface sources are. Looked up
// by path segment rather than string-prefix, since the CSV's file
// paths and the Location's configured root need not share a literal
// prefix (the CSV is generated by a separate system).
func relativeTelSourceURI(filePath string) string {
	parts := strings.Split(filePath, "/")
	for i, part := range parts {
		if part == "data_lmt" {
			return strings.Join(parts[i+1:], "/")
		}
	}
	return filePath
}
