// Package ingest implements the quartet ingestor (C5): walking a
// directory of TolTEC raw data files, creating one dp_raw_obs
// DataProduct per (master, obsnum, subobsnum, scannum) quartet, and
// attaching one DataProductSource per physical interface file.
package ingest

import (
	"context"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/toltec-astro/tolteca-catalog/internal/catalogerr"
	"github.com/toltec-astro/tolteca-catalog/internal/eventlog"
	"github.com/toltec-astro/tolteca-catalog/internal/filenameparser"
	"github.com/toltec-astro/tolteca-catalog/internal/logging"
	"github.com/toltec-astro/tolteca-catalog/internal/model"
)

// Store is the subset of catalog.Store the ingestor needs.
type Store interface {
	GetLocationByLabel(ctx context.Context, label string) (model.Location, error)
	FindRawObsByQuartet(ctx context.Context, master string, obsnum, subobsnum, scannum int) (model.DataProduct, error)
	CreateRawObs(ctx context.Context, meta model.RawObsMeta) (model.DataProduct, error)
	FindSourceByURI(ctx context.Context, locationFK int64, sourceURI string) (model.DataProductSource, error)
	CreateSource(ctx context.Context, src model.DataProductSource) (model.DataProductSource, error)
}

// Options controls a single ingest_file call.
type Options struct {
	SkipExisting bool
	ObsGoal      string
	SourceName   string
}

// Ingestor binds a Store to the Location and master/network identity
// every file it ingests is attributed to.
type Ingestor struct {
	store     Store
	events    *eventlog.Logger
	location  model.Location
	master    string
	networkID int
	zl        *zap.Logger

	inflight singleflight.Group
}

// New resolves locationLabel to a Location (a hard error if it does
// not already exist — ingestion never silently creates storage
// endpoints) and returns an Ingestor scoped to it.
func New(ctx context.Context, store Store, events *eventlog.Logger, locationLabel, master string, networkID int) (*Ingestor, error) {
	loc, err := store.GetLocationByLabel(ctx, locationLabel)
	if err != nil {
		return nil, fmt.Errorf("ingest: resolve location %q: %w", locationLabel, err)
	}
	return &Ingestor{
		store:     store,
		events:    events,
		location:  loc,
		master:    strings.ToLower(master),
		networkID: networkID,
		zl:        logging.Get(logging.ComponentIngest),
	}, nil
}

// IngestResult reports what IngestFile actually did, distinguishing a
// freshly created DataProduct from one that already existed — the
// distinction ingest_directory's stats need and a bare (product,
// source) pair cannot carry.
type IngestResult struct {
	Product        *model.DataProduct
	Source         *model.DataProductSource
	ProductCreated bool
}

// IngestFile ingests one already-scanned file: it resolves the
// relative source URI, optionally skips files already registered,
// finds-or-creates the quartet's DataProduct, and attaches a
// DataProductSource for the physical file. A zero IngestResult (nil
// Product and Source) means the file was skipped under SkipExisting.
//
// Step (4) — find-or-create the DataProduct — must complete and
// return a surrogate key before step (5) inserts the source row, since
// the source is a foreign-keyed child of the product.
func (ig *Ingestor) IngestFile(ctx context.Context, file ScannedFile, opts Options) (IngestResult, error) {
	if file.Parsed == nil {
		return IngestResult{}, catalogerr.New(catalogerr.ParseFailure, "IngestFile",
			fmt.Errorf("file %q did not parse against the naming grammar", file.AbsPath))
	}
	p := file.Parsed

	sourceURI, err := ig.relativeSourceURI(file.AbsPath)
	if err != nil {
		return IngestResult{}, err
	}

	if opts.SkipExisting {
		_, err := ig.store.FindSourceByURI(ctx, ig.location.PK, sourceURI)
		if err == nil {
			ig.events.Emit(ctx, eventlog.EventSourceSkipped, eventlog.EntityDataProductSource, 0,
				map[string]any{"source_uri": sourceURI})
			return IngestResult{}, nil
		}
		if !catalogerr.Is(err, catalogerr.MissingPrerequisite) {
			return IngestResult{}, fmt.Errorf("ingest: check existing source: %w", err)
		}
	}

	product, created, err := ig.findOrCreateRawObs(ctx, p, opts.ObsGoal)
	if err != nil {
		return IngestResult{}, err
	}
	if created {
		ig.events.Emit(ctx, eventlog.EventQuartetIngested, eventlog.EntityDataProduct, product.PK,
			map[string]any{"master": ig.master, "obsnum": p.Obsnum, "subobsnum": p.Subobsnum, "scannum": p.Scannum})
	}

	source, err := ig.createSource(ctx, file.AbsPath, sourceURI, product.PK, p)
	if err != nil {
		return IngestResult{}, err
	}
	ig.events.Emit(ctx, eventlog.EventSourceAttached, eventlog.EntityDataProductSource, source.PK,
		map[string]any{"data_prod_fk": product.PK, "interface": p.Interface})

	return IngestResult{Product: &product, Source: &source, ProductCreated: created}, nil
}

// relativeSourceURI expresses absPath relative to the bound Location's
// root; a path outside the root falls back to the absolute path,
// mirroring the catalog's tolerance for files stored outside their
// nominal archive tree.
func (ig *Ingestor) relativeSourceURI(absPath string) (string, error) {
	root := strings.TrimPrefix(ig.location.RootURI, "file://")
	root = strings.TrimRight(root, "/")
	if root == "" || !strings.HasPrefix(absPath, root+"/") {
		return absPath, nil
	}
	return strings.TrimPrefix(absPath, root+"/"), nil
}

// findOrCreateRawObs returns the quartet's DataProduct, creating it if
// absent. Concurrent calls for the same quartet (from parallel
// directory workers) are collapsed through a singleflight group keyed
// by the quartet UID so only one of them performs the insert; the
// rest share its result and report the product as already existing.
func (ig *Ingestor) findOrCreateRawObs(ctx context.Context, p *filenameparser.ParsedFilename, obsGoal string) (model.DataProduct, bool, error) {
	existing, err := ig.store.FindRawObsByQuartet(ctx, ig.master, p.Obsnum, p.Subobsnum, p.Scannum)
	if err == nil {
		return existing, false, nil
	}
	if !catalogerr.Is(err, catalogerr.MissingPrerequisite) {
		return model.DataProduct{}, false, fmt.Errorf("ingest: find raw obs: %w", err)
	}

	key := fmt.Sprintf("%s-%d-%d-%d", ig.master, p.Obsnum, p.Subobsnum, p.Scannum)
	type outcome struct {
		dp      model.DataProduct
		created bool
	}
	ran := false
	v, err, _ := ig.inflight.Do(key, func() (any, error) {
		ran = true
		// Re-check after acquiring the singleflight slot: another
		// worker may have created it between our failed lookup above
		// and now.
		if dp, err := ig.store.FindRawObsByQuartet(ctx, ig.master, p.Obsnum, p.Subobsnum, p.Scannum); err == nil {
			return outcome{dp: dp}, nil
		}

		meta := model.RawObsMeta{
			Name:      fmt.Sprintf("raw_%s_%d_%d_%d", ig.master, p.Obsnum, p.Subobsnum, p.Scannum),
			Master:    ig.master,
			Obsnum:    p.Obsnum,
			Subobsnum: p.Subobsnum,
			Scannum:   p.Scannum,
			ObsGoal:   obsGoal,
		}
		if p.HasDataKind {
			meta.DataKind = p.DataKind
		}

		dp, err := ig.store.CreateRawObs(ctx, meta)
		if err != nil && catalogerr.Is(err, catalogerr.InvariantViolation) {
			// Lost the race to another process (not just another
			// goroutine in this one, which singleflight already
			// covers) — the quartet exists now; read it back.
			dp, err = ig.store.FindRawObsByQuartet(ctx, ig.master, p.Obsnum, p.Subobsnum, p.Scannum)
			return outcome{dp: dp}, err
		}
		return outcome{dp: dp, created: err == nil}, err
	})
	if err != nil {
		return model.DataProduct{}, false, err
	}
	o := v.(outcome)
	return o.dp, ran && o.created, nil
}

func (ig *Ingestor) createSource(ctx context.Context, absPath, sourceURI string, productPK int64, p *filenameparser.ParsedFilename) (model.DataProductSource, error) {
	availability := model.Available
	var sizeBytes *int64
	if fi, err := os.Stat(absPath); err != nil {
		availability = model.Missing
	} else {
		size := fi.Size()
		sizeBytes = &size
	}

	roachID := -1
	if p.Roach != nil {
		roachID = *p.Roach
	}

	return ig.store.CreateSource(ctx, model.DataProductSource{
		SourceURI:    sourceURI,
		LocationFK:   ig.location.PK,
		DataProdFK:   productPK,
		Role:         model.RolePrimary,
		Availability: availability,
		SizeBytes:    sizeBytes,
		Metadata: model.RoachInterfaceMeta{
			Interface: p.Interface,
			RoachID:   roachID,
			NetworkID: ig.networkID,
			DataKind:  p.DataKind,
		},
	})
}

// Stats accumulates ingest_directory's outcome counts.
type Stats struct {
	Scanned         int
	Ingested        int
	Skipped         int
	Failed          int
	ProductsCreated int
	SourcesCreated  int
}

func (s Stats) String() string {
	return fmt.Sprintf("scanned=%d ingested=%d skipped=%d failed=%d products_created=%d sources_created=%d",
		s.Scanned, s.Ingested, s.Skipped, s.Failed, s.ProductsCreated, s.SourcesCreated)
}
