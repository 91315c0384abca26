package ingest

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DirectoryOptions controls ingest_directory.
type DirectoryOptions struct {
	Pattern      string // base-name glob, e.g. "*.nc"
	Recursive    bool
	SkipExisting bool

	// CommitInterval sets the progress-log cadence (every N files
	// scanned). The embedded dialects autocommit per statement, so
	// unlike the reference ingestor there is no explicit transaction
	// to batch — this only paces log volume on large directories.
	CommitInterval int

	// Concurrency bounds the number of files ingested in parallel.
	// 0 or 1 ingests sequentially.
	Concurrency int
}

// IngestDirectory scans root for files matching opts.Pattern and
// ingests each one, returning aggregate Stats. A per-file failure is
// caught, counted, and logged; it does not abort the remaining files.
func (ig *Ingestor) IngestDirectory(ctx context.Context, root string, opts DirectoryOptions) (Stats, error) {
	pattern := opts.Pattern
	if pattern == "" {
		pattern = "*.nc"
	}

	files, err := Scan(root, pattern, opts.Recursive)
	if err != nil {
		return Stats{}, err
	}

	var stats Stats
	var mu sync.Mutex
	var scanned int64

	ingestOne := func(f ScannedFile) error {
		n := atomic.AddInt64(&scanned, 1)
		if opts.CommitInterval > 0 && n%int64(opts.CommitInterval) == 0 {
			ig.zl.Info("ingest progress", zap.Int64("scanned", n), zap.Int("total", len(files)))
		}

		result, err := ig.IngestFile(ctx, f, Options{SkipExisting: opts.SkipExisting})

		mu.Lock()
		defer mu.Unlock()
		stats.Scanned++
		switch {
		case err != nil:
			stats.Failed++
			ig.zl.Warn("ingest file failed", zap.String("path", f.AbsPath), zap.Error(err))
		case result.Product == nil:
			stats.Skipped++
		default:
			stats.Ingested++
			stats.SourcesCreated++
			if result.ProductCreated {
				stats.ProductsCreated++
			}
		}
		return nil
	}

	concurrency := opts.Concurrency
	if concurrency <= 1 {
		for _, f := range files {
			_ = ingestOne(f)
		}
		return stats, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, f := range files {
		f := f
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			return ingestOne(f)
		})
	}
	if err := g.Wait(); err != nil {
		return stats, err
	}
	return stats, nil
}
