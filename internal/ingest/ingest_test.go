package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toltec-astro/tolteca-catalog/internal/catalogerr"
	"github.com/toltec-astro/tolteca-catalog/internal/eventlog"
	"github.com/toltec-astro/tolteca-catalog/internal/model"
)

type fakeStore struct {
	locations map[string]model.Location
	products  []model.DataProduct
	sources   []model.DataProductSource
	nextPK    int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{locations: map[string]model.Location{
		"default": {PK: 1, Label: "default", RootURI: "file:///data_lmt"},
	}}
}

func (f *fakeStore) GetLocationByLabel(_ context.Context, label string) (model.Location, error) {
	loc, ok := f.locations[label]
	if !ok {
		return model.Location{}, catalogerr.New(catalogerr.MissingPrerequisite, "GetLocationByLabel", catalogerr.ErrNotFound)
	}
	return loc, nil
}

func (f *fakeStore) FindRawObsByQuartet(_ context.Context, master string, obsnum, subobsnum, scannum int) (model.DataProduct, error) {
	for _, dp := range f.products {
		meta := dp.Metadata.(model.RawObsMeta)
		if meta.Master == master && meta.Obsnum == obsnum && meta.Subobsnum == subobsnum && meta.Scannum == scannum {
			return dp, nil
		}
	}
	return model.DataProduct{}, catalogerr.New(catalogerr.MissingPrerequisite, "FindRawObsByQuartet", catalogerr.ErrNotFound)
}

func (f *fakeStore) CreateRawObs(_ context.Context, meta model.RawObsMeta) (model.DataProduct, error) {
	f.nextPK++
	dp := model.DataProduct{PK: f.nextPK, Type: model.ProductRawObs, Metadata: meta}
	f.products = append(f.products, dp)
	return dp, nil
}

func (f *fakeStore) FindSourceByURI(_ context.Context, locationFK int64, sourceURI string) (model.DataProductSource, error) {
	for _, src := range f.sources {
		if src.LocationFK == locationFK && src.SourceURI == sourceURI {
			return src, nil
		}
	}
	return model.DataProductSource{}, catalogerr.New(catalogerr.MissingPrerequisite, "FindSourceByURI", catalogerr.ErrNotFound)
}

func (f *fakeStore) CreateSource(_ context.Context, src model.DataProductSource) (model.DataProductSource, error) {
	f.nextPK++
	src.PK = f.nextPK
	f.sources = append(f.sources, src)
	return src, nil
}

func newTestIngestor(t *testing.T, store *fakeStore) *Ingestor {
	t.Helper()
	events := eventlog.New(discardWriter{})
	ig, err := New(context.Background(), store, events, "default", "toltec", 0)
	require.NoError(t, err)
	return ig
}

type discardWriter struct{}

func (discardWriter) Append(context.Context, model.EventLog) error { return nil }

func writeQuartetFile(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	return path
}

func TestIngestFileCreatesProductAndSource(t *testing.T) {
	dir := t.TempDir()
	path := writeQuartetFile(t, dir, "toltec0_000001_00_0000_targsweep.nc")

	store := newFakeStore()
	store.locations["default"] = model.Location{PK: 1, Label: "default", RootURI: "file://" + dir}
	ig := newTestIngestor(t, store)

	files, err := Scan(dir, "*.nc", false)
	require.NoError(t, err)
	require.Len(t, files, 1)

	result, err := ig.IngestFile(context.Background(), files[0], Options{SkipExisting: true})
	require.NoError(t, err)
	require.NotNil(t, result.Product)
	require.NotNil(t, result.Source)
	assert.True(t, result.ProductCreated)

	meta := result.Product.Metadata.(model.RawObsMeta)
	assert.Equal(t, "raw_toltec_1_0_0", meta.Name)
	assert.Equal(t, model.DataKindTargetSweep, meta.DataKind)
	assert.Equal(t, "toltec0_000001_00_0000_targsweep.nc", result.Source.SourceURI)
	assert.Equal(t, model.Available, result.Source.Availability)

	_ = path
}

func TestIngestFileSkipsExistingSource(t *testing.T) {
	dir := t.TempDir()
	writeQuartetFile(t, dir, "toltec0_000001_00_0000_targsweep.nc")

	store := newFakeStore()
	store.locations["default"] = model.Location{PK: 1, Label: "default", RootURI: "file://" + dir}
	ig := newTestIngestor(t, store)

	files, err := Scan(dir, "*.nc", false)
	require.NoError(t, err)

	first, err := ig.IngestFile(context.Background(), files[0], Options{SkipExisting: true})
	require.NoError(t, err)
	require.NotNil(t, first.Product)

	second, err := ig.IngestFile(context.Background(), files[0], Options{SkipExisting: true})
	require.NoError(t, err)
	assert.Nil(t, second.Product)
	assert.Nil(t, second.Source)
}

func TestIngestFileSharesProductAcrossInterfaces(t *testing.T) {
	dir := t.TempDir()
	writeQuartetFile(t, dir, "toltec0_000001_00_0000_targsweep.nc")
	writeQuartetFile(t, dir, "toltec1_000001_00_0000_targsweep.nc")

	store := newFakeStore()
	store.locations["default"] = model.Location{PK: 1, Label: "default", RootURI: "file://" + dir}
	ig := newTestIngestor(t, store)

	files, err := Scan(dir, "*.nc", false)
	require.NoError(t, err)
	require.Len(t, files, 2)

	r0, err := ig.IngestFile(context.Background(), files[0], Options{SkipExisting: true})
	require.NoError(t, err)
	r1, err := ig.IngestFile(context.Background(), files[1], Options{SkipExisting: true})
	require.NoError(t, err)

	assert.Equal(t, r0.Product.PK, r1.Product.PK)
	assert.True(t, r0.ProductCreated)
	assert.False(t, r1.ProductCreated)
}

func TestIngestDirectoryAggregatesStats(t *testing.T) {
	dir := t.TempDir()
	writeQuartetFile(t, dir, "toltec0_000001_00_0000_targsweep.nc")
	writeQuartetFile(t, dir, "toltec1_000001_00_0000_targsweep.nc")
	writeQuartetFile(t, dir, "toltec0_000002_00_0000_tune.nc")
	writeQuartetFile(t, dir, "not_a_quartet.txt")

	store := newFakeStore()
	store.locations["default"] = model.Location{PK: 1, Label: "default", RootURI: "file://" + dir}
	ig := newTestIngestor(t, store)

	stats, err := ig.IngestDirectory(context.Background(), dir, DirectoryOptions{
		Pattern:      "*.nc",
		Recursive:    false,
		SkipExisting: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Scanned)
	assert.Equal(t, 3, stats.Ingested)
	assert.Equal(t, 2, stats.ProductsCreated)
	assert.Equal(t, 3, stats.SourcesCreated)
	assert.Equal(t, 0, stats.Failed)
}

func TestIngestFileRejectsUnparsedFile(t *testing.T) {
	store := newFakeStore()
	ig := newTestIngestor(t, store)
	_, err := ig.IngestFile(context.Background(), ScannedFile{AbsPath: "/tmp/x.txt"}, Options{})
	require.Error(t, err)
	assert.True(t, catalogerr.Is(err, catalogerr.ParseFailure))
}
