package telcsv

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toltec-astro/tolteca-catalog/internal/catalogerr"
	"github.com/toltec-astro/tolteca-catalog/internal/eventlog"
	"github.com/toltec-astro/tolteca-catalog/internal/model"
)

const header = "ObsNum,Date/Time [UT],SourceName,ObsGoal,ProjectId,ObsPgm,IntegrationTime,MainTime,RefTime,Az [deg],El [deg],UserAzOffset [\"],UserElOffset [\"],PaddleAzOffset [\"],PaddleElOffset [\"],M2XOffset [mm],M2YOffset [mm],M2ZOffset [mm],M1Zernike0 [micron],M1Zernike1 [micron],M1Zernike2 [micron],M1Zernike3 [micron],M1Zernike4 [micron],M1Zernike5 [micron],M1Zernike6 [micron],Tau,CraneInBeam,Valid,FileName\n"

func sampleRow(obsnum string) string {
	return obsnum + ",2024-03-19 05:27:52,IRC+10216,pointing,2023-S1,Toltec,1.5,1.0,0.5," +
		"45.0,60.0,0.1,0.2,0.0,0.0,0.01,0.02,0.03,1,2,3,4,5,6,7,0.08,0,1,/data_lmt/tel/tel_toltec_123456_000_0001.nc\n"
}

func TestParseRow(t *testing.T) {
	rows, err := ReadAll(strings.NewReader(header + sampleRow("123456.0.1")))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.NoError(t, rows[0].Err)

	row := rows[0].Row
	assert.Equal(t, 123456, row.Obsnum)
	assert.Equal(t, 0, row.Subobsnum)
	assert.Equal(t, 1, row.Scannum)
	assert.True(t, row.Valid)
	assert.Equal(t, "IRC+10216", row.Tel.SourceName)
	assert.InDelta(t, 45.0, row.Tel.AzDeg, 1e-9)
	assert.Equal(t, [7]float64{1, 2, 3, 4, 5, 6, 7}, row.Tel.Zernike)
}

func TestRelativeTelSourceURI(t *testing.T) {
	assert.Equal(t, "tel/tel_toltec_123456_000_0001.nc",
		relativeTelSourceURI("/data_lmt/tel/tel_toltec_123456_000_0001.nc"))
	assert.Equal(t, "no_prefix.nc", relativeTelSourceURI("no_prefix.nc"))
}

type fakeStore struct {
	location model.Location
	products []model.DataProduct
	sources  []model.DataProductSource
	nextPK   int64
}

func (f *fakeStore) GetLocationByLabel(context.Context, string) (model.Location, error) {
	return f.location, nil
}

func (f *fakeStore) FindRawObsByQuartet(_ context.Context, master string, obsnum, subobsnum, scannum int) (model.DataProduct, error) {
	for _, dp := range f.products {
		m := dp.Metadata.(model.RawObsMeta)
		if m.Master == master && m.Obsnum == obsnum && m.Subobsnum == subobsnum && m.Scannum == scannum {
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

func (f *fakeStore) UpdateProductMetadata(_ context.Context, pk int64, meta model.ProductMeta) error {
	for i, dp := range f.products {
		if dp.PK == pk {
			f.products[i].Metadata = meta
			return nil
		}
	}
	return catalogerr.New(catalogerr.MissingPrerequisite, "UpdateProductMetadata", catalogerr.ErrNotFound)
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

type discardWriter struct{}

func (discardWriter) Append(context.Context, model.EventLog) error { return nil }

func newTestIngestor(t *testing.T, store *fakeStore) *Ingestor {
	t.Helper()
	events := eventlog.New(discardWriter{})
	ig, err := New(context.Background(), store, events, "default")
	require.NoError(t, err)
	return ig
}

func TestIngestCSVCreatesProductWhenAbsent(t *testing.T) {
	store := &fakeStore{location: model.Location{PK: 1, Label: "default", RootURI: "file:///data_lmt"}}
	ig := newTestIngestor(t, store)

	stats, err := ig.IngestCSV(context.Background(), strings.NewReader(header+sampleRow("123456.0.1")),
		Options{SkipExisting: true, CreateDataProds: true, CommitBatchSize: 100})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.RowsScanned)
	assert.Equal(t, 1, stats.RowsIngested)
	assert.Equal(t, 1, stats.DataProdsCreated)
	assert.Equal(t, 1, stats.SourcesCreated)

	require.Len(t, store.products, 1)
	meta := store.products[0].Metadata.(model.RawObsMeta)
	assert.Equal(t, model.DataKindLmtTel, meta.DataKind)
	require.NotNil(t, meta.Tel)
	assert.Equal(t, "IRC+10216", meta.Tel.SourceName)
}

func TestIngestCSVMergesIntoExistingProduct(t *testing.T) {
	store := &fakeStore{location: model.Location{PK: 1, Label: "default", RootURI: "file:///data_lmt"}}
	store.nextPK = 1
	store.products = append(store.products, model.DataProduct{
		PK: 1,
		Metadata: model.RawObsMeta{
			Name: "raw_tcs_123456_0_1", Master: "tcs", Obsnum: 123456, Subobsnum: 0, Scannum: 1,
			DataKind: model.DataKindRawTimeStream,
		},
	})
	ig := newTestIngestor(t, store)

	stats, err := ig.IngestCSV(context.Background(), strings.NewReader(header+sampleRow("123456.0.1")),
		Options{SkipExisting: true, CreateDataProds: true, CommitBatchSize: 100})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.DataProdsUpdated)
	assert.Equal(t, 0, stats.DataProdsCreated)

	meta := store.products[0].Metadata.(model.RawObsMeta)
	assert.Equal(t, model.DataKindRawTimeStream|model.DataKindLmtTel, meta.DataKind)
}

func TestIngestCSVSkipsExistingSource(t *testing.T) {
	store := &fakeStore{location: model.Location{PK: 1, Label: "default", RootURI: "file:///data_lmt"}}
	ig := newTestIngestor(t, store)

	_, err := ig.IngestCSV(context.Background(), strings.NewReader(header+sampleRow("123456.0.1")),
		Options{SkipExisting: true, CreateDataProds: true, CommitBatchSize: 100})
	require.NoError(t, err)

	stats, err := ig.IngestCSV(context.Background(), strings.NewReader(header+sampleRow("123456.0.1")),
		Options{SkipExisting: true, CreateDataProds: true, CommitBatchSize: 100})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.RowsSkipped)
	assert.Equal(t, 0, stats.SourcesCreated)
}
