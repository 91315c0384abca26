package obsquery

import (
	"context"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toltec-astro/tolteca-catalog/internal/catalogerr"
	"github.com/toltec-astro/tolteca-catalog/internal/model"
)

type fakeQueryStore struct {
	products  []model.DataProduct
	sources   map[int64][]model.DataProductSource
	locations []model.Location
}

func (f *fakeQueryStore) ListProductsByType(_ context.Context, typ model.ProductType) ([]model.DataProduct, error) {
	var out []model.DataProduct
	for _, dp := range f.products {
		if dp.Type == typ {
			out = append(out, dp)
		}
	}
	return out, nil
}

func (f *fakeQueryStore) ListSourcesForProduct(_ context.Context, pk int64) ([]model.DataProductSource, error) {
	return f.sources[pk], nil
}

func (f *fakeQueryStore) ListLocations(_ context.Context) ([]model.Location, error) {
	return f.locations, nil
}

func rawObsProduct(pk int64, master string, obsnum, subobsnum, scannum int) model.DataProduct {
	return model.DataProduct{
		PK: pk, Type: model.ProductRawObs,
		Metadata: model.RawObsMeta{
			Name: master, Master: master, Obsnum: obsnum, Subobsnum: subobsnum, Scannum: scannum,
		},
	}
}

func roachSource(pk, dataProdFK int64, roach int, uri string) model.DataProductSource {
	return model.DataProductSource{
		PK: pk, DataProdFK: dataProdFK, LocationFK: 1, SourceURI: uri,
		Role: model.RolePrimary, Availability: model.Available,
		Metadata: model.RoachInterfaceMeta{Interface: "toltec" + strconv.Itoa(roach), RoachID: roach},
	}
}

func newFixtureStore() *fakeQueryStore {
	store := &fakeQueryStore{
		locations: []model.Location{{PK: 1, Label: "local", Type: model.LocationFilesystem}},
		sources:   map[int64][]model.DataProductSource{},
	}
	store.products = []model.DataProduct{
		rawObsProduct(1, "tcs", 1000, 0, 0),
		rawObsProduct(2, "tcs", 1000, 1, 0),
		rawObsProduct(3, "tcs", 1001, 0, 0),
	}
	store.sources[1] = []model.DataProductSource{
		roachSource(1, 1, 0, "file:///data_lmt/toltec/toltec0_1000_0_0_2024_01_01_00_00_00_targsweep.nc"),
		roachSource(2, 1, 1, "file:///data_lmt/toltec/toltec1_1000_0_0_2024_01_01_00_00_00_targsweep.nc"),
	}
	store.sources[2] = []model.DataProductSource{
		roachSource(3, 2, 0, "file:///data_lmt/toltec/toltec0_1000_1_0.nc"),
	}
	store.sources[3] = []model.DataProductSource{
		roachSource(4, 3, 0, "file:///data_lmt/toltec/toltec0_1001_0_0.nc"),
	}
	return store
}

func TestQueryResolveByObsnum(t *testing.T) {
	q := NewQuery(newFixtureStore())
	rows, err := q.GetRawObsInfoTable(context.Background(), "1000", Filter{})
	require.NoError(t, err)
	assert.Len(t, rows, 3)
}

func TestQueryResolveByRoachMapsToInterface(t *testing.T) {
	q := NewQuery(newFixtureStore())
	rows, err := q.GetRawObsInfoTable(context.Background(), "1000/1", Filter{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "toltec1", rows[0].Interface)
	assert.Equal(t, 1, *rows[0].Roach)
}

func TestQueryResolveUIDsIncludeMasterWhenSet(t *testing.T) {
	q := NewQuery(newFixtureStore())
	rows, err := q.GetRawObsInfoTable(context.Background(), "tcs-1000-0-0", Filter{})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "tcs-1000", rows[0].UIDObs)
	assert.Equal(t, "tcs-1000-0-0", rows[0].UIDRawObs)
}

func TestQueryResolveFileSuffixAndTimestampFromFilename(t *testing.T) {
	q := NewQuery(newFixtureStore())
	rows, err := q.GetRawObsInfoTable(context.Background(), "tcs-1000-0-0", Filter{})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "targsweep", rows[0].FileSuffix)
	assert.NotNil(t, rows[0].FileTimestamp)
}

func TestQueryRaiseOnMultiple(t *testing.T) {
	q := NewQuery(newFixtureStore())
	_, err := q.GetRawObsInfoTable(context.Background(), "1000", Filter{RaiseOnMultiple: true})
	var catErr *catalogerr.Error
	require.ErrorAs(t, err, &catErr)
	assert.Equal(t, catalogerr.Ambiguous, catErr.Kind)
}

func TestQueryRaiseOnEmpty(t *testing.T) {
	q := NewQuery(newFixtureStore())
	_, err := q.GetRawObsInfoTable(context.Background(), "9999", Filter{RaiseOnEmpty: true})
	var catErr *catalogerr.Error
	require.ErrorAs(t, err, &catErr)
	assert.Equal(t, catalogerr.NotFound, catErr.Kind)
}

func TestQueryGetRawObsLatest(t *testing.T) {
	q := NewQuery(newFixtureStore())
	rows, err := q.GetRawObsLatest(context.Background(), "tcs", "")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 1001, rows[0].Obsnum)
}

func TestQueryGetRawObsLatestNotFoundForUnknownMaster(t *testing.T) {
	q := NewQuery(newFixtureStore())
	_, err := q.GetRawObsLatest(context.Background(), "simu", "")
	var catErr *catalogerr.Error
	require.ErrorAs(t, err, &catErr)
	assert.Equal(t, catalogerr.NotFound, catErr.Kind)
}

func TestQuerySubobsnumListFilter(t *testing.T) {
	q := NewQuery(newFixtureStore())
	rows, err := q.Resolve(context.Background(), Filter{Obsnum: 1000, HasObsnum: true, SubobsnumList: []int{1}})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 1, rows[0].Subobsnum)
}

func TestQueryLocationLabelPrefixFilter(t *testing.T) {
	store := newFixtureStore()
	q := NewQuery(store, WithLocationLabel("remote"))
	rows, err := q.GetRawObsInfoTable(context.Background(), "1000", Filter{})
	require.NoError(t, err)
	assert.Empty(t, rows)
}
