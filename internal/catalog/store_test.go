package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toltec-astro/tolteca-catalog/internal/catalogerr"
	"github.com/toltec-astro/tolteca-catalog/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open("duckdb::memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.CreateTables(context.Background()))
	require.NoError(t, s.PopulateRegistryTables(context.Background(), "default", "file:///data_lmt"))
	return s
}

func TestPopulateRegistryTablesIsReentrant(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.PopulateRegistryTables(context.Background(), "default", "file:///data_lmt"))

	locs, err := s.ListLocations(context.Background())
	require.NoError(t, err)
	require.Len(t, locs, 1)
	assert.Equal(t, "default", locs[0].Label)
}

func TestCreateRawObsEnforcesQuartetUniqueness(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	meta := model.RawObsMeta{
		Name: "tcs-12345-0-0", Master: "tcs", Obsnum: 12345,
	}
	dp, err := s.CreateRawObs(ctx, meta)
	require.NoError(t, err)
	assert.Equal(t, model.ProductRawObs, dp.Type)

	_, err = s.CreateRawObs(ctx, meta)
	require.Error(t, err)
	assert.True(t, catalogerr.Is(err, catalogerr.InvariantViolation))
}

func TestCreateSourceEnforcesURIUniqueness(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	dp, err := s.CreateRawObs(ctx, model.RawObsMeta{Name: "tcs-1-0-0", Master: "tcs", Obsnum: 1})
	require.NoError(t, err)

	loc, err := s.FindOrCreateLocation(ctx, "default", model.LocationFilesystem, "file:///data_lmt", 0)
	require.NoError(t, err)

	src := model.DataProductSource{
		SourceURI: "toltec0_000001_00_0000.nc", LocationFK: loc.PK, DataProdFK: dp.PK,
		Role: model.RolePrimary, Availability: model.Available,
		Metadata: model.RoachInterfaceMeta{Interface: "toltec0", RoachID: 0},
	}
	_, err = s.CreateSource(ctx, src)
	require.NoError(t, err)

	_, err = s.CreateSource(ctx, src)
	require.Error(t, err)
	assert.True(t, catalogerr.Is(err, catalogerr.InvariantViolation))
}

func TestCreateAssocEnforcesEndpointTypes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	raw, err := s.CreateRawObs(ctx, model.RawObsMeta{Name: "tcs-1-0-0", Master: "tcs", Obsnum: 1})
	require.NoError(t, err)
	cal, err := s.CreateGroup(ctx, model.ProductCalGroup, model.GroupMeta{Name: "tcs-1-g1-cal", Master: "tcs", Suffix: "cal", NItems: 1})
	require.NoError(t, err)

	_, err = s.CreateAssoc(ctx, cal.PK, raw.PK, model.AssocCalGroupRawObs, nil)
	require.NoError(t, err)

	// Wrong direction: src/dst swapped should be rejected by the
	// endpoint-type rule.
	_, err = s.CreateAssoc(ctx, raw.PK, cal.PK, model.AssocCalGroupRawObs, nil)
	require.Error(t, err)
	assert.True(t, catalogerr.Is(err, catalogerr.InvariantViolation))
}

func TestFindOrCreateTaskIsIdempotentByKey(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	dp, err := s.CreateRawObs(ctx, model.RawObsMeta{Name: "tcs-1-0-0", Master: "tcs", Obsnum: 1})
	require.NoError(t, err)

	task1, err := s.FindOrCreateTask(ctx, "ph1", "ish1", map[string]any{"a": 1.0}, []int64{dp.PK})
	require.NoError(t, err)
	task2, err := s.FindOrCreateTask(ctx, "ph1", "ish1", map[string]any{"a": 1.0}, []int64{dp.PK})
	require.NoError(t, err)
	assert.Equal(t, task1.PK, task2.PK)
}

func TestAppendAndListEvents(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	dp, err := s.CreateRawObs(ctx, model.RawObsMeta{Name: "tcs-1-0-0", Master: "tcs", Obsnum: 1})
	require.NoError(t, err)

	err = s.Append(ctx, model.EventLog{
		EventType: "quartet_ingested", EntityType: "data_product", EntityID: dp.PK,
		Payload: map[string]any{"uid": "tcs-1-0-0"}, OccurredAt: nowUTC(),
	})
	require.NoError(t, err)

	events, err := s.ListEventsForEntity(ctx, "data_product", dp.PK)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "quartet_ingested", events[0].EventType)
}
