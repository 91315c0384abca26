package assoc

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toltec-astro/tolteca-catalog/internal/catalogerr"
	"github.com/toltec-astro/tolteca-catalog/internal/eventlog"
	"github.com/toltec-astro/tolteca-catalog/internal/model"
)

type fakeGenStore struct {
	products []model.DataProduct
	assocs   []model.DataProductAssoc
	nextPK   int64
}

func (f *fakeGenStore) CreateGroup(_ context.Context, typ model.ProductType, meta model.GroupMeta) (model.DataProduct, error) {
	f.nextPK++
	dp := model.DataProduct{PK: f.nextPK, Type: typ, Metadata: meta}
	f.products = append(f.products, dp)
	return dp, nil
}

func (f *fakeGenStore) UpdateGroupMembers(_ context.Context, pk int64, memberPKs []int64) error {
	for i, dp := range f.products {
		if dp.PK == pk {
			meta := dp.Metadata.(model.GroupMeta)
			meta.MemberPKs = memberPKs
			meta.NItems = len(memberPKs)
			f.products[i].Metadata = meta
			return nil
		}
	}
	return catalogerr.New(catalogerr.MissingPrerequisite, "UpdateGroupMembers", catalogerr.ErrNotFound)
}

func (f *fakeGenStore) CreateAssoc(_ context.Context, srcPK, dstPK int64, assocType model.AssocType, _ map[string]any) (model.DataProductAssoc, error) {
	f.nextPK++
	a := model.DataProductAssoc{PK: f.nextPK, SrcFK: srcPK, DstFK: dstPK, AssocType: assocType}
	f.assocs = append(f.assocs, a)
	return a, nil
}

func (f *fakeGenStore) GetProduct(_ context.Context, pk int64) (model.DataProduct, error) {
	for _, dp := range f.products {
		if dp.PK == pk {
			return dp, nil
		}
	}
	return model.DataProduct{}, catalogerr.New(catalogerr.MissingPrerequisite, "GetProduct", catalogerr.ErrNotFound)
}

type discardEventWriter struct{}

func (discardEventWriter) Append(context.Context, model.EventLog) error { return nil }

func newTestGenerator(store Store, state State) *Generator {
	return New(store, state, eventlog.New(discardEventWriter{}))
}

func TestGenerateFromBatchRawCalSequence(t *testing.T) {
	observations := []model.DataProduct{
		rawObs(1, "toltec", 1000, 0, 0, model.DataKindVnaSweep, ""),
		rawObs(2, "toltec", 1000, 0, 1, model.DataKindTargetSweep, ""),
		rawObs(3, "toltec", 1000, 0, 2, model.DataKindTargetSweep, ""),
		rawObs(4, "toltec", 1000, 0, 3, model.DataKindTargetSweep, ""),
	}
	store := &fakeGenStore{nextPK: 4}
	gen := NewWithCollators(store, nil, eventlog.New(discardEventWriter{}), []Collator{CalGroupCollator{}})

	stats, err := gen.GenerateFromBatch(context.Background(), observations, true, false)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.GroupsCreated)
	assert.Equal(t, 4, stats.AssociationsCreated)
	assert.Equal(t, 0, stats.GroupsUpdated)

	require.Len(t, store.products, 1)
	meta := store.products[0].Metadata.(model.GroupMeta)
	assert.Equal(t, "toltec-1000-g4-cal", meta.Name)
	assert.Len(t, store.assocs, 4)
}

func TestGenerateFromBatchIncrementalGrowsExistingFocusGroup(t *testing.T) {
	existingMeta := model.GroupMeta{
		Name: "toltec-145647to145649-g3-focus", Master: "toltec",
		Obsnum: 145647, StartObsnum: 145647, EndObsnum: 145649, NItems: 3, Suffix: "focus",
		MemberPKs: []int64{101, 102, 103},
	}
	store := &fakeGenStore{
		products: []model.DataProduct{{PK: 50, Type: model.ProductFocusGroup, Metadata: existingMeta}},
		nextPK:   103,
	}

	collator := FocusGroupCollator()
	candidateKey := collator.CandidateKey(existingMeta)
	state := newMemoryState()
	state.MarkGrouped(101)
	state.MarkGrouped(102)
	state.MarkGrouped(103)
	state.RegisterGroup(GroupInfo{
		GroupPK: 50, GroupType: model.ProductFocusGroup, CandidateKey: candidateKey,
		NMembers: 3, Metadata: existingMeta,
	})

	gen := newTestGenerator(store, state)

	// The generator's caller re-scans a recent window that still
	// includes the 3 previously-grouped members alongside the new one;
	// that overlap is what lets the collator recognize the run as
	// continuing rather than starting fresh.
	batch := []model.DataProduct{
		rawObs(101, "toltec", 145647, 0, 0, model.DataKindRawTimeStream, "focus"),
		rawObs(102, "toltec", 145648, 0, 0, model.DataKindRawTimeStream, "focus"),
		rawObs(103, "toltec", 145649, 0, 0, model.DataKindRawTimeStream, "focus"),
		rawObs(104, "toltec", 145650, 0, 0, model.DataKindRawTimeStream, "focus"),
	}

	stats, err := gen.GenerateFromBatch(context.Background(), batch, true, true)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.ObservationsAlreadyGrouped)
	assert.Equal(t, 1, stats.ObservationsProcessed)
	assert.Equal(t, 0, stats.GroupsCreated)
	assert.Equal(t, 1, stats.GroupsUpdated)
	assert.Equal(t, 1, stats.AssociationsCreated)

	info, ok := state.GetExistingGroup(candidateKey)
	require.True(t, ok)
	assert.Equal(t, 4, info.NMembers)
	assert.True(t, state.IsGrouped(104))
}

func TestGenerateFromBatchEmptyReturnsZeroStats(t *testing.T) {
	gen := newTestGenerator(&fakeGenStore{}, nil)
	stats, err := gen.GenerateFromBatch(context.Background(), nil, true, false)
	require.NoError(t, err)
	assert.Equal(t, AssociationStats{}, stats)
}

// memoryState is a minimal in-memory State used only to exercise the
// generator's incremental path without touching the filesystem or a
// store.
type memoryState struct {
	grouped map[int64]bool
	index   map[string]GroupInfo
}

func newMemoryState() *memoryState {
	return &memoryState{grouped: make(map[int64]bool), index: make(map[string]GroupInfo)}
}

func (s *memoryState) IsGrouped(pk int64) bool { return s.grouped[pk] }

func (s *memoryState) GetUngrouped(pks []int64) []int64 {
	out := make([]int64, 0, len(pks))
	for _, pk := range pks {
		if !s.grouped[pk] {
			out = append(out, pk)
		}
	}
	return out
}

func (s *memoryState) GetExistingGroup(candidateKey string) (GroupInfo, bool) {
	info, ok := s.index[candidateKey]
	return info, ok
}

func (s *memoryState) MarkGrouped(pk int64) { s.grouped[pk] = true }

func (s *memoryState) RegisterGroup(info GroupInfo) { s.index[info.CandidateKey] = info }

func (s *memoryState) UpdateGroupMemberCount(candidateKey string, n int) {
	if info, ok := s.index[candidateKey]; ok {
		info.NMembers = n
		s.index[candidateKey] = info
	}
}

func (s *memoryState) Flush(context.Context) error  { return nil }
func (s *memoryState) Reload(context.Context) error { return nil }

func (s *memoryState) Stats() StateStats {
	byType := make(map[model.ProductType]int)
	for _, info := range s.index {
		byType[info.GroupType]++
	}
	return StateStats{NGroupedObservations: len(s.grouped), NGroups: len(s.index), GroupsByType: byType}
}
