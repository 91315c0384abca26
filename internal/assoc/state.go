package assoc

import (
	"context"

	"github.com/toltec-astro/tolteca-catalog/internal/model"
)

// GroupInfo is the incremental-mode record of one already-created
// group: enough to find it again by candidate key and to grow its
// member roster without re-reading the group product itself.
type GroupInfo struct {
	GroupPK      int64
	GroupType    model.ProductType
	CandidateKey string
	NMembers     int
	Metadata     model.GroupMeta
}

// State is the association-state surface: an already-grouped-
// observation set and a candidate-key→GroupInfo index, with
// Flush/Reload persistence hooks. DBState and FSState are the two
// backends.
type State interface {
	IsGrouped(pk int64) bool
	GetUngrouped(pks []int64) []int64
	GetExistingGroup(candidateKey string) (GroupInfo, bool)
	MarkGrouped(pk int64)
	RegisterGroup(info GroupInfo)
	UpdateGroupMemberCount(candidateKey string, n int)
	Flush(ctx context.Context) error
	Reload(ctx context.Context) error
	Stats() StateStats
}

// StateStats mirrors AssociationState.stats(): counts of grouped
// observations and groups, broken down by group type.
type StateStats struct {
	NGroupedObservations int
	NGroups              int
	GroupsByType         map[model.ProductType]int
}
