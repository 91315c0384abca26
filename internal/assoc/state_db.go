package assoc

import (
	"context"
	"fmt"

	"github.com/toltec-astro/tolteca-catalog/internal/model"
)

// TypeInfo binds a group product type to the association type that
// links it to its members and the candidate-key function its
// collator uses, so DBState can reconstruct incremental state
// without importing the collators directly.
type TypeInfo struct {
	AssocType    model.AssocType
	CandidateKey func(model.GroupMeta) string
}

// StoreReader is the subset of catalog.Store DBState needs to
// reconstruct incremental association state from existing rows.
type StoreReader interface {
	ListProductsByType(ctx context.Context, typ model.ProductType) ([]model.DataProduct, error)
	ListAssocsByType(ctx context.Context, assocType model.AssocType) ([]model.DataProductAssoc, error)
	ListAssocsBySrc(ctx context.Context, srcPK int64, assocType model.AssocType) ([]model.DataProductAssoc, error)
}

// DBState is the database-backed state: "already grouped" is the set
// of distinct dst_data_prod_fk over existing associations, and the
// group index is reconstructed by scanning existing group products
// (type_fk > 1 in the source's terms; here, every ProductType present
// in types). Saves are no-ops — the database is the sole source of
// truth, so there is nothing to flush.
type DBState struct {
	store StoreReader
	types map[model.ProductType]TypeInfo

	grouped map[int64]bool
	index   map[string]GroupInfo
}

// NewDBState builds a DBState and immediately reloads it from store.
func NewDBState(ctx context.Context, store StoreReader, types map[model.ProductType]TypeInfo) (*DBState, error) {
	s := &DBState{store: store, types: types}
	if err := s.Reload(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload rebuilds both in-memory maps from the database: the grouped
// set from every configured association type's destination FKs, and
// the candidate-key index from every configured group product type.
func (s *DBState) Reload(ctx context.Context) error {
	s.grouped = make(map[int64]bool)
	s.index = make(map[string]GroupInfo)
	return s.loadFromContext(ctx)
}

func (s *DBState) loadFromContext(ctx context.Context) error {
	for _, ti := range s.types {
		assocs, err := s.store.ListAssocsByType(ctx, ti.AssocType)
		if err != nil {
			return fmt.Errorf("assoc: load grouped set for %s: %w", ti.AssocType, err)
		}
		for _, a := range assocs {
			s.grouped[a.DstFK] = true
		}
	}

	for productType, ti := range s.types {
		groups, err := s.store.ListProductsByType(ctx, productType)
		if err != nil {
			return fmt.Errorf("assoc: load group products for %s: %w", productType, err)
		}
		for _, group := range groups {
			meta, ok := group.Metadata.(model.GroupMeta)
			if !ok {
				continue
			}
			candidateKey := ti.CandidateKey(meta)
			members, err := s.store.ListAssocsBySrc(ctx, group.PK, ti.AssocType)
			if err != nil {
				return fmt.Errorf("assoc: count members for group %d: %w", group.PK, err)
			}
			s.index[candidateKey] = GroupInfo{
				GroupPK:      group.PK,
				GroupType:    productType,
				CandidateKey: candidateKey,
				NMembers:     len(members),
				Metadata:     meta,
			}
		}
	}
	return nil
}

func (s *DBState) IsGrouped(pk int64) bool { return s.grouped[pk] }

func (s *DBState) GetUngrouped(pks []int64) []int64 {
	out := make([]int64, 0, len(pks))
	for _, pk := range pks {
		if !s.grouped[pk] {
			out = append(out, pk)
		}
	}
	return out
}

func (s *DBState) GetExistingGroup(candidateKey string) (GroupInfo, bool) {
	info, ok := s.index[candidateKey]
	return info, ok
}

func (s *DBState) MarkGrouped(pk int64) { s.grouped[pk] = true }

func (s *DBState) RegisterGroup(info GroupInfo) { s.index[info.CandidateKey] = info }

func (s *DBState) UpdateGroupMemberCount(candidateKey string, n int) {
	if info, ok := s.index[candidateKey]; ok {
		info.NMembers = n
		s.index[candidateKey] = info
	}
}

// Flush is a no-op: the database is the live source of truth for both
// maps, so there is nothing to persist beyond the rows the generator
// already wrote.
func (s *DBState) Flush(context.Context) error { return nil }

func (s *DBState) Stats() StateStats {
	byType := make(map[model.ProductType]int)
	for _, info := range s.index {
		byType[info.GroupType]++
	}
	return StateStats{
		NGroupedObservations: len(s.grouped),
		NGroups:              len(s.index),
		GroupsByType:         byType,
	}
}
