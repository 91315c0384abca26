package assoc

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/toltec-astro/tolteca-catalog/internal/model"
)

// FSState is the filesystem-backed state: two JSON files in a state
// directory — a list of grouped pks and a candidate-key→GroupInfo map.
// Flush writes only when dirty, matching AssociationState's original
// dirty-tracking behavior.
type FSState struct {
	dir string

	grouped map[int64]bool
	index   map[string]GroupInfo

	dirtyGrouped bool
	dirtyIndex   bool
}

type groupInfoFile struct {
	GroupPK      int64           `json:"group_pk"`
	GroupType    string          `json:"group_type"`
	CandidateKey string          `json:"candidate_key"`
	NMembers     int             `json:"n_members"`
	Metadata     model.GroupMeta `json:"metadata"`
}

// NewFSState builds an FSState rooted at dir, creating it if needed,
// and loads any existing state files.
func NewFSState(ctx context.Context, dir string) (*FSState, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("assoc: create state dir %q: %w", dir, err)
	}
	s := &FSState{dir: dir}
	if err := s.Reload(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FSState) groupedPath() string { return filepath.Join(s.dir, "grouped_observations.json") }
func (s *FSState) indexPath() string   { return filepath.Join(s.dir, "group_index.json") }

func (s *FSState) Reload(context.Context) error {
	s.grouped = make(map[int64]bool)
	s.index = make(map[string]GroupInfo)
	s.dirtyGrouped = false
	s.dirtyIndex = false

	if data, err := os.ReadFile(s.groupedPath()); err == nil {
		var payload struct {
			GroupedObs []int64 `json:"grouped_obs"`
		}
		if err := json.Unmarshal(data, &payload); err != nil {
			return fmt.Errorf("assoc: parse %s: %w", s.groupedPath(), err)
		}
		for _, pk := range payload.GroupedObs {
			s.grouped[pk] = true
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("assoc: read %s: %w", s.groupedPath(), err)
	}

	if data, err := os.ReadFile(s.indexPath()); err == nil {
		var payload map[string]groupInfoFile
		if err := json.Unmarshal(data, &payload); err != nil {
			return fmt.Errorf("assoc: parse %s: %w", s.indexPath(), err)
		}
		for key, f := range payload {
			s.index[key] = GroupInfo{
				GroupPK:      f.GroupPK,
				GroupType:    model.ProductType(f.GroupType),
				CandidateKey: f.CandidateKey,
				NMembers:     f.NMembers,
				Metadata:     f.Metadata,
			}
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("assoc: read %s: %w", s.indexPath(), err)
	}

	return nil
}

func (s *FSState) IsGrouped(pk int64) bool { return s.grouped[pk] }

func (s *FSState) GetUngrouped(pks []int64) []int64 {
	out := make([]int64, 0, len(pks))
	for _, pk := range pks {
		if !s.grouped[pk] {
			out = append(out, pk)
		}
	}
	return out
}

func (s *FSState) GetExistingGroup(candidateKey string) (GroupInfo, bool) {
	info, ok := s.index[candidateKey]
	return info, ok
}

func (s *FSState) MarkGrouped(pk int64) {
	if !s.grouped[pk] {
		s.grouped[pk] = true
		s.dirtyGrouped = true
	}
}

func (s *FSState) RegisterGroup(info GroupInfo) {
	s.index[info.CandidateKey] = info
	s.dirtyIndex = true
}

func (s *FSState) UpdateGroupMemberCount(candidateKey string, n int) {
	if info, ok := s.index[candidateKey]; ok {
		info.NMembers = n
		s.index[candidateKey] = info
		s.dirtyIndex = true
	}
}

func (s *FSState) Flush(context.Context) error {
	if s.dirtyGrouped {
		pks := make([]int64, 0, len(s.grouped))
		for pk := range s.grouped {
			pks = append(pks, pk)
		}
		sort.Slice(pks, func(i, j int) bool { return pks[i] < pks[j] })
		data, err := json.MarshalIndent(struct {
			GroupedObs []int64 `json:"grouped_obs"`
		}{GroupedObs: pks}, "", "  ")
		if err != nil {
			return err
		}
		if err := os.WriteFile(s.groupedPath(), data, 0o644); err != nil {
			return fmt.Errorf("assoc: write %s: %w", s.groupedPath(), err)
		}
		s.dirtyGrouped = false
	}

	if s.dirtyIndex {
		payload := make(map[string]groupInfoFile, len(s.index))
		for key, info := range s.index {
			payload[key] = groupInfoFile{
				GroupPK:      info.GroupPK,
				GroupType:    string(info.GroupType),
				CandidateKey: info.CandidateKey,
				NMembers:     info.NMembers,
				Metadata:     info.Metadata,
			}
		}
		data, err := json.MarshalIndent(payload, "", "  ")
		if err != nil {
			return err
		}
		if err := os.WriteFile(s.indexPath(), data, 0o644); err != nil {
			return fmt.Errorf("assoc: write %s: %w", s.indexPath(), err)
		}
		s.dirtyIndex = false
	}

	return nil
}

func (s *FSState) Stats() StateStats {
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
