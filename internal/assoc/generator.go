package assoc

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/toltec-astro/tolteca-catalog/internal/eventlog"
	"github.com/toltec-astro/tolteca-catalog/internal/logging"
	"github.com/toltec-astro/tolteca-catalog/internal/model"
)

// Store is the subset of catalog.Store the generator needs to create
// group products and the associations linking them to their members.
type Store interface {
	CreateGroup(ctx context.Context, typ model.ProductType, meta model.GroupMeta) (model.DataProduct, error)
	UpdateGroupMembers(ctx context.Context, pk int64, memberPKs []int64) error
	CreateAssoc(ctx context.Context, srcPK, dstPK int64, assocType model.AssocType, processCtx map[string]any) (model.DataProductAssoc, error)
	GetProduct(ctx context.Context, pk int64) (model.DataProduct, error)
}

// AssociationStats reports the outcome of one generation pass.
type AssociationStats struct {
	ObservationsScanned        int
	ObservationsAlreadyGrouped int
	ObservationsProcessed      int
	GroupsCreated              int
	GroupsUpdated              int
	AssociationsCreated        int
	GroupsByType               map[model.ProductType]int
}

func (s AssociationStats) String() string {
	return fmt.Sprintf("observations_scanned=%d observations_already_grouped=%d observations_processed=%d groups_created=%d groups_updated=%d associations_created=%d",
		s.ObservationsScanned, s.ObservationsAlreadyGrouped, s.ObservationsProcessed, s.GroupsCreated, s.GroupsUpdated, s.AssociationsCreated)
}

func pksOf(pool *Pool) []int64 {
	pks := make([]int64, pool.Len())
	for i, row := range pool.Rows() {
		pks[i] = row.PK
	}
	return pks
}

func (s *AssociationStats) addGroupType(typ model.ProductType, n int) {
	if n == 0 {
		return
	}
	if s.GroupsByType == nil {
		s.GroupsByType = make(map[model.ProductType]int)
	}
	s.GroupsByType[typ] += n
}

// Generator applies a fixed pipeline of Collators to a batch of raw
// observations, creating group products and the typed associations
// linking them to their members. With a non-nil State it runs
// incrementally: already-grouped observations are skipped and
// existing groups grow instead of being recreated.
type Generator struct {
	store     Store
	state     State
	collators []Collator
	events    *eventlog.Logger
	zl        *zap.Logger
}

// New builds a Generator over the default collator pipeline. state
// may be nil, in which case every call behaves as non-incremental
// regardless of the incremental argument.
func New(store Store, state State, events *eventlog.Logger) *Generator {
	return NewWithCollators(store, state, events, DefaultCollators())
}

// NewWithCollators builds a Generator over an explicit collator list,
// for callers that want to run a subset of the default pipeline.
func NewWithCollators(store Store, state State, events *eventlog.Logger, collators []Collator) *Generator {
	return &Generator{
		store:     store,
		state:     state,
		collators: collators,
		events:    events,
		zl:        logging.Get(logging.ComponentAssoc),
	}
}

// GenerateFromBatch analyzes a pre-loaded, time-ordered batch of raw
// observations and creates the groups/associations every collator
// identifies. The full batch is always handed to the collators, even
// in incremental mode: a run like a focus sequence can only be
// recognized as continuing when the caller's window still includes
// its earlier members alongside the new one. Incremental mode instead
// changes what happens with what the collators find: a group whose
// candidate key already exists in state grows rather than duplicates,
// and only members state hasn't already marked grouped get a new
// association edge. commit is accepted for parity with the streaming
// caller's batching contract; catalog.Store writes commit per call,
// so there is no transaction boundary for this method to defer.
func (g *Generator) GenerateFromBatch(ctx context.Context, observations []model.DataProduct, commit bool, incremental bool) (AssociationStats, error) {
	stats := AssociationStats{ObservationsScanned: len(observations)}
	if len(observations) == 0 {
		return stats, nil
	}

	useState := incremental && g.state != nil
	batch := observations

	if useState {
		pks := pksOf(NewPool(observations))
		ungrouped := g.state.GetUngrouped(pks)
		stats.ObservationsAlreadyGrouped = len(pks) - len(ungrouped)
		if len(ungrouped) == 0 {
			return stats, nil
		}
	}
	stats.ObservationsProcessed = len(observations) - stats.ObservationsAlreadyGrouped

	for _, collator := range g.collators {
		var created, updated, assocs int
		var err error
		if useState {
			created, updated, assocs, err = g.processCollatorIncremental(ctx, collator, batch)
		} else {
			created, assocs, err = g.processCollator(ctx, collator, batch)
		}
		if err != nil {
			return stats, err
		}
		stats.GroupsCreated += created
		stats.GroupsUpdated += updated
		stats.AssociationsCreated += assocs
		stats.addGroupType(collator.ProductType(), created+updated)
	}

	if useState {
		if err := g.state.Flush(ctx); err != nil {
			return stats, fmt.Errorf("assoc: flush state: %w", err)
		}
	}

	g.zl.Info("association batch generated", zap.Any("stats", stats))
	return stats, nil
}

// processCollator is the non-incremental path: every group a collator
// identifies is created fresh, with no attempt to merge into existing
// groups.
func (g *Generator) processCollator(ctx context.Context, collator Collator, observations []model.DataProduct) (groupsCreated, assocsCreated int, err error) {
	for _, group := range collator.MakeGroups(observations) {
		meta := collator.MakeMeta(group)
		groupDP, err := g.store.CreateGroup(ctx, collator.ProductType(), meta)
		if err != nil {
			return groupsCreated, assocsCreated, fmt.Errorf("assoc: create group: %w", err)
		}
		groupsCreated++
		g.events.Emit(ctx, eventlog.EventGroupCreated, eventlog.EntityDataProduct, groupDP.PK, map[string]any{
			"product_type": string(collator.ProductType()),
			"n_members":    len(group.Items),
		})

		for _, member := range group.Items {
			if _, err := g.store.CreateAssoc(ctx, groupDP.PK, member.PK, collator.AssocType(), nil); err != nil {
				return groupsCreated, assocsCreated, fmt.Errorf("assoc: create association: %w", err)
			}
			assocsCreated++
		}
		g.events.Emit(ctx, eventlog.EventAssocCreated, eventlog.EntityDataProduct, groupDP.PK, map[string]any{
			"assoc_type": string(collator.AssocType()),
			"n_members":  len(group.Items),
		})
	}
	return groupsCreated, assocsCreated, nil
}

// processCollatorIncremental mirrors processCollator but consults
// state: a candidate key that already maps to a group grows that
// group's roster instead of creating a duplicate, and only members not
// already marked grouped get a new association row.
func (g *Generator) processCollatorIncremental(ctx context.Context, collator Collator, observations []model.DataProduct) (groupsCreated, groupsUpdated, assocsCreated int, err error) {
	for _, group := range collator.MakeGroups(observations) {
		meta := collator.MakeMeta(group)
		candidateKey := collator.CandidateKey(meta)

		existing, found := g.state.GetExistingGroup(candidateKey)

		var groupPK int64
		if found {
			groupPK = existing.GroupPK
			newMembers := memberPKs(group)
			if err := g.store.UpdateGroupMembers(ctx, groupPK, newMembers); err != nil {
				return groupsCreated, groupsUpdated, assocsCreated, fmt.Errorf("assoc: update group members: %w", err)
			}
			g.state.UpdateGroupMemberCount(candidateKey, len(newMembers))
			groupsUpdated++
			g.events.Emit(ctx, eventlog.EventGroupUpdated, eventlog.EntityDataProduct, groupPK, map[string]any{
				"product_type": string(collator.ProductType()),
				"n_members":    len(newMembers),
			})
		} else {
			groupDP, err := g.store.CreateGroup(ctx, collator.ProductType(), meta)
			if err != nil {
				return groupsCreated, groupsUpdated, assocsCreated, fmt.Errorf("assoc: create group: %w", err)
			}
			groupPK = groupDP.PK
			groupsCreated++
			g.state.RegisterGroup(GroupInfo{
				GroupPK:      groupPK,
				GroupType:    collator.ProductType(),
				CandidateKey: candidateKey,
				NMembers:     len(group.Items),
				Metadata:     meta,
			})
			g.events.Emit(ctx, eventlog.EventGroupCreated, eventlog.EntityDataProduct, groupPK, map[string]any{
				"product_type": string(collator.ProductType()),
				"n_members":    len(group.Items),
			})
		}

		for _, member := range group.Items {
			if g.state.IsGrouped(member.PK) {
				continue
			}
			if _, err := g.store.CreateAssoc(ctx, groupPK, member.PK, collator.AssocType(), nil); err != nil {
				return groupsCreated, groupsUpdated, assocsCreated, fmt.Errorf("assoc: create association: %w", err)
			}
			assocsCreated++
			g.state.MarkGrouped(member.PK)
		}
	}
	return groupsCreated, groupsUpdated, assocsCreated, nil
}

// BatchResult pairs a streaming batch's stats with any error
// encountered while processing it.
type BatchResult struct {
	Stats AssociationStats
	Err   error
}

// GenerateStreaming consumes a channel of observations in batches of
// batchSize (default 100), sending each batch's result on the returned
// channel; the final partial batch is flushed when the input closes.
// It stops after a batch that returns an error, or when ctx is
// cancelled. It makes no commits: commit is always passed as false to
// GenerateFromBatch, and there is no commit-cadence parameter.
func (g *Generator) GenerateStreaming(ctx context.Context, observations <-chan model.DataProduct, batchSize int, incremental bool) <-chan BatchResult {
	if batchSize <= 0 {
		batchSize = 100
	}
	out := make(chan BatchResult)

	go func() {
		defer close(out)
		batch := make([]model.DataProduct, 0, batchSize)

		flush := func() bool {
			if len(batch) == 0 {
				return true
			}
			stats, err := g.GenerateFromBatch(ctx, batch, false, incremental)
			select {
			case out <- BatchResult{Stats: stats, Err: err}:
			case <-ctx.Done():
				return false
			}
			batch = batch[:0]
			return err == nil
		}

		for {
			select {
			case obs, ok := <-observations:
				if !ok {
					flush()
					return
				}
				batch = append(batch, obs)
				if len(batch) >= batchSize {
					if !flush() {
						return
					}
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}
