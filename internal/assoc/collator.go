package assoc

import "github.com/toltec-astro/tolteca-catalog/internal/model"

// GroupFlag records how a Group was formed. The zero value is purely
// implicit; ExplicitStart/ExplicitEnd are set when a boundary
// observation opened or closed the group. CollateByPosition groups
// are only kept when at least one explicit bit is set.
type GroupFlag int

const (
	FlagImplicit      GroupFlag = 0
	FlagExplicitStart GroupFlag = 1 << 0
	FlagExplicitEnd   GroupFlag = 1 << 1
)

const flagExplicitAny = FlagExplicitStart | FlagExplicitEnd

// Position is where an observation sits in a by-position sequence.
type Position int

const (
	PositionNone Position = iota
	PositionStart
	PositionMiddle
	PositionEnd
)

// Group is one candidate grouping of raw observations before it is
// turned into a group DataProduct: its flag and its items. The group's
// metadata is not stored here; Collator.MakeMeta builds it from Items.
type Group struct {
	Flag  GroupFlag
	Items []model.DataProduct
}

func (g *Group) append(item model.DataProduct, addFlag GroupFlag) {
	g.Flag |= addFlag
	g.Items = append(g.Items, item)
}

// Collator is the pluggable grouping-strategy surface: analyze an
// ordered sequence of raw observations, emit Groups, and name the
// group/association types it produces.
type Collator interface {
	// MakeGroups analyzes observations (already time-ordered) and
	// returns the groups this collator identifies.
	MakeGroups(observations []model.DataProduct) []Group
	// MakeMeta builds the typed GroupMeta for one identified group.
	MakeMeta(g Group) model.GroupMeta
	// ProductType is the dp_* type this collator's groups are stored as.
	ProductType() model.ProductType
	// AssocType is the dpa_* type linking the group to its members.
	AssocType() model.AssocType
	// CandidateKey builds the incremental-mode group identity from a
	// group's metadata, the incremental-mode group identity.
	CandidateKey(meta model.GroupMeta) string
}

func rawObsMeta(dp model.DataProduct) (model.RawObsMeta, bool) {
	meta, ok := dp.Metadata.(model.RawObsMeta)
	return meta, ok
}

// groupsByPosition is the "sequence with explicit boundaries" base
// behavior: positionOf classifies each observation as
// Start/Middle/End/None; None means the observation is filtered out
// entirely. A Start opens a new group; an End closes the current one;
// everything else appends to whatever group is currently open. Only
// groups that received at least one explicit boundary are returned.
func groupsByPosition(observations []model.DataProduct, positionOf func(model.DataProduct) Position) []Group {
	groups := []Group{{}}
	for _, obs := range observations {
		pos := positionOf(obs)
		switch pos {
		case PositionNone:
			continue
		case PositionStart:
			groups = append(groups, Group{})
			groups[len(groups)-1].append(obs, FlagExplicitStart)
		case PositionEnd:
			last := &groups[len(groups)-1]
			if last.Flag&FlagExplicitEnd != 0 {
				continue
			}
			last.append(obs, FlagExplicitEnd)
			groups = append(groups, Group{})
		default: // PositionMiddle
			last := &groups[len(groups)-1]
			if last.Flag&FlagExplicitEnd != 0 {
				continue
			}
			last.append(obs, FlagImplicit)
		}
	}

	out := make([]Group, 0, len(groups))
	for _, g := range groups {
		if len(g.Items) > 0 && g.Flag&flagExplicitAny != 0 {
			out = append(out, g)
		}
	}
	return out
}

// groupsByEqualMetadata is the "by equal metadata" base behavior: keyOf
// extracts a grouping key from each eligible observation (ok=false
// filters the observation out entirely); observations sharing a key
// become one group. Buckets of size 1 are discarded by the caller via
// filterGroups, matching each concrete collator's own >1 threshold.
func groupsByEqualMetadata(observations []model.DataProduct, eligible func(model.DataProduct) bool, keyOf func(model.DataProduct) (string, bool)) []Group {
	order := make([]string, 0)
	byKey := make(map[string]*Group)
	for _, obs := range observations {
		if !eligible(obs) {
			continue
		}
		key, ok := keyOf(obs)
		if !ok {
			continue
		}
		g, seen := byKey[key]
		if !seen {
			g = &Group{}
			byKey[key] = g
			order = append(order, key)
		}
		g.append(obs, FlagImplicit)
	}
	out := make([]Group, 0, len(order))
	for _, key := range order {
		out = append(out, *byKey[key])
	}
	return out
}

// groupsByConsecutiveObsnum is the "by consecutive obsnum with
// obs-goal filter" base behavior: eligible observations are sorted by
// (master, obsnum) and split into runs of consecutive obsnum within a
// single master. Runs shorter than 2 are dropped.
func groupsByConsecutiveObsnum(observations []model.DataProduct, eligible func(model.DataProduct) bool) []Group {
	filtered := make([]model.DataProduct, 0, len(observations))
	for _, obs := range observations {
		if eligible(obs) {
			filtered = append(filtered, obs)
		}
	}
	if len(filtered) == 0 {
		return nil
	}
	sortByMasterObsnum(filtered)

	var groups []Group
	var current Group
	havePrev := false
	var prevMaster string
	var prevObsnum int

	flush := func() {
		if len(current.Items) > 0 {
			groups = append(groups, current)
		}
		current = Group{}
	}

	for _, obs := range filtered {
		meta, ok := rawObsMeta(obs)
		if !ok {
			continue
		}
		if !havePrev || meta.Master != prevMaster || meta.Obsnum != prevObsnum+1 {
			flush()
		}
		current.append(obs, FlagImplicit)
		prevMaster = meta.Master
		prevObsnum = meta.Obsnum
		havePrev = true
	}
	flush()

	out := make([]Group, 0, len(groups))
	for _, g := range groups {
		if len(g.Items) >= 2 {
			out = append(out, g)
		}
	}
	return out
}

func sortByMasterObsnum(obs []model.DataProduct) {
	// Small batches (a few hundred observations per generation batch);
	// insertion sort keeps this allocation-free and stable, matching
	// the stable .sort() the original relies on for tie-breaking.
	for i := 1; i < len(obs); i++ {
		j := i
		for j > 0 && less(obs[j], obs[j-1]) {
			obs[j], obs[j-1] = obs[j-1], obs[j]
			j--
		}
	}
}

func less(a, b model.DataProduct) bool {
	ma, _ := rawObsMeta(a)
	mb, _ := rawObsMeta(b)
	if ma.Master != mb.Master {
		return ma.Master < mb.Master
	}
	return ma.Obsnum < mb.Obsnum
}

// filterGroups keeps only groups matching keep.
func filterGroups(groups []Group, keep func(Group) bool) []Group {
	out := make([]Group, 0, len(groups))
	for _, g := range groups {
		if keep(g) {
			out = append(out, g)
		}
	}
	return out
}

// rawObsCount counts dp_raw_obs items in a group (every item in these
// batches already is one, but this mirrors the source's defensive
// count in case a future collator mixes product types into a group).
func rawObsCount(g Group) int {
	n := 0
	for _, item := range g.Items {
		if item.Type == model.ProductRawObs {
			n++
		}
	}
	return n
}
