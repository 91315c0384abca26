package assoc

import (
	"fmt"

	"github.com/toltec-astro/tolteca-catalog/internal/identity"
	"github.com/toltec-astro/tolteca-catalog/internal/model"
)

// CalGroupCollator groups a VNA sweep start with the target sweeps
// that follow it into a calibration sequence. Built on groupsByPosition,
// not a CollateByPosition base class — reuse here is by composition.
type CalGroupCollator struct{}

func (CalGroupCollator) MakeGroups(observations []model.DataProduct) []Group {
	groups := groupsByPosition(observations, calSweepPosition)
	return filterGroups(groups, func(g Group) bool { return rawObsCount(g) > 1 })
}

func calSweepPosition(dp model.DataProduct) Position {
	meta, ok := rawObsMeta(dp)
	if !ok {
		return PositionNone
	}
	switch {
	case meta.DataKind.Has(model.DataKindVnaSweep):
		return PositionStart
	case meta.DataKind.Has(model.DataKindTargetSweep):
		return PositionMiddle
	default:
		return PositionNone
	}
}

func (CalGroupCollator) MakeMeta(g Group) model.GroupMeta {
	master, obsnum := groupOrigin(g)
	n := rawObsCount(g)
	return model.GroupMeta{
		Name:      identity.GroupUID(master, obsnum, n, "cal"),
		Master:    master,
		Obsnum:    obsnum,
		NItems:    n,
		Suffix:    "cal",
		MemberPKs: memberPKs(g),
	}
}

func (CalGroupCollator) ProductType() model.ProductType { return model.ProductCalGroup }
func (CalGroupCollator) AssocType() model.AssocType     { return model.AssocCalGroupRawObs }
func (CalGroupCollator) CandidateKey(meta model.GroupMeta) string {
	return fmt.Sprintf("dp_cal_group_%d_%s", meta.Obsnum, meta.Master)
}

// DriveFitCollator groups target-sweep observations sharing
// (obsnum, master), used to characterize detector drive response.
// Built on groupsByEqualMetadata.
type DriveFitCollator struct{}

func (DriveFitCollator) MakeGroups(observations []model.DataProduct) []Group {
	groups := groupsByEqualMetadata(observations, isTargetSweep, driveFitKey)
	return filterGroups(groups, func(g Group) bool { return rawObsCount(g) > 1 })
}

func isTargetSweep(dp model.DataProduct) bool {
	meta, ok := rawObsMeta(dp)
	return ok && meta.DataKind.Has(model.DataKindTargetSweep)
}

func driveFitKey(dp model.DataProduct) (string, bool) {
	meta, ok := rawObsMeta(dp)
	if !ok {
		return "", false
	}
	return fmt.Sprintf("%d\x1f%s", meta.Obsnum, meta.Master), true
}

func (DriveFitCollator) MakeMeta(g Group) model.GroupMeta {
	master, obsnum := groupOrigin(g)
	n := rawObsCount(g)
	return model.GroupMeta{
		Name:      identity.GroupUID(master, obsnum, n, "drivefit"),
		Master:    master,
		Obsnum:    obsnum,
		NItems:    n,
		Suffix:    "drivefit",
		MemberPKs: memberPKs(g),
	}
}

func (DriveFitCollator) ProductType() model.ProductType { return model.ProductDriveFit }
func (DriveFitCollator) AssocType() model.AssocType     { return model.AssocDriveFitRawObs }
func (DriveFitCollator) CandidateKey(meta model.GroupMeta) string {
	return fmt.Sprintf("dp_drivefit_%d_%s", meta.Obsnum, meta.Master)
}

// consecutiveObsGoalCollator is the shared shape of FocusGroupCollator
// and AstigmatismGroupCollator: both are "by consecutive obsnum with
// obs-goal filter" collators differing only in allowed obs_goal
// values, product type, and name suffix. Composed rather than
// inherited.
type consecutiveObsGoalCollator struct {
	allowedGoals map[string]bool
	suffix       string
	productType  model.ProductType
	assocType    model.AssocType
}

func (c consecutiveObsGoalCollator) MakeGroups(observations []model.DataProduct) []Group {
	return groupsByConsecutiveObsnum(observations, func(dp model.DataProduct) bool {
		meta, ok := rawObsMeta(dp)
		return ok && c.allowedGoals[meta.ObsGoal]
	})
}

func (c consecutiveObsGoalCollator) MakeMeta(g Group) model.GroupMeta {
	if len(g.Items) == 0 {
		return model.GroupMeta{Master: "toltec", Suffix: c.suffix}
	}
	first, _ := rawObsMeta(g.Items[0])
	last, _ := rawObsMeta(g.Items[len(g.Items)-1])
	master := first.Master
	if master == "" {
		master = "toltec"
	}
	start, end := first.Obsnum, last.Obsnum
	n := len(g.Items)

	var name string
	if start == end {
		name = identity.GroupUID(master, start, n, c.suffix)
	} else {
		name = fmt.Sprintf("%s-%dto%d-g%d-%s", master, start, end, n, c.suffix)
	}

	return model.GroupMeta{
		Name:        name,
		Master:      master,
		Obsnum:      start,
		StartObsnum: start,
		EndObsnum:   end,
		NItems:      n,
		Suffix:      c.suffix,
		MemberPKs:   memberPKs(g),
	}
}

func (c consecutiveObsGoalCollator) ProductType() model.ProductType { return c.productType }
func (c consecutiveObsGoalCollator) AssocType() model.AssocType     { return c.assocType }
func (c consecutiveObsGoalCollator) CandidateKey(meta model.GroupMeta) string {
	return fmt.Sprintf("%s_%d", c.productType, meta.Obsnum)
}

// FocusGroupCollator groups consecutive obsnums with obs_goal=focus.
func FocusGroupCollator() Collator {
	return consecutiveObsGoalCollator{
		allowedGoals: map[string]bool{"focus": true},
		suffix:       "focus",
		productType:  model.ProductFocusGroup,
		assocType:    model.AssocFocusGroupRawObs,
	}
}

// AstigmatismGroupCollator groups consecutive obsnums with
// obs_goal in {astig, astigmatism}.
func AstigmatismGroupCollator() Collator {
	return consecutiveObsGoalCollator{
		allowedGoals: map[string]bool{"astig": true, "astigmatism": true},
		suffix:       "astig",
		productType:  model.ProductAstigGroup,
		assocType:    model.AssocAstigGroupRawObs,
	}
}

// groupOrigin returns the (master, obsnum) of a group's first item,
// the identifying pair every collator's name and candidate key use.
func groupOrigin(g Group) (string, int) {
	if len(g.Items) == 0 {
		return "toltec", 0
	}
	meta, ok := rawObsMeta(g.Items[0])
	if !ok {
		return "toltec", 0
	}
	master := meta.Master
	if master == "" {
		master = "toltec"
	}
	return master, meta.Obsnum
}

func memberPKs(g Group) []int64 {
	pks := make([]int64, len(g.Items))
	for i, item := range g.Items {
		pks[i] = item.PK
	}
	return pks
}

// DefaultCollators is the fixed collator pipeline the generator (C10)
// applies to every batch.
func DefaultCollators() []Collator {
	return []Collator{
		CalGroupCollator{},
		DriveFitCollator{},
		FocusGroupCollator(),
		AstigmatismGroupCollator(),
	}
}
