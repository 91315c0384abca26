// Package model defines the catalog's entities: the closed-vocabulary
// registry tables, DataProduct/DataProductSource/DataProductAssoc/
// DataProductFlag rows, reduction tasks, and the event log record.
// Polymorphic metadata is a tagged sum discriminated by a literal "tag"
// field, decoded through a central codec rather than type hierarchies.
package model

// ProductType is one row of the closed-vocabulary product-type registry.
type ProductType string

const (
	ProductRawObs      ProductType = "dp_raw_obs"
	ProductReducedObs  ProductType = "dp_reduced_obs"
	ProductCalGroup    ProductType = "dp_cal_group"
	ProductDriveFit    ProductType = "dp_drivefit"
	ProductFocusGroup  ProductType = "dp_focus_group"
	ProductAstigGroup  ProductType = "dp_astig_group"
	ProductNamedGroup  ProductType = "dp_named_group"
)

// AssocType is one row of the closed-vocabulary association-type
// registry. Allowed{Src,Dst} name the product types permitted at each
// end, enforcing invariant 3 from the data model.
type AssocType string

const (
	AssocCalGroupRawObs    AssocType = "dpa_cal_group_raw_obs"
	AssocDriveFitRawObs    AssocType = "dpa_drivefit_raw_obs"
	AssocFocusGroupRawObs  AssocType = "dpa_focus_group_raw_obs"
	AssocAstigGroupRawObs  AssocType = "dpa_astig_group_raw_obs"
	AssocRawObsCalObs      AssocType = "dpa_raw_obs_cal_obs"
	AssocReducedObsRawObs  AssocType = "dpa_reduced_obs_raw_obs"
	AssocInputSetMember    AssocType = "dpa_input_set_member"
)

// AssocTypeRule records the permitted source/destination product types
// for one association type, per data-model invariant 3.
type AssocTypeRule struct {
	AllowedSrc ProductType
	AllowedDst ProductType
}

// AssocTypeRegistry maps each closed-vocabulary association type to its
// permitted endpoint product types.
var AssocTypeRegistry = map[AssocType]AssocTypeRule{
	AssocCalGroupRawObs:   {AllowedSrc: ProductCalGroup, AllowedDst: ProductRawObs},
	AssocDriveFitRawObs:   {AllowedSrc: ProductDriveFit, AllowedDst: ProductRawObs},
	AssocFocusGroupRawObs: {AllowedSrc: ProductFocusGroup, AllowedDst: ProductRawObs},
	AssocAstigGroupRawObs: {AllowedSrc: ProductAstigGroup, AllowedDst: ProductRawObs},
	AssocRawObsCalObs:     {AllowedSrc: ProductRawObs, AllowedDst: ProductCalGroup},
	AssocReducedObsRawObs: {AllowedSrc: ProductReducedObs, AllowedDst: ProductRawObs},
	AssocInputSetMember:   {AllowedSrc: ProductNamedGroup, AllowedDst: ProductRawObs},
}

// ToltecDataKind is a bitmask over acquisition modes. C6 is the sole
// place the core OR-combines it; everywhere else it is opaque.
type ToltecDataKind int

const (
	DataKindNone ToltecDataKind = 0
)

const (
	DataKindVnaSweep ToltecDataKind = 1 << iota
	DataKindTargetSweep
	DataKindTune
	DataKindRawTimeStream
	DataKindLmtTel
)

func (k ToltecDataKind) Has(bit ToltecDataKind) bool { return k&bit != 0 }

// FlagSeverity is a closed-vocabulary severity for DataProductFlag.
type FlagSeverity string

const (
	SeverityInfo     FlagSeverity = "INFO"
	SeverityWarn     FlagSeverity = "WARN"
	SeverityBlock    FlagSeverity = "BLOCK"
	SeverityCritical FlagSeverity = "CRITICAL"
)

// LocationType is the closed-vocabulary storage-endpoint kind.
type LocationType string

const (
	LocationFilesystem LocationType = "filesystem"
	LocationObjectStore LocationType = "object-store"
	LocationHTTP        LocationType = "http"
)

// SourceRole is the closed-vocabulary role of a DataProductSource.
type SourceRole string

const (
	RolePrimary  SourceRole = "PRIMARY"
	RoleMetadata SourceRole = "METADATA"
	RoleMirror   SourceRole = "MIRROR"
	RoleTemp     SourceRole = "TEMP"
)

// Availability is the closed-vocabulary presence state of a source file.
type Availability string

const (
	Available Availability = "available"
	Missing   Availability = "missing"
	Unknown   Availability = "unknown"
)

// TaskStatus is the ReductionTask status machine: QUEUED -> RUNNING ->
// {DONE, ERROR}.
type TaskStatus string

const (
	TaskQueued  TaskStatus = "QUEUED"
	TaskRunning TaskStatus = "RUNNING"
	TaskDone    TaskStatus = "DONE"
	TaskError   TaskStatus = "ERROR"
)
