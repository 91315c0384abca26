package model

import "time"

// Location is a named physical/logical storage endpoint. Never deleted
// while referenced by a DataProductSource.
type Location struct {
	PK       int64
	Label    string
	Type     LocationType
	RootURI  string
	Priority int
	Metadata map[string]any
}

// DataProduct is one logical artifact: a raw observation quartet, a
// reduced observation, or a group product. Metadata is a tagged sum;
// the Tag field of whichever ProductMeta implementation is stored
// drives decode/encode through ProductMetaCodec.
type DataProduct struct {
	PK        int64
	Type      ProductType
	Metadata  ProductMeta
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DataProductSource is one physical file contributing to a DataProduct.
type DataProductSource struct {
	PK           int64
	SourceURI    string
	LocationFK   int64
	DataProdFK   int64
	Role         SourceRole
	Availability Availability
	SizeBytes    *int64
	Checksum     string
	Metadata     SourceMeta
}

// DataProductAssoc is a directed typed edge between two DataProducts.
type DataProductAssoc struct {
	PK            int64
	SrcFK         int64
	DstFK         int64
	AssocType     AssocType
	ProcessCtx    map[string]any
	CreatedAt     time.Time
}

// DataProductFlag is an instance of a registry Flag attached to a
// DataProduct.
type DataProductFlag struct {
	PK         int64
	DataProdFK int64
	Severity   FlagSeverity
	Name       string
	Assertion  map[string]any
	CreatedAt  time.Time
}

// ReductionTask is a declarative, idempotent processing record keyed
// by (ParamsHash, InputSetHash); see data-model invariant 4.
type ReductionTask struct {
	PK           int64
	ParamsHash   string
	InputSetHash string
	Status       TaskStatus
	Params       map[string]any
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TaskInput and TaskOutput are join rows attaching DataProducts to a
// ReductionTask as inputs/outputs.
type TaskInput struct {
	PK         int64
	TaskFK     int64
	DataProdFK int64
}

type TaskOutput struct {
	PK         int64
	TaskFK     int64
	DataProdFK int64
}

// EventLog is one append-only audit record of a material state
// transition.
type EventLog struct {
	PK         int64
	EventType  string
	EntityType string
	EntityID   int64
	Payload    map[string]any
	OccurredAt time.Time
}
