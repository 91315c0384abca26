package obsquery

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/toltec-astro/tolteca-catalog/internal/catalogerr"
	"github.com/toltec-astro/tolteca-catalog/internal/filenameparser"
	"github.com/toltec-astro/tolteca-catalog/internal/logging"
	"github.com/toltec-astro/tolteca-catalog/internal/model"
)

// Store is the subset of catalog.Store the query layer reads from.
type Store interface {
	ListProductsByType(ctx context.Context, typ model.ProductType) ([]model.DataProduct, error)
	ListSourcesForProduct(ctx context.Context, dataProdFK int64) ([]model.DataProductSource, error)
	ListLocations(ctx context.Context) ([]model.Location, error)
}

// SourceInfo is one row of a raw-obs source table: the quartet plus
// the physical source file it resolves to. Mirrors the column set a
// caller expects for file-API interop (source, interface, roach,
// master, obsnum, subobsnum, scannum, file timestamp/suffix/ext, and
// the three UID conventions).
type SourceInfo struct {
	Source    string
	Interface string
	Roach     *int
	Master    string
	Obsnum    int
	Subobsnum int
	Scannum   int

	FileTimestamp *time.Time
	FileSuffix    string
	FileExt       string

	UIDObs       string
	UIDRawObs    string
	UIDRawObsFile string
}

// Filter narrows a raw-obs source query. Zero value (every field
// unset) matches everything. List/Range filters on subobsnum/scannum
// cannot be pushed into an equality lookup, so they are applied in
// memory after the base scan.
type Filter struct {
	Master    string
	HasMaster bool

	Obsnum    int
	HasObsnum bool

	Subobsnum     int
	HasSubobsnum  bool
	SubobsnumList []int
	SubobsnumRange *IntRange

	Scannum     int
	HasScannum  bool
	ScannumList []int
	ScannumRange *IntRange

	Interface    string
	HasInterface bool

	RaiseOnMultiple bool
	RaiseOnEmpty    bool
}

// FilterFromSpec builds a Filter from a parsed Spec, translating
// roach to an interface name ("toltec{k}") per spec §4.11. Explicit
// override fields take precedence over the parsed spec when both are
// set; callers apply overrides through GetRawObsInfoTable's filter
// argument, which mergeFilter lays over this result, rather than by
// mutating the Spec.
func FilterFromSpec(spec Spec) Filter {
	f := Filter{
		Master: spec.Master, HasMaster: spec.HasMaster,
		Obsnum: spec.Obsnum, HasObsnum: spec.HasObsnum,
		Subobsnum: spec.Subobsnum, HasSubobsnum: spec.HasSubobsnum,
		SubobsnumList: spec.SubobsnumList, SubobsnumRange: spec.SubobsnumRange,
		Scannum: spec.Scannum, HasScannum: spec.HasScannum,
		ScannumList: spec.ScannumList, ScannumRange: spec.ScannumRange,
	}
	if spec.HasRoach {
		f.Interface = fmt.Sprintf("toltec%d", spec.Roach)
		f.HasInterface = true
	}
	return f
}

// Query is the read-only API over the catalog's raw-obs sources: spec
// parsing plus the two resolution entry points (by spec/filter, or by
// latest obsnum). Results are scoped to locations whose label has
// LocationLabel as a prefix, matching the C2/C5 multi-location
// precedence convention.
type Query struct {
	store               Store
	locationLabel       string
	subobsnumSliceBound int
	scannumSliceBound   int
	zl                  *zap.Logger
}

// Option configures a Query at construction time.
type Option func(*Query)

// WithLocationLabel scopes results to locations whose label has prefix
// as a prefix. Empty (the default) matches every location.
func WithLocationLabel(prefix string) Option {
	return func(q *Query) { q.locationLabel = prefix }
}

// WithSliceBounds sets the materialization bound used to test
// membership in an unbounded subobsnum/scannum range (spec §4.11's
// stated limitation: a slice with an open stop is checked against
// [0, bound) rather than evaluated symbolically).
func WithSliceBounds(subobsnumBound, scannumBound int) Option {
	return func(q *Query) {
		q.subobsnumSliceBound = subobsnumBound
		q.scannumSliceBound = scannumBound
	}
}

// NewQuery builds a Query over store.
func NewQuery(store Store, opts ...Option) *Query {
	q := &Query{store: store, subobsnumSliceBound: 100, scannumSliceBound: 10000, zl: logging.Get(logging.ComponentObsQuery)}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// GetRawObsInfoTable resolves specString (see ParseObsSpec) into a
// Filter, then runs it. An empty specString means "latest observation"
// matching the filter's other fields.
func (q *Query) GetRawObsInfoTable(ctx context.Context, specString string, filter Filter) ([]SourceInfo, error) {
	spec := ParseObsSpec(specString)
	if spec.Filepath != "" {
		q.zl.Warn("obs-spec resolved to a filesystem path; path resolution is not implemented", zap.String("filepath", spec.Filepath))
		spec = Spec{}
	}
	merged := mergeFilter(FilterFromSpec(spec), filter)
	return q.Resolve(ctx, merged)
}

// mergeFilter lets explicit fields in override win over the
// spec-derived base, field by field.
func mergeFilter(base, override Filter) Filter {
	out := base
	if override.HasMaster {
		out.Master, out.HasMaster = override.Master, true
	}
	if override.HasObsnum {
		out.Obsnum, out.HasObsnum = override.Obsnum, true
	}
	if override.HasSubobsnum {
		out.Subobsnum, out.HasSubobsnum = override.Subobsnum, true
		out.SubobsnumList, out.SubobsnumRange = nil, nil
	}
	if override.HasScannum {
		out.Scannum, out.HasScannum = override.Scannum, true
		out.ScannumList, out.ScannumRange = nil, nil
	}
	if override.HasInterface {
		out.Interface, out.HasInterface = override.Interface, true
	}
	out.RaiseOnMultiple = out.RaiseOnMultiple || override.RaiseOnMultiple
	out.RaiseOnEmpty = out.RaiseOnEmpty || override.RaiseOnEmpty
	return out
}

// Resolve runs filter against the catalog and returns the matching
// source rows. All filtering is in memory over the full raw-obs list:
// master, obsnum and exact or list subobsnum/scannum are checked per
// product (matchesQuartet); interface and range filters are checked
// per source (sourceToInfo).
func (q *Query) Resolve(ctx context.Context, filter Filter) ([]SourceInfo, error) {
	products, err := q.store.ListProductsByType(ctx, model.ProductRawObs)
	if err != nil {
		return nil, fmt.Errorf("obsquery: list raw obs: %w", err)
	}

	locationPrefixes, err := q.allowedLocations(ctx)
	if err != nil {
		return nil, err
	}

	var rows []SourceInfo
	for _, dp := range products {
		meta, ok := dp.Metadata.(model.RawObsMeta)
		if !ok {
			continue
		}
		if !matchesQuartet(meta, filter) {
			continue
		}

		sources, err := q.store.ListSourcesForProduct(ctx, dp.PK)
		if err != nil {
			return nil, fmt.Errorf("obsquery: list sources for product %d: %w", dp.PK, err)
		}
		for _, src := range sources {
			if !q.locationAllowed(src.LocationFK, locationPrefixes) {
				continue
			}
			info, ok := q.sourceToInfo(src, meta, filter)
			if !ok {
				continue
			}
			rows = append(rows, info)
		}
	}

	if filter.RaiseOnMultiple && len(rows) > 1 {
		return nil, catalogerr.New(catalogerr.Ambiguous, "Resolve", fmt.Errorf("%d sources matched", len(rows)))
	}
	if filter.RaiseOnEmpty && len(rows) == 0 {
		return nil, catalogerr.New(catalogerr.NotFound, "Resolve", fmt.Errorf("no sources matched"))
	}
	return rows, nil
}

// GetRawObsLatest finds the maximum obsnum among raw-obs products
// matching master (iface is not considered for the maximum), then
// delegates to Resolve for that obsnum with master and iface as
// filters. Returns catalogerr.NotFound if no raw-obs product exists
// for master.
func (q *Query) GetRawObsLatest(ctx context.Context, master, iface string) ([]SourceInfo, error) {
	products, err := q.store.ListProductsByType(ctx, model.ProductRawObs)
	if err != nil {
		return nil, fmt.Errorf("obsquery: list raw obs: %w", err)
	}

	latest := -1
	for _, dp := range products {
		meta, ok := dp.Metadata.(model.RawObsMeta)
		if !ok {
			continue
		}
		if master != "" && meta.Master != master {
			continue
		}
		if meta.Obsnum > latest {
			latest = meta.Obsnum
		}
	}
	if latest < 0 {
		return nil, catalogerr.New(catalogerr.NotFound, "GetRawObsLatest", fmt.Errorf("no raw observations for master=%q interface=%q", master, iface))
	}

	filter := Filter{Obsnum: latest, HasObsnum: true}
	if master != "" {
		filter.Master, filter.HasMaster = master, true
	}
	if iface != "" {
		filter.Interface, filter.HasInterface = iface, true
	}
	return q.Resolve(ctx, filter)
}

func matchesQuartet(meta model.RawObsMeta, f Filter) bool {
	if f.HasMaster && meta.Master != f.Master {
		return false
	}
	if f.HasObsnum && meta.Obsnum != f.Obsnum {
		return false
	}
	if f.HasSubobsnum && meta.Subobsnum != f.Subobsnum {
		return false
	}
	if f.SubobsnumList != nil && !containsInt(f.SubobsnumList, meta.Subobsnum) {
		return false
	}
	if f.HasScannum && meta.Scannum != f.Scannum {
		return false
	}
	if f.ScannumList != nil && !containsInt(f.ScannumList, meta.Scannum) {
		return false
	}
	return true
}

// subobsnumInRange/scannumInRange are applied after the quartet match
// since they need the Query's configured materialization bound.
func (q *Query) subobsnumInRange(v int, f Filter) bool {
	if f.SubobsnumRange == nil {
		return true
	}
	return f.SubobsnumRange.contains(v, q.subobsnumSliceBound)
}

func (q *Query) scannumInRange(v int, f Filter) bool {
	if f.ScannumRange == nil {
		return true
	}
	return f.ScannumRange.contains(v, q.scannumSliceBound)
}

func containsInt(list []int, v int) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

func (q *Query) allowedLocations(ctx context.Context) (map[int64]bool, error) {
	if q.locationLabel == "" {
		return nil, nil
	}
	locations, err := q.store.ListLocations(ctx)
	if err != nil {
		return nil, fmt.Errorf("obsquery: list locations: %w", err)
	}
	allowed := make(map[int64]bool)
	for _, loc := range locations {
		if strings.HasPrefix(loc.Label, q.locationLabel) {
			allowed[loc.PK] = true
		}
	}
	return allowed, nil
}

func (q *Query) locationAllowed(locationFK int64, allowed map[int64]bool) bool {
	if allowed == nil {
		return true
	}
	return allowed[locationFK]
}

// sourceToInfo applies the interface filter and the in-memory
// subobsnum/scannum range checks, then builds the display row.
func (q *Query) sourceToInfo(src model.DataProductSource, meta model.RawObsMeta, filter Filter) (SourceInfo, bool) {
	iface := ""
	var roach *int
	if rm, ok := src.Metadata.(model.RoachInterfaceMeta); ok {
		iface = rm.Interface
		id := rm.RoachID
		roach = &id
	}

	if filter.HasInterface && iface != filter.Interface {
		return SourceInfo{}, false
	}
	if !q.subobsnumInRange(meta.Subobsnum, filter) {
		return SourceInfo{}, false
	}
	if !q.scannumInRange(meta.Scannum, filter) {
		return SourceInfo{}, false
	}

	base := filepath.Base(strings.TrimPrefix(src.SourceURI, "file://"))
	var ts *time.Time
	suffix, ext := "", filepath.Ext(base)
	if parsed := filenameparser.ParseFilename(base); parsed != nil {
		suffix = parsed.Suffix
		ext = "." + parsed.Ext
		ts = parsed.Timestamp
	}

	uidObs, uidRawObs, uidRawObsFile := buildUIDs(meta.Master, meta.Obsnum, meta.Subobsnum, meta.Scannum, iface)

	return SourceInfo{
		Source:        src.SourceURI,
		Interface:     iface,
		Roach:         roach,
		Master:        meta.Master,
		Obsnum:        meta.Obsnum,
		Subobsnum:     meta.Subobsnum,
		Scannum:       meta.Scannum,
		FileTimestamp: ts,
		FileSuffix:    suffix,
		FileExt:       ext,
		UIDObs:        uidObs,
		UIDRawObs:     uidRawObs,
		UIDRawObsFile: uidRawObsFile,
	}, true
}

// buildUIDs conditionally includes the master prefix, matching two
// historical UID conventions: one that always carries a master
// ("tcs-123456-0-0") and a masterless one ("123456-0-0").
func buildUIDs(master string, obsnum, subobsnum, scannum int, iface string) (uidObs, uidRawObs, uidRawObsFile string) {
	obsnumStr := strconv.Itoa(obsnum)
	quartet := fmt.Sprintf("%d-%d-%d", obsnum, subobsnum, scannum)
	if master != "" {
		return master + "-" + obsnumStr,
			master + "-" + quartet,
			master + "-" + quartet + "-" + iface
	}
	return obsnumStr, quartet, quartet + "-" + iface
}
