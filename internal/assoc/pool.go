// Package assoc implements the incremental association engine: the
// in-memory observation pool (C8), the pluggable grouping collators
// (C9), the association generator that drives them against a batch
// (C10), and the state backends that make generation incremental
// (C11).
package assoc

import "github.com/toltec-astro/tolteca-catalog/internal/model"

// Row is the uniform row-oriented projection of one observation's
// metadata, extracted once when the Pool is built so filtering never
// has to re-type-assert the polymorphic DataProduct.Metadata.
type Row struct {
	PK        int64
	Obsnum    *int
	Subobsnum *int
	Scannum   *int
	Master    *string
	RoachID   *int
	DataKind  *model.ToltecDataKind
	ObsGoal   *string
	Interface *string
}

// Candidate is one unique combination of grouped field values, with
// the count of observations sharing it.
type Candidate struct {
	Values map[string]any
	Count  int
}

// Pool is a materialized, read-only, in-memory batch of observation
// rows built from a list of DataProducts. Immutable once built; a
// caller that needs a subset builds a new Pool over the filtered
// DataProduct slice rather than mutating this one.
type Pool struct {
	rows []Row
	byPK map[int64]model.DataProduct
}

// NewPool builds a Pool from a batch of DataProducts. Non-raw-obs
// products (groups, reduced obs) simply project to all-nil fields;
// callers are expected to have already filtered to dp_raw_obs.
func NewPool(observations []model.DataProduct) *Pool {
	rows := make([]Row, 0, len(observations))
	byPK := make(map[int64]model.DataProduct, len(observations))
	for _, dp := range observations {
		rows = append(rows, rowFor(dp))
		byPK[dp.PK] = dp
	}
	return &Pool{rows: rows, byPK: byPK}
}

func rowFor(dp model.DataProduct) Row {
	row := Row{PK: dp.PK}
	meta, ok := dp.Metadata.(model.RawObsMeta)
	if !ok {
		return row
	}
	row.Obsnum = &meta.Obsnum
	row.Subobsnum = &meta.Subobsnum
	row.Scannum = &meta.Scannum
	row.Master = &meta.Master
	row.DataKind = &meta.DataKind
	if meta.ObsGoal != "" {
		row.ObsGoal = &meta.ObsGoal
	}
	// RoachID/Interface are per-source attributes (RoachInterfaceMeta),
	// not part of RawObsMeta; they stay nil at the product-pool level,
	// present as columns but only populated when a caller joins in
	// source metadata.
	return row
}

// Len reports the number of rows in the pool.
func (p *Pool) Len() int { return len(p.rows) }

// Rows returns the pool's rows in build order.
func (p *Pool) Rows() []Row { return p.rows }

// FilterBy ANDs together equality predicates over the pool's
// projected fields. A nil value in criteria means "field is null".
// Unrecognized field names match nothing, since the closed projection
// has no such key.
func (p *Pool) FilterBy(criteria map[string]any) []Row {
	out := make([]Row, 0, len(p.rows))
	for _, row := range p.rows {
		if rowMatches(row, criteria) {
			out = append(out, row)
		}
	}
	return out
}

func rowMatches(row Row, criteria map[string]any) bool {
	for key, want := range criteria {
		got, present := fieldValue(row, key)
		if want == nil {
			if present {
				return false
			}
			continue
		}
		if !present || got != want {
			return false
		}
	}
	return true
}

// fieldValue returns the row's value for key, dereferenced, and
// whether it is present (non-nil).
func fieldValue(row Row, key string) (any, bool) {
	switch key {
	case "obsnum":
		if row.Obsnum == nil {
			return nil, false
		}
		return *row.Obsnum, true
	case "subobsnum":
		if row.Subobsnum == nil {
			return nil, false
		}
		return *row.Subobsnum, true
	case "scannum":
		if row.Scannum == nil {
			return nil, false
		}
		return *row.Scannum, true
	case "master":
		if row.Master == nil {
			return nil, false
		}
		return *row.Master, true
	case "roachid":
		if row.RoachID == nil {
			return nil, false
		}
		return *row.RoachID, true
	case "data_kind":
		if row.DataKind == nil {
			return nil, false
		}
		return *row.DataKind, true
	case "obs_goal":
		if row.ObsGoal == nil {
			return nil, false
		}
		return *row.ObsGoal, true
	case "interface":
		if row.Interface == nil {
			return nil, false
		}
		return *row.Interface, true
	default:
		return nil, false
	}
}

// ExtractCandidates returns the unique combinations of the named
// fields present in the pool, each with its observation count.
func (p *Pool) ExtractCandidates(groupBy []string) []Candidate {
	order := make([]string, 0)
	counts := make(map[string]int)
	values := make(map[string]map[string]any)
	for _, row := range p.rows {
		keyParts := make([]string, len(groupBy))
		vals := make(map[string]any, len(groupBy))
		for i, field := range groupBy {
			v, _ := fieldValue(row, field)
			vals[field] = v
			keyParts[i] = candidateKeyPart(v)
		}
		key := candidateKey(keyParts)
		if _, ok := counts[key]; !ok {
			order = append(order, key)
			values[key] = vals
		}
		counts[key]++
	}
	out := make([]Candidate, 0, len(order))
	for _, key := range order {
		out = append(out, Candidate{Values: values[key], Count: counts[key]})
	}
	return out
}

func candidateKeyPart(v any) string {
	if v == nil {
		return "\x00nil"
	}
	return toString(v)
}

func candidateKey(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += "\x1f"
		}
		out += p
	}
	return out
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case int:
		return itoa(t)
	case model.ToltecDataKind:
		return itoa(int(t))
	default:
		return ""
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// GetObservation returns the full DataProduct for pk, if present.
func (p *Pool) GetObservation(pk int64) (model.DataProduct, bool) {
	dp, ok := p.byPK[pk]
	return dp, ok
}

// GetObservations returns the full DataProducts for pks, dropping any
// not present in the pool.
func (p *Pool) GetObservations(pks []int64) []model.DataProduct {
	out := make([]model.DataProduct, 0, len(pks))
	for _, pk := range pks {
		if dp, ok := p.byPK[pk]; ok {
			out = append(out, dp)
		}
	}
	return out
}
