// Package obsquery implements the obs-spec DSL parser and the
// read-only query surface over raw observation sources: resolving a
// compact spec string (or explicit field overrides) to a filtered,
// flattened table of source rows.
package obsquery

import (
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/toltec-astro/tolteca-catalog/internal/logging"
)

// IntRange is a half-open [Start, Stop) range with an optional Step,
// parsed from "[start:stop:step]" slice notation. A nil bound means
// "unbounded on that side"; Step defaults to 1 when nil.
type IntRange struct {
	Start *int
	Stop  *int
	Step  *int
}

// contains reports whether v falls in the range, materializing against
// [0, bound) when a side is unbounded. bound guards against an
// unbounded slice silently matching an unreasonable span of values.
func (r IntRange) contains(v, bound int) bool {
	start, stop, step := 0, bound, 1
	if r.Start != nil {
		start = *r.Start
	}
	if r.Stop != nil {
		stop = *r.Stop
	}
	if r.Step != nil && *r.Step != 0 {
		step = *r.Step
	}
	if step > 0 {
		if v < start || v >= stop {
			return false
		}
		return (v-start)%step == 0
	}
	// Negative step: Python-slice-style descending range.
	if v > start || v <= stop {
		return false
	}
	return (start-v)%(-step) == 0
}

// Spec is the parsed form of an obs-spec string: exact field values,
// wildcard sets (List) or ranges (Range) for subobsnum/scannum, and
// the filepath escape hatch. A zero Spec means "latest observation".
type Spec struct {
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

	Roach    int
	HasRoach bool

	Filepath string
}

var masterPrefixPattern = regexp.MustCompile(`^(tcs|ics|clip|simu)-(.+)$`)

// ParseObsSpec parses spec per the obs-spec grammar:
//
//	obs_spec := [ master "-" ] token { sep token } [ "/" token { "/" token } ]
//	master   := "tcs" | "ics" | "clip" | "simu"
//	sep      := "-" | "/"
//	token    := int | "{" [ intlist ] "}" | "[" [ slice ] "]"
//
// A leading master prefix sets Master. The first token is always
// obsnum. Forward "-" advances obsnum -> subobsnum -> scannum -> roach
// in order; backward "/" jumps to the rightmost unfilled field and
// fills right-to-left: roach -> scannum -> subobsnum -> obsnum. A
// string that looks like a filesystem path (starts with "/" or ends in
// ".nc", and has no wildcard) is returned as Filepath instead. An
// empty spec means "latest observation". Malformed list/slice tokens
// are logged and ignored for that field rather than failing the parse.
func ParseObsSpec(spec string) Spec {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return Spec{}
	}

	if looksLikeFilepath(spec) {
		return Spec{Filepath: spec}
	}

	var result Spec
	if m := masterPrefixPattern.FindStringSubmatch(spec); m != nil {
		result.Master = m[1]
		result.HasMaster = true
		spec = m[2]
	}

	if !strings.ContainsAny(spec, "-/") {
		assignToken(&result, "obsnum", parseToken(spec))
		return result
	}

	components, seps := splitOnSeparators(spec)
	assignToken(&result, "obsnum", parseToken(components[0]))
	if len(components) == 1 {
		return result
	}

	forwardFields := []string{"obsnum", "subobsnum", "scannum", "roach"}
	backwardFields := []string{"roach", "scannum", "subobsnum", "obsnum"}

	firstBackward := -1
	for i, sep := range seps {
		if sep == '/' {
			firstBackward = i
			break
		}
	}

	if firstBackward == -1 {
		for i := 1; i < len(components); i++ {
			if i < len(forwardFields) {
				assignToken(&result, forwardFields[i], parseToken(components[i]))
			}
		}
		return result
	}

	for i := 1; i <= firstBackward; i++ {
		if i < len(forwardFields) {
			assignToken(&result, forwardFields[i], parseToken(components[i]))
		}
	}

	backward := components[firstBackward+1:]
	for i, comp := range backward {
		if i >= len(backwardFields) {
			break
		}
		field := backwardFields[i]
		if isFieldSet(result, field) {
			continue
		}
		assignToken(&result, field, parseToken(comp))
	}

	return result
}

func looksLikeFilepath(spec string) bool {
	if strings.ContainsAny(spec, "{[") {
		return false
	}
	return strings.HasPrefix(spec, "/") || strings.HasSuffix(spec, ".nc")
}

// splitOnSeparators tokenizes spec on top-level "-"/"/" characters,
// returning the tokens and the separator that preceded each token
// after the first.
func splitOnSeparators(spec string) (components []string, seps []byte) {
	var cur strings.Builder
	for i := 0; i < len(spec); i++ {
		c := spec[i]
		switch c {
		case '-', '/':
			components = append(components, cur.String())
			cur.Reset()
			seps = append(seps, c)
		default:
			cur.WriteByte(c)
		}
	}
	components = append(components, cur.String())
	return components, seps
}

// parsedToken is the result of parsing one "-"/"/"-delimited token: at
// most one of the three forms is populated.
type parsedToken struct {
	intVal  *int
	list    []int
	rng     *IntRange
	wild    bool // "{}" or "[]" with no inner content: matches everything
}

func parseToken(tok string) parsedToken {
	tok = strings.TrimSpace(tok)
	if tok == "" {
		return parsedToken{}
	}
	if tok == "{}" || tok == "[]" {
		return parsedToken{wild: true}
	}
	if strings.HasPrefix(tok, "{") && strings.HasSuffix(tok, "}") {
		return parseListToken(tok[1 : len(tok)-1])
	}
	if strings.HasPrefix(tok, "[") && strings.HasSuffix(tok, "]") {
		return parseSliceToken(tok[1 : len(tok)-1])
	}
	n, err := strconv.Atoi(tok)
	if err != nil {
		logging.Get(logging.ComponentObsQuery).Warn("unable to parse obs-spec token", zap.String("token", tok))
		return parsedToken{}
	}
	return parsedToken{intVal: &n}
}

func parseListToken(inner string) parsedToken {
	inner = strings.TrimSpace(inner)
	if inner == "" {
		return parsedToken{wild: true}
	}
	parts := strings.Split(inner, ",")
	vals := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			logging.Get(logging.ComponentObsQuery).Warn("invalid obs-spec list notation", zap.String("token", inner))
			return parsedToken{}
		}
		vals = append(vals, n)
	}
	return parsedToken{list: vals}
}

func parseSliceToken(inner string) parsedToken {
	inner = strings.TrimSpace(inner)
	if inner == "" || inner == ":" {
		return parsedToken{wild: true}
	}
	parts := strings.Split(inner, ":")
	if len(parts) == 1 {
		n, err := strconv.Atoi(parts[0])
		if err != nil {
			logging.Get(logging.ComponentObsQuery).Warn("invalid obs-spec slice notation", zap.String("token", inner))
			return parsedToken{}
		}
		return parsedToken{intVal: &n}
	}
	if len(parts) > 3 {
		logging.Get(logging.ComponentObsQuery).Warn("invalid obs-spec slice notation", zap.String("token", inner))
		return parsedToken{}
	}
	bound := func(s string) (*int, bool) {
		s = strings.TrimSpace(s)
		if s == "" {
			return nil, true
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return nil, false
		}
		return &n, true
	}
	start, ok1 := bound(parts[0])
	stop, ok2 := bound(parts[1])
	if !ok1 || !ok2 {
		logging.Get(logging.ComponentObsQuery).Warn("invalid obs-spec slice notation", zap.String("token", inner))
		return parsedToken{}
	}
	rng := &IntRange{Start: start, Stop: stop}
	if len(parts) == 3 {
		step, ok3 := bound(parts[2])
		if !ok3 {
			logging.Get(logging.ComponentObsQuery).Warn("invalid obs-spec slice notation", zap.String("token", inner))
			return parsedToken{}
		}
		rng.Step = step
	}
	return parsedToken{rng: rng}
}

// assignToken writes a parsedToken into the Spec field named by
// field, choosing the exact/list/range slot as appropriate. A
// wildcard or empty token leaves the field untouched (spec §4.11:
// missing tokens are silently ignored; empty {}/[] match everything,
// which for obsnum/master/roach just means "do not filter").
func assignToken(s *Spec, field string, t parsedToken) {
	switch field {
	case "obsnum":
		if t.intVal != nil {
			s.Obsnum, s.HasObsnum = *t.intVal, true
		}
	case "subobsnum":
		switch {
		case t.intVal != nil:
			s.Subobsnum, s.HasSubobsnum = *t.intVal, true
		case t.list != nil:
			s.SubobsnumList = t.list
		case t.rng != nil:
			s.SubobsnumRange = t.rng
		case t.wild:
			s.SubobsnumRange = &IntRange{}
		}
	case "scannum":
		switch {
		case t.intVal != nil:
			s.Scannum, s.HasScannum = *t.intVal, true
		case t.list != nil:
			s.ScannumList = t.list
		case t.rng != nil:
			s.ScannumRange = t.rng
		case t.wild:
			s.ScannumRange = &IntRange{}
		}
	case "roach":
		if t.intVal != nil {
			s.Roach, s.HasRoach = *t.intVal, true
		}
	}
}

func isFieldSet(s Spec, field string) bool {
	switch field {
	case "obsnum":
		return s.HasObsnum
	case "subobsnum":
		return s.HasSubobsnum || s.SubobsnumList != nil || s.SubobsnumRange != nil
	case "scannum":
		return s.HasScannum || s.ScannumList != nil || s.ScannumRange != nil
	case "roach":
		return s.HasRoach
	}
	return false
}
