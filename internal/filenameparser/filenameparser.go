// Package filenameparser extracts quartet identity and interface from
// TolTEC data filenames and (for the scientific file format) from file
// headers, so C5/C6 never hand-parse a path themselves.
package filenameparser

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/toltec-astro/tolteca-catalog/internal/model"
)

// ParsedFilename is the structured record returned for a filename
// matching the closed TolTEC naming convention. A non-matching name
// makes ParseFilename return nil — this is not an error, per spec.
type ParsedFilename struct {
	Interface   string
	Roach       *int
	Obsnum      int
	Subobsnum   int
	Scannum     int
	Timestamp   *time.Time
	Suffix      string
	Ext         string
	DataKind    model.ToltecDataKind
	HasDataKind bool
}

// filenamePattern matches interface_obsnum_subobsnum_scannum, an
// optional _YYYY_MM_DD_HH_MM_SS timestamp segment, an optional
// _suffix segment, and the extension.
var filenamePattern = regexp.MustCompile(
	`^(?P<interface>toltec\d+|hwp|tel_toltec|toltec)` +
		`_(?P<obsnum>\d+)` +
		`_(?P<subobsnum>\d+)` +
		`_(?P<scannum>\d+)` +
		`(?:_(?P<ts>\d{4}_\d{2}_\d{2}_\d{2}_\d{2}_\d{2}))?` +
		`(?:_(?P<suffix>\w+))?` +
		`\.(?P<ext>\w+)$`,
)

// suffixDataKind maps the optional trailing filename suffix to an
// inferred data kind; suffixes not in this table leave DataKind unset.
var suffixDataKind = map[string]model.ToltecDataKind{
	"timestream":  model.DataKindRawTimeStream,
	"targsweep":   model.DataKindTargetSweep,
	"targetsweep": model.DataKindTargetSweep,
	"vnasweep":    model.DataKindVnaSweep,
	"tune":        model.DataKindTune,
}

// ParseFilename parses name (the base filename, not a full path)
// against the closed TolTEC naming grammar. Returns nil if name does
// not match — this is not an error condition.
func ParseFilename(name string) *ParsedFilename {
	m := filenamePattern.FindStringSubmatch(name)
	if m == nil {
		return nil
	}
	groups := namedGroups(filenamePattern, m)

	obsnum, err1 := strconv.Atoi(groups["obsnum"])
	subobsnum, err2 := strconv.Atoi(groups["subobsnum"])
	scannum, err3 := strconv.Atoi(groups["scannum"])
	if err1 != nil || err2 != nil || err3 != nil {
		return nil
	}

	p := &ParsedFilename{
		Interface: groups["interface"],
		Obsnum:    obsnum,
		Subobsnum: subobsnum,
		Scannum:   scannum,
		Suffix:    groups["suffix"],
		Ext:       groups["ext"],
	}

	if strings.HasPrefix(p.Interface, "toltec") && len(p.Interface) > len("toltec") {
		if roach, err := strconv.Atoi(p.Interface[len("toltec"):]); err == nil {
			p.Roach = &roach
		}
	}

	if ts := groups["ts"]; ts != "" {
		if t, err := time.Parse("2006_01_02_15_04_05", ts); err == nil {
			p.Timestamp = &t
		}
	}

	if kind, ok := suffixDataKind[p.Suffix]; ok {
		p.DataKind = kind
		p.HasDataKind = true
	}

	return p
}

func namedGroups(re *regexp.Regexp, match []string) map[string]string {
	out := make(map[string]string, len(match))
	for i, name := range re.SubexpNames() {
		if i == 0 || name == "" {
			continue
		}
		out[name] = match[i]
	}
	return out
}

// HeaderQuartet is the authoritative quartet extracted from a
// scientific file's header, used to cross-check the filename-derived
// quartet. masterNumericMap's numeric master IDs come from the file's
// Header.Toltec.Master field.
type HeaderQuartet struct {
	Master    string
	Obsnum    int
	Subobsnum int
	Scannum   int
	Roach     int
}

// masterNumericMap maps the header's numeric master ID to its
// lowercase string form.
var masterNumericMap = map[int]string{
	0: "tcs",
	1: "ics",
}

// MasterFromNumeric resolves a header's numeric master ID. ok is false
// for an ID outside the closed map.
func MasterFromNumeric(id int) (master string, ok bool) {
	m, ok := masterNumericMap[id]
	return m, ok
}

// Mismatch reports whether the header's quartet/roach disagrees with
// the filename-derived one on any field, per §4.4's hard-error rule.
func Mismatch(filename *ParsedFilename, header HeaderQuartet) bool {
	if filename.Obsnum != header.Obsnum {
		return true
	}
	if filename.Subobsnum != header.Subobsnum {
		return true
	}
	if filename.Scannum != header.Scannum {
		return true
	}
	if filename.Roach != nil && *filename.Roach != header.Roach {
		return true
	}
	return false
}
