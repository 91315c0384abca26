// Package telcsv implements the telescope-metadata CSV ingestor (C6):
// parsing the LMT pointing/optics/conditions dump and merging it into
// existing or newly created raw-observation DataProducts.
package telcsv

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/toltec-astro/tolteca-catalog/internal/catalogerr"
	"github.com/toltec-astro/tolteca-catalog/internal/model"
)

// Row is one parsed telescope-metadata CSV record.
type Row struct {
	Obsnum    int
	Subobsnum int
	Scannum   int
	FilePath  string
	Valid     bool
	ObsGoal   string
	Tel       model.TelState
}

const timeLayout = "2006-01-02 15:04:05"

var zernikeColumns = [7]string{
	"M1Zernike0 [micron]", "M1Zernike1 [micron]", "M1Zernike2 [micron]",
	"M1Zernike3 [micron]", "M1Zernike4 [micron]", "M1Zernike5 [micron]",
	"M1Zernike6 [micron]",
}

// ParseRow converts one CSV record (keyed by header) into a Row.
// Malformed numeric fields return catalogerr.ParseFailure so the
// caller can count and skip the row rather than abort the file.
func ParseRow(rec map[string]string) (Row, error) {
	obsnum, subobsnum, scannum, err := parseObsNumTriplet(rec["ObsNum"])
	if err != nil {
		return Row{}, err
	}

	var zernike [7]float64
	for i, col := range zernikeColumns {
		v, err := parseFloat(rec, col)
		if err != nil {
			return Row{}, err
		}
		zernike[i] = v
	}

	az, err := parseFloat(rec, "Az [deg]")
	if err != nil {
		return Row{}, err
	}
	el, err := parseFloat(rec, "El [deg]")
	if err != nil {
		return Row{}, err
	}
	userAz, err := parseFloat(rec, `UserAzOffset ["]`)
	if err != nil {
		return Row{}, err
	}
	userEl, err := parseFloat(rec, `UserElOffset ["]`)
	if err != nil {
		return Row{}, err
	}
	paddleAz, err := parseFloat(rec, `PaddleAzOffset ["]`)
	if err != nil {
		return Row{}, err
	}
	paddleEl, err := parseFloat(rec, `PaddleElOffset ["]`)
	if err != nil {
		return Row{}, err
	}
	m2x, err := parseFloat(rec, "M2XOffset [mm]")
	if err != nil {
		return Row{}, err
	}
	m2y, err := parseFloat(rec, "M2YOffset [mm]")
	if err != nil {
		return Row{}, err
	}
	m2z, err := parseFloat(rec, "M2ZOffset [mm]")
	if err != nil {
		return Row{}, err
	}
	tau, err := parseFloat(rec, "Tau")
	if err != nil {
		return Row{}, err
	}
	craneInBeam, err := parseBoolFlag(rec, "CraneInBeam")
	if err != nil {
		return Row{}, err
	}
	valid, err := parseBoolFlag(rec, "Valid")
	if err != nil {
		return Row{}, err
	}

	return Row{
		Obsnum:    obsnum,
		Subobsnum: subobsnum,
		Scannum:   scannum,
		FilePath:  rec["FileName"],
		Valid:     valid,
		ObsGoal:   rec["ObsGoal"],
		Tel: model.TelState{
			SourceName:     rec["SourceName"],
			ProjectID:      rec["ProjectId"],
			ObsPgm:         rec["ObsPgm"],
			AzDeg:          az,
			ElDeg:          el,
			UserAzOffset:   userAz,
			UserElOffset:   userEl,
			PaddleAzOffset: paddleAz,
			PaddleElOffset: paddleEl,
			M2XOffsetMM:    m2x,
			M2YOffsetMM:    m2y,
			M2ZOffsetMM:    m2z,
			Zernike:        zernike,
			Tau:            tau,
			CraneInBeam:    craneInBeam,
		},
	}, nil
}

// ObsDateTime parses the row's "Date/Time [UT]" field. It is kept
// separate from Row; RawObsMeta has no field for this date, and the
// CSV ingest path does not call ObsDateTime or store the value.
func ObsDateTime(rec map[string]string) (time.Time, error) {
	t, err := time.Parse(timeLayout, rec["Date/Time [UT]"])
	if err != nil {
		return time.Time{}, catalogerr.New(catalogerr.ParseFailure, "ObsDateTime", err)
	}
	return t, nil
}

// parseObsNumTriplet parses the "{obsnum}.{subobsnum}.{scannum}"
// dotted format; a missing subobsnum/scannum defaults to 0/1
// respectively, matching the reference parser's tolerance for
// truncated triplets.
func parseObsNumTriplet(s string) (obsnum, subobsnum, scannum int, err error) {
	parts := strings.Split(s, ".")
	if len(parts) == 0 || parts[0] == "" {
		return 0, 0, 0, catalogerr.New(catalogerr.ParseFailure, "parseObsNumTriplet",
			fmt.Errorf("empty ObsNum field"))
	}
	obsnumF, parseErr := strconv.ParseFloat(parts[0], 64)
	if parseErr != nil {
		return 0, 0, 0, catalogerr.New(catalogerr.ParseFailure, "parseObsNumTriplet", parseErr)
	}
	obsnum = int(obsnumF)
	scannum = 1
	if len(parts) > 1 {
		if subobsnum, err = strconv.Atoi(parts[1]); err != nil {
			return 0, 0, 0, catalogerr.New(catalogerr.ParseFailure, "parseObsNumTriplet", err)
		}
	}
	if len(parts) > 2 {
		if scannum, err = strconv.Atoi(parts[2]); err != nil {
			return 0, 0, 0, catalogerr.New(catalogerr.ParseFailure, "parseObsNumTriplet", err)
		}
	}
	return obsnum, subobsnum, scannum, nil
}

func parseFloat(rec map[string]string, col string) (float64, error) {
	v, err := strconv.ParseFloat(rec[col], 64)
	if err != nil {
		return 0, catalogerr.New(catalogerr.ParseFailure, "parseFloat",
			fmt.Errorf("column %q: %w", col, err))
	}
	return v, nil
}

func parseBoolFlag(rec map[string]string, col string) (bool, error) {
	n, err := strconv.Atoi(rec[col])
	if err != nil {
		return false, catalogerr.New(catalogerr.ParseFailure, "parseBoolFlag",
			fmt.Errorf("column %q: %w", col, err))
	}
	return n != 0, nil
}

// ReadAll parses every data row of a telescope-metadata CSV stream,
// keyed by its header row. Per-row parse failures are returned inline
// as the Row's error slot so the caller can count and skip rather
// than abort the whole file, matching parse_tel_csv's
// skip-and-continue behavior.
type ParsedRow struct {
	Row Row
	Err error
}

func ReadAll(r io.Reader) ([]ParsedRow, error) {
	cr := csv.NewReader(r)
	cr.LazyQuotes = true
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("telcsv: read header: %w", err)
	}

	var out []ParsedRow
	for {
		fields, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("telcsv: read row: %w", err)
		}
		rec := make(map[string]string, len(header))
		for i, name := range header {
			if i < len(fields) {
				rec[name] = fields[i]
			}
		}
		row, parseErr := ParseRow(rec)
		out = append(out, ParsedRow{Row: row, Err: parseErr})
	}
	return out, nil
}
