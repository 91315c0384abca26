package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	_ "github.com/mattn/go-sqlite3"

	"github.com/toltec-astro/tolteca-catalog/internal/completion"
)

// sqliteRegistry adapts the external acquisition registry — a
// read-only, typically single-file SQLite database populated by the
// data acquisition system, independent of the catalog's own store —
// to the completion.Registry poll surface. Its minimal schema is one
// row per (interface, quartet) validity observation: a numeric id,
// a master label, ObsNum/SubObsNum/ScanNum, RoachIndex, a 0/1 Valid
// flag, a Date/Time pair, FileName, and ObsType.
type sqliteRegistry struct {
	db    *sqlx.DB
	table string
}

// openRegistry opens databaseURL (a "sqlite://path" or bare path) for
// read-only polling against table.
func openRegistry(databaseURL, table string) (*sqliteRegistry, error) {
	path := strings.TrimPrefix(databaseURL, "sqlite://")
	path = strings.TrimPrefix(path, "file://")
	db, err := sqlx.Open("sqlite3", fmt.Sprintf("file:%s?mode=ro", path))
	if err != nil {
		return nil, fmt.Errorf("open acquisition registry: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping acquisition registry: %w", err)
	}
	return &sqliteRegistry{db: db, table: table}, nil
}

func (a *sqliteRegistry) Close() error { return a.db.Close() }

type registryRow struct {
	Master    string `db:"Master"`
	ObsNum    int    `db:"ObsNum"`
	SubObsNum int    `db:"SubObsNum"`
	ScanNum   int    `db:"ScanNum"`
	RoachIdx  int    `db:"RoachIndex"`
	Valid     int    `db:"Valid"`
	Date      string `db:"Date"`
	Time      string `db:"Time"`
	FileName  string `db:"FileName"`
}

// PollSince returns every registry row whose Date/Time timestamp is
// strictly after since, ordered by that timestamp. Filenames are
// returned with a leading "/data_lmt/" segment stripped, per the
// registry's storage convention.
func (a *sqliteRegistry) PollSince(ctx context.Context, since time.Time) ([]completion.RegistryRow, error) {
	query := fmt.Sprintf(
		`SELECT Master, ObsNum, SubObsNum, ScanNum, RoachIndex, Valid, Date, Time, FileName
		 FROM %s
		 WHERE datetime(Date || ' ' || Time) > datetime(?)
		 ORDER BY datetime(Date || ' ' || Time) ASC`, a.table)

	var raw []registryRow
	if err := a.db.SelectContext(ctx, &raw, query, since.UTC().Format("2006-01-02 15:04:05")); err != nil {
		return nil, fmt.Errorf("poll acquisition registry: %w", err)
	}

	rows := make([]completion.RegistryRow, 0, len(raw))
	for _, r := range raw {
		ts, err := time.Parse("2006-01-02 15:04:05", r.Date+" "+r.Time)
		if err != nil {
			continue
		}
		rows = append(rows, completion.RegistryRow{
			Master:     r.Master,
			Obsnum:     r.ObsNum,
			Subobsnum:  r.SubObsNum,
			Scannum:    r.ScanNum,
			RoachIndex: r.RoachIdx,
			Valid:      r.Valid != 0,
			Timestamp:  ts,
			Filename:   stripDataLmtPrefix(r.FileName),
		})
	}
	return rows, nil
}

func stripDataLmtPrefix(name string) string {
	return strings.TrimPrefix(name, "/data_lmt/")
}
