package dialect

import (
	"fmt"
	"net/url"

	"github.com/jmoiron/sqlx"
)

// openEmbeddedWAL opens mattn/go-sqlite3 with write-ahead journaling
// configured on connect, per §4.2's journaling-single-writer dialect.
// Many concurrent readers are permitted; one writer at a time.
func openEmbeddedWAL(u *url.URL, readOnly bool) (*Opened, error) {
	path := dsnPath(u)
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	if readOnly {
		dsn += "&mode=ro"
	}
	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open embedded wal dialect: %w", err)
	}
	if !readOnly {
		db.SetMaxOpenConns(1) // single-writer discipline, §5
	}
	return &Opened{DB: db, Kind: KindEmbeddedWAL, ReadOnly: readOnly}, nil
}

// openColumnar opens modernc.org/sqlite as the columnar-engine stand-in
// (see dialect.go's KindColumnar doc comment). Writes funnel through a
// single shared connection with retry-on-conflict handled by the
// store layer, not here.
func openColumnar(u *url.URL, readOnly bool) (*Opened, error) {
	path := dsnPath(u)
	dsn := path
	if readOnly {
		dsn += "?mode=ro"
	}
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open columnar dialect: %w", err)
	}
	if !readOnly {
		db.SetMaxOpenConns(1)
	}
	return &Opened{DB: db, Kind: KindColumnar, ReadOnly: readOnly}, nil
}
