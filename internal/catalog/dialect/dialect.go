// Package dialect selects and opens the concrete SQL backend behind
// the catalog store: an embedded columnar engine for local/analytics
// use, an embedded single-writer WAL database for multi-process
// ingestion, or a server RDBMS for production. Selection is by
// database_url scheme, mirroring the source's create_database()
// factory.
package dialect

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/jmoiron/sqlx"

	_ "github.com/jackc/pgx/v5/stdlib" // postgres driver registration
	_ "github.com/lib/pq"              // alternate postgres driver registration
	_ "github.com/mattn/go-sqlite3"    // sqlite3 driver registration
	_ "modernc.org/sqlite"             // pure-Go sqlite driver registration (columnar stand-in)
)

// Kind names the concrete SQL backend behind a Store.
type Kind string

const (
	// KindEmbeddedWAL is the embedded single-writer relational
	// database with write-ahead journaling, backed by
	// mattn/go-sqlite3 (cgo). Used for multi-process ingestion.
	KindEmbeddedWAL Kind = "embedded_wal"
	// KindColumnar is the embedded single-file columnar engine used
	// for local development and analytics. No pure-Go DuckDB driver
	// exists in the ecosystem; modernc.org/sqlite stands in for it,
	// selected by the same "duckdb://" URL scheme the source used —
	// see DESIGN.md's Open Question 1 for the substitution rationale.
	KindColumnar Kind = "columnar"
	// KindServer is a classical server RDBMS (PostgreSQL), backed by
	// jackc/pgx's database/sql driver.
	KindServer Kind = "server"
)

// Opened bundles the live connection with the resolved Kind and
// whether this connection was opened read-only (for the query
// bridge's analytical path, §4.2).
type Opened struct {
	DB       *sqlx.DB
	Kind     Kind
	ReadOnly bool
}

// Open dispatches databaseURL's scheme to the matching dialect and
// opens a read-write connection. Supported schemes: "sqlite"/"wal"
// (embedded WAL), "duckdb" (columnar stand-in), "postgres"/"postgresql".
func Open(databaseURL string) (*Opened, error) {
	return open(databaseURL, false)
}

// OpenReadOnly opens the same databaseURL but for the read-only
// analytical path the query bridge uses in multi-process contexts.
// Writes through this connection must fail.
func OpenReadOnly(databaseURL string) (*Opened, error) {
	return open(databaseURL, true)
}

func open(databaseURL string, readOnly bool) (*Opened, error) {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database_url: %w", err)
	}

	switch strings.ToLower(u.Scheme) {
	case "sqlite", "wal", "":
		return openEmbeddedWAL(u, readOnly)
	case "duckdb":
		return openColumnar(u, readOnly)
	case "postgres", "postgresql":
		return openServer(databaseURL, readOnly)
	default:
		return nil, fmt.Errorf("unsupported database_url scheme %q", u.Scheme)
	}
}

func dsnPath(u *url.URL) string {
	if u.Opaque != "" {
		return u.Opaque
	}
	return strings.TrimPrefix(u.Path, "/")
}
