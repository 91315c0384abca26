package dialect

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// openServer opens the server-RDBMS dialect via pgx's database/sql
// driver, the connection path used in production.
func openServer(databaseURL string, readOnly bool) (*Opened, error) {
	db, err := sqlx.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open server dialect: %w", err)
	}
	if readOnly {
		db.SetMaxOpenConns(4)
	}
	return &Opened{DB: db, Kind: KindServer, ReadOnly: readOnly}, nil
}

// OpenServerWithLibPQ is the lib/pq-backed alternative entry point,
// used when a deployment's ops tooling standardizes on lib/pq instead
// of pgx's stdlib driver (e.g. compatibility with an existing
// connection-pooling proxy tuned for it). Errors surfaced through this
// connection and through openServer's pgx connection both classify via
// ClassifyServerError below.
func OpenServerWithLibPQ(databaseURL string, readOnly bool) (*Opened, error) {
	db, err := sqlx.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open server dialect (lib/pq): %w", err)
	}
	if readOnly {
		db.SetMaxOpenConns(4)
	}
	return &Opened{DB: db, Kind: KindServer, ReadOnly: readOnly}, nil
}

// ServerErrorClass is the coarse classification ClassifyServerError
// assigns a Postgres error to, named after the SQLSTATE class it maps
// from.
type ServerErrorClass int

const (
	ServerErrorOther ServerErrorClass = iota
	ServerErrorUniqueViolation
	ServerErrorForeignKeyViolation
)

// ClassifyServerError inspects err for a Postgres SQLSTATE code,
// recognizing both pgx's *pgconn.PgError (the openServer connection
// path) and lib/pq's *pq.Error (the OpenServerWithLibPQ path), and
// maps the well-known unique_violation (23505) and
// foreign_key_violation (23503) codes to ServerErrorClass. Any other
// error, including one with no recognizable SQLSTATE, classifies as
// ServerErrorOther.
func ClassifyServerError(err error) ServerErrorClass {
	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return classifySQLState(pgxErr.Code)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return classifySQLState(string(pqErr.Code))
	}
	return ServerErrorOther
}

func classifySQLState(code string) ServerErrorClass {
	switch code {
	case "23505":
		return ServerErrorUniqueViolation
	case "23503":
		return ServerErrorForeignKeyViolation
	default:
		return ServerErrorOther
	}
}
