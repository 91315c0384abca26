package catalog

import "github.com/toltec-astro/tolteca-catalog/internal/catalog/dialect"

// sqliteSchema targets both embedded dialects (mattn/go-sqlite3 and
// modernc.org/sqlite share SQLite's DDL dialect).
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS locations (
	pk INTEGER PRIMARY KEY AUTOINCREMENT,
	label TEXT NOT NULL UNIQUE,
	type TEXT NOT NULL,
	root_uri TEXT NOT NULL,
	priority INTEGER NOT NULL DEFAULT 0,
	metadata TEXT NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS product_types (
	name TEXT PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS assoc_types (
	name TEXT PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS flag_severities (
	name TEXT PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS data_products (
	pk INTEGER PRIMARY KEY AUTOINCREMENT,
	type_fk TEXT NOT NULL REFERENCES product_types(name),
	metadata TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_data_products_type ON data_products(type_fk);

CREATE TABLE IF NOT EXISTS data_product_sources (
	pk INTEGER PRIMARY KEY AUTOINCREMENT,
	source_uri TEXT NOT NULL,
	location_fk INTEGER NOT NULL REFERENCES locations(pk),
	data_prod_fk INTEGER NOT NULL REFERENCES data_products(pk) ON DELETE CASCADE,
	role TEXT NOT NULL,
	availability TEXT NOT NULL,
	size_bytes INTEGER,
	checksum TEXT NOT NULL DEFAULT '',
	metadata TEXT NOT NULL,
	UNIQUE(location_fk, source_uri)
);
CREATE INDEX IF NOT EXISTS idx_sources_product ON data_product_sources(data_prod_fk);

CREATE TABLE IF NOT EXISTS data_product_assocs (
	pk INTEGER PRIMARY KEY AUTOINCREMENT,
	src_fk INTEGER NOT NULL REFERENCES data_products(pk) ON DELETE CASCADE,
	dst_fk INTEGER NOT NULL REFERENCES data_products(pk) ON DELETE CASCADE,
	assoc_type_fk TEXT NOT NULL REFERENCES assoc_types(name),
	process_ctx TEXT NOT NULL DEFAULT '{}',
	created_at TEXT NOT NULL,
	UNIQUE(src_fk, dst_fk, assoc_type_fk)
);
CREATE INDEX IF NOT EXISTS idx_assocs_dst ON data_product_assocs(dst_fk);
CREATE INDEX IF NOT EXISTS idx_assocs_src ON data_product_assocs(src_fk);

CREATE TABLE IF NOT EXISTS data_product_flags (
	pk INTEGER PRIMARY KEY AUTOINCREMENT,
	data_prod_fk INTEGER NOT NULL REFERENCES data_products(pk) ON DELETE CASCADE,
	severity TEXT NOT NULL REFERENCES flag_severities(name),
	name TEXT NOT NULL,
	assertion TEXT NOT NULL DEFAULT '{}',
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS reduction_tasks (
	pk INTEGER PRIMARY KEY AUTOINCREMENT,
	params_hash TEXT NOT NULL,
	input_set_hash TEXT NOT NULL,
	status TEXT NOT NULL,
	params TEXT NOT NULL DEFAULT '{}',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	UNIQUE(params_hash, input_set_hash)
);

CREATE TABLE IF NOT EXISTS task_inputs (
	pk INTEGER PRIMARY KEY AUTOINCREMENT,
	task_fk INTEGER NOT NULL REFERENCES reduction_tasks(pk) ON DELETE CASCADE,
	data_prod_fk INTEGER NOT NULL REFERENCES data_products(pk)
);

CREATE TABLE IF NOT EXISTS task_outputs (
	pk INTEGER PRIMARY KEY AUTOINCREMENT,
	task_fk INTEGER NOT NULL REFERENCES reduction_tasks(pk) ON DELETE CASCADE,
	data_prod_fk INTEGER NOT NULL REFERENCES data_products(pk)
);

CREATE TABLE IF NOT EXISTS event_log (
	pk INTEGER PRIMARY KEY AUTOINCREMENT,
	event_type TEXT NOT NULL,
	entity_type TEXT NOT NULL,
	entity_id INTEGER NOT NULL,
	payload TEXT NOT NULL DEFAULT '{}',
	occurred_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_event_log_entity ON event_log(entity_type, entity_id);
`

// postgresSchema differs only in autoincrement/timestamp column
// syntax; the remainder of the DDL is identical by design so the two
// dialects stay easy to keep in lockstep.
const postgresSchema = `
CREATE TABLE IF NOT EXISTS locations (
	pk BIGSERIAL PRIMARY KEY,
	label TEXT NOT NULL UNIQUE,
	type TEXT NOT NULL,
	root_uri TEXT NOT NULL,
	priority INTEGER NOT NULL DEFAULT 0,
	metadata JSONB NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS product_types (name TEXT PRIMARY KEY);
CREATE TABLE IF NOT EXISTS assoc_types (name TEXT PRIMARY KEY);
CREATE TABLE IF NOT EXISTS flag_severities (name TEXT PRIMARY KEY);

CREATE TABLE IF NOT EXISTS data_products (
	pk BIGSERIAL PRIMARY KEY,
	type_fk TEXT NOT NULL REFERENCES product_types(name),
	metadata JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_data_products_type ON data_products(type_fk);

CREATE TABLE IF NOT EXISTS data_product_sources (
	pk BIGSERIAL PRIMARY KEY,
	source_uri TEXT NOT NULL,
	location_fk BIGINT NOT NULL REFERENCES locations(pk),
	data_prod_fk BIGINT NOT NULL REFERENCES data_products(pk) ON DELETE CASCADE,
	role TEXT NOT NULL,
	availability TEXT NOT NULL,
	size_bytes BIGINT,
	checksum TEXT NOT NULL DEFAULT '',
	metadata JSONB NOT NULL,
	UNIQUE(location_fk, source_uri)
);
CREATE INDEX IF NOT EXISTS idx_sources_product ON data_product_sources(data_prod_fk);

CREATE TABLE IF NOT EXISTS data_product_assocs (
	pk BIGSERIAL PRIMARY KEY,
	src_fk BIGINT NOT NULL REFERENCES data_products(pk) ON DELETE CASCADE,
	dst_fk BIGINT NOT NULL REFERENCES data_products(pk) ON DELETE CASCADE,
	assoc_type_fk TEXT NOT NULL REFERENCES assoc_types(name),
	process_ctx JSONB NOT NULL DEFAULT '{}',
	created_at TIMESTAMPTZ NOT NULL,
	UNIQUE(src_fk, dst_fk, assoc_type_fk)
);
CREATE INDEX IF NOT EXISTS idx_assocs_dst ON data_product_assocs(dst_fk);
CREATE INDEX IF NOT EXISTS idx_assocs_src ON data_product_assocs(src_fk);

CREATE TABLE IF NOT EXISTS data_product_flags (
	pk BIGSERIAL PRIMARY KEY,
	data_prod_fk BIGINT NOT NULL REFERENCES data_products(pk) ON DELETE CASCADE,
	severity TEXT NOT NULL REFERENCES flag_severities(name),
	name TEXT NOT NULL,
	assertion JSONB NOT NULL DEFAULT '{}',
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS reduction_tasks (
	pk BIGSERIAL PRIMARY KEY,
	params_hash TEXT NOT NULL,
	input_set_hash TEXT NOT NULL,
	status TEXT NOT NULL,
	params JSONB NOT NULL DEFAULT '{}',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	UNIQUE(params_hash, input_set_hash)
);

CREATE TABLE IF NOT EXISTS task_inputs (
	pk BIGSERIAL PRIMARY KEY,
	task_fk BIGINT NOT NULL REFERENCES reduction_tasks(pk) ON DELETE CASCADE,
	data_prod_fk BIGINT NOT NULL REFERENCES data_products(pk)
);

CREATE TABLE IF NOT EXISTS task_outputs (
	pk BIGSERIAL PRIMARY KEY,
	task_fk BIGINT NOT NULL REFERENCES reduction_tasks(pk) ON DELETE CASCADE,
	data_prod_fk BIGINT NOT NULL REFERENCES data_products(pk)
);

CREATE TABLE IF NOT EXISTS event_log (
	pk BIGSERIAL PRIMARY KEY,
	event_type TEXT NOT NULL,
	entity_type TEXT NOT NULL,
	entity_id BIGINT NOT NULL,
	payload JSONB NOT NULL DEFAULT '{}',
	occurred_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_event_log_entity ON event_log(entity_type, entity_id);
`

func schemaFor(kind dialect.Kind) string {
	if kind == dialect.KindServer {
		return postgresSchema
	}
	return sqliteSchema
}
