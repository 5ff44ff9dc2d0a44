package repository

// Schema definitions for the screener database.
// Compatible with both SQLite and PostgreSQL.

// Conditions are kept as one ordered JSON document so that a round trip
// never reorders or relabels them.
const schemaStrategies = `
CREATE TABLE IF NOT EXISTS strategies (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    conditions TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, tenant_id)
);

CREATE INDEX IF NOT EXISTS idx_strategies_tenant ON strategies(tenant_id);
CREATE INDEX IF NOT EXISTS idx_strategies_updated ON strategies(tenant_id, updated_at);
`

const schemaRuns = `
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    strategy_id TEXT,
    market TEXT NOT NULL,
    route TEXT NOT NULL,
    description TEXT NOT NULL,
    params TEXT,
    records TEXT NOT NULL,
    total INTEGER NOT NULL,
    scanned INTEGER NOT NULL,
    pages INTEGER NOT NULL DEFAULT 0,
    summary TEXT,
    timestamp TIMESTAMP NOT NULL,
    metadata TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_tenant ON runs(tenant_id);
CREATE INDEX IF NOT EXISTS idx_runs_strategy ON runs(tenant_id, strategy_id);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaStrategies,
		schemaRuns,
	}
}
