package runstore

const schemaVersion = 1

const schema = `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS runs (
	uid             TEXT PRIMARY KEY,
	name            TEXT NOT NULL,
	scenario        TEXT NOT NULL,
	solver          TEXT NOT NULL DEFAULT '',
	status          TEXT NOT NULL DEFAULT '',
	feasible        INTEGER NOT NULL DEFAULT 0,
	objective       REAL,
	elapsed_seconds REAL NOT NULL DEFAULT 0,
	error           TEXT NOT NULL DEFAULT '',
	started_at      TEXT NOT NULL,
	report          TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_scenario ON runs(scenario, started_at);
CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
`
