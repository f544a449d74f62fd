package reportstore

// CurrentSchemaVersion is the schema version this binary reads and writes.
// Existing fingerprints and statuses stay valid across migrations.
const CurrentSchemaVersion = 2

// initialSchema is the current layout, created in full on a fresh
// database. Older databases reach it through the migrations below.
const initialSchema = `
CREATE TABLE IF NOT EXISTS schema_meta (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS runs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE,
	current_generation INTEGER NOT NULL DEFAULT 0,
	version_tag TEXT,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS generations (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id INTEGER NOT NULL REFERENCES runs(id),
	number INTEGER NOT NULL,
	state TEXT NOT NULL,
	version_tag TEXT,
	committed_at DATETIME,
	UNIQUE(run_id, number)
);

CREATE TABLE IF NOT EXISTS reports (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	generation_id INTEGER NOT NULL REFERENCES generations(id),
	fingerprint TEXT NOT NULL,
	checker_id TEXT NOT NULL,
	severity TEXT,
	message TEXT,
	file_path TEXT NOT NULL,
	line INTEGER NOT NULL,
	col INTEGER,
	blob_id TEXT,
	analyzer_action TEXT,
	bug_path TEXT,
	detection_status TEXT NOT NULL,
	UNIQUE(generation_id, fingerprint)
);

CREATE INDEX IF NOT EXISTS idx_reports_generation ON reports(generation_id);
CREATE INDEX IF NOT EXISTS idx_reports_fingerprint ON reports(fingerprint);

CREATE TABLE IF NOT EXISTS review_statuses (
	fingerprint TEXT PRIMARY KEY,
	status TEXT NOT NULL,
	message TEXT,
	updated_at DATETIME NOT NULL
);
`

// migrations maps a source schema version to the statements that bring the
// database to the next version. Applied in order at open time.
var migrations = map[int][]string{
	// v1 -> v2: generations learned a per-generation source version tag.
	1: {
		`ALTER TABLE generations ADD COLUMN version_tag TEXT`,
	},
}
