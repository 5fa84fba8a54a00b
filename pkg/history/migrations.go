package history

// migration is one schema change. Versions are applied in slice order and
// tracked in schema_migrations so each runs once.
type migration struct {
	Version string
	SQL     string
}

var sqliteMigrations = []migration{
	{
		Version: "001_create_runs",
		SQL: `
			CREATE TABLE IF NOT EXISTS runs (
				run_id TEXT PRIMARY KEY,
				transcript TEXT NOT NULL,
				model TEXT NOT NULL,
				state TEXT NOT NULL,
				case_facts TEXT NOT NULL DEFAULT '',
				output_dir TEXT NOT NULL DEFAULT '',
				total INTEGER NOT NULL DEFAULT 0,
				succeeded INTEGER NOT NULL DEFAULT 0,
				failed INTEGER NOT NULL DEFAULT 0,
				not_attempted INTEGER NOT NULL DEFAULT 0,
				relevant INTEGER NOT NULL DEFAULT 0,
				evidence INTEGER NOT NULL DEFAULT 0,
				error TEXT NOT NULL DEFAULT '',
				started_at REAL NOT NULL,
				finished_at REAL NOT NULL
			)`,
	},
	{
		Version: "002_runs_started_index",
		SQL:     `CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs (started_at DESC)`,
	},
	{
		Version: "003_runs_high_confidence",
		SQL:     `ALTER TABLE runs ADD COLUMN high_confidence INTEGER NOT NULL DEFAULT 0`,
	},
}

var postgresMigrations = []migration{
	{
		Version: "001_create_runs",
		SQL: `
			CREATE TABLE IF NOT EXISTS transcriber_runs (
				run_id TEXT PRIMARY KEY,
				transcript TEXT NOT NULL,
				model TEXT NOT NULL,
				state TEXT NOT NULL,
				case_facts TEXT NOT NULL DEFAULT '',
				output_dir TEXT NOT NULL DEFAULT '',
				total INTEGER NOT NULL DEFAULT 0,
				succeeded INTEGER NOT NULL DEFAULT 0,
				failed INTEGER NOT NULL DEFAULT 0,
				not_attempted INTEGER NOT NULL DEFAULT 0,
				relevant INTEGER NOT NULL DEFAULT 0,
				evidence INTEGER NOT NULL DEFAULT 0,
				error TEXT NOT NULL DEFAULT '',
				started_at TIMESTAMPTZ NOT NULL,
				finished_at TIMESTAMPTZ NOT NULL
			)`,
	},
	{
		Version: "002_runs_started_index",
		SQL:     `CREATE INDEX IF NOT EXISTS idx_transcriber_runs_started_at ON transcriber_runs (started_at DESC)`,
	},
	{
		Version: "003_runs_high_confidence",
		SQL:     `ALTER TABLE transcriber_runs ADD COLUMN IF NOT EXISTS high_confidence INTEGER NOT NULL DEFAULT 0`,
	},
}
