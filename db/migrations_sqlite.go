package db

// SQLite migrations mirror the PostgreSQL schema for local development
// and tests.

var sqliteMigrations = []Migration{
	{
		Version: 1,
		Name:    "create_analyses_table",
		Up: `
			CREATE TABLE IF NOT EXISTS analyses (
				id TEXT PRIMARY KEY,
				created_at TIMESTAMP NOT NULL,
				source_type TEXT NOT NULL,
				raw_input_hash TEXT NOT NULL,
				url TEXT NOT NULL DEFAULT '',
				filename TEXT NOT NULL DEFAULT '',
				extracted_text TEXT NOT NULL,
				mode TEXT NOT NULL,
				model_version TEXT NOT NULL,
				result TEXT NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_analyses_created_at ON analyses(created_at);
		`,
		Down: `
			DROP INDEX IF EXISTS idx_analyses_created_at;
			DROP TABLE IF EXISTS analyses;
		`,
	},
	{
		Version: 2,
		Name:    "add_analyses_source_type_index",
		Up: `
			CREATE INDEX IF NOT EXISTS idx_analyses_source_type ON analyses(source_type);
		`,
		Down: `
			DROP INDEX IF EXISTS idx_analyses_source_type;
		`,
	},
	{
		Version: 3,
		Name:    "add_analyses_hash_index",
		Up: `
			CREATE INDEX IF NOT EXISTS idx_analyses_raw_input_hash ON analyses(raw_input_hash);
		`,
		Down: `
			DROP INDEX IF EXISTS idx_analyses_raw_input_hash;
		`,
	},
}
