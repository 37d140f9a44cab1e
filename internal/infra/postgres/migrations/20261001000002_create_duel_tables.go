package migrations

import _ "embed"

//go:embed 20261001000002_create_duel_tables.sql
var createDuelTablesSQL string

func init() {
	Migrations.MustRegister(
		execSQL(createDuelTablesSQL),
		execSQL(`DROP TABLE IF EXISTS poll_mappings;
DROP TABLE IF EXISTS duel_responses;
DROP TABLE IF EXISTS duel_questions;
DROP TABLE IF EXISTS duels;
DROP TABLE IF EXISTS participants`),
	)
}
