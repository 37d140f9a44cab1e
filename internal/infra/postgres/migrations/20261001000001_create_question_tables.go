package migrations

import _ "embed"

//go:embed 20261001000001_create_question_tables.sql
var createQuestionTablesSQL string

func init() {
	Migrations.MustRegister(
		execSQL(createQuestionTablesSQL),
		execSQL(`DROP TABLE IF EXISTS section_questions; DROP TABLE IF EXISTS questions`),
	)
}
