package migrations

import (
	"context"
	_ "embed"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
)

//go:embed 0001_create_schema.sql
var createSchemaSQL string

var Migrations = migrate.NewMigrations()

func init() {
	Migrations.MustRegister(
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.Exec(createSchemaSQL)
			return err
		},
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.Exec(`
				DROP TABLE IF EXISTS audit_logs;
				DROP TABLE IF EXISTS answers;
				DROP TABLE IF EXISTS attempts;
				DROP TABLE IF EXISTS event_participants;
				DROP TABLE IF EXISTS events;
				DROP TABLE IF EXISTS options;
				DROP TABLE IF EXISTS questions;
				DROP TABLE IF EXISTS quizzes;
				DROP TABLE IF EXISTS users;
			`)
			return err
		},
	)
}
