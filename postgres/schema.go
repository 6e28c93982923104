package postgres

import "context"

// CreateSchema applies all pending migrations.
func (s *PGStore) CreateSchema(ctx context.Context) error {
	return s.Migrate(ctx)
}

// DropSchema drops all llama tables and the migrations tracking table.
func (s *PGStore) DropSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `
		DROP TABLE IF EXISTS llama_migrations CASCADE;
		DROP TABLE IF EXISTS llama_request_logs CASCADE;
		DROP TABLE IF EXISTS llama_messages CASCADE;
		DROP TABLE IF EXISTS llama_sessions CASCADE;
	`)
	return err
}
