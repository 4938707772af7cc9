package store

import (
	"context"
	"fmt"
	"time"

	"github.com/georgysavva/scany/v2/sqlscan"
)

// schemaStep is one numbered change to the database layout. Its statements
// run in order inside a single transaction.
type schemaStep struct {
	Version int
	Stmts   []string
}

// migrations must stay sorted by Version. Append new steps; never edit an
// applied one.
var migrations = []schemaStep{
	{Version: 1, Stmts: allSchemas},
	{Version: 2, Stmts: []string{
		// Pairing by exchange id.
		`CREATE INDEX IF NOT EXISTS idx_prompts_exchange ON prompts(exchange_id)`,
		`CREATE INDEX IF NOT EXISTS idx_ai_prompts_exchange ON ai_prompts(exchange_id)`,
	}},
}

// Migrate applies the steps newer than the recorded version on the writer
// connection. Running it again on an up to date database does nothing.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.writer.ExecContext(ctx, schemaMigrations); err != nil {
		return fmt.Errorf("store: create migrations table: %w", err)
	}

	current, err := s.currentVersion(ctx)
	if err != nil {
		return fmt.Errorf("store: read migration version: %w", err)
	}
	for _, step := range pendingSteps(current) {
		if err := s.applyStep(ctx, step); err != nil {
			return fmt.Errorf("store: migration v%d: %w", step.Version, err)
		}
	}
	return nil
}

func pendingSteps(current int) []schemaStep {
	for i, step := range migrations {
		if step.Version > current {
			return migrations[i:]
		}
	}
	return nil
}

// currentVersion is 0 on a fresh database.
func (s *Store) currentVersion(ctx context.Context) (int, error) {
	var version int
	err := sqlscan.Get(ctx, s.writer, &version, `SELECT COALESCE(MAX(version), 0) FROM migrations`)
	return version, err
}

func (s *Store) applyStep(ctx context.Context, step schemaStep) error {
	tx, err := s.writer.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	for _, stmt := range step.Stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO migrations (version, applied_at) VALUES (?, ?)`,
		step.Version, time.Now().UTC().Format(time.RFC3339),
	); err != nil {
		return err
	}
	return tx.Commit()
}
