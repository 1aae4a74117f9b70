package postgres

import (
	"context"
	_ "embed"
	"fmt"
)

//go:embed schema.sql
var schemaSQL string

// Schema returns the DDL applied by ApplySchema.
func Schema() string {
	return schemaSQL
}

// ApplySchema creates missing tables and indexes. Statements are idempotent.
func ApplySchema(ctx context.Context, p *Pool) error {
	if _, err := p.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
