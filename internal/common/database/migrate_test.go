package database

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMigrationStatements(t *testing.T) {
	stmts := MigrationStatements()
	all := strings.Join(stmts, "\n")

	assert.Contains(t, all, "ON notification_queue (type, created_at, id)")
	assert.Contains(t, all, "WHERE is_processing = false AND is_dead_letter = false AND completed_at IS NULL")
	assert.Contains(t, all, "ALTER TABLE notification_queue ADD CONSTRAINT fk_notification_queue_notification_id FOREIGN KEY (notification_id) REFERENCES notifications(id) ON DELETE RESTRICT")
	assert.Equal(t, len(foreignKeys), strings.Count(all, "ON DELETE RESTRICT"))

	for _, s := range stmts {
		idempotent := strings.Contains(s, "IF NOT EXISTS")
		assert.True(t, idempotent, "statement is not idempotent: %s", s)
	}
}

func TestSchemaModels(t *testing.T) {
	assert.Len(t, SchemaModels(), 6)
}
