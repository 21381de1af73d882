package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationNamesSortedAndEmbedded(t *testing.T) {
	names, err := migrationNames()
	require.NoError(t, err)
	require.NotEmpty(t, names)
	assert.Equal(t, "001_schema.sql", names[0])
	assert.IsIncreasing(t, names)
}

func TestSchemaDeclaresTenantKeys(t *testing.T) {
	sql, err := migrationsFS.ReadFile("migrations/001_schema.sql")
	require.NoError(t, err)
	body := string(sql)
	assert.Contains(t, body, "UNIQUE (organization_id, position)")
	assert.Contains(t, body, "idx_applications_org_created")
	assert.Contains(t, body, "idx_notifications_user_created")
}
