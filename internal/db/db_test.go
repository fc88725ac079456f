package db

import (
	"context"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnect_InvalidURL(t *testing.T) {
	_, err := Connect(context.Background(), "postgres://user@localhost:notaport/reports")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect to database")
}

func TestMigrateURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"postgres://u:p@localhost:5432/reports?sslmode=disable", "pgx5://u:p@localhost:5432/reports?sslmode=disable"},
		{"postgresql://localhost/reports", "pgx5://localhost/reports"},
		{"pgx5://localhost/reports", "pgx5://localhost/reports"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, migrateURL(tt.in))
	}
}

func TestMigrations_Paired(t *testing.T) {
	ups, err := fs.Glob(migrationFiles, "migrations/*.up.sql")
	require.NoError(t, err)
	downs, err := fs.Glob(migrationFiles, "migrations/*.down.sql")
	require.NoError(t, err)

	assert.NotEmpty(t, ups)
	assert.Equal(t, len(ups), len(downs))
}

func TestMigrations_ResultStatusCheck(t *testing.T) {
	data, err := migrationFiles.ReadFile("migrations/000001_create_results.up.sql")
	require.NoError(t, err)
	// Status values must match the result store's encoding
	assert.Contains(t, string(data), "CHECK (status IN ('success', 'failed'))")
}
