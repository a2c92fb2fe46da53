package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sqliteConfig(t *testing.T) Config {
	cfg := DefaultConfig()
	cfg.PrimaryURL = fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000&_txlock=immediate",
		filepath.Join(t.TempDir(), "conn_test.db"))
	return cfg
}

func TestParseReplicaURLs(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{name: "empty string", input: "", expected: nil},
		{name: "single URL", input: "postgres://localhost:5432/db", expected: []string{"postgres://localhost:5432/db"}},
		{
			name:     "URLs with whitespace and empty entries",
			input:    " postgres://host1:5432/db ,, postgres://host2:5432/db ,",
			expected: []string{"postgres://host1:5432/db", "postgres://host2:5432/db"},
		},
		{name: "only commas", input: " , , ", expected: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseReplicaURLs(tt.input))
		})
	}
}

func TestNewConnectionManager_UnsupportedDriver(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Driver = "mysql"

	cm, err := NewConnectionManager(context.Background(), cfg, nil)
	assert.Error(t, err)
	assert.Nil(t, cm)
	assert.Contains(t, err.Error(), "unsupported database driver")
}

func TestNewConnectionManager_SQLiteAutoMigrate(t *testing.T) {
	ctx := context.Background()
	cm, err := NewConnectionManager(ctx, sqliteConfig(t), nil)
	require.NoError(t, err)
	defer cm.Close()

	assert.Equal(t, DriverSQLite, cm.Driver())
	assert.NoError(t, cm.HealthCheck(ctx))

	version, err := MigrationVersion(ctx, cm.Primary(), DriverSQLite)
	require.NoError(t, err)
	assert.Equal(t, int64(4), version)

	for _, table := range []string{"user_roles", "customers", "customer_associations", "modules", "licenses", "reports", "outbox_events", "audit_events"} {
		var name string
		err := cm.Primary().QueryRowContext(ctx,
			"SELECT name FROM sqlite_master WHERE type = 'table' AND name = $1", table).Scan(&name)
		assert.NoError(t, err, "table %s should exist", table)
	}
}

func TestNewConnectionManager_SkipsUnreachableReplica(t *testing.T) {
	cfg := sqliteConfig(t)
	cfg.ReplicaURLs = []string{"file:/nonexistent-dir/replica.db?mode=ro"}

	cm, err := NewConnectionManager(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer cm.Close()

	assert.Empty(t, cm.Stats().Replicas)
	assert.Equal(t, cm.Primary(), cm.Replica(), "Should fall back to primary when no replicas")
}

func TestConnectionManager_ReplicaRoundRobin(t *testing.T) {
	primary := &sql.DB{}
	r1 := &sql.DB{}
	r2 := &sql.DB{}
	cm := &ConnectionManager{primary: primary, replicas: []*sql.DB{r1, r2}}

	seen := map[*sql.DB]int{}
	for i := 0; i < 10; i++ {
		seen[cm.Replica()]++
	}

	assert.Equal(t, 5, seen[r1])
	assert.Equal(t, 5, seen[r2])
	assert.Zero(t, seen[primary])
}

func TestConnectionManager_HealthCheck(t *testing.T) {
	t.Run("primary down", func(t *testing.T) {
		db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectPing().WillReturnError(errors.New("connection refused"))

		cm := &ConnectionManager{primary: db}
		err = cm.HealthCheck(context.Background())
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "primary unhealthy")
	})

	t.Run("all replicas down", func(t *testing.T) {
		primary, pmock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
		require.NoError(t, err)
		defer primary.Close()
		replica, rmock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
		require.NoError(t, err)
		defer replica.Close()

		pmock.ExpectPing()
		rmock.ExpectPing().WillReturnError(errors.New("timeout"))

		cm := &ConnectionManager{primary: primary, replicas: []*sql.DB{replica}}
		err = cm.HealthCheck(context.Background())
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "all replicas unhealthy")
	})
}

func TestMigrate_UnsupportedDriver(t *testing.T) {
	err := Migrate(context.Background(), &sql.DB{}, "oracle")
	assert.Error(t, err)
}

func TestMigrate_Idempotent(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cm, err := NewConnectionManager(ctx, sqliteConfig(t), nil)
	require.NoError(t, err)
	defer cm.Close()

	assert.NoError(t, Migrate(ctx, cm.Primary(), DriverSQLite))
}

func TestIsUniqueViolation(t *testing.T) {
	ctx := context.Background()
	cm, err := NewConnectionManager(ctx, sqliteConfig(t), nil)
	require.NoError(t, err)
	defer cm.Close()

	now := time.Now().UTC()
	insert := "INSERT INTO user_roles (user_id, role, created_at, updated_at) VALUES ($1, $2, $3, $4)"
	_, err = cm.Primary().ExecContext(ctx, insert, "user-1", "reseller", now, now)
	require.NoError(t, err)

	_, err = cm.Primary().ExecContext(ctx, insert, "user-1", "superadmin", now, now)
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(err))
	assert.False(t, IsUniqueViolation(errors.New("some other error")))
}
