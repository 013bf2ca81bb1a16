package health

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestCheckAllHealthy(t *testing.T) {
	status := Check(context.Background(), map[string]Probe{
		"database": func(context.Context) error { return nil },
	}, 0)

	require.True(t, status.Healthy)
	require.Equal(t, map[string]string{"database": "ok"}, status.Checks)
	require.Empty(t, status.Issues)
}

func TestCheckReportsFailuresInNameOrder(t *testing.T) {
	status := Check(context.Background(), map[string]Probe{
		"redis":    func(context.Context) error { return errors.New("connection refused") },
		"database": func(context.Context) error { return errors.New("disk I/O error") },
	}, time.Second)

	require.False(t, status.Healthy)
	require.Equal(t, []string{"database: disk I/O error", "redis: connection refused"}, status.Issues)
	require.Equal(t, "fail", status.Checks["redis"])

	raw, err := json.Marshal(status)
	require.NoError(t, err)
	require.NotContains(t, string(raw), "connection refused")
	require.NotContains(t, string(raw), "issues")
}

func TestCheckBoundsSlowProbe(t *testing.T) {
	start := time.Now()
	status := Check(context.Background(), map[string]Probe{
		"redis": func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
	}, 20*time.Millisecond)

	require.False(t, status.Healthy)
	require.Less(t, time.Since(start), time.Second)
}

func TestPingProbeAgainstSQLite(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	var sqlDB *sql.DB
	sqlDB, err = db.DB()
	require.NoError(t, err)

	require.NoError(t, PingProbe(sqlDB)(context.Background()))
	require.NoError(t, sqlDB.Close())
	require.Error(t, PingProbe(sqlDB)(context.Background()))
}
