package reliability

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/sentinel/internal/database"
)

func newTestDB(t *testing.T, name string) *database.DB {
	t.Helper()
	dir := t.TempDir()
	db, err := database.New(database.Config{
		Path:    filepath.Join(dir, name+".db"),
		Profile: database.ProfileStandard,
		Name:    name,
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestBackupServiceBackupDatabaseProducesVerifiableSnapshot(t *testing.T) {
	marketDB := newTestDB(t, "market")
	_, err := marketDB.Conn().Exec("CREATE TABLE prices (id INTEGER PRIMARY KEY, symbol TEXT)")
	require.NoError(t, err)
	_, err = marketDB.Conn().Exec("INSERT INTO prices (symbol) VALUES ('AAPL'), ('MSFT')")
	require.NoError(t, err)

	databases := map[string]*database.DB{"market": marketDB}
	backupDir := t.TempDir()
	svc := NewBackupService(databases, backupDir, zerolog.Nop())

	destPath := filepath.Join(backupDir, "market.db")
	require.NoError(t, svc.BackupDatabase("market", destPath))
	require.NoError(t, svc.VerifyBackup(destPath))

	snapshot, err := sql.Open("sqlite", destPath)
	require.NoError(t, err)
	defer snapshot.Close()

	var count int
	require.NoError(t, snapshot.QueryRow("SELECT COUNT(*) FROM prices").Scan(&count))
	assert.Equal(t, 2, count)
}

func TestBackupServiceBackupDatabaseUnknownNameFails(t *testing.T) {
	svc := NewBackupService(map[string]*database.DB{}, t.TempDir(), zerolog.Nop())
	err := svc.BackupDatabase("missing", filepath.Join(t.TempDir(), "missing.db"))
	assert.Error(t, err)
}

func TestBackupServiceGetDatabaseNamesRespectsIncludeCache(t *testing.T) {
	databases := map[string]*database.DB{
		"market": newTestDB(t, "market"),
		"cache":  newTestDB(t, "cache"),
	}
	svc := NewBackupService(databases, t.TempDir(), zerolog.Nop())

	withoutCache := svc.GetDatabaseNames(false)
	assert.ElementsMatch(t, []string{"market"}, withoutCache)

	withCache := svc.GetDatabaseNames(true)
	assert.ElementsMatch(t, []string{"market", "cache"}, withCache)
}

func TestDailyMaintenanceJobCheckspointsAndPasses(t *testing.T) {
	databases := map[string]*database.DB{
		"market": newTestDB(t, "market"),
	}
	job := NewDailyMaintenanceJob(databases, t.TempDir(), zerolog.Nop())
	assert.Equal(t, "daily_maintenance", job.Name())
	assert.NoError(t, job.Run(context.Background()))
}

func TestFreeDiskGBReturnsReadingForRealDirectory(t *testing.T) {
	// A path with near-zero free space can't be manufactured portably, so
	// the critical-disk halt is not exercised here; this checks that
	// freeDiskGB returns a sane, non-error reading for a real directory.
	gb, err := freeDiskGB(os.TempDir())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, gb, 0.0)
}

func TestDailyMaintenanceJobRespectsContextCancellation(t *testing.T) {
	databases := map[string]*database.DB{
		"market": newTestDB(t, "market"),
	}
	job := NewDailyMaintenanceJob(databases, t.TempDir(), zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := job.Run(ctx)
	assert.Error(t, err)
}
