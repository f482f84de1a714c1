package backup

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exportdesk-io/exportdesk-ce/internal/database"
	"github.com/exportdesk-io/exportdesk-ce/internal/models"
	"github.com/exportdesk-io/exportdesk-ce/internal/repository"
)

// newTestStore materialises a migrated store file with one client and
// returns its path. The connection is closed so the WAL is checkpointed
// into the main file before any copy.
func newTestStore(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "store.db")
	db, err := database.OpenAndMigrate(path)
	require.NoError(t, err)
	email := "sales@acme-exports.com"
	_, err = repository.NewClientRepository(db).Create(context.Background(), &models.Client{
		CompanyName: "Acme Exports",
		Email:       &email,
		DateAdded:   time.Now(),
	})
	require.NoError(t, err)
	require.NoError(t, db.Close())
	return path
}

func newTestService(t *testing.T, opts ...Option) (*Service, string, *time.Time) {
	t.Helper()
	storePath := newTestStore(t)
	clock := time.Date(2025, 6, 15, 2, 30, 0, 0, time.UTC)
	opts = append([]Option{WithClock(func() time.Time { return clock })}, opts...)
	svc := NewService(storePath, filepath.Join(filepath.Dir(storePath), "backups"),
		&database.Gate{}, opts...)
	return svc, storePath, &clock
}

func TestConfigNormalize(t *testing.T) {
	t.Run("empty gets defaults", func(t *testing.T) {
		cfg := &Config{}
		cfg.Normalize()
		assert.False(t, cfg.Enabled)
		assert.Equal(t, "daily", cfg.Frequency)
		assert.Equal(t, DefaultRetention, cfg.KeepBackups)
		assert.Equal(t, "02:30", cfg.BackupTime)
	})

	t.Run("weekly survives", func(t *testing.T) {
		cfg := &Config{Frequency: "weekly", BackupTime: "14:05", KeepBackups: 3}
		cfg.Normalize()
		assert.Equal(t, "weekly", cfg.Frequency)
		assert.Equal(t, "14:05", cfg.BackupTime)
		assert.Equal(t, 3, cfg.KeepBackups)
	})

	t.Run("bad time replaced", func(t *testing.T) {
		cfg := &Config{BackupTime: "25:99"}
		cfg.Normalize()
		assert.Equal(t, "02:30", cfg.BackupTime)
	})
}

func TestConfigCronSpec(t *testing.T) {
	daily := &Config{Frequency: "daily", BackupTime: "02:30"}
	assert.Equal(t, "30 2 * * *", daily.CronSpec())

	weekly := &Config{Frequency: "weekly", BackupTime: "14:05"}
	assert.Equal(t, "5 14 * * 0", weekly.CronSpec())
}

func TestConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backup_config.json")

	t.Run("missing file yields disabled default", func(t *testing.T) {
		cfg, err := LoadConfig(path)
		require.NoError(t, err)
		assert.False(t, cfg.Enabled)
		assert.Equal(t, "daily", cfg.Frequency)
	})

	t.Run("save and reload", func(t *testing.T) {
		require.NoError(t, SaveConfig(path, &Config{
			Enabled:     true,
			Frequency:   "weekly",
			BackupTime:  "03:15",
			KeepBackups: 5,
		}))

		raw, err := os.ReadFile(path)
		require.NoError(t, err)
		for _, key := range []string{"auto_backup_enabled", "backup_frequency", "backup_time", "keep_backups", "backup_on_startup"} {
			assert.Contains(t, string(raw), key)
		}

		cfg, err := LoadConfig(path)
		require.NoError(t, err)
		assert.True(t, cfg.Enabled)
		assert.Equal(t, "weekly", cfg.Frequency)
		assert.Equal(t, "03:15", cfg.BackupTime)
		assert.Equal(t, 5, cfg.KeepBackups)
	})

	t.Run("malformed file", func(t *testing.T) {
		require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
		_, err := LoadConfig(path)
		assert.ErrorIs(t, err, models.ErrConfiguration)
	})
}

func TestRunCreatesSnapshotAndSidecar(t *testing.T) {
	svc, _, _ := newTestService(t)

	info, err := svc.Run(context.Background(), "nightly")
	require.NoError(t, err)
	assert.NotEmpty(t, info.ID)
	assert.Equal(t, "nightly", info.Description)
	assert.Greater(t, info.SizeBytes, int64(0))
	assert.True(t, strings.HasPrefix(info.File, "efm_backup_"))
	assert.True(t, strings.HasSuffix(info.File, ".db"))

	_, err = os.Stat(filepath.Join(svc.dir, info.File))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(svc.dir, info.File+".info"))
	require.NoError(t, err)

	got, err := svc.List()
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, info.ID, got[0].ID)
	assert.Equal(t, "nightly", got[0].Description)
}

func TestRunCapturesCommitsUnderOpenConnection(t *testing.T) {
	// The store runs in WAL mode: while a connection is open, committed
	// rows live in the -wal sidecar, not the main file. A snapshot taken
	// without checkpointing through the live handle misses all of them.
	storePath := filepath.Join(t.TempDir(), "store.db")
	db, err := database.OpenAndMigrate(storePath)
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	email := "sales@acme-exports.com"
	_, err = repository.NewClientRepository(db).Create(ctx, &models.Client{
		CompanyName: "Acme Exports",
		Email:       &email,
		DateAdded:   time.Now(),
	})
	require.NoError(t, err)

	svc := NewService(storePath, filepath.Join(filepath.Dir(storePath), "backups"),
		&database.Gate{}, WithDB(db))
	info, err := svc.Run(ctx, "with live writers")
	require.NoError(t, err)

	snap, err := database.Open(filepath.Join(svc.dir, info.File))
	require.NoError(t, err)
	defer snap.Close()
	var count int
	require.NoError(t, snap.QueryRow(`SELECT COUNT(*) FROM clients`).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestRunPrunesBeyondRetention(t *testing.T) {
	svc, _, clock := newTestService(t, WithRetention(2))
	ctx := context.Background()

	var names []string
	for i := 0; i < 3; i++ {
		info, err := svc.Run(ctx, "sweep")
		require.NoError(t, err)
		names = append(names, info.File)
		*clock = clock.Add(time.Hour)
	}

	got, err := svc.List()
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, names[2], got[0].File)
	assert.Equal(t, names[1], got[1].File)

	_, err = os.Stat(filepath.Join(svc.dir, names[0]))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(svc.dir, names[0]+".info"))
	assert.True(t, os.IsNotExist(err))
}

func TestListSynthesizesLostSidecar(t *testing.T) {
	svc, _, _ := newTestService(t)

	info, err := svc.Run(context.Background(), "nightly")
	require.NoError(t, err)
	require.NoError(t, os.Remove(filepath.Join(svc.dir, info.File+".info")))

	got, err := svc.List()
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Empty(t, got[0].ID)
	assert.Equal(t, info.File, got[0].File)
	assert.Greater(t, got[0].SizeBytes, int64(0))
}

func TestListEmptyDirectory(t *testing.T) {
	svc, _, _ := newTestService(t)
	got, err := svc.List()
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRestoreRollsBackStore(t *testing.T) {
	svc, storePath, clock := newTestService(t)
	ctx := context.Background()

	info, err := svc.Run(ctx, "before second client")
	require.NoError(t, err)

	db, err := database.Open(storePath)
	require.NoError(t, err)
	second := "info@basmatihouse.in"
	_, err = repository.NewClientRepository(db).Create(ctx, &models.Client{
		CompanyName: "Basmati House",
		Email:       &second,
		DateAdded:   time.Now(),
	})
	require.NoError(t, err)
	require.NoError(t, db.Close())

	// The pre-restore snapshot must not collide with the candidate's name.
	*clock = clock.Add(time.Hour)
	require.NoError(t, svc.Restore(ctx, info.File))

	db, err = database.Open(storePath)
	require.NoError(t, err)
	defer db.Close()
	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM clients`).Scan(&count))
	assert.Equal(t, 1, count)

	// The live store was snapshotted before being replaced.
	got, err := svc.List()
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "pre-restore snapshot", got[0].Description)
}

func TestRestoreSurvivesRetentionPrune(t *testing.T) {
	// With retention 1 the pre-restore snapshot evicts the candidate
	// from the backup directory mid-restore; the staged copy has to
	// carry the restore through anyway.
	svc, storePath, clock := newTestService(t, WithRetention(1))
	ctx := context.Background()

	info, err := svc.Run(ctx, "only snapshot")
	require.NoError(t, err)

	db, err := database.Open(storePath)
	require.NoError(t, err)
	second := "info@basmatihouse.in"
	_, err = repository.NewClientRepository(db).Create(ctx, &models.Client{
		CompanyName: "Basmati House",
		Email:       &second,
		DateAdded:   time.Now(),
	})
	require.NoError(t, err)
	require.NoError(t, db.Close())

	*clock = clock.Add(time.Hour)
	require.NoError(t, svc.Restore(ctx, info.File))

	db, err = database.Open(storePath)
	require.NoError(t, err)
	defer db.Close()
	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM clients`).Scan(&count))
	assert.Equal(t, 1, count)

	// Only the pre-restore snapshot survives pruning.
	got, err := svc.List()
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "pre-restore snapshot", got[0].Description)

	// No journal sidecars or staging leftovers beside the store.
	for _, path := range []string{storePath + "-wal", storePath + "-shm"} {
		_, err := os.Stat(path)
		assert.True(t, os.IsNotExist(err), path)
	}
	leftovers, err := filepath.Glob(filepath.Join(filepath.Dir(storePath), ".restore-*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestRestoreUnknownSnapshot(t *testing.T) {
	svc, _, _ := newTestService(t)
	err := svc.Restore(context.Background(), "efm_backup_never-was.db")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestRestoreRejectsCorruptSnapshot(t *testing.T) {
	svc, _, _ := newTestService(t)
	require.NoError(t, os.MkdirAll(svc.dir, 0o755))
	name := "efm_backup_2025-06-01T00-00-00.db"
	require.NoError(t, os.WriteFile(filepath.Join(svc.dir, name), []byte("not a store"), 0o644))

	err := svc.Restore(context.Background(), name)
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestQuiesceTimesOutUnderHeldGate(t *testing.T) {
	gate := &database.Gate{}
	storePath := newTestStore(t)
	svc := NewService(storePath, filepath.Join(filepath.Dir(storePath), "backups"), gate)

	gate.Enter()
	defer gate.Leave()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := svc.Run(ctx, "blocked")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
