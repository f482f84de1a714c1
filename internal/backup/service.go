// Package backup snapshots the store's backing file on a schedule and
// restores validated snapshots atomically.
package backup

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/exportdesk-io/exportdesk-ce/internal/database"
	"github.com/exportdesk-io/exportdesk-ce/internal/metrics"
	"github.com/exportdesk-io/exportdesk-ce/internal/models"
	"github.com/exportdesk-io/exportdesk-ce/internal/version"
)

const (
	backupPrefix     = "efm_backup_"
	backupTimeLayout = "2006-01-02T15-04-05"
	infoSuffix       = ".info"

	// DefaultRetention is how many snapshots survive pruning when the
	// config does not say otherwise.
	DefaultRetention = 10

	quiesceTimeout = 30 * time.Second
)

// Config controls scheduled backups. It lives in backup_config.json next
// to the store file.
type Config struct {
	Enabled       bool   `json:"auto_backup_enabled"`
	Frequency     string `json:"backup_frequency"` // daily or weekly
	BackupTime    string `json:"backup_time"`      // HH:MM, 24h
	KeepBackups   int    `json:"keep_backups"`
	BackupOnStart bool   `json:"backup_on_startup"`
	LastBackup    string `json:"last_backup,omitempty"`
}

// Normalize fills defaults and discards unknown frequencies.
func (c *Config) Normalize() {
	if c.Frequency != "weekly" {
		c.Frequency = "daily"
	}
	if c.KeepBackups <= 0 {
		c.KeepBackups = DefaultRetention
	}
	if _, err := time.Parse("15:04", c.BackupTime); err != nil {
		c.BackupTime = "02:30"
	}
}

// CronSpec renders the config as a cron schedule for the auto-backup job.
func (c *Config) CronSpec() string {
	t, _ := time.Parse("15:04", c.BackupTime)
	if c.Frequency == "weekly" {
		return fmt.Sprintf("%d %d * * 0", t.Minute(), t.Hour())
	}
	return fmt.Sprintf("%d %d * * *", t.Minute(), t.Hour())
}

// Info is the sidecar metadata written next to every snapshot.
type Info struct {
	ID          string    `json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	Description string    `json:"description"`
	SizeBytes   int64     `json:"size"`
	Version     string    `json:"version"`
	File        string    `json:"file"`
}

// Service snapshots and restores the store file.
type Service struct {
	storePath string
	dir       string
	gate      *database.Gate
	db        *sql.DB
	retention int
	logger    *log.Logger
	now       func() time.Time
}

// Option customizes the service.
type Option func(*Service)

// WithLogger overrides the logger.
func WithLogger(logger *log.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the time source for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithDB hands the service the live store connection so snapshots can
// checkpoint the write-ahead log through it. Without a handle the store
// runs in WAL mode and recent commits live in the -wal sidecar, which a
// plain file copy would miss.
func WithDB(db *sql.DB) Option {
	return func(s *Service) {
		s.db = db
	}
}

// WithRetention sets how many snapshots survive pruning.
func WithRetention(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.retention = n
		}
	}
}

// NewService builds a backup service for the store at storePath, writing
// snapshots to dir. The gate must be the one store writers hold.
func NewService(storePath, dir string, gate *database.Gate, opts ...Option) *Service {
	s := &Service{
		storePath: storePath,
		dir:       dir,
		gate:      gate,
		retention: DefaultRetention,
		logger:    log.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LoadConfig reads the backup configuration next to the store file.
// A missing file yields the disabled default.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		cfg := &Config{}
		cfg.Normalize()
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read backup config: %w", err)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: malformed backup config: %v", models.ErrConfiguration, err)
	}
	cfg.Normalize()
	return &cfg, nil
}

// SaveConfig writes the backup configuration.
func SaveConfig(path string, cfg *Config) error {
	cfg.Normalize()
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode backup config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write backup config: %w", err)
	}
	return nil
}

// Run takes one snapshot: quiesce writers, copy the store file atomically,
// write the sidecar, prune old snapshots.
func (s *Service) Run(ctx context.Context, description string) (*Info, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		metrics.BackupRuns.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}

	quiesceCtx, cancel := context.WithTimeout(ctx, quiesceTimeout)
	defer cancel()
	release, err := s.gate.Quiesce(quiesceCtx)
	if err != nil {
		metrics.BackupRuns.WithLabelValues("error").Inc()
		return nil, err
	}

	if err := s.checkpoint(ctx); err != nil {
		release()
		metrics.BackupRuns.WithLabelValues("error").Inc()
		return nil, err
	}

	stamp := s.now().UTC()
	name := backupPrefix + stamp.Format(backupTimeLayout) + ".db"
	target := filepath.Join(s.dir, name)
	size, err := copyFileAtomic(s.storePath, target)
	release()
	if err != nil {
		metrics.BackupRuns.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to copy store file: %w", err)
	}

	info := &Info{
		ID:          uuid.NewString(),
		CreatedAt:   stamp,
		Description: description,
		SizeBytes:   size,
		Version:     version.Version,
		File:        name,
	}
	if err := writeInfo(target+infoSuffix, info); err != nil {
		metrics.BackupRuns.WithLabelValues("error").Inc()
		return nil, err
	}

	if err := s.prune(); err != nil {
		s.logger.Printf("[WARN] backup retention prune failed: %v", err)
	}

	metrics.BackupRuns.WithLabelValues("ok").Inc()
	s.logger.Printf("[INFO] backup %s written (%d bytes)", name, size)
	return info, nil
}

// checkpoint folds the write-ahead log into the main store file so the
// file copy below captures every committed transaction. Writers are
// already quiesced when this runs.
func (s *Service) checkpoint(ctx context.Context) error {
	if s.db != nil {
		if _, err := s.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
			return fmt.Errorf("failed to checkpoint store journal: %w", err)
		}
		return nil
	}
	// No live handle: fold a journal left over from a previous session.
	if _, err := os.Stat(s.storePath + "-wal"); os.IsNotExist(err) {
		return nil
	}
	db, err := database.Open(s.storePath)
	if err != nil {
		return fmt.Errorf("failed to open store for checkpoint: %w", err)
	}
	defer db.Close()
	if _, err := db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("failed to checkpoint store journal: %w", err)
	}
	return nil
}

// List returns the available snapshots, newest first.
func (s *Service) List() ([]*Info, error) {
	entries, err := os.ReadDir(s.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}

	var out []*Info
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, backupPrefix) || !strings.HasSuffix(name, ".db") {
			continue
		}
		info, err := readInfo(filepath.Join(s.dir, name+infoSuffix))
		if err != nil {
			// Sidecar lost; synthesize from the file itself.
			stat, statErr := entry.Info()
			if statErr != nil {
				continue
			}
			info = &Info{File: name, CreatedAt: stat.ModTime(), SizeBytes: stat.Size()}
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// Restore replaces the live store file with the named snapshot. The
// snapshot must open and validate as the expected schema; the live file
// is snapshotted first so a bad restore can itself be undone.
func (s *Service) Restore(ctx context.Context, name string) error {
	candidate := filepath.Join(s.dir, filepath.Base(name))
	if _, err := os.Stat(candidate); err != nil {
		return fmt.Errorf("%w: backup %s not found", models.ErrNotFound, name)
	}

	// Stage the candidate next to the store before anything else: the
	// pre-restore snapshot below prunes old backups, and the candidate
	// itself may be the oldest one in the directory.
	staged := filepath.Join(filepath.Dir(s.storePath), ".restore-"+filepath.Base(candidate))
	if _, err := copyFileAtomic(candidate, staged); err != nil {
		return fmt.Errorf("failed to stage backup for restore: %w", err)
	}
	defer func() {
		os.Remove(staged)
		os.Remove(staged + "-wal")
		os.Remove(staged + "-shm")
	}()

	db, err := database.Open(staged)
	if err != nil {
		return fmt.Errorf("%w: backup is not a usable store file: %v", models.ErrValidation, err)
	}
	validateErr := database.ValidateSchema(db)
	db.Close()
	if validateErr != nil {
		return fmt.Errorf("%w: backup failed schema validation: %v", models.ErrValidation, validateErr)
	}

	if _, err := s.Run(ctx, "pre-restore snapshot"); err != nil {
		return fmt.Errorf("failed to snapshot live store before restore: %w", err)
	}

	quiesceCtx, cancel := context.WithTimeout(ctx, quiesceTimeout)
	defer cancel()
	release, err := s.gate.Quiesce(quiesceCtx)
	if err != nil {
		return err
	}
	defer release()

	if _, err := copyFileAtomic(staged, s.storePath); err != nil {
		return fmt.Errorf("failed to replace store file: %w", err)
	}
	// Journal sidecars belong to the replaced file; left behind they
	// would shadow the restored contents on the next open.
	for _, suffix := range []string{"-wal", "-shm"} {
		if err := os.Remove(s.storePath + suffix); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove stale journal %s: %w", s.storePath+suffix, err)
		}
	}
	s.logger.Printf("[INFO] store restored from %s", name)
	return nil
}

// prune deletes the oldest snapshots beyond the retention count, sidecars
// included.
func (s *Service) prune() error {
	infos, err := s.List()
	if err != nil {
		return err
	}
	if len(infos) <= s.retention {
		return nil
	}
	for _, info := range infos[s.retention:] {
		path := filepath.Join(s.dir, info.File)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove old backup %s: %w", info.File, err)
		}
		if err := os.Remove(path + infoSuffix); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove sidecar for %s: %w", info.File, err)
		}
		s.logger.Printf("[INFO] pruned old backup %s", info.File)
	}
	return nil
}

// copyFileAtomic copies src to dst via a temp file and rename, returning
// the copied size.
func copyFileAtomic(src, dst string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".tmp-backup-*")
	if err != nil {
		return 0, err
	}
	size, err := io.Copy(tmp, in)
	if err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return 0, err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return 0, err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return 0, err
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		os.Remove(tmp.Name())
		return 0, err
	}
	return size, nil
}

func writeInfo(path string, info *Info) error {
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode backup metadata: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write backup metadata: %w", err)
	}
	return nil
}

func readInfo(path string) (*Info, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var info Info
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, err
	}
	return &info, nil
}
