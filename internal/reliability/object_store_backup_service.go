package reliability

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/sentinel/internal/version"
)

// objectStore is the narrow upload/list/delete surface
// ObjectStoreBackupService depends on. ObjectStoreClient satisfies it;
// tests substitute a fake so rotation/listing logic doesn't need a live
// S3-compatible endpoint.
type objectStore interface {
	Upload(ctx context.Context, key string, body io.Reader, size int64) error
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	Delete(ctx context.Context, key string) error
}

// ObjectStoreBackupService snapshots every logical database, archives the
// snapshots with metadata into one tar.gz, and ships it to S3-compatible
// object storage with rotation — the teacher's R2BackupService, adapted
// from a Cloudflare-specific client to the generic ObjectStoreClient above
// and from its fixed database set to this persistence layer's four.
type ObjectStoreBackupService struct {
	store   objectStore
	backups *BackupService
	dataDir string
	log     zerolog.Logger
}

// BackupMetadata describes one archive's contents.
type BackupMetadata struct {
	Timestamp       time.Time          `json:"timestamp"`
	ArchiveVersion  string             `json:"archive_version"`
	SentinelVersion string             `json:"sentinel_version"`
	Databases       []DatabaseMetadata `json:"databases"`
}

// DatabaseMetadata describes one database file inside an archive.
type DatabaseMetadata struct {
	Name      string `json:"name"`
	Filename  string `json:"filename"`
	SizeBytes int64  `json:"size_bytes"`
	Checksum  string `json:"checksum"`
}

// BackupInfo is one backup listed from object storage.
type BackupInfo struct {
	Filename  string
	Timestamp time.Time
	SizeBytes int64
	AgeHours  int64
}

const archivePrefix = "sentinel-backup-"
const archiveTimestampLayout = "2006-01-02-150405"

// NewObjectStoreBackupService creates the backup-to-object-storage
// service over a local BackupService (VACUUM INTO snapshots) and an
// ObjectStoreClient (upload/list/delete).
func NewObjectStoreBackupService(store *ObjectStoreClient, backups *BackupService, dataDir string, log zerolog.Logger) *ObjectStoreBackupService {
	return newObjectStoreBackupService(store, backups, dataDir, log)
}

func newObjectStoreBackupService(store objectStore, backups *BackupService, dataDir string, log zerolog.Logger) *ObjectStoreBackupService {
	return &ObjectStoreBackupService{
		store:   store,
		backups: backups,
		dataDir: dataDir,
		log:     log.With().Str("service", "object_store_backup").Logger(),
	}
}

// CreateAndUpload snapshots every database (including cache), archives
// them with a metadata manifest, and uploads the archive.
func (s *ObjectStoreBackupService) CreateAndUpload(ctx context.Context) error {
	start := time.Now()

	stagingDir := filepath.Join(s.dataDir, "backup-staging")
	if err := os.MkdirAll(stagingDir, 0755); err != nil {
		return fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer os.RemoveAll(stagingDir)

	dbNames := s.backups.GetDatabaseNames(true)
	metadata := BackupMetadata{
		Timestamp:       time.Now().UTC(),
		ArchiveVersion:  "1.0.0",
		SentinelVersion: version.Version,
		Databases:       make([]DatabaseMetadata, 0, len(dbNames)),
	}

	for _, dbName := range dbNames {
		dbPath := filepath.Join(stagingDir, dbName+".db")
		if err := s.backups.BackupDatabase(dbName, dbPath); err != nil {
			return fmt.Errorf("failed to back up %s: %w", dbName, err)
		}

		info, err := os.Stat(dbPath)
		if err != nil {
			return fmt.Errorf("failed to stat %s backup: %w", dbName, err)
		}
		checksum, err := checksumFile(dbPath)
		if err != nil {
			return fmt.Errorf("failed to checksum %s backup: %w", dbName, err)
		}

		metadata.Databases = append(metadata.Databases, DatabaseMetadata{
			Name:      dbName,
			Filename:  dbName + ".db",
			SizeBytes: info.Size(),
			Checksum:  checksum,
		})
	}

	metadataPath := filepath.Join(stagingDir, "backup-metadata.json")
	if err := writeMetadata(metadataPath, metadata); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}

	timestamp := time.Now().Format(archiveTimestampLayout)
	archiveName := fmt.Sprintf("%s%s.tar.gz", archivePrefix, timestamp)
	archivePath := filepath.Join(stagingDir, archiveName)

	if err := createArchive(archivePath, stagingDir, append(dbNames, "backup-metadata")); err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}

	archiveFile, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer archiveFile.Close()
	archiveInfo, err := archiveFile.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat archive: %w", err)
	}

	if err := s.store.Upload(ctx, archiveName, archiveFile, archiveInfo.Size()); err != nil {
		return fmt.Errorf("failed to upload archive: %w", err)
	}

	s.log.Info().
		Dur("elapsed", time.Since(start)).
		Str("archive", archiveName).
		Int64("size_mb", archiveInfo.Size()/1024/1024).
		Msg("backup uploaded")
	return nil
}

// ListBackups lists every archive in object storage, newest first.
func (s *ObjectStoreBackupService) ListBackups(ctx context.Context) ([]BackupInfo, error) {
	objects, err := s.store.List(ctx, archivePrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list backups: %w", err)
	}

	now := time.Now()
	backups := make([]BackupInfo, 0, len(objects))
	for _, obj := range objects {
		if !strings.HasSuffix(obj.Key, ".tar.gz") {
			continue
		}
		timestampStr := strings.TrimSuffix(strings.TrimPrefix(obj.Key, archivePrefix), ".tar.gz")
		timestamp, err := time.Parse(archiveTimestampLayout, timestampStr)
		if err != nil {
			s.log.Warn().Str("key", obj.Key).Msg("failed to parse timestamp from backup filename")
			continue
		}
		backups = append(backups, BackupInfo{
			Filename:  obj.Key,
			Timestamp: timestamp,
			SizeBytes: obj.Size,
			AgeHours:  int64(now.Sub(timestamp).Hours()),
		})
	}

	sort.Slice(backups, func(i, j int) bool { return backups[i].Timestamp.After(backups[j].Timestamp) })
	return backups, nil
}

// minBackupsToKeep is the floor RotateOldBackups never deletes below,
// regardless of retentionDays, so a misconfigured short retention window
// can't wipe every recovery point.
const minBackupsToKeep = 3

// RotateOldBackups deletes backups older than retentionDays, always
// keeping at least minBackupsToKeep regardless of age. retentionDays == 0
// means keep forever.
func (s *ObjectStoreBackupService) RotateOldBackups(ctx context.Context, retentionDays int) error {
	backups, err := s.ListBackups(ctx)
	if err != nil {
		return fmt.Errorf("failed to list backups for rotation: %w", err)
	}
	if len(backups) <= minBackupsToKeep || retentionDays == 0 {
		return nil
	}

	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	deleted := 0
	for i, backup := range backups {
		if i < minBackupsToKeep {
			continue
		}
		if backup.Timestamp.Before(cutoff) {
			if err := s.store.Delete(ctx, backup.Filename); err != nil {
				s.log.Warn().Err(err).Str("filename", backup.Filename).Msg("failed to delete old backup")
				continue
			}
			deleted++
		}
	}
	s.log.Info().Int("deleted", deleted).Int("remaining", len(backups)-deleted).Msg("backup rotation completed")
	return nil
}

// BackupJob wraps ObjectStoreBackupService as a scheduler.Job (satisfied
// structurally, without importing the scheduler package) so a daily
// snapshot-upload-and-rotate cycle can be registered on the scheduler's
// cron alongside the other C12 jobs.
type BackupJob struct {
	service       *ObjectStoreBackupService
	retentionDays int
}

// NewBackupJob creates the scheduled backup-and-rotate job.
func NewBackupJob(service *ObjectStoreBackupService, retentionDays int) *BackupJob {
	return &BackupJob{service: service, retentionDays: retentionDays}
}

func (j *BackupJob) Name() string { return "object_store_backup" }

func (j *BackupJob) Run(ctx context.Context) error {
	if err := j.service.CreateAndUpload(ctx); err != nil {
		return fmt.Errorf("backup upload failed: %w", err)
	}
	return j.service.RotateOldBackups(ctx, j.retentionDays)
}

func checksumFile(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}
	return fmt.Sprintf("sha256:%x", hash.Sum(nil)), nil
}

func writeMetadata(path string, metadata BackupMetadata) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(metadata)
}

func createArchive(archivePath, sourceDir string, basenames []string) error {
	archiveFile, err := os.Create(archivePath)
	if err != nil {
		return fmt.Errorf("failed to create archive file: %w", err)
	}
	defer archiveFile.Close()

	gzipWriter := gzip.NewWriter(archiveFile)
	defer gzipWriter.Close()
	tarWriter := tar.NewWriter(gzipWriter)
	defer tarWriter.Close()

	for _, basename := range basenames {
		filename := basename + ".db"
		if basename == "backup-metadata" {
			filename = "backup-metadata.json"
		}
		if err := addFileToArchive(tarWriter, filepath.Join(sourceDir, filename), filename); err != nil {
			return fmt.Errorf("failed to add %s to archive: %w", filename, err)
		}
	}
	return nil
}

func addFileToArchive(tarWriter *tar.Writer, filePath, nameInArchive string) error {
	file, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return err
	}

	header := &tar.Header{Name: nameInArchive, Size: info.Size(), Mode: int64(info.Mode()), ModTime: info.ModTime()}
	if err := tarWriter.WriteHeader(header); err != nil {
		return err
	}
	_, err = io.Copy(tarWriter, file)
	return err
}
