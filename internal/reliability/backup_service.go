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

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/rs/zerolog"

	"github.com/aristath/tender/internal/database"
	"github.com/aristath/tender/internal/events"
	"github.com/aristath/tender/internal/version"
)

const (
	backupPrefix    = "tender-backup-"
	backupSuffix    = ".tar.gz"
	backupTimestamp = "2006-01-02-150405"
	metadataFile    = "backup-metadata.json"

	// minBackupsToKeep survive rotation regardless of age
	minBackupsToKeep = 3
)

// BackupService archives the tender database and ships it to S3
type BackupService struct {
	db            *database.DB
	client        *S3Client
	dataDir       string
	retentionDays int
	eventManager  *events.Manager
	now           func() time.Time
	log           zerolog.Logger
}

// BackupMetadata is written next to the database inside each archive
type BackupMetadata struct {
	Timestamp     time.Time `json:"timestamp"`
	Version       string    `json:"version"`
	TenderVersion string    `json:"tender_version"`
	Database      string    `json:"database"`
	Filename      string    `json:"filename"`
	SizeBytes     int64     `json:"size_bytes"`
	Checksum      string    `json:"checksum"`
}

// BackupInfo describes one archive in the bucket
type BackupInfo struct {
	Filename  string    `json:"filename"`
	Timestamp time.Time `json:"timestamp"`
	SizeBytes int64     `json:"size_bytes"`
	AgeHours  int64     `json:"age_hours"`
}

// BackupResult summarizes a completed backup
type BackupResult struct {
	Filename  string        `json:"filename"`
	SizeBytes int64         `json:"size_bytes"`
	Checksum  string        `json:"checksum"`
	Rotated   int           `json:"rotated"`
	Duration  time.Duration `json:"duration"`
}

// NewBackupService creates a new backup service. retentionDays of 0 keeps every archive.
func NewBackupService(
	db *database.DB,
	client *S3Client,
	dataDir string,
	retentionDays int,
	eventManager *events.Manager,
	log zerolog.Logger,
) *BackupService {
	return &BackupService{
		db:            db,
		client:        client,
		dataDir:       dataDir,
		retentionDays: retentionDays,
		eventManager:  eventManager,
		now:           time.Now,
		log:           log.With().Str("service", "backup").Logger(),
	}
}

// CreateAndUploadBackup snapshots the database, archives it and uploads the archive,
// then rotates archives past retention.
func (s *BackupService) CreateAndUploadBackup(ctx context.Context) (*BackupResult, error) {
	s.log.Info().Msg("Starting backup")
	startTime := s.now()

	stagingDir, err := os.MkdirTemp(s.dataDir, "backup-staging-")
	if err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer os.RemoveAll(stagingDir)

	dbFile := s.db.Name() + ".db"
	dbPath := filepath.Join(stagingDir, dbFile)
	if err := s.db.BackupTo(ctx, dbPath); err != nil {
		return nil, fmt.Errorf("failed to snapshot database: %w", err)
	}

	info, err := os.Stat(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat database snapshot: %w", err)
	}
	checksum, err := calculateChecksum(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to calculate checksum: %w", err)
	}

	metadata := BackupMetadata{
		Timestamp:     startTime.UTC(),
		Version:       "1.0.0",
		TenderVersion: version.Version,
		Database:      s.db.Name(),
		Filename:      dbFile,
		SizeBytes:     info.Size(),
		Checksum:      checksum,
	}
	if err := writeMetadata(filepath.Join(stagingDir, metadataFile), metadata); err != nil {
		return nil, fmt.Errorf("failed to write metadata: %w", err)
	}

	archiveName := backupPrefix + startTime.UTC().Format(backupTimestamp) + backupSuffix
	archivePath := filepath.Join(stagingDir, archiveName)
	if err := createArchive(archivePath, stagingDir, []string{dbFile, metadataFile}); err != nil {
		return nil, fmt.Errorf("failed to create archive: %w", err)
	}

	archiveInfo, err := os.Stat(archivePath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat archive: %w", err)
	}

	archiveFile, err := os.Open(archivePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	defer archiveFile.Close()

	if err := s.client.Upload(ctx, archiveName, archiveFile); err != nil {
		return nil, err
	}

	rotated, err := s.RotateOldBackups(ctx)
	if err != nil {
		// The upload succeeded; rotation retries on the next run
		s.log.Warn().Err(err).Msg("Backup rotation failed")
	}

	result := &BackupResult{
		Filename:  archiveName,
		SizeBytes: archiveInfo.Size(),
		Checksum:  checksum,
		Rotated:   rotated,
		Duration:  s.now().Sub(startTime),
	}

	s.log.Info().
		Dur("duration_ms", result.Duration).
		Str("archive", archiveName).
		Int64("size_bytes", result.SizeBytes).
		Int("rotated", rotated).
		Msg("Backup completed")

	if s.eventManager != nil {
		s.eventManager.EmitTyped("reliability", &events.BackupCompletedData{
			Filename:  result.Filename,
			SizeBytes: result.SizeBytes,
			Checksum:  result.Checksum,
			Duration:  result.Duration.Seconds(),
			Rotated:   result.Rotated,
		})
	}

	return result, nil
}

// ListBackups lists archives in the bucket, newest first
func (s *BackupService) ListBackups(ctx context.Context) ([]BackupInfo, error) {
	objects, err := s.client.List(ctx, backupPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list backups: %w", err)
	}

	now := s.now()
	backups := make([]BackupInfo, 0, len(objects))
	for _, obj := range objects {
		filename := aws.ToString(obj.Key)
		timestamp, ok := parseBackupTimestamp(filename)
		if !ok {
			s.log.Warn().Str("filename", filename).Msg("Failed to parse timestamp from filename")
			continue
		}

		backups = append(backups, BackupInfo{
			Filename:  filename,
			Timestamp: timestamp,
			SizeBytes: aws.ToInt64(obj.Size),
			AgeHours:  int64(now.Sub(timestamp).Hours()),
		})
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].Timestamp.After(backups[j].Timestamp)
	})

	return backups, nil
}

// RotateOldBackups deletes archives older than the retention period.
// The newest minBackupsToKeep archives are always kept.
func (s *BackupService) RotateOldBackups(ctx context.Context) (int, error) {
	if s.retentionDays <= 0 {
		return 0, nil
	}

	backups, err := s.ListBackups(ctx)
	if err != nil {
		return 0, err
	}
	if len(backups) <= minBackupsToKeep {
		return 0, nil
	}

	cutoff := s.now().AddDate(0, 0, -s.retentionDays)
	deleted := 0
	for _, backup := range backups[minBackupsToKeep:] {
		if !backup.Timestamp.Before(cutoff) {
			continue
		}
		if err := s.client.Delete(ctx, backup.Filename); err != nil {
			s.log.Error().Err(err).Str("filename", backup.Filename).Msg("Failed to delete old backup")
			continue
		}
		s.log.Info().Str("filename", backup.Filename).Time("timestamp", backup.Timestamp).Msg("Deleted old backup")
		deleted++
	}

	return deleted, nil
}

// parseBackupTimestamp extracts the timestamp from tender-backup-2026-01-08-143022.tar.gz
func parseBackupTimestamp(filename string) (time.Time, bool) {
	if !strings.HasPrefix(filename, backupPrefix) || !strings.HasSuffix(filename, backupSuffix) {
		return time.Time{}, false
	}
	raw := strings.TrimSuffix(strings.TrimPrefix(filename, backupPrefix), backupSuffix)
	timestamp, err := time.Parse(backupTimestamp, raw)
	if err != nil {
		return time.Time{}, false
	}
	return timestamp, true
}

func calculateChecksum(path string) (string, error) {
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

// createArchive writes a tar.gz of the named files in sourceDir
func createArchive(archivePath, sourceDir string, names []string) (err error) {
	archiveFile, err := os.Create(archivePath)
	if err != nil {
		return fmt.Errorf("failed to create archive file: %w", err)
	}
	defer func() {
		if cerr := archiveFile.Close(); err == nil {
			err = cerr
		}
	}()

	gzipWriter := gzip.NewWriter(archiveFile)
	tarWriter := tar.NewWriter(gzipWriter)

	for _, name := range names {
		if err := addFileToArchive(tarWriter, filepath.Join(sourceDir, name), name); err != nil {
			return fmt.Errorf("failed to add %s to archive: %w", name, err)
		}
	}

	if err := tarWriter.Close(); err != nil {
		return err
	}
	return gzipWriter.Close()
}

func addFileToArchive(tarWriter *tar.Writer, path, nameInArchive string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return err
	}

	header := &tar.Header{
		Name:    nameInArchive,
		Size:    info.Size(),
		Mode:    int64(info.Mode()),
		ModTime: info.ModTime(),
	}
	if err := tarWriter.WriteHeader(header); err != nil {
		return err
	}

	_, err = io.Copy(tarWriter, file)
	return err
}
