package reliability

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/tender/internal/events"
	testingutil "github.com/aristath/tender/internal/testing"
)

// mockRoundTripper fakes the S3 subset the backup client uses, paging lists two keys at a time
type mockRoundTripper struct {
	mu    sync.Mutex
	state map[string][]byte
}

func (m *mockRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	parts := strings.SplitN(strings.TrimPrefix(req.URL.Path, "/"), "/", 2)
	key := ""
	if len(parts) == 2 {
		key = parts[1]
	}

	if req.Method == http.MethodGet && req.URL.Query().Get("list-type") == "2" {
		prefix := req.URL.Query().Get("prefix")
		var keys []string
		for k := range m.state {
			if strings.HasPrefix(k, prefix) {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)

		start, _ := strconv.Atoi(req.URL.Query().Get("continuation-token"))
		end := start + 2
		if end > len(keys) {
			end = len(keys)
		}

		var b strings.Builder
		b.WriteString(`<?xml version="1.0"?><ListBucketResult>`)
		if end < len(keys) {
			fmt.Fprintf(&b, "<IsTruncated>true</IsTruncated><NextContinuationToken>%d</NextContinuationToken>", end)
		} else {
			b.WriteString("<IsTruncated>false</IsTruncated>")
		}
		for _, k := range keys[start:end] {
			fmt.Fprintf(&b, "<Contents><Key>%s</Key><Size>%d</Size><LastModified>2026-01-01T00:00:00Z</LastModified></Contents>", k, len(m.state[k]))
		}
		b.WriteString("</ListBucketResult>")
		return respond(http.StatusOK, b.String()), nil
	}

	switch req.Method {
	case http.MethodPut:
		body, _ := io.ReadAll(req.Body)
		m.state[key] = body
		resp := respond(http.StatusOK, "")
		resp.Header.Set("ETag", `"etag"`)
		return resp, nil
	case http.MethodDelete:
		delete(m.state, key)
		return respond(http.StatusNoContent, ""), nil
	}
	return respond(http.StatusNotImplemented, ""), nil
}

func (m *mockRoundTripper) keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.state))
	for k := range m.state {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func respond(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     http.Header{"Content-Type": {"application/xml"}},
	}
}

func newMockClient(t *testing.T) (*S3Client, *mockRoundTripper) {
	t.Helper()
	rt := &mockRoundTripper{state: make(map[string][]byte)}
	cfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion("us-east-1"),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("AKIA", "SECRET", "")),
	)
	require.NoError(t, err)

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String("https://mock.s3.local")
		o.HTTPClient = &http.Client{Transport: rt}
		o.UsePathStyle = true
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
	})
	return newS3Client(client, "test-bucket", "tender-backups/", zerolog.Nop()), rt
}

func TestS3Client_UploadListDelete(t *testing.T) {
	client, rt := newMockClient(t)
	ctx := context.Background()

	for _, name := range []string{"a.tar.gz", "b.tar.gz", "c.tar.gz"} {
		require.NoError(t, client.Upload(ctx, name, bytes.NewReader([]byte("payload"))))
	}
	assert.Equal(t, []string{"tender-backups/a.tar.gz", "tender-backups/b.tar.gz", "tender-backups/c.tar.gz"}, rt.keys())

	objects, err := client.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, objects, 3)
	assert.Equal(t, "a.tar.gz", aws.ToString(objects[0].Key))
	assert.Equal(t, "c.tar.gz", aws.ToString(objects[2].Key))

	require.NoError(t, client.Delete(ctx, "b.tar.gz"))
	objects, err = client.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, objects, 2)
}

func TestBackupService_CreateAndRotate(t *testing.T) {
	db, cleanup := testingutil.NewTestDB(t, "tender")
	defer cleanup()

	client, rt := newMockClient(t)
	for day := 1; day <= 4; day++ {
		rt.state[fmt.Sprintf("tender-backups/tender-backup-2026-01-%02d-030000.tar.gz", day)] = []byte("old")
	}
	rt.state["tender-backups/tender-backup-garbage.tar.gz"] = []byte("junk")

	bus := events.NewBus(zerolog.Nop())
	var completed []*events.Event
	bus.Subscribe(events.BackupCompleted, func(e *events.Event) { completed = append(completed, e) })

	service := NewBackupService(db, client, t.TempDir(), 14, events.NewManager(bus, zerolog.Nop()), zerolog.Nop())
	now := time.Date(2026, 3, 16, 3, 0, 0, 0, time.UTC)
	service.now = func() time.Time { return now }

	result, err := service.CreateAndUploadBackup(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "tender-backup-2026-03-16-030000.tar.gz", result.Filename)
	assert.True(t, strings.HasPrefix(result.Checksum, "sha256:"))
	assert.Positive(t, result.SizeBytes)
	assert.Equal(t, 2, result.Rotated)

	assert.Equal(t, []string{
		"tender-backups/tender-backup-2026-01-03-030000.tar.gz",
		"tender-backups/tender-backup-2026-01-04-030000.tar.gz",
		"tender-backups/tender-backup-2026-03-16-030000.tar.gz",
		"tender-backups/tender-backup-garbage.tar.gz",
	}, rt.keys())

	backups, err := service.ListBackups(context.Background())
	require.NoError(t, err)
	require.Len(t, backups, 3)
	assert.Equal(t, result.Filename, backups[0].Filename)
	assert.Equal(t, int64(0), backups[0].AgeHours)

	require.Len(t, completed, 1)
	assert.Equal(t, result.Filename, completed[0].Data["filename"])
}

func TestBackupService_RetentionZeroKeepsEverything(t *testing.T) {
	client, rt := newMockClient(t)
	for day := 1; day <= 6; day++ {
		rt.state[fmt.Sprintf("tender-backups/tender-backup-2025-01-%02d-030000.tar.gz", day)] = []byte("old")
	}

	service := NewBackupService(nil, client, t.TempDir(), 0, nil, zerolog.Nop())
	deleted, err := service.RotateOldBackups(context.Background())
	require.NoError(t, err)
	assert.Zero(t, deleted)
	assert.Len(t, rt.keys(), 6)
}

func TestParseBackupTimestamp(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		want     time.Time
		ok       bool
	}{
		{"valid", "tender-backup-2026-01-08-143022.tar.gz", time.Date(2026, 1, 8, 14, 30, 22, 0, time.UTC), true},
		{"wrong prefix", "other-backup-2026-01-08-143022.tar.gz", time.Time{}, false},
		{"wrong suffix", "tender-backup-2026-01-08-143022.zip", time.Time{}, false},
		{"bad timestamp", "tender-backup-yesterday.tar.gz", time.Time{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parseBackupTimestamp(tt.filename)
			assert.Equal(t, tt.ok, ok)
			assert.True(t, tt.want.Equal(got))
		})
	}
}

func TestCreateArchive(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tender.db"), []byte("database"), 0644))
	require.NoError(t, writeMetadata(filepath.Join(dir, metadataFile), BackupMetadata{Database: "tender"}))

	archive := filepath.Join(dir, "out.tar.gz")
	require.NoError(t, createArchive(archive, dir, []string{"tender.db", metadataFile}))

	f, err := os.Open(archive)
	require.NoError(t, err)
	defer f.Close()
	gz, err := gzip.NewReader(f)
	require.NoError(t, err)
	tr := tar.NewReader(gz)

	var names []string
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		names = append(names, hdr.Name)
	}
	assert.Equal(t, []string{"tender.db", metadataFile}, names)
}

type fakePruner struct {
	cutoff  time.Time
	deleted int64
	err     error
}

func (f *fakePruner) DeleteOlderThan(cutoff time.Time) (int64, error) {
	f.cutoff = cutoff
	return f.deleted, f.err
}

func TestDailyMaintenanceJob(t *testing.T) {
	db, cleanup := testingutil.NewTestDB(t, "tender")
	defer cleanup()

	t.Run("prunes past retention", func(t *testing.T) {
		pruner := &fakePruner{deleted: 4}
		job := NewDailyMaintenanceJob(db, pruner, t.TempDir(), 30, zerolog.Nop())
		now := time.Date(2026, 3, 16, 2, 30, 0, 0, time.UTC)
		job.now = func() time.Time { return now }

		require.NoError(t, job.Run())
		assert.Equal(t, now.AddDate(0, 0, -30), pruner.cutoff)
		assert.Equal(t, "maintenance", job.Name())
	})

	t.Run("prune failure fails the job", func(t *testing.T) {
		job := NewDailyMaintenanceJob(db, &fakePruner{err: fmt.Errorf("locked")}, t.TempDir(), 30, zerolog.Nop())
		err := job.Run()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "locked")
	})
}

func TestWeeklyMaintenanceJob(t *testing.T) {
	db, cleanup := testingutil.NewTestDB(t, "tender")
	defer cleanup()

	job := NewWeeklyMaintenanceJob(db, zerolog.Nop())
	assert.Equal(t, "vacuum", job.Name())
	assert.NoError(t, job.Run())
}
