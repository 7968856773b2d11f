package reliability

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/sentinel/internal/database"
)

// fakeObjectStore is an in-memory stand-in for ObjectStoreClient so backup
// creation, listing, and rotation can be exercised without a live
// S3-compatible endpoint.
type fakeObjectStore struct {
	objects map[string][]byte
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{objects: make(map[string][]byte)}
}

func (f *fakeObjectStore) Upload(ctx context.Context, key string, body io.Reader, size int64) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	f.objects[key] = data
	return nil
}

func (f *fakeObjectStore) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	var out []ObjectInfo
	for key, data := range f.objects {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			out = append(out, ObjectInfo{Key: key, Size: int64(len(data))})
		}
	}
	return out, nil
}

func (f *fakeObjectStore) Delete(ctx context.Context, key string) error {
	delete(f.objects, key)
	return nil
}

func newBackupTestService(t *testing.T) (*ObjectStoreBackupService, *fakeObjectStore) {
	t.Helper()
	marketDB := newTestDB(t, "market")
	_, err := marketDB.Conn().Exec("CREATE TABLE prices (id INTEGER PRIMARY KEY)")
	require.NoError(t, err)

	databases := map[string]*database.DB{"market": marketDB}
	backups := NewBackupService(databases, t.TempDir(), zerolog.Nop())
	store := newFakeObjectStore()
	svc := newObjectStoreBackupService(store, backups, t.TempDir(), zerolog.Nop())
	return svc, store
}

func TestObjectStoreBackupServiceCreateAndUploadProducesArchive(t *testing.T) {
	svc, store := newBackupTestService(t)

	require.NoError(t, svc.CreateAndUpload(context.Background()))
	assert.Len(t, store.objects, 1)

	var archiveKey string
	for key := range store.objects {
		archiveKey = key
	}
	assert.Contains(t, archiveKey, archivePrefix)
	assert.Contains(t, archiveKey, ".tar.gz")
	assert.True(t, bytes.HasPrefix(store.objects[archiveKey], []byte{0x1f, 0x8b}), "archive should be gzip-compressed")
}

func TestObjectStoreBackupServiceListBackupsSortsNewestFirst(t *testing.T) {
	svc, store := newBackupTestService(t)

	older := time.Now().Add(-48 * time.Hour).Format(archiveTimestampLayout)
	newer := time.Now().Add(-1 * time.Hour).Format(archiveTimestampLayout)
	store.objects[archivePrefix+older+".tar.gz"] = []byte("x")
	store.objects[archivePrefix+newer+".tar.gz"] = []byte("xx")

	backups, err := svc.ListBackups(context.Background())
	require.NoError(t, err)
	require.Len(t, backups, 2)
	assert.True(t, backups[0].Timestamp.After(backups[1].Timestamp))
}

func TestObjectStoreBackupServiceListBackupsSkipsUnparsableNames(t *testing.T) {
	svc, store := newBackupTestService(t)
	store.objects[archivePrefix+"not-a-timestamp.tar.gz"] = []byte("x")

	backups, err := svc.ListBackups(context.Background())
	require.NoError(t, err)
	assert.Len(t, backups, 0)
}

func TestObjectStoreBackupServiceRotateKeepsMinimumBackups(t *testing.T) {
	svc, store := newBackupTestService(t)

	for i := 0; i < 5; i++ {
		ts := time.Now().AddDate(0, 0, -100-i).Format(archiveTimestampLayout)
		store.objects[archivePrefix+ts+".tar.gz"] = []byte("x")
	}

	require.NoError(t, svc.RotateOldBackups(context.Background(), 30))
	assert.Len(t, store.objects, minBackupsToKeep)
}

func TestObjectStoreBackupServiceRotateNoopsWhenAtOrBelowMinimum(t *testing.T) {
	svc, store := newBackupTestService(t)

	ts := time.Now().AddDate(0, 0, -100).Format(archiveTimestampLayout)
	store.objects[archivePrefix+ts+".tar.gz"] = []byte("x")

	require.NoError(t, svc.RotateOldBackups(context.Background(), 30))
	assert.Len(t, store.objects, 1)
}

func TestObjectStoreBackupServiceRotateKeepsForeverWhenRetentionZero(t *testing.T) {
	svc, store := newBackupTestService(t)

	for i := 0; i < 5; i++ {
		ts := time.Now().AddDate(0, 0, -100-i).Format(archiveTimestampLayout)
		store.objects[archivePrefix+ts+".tar.gz"] = []byte("x")
	}

	require.NoError(t, svc.RotateOldBackups(context.Background(), 0))
	assert.Len(t, store.objects, 5)
}
