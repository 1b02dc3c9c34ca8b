package importer

import (
	"bytes"
	"context"
	"errors"
	"io"
	"iter"
	"testing"

	"github.com/Sternrassler/pim-sync/internal/testutil"
	"github.com/Sternrassler/pim-sync/pkg/drive"
	"github.com/Sternrassler/pim-sync/pkg/pipeline"
	"github.com/Sternrassler/pim-sync/pkg/storage"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDownloader struct {
	content map[string][]byte
	fail    map[string]error
}

func (d *fakeDownloader) Download(ctx context.Context, fileID string) (io.ReadCloser, error) {
	if err := d.fail[fileID]; err != nil {
		return nil, err
	}
	data, ok := d.content[fileID]
	if !ok {
		return nil, errors.New("file not found")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// failingStore rejects uploads for selected keys.
type failingStore struct {
	*storage.Memory
	failKeys map[string]bool
}

func (s *failingStore) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	if s.failKeys[key] {
		return errors.New("connection reset by peer")
	}
	return s.Memory.Upload(ctx, key, data, contentType)
}

func remoteFile(id, path string) drive.RemoteFile {
	return drive.RemoteFile{ID: id, Path: path, Name: path[len(path)-5:], MimeType: "image/jpeg"}
}

func mediaFixture() ([]drive.RemoteFile, *fakeDownloader) {
	files := []drive.RemoteFile{
		remoteFile("1", "SKU-1/a.jpg"),
		remoteFile("2", "SKU-1/b.jpg"),
		remoteFile("3", "SKU-9/c.jpg"),
		remoteFile("4", "SKU-2/d.jpg"),
		remoteFile("5", "SKU-2/e.jpg"),
	}
	dl := &fakeDownloader{content: map[string][]byte{
		"1": []byte("aaa"), "2": []byte("bbb"), "3": []byte("ccc"), "4": []byte("ddd"), "5": []byte("eee"),
	}}
	return files, dl
}

func fileSource(files []drive.RemoteFile) iter.Seq2[drive.RemoteFile, error] {
	return func(yield func(drive.RemoteFile, error) bool) {
		for _, f := range files {
			if !yield(f, nil) {
				return
			}
		}
	}
}

func runMedia(t *testing.T, proc *MediaProcessor, files []drive.RemoteFile) *pipeline.Report {
	t.Helper()
	report, err := pipeline.Run(context.Background(), fileSource(files), proc, pipeline.Options{
		Name:   "media",
		RunID:  proc.RunID(),
		Logger: zerolog.Nop(),
	})
	require.NoError(t, err)
	return report
}

func TestMediaProcessor_FiveItems(t *testing.T) {
	records := testutil.NewSQLiteStore(t)
	testutil.SeedProduct(t, records, "SKU-1")
	testutil.SeedProduct(t, records, "SKU-2")

	files, dl := mediaFixture()
	objects := &failingStore{
		Memory:   storage.NewMemory(),
		failKeys: map[string]bool{"media/SKU-2/d.jpg": true},
	}
	proc := NewMediaProcessor(dl, objects, records, DefaultMediaConfig(), zerolog.Nop())

	report := runMedia(t, proc, files)

	assert.Equal(t, 5, report.Total)
	assert.Equal(t, 3, report.Succeeded)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 2, report.GroupsCreated)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, "SKU-2/d.jpg", report.Errors[0].Item)
	assert.Contains(t, report.Errors[0].Message, "upload")

	assert.Equal(t, []string{"media/SKU-1/a.jpg", "media/SKU-1/b.jpg", "media/SKU-2/e.jpg"}, objects.Keys())
	obj, ok := objects.Get("media/SKU-1/a.jpg")
	require.True(t, ok)
	assert.Equal(t, "image/jpeg", obj.ContentType)

	counts, err := records.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts.MediaSets)
	assert.Equal(t, int64(3), counts.MediaAssets)
}

func TestMediaProcessor_IdempotentAcrossRuns(t *testing.T) {
	tests := []struct {
		name           string
		policy         MetadataPolicy
		expectedAssets int64
	}{
		{"snapshot appends per run", PolicySnapshot, 8},
		{"upsert keeps one record per object", PolicyUpsert, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records := testutil.NewSQLiteStore(t)
			testutil.SeedProduct(t, records, "SKU-1")
			testutil.SeedProduct(t, records, "SKU-2")
			files, dl := mediaFixture()
			objects := storage.NewMemory()

			cfg := DefaultMediaConfig()
			cfg.Policy = tt.policy

			first := runMedia(t, NewMediaProcessor(dl, objects, records, cfg, zerolog.Nop()), files)
			countsAfterFirst, err := records.Count(context.Background())
			require.NoError(t, err)

			second := runMedia(t, NewMediaProcessor(dl, objects, records, cfg, zerolog.Nop()), files)
			countsAfterSecond, err := records.Count(context.Background())
			require.NoError(t, err)

			assert.Equal(t, 2, first.GroupsCreated)
			assert.Equal(t, 0, second.GroupsCreated)
			assert.Equal(t, countsAfterFirst.MediaSets, countsAfterSecond.MediaSets)
			assert.Equal(t, int64(2), countsAfterSecond.MediaSets)
			assert.Equal(t, tt.expectedAssets, countsAfterSecond.MediaAssets)
			assert.Equal(t, 4, second.Succeeded)
		})
	}
}

func TestMediaProcessor_Skips(t *testing.T) {
	records := testutil.NewSQLiteStore(t)
	testutil.SeedProduct(t, records, "SKU-1")
	dl := &fakeDownloader{content: map[string][]byte{"1": []byte("x")}}
	objects := storage.NewMemory()
	proc := NewMediaProcessor(dl, objects, records, DefaultMediaConfig(), zerolog.Nop())

	files := []drive.RemoteFile{
		{ID: "r", Path: "loose.jpg", Name: "loose.jpg", MimeType: "image/jpeg"},
		{ID: "d", Path: "SKU-1/notes", Name: "notes", MimeType: "application/vnd.google-apps.document"},
		{ID: "1", Path: "SKU-1/ok.png", Name: "ok.png"},
	}
	report := runMedia(t, proc, files)

	assert.Equal(t, 2, report.Skipped)
	assert.Equal(t, 1, report.Succeeded)
	obj, ok := objects.Get("media/SKU-1/ok.png")
	require.True(t, ok)
	assert.Equal(t, "image/png", obj.ContentType)
}

func TestMediaProcessor_DownloadFailure(t *testing.T) {
	records := testutil.NewSQLiteStore(t)
	testutil.SeedProduct(t, records, "SKU-1")
	dl := &fakeDownloader{fail: map[string]error{"1": errors.New("403 forbidden")}}
	proc := NewMediaProcessor(dl, storage.NewMemory(), records, DefaultMediaConfig(), zerolog.Nop())

	report := runMedia(t, proc, []drive.RemoteFile{remoteFile("1", "SKU-1/a.jpg")})

	assert.Equal(t, 1, report.Failed)
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0].Message, "403 forbidden")
}

func TestMediaProcessor_SizeLimit(t *testing.T) {
	records := testutil.NewSQLiteStore(t)
	testutil.SeedProduct(t, records, "SKU-1")
	dl := &fakeDownloader{content: map[string][]byte{"1": []byte("0123456789")}}

	cfg := DefaultMediaConfig()
	cfg.MaxFileBytes = 4
	proc := NewMediaProcessor(dl, storage.NewMemory(), records, cfg, zerolog.Nop())

	report := runMedia(t, proc, []drive.RemoteFile{remoteFile("1", "SKU-1/a.jpg")})

	assert.Equal(t, 1, report.Failed)
	assert.Contains(t, report.Errors[0].Message, ErrFileTooLarge.Error())
}

func TestParseMetadataPolicy(t *testing.T) {
	tests := []struct {
		input    string
		expected MetadataPolicy
		wantErr  bool
	}{
		{"", PolicySnapshot, false},
		{"snapshot", PolicySnapshot, false},
		{"upsert", PolicyUpsert, false},
		{"merge", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseMetadataPolicy(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}
