package drive

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"google.golang.org/api/option"
)

func newTestGoogleDrive(t *testing.T, handler http.Handler) *GoogleDrive {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	g, err := NewGoogleDrive(context.Background(), GoogleConfig{PageSize: 2},
		zerolog.New(os.Stderr).Level(zerolog.Disabled),
		option.WithEndpoint(srv.URL+"/"),
		option.WithoutAuthentication(),
	)
	if err != nil {
		t.Fatalf("NewGoogleDrive() error = %v", err)
	}
	return g
}

func TestGoogleDrive_ListChildrenFollowsPageToken(t *testing.T) {
	var queries []string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		queries = append(queries, r.URL.Query().Get("q"))
		w.Header().Set("Content-Type", "application/json")

		var body map[string]any
		switch r.URL.Query().Get("pageToken") {
		case "":
			body = map[string]any{
				"nextPageToken": "page-2",
				"files": []map[string]any{
					{"id": "a", "name": "A", "mimeType": FolderMimeType},
					{"id": "f1", "name": "one.jpg", "mimeType": "image/jpeg", "size": "2048"},
				},
			}
		case "page-2":
			body = map[string]any{
				"files": []map[string]any{
					{"id": "f2", "name": "two.jpg", "mimeType": "image/jpeg"},
				},
			}
		default:
			http.Error(w, "unexpected page token", http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(body)
	})

	g := newTestGoogleDrive(t, handler)
	entries, err := g.ListChildren(context.Background(), "root'id")
	if err != nil {
		t.Fatalf("ListChildren() error = %v", err)
	}

	if len(entries) != 3 {
		t.Fatalf("Expected 3 entries across pages, got %d", len(entries))
	}
	if !entries[0].IsFolder() {
		t.Error("First entry should be a folder")
	}
	if entries[1].SizeBytes != 2048 {
		t.Errorf("SizeBytes = %d, want 2048", entries[1].SizeBytes)
	}
	if len(queries) != 2 {
		t.Fatalf("Expected 2 list requests, got %d", len(queries))
	}
	if !strings.Contains(queries[0], `'root\'id' in parents`) {
		t.Errorf("Folder ID not escaped in query: %s", queries[0])
	}
}

func TestGoogleDrive_Download(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("alt") != "media" {
			http.Error(w, "expected media download", http.StatusBadRequest)
			return
		}
		if !strings.HasSuffix(r.URL.Path, "/files/f1") {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("jpeg-bytes"))
	})

	g := newTestGoogleDrive(t, handler)
	rc, err := g.Download(context.Background(), "f1")
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if string(data) != "jpeg-bytes" {
		t.Errorf("Download content = %q", data)
	}
}

func TestGoogleDrive_DownloadNotFound(t *testing.T) {
	g := newTestGoogleDrive(t, http.NotFoundHandler())

	if _, err := g.Download(context.Background(), "missing"); err == nil {
		t.Error("Expected error for missing file")
	}
}
