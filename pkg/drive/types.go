// Package drive walks a remote folder tree and flattens it into a lazy
// sequence of files whose paths are built from folder names.
package drive

import (
	"context"
	"io"
	"strings"
)

// MIME types the walker treats specially.
const (
	FolderMimeType   = "application/vnd.google-apps.folder"
	ShortcutMimeType = "application/vnd.google-apps.shortcut"

	// nativeMimePrefix marks drive-native documents (docs, sheets, ...) that
	// have no binary content to download.
	nativeMimePrefix = "application/vnd.google-apps."
)

// Entry is one child of a remote folder as returned by a Lister.
type Entry struct {
	ID        string
	Name      string
	MimeType  string
	SizeBytes int64
	Trashed   bool
}

// IsFolder reports whether the entry is a folder.
func (e Entry) IsFolder() bool {
	return e.MimeType == FolderMimeType
}

// RemoteFile is a file found below the walk root.
type RemoteFile struct {
	ID string `json:"id"`

	// Path is the slash-joined chain of ancestor folder names below the
	// root followed by the file name, e.g. "SKU-100/front.jpg".
	Path string `json:"path"`

	Name      string `json:"name"`
	MimeType  string `json:"mime_type"`
	SizeBytes int64  `json:"size_bytes,omitempty"`
}

// GroupKey returns the first path segment. Files directly below the root
// have no group and return "".
func (f RemoteFile) GroupKey() string {
	group, _, found := strings.Cut(f.Path, "/")
	if !found {
		return ""
	}
	return group
}

// RelativePath returns the path below the group folder.
func (f RemoteFile) RelativePath() string {
	_, rest, found := strings.Cut(f.Path, "/")
	if !found {
		return f.Path
	}
	return rest
}

// IsNative reports whether the file is a drive-native document.
func (f RemoteFile) IsNative() bool {
	return strings.HasPrefix(f.MimeType, nativeMimePrefix)
}

// Lister lists the direct children of a folder.
type Lister interface {
	ListChildren(ctx context.Context, folderID string) ([]Entry, error)
}

// Downloader streams a file's content. Callers close the reader.
type Downloader interface {
	Download(ctx context.Context, fileID string) (io.ReadCloser, error)
}
