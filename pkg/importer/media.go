package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"

	"github.com/Sternrassler/pim-sync/pkg/drive"
	"github.com/Sternrassler/pim-sync/pkg/pipeline"
	"github.com/Sternrassler/pim-sync/pkg/storage"
	"github.com/Sternrassler/pim-sync/pkg/store"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrFileTooLarge is returned for files above MediaConfig.MaxFileBytes.
var ErrFileTooLarge = errors.New("file exceeds size limit")

// MediaStore is the part of the record store the media import writes to.
type MediaStore interface {
	FindProductBySKU(ctx context.Context, sku string) (*store.Product, error)
	UpsertMediaSet(ctx context.Context, groupKey string, productID uuid.UUID) (*store.MediaSet, bool, error)
	SaveMediaAsset(ctx context.Context, asset *store.MediaAsset) error
}

// MediaConfig configures the media import.
type MediaConfig struct {
	// KeyPrefix is prepended to every object key.
	KeyPrefix string

	// Policy selects how metadata records behave across runs.
	Policy MetadataPolicy

	// RunID tags snapshot records. Generated when empty.
	RunID string

	// MaxFileBytes rejects larger files. 0 disables the limit.
	MaxFileBytes int64
}

// DefaultMediaConfig returns the default media import configuration.
func DefaultMediaConfig() MediaConfig {
	return MediaConfig{
		KeyPrefix:    "media",
		Policy:       PolicySnapshot,
		MaxFileBytes: 100 << 20,
	}
}

// MediaProcessor imports drive files as media assets of the product whose
// SKU equals the file's top-level folder name.
type MediaProcessor struct {
	files   drive.Downloader
	objects storage.ObjectStore
	records MediaStore
	config  MediaConfig
	logger  zerolog.Logger
}

var _ pipeline.Processor[drive.RemoteFile] = (*MediaProcessor)(nil)

// NewMediaProcessor creates a media processor.
func NewMediaProcessor(files drive.Downloader, objects storage.ObjectStore, records MediaStore, cfg MediaConfig, logger zerolog.Logger) *MediaProcessor {
	if cfg.Policy == "" {
		cfg.Policy = PolicySnapshot
	}
	if cfg.RunID == "" {
		cfg.RunID = uuid.NewString()
	}
	return &MediaProcessor{
		files:   files,
		objects: objects,
		records: records,
		config:  cfg,
		logger:  logger,
	}
}

// RunID returns the run ID written to snapshot records.
func (p *MediaProcessor) RunID() string {
	return p.config.RunID
}

// Identify returns the file's path below the import root.
func (p *MediaProcessor) Identify(f drive.RemoteFile) string {
	return f.Path
}

// Process imports one file: resolve the media set of its group, download
// it, upload it to object storage and record the asset.
func (p *MediaProcessor) Process(ctx context.Context, f drive.RemoteFile, groups *pipeline.GroupCache) (pipeline.Outcome, error) {
	groupKey := f.GroupKey()
	if groupKey == "" || f.IsNative() {
		p.logger.Debug().
			Str("path", f.Path).
			Str("mime_type", f.MimeType).
			Msg("Skipping file outside a group folder or without binary content")
		return pipeline.OutcomeSkipped, nil
	}

	handle, err := groups.Resolve(ctx, groupKey, func(ctx context.Context) (any, bool, error) {
		set, created, err := p.resolveSet(ctx, groupKey)
		if err != nil {
			return nil, false, err
		}
		return set, created, nil
	})
	if err != nil {
		return 0, err
	}
	set := handle.(*store.MediaSet)

	data, err := p.download(ctx, f)
	if err != nil {
		return 0, err
	}

	key := storage.ObjectKey(p.config.KeyPrefix, groupKey, f.RelativePath())
	contentType := detectContentType(f, data)
	if err := p.objects.Upload(ctx, key, data, contentType); err != nil {
		return 0, fmt.Errorf("upload: %w", err)
	}

	asset := &store.MediaAsset{
		MediaSetID:    set.ID,
		StorageKey:    key,
		SourceFileID:  f.ID,
		SourcePath:    f.Path,
		FileName:      f.Name,
		ContentType:   contentType,
		SizeBytes:     int64(len(data)),
		WorkflowState: store.WorkflowImported,
	}
	if p.config.Policy == PolicySnapshot {
		asset.Snapshot = p.config.RunID
	}
	if err := p.records.SaveMediaAsset(ctx, asset); err != nil {
		return 0, fmt.Errorf("save metadata: %w", err)
	}

	return pipeline.OutcomeSucceeded, nil
}

// resolveSet finds the owner product by SKU and upserts its media set.
func (p *MediaProcessor) resolveSet(ctx context.Context, groupKey string) (*store.MediaSet, bool, error) {
	product, err := p.records.FindProductBySKU(ctx, groupKey)
	if errors.Is(err, store.ErrNotFound) {
		return nil, false, fmt.Errorf("sku %q: %w", groupKey, pipeline.ErrOwnerNotFound)
	}
	if err != nil {
		return nil, false, err
	}

	set, created, err := p.records.UpsertMediaSet(ctx, groupKey, product.ID)
	if err != nil {
		return nil, false, err
	}
	if created {
		p.logger.Info().
			Str("group_key", groupKey).
			Str("product_id", product.ID.String()).
			Msg("Media set created")
	}
	return set, created, nil
}

func (p *MediaProcessor) download(ctx context.Context, f drive.RemoteFile) ([]byte, error) {
	limit := p.config.MaxFileBytes
	if limit > 0 && f.SizeBytes > limit {
		return nil, fmt.Errorf("download: %d bytes: %w", f.SizeBytes, ErrFileTooLarge)
	}

	rc, err := p.files.Download(ctx, f.ID)
	if err != nil {
		return nil, fmt.Errorf("download: %w", err)
	}
	defer rc.Close()

	var r io.Reader = rc
	if limit > 0 {
		r = io.LimitReader(rc, limit+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("download: %w", err)
	}
	if limit > 0 && int64(len(data)) > limit {
		return nil, fmt.Errorf("download: %w", ErrFileTooLarge)
	}
	return data, nil
}

// detectContentType prefers the drive MIME type, then the file extension,
// then content sniffing.
func detectContentType(f drive.RemoteFile, data []byte) string {
	if f.MimeType != "" {
		return f.MimeType
	}
	if byExt := mime.TypeByExtension(path.Ext(f.Name)); byExt != "" {
		return byExt
	}
	return http.DetectContentType(data)
}
