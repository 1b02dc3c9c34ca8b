package store

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// WorkflowImported is the workflow state of a freshly imported media asset.
const WorkflowImported = "imported"

// Product is a catalog product. SKU identifies the owner of media sets,
// ExternalID the product in the commerce API.
type Product struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	ExternalID  *string   `gorm:"column:external_id;type:varchar(255);uniqueIndex"`
	SKU         string    `gorm:"column:sku;type:varchar(100);not null;uniqueIndex"`
	Title       string    `gorm:"type:varchar(255);not null"`
	Vendor      string    `gorm:"type:varchar(255);not null"`
	ProductType string    `gorm:"column:product_type;type:varchar(255);not null"`
	Status      string    `gorm:"type:varchar(50);not null;default:'draft'"`
	Description string    `gorm:"type:text;not null"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TableName returns the table name for GORM.
func (Product) TableName() string {
	return "products"
}

// BeforeCreate assigns an ID.
func (p *Product) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// MediaSet groups the media of one product. GroupKey is unique, so
// repeated imports resolve to the same set.
type MediaSet struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	GroupKey  string    `gorm:"column:group_key;type:varchar(255);not null;uniqueIndex"`
	ProductID uuid.UUID `gorm:"column:product_id;type:uuid;not null;index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName returns the table name for GORM.
func (MediaSet) TableName() string {
	return "media_sets"
}

// BeforeCreate assigns an ID.
func (s *MediaSet) BeforeCreate(*gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// MediaAsset is one imported file. The unique key is
// (media_set_id, storage_key, snapshot): writers that put a run ID into
// Snapshot append one row per run, writers that leave it empty update a
// single row per object.
type MediaAsset struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey"`
	MediaSetID    uuid.UUID `gorm:"column:media_set_id;type:uuid;not null;uniqueIndex:idx_media_assets_key,priority:1"`
	StorageKey    string    `gorm:"column:storage_key;type:varchar(500);not null;uniqueIndex:idx_media_assets_key,priority:2"`
	Snapshot      string    `gorm:"column:snapshot;type:varchar(64);not null;uniqueIndex:idx_media_assets_key,priority:3"`
	SourceFileID  string    `gorm:"column:source_file_id;type:varchar(255);not null"`
	SourcePath    string    `gorm:"column:source_path;type:varchar(1024);not null"`
	FileName      string    `gorm:"column:file_name;type:varchar(255);not null"`
	ContentType   string    `gorm:"column:content_type;type:varchar(100);not null"`
	SizeBytes     int64     `gorm:"column:size_bytes;type:bigint;not null"`
	WorkflowState string    `gorm:"column:workflow_state;type:varchar(50);not null;default:'imported'"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// TableName returns the table name for GORM.
func (MediaAsset) TableName() string {
	return "media_assets"
}

// BeforeCreate assigns an ID and the default workflow state.
func (a *MediaAsset) BeforeCreate(*gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.WorkflowState == "" {
		a.WorkflowState = WorkflowImported
	}
	return nil
}

// ProductPatch is a partial product update. Nil fields are left untouched.
type ProductPatch struct {
	SKU         *string
	Title       *string
	Vendor      *string
	ProductType *string
	Status      *string
	Description *string
}

// Updates returns the column/value pairs of the set fields.
func (p ProductPatch) Updates() map[string]any {
	updates := make(map[string]any)
	set := func(column string, v *string) {
		if v != nil {
			updates[column] = *v
		}
	}
	set("sku", p.SKU)
	set("title", p.Title)
	set("vendor", p.Vendor)
	set("product_type", p.ProductType)
	set("status", p.Status)
	set("description", p.Description)
	return updates
}

// Apply copies the set fields onto product.
func (p ProductPatch) Apply(product *Product) {
	apply := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	apply(&product.SKU, p.SKU)
	apply(&product.Title, p.Title)
	apply(&product.Vendor, p.Vendor)
	apply(&product.ProductType, p.ProductType)
	apply(&product.Status, p.Status)
	apply(&product.Description, p.Description)
}

// IsEmpty reports whether no field is set.
func (p ProductPatch) IsEmpty() bool {
	return len(p.Updates()) == 0
}
