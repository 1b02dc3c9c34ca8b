package importer

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"strings"

	"github.com/Sternrassler/pim-sync/pkg/pagination"
	"github.com/Sternrassler/pim-sync/pkg/pipeline"
	"github.com/Sternrassler/pim-sync/pkg/store"
	"github.com/rs/zerolog"
)

// ProductsQuery lists products with the SKU of their first variant.
const ProductsQuery = `query ProductsPage($first: Int!, $after: String, $query: String) {
  products(first: $first, after: $after, query: $query) {
    nodes {
      id
      title
      vendor
      productType
      status
      descriptionHtml
      variants(first: 1) {
        nodes {
          sku
        }
      }
    }
    pageInfo {
      hasNextPage
      endCursor
    }
  }
}`

// productsQueryCost is the estimated cost of one ProductsQuery page of 50.
const productsQueryCost = 52

// CommerceProduct is a product as listed by the commerce API.
type CommerceProduct struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	Vendor          string `json:"vendor"`
	ProductType     string `json:"productType"`
	Status          string `json:"status"`
	DescriptionHTML string `json:"descriptionHtml"`
	Variants        struct {
		Nodes []struct {
			SKU *string `json:"sku"`
		} `json:"nodes"`
	} `json:"variants"`
}

// SKU returns the first variant's SKU, or "" if there is none.
func (p CommerceProduct) SKU() string {
	for _, v := range p.Variants.Nodes {
		if v.SKU != nil && strings.TrimSpace(*v.SKU) != "" {
			return strings.TrimSpace(*v.SKU)
		}
	}
	return ""
}

type productsData struct {
	Products *struct {
		Nodes    []CommerceProduct   `json:"nodes"`
		PageInfo pagination.PageInfo `json:"pageInfo"`
	} `json:"products"`
}

// ExtractProducts is the pagination.Extractor for ProductsQuery.
func ExtractProducts(data json.RawMessage) ([]CommerceProduct, pagination.PageInfo, error) {
	var out productsData
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, pagination.PageInfo{}, fmt.Errorf("decode products: %w", err)
	}
	if out.Products == nil {
		return nil, pagination.PageInfo{}, fmt.Errorf("response has no products connection")
	}
	return out.Products.Nodes, out.Products.PageInfo, nil
}

// ProductSource lists all products matching search (empty for all).
func ProductSource(ctx context.Context, q pagination.Querier, search string, pageSize int) iter.Seq2[CommerceProduct, error] {
	vars := map[string]any{}
	if search != "" {
		vars["query"] = search
	}
	fetcher := pagination.NewFetcher(q, pagination.Request{
		Query:     ProductsQuery,
		Variables: vars,
		PageSize:  pageSize,
		Cost:      productsQueryCost,
	}, ExtractProducts)
	return fetcher.Items(ctx)
}

// ProductStore is the part of the record store the product import writes to.
type ProductStore interface {
	UpsertProduct(ctx context.Context, externalID string, patch store.ProductPatch) (bool, error)
}

// ProductProcessor upserts commerce products into the record store.
type ProductProcessor struct {
	records ProductStore
	created int
	logger  zerolog.Logger
}

var _ pipeline.Processor[CommerceProduct] = (*ProductProcessor)(nil)

// NewProductProcessor creates a product processor.
func NewProductProcessor(records ProductStore, logger zerolog.Logger) *ProductProcessor {
	return &ProductProcessor{
		records: records,
		logger:  logger,
	}
}

// Identify returns the commerce product ID.
func (p *ProductProcessor) Identify(cp CommerceProduct) string {
	return cp.ID
}

// Process upserts one product. Products without a SKU are skipped.
func (p *ProductProcessor) Process(ctx context.Context, cp CommerceProduct, _ *pipeline.GroupCache) (pipeline.Outcome, error) {
	sku := cp.SKU()
	if sku == "" {
		p.logger.Debug().Str("product_id", cp.ID).Msg("Skipping product without SKU")
		return pipeline.OutcomeSkipped, nil
	}

	status := strings.ToLower(cp.Status)
	patch := store.ProductPatch{
		SKU:         &sku,
		Title:       &cp.Title,
		Vendor:      &cp.Vendor,
		ProductType: &cp.ProductType,
		Description: &cp.DescriptionHTML,
	}
	if status != "" {
		patch.Status = &status
	}

	created, err := p.records.UpsertProduct(ctx, cp.ID, patch)
	if err != nil {
		return 0, err
	}
	if created {
		p.created++
	}
	return pipeline.OutcomeSucceeded, nil
}

// Created returns how many products the processor created.
func (p *ProductProcessor) Created() int {
	return p.created
}

// shopAccessQuery is the cheapest query that proves the token is accepted.
const shopAccessQuery = `query ShopAccess {
  shop {
    name
  }
}`

// CommerceAccess returns a pipeline.Options.Authorize check that issues
// ShopAccess once before a product import pulls its first page.
func CommerceAccess(q pagination.Querier) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if _, err := q.Query(ctx, shopAccessQuery, nil, 1); err != nil {
			return fmt.Errorf("commerce access check: %w", err)
		}
		return nil
	}
}
