// Package pagination provides forward-only cursor pagination over GraphQL
// connection fields (first/after + pageInfo).
//
// The commerce API returns an opaque endCursor with every page. The fetcher
// stores it and replays it unmodified as the next request's "after"
// variable; it never inspects its contents.
//
// Example usage:
//
//	req := pagination.Request{
//		Query:    productsQuery,
//		PageSize: 50,
//		Cost:     52,
//	}
//	fetcher := pagination.NewFetcher(commerceClient, req, extractProducts)
//	for page, err := range fetcher.Pages(ctx) {
//		if err != nil {
//			return err
//		}
//		// page.Items ...
//	}
//
// The fetcher:
//   - merges {first, after} into a copy of the caller's variables
//   - delegates extraction to a caller-supplied Extractor (any result shape)
//   - skips empty pages while hasNextPage is true
//   - stops once hasNextPage is false and cannot be restarted
package pagination
