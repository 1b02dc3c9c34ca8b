package pagination

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"maps"

	"github.com/rs/zerolog/log"
)

// ErrMissingCursor is returned when a page claims more results but carries no cursor.
var ErrMissingCursor = errors.New("page has more results but no end cursor")

// PageError is a failed page request. Request counts every request made by
// the fetcher, including empty pages that were skipped.
type PageError struct {
	Request int
	Op      string
	Err     error
}

func (e *PageError) Error() string {
	return fmt.Sprintf("%s page %d: %v", e.Op, e.Request, e.Err)
}

func (e *PageError) Unwrap() error {
	return e.Err
}

// SourceOpened reports whether an earlier page had been read successfully.
func (e *PageError) SourceOpened() bool {
	return e.Request > 1
}

// Querier runs a costed GraphQL query and returns its data object.
// client.Client implements it.
type Querier interface {
	Query(ctx context.Context, query string, variables map[string]any, cost float64) (json.RawMessage, error)
}

// PageInfo is the connection's pagination block.
type PageInfo struct {
	HasNextPage bool    `json:"hasNextPage"`
	EndCursor   *string `json:"endCursor"`
}

// Page is one page of results.
type Page[T any] struct {
	// Number is the 1-based position among non-empty pages.
	Number int
	Items  []T
	// Cursor is the page's end cursor, nil if the API sent none.
	Cursor  *string
	HasMore bool
}

// Extractor pulls the items and page info out of a response's data object.
type Extractor[T any] func(data json.RawMessage) ([]T, PageInfo, error)

// Request describes the paginated query.
type Request struct {
	// Query must declare $first and $after variables.
	Query string
	// Variables are merged with first/after on every request.
	Variables map[string]any
	// PageSize is passed as $first.
	PageSize int
	// Cost is the estimated query cost of one page.
	Cost float64
}

// Fetcher walks a cursor-paginated connection. It is not safe for concurrent use.
type Fetcher[T any] struct {
	querier Querier
	request Request
	extract Extractor[T]

	cursor  *string
	fetched  int
	requests int
	done     bool
}

// NewFetcher creates a new fetcher positioned before the first page.
func NewFetcher[T any](querier Querier, request Request, extract Extractor[T]) *Fetcher[T] {
	if request.PageSize <= 0 {
		request.PageSize = 50
	}
	return &Fetcher[T]{
		querier: querier,
		request: request,
		extract: extract,
	}
}

// Next fetches the next non-empty page. ok is false once the connection is
// exhausted. After an error the fetcher is finished.
func (f *Fetcher[T]) Next(ctx context.Context) (page Page[T], ok bool, err error) {
	for !f.done {
		vars := make(map[string]any, len(f.request.Variables)+2)
		maps.Copy(vars, f.request.Variables)
		vars["first"] = f.request.PageSize
		if f.cursor != nil {
			vars["after"] = *f.cursor
		} else {
			vars["after"] = nil
		}

		f.requests++
		data, err := f.querier.Query(ctx, f.request.Query, vars, f.request.Cost)
		if err != nil {
			f.done = true
			return Page[T]{}, false, &PageError{Request: f.requests, Op: "fetch", Err: err}
		}

		items, info, err := f.extract(data)
		if err != nil {
			f.done = true
			return Page[T]{}, false, &PageError{Request: f.requests, Op: "extract", Err: err}
		}

		if info.HasNextPage && info.EndCursor == nil {
			f.done = true
			return Page[T]{}, false, &PageError{Request: f.requests, Op: "read", Err: ErrMissingCursor}
		}

		f.cursor = info.EndCursor
		f.done = !info.HasNextPage

		if len(items) == 0 {
			if info.HasNextPage {
				log.Debug().Msg("Skipping empty page with more results pending")
			}
			continue
		}

		f.fetched++
		return Page[T]{
			Number:  f.fetched,
			Items:   items,
			Cursor:  info.EndCursor,
			HasMore: info.HasNextPage,
		}, true, nil
	}
	return Page[T]{}, false, nil
}

// Pages returns the remaining pages as a sequence. An error is yielded once
// and ends the sequence.
func (f *Fetcher[T]) Pages(ctx context.Context) iter.Seq2[Page[T], error] {
	return func(yield func(Page[T], error) bool) {
		for {
			page, ok, err := f.Next(ctx)
			if err != nil {
				yield(Page[T]{}, err)
				return
			}
			if !ok {
				return
			}
			if !yield(page, nil) {
				return
			}
		}
	}
}

// Items flattens the remaining pages into a sequence of items.
func (f *Fetcher[T]) Items(ctx context.Context) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for page, err := range f.Pages(ctx) {
			if err != nil {
				var zero T
				yield(zero, err)
				return
			}
			for _, item := range page.Items {
				if !yield(item, nil) {
					return
				}
			}
		}
	}
}

// Fetched returns the number of non-empty pages returned so far.
func (f *Fetcher[T]) Fetched() int {
	return f.fetched
}

// Done reports whether the connection is exhausted.
func (f *Fetcher[T]) Done() bool {
	return f.done
}
