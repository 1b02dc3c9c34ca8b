package pagination

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
)

type fakePage struct {
	Items       []int   `json:"items"`
	HasNextPage bool    `json:"hasNextPage"`
	EndCursor   *string `json:"endCursor"`
}

// fakeQuerier serves scripted pages and records the variables it was called with.
type fakeQuerier struct {
	pages []fakePage
	calls []map[string]any
	err   error
	errAt int
}

func (q *fakeQuerier) Query(ctx context.Context, query string, variables map[string]any, cost float64) (json.RawMessage, error) {
	q.calls = append(q.calls, variables)
	idx := len(q.calls) - 1
	if q.err != nil && idx == q.errAt {
		return nil, q.err
	}
	if idx >= len(q.pages) {
		return nil, fmt.Errorf("unexpected request %d", idx+1)
	}
	return json.Marshal(q.pages[idx])
}

func extractFake(data json.RawMessage) ([]int, PageInfo, error) {
	var page fakePage
	if err := json.Unmarshal(data, &page); err != nil {
		return nil, PageInfo{}, err
	}
	return page.Items, PageInfo{HasNextPage: page.HasNextPage, EndCursor: page.EndCursor}, nil
}

func cursor(s string) *string {
	return &s
}

func seq(start, n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = start + i
	}
	return out
}

func TestFetcher_ThreePages(t *testing.T) {
	querier := &fakeQuerier{pages: []fakePage{
		{Items: seq(0, 50), HasNextPage: true, EndCursor: cursor("opaque==1")},
		{Items: seq(50, 50), HasNextPage: true, EndCursor: cursor("opaque==2")},
		{Items: seq(100, 20), HasNextPage: false, EndCursor: cursor("opaque==3")},
	}}
	fetcher := NewFetcher(querier, Request{Query: "query", PageSize: 50, Cost: 52}, extractFake)

	var sizes []int
	for page, err := range fetcher.Pages(context.Background()) {
		if err != nil {
			t.Fatalf("Pages() error = %v", err)
		}
		if page.Number != len(sizes)+1 {
			t.Errorf("page.Number = %d, want %d", page.Number, len(sizes)+1)
		}
		sizes = append(sizes, len(page.Items))
	}

	expected := []int{50, 50, 20}
	if len(sizes) != len(expected) {
		t.Fatalf("page sizes = %v, want %v", sizes, expected)
	}
	for i := range expected {
		if sizes[i] != expected[i] {
			t.Errorf("page %d size = %d, want %d", i+1, sizes[i], expected[i])
		}
	}

	if len(querier.calls) != 3 {
		t.Fatalf("Expected 3 requests, got %d", len(querier.calls))
	}
	expectedAfter := []any{nil, "opaque==1", "opaque==2"}
	for i, want := range expectedAfter {
		if got := querier.calls[i]["after"]; got != want {
			t.Errorf("request %d after = %v, want %v", i+1, got, want)
		}
		if got := querier.calls[i]["first"]; got != 50 {
			t.Errorf("request %d first = %v, want 50", i+1, got)
		}
	}

	if !fetcher.Done() {
		t.Error("Fetcher should be done")
	}
	if _, ok, err := fetcher.Next(context.Background()); ok || err != nil {
		t.Errorf("Next() after exhaustion = ok %v, err %v; want false, nil", ok, err)
	}
}

func TestFetcher_SkipsEmptyPages(t *testing.T) {
	querier := &fakeQuerier{pages: []fakePage{
		{Items: seq(0, 3), HasNextPage: true, EndCursor: cursor("a")},
		{Items: nil, HasNextPage: true, EndCursor: cursor("b")},
		{Items: seq(3, 2), HasNextPage: false, EndCursor: cursor("c")},
	}}
	fetcher := NewFetcher(querier, Request{Query: "query", PageSize: 3}, extractFake)

	count := 0
	for item, err := range fetcher.Items(context.Background()) {
		if err != nil {
			t.Fatalf("Items() error = %v", err)
		}
		if item != count {
			t.Errorf("item = %d, want %d", item, count)
		}
		count++
	}

	if count != 5 {
		t.Errorf("Expected 5 items, got %d", count)
	}
	if fetcher.Fetched() != 2 {
		t.Errorf("Fetched() = %d, want 2 non-empty pages", fetcher.Fetched())
	}
	if got := querier.calls[2]["after"]; got != "b" {
		t.Errorf("after following empty page = %v, want b", got)
	}
}

func TestFetcher_EmptyConnection(t *testing.T) {
	querier := &fakeQuerier{pages: []fakePage{{Items: nil, HasNextPage: false}}}
	fetcher := NewFetcher(querier, Request{Query: "query"}, extractFake)

	page, ok, err := fetcher.Next(context.Background())
	if err != nil || ok {
		t.Errorf("Next() = %+v, %v, %v; want no page", page, ok, err)
	}
}

func TestFetcher_MissingCursor(t *testing.T) {
	querier := &fakeQuerier{pages: []fakePage{{Items: seq(0, 2), HasNextPage: true}}}
	fetcher := NewFetcher(querier, Request{Query: "query"}, extractFake)

	_, _, err := fetcher.Next(context.Background())
	if !errors.Is(err, ErrMissingCursor) {
		t.Errorf("Expected ErrMissingCursor, got %v", err)
	}
	if !fetcher.Done() {
		t.Error("Fetcher should be done after an error")
	}
}

func TestFetcher_QueryErrorEndsSequence(t *testing.T) {
	queryErr := errors.New("retry attempts exhausted")
	querier := &fakeQuerier{
		pages: []fakePage{
			{Items: seq(0, 2), HasNextPage: true, EndCursor: cursor("a")},
		},
		err:   queryErr,
		errAt: 1,
	}
	fetcher := NewFetcher(querier, Request{Query: "query"}, extractFake)

	var items []int
	var gotErr error
	for item, err := range fetcher.Items(context.Background()) {
		if err != nil {
			gotErr = err
			continue
		}
		items = append(items, item)
	}

	if len(items) != 2 {
		t.Errorf("Expected 2 items before the error, got %v", items)
	}
	if !errors.Is(gotErr, queryErr) {
		t.Errorf("Expected wrapped query error, got %v", gotErr)
	}
	if len(querier.calls) != 2 {
		t.Errorf("Expected 2 requests, got %d", len(querier.calls))
	}

	var pe *PageError
	if !errors.As(gotErr, &pe) {
		t.Fatalf("Expected *PageError, got %T", gotErr)
	}
	if pe.Request != 2 || !pe.SourceOpened() {
		t.Errorf("later page failure should report an opened source: %+v", pe)
	}
}

func TestFetcher_FirstPageErrorIsNotOpened(t *testing.T) {
	querier := &fakeQuerier{err: errors.New("unauthorized"), errAt: 0}
	fetcher := NewFetcher(querier, Request{Query: "query"}, extractFake)

	_, _, err := fetcher.Next(context.Background())
	var pe *PageError
	if !errors.As(err, &pe) {
		t.Fatalf("Expected *PageError, got %T", err)
	}
	if pe.Request != 1 || pe.SourceOpened() {
		t.Errorf("first page failure should not report an opened source: %+v", pe)
	}
}

func TestFetcher_DoesNotMutateCallerVariables(t *testing.T) {
	vars := map[string]any{"query": "status:active"}
	querier := &fakeQuerier{pages: []fakePage{{Items: seq(0, 1), HasNextPage: false}}}
	fetcher := NewFetcher(querier, Request{Query: "query", Variables: vars, PageSize: 10}, extractFake)

	if _, _, err := fetcher.Next(context.Background()); err != nil {
		t.Fatalf("Next() error = %v", err)
	}

	if len(vars) != 1 {
		t.Errorf("caller variables mutated: %v", vars)
	}
	if got := querier.calls[0]["query"]; got != "status:active" {
		t.Errorf("merged variable query = %v, want status:active", got)
	}
}

func TestFetcher_EarlyBreak(t *testing.T) {
	querier := &fakeQuerier{pages: []fakePage{
		{Items: seq(0, 5), HasNextPage: true, EndCursor: cursor("a")},
		{Items: seq(5, 5), HasNextPage: false},
	}}
	fetcher := NewFetcher(querier, Request{Query: "query"}, extractFake)

	for item := range fetcher.Items(context.Background()) {
		if item == 2 {
			break
		}
	}

	if len(querier.calls) != 1 {
		t.Errorf("Expected 1 request after early break, got %d", len(querier.calls))
	}
}
