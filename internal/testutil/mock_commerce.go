// Package testutil provides testing utilities for pim-sync.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"
)

// MockGraphQLRequest is a request received by the mock server.
type MockGraphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

// MockCommerceResponse defines the behavior for one mock response.
type MockCommerceResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockCommerce is a configurable mock commerce GraphQL server for testing.
// Responses are served in the order they were queued; once the queue is
// empty the fallback response is repeated.
type MockCommerce struct {
	server   *httptest.Server
	mu       sync.RWMutex
	queue    []MockCommerceResponse
	fallback MockCommerceResponse

	// Tracking
	RequestCount      int
	Requests          []MockGraphQLRequest
	LastRequestHeader http.Header
}

// NewMockCommerce creates a new mock commerce server.
func NewMockCommerce() *MockCommerce {
	mock := &MockCommerce{
		fallback: NewDataResponse(`{"shop":{"name":"mock"}}`),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req MockGraphQLRequest
		_ = json.NewDecoder(r.Body).Decode(&req)

		mock.mu.Lock()
		mock.RequestCount++
		mock.Requests = append(mock.Requests, req)
		mock.LastRequestHeader = r.Header.Clone()

		resp := mock.fallback
		if len(mock.queue) > 0 {
			resp = mock.queue[0]
			mock.queue = mock.queue[1:]
		}
		mock.mu.Unlock()

		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}
		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		if w.Header().Get("Content-Type") == "" {
			w.Header().Set("Content-Type", "application/json")
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockCommerce) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockCommerce) Close() {
	m.server.Close()
}

// Enqueue appends responses to the queue.
func (m *MockCommerce) Enqueue(responses ...MockCommerceResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, responses...)
}

// SetFallback sets the response served when the queue is empty.
func (m *MockCommerce) SetFallback(resp MockCommerceResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallback = resp
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockCommerce) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetRequests returns a copy of the received requests.
func (m *MockCommerce) GetRequests() []MockGraphQLRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]MockGraphQLRequest, len(m.Requests))
	copy(out, m.Requests)
	return out
}

// GetLastRequestHeader returns the headers of the most recent request.
func (m *MockCommerce) GetLastRequestHeader() http.Header {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.LastRequestHeader
}

// throttleExtensions renders an extensions.cost block.
func throttleExtensions(available float64) string {
	return fmt.Sprintf(`{"cost":{"requestedQueryCost":10,"actualQueryCost":10,"throttleStatus":{"maximumAvailable":1000,"currentlyAvailable":%g,"restoreRate":50}}}`, available)
}

// NewDataResponse creates a 200 OK response carrying data and a healthy budget.
func NewDataResponse(data string) MockCommerceResponse {
	return MockCommerceResponse{
		StatusCode: http.StatusOK,
		Body:       fmt.Sprintf(`{"data":%s,"extensions":%s}`, data, throttleExtensions(990)),
	}
}

// NewDataResponseWithBudget creates a 200 OK response reporting the given available points.
func NewDataResponseWithBudget(data string, available float64) MockCommerceResponse {
	return MockCommerceResponse{
		StatusCode: http.StatusOK,
		Body:       fmt.Sprintf(`{"data":%s,"extensions":%s}`, data, throttleExtensions(available)),
	}
}

// NewThrottledResponse creates a 200 OK response with a THROTTLED error.
func NewThrottledResponse() MockCommerceResponse {
	return MockCommerceResponse{
		StatusCode: http.StatusOK,
		Body:       fmt.Sprintf(`{"errors":[{"message":"Throttled","extensions":{"code":"THROTTLED"}}],"extensions":%s}`, throttleExtensions(0)),
	}
}

// NewGraphQLErrorResponse creates a 200 OK response with a non-throttling error.
func NewGraphQLErrorResponse(message string) MockCommerceResponse {
	return MockCommerceResponse{
		StatusCode: http.StatusOK,
		Body:       fmt.Sprintf(`{"errors":[{"message":%q}]}`, message),
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockCommerceResponse {
	return MockCommerceResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"errors":"Internal server error"}`,
	}
}

// NewNullDataResponse creates a 200 OK response without data or errors.
func NewNullDataResponse() MockCommerceResponse {
	return MockCommerceResponse{
		StatusCode: http.StatusOK,
		Body:       `{"data":null}`,
	}
}
