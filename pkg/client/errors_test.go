package client

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestHTTPError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *HTTPError
		contains string
	}{
		{
			name:     "with body",
			err:      &HTTPError{StatusCode: 503, Status: "503 Service Unavailable", Body: "maintenance"},
			contains: "status 503): maintenance",
		},
		{
			name:     "without body",
			err:      &HTTPError{StatusCode: 502, Status: "502 Bad Gateway"},
			contains: "502 Bad Gateway",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); !strings.Contains(got, tt.contains) {
				t.Errorf("Error() = %q, want to contain %q", got, tt.contains)
			}
		})
	}
}

func TestGraphQLError_IsThrottled(t *testing.T) {
	tests := []struct {
		code     string
		expected bool
	}{
		{"THROTTLED", true},
		{"throttled", true},
		{"MAX_COST_EXCEEDED", false},
		{"", false},
	}

	for _, tt := range tests {
		e := GraphQLError{Message: "x", Extensions: ErrorExtensions{Code: tt.code}}
		if got := e.IsThrottled(); got != tt.expected {
			t.Errorf("IsThrottled(%q) = %v, want %v", tt.code, got, tt.expected)
		}
	}
}

func TestTerminalError_CombinesMessages(t *testing.T) {
	err := newTerminalError([]GraphQLError{
		{Message: "first problem"},
		{Message: "second problem", Extensions: ErrorExtensions{Code: "BAD_REQUEST"}},
	})

	msg := err.Error()
	for _, part := range []string{"first problem", "second problem (BAD_REQUEST)"} {
		if !strings.Contains(msg, part) {
			t.Errorf("Error() = %q, want to contain %q", msg, part)
		}
	}

	var gqlErr GraphQLError
	if !errors.As(err, &gqlErr) {
		t.Error("errors.As should find a GraphQLError inside TerminalError")
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		resp     *Response
		err      error
		expected ErrorClass
	}{
		{"network error", nil, errors.New("dial tcp: refused"), ErrorClassTransient},
		{"http error", nil, &HTTPError{StatusCode: 500}, ErrorClassTransient},
		{"throttled", throttledResponse(), nil, ErrorClassThrottled},
		{"application error", &Response{Errors: []GraphQLError{{Message: "bad"}}}, nil, ErrorClassTerminal},
		{"null data", &Response{Data: json.RawMessage("null")}, nil, ErrorClassTerminal},
		{"missing data", &Response{}, nil, ErrorClassTerminal},
		{"success", dataResponse(), nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			class, _ := classify(tt.resp, tt.err)
			if class != tt.expected {
				t.Errorf("classify() = %q, want %q", class, tt.expected)
			}
		})
	}
}

func TestShouldRetry(t *testing.T) {
	tests := []struct {
		class    ErrorClass
		expected bool
	}{
		{ErrorClassThrottled, true},
		{ErrorClassTransient, true},
		{ErrorClassTerminal, false},
		{"", false},
	}

	for _, tt := range tests {
		if got := shouldRetry(tt.class); got != tt.expected {
			t.Errorf("shouldRetry(%q) = %v, want %v", tt.class, got, tt.expected)
		}
	}
}
