package client

import (
	"bytes"
	"encoding/json"
)

// Request is the JSON body posted to the GraphQL endpoint.
type Request struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

// Response is a decoded GraphQL response.
type Response struct {
	Data       json.RawMessage `json:"data"`
	Errors     []GraphQLError  `json:"errors,omitempty"`
	Extensions *Extensions     `json:"extensions,omitempty"`
}

// Extensions holds advisory telemetry attached to a response.
type Extensions struct {
	Cost *QueryCost `json:"cost,omitempty"`
}

// QueryCost describes what a query cost and the remaining budget.
type QueryCost struct {
	RequestedQueryCost float64         `json:"requestedQueryCost"`
	ActualQueryCost    *float64        `json:"actualQueryCost,omitempty"`
	ThrottleStatus     *ThrottleStatus `json:"throttleStatus,omitempty"`
}

// ThrottleStatus is the server-side view of the query budget.
type ThrottleStatus struct {
	MaximumAvailable   float64 `json:"maximumAvailable"`
	CurrentlyAvailable float64 `json:"currentlyAvailable"`
	RestoreRate        float64 `json:"restoreRate"`
}

// HasData reports whether the response carries a non-null data object.
func (r *Response) HasData() bool {
	trimmed := bytes.TrimSpace(r.Data)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

// Throttle returns the reported throttle status, or nil if absent.
func (r *Response) Throttle() *ThrottleStatus {
	if r == nil || r.Extensions == nil || r.Extensions.Cost == nil {
		return nil
	}
	return r.Extensions.Cost.ThrottleStatus
}
