package models

import (
	"github.com/quakewatch/quakewatch/internal/earthquake"
)

// Query describes the feed query in API bodies.
type Query struct {
	MinMagnitude string `json:"minMagnitude"`
	OrderBy      string `json:"orderBy"`
	Limit        int    `json:"limit"`
}

// NewQuery converts a feed query for output.
func NewQuery(q earthquake.QueryConfig) Query {
	return Query{MinMagnitude: q.MinMagnitude, OrderBy: q.OrderBy, Limit: q.Limit}
}

// EarthquakeList is the body of GET /v1/earthquakes.
type EarthquakeList struct {
	Earthquakes     []earthquake.Display `json:"earthquakes"`
	Count           int                  `json:"count"`
	Query           Query                `json:"query"`
	State           string               `json:"state"`
	Loading         bool                 `json:"loading"`
	LastDeliveredAt *Timestamp           `json:"lastDeliveredAt,omitempty"`
}

// RefreshRequest is the optional body of POST /v1/earthquakes:refresh.
// Omitted fields keep their current values.
type RefreshRequest struct {
	MinMagnitude *string `json:"minMagnitude,omitempty"`
	OrderBy      *string `json:"orderBy,omitempty"`
	Limit        *int    `json:"limit,omitempty"`
}

// RefreshAccepted is the body of a 202 from POST /v1/earthquakes:refresh.
type RefreshAccepted struct {
	Status string `json:"status"`
	Query  Query  `json:"query"`
}
