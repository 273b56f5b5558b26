// Package earthquake fetches, parses and formats seismic events from an
// FDSN event query feed such as the USGS earthquake catalog.
package earthquake

import (
	"errors"
	"time"
)

// DefaultBaseURL is the USGS FDSN event query endpoint.
const DefaultBaseURL = "https://earthquake.usgs.gov/fdsnws/event/1/query"

// Earthquake errors.
var (
	ErrInvalidBaseURL    = errors.New("invalid base url")
	ErrEmptyBody         = errors.New("empty response body")
	ErrMalformedResponse = errors.New("malformed feed response")

	// ErrNoFeatures is returned for a well-formed feed with an empty
	// features array. It also matches ErrMalformedResponse.
	ErrNoFeatures = noFeaturesError{}
)

type noFeaturesError struct{}

func (noFeaturesError) Error() string { return "feed contains no features" }

func (noFeaturesError) Is(target error) bool { return target == ErrMalformedResponse }

// Earthquake is a single parsed feed entry. The zero value is not produced by
// the parser; use NewEarthquake.
type Earthquake struct {
	magnitude  float64
	place      string
	timeMillis int64
	detailURL  string
}

// NewEarthquake creates a record with all fields set.
func NewEarthquake(magnitude float64, place string, timeMillis int64, detailURL string) Earthquake {
	return Earthquake{
		magnitude:  magnitude,
		place:      place,
		timeMillis: timeMillis,
		detailURL:  detailURL,
	}
}

// Magnitude returns the event magnitude. It may be zero or negative.
func (e Earthquake) Magnitude() float64 { return e.magnitude }

// Place returns the free-text location description.
func (e Earthquake) Place() string { return e.place }

// TimeMillis returns the event time in UTC epoch milliseconds.
func (e Earthquake) TimeMillis() int64 { return e.timeMillis }

// Time returns the event time as a UTC time.Time.
func (e Earthquake) Time() time.Time { return time.UnixMilli(e.timeMillis).UTC() }

// DetailURL returns the event page URL as reported by the feed.
func (e Earthquake) DetailURL() string { return e.detailURL }

// QueryConfig holds the feed query parameters for one load cycle.
type QueryConfig struct {
	MinMagnitude string
	OrderBy      string
	Limit        int
	Format       string
}

// Order values accepted by the FDSN event service.
const (
	OrderByTime         = "time"
	OrderByTimeAsc      = "time-asc"
	OrderByMagnitude    = "magnitude"
	OrderByMagnitudeAsc = "magnitude-asc"
)

// DefaultQueryConfig returns the query used when nothing is configured.
func DefaultQueryConfig() QueryConfig {
	return QueryConfig{
		MinMagnitude: "6",
		OrderBy:      OrderByMagnitude,
		Limit:        20,
		Format:       "geojson",
	}
}
