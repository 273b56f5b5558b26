package earthquake

import (
	"encoding/json"
	"fmt"
)

// Feed response structures. Pointer fields distinguish a missing or null
// value from a zero value.

type featureCollection struct {
	Features *[]json.RawMessage `json:"features"`
}

type feature struct {
	Properties *properties `json:"properties"`
}

type properties struct {
	Mag   *float64 `json:"mag"`
	Place *string  `json:"place"`
	Time  *int64   `json:"time"`
	URL   *string  `json:"url"`
}

// Parse extracts one Earthquake per feature in body, in feed order.
//
// Parsing is all-or-nothing: a single malformed feature fails the whole
// response. An empty body returns ErrEmptyBody and an empty features array
// returns ErrNoFeatures; everything else wraps ErrMalformedResponse.
func Parse(body string) ([]Earthquake, error) {
	if body == "" {
		return nil, ErrEmptyBody
	}

	var fc featureCollection
	if err := json.Unmarshal([]byte(body), &fc); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformedResponse, err.Error())
	}
	if fc.Features == nil {
		return nil, fmt.Errorf("%w: missing features array", ErrMalformedResponse)
	}

	raw := *fc.Features
	if len(raw) == 0 {
		return nil, ErrNoFeatures
	}

	quakes := make([]Earthquake, 0, len(raw))
	for i, r := range raw {
		eq, err := parseFeature(r)
		if err != nil {
			return nil, fmt.Errorf("%w: feature %d: %s", ErrMalformedResponse, i, err.Error())
		}
		quakes = append(quakes, eq)
	}

	return quakes, nil
}

// ParseFeed is Parse with every failure collapsed to nil.
func ParseFeed(body string) []Earthquake {
	quakes, err := Parse(body)
	if err != nil {
		return nil
	}
	return quakes
}

func parseFeature(raw json.RawMessage) (Earthquake, error) {
	var f feature
	if err := json.Unmarshal(raw, &f); err != nil {
		return Earthquake{}, err
	}

	p := f.Properties
	switch {
	case p == nil:
		return Earthquake{}, fmt.Errorf("missing properties")
	case p.Mag == nil:
		return Earthquake{}, fmt.Errorf("missing mag")
	case p.Place == nil:
		return Earthquake{}, fmt.Errorf("missing place")
	case p.Time == nil:
		return Earthquake{}, fmt.Errorf("missing time")
	case p.URL == nil:
		return Earthquake{}, fmt.Errorf("missing url")
	}

	return NewEarthquake(*p.Mag, *p.Place, *p.Time, *p.URL), nil
}
