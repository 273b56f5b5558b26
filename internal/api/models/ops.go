package models

// Health is the body of the liveness and readiness checks.
type Health struct {
	Status  HealthStatus           `json:"status"`
	Time    Timestamp              `json:"time"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// SystemStatus reports the feed pipeline and its upstreams.
type SystemStatus struct {
	Status    HealthStatus     `json:"status"`
	Time      Timestamp        `json:"time"`
	Feed      FeedStatus       `json:"feed"`
	Upstreams []UpstreamStatus `json:"upstreams"`
}

// FeedStatus describes the loader behind the earthquake list.
type FeedStatus struct {
	State           string     `json:"state"`
	Loading         bool       `json:"loading"`
	Delivered       bool       `json:"delivered"`
	Count           int        `json:"count"`
	LastDeliveredAt *Timestamp `json:"lastDeliveredAt,omitempty"`
}

// UpstreamStatus represents the status of an upstream feed client.
type UpstreamStatus struct {
	Name           string       `json:"name"`
	Status         HealthStatus `json:"status"`
	BreakerEnabled bool         `json:"breakerEnabled"`
	CircuitState   string       `json:"circuitState"`
	LastSuccessAt  *Timestamp   `json:"lastSuccessAt,omitempty"`
	LastFailureAt  *Timestamp   `json:"lastFailureAt,omitempty"`
	Message        *string      `json:"message,omitempty"`
}
