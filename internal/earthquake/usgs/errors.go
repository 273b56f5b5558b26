package usgs

import (
	"errors"
	"fmt"
)

// Fetch failure sentinels. A *FetchError matches the one for its Kind.
var (
	ErrConnectTimeout = errors.New("connect timeout")
	ErrReadTimeout    = errors.New("read timeout")
	ErrHTTPStatus     = errors.New("unexpected http status")
	ErrNetwork        = errors.New("network error")
)

// Kind classifies a fetch failure.
type Kind int

const (
	KindNetwork Kind = iota
	KindConnectTimeout
	KindReadTimeout
	KindHTTPStatus
)

func (k Kind) String() string {
	switch k {
	case KindConnectTimeout:
		return "connect_timeout"
	case KindReadTimeout:
		return "read_timeout"
	case KindHTTPStatus:
		return "http_status"
	default:
		return "network"
	}
}

func (k Kind) sentinel() error {
	switch k {
	case KindConnectTimeout:
		return ErrConnectTimeout
	case KindReadTimeout:
		return ErrReadTimeout
	case KindHTTPStatus:
		return ErrHTTPStatus
	default:
		return ErrNetwork
	}
}

// FetchError describes a failed feed request.
type FetchError struct {
	Kind       Kind
	URL        string
	StatusCode int // set for KindHTTPStatus
	Err        error
}

func (e *FetchError) Error() string {
	if e.Kind == KindHTTPStatus {
		return fmt.Sprintf("fetch %s: status %d", e.URL, e.StatusCode)
	}
	if e.Err == nil {
		return fmt.Sprintf("fetch %s: %s", e.URL, e.Kind.sentinel())
	}
	return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind.sentinel(), e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Is matches the sentinel for e.Kind.
func (e *FetchError) Is(target error) bool {
	return target == e.Kind.sentinel()
}
