package earthquake

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// BuildURL appends the query parameters format, limit, minmag and orderby,
// in that order, to baseURL. Parameter values are not validated.
func BuildURL(baseURL string, cfg QueryConfig) (string, error) {
	if err := validateBaseURL(baseURL); err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(baseURL)
	switch {
	case !strings.Contains(baseURL, "?"):
		b.WriteByte('?')
	case !strings.HasSuffix(baseURL, "?") && !strings.HasSuffix(baseURL, "&"):
		b.WriteByte('&')
	}

	params := [][2]string{
		{"format", cfg.Format},
		{"limit", strconv.Itoa(cfg.Limit)},
		{"minmag", cfg.MinMagnitude},
		{"orderby", cfg.OrderBy},
	}
	for i, p := range params {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(p[0]))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(p[1]))
	}

	return b.String(), nil
}

func validateBaseURL(baseURL string) error {
	u, err := url.Parse(baseURL)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidBaseURL, err.Error())
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: unsupported scheme %q", ErrInvalidBaseURL, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: missing host", ErrInvalidBaseURL)
	}
	if u.Fragment != "" {
		return fmt.Errorf("%w: fragment not allowed", ErrInvalidBaseURL)
	}
	return nil
}
