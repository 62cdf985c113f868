package telemetry

import (
	"net/url"
	"strings"
)

// DeriveWSURL returns the live feed URL. An explicit override wins, the
// literal "disabled" turns the feed off (empty result), and otherwise the
// scheme of apiBase is mapped http->ws, https->wss on the same host.
func DeriveWSURL(apiBase, override string) string {
	if override != "" {
		if strings.EqualFold(override, "disabled") {
			return ""
		}
		return override
	}
	u, err := url.Parse(apiBase)
	if err != nil || u.Host == "" {
		return ""
	}
	scheme := "ws"
	if u.Scheme == "https" {
		scheme = "wss"
	}
	return scheme + "://" + u.Host
}

// WithParams appends query parameters to rawURL, skipping empty values.
func WithParams(rawURL string, params map[string]string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	for k, v := range params {
		if v != "" {
			q.Set(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
