package cache

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// RequestKey returns the canonical cache key for a request.
func RequestKey(req *http.Request) (string, error) {
	if req == nil || req.URL == nil {
		return "", ErrInvalidKey
	}
	return Key(req.Method, req.URL)
}

// Key generates a deterministic cache key from method and URL.
// Format: "<METHOD> <scheme>://<host><path>?<query>"
//
// Scheme and host are lowercased and default ports dropped. The fragment is
// discarded. The query string is kept verbatim, so ?lang=pt and ?lang=en are
// distinct keys.
func Key(method string, u *url.URL) (string, error) {
	if u == nil {
		return "", ErrInvalidKey
	}
	method = strings.ToUpper(strings.TrimSpace(method))
	if method == "" {
		method = http.MethodGet
	}

	key := method + " " + CanonicalURL(u)
	if err := ValidateKey(key); err != nil {
		return "", fmt.Errorf("cache: key for %q: %w", u.String(), err)
	}
	return key, nil
}

// CanonicalURL renders u in the form used inside cache keys.
func CanonicalURL(u *url.URL) string {
	c := *u
	c.Scheme = strings.ToLower(c.Scheme)
	c.Host = canonicalHost(c.Scheme, c.Host)
	c.Fragment = ""
	c.RawFragment = ""
	c.User = nil
	if c.Path == "" && c.Host != "" {
		c.Path = "/"
	}
	return c.String()
}

func canonicalHost(scheme, host string) string {
	host = strings.ToLower(host)
	switch {
	case scheme == "http" && strings.HasSuffix(host, ":80"):
		return strings.TrimSuffix(host, ":80")
	case scheme == "https" && strings.HasSuffix(host, ":443"):
		return strings.TrimSuffix(host, ":443")
	}
	return host
}
