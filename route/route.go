// Package route classifies intercepted requests.
//
// Classification is computed once per request from the URL shape and the fetch
// mode. It carries no state between requests.
package route

import (
	"net/http"
	"net/url"
	"path"
	"slices"
	"strings"
)

// Class is the request classification that selects a strategy handler.
type Class int

// Request classes, in dispatch priority order.
const (
	Other Class = iota
	API
	CulturalContent
	Navigation
	StaticAsset
)

// String returns the class label used in logs and metrics.
func (c Class) String() string {
	switch c {
	case API:
		return "api"
	case CulturalContent:
		return "cultural"
	case Navigation:
		return "navigation"
	case StaticAsset:
		return "static"
	default:
		return "other"
	}
}

// Classifier decides whether a request is intercepted and which class it is.
type Classifier struct {
	// Origin is the platform origin, e.g. https://lusotown.example.
	Origin *url.URL

	// TrustedOrigins are cross-origin hosts still intercepted. A request host
	// containing any entry is trusted.
	TrustedOrigins []string

	// CulturalPrefixes are path prefixes served stale-while-revalidate.
	CulturalPrefixes []string

	// CulturalQueryPaths are exact paths that are cultural when they carry a
	// category query parameter.
	CulturalQueryPaths []string

	// StaticExtensions are file extensions served cache-first.
	StaticExtensions []string

	// MirroredAPIPrefixes are API paths whose successful responses are cached.
	MirroredAPIPrefixes []string
}

// DefaultClassifier returns a classifier with the platform's route tables.
func DefaultClassifier(origin *url.URL) *Classifier {
	return &Classifier{
		Origin: origin,
		TrustedOrigins: []string{
			"portuguese-content.lusotown.com",
			"lusotown-portuguese-content.b-cdn.net",
			"lusotown-portuguese-streams.b-cdn.net",
			"res.cloudinary.com",
		},
		CulturalPrefixes: []string{
			"/events/fado",
			"/events/festa",
			"/events/santo",
			"/events/portuguese",
			"/events/brazilian",
			"/events/angolan",
			"/events/cape-verdean",
			"/events/mozambican",
			"/business-directory/portuguese",
			"/business-directory/restaurants",
			"/cultural-calendar",
			"/portuguese-heritage",
		},
		CulturalQueryPaths: []string{"/events"},
		StaticExtensions:   []string{".js", ".css", ".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp", ".woff", ".woff2"},
		MirroredAPIPrefixes: []string{
			"/api/events",
			"/api/businesses",
			"/api/community",
			"/api/matches",
			"/api/cultural-content",
			"/api/portuguese-speakers",
		},
	}
}

// InScope reports whether req is intercepted. Non-GET requests and
// untrusted cross-origin requests pass through.
func (c *Classifier) InScope(req *http.Request) bool {
	if req.Method != http.MethodGet {
		return false
	}
	host := strings.ToLower(requestHost(req))
	if c.Origin == nil || host == "" || host == strings.ToLower(c.Origin.Host) {
		return true
	}
	for _, trusted := range c.TrustedOrigins {
		if strings.Contains(host, trusted) {
			return true
		}
	}
	return false
}

// Classify resolves the class of an in-scope request.
func (c *Classifier) Classify(req *http.Request) Class {
	p := req.URL.Path
	switch {
	case strings.HasPrefix(p, "/api/"):
		return API
	case c.cultural(req.URL):
		return CulturalContent
	case IsNavigation(req):
		return Navigation
	case c.static(p):
		return StaticAsset
	default:
		return Other
	}
}

// Mirrored reports whether a successful API response for p is cached.
func (c *Classifier) Mirrored(p string) bool {
	for _, prefix := range c.MirroredAPIPrefixes {
		if strings.HasPrefix(p, prefix) {
			return true
		}
	}
	return false
}

// IsImage reports whether p names an image asset.
func IsImage(p string) bool {
	switch strings.ToLower(path.Ext(p)) {
	case ".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp":
		return true
	}
	return false
}

// IsNavigation reports whether req is a top-level document navigation.
func IsNavigation(req *http.Request) bool {
	return strings.EqualFold(req.Header.Get("Sec-Fetch-Mode"), "navigate")
}

func (c *Classifier) cultural(u *url.URL) bool {
	for _, prefix := range c.CulturalPrefixes {
		if strings.HasPrefix(u.Path, prefix) {
			return true
		}
	}
	return slices.Contains(c.CulturalQueryPaths, u.Path) && u.Query().Has("category")
}

func (c *Classifier) static(p string) bool {
	for _, ext := range c.StaticExtensions {
		if strings.HasSuffix(p, ext) {
			return true
		}
	}
	return false
}

func requestHost(req *http.Request) string {
	if req.URL != nil && req.URL.Host != "" {
		return req.URL.Host
	}
	return req.Host
}
