package cache

import "fmt"

// Tier is one independently named and versioned cache namespace.
type Tier struct {
	// Name is the cache name, including the release version.
	Name string

	// MaxEntryBytes caps the body size of a single stored entry.
	// Entries above the cap are refused rather than evicting others.
	// If zero, no limit is enforced.
	MaxEntryBytes int64
}

// Admits reports whether an entry of the given size fits the tier.
func (t Tier) Admits(size int64) bool {
	return t.MaxEntryBytes <= 0 || size <= t.MaxEntryBytes
}

// TierLimits configures per-tier size caps.
type TierLimits struct {
	Core     int64 `mapstructure:"core"`
	Cultural int64 `mapstructure:"cultural"`
	API      int64 `mapstructure:"api"`
	Images   int64 `mapstructure:"images"`
	Static   int64 `mapstructure:"static"`
}

// DefaultTierLimits returns the default size caps.
// Images are capped at 500KB; other tiers are unbounded.
func DefaultTierLimits() TierLimits {
	return TierLimits{
		Images: 500 * 1024,
	}
}

// TierSet is the full set of tiers for one release.
type TierSet struct {
	Core     Tier
	Cultural Tier
	API      Tier
	Images   Tier
	Static   Tier
}

// NewTierSet derives the tier names for app at version.
func NewTierSet(app, version string, limits TierLimits) TierSet {
	return TierSet{
		Core:     Tier{Name: fmt.Sprintf("%s-v%s-core", app, version), MaxEntryBytes: limits.Core},
		Cultural: Tier{Name: fmt.Sprintf("%s-cultural-v%s", app, version), MaxEntryBytes: limits.Cultural},
		API:      Tier{Name: fmt.Sprintf("%s-api-v%s", app, version), MaxEntryBytes: limits.API},
		Images:   Tier{Name: fmt.Sprintf("%s-images-v%s", app, version), MaxEntryBytes: limits.Images},
		Static:   Tier{Name: fmt.Sprintf("%s-static-v%s", app, version), MaxEntryBytes: limits.Static},
	}
}

// All returns every tier in a fixed order.
func (s TierSet) All() []Tier {
	return []Tier{s.Core, s.Cultural, s.API, s.Images, s.Static}
}

// Retained returns the names that survive activation: core, cultural and API.
func (s TierSet) Retained() []string {
	return []string{s.Core.Name, s.Cultural.Name, s.API.Name}
}
