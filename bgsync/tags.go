// Package bgsync re-fetches fixed endpoint sets when connectivity returns.
//
// Each named sync tag maps to a list of targets. A failing target never aborts
// its siblings: every target is fetched, retried and stored on its own.
package bgsync

import (
	"fmt"

	"github.com/jonwraymond/offlineworker/cache"
)

// Tag names a background sync intent.
type Tag string

const (
	TagCommunity         Tag = "community-sync"
	TagCulturalEvents    Tag = "cultural-events-sync"
	TagBusinessDirectory Tag = "business-directory-sync"
)

// Tags returns every known tag.
func Tags() []Tag {
	return []Tag{TagCommunity, TagCulturalEvents, TagBusinessDirectory}
}

// Dest selects the tier a target is stored in.
type Dest int

const (
	DestAPI Dest = iota
	DestCultural
)

func (d Dest) tier(tiers cache.TierSet) cache.Tier {
	if d == DestCultural {
		return tiers.Cultural
	}
	return tiers.API
}

// Target is one endpoint refreshed by a sync.
type Target struct {
	Path string
	Dest Dest
}

// BusinessTypes are the directory sections refreshed by business-directory-sync.
var BusinessTypes = []string{"restaurants", "services", "retail", "professional", "cultural"}

// Targets returns the endpoint set for tag. Unknown tags have none.
func Targets(tag Tag, categories []string) []Target {
	switch tag {
	case TagCommunity:
		return []Target{
			{Path: "/api/events?lang=pt&featured=true", Dest: DestCultural},
			{Path: "/api/businesses?lang=pt&featured=true", Dest: DestAPI},
		}
	case TagCulturalEvents:
		out := make([]Target, 0, len(categories))
		for _, c := range categories {
			out = append(out, Target{Path: fmt.Sprintf("/api/events?category=%s&lang=pt&limit=10", c), Dest: DestCultural})
		}
		return out
	case TagBusinessDirectory:
		out := make([]Target, 0, len(BusinessTypes))
		for _, t := range BusinessTypes {
			out = append(out, Target{Path: fmt.Sprintf("/api/businesses?type=%s&portuguese=true&limit=20", t), Dest: DestAPI})
		}
		return out
	default:
		return nil
	}
}
