package lifecycle

import "fmt"

// Manifest lists what a release precaches.
type Manifest struct {
	// Core assets; install fails unless every one is fetched.
	Core []string `mapstructure:"core"`

	// CulturalCategories are pre-warmed into the cultural tier, best-effort.
	CulturalCategories []string `mapstructure:"cultural_categories"`
}

// DefaultManifest returns the platform's precache list.
func DefaultManifest() Manifest {
	return Manifest{
		Core: []string{
			"/",
			"/offline",
			"/offline.html",
			"/events",
			"/my-network",
			"/business-directory",
			"/live",
			"/transport",
			"/matches",
			"/students",
			"/premium-membership",
			"/images/portuguese-flag.svg",
			"/images/fado-guitar.svg",
			"/images/azulejos-pattern.svg",
			"/images/pasteis-de-nata.jpg",
			"/images/christ-the-king.jpg",
			"/images/ponte-25-abril.jpg",
			"/events/fado-night.jpg",
			"/events/festa-junina.jpg",
			"/events/santo-antonio.jpg",
			"/events/festa-do-avante.jpg",
			"/icons/restaurant.svg",
			"/icons/business.svg",
			"/icons/services.svg",
			"/icons/culture.svg",
			"/fonts/poppins-regular.woff2",
			"/fonts/poppins-semibold.woff2",
			"/fonts/inter-regular.woff2",
		},
		CulturalCategories: DefaultCategories(),
	}
}

// DefaultCategories returns the cultural event categories.
func DefaultCategories() []string {
	return []string{
		"fado-nights",
		"festa-junina",
		"santo-antonio",
		"festa-do-avante",
		"portuguese-wine-tasting",
		"azulejos-workshop",
		"portuguese-cooking-class",
		"lusophone-networking",
		"brazilian-capoeira",
		"cape-verdean-music",
		"angolan-culture",
		"mozambican-heritage",
	}
}

// PrewarmPath is the cultural API path pre-warmed for a category.
func PrewarmPath(category string) string {
	return fmt.Sprintf("/api/events?category=%s&lang=pt", category)
}
