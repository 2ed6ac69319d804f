package push

import (
	"time"

	"golang.org/x/text/language"
)

const (
	defaultIcon  = "/icons/icon-192x192.png"
	defaultBadge = "/icons/badge-72x72.png"
)

var (
	supported = []language.Tag{language.English, language.Portuguese}
	matcher   = language.NewMatcher(supported)
)

// Action is a button on a displayed notification.
type Action struct {
	Action string `json:"action"`
	Title  string `json:"title"`
	Icon   string `json:"icon,omitempty"`
}

// Data travels with a notification and is read back on click.
type Data struct {
	URL           string `json:"url"`
	EventURL      string `json:"eventUrl,omitempty"`
	MatchURL      string `json:"matchUrl,omitempty"`
	MessageURL    string `json:"messageUrl,omitempty"`
	DirectionsURL string `json:"directionsUrl,omitempty"`
	Location      string `json:"location,omitempty"`
	Type          string `json:"type,omitempty"`
	Priority      string `json:"priority"`
}

// Notification is a fully built notification ready for display.
type Notification struct {
	Title              string       `json:"title"`
	Body               string       `json:"body"`
	Icon               string       `json:"icon"`
	Badge              string       `json:"badge"`
	Tag                string       `json:"tag"`
	Language           language.Tag `json:"-"`
	RequireInteraction bool         `json:"requireInteraction"`
	Renotify           bool         `json:"renotify"`
	Silent             bool         `json:"silent"`
	Vibrate            []int        `json:"vibrate,omitempty"`
	Image              string       `json:"image,omitempty"`
	Timestamp          time.Time    `json:"timestamp"`
	Data               Data         `json:"data"`
	Actions            []Action     `json:"actions"`
}

// DefaultVibration is used when a payload names no known region.
var DefaultVibration = []int{200, 100, 200}

var regionVibration = map[string][]int{
	"portugal":   {300, 100, 300},
	"brazil":     {100, 50, 100, 50, 100},
	"cape-verde": {200, 100, 200, 100, 400},
	"angola":     {250, 100, 250},
	"mozambique": {150, 75, 150, 75, 150},
}

// VibrationFor returns the vibration pattern for a cultural region.
func VibrationFor(region string) []int {
	if v, ok := regionVibration[region]; ok {
		return append([]int(nil), v...)
	}
	return append([]int(nil), DefaultVibration...)
}

// Localize picks English or Portuguese for a language hint. English is the default.
func Localize(hint string) language.Tag {
	if hint == "" {
		return language.English
	}
	tag, err := language.Parse(hint)
	if err != nil {
		return language.English
	}
	_, idx, conf := matcher.Match(tag)
	if conf == language.No {
		return language.English
	}
	return supported[idx]
}

// Brand names the app in tags and default titles.
type Brand struct {
	// App prefixes default tags, e.g. "lusotown-cultural-event".
	App string `mapstructure:"app"`
	// Title is used when a payload has none.
	Title string `mapstructure:"title"`
}

func (b Brand) title() string {
	return or(b.Title, or(b.App, "Notification"))
}

// Build derives display options from a payload.
func Build(b Brand, p Payload, now time.Time) Notification {
	lang := Localize(p.Language)
	kind := p.Kind()

	n := Notification{
		Title:              p.Title,
		Body:               p.Body,
		Icon:               or(p.Icon, defaultIcon),
		Badge:              or(p.Badge, defaultBadge),
		Tag:                or(p.Tag, b.App+"-"+or(p.Type, "general")),
		Language:           lang,
		RequireInteraction: p.RequireInteraction,
		Renotify:           true,
		Silent:             p.Silent,
		Vibrate:            p.Vibrate,
		Image:              p.Image,
		Timestamp:          now,
		Data: Data{
			URL:           or(p.URL, "/"),
			EventURL:      p.EventURL,
			MatchURL:      p.MatchURL,
			MessageURL:    p.MessageURL,
			DirectionsURL: p.DirectionsURL,
			Location:      p.Location,
			Type:          p.Type,
			Priority:      or(p.Priority, "normal"),
		},
	}
	if n.Title == "" {
		n.Title = b.title()
	}
	if len(n.Vibrate) == 0 {
		n.Vibrate = VibrationFor(p.region())
	}
	for _, a := range kind.actions() {
		title := a.en
		if lang == language.Portuguese {
			title = a.pt
		}
		n.Actions = append(n.Actions, Action{Action: a.id, Title: title, Icon: a.icon})
	}
	return n
}

// Fallback is shown when a push cannot be parsed.
func Fallback(b Brand, now time.Time) Notification {
	return Notification{
		Title:     b.title(),
		Body:      "Nova atualização da comunidade portuguesa / New Portuguese community update",
		Icon:      defaultIcon,
		Badge:     defaultBadge,
		Tag:       b.App + "-general",
		Language:  language.English,
		Timestamp: now,
		Vibrate:   VibrationFor(""),
		Data:      Data{URL: "/", Priority: "normal"},
	}
}

func or(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
