package push

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedPayload is returned for push data that is not a JSON object.
var ErrMalformedPayload = errors.New("push: malformed payload")

// PriorityUrgent bypasses quiet hours.
const PriorityUrgent = "urgent"

// Payload is the JSON body of a push message. Unknown fields are ignored.
type Payload struct {
	Title              string           `json:"title"`
	Body               string           `json:"body"`
	Icon               string           `json:"icon,omitempty"`
	Badge              string           `json:"badge,omitempty"`
	Tag                string           `json:"tag,omitempty"`
	Type               string           `json:"type,omitempty"`
	Priority           string           `json:"priority,omitempty"`
	Language           string           `json:"language,omitempty"`
	URL                string           `json:"url,omitempty"`
	EventURL           string           `json:"eventUrl,omitempty"`
	MatchURL           string           `json:"matchUrl,omitempty"`
	MessageURL         string           `json:"messageUrl,omitempty"`
	DirectionsURL      string           `json:"directionsUrl,omitempty"`
	Location           string           `json:"location,omitempty"`
	Image              string           `json:"image,omitempty"`
	Vibrate            []int            `json:"vibrate,omitempty"`
	RequireInteraction bool             `json:"requireInteraction,omitempty"`
	Silent             bool             `json:"silent,omitempty"`
	CulturalContext    *CulturalContext `json:"culturalContext,omitempty"`
}

// CulturalContext carries the audience region of a push.
type CulturalContext struct {
	Region string `json:"region"`
}

// ParsePayload decodes push data.
func ParsePayload(data []byte) (Payload, error) {
	var p Payload
	if len(data) == 0 {
		return p, fmt.Errorf("%w: empty", ErrMalformedPayload)
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	return p, nil
}

// Urgent reports whether the payload bypasses quiet hours.
func (p Payload) Urgent() bool {
	return p.Priority == PriorityUrgent
}

// Kind resolves the notification type.
func (p Payload) Kind() NotificationType {
	return ParseType(p.Type)
}

func (p Payload) region() string {
	if p.CulturalContext == nil {
		return ""
	}
	return p.CulturalContext.Region
}
