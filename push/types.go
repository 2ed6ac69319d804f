package push

// NotificationType is the closed set of notification kinds.
type NotificationType int

const (
	TypeGeneric NotificationType = iota
	TypeCulturalEvent
	TypeCommunityMatch
	TypeBusinessUpdate
	TypeHeritageReminder
)

var typeAliases = map[string]NotificationType{
	"cultural-event":     TypeCulturalEvent,
	"festa":              TypeCulturalEvent,
	"fado-night":         TypeCulturalEvent,
	"community-match":    TypeCommunityMatch,
	"business-update":    TypeBusinessUpdate,
	"restaurant-special": TypeBusinessUpdate,
	"heritage-reminder":  TypeHeritageReminder,
}

// ParseType maps a payload type string. Unknown or empty strings are generic.
func ParseType(s string) NotificationType {
	return typeAliases[s]
}

func (t NotificationType) String() string {
	switch t {
	case TypeCulturalEvent:
		return "cultural-event"
	case TypeCommunityMatch:
		return "community-match"
	case TypeBusinessUpdate:
		return "business-update"
	case TypeHeritageReminder:
		return "heritage-reminder"
	default:
		return "general"
	}
}

// Action identifiers attached to notifications and consumed on click.
const (
	ActionViewEvent       = "view-event"
	ActionRSVPYes         = "rsvp-yes"
	ActionViewMatch       = "view-match"
	ActionSendMessage     = "send-message"
	ActionViewBusiness    = "view-business"
	ActionGetDirections   = "get-directions"
	ActionViewCelebration = "view-celebration"
	ActionViewContent     = "view-content"
	ActionShareEvent      = "share-event"
)

type actionSpec struct {
	id     string
	en, pt string
	icon   string
}

func (t NotificationType) actions() []actionSpec {
	switch t {
	case TypeCulturalEvent:
		return []actionSpec{
			{ActionViewEvent, "View Event", "Ver Evento", "/icons/calendar-action.png"},
			{ActionRSVPYes, "I'm Going!", "Vou!", "/icons/check-action.png"},
		}
	case TypeCommunityMatch:
		return []actionSpec{
			{ActionViewMatch, "View Profile", "Ver Perfil", "/icons/user-action.png"},
			{ActionSendMessage, "Send Message", "Enviar Mensagem", "/icons/message-action.png"},
		}
	case TypeBusinessUpdate:
		return []actionSpec{
			{ActionViewBusiness, "View Deal", "Ver Oferta", "/icons/business-action.png"},
			{ActionGetDirections, "Get Directions", "Como Chegar", "/icons/navigation-action.png"},
		}
	case TypeHeritageReminder:
		return []actionSpec{
			{ActionViewCelebration, "View Celebration", "Ver Celebração", "/icons/flag-action.png"},
		}
	default:
		return []actionSpec{
			{ActionViewContent, "View More", "Ver Mais", "/icons/view-action.png"},
		}
	}
}
