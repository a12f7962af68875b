// Package notify implements the Notification Dispatcher of §4.G: renders
// templates, fans out across channel adapters through the resilience
// layer, and always writes a NotificationLog.
package notify

import "fmt"

// Kind is a notification template selector, per §4.G.
type Kind string

const (
	KindQueueNotification Kind = "queue_notification"
	KindArrivalVerified   Kind = "arrival_verified"
	KindServiceStarting   Kind = "service_starting"
	KindServiceCompleted  Kind = "service_completed"
	KindNoShow            Kind = "no_show"
	KindPositionUpdate    Kind = "position_update"
)

// TemplateData carries the fields referenced by the template bodies of
// §4.G / §6.
type TemplateData struct {
	VenueName           string
	VenueAddress        string
	EstimatedMinutes    int
	ServiceNames        []string
	Position            int
	EstimatedWaitMinutes int
	NoShowReason        string
}

// Rendered is a {title, body} pair ready for dispatch.
type Rendered struct {
	Title string
	Body  string
}

// Render produces the title/body for kind, per the templates named in §4.G.
func Render(kind Kind, d TemplateData) Rendered {
	switch kind {
	case KindQueueNotification:
		return Rendered{
			Title: "Your turn is coming up",
			Body: fmt.Sprintf("Your turn is coming up at %s. Please arrive within %d minutes. Services: %s. Address: %s.",
				d.VenueName, d.EstimatedMinutes, joinOrNone(d.ServiceNames), d.VenueAddress),
		}
	case KindArrivalVerified:
		return Rendered{
			Title: "Arrival confirmed",
			Body:  fmt.Sprintf("Your arrival at %s has been confirmed. You're next in line.", d.VenueName),
		}
	case KindServiceStarting:
		return Rendered{
			Title: "Your service is starting",
			Body:  fmt.Sprintf("Your service at %s is starting now.", d.VenueName),
		}
	case KindServiceCompleted:
		return Rendered{
			Title: "Service completed",
			Body:  fmt.Sprintf("Your service at %s is complete. Thank you for visiting.", d.VenueName),
		}
	case KindNoShow:
		return Rendered{
			Title: "Marked as no-show",
			Body:  fmt.Sprintf("You were marked as a no-show at %s: %s.", d.VenueName, d.NoShowReason),
		}
	case KindPositionUpdate:
		return Rendered{
			Title: "Queue position updated",
			Body:  fmt.Sprintf("You are now #%d in line at %s. Estimated wait: %d minutes.", d.Position, d.VenueName, d.EstimatedWaitMinutes),
		}
	default:
		return Rendered{Title: "Update", Body: "There is an update on your queue entry."}
	}
}

func joinOrNone(items []string) string {
	if len(items) == 0 {
		return "your requested services"
	}
	out := items[0]
	for _, s := range items[1:] {
		out += ", " + s
	}
	return out
}
