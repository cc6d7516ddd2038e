package bot

import (
	"fmt"
	"strings"

	"github.com/calbot-io/calbot/internal/calendar"
	"github.com/calbot-io/calbot/internal/dispatch"
)

const (
	helpText = `I manage your Google Calendar. Try:
- "schedule lunch with Sam tomorrow at noon"
- "what's on my calendar next week?"
- "move the standup to 10am"
- "cancel the dentist appointment"

Commands:
/auth - connect your Google Calendar
/logout - disconnect and delete stored credentials
/help - show this message`

	startText = "Hi! I'm your calendar assistant. Send /auth to connect your Google Calendar, then just tell me what to schedule."

	authRequiredText = "I don't have access to your calendar. Send /auth to connect it."

	transientFailureText = "The calendar service is having trouble right now. Please try again in a moment."
)

const eventTimeFormat = "Mon Jan 2, 15:04"

// formatResult renders a dispatch result as a chat reply.
func formatResult(result *dispatch.Result) string {
	switch result.Status {
	case dispatch.StatusValidationError:
		return "I couldn't do that: " + result.Reason
	case dispatch.StatusAuthRequired:
		return authRequiredText
	case dispatch.StatusBackendError:
		return formatBackendError(result)
	case dispatch.StatusSuccess:
		return formatPayload(result.Payload)
	default:
		return transientFailureText
	}
}

func formatBackendError(result *dispatch.Result) string {
	switch result.ErrorKind {
	case calendar.KindNotFound:
		return "I couldn't find that event. It may have been deleted already."
	case calendar.KindPermissionDenied:
		return "Google Calendar refused the request. Your account may lack access to that calendar."
	case calendar.KindRateLimited:
		return "Google Calendar is rate limiting us. Please try again shortly."
	case calendar.KindBadRequest:
		return "Google Calendar rejected the request. Please rephrase and try again."
	default:
		return transientFailureText
	}
}

func formatPayload(p *dispatch.Payload) string {
	if p == nil {
		return "Done."
	}

	switch p.Operation {
	case dispatch.OpCreateEvent:
		if p.Event != nil {
			return fmt.Sprintf("Created %q on %s.", p.Event.Summary, formatEventTime(p.Event))
		}
		return "Event created."
	case dispatch.OpUpdateEvent:
		if p.Event != nil {
			return fmt.Sprintf("Updated %q, now on %s.", p.Event.Summary, formatEventTime(p.Event))
		}
		return "Event updated."
	case dispatch.OpDeleteEvent:
		return "Event deleted."
	case dispatch.OpListEvents:
		return formatEventList(p.Events)
	default:
		if p.Message != "" {
			return p.Message
		}
		return "Done."
	}
}

func formatEventList(events []calendar.Event) string {
	if len(events) == 0 {
		return "No events in that time range."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d event(s):\n", len(events))
	for _, e := range events {
		fmt.Fprintf(&b, "- %s: %s", formatEventTime(&e), e.Summary)
		if e.Location != "" {
			fmt.Fprintf(&b, " (%s)", e.Location)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatEventTime(e *calendar.Event) string {
	if e.Start.IsZero() {
		return "unknown time"
	}
	s := e.Start.UTC().Format(eventTimeFormat)
	if !e.End.IsZero() {
		s += "-" + e.End.UTC().Format("15:04")
	}
	return s + " UTC"
}
