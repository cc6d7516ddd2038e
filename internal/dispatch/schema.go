package dispatch

// ToolSchema describes one operation in function-calling form so the
// classifier can emit structured arguments for it.
type ToolSchema struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Parameters  Parameters `json:"parameters"`
}

// Parameters is the JSON-schema object describing an operation's arguments.
type Parameters struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required,omitempty"`
}

// Property is one argument in a tool schema.
type Property struct {
	Type        string `json:"type"`
	Description string `json:"description"`
}

// Schemas returns the tool definitions for every supported operation, in a
// stable order.
func Schemas() []ToolSchema {
	return []ToolSchema{
		{
			Name:        OpCreateEvent,
			Description: "Create a calendar event with a title and a start and end time.",
			Parameters: Parameters{
				Type: "object",
				Properties: map[string]Property{
					"summary":     {Type: "string", Description: "Event title"},
					"start":       {Type: "string", Description: "Start time in RFC3339 format, e.g. 2026-08-23T14:00:00Z"},
					"end":         {Type: "string", Description: "End time in RFC3339 format, must be after start"},
					"description": {Type: "string", Description: "Optional longer description"},
					"location":    {Type: "string", Description: "Optional location"},
					"time_zone":   {Type: "string", Description: "Optional IANA time zone name, defaults to UTC"},
				},
				Required: []string{"summary", "start", "end"},
			},
		},
		{
			Name:        OpListEvents,
			Description: "List calendar events within a time range, ordered by start time.",
			Parameters: Parameters{
				Type: "object",
				Properties: map[string]Property{
					"from":        {Type: "string", Description: "Range start in RFC3339 format"},
					"to":          {Type: "string", Description: "Range end in RFC3339 format, must be after from"},
					"max_results": {Type: "integer", Description: "Maximum number of events to return, 1 to 50, default 10"},
				},
				Required: []string{"from", "to"},
			},
		},
		{
			Name:        OpUpdateEvent,
			Description: "Update fields of an existing calendar event. Only provided fields change.",
			Parameters: Parameters{
				Type: "object",
				Properties: map[string]Property{
					"event_id":    {Type: "string", Description: "Identifier of the event to update"},
					"summary":     {Type: "string", Description: "New event title"},
					"start":       {Type: "string", Description: "New start time in RFC3339 format"},
					"end":         {Type: "string", Description: "New end time in RFC3339 format"},
					"description": {Type: "string", Description: "New description"},
					"location":    {Type: "string", Description: "New location"},
					"time_zone":   {Type: "string", Description: "IANA time zone for the new times, defaults to UTC"},
				},
				Required: []string{"event_id"},
			},
		},
		{
			Name:        OpDeleteEvent,
			Description: "Delete a calendar event.",
			Parameters: Parameters{
				Type: "object",
				Properties: map[string]Property{
					"event_id": {Type: "string", Description: "Identifier of the event to delete"},
				},
				Required: []string{"event_id"},
			},
		},
	}
}

// KnownOperation reports whether name is a supported operation.
func KnownOperation(name string) bool {
	switch name {
	case OpCreateEvent, OpListEvents, OpUpdateEvent, OpDeleteEvent:
		return true
	}
	return false
}
