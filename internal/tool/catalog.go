// Package tool declares the assistant's tools and executes the calls the
// model makes to them.
package tool

import (
	"github.com/sashabaranov/go-openai/jsonschema"

	"github.com/zeina-health/companion/internal/llm"
	"github.com/zeina-health/companion/internal/model"
)

var declarations = []llm.ToolDefinition{
	{
		Name:        string(model.ToolBookAppointment),
		Description: "Book a new consultation with an expert. Only call after the user confirmed expert, date and time.",
		Parameters: jsonschema.Definition{
			Type: jsonschema.Object,
			Properties: map[string]jsonschema.Definition{
				"expertId": {Type: jsonschema.String, Description: "The ID of the expert, as listed in the context."},
				"date":     {Type: jsonschema.String, Description: "Appointment date in YYYY-MM-DD format."},
				"time":     {Type: jsonschema.String, Description: "Time of day, e.g. 10:00 AM."},
			},
			Required: []string{"expertId", "date", "time"},
		},
	},
	{
		Name:        string(model.ToolGetMyAppointments),
		Description: "List the user's upcoming and past appointments that were not cancelled or rejected. Call this to learn appointment IDs before rescheduling or cancelling.",
		Parameters: jsonschema.Definition{
			Type:       jsonschema.Object,
			Properties: map[string]jsonschema.Definition{},
		},
	},
	{
		Name:        string(model.ToolRescheduleAppointment),
		Description: "Move an existing appointment to a new date and time.",
		Parameters: jsonschema.Definition{
			Type: jsonschema.Object,
			Properties: map[string]jsonschema.Definition{
				"appointmentId": {Type: jsonschema.String, Description: "The ID of the appointment to reschedule."},
				"newDate":       {Type: jsonschema.String, Description: "The new date in YYYY-MM-DD format."},
				"newTime":       {Type: jsonschema.String, Description: "The new time, e.g. 03:00 PM."},
			},
			Required: []string{"appointmentId", "newDate", "newTime"},
		},
	},
	{
		Name:        string(model.ToolCancelAppointment),
		Description: "Cancel an existing appointment.",
		Parameters: jsonschema.Definition{
			Type: jsonschema.Object,
			Properties: map[string]jsonschema.Definition{
				"appointmentId": {Type: jsonschema.String, Description: "The ID of the appointment to cancel."},
			},
			Required: []string{"appointmentId"},
		},
	},
	{
		Name:        string(model.ToolGenerateHealthImage),
		Description: "Generate an image to visualize health concepts, meals or exercises.",
		Parameters: jsonschema.Definition{
			Type: jsonschema.Object,
			Properties: map[string]jsonschema.Definition{
				"prompt": {Type: jsonschema.String, Description: "A descriptive prompt for the image to generate."},
			},
			Required: []string{"prompt"},
		},
	},
}

// Declarations returns the tool catalog offered to the model.
func Declarations() []llm.ToolDefinition {
	out := make([]llm.ToolDefinition, len(declarations))
	copy(out, declarations)
	return out
}

func lookup(name model.ToolName) (llm.ToolDefinition, bool) {
	for _, d := range declarations {
		if d.Name == string(name) {
			return d, true
		}
	}
	return llm.ToolDefinition{}, false
}
