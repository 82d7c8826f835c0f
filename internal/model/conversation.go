package model

import (
	"encoding/json"
)

// TurnRole is the author of a conversation turn.
type TurnRole string

const (
	TurnUser  TurnRole = "user"
	TurnModel TurnRole = "model"
	TurnTool  TurnRole = "tool"
)

// ToolName identifies an invocable tool.
type ToolName string

const (
	ToolBookAppointment       ToolName = "book_appointment"
	ToolGetMyAppointments     ToolName = "get_my_appointments"
	ToolRescheduleAppointment ToolName = "reschedule_appointment"
	ToolCancelAppointment     ToolName = "cancel_appointment"
	ToolGenerateHealthImage   ToolName = "generate_health_image"
)

// ToolCall is a structured request from the model to run a tool.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      ToolName        `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolResult is the outcome of a single ToolCall. Exactly one of Payload or
// Error is set; Error is a stable tag, never a raw error message.
type ToolResult struct {
	CallID  string          `json:"callId"`
	Name    ToolName        `json:"name"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Failed reports whether the tool call failed.
func (r ToolResult) Failed() bool {
	return r.Error != ""
}

// Content renders the result as the JSON object handed back to the model.
func (r ToolResult) Content() string {
	if r.Failed() {
		b, _ := json.Marshal(map[string]string{"error": r.Error})
		return string(b)
	}
	if len(r.Payload) == 0 {
		return "{}"
	}
	return string(r.Payload)
}

// Turn is one role-tagged unit of conversation history.
type Turn struct {
	Role        TurnRole     `json:"role"`
	Content     string       `json:"content,omitempty"`
	ToolCalls   []ToolCall   `json:"toolCalls,omitempty"`
	ToolResults []ToolResult `json:"toolResults,omitempty"`
}

// UserTurn builds a turn carrying the user's text.
func UserTurn(text string) Turn {
	return Turn{Role: TurnUser, Content: text}
}

// ModelTurn builds a turn carrying model output.
func ModelTurn(text string, calls []ToolCall) Turn {
	return Turn{Role: TurnModel, Content: text, ToolCalls: calls}
}

// ToolTurn builds a turn carrying a single tool result.
func ToolTurn(result ToolResult) Turn {
	return Turn{Role: TurnTool, ToolResults: []ToolResult{result}}
}
