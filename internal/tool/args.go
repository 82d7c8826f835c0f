package tool

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/kaptinlin/jsonrepair"
	"github.com/sashabaranov/go-openai/jsonschema"
	"github.com/xeipuuv/gojsonschema"

	"github.com/zeina-health/companion/internal/model"
	"github.com/zeina-health/companion/internal/service"
)

var (
	// ErrUnknownTool is returned for a call to a tool that is not declared.
	ErrUnknownTool = errors.New("unknown tool")
	// ErrInvalidArguments is returned when call arguments are missing or malformed.
	ErrInvalidArguments = errors.New("invalid tool arguments")
)

// Arguments is the decoded, validated argument set of one tool call. The
// concrete type identifies the tool.
type Arguments interface {
	Tool() model.ToolName
	validate() error
}

// BookAppointmentArgs are the arguments of book_appointment.
type BookAppointmentArgs struct {
	ExpertID string `json:"expertId"`
	Date     string `json:"date"`
	Time     string `json:"time"`
}

// GetMyAppointmentsArgs are the arguments of get_my_appointments.
type GetMyAppointmentsArgs struct{}

// RescheduleAppointmentArgs are the arguments of reschedule_appointment.
type RescheduleAppointmentArgs struct {
	AppointmentID string `json:"appointmentId"`
	NewDate       string `json:"newDate"`
	NewTime       string `json:"newTime"`
}

// CancelAppointmentArgs are the arguments of cancel_appointment.
type CancelAppointmentArgs struct {
	AppointmentID string `json:"appointmentId"`
}

// GenerateHealthImageArgs are the arguments of generate_health_image.
type GenerateHealthImageArgs struct {
	Prompt string `json:"prompt"`
}

func (BookAppointmentArgs) Tool() model.ToolName       { return model.ToolBookAppointment }
func (GetMyAppointmentsArgs) Tool() model.ToolName     { return model.ToolGetMyAppointments }
func (RescheduleAppointmentArgs) Tool() model.ToolName { return model.ToolRescheduleAppointment }
func (CancelAppointmentArgs) Tool() model.ToolName     { return model.ToolCancelAppointment }
func (GenerateHealthImageArgs) Tool() model.ToolName   { return model.ToolGenerateHealthImage }

func (a BookAppointmentArgs) validate() error {
	return service.ValidateSchedule(a.Date, a.Time)
}

func (GetMyAppointmentsArgs) validate() error { return nil }

func (a RescheduleAppointmentArgs) validate() error {
	return service.ValidateSchedule(a.NewDate, a.NewTime)
}

func (CancelAppointmentArgs) validate() error { return nil }

func (a GenerateHealthImageArgs) validate() error {
	if len(a.Prompt) > 4000 {
		return errors.New("prompt too long")
	}
	return nil
}

// DecodeArguments turns the raw arguments of call into a typed argument
// set. Malformed JSON is repaired first, scalar values are coerced to the
// declared string type, and the result is checked against the tool's schema.
func DecodeArguments(call model.ToolCall) (Arguments, error) {
	decl, ok := lookup(call.Name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTool, call.Name)
	}

	raw := strings.TrimSpace(string(call.Arguments))
	if raw == "" || raw == "null" {
		raw = "{}"
	}
	if !json.Valid([]byte(raw)) {
		repaired, err := jsonrepair.JSONRepair(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: unparseable JSON: %v", ErrInvalidArguments, err)
		}
		raw = repaired
	}

	var doc map[string]any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("%w: arguments must be an object", ErrInvalidArguments)
	}
	normalize(doc, decl.Parameters)

	if err := validateSchema(decl.Parameters, doc); err != nil {
		return nil, err
	}

	var args Arguments
	switch call.Name {
	case model.ToolBookAppointment:
		args = &BookAppointmentArgs{}
	case model.ToolGetMyAppointments:
		args = &GetMyAppointmentsArgs{}
	case model.ToolRescheduleAppointment:
		args = &RescheduleAppointmentArgs{}
	case model.ToolCancelAppointment:
		args = &CancelAppointmentArgs{}
	case model.ToolGenerateHealthImage:
		args = &GenerateHealthImageArgs{}
	}

	clean, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	if err := json.Unmarshal(clean, args); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	if err := args.validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}

	return deref(args), nil
}

// normalize trims strings, turns numbers into strings where the schema asks
// for a string, and drops blank required values so the schema check
// reports them as missing.
func normalize(doc map[string]any, def jsonschema.Definition) {
	for name, prop := range def.Properties {
		v, ok := doc[name]
		if !ok || prop.Type != jsonschema.String {
			continue
		}
		switch x := v.(type) {
		case string:
			x = strings.TrimSpace(x)
			if x == "" {
				delete(doc, name)
				continue
			}
			doc[name] = x
		case float64:
			doc[name] = strconv.FormatFloat(x, 'f', -1, 64)
		case bool:
			doc[name] = strconv.FormatBool(x)
		}
	}
}

func validateSchema(def jsonschema.Definition, doc map[string]any) error {
	schema, err := json.Marshal(def)
	if err != nil {
		return fmt.Errorf("failed to encode schema: %w", err)
	}

	result, err := gojsonschema.Validate(gojsonschema.NewBytesLoader(schema), gojsonschema.NewGoLoader(doc))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	if result.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("%w: %s", ErrInvalidArguments, strings.Join(msgs, "; "))
}

func deref(a Arguments) Arguments {
	switch v := a.(type) {
	case *BookAppointmentArgs:
		return *v
	case *GetMyAppointmentsArgs:
		return *v
	case *RescheduleAppointmentArgs:
		return *v
	case *CancelAppointmentArgs:
		return *v
	case *GenerateHealthImageArgs:
		return *v
	}
	return a
}
