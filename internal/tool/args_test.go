package tool

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeina-health/companion/internal/model"
)

func TestDecodeArgumentsTypedVariants(t *testing.T) {
	args, err := DecodeArguments(model.ToolCall{
		Name:      model.ToolRescheduleAppointment,
		Arguments: json.RawMessage(`{"appointmentId":" a1 ","newDate":"2025-11-03","newTime":"09:00 AM"}`),
	})
	require.NoError(t, err)
	r, ok := args.(RescheduleAppointmentArgs)
	require.True(t, ok)
	assert.Equal(t, "a1", r.AppointmentID)
	assert.Equal(t, model.ToolRescheduleAppointment, r.Tool())

	args, err = DecodeArguments(model.ToolCall{Name: model.ToolGetMyAppointments})
	require.NoError(t, err)
	assert.IsType(t, GetMyAppointmentsArgs{}, args)
}

func TestDecodeArgumentsErrors(t *testing.T) {
	_, err := DecodeArguments(model.ToolCall{Name: "nope"})
	assert.ErrorIs(t, err, ErrUnknownTool)

	_, err = DecodeArguments(model.ToolCall{Name: model.ToolGenerateHealthImage, Arguments: json.RawMessage(`{}`)})
	assert.ErrorIs(t, err, ErrInvalidArguments)

	_, err = DecodeArguments(model.ToolCall{Name: model.ToolGenerateHealthImage, Arguments: json.RawMessage(`{"prompt": {"nested": true}}`)})
	assert.ErrorIs(t, err, ErrInvalidArguments)
}

func TestDeclarationsCoverEveryTool(t *testing.T) {
	names := map[string]bool{}
	for _, d := range Declarations() {
		names[d.Name] = true
		raw, err := json.Marshal(d.Parameters)
		require.NoError(t, err)
		assert.Contains(t, string(raw), `"type":"object"`)
	}
	for _, n := range []model.ToolName{
		model.ToolBookAppointment,
		model.ToolGetMyAppointments,
		model.ToolRescheduleAppointment,
		model.ToolCancelAppointment,
		model.ToolGenerateHealthImage,
	} {
		assert.True(t, names[string(n)], n)
	}
}
