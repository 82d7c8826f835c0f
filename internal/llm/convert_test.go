package llm

import (
	"encoding/json"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeina-health/companion/internal/model"
)

func TestToOpenAIMessages(t *testing.T) {
	history := []model.Turn{
		model.UserTurn("show my appointments"),
		model.ModelTurn("", []model.ToolCall{{ID: "c1", Name: model.ToolGetMyAppointments}}),
		model.ToolTurn(model.ToolResult{CallID: "c1", Name: model.ToolGetMyAppointments, Payload: json.RawMessage(`[]`)}),
		model.ModelTurn("You have none.", nil),
	}

	msgs := toOpenAIMessages("be kind", history)
	require.Len(t, msgs, 5)
	assert.Equal(t, openai.ChatMessageRoleSystem, msgs[0].Role)
	assert.Equal(t, openai.ChatMessageRoleUser, msgs[1].Role)

	require.Len(t, msgs[2].ToolCalls, 1)
	assert.Equal(t, "c1", msgs[2].ToolCalls[0].ID)
	assert.Equal(t, "{}", msgs[2].ToolCalls[0].Function.Arguments)

	assert.Equal(t, openai.ChatMessageRoleTool, msgs[3].Role)
	assert.Equal(t, "c1", msgs[3].ToolCallID)
	assert.Equal(t, "[]", msgs[3].Content)
	assert.Equal(t, "You have none.", msgs[4].Content)
}

func TestToOpenAIMessagesCarriesErrorTag(t *testing.T) {
	history := []model.Turn{
		model.ToolTurn(model.ToolResult{CallID: "c1", Name: model.ToolCancelAppointment, Error: "APPOINTMENT_NOT_FOUND"}),
	}
	msgs := toOpenAIMessages("", history)
	require.Len(t, msgs, 1)
	assert.JSONEq(t, `{"error":"APPOINTMENT_NOT_FOUND"}`, msgs[0].Content)
}

func TestToAnthropicMessagesMergesToolResults(t *testing.T) {
	history := []model.Turn{
		model.UserTurn("hi"),
		model.ModelTurn("", []model.ToolCall{
			{ID: "a", Name: model.ToolGetMyAppointments, Arguments: json.RawMessage(`{}`)},
			{ID: "b", Name: model.ToolCancelAppointment, Arguments: json.RawMessage(`{"appointmentId":"x"}`)},
		}),
		model.ToolTurn(model.ToolResult{CallID: "a", Payload: json.RawMessage(`[]`)}),
		model.ToolTurn(model.ToolResult{CallID: "b", Error: "APPOINTMENT_NOT_FOUND"}),
		model.ModelTurn("", nil),
	}

	msgs := toAnthropicMessages(history)
	require.Len(t, msgs, 3)

	var decoded []struct {
		Role    string            `json:"role"`
		Content []json.RawMessage `json:"content"`
	}
	raw, err := json.Marshal(msgs)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &decoded))

	assert.Equal(t, "user", decoded[0].Role)
	assert.Equal(t, "assistant", decoded[1].Role)
	assert.Len(t, decoded[1].Content, 2)
	assert.Equal(t, "user", decoded[2].Role)
	assert.Len(t, decoded[2].Content, 2)
}

func TestImageSize(t *testing.T) {
	assert.Equal(t, openai.CreateImageSize1024x1024, imageSize("1:1"))
	assert.Equal(t, openai.CreateImageSize1024x1024, imageSize(""))
	assert.Equal(t, openai.CreateImageSize1792x1024, imageSize("16:9"))
}
