package voicechat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voicebridge/voicechat/shared"
)

func TestParseServerEventResponseDone(t *testing.T) {
	data := []byte(`{
		"type": "response.done",
		"response": {
			"output": [
				{
					"type": "message",
					"content": [
						{"type": "audio", "transcript": "hello there"},
						{"type": "text", "text": "written answer"}
					]
				},
				{"type": "function_call"}
			]
		}
	}`)

	event, err := ParseServerEvent(data)
	require.NoError(t, err)
	assert.Equal(t, ServerEventTypeResponseDone, event.Type)

	param, ok := event.Param.(*ServerEventParamResponseDone)
	require.True(t, ok)
	require.Len(t, param.Output, 2)
	assert.Equal(t, "message", param.Output[0].Type)
	require.Len(t, param.Output[0].Content, 2)
	assert.Equal(t, "hello there", param.Output[0].Content[0].Utterance())
	assert.Equal(t, "written answer", param.Output[0].Content[1].Utterance())
	assert.Equal(t, "function_call", param.Output[1].Type)
	assert.Empty(t, param.Output[1].Content)
}

func TestParseServerEventResponseDoneWithoutOutput(t *testing.T) {
	event, err := ParseServerEvent([]byte(`{"type":"response.done","response":{}}`))
	require.NoError(t, err)
	param, ok := event.Param.(*ServerEventParamResponseDone)
	require.True(t, ok)
	assert.Empty(t, param.Output)
}

func TestParseServerEventResponseDoneBare(t *testing.T) {
	event, err := ParseServerEvent([]byte(`{"type":"response.done"}`))
	require.NoError(t, err)
	param, ok := event.Param.(*ServerEventParamResponseDone)
	require.True(t, ok)
	assert.Empty(t, param.Output)
}

func TestParseServerEventResponseDoneInvalidResponse(t *testing.T) {
	_, err := ParseServerEvent([]byte(`{"type":"response.done","response":5}`))
	assert.ErrorIs(t, err, shared.ErrMalformedEvent)
}

func TestParseServerEventResponseError(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		code    string
		message string
	}{
		{
			name: "bare discriminator",
			data: `{"type":"response.error"}`,
		},
		{
			name:    "with diagnostics",
			data:    `{"type":"response.error","error":{"code":"rate_limited","message":"slow down"}}`,
			code:    "rate_limited",
			message: "slow down",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event, err := ParseServerEvent([]byte(tt.data))
			require.NoError(t, err)
			param, ok := event.Param.(*ServerEventParamResponseError)
			require.True(t, ok)
			assert.Equal(t, tt.code, param.Code)
			assert.Equal(t, tt.message, param.Message)
		})
	}
}

func TestParseServerEventUnknownType(t *testing.T) {
	event, err := ParseServerEvent([]byte(`{"type":"unknown.thing","payload":42}`))
	require.NoError(t, err)
	param, ok := event.Param.(*ServerEventParamUnknown)
	require.True(t, ok)
	assert.Equal(t, "unknown.thing", param.Tag)
	assert.Contains(t, param.Fields, "payload")
}

func TestParseServerEventMalformed(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "invalid JSON", data: `{"type":`},
		{name: "missing type", data: `{"response":{}}`},
		{name: "non-string type", data: `{"type":42}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseServerEvent([]byte(tt.data))
			assert.ErrorIs(t, err, shared.ErrMalformedEvent)
		})
	}
}

func TestClientEventEnvelopes(t *testing.T) {
	audio, err := (&AudioEvent{Data: "YWJj"}).MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"audio","data":"YWJj"}`, string(audio))

	text, err := (&TextEvent{Text: "hello"}).MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"message","data":{"text":"hello"}}`, string(text))
}
