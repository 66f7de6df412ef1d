package voicechat

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConversationAppendOrder(t *testing.T) {
	conv := NewConversation()
	conv.AppendAI("first")
	conv.AppendAI("second")
	conv.AppendUser("You: hi")
	conv.AppendAI("third")

	assert.Equal(t, []string{"first", "second", "third"}, conv.AIMessages())
	assert.Equal(t, []string{"You: hi"}, conv.UserMessages())
	assert.Equal(t, "third", conv.LatestAI())
}

func TestConversationSnapshotsAreCopies(t *testing.T) {
	conv := NewConversation()
	conv.AppendAI("original")

	snapshot := conv.AIMessages()
	snapshot[0] = "mutated"

	assert.Equal(t, []string{"original"}, conv.AIMessages())
}

func TestConversationFlags(t *testing.T) {
	conv := NewConversation()
	assert.False(t, conv.Processing())
	assert.False(t, conv.Recording())
	assert.Empty(t, conv.Error())

	conv.SetProcessing(true)
	conv.SetRecording(true)
	conv.SetError(InitFailedMessage)

	assert.True(t, conv.Processing())
	assert.True(t, conv.Recording())
	assert.Equal(t, InitFailedMessage, conv.Error())
}
