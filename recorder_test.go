package voicechat

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"

	"github.com/pion/mediadevices"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voicebridge/voicechat/shared"
)

type fakeMic struct {
	err error
}

func (f *fakeMic) AcquireTrack() (mediadevices.Track, error) {
	return nil, f.err
}

func newTestRecorder(t *testing.T, mic MicSource) (*Recorder, *Client, *Conversation) {
	t.Helper()
	client, conv := newTestClient(t, "http://localhost:0")
	recorder, err := NewRecorder(shared.NewNopLogger(), client, conv, mic)
	require.NoError(t, err)
	return recorder, client, conv
}

// establish fakes a negotiated session so recorder guards can pass.
func establish(t *testing.T, client *Client) {
	t.Helper()
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pc.Close() })
	client.mu.Lock()
	client.pc = pc
	client.state = SessionStateEstablished
	client.mu.Unlock()
}

func TestRecorderStartRequiresPeerConnection(t *testing.T) {
	recorder, _, conv := newTestRecorder(t, &fakeMic{})

	err := recorder.Start(context.Background())

	assert.ErrorIs(t, err, shared.ErrClientNotInitialized)
	assert.False(t, recorder.Active())
	assert.False(t, conv.Recording())
	assert.False(t, conv.Processing())
}

func TestRecorderStartMicFailure(t *testing.T) {
	recorder, client, conv := newTestRecorder(t, &fakeMic{err: errors.New("permission denied")})
	establish(t, client)

	err := recorder.Start(context.Background())

	assert.ErrorIs(t, err, shared.ErrMediaAcquisition)
	assert.False(t, recorder.Active())
	assert.False(t, conv.Recording())
	assert.Equal(t, MicErrorMessage, conv.Error())
}

func TestRecorderStopWithoutActiveRecording(t *testing.T) {
	recorder, _, _ := newTestRecorder(t, &fakeMic{})

	_, err := recorder.Stop()
	assert.ErrorIs(t, err, shared.ErrNoActiveRecording)
}

func TestRecorderSendRequiresOpenChannel(t *testing.T) {
	recorder, _, conv := newTestRecorder(t, &fakeMic{})
	conv.SetProcessing(true)

	err := recorder.Send(NewRecording())

	assert.ErrorIs(t, err, shared.ErrChannelNotReady)
	assert.False(t, conv.Processing())
	assert.Empty(t, conv.UserMessages())
}

func TestRecorderSendEmptyRecording(t *testing.T) {
	recorder, client, conv := newTestRecorder(t, &fakeMic{})
	sender := &fakeSender{}
	client.sender = sender

	err := recorder.Send(NewRecording())

	require.NoError(t, err)
	require.Len(t, sender.sent, 1)
	assert.JSONEq(t, `{"type":"audio","data":""}`, sender.sent[0])
	assert.Equal(t, []string{VoiceMessagePlaceholder}, conv.UserMessages())
}

func TestRecorderSendEncodesChunks(t *testing.T) {
	recorder, client, conv := newTestRecorder(t, &fakeMic{})
	sender := &fakeSender{}
	client.sender = sender

	rec := NewRecording()
	rec.Append([]byte{0x01, 0x02})
	rec.Append([]byte{0x03})

	require.NoError(t, recorder.Send(rec))
	require.Len(t, sender.sent, 1)
	expected := base64.StdEncoding.EncodeToString([]byte{0x01, 0x02, 0x03})
	assert.JSONEq(t, `{"type":"audio","data":"`+expected+`"}`, sender.sent[0])
	assert.Equal(t, []string{VoiceMessagePlaceholder}, conv.UserMessages())
}

func TestRecorderAbortClearsFlags(t *testing.T) {
	recorder, _, conv := newTestRecorder(t, &fakeMic{})
	conv.SetRecording(true)
	conv.SetProcessing(true)

	recorder.Abort()

	assert.False(t, conv.Recording())
	assert.False(t, conv.Processing())
	assert.False(t, recorder.Active())
}

func TestRecordingBuffering(t *testing.T) {
	rec := NewRecording()
	assert.NotEmpty(t, rec.ID)
	assert.Zero(t, rec.Chunks())
	assert.Empty(t, rec.Bytes())

	chunk := []byte{0xAA, 0xBB}
	rec.Append(chunk)
	rec.Append(nil)
	chunk[0] = 0x00

	assert.Equal(t, 1, rec.Chunks())
	assert.Equal(t, []byte{0xAA, 0xBB}, rec.Bytes())
}
