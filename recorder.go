package voicechat

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"

	"github.com/oklog/ulid/v2"
	"github.com/pion/mediadevices"
	"github.com/voicebridge/voicechat/shared"
	"github.com/voicebridge/voicechat/tools"
	"go.uber.org/zap"
)

// MicErrorMessage is the user-visible string for a failed capture.
const MicErrorMessage = "Failed to access microphone."

// Recording is the ephemeral aggregate of one capture: buffered chunks
// identified by a ULID, packaged into one byte slice on Stop.
type Recording struct {
	ID string

	mu     sync.Mutex
	chunks [][]byte
}

func NewRecording() *Recording {
	return &Recording{ID: ulid.Make().String()}
}

// Append buffers one captured chunk.
func (r *Recording) Append(chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	buf := make([]byte, len(chunk))
	copy(buf, chunk)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chunks = append(r.chunks, buf)
}

// Bytes concatenates all buffered chunks. Zero chunks yield a valid
// empty payload.
func (r *Recording) Bytes() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	size := 0
	for _, chunk := range r.chunks {
		size += len(chunk)
	}
	out := make([]byte, 0, size)
	for _, chunk := range r.chunks {
		out = append(out, chunk...)
	}
	return out
}

// Chunks reports how many chunks are buffered.
func (r *Recording) Chunks() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.chunks)
}

// Recorder captures secondary voice clips on demand. Each Start opens
// a fresh microphone stream, independent of the live session track.
type Recorder struct {
	logger shared.LoggerAdapter
	client *Client
	conv   *Conversation
	mic    MicSource

	mu       sync.Mutex
	rec      *Recording
	micTrack mediadevices.Track
	stop     context.CancelFunc
}

func NewRecorder(logger shared.LoggerAdapter, client *Client, conv *Conversation, mic MicSource) (*Recorder, error) {
	if logger == nil {
		return nil, shared.ErrNoLogger
	}
	if client == nil {
		return nil, shared.ErrClientNotInitialized
	}
	if conv == nil {
		return nil, shared.ErrNoConversation
	}
	r := &Recorder{logger: logger, client: client, conv: conv, mic: mic}
	client.bindRecorder(r)
	return r, nil
}

// Start begins buffering a new clip. It is rejected while no peer
// connection exists, leaving every recording flag false. A microphone
// failure surfaces only the generic error state.
func (r *Recorder) Start(ctx context.Context) error {
	if !r.client.Established() {
		r.logger.Warn("recording rejected, session not established")
		return shared.ErrClientNotInitialized
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rec != nil {
		return shared.ErrRecordingInProgress
	}
	if r.mic == nil {
		r.conv.SetError(MicErrorMessage)
		return shared.ErrMediaAcquisition
	}
	track, err := r.mic.AcquireTrack()
	if err != nil {
		r.logger.Error("acquiring recording microphone", err)
		r.conv.SetError(MicErrorMessage)
		return fmt.Errorf("%w: %w", shared.ErrMediaAcquisition, err)
	}

	rec := NewRecording()
	captureCtx, cancel := context.WithCancel(ctx)
	r.rec = rec
	r.micTrack = track
	r.stop = cancel
	r.conv.SetRecording(true)
	r.conv.SetProcessing(true)
	r.logger.Info("recording started", zap.String("recording_id", rec.ID))
	go tools.CaptureChunks(captureCtx, r.logger, track, rec.Append)
	return nil
}

// Stop finalizes the clip: capture ends, the microphone releases, the
// recording flag clears. The packaged Recording is handed back for
// Send.
func (r *Recorder) Stop() (*Recording, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec := r.release()
	if rec == nil {
		return nil, shared.ErrNoActiveRecording
	}
	r.conv.SetRecording(false)
	r.logger.Info(
		"recording stopped",
		zap.String("recording_id", rec.ID),
		zap.Int("chunks", rec.Chunks()),
	)
	return rec, nil
}

// Send base64-encodes the clip and transmits the audio envelope. The
// placeholder entry lands on the user transcript only after a
// successful send.
func (r *Recorder) Send(rec *Recording) error {
	if rec == nil {
		return shared.ErrNoActiveRecording
	}
	data := base64.StdEncoding.EncodeToString(rec.Bytes())
	if err := r.client.sendEvent(&AudioEvent{Data: data}); err != nil {
		r.conv.SetProcessing(false)
		r.logger.Error("sending recording", err, zap.String("recording_id", rec.ID))
		return err
	}
	r.conv.AppendUser(VoiceMessagePlaceholder)
	r.logger.Info("recording sent", zap.String("recording_id", rec.ID))
	return nil
}

// Abort discards any in-flight clip and clears every flag. Called from
// session teardown.
func (r *Recorder) Abort() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec := r.release(); rec != nil {
		r.logger.Info("recording aborted", zap.String("recording_id", rec.ID))
	}
	r.conv.SetRecording(false)
	r.conv.SetProcessing(false)
}

// release stops capture and returns the active recording, nil when
// idle. Callers hold r.mu.
func (r *Recorder) release() *Recording {
	rec := r.rec
	if r.stop != nil {
		r.stop()
		r.stop = nil
	}
	if r.micTrack != nil {
		if err := r.micTrack.Close(); err != nil {
			r.logger.Error("closing recording microphone", err)
		}
		r.micTrack = nil
	}
	r.rec = nil
	return rec
}

// Active reports whether a clip is being captured.
func (r *Recorder) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rec != nil
}
