package tools

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/opus"
	_ "github.com/pion/mediadevices/pkg/driver/microphone"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/voicebridge/voicechat/shared"
	"go.uber.org/zap"
	hraban "gopkg.in/hraban/opus.v2"
)

// Microphone opens Opus-encoded capture streams. Each AcquireTrack
// call opens an independent stream, so the live session track and the
// recorder never share one.
type Microphone struct {
	SampleRate   int
	ChannelCount int
	SampleSize   int
}

func NewMicrophone() *Microphone {
	return &Microphone{
		SampleRate:   48000,
		ChannelCount: 1,
		SampleSize:   16,
	}
}

func (m *Microphone) AcquireTrack() (mediadevices.Track, error) {
	opusParams, err := opus.NewParams()
	if err != nil {
		return nil, err
	}
	stream, err := mediadevices.GetUserMedia(mediadevices.MediaStreamConstraints{
		Audio: func(c *mediadevices.MediaTrackConstraints) {
			c.SampleRate = prop.Int(m.SampleRate)
			c.ChannelCount = prop.Int(m.ChannelCount)
			c.SampleSize = prop.Int(m.SampleSize)
		},
		Codec: mediadevices.NewCodecSelector(
			mediadevices.WithAudioEncoders(&opusParams),
		),
	})
	if err != nil {
		return nil, err
	}
	tracks := stream.GetAudioTracks()
	if len(tracks) == 0 {
		return nil, errors.New("no audio track found in microphone stream")
	}
	return tracks[0], nil
}

// CaptureChunks drains encoded audio from a microphone track into emit
// until the context ends or the track closes. The recorder buffers the
// emitted chunks into one clip.
func CaptureChunks(ctx context.Context, logger shared.LoggerAdapter, track mediadevices.Track, emit func(chunk []byte)) {
	reader, err := track.NewEncodedReader(webrtc.MimeTypeOpus)
	if err != nil {
		logger.Error("creating capture reader", err)
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		buf, release, err := reader.Read()
		if err != nil {
			release()
			if err != io.EOF {
				logger.Error("reading capture chunk", err)
			}
			return
		}
		if buf.Samples > 0 {
			emit(buf.Data)
		}
		release()
	}
}

// StreamLocalAudio pushes encoded microphone frames into the local
// peer-connection track for the session's lifetime.
func StreamLocalAudio(ctx context.Context, logger shared.LoggerAdapter, track *webrtc.TrackLocalStaticSample, mediaTrack mediadevices.Track, frameDuration time.Duration) {
	reader, err := mediaTrack.NewEncodedReader(track.Codec().MimeType)
	if err != nil {
		logger.Error("creating media track reader", err)
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		buf, release, err := reader.Read()
		if err != nil {
			release()
			if err == io.EOF {
				return
			}
			logger.Error("reading from media track", err)
			continue
		}
		if buf.Samples == 0 {
			release()
			continue
		}
		err = track.WriteSample(media.Sample{
			Data:     buf.Data[:],
			Duration: frameDuration,
		})
		release()
		if err != nil {
			logger.Error("writing sample to track", err)
		}
	}
}

// PlayRemoteAudio decodes the remote Opus track and plays it on the
// default output device until the context ends or the track closes.
func PlayRemoteAudio(ctx context.Context, logger shared.LoggerAdapter, track *webrtc.TrackRemote, otoBufferMs, ringBufferSeconds int) {
	var (
		codec      = track.Codec()
		sampleRate = int(codec.ClockRate)
		channels   = int(codec.Channels)
	)
	logger.Info("playing remote audio",
		zap.String("codec", codec.MimeType),
		zap.Int("sampleRate", sampleRate),
		zap.Int("channels", channels),
	)
	decoder, err := hraban.NewDecoder(sampleRate, channels)
	if err != nil {
		logger.Error("creating Opus decoder", err)
		return
	}

	otoCtx, ready, err := oto.NewContext(
		&oto.NewContextOptions{
			SampleRate:   sampleRate,
			ChannelCount: channels,
			Format:       oto.FormatSignedInt16LE,
			BufferSize:   time.Duration(otoBufferMs) * time.Millisecond,
		},
	)
	if err != nil {
		logger.Error("creating audio output context", err)
		return
	}
	audioBuffer := NewAudioBuffer(2 * FrameSamples(time.Duration(ringBufferSeconds)*time.Second, sampleRate, channels))
	pcm := make([]int16, FrameSamples(time.Duration(otoBufferMs)*time.Millisecond, sampleRate, channels))

	<-ready
	player := otoCtx.NewPlayer(audioBuffer)
	player.Play()
	defer func() { _ = player.Close() }()
	for {
		select {
		case <-ctx.Done():
			return
		default:
			rtp, _, err := track.ReadRTP()
			if err != nil {
				if err != io.EOF {
					logger.Error("reading RTP packet", err)
				}
				return
			}
			if len(rtp.Payload) == 0 {
				continue
			}
			n, err := decoder.Decode(rtp.Payload, pcm)
			if err != nil {
				logger.Error("decoding Opus", err)
				continue
			}
			pcmSlice := pcm[:n*channels]
			pcmBytes := make([]byte, len(pcmSlice)*2)
			for i := range len(pcmSlice) {
				binary.LittleEndian.PutUint16(pcmBytes[i*2:], uint16(pcmSlice[i]))
			}
			if dropped := audioBuffer.Write(pcmBytes); dropped > 0 {
				logger.Warn("audio buffer dropped data", zap.Int("droppedBytes", dropped))
			}
		}
	}
}

// AudioBuffer is a fixed-capacity PCM ring between the RTP reader and
// the player. Writes past capacity drop the oldest bytes; reads block
// until data arrives.
type AudioBuffer struct {
	mu     sync.Mutex
	cond   *sync.Cond
	buffer []byte
	size   int
	cap    int
}

func NewAudioBuffer(fixedCap int) *AudioBuffer {
	ab := &AudioBuffer{
		buffer: make([]byte, 0, fixedCap),
		cap:    fixedCap,
	}
	ab.cond = sync.NewCond(&ab.mu)
	return ab
}

func (ab *AudioBuffer) Write(data []byte) (dropped int) {
	ab.mu.Lock()
	defer ab.mu.Unlock()
	if ab.size+len(data) > ab.cap {
		drop := ab.size + len(data) - ab.cap
		ab.buffer = ab.buffer[drop:]
		ab.size -= drop
		dropped = drop
	}
	ab.buffer = append(ab.buffer, data...)
	ab.size += len(data)
	ab.cond.Signal()
	return dropped
}

func (ab *AudioBuffer) Read(p []byte) (n int, err error) {
	ab.mu.Lock()
	defer ab.mu.Unlock()
	for ab.size == 0 {
		ab.cond.Wait()
	}
	n = copy(p, ab.buffer)
	ab.buffer = ab.buffer[n:]
	ab.size -= n
	return n, nil
}
