// Package proxy implements the credential proxy: a small HTTP service
// that trades the server-side API key for ephemeral session
// credentials so the chat client never sees the long-lived secret.
package proxy

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
	"github.com/openai/openai-go/v3/packages/param"
	"github.com/openai/openai-go/v3/realtime"
)

// SessionConfig is the fixed session-creation payload forwarded to the
// provider, optionally overridden from a YAML file.
type SessionConfig struct {
	Model              string `yaml:"model"`
	Voice              string `yaml:"voice"`
	Instructions       string `yaml:"instructions"`
	AudioRate          int64  `yaml:"audio_rate"`
	TranscriptionModel string `yaml:"transcription_model"`
}

// DefaultSessionConfig matches the client's defaults: PCM16 audio both
// ways and whisper transcription.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		Model:              "gpt-4o-realtime-preview",
		Voice:              "alloy",
		AudioRate:          24000,
		TranscriptionModel: "whisper-1",
	}
}

// LoadSessionConfig reads overrides from a YAML file. An empty path
// yields the defaults.
func LoadSessionConfig(path string) (SessionConfig, error) {
	cfg := DefaultSessionConfig()
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading session config file: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing session config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid session config: %w", err)
	}
	return cfg, nil
}

func (c SessionConfig) Validate() error {
	if c.Model == "" {
		return fmt.Errorf("model cannot be empty")
	}
	if c.Voice == "" {
		return fmt.Errorf("voice cannot be empty")
	}
	if c.AudioRate <= 0 {
		return fmt.Errorf("audio_rate must be > 0")
	}
	if c.TranscriptionModel == "" {
		return fmt.Errorf("transcription_model cannot be empty")
	}
	return nil
}

// Param renders the config as the provider's session-create request.
func (c SessionConfig) Param() *realtime.RealtimeSessionCreateRequestParam {
	pcm := realtime.RealtimeAudioFormatsUnionParam{
		OfAudioPCM: &realtime.RealtimeAudioFormatsAudioPCMParam{
			Rate: c.AudioRate,
			Type: "audio/pcm",
		},
	}
	req := &realtime.RealtimeSessionCreateRequestParam{
		Model: c.Model,
		Audio: realtime.RealtimeAudioConfigParam{
			Input: realtime.RealtimeAudioConfigInputParam{
				Format: pcm,
				Transcription: realtime.AudioTranscriptionParam{
					Model: realtime.AudioTranscriptionModel(c.TranscriptionModel),
				},
			},
			Output: realtime.RealtimeAudioConfigOutputParam{
				Format: pcm,
				Voice:  realtime.RealtimeAudioConfigOutputVoice(c.Voice),
			},
		},
	}
	if c.Instructions != "" {
		req.Instructions = param.NewOpt(c.Instructions)
	}
	return req
}
