package proxy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSessionConfigDefaults(t *testing.T) {
	cfg, err := LoadSessionConfig("")
	require.NoError(t, err)
	assert.Equal(t, DefaultSessionConfig(), cfg)
	assert.NoError(t, cfg.Validate())
}

func TestLoadSessionConfigOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"model: gpt-realtime\nvoice: verse\ninstructions: Be brief.\n",
	), 0o600))

	cfg, err := LoadSessionConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "gpt-realtime", cfg.Model)
	assert.Equal(t, "verse", cfg.Voice)
	assert.Equal(t, "Be brief.", cfg.Instructions)
	// Unset keys keep their defaults.
	assert.Equal(t, int64(24000), cfg.AudioRate)
	assert.Equal(t, "whisper-1", cfg.TranscriptionModel)
}

func TestLoadSessionConfigRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.yaml")
	require.NoError(t, os.WriteFile(path, []byte("voice: \"\"\n"), 0o600))

	_, err := LoadSessionConfig(path)
	assert.ErrorContains(t, err, "invalid session config")
}

func TestSessionConfigParam(t *testing.T) {
	param := DefaultSessionConfig().Param()
	raw, err := param.MarshalJSON()
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"gpt-4o-realtime-preview"`)
	assert.Contains(t, string(raw), `"whisper-1"`)
	assert.Contains(t, string(raw), `"audio/pcm"`)
}
