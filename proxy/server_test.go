package proxy

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voicebridge/voicechat/shared"
)

func newTestServer(t *testing.T, upstreamURL string) *Server {
	t.Helper()
	server, err := NewServer(shared.NewNopLogger(), "sk-test", upstreamURL, DefaultSessionConfig())
	require.NoError(t, err)
	return server
}

func TestNewServerValidation(t *testing.T) {
	_, err := NewServer(nil, "sk-test", "", DefaultSessionConfig())
	assert.ErrorIs(t, err, shared.ErrNoLogger)

	_, err = NewServer(shared.NewNopLogger(), "", "", DefaultSessionConfig())
	assert.ErrorContains(t, err, "no API key")

	_, err = NewServer(shared.NewNopLogger(), "sk-test", "", SessionConfig{})
	assert.ErrorContains(t, err, "invalid session config")
}

func TestCreateSessionRelaysCredential(t *testing.T) {
	const upstreamBody = `{"id":"sess_1","client_secret":{"value":"ek_test_123"}}`

	var gotAuth, gotContentType, gotPath string
	var gotPayload map[string]any
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
		gotPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &gotPayload))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(upstreamBody))
	}))
	defer upstream.Close()

	server := newTestServer(t, upstream.URL)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/session", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, upstreamBody, rec.Body.String())
	assert.Equal(t, "Bearer sk-test", gotAuth)
	assert.Equal(t, "application/json", gotContentType)
	assert.Equal(t, "/realtime/sessions", gotPath)
	assert.Equal(t, "gpt-4o-realtime-preview", gotPayload["model"])
}

// Upstream rejections surface as a conveyed failure status, never a
// 200 with an error buried in the body.
func TestCreateSessionConveysUpstreamFailure(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key"}}`))
	}))
	defer upstream.Close()

	server := newTestServer(t, upstream.URL)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/session", nil))

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.JSONEq(t, `{"error":"provider rejected session request"}`, rec.Body.String())
}

func TestCreateSessionUnreachableUpstream(t *testing.T) {
	server := newTestServer(t, "http://127.0.0.1:1")
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/session", nil))

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.JSONEq(t, `{"error":"provider request failed"}`, rec.Body.String())
}

func TestHealthz(t *testing.T) {
	server := newTestServer(t, "")
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
