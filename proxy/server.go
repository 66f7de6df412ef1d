package proxy

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/bytedance/sonic"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/valyala/fasthttp"
	"github.com/voicebridge/voicechat/shared"
	"go.uber.org/zap"
)

// Server issues ephemeral session credentials. POST /api/session
// forwards the fixed session payload to the provider's session
// endpoint and relays the JSON answer; upstream failures are conveyed
// as a 502 instead of being wrapped in a 200.
type Server struct {
	logger  shared.LoggerAdapter
	apiKey  string
	baseURL *url.URL
	session SessionConfig
	router  chi.Router
}

func NewServer(logger shared.LoggerAdapter, apiKey, baseURL string, session SessionConfig) (*Server, error) {
	if logger == nil {
		return nil, shared.ErrNoLogger
	}
	if apiKey == "" {
		return nil, errors.New("no API key provided")
	}
	base := &url.URL{Scheme: "https", Host: "api.openai.com", Path: "/v1"}
	if baseURL != "" {
		var err error
		base, err = url.Parse(baseURL)
		if err != nil {
			return nil, fmt.Errorf("parsing base URL: %w", err)
		}
	}
	if err := session.Validate(); err != nil {
		return nil, fmt.Errorf("invalid session config: %w", err)
	}
	s := &Server{
		logger:  logger,
		apiKey:  apiKey,
		baseURL: base,
		session: session,
	}
	r := chi.NewRouter()
	r.Use(chiMiddleware.Recoverer)
	r.Post("/api/session", s.handleCreateSession)
	r.Get("/healthz", s.handleHealthz)
	s.router = r
	return s, nil
}

// Handler returns the HTTP handler for mounting or serving.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	payload, err := s.session.Param().MarshalJSON()
	if err != nil {
		s.logger.Error("marshaling session payload", err)
		s.writeError(w, http.StatusInternalServerError, "failed to build session payload")
		return
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(s.baseURL.JoinPath("/realtime/sessions").String())
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.SetContentType("application/json")
	req.SetBody(payload)

	if err := fasthttp.Do(req, resp); err != nil {
		s.logger.Error("forwarding session request", err)
		s.writeError(w, http.StatusBadGateway, "provider request failed")
		return
	}
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		s.logger.Warn(
			"provider rejected session request",
			zap.Int("status", resp.StatusCode()),
			zap.ByteString("body", resp.Body()),
		)
		s.writeError(w, http.StatusBadGateway, "provider rejected session request")
		return
	}

	s.logger.Info("session credential issued", zap.String("model", s.session.Model))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(resp.Body()); err != nil {
		s.logger.Error("writing session response", err)
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	body, err := sonic.Marshal(map[string]string{"error": msg})
	if err != nil {
		http.Error(w, msg, status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
