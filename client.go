package voicechat

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/pion/mediadevices"
	"github.com/pion/webrtc/v4"
	"github.com/valyala/fasthttp"
	"github.com/voicebridge/voicechat/shared"
	"go.uber.org/zap"
)

const dataChannelName = "oai-events"

// RemoteAudioHandler receives the remote audio track once the peer
// connection delivers it.
type RemoteAudioHandler func(track *webrtc.TrackRemote)

// LocalAudioHandler streams microphone samples into the local track
// once the peer connection is connected.
type LocalAudioHandler func(track *webrtc.TrackLocalStaticSample, mic mediadevices.Track)

// MicSource acquires a microphone track. The live session and the
// recorder each acquire their own independent stream through one.
type MicSource interface {
	AcquireTrack() (mediadevices.Track, error)
}

// dataSender is the outbound half of the data channel. It is nil until
// the channel opens; tests substitute a fake.
type dataSender interface {
	Send(data []byte) error
}

// SessionState tracks the negotiation sequence. It only moves forward.
type SessionState int

const (
	SessionStateNew SessionState = iota
	SessionStateOfferCreated
	SessionStateAnswerReceived
	SessionStateEstablished
	SessionStateClosed
)

func (s SessionState) String() string {
	switch s {
	case SessionStateNew:
		return "new"
	case SessionStateOfferCreated:
		return "offer-created"
	case SessionStateAnswerReceived:
		return "answer-received"
	case SessionStateEstablished:
		return "established"
	case SessionStateClosed:
		return "closed"
	}
	return "unknown"
}

// Config wires a Client to its collaborators.
type Config struct {
	// ProxyURL is the base URL of the credential proxy.
	ProxyURL string
	// BaseURL is the provider API base. Defaults to the OpenAI API.
	BaseURL string
	// Model is appended to the negotiation endpoint query.
	Model string
	// Mic provides the live microphone track.
	Mic MicSource
}

// Client owns the one peer connection and data channel of a session
// and runs the negotiation sequence exactly once. There is no retry
// and no reconnection; a failed session is abandoned.
type Client struct {
	logger     shared.LoggerAdapter
	conv       *Conversation
	dispatcher *Dispatcher

	proxyURL *url.URL
	baseURL  *url.URL
	model    string
	mic      MicSource

	mu         sync.Mutex
	pc         *webrtc.PeerConnection
	dc         *webrtc.DataChannel
	sender     dataSender
	state      SessionState
	micTrack   mediadevices.Track
	localTrack *webrtc.TrackLocalStaticSample
	remoteAH   RemoteAudioHandler
	localAH    LocalAudioHandler
	recorder   *Recorder

	connected <-chan struct{}
	ctx       context.Context
	cancel    context.CancelCauseFunc
}

func NewClient(ctx context.Context, logger shared.LoggerAdapter, cfg Config, conv *Conversation) (*Client, error) {
	if logger == nil {
		return nil, shared.ErrNoLogger
	}
	if conv == nil {
		return nil, shared.ErrNoConversation
	}
	if cfg.ProxyURL == "" {
		return nil, shared.ErrNoProxyURL
	}
	proxyURL, err := url.Parse(cfg.ProxyURL)
	if err != nil {
		return nil, fmt.Errorf("parsing proxy URL: %w", err)
	}
	baseURL := &url.URL{Scheme: "https", Host: "api.openai.com", Path: "/v1"}
	if cfg.BaseURL != "" {
		baseURL, err = url.Parse(cfg.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("parsing base URL: %w", err)
		}
	}
	model := cfg.Model
	if model == "" {
		model = "gpt-4o-realtime-preview"
	}
	dispatcher, err := NewDispatcher(logger, conv)
	if err != nil {
		return nil, fmt.Errorf("creating dispatcher: %w", err)
	}
	ctx, cancel := context.WithCancelCause(ctx)
	return &Client{
		logger:     logger,
		conv:       conv,
		dispatcher: dispatcher,
		proxyURL:   proxyURL,
		baseURL:    baseURL,
		model:      model,
		mic:        cfg.Mic,
		state:      SessionStateNew,
		ctx:        ctx,
		cancel:     cancel,
	}, nil
}

// RegisterRemoteAudioHandler must be called before Initialize.
func (c *Client) RegisterRemoteAudioHandler(handler RemoteAudioHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != SessionStateNew {
		return shared.ErrSessionAlreadyRunning
	}
	if c.remoteAH != nil {
		return shared.ErrRemoteHandlerSet
	}
	if handler == nil {
		return errors.New("handler is required")
	}
	c.remoteAH = handler
	return nil
}

// RegisterLocalAudioHandler must be called before Initialize. The
// handler runs on its own goroutine once the connection is up, and
// needs a microphone source to feed it.
func (c *Client) RegisterLocalAudioHandler(handler LocalAudioHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != SessionStateNew {
		return shared.ErrSessionAlreadyRunning
	}
	if handler == nil {
		return errors.New("handler is required")
	}
	if c.mic == nil {
		return fmt.Errorf("%w: no microphone source configured", shared.ErrMediaAcquisition)
	}
	c.localAH = handler
	return nil
}

// Initialize runs the whole negotiation sequence: credential fetch,
// peer connection setup, microphone attach, data channel wiring, SDP
// offer/answer. Any failure surfaces the one generic error string on
// the conversation and leaves the session uninitialized.
func (c *Client) Initialize(ctx context.Context) error {
	if err := c.initialize(ctx); err != nil {
		c.conv.SetError(InitFailedMessage)
		c.logger.Error("session initialization failed", err)
		return err
	}
	return nil
}

func (c *Client) initialize(ctx context.Context) (err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != SessionStateNew {
		return shared.ErrSessionAlreadyRunning
	}
	if err := c.respectCtx(); err != nil {
		return fmt.Errorf("respecting client context: %w", err)
	}

	// Credential first: nothing else is created when the proxy is down.
	credential, err := c.fetchCredential(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", shared.ErrCredential, err)
	}

	c.pc, err = webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		return fmt.Errorf("creating peer connection: %w", err)
	}
	defer func() {
		// Failed negotiations do not leave a half-built session behind.
		if err != nil {
			if closeErr := c.pc.Close(); closeErr != nil {
				c.logger.Error("closing peer connection after failed init", closeErr)
			}
			c.pc = nil
			c.dc = nil
			c.sender = nil
			c.micTrack = nil
		}
	}()

	connected := make(chan struct{})
	connectedClosed := false
	c.connected = connected
	c.pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.logger.Debug("peer connection state changed", zap.String("state", state.String()))
		switch state {
		case webrtc.PeerConnectionStateConnected:
			if !connectedClosed {
				connectedClosed = true
				close(connected)
				if c.localAH != nil && c.micTrack != nil {
					go c.localAH(c.localTrack, c.micTrack)
				}
			}
		case webrtc.PeerConnectionStateDisconnected,
			webrtc.PeerConnectionStateFailed,
			webrtc.PeerConnectionStateClosed:
			if !connectedClosed {
				connectedClosed = true
				close(connected)
			}
			c.cancel(fmt.Errorf("peer connection state is %s", state))
		}
	})
	c.pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		if track.Kind() != webrtc.RTPCodecTypeAudio {
			return
		}
		c.logger.Info("received remote audio track", zap.String("codec", track.Codec().MimeType))
		if c.remoteAH != nil {
			go c.remoteAH(track)
		}
	})

	if c.mic != nil {
		c.micTrack, err = c.mic.AcquireTrack()
		if err != nil {
			return fmt.Errorf("%w: %w", shared.ErrMediaAcquisition, err)
		}
		c.localTrack, err = webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{
				MimeType:    webrtc.MimeTypeOpus,
				ClockRate:   48000,
				Channels:    1,
				SDPFmtpLine: "minptime=10;useinbandfec=1",
			},
			"audio",
			"mic",
		)
		if err != nil {
			return fmt.Errorf("creating local audio track: %w", err)
		}
		if _, err = c.pc.AddTrack(c.localTrack); err != nil {
			return fmt.Errorf("adding audio track to peer connection: %w", err)
		}
	}

	c.dc, err = c.pc.CreateDataChannel(dataChannelName, nil)
	if err != nil {
		return fmt.Errorf("creating data channel: %w", err)
	}
	c.dc.OnOpen(func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.sender = c.dc
		c.logger.Info("data channel opened", zap.String("label", dataChannelName))
	})
	c.dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		if !msg.IsString {
			c.logger.Warn("received non-string message on data channel")
			return
		}
		event, err := ParseServerEvent(msg.Data)
		if err != nil {
			// Malformed events are dropped; the channel stays open.
			c.logger.Error("discarding inbound event", err, zap.ByteString("data", msg.Data))
			return
		}
		c.logger.Debug("received event", zap.String("type", string(event.Type)))
		c.dispatcher.Handle(event)
	})

	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("creating offer: %w", err)
	}
	if err = c.pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("setting local description: %w", err)
	}
	c.state = SessionStateOfferCreated

	answer, err := c.exchangeSDP(ctx, credential, offer.SDP)
	if err != nil {
		c.state = SessionStateNew
		return fmt.Errorf("%w: %w", shared.ErrNegotiation, err)
	}
	c.state = SessionStateAnswerReceived

	if err = c.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  answer,
	}); err != nil {
		c.state = SessionStateNew
		return fmt.Errorf("setting remote description: %w", err)
	}
	c.state = SessionStateEstablished
	c.logger.Info("session established", zap.String("model", c.model))
	return nil
}

// credentialResponse is the proxy's answer to POST /api/session.
type credentialResponse struct {
	ClientSecret struct {
		Value string `json:"value"`
	} `json:"client_secret"`
}

func (c *Client) fetchCredential(ctx context.Context) (string, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.proxyURL.JoinPath("/api/session").String())
	req.Header.SetMethod(fasthttp.MethodPost)

	if err := c.do(ctx, req, resp); err != nil {
		return "", fmt.Errorf("performing HTTP request: %w", err)
	}
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return "", fmt.Errorf("unexpected status code: %d, body: %s", resp.StatusCode(), string(resp.Body()))
	}
	var cred credentialResponse
	if err := sonic.Unmarshal(resp.Body(), &cred); err != nil {
		return "", fmt.Errorf("decoding credential response: %w", err)
	}
	if cred.ClientSecret.Value == "" {
		return "", errors.New("credential response has no client secret")
	}
	return cred.ClientSecret.Value, nil
}

func (c *Client) exchangeSDP(ctx context.Context, credential, offer string) (string, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	endpoint := c.baseURL.JoinPath("/realtime")
	endpoint.RawQuery = url.Values{"model": {c.model}}.Encode()
	req.SetRequestURI(endpoint.String())
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.Set("Authorization", "Bearer "+credential)
	req.Header.SetContentType("application/sdp")
	req.SetBodyString(offer)

	if err := c.do(ctx, req, resp); err != nil {
		return "", fmt.Errorf("performing HTTP request: %w", err)
	}
	if resp.StatusCode() != fasthttp.StatusOK && resp.StatusCode() != fasthttp.StatusCreated {
		return "", fmt.Errorf("unexpected status code: %d, body: %s", resp.StatusCode(), string(resp.Body()))
	}
	return string(resp.Body()[:]), nil
}

// do runs a fasthttp request raced against both contexts, so teardown
// during an in-flight exchange aborts the wait.
func (c *Client) do(ctx context.Context, req *fasthttp.Request, resp *fasthttp.Response) error {
	// Buffered so an abandoned exchange does not strand the goroutine.
	errC := make(chan error, 1)
	go func() {
		errC <- fasthttp.Do(req, resp)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.ctx.Done():
		return context.Cause(c.ctx)
	case err := <-errC:
		return err
	}
}

// SendText transmits one typed message. Absent data channel is a
// deliberate no-op: transcripts and flags stay untouched.
func (c *Client) SendText(text string) error {
	c.mu.Lock()
	sender := c.sender
	c.mu.Unlock()
	if sender == nil {
		c.logger.Debug("dropping text send, data channel absent")
		return nil
	}
	payload, err := sonic.Marshal(&TextEvent{Text: text})
	if err != nil {
		return fmt.Errorf("marshaling text event: %w", err)
	}
	if err := sender.Send(payload); err != nil {
		return fmt.Errorf("sending text event: %w", err)
	}
	c.conv.AppendUser(UserMessagePrefix + text)
	c.conv.SetProcessing(true)
	return nil
}

// sendEvent transmits one client envelope, failing when the channel
// has not opened yet.
func (c *Client) sendEvent(event ClientEvent) error {
	c.mu.Lock()
	sender := c.sender
	c.mu.Unlock()
	if sender == nil {
		return shared.ErrChannelNotReady
	}
	payload, err := sonic.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling %s event: %w", event.EventType(), err)
	}
	if err := sender.Send(payload); err != nil {
		return fmt.Errorf("sending %s event: %w", event.EventType(), err)
	}
	return nil
}

// State returns the negotiation state.
func (c *Client) State() SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Established reports whether the peer connection exists and finished
// negotiation.
func (c *Client) Established() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pc != nil && c.state == SessionStateEstablished
}

// PC exposes the peer connection, nil until negotiation succeeds.
func (c *Client) PC() *webrtc.PeerConnection {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pc
}

// Connected closes once the peer connection reports connected. Nil
// before Initialize.
func (c *Client) Connected() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Done closes when the session context ends.
func (c *Client) Done() <-chan struct{} {
	return c.ctx.Done()
}

func (c *Client) bindRecorder(r *Recorder) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recorder = r
}

func (c *Client) respectCtx() error {
	select {
	case <-c.ctx.Done():
		return context.Cause(c.ctx)
	default:
	}
	return nil
}

// Close tears the session down unconditionally: any active recording
// stops, the peer connection closes, the session context ends. Safe
// to call on every exit path, including mid-negotiation.
func (c *Client) Close() error {
	c.mu.Lock()
	recorder := c.recorder
	c.mu.Unlock()
	if recorder != nil {
		recorder.Abort()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.micTrack != nil {
		if err := c.micTrack.Close(); err != nil {
			c.logger.Error("closing microphone track", err)
		}
		c.micTrack = nil
	}
	if c.pc != nil {
		if err := c.pc.Close(); err != nil {
			c.logger.Error("closing peer connection", err)
		}
		c.pc = nil
	}
	c.dc = nil
	c.sender = nil
	c.state = SessionStateClosed
	if c.cancel != nil {
		c.cancel(errors.New("client closed"))
		c.cancel = nil
	}
	return nil
}
