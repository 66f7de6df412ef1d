package shared

import "errors"

// Failure taxonomy of a single chat session. Each error is caught at
// the call site that produced it, logged, and collapsed into one
// generic user-visible string on the conversation state.
var (
	ErrCredential       = errors.New("credential fetch failed")
	ErrMediaAcquisition = errors.New("microphone acquisition failed")
	ErrNegotiation      = errors.New("sdp negotiation failed")
	ErrChannelNotReady  = errors.New("data channel not ready")
	ErrMalformedEvent   = errors.New("malformed inbound event")
)

// Construction and wiring guards.
var (
	ErrNoLogger              = errors.New("no logger provided")
	ErrNoConversation        = errors.New("no conversation provided")
	ErrNoProxyURL            = errors.New("no credential proxy URL provided")
	ErrSessionAlreadyRunning = errors.New("session already running")
	ErrClientNotInitialized  = errors.New("client not initialized")
	ErrRecordingInProgress   = errors.New("recording already in progress")
	ErrNoActiveRecording     = errors.New("no active recording")
	ErrRemoteHandlerSet      = errors.New("remote audio handler already set")
)
