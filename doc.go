// # Voice/text chat client for the OpenAI Realtime API
//
// This repository provides a Go package for real-time, two-way voice
// and text conversations with an AI assistant over WebRTC. A session
// obtains an ephemeral credential from a small proxy service (so the
// provider API key stays server-side), negotiates a peer connection
// with local and remote audio tracks plus one event data channel, and
// dispatches inbound events into append-only conversation transcripts.
// Voice clips recorded on demand and typed messages travel outward
// over the same data channel.
package voicechat
