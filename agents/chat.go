// Package agents wires the voicechat client into user-facing front
// ends. ChatAgent is the terminal rendition of the two-panel chat UI.
package agents

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/pion/mediadevices"
	"github.com/pion/webrtc/v4"
	pkg "github.com/voicebridge/voicechat"
	"github.com/voicebridge/voicechat/shared"
	"github.com/voicebridge/voicechat/tools"
	"go.uber.org/zap"
)

const (
	playbackBufferMs    = 100
	playbackRingSeconds = 10
	localFrameDuration  = 20 * time.Millisecond
	renderInterval      = 300 * time.Millisecond
)

// ChatAgent runs one chat session in the terminal: remote audio on the
// speakers, live microphone out, and the two transcript panels redrawn
// whenever conversation state changes.
type ChatAgent struct {
	logger   shared.LoggerAdapter
	printer  *shared.Printer
	conv     *pkg.Conversation
	client   *pkg.Client
	recorder *pkg.Recorder

	renderMu sync.Mutex
	lastAI   int
	lastUser int
}

// Spawn builds the session and starts the input and render loops. The
// returned channel closes when the session ends.
func (a *ChatAgent) Spawn(ctx context.Context, logger shared.LoggerAdapter, cfg pkg.Config, printer *shared.Printer) (<-chan struct{}, error) {
	if logger == nil {
		return nil, shared.ErrNoLogger
	}
	if printer == nil {
		return nil, errors.New("no printer provided")
	}
	a.logger = logger
	a.printer = printer
	a.conv = pkg.NewConversation()

	if err := a.printer.Writeln("🤖 Starting voice chat session...", 0); err != nil {
		a.logger.Error("printing start message", err)
	}
	cfgYAML, err := yaml.MarshalWithOptions(map[string]string{
		"proxy": cfg.ProxyURL,
		"model": cfg.Model,
	}, yaml.UseJSONMarshaler())
	if err == nil {
		if err := a.printer.Writeln(strings.TrimSpace(string(cfgYAML)), 1); err != nil {
			a.logger.Error("printing session config", err)
		}
	}

	a.client, err = pkg.NewClient(ctx, logger, cfg, a.conv)
	if err != nil {
		return nil, fmt.Errorf("creating client: %w", err)
	}
	err = a.client.RegisterRemoteAudioHandler(func(track *webrtc.TrackRemote) {
		tools.PlayRemoteAudio(ctx, a.logger, track, playbackBufferMs, playbackRingSeconds)
	})
	if err != nil {
		return nil, fmt.Errorf("registering remote audio handler: %w", err)
	}
	err = a.client.RegisterLocalAudioHandler(func(track *webrtc.TrackLocalStaticSample, mic mediadevices.Track) {
		tools.StreamLocalAudio(ctx, a.logger, track, mic, localFrameDuration)
	})
	if err != nil {
		return nil, fmt.Errorf("registering local audio handler: %w", err)
	}
	a.recorder, err = pkg.NewRecorder(logger, a.client, a.conv, cfg.Mic)
	if err != nil {
		return nil, fmt.Errorf("creating recorder: %w", err)
	}

	if err := a.client.Initialize(ctx); err != nil {
		if perr := a.printer.Writeln("❌ "+a.conv.Error(), 0); perr != nil {
			a.logger.Error("printing init failure", perr)
		}
		return nil, fmt.Errorf("initializing session: %w", err)
	}
	if err := a.printer.Writeln("✅ Session established. Type to chat, /record to toggle voice clips, /quit to exit.", 0); err != nil {
		a.logger.Error("printing ready message", err)
	}

	go a.inputLoop(ctx)
	go a.renderLoop(ctx)
	return a.client.Done(), nil
}

func (a *ChatAgent) inputLoop(ctx context.Context) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return
		case <-a.client.Done():
			return
		default:
		}
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "/quit":
			if err := a.client.Close(); err != nil {
				a.logger.Error("closing client", err)
			}
			return
		case line == "/record":
			a.toggleRecording(ctx)
		default:
			if err := a.client.SendText(line); err != nil {
				a.logger.Error("sending text", err)
			}
		}
		a.render()
	}
	if err := scanner.Err(); err != nil {
		a.logger.Error("reading stdin", err)
	}
}

func (a *ChatAgent) toggleRecording(ctx context.Context) {
	if !a.recorder.Active() {
		if err := a.recorder.Start(ctx); err != nil {
			a.logger.Error("starting recording", err)
			return
		}
		if err := a.printer.Writeln("🎙  Recording... /record again to send.", 0); err != nil {
			a.logger.Error("printing recording message", err)
		}
		return
	}
	rec, err := a.recorder.Stop()
	if err != nil {
		a.logger.Error("stopping recording", err)
		return
	}
	if err := a.recorder.Send(rec); err != nil {
		a.logger.Error("sending recording", err)
	}
}

func (a *ChatAgent) renderLoop(ctx context.Context) {
	ticker := time.NewTicker(renderInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-a.client.Done():
			return
		case <-ticker.C:
			ai := a.conv.AIMessages()
			user := a.conv.UserMessages()
			a.renderMu.Lock()
			changed := len(ai) != a.lastAI || len(user) != a.lastUser
			a.renderMu.Unlock()
			if changed {
				a.render()
			}
		}
	}
}

func (a *ChatAgent) render() {
	ai := a.conv.AIMessages()
	user := a.conv.UserMessages()
	a.renderMu.Lock()
	a.lastAI = len(ai)
	a.lastUser = len(user)
	a.renderMu.Unlock()
	if err := a.printer.Panel("── AI ──", ai, 0); err != nil {
		a.logger.Error("rendering AI panel", err)
		return
	}
	if err := a.printer.Panel("── You ──", user, 0); err != nil {
		a.logger.Error("rendering user panel", err)
		return
	}
	status := a.statusLine()
	if status != "" {
		if err := a.printer.Writeln(status, 0); err != nil {
			a.logger.Error("rendering status line", err)
		}
	}
}

func (a *ChatAgent) statusLine() string {
	switch {
	case a.conv.Error() != "":
		return "⚠️  " + a.conv.Error()
	case a.conv.Recording():
		return "🎙  recording"
	case a.conv.Processing():
		return "⏳ processing"
	}
	return ""
}

// Close tears the session down.
func (a *ChatAgent) Close() error {
	if a.client == nil {
		return nil
	}
	a.logger.Info("closing chat agent", zap.String("state", a.client.State().String()))
	return a.client.Close()
}
