package voicechat

import (
	"github.com/voicebridge/voicechat/shared"
	"go.uber.org/zap"
)

// Dispatcher applies parsed server events to the conversation state.
// It is invoked from the data channel's message callback, one message
// at a time, so transitions never overlap.
type Dispatcher struct {
	logger shared.LoggerAdapter
	conv   *Conversation
}

func NewDispatcher(logger shared.LoggerAdapter, conv *Conversation) (*Dispatcher, error) {
	if logger == nil {
		return nil, shared.ErrNoLogger
	}
	if conv == nil {
		return nil, shared.ErrNoConversation
	}
	return &Dispatcher{logger: logger, conv: conv}, nil
}

// Handle performs the state transition for one event. Unrecognized
// types are logged and otherwise ignored.
func (d *Dispatcher) Handle(event *ServerEvent) {
	switch param := event.Param.(type) {
	case *ServerEventParamResponseDone:
		d.handleResponseDone(param)
	case *ServerEventParamResponseError:
		d.logger.Warn(
			"model reported an error",
			zap.String("code", param.Code),
			zap.String("message", param.Message),
		)
		d.conv.AppendAI(ModelErrorMessage)
		d.conv.SetProcessing(false)
	case *ServerEventParamUnknown:
		d.logger.Debug("ignoring event", zap.String("type", param.Tag))
	}
}

func (d *Dispatcher) handleResponseDone(param *ServerEventParamResponseDone) {
	appended := 0
	for _, item := range param.Output {
		if item.Type != "message" {
			continue
		}
		for _, part := range item.Content {
			utterance := part.Utterance()
			if utterance == "" {
				continue
			}
			d.conv.AppendAI(utterance)
			appended++
		}
	}
	d.logger.Debug("response done", zap.Int("utterances", appended))
	d.conv.SetProcessing(false)
}
