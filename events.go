package voicechat

import (
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/voicebridge/voicechat/shared"
)

type EventType string

type ServerEventType EventType

type ClientEventType EventType

// Server event types. Anything else arriving on the data channel falls
// into the catch-all Unknown variant.
const (
	ServerEventTypeResponseDone  ServerEventType = "response.done"
	ServerEventTypeResponseError ServerEventType = "response.error"
	ServerEventTypeUnknown       ServerEventType = ""
)

// Client event types.
const (
	ClientEventTypeAudio   ClientEventType = "audio"
	ClientEventTypeMessage ClientEventType = "message"
)

// EventParam is the typed payload of one inbound event. New validates
// and populates the param from the decoded JSON object (minus the type
// discriminator); Json renders it back to the wire shape.
type EventParam interface {
	New(map[string]any) error
	Json() map[string]any
}

// ServerEvent is one parsed inbound data-channel message: a type
// discriminator plus its validated payload.
type ServerEvent struct {
	Type  ServerEventType
	Param EventParam
}

// ParseServerEvent decodes an inbound data-channel message. Unparsable
// JSON or a missing discriminator is a malformed event; unrecognized
// discriminators are valid and produce the Unknown variant.
func ParseServerEvent(data []byte) (*ServerEvent, error) {
	var raw map[string]any
	if err := sonic.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", shared.ErrMalformedEvent, err)
	}
	tag, ok := raw["type"].(string)
	if !ok {
		return nil, fmt.Errorf("%w: missing type", shared.ErrMalformedEvent)
	}
	delete(raw, "type")

	e := &ServerEvent{Type: ServerEventType(tag)}
	switch e.Type {
	case ServerEventTypeResponseDone:
		e.Param = new(ServerEventParamResponseDone)
	case ServerEventTypeResponseError:
		e.Param = new(ServerEventParamResponseError)
	default:
		e.Param = &ServerEventParamUnknown{Tag: tag}
	}
	if err := e.Param.New(raw); err != nil {
		return nil, fmt.Errorf("%w: %w", shared.ErrMalformedEvent, err)
	}
	return e, nil
}

func (e *ServerEvent) MarshalJSON() ([]byte, error) {
	if e.Param == nil {
		return nil, errors.New("Param is nil")
	}
	resp := map[string]any{}
	for k, v := range e.Param.Json() {
		resp[k] = v
	}
	if e.Type != ServerEventTypeUnknown {
		resp["type"] = e.Type
	}
	return sonic.Marshal(resp)
}

// OutputItem is one entry of a completed response's output array.
type OutputItem struct {
	Type    string
	Content []ContentPart
}

// ContentPart is one content entry of a message output item. Audio
// parts carry a transcript, text parts carry literal text.
type ContentPart struct {
	Type       string
	Transcript string
	Text       string
}

// Utterance returns the displayable string of the part, or "" when it
// carries neither a transcript nor text.
func (p ContentPart) Utterance() string {
	if p.Transcript != "" {
		return p.Transcript
	}
	return p.Text
}

// response.done
type ServerEventParamResponseDone struct {
	Output []OutputItem
}

func (p *ServerEventParamResponseDone) New(m map[string]any) error {
	rawResp, ok := m["response"]
	if !ok {
		// A done event may arrive as the bare discriminator.
		p.Output = nil
		return nil
	}
	resp, ok := rawResp.(map[string]any)
	if !ok {
		return errors.New("invalid response")
	}
	rawOutput, ok := resp["output"]
	if !ok {
		// A response may legitimately complete without output.
		p.Output = nil
		return nil
	}
	list, ok := rawOutput.([]any)
	if !ok {
		return errors.New("invalid response.output")
	}
	p.Output = make([]OutputItem, 0, len(list))
	for _, rawItem := range list {
		item, ok := rawItem.(map[string]any)
		if !ok {
			return errors.New("invalid element in response.output")
		}
		out := OutputItem{}
		if v, ok := item["type"].(string); ok {
			out.Type = v
		}
		if rawContent, ok := item["content"].([]any); ok {
			out.Content = make([]ContentPart, 0, len(rawContent))
			for _, rawPart := range rawContent {
				part, ok := rawPart.(map[string]any)
				if !ok {
					return errors.New("invalid content entry in response.output")
				}
				cp := ContentPart{}
				if v, ok := part["type"].(string); ok {
					cp.Type = v
				}
				if v, ok := part["transcript"].(string); ok {
					cp.Transcript = v
				}
				if v, ok := part["text"].(string); ok {
					cp.Text = v
				}
				out.Content = append(out.Content, cp)
			}
		}
		p.Output = append(p.Output, out)
	}
	return nil
}

func (p *ServerEventParamResponseDone) Json() map[string]any {
	output := make([]any, 0, len(p.Output))
	for _, item := range p.Output {
		content := make([]any, 0, len(item.Content))
		for _, part := range item.Content {
			m := map[string]any{"type": part.Type}
			if part.Transcript != "" {
				m["transcript"] = part.Transcript
			}
			if part.Text != "" {
				m["text"] = part.Text
			}
			content = append(content, m)
		}
		output = append(output, map[string]any{
			"type":    item.Type,
			"content": content,
		})
	}
	return map[string]any{
		"response": map[string]any{"output": output},
	}
}

// response.error
type ServerEventParamResponseError struct {
	Code    string
	Message string
}

func (p *ServerEventParamResponseError) New(m map[string]any) error {
	// The provider sends the bare discriminator; code and message are
	// optional diagnostics.
	if errObj, ok := m["error"].(map[string]any); ok {
		if v, ok := errObj["code"].(string); ok {
			p.Code = v
		}
		if v, ok := errObj["message"].(string); ok {
			p.Message = v
		}
	}
	return nil
}

func (p *ServerEventParamResponseError) Json() map[string]any {
	if p.Code == "" && p.Message == "" {
		return map[string]any{}
	}
	return map[string]any{
		"error": map[string]any{
			"code":    p.Code,
			"message": p.Message,
		},
	}
}

// Catch-all for unrecognized discriminators. Kept parsed instead of
// untyped so diagnostics can log the tag and field set.
type ServerEventParamUnknown struct {
	Tag    string
	Fields map[string]any
}

func (p *ServerEventParamUnknown) New(m map[string]any) error {
	p.Fields = m
	return nil
}

func (p *ServerEventParamUnknown) Json() map[string]any {
	out := map[string]any{"type": p.Tag}
	for k, v := range p.Fields {
		out[k] = v
	}
	return out
}

// ClientEvent is one outbound data-channel envelope.
type ClientEvent interface {
	EventType() ClientEventType
	MarshalJSON() ([]byte, error)
}

// AudioEvent carries one finished recording: {"type":"audio","data":"<base64>"}.
type AudioEvent struct {
	Data string
}

var _ ClientEvent = (*AudioEvent)(nil)

func (e *AudioEvent) EventType() ClientEventType {
	return ClientEventTypeAudio
}

func (e *AudioEvent) MarshalJSON() ([]byte, error) {
	return sonic.Marshal(map[string]any{
		"type": string(ClientEventTypeAudio),
		"data": e.Data,
	})
}

// TextEvent carries one typed message: {"type":"message","data":{"text":...}}.
type TextEvent struct {
	Text string
}

var _ ClientEvent = (*TextEvent)(nil)

func (e *TextEvent) EventType() ClientEventType {
	return ClientEventTypeMessage
}

func (e *TextEvent) MarshalJSON() ([]byte, error) {
	return sonic.Marshal(map[string]any{
		"type": string(ClientEventTypeMessage),
		"data": map[string]any{"text": e.Text},
	})
}
