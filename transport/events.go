package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var ErrUnknownEvent = errors.New("unknown event")

// Inbound is implemented by every event the server can send.
type Inbound interface {
	inboundEvent() string
}

// Outbound is implemented by every event the client can send.
type Outbound interface {
	outboundEvent() string
}

type Transcription struct {
	Text       string
	Confidence float64
	Timestamp  int64
}

type AgentResponse struct {
	Text              string
	Audio             string // base64
	AudioFormat       string
	Intent            string
	Entities          json.RawMessage
	ConversationState json.RawMessage
	Timestamp         int64
}

func (a AgentResponse) HasAudio() bool { return a.Audio != "" }

type StatusUpdate struct {
	Status  string
	Message string
}

// ServerError is an error event. Local is set when the client synthesized
// it from a frame it could not decode.
type ServerError struct {
	Message   string
	Details   string
	Timestamp int64
	Local     bool
}

func (e ServerError) Error() string {
	if e.Details != "" {
		return e.Message + ": " + e.Details
	}
	return e.Message
}

func (Transcription) inboundEvent() string { return "transcription" }
func (AgentResponse) inboundEvent() string { return "agent_response" }
func (StatusUpdate) inboundEvent() string  { return "status_update" }
func (ServerError) inboundEvent() string   { return "error" }

// EventName returns the wire name of an inbound event.
func EventName(e Inbound) string { return e.inboundEvent() }

type AudioData struct {
	Audio     string `json:"audio"`
	Format    string `json:"format"`
	Timestamp int64  `json:"timestamp"`
	Size      int    `json:"size"`
}

func (AudioData) outboundEvent() string { return "audio_data" }

type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Encode wraps an outbound event in the wire envelope.
func Encode(o Outbound) ([]byte, error) {
	data, err := json.Marshal(o)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", o.outboundEvent(), err)
	}
	return json.Marshal(envelope{Event: o.outboundEvent(), Data: data})
}

type wireTranscription struct {
	Text       *string  `json:"text"`
	Confidence *float64 `json:"confidence"`
	Timestamp  *float64 `json:"timestamp"`
}

type wireAgentResponse struct {
	Text              *string         `json:"text"`
	Audio             string          `json:"audio"`
	AudioFormat       string          `json:"audio_format"`
	Intent            string          `json:"intent"`
	Entities          json.RawMessage `json:"entities"`
	ConversationState json.RawMessage `json:"conversation_state"`
	Timestamp         *float64        `json:"timestamp"`
}

type wireStatusUpdate struct {
	Status  *string `json:"status"`
	Message string  `json:"message"`
}

type wireError struct {
	Message   *string         `json:"message"`
	Details   json.RawMessage `json:"details"`
	Timestamp *float64        `json:"timestamp"`
}

// Decode parses one text frame into its typed event, rejecting frames that
// lack a required field.
func Decode(frame []byte) (Inbound, error) {
	var env envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("invalid frame: %w", err)
	}
	if env.Event == "" {
		return nil, errors.New("invalid frame: missing event")
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil, fmt.Errorf("invalid %s: missing data", env.Event)
	}

	switch env.Event {
	case "transcription":
		var w wireTranscription
		if err := json.Unmarshal(env.Data, &w); err != nil {
			return nil, fmt.Errorf("invalid transcription: %w", err)
		}
		if w.Text == nil {
			return nil, errors.New("invalid transcription: text is required")
		}
		t := Transcription{Text: *w.Text, Timestamp: millis(w.Timestamp)}
		if w.Confidence != nil {
			t.Confidence = *w.Confidence
		}
		return t, nil

	case "agent_response":
		var w wireAgentResponse
		if err := json.Unmarshal(env.Data, &w); err != nil {
			return nil, fmt.Errorf("invalid agent_response: %w", err)
		}
		if w.Text == nil {
			return nil, errors.New("invalid agent_response: text is required")
		}
		return AgentResponse{
			Text:              *w.Text,
			Audio:             w.Audio,
			AudioFormat:       w.AudioFormat,
			Intent:            w.Intent,
			Entities:          nonNull(w.Entities),
			ConversationState: nonNull(w.ConversationState),
			Timestamp:         millis(w.Timestamp),
		}, nil

	case "status_update":
		var w wireStatusUpdate
		if err := json.Unmarshal(env.Data, &w); err != nil {
			return nil, fmt.Errorf("invalid status_update: %w", err)
		}
		if w.Status == nil {
			return nil, errors.New("invalid status_update: status is required")
		}
		return StatusUpdate{Status: *w.Status, Message: w.Message}, nil

	case "error":
		var w wireError
		if err := json.Unmarshal(env.Data, &w); err != nil {
			return nil, fmt.Errorf("invalid error event: %w", err)
		}
		if w.Message == nil {
			return nil, errors.New("invalid error event: message is required")
		}
		return ServerError{Message: *w.Message, Details: details(w.Details), Timestamp: millis(w.Timestamp)}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
}

func millis(v *float64) int64 {
	if v == nil {
		return 0
	}
	return int64(*v)
}

func nonNull(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return raw
}

// details accepts either a string or arbitrary JSON.
func details(raw json.RawMessage) string {
	raw = nonNull(raw)
	if raw == nil {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}
