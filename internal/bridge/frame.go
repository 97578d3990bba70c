package bridge

import (
	"bytes"
	"encoding/json"
	"errors"
)

// ActionError is the action of the terminal frame for a failed request
const ActionError = "error"

// Request is one decoded inbound frame
type Request struct {
	Action    string
	RequestID string
	// Raw is the (unwrapped) frame object, decoded again by typed handlers
	Raw json.RawMessage
}

// Frame is an outbound progress or terminal frame. Progress frames carry
// Step; terminal frames carry Success.
type Frame struct {
	Action    string      `json:"action"`
	RequestID string      `json:"requestId"`
	Step      string      `json:"step,omitempty"`
	Message   string      `json:"message,omitempty"`
	Success   *bool       `json:"success,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	Kind      string      `json:"kind,omitempty"`
}

// Emitter delivers frames back to the surface that sent the request.
// Emit may be called from several goroutines.
type Emitter interface {
	Emit(f Frame) error
}

// EmitterFunc adapts a func to Emitter
type EmitterFunc func(f Frame) error

func (fn EmitterFunc) Emit(f Frame) error { return fn(f) }

type header struct {
	Action    string `json:"action"`
	Type      string `json:"type"`
	RequestID string `json:"requestId"`
}

// ParseRequest decodes a raw frame. A payload that is itself a JSON string
// is unwrapped exactly once; a string inside that string is rejected.
func ParseRequest(raw []byte) (Request, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return Request{}, err
		}
		raw = bytes.TrimSpace([]byte(inner))
	}
	if len(raw) == 0 || raw[0] != '{' {
		return Request{}, errors.New("frame is not a JSON object")
	}

	var h header
	if err := json.Unmarshal(raw, &h); err != nil {
		return Request{}, err
	}
	action := h.Action
	if action == "" {
		action = h.Type
	}
	return Request{Action: action, RequestID: h.RequestID, Raw: json.RawMessage(raw)}, nil
}

func progressFrame(req Request, step, message string) Frame {
	return Frame{Action: req.Action, RequestID: req.RequestID, Step: step, Message: message}
}

func successFrame(req Request, data interface{}) Frame {
	ok := true
	return Frame{Action: req.Action, RequestID: req.RequestID, Success: &ok, Data: data}
}

func errorFrame(requestID, message, kind string) Frame {
	ok := false
	return Frame{
		Action:    ActionError,
		RequestID: requestID,
		Success:   &ok,
		Error:     message,
		Message:   message,
		Kind:      kind,
	}
}

// Notification builds a server-originated frame with no request
func Notification(action string, data interface{}) Frame {
	return Frame{Action: action, Data: data}
}
