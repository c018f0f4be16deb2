// ABOUTME: JSON frame envelope with typed constructors for every frame kind
// ABOUTME: Encode/Decode are the single codec boundary for the connection

package wire

import (
	"encoding/json"
	"errors"
	"fmt"
)

// FrameType discriminates the JSON envelope.
type FrameType string

const (
	TypeChatRequest       FrameType = "chat-request"
	TypeChatResponse      FrameType = "chat-response"
	TypeChatRequestCancel FrameType = "chat-request-cancel"
	TypeChatMessages      FrameType = "chat-messages"
	TypeChatClear         FrameType = "chat-clear"
	TypeRPC               FrameType = "rpc"
)

var (
	ErrMissingType = errors.New("wire: frame has no type")
	ErrUnknownType = errors.New("wire: unknown frame type")
)

// knownTypes is the closed set the envelope admits. New kinds require a
// contract revision on both ends.
var knownTypes = map[FrameType]bool{
	TypeChatRequest:       true,
	TypeChatResponse:      true,
	TypeChatRequestCancel: true,
	TypeChatMessages:      true,
	TypeChatClear:         true,
	TypeRPC:               true,
}

// Frame is the wire envelope. Which fields are meaningful depends on Type;
// unused fields are omitted on the wire.
type Frame struct {
	Type FrameType `json:"type"`
	ID   string    `json:"id,omitempty"`

	// chat-response and streamed rpc results. Body is a raw fragment of the
	// exchange's event-stream text, or the failure message when Error is set.
	Body  string `json:"body,omitempty"`
	Done  bool   `json:"done,omitempty"`
	Error bool   `json:"error,omitempty"`

	// chat-messages
	Messages []Message `json:"messages,omitempty"`

	// chat-request
	URL  string       `json:"url,omitempty"`
	Init *RequestInit `json:"init,omitempty"`

	// rpc
	Method string            `json:"method,omitempty"`
	Args   []json.RawMessage `json:"args,omitempty"`
}

// RequestInit describes a chat-request in HTTP terms: the gateway replays
// it against its upstream completion endpoint.
type RequestInit struct {
	Method      string            `json:"method,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	Body        string            `json:"body,omitempty"`
	Credentials string            `json:"credentials,omitempty"`
}

// Encode serializes a frame for the wire.
func Encode(f *Frame) ([]byte, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("encoding %s frame: %w", f.Type, err)
	}
	return data, nil
}

// Decode parses a single frame. Malformed JSON and frames outside the known
// type set are errors; callers drop those without surfacing them.
func Decode(data []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decoding frame: %w", err)
	}
	if f.Type == "" {
		return nil, ErrMissingType
	}
	if !knownTypes[f.Type] {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, f.Type)
	}
	return &f, nil
}

// NewChatRequest builds the frame that opens an exchange.
func NewChatRequest(id, url string, init *RequestInit) *Frame {
	return &Frame{Type: TypeChatRequest, ID: id, URL: url, Init: init}
}

// NewChatChunk builds one streamed body chunk for an exchange.
func NewChatChunk(id, body string) *Frame {
	return &Frame{Type: TypeChatResponse, ID: id, Body: body}
}

// NewChatDone builds the terminal success frame for an exchange.
func NewChatDone(id string) *Frame {
	return &Frame{Type: TypeChatResponse, ID: id, Done: true}
}

// NewChatError builds the terminal failure frame for an exchange. The
// failure message rides in Body with the error flag set.
func NewChatError(id, reason string) *Frame {
	return &Frame{Type: TypeChatResponse, ID: id, Body: reason, Error: true, Done: true}
}

// NewCancel asks the peer to stop producing for an exchange. Best effort;
// the sender has already stopped listening by the time this is on the wire.
func NewCancel(id string) *Frame {
	return &Frame{Type: TypeChatRequestCancel, ID: id}
}

// NewClear resets the shared conversation.
func NewClear() *Frame {
	return &Frame{Type: TypeChatClear}
}

// NewSnapshot replaces the shared conversation wholesale.
func NewSnapshot(msgs []Message) *Frame {
	return &Frame{Type: TypeChatMessages, Messages: msgs}
}

// NewRPCRequest builds a correlated method call.
func NewRPCRequest(id, method string, args []json.RawMessage) *Frame {
	return &Frame{Type: TypeRPC, ID: id, Method: method, Args: args}
}

// NewRPCResult builds the terminal success frame for an rpc call. Body holds
// the JSON-encoded result; intermediate chunks may precede it with Done unset.
func NewRPCResult(id, body string) *Frame {
	return &Frame{Type: TypeRPC, ID: id, Body: body, Done: true}
}

// NewRPCError builds the terminal failure frame for an rpc call.
func NewRPCError(id, reason string) *Frame {
	return &Frame{Type: TypeRPC, ID: id, Body: reason, Error: true, Done: true}
}
