package kernel

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Message types exchanged with a kernel.
const (
	MsgExecuteRequest    = "execute_request"
	MsgExecuteReply      = "execute_reply"
	MsgExecuteResult     = "execute_result"
	MsgKernelInfoRequest = "kernel_info_request"
	MsgKernelInfoReply   = "kernel_info_reply"
	MsgShutdownRequest   = "shutdown_request"
	MsgStatus            = "status"
	MsgStream            = "stream"
	MsgDisplayData       = "display_data"
	MsgError             = "error"
)

// Logical channel names.
const (
	ChannelShell = "shell"
	ChannelIOPub = "iopub"
)

// Header identifies a message.
type Header struct {
	MsgID    string `json:"msg_id"`
	MsgType  string `json:"msg_type"`
	Username string `json:"username"`
	Session  string `json:"session"`
	Date     string `json:"date,omitempty"`
	Version  string `json:"version,omitempty"`
}

// Message is the wire envelope on every channel.
type Message struct {
	Header       Header          `json:"header"`
	ParentHeader Header          `json:"parent_header"`
	Metadata     map[string]any  `json:"metadata"`
	Content      json.RawMessage `json:"content"`
	// Channel is set by servers multiplexing all channels over one socket.
	Channel string `json:"channel,omitempty"`
	// MsgType is the top-level type some older servers send alongside the header.
	MsgType string `json:"msg_type,omitempty"`
}

// Type returns the message type, preferring the header.
func (m Message) Type() string {
	if m.Header.MsgType != "" {
		return m.Header.MsgType
	}
	return m.MsgType
}

// RepliesTo reports whether m belongs to the request with id parentID.
// Output without a parent is accepted, but a parentless status or reply
// never is: it may announce a kernel restart rather than the end of this
// request.
func (m Message) RepliesTo(parentID string) bool {
	if parentID == "" || m.ParentHeader.MsgID == parentID {
		return true
	}
	if m.ParentHeader.MsgID != "" {
		return false
	}
	switch m.Type() {
	case MsgStatus, MsgExecuteReply, MsgKernelInfoReply:
		return false
	}
	return true
}

// ExecuteContent is the content of an execute_request.
type ExecuteContent struct {
	Code            string            `json:"code"`
	Silent          bool              `json:"silent"`
	StoreHistory    bool              `json:"store_history"`
	UserVariables   []string          `json:"user_variables"`
	UserExpressions map[string]string `json:"user_expressions"`
	AllowStdin      bool              `json:"allow_stdin"`
}

func newMessage(msgType, session, channel string, content any) (Message, error) {
	raw, err := json.Marshal(content)
	if err != nil {
		return Message{}, err
	}
	return Message{
		Header: Header{
			MsgID:   uuid.NewString(),
			MsgType: msgType,
			Session: session,
			Date:    time.Now().UTC().Format(time.RFC3339Nano),
			Version: "5.3",
		},
		Metadata: map[string]any{},
		Content:  raw,
		Channel:  channel,
	}, nil
}

// Output is the decoded content of a message. The concrete types are
// StreamOutput, DisplayOutput, ErrorOutput, StatusOutput, ReplyOutput and
// Unrecognized.
type Output interface {
	isOutput()
}

// StreamOutput is text written to stdout or stderr.
type StreamOutput struct {
	Name string `json:"name"`
	Text string `json:"text"`
}

// DisplayOutput is rich output keyed by mime type (display_data and execute_result).
type DisplayOutput struct {
	Data map[string]json.RawMessage `json:"data"`
}

// ErrorOutput is an exception raised by user code.
type ErrorOutput struct {
	EName     string   `json:"ename"`
	EValue    string   `json:"evalue"`
	Traceback []string `json:"traceback"`
}

// StatusOutput reports the kernel execution state.
type StatusOutput struct {
	ExecutionState string `json:"execution_state"`
}

// ReplyOutput is the shell reply to a request.
type ReplyOutput struct {
	Status string `json:"status"`
}

// Unrecognized is any message the decoder has no shape for.
type Unrecognized struct {
	MsgType string
	Reason  string
}

func (StreamOutput) isOutput()  {}
func (DisplayOutput) isOutput() {}
func (ErrorOutput) isOutput()   {}
func (StatusOutput) isOutput()  {}
func (ReplyOutput) isOutput()   {}
func (Unrecognized) isOutput()  {}

// Has reports whether the display carries the mime type.
func (d DisplayOutput) Has(mime string) bool {
	_, ok := d.Data[mime]
	return ok
}

// Text returns the display value for mime when it is a JSON string.
// Multi-line values sent as string arrays are joined.
func (d DisplayOutput) Text(mime string) (string, bool) {
	raw, ok := d.Data[mime]
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, true
	}
	var lines []string
	if err := json.Unmarshal(raw, &lines); err == nil {
		out := ""
		for _, l := range lines {
			out += l
		}
		return out, true
	}
	return "", false
}

// Decode maps a message onto its Output shape.
func Decode(m Message) Output {
	msgType := m.Type()
	var (
		out Output
		err error
	)
	switch msgType {
	case MsgStream:
		var v StreamOutput
		err = json.Unmarshal(m.Content, &v)
		out = v
	case MsgDisplayData, MsgExecuteResult:
		var v DisplayOutput
		err = json.Unmarshal(m.Content, &v)
		out = v
	case MsgError:
		var v ErrorOutput
		err = json.Unmarshal(m.Content, &v)
		out = v
	case MsgStatus:
		var v StatusOutput
		err = json.Unmarshal(m.Content, &v)
		out = v
	case MsgExecuteReply, MsgKernelInfoReply:
		var v ReplyOutput
		err = json.Unmarshal(m.Content, &v)
		out = v
	default:
		return Unrecognized{MsgType: msgType, Reason: "unknown message type"}
	}
	if err != nil {
		return Unrecognized{MsgType: msgType, Reason: err.Error()}
	}
	return out
}

// isIdle reports whether m is the broadcast status closing an execution.
func isIdle(m Message) bool {
	st, ok := Decode(m).(StatusOutput)
	return ok && st.ExecutionState == "idle"
}
