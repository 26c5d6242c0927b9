package kernel

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/sagecache/internal/result"
)

func iopubMsg(t *testing.T, msgType string, content any) Message {
	t.Helper()
	raw, err := json.Marshal(content)
	require.NoError(t, err)
	return Message{Header: Header{MsgType: msgType}, Content: raw}
}

func TestClassifyMessages(t *testing.T) {
	msgs := []Message{
		iopubMsg(t, MsgStatus, map[string]string{"execution_state": "busy"}),
		iopubMsg(t, MsgStream, map[string]string{"name": "stdout", "text": "hello "}),
		iopubMsg(t, MsgDisplayData, map[string]any{"data": map[string]any{"image/png": "iVBOR", "text/plain": "<Figure>"}}),
		iopubMsg(t, MsgDisplayData, map[string]any{"data": map[string]any{"text/html": "<b>x</b>", "text/plain": "x"}}),
		iopubMsg(t, MsgDisplayData, map[string]any{"data": map[string]any{"text/image-filename": "sage0.png"}}),
		iopubMsg(t, MsgDisplayData, map[string]any{"data": map[string]any{"text/plain": "", "application/sage-interact": map[string]any{"new_interact_id": "1"}}}),
		iopubMsg(t, MsgExecuteResult, map[string]any{"data": map[string]any{"text/plain": "42"}}),
		iopubMsg(t, "comm_open", map[string]any{}),
		iopubMsg(t, MsgError, map[string]any{"ename": "ZeroDivisionError", "evalue": "division by zero", "traceback": []string{"line 1", "line 2"}}),
		iopubMsg(t, MsgStatus, map[string]string{"execution_state": "idle"}),
	}

	got := ClassifyMessages("ws://cell.example/kernel/k1/", msgs)
	require.Equal(t, []result.Result{
		result.Stream{Order: 2, Mime: result.MimeTextPlain, Data: "hello "},
		result.Stream{Order: 3, Mime: result.MimeImagePNG, Data: "iVBOR"},
		result.Stream{Order: 4, Mime: result.MimeTextHTML, Data: "<b>x</b>"},
		result.Image{Order: 5, Mime: result.MimeImageFilename, Name: "sage0.png", URL: "http://cell.example/kernel/k1/files/sage0.png"},
		result.Stream{Order: 7, Mime: result.MimeTextPlain, Data: "42"},
		result.Error{Order: 9, EName: "ZeroDivisionError", EValue: "division by zero", Traceback: "line 1\nline 2"},
	}, got)
}

func TestClassify_MergesAdjacentStreams(t *testing.T) {
	resp := Response{
		KernelURL: "ws://cell/kernel/k/",
		IOPub: []Message{
			iopubMsg(t, MsgStream, map[string]string{"text": "a"}),
			iopubMsg(t, MsgStream, map[string]string{"text": "b"}),
			iopubMsg(t, MsgDisplayData, map[string]any{"data": map[string]any{"text/image-filename": "p.png"}}),
			iopubMsg(t, MsgStream, map[string]string{"text": "c"}),
		},
	}
	got := Classify(resp)
	require.Len(t, got, 3)
	assert.Equal(t, result.Stream{Order: 0, Mime: result.MimeTextPlain, Data: "ab"}, got[0])
	assert.Equal(t, 1, got[1].Position())
	assert.Equal(t, result.KindImage, got[1].Kind())
	assert.Equal(t, result.Stream{Order: 2, Mime: result.MimeTextPlain, Data: "c"}, got[2])

	assert.Equal(t, got, result.Combine(got))
}

func TestDecode(t *testing.T) {
	assert.Equal(t, StatusOutput{ExecutionState: "idle"},
		Decode(iopubMsg(t, MsgStatus, map[string]string{"execution_state": "idle"})))

	legacy := Message{MsgType: MsgStream, Content: json.RawMessage(`{"text":"x"}`)}
	assert.Equal(t, StreamOutput{Text: "x"}, Decode(legacy))

	bad := Message{Header: Header{MsgType: MsgError}, Content: json.RawMessage(`{"traceback": 3}`)}
	u, ok := Decode(bad).(Unrecognized)
	require.True(t, ok)
	assert.Equal(t, MsgError, u.MsgType)

	_, ok = Decode(Message{Header: Header{MsgType: "clear_output"}}).(Unrecognized)
	assert.True(t, ok)
}

func TestDisplayOutputText_JoinsLines(t *testing.T) {
	d := DisplayOutput{Data: map[string]json.RawMessage{"text/html": json.RawMessage(`["<p>", "x", "</p>"]`)}}
	s, ok := d.Text("text/html")
	require.True(t, ok)
	assert.Equal(t, "<p>x</p>", s)
}

func TestFileURL(t *testing.T) {
	assert.Equal(t, "https://h/k/files/a.png", FileURL("wss://h/k/", "a.png"))
	assert.Equal(t, "http://h/k/files/a.png", FileURL("ws://h/k", "a.png"))
}

func TestResponseStatus(t *testing.T) {
	resp := Response{Shell: []Message{iopubMsg(t, MsgExecuteReply, map[string]string{"status": "error"})}}
	assert.Equal(t, "error", resp.Status())
	assert.Empty(t, Response{}.Status())
}

func TestMessageRepliesTo(t *testing.T) {
	parented := func(msgType, parent string) Message {
		return Message{Header: Header{MsgType: msgType}, ParentHeader: Header{MsgID: parent}}
	}
	tests := []struct {
		name string
		msg  Message
		want bool
	}{
		{"own output", parented(MsgStream, "req"), true},
		{"own idle", parented(MsgStatus, "req"), true},
		{"other request", parented(MsgStream, "other"), false},
		{"parentless output", parented(MsgStream, ""), true},
		{"parentless status", parented(MsgStatus, ""), false},
		{"parentless reply", parented(MsgExecuteReply, ""), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.msg.RepliesTo("req"))
		})
	}
}
