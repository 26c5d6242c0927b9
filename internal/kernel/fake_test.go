package kernel

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/require"
)

// outputFunc returns the broadcast messages a fake kernel emits for code.
type outputFunc func(code string) []Message

func reply(parent Message, msgType string, content any) Message {
	raw, _ := json.Marshal(content)
	return Message{
		Header:       Header{MsgID: fmt.Sprintf("%s-%d", msgType, time.Now().UnixNano()), MsgType: msgType},
		ParentHeader: parent.Header,
		Content:      raw,
	}
}

func streamOut(text string) Message {
	raw, _ := json.Marshal(map[string]string{"name": "stdout", "text": text})
	return Message{Header: Header{MsgType: MsgStream}, Content: raw}
}

func echoOutputs(code string) []Message {
	code = strings.TrimPrefix(code, sageCellKeepAlive)
	if strings.HasPrefix(code, "print(") {
		return []Message{streamOut(strings.TrimSuffix(strings.TrimPrefix(code, "print("), ")"))}
	}
	return nil
}

// fakeSageCell serves the Sage Cell kernel API from an httptest server.
type fakeSageCell struct {
	t       *testing.T
	srv     *httptest.Server
	outputs outputFunc

	mu      sync.Mutex
	kernels int
	codes   []string
	silent  map[int]bool // kernel numbers that never answer
	iopubs  map[string]chan *websocket.Conn
	stray   bool // emit a broadcast message for an unrelated request first
	orphan  bool // emit a parentless idle status before the output
}

func newFakeSageCell(t *testing.T, outputs outputFunc) *fakeSageCell {
	t.Helper()
	f := &fakeSageCell{t: t, outputs: outputs, silent: map[int]bool{}, iopubs: map[string]chan *websocket.Conn{}}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /kernel", f.createKernel)
	mux.HandleFunc("/kernel/{id}/iopub", f.iopub)
	mux.HandleFunc("/kernel/{id}/shell", f.shell)
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeSageCell) URL() string { return f.srv.URL + "/" }

func (f *fakeSageCell) iopubQueue(id string) chan *websocket.Conn {
	f.mu.Lock()
	defer f.mu.Unlock()
	q, ok := f.iopubs[id]
	if !ok {
		q = make(chan *websocket.Conn, 1)
		f.iopubs[id] = q
	}
	return q
}

func (f *fakeSageCell) createKernel(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil || r.PostForm.Get("accepted_tos") != "true" {
		http.Error(w, "terms not accepted", http.StatusForbidden)
		return
	}
	f.mu.Lock()
	f.kernels++
	id := fmt.Sprintf("k%d", f.kernels)
	f.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"id":     id,
		"ws_url": "ws://" + r.Host + "/",
	})
}

func (f *fakeSageCell) iopub(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer conn.CloseNow()
	f.iopubQueue(r.PathValue("id")) <- conn
	for {
		if _, _, err := conn.Read(r.Context()); err != nil {
			return
		}
	}
}

func (f *fakeSageCell) shell(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(maxMessageSize)
	ctx := r.Context()
	id := r.PathValue("id")

	var iopub *websocket.Conn
	select {
	case iopub = <-f.iopubQueue(id):
	case <-time.After(2 * time.Second):
		f.t.Errorf("iopub socket for %s never connected", id)
		return
	}

	for {
		var req Message
		if err := wsjson.Read(ctx, conn, &req); err != nil {
			return
		}
		var content ExecuteContent
		_ = json.Unmarshal(req.Content, &content)

		f.mu.Lock()
		f.codes = append(f.codes, content.Code)
		silent := f.silent[kernelNumber(id)]
		stray, orphan := f.stray, f.orphan
		f.mu.Unlock()
		if silent {
			continue
		}

		if stray {
			other := Message{Header: Header{MsgID: "someone-else"}}
			_ = wsjson.Write(ctx, iopub, reply(other, MsgStream, map[string]string{"text": "noise"}))
		}
		_ = wsjson.Write(ctx, iopub, reply(req, MsgStatus, map[string]string{"execution_state": "busy"}))
		if orphan {
			_ = wsjson.Write(ctx, iopub, reply(Message{}, MsgStatus, map[string]string{"execution_state": "idle"}))
		}
		// The reply overtakes the broadcast output.
		_ = wsjson.Write(ctx, conn, reply(req, MsgExecuteReply, map[string]string{"status": "ok"}))
		for _, out := range f.outputs(content.Code) {
			out.ParentHeader = req.Header
			_ = wsjson.Write(ctx, iopub, out)
		}
		_ = wsjson.Write(ctx, iopub, reply(req, MsgStatus, map[string]string{"execution_state": "idle"}))
	}
}

func kernelNumber(id string) int {
	var n int
	_, _ = fmt.Sscanf(id, "k%d", &n)
	return n
}

func (f *fakeSageCell) Codes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.codes...)
}

func (f *fakeSageCell) Kernels() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.kernels
}

func (f *fakeSageCell) Silence(kernel int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.silent[kernel] = true
}

func newTestClient(t *testing.T, cfg Config) *Client {
	t.Helper()
	factory, err := NewFactory(cfg)
	require.NoError(t, err)
	return factory.New()
}
