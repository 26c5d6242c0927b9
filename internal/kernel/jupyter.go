package kernel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// jupyter speaks the Jupyter server REST + channels protocol: a session is
// created over REST and every channel shares one socket.
type jupyter struct {
	baseURL    string
	kernelName string
	http       *http.Client
	header     http.Header
}

func (b *jupyter) name() string { return KindJupyter }

func (b *jupyter) keepAlive(code string) string { return code }

func (b *jupyter) executeContent(code string, storeHistory bool) ExecuteContent {
	return ExecuteContent{
		Code:            code,
		StoreHistory:    storeHistory,
		UserVariables:   []string{},
		UserExpressions: map[string]string{},
	}
}

type jupyterSessionRequest struct {
	Path   string            `json:"path"`
	Name   string            `json:"name"`
	Type   string            `json:"type"`
	Kernel map[string]string `json:"kernel"`
}

type jupyterSession struct {
	ID     string `json:"id"`
	Kernel struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"kernel"`
}

func (b *jupyter) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range b.header {
		req.Header[k] = v
	}
	return b.http.Do(req)
}

func (b *jupyter) open(ctx context.Context) (*session, error) {
	name := "sagecache-" + uuid.NewString() + ".ipynb"
	resp, err := b.do(ctx, http.MethodPost, "api/sessions", jupyterSessionRequest{
		Path:   name,
		Name:   name,
		Type:   "notebook",
		Kernel: map[string]string{"name": b.kernelName},
	})
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("create session: unexpected status %d", resp.StatusCode)
	}
	var js jupyterSession
	if err := json.NewDecoder(resp.Body).Decode(&js); err != nil {
		return nil, fmt.Errorf("decode session response: %w", err)
	}
	if js.ID == "" || js.Kernel.ID == "" {
		return nil, fmt.Errorf("session response missing id or kernel id")
	}

	kernelURL := wsScheme(b.baseURL) + "api/kernels/" + js.Kernel.ID + "/"
	mux, err := dialMux(ctx, kernelURL+"channels?session_id="+js.ID, b.header, b.http)
	if err != nil {
		return nil, err
	}
	return &session{
		id:        js.ID,
		kernelID:  js.Kernel.ID,
		kernelURL: kernelURL,
		shell:     mux.Channel(ChannelShell),
		iopub:     mux.Channel(ChannelIOPub),
		closeFn:   mux.Close,
	}, nil
}

// release asks the kernel to shut down and deletes the server-side session.
func (b *jupyter) release(ctx context.Context, s *session) error {
	msg, err := newMessage(MsgShutdownRequest, s.id, ChannelShell, map[string]bool{"restart": false})
	if err != nil {
		return err
	}
	sendErr := s.shell.Send(ctx, msg)

	resp, err := b.do(ctx, http.MethodDelete, "api/sessions/"+s.id, nil)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode/100 != 2 && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("delete session: unexpected status %d", resp.StatusCode)
	}
	if sendErr != nil {
		return fmt.Errorf("send shutdown request: %w", sendErr)
	}
	return nil
}

func wsScheme(u string) string {
	switch {
	case strings.HasPrefix(u, "https://"):
		return "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		return "ws://" + strings.TrimPrefix(u, "http://")
	default:
		return u
	}
}
