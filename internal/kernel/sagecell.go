package kernel

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// sageCellKeepAlive keeps Sage Cell from reaping a kernel that has no interact.
const sageCellKeepAlive = "interact(lambda : None)\n"

// sageCell speaks the Sage Cell Server protocol: a form POST creates the
// kernel, and shell and iopub each get their own socket.
type sageCell struct {
	baseURL string
	http    *http.Client
	header  http.Header
}

func (b *sageCell) name() string { return KindSageCell }

func (b *sageCell) keepAlive(code string) string { return sageCellKeepAlive + code }

func (b *sageCell) executeContent(code string, storeHistory bool) ExecuteContent {
	return ExecuteContent{
		Code:            code,
		StoreHistory:    storeHistory,
		UserVariables:   []string{},
		UserExpressions: map[string]string{"_sagecell_files": "sys._sage_.new_files()"},
	}
}

type sageCellKernel struct {
	ID    string `json:"id"`
	WSURL string `json:"ws_url"`
}

func (b *sageCell) open(ctx context.Context) (*session, error) {
	form := url.Values{"accepted_tos": {"true"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"kernel", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	for k, v := range b.header {
		req.Header[k] = v
	}

	resp, err := b.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("create kernel: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("create kernel: unexpected status %d", resp.StatusCode)
	}
	var k sageCellKernel
	if err := json.NewDecoder(resp.Body).Decode(&k); err != nil {
		return nil, fmt.Errorf("decode kernel response: %w", err)
	}
	if k.ID == "" || k.WSURL == "" {
		return nil, fmt.Errorf("kernel response missing id or ws_url")
	}

	wsBase := k.WSURL
	if !strings.HasSuffix(wsBase, "/") {
		wsBase += "/"
	}
	kernelURL := wsBase + "kernel/" + k.ID + "/"
	header := b.header.Clone()
	if header == nil {
		header = http.Header{}
	}
	header.Set("Jupyter-Kernel-ID", k.ID)

	shell, err := dialChannel(ctx, kernelURL+ChannelShell, header, b.http)
	if err != nil {
		return nil, err
	}
	iopub, err := dialChannel(ctx, kernelURL+ChannelIOPub, header, b.http)
	if err != nil {
		_ = shell.Close()
		return nil, err
	}
	return &session{id: k.ID, kernelID: k.ID, kernelURL: kernelURL, shell: shell, iopub: iopub}, nil
}

// release is a no-op: Sage Cell reaps kernels once their sockets close.
func (b *sageCell) release(context.Context, *session) error { return nil }
