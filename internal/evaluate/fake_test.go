package evaluate

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"git.home.luguber.info/inful/sagecache/internal/kernel"
	"git.home.luguber.info/inful/sagecache/internal/metrics"
	"git.home.luguber.info/inful/sagecache/internal/notify"
	"git.home.luguber.info/inful/sagecache/internal/result"
)

// fakeKernels hands out fakeClients that interpret a tiny language:
// "name = value", "print(name)" and "raise Name".
type fakeKernels struct {
	mu      sync.Mutex
	clients []*fakeClient
	// failures counts how many more times executing a given code fails.
	failures map[string]int
	// block, when set, stalls every Execute until it is closed.
	block   chan struct{}
	started chan struct{}
}

func newFakeKernels() *fakeKernels {
	return &fakeKernels{failures: map[string]int{}}
}

func (k *fakeKernels) failTimes(code string, n int) {
	k.mu.Lock()
	k.failures[code] = n
	k.mu.Unlock()
}

func (k *fakeKernels) New() Client {
	k.mu.Lock()
	defer k.mu.Unlock()
	c := &fakeClient{kernels: k, ns: map[string]string{}}
	k.clients = append(k.clients, c)
	return c
}

func (k *fakeKernels) shouldFail(code string) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.failures[code] > 0 {
		k.failures[code]--
		return true
	}
	return false
}

func (k *fakeKernels) all() []*fakeClient {
	k.mu.Lock()
	defer k.mu.Unlock()
	return append([]*fakeClient(nil), k.clients...)
}

type fakeClient struct {
	kernels *fakeKernels

	mu       sync.Mutex
	ns       map[string]string
	executed []string
	resets   int
	cleanups int
}

func (c *fakeClient) Execute(ctx context.Context, code string, _ ...kernel.ExecuteOption) (kernel.Response, error) {
	if c.kernels.block != nil {
		if c.kernels.started != nil {
			select {
			case c.kernels.started <- struct{}{}:
			default:
			}
		}
		select {
		case <-c.kernels.block:
		case <-ctx.Done():
			return kernel.Response{}, ctx.Err()
		}
	}
	if c.kernels.shouldFail(code) {
		return kernel.Response{}, fmt.Errorf("channel read timed out")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.executed = append(c.executed, code)
	resp := kernel.Response{KernelURL: "wss://cell.example.org/kernel/k1/"}
	switch {
	case strings.HasPrefix(code, "print(") && strings.HasSuffix(code, ")"):
		name := strings.TrimSuffix(strings.TrimPrefix(code, "print("), ")")
		v, ok := c.ns[name]
		if !ok && isNumber(name) {
			v, ok = name, true
		}
		if !ok {
			resp.IOPub = append(resp.IOPub, iopubMessage(kernel.MsgError, kernel.ErrorOutput{
				EName: "NameError", EValue: fmt.Sprintf("name '%s' is not defined", name),
				Traceback: []string{"Traceback", "NameError"},
			}))
			break
		}
		resp.IOPub = append(resp.IOPub, iopubMessage(kernel.MsgStream, kernel.StreamOutput{Name: "stdout", Text: v + "\n"}))
	case strings.HasPrefix(code, "raise "):
		name := strings.TrimPrefix(code, "raise ")
		resp.IOPub = append(resp.IOPub, iopubMessage(kernel.MsgError, kernel.ErrorOutput{
			EName: name, Traceback: []string{"Traceback", name},
		}))
	case strings.Contains(code, "="):
		name, value, _ := strings.Cut(code, "=")
		c.ns[strings.TrimSpace(name)] = strings.TrimSpace(value)
	}
	resp.IOPub = append(resp.IOPub, iopubMessage(kernel.MsgStatus, kernel.StatusOutput{ExecutionState: "idle"}))
	return resp, nil
}

func (c *fakeClient) Classify(resp kernel.Response) []result.Result {
	return kernel.Classify(resp)
}

func (c *fakeClient) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resets++
	c.ns = map[string]string{}
}

func (c *fakeClient) Cleanup(context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cleanups++
}

func (c *fakeClient) stats() (executed []string, resets, cleanups int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.executed...), c.resets, c.cleanups
}

func isNumber(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func iopubMessage(msgType string, content any) kernel.Message {
	raw, err := json.Marshal(content)
	if err != nil {
		panic(err)
	}
	return kernel.Message{
		Header:  kernel.Header{MsgID: msgType + "-1", MsgType: msgType},
		Content: raw,
		Channel: kernel.ChannelIOPub,
	}
}

type countingRecorder struct {
	metrics.NoopRecorder

	mu       sync.Mutex
	outcomes map[metrics.GroupOutcome]int
	retries  int
	passes   int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{outcomes: map[metrics.GroupOutcome]int{}}
}

func (r *countingRecorder) IncGroupOutcome(o metrics.GroupOutcome) {
	r.mu.Lock()
	r.outcomes[o]++
	r.mu.Unlock()
}

func (r *countingRecorder) IncKernelRetry(string) {
	r.mu.Lock()
	r.retries++
	r.mu.Unlock()
}

func (r *countingRecorder) ObservePassDuration(time.Duration) {
	r.mu.Lock()
	r.passes++
	r.mu.Unlock()
}

type recordingNotifier struct {
	mu      sync.Mutex
	sources []notify.SourceEvaluated
	passes  []notify.PassCompleted
}

func (n *recordingNotifier) SourceEvaluated(_ context.Context, ev notify.SourceEvaluated) error {
	n.mu.Lock()
	n.sources = append(n.sources, ev)
	n.mu.Unlock()
	return nil
}

func (n *recordingNotifier) PassCompleted(_ context.Context, ev notify.PassCompleted) error {
	n.mu.Lock()
	n.passes = append(n.passes, ev)
	n.mu.Unlock()
	return nil
}

func (n *recordingNotifier) Close() error { return nil }
