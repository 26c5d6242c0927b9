package kernel

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"git.home.luguber.info/inful/sagecache/internal/foundation/errors"
	"git.home.luguber.info/inful/sagecache/internal/logfields"
	"git.home.luguber.info/inful/sagecache/internal/result"
)

// State is the lifecycle position of a Client.
type State int

const (
	StateUnconnected State = iota
	StateSessionOpen
	StateExecuting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnconnected:
		return "unconnected"
	case StateSessionOpen:
		return "session_open"
	case StateExecuting:
		return "executing"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// DefaultTimeout bounds a single channel read.
const DefaultTimeout = 10 * time.Second

// session is an open connection to one remote kernel.
type session struct {
	id        string
	kernelID  string
	kernelURL string
	shell     Channel
	iopub     Channel
	closeFn   func() error
}

func (s *session) close() error {
	if s.closeFn != nil {
		return s.closeFn()
	}
	var first error
	for _, ch := range []Channel{s.shell, s.iopub} {
		if ch == nil {
			continue
		}
		if err := ch.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// backend performs the server-specific parts of the protocol.
type backend interface {
	name() string
	open(ctx context.Context) (*session, error)
	keepAlive(code string) string
	executeContent(code string, storeHistory bool) ExecuteContent
	// release frees server-side resources of an open session.
	release(ctx context.Context, s *session) error
}

// Client runs code on one remote kernel session. A Client is bound to a
// single namespace and must not be shared between goroutines that expect
// independent sessions.
type Client struct {
	backend  backend
	platform string
	timeout  time.Duration

	mu    sync.Mutex
	state State
	sess  *session
}

func newClient(b backend, platform string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{backend: b, platform: platform, timeout: timeout}
}

// Platform returns the platform tag the client serves.
func (c *Client) Platform() string { return c.platform }

// State returns the current lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// KernelURL returns the base channel URL of the open session, or "".
func (c *Client) KernelURL() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil {
		return ""
	}
	return c.sess.kernelURL
}

// CreateSession performs the backend handshake and opens both channels.
func (c *Client) CreateSession(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.createSessionLocked(ctx)
}

func (c *Client) createSessionLocked(ctx context.Context) error {
	switch c.state {
	case StateSessionOpen, StateExecuting:
		return errors.KernelError("session already open").WithContext("platform", c.platform).Build()
	case StateClosed:
		return errors.KernelError("client closed").WithContext("platform", c.platform).Build()
	}
	sess, err := c.backend.open(ctx)
	if err != nil {
		return errors.KernelError("create session").WithCause(err).Immediate().
			WithContext("platform", c.platform).WithContext("backend", c.backend.name()).Build()
	}
	c.sess = sess
	c.state = StateSessionOpen
	slog.Debug("Kernel session opened", logfields.Platform(c.platform), logfields.KernelURL(sess.kernelURL))
	return nil
}

// ExecuteOption adjusts one execute_request.
type ExecuteOption func(*executeOptions)

type executeOptions struct {
	storeHistory bool
}

// WithStoreHistory asks the kernel to record the code in its history.
func WithStoreHistory() ExecuteOption {
	return func(o *executeOptions) { o.storeHistory = true }
}

// Execute submits code and collects the messages of both channels until the
// shell reports execute_reply and the broadcast channel reports idle. The
// first call opens the session and prefixes the backend keep-alive.
func (c *Client) Execute(ctx context.Context, code string, opts ...ExecuteOption) (Response, error) {
	var o executeOptions
	for _, opt := range opts {
		opt(&o)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateUnconnected {
		if err := c.createSessionLocked(ctx); err != nil {
			return Response{}, err
		}
		code = c.backend.keepAlive(code)
	}
	if c.state != StateSessionOpen {
		return Response{}, errors.KernelError("execute in state " + c.state.String()).Build()
	}

	c.state = StateExecuting
	resp, err := c.exchange(ctx, code, o)
	if err != nil {
		// The session is unusable until Reset.
		return resp, errors.KernelError("execute").WithCause(err).Immediate().
			WithContext("platform", c.platform).WithContext("kernel_url", c.sess.kernelURL).Build()
	}
	c.state = StateSessionOpen
	return resp, nil
}

func (c *Client) exchange(ctx context.Context, code string, o executeOptions) (Response, error) {
	sess := c.sess
	resp := Response{KernelURL: sess.kernelURL}

	req, err := newMessage(MsgExecuteRequest, sess.id, ChannelShell, c.backend.executeContent(code, o.storeHistory))
	if err != nil {
		return resp, fmt.Errorf("build execute request: %w", err)
	}
	if err := sess.shell.Send(ctx, req); err != nil {
		return resp, fmt.Errorf("send execute request: %w", err)
	}

	parent := req.Header.MsgID
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		msgs, err := c.drain(gctx, sess.shell, parent, func(m Message) bool {
			return m.Type() == MsgExecuteReply
		})
		resp.Shell = msgs
		return err
	})
	g.Go(func() error {
		msgs, err := c.drain(gctx, sess.iopub, parent, isIdle)
		resp.IOPub = msgs
		return err
	})
	err = g.Wait()
	return resp, err
}

// drain reads ch until done matches, applying the read timeout to every read.
func (c *Client) drain(ctx context.Context, ch Channel, parent string, done func(Message) bool) ([]Message, error) {
	var msgs []Message
	for {
		rctx, cancel := context.WithTimeout(ctx, c.timeout)
		msg, err := ch.Receive(rctx)
		cancel()
		if err != nil {
			return msgs, err
		}
		if !msg.RepliesTo(parent) {
			continue
		}
		msgs = append(msgs, msg)
		if done(msg) {
			return msgs, nil
		}
	}
}

// Classify turns a response into merged results.
func (c *Client) Classify(resp Response) []result.Result {
	return Classify(resp)
}

// KernelInfo sends a kernel_info_request and returns the reply. The session
// must be open.
func (c *Client) KernelInfo(ctx context.Context) (Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateSessionOpen {
		return Message{}, errors.KernelError("kernel info in state " + c.state.String()).Build()
	}
	req, err := newMessage(MsgKernelInfoRequest, c.sess.id, ChannelShell, struct{}{})
	if err != nil {
		return Message{}, err
	}
	if err := c.sess.shell.Send(ctx, req); err != nil {
		return Message{}, errors.KernelError("send kernel info request").WithCause(err).Immediate().Build()
	}
	msgs, err := c.drain(ctx, c.sess.shell, req.Header.MsgID, func(m Message) bool {
		return m.Type() == MsgKernelInfoReply
	})
	if err != nil {
		return Message{}, errors.KernelError("kernel info").WithCause(err).Immediate().Build()
	}
	return msgs[len(msgs)-1], nil
}

// Reset drops the session so the next Execute opens a fresh one.
func (c *Client) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess != nil {
		if err := c.sess.close(); err != nil {
			slog.Debug("Closing kernel channels on reset", logfields.Platform(c.platform), logfields.Error(err))
		}
	}
	c.sess = nil
	if c.state != StateClosed {
		c.state = StateUnconnected
	}
}

// Cleanup releases the session. Failures are logged and never returned.
func (c *Client) Cleanup(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess != nil {
		if err := c.backend.release(ctx, c.sess); err != nil {
			slog.Warn("Kernel session release failed", logfields.Platform(c.platform),
				logfields.KernelURL(c.sess.kernelURL), logfields.Error(err))
		}
		if err := c.sess.close(); err != nil {
			slog.Warn("Kernel channel close failed", logfields.Platform(c.platform), logfields.Error(err))
		}
		c.sess = nil
	}
	c.state = StateClosed
}
