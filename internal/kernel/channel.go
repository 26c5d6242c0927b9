package kernel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"git.home.luguber.info/inful/sagecache/internal/logfields"
)

// maxMessageSize bounds one websocket frame; inline images are large.
const maxMessageSize = 64 << 20

// Channel is one logical kernel channel.
type Channel interface {
	Send(ctx context.Context, msg Message) error
	// Receive blocks until a message arrives or ctx ends.
	Receive(ctx context.Context) (Message, error)
	Close() error
}

// ErrChannelClosed is returned by Receive after the channel has been closed.
var ErrChannelClosed = errors.New("kernel channel closed")

func dial(ctx context.Context, url string, header http.Header, client *http.Client) (*websocket.Conn, error) {
	if client != nil && client.Timeout > 0 {
		// A client timeout would cut the upgraded connection; bound the handshake instead.
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, client.Timeout)
		defer cancel()
		c := *client
		c.Timeout = 0
		client = &c
	}
	conn, resp, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		HTTPHeader: header,
		HTTPClient: client,
	})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	conn.SetReadLimit(maxMessageSize)
	return conn, nil
}

// wsChannel is a channel with a socket of its own.
type wsChannel struct {
	conn *websocket.Conn
}

func dialChannel(ctx context.Context, url string, header http.Header, client *http.Client) (*wsChannel, error) {
	conn, err := dial(ctx, url, header, client)
	if err != nil {
		return nil, err
	}
	return &wsChannel{conn: conn}, nil
}

func (c *wsChannel) Send(ctx context.Context, msg Message) error {
	return wsjson.Write(ctx, c.conn, msg)
}

func (c *wsChannel) Receive(ctx context.Context) (Message, error) {
	var msg Message
	if err := wsjson.Read(ctx, c.conn, &msg); err != nil {
		return Message{}, err
	}
	return msg, nil
}

func (c *wsChannel) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "")
}

// muxConn carries every logical channel over one socket, routed by the
// message "channel" field.
type muxConn struct {
	conn   *websocket.Conn
	cancel context.CancelFunc

	mu     sync.Mutex
	queues map[string]chan Message
	done   chan struct{}
	err    error
}

const muxQueueSize = 1024

func dialMux(ctx context.Context, url string, header http.Header, client *http.Client) (*muxConn, error) {
	conn, err := dial(ctx, url, header, client)
	if err != nil {
		return nil, err
	}
	// The read loop outlives the dial context.
	readCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	m := &muxConn{
		conn:   conn,
		cancel: cancel,
		queues: map[string]chan Message{},
		done:   make(chan struct{}),
	}
	go m.readLoop(readCtx)
	return m, nil
}

func (m *muxConn) queue(name string) chan Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.queues[name]
	if !ok {
		q = make(chan Message, muxQueueSize)
		m.queues[name] = q
	}
	return q
}

func (m *muxConn) readLoop(ctx context.Context) {
	defer close(m.done)
	for {
		_, data, err := m.conn.Read(ctx)
		if err != nil {
			m.mu.Lock()
			m.err = err
			m.mu.Unlock()
			return
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		q := m.queue(msg.Channel)
		if drained(msg.Channel) {
			// Dropping here would lose output or the reply that ends a request.
			select {
			case q <- msg:
			case <-ctx.Done():
				return
			}
			continue
		}
		select {
		case q <- msg:
		default:
			slog.Warn("Dropping kernel message; channel queue full",
				slog.String("channel", msg.Channel), logfields.MsgType(msg.Type()))
		}
	}
}

// drained reports whether a client reads the channel for every request.
func drained(channel string) bool {
	return channel == ChannelShell || channel == ChannelIOPub
}

// Channel returns the logical channel name carried by this socket.
func (m *muxConn) Channel(name string) Channel {
	return &muxChannel{mux: m, name: name}
}

func (m *muxConn) Close() error {
	err := m.conn.Close(websocket.StatusNormalClosure, "")
	m.cancel()
	<-m.done
	return err
}

type muxChannel struct {
	mux  *muxConn
	name string
}

func (c *muxChannel) Send(ctx context.Context, msg Message) error {
	msg.Channel = c.name
	return wsjson.Write(ctx, c.mux.conn, msg)
}

func (c *muxChannel) Receive(ctx context.Context) (Message, error) {
	q := c.mux.queue(c.name)
	select {
	case msg := <-q:
		return msg, nil
	case <-ctx.Done():
		return Message{}, ctx.Err()
	case <-c.mux.done:
		// Deliver what was queued before the socket went away.
		select {
		case msg := <-q:
			return msg, nil
		default:
		}
		c.mux.mu.Lock()
		err := c.mux.err
		c.mux.mu.Unlock()
		if err == nil {
			err = ErrChannelClosed
		}
		return Message{}, err
	}
}

// Close is a no-op; the socket is closed through the owning muxConn.
func (c *muxChannel) Close() error { return nil }
