// Package client speaks the tracker's websocket protocol for headless tools.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// DefaultPath is the hub endpoint served by the tracker.
const DefaultPath = "/ws/server-tracker"

// Message types pushed by the hub.
const (
	TypeEnvironmentsAll       = "ENV_RECV_ALL"
	TypeServersAll            = "SERVERS_RECV_ALL"
	TypeServersForEnvironment = "SERVERS_RECV_FOR_ENV"
	TypeServerError           = "ERR_SERVER"
)

// ErrClosed is returned once the connection has gone away.
var ErrClosed = errors.New("client: connection closed")

// Environment mirrors the tracker's environment payload.
type Environment struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// Server mirrors the tracker's server payload.
type Server struct {
	ID              int64     `json:"id"`
	EnvironmentID   int64     `json:"environmentId"`
	Name            string    `json:"name"`
	DomainName      string    `json:"domainName"`
	IPAddress       string    `json:"ipAddress"`
	OperatingSystem string    `json:"operatingSystem"`
	CreatedAt       time.Time `json:"createdAt"`
}

// Message is a frame received from the hub.
type Message struct {
	Type    string          `json:"type"`
	Data    json.RawMessage `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`
}

// ServerError is an ERR_SERVER reply.
type ServerError struct {
	Message string
}

func (e ServerError) Error() string {
	return "tracker: " + e.Message
}

// Client holds connection settings.
type Client struct {
	endpoint string
	dialer   *websocket.Dialer
	header   http.Header
}

// Option customises client instantiation.
type Option func(*Client)

// WithDialer overrides the default websocket dialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(c *Client) {
		if d != nil {
			c.dialer = d
		}
	}
}

// WithOrigin sets the Origin header sent on the handshake.
func WithOrigin(origin string) Option {
	return func(c *Client) {
		if origin != "" {
			c.header.Set("Origin", origin)
		}
	}
}

// New constructs a Client for base, which may be a host:port, an http(s)
// URL or a ws(s) URL. Without a path the hub endpoint is used.
func New(base string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimSpace(base)
	if trimmed == "" {
		trimmed = "localhost:5000"
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "ws://" + trimmed
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("invalid tracker url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported tracker url scheme %q", u.Scheme)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = DefaultPath
	}
	cli := &Client{
		endpoint: u.String(),
		dialer:   &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		header:   http.Header{},
	}
	for _, opt := range opts {
		opt(cli)
	}
	return cli, nil
}

// Endpoint returns the websocket URL the client dials.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Dial opens a connection to the hub.
func (c *Client) Dial(ctx context.Context) (*Conn, error) {
	ws, resp, err := c.dialer.DialContext(ctx, c.endpoint, c.header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", c.endpoint, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", c.endpoint, err)
	}
	conn := &Conn{
		ws:       ws,
		messages: make(chan Message, 32),
		done:     make(chan struct{}),
	}
	go conn.readLoop()
	return conn, nil
}

// Conn is an open hub connection. Frames pushed by the hub, replies and
// broadcasts alike, arrive on Messages in order.
type Conn struct {
	ws       *websocket.Conn
	writeMu  sync.Mutex
	messages chan Message
	done     chan struct{}
	once     sync.Once
	err      error
}

func (c *Conn) readLoop() {
	defer close(c.messages)
	for {
		var msg Message
		if err := c.ws.ReadJSON(&msg); err != nil {
			c.err = err
			return
		}
		select {
		case c.messages <- msg:
		case <-c.done:
			return
		}
	}
}

// Messages returns the inbound frame stream. It is closed when the
// connection ends.
func (c *Conn) Messages() <-chan Message {
	return c.messages
}

// Close sends a close frame and releases the socket.
func (c *Conn) Close() error {
	var err error
	c.once.Do(func() {
		close(c.done)
		c.writeMu.Lock()
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.ws.Close()
	})
	return err
}

// Invoke sends command with positional args.
func (c *Conn) Invoke(ctx context.Context, command string, args ...any) error {
	raw := make([]json.RawMessage, 0, len(args))
	for i, arg := range args {
		b, err := json.Marshal(arg)
		if err != nil {
			return fmt.Errorf("encode argument %d: %w", i+1, err)
		}
		raw = append(raw, b)
	}
	frame, err := json.Marshal(struct {
		Command string            `json:"command"`
		Args    []json.RawMessage `json:"args"`
	}{command, raw})
	if err != nil {
		return fmt.Errorf("encode invocation: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.ws.SetWriteDeadline(deadline)
		defer c.ws.SetWriteDeadline(time.Time{})
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("send %s: %w", command, err)
	}
	return nil
}

// await returns the next frame of type want, or the next ERR_SERVER as a
// ServerError. The protocol carries no correlation ids, so a broadcast
// triggered by another client can satisfy the wait.
func (c *Conn) await(ctx context.Context, want string) (Message, error) {
	for {
		select {
		case msg, ok := <-c.messages:
			if !ok {
				if c.err != nil {
					return Message{}, fmt.Errorf("%w: %v", ErrClosed, c.err)
				}
				return Message{}, ErrClosed
			}
			switch msg.Type {
			case want:
				return msg, nil
			case TypeServerError:
				return Message{}, ServerError{Message: msg.Message}
			}
		case <-ctx.Done():
			return Message{}, ctx.Err()
		}
	}
}

func call[T any](ctx context.Context, c *Conn, reply, command string, args ...any) (T, error) {
	var out T
	if err := c.Invoke(ctx, command, args...); err != nil {
		return out, err
	}
	msg, err := c.await(ctx, reply)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(msg.Data, &out); err != nil {
		return out, fmt.Errorf("decode %s: %w", reply, err)
	}
	return out, nil
}

// Environments lists all environments.
func (c *Conn) Environments(ctx context.Context) ([]Environment, error) {
	return call[[]Environment](ctx, c, TypeEnvironmentsAll, "GetAllEnvironments")
}

// CreateEnvironment adds an environment and returns the refreshed list.
func (c *Conn) CreateEnvironment(ctx context.Context, name string) ([]Environment, error) {
	return call[[]Environment](ctx, c, TypeEnvironmentsAll, "CreateNewEnvironment", name)
}

// RemoveEnvironment deletes an environment and returns the refreshed list.
func (c *Conn) RemoveEnvironment(ctx context.Context, id int64) ([]Environment, error) {
	return call[[]Environment](ctx, c, TypeEnvironmentsAll, "RemoveEnvironment", id)
}

// Servers lists all servers.
func (c *Conn) Servers(ctx context.Context) ([]Server, error) {
	return call[[]Server](ctx, c, TypeServersAll, "GetAllServers")
}

// ServersForEnvironment lists the servers of one environment.
func (c *Conn) ServersForEnvironment(ctx context.Context, environmentID int64) ([]Server, error) {
	return call[[]Server](ctx, c, TypeServersForEnvironment, "GetServersForEnvironment", environmentID)
}

// CreateServer adds a server and returns the refreshed list.
func (c *Conn) CreateServer(ctx context.Context, server Server) ([]Server, error) {
	return call[[]Server](ctx, c, TypeServersAll, "CreateNewServer", server)
}

// UpdateServer replaces a server and returns the refreshed list.
func (c *Conn) UpdateServer(ctx context.Context, server Server) ([]Server, error) {
	return call[[]Server](ctx, c, TypeServersAll, "UpdateServer", server)
}

// RemoveServer deletes a server and returns the refreshed list.
func (c *Conn) RemoveServer(ctx context.Context, id int64) ([]Server, error) {
	return call[[]Server](ctx, c, TypeServersAll, "RemoveServer", id)
}
