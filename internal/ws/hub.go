package ws

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Options tunes per-connection behaviour.
type Options struct {
	// MaxInflight bounds concurrently processed commands per connection.
	// 1 processes each connection's commands strictly in arrival order.
	MaxInflight  int
	SendBuffer   int
	WriteTimeout time.Duration
}

// Hub tracks connected clients and runs their commands. Membership and
// broadcast fan-out are owned by a single run loop.
type Hub struct {
	clients   map[Subscriber]struct{}
	register  chan Subscriber
	unreg     chan Subscriber
	broadcast chan broadcastRequest
	count     chan chan int
	done      chan struct{}
	closeOnce sync.Once

	// mu guards closed and the conns.Add in Serve against Close's Wait.
	mu     sync.Mutex
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
	conns  sync.WaitGroup

	envs     EnvironmentService
	servers  ServerService
	handlers map[Command]commandHandler
	opts     Options
	log      *slog.Logger
	metrics  *hubMetrics
}

// broadcastRequest is acknowledged once payload is queued to every client.
type broadcastRequest struct {
	payload []byte
	queued  chan struct{}
}

// NewHub creates an initialized Hub and starts its run loop.
func NewHub(envs EnvironmentService, servers ServerService, logger *slog.Logger, opts Options) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxInflight <= 0 {
		opts.MaxInflight = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		clients:   make(map[Subscriber]struct{}),
		register:  make(chan Subscriber),
		unreg:     make(chan Subscriber),
		broadcast: make(chan broadcastRequest),
		count:     make(chan chan int),
		done:      make(chan struct{}),
		ctx:       ctx,
		cancel:    cancel,
		envs:      envs,
		servers:   servers,
		opts:      opts,
		log:       logger.With("component", "hub"),
		metrics:   metrics(),
	}
	h.handlers = h.commandTable()
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.metrics.connected.Inc()
			h.log.Info("client connected", "connection_id", c.ID(), "clients", len(h.clients))
		case c := <-h.unreg:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				h.metrics.connected.Dec()
				h.log.Info("client disconnected", "connection_id", c.ID(), "clients", len(h.clients))
			}
		case req := <-h.broadcast:
			for c := range h.clients {
				if err := c.Send(req.payload); err != nil {
					h.log.Warn("dropping client after failed broadcast", "connection_id", c.ID(), "error", err)
					c.Close()
					delete(h.clients, c)
					h.metrics.connected.Dec()
				}
			}
			close(req.queued)
		case reply := <-h.count:
			reply <- len(h.clients)
		case <-h.done:
			for c := range h.clients {
				c.Close()
				h.metrics.connected.Dec()
			}
			h.clients = nil
			return
		}
	}
}

// Register adds a client to the broadcast set.
func (h *Hub) Register(client Subscriber) {
	select {
	case h.register <- client:
	case <-h.done:
		client.Close()
	}
}

// Unregister removes a client.
func (h *Hub) Unregister(client Subscriber) {
	select {
	case h.unreg <- client:
	case <-h.done:
	}
}

// Broadcast sends payload to every connected client. It returns once the
// payload sits in each client's send queue, so anything a caller sends
// afterwards is delivered after it.
func (h *Hub) Broadcast(payload []byte) {
	req := broadcastRequest{payload: payload, queued: make(chan struct{})}
	select {
	case h.broadcast <- req:
	case <-h.done:
		return
	}
	select {
	case <-req.queued:
	case <-h.done:
	}
}

// Clients reports the number of connected clients.
func (h *Hub) Clients() int {
	reply := make(chan int, 1)
	select {
	case h.count <- reply:
		return <-reply
	case <-h.done:
		return 0
	}
}

// Close disconnects every client and waits for their connections to finish.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()
	h.closeOnce.Do(func() {
		h.cancel()
		close(h.done)
	})
	h.conns.Wait()
}

// Serve runs a websocket connection until the peer disconnects or the hub
// closes. It blocks; callers typically run it on its own goroutine.
func (h *Hub) Serve(conn *websocket.Conn) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	h.conns.Add(1)
	h.mu.Unlock()
	defer h.conns.Done()

	client := NewClient(conn, h.log, h.opts.SendBuffer, h.opts.WriteTimeout)
	go client.writePump()
	h.Register(client)
	defer func() {
		h.Unregister(client)
		client.Close()
	}()
	h.readLoop(client, conn)
}

func (h *Hub) readLoop(client *Client, conn *websocket.Conn) {
	client.prepareRead()

	inflight := make(chan struct{}, h.opts.MaxInflight)
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				client.log.Warn("websocket read failed", "error", err)
			}
			return
		}
		select {
		case inflight <- struct{}{}:
		case <-h.done:
			return
		}
		wg.Add(1)
		go func(frame []byte) {
			defer func() {
				<-inflight
				wg.Done()
			}()
			h.handleFrame(h.ctx, client, frame)
		}(data)
	}
}
