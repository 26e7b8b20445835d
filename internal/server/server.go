package server

import (
	"context"
	"errors"
	"time"

	"github.com/npezzotti/go-livechat/internal/database"
	"github.com/npezzotti/go-livechat/internal/stats"
	"github.com/rs/zerolog"
)

const (
	defaultDBTimeout     = 5 * time.Second
	defaultTypingTimeout = 3 * time.Second
	inboundBufferSize    = 1024
)

var ErrServerStopped = errors.New("chat server stopped")

type Options struct {
	// TypingTimeout is the quiet interval after which a typing indicator
	// is cleared.
	TypingTimeout time.Duration
	// DBTimeout bounds each repository call made by the event loop.
	DBTimeout time.Duration
}

type inbound struct {
	client *Client
	req    Request
}

type execReq struct {
	ctx  context.Context
	fn   func(ctx context.Context)
	done chan struct{}
}

type stopReq struct {
	done chan struct{}
}

// ChatServer routes chat traffic between connections. All registry, handle
// table and typing state is owned by the goroutine running Run.
type ChatServer struct {
	log       zerolog.Logger
	db        database.ChatRepository
	stats     stats.StatsProvider
	presence  *Presence
	bridge    Bridge
	dbTimeout time.Duration

	clients  map[string]*Client
	users    *Registry
	admins   *Registry
	sessions *Registry
	typing   *typingDebouncer

	registerChan   chan *Client
	deRegisterChan chan *Client
	inboundChan    chan *inbound
	typingChan     chan typingExpiry
	relayChan      chan Relay
	execChan       chan *execReq
	stop           chan stopReq
	done           chan struct{}
}

func NewChatServer(logger zerolog.Logger, db database.ChatRepository, statsProvider stats.StatsProvider, opts Options) *ChatServer {
	if opts.DBTimeout <= 0 {
		opts.DBTimeout = defaultDBTimeout
	}
	if opts.TypingTimeout <= 0 {
		opts.TypingTimeout = defaultTypingTimeout
	}

	log := logger.With().Str("component", "chat-server").Logger()
	cs := &ChatServer{
		log:            log,
		db:             db,
		stats:          statsProvider,
		presence:       NewPresence(db, log, opts.DBTimeout),
		dbTimeout:      opts.DBTimeout,
		clients:        make(map[string]*Client),
		users:          NewRegistry(),
		admins:         NewRegistry(),
		sessions:       NewRegistry(),
		registerChan:   make(chan *Client),
		deRegisterChan: make(chan *Client),
		inboundChan:    make(chan *inbound, inboundBufferSize),
		typingChan:     make(chan typingExpiry, 64),
		relayChan:      make(chan Relay, 256),
		execChan:       make(chan *execReq),
		stop:           make(chan stopReq),
		done:           make(chan struct{}),
	}
	cs.typing = newTypingDebouncer(opts.TypingTimeout, cs.postTypingExpiry)

	for _, metric := range []string{
		stats.NumActiveClients,
		stats.NumActiveSessions,
		stats.NumOnlineAdmins,
		stats.NumMessagesSent,
		stats.NumSessionsOpened,
	} {
		statsProvider.RegisterMetric(metric)
	}

	return cs
}

// SetBridge attaches a cross-instance relay. It must be called before Run.
func (cs *ChatServer) SetBridge(b Bridge) {
	cs.bridge = b
}

func (cs *ChatServer) Run() {
	for {
		select {
		case c := <-cs.registerChan:
			cs.addClient(c)
		case c := <-cs.deRegisterChan:
			cs.removeClient(c)
		case in := <-cs.inboundChan:
			cs.dispatch(in.client, in.req)
		case exp := <-cs.typingChan:
			cs.typingExpired(exp)
		case r := <-cs.relayChan:
			cs.deliverRelay(r)
		case req := <-cs.execChan:
			if req.ctx.Err() == nil {
				req.fn(req.ctx)
			}
			close(req.done)
		case req := <-cs.stop:
			cs.log.Info().Int("connections", len(cs.clients)).Msg("shutting down chat server")
			for _, c := range cs.clients {
				c.stopClient()
			}
			cs.typing.stopAll()
			close(cs.done)
			close(req.done)
			return
		}
	}
}

// Shutdown stops the event loop and closes every connection. Pending
// offline writes are awaited until ctx expires.
func (cs *ChatServer) Shutdown(ctx context.Context) error {
	req := stopReq{done: make(chan struct{})}
	select {
	case cs.stop <- req:
	case <-cs.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-req.done:
	case <-ctx.Done():
		return ctx.Err()
	}

	flushed := make(chan struct{})
	go func() {
		cs.presence.Wait()
		close(flushed)
	}()

	select {
	case <-flushed:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RegisterClient adds c to the handle table. It returns once the event loop
// has accepted the connection, so frames read afterwards are ordered behind it.
func (cs *ChatServer) RegisterClient(c *Client) error {
	select {
	case cs.registerChan <- c:
		return nil
	case <-cs.done:
		return ErrServerStopped
	}
}

func (cs *ChatServer) DeRegisterClient(c *Client) {
	select {
	case cs.deRegisterChan <- c:
	case <-cs.done:
	}
}

func (cs *ChatServer) enqueue(c *Client, req Request) error {
	select {
	case cs.inboundChan <- &inbound{client: c, req: req}:
		return nil
	case <-cs.done:
		return ErrServerStopped
	default:
		cs.log.Warn().Str("conn_id", c.id).Str("type", req.Type()).Msg("inbound channel full")
		return ErrServiceUnavailable
	}
}

func (cs *ChatServer) postTypingExpiry(exp typingExpiry) {
	select {
	case cs.typingChan <- exp:
	case <-cs.done:
	}
}

// exec runs fn on the event loop and waits for it to finish.
func (cs *ChatServer) exec(ctx context.Context, fn func(ctx context.Context)) error {
	req := &execReq{ctx: ctx, fn: fn, done: make(chan struct{})}
	select {
	case cs.execChan <- req:
	case <-cs.done:
		return ErrServerStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-req.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (cs *ChatServer) dbContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), cs.dbTimeout)
}

func (cs *ChatServer) addClient(c *Client) {
	cs.clients[c.id] = c
	cs.stats.Incr(stats.NumActiveClients)
	cs.log.Debug().Str("conn_id", c.id).Int("connections", len(cs.clients)).Msg("connection added")
}

// removeClient drops every trace of a closed connection.
func (cs *ChatServer) removeClient(c *Client) {
	if _, ok := cs.clients[c.id]; !ok {
		return
	}
	delete(cs.clients, c.id)
	cs.stats.Decr(stats.NumActiveClients)
	defer c.stopClient()

	if !c.authenticated() {
		cs.log.Debug().Str("conn_id", c.id).Msg("unauthenticated connection removed")
		return
	}

	if c.isAdmin {
		if cs.admins.Unregister(c.userId, c.id) {
			cs.stats.Decr(stats.NumOnlineAdmins)
			cs.presence.MarkOfflineAsync(c.userId)
		}
	} else {
		cs.users.Unregister(c.userId, c.id)
	}

	for _, k := range cs.typing.cancelConn(c.id) {
		cs.broadcastToSession(k.sessionId, TypingMessage(k.userId, k.sessionId, false), c.id)
	}

	cs.detach(c)

	cs.log.Debug().
		Str("conn_id", c.id).
		Int("user_id", c.userId).
		Bool("admin", c.isAdmin).
		Msg("connection removed")
}

// attach moves c into the membership of sessionId.
func (cs *ChatServer) attach(c *Client, sessionId int) {
	if c.sessionId != 0 && c.sessionId != sessionId {
		cs.detach(c)
	}
	if !cs.sessions.Has(sessionId) {
		cs.stats.Incr(stats.NumActiveSessions)
	}
	cs.sessions.Register(sessionId, c.id)
	c.sessionId = sessionId
}

func (cs *ChatServer) detach(c *Client) {
	if c.sessionId == 0 {
		return
	}
	if cs.sessions.Unregister(c.sessionId, c.id) {
		cs.stats.Decr(stats.NumActiveSessions)
	}
	c.sessionId = 0
}

// teardownSession removes the session's membership entry and clears the
// session on every detached connection.
func (cs *ChatServer) teardownSession(sessionId int) {
	ids := cs.sessions.Remove(sessionId)
	if len(ids) > 0 {
		cs.stats.Decr(stats.NumActiveSessions)
	}
	for _, id := range ids {
		if c, ok := cs.clients[id]; ok && c.sessionId == sessionId {
			c.sessionId = 0
		}
	}
	cs.typing.cancelSession(sessionId)
}

// deliver enqueues msg on each live connection in connIds except skip. A
// full or stopped recipient is skipped.
func (cs *ChatServer) deliver(connIds []string, msg *ServerMessage, skip string) int {
	var n int
	for _, id := range connIds {
		if id == skip {
			continue
		}
		c, ok := cs.clients[id]
		if !ok {
			continue
		}
		if c.queueMessage(msg) {
			n++
		}
	}
	return n
}

func (cs *ChatServer) broadcastToSession(sessionId int, msg *ServerMessage, skip string) {
	cs.deliver(cs.sessions.Lookup(sessionId), msg, skip)
	cs.publish(Relay{Kind: RelaySession, SessionId: sessionId, Message: msg})
}

func (cs *ChatServer) typingExpired(exp typingExpiry) {
	t, ok := cs.typing.expire(exp)
	if !ok {
		return
	}
	cs.broadcastToSession(exp.key.sessionId, TypingMessage(exp.key.userId, exp.key.sessionId, false), t.connId)
}

func (cs *ChatServer) debugState() DebugState {
	return DebugState{
		Connections: len(cs.clients),
		Users:       cs.users.Snapshot(),
		Admins:      cs.admins.Snapshot(),
		Sessions:    cs.sessions.Snapshot(),
		TypingKeys:  cs.typing.pending(),
	}
}
