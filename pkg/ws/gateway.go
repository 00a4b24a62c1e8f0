package ws

import (
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"chatcore/pkg/auth"
	"chatcore/pkg/fanout"
	"chatcore/pkg/logger"
	"chatcore/pkg/models"
	"chatcore/pkg/presence"
	"chatcore/pkg/threads"
	"chatcore/pkg/typing"
	"chatcore/pkg/utils"
)

// Gateway upgrades authenticated requests to websocket sessions and
// bridges them to the fan-out dispatcher, presence tracker and typing
// registry. One session covers every thread the user participates in
// at connect time; new threads require a reconnect or the HTTP API.
type Gateway struct {
	threads    *threads.Service
	dispatcher *fanout.Dispatcher
	presence   *presence.Tracker
	typing     *typing.Registry

	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
}

// NewGateway wires a websocket gateway over the given realtime pieces.
// Origin policy is enforced by the auth middleware before the upgrade.
func NewGateway(svc *threads.Service, d *fanout.Dispatcher, p *presence.Tracker, t *typing.Registry) *Gateway {
	return &Gateway{
		threads:    svc,
		dispatcher: d,
		presence:   p,
		typing:     t,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients: map[*client]struct{}{},
	}
}

// ServeHTTP handles GET /v1/ws. The caller identity comes from the auth
// middleware; unauthenticated upgrades are refused.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	user := auth.UserIDFromContext(r.Context())
	if user == "" {
		utils.JSONError(w, "missing user identity", http.StatusUnauthorized)
		return
	}

	ths, err := g.threads.ListThreadsFor(user)
	if err != nil {
		logger.Error("ws_thread_list_failed", "user", user, "error", err)
		utils.JSONError(w, "failed to resolve threads", http.StatusInternalServerError)
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("ws_upgrade_failed", "user", user, "error", err)
		return
	}

	c := &client{
		gw:     g,
		conn:   conn,
		connID: uuid.NewString(),
		user:   user,
		send:   make(chan models.Event, 64),
		done:   make(chan struct{}),
	}
	// one subscription per scope: the user's own scope, every thread the
	// user participates in, and each co-participant's presence scope
	scopes := map[string]struct{}{fanout.UserScope(user): {}}
	for _, th := range ths {
		scopes[fanout.ThreadScope(th.ID)] = struct{}{}
		for _, p := range th.Participants {
			if p != user {
				scopes[fanout.UserScope(p)] = struct{}{}
			}
		}
	}
	for scope := range scopes {
		c.subs = append(c.subs, g.dispatcher.Subscribe(scope))
	}

	g.mu.Lock()
	g.clients[c] = struct{}{}
	g.mu.Unlock()
	g.presence.Connect(user, c.connID)
	logger.Info("ws_connected", "user", user, "conn", c.connID, "threads", len(ths))

	for _, sub := range c.subs {
		go c.forward(sub)
	}
	go c.writePump()
	go c.readPump()
}

// detach tears a session down once. Called from the read pump on exit.
func (g *Gateway) detach(c *client) {
	g.mu.Lock()
	if _, ok := g.clients[c]; !ok {
		g.mu.Unlock()
		return
	}
	delete(g.clients, c)
	g.mu.Unlock()

	close(c.done)
	for _, sub := range c.subs {
		sub.Close()
	}
	c.conn.Close()
	g.presence.Disconnect(c.user, c.connID)
	logger.Info("ws_disconnected", "user", c.user, "conn", c.connID)
}

// CloseAll drops every live session. Used during shutdown.
func (g *Gateway) CloseAll() {
	g.mu.Lock()
	clients := make([]*client, 0, len(g.clients))
	for c := range g.clients {
		clients = append(clients, c)
	}
	g.mu.Unlock()
	for _, c := range clients {
		g.detach(c)
	}
}
