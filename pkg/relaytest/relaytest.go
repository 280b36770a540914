// Package relaytest is an in-process relay for tests. It stores what it is
// sent, answers REQ from its store, and can be told to misbehave.
package relaytest

import (
	"net/http"
	"net/http/httptest"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/Hubmakerlabs/postr/pkg/nostr/envelopes"
	"github.com/Hubmakerlabs/postr/pkg/nostr/event"
	"github.com/Hubmakerlabs/postr/pkg/nostr/filters"
	"github.com/Hubmakerlabs/postr/pkg/slog"
	"github.com/fasthttp/websocket"
)

var log, chk = slog.New(os.Stderr)

// Behaviour selects how the relay answers.
type Behaviour int32

const (
	// Accept stores events, answers OK true and serves REQ then EOSE.
	Accept Behaviour = iota
	// Reject answers OK false to every EVENT. REQ is served normally.
	Reject
	// Silent never answers EVENT or REQ.
	Silent
	// CloseReq answers every REQ with CLOSED. EVENT is accepted.
	CloseReq
	// Drop closes the connection on the next EVENT or REQ.
	Drop
)

var behaviourNames = map[string]Behaviour{
	"accept": Accept,
	"reject": Reject,
	"silent": Silent,
	"close":  CloseReq,
	"drop":   Drop,
}

// ParseBehaviour reads a behaviour name, unknown names are Accept.
func ParseBehaviour(s string) Behaviour {
	return behaviourNames[strings.ToLower(strings.TrimSpace(s))]
}

type client struct {
	conn *websocket.Conn
	wmu  sync.Mutex
	subs map[string]filters.T
}

func (c *client) write(env envelopes.I) {
	b, err := env.MarshalJSON()
	if chk.E(err) {
		return
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	chk.T(c.conn.WriteMessage(websocket.TextMessage, b))
}

// Relay is a fake relay. The zero value is not usable, use New or
// NewHandler.
type Relay struct {
	// URL is the ws:// address of the running server, empty for a bare
	// handler.
	URL    string
	Server *httptest.Server

	// RejectReason is sent with OK false in Reject mode.
	RejectReason string
	// ClosedReason is sent with CLOSED in CloseReq mode.
	ClosedReason string

	upgrader websocket.Upgrader

	mx        sync.Mutex
	behaviour Behaviour
	stored    map[string]*event.T
	published []*event.T
	requests  int
	clients   map[*client]struct{}
}

// NewHandler returns a relay that is not listening anywhere, for mounting on
// another server.
func NewHandler() (r *Relay) {
	return &Relay{
		RejectReason: "blocked: test relay rejects everything",
		ClosedReason: "error: test relay closes every subscription",
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		stored:  make(map[string]*event.T),
		clients: make(map[*client]struct{}),
	}
}

// New starts a relay on a local port with the given behaviour.
func New(b Behaviour) (r *Relay) {
	r = NewHandler()
	r.behaviour = b
	r.Server = httptest.NewServer(r)
	r.URL = "ws" + strings.TrimPrefix(r.Server.URL, "http")
	return
}

// Close drops every client and stops the server. Connecting to URL fails
// afterwards.
func (r *Relay) Close() {
	r.DropConnections()
	if r.Server != nil {
		r.Server.Close()
	}
}

// SetBehaviour changes how the relay answers from the next message on.
func (r *Relay) SetBehaviour(b Behaviour) {
	r.mx.Lock()
	r.behaviour = b
	r.mx.Unlock()
}

// Store puts events in the relay's store without notifying subscribers.
func (r *Relay) Store(evs ...*event.T) {
	r.mx.Lock()
	defer r.mx.Unlock()
	for _, ev := range evs {
		r.stored[ev.ID] = ev
	}
}

// Broadcast stores ev and sends it to every live subscription it matches.
func (r *Relay) Broadcast(ev *event.T) {
	r.mx.Lock()
	r.stored[ev.ID] = ev
	type target struct {
		c  *client
		id string
	}
	var targets []target
	for c := range r.clients {
		for id, f := range c.subs {
			if f.Match(ev) {
				targets = append(targets, target{c, id})
			}
		}
	}
	r.mx.Unlock()
	for _, t := range targets {
		t.c.write(&envelopes.Event{SubscriptionID: t.id, Event: ev})
	}
}

// Published returns every event the relay was sent, in arrival order,
// whatever it answered.
func (r *Relay) Published() (evs []*event.T) {
	r.mx.Lock()
	defer r.mx.Unlock()
	return append(evs, r.published...)
}

// Requests returns the number of REQ frames received.
func (r *Relay) Requests() int {
	r.mx.Lock()
	defer r.mx.Unlock()
	return r.requests
}

// Subscriptions returns the number of open subscriptions across clients.
func (r *Relay) Subscriptions() (n int) {
	r.mx.Lock()
	defer r.mx.Unlock()
	for c := range r.clients {
		n += len(c.subs)
	}
	return
}

// Clients returns the number of connected clients.
func (r *Relay) Clients() int {
	r.mx.Lock()
	defer r.mx.Unlock()
	return len(r.clients)
}

// DropConnections closes every client connection without a close frame.
func (r *Relay) DropConnections() {
	r.mx.Lock()
	var cs []*client
	for c := range r.clients {
		cs = append(cs, c)
	}
	r.mx.Unlock()
	for _, c := range cs {
		chk.T(c.conn.Close())
	}
}

func (r *Relay) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if chk.E(err) {
		return
	}
	c := &client{conn: conn, subs: make(map[string]filters.T)}
	r.mx.Lock()
	r.clients[c] = struct{}{}
	r.mx.Unlock()
	defer func() {
		r.mx.Lock()
		delete(r.clients, c)
		r.mx.Unlock()
		chk.T(conn.Close())
	}()
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			log.T.F("test relay client gone: %v", err)
			return
		}
		if !r.handle(c, message) {
			return
		}
	}
}

// handle answers one frame and returns false when the connection must close.
func (r *Relay) handle(c *client, message []byte) bool {
	env, err := envelopes.Parse(message)
	if err != nil {
		c.write(&envelopes.Notice{Message: "invalid: " + err.Error()})
		return true
	}
	r.mx.Lock()
	b := r.behaviour
	r.mx.Unlock()
	switch env := env.(type) {
	case *envelopes.Event:
		r.mx.Lock()
		r.published = append(r.published, env.Event)
		r.mx.Unlock()
		switch b {
		case Drop:
			return false
		case Silent:
		case Reject:
			c.write(&envelopes.OK{EventID: env.Event.ID, OK: false,
				Reason: r.RejectReason})
		default:
			if !env.Event.CheckID() {
				c.write(&envelopes.OK{EventID: env.Event.ID, OK: false,
					Reason: "invalid: id is computed incorrectly"})
				return true
			}
			c.write(&envelopes.OK{EventID: env.Event.ID, OK: true})
			r.Broadcast(env.Event)
		}
	case *envelopes.Req:
		r.mx.Lock()
		r.requests++
		r.mx.Unlock()
		switch b {
		case Drop:
			return false
		case Silent:
		case CloseReq:
			c.write(&envelopes.Closed{SubscriptionID: env.SubscriptionID,
				Reason: r.ClosedReason})
		default:
			for _, ev := range r.query(env.Filters) {
				c.write(&envelopes.Event{SubscriptionID: env.SubscriptionID,
					Event: ev})
			}
			r.mx.Lock()
			c.subs[env.SubscriptionID] = env.Filters
			r.mx.Unlock()
			c.write(&envelopes.EOSE{SubscriptionID: env.SubscriptionID})
		}
	case *envelopes.Close:
		r.mx.Lock()
		delete(c.subs, env.SubscriptionID)
		r.mx.Unlock()
	}
	return true
}

// query returns the stored events matching any filter, newest first, each
// filter's limit applied to its own matches.
func (r *Relay) query(ff filters.T) (out []*event.T) {
	r.mx.Lock()
	all := make([]*event.T, 0, len(r.stored))
	for _, ev := range r.stored {
		all = append(all, ev)
	}
	r.mx.Unlock()
	sort.Sort(event.Descending(all))
	seen := make(map[string]struct{})
	for _, f := range ff {
		n := 0
		for _, ev := range all {
			if f.Limit > 0 && n >= f.Limit {
				break
			}
			if !f.Matches(ev) {
				continue
			}
			n++
			if _, ok := seen[ev.ID]; ok {
				continue
			}
			seen[ev.ID] = struct{}{}
			out = append(out, ev)
		}
	}
	return
}

// Stalled accepts connections and never answers the websocket handshake,
// like a relay that is up but overloaded.
type Stalled struct {
	URL    string
	Server *httptest.Server

	stop chan struct{}
	once sync.Once
}

// NewStalled starts a stalled server on a local port.
func NewStalled() (s *Stalled) {
	s = &Stalled{stop: make(chan struct{})}
	s.Server = httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, req *http.Request) {
			select {
			case <-s.stop:
			case <-req.Context().Done():
			}
		}))
	s.URL = "ws" + strings.TrimPrefix(s.Server.URL, "http")
	return
}

// Close releases every held connection and stops the server.
func (s *Stalled) Close() {
	s.once.Do(func() {
		close(s.stop)
		s.Server.Close()
	})
}
