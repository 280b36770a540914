// Package session wires the client together for one user: the identity, the
// event factory, the persisted relay list and a relay pool that is created
// on first use and torn down on logout.
package session

import (
	"os"
	"sync"
	"time"

	"github.com/Hubmakerlabs/postr/pkg/context"
	"github.com/Hubmakerlabs/postr/pkg/factory"
	"github.com/Hubmakerlabs/postr/pkg/identity"
	"github.com/Hubmakerlabs/postr/pkg/nostr/event"
	"github.com/Hubmakerlabs/postr/pkg/nostr/filters"
	"github.com/Hubmakerlabs/postr/pkg/nostr/normalize"
	"github.com/Hubmakerlabs/postr/pkg/pool"
	"github.com/Hubmakerlabs/postr/pkg/slog"
	"github.com/Hubmakerlabs/postr/pkg/store"
)

var log, chk = slog.New(os.Stderr)

type T struct {
	Ctx      context.T
	Store    *store.T
	Identity *identity.Manager
	Factory  *factory.T

	mx       sync.Mutex
	pool     *pool.T
	poolOpts []pool.Option
}

// New makes a session over an open store. poolOpts are used each time the
// pool is created.
func New(c context.T, st *store.T, poolOpts ...pool.Option) (s *T) {
	id := identity.New(st.Secret())
	return &T{
		Ctx:      c,
		Store:    st,
		Identity: id,
		Factory:  factory.New(id),
		poolOpts: poolOpts,
	}
}

// Pool returns the session's pool, creating it if there is none or the last
// one was closed.
func (s *T) Pool() *pool.T {
	s.mx.Lock()
	defer s.mx.Unlock()
	if s.pool == nil || s.pool.Closed() {
		log.D.Ln("starting relay pool")
		s.pool = pool.New(s.Ctx, s.poolOpts...)
	}
	return s.pool
}

// current returns the pool without creating one.
func (s *T) current() *pool.T {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.pool
}

// Relays returns the configured relay list.
func (s *T) Relays() ([]string, error) { return s.Store.Relays().Load() }

// AddRelay adds url to the configured relays.
func (s *T) AddRelay(url string) (urls []string, err error) {
	var added bool
	if urls, added, err = s.Store.Relays().Add(url); err != nil {
		return
	}
	if added {
		log.I.Ln("added relay", normalize.URL(url))
	}
	return
}

// RemoveRelay takes url out of the configured relays and drops its
// connection.
func (s *T) RemoveRelay(url string) (urls []string, err error) {
	var removed bool
	if urls, removed, err = s.Store.Relays().Remove(url); err != nil {
		return
	}
	if p := s.current(); p != nil {
		p.Disconnect(url)
	}
	if removed {
		log.I.Ln("removed relay", normalize.URL(url))
	}
	return
}

// Publish sends ev to every configured relay.
func (s *T) Publish(c context.T, ev *event.T) (acks pool.Acks, err error) {
	var urls []string
	if urls, err = s.Relays(); chk.E(err) {
		return
	}
	return s.Pool().Publish(c, ev, urls), nil
}

// Query runs f against every configured relay.
func (s *T) Query(c context.T, f filters.T, timeout time.Duration) (
	res *pool.Result, err error) {

	var urls []string
	if urls, err = s.Relays(); chk.E(err) {
		return
	}
	return s.Pool().Query(c, f, urls, timeout), nil
}

// Logout forgets the secret key and closes the pool.
func (s *T) Logout() (err error) {
	s.closePool()
	if err = s.Identity.Clear(); chk.E(err) {
		return
	}
	log.I.Ln("logged out")
	return
}

func (s *T) closePool() {
	s.mx.Lock()
	p := s.pool
	s.pool = nil
	s.mx.Unlock()
	if p != nil {
		p.Close()
	}
}

// Close closes the pool and the store.
func (s *T) Close() (err error) {
	s.closePool()
	return s.Store.Close()
}
