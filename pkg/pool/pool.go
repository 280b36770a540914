// Package pool fans operations out over many relays: it connects them
// concurrently, publishes to all of them tracking each relay's answer, and
// merges query and subscription results with deduplication.
//
// Failures of individual relays are results, not errors. The only error a
// pool operation returns for itself is ErrClosed.
package pool

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Hubmakerlabs/postr/pkg/context"
	"github.com/Hubmakerlabs/postr/pkg/nostr/normalize"
	"github.com/Hubmakerlabs/postr/pkg/nostr/signer"
	"github.com/Hubmakerlabs/postr/pkg/relay"
	"github.com/Hubmakerlabs/postr/pkg/slog"
	"github.com/fiatjaf/generic-ristretto/z"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/puzpuzpuz/xsync/v2"
	"golang.org/x/sync/errgroup"
)

var log, chk = slog.New(os.Stderr)

const (
	DefaultPublishTimeout = 5 * time.Second
	DefaultQueryTimeout   = 7 * time.Second
	DefaultConnectTimeout = relay.DefaultConnectTimeout
)

var (
	ErrClosed     = errors.New("relay pool closed")
	ErrInvalidURL = errors.New("invalid relay URL")
)

const MaxLocks = 50

var namedMutexPool = make([]sync.Mutex, MaxLocks)

// namedLock serializes work on one relay url across every pool.
func namedLock(name string) (unlock func()) {
	idx := z.MemHashString(name) % MaxLocks
	namedMutexPool[idx].Lock()
	return namedMutexPool[idx].Unlock
}

// T is a pool of relay connections.
type T struct {
	ctx    context.T
	cancel context.F
	closed atomic.Bool

	relays  *xsync.MapOf[string, *relay.T]
	streams *xsync.MapOf[string, *Stream]
	counter atomic.Int64

	publishTimeout time.Duration
	connectTimeout time.Duration
	queryTimeout   time.Duration
	publishRetries int
	relayOpts      []relay.Option
	registerer     prometheus.Registerer
	metrics        *metrics
}

// Option configures a pool.
type Option func(p *T)

// WithPublishTimeout is the deadline for every relay to answer a publish.
func WithPublishTimeout(d time.Duration) Option {
	return func(p *T) { p.publishTimeout = d }
}

// WithConnectTimeout bounds each connection handshake.
func WithConnectTimeout(d time.Duration) Option {
	return func(p *T) { p.connectTimeout = d }
}

// WithQueryTimeout is the deadline used by Query when none is given.
func WithQueryTimeout(d time.Duration) Option {
	return func(p *T) { p.queryTimeout = d }
}

// WithPublishRetries re-sends a publish up to n more times to relays that
// timed out, each attempt with a fresh deadline. The default is no retry.
func WithPublishRetries(n int) Option {
	return func(p *T) { p.publishRetries = n }
}

// WithRegisterer registers the pool's metrics.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(p *T) { p.registerer = reg }
}

// WithSigner sets the verifier every relay uses on incoming events.
func WithSigner(s signer.I) Option {
	return func(p *T) { p.relayOpts = append(p.relayOpts, relay.WithVerifier(s)) }
}

// WithRelayOptions passes options to every relay the pool creates.
func WithRelayOptions(opts ...relay.Option) Option {
	return func(p *T) { p.relayOpts = append(p.relayOpts, opts...) }
}

// New creates a pool. The pool closes itself when c is done.
func New(c context.T, opts ...Option) (p *T) {
	p = &T{
		relays:         xsync.NewMapOf[*relay.T](),
		streams:        xsync.NewMapOf[*Stream](),
		publishTimeout: DefaultPublishTimeout,
		connectTimeout: DefaultConnectTimeout,
		queryTimeout:   DefaultQueryTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.metrics = newMetrics(p.registerer)
	p.ctx, p.cancel = context.Cancel(c)
	go func() {
		<-p.ctx.Done()
		p.Close()
	}()
	return
}

// Closed returns true after Close.
func (p *T) Closed() bool { return p.closed.Load() }

// register returns the pool's relay for a normalized url, creating it if
// needed.
func (p *T) register(url string) (rl *relay.T, err error) {
	defer namedLock(url)()
	if p.closed.Load() {
		return nil, ErrClosed
	}
	rl, _ = p.relays.LoadOrCompute(url, func() *relay.T {
		return relay.New(url, p.relayOpts...)
	})
	// Close does not take the named locks and may have cleared the map
	// already.
	if p.closed.Load() {
		p.relays.Delete(url)
		return nil, ErrClosed
	}
	return
}

// ensure returns the connected relay for a normalized url, dialing it if
// needed. The handshake is bounded by the connect timeout and by c.
func (p *T) ensure(c context.T, url string) (rl *relay.T, err error) {
	if rl, err = p.register(url); err != nil {
		return
	}
	if rl.State() == relay.Connected {
		return
	}
	c, cancel := context.Timeout(c, p.connectTimeout)
	defer cancel()
	if err = rl.Connect(c); err != nil {
		p.metrics.connects.WithLabelValues("failure").Inc()
		return nil, err
	}
	p.metrics.connects.WithLabelValues("success").Inc()
	if p.closed.Load() {
		p.relays.Delete(url)
		chk.D(rl.Disconnect())
		return nil, ErrClosed
	}
	return
}

// EnsureConnected connects every url that is not already connected, all at
// once, and returns when every attempt has settled. Invalid urls are reported
// in failed under the string given.
//
// Publish, Query and Subscribe do not wait on this: each relay is connected
// inside its own task, so a slow handshake only holds up that relay.
func (p *T) EnsureConnected(c context.T, urls []string) (
	live map[string]*relay.T, failed map[string]error) {

	live = make(map[string]*relay.T)
	failed = make(map[string]error)
	var mx sync.Mutex
	var g errgroup.Group
	for _, u := range dedupe(urls, failed) {
		g.Go(func() error {
			rl, err := p.ensure(c, u)
			mx.Lock()
			defer mx.Unlock()
			if err != nil {
				failed[u] = err
			} else {
				live[u] = rl
			}
			return nil
		})
	}
	chk.E(g.Wait())
	return
}

// dedupe normalizes urls, recording the invalid ones in failed.
func dedupe(urls []string, failed map[string]error) (out []string) {
	seen := make(map[string]struct{}, len(urls))
	for _, u := range urls {
		n := normalize.URL(u)
		if n == "" {
			failed[u] = fmt.Errorf("%w: '%s'", ErrInvalidURL, u)
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return
}

// Relay returns the pool's relay for url, if it has one.
func (p *T) Relay(url string) (rl *relay.T, ok bool) {
	return p.relays.Load(normalize.URL(url))
}

// Disconnect closes the connection to url and forgets the relay.
func (p *T) Disconnect(url string) {
	url = normalize.URL(url)
	defer namedLock(url)()
	if rl, ok := p.relays.LoadAndDelete(url); ok {
		chk.D(rl.Disconnect())
	}
}

// States returns the state of every relay the pool knows.
func (p *T) States() (s map[string]relay.State) {
	s = make(map[string]relay.State)
	p.relays.Range(func(url string, rl *relay.T) bool {
		s[url] = rl.State()
		return true
	})
	return
}

// URLs returns the urls of the relays the pool knows, sorted.
func (p *T) URLs() (urls []string) {
	p.relays.Range(func(url string, _ *relay.T) bool {
		urls = append(urls, url)
		return true
	})
	sort.Strings(urls)
	return
}

// Close cancels every stream, disconnects every relay and forgets all
// deduplication state. It can be called more than once.
func (p *T) Close() {
	if !p.closed.CompareAndSwap(false, true) {
		return
	}
	p.cancel()
	var streams []*Stream
	p.streams.Range(func(_ string, s *Stream) bool {
		streams = append(streams, s)
		return true
	})
	for _, s := range streams {
		s.Cancel()
	}
	p.streams.Clear()
	var relays []*relay.T
	p.relays.Range(func(_ string, rl *relay.T) bool {
		relays = append(relays, rl)
		return true
	})
	p.relays.Clear()
	for _, rl := range relays {
		chk.D(rl.Disconnect())
	}
	log.D.Ln("relay pool closed")
}
