package pool

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/Hubmakerlabs/postr/pkg/context"
	"github.com/Hubmakerlabs/postr/pkg/nostr/event"
	"github.com/Hubmakerlabs/postr/pkg/nostr/filters"
	"github.com/Hubmakerlabs/postr/pkg/relay"
	"github.com/puzpuzpuz/xsync/v2"
)

// StreamBuffer is the capacity of the channel returned by Stream.Events.
const StreamBuffer = 512

// ErrNoRelays is returned by SubscribeFunc when not one relay could be
// subscribed: the stream would never deliver anything.
var ErrNoRelays = errors.New("no relay available")

// Stream is a live subscription on a set of relays. Every event id is
// delivered at most once, whichever relay sent it first.
type Stream struct {
	ID      string
	Filters filters.T

	pool     *T
	events   chan *event.T
	eose     chan struct{}
	pending  atomic.Int64
	live     atomic.Int64
	ready    chan struct{}
	readyOne sync.Once
	ctx      context.T
	cancel   context.F
	once     sync.Once
	eoseOne  sync.Once
	seen     *xsync.MapOf[string, struct{}]

	mx     sync.Mutex
	failed map[string]error
}

// Events delivers the stream's events. It is closed after the stream ends
// and every relay subscription has stopped.
func (s *Stream) Events() <-chan *event.T { return s.events }

// EOSE is closed once every relay has sent EOSE or failed.
func (s *Stream) EOSE() <-chan struct{} { return s.eose }

// Failed maps each relay that could not be subscribed, or whose subscription
// ended before EOSE, to the reason. It is complete once EOSE is closed.
func (s *Stream) Failed() (failed map[string]error) {
	s.mx.Lock()
	defer s.mx.Unlock()
	failed = make(map[string]error, len(s.failed))
	for u, err := range s.failed {
		failed[u] = err
	}
	return
}

// AllFailed is true once EOSE is closed without any relay having been
// subscribed: no data is available from this stream, as opposed to a quiet
// one.
func (s *Stream) AllFailed() bool {
	select {
	case <-s.eose:
		return s.live.Load() == 0
	default:
		return false
	}
}

func (s *Stream) fail(u string, err error) {
	s.mx.Lock()
	s.failed[u] = err
	s.mx.Unlock()
	log.D.F("stream %s: %s: %v", s.ID, u, err)
}

// Done is closed when the stream has been cancelled.
func (s *Stream) Done() <-chan struct{} { return s.ctx.Done() }

// Cancel ends every relay subscription of the stream. It can be called more
// than once and after the connections have dropped.
func (s *Stream) Cancel() {
	s.once.Do(func() {
		s.cancel()
		s.pool.streams.Delete(s.ID)
		s.pool.metrics.streams.Dec()
		log.D.F("stream %s cancelled", s.ID)
	})
}

func (s *Stream) settle() {
	if s.pending.Add(-1) <= 0 {
		s.finish()
	}
}

func (s *Stream) finish() {
	s.eoseOne.Do(func() { close(s.eose) })
	s.readyOne.Do(func() { close(s.ready) })
}

// Subscribe opens a live stream for f on every url. Each relay is connected
// and subscribed on its own; relays that cannot be count as having reached
// EOSE and are listed by Failed. The stream ends when c is done,
// when Cancel is called or when the pool closes.
func (p *T) Subscribe(c context.T, f filters.T, urls []string) (
	s *Stream, err error) {

	if p.closed.Load() {
		return nil, ErrClosed
	}
	s = &Stream{
		ID:      "stream:" + strconv.FormatInt(p.counter.Add(1), 10),
		Filters: f,
		pool:    p,
		events:  make(chan *event.T, StreamBuffer),
		eose:    make(chan struct{}),
		ready:   make(chan struct{}),
		seen:    xsync.NewMapOf[struct{}](),
		failed:  make(map[string]error),
	}
	s.ctx, s.cancel = context.Cancel(c)
	p.streams.Store(s.ID, s)
	p.metrics.streams.Inc()
	// Close may have run between the check and the Store.
	if p.closed.Load() {
		s.Cancel()
		close(s.events)
		s.finish()
		return nil, ErrClosed
	}
	go s.run(urls)
	return
}

func (s *Stream) run(urls []string) {
	defer s.Cancel()
	defer close(s.events)
	invalid := make(map[string]error)
	urls = dedupe(urls, invalid)
	for u, err := range invalid {
		s.fail(u, err)
	}
	s.pending.Store(int64(len(urls)))
	if len(urls) == 0 {
		s.finish()
		return
	}
	var wg sync.WaitGroup
	for _, u := range urls {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.pump(u)
		}()
	}
	wg.Wait()
}

// pump connects one relay and forwards its events until its subscription
// ends.
func (s *Stream) pump(u string) {
	var sub *relay.Subscription
	rl, err := s.pool.ensure(s.ctx, u)
	if err == nil {
		sub, err = rl.Subscribe(s.ctx, s.Filters, relay.WithLabel("stream"))
	}
	if err != nil {
		s.fail(u, err)
		s.settle()
		return
	}
	defer sub.Unsub()
	s.live.Add(1)
	s.readyOne.Do(func() { close(s.ready) })
	eose := sub.EndOfStoredEvents
	for {
		select {
		case ev, more := <-sub.Events:
			if !more {
				if eose != nil {
					if s.ctx.Err() == nil {
						s.fail(u, ended(s.ctx, rl, sub))
					}
					s.settle()
				}
				return
			}
			s.forward(ev)
		case <-eose:
			for _, ev := range sub.Drain() {
				s.forward(ev)
			}
			eose = nil
			s.settle()
		}
	}
}

func (s *Stream) forward(ev *event.T) {
	s.pool.metrics.received.Inc()
	if _, dup := s.seen.LoadOrStore(ev.ID, struct{}{}); dup {
		s.pool.metrics.duplicates.Inc()
		return
	}
	select {
	case s.events <- ev:
	case <-s.ctx.Done():
	}
}

// SubscribeFunc runs onEvent for every event of a new stream, in order of
// arrival, until cancel is called. It returns once one relay has been
// subscribed, or with ErrNoRelays and the reason of each relay when none
// could be.
func (p *T) SubscribeFunc(c context.T, f filters.T, urls []string,
	onEvent func(ev *event.T)) (cancel func(), err error) {

	var s *Stream
	if s, err = p.Subscribe(c, f, urls); err != nil {
		return
	}
	select {
	case <-s.ready:
	case <-s.Done():
	}
	if s.live.Load() == 0 {
		s.Cancel()
		if s.AllFailed() {
			return nil, fmt.Errorf("%w: %v", ErrNoRelays, s.Failed())
		}
		return nil, s.ctx.Err()
	}
	go func() {
		for ev := range s.Events() {
			onEvent(ev)
		}
	}()
	return s.Cancel, nil
}
