package pool

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Hubmakerlabs/postr/pkg/cache"
	"github.com/Hubmakerlabs/postr/pkg/context"
	"github.com/Hubmakerlabs/postr/pkg/nostr/event"
	"github.com/Hubmakerlabs/postr/pkg/nostr/filters"
	"github.com/Hubmakerlabs/postr/pkg/relay"
	"golang.org/x/sync/errgroup"
)

// ErrSubscriptionClosed is the failure recorded for a relay that answered a
// REQ with CLOSED.
var ErrSubscriptionClosed = errors.New("subscription closed by relay")

// Result is the merged answer of a Query.
type Result struct {
	// Events are unique by id, newest first, ties broken by the larger id.
	Events []*event.T
	// Responded are the relays that sent EOSE or at least one event.
	Responded []string
	// Failed maps each relay that did not reach EOSE to the reason.
	Failed map[string]error
	// AllFailed is set when no relay responded and no event arrived, so an
	// empty Events means no data was available rather than no data exists.
	AllFailed bool
}

// Resolved returns the events with every replaceable identity collapsed to
// its newest version.
func (r *Result) Resolved() []*event.T {
	c := cache.New()
	for _, ev := range r.Events {
		c.Add(ev)
	}
	return c.Resolved()
}

// Query sends f to every url and merges the stored events they return. Each
// relay is connected and read in its own task until its EOSE, a CLOSED, a
// dropped connection or the deadline, whichever is first, so a relay that
// hangs only loses its own share. A zero timeout uses the pool's query
// timeout.
//
// When f holds a single filter with a limit, the merged list is cut to that
// limit.
func (p *T) Query(c context.T, f filters.T, urls []string,
	timeout time.Duration) (res *Result) {

	if timeout <= 0 {
		timeout = p.queryTimeout
	}
	c, cancel := context.Timeout(c, timeout)
	defer cancel()
	res = &Result{Failed: make(map[string]error)}
	urls = dedupe(urls, res.Failed)
	events := cache.New()
	var mx sync.Mutex
	var g errgroup.Group
	for _, u := range urls {
		g.Go(func() error {
			got, eose, err := p.queryOne(c, u, f, events)
			mx.Lock()
			defer mx.Unlock()
			if got || eose {
				res.Responded = append(res.Responded, u)
			}
			if err != nil {
				res.Failed[u] = err
			}
			return nil
		})
	}
	chk.E(g.Wait())
	sort.Strings(res.Responded)
	res.Events = events.Events()
	if len(f) == 1 && f[0].Limit > 0 && len(res.Events) > f[0].Limit {
		res.Events = res.Events[:f[0].Limit]
	}
	res.AllFailed = len(res.Responded) == 0 && len(res.Events) == 0
	log.D.F("query %v: %d events, %d responded, %d failed", f,
		len(res.Events), len(res.Responded), len(res.Failed))
	return
}

func (p *T) queryOne(c context.T, u string, f filters.T,
	events *cache.T) (got, eose bool, err error) {

	var rl *relay.T
	if rl, err = p.ensure(c, u); err != nil {
		if c.Err() != nil && !errors.Is(err, ErrClosed) {
			err = fmt.Errorf("%w: no handshake from %s: %w", relay.ErrTimeout,
				u, err)
		}
		return
	}
	var sub *relay.Subscription
	if sub, err = rl.Subscribe(c, f, relay.WithLabel("query")); err != nil {
		return
	}
	defer sub.Unsub()
	add := func(ev *event.T) {
		got = true
		p.metrics.received.Inc()
		if !events.Add(ev) {
			p.metrics.duplicates.Inc()
		}
	}
	for {
		select {
		case ev, more := <-sub.Events:
			if !more {
				err = ended(c, rl, sub)
				return
			}
			add(ev)
		case <-sub.EndOfStoredEvents:
			for _, ev := range sub.Drain() {
				add(ev)
			}
			eose = true
			return
		case <-c.Done():
			err = ended(c, rl, sub)
			return
		}
	}
}

// ended explains why a subscription stopped before EOSE.
func ended(c context.T, rl *relay.T, sub *relay.Subscription) error {
	select {
	case reason := <-sub.ClosedReason:
		return fmt.Errorf("%w: %s", ErrSubscriptionClosed, reason)
	default:
	}
	if c.Err() != nil {
		return fmt.Errorf("%w: no EOSE from %s", relay.ErrTimeout, rl.URL())
	}
	if err := rl.Err(); err != nil {
		return err
	}
	return fmt.Errorf("%w: %s", relay.ErrConnection, rl.URL())
}
