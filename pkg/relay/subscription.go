package relay

import (
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/Hubmakerlabs/postr/pkg/context"
	"github.com/Hubmakerlabs/postr/pkg/nostr/envelopes"
	"github.com/Hubmakerlabs/postr/pkg/nostr/event"
	"github.com/Hubmakerlabs/postr/pkg/nostr/filters"
)

// EventBuffer is the capacity of Subscription.Events. When it is full the
// relay's read loop waits for the consumer.
const EventBuffer = 256

// Subscription is one REQ on one relay.
type Subscription struct {
	Label   string
	Counter int64

	Relay   *T
	Filters filters.T

	// Events emits the matching events in the order the relay sent them. It
	// is closed when the subscription ends.
	Events chan *event.T

	// EndOfStoredEvents is closed when the relay sends EOSE. Every stored
	// event has been put on Events by then.
	EndOfStoredEvents chan struct{}

	// ClosedReason receives the message of a CLOSED from the relay. The
	// subscription ends right after.
	ClosedReason chan string

	// Context is done when the subscription ends.
	Context context.T
	cancel  context.F

	mu     sync.Mutex
	live   atomic.Bool
	eosed  atomic.Bool
	closed atomic.Bool
}

// SubOption configures a subscription.
type SubOption func(sub *Subscription)

// WithLabel puts a label on the subscription; it is prepended to the counter
// in the id sent to the relay.
func WithLabel(label string) SubOption {
	return func(sub *Subscription) { sub.Label = label }
}

// GetID returns the subscription id sent to the relay.
func (sub *Subscription) GetID() string {
	return sub.Label + ":" + strconv.FormatInt(sub.Counter, 10)
}

// Subscribe sends a REQ and returns the subscription. It ends when c is
// done, when Unsub is called, when the relay sends CLOSED, or when the
// connection drops.
func (r *T) Subscribe(c context.T, f filters.T,
	opts ...SubOption) (sub *Subscription, err error) {

	connCtx, _, ok := r.live()
	if !ok {
		return nil, ErrNotConnected
	}
	ctx, cancel := context.Cancel(c)
	sub = &Subscription{
		Relay:             r,
		Counter:           r.counter.Add(1),
		Filters:           f,
		Events:            make(chan *event.T, EventBuffer),
		EndOfStoredEvents: make(chan struct{}),
		ClosedReason:      make(chan string, 1),
		Context:           ctx,
		cancel:            cancel,
	}
	for _, opt := range opts {
		opt(sub)
	}
	r.Subscriptions.Store(sub.GetID(), sub)
	go sub.start(connCtx)
	if err = sub.fire(); err != nil {
		sub.Unsub()
		return nil, fmt.Errorf("couldn't subscribe to %v at %s: %w", f,
			r.url, err)
	}
	return
}

func (sub *Subscription) start(connCtx context.T) {
	select {
	case <-sub.Context.Done():
	case <-connCtx.Done():
	}
	sub.Unsub()
	sub.mu.Lock()
	close(sub.Events)
	sub.mu.Unlock()
}

func (sub *Subscription) fire() (err error) {
	var b []byte
	if b, err = (&envelopes.Req{SubscriptionID: sub.GetID(),
		Filters: sub.Filters}).MarshalJSON(); chk.E(err) {
		return
	}
	log.T.F("{%s} sending %s", sub.Relay.url, b)
	sub.live.Store(true)
	return sub.Relay.Write(b)
}

func (sub *Subscription) dispatchEvent(ev *event.T) {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	if sub.Context.Err() != nil {
		return
	}
	select {
	case sub.Events <- ev:
	case <-sub.Context.Done():
	}
}

func (sub *Subscription) dispatchEose() {
	if sub.eosed.CompareAndSwap(false, true) {
		close(sub.EndOfStoredEvents)
	}
}

func (sub *Subscription) dispatchClosed(reason string) {
	if sub.closed.CompareAndSwap(false, true) {
		sub.ClosedReason <- reason
		// the relay already dropped it, no CLOSE needed
		sub.live.Store(false)
		sub.Unsub()
	}
}

// Drain returns the events already buffered on Events without waiting.
func (sub *Subscription) Drain() (evs []*event.T) {
	for {
		select {
		case ev, more := <-sub.Events:
			if !more {
				return
			}
			evs = append(evs, ev)
		default:
			return
		}
	}
}

// Unsub ends the subscription and sends CLOSE to the relay if it is still
// connected. Calling it more than once, or after the connection dropped, is
// harmless.
func (sub *Subscription) Unsub() {
	sub.cancel()
	if sub.live.CompareAndSwap(true, false) {
		sub.Close()
	}
	sub.Relay.Subscriptions.Delete(sub.GetID())
}

// Close just sends a CLOSE message. You probably want Unsub() instead.
func (sub *Subscription) Close() {
	if !sub.Relay.IsConnected() {
		return
	}
	b, _ := (&envelopes.Close{SubscriptionID: sub.GetID()}).MarshalJSON()
	log.T.F("{%s} sending %s", sub.Relay.url, b)
	chk.D(sub.Relay.Write(b))
}
