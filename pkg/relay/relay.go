// Package relay is a client connection to a single relay: connect and
// disconnect, publish with OK tracking, and subscriptions.
//
// A connection never reconnects by itself. After a failed handshake or a
// dropped transport it stays Failed or Disconnected until Connect is called
// again.
package relay

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Hubmakerlabs/postr/pkg/context"
	"github.com/Hubmakerlabs/postr/pkg/nostr/connection"
	"github.com/Hubmakerlabs/postr/pkg/nostr/envelopes"
	"github.com/Hubmakerlabs/postr/pkg/nostr/event"
	"github.com/Hubmakerlabs/postr/pkg/nostr/filters"
	"github.com/Hubmakerlabs/postr/pkg/nostr/normalize"
	"github.com/Hubmakerlabs/postr/pkg/nostr/signer"
	"github.com/Hubmakerlabs/postr/pkg/slog"
	"github.com/puzpuzpuz/xsync/v2"
)

var log, chk = slog.New(os.Stderr)

const (
	DefaultConnectTimeout = 7 * time.Second
	DefaultPublishTimeout = 4 * time.Second
	PingInterval          = 29 * time.Second
	WriteTimeout          = 5 * time.Second
)

var (
	ErrNotConnected = errors.New("relay not connected")
	ErrConnection   = errors.New("relay connection error")
	ErrTimeout      = errors.New("relay timed out")
	ErrRejected     = errors.New("rejected by relay")
)

// RejectedError is an explicit OK false from a relay.
type RejectedError struct {
	URL     string
	EventID string
	Reason  string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("%s rejected %s: %s", e.URL, e.EventID, e.Reason)
}

func (e *RejectedError) Unwrap() error { return ErrRejected }

// State of a connection.
type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
	Failed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Failed:
		return "failed"
	}
	return "unknown"
}

type writeRequest struct {
	msg    []byte
	answer chan error
}

// T is a connection to one relay.
type T struct {
	url    string
	header http.Header

	// connectMx serializes Connect so two callers never dial twice.
	connectMx sync.Mutex

	mx         sync.Mutex
	state      State
	err        error
	conn       *connection.C
	ctx        context.T
	cancel     context.F
	writeQueue chan writeRequest

	Subscriptions *xsync.MapOf[string, *Subscription]
	okCallbacks   *xsync.MapOf[string, func(ok bool, reason string)]
	counter       atomic.Int64

	noticeHandler func(url, notice string)
	verifier      signer.I

	// AssumeValid skips signature checks on events from this relay.
	AssumeValid bool
}

// Option configures a T.
type Option func(r *T)

// WithNoticeHandler receives NOTICE messages. When not given they are logged
// at debug level.
func WithNoticeHandler(fn func(url, notice string)) Option {
	return func(r *T) { r.noticeHandler = fn }
}

// WithVerifier replaces the signature checker for incoming events.
func WithVerifier(v signer.I) Option {
	return func(r *T) { r.verifier = v }
}

// WithAssumeValid turns off signature checks on incoming events.
func WithAssumeValid() Option {
	return func(r *T) { r.AssumeValid = true }
}

// WithHeader sets extra HTTP headers for the handshake, eg. Origin.
func WithHeader(h http.Header) Option {
	return func(r *T) { r.header = h }
}

// New returns a relay in the Disconnected state.
func New(url string, opts ...Option) (r *T) {
	r = &T{
		url:           normalize.URL(url),
		Subscriptions: xsync.NewMapOf[*Subscription](),
		okCallbacks:   xsync.NewMapOf[func(bool, string)](),
		verifier:      signer.Schnorr{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return
}

// Connect returns a connected relay for url.
func Connect(c context.T, url string, opts ...Option) (r *T, err error) {
	r = New(url, opts...)
	err = r.Connect(c)
	return
}

func (r *T) URL() string    { return r.url }
func (r *T) String() string { return r.url }

// State returns the current connection state.
func (r *T) State() State {
	r.mx.Lock()
	defer r.mx.Unlock()
	return r.state
}

// Err returns the error that caused the last transition to Failed or
// Disconnected, nil after a Disconnect call.
func (r *T) Err() error {
	r.mx.Lock()
	defer r.mx.Unlock()
	return r.err
}

func (r *T) IsConnected() bool { return r.State() == Connected }

func (r *T) live() (ctx context.T, wq chan writeRequest, ok bool) {
	r.mx.Lock()
	defer r.mx.Unlock()
	return r.ctx, r.writeQueue, r.state == Connected
}

// Connect opens the websocket. If c has no deadline the handshake is limited
// to DefaultConnectTimeout. Once connected, cancelling c has no effect: call
// Disconnect to close the connection. Connecting an already connected relay
// does nothing.
func (r *T) Connect(c context.T) (err error) {
	if r.url == "" {
		return fmt.Errorf("%w: invalid relay URL", ErrConnection)
	}
	r.connectMx.Lock()
	defer r.connectMx.Unlock()
	r.mx.Lock()
	if r.state == Connected {
		r.mx.Unlock()
		return
	}
	r.state = Connecting
	r.mx.Unlock()
	if _, ok := c.Deadline(); !ok {
		var cancel context.F
		c, cancel = context.Timeout(c, DefaultConnectTimeout)
		defer cancel()
	}
	var conn *connection.C
	if conn, err = connection.Dial(c, r.url, r.header); err != nil {
		err = fmt.Errorf("%w: %w", ErrConnection, err)
		r.mx.Lock()
		r.state, r.err = Failed, err
		r.mx.Unlock()
		log.D.F("{%s} %v", r.url, err)
		return
	}
	ctx, cancel := context.Cancel(context.Bg())
	wq := make(chan writeRequest)
	r.mx.Lock()
	r.conn, r.ctx, r.cancel, r.writeQueue = conn, ctx, cancel, wq
	r.state, r.err = Connected, nil
	r.mx.Unlock()
	log.D.F("{%s} connected", r.url)
	go r.writeLoop(ctx, conn, wq)
	go r.readLoop(ctx, conn)
	return
}

// Disconnect closes the connection and ends every subscription. It is a no-op
// when not connected.
func (r *T) Disconnect() (err error) {
	r.mx.Lock()
	conn := r.conn
	r.mx.Unlock()
	if conn == nil {
		return
	}
	r.drop(conn, nil)
	return
}

// drop tears down conn if it is still the current connection. cause is nil
// for a requested disconnect.
func (r *T) drop(conn *connection.C, cause error) {
	r.mx.Lock()
	if r.conn != conn {
		r.mx.Unlock()
		return
	}
	cancel := r.cancel
	r.conn, r.cancel, r.writeQueue = nil, nil, nil
	r.state = Disconnected
	r.err = nil
	if cause != nil {
		r.err = fmt.Errorf("%w: %w", ErrConnection, cause)
	}
	r.mx.Unlock()
	cancel()
	chk.T(conn.Close())
	if cause != nil {
		log.D.F("{%s} connection lost: %v", r.url, cause)
	}
	var subs []*Subscription
	r.Subscriptions.Range(func(_ string, sub *Subscription) bool {
		subs = append(subs, sub)
		return true
	})
	for _, sub := range subs {
		sub.Unsub()
	}
}

// writeLoop is the only writer on the connection, so frames never interleave.
func (r *T) writeLoop(ctx context.T, conn *connection.C, wq chan writeRequest) {
	ticker := time.NewTicker(PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := conn.Ping(); err != nil {
				log.D.F("{%s} error writing ping: %v; closing websocket",
					r.url, err)
				r.drop(conn, err)
				return
			}
		case wr := <-wq:
			err := conn.WriteMessage(wr.msg)
			wr.answer <- err
			if err != nil {
				r.drop(conn, err)
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (r *T) readLoop(ctx context.T, conn *connection.C) {
	buf := new(bytes.Buffer)
	for {
		buf.Reset()
		if err := conn.ReadMessage(ctx, buf); err != nil {
			if ctx.Err() == nil {
				r.drop(conn, err)
			}
			return
		}
		r.handle(bytes.Clone(buf.Bytes()))
	}
}

func (r *T) handle(message []byte) {
	env, err := envelopes.Parse(message)
	if err != nil {
		log.D.F("{%s} discarding frame: %v: %s", r.url, err, message)
		return
	}
	switch env := env.(type) {
	case *envelopes.Notice:
		if r.noticeHandler != nil {
			r.noticeHandler(r.url, env.Message)
		} else {
			log.D.F("NOTICE from %s: '%s'", r.url, env.Message)
		}
	case *envelopes.Auth:
		log.D.F("{%s} ignoring auth challenge %s", r.url, env.Challenge)
	case *envelopes.Event:
		if env.SubscriptionID == "" {
			log.D.F("{%s} event without subscription id", r.url)
			return
		}
		sub, ok := r.Subscriptions.Load(env.SubscriptionID)
		if !ok {
			log.T.F("{%s} no subscription with id '%s'", r.url,
				env.SubscriptionID)
			return
		}
		if !sub.Filters.Match(env.Event) {
			log.D.F("{%s} filter does not match: %v ~ %v", r.url,
				sub.Filters, env.Event)
			return
		}
		if !r.AssumeValid {
			var valid bool
			if valid, err = r.verifier.Verify(env.Event); !valid {
				log.D.F("{%s} invalid event %s: %v", r.url, env.Event.ID, err)
				return
			}
		}
		sub.dispatchEvent(env.Event)
	case *envelopes.EOSE:
		if sub, ok := r.Subscriptions.Load(env.SubscriptionID); ok {
			sub.dispatchEose()
		}
	case *envelopes.Closed:
		if sub, ok := r.Subscriptions.Load(env.SubscriptionID); ok {
			sub.dispatchClosed(env.Reason)
		}
	case *envelopes.OK:
		if cb, ok := r.okCallbacks.Load(env.EventID); ok {
			cb(env.OK, env.Reason)
		} else {
			log.D.F("{%s} got an unexpected OK message for event %s", r.url,
				env.EventID)
		}
	default:
		log.D.F("{%s} unexpected %s frame", r.url, env.Label())
	}
}

// Write sends a raw frame.
func (r *T) Write(msg []byte) (err error) {
	ctx, wq, ok := r.live()
	if !ok {
		return ErrNotConnected
	}
	answer := make(chan error, 1)
	timer := time.NewTimer(WriteTimeout)
	defer timer.Stop()
	select {
	case wq <- writeRequest{msg: msg, answer: answer}:
	case <-ctx.Done():
		return ErrNotConnected
	case <-timer.C:
		return fmt.Errorf("%w: write to %s", ErrTimeout, r.url)
	}
	select {
	case err = <-answer:
	case <-timer.C:
		return fmt.Errorf("%w: write to %s", ErrTimeout, r.url)
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConnection, err)
	}
	return
}

// Publish sends an EVENT and waits for the relay's OK. If c has no deadline
// the wait is limited to DefaultPublishTimeout.
//
// Returns nil when accepted, a *RejectedError when the relay said no,
// ErrTimeout when no answer arrived in time and ErrConnection when the
// connection dropped while waiting.
func (r *T) Publish(c context.T, ev *event.T) (err error) {
	connCtx, _, ok := r.live()
	if !ok {
		return ErrNotConnected
	}
	var cancel context.F
	if _, ok = c.Deadline(); !ok {
		c, cancel = context.Timeout(c, DefaultPublishTimeout)
	} else {
		c, cancel = context.Cancel(c)
	}
	defer cancel()
	result := make(chan *envelopes.OK, 1)
	r.okCallbacks.Store(ev.ID, func(ok bool, reason string) {
		select {
		case result <- &envelopes.OK{EventID: ev.ID, OK: ok, Reason: reason}:
		default:
		}
	})
	defer r.okCallbacks.Delete(ev.ID)
	var b []byte
	if b, err = (&envelopes.Event{Event: ev}).MarshalJSON(); chk.E(err) {
		return
	}
	if err = r.Write(b); err != nil {
		return
	}
	select {
	case res := <-result:
		if res.OK {
			return nil
		}
		return &RejectedError{URL: r.url, EventID: ev.ID, Reason: res.Reason}
	case <-c.Done():
		if errors.Is(c.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w: no OK from %s for %s", ErrTimeout, r.url,
				ev.ID)
		}
		return c.Err()
	case <-connCtx.Done():
		return fmt.Errorf("%w: connection to %s lost waiting for OK",
			ErrConnection, r.url)
	}
}

// QuerySync returns the stored events matching f, up to EOSE, a CLOSED from
// the relay or the end of c. If c has no deadline the wait is limited to
// DefaultConnectTimeout.
func (r *T) QuerySync(c context.T, f filters.T) (evs []*event.T, err error) {
	if _, ok := c.Deadline(); !ok {
		var cancel context.F
		c, cancel = context.Timeout(c, DefaultConnectTimeout)
		defer cancel()
	}
	var sub *Subscription
	if sub, err = r.Subscribe(c, f); err != nil {
		return
	}
	defer sub.Unsub()
	for {
		select {
		case ev, more := <-sub.Events:
			if !more {
				return
			}
			evs = append(evs, ev)
		case <-sub.EndOfStoredEvents:
			return append(evs, sub.Drain()...), nil
		case <-c.Done():
			return
		}
	}
}
