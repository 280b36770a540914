package pool

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/Hubmakerlabs/postr/pkg/context"
	"github.com/Hubmakerlabs/postr/pkg/nostr/event"
	"github.com/Hubmakerlabs/postr/pkg/relay"
	"golang.org/x/sync/errgroup"
)

// Status of a publish on one relay.
type Status int

const (
	Pending Status = iota
	Success
	Failure
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Success:
		return "success"
	case Failure:
		return "failure"
	}
	return "unknown"
}

// Ack is one relay's answer to a publish. Reason carries the relay's message
// for a rejection, or the error text otherwise.
type Ack struct {
	Status Status
	Reason string
	Err    error
}

// Acks maps relay url to its answer.
type Acks map[string]Ack

// Succeeded returns the urls that accepted the event, sorted.
func (a Acks) Succeeded() (urls []string) {
	for u, ack := range a {
		if ack.Status == Success {
			urls = append(urls, u)
		}
	}
	sort.Strings(urls)
	return
}

// Failed returns the urls that rejected the event, did not answer in time or
// could not be reached, sorted.
func (a Acks) Failed() (urls []string) {
	for u, ack := range a {
		if ack.Status == Failure {
			urls = append(urls, u)
		}
	}
	sort.Strings(urls)
	return
}

// URLs returns every url in the set, sorted.
func (a Acks) URLs() (urls []string) {
	for u := range a {
		urls = append(urls, u)
	}
	sort.Strings(urls)
	return
}

func failure(err error) Ack {
	ack := Ack{Status: Failure, Err: err, Reason: err.Error()}
	var rej *relay.RejectedError
	if errors.As(err, &rej) {
		ack.Reason = rej.Reason
	}
	return ack
}

// Publish sends ev to every url concurrently and reports what each relay
// said. Each relay is connected and sent the event in its own task, bounded as
// a whole by the publish timeout: a relay that has neither accepted nor
// rejected the event by then is a Failure. A partial success is a normal
// result and nothing is rolled back.
//
// Relays that timed out after the event was sent get it again when
// WithPublishRetries was given, each attempt with a fresh deadline.
func (p *T) Publish(c context.T, ev *event.T, urls []string) (acks Acks) {
	acks = make(Acks)
	invalid := make(map[string]error)
	urls = dedupe(urls, invalid)
	for u, err := range invalid {
		acks[u] = failure(err)
	}
	for _, u := range urls {
		acks[u] = Ack{Status: Pending}
	}
	var mx sync.Mutex
	var g errgroup.Group
	for _, u := range urls {
		g.Go(func() error {
			err := p.publishOne(c, u, ev)
			mx.Lock()
			defer mx.Unlock()
			if err != nil {
				acks[u] = failure(err)
			} else {
				acks[u] = Ack{Status: Success}
			}
			return nil
		})
	}
	chk.E(g.Wait())
	for u, ack := range acks {
		p.metrics.acks.WithLabelValues(ack.Status.String()).Inc()
		if ack.Status == Failure {
			log.D.F("publish %s to %s failed: %s", ev.ID, u, ack.Reason)
		}
	}
	return
}

func (p *T) publishOne(c context.T, u string, ev *event.T) (err error) {
	var rl *relay.T
	for attempt := 0; ; attempt++ {
		ac, cancel := context.Timeout(c, p.publishTimeout)
		if rl == nil {
			if rl, err = p.ensure(ac, u); err != nil {
				cancel()
				if ac.Err() != nil && c.Err() == nil {
					err = fmt.Errorf("%w: no handshake from %s: %w",
						relay.ErrTimeout, u, err)
				}
				return
			}
		}
		err = rl.Publish(ac, ev)
		cancel()
		if err == nil || !errors.Is(err, relay.ErrTimeout) {
			return
		}
		if attempt >= p.publishRetries || c.Err() != nil {
			return
		}
		log.D.F("retrying publish of %s to %s (%d/%d)", ev.ID, u,
			attempt+1, p.publishRetries)
		if !rl.IsConnected() {
			return fmt.Errorf("%w: %s dropped before retry", relay.ErrConnection,
				u)
		}
	}
}
