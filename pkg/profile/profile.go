// Package profile finds user profiles: the newest kind 0 event of a pubkey
// across a set of relays.
package profile

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/Hubmakerlabs/postr/pkg/cache"
	"github.com/Hubmakerlabs/postr/pkg/context"
	"github.com/Hubmakerlabs/postr/pkg/nostr/event"
	"github.com/Hubmakerlabs/postr/pkg/nostr/filters"
	"github.com/Hubmakerlabs/postr/pkg/nostr/kind"
	"github.com/Hubmakerlabs/postr/pkg/nostr/metadata"
	"github.com/Hubmakerlabs/postr/pkg/pool"
	"github.com/Hubmakerlabs/postr/pkg/slog"
)

var log, chk = slog.New(os.Stderr)

var (
	// ErrNoData means no relay could be asked, so nothing is known.
	ErrNoData = errors.New("no relay answered")
	// ErrNotFound means relays answered but none had a profile.
	ErrNotFound = errors.New("profile not found")
)

// Querier runs a merged query over relays, eg. a *pool.T.
type Querier interface {
	Query(c context.T, f filters.T, urls []string,
		timeout time.Duration) *pool.Result
}

// T is a resolved profile.
type T struct {
	PubKey   string
	Event    *event.T
	Metadata *metadata.T
}

// Name is the name to show for the profile, the pubkey if it has none.
func (p *T) Name() string {
	if p == nil {
		return ""
	}
	return p.Metadata.ShortName(p.PubKey)
}

// Resolver keeps every profile event it has seen, so a newer answer from a
// later query replaces an older one and an older one never wins.
type Resolver struct {
	q       Querier
	timeout time.Duration
	seen    *cache.T
}

// NewResolver makes a Resolver. A zero timeout uses the querier's default.
func NewResolver(q Querier, timeout time.Duration) *Resolver {
	return &Resolver{q: q, timeout: timeout, seen: cache.New()}
}

func (r *Resolver) query(c context.T, pubkeys []string,
	urls []string) (res *pool.Result) {

	res = r.q.Query(c, filters.T{{
		Kinds:   []kind.T{kind.ProfileMetadata},
		Authors: pubkeys,
	}}, urls, r.timeout)
	for _, ev := range res.Events {
		r.seen.Add(ev)
	}
	return
}

// Cached returns the newest profile seen so far for pubkey, without asking
// any relay.
func (r *Resolver) Cached(pubkey string) (p *T, err error) {
	ev := r.seen.Latest(pubkey, uint16(kind.ProfileMetadata), "")
	if ev == nil {
		return nil, ErrNotFound
	}
	var m *metadata.T
	if m, err = metadata.Parse(ev); chk.D(err) {
		return nil, fmt.Errorf("profile of %s: %w", pubkey, err)
	}
	return &T{PubKey: pubkey, Event: ev, Metadata: m}, nil
}

// Resolve asks urls for the profile of pubkey. When every relay failed and
// no profile was seen before it returns ErrNoData.
func (r *Resolver) Resolve(c context.T, pubkey string,
	urls []string) (p *T, err error) {

	res := r.query(c, []string{pubkey}, urls)
	if p, err = r.Cached(pubkey); errors.Is(err, ErrNotFound) && res.AllFailed {
		log.D.F("profile %s: no relay answered: %v", pubkey, res.Failed)
		return nil, ErrNoData
	}
	return
}

// ResolveMany resolves the profiles of pubkeys in one query. Pubkeys without
// a profile are missing from the map.
func (r *Resolver) ResolveMany(c context.T, pubkeys []string,
	urls []string) (profiles map[string]*T, err error) {

	res := r.query(c, pubkeys, urls)
	profiles = make(map[string]*T)
	for _, pk := range pubkeys {
		var p *T
		if p, err = r.Cached(pk); err != nil {
			continue
		}
		profiles[pk] = p
	}
	err = nil
	if len(profiles) == 0 && res.AllFailed {
		err = ErrNoData
	}
	return
}
