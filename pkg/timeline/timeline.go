// Package timeline assembles note feeds from relays: the follow list of a
// user, pages of notes by a set of authors, and a live feed of new notes.
package timeline

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/Hubmakerlabs/postr/pkg/context"
	"github.com/Hubmakerlabs/postr/pkg/nostr/event"
	"github.com/Hubmakerlabs/postr/pkg/nostr/filter"
	"github.com/Hubmakerlabs/postr/pkg/nostr/filters"
	"github.com/Hubmakerlabs/postr/pkg/nostr/keys"
	"github.com/Hubmakerlabs/postr/pkg/nostr/kind"
	"github.com/Hubmakerlabs/postr/pkg/nostr/timestamp"
	"github.com/Hubmakerlabs/postr/pkg/pool"
	"github.com/Hubmakerlabs/postr/pkg/slog"
)

var log, chk = slog.New(os.Stderr)

// ErrNoData means no relay could be asked.
var ErrNoData = errors.New("no relay answered")

// DefaultLimit is the page size when none is given.
const DefaultLimit = 50

// Source is what the assembler reads from, eg. a *pool.T.
type Source interface {
	Query(c context.T, f filters.T, urls []string,
		timeout time.Duration) *pool.Result
	SubscribeFunc(c context.T, f filters.T, urls []string,
		onEvent func(ev *event.T)) (cancel func(), err error)
}

// NoteKinds are the kinds shown in a feed.
var NoteKinds = []kind.T{kind.TextNote, kind.Repost}

// Page is one page of a feed, newest first. NoData is set when no relay
// answered, as opposed to an empty page from relays that had nothing.
type Page struct {
	Events []*event.T
	NoData bool
	Failed map[string]error

	// edge holds every id shown so far whose created_at is Oldest.
	edge map[string]struct{}
}

func edgeOf(evs []*event.T, at timestamp.T,
	base map[string]struct{}) (edge map[string]struct{}) {

	edge = make(map[string]struct{}, len(base))
	for id := range base {
		edge[id] = struct{}{}
	}
	for _, ev := range evs {
		if ev.CreatedAt == at {
			edge[ev.ID] = struct{}{}
		}
	}
	return
}

// Oldest is the created_at of the last event. Notes of that same second may
// still follow on the next page, see Next.
func (p Page) Oldest() (ts *timestamp.T) {
	if len(p.Events) == 0 {
		return nil
	}
	t := p.Events[len(p.Events)-1].CreatedAt
	return &t
}

type Assembler struct {
	src     Source
	timeout time.Duration
}

// New makes an assembler. A zero timeout uses the source's default.
func New(src Source, timeout time.Duration) *Assembler {
	return &Assembler{src: src, timeout: timeout}
}

// Follows returns the pubkeys in the newest follow list of pubkey, in list
// order. A user without a follow list follows nobody.
func (a *Assembler) Follows(c context.T, pubkey string,
	urls []string) (follows []string, err error) {

	res := a.src.Query(c, filters.T{{
		Kinds:   []kind.T{kind.FollowList},
		Authors: []string{pubkey},
	}}, urls, a.timeout)
	if res.AllFailed {
		return nil, ErrNoData
	}
	var newest *event.T
	for _, ev := range res.Resolved() {
		if ev.Kind == kind.FollowList && ev.PubKey == pubkey {
			newest = ev
		}
	}
	if newest == nil {
		log.D.F("%s has no follow list", pubkey)
		return
	}
	seen := make(map[string]struct{})
	for _, pk := range newest.Tags.Values("p") {
		if _, ok := seen[pk]; ok || !keys.IsValid32ByteHex(pk) {
			continue
		}
		seen[pk] = struct{}{}
		follows = append(follows, pk)
	}
	return
}

// Feed returns up to limit notes by authors created before until, or the
// newest ones when until is nil.
func (a *Assembler) Feed(c context.T, authors []string, urls []string,
	limit int, until *timestamp.T) (page Page) {

	if len(authors) == 0 {
		return
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	res := a.src.Query(c, filters.T{{
		Kinds:   NoteKinds,
		Authors: authors,
		Until:   until,
		Limit:   limit,
	}}, urls, a.timeout)
	return Page{Events: res.Events, NoData: res.AllFailed, Failed: res.Failed}
}

// Next returns the page after prev: notes created at or before prev's oldest
// note, leaving out the ones prev already holds. An empty prev gives the
// newest page.
func (a *Assembler) Next(c context.T, authors []string, urls []string,
	limit int, prev Page) (page Page) {

	until := prev.Oldest()
	if until == nil {
		return a.Feed(c, authors, urls, limit, nil)
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	shown := prev.edge
	if shown == nil {
		shown = edgeOf(prev.Events, *until, nil)
	}
	page = a.Feed(c, authors, urls, limit+len(shown), until)
	events := make([]*event.T, 0, len(page.Events))
	for _, ev := range page.Events {
		if _, ok := shown[ev.ID]; !ok {
			events = append(events, ev)
		}
	}
	if len(events) > limit {
		events = events[:limit]
	}
	page.Events = events
	if oldest := page.Oldest(); oldest != nil {
		if *oldest == *until {
			page.edge = edgeOf(events, *oldest, shown)
		} else {
			page.edge = edgeOf(events, *oldest, nil)
		}
	}
	return
}

// Home is the feed of everyone pubkey follows, and pubkey itself.
func (a *Assembler) Home(c context.T, pubkey string, urls []string,
	limit int) (page Page, err error) {

	var follows []string
	if follows, err = a.Follows(c, pubkey, urls); err != nil {
		if errors.Is(err, ErrNoData) {
			return Page{NoData: true}, nil
		}
		return
	}
	return a.Feed(c, append([]string{pubkey}, follows...), urls, limit, nil),
		nil
}

// Live calls onEvent for every new note by authors from now on, until
// cancel is called or c is done. When no relay can be subscribed the error
// is ErrNoData.
func (a *Assembler) Live(c context.T, authors []string, urls []string,
	onEvent func(ev *event.T)) (cancel func(), err error) {

	f := &filter.T{Kinds: NoteKinds, Authors: authors,
		Since: timestamp.Now().Ptr()}
	if cancel, err = a.src.SubscribeFunc(c, filters.T{f}, urls,
		onEvent); errors.Is(err, pool.ErrNoRelays) {
		err = fmt.Errorf("%w: %w", ErrNoData, err)
	}
	return
}
