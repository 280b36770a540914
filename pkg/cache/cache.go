// Package cache deduplicates events by id and keeps the current version of
// replaceable events.
package cache

import (
	"sort"
	"sync"

	"github.com/Hubmakerlabs/postr/pkg/nostr/event"
	"github.com/puzpuzpuz/xsync/v2"
)

// Resolve returns whichever of current and candidate is the current version
// of a replaceable event: the later created_at, or on equal timestamps the
// lexicographically larger id. A nil current yields candidate. It does not
// check that the two share a key.
func Resolve(current, candidate *event.T) *event.T {
	switch {
	case current == nil:
		return candidate
	case candidate == nil:
		return current
	case candidate.CreatedAt > current.CreatedAt:
		return candidate
	case candidate.CreatedAt < current.CreatedAt:
		return current
	case candidate.ID > current.ID:
		return candidate
	}
	return current
}

// Key identifies the slot a replaceable event occupies.
type Key struct {
	PubKey string
	Kind   uint16
	D      string
}

// KeyOf returns the replacement key of ev and whether ev is replaceable at
// all. D is only set for parameterized replaceable kinds.
func KeyOf(ev *event.T) (k Key, ok bool) {
	switch {
	case ev.Kind.IsReplaceable():
		return Key{PubKey: ev.PubKey, Kind: uint16(ev.Kind)}, true
	case ev.Kind.IsParameterizedReplaceable():
		return Key{PubKey: ev.PubKey, Kind: uint16(ev.Kind), D: ev.Tags.D()},
			true
	}
	return
}

// T is an event cache, safe for concurrent use. The first copy of an id is
// the one kept; events are shared, never modified.
type T struct {
	byID   *xsync.MapOf[string, *event.T]
	mx     sync.Mutex
	latest map[Key]*event.T
}

func New() *T {
	return &T{
		byID:   xsync.NewMapOf[*event.T](),
		latest: make(map[Key]*event.T),
	}
}

// Add records ev and returns true if its id was not seen before. Replaceable
// events update the current version of their key if they win against it, in
// whatever order they arrive.
func (c *T) Add(ev *event.T) (isNew bool) {
	if ev == nil {
		return
	}
	k, replaceable := KeyOf(ev)
	if !replaceable {
		_, loaded := c.byID.LoadOrStore(ev.ID, ev)
		return !loaded
	}
	c.mx.Lock()
	defer c.mx.Unlock()
	if _, loaded := c.byID.LoadOrStore(ev.ID, ev); loaded {
		return false
	}
	c.latest[k] = Resolve(c.latest[k], ev)
	return true
}

// Has returns true if an event with id was added.
func (c *T) Has(id string) (ok bool) {
	_, ok = c.byID.Load(id)
	return
}

// Len is the number of unique events.
func (c *T) Len() int { return c.byID.Size() }

// Latest returns the current version for a replaceable key, or nil.
func (c *T) Latest(pubkey string, kind uint16, d string) *event.T {
	c.mx.Lock()
	defer c.mx.Unlock()
	return c.latest[Key{PubKey: pubkey, Kind: kind, D: d}]
}

// Events returns every unique event, newest first.
func (c *T) Events() (evs []*event.T) {
	evs = make([]*event.T, 0, c.byID.Size())
	c.byID.Range(func(_ string, ev *event.T) bool {
		evs = append(evs, ev)
		return true
	})
	sort.Sort(event.Descending(evs))
	return
}

// Resolved returns the regular events plus only the current version of each
// replaceable key, newest first.
func (c *T) Resolved() (evs []*event.T) {
	c.mx.Lock()
	defer c.mx.Unlock()
	evs = make([]*event.T, 0, c.byID.Size())
	c.byID.Range(func(_ string, ev *event.T) bool {
		if k, ok := KeyOf(ev); ok && c.latest[k] != ev {
			return true
		}
		evs = append(evs, ev)
		return true
	})
	sort.Sort(event.Descending(evs))
	return
}

// Clear forgets everything.
func (c *T) Clear() {
	c.mx.Lock()
	defer c.mx.Unlock()
	c.byID.Clear()
	c.latest = make(map[Key]*event.T)
}
