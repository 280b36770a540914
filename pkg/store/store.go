// Package store keeps the client's local state in a badger database: the
// secret key of the active identity and the user's relay list.
package store

import (
	"errors"
	"fmt"
	"os"

	"github.com/Hubmakerlabs/postr/pkg/nostr/normalize"
	"github.com/Hubmakerlabs/postr/pkg/nostr/wire/text"
	"github.com/Hubmakerlabs/postr/pkg/slog"
	"github.com/Hubmakerlabs/postr/pkg/units"
	"github.com/dgraph-io/badger/v4"
	"github.com/tidwall/gjson"
)

var log, chk = slog.New(os.Stderr)

var (
	secretKey = []byte("identity/secret")
	relaysKey = []byte("relays")
)

var ErrInvalidURL = errors.New("invalid relay URL")

// DefaultRelays is the relay list used until the user saves one.
var DefaultRelays = []string{
	"wss://relay.damus.io",
	"wss://nos.lol",
	"wss://relay.nostr.band",
}

// T is an open store.
type T struct {
	Path string
	*badger.DB
}

// Open opens or creates the store at path. An empty path opens a store that
// lives only in memory.
func Open(path string) (s *T, err error) {
	opts := badger.DefaultOptions(path)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	opts.BlockSize = 4 * units.Kib
	opts.ValueLogFileSize = 16 * units.Mib
	opts.Logger = logger{slog.Warn, "badger " + path}
	s = &T{Path: path}
	if s.DB, err = badger.Open(opts); chk.E(err) {
		return nil, fmt.Errorf("opening store at '%s': %w", path, err)
	}
	log.D.Ln("opened store", path)
	return
}

// Close flushes and closes the database.
func (s *T) Close() (err error) {
	if s == nil || s.DB == nil {
		return
	}
	return s.DB.Close()
}

func (s *T) get(key []byte) (val []byte, ok bool, err error) {
	err = s.View(func(txn *badger.Txn) (err error) {
		val, ok, err = getTxn(txn, key)
		return
	})
	return
}

func getTxn(txn *badger.Txn, key []byte) (val []byte, ok bool, err error) {
	var item *badger.Item
	if item, err = txn.Get(key); errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	} else if err != nil {
		return
	}
	ok = true
	val, err = item.ValueCopy(nil)
	return
}

func (s *T) set(key, val []byte) error {
	return s.Update(func(txn *badger.Txn) error { return txn.Set(key, val) })
}

func (s *T) del(key []byte) error {
	return s.Update(func(txn *badger.Txn) error { return txn.Delete(key) })
}

// Secret is the opaque store for the identity's secret key.
type Secret struct{ s *T }

func (s *T) Secret() Secret { return Secret{s} }

func (k Secret) Save(b []byte) (err error) {
	if err = k.s.set(secretKey, b); chk.E(err) {
		return fmt.Errorf("saving secret: %w", err)
	}
	return
}

// Load returns ok false when nothing has been saved.
func (k Secret) Load() (b []byte, ok bool, err error) {
	if b, ok, err = k.s.get(secretKey); chk.E(err) {
		err = fmt.Errorf("loading secret: %w", err)
	}
	return
}

func (k Secret) Clear() (err error) {
	if err = k.s.del(secretKey); chk.E(err) {
		return fmt.Errorf("clearing secret: %w", err)
	}
	return
}

// Relays is the persisted, ordered relay list.
type Relays struct{ s *T }

func (s *T) Relays() Relays { return Relays{s} }

// Load returns the saved list, or DefaultRelays if none was saved.
func (r Relays) Load() (urls []string, err error) {
	var b []byte
	var ok bool
	if b, ok, err = r.s.get(relaysKey); chk.E(err) {
		return
	}
	return parseRelays(b, ok)
}

func parseRelays(b []byte, ok bool) (urls []string, err error) {
	if !ok {
		return append([]string(nil), DefaultRelays...), nil
	}
	if !gjson.ValidBytes(b) {
		return nil, fmt.Errorf("relay list is corrupt: %s", b)
	}
	urls = []string{}
	gjson.ParseBytes(b).ForEach(func(_, v gjson.Result) bool {
		urls = append(urls, v.String())
		return true
	})
	return
}

func encodeRelays(urls []string) []byte {
	urls = normalize.URLs(urls)
	if urls == nil {
		urls = []string{}
	}
	return text.EscapeStrings(nil, urls)
}

// Save replaces the list, normalizing and deduplicating it.
func (r Relays) Save(urls []string) (err error) {
	if err = r.s.set(relaysKey, encodeRelays(urls)); chk.E(err) {
		return fmt.Errorf("saving relay list: %w", err)
	}
	return
}

// edit reads the list, applies fn and writes the result back in one
// transaction, retrying when a concurrent edit conflicts.
func (r Relays) edit(fn func(current []string) (urls []string,
	changed bool)) (urls []string, changed bool, err error) {

	for {
		err = r.s.Update(func(txn *badger.Txn) (err error) {
			var b []byte
			var ok bool
			if b, ok, err = getTxn(txn, relaysKey); err != nil {
				return
			}
			var current []string
			if current, err = parseRelays(b, ok); err != nil {
				return
			}
			if urls, changed = fn(current); !changed {
				return
			}
			return txn.Set(relaysKey, encodeRelays(urls))
		})
		if !errors.Is(err, badger.ErrConflict) {
			break
		}
		log.D.Ln("relay list changed underneath, retrying")
	}
	if chk.E(err) {
		return nil, false, fmt.Errorf("editing relay list: %w", err)
	}
	return
}

// Add appends url to the list unless it is already there.
func (r Relays) Add(url string) (urls []string, added bool, err error) {
	n := normalize.URL(url)
	if n == "" {
		return nil, false, fmt.Errorf("%w: '%s'", ErrInvalidURL, url)
	}
	return r.edit(func(current []string) ([]string, bool) {
		for _, u := range current {
			if u == n {
				return current, false
			}
		}
		return append(current, n), true
	})
}

// Remove takes url out of the list.
func (r Relays) Remove(url string) (urls []string, removed bool, err error) {
	n := normalize.URL(url)
	if n == "" {
		return nil, false, fmt.Errorf("%w: '%s'", ErrInvalidURL, url)
	}
	return r.edit(func(current []string) (urls []string, removed bool) {
		urls = make([]string, 0, len(current))
		for _, u := range current {
			if u == n {
				removed = true
				continue
			}
			urls = append(urls, u)
		}
		return
	})
}
