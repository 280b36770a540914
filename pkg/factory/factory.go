// Package factory builds and signs the events the client publishes. It has
// no side effects: publishing is up to the caller.
package factory

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/Hubmakerlabs/postr/pkg/nostr/event"
	"github.com/Hubmakerlabs/postr/pkg/nostr/kind"
	"github.com/Hubmakerlabs/postr/pkg/nostr/metadata"
	"github.com/Hubmakerlabs/postr/pkg/nostr/normalize"
	"github.com/Hubmakerlabs/postr/pkg/nostr/signer"
	"github.com/Hubmakerlabs/postr/pkg/nostr/tag"
	"github.com/Hubmakerlabs/postr/pkg/nostr/tags"
	"github.com/Hubmakerlabs/postr/pkg/nostr/timestamp"
	"github.com/Hubmakerlabs/postr/pkg/slog"
)

var log, chk = slog.New(os.Stderr)

var (
	ErrSigningFailure = errors.New("signing failed")
	ErrEmptyContent   = errors.New("empty content")
)

// DefaultReaction is the content of a reaction without a symbol: a like.
const DefaultReaction = "+"

// KeySource provides the secret key to sign with.
type KeySource interface {
	Secret() (sec []byte, err error)
}

// T builds signed events.
type T struct {
	keys   KeySource
	signer signer.I
	now    func() timestamp.T
}

type Option func(f *T)

// WithSigner replaces the schnorr signer.
func WithSigner(s signer.I) Option { return func(f *T) { f.signer = s } }

// WithClock replaces the source of created_at.
func WithClock(now func() timestamp.T) Option {
	return func(f *T) { f.now = now }
}

func New(keys KeySource, opts ...Option) (f *T) {
	f = &T{keys: keys, signer: signer.Schnorr{}, now: timestamp.Now}
	for _, opt := range opts {
		opt(f)
	}
	return
}

// sign stamps ev with the current time and signs it.
func (f *T) sign(ev *event.T) (signed *event.T, err error) {
	var sec []byte
	if sec, err = f.keys.Secret(); err != nil {
		return
	}
	ev.CreatedAt = f.now()
	if ev.Tags == nil {
		ev.Tags = tags.T{}
	}
	if signed, err = f.signer.Sign(ev, sec); chk.D(err) {
		return nil, fmt.Errorf("%w: %w", ErrSigningFailure, err)
	}
	log.T.F("signed %s event %s", signed.Kind.Name(), signed.ID)
	return
}

// Note is a kind 1 text note.
func (f *T) Note(content string, tt tags.T) (ev *event.T, err error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyContent
	}
	return f.sign(&event.T{Kind: kind.TextNote, Content: content,
		Tags: append(tags.T(nil), tt...)})
}

// Reaction is a kind 7 reaction to the event targetID by targetAuthor. An
// empty symbol is a like.
func (f *T) Reaction(targetID, targetAuthor, symbol string) (ev *event.T,
	err error) {

	if symbol == "" {
		symbol = DefaultReaction
	}
	return f.sign(&event.T{
		Kind:    kind.Reaction,
		Content: symbol,
		Tags: tags.T{
			tag.New("e", targetID),
			tag.New("p", targetAuthor),
		},
	})
}

// Metadata is a kind 0 profile event.
func (f *T) Metadata(m *metadata.T) (ev *event.T, err error) {
	if m == nil {
		m = &metadata.T{}
	}
	var content string
	if content, err = m.Content(); chk.E(err) {
		return
	}
	return f.sign(&event.T{Kind: kind.ProfileMetadata, Content: content})
}

// Contacts is a kind 3 follow list of pubkeys. Duplicates are dropped.
func (f *T) Contacts(pubkeys []string) (ev *event.T, err error) {
	tt := tags.T{}
	for _, pk := range pubkeys {
		tt = tt.AppendUnique(tag.New("p", pk))
	}
	return f.sign(&event.T{Kind: kind.FollowList, Tags: tt})
}

// Deletion is a kind 5 request to delete the events ids.
func (f *T) Deletion(ids []string, reason string) (ev *event.T, err error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: nothing to delete", ErrEmptyContent)
	}
	tt := tags.T{}
	for _, id := range ids {
		tt = tt.AppendUnique(tag.New("e", id))
	}
	return f.sign(&event.T{Kind: kind.Deletion, Content: reason, Tags: tt})
}

// Repost is a kind 6 repost of target, embedding it as the content.
func (f *T) Repost(target *event.T, relayHint string) (ev *event.T,
	err error) {

	var b []byte
	if b, err = target.MarshalJSON(); chk.E(err) {
		return
	}
	e := tag.New("e", target.ID)
	if hint := normalize.URL(relayHint); hint != "" {
		e = append(e, hint)
	}
	return f.sign(&event.T{
		Kind:    kind.Repost,
		Content: string(b),
		Tags:    tags.T{e, tag.New("p", target.PubKey)},
	})
}

// RelayList is a kind 10002 relay list, each url in an r tag.
func (f *T) RelayList(urls []string) (ev *event.T, err error) {
	tt := tags.T{}
	for _, u := range normalize.URLs(urls) {
		tt = append(tt, tag.New("r", u))
	}
	return f.sign(&event.T{Kind: kind.RelayListMetadata, Tags: tt})
}
