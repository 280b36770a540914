package event

import (
	"strconv"

	"github.com/Hubmakerlabs/postr/pkg/hex"
	"github.com/Hubmakerlabs/postr/pkg/nostr/kind"
	"github.com/Hubmakerlabs/postr/pkg/nostr/tags"
	"github.com/Hubmakerlabs/postr/pkg/nostr/timestamp"
	"github.com/Hubmakerlabs/postr/pkg/nostr/wire/text"
	"github.com/minio/sha256-simd"
)

func Hash(in []byte) (out []byte) {
	h := sha256.Sum256(in)
	return h[:]
}

// T is the primary datatype of nostr. This is the form of the structure
// that defines its JSON string based format.
//
// Once signed an event is not modified; anything that holds a *T shares it
// read-only.
type T struct {

	// ID is the SHA256 hash of the canonical encoding of the event
	ID string `json:"id"`

	// PubKey is the public key of the event creator in *hexadecimal* format
	PubKey string `json:"pubkey"`

	// CreatedAt is the UNIX timestamp of the event according to the event
	// creator (never trust a timestamp!)
	CreatedAt timestamp.T `json:"created_at"`

	// Kind is the nostr protocol code for the type of event. See kind.T
	Kind kind.T `json:"kind"`

	// Tags are a list of tags, which are a list of strings usually structured
	// as a 3 layer scheme indicating specific features of an event.
	Tags tags.T `json:"tags"`

	// Content is an arbitrary string that can contain anything, but usually
	// conforming to a specification relating to the Kind and the Tags.
	Content string `json:"content"`

	// Sig is the signature on the ID hash that validates as coming from the
	// Pubkey.
	Sig string `json:"sig"`
}

// Descending sorts a slice of events in reverse chronological order (newest
// first). Events with the same timestamp are ordered by id, larger first, so
// the order is the same no matter which relay answered first.
type Descending []*T

func (e Descending) Len() int { return len(e) }
func (e Descending) Less(i, j int) bool {
	if e[i].CreatedAt != e[j].CreatedAt {
		return e[i].CreatedAt > e[j].CreatedAt
	}
	return e[i].ID > e[j].ID
}
func (e Descending) Swap(i, j int) { e[i], e[j] = e[j], e[i] }

// Serialize returns the canonical form the id is the hash of:
//
//	[0,<pubkey>,<created_at>,<kind>,<tags>,<content>]
func (ev *T) Serialize() (b []byte) {
	b = make([]byte, 0, 100+len(ev.Content)+len(ev.Tags)*80)
	b = append(b, `[0,"`...)
	b = append(b, ev.PubKey...)
	b = append(b, `",`...)
	b = strconv.AppendInt(b, int64(ev.CreatedAt), 10)
	b = append(b, ',')
	b = strconv.AppendUint(b, uint64(ev.Kind), 10)
	b = append(b, ',')
	b = ev.Tags.MarshalTo(b)
	b = append(b, ',')
	b = text.EscapeString(b, ev.Content)
	b = append(b, ']')
	return
}

// GetIDBytes returns the raw SHA256 hash of the canonical form of an T.
func (ev *T) GetIDBytes() []byte { return Hash(ev.Serialize()) }

// GetID serializes and returns the event ID as a hexadecimal string.
func (ev *T) GetID() string { return hex.Enc(ev.GetIDBytes()) }

// CheckID returns true if the ID field is the hash of the event's content.
func (ev *T) CheckID() bool { return ev.ID == ev.GetID() }

// MarshalJSON writes the wire form of the event. Tags are always an array,
// never null.
func (ev *T) MarshalJSON() (b []byte, err error) {
	b = make([]byte, 0, 300+len(ev.Content)+len(ev.Tags)*80)
	b = append(b, `{"id":`...)
	b = text.EscapeString(b, ev.ID)
	b = append(b, `,"pubkey":`...)
	b = text.EscapeString(b, ev.PubKey)
	b = append(b, `,"created_at":`...)
	b = strconv.AppendInt(b, int64(ev.CreatedAt), 10)
	b = append(b, `,"kind":`...)
	b = strconv.AppendUint(b, uint64(ev.Kind), 10)
	b = append(b, `,"tags":`...)
	b = ev.Tags.MarshalTo(b)
	b = append(b, `,"content":`...)
	b = text.EscapeString(b, ev.Content)
	b = append(b, `,"sig":`...)
	b = text.EscapeString(b, ev.Sig)
	b = append(b, '}')
	return
}

func (ev *T) String() string {
	b, _ := ev.MarshalJSON()
	return string(b)
}
