package filter

import (
	"fmt"
	"os"
	"slices"
	"sort"
	"strconv"

	"github.com/Hubmakerlabs/postr/pkg/nostr/event"
	"github.com/Hubmakerlabs/postr/pkg/nostr/kind"
	"github.com/Hubmakerlabs/postr/pkg/nostr/timestamp"
	"github.com/Hubmakerlabs/postr/pkg/nostr/wire/text"
	"github.com/Hubmakerlabs/postr/pkg/slog"
	"github.com/tidwall/gjson"
)

var log, chk = slog.New(os.Stderr)

// T is a query where one or all elements can be filled in.
//
// Tags are a special case: on the wire each tag key is promoted to its own
// field of the object, prefixed with #, so
//
//	Tags: {"e": [id1, id2], "p": [pub]}
//
// is written as
//
//	"#e": [id1, id2], "#p": [pub]
//
// which is why T has hand written MarshalJSON and UnmarshalJSON.
type T struct {
	IDs     []string
	Kinds   []kind.T
	Authors []string
	Tags    TagMap
	Since   *timestamp.T
	Until   *timestamp.T
	Limit   int
	Search  string
}

// TagMap maps a single letter tag key (without the #) to the accepted values.
type TagMap map[string][]string

func (t TagMap) Clone() (t1 TagMap) {
	if t == nil {
		return
	}
	t1 = make(TagMap, len(t))
	for i := range t {
		t1[i] = slices.Clone(t[i])
	}
	return
}

// Matches returns true if the event satisfies every field that is set.
func (f *T) Matches(ev *event.T) bool {
	if ev == nil {
		return false
	}
	if f.IDs != nil && !slices.Contains(f.IDs, ev.ID) {
		return false
	}
	if f.Kinds != nil && !slices.Contains(f.Kinds, ev.Kind) {
		return false
	}
	if f.Authors != nil && !slices.Contains(f.Authors, ev.PubKey) {
		return false
	}
	for k, v := range f.Tags {
		if v != nil && !ev.Tags.ContainsAny(k, v...) {
			return false
		}
	}
	if f.Since != nil && ev.CreatedAt < *f.Since {
		return false
	}
	if f.Until != nil && ev.CreatedAt > *f.Until {
		return false
	}
	return true
}

func (f *T) Clone() (clone *T) {
	clone = &T{
		IDs:     slices.Clone(f.IDs),
		Kinds:   slices.Clone(f.Kinds),
		Authors: slices.Clone(f.Authors),
		Tags:    f.Tags.Clone(),
		Limit:   f.Limit,
		Search:  f.Search,
	}
	if f.Since != nil {
		clone.Since = f.Since.Ptr()
	}
	if f.Until != nil {
		clone.Until = f.Until.Ptr()
	}
	return
}

func appendKey(b []byte, first bool, key string) []byte {
	if !first {
		b = append(b, ',')
	}
	b = text.EscapeString(b, key)
	return append(b, ':')
}

// MarshalJSON writes the filter with empty fields omitted and tag keys in
// sorted order.
func (f *T) MarshalJSON() (b []byte, err error) {
	b = append(b, '{')
	first := true
	if f.IDs != nil {
		b = appendKey(b, first, "ids")
		b = text.EscapeStrings(b, f.IDs)
		first = false
	}
	if f.Kinds != nil {
		b = appendKey(b, first, "kinds")
		b = append(b, '[')
		for i, k := range f.Kinds {
			if i > 0 {
				b = append(b, ',')
			}
			b = strconv.AppendUint(b, uint64(k), 10)
		}
		b = append(b, ']')
		first = false
	}
	if f.Authors != nil {
		b = appendKey(b, first, "authors")
		b = text.EscapeStrings(b, f.Authors)
		first = false
	}
	keys := make([]string, 0, len(f.Tags))
	for k := range f.Tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b = appendKey(b, first, "#"+k)
		b = text.EscapeStrings(b, f.Tags[k])
		first = false
	}
	if f.Since != nil {
		b = appendKey(b, first, "since")
		b = strconv.AppendInt(b, int64(*f.Since), 10)
		first = false
	}
	if f.Until != nil {
		b = appendKey(b, first, "until")
		b = strconv.AppendInt(b, int64(*f.Until), 10)
		first = false
	}
	if f.Limit > 0 {
		b = appendKey(b, first, "limit")
		b = strconv.AppendInt(b, int64(f.Limit), 10)
		first = false
	}
	if f.Search != "" {
		b = appendKey(b, first, "search")
		b = text.EscapeString(b, f.Search)
	}
	b = append(b, '}')
	return
}

func stringList(v gjson.Result) (s []string, err error) {
	if !v.IsArray() {
		return nil, fmt.Errorf("expected array, got %s", v.Type)
	}
	s = []string{}
	for _, e := range v.Array() {
		if e.Type != gjson.String {
			return nil, fmt.Errorf("expected string element, got %s", e.Type)
		}
		s = append(s, e.Str)
	}
	return
}

// UnmarshalJSON unpacks a JSON encoded T rolling the #-prefixed fields up
// into Tags.
func (f *T) UnmarshalJSON(b []byte) (err error) {
	if f == nil {
		return fmt.Errorf("cannot unmarshal into nil filter")
	}
	if !gjson.ValidBytes(b) {
		return fmt.Errorf("invalid filter json `%s`", b)
	}
	obj := gjson.ParseBytes(b)
	if !obj.IsObject() {
		return fmt.Errorf("filter is not an object `%s`", b)
	}
	*f = T{}
	obj.ForEach(func(key, v gjson.Result) bool {
		k := key.Str
		switch {
		case k == "ids":
			f.IDs, err = stringList(v)
		case k == "authors":
			f.Authors, err = stringList(v)
		case k == "kinds":
			if !v.IsArray() {
				err = fmt.Errorf("kinds is not an array")
				break
			}
			f.Kinds = []kind.T{}
			for _, e := range v.Array() {
				f.Kinds = append(f.Kinds, kind.T(e.Uint()))
			}
		case k == "since":
			f.Since = timestamp.T(v.Int()).Ptr()
		case k == "until":
			f.Until = timestamp.T(v.Int()).Ptr()
		case k == "limit":
			f.Limit = int(v.Int())
		case k == "search":
			f.Search = v.String()
		case len(k) > 1 && k[0] == '#':
			var vals []string
			if vals, err = stringList(v); err != nil {
				break
			}
			if f.Tags == nil {
				f.Tags = make(TagMap)
			}
			f.Tags[k[1:]] = vals
		default:
			log.T.F("ignoring unknown filter field %s", k)
		}
		if err != nil {
			err = fmt.Errorf("filter field %s: %w", k, err)
			return false
		}
		return true
	})
	return
}

func (f *T) String() string {
	j, _ := f.MarshalJSON()
	return string(j)
}
