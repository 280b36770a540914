package filters

import (
	"github.com/Hubmakerlabs/postr/pkg/nostr/event"
	"github.com/Hubmakerlabs/postr/pkg/nostr/filter"
)

// T is a list of filters, an event is wanted if any one of them matches.
type T []*filter.T

func (eff T) Match(ev *event.T) bool {
	for _, f := range eff {
		if f.Matches(ev) {
			return true
		}
	}
	return false
}

func (eff T) String() string {
	b := []byte{'['}
	for i, f := range eff {
		if i > 0 {
			b = append(b, ',')
		}
		j, _ := f.MarshalJSON()
		b = append(b, j...)
	}
	return string(append(b, ']'))
}
