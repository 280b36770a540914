// Package metadata is the profile object carried in the content of kind 0
// events.
package metadata

import (
	"encoding/json"
	"fmt"

	"github.com/Hubmakerlabs/postr/pkg/nostr/event"
	"github.com/Hubmakerlabs/postr/pkg/nostr/kind"
)

// T is a user profile. Every field may be empty.
type T struct {
	Name        string `json:"name,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	About       string `json:"about,omitempty"`
	Website     string `json:"website,omitempty"`
	Picture     string `json:"picture,omitempty"`
	Banner      string `json:"banner,omitempty"`
	Nip05       string `json:"nip05,omitempty"`
	Lud16       string `json:"lud16,omitempty"`
}

// Parse reads the profile from the content of a kind 0 event.
func Parse(ev *event.T) (m *T, err error) {
	if ev.Kind != kind.ProfileMetadata {
		return nil, fmt.Errorf("event %s is kind %d, not %d", ev.ID, ev.Kind,
			kind.ProfileMetadata)
	}
	m = &T{}
	if err = json.Unmarshal([]byte(ev.Content), m); err != nil {
		cont := ev.Content
		if len(cont) > 100 {
			cont = cont[:99]
		}
		return nil, fmt.Errorf("failed to parse metadata (%s) from event %s: %w",
			cont, ev.ID, err)
	}
	return
}

// Content returns the JSON to put in the content of a kind 0 event.
func (m *T) Content() (s string, err error) {
	var b []byte
	if b, err = json.Marshal(m); err != nil {
		return
	}
	return string(b), nil
}

// ShortName is the name to show for the profile, falling back to the display
// name and then to fallback.
func (m *T) ShortName(fallback string) string {
	switch {
	case m == nil:
		return fallback
	case m.Name != "":
		return m.Name
	case m.DisplayName != "":
		return m.DisplayName
	}
	return fallback
}
