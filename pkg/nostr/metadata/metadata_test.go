package metadata

import (
	"testing"

	"github.com/Hubmakerlabs/postr/pkg/nostr/event"
	"github.com/Hubmakerlabs/postr/pkg/nostr/kind"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	m, err := Parse(&event.T{Kind: kind.ProfileMetadata,
		Content: `{"name":"alice","display_name":"Alice","lud16":"a@b.c","unknown":1}`})
	require.NoError(t, err)
	assert.Equal(t, &T{Name: "alice", DisplayName: "Alice", Lud16: "a@b.c"}, m)

	_, err = Parse(&event.T{Kind: kind.TextNote, Content: `{}`})
	assert.Error(t, err)
	_, err = Parse(&event.T{Kind: kind.ProfileMetadata, Content: `not json`})
	assert.Error(t, err)
}

func TestContentAndShortName(t *testing.T) {
	m := &T{DisplayName: "Bob", About: "hi"}
	c, err := m.Content()
	require.NoError(t, err)
	assert.Equal(t, `{"display_name":"Bob","about":"hi"}`, c)
	assert.Equal(t, "Bob", m.ShortName("npub1..."))
	assert.Equal(t, "npub1...", (&T{}).ShortName("npub1..."))
	var nilT *T
	assert.Equal(t, "x", nilT.ShortName("x"))
}
