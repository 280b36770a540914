package session

import (
	"testing"
	"time"

	"github.com/Hubmakerlabs/postr/pkg/context"
	"github.com/Hubmakerlabs/postr/pkg/identity"
	"github.com/Hubmakerlabs/postr/pkg/nostr/filters"
	"github.com/Hubmakerlabs/postr/pkg/nostr/keys"
	"github.com/Hubmakerlabs/postr/pkg/nostr/kind"
	"github.com/Hubmakerlabs/postr/pkg/nostr/normalize"
	"github.com/Hubmakerlabs/postr/pkg/pool"
	"github.com/Hubmakerlabs/postr/pkg/relay"
	"github.com/Hubmakerlabs/postr/pkg/relaytest"
	"github.com/Hubmakerlabs/postr/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSession(t *testing.T, urls ...string) *T {
	st, err := store.Open("")
	require.NoError(t, err)
	require.NoError(t, st.Relays().Save(urls))
	s := New(context.Bg(), st, pool.WithPublishTimeout(time.Second))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestAddRemoveRelay(t *testing.T) {
	srv := relaytest.New(relaytest.Accept)
	defer srv.Close()
	s := newSession(t)
	url := normalize.URL(srv.URL)

	urls, err := s.AddRelay(srv.URL)
	require.NoError(t, err)
	assert.Equal(t, []string{url}, urls)
	saved, err := s.Relays()
	require.NoError(t, err)
	assert.Equal(t, []string{url}, saved)

	live, _ := s.Pool().EnsureConnected(context.Bg(), saved)
	require.Len(t, live, 1)

	urls, err = s.RemoveRelay(srv.URL)
	require.NoError(t, err)
	assert.Empty(t, urls)
	saved, err = s.Relays()
	require.NoError(t, err)
	assert.NotContains(t, saved, url)
	_, known := s.Pool().Relay(url)
	assert.False(t, known)
	assert.Equal(t, relay.Disconnected, live[url].State())
}

func TestAddRelayTestURL(t *testing.T) {
	s := newSession(t)
	_, err := s.AddRelay("wss://relay.test")
	require.NoError(t, err)
	saved, err := s.Relays()
	require.NoError(t, err)
	assert.Contains(t, saved, "wss://relay.test")
	_, err = s.RemoveRelay("wss://relay.test")
	require.NoError(t, err)
	saved, err = s.Relays()
	require.NoError(t, err)
	assert.NotContains(t, saved, "wss://relay.test")
	_, err = s.AddRelay("   ")
	assert.ErrorIs(t, err, store.ErrInvalidURL)
}

func TestPublishAndQuery(t *testing.T) {
	ok, silent := relaytest.New(relaytest.Accept), relaytest.New(relaytest.Silent)
	defer ok.Close()
	defer silent.Close()
	s := newSession(t, ok.URL, silent.URL)
	require.NoError(t, s.Identity.Persist(keys.Generate()))

	ev, err := s.Factory.Note("through the session", nil)
	require.NoError(t, err)
	acks, err := s.Publish(context.Bg(), ev)
	require.NoError(t, err)
	assert.Equal(t, []string{normalize.URL(ok.URL)}, acks.Succeeded())
	assert.Equal(t, []string{normalize.URL(silent.URL)}, acks.Failed())

	res, err := s.Query(context.Bg(), filters.T{{
		IDs:   []string{ev.ID},
		Kinds: []kind.T{kind.TextNote},
	}}, 500*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, res.Events, 1)
	assert.Equal(t, ev.ID, res.Events[0].ID)
}

func TestLogout(t *testing.T) {
	s := newSession(t)
	require.NoError(t, s.Identity.Persist(keys.Generate()))
	p := s.Pool()
	assert.Same(t, p, s.Pool(), "pool is created once")
	require.NoError(t, s.Logout())
	assert.True(t, p.Closed())
	_, err := s.Identity.Secret()
	assert.ErrorIs(t, err, identity.ErrNoIdentity)
	assert.NotSame(t, p, s.Pool(), "a new pool after logout")
}
