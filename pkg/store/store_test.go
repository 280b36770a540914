package store

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memory(t *testing.T) *T {
	s, err := Open("")
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, s.Close()) })
	return s
}

func TestSecret(t *testing.T) {
	k := memory(t).Secret()
	_, ok, err := k.Load()
	require.NoError(t, err)
	assert.False(t, ok)

	sec := []byte{1, 2, 3, 4}
	require.NoError(t, k.Save(sec))
	got, ok, err := k.Load()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, sec, got)

	require.NoError(t, k.Clear())
	_, ok, err = k.Load()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, k.Clear(), "clearing twice is fine")
}

func TestRelaysDefault(t *testing.T) {
	r := memory(t).Relays()
	urls, err := r.Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultRelays, urls)
	urls[0] = "changed"
	assert.Equal(t, "wss://relay.damus.io", DefaultRelays[0])
}

func TestRelaysAddRemove(t *testing.T) {
	r := memory(t).Relays()
	urls, added, err := r.Add("relay.test")
	require.NoError(t, err)
	assert.True(t, added)
	assert.Equal(t, append(append([]string{}, DefaultRelays...),
		"wss://relay.test"), urls)

	_, added, err = r.Add("WSS://relay.test/")
	require.NoError(t, err)
	assert.False(t, added)

	urls, removed, err := r.Remove("wss://relay.test")
	require.NoError(t, err)
	assert.True(t, removed)
	assert.NotContains(t, urls, "wss://relay.test")

	loaded, err := r.Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultRelays, loaded)

	_, removed, err = r.Remove("wss://never.added")
	require.NoError(t, err)
	assert.False(t, removed)

	_, _, err = r.Add("")
	assert.ErrorIs(t, err, ErrInvalidURL)
}

func TestRelaysConcurrentEdits(t *testing.T) {
	r := memory(t).Relays()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, added, err := r.Add(fmt.Sprintf("wss://relay%d.test", i))
			assert.NoError(t, err)
			assert.True(t, added)
		}()
	}
	for _, u := range DefaultRelays {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, removed, err := r.Remove(u)
			assert.NoError(t, err)
			assert.True(t, removed)
		}()
	}
	wg.Wait()
	urls, err := r.Load()
	require.NoError(t, err)
	assert.Len(t, urls, 20)
	for _, u := range DefaultRelays {
		assert.NotContains(t, urls, u)
	}
}

func TestRelaysEmptyList(t *testing.T) {
	r := memory(t).Relays()
	require.NoError(t, r.Save(nil))
	urls, err := r.Load()
	require.NoError(t, err)
	assert.Empty(t, urls)
	assert.NotNil(t, urls)
}

func TestPersistence(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, s.Relays().Save([]string{"wss://a.test", "b.test"}))
	require.NoError(t, s.Secret().Save([]byte("key")))
	require.NoError(t, s.Close())

	s, err = Open(dir)
	require.NoError(t, err)
	defer s.Close()
	urls, err := s.Relays().Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"wss://a.test", "wss://b.test"}, urls)
	b, ok, err := s.Secret().Load()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("key"), b)
}
