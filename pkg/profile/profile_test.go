package profile

import (
	"testing"
	"time"

	"github.com/Hubmakerlabs/postr/pkg/context"
	"github.com/Hubmakerlabs/postr/pkg/hex"
	"github.com/Hubmakerlabs/postr/pkg/nostr/event"
	"github.com/Hubmakerlabs/postr/pkg/nostr/filters"
	"github.com/Hubmakerlabs/postr/pkg/nostr/keys"
	"github.com/Hubmakerlabs/postr/pkg/nostr/kind"
	"github.com/Hubmakerlabs/postr/pkg/nostr/signer"
	"github.com/Hubmakerlabs/postr/pkg/nostr/timestamp"
	"github.com/Hubmakerlabs/postr/pkg/pool"
	"github.com/Hubmakerlabs/postr/pkg/relaytest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scripted answers each query with the next prepared result.
type scripted struct {
	results []*pool.Result
	asked   []filters.T
}

func (s *scripted) Query(_ context.T, f filters.T, _ []string,
	_ time.Duration) (res *pool.Result) {

	s.asked = append(s.asked, f)
	res, s.results = s.results[0], s.results[1:]
	return
}

func profileEvent(t *testing.T, sec []byte, content string, at int64) *event.T {
	ev, err := signer.Schnorr{}.Sign(&event.T{
		Kind:      kind.ProfileMetadata,
		CreatedAt: timestamp.T(at),
		Content:   content,
	}, sec)
	require.NoError(t, err)
	return ev
}

func pubOf(t *testing.T, sec []byte) string {
	pub, err := keys.PublicFromSecret(sec)
	require.NoError(t, err)
	return hex.Enc(pub)
}

func TestResolveNewestWins(t *testing.T) {
	sec := keys.Generate()
	pub := pubOf(t, sec)
	old := profileEvent(t, sec, `{"name":"old"}`, 100)
	cur := profileEvent(t, sec, `{"name":"new","about":"hi"}`, 200)
	q := &scripted{results: []*pool.Result{
		{Events: []*event.T{old, cur}, Responded: []string{"a"}},
		{Events: []*event.T{old}, Responded: []string{"b"}},
	}}
	r := NewResolver(q, 0)
	p, err := r.Resolve(context.Bg(), pub, nil)
	require.NoError(t, err)
	assert.Equal(t, "new", p.Name())
	assert.Equal(t, "hi", p.Metadata.About)
	assert.Equal(t, cur.ID, p.Event.ID)
	require.Len(t, q.asked, 1)
	assert.Equal(t, []string{pub}, q.asked[0][0].Authors)

	// a later answer carrying only the older version does not regress
	p, err = r.Resolve(context.Bg(), pub, nil)
	require.NoError(t, err)
	assert.Equal(t, "new", p.Name())
}

func TestResolveLateNewerSupersedes(t *testing.T) {
	sec := keys.Generate()
	pub := pubOf(t, sec)
	q := &scripted{results: []*pool.Result{
		{Events: []*event.T{profileEvent(t, sec, `{"name":"first"}`, 100)},
			Responded: []string{"a"}},
		{Events: []*event.T{profileEvent(t, sec, `{"name":"later"}`, 300)},
			Responded: []string{"b"}},
	}}
	r := NewResolver(q, 0)
	p, err := r.Resolve(context.Bg(), pub, nil)
	require.NoError(t, err)
	assert.Equal(t, "first", p.Name())
	p, err = r.Resolve(context.Bg(), pub, nil)
	require.NoError(t, err)
	assert.Equal(t, "later", p.Name())
}

func TestResolveNoDataVersusNotFound(t *testing.T) {
	pub := keys.GenerateHex()
	q := &scripted{results: []*pool.Result{
		{AllFailed: true},
		{Responded: []string{"a"}},
	}}
	r := NewResolver(q, 0)
	_, err := r.Resolve(context.Bg(), pub, nil)
	assert.ErrorIs(t, err, ErrNoData)
	_, err = r.Resolve(context.Bg(), pub, nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolveMany(t *testing.T) {
	a, b := keys.Generate(), keys.Generate()
	missing := keys.GenerateHex()
	q := &scripted{results: []*pool.Result{
		{Events: []*event.T{
			profileEvent(t, a, `{"name":"alice"}`, 1),
			profileEvent(t, b, `{"display_name":"Bob"}`, 1),
		}, Responded: []string{"a"}},
		{AllFailed: true},
	}}
	r := NewResolver(q, 0)
	ps, err := r.ResolveMany(context.Bg(),
		[]string{pubOf(t, a), pubOf(t, b), missing}, nil)
	require.NoError(t, err)
	assert.Len(t, ps, 2)
	assert.Equal(t, "alice", ps[pubOf(t, a)].Name())
	assert.Equal(t, "Bob", ps[pubOf(t, b)].Name())

	_, err = r.ResolveMany(context.Bg(), []string{missing}, nil)
	assert.ErrorIs(t, err, ErrNoData)
}

func TestResolveOverRelays(t *testing.T) {
	sec := keys.Generate()
	pub := pubOf(t, sec)
	one, two := relaytest.New(relaytest.Accept), relaytest.New(relaytest.Accept)
	defer one.Close()
	defer two.Close()
	one.Store(profileEvent(t, sec, `{"name":"stale"}`, 100))
	two.Store(profileEvent(t, sec, `{"name":"fresh"}`, 200))
	p := pool.New(context.Bg())
	defer p.Close()
	got, err := NewResolver(p, time.Second).Resolve(context.Bg(), pub,
		[]string{one.URL, two.URL})
	require.NoError(t, err)
	assert.Equal(t, "fresh", got.Name())
}

func TestNameFallsBackToPubKey(t *testing.T) {
	var p *T
	assert.Equal(t, "", p.Name())
	p = &T{PubKey: "abc"}
	assert.Equal(t, "abc", p.Name())
}
