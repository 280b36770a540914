package timeline

import (
	"testing"
	"time"

	"github.com/Hubmakerlabs/postr/pkg/context"
	"github.com/Hubmakerlabs/postr/pkg/hex"
	"github.com/Hubmakerlabs/postr/pkg/nostr/event"
	"github.com/Hubmakerlabs/postr/pkg/nostr/keys"
	"github.com/Hubmakerlabs/postr/pkg/nostr/kind"
	"github.com/Hubmakerlabs/postr/pkg/nostr/signer"
	"github.com/Hubmakerlabs/postr/pkg/nostr/tag"
	"github.com/Hubmakerlabs/postr/pkg/nostr/tags"
	"github.com/Hubmakerlabs/postr/pkg/nostr/timestamp"
	"github.com/Hubmakerlabs/postr/pkg/pool"
	"github.com/Hubmakerlabs/postr/pkg/relaytest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type user struct {
	sec []byte
	pub string
}

func newUser(t *testing.T) user {
	sec := keys.Generate()
	pub, err := keys.PublicFromSecret(sec)
	require.NoError(t, err)
	return user{sec, hex.Enc(pub)}
}

func (u user) sign(t *testing.T, k kind.T, content string, at int64,
	tt ...tag.T) *event.T {

	ev, err := signer.Schnorr{}.Sign(&event.T{
		Kind:      k,
		CreatedAt: timestamp.T(at),
		Content:   content,
		Tags:      tags.T(tt),
	}, u.sec)
	require.NoError(t, err)
	return ev
}

func setup(t *testing.T) (*Assembler, *relaytest.Relay, *relaytest.Relay,
	[]string) {

	one, two := relaytest.New(relaytest.Accept), relaytest.New(relaytest.Accept)
	t.Cleanup(one.Close)
	t.Cleanup(two.Close)
	p := pool.New(context.Bg())
	t.Cleanup(p.Close)
	return New(p, time.Second), one, two, []string{one.URL, two.URL}
}

func TestFollowsNewestListWins(t *testing.T) {
	a, one, two, urls := setup(t)
	me, alice, bob := newUser(t), newUser(t), newUser(t)
	one.Store(me.sign(t, kind.FollowList, "", 100, tag.New("p", alice.pub)))
	two.Store(me.sign(t, kind.FollowList, "", 200, tag.New("p", alice.pub),
		tag.New("p", bob.pub), tag.New("p", alice.pub), tag.New("p", "junk")))
	follows, err := a.Follows(context.Bg(), me.pub, urls)
	require.NoError(t, err)
	assert.Equal(t, []string{alice.pub, bob.pub}, follows)

	follows, err = a.Follows(context.Bg(), alice.pub, urls)
	require.NoError(t, err)
	assert.Empty(t, follows)
}

func TestFeedAndPaging(t *testing.T) {
	a, one, two, urls := setup(t)
	alice, bob, carol := newUser(t), newUser(t), newUser(t)
	for i := int64(1); i <= 4; i++ {
		one.Store(alice.sign(t, kind.TextNote, "alice", 10*i))
		two.Store(bob.sign(t, kind.TextNote, "bob", 10*i+5))
	}
	shared := carol.sign(t, kind.TextNote, "carol", 1000)
	one.Store(shared, alice.sign(t, kind.Reaction, "+", 999))
	two.Store(shared)

	page := a.Feed(context.Bg(), []string{alice.pub, bob.pub}, urls, 3, nil)
	assert.False(t, page.NoData)
	require.Len(t, page.Events, 3)
	assert.Equal(t, timestamp.T(45), page.Events[0].CreatedAt)
	assert.Equal(t, timestamp.T(35), page.Events[2].CreatedAt)

	next := a.Next(context.Bg(), []string{alice.pub, bob.pub}, urls, 3, page)
	require.Len(t, next.Events, 3)
	assert.Equal(t, timestamp.T(30), next.Events[0].CreatedAt)
	assert.Len(t, a.Next(context.Bg(), []string{alice.pub}, urls, 3,
		Page{}).Events, 3)

	all := a.Feed(context.Bg(), []string{alice.pub, carol.pub}, urls, 0, nil)
	require.Len(t, all.Events, 5, "carol's note once, no reactions")
	assert.Equal(t, shared.ID, all.Events[0].ID)

	assert.Empty(t, a.Feed(context.Bg(), nil, urls, 10, nil).Events)
	assert.Nil(t, Page{}.Oldest())
}

func TestNextKeepsNotesOfTheSameSecond(t *testing.T) {
	a, one, two, urls := setup(t)
	alice, bob := newUser(t), newUser(t)
	one.Store(alice.sign(t, kind.TextNote, "newest", 60),
		alice.sign(t, kind.TextNote, "a", 50),
		alice.sign(t, kind.TextNote, "oldest", 40))
	two.Store(bob.sign(t, kind.TextNote, "b", 50),
		bob.sign(t, kind.TextNote, "c", 50))
	authors := []string{alice.pub, bob.pub}

	seen := make(map[string]struct{})
	var page Page
	for i := 0; i < 4; i++ {
		page = a.Next(context.Bg(), authors, urls, 2, page)
		if len(page.Events) == 0 {
			break
		}
		for _, ev := range page.Events {
			_, dup := seen[ev.ID]
			require.False(t, dup, "%s shown twice", ev.Content)
			seen[ev.ID] = struct{}{}
		}
	}
	assert.Len(t, seen, 5)
}

func TestHome(t *testing.T) {
	a, one, two, urls := setup(t)
	me, alice, stranger := newUser(t), newUser(t), newUser(t)
	one.Store(me.sign(t, kind.FollowList, "", 1, tag.New("p", alice.pub)))
	two.Store(
		me.sign(t, kind.TextNote, "mine", 5),
		alice.sign(t, kind.TextNote, "hers", 6),
		stranger.sign(t, kind.TextNote, "not followed", 7),
	)
	page, err := a.Home(context.Bg(), me.pub, urls, 10)
	require.NoError(t, err)
	require.Len(t, page.Events, 2)
	assert.Equal(t, "hers", page.Events[0].Content)
	assert.Equal(t, "mine", page.Events[1].Content)
}

func TestNoData(t *testing.T) {
	down := relaytest.New(relaytest.Accept)
	down.Close()
	p := pool.New(context.Bg())
	defer p.Close()
	a := New(p, 500*time.Millisecond)
	me := newUser(t)
	_, err := a.Follows(context.Bg(), me.pub, []string{down.URL})
	assert.ErrorIs(t, err, ErrNoData)
	page, err := a.Home(context.Bg(), me.pub, []string{down.URL}, 10)
	require.NoError(t, err)
	assert.True(t, page.NoData)
	page = a.Feed(context.Bg(), []string{me.pub}, []string{down.URL}, 10, nil)
	assert.True(t, page.NoData)
	assert.Len(t, page.Failed, 1)
	cancel, err := a.Live(context.Bg(), []string{me.pub}, []string{down.URL},
		func(*event.T) { t.Error("event from a dead relay") })
	assert.ErrorIs(t, err, ErrNoData)
	assert.ErrorIs(t, err, pool.ErrNoRelays)
	assert.Nil(t, cancel)
}

func TestLive(t *testing.T) {
	a, one, two, urls := setup(t)
	alice := newUser(t)
	one.Store(alice.sign(t, kind.TextNote, "old news", 1))
	got := make(chan *event.T, 4)
	cancel, err := a.Live(context.Bg(), []string{alice.pub}, urls,
		func(ev *event.T) { got <- ev })
	require.NoError(t, err)
	defer cancel()
	require.Eventually(t, func() bool {
		return one.Subscriptions() == 1 && two.Subscriptions() == 1
	}, 2*time.Second, 20*time.Millisecond)
	fresh := alice.sign(t, kind.TextNote, "breaking", time.Now().Unix()+1)
	one.Broadcast(fresh)
	two.Broadcast(fresh)
	select {
	case ev := <-got:
		assert.Equal(t, fresh.ID, ev.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("no live event")
	}
	select {
	case ev := <-got:
		t.Fatalf("unexpected second event %s", ev.Content)
	case <-time.After(200 * time.Millisecond):
	}
}
