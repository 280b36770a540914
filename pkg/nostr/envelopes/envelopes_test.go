package envelopes

import (
	"testing"

	"github.com/Hubmakerlabs/postr/pkg/nostr/event"
	"github.com/Hubmakerlabs/postr/pkg/nostr/filter"
	"github.com/Hubmakerlabs/postr/pkg/nostr/filters"
	"github.com/Hubmakerlabs/postr/pkg/nostr/kind"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientFrames(t *testing.T) {
	ev := &event.T{ID: "ab", PubKey: "cd", CreatedAt: 5, Kind: kind.TextNote,
		Content: "hi", Sig: "ef"}
	b, err := (&Event{Event: ev}).MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t,
		`["EVENT",{"id":"ab","pubkey":"cd","created_at":5,"kind":1,"tags":[],"content":"hi","sig":"ef"}]`,
		string(b))

	b, err = (&Req{SubscriptionID: "s1", Filters: filters.T{
		{Kinds: []kind.T{0}}, {Limit: 2}}}).MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `["REQ","s1",{"kinds":[0]},{"limit":2}]`, string(b))

	b, err = (&Close{SubscriptionID: "s1"}).MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `["CLOSE","s1"]`, string(b))
}

func TestParseRelayFrames(t *testing.T) {
	env, err := Parse([]byte(`["EVENT","s1",{"id":"ab","pubkey":"cd","created_at":5,"kind":1,"tags":[["p","x"]],"content":"hi","sig":"ef"}]`))
	require.NoError(t, err)
	e, ok := env.(*Event)
	require.True(t, ok)
	assert.Equal(t, "s1", e.SubscriptionID)
	assert.Equal(t, "hi", e.Event.Content)
	assert.Equal(t, "x", e.Event.Tags[0].Value())

	env, err = Parse([]byte(`["OK","ab",false,"blocked: no"]`))
	require.NoError(t, err)
	assert.Equal(t, &OK{EventID: "ab", OK: false, Reason: "blocked: no"}, env)

	env, err = Parse([]byte(`["EOSE","s1"]`))
	require.NoError(t, err)
	assert.Equal(t, &EOSE{SubscriptionID: "s1"}, env)

	env, err = Parse([]byte(`["CLOSED","s1","error: shutting down"]`))
	require.NoError(t, err)
	assert.Equal(t, &Closed{SubscriptionID: "s1", Reason: "error: shutting down"}, env)

	env, err = Parse([]byte(`["NOTICE","hello"]`))
	require.NoError(t, err)
	assert.Equal(t, LNotice, env.Label())

	env, err = Parse([]byte(`["AUTH","challenge"]`))
	require.NoError(t, err)
	assert.Equal(t, &Auth{Challenge: "challenge"}, env)
}

func TestParseClientFrames(t *testing.T) {
	env, err := Parse([]byte(`["REQ","sub",{"authors":["aa"],"#e":["x"]},{"kinds":[7]}]`))
	require.NoError(t, err)
	r := env.(*Req)
	assert.Equal(t, "sub", r.SubscriptionID)
	require.Len(t, r.Filters, 2)
	assert.Equal(t, filter.TagMap{"e": {"x"}}, r.Filters[0].Tags)

	env, err = Parse([]byte(`["EVENT",{"id":"ab","kind":1,"tags":[],"content":""}]`))
	require.NoError(t, err)
	assert.Equal(t, "", env.(*Event).SubscriptionID)

	env, err = Parse([]byte(`["CLOSE","sub"]`))
	require.NoError(t, err)
	assert.Equal(t, &Close{SubscriptionID: "sub"}, env)
}

func TestParseMalformed(t *testing.T) {
	for _, frame := range []string{
		``,
		`not json`,
		`{"a":1}`,
		`["EOSE"]`,
		`[1,"x"]`,
		`["WHAT","x"]`,
		`["OK","ab"]`,
		`["OK","ab","yes","msg"]`,
		`["EVENT","s1","notanobject"]`,
		`["EVENT","s1",{"kind":"one"}]`,
		`["EOSE",5]`,
		`["REQ","s",{"ids":"x"}]`,
	} {
		_, err := Parse([]byte(frame))
		assert.ErrorIs(t, err, ErrProtocol, frame)
	}
}
