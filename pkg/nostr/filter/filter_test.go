package filter

import (
	"encoding/json"
	"testing"

	"github.com/Hubmakerlabs/postr/pkg/nostr/event"
	"github.com/Hubmakerlabs/postr/pkg/nostr/kind"
	"github.com/Hubmakerlabs/postr/pkg/nostr/tags"
	"github.com/Hubmakerlabs/postr/pkg/nostr/timestamp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalPromotesTags(t *testing.T) {
	f := &T{
		Kinds:   []kind.T{kind.TextNote, kind.Repost},
		Authors: []string{"aa"},
		Tags:    TagMap{"p": {"bb"}, "e": {"cc", "dd"}},
		Since:   timestamp.T(10).Ptr(),
		Limit:   20,
	}
	b, err := json.Marshal(f)
	require.NoError(t, err)
	assert.Equal(t,
		`{"kinds":[1,6],"authors":["aa"],"#e":["cc","dd"],"#p":["bb"],"since":10,"limit":20}`,
		string(b))
	assert.Equal(t, `{}`, (&T{}).String())
}

func TestUnmarshal(t *testing.T) {
	var f T
	require.NoError(t, json.Unmarshal([]byte(
		`{"ids":["01"],"kinds":[0,3],"#d":["x"],"until":99,"limit":5,"search":"q","extra":1}`),
		&f))
	assert.Equal(t, []string{"01"}, f.IDs)
	assert.Equal(t, []kind.T{0, 3}, f.Kinds)
	assert.Equal(t, TagMap{"d": {"x"}}, f.Tags)
	require.NotNil(t, f.Until)
	assert.Equal(t, timestamp.T(99), *f.Until)
	assert.Nil(t, f.Since)
	assert.Equal(t, 5, f.Limit)
	assert.Equal(t, "q", f.Search)

	assert.Error(t, json.Unmarshal([]byte(`{"ids":"01"}`), &f))
	assert.Error(t, json.Unmarshal([]byte(`{"#e":[1]}`), &f))
	assert.Error(t, json.Unmarshal([]byte(`[]`), &f))
}

func TestMatches(t *testing.T) {
	ev := &event.T{ID: "01", PubKey: "aa", CreatedAt: 100,
		Kind: kind.TextNote, Tags: tags.T{{"p", "bb"}, {"t", "go"}}}
	tests := []struct {
		name string
		f    T
		want bool
	}{
		{"empty", T{}, true},
		{"kind", T{Kinds: []kind.T{kind.TextNote}}, true},
		{"wrong kind", T{Kinds: []kind.T{kind.Reaction}}, false},
		{"empty kinds matches nothing", T{Kinds: []kind.T{}}, false},
		{"author", T{Authors: []string{"zz", "aa"}}, true},
		{"wrong author", T{Authors: []string{"zz"}}, false},
		{"id", T{IDs: []string{"01"}}, true},
		{"tag", T{Tags: TagMap{"p": {"bb"}}}, true},
		{"tag any of", T{Tags: TagMap{"t": {"rust", "go"}}}, true},
		{"wrong tag", T{Tags: TagMap{"e": {"bb"}}}, false},
		{"since", T{Since: timestamp.T(100).Ptr()}, true},
		{"since after", T{Since: timestamp.T(101).Ptr()}, false},
		{"until before", T{Until: timestamp.T(99).Ptr()}, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.f.Matches(ev), tt.name)
	}
	assert.False(t, (&T{}).Matches(nil))
}

func TestClone(t *testing.T) {
	f := &T{Authors: []string{"aa"}, Tags: TagMap{"p": {"bb"}},
		Since: timestamp.T(5).Ptr()}
	c := f.Clone()
	c.Authors[0] = "zz"
	c.Tags["p"][0] = "zz"
	*c.Since = 6
	assert.Equal(t, "aa", f.Authors[0])
	assert.Equal(t, "bb", f.Tags["p"][0])
	assert.Equal(t, timestamp.T(5), *f.Since)
}
