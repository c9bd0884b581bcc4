package state

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSet_WithDoesNotMutateReceiver(t *testing.T) {
	s := NewSet("a")
	s2 := s.With("b")

	assert.False(t, s.Has("b"))
	assert.True(t, s2.Has("a"))
	assert.True(t, s2.Has("b"))
	assert.Equal(t, 1, s.Len())
	assert.Equal(t, 2, s2.Len())
}

func TestSet_WithoutDoesNotMutateReceiver(t *testing.T) {
	s := NewSet("a", "b")
	s2 := s.Without("a")

	assert.True(t, s.Has("a"))
	assert.False(t, s2.Has("a"))
}

func TestSet_WithMembership(t *testing.T) {
	s := NewSet("a")
	assert.True(t, s.WithMembership("b", true).Has("b"))
	assert.False(t, s.WithMembership("a", false).Has("a"))
}

func TestSet_ZeroValueIsEmpty(t *testing.T) {
	var s Set
	assert.Equal(t, 0, s.Len())
	assert.False(t, s.Has("x"))
	assert.True(t, s.With("x").Has("x"))
	assert.True(t, s.Equal(NewSet()))
}

func TestSet_Equal(t *testing.T) {
	assert.True(t, NewSet("a", "b").Equal(NewSet("b", "a")))
	assert.False(t, NewSet("a").Equal(NewSet("a", "b")))
	assert.False(t, NewSet("a", "c").Equal(NewSet("a", "b")))
}

func TestSet_JSON(t *testing.T) {
	data, err := json.Marshal(NewSet("z", "a", "m"))
	require.NoError(t, err)
	assert.Equal(t, `["a","m","z"]`, string(data))

	var s Set
	require.NoError(t, json.Unmarshal(data, &s))
	assert.True(t, s.Equal(NewSet("a", "m", "z")))
}

func TestIndex_CopyOnWrite(t *testing.T) {
	src := map[string]int64{"show-1": 3}
	x := NewIndex(src)
	src["show-1"] = 99

	n, ok := x.Get("show-1")
	require.True(t, ok)
	assert.Equal(t, int64(3), n, "NewIndex must copy its input")

	x2 := x.With("show-2", 1)
	assert.Equal(t, 1, x.Len())
	assert.Equal(t, []string{"show-1", "show-2"}, x2.Keys())
	assert.Equal(t, 1, x2.Without("show-1").Len())
}

func TestIndex_Equal(t *testing.T) {
	assert.True(t, NewIndex(map[string]int64{"a": 1}).Equal(NewIndex(map[string]int64{"a": 1})))
	assert.False(t, NewIndex(map[string]int64{"a": 1}).Equal(NewIndex(map[string]int64{"a": 2})))
	assert.True(t, NewIndex(nil).Equal(Index{}))
}
