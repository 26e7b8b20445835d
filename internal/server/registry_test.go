package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()

	assert.True(t, r.Register(1, "a"), "expected first registration to succeed")
	assert.False(t, r.Register(1, "a"), "expected duplicate registration to be a no-op")
	assert.True(t, r.Register(1, "b"), "expected second connection to register")

	assert.Equal(t, []string{"a", "b"}, r.Lookup(1))
	assert.Equal(t, 1, r.Len(), "expected a single key")
}

func TestRegistry_Unregister(t *testing.T) {
	tcases := []struct {
		name      string
		setup     map[int][]string
		key       int
		connId    string
		pruned    bool
		remaining []string
	}{
		{
			name:      "last connection prunes key",
			setup:     map[int][]string{1: {"a"}},
			key:       1,
			connId:    "a",
			pruned:    true,
			remaining: []string{},
		},
		{
			name:      "other connections keep key",
			setup:     map[int][]string{1: {"a", "b"}},
			key:       1,
			connId:    "a",
			pruned:    false,
			remaining: []string{"b"},
		},
		{
			name:      "unknown key",
			setup:     map[int][]string{},
			key:       2,
			connId:    "a",
			pruned:    false,
			remaining: []string{},
		},
		{
			name:      "unknown connection",
			setup:     map[int][]string{1: {"a"}},
			key:       1,
			connId:    "z",
			pruned:    false,
			remaining: []string{"a"},
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			r := NewRegistry()
			for k, ids := range tc.setup {
				for _, id := range ids {
					r.Register(k, id)
				}
			}

			assert.Equal(t, tc.pruned, r.Unregister(tc.key, tc.connId))
			assert.Equal(t, tc.remaining, r.Lookup(tc.key))
			assert.Equal(t, len(tc.remaining) > 0, r.Has(tc.key), "expected empty keys to be pruned")
		})
	}
}

func TestRegistry_Remove(t *testing.T) {
	r := NewRegistry()
	r.Register(7, "b")
	r.Register(7, "a")
	r.Register(8, "c")

	assert.Equal(t, []string{"a", "b"}, r.Remove(7))
	assert.False(t, r.Has(7), "expected key to be removed")
	assert.Equal(t, []int{8}, r.Keys())
	assert.Empty(t, r.Remove(7), "expected removing a missing key to return nothing")
}

func TestRegistry_Snapshot(t *testing.T) {
	r := NewRegistry()
	r.Register(1, "a")
	r.Register(2, "b")
	r.Register(2, "c")

	assert.Equal(t, map[int][]string{1: {"a"}, 2: {"b", "c"}}, r.Snapshot())
}
