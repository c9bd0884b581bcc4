package state

import (
	"encoding/json"
	"maps"
	"slices"
)

// Index is an immutable mapping from item ID to an integer sub-index.
type Index struct {
	m map[string]int64
}

// NewIndex builds an Index from a map. The map is copied.
func NewIndex(m map[string]int64) Index {
	return Index{m: maps.Clone(m)}
}

// Get returns the sub-index for id.
func (x Index) Get(id string) (int64, bool) {
	n, ok := x.m[id]
	return n, ok
}

// Len returns the number of entries.
func (x Index) Len() int {
	return len(x.m)
}

// Keys returns the IDs in sorted order.
func (x Index) Keys() []string {
	return slices.Sorted(maps.Keys(x.m))
}

// With returns an Index with id set to n.
func (x Index) With(id string, n int64) Index {
	m := make(map[string]int64, len(x.m)+1)
	maps.Copy(m, x.m)
	m[id] = n
	return Index{m: m}
}

// Without returns an Index without id.
func (x Index) Without(id string) Index {
	if _, ok := x.m[id]; !ok {
		return x
	}
	m := maps.Clone(x.m)
	delete(m, id)
	return Index{m: m}
}

// Equal reports whether both indexes hold the same key→value pairs.
func (x Index) Equal(o Index) bool {
	return maps.Equal(x.m, o.m)
}

// MarshalJSON encodes the index as an object.
func (x Index) MarshalJSON() ([]byte, error) {
	if x.m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(x.m)
}

// UnmarshalJSON decodes an object of integers.
func (x *Index) UnmarshalJSON(data []byte) error {
	var m map[string]int64
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	*x = Index{m: m}
	return nil
}
