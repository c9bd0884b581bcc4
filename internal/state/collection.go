package state

import (
	"encoding/json"
	"maps"
	"slices"

	"github.com/roach88/snapstate/internal/value"
)

// Collection is an immutable keyed collection of domain items.
//
// Items are value.Object records. Callers receive the stored records and must
// treat them as read-only.
type Collection struct {
	m map[string]value.Object
}

// NewCollection builds a Collection from a map. The map is copied shallowly.
func NewCollection(m map[string]value.Object) Collection {
	return Collection{m: maps.Clone(m)}
}

// Get returns the item stored under id.
func (c Collection) Get(id string) (value.Object, bool) {
	item, ok := c.m[id]
	return item, ok
}

// Len returns the number of items.
func (c Collection) Len() int {
	return len(c.m)
}

// Keys returns item IDs in sorted order.
func (c Collection) Keys() []string {
	return slices.Sorted(maps.Keys(c.m))
}

// With returns a Collection with id set to item.
func (c Collection) With(id string, item value.Object) Collection {
	m := make(map[string]value.Object, len(c.m)+1)
	maps.Copy(m, c.m)
	m[id] = item
	return Collection{m: m}
}

// Without returns a Collection without id.
func (c Collection) Without(id string) Collection {
	if _, ok := c.m[id]; !ok {
		return c
	}
	m := maps.Clone(c.m)
	delete(m, id)
	return Collection{m: m}
}

// Equal reports whether both collections have the same size and every key
// maps to a structurally equal item.
func (c Collection) Equal(o Collection) bool {
	if len(c.m) != len(o.m) {
		return false
	}
	for k, item := range c.m {
		other, ok := o.m[k]
		if !ok || !value.EqualObjects(item, other) {
			return false
		}
	}
	return true
}

// MarshalJSON encodes the collection as an object of objects.
func (c Collection) MarshalJSON() ([]byte, error) {
	if c.m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(c.m)
}

// UnmarshalJSON decodes an object of objects.
func (c *Collection) UnmarshalJSON(data []byte) error {
	var m map[string]value.Object
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	*c = Collection{m: m}
	return nil
}
