package state

import (
	"encoding/json"
	"slices"
)

// Set is an immutable set of string identifiers.
// The zero Set is empty and ready to use.
type Set struct {
	m map[string]struct{}
}

// NewSet builds a Set from ids. Duplicates collapse.
func NewSet(ids ...string) Set {
	m := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		m[id] = struct{}{}
	}
	return Set{m: m}
}

// Has reports membership.
func (s Set) Has(id string) bool {
	_, ok := s.m[id]
	return ok
}

// Len returns the number of members.
func (s Set) Len() int {
	return len(s.m)
}

// Members returns the members in sorted order.
func (s Set) Members() []string {
	out := make([]string, 0, len(s.m))
	for id := range s.m {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// With returns a Set that also contains id.
func (s Set) With(id string) Set {
	if s.Has(id) {
		return s
	}
	m := make(map[string]struct{}, len(s.m)+1)
	for k := range s.m {
		m[k] = struct{}{}
	}
	m[id] = struct{}{}
	return Set{m: m}
}

// Without returns a Set that does not contain id.
func (s Set) Without(id string) Set {
	if !s.Has(id) {
		return s
	}
	m := make(map[string]struct{}, len(s.m))
	for k := range s.m {
		if k != id {
			m[k] = struct{}{}
		}
	}
	return Set{m: m}
}

// WithMembership returns a Set where id's membership equals member.
func (s Set) WithMembership(id string, member bool) Set {
	if member {
		return s.With(id)
	}
	return s.Without(id)
}

// Equal reports whether both sets have the same size and members.
func (s Set) Equal(o Set) bool {
	if len(s.m) != len(o.m) {
		return false
	}
	for id := range s.m {
		if !o.Has(id) {
			return false
		}
	}
	return true
}

// MarshalJSON encodes the set as a sorted array.
func (s Set) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Members())
}

// UnmarshalJSON decodes an array of strings.
func (s *Set) UnmarshalJSON(data []byte) error {
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return err
	}
	*s = NewSet(ids...)
	return nil
}
