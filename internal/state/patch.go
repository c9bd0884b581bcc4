package state

import (
	"fmt"

	"github.com/roach88/snapstate/internal/value"
)

// Patch holds candidate values for a subset of fields.
//
// Value types per field:
//
//	FieldUser        value.Object or value.Null (or untyped nil)
//	FieldItems       Collection
//	FieldLiked       Set
//	FieldSaved       Set
//	FieldProgress    Index
//	FieldOnline      bool
//	FieldPending     []PendingAction
//	FieldCache       CacheTable
//	FieldPreferences Preferences
type Patch map[Field]any

// ValidationError describes why a candidate field value was rejected.
type ValidationError struct {
	Field  Field
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

type fieldCheck func(v any) string

// schema is the fixed per-field schema: required presence and coarse type.
var schema = map[Field]fieldCheck{
	FieldUser: func(v any) string {
		switch v.(type) {
		case nil, value.Null, value.Object:
			return ""
		}
		return fmt.Sprintf("expected object or null, got %T", v)
	},
	FieldItems:    expect[Collection]("collection"),
	FieldLiked:    expect[Set]("set"),
	FieldSaved:    expect[Set]("set"),
	FieldProgress: expect[Index]("index"),
	FieldOnline:   expect[bool]("boolean"),
	FieldPending: func(v any) string {
		list, ok := v.([]PendingAction)
		if !ok {
			return typeReason("list of pending actions", v)
		}
		seen := make(map[string]bool, len(list))
		for i, a := range list {
			switch {
			case a.ID == "":
				return fmt.Sprintf("pending[%d]: id is required", i)
			case a.Type == "":
				return fmt.Sprintf("pending[%d]: type is required", i)
			case seen[a.ID]:
				return fmt.Sprintf("pending[%d]: duplicate id %q", i, a.ID)
			}
			seen[a.ID] = true
		}
		return ""
	},
	FieldCache:       expect[CacheTable]("cache table"),
	FieldPreferences: expect[Preferences]("preferences record"),
}

func expect[T any](kind string) fieldCheck {
	return func(v any) string {
		if _, ok := v.(T); ok {
			return ""
		}
		return typeReason(kind, v)
	}
}

func typeReason(kind string, v any) string {
	if v == nil {
		return fmt.Sprintf("required field missing (expected %s)", kind)
	}
	return fmt.Sprintf("expected %s, got %T", kind, v)
}

// Validate checks every field of the patch against the schema.
// Fields are checked in declaration order; the first violation is returned.
func (p Patch) Validate() error {
	for f := range p {
		if !f.Valid() {
			return &ValidationError{Field: f, Reason: "unknown field"}
		}
	}
	for _, f := range Fields {
		v, ok := p[f]
		if !ok {
			continue
		}
		if reason := schema[f](v); reason != "" {
			return &ValidationError{Field: f, Reason: reason}
		}
	}
	return nil
}

// Fields returns the patched fields in declaration order.
func (p Patch) Fields() []Field {
	out := make([]Field, 0, len(p))
	for _, f := range Fields {
		if _, ok := p[f]; ok {
			out = append(out, f)
		}
	}
	return out
}

// Full returns a patch holding every field of s.
// Used to express a whole-snapshot replacement.
func Full(s Snapshot) Patch {
	p := make(Patch, len(Fields))
	for _, f := range Fields {
		p[f] = s.Get(f)
	}
	return p
}
