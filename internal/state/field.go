package state

import "fmt"

// Field identifies one top-level field of a Snapshot.
type Field uint8

const (
	// FieldUser is the signed-in user profile, or null.
	FieldUser Field = iota + 1
	// FieldItems is the keyed collection of domain items.
	FieldItems
	// FieldLiked is the set of liked item IDs.
	FieldLiked
	// FieldSaved is the set of saved item IDs.
	FieldSaved
	// FieldProgress maps item ID to an integer sub-index (e.g. current episode).
	FieldProgress
	// FieldOnline is the connectivity flag.
	FieldOnline
	// FieldPending is the ordered list of actions awaiting remote delivery.
	FieldPending
	// FieldCache is the keyed cache-entry collection.
	FieldCache
	// FieldPreferences is the nested UI preferences record.
	FieldPreferences
)

// Fields lists every field in declaration order.
// Diff reports changed fields in this order.
var Fields = []Field{
	FieldUser,
	FieldItems,
	FieldLiked,
	FieldSaved,
	FieldProgress,
	FieldOnline,
	FieldPending,
	FieldCache,
	FieldPreferences,
}

// PersistedFields are the fields written to durable storage.
// Connectivity is observed at runtime and never restored from disk.
var PersistedFields = []Field{
	FieldUser,
	FieldItems,
	FieldLiked,
	FieldSaved,
	FieldProgress,
	FieldPending,
	FieldCache,
	FieldPreferences,
}

var fieldNames = map[Field]string{
	FieldUser:        "user",
	FieldItems:       "items",
	FieldLiked:       "liked",
	FieldSaved:       "saved",
	FieldProgress:    "progress",
	FieldOnline:      "online",
	FieldPending:     "pending",
	FieldCache:       "cache",
	FieldPreferences: "preferences",
}

// String returns the field's persisted name.
func (f Field) String() string {
	if name, ok := fieldNames[f]; ok {
		return name
	}
	return fmt.Sprintf("field(%d)", uint8(f))
}

// Valid reports whether f is a known field.
func (f Field) Valid() bool {
	_, ok := fieldNames[f]
	return ok
}

// ParseField resolves a persisted field name.
func ParseField(name string) (Field, bool) {
	for f, n := range fieldNames {
		if n == name {
			return f, true
		}
	}
	return 0, false
}

// Key returns the durable storage key for f under namespace.
func Key(namespace string, f Field) string {
	return namespace + f.String()
}
