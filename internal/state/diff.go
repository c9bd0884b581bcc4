package state

import "github.com/roach88/snapstate/internal/value"

// FieldEqual reports whether f holds equal values in a and b.
//
// Containers compare structurally: same size and same members or key→value
// pairs. The pending list compares element-wise in order. Scalars and the
// preferences record compare by value.
func FieldEqual(f Field, a, b Snapshot) bool {
	switch f {
	case FieldUser:
		if (a.user == nil) != (b.user == nil) {
			return false
		}
		return value.EqualObjects(a.user, b.user)
	case FieldItems:
		return a.items.Equal(b.items)
	case FieldLiked:
		return a.liked.Equal(b.liked)
	case FieldSaved:
		return a.saved.Equal(b.saved)
	case FieldProgress:
		return a.progress.Equal(b.progress)
	case FieldOnline:
		return a.online == b.online
	case FieldPending:
		return EqualActions(a.pending, b.pending)
	case FieldCache:
		return a.cache.Equal(b.cache)
	case FieldPreferences:
		return a.prefs == b.prefs
	default:
		return true
	}
}

// Diff returns the top-level fields whose values differ, in declaration order.
func Diff(prev, cur Snapshot) []Field {
	var changed []Field
	for _, f := range Fields {
		if !FieldEqual(f, prev, cur) {
			changed = append(changed, f)
		}
	}
	return changed
}
