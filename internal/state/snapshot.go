package state

import (
	"slices"

	"github.com/roach88/snapstate/internal/value"
)

// Snapshot is an immutable record of all application state.
//
// Snapshots are values: copying one is cheap and never aliases mutable
// state, because every container is itself immutable. A new Snapshot is
// built with Merge; the receiver is never modified.
type Snapshot struct {
	version  int64
	user     value.Object // nil when signed out
	items    Collection
	liked    Set
	saved    Set
	progress Index
	online   bool
	pending  []PendingAction
	cache    CacheTable
	prefs    Preferences
}

// Default returns the snapshot of a fresh install at version 0.
func Default() Snapshot {
	return Snapshot{
		items:    NewCollection(nil),
		liked:    NewSet(),
		saved:    NewSet(),
		progress: NewIndex(nil),
		online:   true,
		pending:  []PendingAction{},
		cache:    NewCacheTable(nil),
		prefs:    DefaultPreferences(),
	}
}

// Version is the logical commit sequence that produced this snapshot.
func (s Snapshot) Version() int64 { return s.version }

// User returns a copy of the user profile, or false when signed out.
func (s Snapshot) User() (value.Object, bool) {
	if s.user == nil {
		return nil, false
	}
	return s.user.Clone(), true
}

// Items returns the item collection.
func (s Snapshot) Items() Collection { return s.items }

// Liked returns the liked set.
func (s Snapshot) Liked() Set { return s.liked }

// Saved returns the saved set.
func (s Snapshot) Saved() Set { return s.saved }

// Progress returns the per-item sub-index.
func (s Snapshot) Progress() Index { return s.progress }

// Online returns the connectivity flag.
func (s Snapshot) Online() bool { return s.online }

// Pending returns a copy of the pending action list, oldest first.
func (s Snapshot) Pending() []PendingAction { return slices.Clone(s.pending) }

// Cache returns the cache table.
func (s Snapshot) Cache() CacheTable { return s.cache }

// Preferences returns the UI preferences.
func (s Snapshot) Preferences() Preferences { return s.prefs }

// Membership returns the Set stored in a set-valued field.
// It returns false for fields that are not sets.
func (s Snapshot) Membership(f Field) (Set, bool) {
	switch f {
	case FieldLiked:
		return s.liked, true
	case FieldSaved:
		return s.saved, true
	default:
		return Set{}, false
	}
}

// Get returns the value of f in the same representation a Patch uses.
func (s Snapshot) Get(f Field) any {
	switch f {
	case FieldUser:
		if s.user == nil {
			return value.Null{}
		}
		return s.user
	case FieldItems:
		return s.items
	case FieldLiked:
		return s.liked
	case FieldSaved:
		return s.saved
	case FieldProgress:
		return s.progress
	case FieldOnline:
		return s.online
	case FieldPending:
		return slices.Clone(s.pending)
	case FieldCache:
		return s.cache
	case FieldPreferences:
		return s.prefs
	default:
		return nil
	}
}

// Merge returns a new Snapshot with the patch applied over s and the given
// version. The patch must already have passed Validate.
func (s Snapshot) Merge(p Patch, version int64) Snapshot {
	next := s
	next.version = version
	for f, v := range p {
		switch f {
		case FieldUser:
			next.user = nil
			if obj, ok := v.(value.Object); ok && obj != nil {
				next.user = obj.Clone()
			}
		case FieldItems:
			next.items = v.(Collection)
		case FieldLiked:
			next.liked = v.(Set)
		case FieldSaved:
			next.saved = v.(Set)
		case FieldProgress:
			next.progress = v.(Index)
		case FieldOnline:
			next.online = v.(bool)
		case FieldPending:
			next.pending = slices.Clone(v.([]PendingAction))
		case FieldCache:
			next.cache = v.(CacheTable)
		case FieldPreferences:
			next.prefs = v.(Preferences)
		}
	}
	return next
}
