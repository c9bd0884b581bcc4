package state

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/snapstate/internal/value"
)

// EncodeField serializes one field of s for durable storage.
func EncodeField(s Snapshot, f Field) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	switch f {
	case FieldUser:
		data, err = value.Marshal(s.user)
	case FieldPending:
		// A nil list would encode as null and fail the schema on reload.
		pending := s.pending
		if pending == nil {
			pending = []PendingAction{}
		}
		data, err = json.Marshal(pending)
	default:
		if !f.Valid() {
			return nil, fmt.Errorf("encode %s: unknown field", f)
		}
		data, err = json.Marshal(s.Get(f))
	}
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", f, err)
	}
	return data, nil
}

// DecodeField parses a stored record into a patch value for f.
// The result still has to pass Patch.Validate before it is merged.
func DecodeField(f Field, data []byte) (any, error) {
	var (
		out any
		err error
	)
	switch f {
	case FieldUser:
		var v value.Value
		v, err = value.Parse(data)
		out = v
	case FieldItems:
		var c Collection
		err = json.Unmarshal(data, &c)
		out = c
	case FieldLiked, FieldSaved:
		var s Set
		err = json.Unmarshal(data, &s)
		out = s
	case FieldProgress:
		var x Index
		err = json.Unmarshal(data, &x)
		out = x
	case FieldOnline:
		var b bool
		err = json.Unmarshal(data, &b)
		out = b
	case FieldPending:
		var list []PendingAction
		err = json.Unmarshal(data, &list)
		if list == nil {
			list = []PendingAction{}
		}
		out = list
	case FieldCache:
		var c CacheTable
		err = json.Unmarshal(data, &c)
		out = c
	case FieldPreferences:
		p := DefaultPreferences()
		err = json.Unmarshal(data, &p)
		out = p
	default:
		return nil, fmt.Errorf("decode %s: unknown field", f)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", f, err)
	}
	return out, nil
}
