package state

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/roach88/snapstate/internal/value"
)

// CacheEntry is a memoized result and the time it was stored.
type CacheEntry struct {
	Data       value.Value
	InsertedAt time.Time
}

// Fresh reports whether the entry is still valid at now for the given ttl.
// An entry is valid only while now - InsertedAt < ttl.
func (e CacheEntry) Fresh(now time.Time, ttl time.Duration) bool {
	return now.Sub(e.InsertedAt) < ttl
}

// Equal compares insertion time and data structurally.
func (e CacheEntry) Equal(o CacheEntry) bool {
	return e.InsertedAt.Equal(o.InsertedAt) && value.Equal(e.Data, o.Data)
}

type cacheEntryJSON struct {
	Data       json.RawMessage `json:"data"`
	InsertedAt int64           `json:"inserted_at"` // Unix milliseconds
}

// MarshalJSON encodes the entry with a millisecond timestamp.
func (e CacheEntry) MarshalJSON() ([]byte, error) {
	data, err := value.Marshal(e.Data)
	if err != nil {
		return nil, fmt.Errorf("marshal cache data: %w", err)
	}
	return json.Marshal(cacheEntryJSON{Data: data, InsertedAt: e.InsertedAt.UnixMilli()})
}

// UnmarshalJSON decodes an entry written by MarshalJSON.
func (e *CacheEntry) UnmarshalJSON(raw []byte) error {
	var enc cacheEntryJSON
	if err := json.Unmarshal(raw, &enc); err != nil {
		return err
	}
	data, err := value.Parse(enc.Data)
	if err != nil {
		return fmt.Errorf("unmarshal cache data: %w", err)
	}
	*e = CacheEntry{Data: data, InsertedAt: time.UnixMilli(enc.InsertedAt)}
	return nil
}

// CacheTable is an immutable keyed collection of cache entries.
type CacheTable struct {
	m map[string]CacheEntry
}

// NewCacheTable builds a CacheTable from a map. The map is copied.
func NewCacheTable(m map[string]CacheEntry) CacheTable {
	return CacheTable{m: maps.Clone(m)}
}

// Get returns the entry stored under key, fresh or not.
func (c CacheTable) Get(key string) (CacheEntry, bool) {
	e, ok := c.m[key]
	return e, ok
}

// Len returns the number of entries.
func (c CacheTable) Len() int {
	return len(c.m)
}

// Keys returns cache keys in sorted order.
func (c CacheTable) Keys() []string {
	return slices.Sorted(maps.Keys(c.m))
}

// With returns a CacheTable with key set to e.
func (c CacheTable) With(key string, e CacheEntry) CacheTable {
	m := make(map[string]CacheEntry, len(c.m)+1)
	maps.Copy(m, c.m)
	m[key] = e
	return CacheTable{m: m}
}

// WithoutMatching returns a CacheTable without any key containing substr,
// plus the removed keys in sorted order.
func (c CacheTable) WithoutMatching(substr string) (CacheTable, []string) {
	var removed []string
	m := make(map[string]CacheEntry, len(c.m))
	for k, e := range c.m {
		if strings.Contains(k, substr) {
			removed = append(removed, k)
			continue
		}
		m[k] = e
	}
	if len(removed) == 0 {
		return c, nil
	}
	slices.Sort(removed)
	return CacheTable{m: m}, removed
}

// WithoutStale returns a CacheTable holding only entries fresh at now.
func (c CacheTable) WithoutStale(now time.Time, ttl time.Duration) (CacheTable, int) {
	m := make(map[string]CacheEntry, len(c.m))
	for k, e := range c.m {
		if e.Fresh(now, ttl) {
			m[k] = e
		}
	}
	dropped := len(c.m) - len(m)
	if dropped == 0 {
		return c, 0
	}
	return CacheTable{m: m}, dropped
}

// Equal reports whether both tables have the same size and equal entries per key.
func (c CacheTable) Equal(o CacheTable) bool {
	if len(c.m) != len(o.m) {
		return false
	}
	for k, e := range c.m {
		other, ok := o.m[k]
		if !ok || !e.Equal(other) {
			return false
		}
	}
	return true
}

// MarshalJSON encodes the table as an object of entries.
func (c CacheTable) MarshalJSON() ([]byte, error) {
	if c.m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(c.m)
}

// UnmarshalJSON decodes an object of entries.
func (c *CacheTable) UnmarshalJSON(data []byte) error {
	var m map[string]CacheEntry
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	*c = CacheTable{m: m}
	return nil
}
