package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHistory_BoundedRing(t *testing.T) {
	h := NewHistory(3)
	for i := int64(1); i <= 5; i++ {
		h.Append(HistoryEntry{Seq: i})
	}

	entries := h.Entries()
	assert.Equal(t, 3, h.Len())
	assert.Len(t, entries, 3)
	assert.Equal(t, []int64{3, 4, 5}, []int64{entries[0].Seq, entries[1].Seq, entries[2].Seq})
}

func TestHistory_UnderLimit(t *testing.T) {
	h := NewHistory(10)
	h.Append(HistoryEntry{Seq: 1})
	h.Append(HistoryEntry{Seq: 2})

	entries := h.Entries()
	assert.Len(t, entries, 2)
	assert.Equal(t, int64(1), entries[0].Seq)
}

func TestHistory_DefaultLimit(t *testing.T) {
	assert.Equal(t, DefaultHistoryLimit, NewHistory(0).Limit())
	assert.Equal(t, DefaultHistoryLimit, NewHistory(-1).Limit())
}
