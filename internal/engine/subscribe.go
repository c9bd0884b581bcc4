package engine

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/snapstate/internal/state"
)

// Topic selects which commits a subscriber hears about: one field, or all.
type Topic uint8

// TopicAll subscribes to every commit, including commits that changed no
// field; those arrive with an empty Changed list.
const TopicAll Topic = 0

// On returns the topic for a single field.
func On(f state.Field) Topic {
	return Topic(f)
}

// Field returns the topic's field. Zero for TopicAll.
func (t Topic) Field() state.Field {
	return state.Field(t)
}

// String returns the field name, or "*" for TopicAll.
func (t Topic) String() string {
	if t == TopicAll {
		return "*"
	}
	return state.Field(t).String()
}

// ParseTopic parses a field name or "*".
func ParseTopic(s string) (Topic, bool) {
	if s == "*" {
		return TopicAll, true
	}
	f, ok := state.ParseField(s)
	if !ok {
		return 0, false
	}
	return On(f), true
}

// Change is delivered to subscribers after a commit.
type Change struct {
	Seq      int64
	Previous state.Snapshot
	Current  state.Snapshot

	// Changed lists every field that differs, in declaration order.
	Changed []state.Field

	// Topic is the topic the receiving callback subscribed to.
	Topic Topic
}

// Callback handles one change notification.
// A returned error or panic is logged and isolated from other subscribers.
type Callback func(Change) error

type subscription struct {
	id int64
	cb Callback
}

// Registry maps topics to their subscribers.
//
// Thread-safety: Subscribe, unsubscribe and Len may be called from any
// goroutine. Notify is called by the mutation loop and runs callbacks outside
// the registry lock, so callbacks may subscribe or unsubscribe.
type Registry struct {
	mu     sync.Mutex
	nextID int64
	topics map[Topic][]subscription
	logger *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		topics: make(map[Topic][]subscription),
		logger: logger,
	}
}

// Subscribe registers cb for topic and returns its unsubscribe function.
// Unsubscribe is idempotent; the topic key is removed once it has no
// subscribers left.
func (r *Registry) Subscribe(topic Topic, cb Callback) func() {
	r.mu.Lock()
	r.nextID++
	id := r.nextID
	r.topics[topic] = append(r.topics[topic], subscription{id: id, cb: cb})
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { r.remove(topic, id) })
	}
}

func (r *Registry) remove(topic Topic, id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	subs := r.topics[topic]
	for i, s := range subs {
		if s.id != id {
			continue
		}
		// Copy so a Notify already iterating the old slice is unaffected.
		next := make([]subscription, 0, len(subs)-1)
		next = append(next, subs[:i]...)
		next = append(next, subs[i+1:]...)
		if len(next) == 0 {
			delete(r.topics, topic)
		} else {
			r.topics[topic] = next
		}
		return
	}
}

// Len returns the number of subscribers for topic.
func (r *Registry) Len(topic Topic) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.topics[topic])
}

// Topics returns the number of topics with at least one subscriber.
func (r *Registry) Topics() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.topics)
}

// Notify delivers a commit to the subscribers of each changed field, in field
// declaration order, then to wildcard subscribers. Wildcard subscribers hear
// every commit, even one that changed nothing.
//
// Returns the number of callbacks that failed.
func (r *Registry) Notify(seq int64, prev, cur state.Snapshot, changed []state.Field) int {
	failed := 0
	for _, f := range changed {
		failed += r.deliver(On(f), seq, prev, cur, changed)
	}
	failed += r.deliver(TopicAll, seq, prev, cur, changed)
	return failed
}

func (r *Registry) deliver(topic Topic, seq int64, prev, cur state.Snapshot, changed []state.Field) int {
	r.mu.Lock()
	subs := r.topics[topic]
	r.mu.Unlock()

	failed := 0
	for _, s := range subs {
		ch := Change{Seq: seq, Previous: prev, Current: cur, Changed: changed, Topic: topic}
		if err := invoke(s.cb, ch); err != nil {
			failed++
			r.logger.Error("subscriber failed",
				"error", &SubscriberError{Topic: topic, Seq: seq, Err: err},
				"topic", topic.String(),
				"seq", seq)
		}
	}
	return failed
}

// invoke runs one callback, converting a panic into an error.
func invoke(cb Callback, ch Change) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return cb(ch)
}
