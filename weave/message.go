package weave

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// DefaultPageSize is the maximum number of messages the source archive puts
// in one thread before paginating. Empirical, not proven; overridable
// wherever it matters.
const DefaultPageSize = 10000

// Message is one (speaker, text, time) triple from the archive.
type Message struct {
	Sender string
	Text   string
	Time   MessageTime
}

// ParticipantKey identifies a participant set: the sorted, comma-joined
// participant names from a thread header. Two group chats with identical
// membership share a key, which is why keys alone cannot identify a logical
// conversation.
type ParticipantKey string

// MakeParticipantKey builds a key from participant names. Names are trimmed
// and blanks dropped; an empty result is an error because a thread without a
// parsable participant set cannot be grouped at all.
func MakeParticipantKey(names []string) (ParticipantKey, error) {
	cleaned := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		cleaned = append(cleaned, n)
	}
	if len(cleaned) == 0 {
		return "", errors.New("MakeParticipantKey: no participant names")
	}
	sort.Strings(cleaned)
	return ParticipantKey(strings.Join(cleaned, ",")), nil
}

// ParseParticipantHeader parses a raw thread header of comma-separated
// participant names.
func ParseParticipantHeader(header string) (ParticipantKey, error) {
	key, err := MakeParticipantKey(strings.Split(header, ","))
	if err != nil {
		return "", fmt.Errorf("ParseParticipantHeader: %q: %w", header, err)
	}
	return key, nil
}

// Names returns the individual participant names in key order.
func (k ParticipantKey) Names() []string {
	if k == "" {
		return nil
	}
	return strings.Split(string(k), ",")
}

// Thread is one page of a conversation as produced by the archive's
// pagination: at most a page-size-limit of messages, chronological within
// itself. Thread boundaries carry no content signal.
type Thread struct {
	Key      ParticipantKey
	Messages []Message
}

// First returns the earliest message. Threads are chronological internally,
// so this is index 0.
func (t Thread) First() Message { return t.Messages[0] }

// Last returns the final message of the thread.
func (t Thread) Last() Message { return t.Messages[len(t.Messages)-1] }

// ThreadStore accumulates raw threads discovered during ingestion, grouped
// by participant key. It is the intermediate structure the merge engine
// drains; it holds no merge decisions of its own.
type ThreadStore struct {
	threads map[ParticipantKey][]Thread
}

// NewThreadStore returns an empty store.
func NewThreadStore() *ThreadStore {
	return &ThreadStore{threads: make(map[ParticipantKey][]Thread)}
}

// Add appends a thread under its participant key, preserving arrival order
// within the key.
func (s *ThreadStore) Add(t Thread) error {
	if t.Key == "" {
		return errors.New("ThreadStore.Add: thread has empty participant key")
	}
	if len(t.Messages) == 0 {
		return fmt.Errorf("ThreadStore.Add: thread %q has no messages", t.Key)
	}
	s.threads[t.Key] = append(s.threads[t.Key], t)
	return nil
}

// Keys returns all participant keys in sorted order, for deterministic
// iteration.
func (s *ThreadStore) Keys() []ParticipantKey {
	keys := make([]ParticipantKey, 0, len(s.threads))
	for k := range s.threads {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Threads returns the pending threads for one key in arrival order.
func (s *ThreadStore) Threads(key ParticipantKey) []Thread {
	return s.threads[key]
}

// Len returns the total number of pending threads across all keys.
func (s *ThreadStore) Len() int {
	n := 0
	for _, ts := range s.threads {
		n += len(ts)
	}
	return n
}
