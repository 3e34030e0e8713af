package weave

import (
	"errors"
	"fmt"
	"sort"
)

// Conversation is a reconstructed, fully time-ordered message history for
// one participant set, possibly merged from many threads. A conversation
// whose key collides with another but whose content is genuinely distinct
// carries a synthetic "DUPLICATE #n" display key; duplicates are otherwise
// structurally identical to primaries.
//
// Conversations are append-only while the merge engine runs and read-only
// once frozen, which makes every query on them safe for concurrent callers.
type Conversation struct {
	displayKey string
	key        ParticipantKey
	messages   []Message
	frozen     bool
}

// OrderingViolationError reports a frozen conversation that is not
// monotonically time-ordered. This indicates a wrong oracle answer or a
// heuristic edge case and is surfaced as-is; re-sorting would hide merge
// bugs and could interleave unrelated conversations.
type OrderingViolationError struct {
	Key   string
	Index int
	Prev  MessageTime
	Curr  MessageTime
}

func (e *OrderingViolationError) Error() string {
	return fmt.Sprintf("conversation %q: message %d (%s) precedes message %d (%s)",
		e.Key, e.Index, e.Curr, e.Index-1, e.Prev)
}

func newConversation(key ParticipantKey, displayKey string, seed Thread) *Conversation {
	return &Conversation{
		displayKey: displayKey,
		key:        key,
		messages:   append([]Message(nil), seed.Messages...),
	}
}

// DisplayKey returns the conversation's identity including any duplicate
// suffix, e.g. "Alice,Bob" or "Alice,Bob, DUPLICATE #2".
func (c *Conversation) DisplayKey() string { return c.displayKey }

// Key returns the underlying participant key, shared with any duplicates.
func (c *Conversation) Key() ParticipantKey { return c.key }

// Len returns the number of messages.
func (c *Conversation) Len() int { return len(c.messages) }

// At returns the message at index i.
func (c *Conversation) At(i int) Message { return c.messages[i] }

// First returns the earliest message.
func (c *Conversation) First() Message { return c.messages[0] }

// Last returns the latest message.
func (c *Conversation) Last() Message { return c.messages[len(c.messages)-1] }

// Frozen reports whether the merge engine has finished with this
// conversation.
func (c *Conversation) Frozen() bool { return c.frozen }

// Messages returns a copy of the full message sequence.
func (c *Conversation) Messages() []Message {
	return append([]Message(nil), c.messages...)
}

// People returns the participant key members plus any speaker names observed
// in the messages but absent from the header, tolerating group-membership
// drift. Sorted.
func (c *Conversation) People() []string {
	seen := make(map[string]struct{})
	for _, n := range c.key.Names() {
		seen[n] = struct{}{}
	}
	for _, m := range c.messages {
		seen[m.Sender] = struct{}{}
	}
	people := make([]string, 0, len(seen))
	for n := range seen {
		people = append(people, n)
	}
	sort.Strings(people)
	return people
}

// HasPerson reports whether name is in the conversation's people set.
func (c *Conversation) HasPerson(name string) bool {
	for _, n := range c.key.Names() {
		if n == name {
			return true
		}
	}
	for _, m := range c.messages {
		if m.Sender == name {
			return true
		}
	}
	return false
}

// MessagesBetween returns the messages in the approximate window [from, to],
// located with nearest-match search on the time-ordered sequence. The window
// edges are the messages closest to each boundary, so a boundary that falls
// between messages snaps to its nearest neighbor.
func (c *Conversation) MessagesBetween(from, to MessageTime) []Message {
	if len(c.messages) == 0 || to.Before(from) {
		return nil
	}
	key := func(m Message) MessageTime { return m.Time }
	i := NearestIndex(c.messages, from, key)
	j := NearestIndex(c.messages, to, key)
	if i > j {
		i, j = j, i
	}
	return append([]Message(nil), c.messages[i:j+1]...)
}

// appendThread extends the conversation with a resolved continuation thread.
// Panics if the conversation is already frozen; merge ordering guarantees it
// never is.
func (c *Conversation) appendThread(t Thread) {
	if c.frozen {
		panic("weave: append to frozen conversation " + c.displayKey)
	}
	c.messages = append(c.messages, t.Messages...)
}

// freeze marks the conversation read-only and verifies the non-decreasing
// time ordering invariant across the merged sequence. Violations are
// returned, never corrected.
func (c *Conversation) freeze() []error {
	c.frozen = true
	var violations []error
	for i := 1; i < len(c.messages); i++ {
		if c.messages[i].Time.Before(c.messages[i-1].Time) {
			violations = append(violations, &OrderingViolationError{
				Key:   c.displayKey,
				Index: i,
				Prev:  c.messages[i-1].Time,
				Curr:  c.messages[i].Time,
			})
		}
	}
	return violations
}

// ConversationDocument is the serialized form of a frozen conversation: a
// keyed document holding the ordered message list with raw timestamp
// strings, so a stored conversation round-trips without re-merging.
type ConversationDocument struct {
	DisplayKey   string          `json:"display_key"`
	Participants string          `json:"participants"`
	Messages     []MessageRecord `json:"messages"`
}

// MessageRecord is the wire form of one message.
type MessageRecord struct {
	Sender    string `json:"sender"`
	Text      string `json:"text,omitempty"`
	Timestamp string `json:"timestamp"`
}

// Document serializes the conversation.
func (c *Conversation) Document() ConversationDocument {
	doc := ConversationDocument{
		DisplayKey:   c.displayKey,
		Participants: string(c.key),
		Messages:     make([]MessageRecord, 0, len(c.messages)),
	}
	for _, m := range c.messages {
		doc.Messages = append(doc.Messages, MessageRecord{
			Sender:    m.Sender,
			Text:      m.Text,
			Timestamp: m.Time.Raw(),
		})
	}
	return doc
}

// ConversationFromDocument rebuilds a frozen conversation from its
// serialized form, re-parsing the retained raw timestamps.
func ConversationFromDocument(doc ConversationDocument) (*Conversation, error) {
	if doc.DisplayKey == "" {
		return nil, errors.New("ConversationFromDocument: empty display key")
	}
	key, err := ParseParticipantHeader(doc.Participants)
	if err != nil {
		return nil, fmt.Errorf("ConversationFromDocument: %w", err)
	}

	c := &Conversation{
		displayKey: doc.DisplayKey,
		key:        key,
		messages:   make([]Message, 0, len(doc.Messages)),
		frozen:     true,
	}
	for i, rec := range doc.Messages {
		mt, err := ParseMessageTime(rec.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("ConversationFromDocument: message %d: %w", i, err)
		}
		c.messages = append(c.messages, Message{Sender: rec.Sender, Text: rec.Text, Time: mt})
	}
	return c, nil
}
