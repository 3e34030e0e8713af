package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/theimaginaryfoundation/thread-weaver/weave"
)

func frozenConv(t *testing.T, key string, raws ...string) *weave.Conversation {
	t.Helper()
	doc := weave.ConversationDocument{DisplayKey: key, Participants: "alice,bob"}
	for i, raw := range raws {
		sender := "alice"
		if i%2 == 1 {
			sender = "bob"
		}
		doc.Messages = append(doc.Messages, weave.MessageRecord{
			Sender:    sender,
			Text:      "hello",
			Timestamp: raw,
		})
	}
	c, err := weave.ConversationFromDocument(doc)
	if err != nil {
		t.Fatalf("ConversationFromDocument: %v", err)
	}
	return c
}

func TestStore_SaveLoadRoundTrip(t *testing.T) {
	t.Parallel()

	s, err := New(filepath.Join(t.TempDir(), "weaver.db"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	convs := []*weave.Conversation{
		frozenConv(t, "alice,bob",
			"Monday, March 2, 2020, 9:00am UTC",
			"Monday, March 2, 2020, 9:05am UTC"),
		frozenConv(t, "alice,bob, DUPLICATE #1",
			"Saturday, March 7, 2020, 1:00pm UTC"),
	}
	if err := s.SaveConversations(ctx, convs); err != nil {
		t.Fatalf("SaveConversations: %v", err)
	}

	infos, err := s.ListConversations(ctx)
	if err != nil {
		t.Fatalf("ListConversations: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("len(infos)=%d, want 2", len(infos))
	}
	if infos[0].DisplayKey != "alice,bob" || infos[0].MessageCount != 2 {
		t.Fatalf("infos[0]=%+v", infos[0])
	}

	got, err := s.LoadConversation(ctx, "alice,bob")
	if err != nil {
		t.Fatalf("LoadConversation: %v", err)
	}
	if got.Len() != 2 || !got.Frozen() {
		t.Fatalf("loaded Len=%d Frozen=%v", got.Len(), got.Frozen())
	}
	orig := convs[0]
	for i := 0; i < got.Len(); i++ {
		if !got.At(i).Time.Equal(orig.At(i).Time) || got.At(i).Sender != orig.At(i).Sender {
			t.Fatalf("message %d differs after round trip", i)
		}
	}
	if got.At(0).Time.Raw() != orig.At(0).Time.Raw() {
		t.Fatal("raw timestamp string was not preserved")
	}
}

func TestStore_SaveReplacesExisting(t *testing.T) {
	t.Parallel()

	s, err := New(filepath.Join(t.TempDir(), "weaver.db"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	v1 := frozenConv(t, "alice,bob", "Monday, March 2, 2020, 9:00am UTC")
	if err := s.SaveConversations(ctx, []*weave.Conversation{v1}); err != nil {
		t.Fatalf("save v1: %v", err)
	}

	v2 := frozenConv(t, "alice,bob",
		"Monday, March 2, 2020, 9:00am UTC",
		"Monday, March 2, 2020, 9:30am UTC",
		"Monday, March 2, 2020, 9:45am UTC")
	if err := s.SaveConversations(ctx, []*weave.Conversation{v2}); err != nil {
		t.Fatalf("save v2: %v", err)
	}

	got, err := s.LoadConversation(ctx, "alice,bob")
	if err != nil {
		t.Fatalf("LoadConversation: %v", err)
	}
	if got.Len() != 3 {
		t.Fatalf("Len=%d, want 3 (replaced, not appended)", got.Len())
	}
}

func TestStore_LoadMissingConversation(t *testing.T) {
	t.Parallel()

	s, err := New(filepath.Join(t.TempDir(), "weaver.db"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	if _, err := s.LoadConversation(context.Background(), "nobody"); err == nil {
		t.Fatal("expected error for missing conversation")
	}
}
