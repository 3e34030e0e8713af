package weave

import (
	"context"
	"errors"
	"math"
	"testing"
)

// frozenConversation merges a single thread so tests exercise the same
// freeze path production code does.
func frozenConversation(t *testing.T, th Thread) *Conversation {
	t.Helper()
	res, err := MergeThreads(context.Background(), storeWith(t, th), MergeOptions{})
	if err != nil {
		t.Fatalf("MergeThreads: %v", err)
	}
	if len(res.Conversations) != 1 {
		t.Fatalf("len(Conversations)=%d, want 1", len(res.Conversations))
	}
	return res.Conversations[0]
}

func statsFor(t *testing.T, th Thread) *Stats {
	t.Helper()
	s, err := NewStats(frozenConversation(t, th))
	if err != nil {
		t.Fatalf("NewStats: %v", err)
	}
	return s
}

func emptyStats(t *testing.T) *Stats {
	t.Helper()
	c, err := ConversationFromDocument(ConversationDocument{
		DisplayKey:   "alice,bob",
		Participants: "alice,bob",
	})
	if err != nil {
		t.Fatalf("ConversationFromDocument: %v", err)
	}
	s, err := NewStats(c)
	if err != nil {
		t.Fatalf("NewStats: %v", err)
	}
	return s
}

func TestNewStats_RejectsUnfrozen(t *testing.T) {
	t.Parallel()

	c := newConversation("alice,bob", "alice,bob", Thread{
		Key:      "alice,bob",
		Messages: []Message{clockMsg(t, "alice", 1, 9, 0)},
	})
	if _, err := NewStats(c); err == nil {
		t.Fatal("expected error for unfrozen conversation")
	}
}

func TestStats_MessageAndWordCounts(t *testing.T) {
	t.Parallel()

	th := Thread{Key: "alice,bob,carol", Messages: []Message{
		{Sender: "alice", Text: "Hello there Bob", Time: clockMsg(t, "alice", 1, 9, 0).Time},
		{Sender: "bob", Text: "hi", Time: clockMsg(t, "bob", 1, 9, 1).Time},
		{Sender: "alice", Text: "how are you", Time: clockMsg(t, "alice", 1, 9, 2).Time},
	}}
	s := statsFor(t, th)

	if n, err := s.MessageCount(""); err != nil || n != 3 {
		t.Fatalf("MessageCount(all)=%d,%v, want 3", n, err)
	}
	if n, err := s.MessageCount("alice"); err != nil || n != 2 {
		t.Fatalf("MessageCount(alice)=%d,%v, want 2", n, err)
	}
	if n, err := s.WordCount("alice"); err != nil || n != 6 {
		t.Fatalf("WordCount(alice)=%d,%v, want 6", n, err)
	}

	counts := s.MessageCounts()
	if counts["carol"] != 0 {
		t.Fatalf("MessageCounts[carol]=%d, want 0 (header member, no messages)", counts["carol"])
	}

	// Carol is in the people set with zero messages: average is 0, not a
	// division failure.
	if avg, err := s.AverageWordsPerMessage("carol"); err != nil || avg != 0 {
		t.Fatalf("AverageWordsPerMessage(carol)=%v,%v, want 0", avg, err)
	}
	if avg, err := s.AverageWordsPerMessage("alice"); err != nil || avg != 3 {
		t.Fatalf("AverageWordsPerMessage(alice)=%v,%v, want 3", avg, err)
	}

	// Unknown person is rejected before computation.
	_, err := s.MessageCount("mallory")
	var invalid *InvalidQueryError
	if !errors.As(err, &invalid) {
		t.Fatalf("MessageCount(mallory) err=%v, want InvalidQueryError", err)
	}
}

func TestStats_DailyHistogramFillsGaps(t *testing.T) {
	t.Parallel()

	// Messages on day 1 and day 3 only: the histogram still has 3 entries.
	th := Thread{Key: "alice,bob", Messages: []Message{
		clockMsg(t, "alice", 1, 9, 0),
		clockMsg(t, "alice", 1, 9, 5),
		clockMsg(t, "bob", 3, 20, 0),
	}}
	s := statsFor(t, th)

	hist, err := s.DailyHistogram("")
	if err != nil {
		t.Fatalf("DailyHistogram: %v", err)
	}
	if len(hist) != 3 {
		t.Fatalf("len(hist)=%d, want 3", len(hist))
	}
	if hist[0].Count != 2 || hist[1].Count != 0 || hist[2].Count != 1 {
		t.Fatalf("counts=%d,%d,%d, want 2,0,1", hist[0].Count, hist[1].Count, hist[2].Count)
	}
	if hist[1].Date.Date().Day() != 2 {
		t.Fatalf("gap day=%v, want March 2", hist[1].Date.Date())
	}

	byBob, err := s.DailyHistogram("bob")
	if err != nil {
		t.Fatalf("DailyHistogram(bob): %v", err)
	}
	if len(byBob) != 3 || byBob[0].Count != 0 || byBob[2].Count != 1 {
		t.Fatalf("bob counts wrong: %+v", byBob)
	}
}

func TestStats_WeekdayDistribution(t *testing.T) {
	t.Parallel()

	// March 2 2020 was a Monday; March 7 a Saturday.
	th := Thread{Key: "alice,bob", Messages: []Message{
		clockMsg(t, "alice", 2, 9, 0),
		clockMsg(t, "alice", 2, 10, 0),
		clockMsg(t, "bob", 7, 9, 0),
		clockMsg(t, "bob", 7, 9, 30),
	}}
	s := statsFor(t, th)

	dist := s.WeekdayDistribution()
	if dist[0] != 0.5 { // Monday
		t.Fatalf("Monday share=%v, want 0.5", dist[0])
	}
	if dist[5] != 0.5 { // Saturday
		t.Fatalf("Saturday share=%v, want 0.5", dist[5])
	}
	for _, i := range []int{1, 2, 3, 4, 6} {
		if dist[i] != 0 {
			t.Fatalf("weekday %d share=%v, want 0", i, dist[i])
		}
	}
}

func TestStats_WeekdayDistributionEmpty(t *testing.T) {
	t.Parallel()

	dist := emptyStats(t).WeekdayDistribution()
	for i, v := range dist {
		if v != 0 {
			t.Fatalf("empty conversation weekday %d=%v, want 0", i, v)
		}
	}
}

func TestStats_TimeOfDayDistribution(t *testing.T) {
	t.Parallel()

	th := Thread{Key: "alice,bob", Messages: []Message{
		clockMsg(t, "alice", 1, 9, 15),
		clockMsg(t, "alice", 1, 9, 45),
		clockMsg(t, "bob", 1, 21, 5),
		clockMsg(t, "bob", 2, 21, 59),
	}}
	s := statsFor(t, th)

	buckets, err := s.TimeOfDayDistribution(60, "")
	if err != nil {
		t.Fatalf("TimeOfDayDistribution: %v", err)
	}
	if len(buckets) != 24 {
		t.Fatalf("len(buckets)=%d, want 24", len(buckets))
	}
	if buckets[9].Label != "09:00" || buckets[9].Percent != 50 {
		t.Fatalf("bucket 9 = %+v, want 09:00 / 50%%", buckets[9])
	}
	if buckets[21].Percent != 50 {
		t.Fatalf("bucket 21 percent=%v, want 50", buckets[21].Percent)
	}

	sum := 0.0
	for _, b := range buckets {
		sum += b.Percent
	}
	if math.Abs(sum-100) > 1e-9 {
		t.Fatalf("percent sum=%v, want 100", sum)
	}

	if _, err := s.TimeOfDayDistribution(0, ""); err == nil {
		t.Fatal("expected error for non-positive window")
	}
}

func TestStats_StarterShares(t *testing.T) {
	t.Parallel()

	// Alice at 23:50 on day 1, Bob at 00:10 on day 2: only 20 minutes of
	// silence, so Bob does not start a new episode. Bob's day-5 message does.
	th := Thread{Key: "alice,bob", Messages: []Message{
		clockMsg(t, "alice", 1, 23, 50),
		clockMsg(t, "bob", 2, 0, 10),
		clockMsg(t, "bob", 5, 9, 0),
	}}
	s := statsFor(t, th)

	shares, err := s.StarterShares(DefaultStarterThresholdMinutes)
	if err != nil {
		t.Fatalf("StarterShares: %v", err)
	}
	if shares["alice"] != 0.5 || shares["bob"] != 0.5 {
		t.Fatalf("shares=%v, want alice 0.5 bob 0.5", shares)
	}

	if _, err := s.StarterShares(0); err == nil {
		t.Fatal("expected error for zero threshold")
	}
}

func TestStats_WordFrequencyFilters(t *testing.T) {
	t.Parallel()

	th := Thread{Key: "alice,bob", Messages: []Message{
		{Sender: "alice", Text: "Check www.example.com and http://x.io now!", Time: clockMsg(t, "alice", 1, 9, 0).Time},
		{Sender: "alice", Text: "zzzzzzzzzzzz ok (really) ok.", Time: clockMsg(t, "alice", 1, 9, 1).Time},
	}}
	s := statsFor(t, th)

	words := s.WordFrequencyByPerson()["alice"]
	if _, ok := words["check"]; !ok {
		t.Fatalf("missing lowercased word: %v", words)
	}
	if words["ok"] != 2 {
		t.Fatalf("ok count=%d, want 2 (punctuation stripped)", words["ok"])
	}
	if words["really"] != 1 {
		t.Fatalf("really count=%d, want 1 (parens stripped)", words["really"])
	}
	for w := range words {
		switch w {
		case "www.example.com", "http://x.io", "zzzzzzzzzzzz":
			t.Fatalf("noise token %q survived the filter", w)
		}
	}

	top, err := s.TopWords("alice", 1)
	if err != nil {
		t.Fatalf("TopWords: %v", err)
	}
	if len(top) != 1 || top[0].Word != "ok" || top[0].Count != 2 {
		t.Fatalf("TopWords=%v, want [{ok 2}]", top)
	}
}

func TestConversation_MessagesBetween(t *testing.T) {
	t.Parallel()

	th := Thread{Key: "alice,bob", Messages: []Message{
		clockMsg(t, "alice", 1, 9, 0),
		clockMsg(t, "bob", 5, 9, 0),
		clockMsg(t, "alice", 10, 9, 0),
		clockMsg(t, "bob", 20, 9, 0),
	}}
	c := frozenConversation(t, th)

	from := clockMsg(t, "x", 4, 0, 0).Time
	to := clockMsg(t, "x", 11, 0, 0).Time
	got := c.MessagesBetween(from, to)
	if len(got) != 2 {
		t.Fatalf("len=%d, want 2 (days 5 and 10)", len(got))
	}
	if got[0].Time.Date().Day() != 5 || got[1].Time.Date().Day() != 10 {
		t.Fatalf("window picked wrong messages: %v .. %v", got[0].Time, got[1].Time)
	}

	if got := c.MessagesBetween(to, from); got != nil {
		t.Fatalf("inverted window returned %d messages, want none", len(got))
	}
}

func TestConversation_DocumentRoundTrip(t *testing.T) {
	t.Parallel()

	th := Thread{Key: "alice,bob", Messages: []Message{
		{Sender: "alice", Text: "hello", Time: clockMsg(t, "alice", 1, 9, 0).Time},
		{Sender: "bob", Text: "hey", Time: clockMsg(t, "bob", 1, 9, 5).Time},
	}}
	c := frozenConversation(t, th)

	back, err := ConversationFromDocument(c.Document())
	if err != nil {
		t.Fatalf("ConversationFromDocument: %v", err)
	}
	if back.DisplayKey() != c.DisplayKey() || back.Len() != c.Len() {
		t.Fatal("round trip lost identity or messages")
	}
	for i := 0; i < c.Len(); i++ {
		if !back.At(i).Time.Equal(c.At(i).Time) || back.At(i).Text != c.At(i).Text {
			t.Fatalf("message %d differs after round trip", i)
		}
	}
	if !back.Frozen() {
		t.Fatal("rebuilt conversation must be frozen")
	}
}
