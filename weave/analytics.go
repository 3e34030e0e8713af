package weave

import (
	"fmt"
	"sort"
	"strings"

	"github.com/theimaginaryfoundation/thread-weaver/weave/fileutils"
)

// Default analytics parameters. Empirically chosen against the source
// archive, so callers can override both.
const (
	// DefaultStarterThresholdMinutes is the inactivity gap after which a
	// message starts a new conversation episode (4 hours).
	DefaultStarterThresholdMinutes = 240

	// DefaultTimeOfDayWindowMinutes is the bucket width for the
	// time-of-day distribution.
	DefaultTimeOfDayWindowMinutes = 60
)

// InvalidQueryError rejects an analytics query before any computation:
// a person outside the conversation's people set, a non-positive bucket
// window, or a non-positive threshold.
type InvalidQueryError struct {
	Param  string
	Reason string
}

func (e *InvalidQueryError) Error() string {
	return fmt.Sprintf("invalid query parameter %s: %s", e.Param, e.Reason)
}

// Stats answers read-only statistical queries over one frozen conversation.
// Every query is a pure function of the conversation and its parameters, so
// a single Stats value is safe for concurrent callers.
type Stats struct {
	conv *Conversation
}

// NewStats wraps a frozen conversation. Wrapping an unfrozen conversation is
// an error: the merge engine may still be appending to it.
func NewStats(c *Conversation) (*Stats, error) {
	if c == nil {
		return nil, fmt.Errorf("NewStats: conversation is nil")
	}
	if !c.Frozen() {
		return nil, fmt.Errorf("NewStats: conversation %q is not frozen", c.DisplayKey())
	}
	return &Stats{conv: c}, nil
}

// Conversation returns the underlying conversation.
func (s *Stats) Conversation() *Conversation { return s.conv }

func (s *Stats) checkPerson(person string) error {
	if person == "" {
		return nil
	}
	if !s.conv.HasPerson(person) {
		return &InvalidQueryError{Param: "person", Reason: fmt.Sprintf("%q is not in this conversation", person)}
	}
	return nil
}

// MessageCount returns the number of messages sent by person, or by everyone
// when person is empty.
func (s *Stats) MessageCount(person string) (int, error) {
	if err := s.checkPerson(person); err != nil {
		return 0, err
	}
	if person == "" {
		return s.conv.Len(), nil
	}
	n := 0
	for _, m := range s.conv.messages {
		if m.Sender == person {
			n++
		}
	}
	return n, nil
}

// MessageCounts returns per-person message counts. People with no messages
// appear with a zero count.
func (s *Stats) MessageCounts() map[string]int {
	counts := make(map[string]int)
	for _, p := range s.conv.People() {
		counts[p] = 0
	}
	for _, m := range s.conv.messages {
		counts[m.Sender]++
	}
	return counts
}

// WordCount returns the total word count for person (everyone when empty).
// Tokenization is whitespace splitting after lowercasing; no stemming.
func (s *Stats) WordCount(person string) (int, error) {
	if err := s.checkPerson(person); err != nil {
		return 0, err
	}
	n := 0
	for _, m := range s.conv.messages {
		if person != "" && m.Sender != person {
			continue
		}
		n += len(strings.Fields(strings.ToLower(m.Text)))
	}
	return n, nil
}

// WordCounts returns per-person word counts.
func (s *Stats) WordCounts() map[string]int {
	counts := make(map[string]int)
	for _, p := range s.conv.People() {
		counts[p] = 0
	}
	for _, m := range s.conv.messages {
		counts[m.Sender] += len(strings.Fields(strings.ToLower(m.Text)))
	}
	return counts
}

// AverageWordsPerMessage returns words/messages for person (everyone when
// empty), and 0 for a person with no messages.
func (s *Stats) AverageWordsPerMessage(person string) (float64, error) {
	msgs, err := s.MessageCount(person)
	if err != nil {
		return 0, err
	}
	if msgs == 0 {
		return 0, nil
	}
	words, err := s.WordCount(person)
	if err != nil {
		return 0, err
	}
	return float64(words) / float64(msgs), nil
}

// DayCount is one entry of a daily histogram.
type DayCount struct {
	Date  MessageTime
	Count int
}

// DailyHistogram returns one entry per calendar day from the conversation's
// first message to its last, inclusive, counting messages by contact
// (everyone when empty). Days with no messages are present with a zero
// count rather than skipped.
func (s *Stats) DailyHistogram(contact string) ([]DayCount, error) {
	if err := s.checkPerson(contact); err != nil {
		return nil, err
	}
	if s.conv.Len() == 0 {
		return nil, nil
	}

	first := s.conv.First().Time.Date()
	last := s.conv.Last().Time.Date()

	var hist []DayCount
	index := make(map[string]int)
	for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
		index[d.Format("2006-01-02")] = len(hist)
		hist = append(hist, DayCount{Date: MessageTimeFromDate(d)})
	}

	for _, m := range s.conv.messages {
		if contact != "" && m.Sender != contact {
			continue
		}
		if i, ok := index[m.Time.Date().Format("2006-01-02")]; ok {
			hist[i].Count++
		}
	}
	return hist, nil
}

// WeekdayDistribution returns each weekday's share of all messages, indexed
// Monday=0 through Sunday=6. An empty conversation yields all zeros, not an
// error.
func (s *Stats) WeekdayDistribution() [7]float64 {
	var counts [7]int
	total := 0
	for _, m := range s.conv.messages {
		counts[mondayIndexed(m.Time)]++
		total++
	}

	var dist [7]float64
	if total == 0 {
		return dist
	}
	for i, n := range counts {
		dist[i] = float64(n) / float64(total)
	}
	return dist
}

func mondayIndexed(t MessageTime) int {
	return (int(t.Weekday()) + 6) % 7
}

// TimeBucket is one entry of a time-of-day distribution.
type TimeBucket struct {
	Label   string // bucket start, "15:00"
	Percent float64
}

// TimeOfDayDistribution buckets messages by minute of day into windows of
// windowMinutes, for contact (everyone when empty). Percentages sum to ~100
// across buckets when any messages match.
func (s *Stats) TimeOfDayDistribution(windowMinutes int, contact string) ([]TimeBucket, error) {
	if windowMinutes <= 0 {
		return nil, &InvalidQueryError{Param: "windowMinutes", Reason: "must be positive"}
	}
	if err := s.checkPerson(contact); err != nil {
		return nil, err
	}

	bucketCount := (minutesPerDay + windowMinutes - 1) / windowMinutes
	buckets := make([]TimeBucket, bucketCount)
	counts := make([]int, bucketCount)
	for i := range buckets {
		start := i * windowMinutes
		buckets[i].Label = fmt.Sprintf("%02d:%02d", start/60, start%60)
	}

	total := 0
	for _, m := range s.conv.messages {
		if contact != "" && m.Sender != contact {
			continue
		}
		counts[(m.Time.MinutesOfDay()/windowMinutes)%bucketCount]++
		total++
	}
	if total == 0 {
		return buckets, nil
	}
	for i, n := range counts {
		buckets[i].Percent = float64(n) / float64(total) * 100
	}
	return buckets, nil
}

// StarterShares attributes conversation episodes to the people who started
// them. A message starts a new episode when its minute distance from the
// immediately preceding message exceeds thresholdMinutes; the first message
// of the conversation is always a starter. Each person's share is their
// fraction of all episode starts.
func (s *Stats) StarterShares(thresholdMinutes int) (map[string]float64, error) {
	if thresholdMinutes <= 0 {
		return nil, &InvalidQueryError{Param: "thresholdMinutes", Reason: "must be positive"}
	}

	starts := make(map[string]int)
	episodes := 0
	for i, m := range s.conv.messages {
		if i == 0 || m.Time.DistanceMinutes(s.conv.messages[i-1].Time) > thresholdMinutes {
			starts[m.Sender]++
			episodes++
		}
	}

	shares := make(map[string]float64, len(starts))
	if episodes == 0 {
		return shares, nil
	}
	for person, n := range starts {
		shares[person] = float64(n) / float64(episodes)
	}
	return shares, nil
}

// urlFragments marks tokens that are links rather than words.
var urlFragments = []string{".com", "www.", ".io", ".edu", "http"}

// wordTrimSet is the punctuation stripped from token edges.
const wordTrimSet = ".,!?;:\"'()[]{}<>*~-_"

const (
	// maxWordLength caps token length; anything longer is keyboard mash or
	// paste noise, not vocabulary.
	maxWordLength = 30

	// maxRunLength drops tokens dominated by one repeated character
	// ("zzzzzzzzzzzz", "!!!!!!!!!!!").
	maxRunLength = 10
)

// WordFrequencyByPerson returns per-person word counts over the lowercased,
// punctuation-stripped vocabulary, with URL-like and pathological tokens
// discarded. This mapping is the input contract for the word-cloud renderer.
func (s *Stats) WordFrequencyByPerson() map[string]map[string]int {
	freq := make(map[string]map[string]int)
	for _, m := range s.conv.messages {
		words := freq[m.Sender]
		if words == nil {
			words = make(map[string]int)
			freq[m.Sender] = words
		}
		for _, tok := range strings.Fields(strings.ToLower(m.Text)) {
			tok = strings.Trim(tok, wordTrimSet)
			if tok == "" || isNoiseToken(tok) {
				continue
			}
			words[tok]++
		}
	}
	return freq
}

func isNoiseToken(tok string) bool {
	for _, frag := range urlFragments {
		if strings.Contains(tok, frag) {
			return true
		}
	}
	if len(tok) > maxWordLength {
		return true
	}
	run := 1
	var prev rune
	for i, r := range tok {
		if i > 0 && r == prev {
			run++
			if run >= maxRunLength {
				return true
			}
		} else {
			run = 1
		}
		prev = r
	}
	return false
}

// ExportWordCounts writes the word-cloud contract (person → word → count) as
// a JSON document. The rendering itself is someone else's job; this file is
// the whole boundary.
func (s *Stats) ExportWordCounts(path string, pretty bool) error {
	if path == "" {
		return fmt.Errorf("ExportWordCounts: path is empty")
	}
	return fileutils.WriteJSONFileAtomic(path, s.WordFrequencyByPerson(), pretty)
}

// TopWords returns person's most frequent words, highest count first, ties
// broken alphabetically, capped at limit.
func (s *Stats) TopWords(person string, limit int) ([]WordCount, error) {
	if limit <= 0 {
		return nil, &InvalidQueryError{Param: "limit", Reason: "must be positive"}
	}
	if err := s.checkPerson(person); err != nil {
		return nil, err
	}

	freq := s.WordFrequencyByPerson()
	merged := make(map[string]int)
	for p, words := range freq {
		if person != "" && p != person {
			continue
		}
		for w, n := range words {
			merged[w] += n
		}
	}

	out := make([]WordCount, 0, len(merged))
	for w, n := range merged {
		out = append(out, WordCount{Word: w, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Word < out[j].Word
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// WordCount pairs a word with its frequency.
type WordCount struct {
	Word  string `json:"word"`
	Count int    `json:"count"`
}
