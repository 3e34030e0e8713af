// Package render formats analytics results for the terminal. It is a
// presentation adapter over the weave.Stats query surface; nothing in here
// computes, it only draws.
package render

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/theimaginaryfoundation/thread-weaver/weave"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#58a6ff"))
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	barStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#2bbc8a"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#e5c07b"))
	numberStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
)

const barWidth = 40

var weekdayNames = [7]string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}

// Summary renders the headline numbers for one conversation.
func Summary(s *weave.Stats) string {
	c := s.Conversation()

	var b strings.Builder
	fmt.Fprintln(&b, titleStyle.Render(c.DisplayKey()))
	fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("people:"), strings.Join(c.People(), ", "))
	fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("messages:"), numberStyle.Render(fmt.Sprintf("%d", c.Len())))
	if c.Len() > 0 {
		fmt.Fprintf(&b, "%s %s → %s\n", labelStyle.Render("span:"), c.First().Time, c.Last().Time)
	}

	fmt.Fprintln(&b)
	fmt.Fprintln(&b, titleStyle.Render("Messages by person"))
	b.WriteString(countTable(s.MessageCounts()))

	fmt.Fprintln(&b)
	fmt.Fprintln(&b, titleStyle.Render("Words by person"))
	b.WriteString(countTable(s.WordCounts()))
	return b.String()
}

func countTable(counts map[string]int) string {
	people := make([]string, 0, len(counts))
	total := 0
	for p, n := range counts {
		people = append(people, p)
		total += n
	}
	sort.Slice(people, func(i, j int) bool {
		if counts[people[i]] != counts[people[j]] {
			return counts[people[i]] > counts[people[j]]
		}
		return people[i] < people[j]
	})

	var b strings.Builder
	for _, p := range people {
		share := 0.0
		if total > 0 {
			share = float64(counts[p]) / float64(total)
		}
		fmt.Fprintf(&b, "  %-24s %8d  %s\n", p, counts[p], bar(share))
	}
	return b.String()
}

// WeekdayDistribution renders the Monday-first weekday share chart.
func WeekdayDistribution(dist [7]float64) string {
	var b strings.Builder
	fmt.Fprintln(&b, titleStyle.Render("Messages by weekday"))
	for i, share := range dist {
		fmt.Fprintf(&b, "  %s  %5.1f%%  %s\n", weekdayNames[i], share*100, bar(share))
	}
	return b.String()
}

// TimeOfDay renders a time-of-day distribution, skipping empty buckets at
// full resolution to keep the chart readable.
func TimeOfDay(buckets []weave.TimeBucket) string {
	var b strings.Builder
	fmt.Fprintln(&b, titleStyle.Render("Messages by time of day"))
	for _, bucket := range buckets {
		fmt.Fprintf(&b, "  %s  %5.1f%%  %s\n", bucket.Label, bucket.Percent, bar(bucket.Percent/100))
	}
	return b.String()
}

// StarterShares renders who starts conversation episodes.
func StarterShares(shares map[string]float64, thresholdMinutes int) string {
	people := make([]string, 0, len(shares))
	for p := range shares {
		people = append(people, p)
	}
	sort.Slice(people, func(i, j int) bool {
		if shares[people[i]] != shares[people[j]] {
			return shares[people[i]] > shares[people[j]]
		}
		return people[i] < people[j]
	})

	var b strings.Builder
	fmt.Fprintln(&b, titleStyle.Render(fmt.Sprintf("Conversation starters (gap > %d min)", thresholdMinutes)))
	for _, p := range people {
		fmt.Fprintf(&b, "  %-24s %5.1f%%  %s\n", p, shares[p]*100, bar(shares[p]))
	}
	return b.String()
}

// DailyHistogram renders per-day counts, including zero days.
func DailyHistogram(hist []weave.DayCount) string {
	maxCount := 0
	for _, d := range hist {
		if d.Count > maxCount {
			maxCount = d.Count
		}
	}

	var b strings.Builder
	fmt.Fprintln(&b, titleStyle.Render("Messages per day"))
	for _, d := range hist {
		share := 0.0
		if maxCount > 0 {
			share = float64(d.Count) / float64(maxCount)
		}
		fmt.Fprintf(&b, "  %s  %6d  %s\n", d.Date.Date().Format("2006-01-02"), d.Count, bar(share))
	}
	return b.String()
}

// TopWords renders a person's most frequent vocabulary.
func TopWords(person string, words []weave.WordCount) string {
	title := "Top words"
	if person != "" {
		title = fmt.Sprintf("Top words for %s", person)
	}

	var b strings.Builder
	fmt.Fprintln(&b, titleStyle.Render(title))
	for _, w := range words {
		fmt.Fprintf(&b, "  %-24s %6d\n", w.Word, w.Count)
	}
	return b.String()
}

// Warnings renders merge warnings.
func Warnings(warnings []weave.MergeWarning) string {
	if len(warnings) == 0 {
		return ""
	}
	var b strings.Builder
	fmt.Fprintln(&b, warnStyle.Render(fmt.Sprintf("%d merge warning(s):", len(warnings))))
	for _, w := range warnings {
		fmt.Fprintf(&b, "  %s\n", warnStyle.Render(w.Err.Error()))
	}
	return b.String()
}

func bar(share float64) string {
	if share < 0 {
		share = 0
	}
	if share > 1 {
		share = 1
	}
	n := int(share*barWidth + 0.5)
	return barStyle.Render(strings.Repeat("█", n))
}
