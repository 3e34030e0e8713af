package weave

import (
	"context"
	"fmt"
	"sort"
)

// Oracle is the external judge consulted when the temporal heuristics cannot
// decide whether a candidate thread continues an existing conversation.
// It receives bounded previews: the tail of the conversation built so far
// and the head of the candidate thread. Implementations may be interactive
// or automated; the call is synchronous from the merge engine's view.
type Oracle interface {
	SameConversation(ctx context.Context, existingTail, candidateHead []Message) (bool, error)
}

// AmbiguousMergeError records that the oracle could not produce a decision
// for one participant key. Merging of other keys is unaffected.
type AmbiguousMergeError struct {
	Key string
	Err error
}

func (e *AmbiguousMergeError) Error() string {
	return fmt.Sprintf("ambiguous merge for key %q: %v", e.Key, e.Err)
}

func (e *AmbiguousMergeError) Unwrap() error { return e.Err }

// MergeOptions tunes the reconstruction heuristics. The defaults mirror the
// archive this tool was built against; none of them are proven correct, so
// all are overridable.
type MergeOptions struct {
	// PageSize is the archive's per-thread message cap (default 10000).
	// The auto-chain rule only fires for full pages.
	PageSize int

	// ChainGapMin/ChainGapMax bound the minute gap, last message of the
	// target minus first message of the candidate, inside which a full page
	// followed by another full page is treated as guaranteed pagination
	// (defaults -3 and 0).
	ChainGapMin int
	ChainGapMax int

	// PreviewMessages is how many messages of conversation tail and
	// candidate head the oracle is shown (default 5).
	PreviewMessages int

	// Oracle resolves ambiguous cases. If nil, every ambiguous candidate is
	// routed to a new duplicate conversation and a warning recorded.
	Oracle Oracle
}

func (o MergeOptions) withDefaults() MergeOptions {
	if o.PageSize <= 0 {
		o.PageSize = DefaultPageSize
	}
	if o.ChainGapMin == 0 && o.ChainGapMax == 0 {
		o.ChainGapMin, o.ChainGapMax = -3, 0
	}
	if o.PreviewMessages <= 0 {
		o.PreviewMessages = 5
	}
	return o
}

// MergeWarning is a non-fatal problem found while merging one key:
// an inconclusive oracle (*AmbiguousMergeError) or a post-freeze ordering
// check failure (*OrderingViolationError).
type MergeWarning struct {
	Key string
	Err error
}

// MergeResult is the full set of reconstructed conversations plus any
// warnings. Conversations are frozen and sorted by display key.
type MergeResult struct {
	Conversations []*Conversation
	Warnings      []MergeWarning
}

// Find returns the conversation with the given display key, or nil.
func (r MergeResult) Find(displayKey string) *Conversation {
	for _, c := range r.Conversations {
		if c.DisplayKey() == displayKey {
			return c
		}
	}
	return nil
}

// MergeThreads drains a thread store into frozen conversations.
//
// A key with a single thread becomes a conversation directly, without
// consulting the oracle. For keys with several threads the first arrival
// seeds the primary conversation and the rest are resolved one at a time,
// earliest first, against the primary and then each existing duplicate:
//
//   - gap in [ChainGapMin, ChainGapMax] with a full candidate page appended
//     to an already-overflowing target is pagination, chained silently;
//   - a candidate whose first message precedes the target's last message
//     cannot continue it and moves on to the next target;
//   - anything else asks the oracle; "different" everywhere (or no oracle)
//     seeds a new "DUPLICATE #n" conversation.
//
// Keys are independent: an oracle failure poisons only its own key. After
// draining, every conversation is frozen and its time ordering verified;
// violations become warnings, never silent re-sorts.
func MergeThreads(ctx context.Context, store *ThreadStore, opts MergeOptions) (MergeResult, error) {
	if ctx == nil {
		return MergeResult{}, fmt.Errorf("MergeThreads: ctx is nil")
	}
	if store == nil {
		return MergeResult{}, fmt.Errorf("MergeThreads: store is nil")
	}
	opts = opts.withDefaults()

	var res MergeResult
	for _, key := range store.Keys() {
		select {
		case <-ctx.Done():
			return MergeResult{}, ctx.Err()
		default:
		}

		convs, warnings := mergeKey(ctx, key, store.Threads(key), opts)
		res.Conversations = append(res.Conversations, convs...)
		res.Warnings = append(res.Warnings, warnings...)
	}

	for _, c := range res.Conversations {
		for _, v := range c.freeze() {
			res.Warnings = append(res.Warnings, MergeWarning{Key: c.DisplayKey(), Err: v})
		}
	}

	sort.Slice(res.Conversations, func(i, j int) bool {
		return res.Conversations[i].DisplayKey() < res.Conversations[j].DisplayKey()
	})
	return res, nil
}

func mergeKey(ctx context.Context, key ParticipantKey, threads []Thread, opts MergeOptions) ([]*Conversation, []MergeWarning) {
	primary := newConversation(key, string(key), threads[0])
	convs := []*Conversation{primary}
	if len(threads) == 1 {
		return convs, nil
	}

	// Thread files carry no ordering between each other; resolving the
	// remainder earliest-first keeps chaining decisions deterministic.
	rest := append([]Thread(nil), threads[1:]...)
	sort.SliceStable(rest, func(i, j int) bool {
		return rest[i].First().Time.Before(rest[j].First().Time)
	})

	var warnings []MergeWarning
	for _, cand := range rest {
		placed := false
		for _, target := range convs {
			verdict, err := resolveCandidate(ctx, target, cand, opts)
			if err != nil {
				// Inconclusive oracle: fall back to "different conversation"
				// for this candidate, but say so rather than guessing same.
				warnings = append(warnings, MergeWarning{
					Key: string(key),
					Err: &AmbiguousMergeError{Key: string(key), Err: err},
				})
				break
			}
			if verdict {
				target.appendThread(cand)
				placed = true
				break
			}
		}
		if !placed {
			displayKey := fmt.Sprintf("%s, DUPLICATE #%d", key, len(convs))
			convs = append(convs, newConversation(key, displayKey, cand))
		}
	}
	return convs, warnings
}

// resolveCandidate decides whether cand chronologically continues target.
func resolveCandidate(ctx context.Context, target *Conversation, cand Thread, opts MergeOptions) (bool, error) {
	// Positive gap: the candidate starts before material already placed,
	// so it cannot be a continuation of this target.
	gap := target.Last().Time.DistanceMinutes(cand.First().Time)
	if gap > 0 {
		return false, nil
	}

	// A full page immediately after an already-overflowing conversation is
	// pagination, not coincidence.
	if gap >= opts.ChainGapMin && gap <= opts.ChainGapMax &&
		target.Len() > opts.PageSize && len(cand.Messages) == opts.PageSize {
		return true, nil
	}

	if opts.Oracle == nil {
		return false, fmt.Errorf("no oracle configured")
	}
	return opts.Oracle.SameConversation(ctx, tailOf(target, opts.PreviewMessages), headOf(cand, opts.PreviewMessages))
}

func tailOf(c *Conversation, n int) []Message {
	msgs := c.messages
	if len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}
	return append([]Message(nil), msgs...)
}

func headOf(t Thread, n int) []Message {
	msgs := t.Messages
	if len(msgs) > n {
		msgs = msgs[:n]
	}
	return append([]Message(nil), msgs...)
}
