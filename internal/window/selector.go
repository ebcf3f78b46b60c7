package window

import (
	"fmt"
	"sort"
)

// Select chooses which messages stay in the window.
//
// The last MinRetainedMessages messages are always kept. The rest are
// admitted greedily by descending overall score while the running total
// stays within SoftLimitTokens and the count within MaxRetainedMessages.
// A candidate that does not fit is skipped and smaller, lower-scored
// candidates are still considered. Output preserves conversation order.
// Duplicate message ids are rejected.
func Select(tokens []MessageToken, scores []RelevanceScore, limits Limits) (*RetentionDecision, error) {
	if len(tokens) == 0 {
		return &RetentionDecision{
			RetainedMessages: []string{},
			RemovedMessages:  []string{},
			CompressionRatio: 1.0,
		}, nil
	}

	if err := checkUniqueIDs(tokens); err != nil {
		return nil, err
	}

	total := tokens[len(tokens)-1].CumulativeTokens
	if total <= limits.SoftLimitTokens {
		retained := make([]string, len(tokens))
		for i, t := range tokens {
			retained[i] = t.MessageID
		}
		return &RetentionDecision{
			RetainedMessages:    retained,
			RemovedMessages:     []string{},
			TotalTokensRetained: total,
			CompressionRatio:    1.0,
		}, nil
	}

	byID := make(map[string]float64, len(scores))
	for _, s := range scores {
		if _, dup := byID[s.MessageID]; !dup {
			byID[s.MessageID] = s.OverallScore
		}
	}
	relevance := make([]float64, len(tokens))
	for i, t := range tokens {
		score, ok := byID[t.MessageID]
		if !ok {
			return nil, &RelevanceCalculationError{
				MessageID: t.MessageID,
				Reason:    fmt.Sprintf("message %d of %d has no score", i+1, len(tokens)),
				Err:       ErrMissingScore,
			}
		}
		relevance[i] = score
	}

	reserved := limits.MinRetainedMessages
	if reserved > len(tokens) {
		reserved = len(tokens)
	}
	if reserved < 0 {
		reserved = 0
	}
	tailStart := len(tokens) - reserved

	selected := make([]bool, len(tokens))
	current, count := 0, 0
	for i := tailStart; i < len(tokens); i++ {
		selected[i] = true
		current += tokens[i].TokenCount
		count++
	}
	if current >= limits.MaxTokens {
		return nil, &ContextWindowExceededError{
			CurrentTokens:    current,
			MaxTokens:        limits.MaxTokens,
			ReservedMessages: reserved,
		}
	}

	candidates := make([]int, tailStart)
	for i := range candidates {
		candidates[i] = i
	}
	sort.SliceStable(candidates, func(a, b int) bool {
		return relevance[candidates[a]] > relevance[candidates[b]]
	})

	for _, i := range candidates {
		if count >= limits.MaxRetainedMessages {
			continue
		}
		cost := tokens[i].TokenCount
		if current+cost > limits.SoftLimitTokens {
			continue
		}
		selected[i] = true
		current += cost
		count++
	}

	// Walking indices in order restores conversation order.
	d := &RetentionDecision{
		RetainedMessages:    make([]string, 0, count),
		RemovedMessages:     make([]string, 0, len(tokens)-count),
		TotalTokensRetained: current,
	}
	for i, t := range tokens {
		if selected[i] {
			d.RetainedMessages = append(d.RetainedMessages, t.MessageID)
		} else {
			d.RemovedMessages = append(d.RemovedMessages, t.MessageID)
		}
	}
	d.CompressionRatio = 1.0
	if total > 0 {
		d.CompressionRatio = float64(current) / float64(total)
	}
	return d, nil
}

func checkUniqueIDs(tokens []MessageToken) error {
	seen := make(map[string]struct{}, len(tokens))
	for i, t := range tokens {
		if _, dup := seen[t.MessageID]; dup {
			return &RelevanceCalculationError{
				MessageID: t.MessageID,
				Reason:    fmt.Sprintf("duplicate message id at position %d", i+1),
			}
		}
		seen[t.MessageID] = struct{}{}
	}
	return nil
}

// BuildTokens derives the cumulative token sequence from per-message counts
// given in conversation order. Message ids must be unique.
func BuildTokens(ids []string, counts []int) ([]MessageToken, error) {
	if len(ids) != len(counts) {
		return nil, fmt.Errorf("build tokens: %d ids but %d counts", len(ids), len(counts))
	}
	out := make([]MessageToken, len(ids))
	running := 0
	for i, id := range ids {
		if counts[i] < 0 {
			return nil, fmt.Errorf("build tokens: message %q has negative token count %d", id, counts[i])
		}
		running += counts[i]
		out[i] = MessageToken{MessageID: id, TokenCount: counts[i], CumulativeTokens: running}
	}
	if err := checkUniqueIDs(out); err != nil {
		return nil, err
	}
	return out, nil
}
