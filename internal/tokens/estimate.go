// Package tokens estimates token counts for message content when no
// tokenizer-provided count is available.
package tokens

// Estimate approximates the token count of s.
// Rough heuristic: ~4 bytes per token for mixed CJK/English text.
func Estimate(s string) int {
	n := len(s)
	if n == 0 {
		return 0
	}
	return (n + 3) / 4
}

// EstimateAll returns per-item estimates in input order.
func EstimateAll(texts []string) []int {
	out := make([]int, len(texts))
	for i, t := range texts {
		out[i] = Estimate(t)
	}
	return out
}
