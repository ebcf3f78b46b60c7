package window

import "fmt"

// ValidateLimits reports the first invalid setting in l.
// Checks run in order: max tokens, soft vs max, soft positive, min retained,
// min vs max retained.
func ValidateLimits(l Limits) error {
	switch {
	case l.MaxTokens <= 0:
		return &ContextCompressionError{
			Category: CategoryTokenLimits,
			Message:  fmt.Sprintf("max tokens must be positive, got %d", l.MaxTokens),
		}
	case l.SoftLimitTokens >= l.MaxTokens:
		return &ContextCompressionError{
			Category: CategoryTokenLimits,
			Message:  fmt.Sprintf("soft limit %d must be below max tokens %d", l.SoftLimitTokens, l.MaxTokens),
		}
	case l.SoftLimitTokens <= 0:
		return &ContextCompressionError{
			Category: CategoryTokenLimits,
			Message:  fmt.Sprintf("soft limit must be positive, got %d", l.SoftLimitTokens),
		}
	case l.MinRetainedMessages <= 0:
		return &ContextCompressionError{
			Category: CategoryMessageLimits,
			Message:  fmt.Sprintf("min retained messages must be positive, got %d", l.MinRetainedMessages),
		}
	case l.MinRetainedMessages > l.MaxRetainedMessages:
		return &ContextCompressionError{
			Category: CategoryMessageLimits,
			Message: fmt.Sprintf("min retained messages %d exceeds max %d",
				l.MinRetainedMessages, l.MaxRetainedMessages),
		}
	}
	return nil
}

// GetMetrics reports utilization for an externally tracked token and message count.
// RemainingTokens goes negative once the hard limit is passed.
func GetMetrics(currentTokens, messageCount int, l Limits) Metrics {
	var utilization float64
	if l.MaxTokens != 0 {
		utilization = float64(currentTokens) / float64(l.MaxTokens) * 100
	}
	return Metrics{
		UtilizationPercentage:  utilization,
		RemainingTokens:        l.MaxTokens - currentTokens,
		CompressionRecommended: currentTokens > l.SoftLimitTokens,
		MessagesWithinLimits:   messageCount <= l.MaxRetainedMessages,
	}
}

// ValidateMessageCount reports whether count lies within the retained-message bounds.
func ValidateMessageCount(count int, l Limits) bool {
	return count >= l.MinRetainedMessages && count <= l.MaxRetainedMessages
}

// ValidateTokenUsage compares tokenCount against both token limits.
func ValidateTokenUsage(tokenCount int, l Limits) TokenUsage {
	return TokenUsage{
		WithinHardLimit:         tokenCount <= l.MaxTokens,
		WithinSoftLimit:         tokenCount <= l.SoftLimitTokens,
		ExceedsRecommendedLimit: tokenCount > l.SoftLimitTokens,
	}
}
