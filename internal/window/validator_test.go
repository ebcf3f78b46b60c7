package window

import (
	"errors"
	"testing"
)

func TestValidateLimits(t *testing.T) {
	tests := []struct {
		name     string
		limits   Limits
		category string
	}{
		{"defaults", DefaultLimits(), ""},
		{"non-positive max", Limits{MaxTokens: 0, SoftLimitTokens: -1, MinRetainedMessages: 1, MaxRetainedMessages: 5}, CategoryTokenLimits},
		{"soft equals max", Limits{MaxTokens: 1000, SoftLimitTokens: 1000, MinRetainedMessages: 1, MaxRetainedMessages: 5}, CategoryTokenLimits},
		{"soft above max", Limits{MaxTokens: 1000, SoftLimitTokens: 2000, MinRetainedMessages: 1, MaxRetainedMessages: 5}, CategoryTokenLimits},
		{"zero soft", Limits{MaxTokens: 1000, SoftLimitTokens: 0, MinRetainedMessages: 1, MaxRetainedMessages: 5}, CategoryTokenLimits},
		{"negative soft", Limits{MaxTokens: 1000, SoftLimitTokens: -1, MinRetainedMessages: 1, MaxRetainedMessages: 5}, CategoryTokenLimits},
		{"soft checked before message limits", Limits{MaxTokens: 1000, SoftLimitTokens: -1, MinRetainedMessages: 0, MaxRetainedMessages: 5}, CategoryTokenLimits},
		{"non-positive min", Limits{MaxTokens: 1000, SoftLimitTokens: 900, MinRetainedMessages: 0, MaxRetainedMessages: 5}, CategoryMessageLimits},
		{"min above max", Limits{MaxTokens: 1000, SoftLimitTokens: 900, MinRetainedMessages: 6, MaxRetainedMessages: 5}, CategoryMessageLimits},
		{"token check reported first", Limits{MaxTokens: -5, SoftLimitTokens: 0, MinRetainedMessages: 0, MaxRetainedMessages: -1}, CategoryTokenLimits},
		{"min equals max", Limits{MaxTokens: 1000, SoftLimitTokens: 900, MinRetainedMessages: 5, MaxRetainedMessages: 5}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateLimits(tt.limits)
			if tt.category == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var cerr *ContextCompressionError
			if !errors.As(err, &cerr) {
				t.Fatalf("got %v, want *ContextCompressionError", err)
			}
			if cerr.Category != tt.category {
				t.Errorf("got category %q, want %q", cerr.Category, tt.category)
			}
		})
	}
}

func TestGetMetrics(t *testing.T) {
	l := DefaultLimits()

	m := GetMetrics(8000, 18, l)
	if m.UtilizationPercentage != 50 {
		t.Errorf("got utilization %v, want 50", m.UtilizationPercentage)
	}
	if m.RemainingTokens != 8000 {
		t.Errorf("got remaining %d, want 8000", m.RemainingTokens)
	}
	if m.CompressionRecommended {
		t.Error("compression should not be recommended at 8000 tokens")
	}
	if !m.MessagesWithinLimits {
		t.Error("18 messages should be within limits")
	}

	m = GetMetrics(17000, 19, l)
	if m.RemainingTokens != -1000 {
		t.Errorf("got remaining %d, want -1000", m.RemainingTokens)
	}
	if !m.CompressionRecommended {
		t.Error("compression should be recommended at 17000 tokens")
	}
	if m.MessagesWithinLimits {
		t.Error("19 messages should exceed limits")
	}

	m = GetMetrics(14000, 0, l)
	if m.CompressionRecommended {
		t.Error("compression should not be recommended exactly at the soft limit")
	}
}

func TestValidateMessageCount(t *testing.T) {
	l := DefaultLimits()
	tests := map[int]bool{1: false, 2: true, 10: true, 18: true, 19: false}
	for count, want := range tests {
		if got := ValidateMessageCount(count, l); got != want {
			t.Errorf("ValidateMessageCount(%d) = %v, want %v", count, got, want)
		}
	}
}

func TestValidateTokenUsage(t *testing.T) {
	l := DefaultLimits()
	tests := []struct {
		tokens int
		want   TokenUsage
	}{
		{14000, TokenUsage{WithinHardLimit: true, WithinSoftLimit: true, ExceedsRecommendedLimit: false}},
		{15000, TokenUsage{WithinHardLimit: true, WithinSoftLimit: false, ExceedsRecommendedLimit: true}},
		{16000, TokenUsage{WithinHardLimit: true, WithinSoftLimit: false, ExceedsRecommendedLimit: true}},
		{16001, TokenUsage{WithinHardLimit: false, WithinSoftLimit: false, ExceedsRecommendedLimit: true}},
	}
	for _, tt := range tests {
		if got := ValidateTokenUsage(tt.tokens, l); got != tt.want {
			t.Errorf("ValidateTokenUsage(%d) = %+v, want %+v", tt.tokens, got, tt.want)
		}
	}
}
