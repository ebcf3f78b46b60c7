package window

import "time"

// RetentionPriority classifies how strongly a message should be kept.
type RetentionPriority string

const (
	PriorityHigh   RetentionPriority = "high"
	PriorityMedium RetentionPriority = "medium"
	PriorityLow    RetentionPriority = "low"
)

// Phase is the sales-conversation stage a message belongs to.
// Labels outside the known set are accepted and scored as unmapped.
type Phase string

const (
	PhaseDiscovery         Phase = "discovery"
	PhaseQualification     Phase = "qualification"
	PhaseDemo              Phase = "demo"
	PhaseObjectionHandling Phase = "objection_handling"
	PhaseClosing           Phase = "closing"
	PhaseUnknown           Phase = "unknown"
)

// Engagement is the observed user engagement level for a message.
type Engagement string

const (
	EngagementHigh   Engagement = "high"
	EngagementMedium Engagement = "medium"
	EngagementLow    Engagement = "low"
)

// MessageToken is the token accounting record for one message.
// A sequence of them is ordered chronologically and CumulativeTokens never decreases.
type MessageToken struct {
	MessageID        string `json:"message_id"`
	TokenCount       int    `json:"token_count"`
	CumulativeTokens int    `json:"cumulative_tokens"`
}

// ScoreComponents holds the four independent factors behind an overall score.
type ScoreComponents struct {
	RecencyScore              float64 `json:"recency_score"`
	BusinessEntityRelevance   float64 `json:"business_entity_relevance"`
	ConversationFlowRelevance float64 `json:"conversation_flow_relevance"`
	UserEngagementScore       float64 `json:"user_engagement_score"`
}

// RelevanceScore is the result of one scoring pass for a single message.
type RelevanceScore struct {
	MessageID         string            `json:"message_id"`
	OverallScore      float64           `json:"overall_score"`
	Components        ScoreComponents   `json:"components"`
	RetentionPriority RetentionPriority `json:"retention_priority"`
	CalculatedAt      time.Time         `json:"calculated_at"`
}

// Limits bounds the context window. Validate with ValidateLimits before use.
type Limits struct {
	MaxTokens           int `json:"max_tokens"`
	SoftLimitTokens     int `json:"soft_limit_tokens"`
	MinRetainedMessages int `json:"min_retained_messages"`
	MaxRetainedMessages int `json:"max_retained_messages"`
}

// DefaultLimits returns the limits used when none are configured.
func DefaultLimits() Limits {
	return Limits{
		MaxTokens:           16000,
		SoftLimitTokens:     14000,
		MinRetainedMessages: 2,
		MaxRetainedMessages: 18,
	}
}

// RetentionDecision is the outcome of a selection pass.
type RetentionDecision struct {
	RetainedMessages    []string `json:"retained_messages"`
	RemovedMessages     []string `json:"removed_messages"`
	TotalTokensRetained int      `json:"total_tokens_retained"`
	CompressionRatio    float64  `json:"compression_ratio"`
}

// Compressed reports whether any message was dropped.
func (d *RetentionDecision) Compressed() bool {
	return len(d.RemovedMessages) > 0
}

// Metrics is a point-in-time view of window utilization.
type Metrics struct {
	UtilizationPercentage  float64 `json:"utilization_percentage"`
	RemainingTokens        int     `json:"remaining_tokens"`
	CompressionRecommended bool    `json:"compression_recommended"`
	MessagesWithinLimits   bool    `json:"messages_within_limits"`
}

// TokenUsage reports a token count against both limits.
type TokenUsage struct {
	WithinHardLimit         bool `json:"within_hard_limit"`
	WithinSoftLimit         bool `json:"within_soft_limit"`
	ExceedsRecommendedLimit bool `json:"exceeds_recommended_limit"`
}
