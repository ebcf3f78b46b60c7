// Package window decides which prior conversation messages stay in a
// bounded LLM context window. Scoring, selection and validation are pure
// functions; Manager binds them to one validated set of limits.
package window

import (
	"go.uber.org/zap"
)

// Manager is the per-service entry point. It holds only its limits and is
// safe for concurrent use.
type Manager struct {
	limits Limits
	logger *zap.Logger
}

// NewManager validates limits and returns a Manager. A nil limits uses
// DefaultLimits; invalid limits fail construction.
func NewManager(limits *Limits, logger *zap.Logger) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := DefaultLimits()
	if limits != nil {
		l = *limits
	}
	if err := ValidateLimits(l); err != nil {
		return nil, err
	}
	return &Manager{limits: l, logger: logger}, nil
}

// Limits returns the configured limits.
func (m *Manager) Limits() Limits {
	return m.limits
}

// ScoreMessage scores one message.
func (m *Manager) ScoreMessage(in ScoreInput) (RelevanceScore, error) {
	return Score(in)
}

// SelectRetention runs selection under the manager's limits.
func (m *Manager) SelectRetention(tokens []MessageToken, scores []RelevanceScore) (*RetentionDecision, error) {
	d, err := Select(tokens, scores, m.limits)
	if err != nil {
		m.logger.Warn("retention selection failed", zap.Int("messages", len(tokens)), zap.Error(err))
		return nil, err
	}
	if d.Compressed() {
		m.logger.Info("context exceeds soft limit, compressed",
			zap.Int("messages", len(tokens)),
			zap.Int("retained", len(d.RetainedMessages)),
			zap.Int("tokens_retained", d.TotalTokensRetained),
			zap.Float64("compression_ratio", d.CompressionRatio))
	}
	return d, nil
}

// GetMetrics reports utilization under the manager's limits.
func (m *Manager) GetMetrics(currentTokens, messageCount int) Metrics {
	return GetMetrics(currentTokens, messageCount, m.limits)
}

// ValidateMessageCount checks count against the manager's limits.
func (m *Manager) ValidateMessageCount(count int) bool {
	return ValidateMessageCount(count, m.limits)
}

// ValidateTokenUsage checks tokenCount against the manager's limits.
func (m *Manager) ValidateTokenUsage(tokenCount int) TokenUsage {
	return ValidateTokenUsage(tokenCount, m.limits)
}

// TurnMessage is one message of a conversation turn with its raw signals.
type TurnMessage struct {
	MessageID           string     `json:"message_id"`
	TokenCount          int        `json:"token_count"`
	BusinessEntityCount int        `json:"business_entity_count"`
	Phase               Phase      `json:"conversation_phase"`
	Engagement          Engagement `json:"user_engagement_level"`
}

// FitResult is everything Fit computed for one turn.
type FitResult struct {
	Tokens   []MessageToken     `json:"tokens"`
	Scores   []RelevanceScore   `json:"scores"`
	Decision *RetentionDecision `json:"decision"`
	Metrics  Metrics            `json:"metrics"`
}

// Fit scores and selects a chronologically ordered turn in one call.
// The newest message is scored at position 0 so recency favors recent turns.
func (m *Manager) Fit(turn []TurnMessage) (*FitResult, error) {
	ids := make([]string, len(turn))
	counts := make([]int, len(turn))
	for i, msg := range turn {
		ids[i] = msg.MessageID
		counts[i] = msg.TokenCount
	}
	tokens, err := BuildTokens(ids, counts)
	if err != nil {
		return nil, err
	}

	n := len(turn)
	scores := make([]RelevanceScore, n)
	for i, msg := range turn {
		s, err := Score(ScoreInput{
			MessageID:           msg.MessageID,
			Position:            n - 1 - i,
			TotalMessages:       n,
			BusinessEntityCount: msg.BusinessEntityCount,
			Phase:               msg.Phase,
			Engagement:          msg.Engagement,
		})
		if err != nil {
			return nil, err
		}
		scores[i] = s
	}

	total := 0
	if n > 0 {
		total = tokens[n-1].CumulativeTokens
	}
	metrics := m.GetMetrics(total, n)
	m.logger.Debug("fitting conversation turn",
		zap.Int("messages", n),
		zap.Int("tokens", total),
		zap.Float64("utilization", metrics.UtilizationPercentage))

	d, err := m.SelectRetention(tokens, scores)
	if err != nil {
		return nil, err
	}
	return &FitResult{Tokens: tokens, Scores: scores, Decision: d, Metrics: metrics}, nil
}
