// Package telemetry publishes retention decisions to a Redis stream for
// dashboards and offline analysis.
package telemetry

import (
	"time"

	"github.com/google/uuid"

	"github.com/nidhogg/nuka-context/internal/window"
)

// RetentionEvent summarizes one retention decision.
type RetentionEvent struct {
	ID               string    `json:"id"`
	ConversationID   string    `json:"conversation_id"`
	DecisionID       string    `json:"decision_id,omitempty"`
	MessagesBefore   int       `json:"messages_before"`
	MessagesRetained int       `json:"messages_retained"`
	RemovedMessages  []string  `json:"removed_messages"`
	TokensRetained   int       `json:"tokens_retained"`
	CompressionRatio float64   `json:"compression_ratio"`
	Timestamp        time.Time `json:"timestamp"`
}

// NewRetentionEvent builds an event from a decision.
func NewRetentionEvent(conversationID string, d *window.RetentionDecision) *RetentionEvent {
	removed := d.RemovedMessages
	if removed == nil {
		removed = []string{}
	}
	return &RetentionEvent{
		ID:               uuid.New().String(),
		ConversationID:   conversationID,
		MessagesBefore:   len(d.RetainedMessages) + len(d.RemovedMessages),
		MessagesRetained: len(d.RetainedMessages),
		RemovedMessages:  removed,
		TokensRetained:   d.TotalTokensRetained,
		CompressionRatio: d.CompressionRatio,
		Timestamp:        time.Now().UTC(),
	}
}
