package window

import (
	"errors"
	"fmt"
)

// ErrMissingScore marks a selection input where a message has no relevance score.
var ErrMissingScore = errors.New("missing relevance score")

// RelevanceCalculationError reports invalid scoring input or a score lookup miss.
// It signals a caller bug and is not worth retrying.
type RelevanceCalculationError struct {
	MessageID string
	Input     ScoreInput
	Reason    string
	Err       error
}

func (e *RelevanceCalculationError) Error() string {
	msg := fmt.Sprintf("relevance calculation for message %q: %s", e.MessageID, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RelevanceCalculationError) Unwrap() error {
	return e.Err
}

// ContextWindowExceededError reports that the reserved recent tail alone
// does not fit under the hard token ceiling.
type ContextWindowExceededError struct {
	CurrentTokens    int
	MaxTokens        int
	ReservedMessages int
}

func (e *ContextWindowExceededError) Error() string {
	return fmt.Sprintf("context window exceeded: %d reserved messages use %d tokens, max %d",
		e.ReservedMessages, e.CurrentTokens, e.MaxTokens)
}

// Compression error categories.
const (
	CategoryTokenLimits   = "token_limits"
	CategoryMessageLimits = "message_limits"
)

// ContextCompressionError reports an invalid Limits configuration.
type ContextCompressionError struct {
	Category string
	Message  string
}

func (e *ContextCompressionError) Error() string {
	return fmt.Sprintf("invalid window limits (%s): %s", e.Category, e.Message)
}
