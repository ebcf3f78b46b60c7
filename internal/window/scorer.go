package window

import (
	"fmt"
	"math"
	"time"
)

// Component weights. They sum to 1.0 and the composite is not renormalized.
const (
	weightRecency    = 0.3
	weightEntity     = 0.35
	weightFlow       = 0.25
	weightEngagement = 0.1
)

// Priority thresholds on the overall score.
const (
	highPriorityThreshold   = 0.7
	mediumPriorityThreshold = 0.4
)

const (
	minRecencyScore   = 0.1
	entitySaturation  = 3
	unmappedFlowScore = 0.5
)

var flowRelevance = map[Phase]float64{
	PhaseDiscovery:         0.8,
	PhaseQualification:     1.0,
	PhaseDemo:              0.9,
	PhaseObjectionHandling: 0.95,
	PhaseClosing:           1.0,
	PhaseUnknown:           0.3,
}

var engagementScores = map[Engagement]float64{
	EngagementHigh:   1.0,
	EngagementMedium: 0.6,
	EngagementLow:    0.3,
}

// ScoreInput carries the signals for scoring one message.
//
// Position is a zero-based index where position 0 receives the highest
// recency score. Callers holding a chronological history pass
// TotalMessages-1-i for the message at chronological index i.
type ScoreInput struct {
	MessageID           string     `json:"message_id"`
	Position            int        `json:"message_position"`
	TotalMessages       int        `json:"total_messages"`
	BusinessEntityCount int        `json:"business_entity_count"`
	Phase               Phase      `json:"conversation_phase"`
	Engagement          Engagement `json:"user_engagement_level"`
}

// Score computes the weighted relevance of a single message.
func Score(in ScoreInput) (RelevanceScore, error) {
	if err := checkScoreInput(in); err != nil {
		return RelevanceScore{}, err
	}

	engagement, ok := engagementScores[in.Engagement]
	if !ok {
		return RelevanceScore{}, scoreInputError(in, fmt.Sprintf("unknown engagement level %q", in.Engagement))
	}

	c := ScoreComponents{
		RecencyScore:              recencyScore(in.Position, in.TotalMessages),
		BusinessEntityRelevance:   entityRelevance(in.BusinessEntityCount),
		ConversationFlowRelevance: phaseRelevance(in.Phase),
		UserEngagementScore:       engagement,
	}
	overall := c.RecencyScore*weightRecency +
		c.BusinessEntityRelevance*weightEntity +
		c.ConversationFlowRelevance*weightFlow +
		c.UserEngagementScore*weightEngagement

	if math.IsNaN(overall) || overall < 0 || overall > 1+1e-9 {
		return RelevanceScore{}, scoreInputError(in, fmt.Sprintf("overall score %v out of range", overall))
	}
	overall = math.Min(overall, 1)

	return RelevanceScore{
		MessageID:         in.MessageID,
		OverallScore:      overall,
		Components:        c,
		RetentionPriority: classify(overall),
		CalculatedAt:      time.Now(),
	}, nil
}

func checkScoreInput(in ScoreInput) error {
	switch {
	case in.TotalMessages < 1:
		return scoreInputError(in, fmt.Sprintf("total messages %d < 1", in.TotalMessages))
	case in.Position < 0 || in.Position >= in.TotalMessages:
		return scoreInputError(in, fmt.Sprintf("position %d outside [0, %d)", in.Position, in.TotalMessages))
	case in.BusinessEntityCount < 0:
		return scoreInputError(in, fmt.Sprintf("negative business entity count %d", in.BusinessEntityCount))
	}
	return nil
}

func scoreInputError(in ScoreInput, reason string) *RelevanceCalculationError {
	return &RelevanceCalculationError{MessageID: in.MessageID, Input: in, Reason: reason}
}

// recencyScore decays linearly from 1.0 at position 0 to the 0.1 floor at the last position.
func recencyScore(position, total int) float64 {
	if total <= 1 {
		return 1.0
	}
	relative := float64(position) / float64(total-1)
	return math.Max(minRecencyScore, 1.0-relative*0.9)
}

// entityRelevance saturates at three entities.
func entityRelevance(count int) float64 {
	switch {
	case count <= 0:
		return 0.1
	case count >= entitySaturation:
		return 1.0
	}
	return 0.3 + (float64(count)/entitySaturation)*0.7
}

func phaseRelevance(p Phase) float64 {
	if v, ok := flowRelevance[p]; ok {
		return v
	}
	return unmappedFlowScore
}

func classify(overall float64) RetentionPriority {
	switch {
	case overall >= highPriorityThreshold:
		return PriorityHigh
	case overall >= mediumPriorityThreshold:
		return PriorityMedium
	}
	return PriorityLow
}
