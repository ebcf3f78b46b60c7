package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/nidhogg/nuka-context/internal/entity"
	"github.com/nidhogg/nuka-context/internal/store"
	"github.com/nidhogg/nuka-context/internal/telemetry"
	"github.com/nidhogg/nuka-context/internal/tokens"
	"github.com/nidhogg/nuka-context/internal/window"
)

type appendRequest struct {
	ID          string            `json:"id"`
	Role        string            `json:"role"`
	Content     string            `json:"content"`
	TokenCount  *int              `json:"token_count"`
	EntityCount *int              `json:"entity_count"`
	Phase       window.Phase      `json:"conversation_phase"`
	Engagement  window.Engagement `json:"user_engagement_level"`
	Entities    []entity.Ref      `json:"entities"`
}

func (h *Handler) appendMessage(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "conversation store not configured"})
		return
	}
	convID := chi.URLParam(r, "id")

	var req appendRequest
	if !decode(w, r, &req) {
		return
	}

	msg := &store.Message{
		ID:         req.ID,
		Role:       req.Role,
		Content:    req.Content,
		Phase:      req.Phase,
		Engagement: req.Engagement,
	}
	if req.TokenCount != nil {
		msg.TokenCount = *req.TokenCount
	} else {
		msg.TokenCount = tokens.Estimate(req.Content)
	}
	if msg.TokenCount < 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "token_count must not be negative"})
		return
	}
	if req.EntityCount != nil {
		msg.EntityCount = *req.EntityCount
	} else {
		msg.EntityCount = distinctEntities(req.Entities)
	}
	if msg.EntityCount < 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "entity_count must not be negative"})
		return
	}

	if err := h.store.AppendMessage(r.Context(), convID, msg); err != nil {
		h.writeError(w, err)
		return
	}

	if h.graph != nil {
		for _, ref := range req.Entities {
			if err := h.graph.LinkEntity(r.Context(), msg.ID, ref); err != nil {
				h.logger.Warn("entity link failed",
					zap.String("message", msg.ID),
					zap.String("entity", ref.Key()),
					zap.Error(err))
			}
		}
	}

	writeJSON(w, http.StatusCreated, msg)
}

func distinctEntities(refs []entity.Ref) int {
	seen := make(map[string]struct{}, len(refs))
	for _, ref := range refs {
		seen[ref.Key()] = struct{}{}
	}
	return len(seen)
}

type fitResponse struct {
	ConversationID string            `json:"conversation_id"`
	DecisionID     string            `json:"decision_id,omitempty"`
	Result         *window.FitResult `json:"result"`
}

// fitConversation runs the engine over a stored conversation. Audit and
// telemetry failures are logged; the decision is still returned.
func (h *Handler) fitConversation(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "conversation store not configured"})
		return
	}
	ctx := r.Context()
	convID := chi.URLParam(r, "id")

	turn, err := h.store.ListTurn(ctx, convID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	if h.graph != nil && len(turn) > 0 {
		ids := make([]string, len(turn))
		for i, m := range turn {
			ids[i] = m.MessageID
		}
		counts, err := h.graph.CountByMessage(ctx, ids)
		if err != nil {
			h.logger.Warn("entity counts unavailable, using stored counts",
				zap.String("conversation", convID), zap.Error(err))
		} else {
			for i := range turn {
				if n := counts[turn[i].MessageID]; n > turn[i].BusinessEntityCount {
					turn[i].BusinessEntityCount = n
				}
			}
		}
	}

	res, err := h.manager.Fit(turn)
	if err != nil {
		h.logger.Warn("fit failed", zap.String("conversation", convID), zap.Error(err))
		h.writeError(w, err)
		return
	}

	resp := fitResponse{ConversationID: convID, Result: res}
	if id, err := h.store.RecordDecision(ctx, convID, res.Decision); err != nil {
		h.logger.Warn("record decision failed", zap.String("conversation", convID), zap.Error(err))
	} else {
		resp.DecisionID = id
	}

	if h.publisher != nil {
		ev := telemetry.NewRetentionEvent(convID, res.Decision)
		ev.DecisionID = resp.DecisionID
		if err := h.publisher.Publish(ctx, ev); err != nil {
			h.logger.Warn("publish retention event failed", zap.String("conversation", convID), zap.Error(err))
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) latestDecision(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "conversation store not configured"})
		return
	}
	d, err := h.store.LatestDecision(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}
