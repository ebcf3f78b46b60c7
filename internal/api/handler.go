package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/nidhogg/nuka-context/internal/entity"
	"github.com/nidhogg/nuka-context/internal/store"
	"github.com/nidhogg/nuka-context/internal/telemetry"
	"github.com/nidhogg/nuka-context/internal/window"
)

// ConversationStore is the persistence the conversation routes need.
type ConversationStore interface {
	AppendMessage(ctx context.Context, conversationID string, msg *store.Message) error
	ListTurn(ctx context.Context, conversationID string) ([]window.TurnMessage, error)
	RecordDecision(ctx context.Context, conversationID string, d *window.RetentionDecision) (string, error)
	LatestDecision(ctx context.Context, conversationID string) (*window.RetentionDecision, error)
}

// EventPublisher receives retention events.
type EventPublisher interface {
	Publish(ctx context.Context, ev *telemetry.RetentionEvent) error
}

// EntityGraph supplies business-entity counts per message.
type EntityGraph interface {
	LinkEntity(ctx context.Context, messageID string, ref entity.Ref) error
	CountByMessage(ctx context.Context, messageIDs []string) (map[string]int, error)
}

// Handler holds dependencies for HTTP handlers. Store, publisher and
// graph are optional.
type Handler struct {
	manager   *window.Manager
	store     ConversationStore
	publisher EventPublisher
	graph     EntityGraph
	logger    *zap.Logger
}

// NewHandler creates a new API handler.
func NewHandler(manager *window.Manager, logger *zap.Logger) *Handler {
	return &Handler{manager: manager, logger: logger}
}

// SetStore enables the conversation routes.
func (h *Handler) SetStore(s ConversationStore) { h.store = s }

// SetPublisher enables retention telemetry.
func (h *Handler) SetPublisher(p EventPublisher) { h.publisher = p }

// SetEntityGraph enables entity linking and graph-backed entity counts.
func (h *Handler) SetEntityGraph(g EntityGraph) { h.graph = g }

// Router builds the chi router with all routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.healthCheck)
		r.Get("/limits", h.getLimits)

		// Stateless engine routes
		r.Post("/score", h.scoreMessage)
		r.Post("/select", h.selectRetention)
		r.Post("/fit", h.fitTurn)
		r.Post("/metrics", h.getMetrics)
		r.Post("/usage", h.tokenUsage)
		r.Post("/message-count", h.messageCount)

		// Stored conversations
		r.Post("/conversations/{id}/messages", h.appendMessage)
		r.Post("/conversations/{id}/fit", h.fitConversation)
		r.Get("/conversations/{id}/decision", h.latestDecision)
	})

	return r
}

func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"store":     h.store != nil,
		"telemetry": h.publisher != nil,
		"graph":     h.graph != nil,
	})
}

func (h *Handler) getLimits(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.manager.Limits())
}

func (h *Handler) scoreMessage(w http.ResponseWriter, r *http.Request) {
	var in window.ScoreInput
	if !decode(w, r, &in) {
		return
	}
	score, err := h.manager.ScoreMessage(in)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, score)
}

type selectRequest struct {
	Messages []window.MessageToken   `json:"messages"`
	Scores   []window.RelevanceScore `json:"scores"`
}

func (h *Handler) selectRetention(w http.ResponseWriter, r *http.Request) {
	var req selectRequest
	if !decode(w, r, &req) {
		return
	}
	d, err := h.manager.SelectRetention(req.Messages, req.Scores)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

type fitRequest struct {
	Messages []window.TurnMessage `json:"messages"`
}

func (h *Handler) fitTurn(w http.ResponseWriter, r *http.Request) {
	var req fitRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.manager.Fit(req.Messages)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type metricsRequest struct {
	CurrentTokens int `json:"current_tokens"`
	MessageCount  int `json:"message_count"`
}

func (h *Handler) getMetrics(w http.ResponseWriter, r *http.Request) {
	var req metricsRequest
	if !decode(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, h.manager.GetMetrics(req.CurrentTokens, req.MessageCount))
}

type usageRequest struct {
	TokenCount int `json:"token_count"`
}

func (h *Handler) tokenUsage(w http.ResponseWriter, r *http.Request) {
	var req usageRequest
	if !decode(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, h.manager.ValidateTokenUsage(req.TokenCount))
}

type messageCountRequest struct {
	Count int `json:"count"`
}

func (h *Handler) messageCount(w http.ResponseWriter, r *http.Request) {
	var req messageCountRequest
	if !decode(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"valid": h.manager.ValidateMessageCount(req.Count)})
}

// writeError maps engine and store errors onto HTTP status codes.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var (
		relErr  *window.RelevanceCalculationError
		winErr  *window.ContextWindowExceededError
		compErr *window.ContextCompressionError
	)
	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &relErr), errors.As(err, &compErr):
		status = http.StatusBadRequest
	case errors.As(err, &winErr):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, store.ErrConversationNotFound), errors.Is(err, store.ErrDecisionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, store.ErrMessageExists):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", zap.Error(err))
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return false
	}
	return true
}

// writeJSON encodes v before writing the header so an unencodable value
// yields a 500 rather than an empty success.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		data, _ = json.Marshal(map[string]string{"error": err.Error()})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(append(data, '\n'))
}
