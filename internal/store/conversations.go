package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/nidhogg/nuka-context/internal/window"
)

const uniqueViolation = "23505"

// Message is one stored conversation message with its token accounting
// and the signals the relevance scorer needs.
type Message struct {
	ID             string            `json:"id"`
	ConversationID string            `json:"conversation_id"`
	Seq            int               `json:"seq"`
	Role           string            `json:"role"`
	Content        string            `json:"content"`
	TokenCount     int               `json:"token_count"`
	EntityCount    int               `json:"entity_count"`
	Phase          window.Phase      `json:"phase"`
	Engagement     window.Engagement `json:"engagement"`
	CreatedAt      time.Time         `json:"created_at"`
}

// AppendMessage stores msg at the end of the conversation, creating the
// conversation on first use. ID is generated when empty; Seq and CreatedAt
// are filled from the database.
func (s *Store) AppendMessage(ctx context.Context, conversationID string, msg *Message) error {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.Role == "" {
		msg.Role = "user"
	}
	if msg.Phase == "" {
		msg.Phase = window.PhaseUnknown
	}
	if msg.Engagement == "" {
		msg.Engagement = window.EngagementMedium
	}
	msg.ConversationID = conversationID

	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO conversations (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`,
			conversationID); err != nil {
			return err
		}
		// Serialize appends per conversation so seq stays gap-free.
		if _, err := tx.Exec(ctx,
			`SELECT id FROM conversations WHERE id = $1 FOR UPDATE`, conversationID); err != nil {
			return err
		}
		return tx.QueryRow(ctx, `
			INSERT INTO messages (id, conversation_id, seq, role, content,
			                      token_count, entity_count, phase, engagement)
			SELECT $1::text, $2::text, COALESCE(MAX(seq), 0) + 1, $3::text, $4::text,
			       $5::int, $6::int, $7::text, $8::text
			FROM messages WHERE conversation_id = $2::text
			RETURNING seq, created_at`,
			msg.ID, conversationID, msg.Role, msg.Content,
			msg.TokenCount, msg.EntityCount, string(msg.Phase), string(msg.Engagement),
		).Scan(&msg.Seq, &msg.CreatedAt)
	})
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == "messages_pkey" {
		return fmt.Errorf("append message %s: %w", msg.ID, ErrMessageExists)
	}
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}

	s.logger.Debug("message appended",
		zap.String("conversation", conversationID),
		zap.Int("seq", msg.Seq),
		zap.Int("tokens", msg.TokenCount))
	return nil
}

// ListMessages returns the conversation's messages in chronological order.
func (s *Store) ListMessages(ctx context.Context, conversationID string) ([]Message, error) {
	var exists bool
	if err := s.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM conversations WHERE id = $1)`, conversationID,
	).Scan(&exists); err != nil {
		return nil, fmt.Errorf("lookup conversation: %w", err)
	}
	if !exists {
		return nil, ErrConversationNotFound
	}

	rows, err := s.db.Query(ctx, `
		SELECT id, seq, role, content, token_count, entity_count, phase, engagement, created_at
		FROM messages
		WHERE conversation_id = $1
		ORDER BY seq ASC`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		msg := Message{ConversationID: conversationID}
		var phase, engagement string
		if err := rows.Scan(&msg.ID, &msg.Seq, &msg.Role, &msg.Content,
			&msg.TokenCount, &msg.EntityCount, &phase, &engagement, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.Phase = window.Phase(phase)
		msg.Engagement = window.Engagement(engagement)
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return msgs, nil
}

// ListTurn returns the conversation as scorer input, oldest first.
func (s *Store) ListTurn(ctx context.Context, conversationID string) ([]window.TurnMessage, error) {
	msgs, err := s.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	return TurnFromMessages(msgs), nil
}

// TurnFromMessages converts stored messages into scorer input.
func TurnFromMessages(msgs []Message) []window.TurnMessage {
	turn := make([]window.TurnMessage, len(msgs))
	for i, m := range msgs {
		turn[i] = window.TurnMessage{
			MessageID:           m.ID,
			TokenCount:          m.TokenCount,
			BusinessEntityCount: m.EntityCount,
			Phase:               m.Phase,
			Engagement:          m.Engagement,
		}
	}
	return turn
}

// RecordDecision stores an audit row for a retention decision and returns its id.
func (s *Store) RecordDecision(ctx context.Context, conversationID string, d *window.RetentionDecision) (string, error) {
	retained, err := json.Marshal(d.RetainedMessages)
	if err != nil {
		return "", fmt.Errorf("marshal retained: %w", err)
	}
	removed, err := json.Marshal(d.RemovedMessages)
	if err != nil {
		return "", fmt.Errorf("marshal removed: %w", err)
	}

	id := uuid.New().String()
	_, err = s.db.Exec(ctx, `
		INSERT INTO retention_decisions
			(id, conversation_id, retained, removed, tokens_retained, compression_ratio)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		id, conversationID, retained, removed, d.TotalTokensRetained, d.CompressionRatio,
	)
	if err != nil {
		return "", fmt.Errorf("record decision: %w", err)
	}
	return id, nil
}

// LatestDecision returns the most recently recorded decision for a conversation,
// ordered by insertion sequence.
func (s *Store) LatestDecision(ctx context.Context, conversationID string) (*window.RetentionDecision, error) {
	var retained, removed []byte
	d := &window.RetentionDecision{}
	err := s.db.QueryRow(ctx, `
		SELECT retained, removed, tokens_retained, compression_ratio
		FROM retention_decisions
		WHERE conversation_id = $1
		ORDER BY seq DESC
		LIMIT 1`, conversationID,
	).Scan(&retained, &removed, &d.TotalTokensRetained, &d.CompressionRatio)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrDecisionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("latest decision: %w", err)
	}
	if err := json.Unmarshal(retained, &d.RetainedMessages); err != nil {
		return nil, fmt.Errorf("decode retained: %w", err)
	}
	if err := json.Unmarshal(removed, &d.RemovedMessages); err != nil {
		return nil, fmt.Errorf("decode removed: %w", err)
	}
	return d, nil
}
