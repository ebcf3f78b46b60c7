//go:build integration

package store

import (
	"context"
	"errors"
	"os"
	"testing"

	tcpg "github.com/testcontainers/testcontainers-go/modules/postgres"
	"go.uber.org/zap"

	"github.com/nidhogg/nuka-context/internal/window"
)

var testStore *Store

func TestMain(m *testing.M) {
	ctx := context.Background()
	container, err := tcpg.Run(ctx, "postgres:16-alpine",
		tcpg.WithDatabase("context_test"),
		tcpg.WithUsername("test"),
		tcpg.WithPassword("test"),
		tcpg.BasicWaitStrategies(),
	)
	if err != nil {
		panic("start postgres: " + err.Error())
	}
	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		container.Terminate(ctx)
		panic("pg connection string: " + err.Error())
	}

	testStore, err = New(ctx, dsn, zap.NewNop())
	if err != nil {
		container.Terminate(ctx)
		panic(err.Error())
	}
	if err := testStore.Migrate(ctx); err != nil {
		container.Terminate(ctx)
		panic(err.Error())
	}

	code := m.Run()
	testStore.Close()
	container.Terminate(ctx)
	os.Exit(code)
}

func TestMigrateIsIdempotent(t *testing.T) {
	if err := testStore.Migrate(context.Background()); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}

func TestAppendAndListTurn(t *testing.T) {
	ctx := context.Background()
	conv := "conv-append"

	inputs := []*Message{
		{Role: "user", Content: "hi", TokenCount: 5, Phase: window.PhaseDiscovery, Engagement: window.EngagementHigh},
		{ID: "fixed-id", Role: "assistant", Content: "hello", TokenCount: 7, EntityCount: 2},
		{Role: "user", Content: "pricing?", TokenCount: 3, Phase: window.PhaseClosing},
	}
	for _, m := range inputs {
		if err := testStore.AppendMessage(ctx, conv, m); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if inputs[0].ID == "" {
		t.Error("expected generated id")
	}
	if inputs[2].Seq != 3 {
		t.Errorf("got seq %d, want 3", inputs[2].Seq)
	}

	turn, err := testStore.ListTurn(ctx, conv)
	if err != nil {
		t.Fatalf("list turn: %v", err)
	}
	if len(turn) != 3 {
		t.Fatalf("got %d messages, want 3", len(turn))
	}
	if turn[1].MessageID != "fixed-id" || turn[1].BusinessEntityCount != 2 {
		t.Errorf("got %+v, want fixed-id with 2 entities", turn[1])
	}
	if turn[1].Phase != window.PhaseUnknown || turn[1].Engagement != window.EngagementMedium {
		t.Errorf("got phase %q engagement %q, want defaults", turn[1].Phase, turn[1].Engagement)
	}
	if turn[2].Phase != window.PhaseClosing {
		t.Errorf("got phase %q, want closing", turn[2].Phase)
	}
}

func TestListTurnUnknownConversation(t *testing.T) {
	_, err := testStore.ListTurn(context.Background(), "no-such-conversation")
	if !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("got %v, want ErrConversationNotFound", err)
	}
}

func TestRecordAndLoadDecision(t *testing.T) {
	ctx := context.Background()
	conv := "conv-decision"
	if err := testStore.AppendMessage(ctx, conv, &Message{ID: "d1", TokenCount: 10}); err != nil {
		t.Fatalf("append: %v", err)
	}

	if _, err := testStore.LatestDecision(ctx, conv); !errors.Is(err, ErrDecisionNotFound) {
		t.Fatalf("got %v, want ErrDecisionNotFound", err)
	}

	d := &window.RetentionDecision{
		RetainedMessages:    []string{"d1"},
		RemovedMessages:     []string{},
		TotalTokensRetained: 10,
		CompressionRatio:    1.0,
	}
	id, err := testStore.RecordDecision(ctx, conv, d)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if id == "" {
		t.Error("expected decision id")
	}

	got, err := testStore.LatestDecision(ctx, conv)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if len(got.RetainedMessages) != 1 || got.RetainedMessages[0] != "d1" {
		t.Errorf("got retained %v, want [d1]", got.RetainedMessages)
	}
	if got.TotalTokensRetained != 10 || got.CompressionRatio != 1.0 {
		t.Errorf("got %+v", got)
	}
}

func TestLatestDecisionIsLastRecorded(t *testing.T) {
	ctx := context.Background()
	conv := "conv-latest"
	if err := testStore.AppendMessage(ctx, conv, &Message{ID: "l1", TokenCount: 5}); err != nil {
		t.Fatalf("append: %v", err)
	}

	// Back-to-back writes can share a created_at timestamp.
	for i := 1; i <= 5; i++ {
		d := &window.RetentionDecision{
			RetainedMessages:    []string{"l1"},
			RemovedMessages:     []string{},
			TotalTokensRetained: i,
			CompressionRatio:    1.0,
		}
		if _, err := testStore.RecordDecision(ctx, conv, d); err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
	}

	got, err := testStore.LatestDecision(ctx, conv)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if got.TotalTokensRetained != 5 {
		t.Errorf("got decision with %d tokens, want the fifth (5)", got.TotalTokensRetained)
	}
}

func TestAppendDuplicateMessageID(t *testing.T) {
	ctx := context.Background()
	if err := testStore.AppendMessage(ctx, "conv-dup-a", &Message{ID: "dup-id", TokenCount: 1}); err != nil {
		t.Fatalf("append: %v", err)
	}
	err := testStore.AppendMessage(ctx, "conv-dup-b", &Message{ID: "dup-id", TokenCount: 1})
	if !errors.Is(err, ErrMessageExists) {
		t.Fatalf("got %v, want ErrMessageExists", err)
	}
}
