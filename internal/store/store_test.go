package store

import (
	"io/fs"
	"sort"
	"strings"
	"testing"

	"github.com/nidhogg/nuka-context/internal/window"
)

func TestEmbeddedMigrations(t *testing.T) {
	files, err := fs.Glob(migrations, "migrations/*.up.sql")
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(files) < 3 {
		t.Fatalf("got %d migrations, want at least 3", len(files))
	}
	if !sort.StringsAreSorted(files) {
		t.Errorf("migrations not in apply order: %v", files)
	}
	data, err := fs.ReadFile(migrations, files[0])
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(data), "CREATE TABLE IF NOT EXISTS messages") {
		t.Errorf("first migration should create the messages table")
	}
}

func TestTurnFromMessages(t *testing.T) {
	msgs := []Message{
		{ID: "a", TokenCount: 12, EntityCount: 1, Phase: window.PhaseDemo, Engagement: window.EngagementHigh},
		{ID: "b", TokenCount: 4, Phase: window.PhaseUnknown, Engagement: window.EngagementLow},
	}
	turn := TurnFromMessages(msgs)
	if len(turn) != 2 {
		t.Fatalf("got %d, want 2", len(turn))
	}
	want := window.TurnMessage{MessageID: "a", TokenCount: 12, BusinessEntityCount: 1,
		Phase: window.PhaseDemo, Engagement: window.EngagementHigh}
	if turn[0] != want {
		t.Errorf("got %+v, want %+v", turn[0], want)
	}
	if turn[1].MessageID != "b" || turn[1].Engagement != window.EngagementLow {
		t.Errorf("got %+v", turn[1])
	}
}

func TestDecisionSequenceMigration(t *testing.T) {
	data, err := fs.ReadFile(migrations, "migrations/003_decision_seq.up.sql")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(data), "seq BIGSERIAL") {
		t.Error("decision ordering column missing")
	}
}
