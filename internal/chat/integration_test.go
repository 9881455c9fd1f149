//go:build integration
// +build integration

package chat

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/chalssak/chalssak/internal/gemini"
	logpkg "github.com/chalssak/chalssak/internal/log"
	"github.com/chalssak/chalssak/internal/testutil"
)

var sharedDB *testutil.TestDBContainer

func TestMain(m *testing.M) {
	var cleanup func()
	var err error
	sharedDB, cleanup, err = testutil.SetupTestDBForMain()
	if err != nil {
		fmt.Fprintf(os.Stderr, "starting test database: %v\n", err)
		os.Exit(1)
	}
	code := m.Run()
	cleanup()
	os.Exit(code)
}

// setupMessageStore truncates tables and seeds a channel to attach
// messages to, returning the store and the channel ID.
func setupMessageStore(t *testing.T) (*MessageStore, int64) {
	t.Helper()
	testutil.CleanTables(t, sharedDB.Pool)

	store, err := NewMessageStore(sharedDB.Pool, logpkg.NewNop())
	if err != nil {
		t.Fatalf("NewMessageStore() unexpected error: %v", err)
	}

	var channelID int64
	err = sharedDB.Pool.QueryRow(context.Background(),
		`INSERT INTO channels (external_store_id, name) VALUES ('fileSearchStores/chat', 'chat') RETURNING id`,
	).Scan(&channelID)
	if err != nil {
		t.Fatalf("seeding channel: %v", err)
	}
	return store, channelID
}

func TestMessageRoundTrip(t *testing.T) {
	store, channelID := setupMessageStore(t)
	ctx := context.Background()

	sources := []gemini.GroundingSource{{Source: "paper.pdf", Content: "excerpt", StoreID: "fileSearchStores/chat"}}
	if _, err := store.Add(ctx, channelID, RoleUser, "what is RAG?", nil); err != nil {
		t.Fatalf("Add() unexpected error: %v", err)
	}
	added, err := store.Add(ctx, channelID, RoleAssistant, "retrieval augmented generation", sources)
	if err != nil {
		t.Fatalf("Add() unexpected error: %v", err)
	}
	if added.ID == 0 || added.CreatedAt.IsZero() {
		t.Errorf("added message missing generated fields: %+v", added)
	}

	messages, err := store.List(ctx, channelID, 0)
	if err != nil {
		t.Fatalf("List() unexpected error: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("len(List()) = %d, want 2", len(messages))
	}
	if messages[0].Role != RoleUser {
		t.Errorf("first message role = %s, want user (chronological order)", messages[0].Role)
	}
	if len(messages[1].Sources) != 1 || messages[1].Sources[0].Source != "paper.pdf" {
		t.Errorf("assistant sources = %+v, want paper.pdf round-tripped", messages[1].Sources)
	}
	if messages[0].Sources != nil {
		t.Errorf("user sources = %+v, want nil", messages[0].Sources)
	}
}

func TestAddRejectsUnknownRole(t *testing.T) {
	store, channelID := setupMessageStore(t)

	if _, err := store.Add(context.Background(), channelID, "system", "x", nil); err == nil {
		t.Error("Add() with unknown role should fail")
	}
}

func TestListHonorsLimit(t *testing.T) {
	store, channelID := setupMessageStore(t)
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		role := RoleUser
		if i%2 == 1 {
			role = RoleAssistant
		}
		if _, err := store.Add(ctx, channelID, role, fmt.Sprintf("turn %d", i), nil); err != nil {
			t.Fatalf("Add() unexpected error: %v", err)
		}
	}

	messages, err := store.List(ctx, channelID, 4)
	if err != nil {
		t.Fatalf("List() unexpected error: %v", err)
	}
	if len(messages) != 4 {
		t.Fatalf("len(List(4)) = %d, want 4", len(messages))
	}
	// The most recent four, oldest first.
	if messages[0].Content != "turn 2" || messages[3].Content != "turn 5" {
		t.Errorf("window = %q..%q, want turn 2..turn 5", messages[0].Content, messages[3].Content)
	}
}

func TestClear(t *testing.T) {
	store, channelID := setupMessageStore(t)
	ctx := context.Background()

	if _, err := store.Add(ctx, channelID, RoleUser, "q", nil); err != nil {
		t.Fatalf("Add() unexpected error: %v", err)
	}
	if _, err := store.Add(ctx, channelID, RoleAssistant, "a", nil); err != nil {
		t.Fatalf("Add() unexpected error: %v", err)
	}

	removed, err := store.Clear(ctx, channelID)
	if err != nil {
		t.Fatalf("Clear() unexpected error: %v", err)
	}
	if removed != 2 {
		t.Errorf("Clear() removed %d, want 2", removed)
	}

	messages, err := store.List(ctx, channelID, 0)
	if err != nil {
		t.Fatalf("List() unexpected error: %v", err)
	}
	if len(messages) != 0 {
		t.Errorf("len(List()) after Clear = %d, want 0", len(messages))
	}
}
