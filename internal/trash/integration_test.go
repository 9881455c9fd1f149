//go:build integration
// +build integration

package trash

import (
	"context"
	"errors"
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

// fakeGateway scripts per-store delete outcomes. Stores not in outcomes
// report deleted.
type fakeGateway struct {
	outcomes map[string]gemini.DeleteStatus
	calls    []string
}

func (f *fakeGateway) DeleteStore(_ context.Context, name string, _ bool) gemini.DeleteOutcome {
	f.calls = append(f.calls, name)
	status, ok := f.outcomes[name]
	if !ok {
		status = gemini.DeleteStatusDeleted
	}
	out := gemini.DeleteOutcome{Status: status}
	if status == gemini.DeleteStatusFailed {
		out.Err = errors.New("connection reset by peer")
	}
	return out
}

func setupManager(t *testing.T, gateway StoreDeleter) *Manager {
	t.Helper()
	testutil.CleanTables(t, sharedDB.Pool)

	if gateway == nil {
		gateway = &fakeGateway{}
	}
	m, err := NewManager(sharedDB.Pool, gateway, 30, logpkg.NewNop())
	if err != nil {
		t.Fatalf("NewManager() unexpected error: %v", err)
	}
	return m
}

func seedChannel(t *testing.T, externalID, name string) {
	t.Helper()
	_, err := sharedDB.Pool.Exec(context.Background(),
		`INSERT INTO channels (external_store_id, name) VALUES ($1, $2)`,
		externalID, name)
	if err != nil {
		t.Fatalf("seeding channel %s: %v", externalID, err)
	}
}

func seedNote(t *testing.T, title, content string) int64 {
	t.Helper()
	ctx := context.Background()
	var channelID int64
	err := sharedDB.Pool.QueryRow(ctx,
		`INSERT INTO channels (external_store_id, name)
		 VALUES ('fileSearchStores/note-host-' || $1, 'host')
		 ON CONFLICT (external_store_id) DO UPDATE SET name = channels.name
		 RETURNING id`, title).Scan(&channelID)
	if err != nil {
		t.Fatalf("seeding host channel: %v", err)
	}
	var noteID int64
	err = sharedDB.Pool.QueryRow(ctx,
		`INSERT INTO notes (channel_id, title, content) VALUES ($1, $2, $3) RETURNING id`,
		channelID, title, content).Scan(&noteID)
	if err != nil {
		t.Fatalf("seeding note: %v", err)
	}
	return noteID
}

func channelTrashed(t *testing.T, externalID string) (exists, trashed bool) {
	t.Helper()
	err := sharedDB.Pool.QueryRow(context.Background(),
		`SELECT deleted_at IS NOT NULL FROM channels WHERE external_store_id = $1`,
		externalID).Scan(&trashed)
	if err != nil {
		return false, false
	}
	return true, trashed
}

func TestChannelSoftDeleteRoundTrip(t *testing.T) {
	m := setupManager(t, nil)
	ctx := context.Background()

	seedChannel(t, "fileSearchStores/rt", "round trip")

	if err := m.SoftDeleteChannel(ctx, "fileSearchStores/rt"); err != nil {
		t.Fatalf("SoftDeleteChannel() unexpected error: %v", err)
	}
	if _, trashed := channelTrashed(t, "fileSearchStores/rt"); !trashed {
		t.Fatal("channel not trashed after soft delete")
	}

	// Double delete is a no-op not-found
	if err := m.SoftDeleteChannel(ctx, "fileSearchStores/rt"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second SoftDeleteChannel() = %v, want ErrNotFound", err)
	}

	if err := m.RestoreChannel(ctx, "fileSearchStores/rt"); err != nil {
		t.Fatalf("RestoreChannel() unexpected error: %v", err)
	}
	if _, trashed := channelTrashed(t, "fileSearchStores/rt"); trashed {
		t.Fatal("channel still trashed after restore")
	}

	// Restore touched last_accessed_at
	var recent bool
	err := sharedDB.Pool.QueryRow(ctx,
		`SELECT last_accessed_at > now() - interval '1 minute'
		 FROM channels WHERE external_store_id = 'fileSearchStores/rt'`).Scan(&recent)
	if err != nil {
		t.Fatalf("checking last_accessed_at: %v", err)
	}
	if !recent {
		t.Error("restore did not touch last_accessed_at")
	}

	if err := m.RestoreChannel(ctx, "fileSearchStores/rt"); !errors.Is(err, ErrNotFound) {
		t.Errorf("restoring active channel = %v, want ErrNotFound", err)
	}
}

func TestNoteSoftDeleteRoundTrip(t *testing.T) {
	m := setupManager(t, nil)
	ctx := context.Background()

	noteID := seedNote(t, "keep me", "content")

	if err := m.SoftDeleteNote(ctx, noteID); err != nil {
		t.Fatalf("SoftDeleteNote() unexpected error: %v", err)
	}
	if err := m.RestoreNote(ctx, noteID); err != nil {
		t.Fatalf("RestoreNote() unexpected error: %v", err)
	}
	if err := m.RestoreNote(ctx, noteID); !errors.Is(err, ErrNotFound) {
		t.Errorf("restoring active note = %v, want ErrNotFound", err)
	}
}

func TestListTrashed(t *testing.T) {
	m := setupManager(t, nil)
	ctx := context.Background()

	seedChannel(t, "fileSearchStores/old", "old channel")
	noteID := seedNote(t, "long note",
		"This note body is deliberately much longer than one hundred characters so that the listing "+
			"must truncate it to a preview with a trailing ellipsis marker.")

	if err := m.SoftDeleteChannel(ctx, "fileSearchStores/old"); err != nil {
		t.Fatalf("SoftDeleteChannel: %v", err)
	}
	// Backdate the channel so the note is the most recent deletion
	if _, err := sharedDB.Pool.Exec(ctx,
		`UPDATE channels SET deleted_at = now() - interval '2 days',
		        description = 'archive of old docs', file_count = 7
		 WHERE external_store_id = 'fileSearchStores/old'`); err != nil {
		t.Fatalf("backdating: %v", err)
	}
	if err := m.SoftDeleteNote(ctx, noteID); err != nil {
		t.Fatalf("SoftDeleteNote: %v", err)
	}

	items, err := m.ListTrashed(ctx)
	if err != nil {
		t.Fatalf("ListTrashed() unexpected error: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("ListTrashed() returned %d items, want 2", len(items))
	}

	// Most recently deleted first
	if items[0].Type != TypeNote || items[1].Type != TypeChannel {
		t.Errorf("order = [%s, %s], want [note, channel]", items[0].Type, items[1].Type)
	}
	if len([]rune(items[0].Preview)) != 101 || items[0].Preview[len(items[0].Preview)-len("…"):] != "…" {
		t.Errorf("note preview not truncated to 100 runes + ellipsis: %q", items[0].Preview)
	}
	if items[1].Preview != "" {
		t.Errorf("channel preview = %q, want empty", items[1].Preview)
	}
	if items[0].DaysRemaining != 30 {
		t.Errorf("fresh deletion days remaining = %d, want 30", items[0].DaysRemaining)
	}
	if items[1].DaysRemaining != 28 {
		t.Errorf("2-day-old deletion days remaining = %d, want 28", items[1].DaysRemaining)
	}

	// Type-specific fields: notes carry their parent channel id, channels
	// carry description and file count.
	if items[0].ChannelID == nil {
		t.Error("note item missing channel_id")
	}
	if items[0].FileCount != nil {
		t.Errorf("note item file_count = %d, want unset", *items[0].FileCount)
	}
	if items[1].Description != "archive of old docs" {
		t.Errorf("channel description = %q", items[1].Description)
	}
	if items[1].FileCount == nil || *items[1].FileCount != 7 {
		t.Errorf("channel file_count = %v, want 7", items[1].FileCount)
	}
	if items[1].ChannelID != nil {
		t.Errorf("channel item channel_id = %d, want unset", *items[1].ChannelID)
	}
}

func TestPermanentDeleteChannelConfirmed(t *testing.T) {
	gw := &fakeGateway{}
	m := setupManager(t, gw)
	ctx := context.Background()

	seedChannel(t, "fileSearchStores/purge", "purge me")
	if err := m.SoftDeleteChannel(ctx, "fileSearchStores/purge"); err != nil {
		t.Fatalf("SoftDeleteChannel: %v", err)
	}

	if err := m.PermanentDeleteChannel(ctx, "fileSearchStores/purge"); err != nil {
		t.Fatalf("PermanentDeleteChannel() unexpected error: %v", err)
	}
	if exists, _ := channelTrashed(t, "fileSearchStores/purge"); exists {
		t.Error("channel row survived a confirmed purge")
	}
	if len(gw.calls) != 1 {
		t.Errorf("gateway calls = %d, want 1", len(gw.calls))
	}
}

func TestPermanentDeleteChannelRemoteFailureRetainsRow(t *testing.T) {
	gw := &fakeGateway{outcomes: map[string]gemini.DeleteStatus{
		"fileSearchStores/stuck": gemini.DeleteStatusFailed,
	}}
	m := setupManager(t, gw)
	ctx := context.Background()

	seedChannel(t, "fileSearchStores/stuck", "stuck")
	if err := m.SoftDeleteChannel(ctx, "fileSearchStores/stuck"); err != nil {
		t.Fatalf("SoftDeleteChannel: %v", err)
	}

	err := m.PermanentDeleteChannel(ctx, "fileSearchStores/stuck")
	if err == nil {
		t.Fatal("PermanentDeleteChannel() should fail when the remote delete fails")
	}

	exists, trashed := channelTrashed(t, "fileSearchStores/stuck")
	if !exists || !trashed {
		t.Error("unconfirmed remote delete must keep the local trashed row")
	}
}

func TestPermanentDeleteChannelAlreadyAbsentPurges(t *testing.T) {
	gw := &fakeGateway{outcomes: map[string]gemini.DeleteStatus{
		"fileSearchStores/ghost": gemini.DeleteStatusAlreadyAbsent,
	}}
	m := setupManager(t, gw)
	ctx := context.Background()

	seedChannel(t, "fileSearchStores/ghost", "ghost")
	if err := m.SoftDeleteChannel(ctx, "fileSearchStores/ghost"); err != nil {
		t.Fatalf("SoftDeleteChannel: %v", err)
	}

	if err := m.PermanentDeleteChannel(ctx, "fileSearchStores/ghost"); err != nil {
		t.Fatalf("PermanentDeleteChannel() with absent remote: %v", err)
	}
	if exists, _ := channelTrashed(t, "fileSearchStores/ghost"); exists {
		t.Error("already-absent remote store should allow local purge")
	}
}

func TestPermanentDeleteChannelNotInTrash(t *testing.T) {
	gw := &fakeGateway{}
	m := setupManager(t, gw)
	ctx := context.Background()

	seedChannel(t, "fileSearchStores/alive", "alive")

	if err := m.PermanentDeleteChannel(ctx, "fileSearchStores/alive"); !errors.Is(err, ErrNotFound) {
		t.Errorf("purging active channel = %v, want ErrNotFound", err)
	}
	if len(gw.calls) != 0 {
		t.Error("gateway called for a channel not in trash")
	}
}

func TestPermanentDeleteChannelQueryFailureIsNotNotFound(t *testing.T) {
	gw := &fakeGateway{}
	m := setupManager(t, gw)

	// A failed lookup must surface as an error, not masquerade as a
	// missing channel.
	canceled, cancel := context.WithCancel(context.Background())
	cancel()

	err := m.PermanentDeleteChannel(canceled, "fileSearchStores/whatever")
	if err == nil {
		t.Fatal("PermanentDeleteChannel() with canceled context = nil, want error")
	}
	if errors.Is(err, ErrNotFound) {
		t.Errorf("query failure reported as ErrNotFound: %v", err)
	}
	if len(gw.calls) != 0 {
		t.Error("gateway called after a failed lookup")
	}
}

func TestPermanentDeleteNote(t *testing.T) {
	m := setupManager(t, nil)
	ctx := context.Background()

	noteID := seedNote(t, "gone", "content")
	if err := m.SoftDeleteNote(ctx, noteID); err != nil {
		t.Fatalf("SoftDeleteNote: %v", err)
	}
	if err := m.PermanentDeleteNote(ctx, noteID); err != nil {
		t.Fatalf("PermanentDeleteNote() unexpected error: %v", err)
	}
	if err := m.PermanentDeleteNote(ctx, noteID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second PermanentDeleteNote() = %v, want ErrNotFound", err)
	}
}

func TestEmptyAllRequiresConfirmation(t *testing.T) {
	m := setupManager(t, nil)

	if _, err := m.EmptyAll(context.Background(), false); !errors.Is(err, ErrConfirmationRequired) {
		t.Errorf("EmptyAll(false) = %v, want ErrConfirmationRequired", err)
	}
}

func TestEmptyAllPurgesDespiteRemoteFailures(t *testing.T) {
	gw := &fakeGateway{outcomes: map[string]gemini.DeleteStatus{
		"fileSearchStores/e2": gemini.DeleteStatusFailed,
	}}
	m := setupManager(t, gw)
	ctx := context.Background()

	seedChannel(t, "fileSearchStores/e1", "one")
	seedChannel(t, "fileSearchStores/e2", "two")
	noteID := seedNote(t, "note", "content")
	for _, id := range []string{"fileSearchStores/e1", "fileSearchStores/e2"} {
		if err := m.SoftDeleteChannel(ctx, id); err != nil {
			t.Fatalf("SoftDeleteChannel(%s): %v", id, err)
		}
	}
	if err := m.SoftDeleteNote(ctx, noteID); err != nil {
		t.Fatalf("SoftDeleteNote: %v", err)
	}

	result, err := m.EmptyAll(ctx, true)
	if err != nil {
		t.Fatalf("EmptyAll() unexpected error: %v", err)
	}
	if result.DeletedChannels != 2 || result.DeletedNotes != 1 {
		t.Errorf("purged %d channels / %d notes, want 2/1",
			result.DeletedChannels, result.DeletedNotes)
	}
	if result.GeminiDeleted != 1 || result.GeminiFailed != 1 {
		t.Errorf("gemini deleted/failed = %d/%d, want 1/1",
			result.GeminiDeleted, result.GeminiFailed)
	}

	// The explicit tradeoff: local rows go even when the remote failed
	if exists, _ := channelTrashed(t, "fileSearchStores/e2"); exists {
		t.Error("EmptyAll left a local row behind")
	}
}

func TestCleanupExpiredChannelsOnlyTrashedListed(t *testing.T) {
	m := setupManager(t, nil)
	ctx := context.Background()

	seedChannel(t, "fileSearchStores/c1", "one")
	seedChannel(t, "fileSearchStores/c2", "two")
	seedChannel(t, "fileSearchStores/c3", "three")
	for _, id := range []string{"fileSearchStores/c1", "fileSearchStores/c2"} {
		if err := m.SoftDeleteChannel(ctx, id); err != nil {
			t.Fatalf("SoftDeleteChannel(%s): %v", id, err)
		}
	}
	// c2 gets restored between listing and cleanup
	if err := m.RestoreChannel(ctx, "fileSearchStores/c2"); err != nil {
		t.Fatalf("RestoreChannel: %v", err)
	}

	n, err := m.CleanupExpiredChannels(ctx,
		[]string{"fileSearchStores/c1", "fileSearchStores/c2", "fileSearchStores/c3"})
	if err != nil {
		t.Fatalf("CleanupExpiredChannels() unexpected error: %v", err)
	}
	if n != 1 {
		t.Errorf("purged %d channels, want 1 (only c1 is still trashed)", n)
	}
	if exists, _ := channelTrashed(t, "fileSearchStores/c2"); !exists {
		t.Error("restored channel was purged")
	}
	if exists, _ := channelTrashed(t, "fileSearchStores/c3"); !exists {
		t.Error("active channel was purged")
	}
}

func TestCleanupExpiredNotes(t *testing.T) {
	m := setupManager(t, nil)
	ctx := context.Background()

	oldNote := seedNote(t, "old", "content")
	freshNote := seedNote(t, "fresh", "content")
	for _, id := range []int64{oldNote, freshNote} {
		if err := m.SoftDeleteNote(ctx, id); err != nil {
			t.Fatalf("SoftDeleteNote(%d): %v", id, err)
		}
	}
	if _, err := sharedDB.Pool.Exec(ctx,
		`UPDATE notes SET deleted_at = now() - interval '45 days' WHERE id = $1`,
		oldNote); err != nil {
		t.Fatalf("backdating: %v", err)
	}

	n, err := m.CleanupExpiredNotes(ctx)
	if err != nil {
		t.Fatalf("CleanupExpiredNotes() unexpected error: %v", err)
	}
	if n != 1 {
		t.Errorf("purged %d notes, want 1", n)
	}
}

func TestListExpiredChannelIDs(t *testing.T) {
	m := setupManager(t, nil)
	ctx := context.Background()

	seedChannel(t, "fileSearchStores/exp", "expired")
	seedChannel(t, "fileSearchStores/new", "fresh trash")
	for _, id := range []string{"fileSearchStores/exp", "fileSearchStores/new"} {
		if err := m.SoftDeleteChannel(ctx, id); err != nil {
			t.Fatalf("SoftDeleteChannel(%s): %v", id, err)
		}
	}
	if _, err := sharedDB.Pool.Exec(ctx,
		`UPDATE channels SET deleted_at = now() - interval '45 days'
		 WHERE external_store_id = 'fileSearchStores/exp'`); err != nil {
		t.Fatalf("backdating: %v", err)
	}

	ids, err := m.ListExpiredChannelIDs(ctx)
	if err != nil {
		t.Fatalf("ListExpiredChannelIDs() unexpected error: %v", err)
	}
	if len(ids) != 1 || ids[0] != "fileSearchStores/exp" {
		t.Errorf("expired ids = %v, want [fileSearchStores/exp]", ids)
	}
}

func TestTrashStats(t *testing.T) {
	m := setupManager(t, nil)
	ctx := context.Background()

	seedChannel(t, "fileSearchStores/s1", "one")
	noteID := seedNote(t, "n", "content")
	if err := m.SoftDeleteChannel(ctx, "fileSearchStores/s1"); err != nil {
		t.Fatalf("SoftDeleteChannel: %v", err)
	}
	if err := m.SoftDeleteNote(ctx, noteID); err != nil {
		t.Fatalf("SoftDeleteNote: %v", err)
	}

	stats, err := m.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() unexpected error: %v", err)
	}
	if stats.TrashedChannels != 1 || stats.TrashedNotes != 1 || stats.Total != 2 {
		t.Errorf("stats = %+v, want 1/1/2", stats)
	}
}
