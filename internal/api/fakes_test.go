package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"testing"
	"time"

	"github.com/chalssak/chalssak/internal/channel"
	"github.com/chalssak/chalssak/internal/chat"
	"github.com/chalssak/chalssak/internal/crawler"
	"github.com/chalssak/chalssak/internal/favorite"
	"github.com/chalssak/chalssak/internal/gemini"
	"github.com/chalssak/chalssak/internal/note"
	"github.com/chalssak/chalssak/internal/scheduler"
	"github.com/chalssak/chalssak/internal/testutil"
	"github.com/chalssak/chalssak/internal/trash"
)

var errGateway = fmt.Errorf("gemini: service unavailable")

// errorCode extracts the code from an error envelope response.
func errorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var env errorEnvelope
	if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil {
		t.Fatalf("unmarshaling error envelope from %q: %v", rr.Body.String(), err)
	}
	return env.Error.Code
}

// fakeChannels is an in-memory ChannelStore.
type fakeChannels struct {
	byID   map[int64]*channel.Channel
	nextID int64
}

func newFakeChannels() *fakeChannels {
	return &fakeChannels{byID: make(map[int64]*channel.Channel)}
}

func (f *fakeChannels) add(externalID, name string) *channel.Channel {
	f.nextID++
	ch := &channel.Channel{
		ID:              f.nextID,
		ExternalStoreID: externalID,
		Name:            name,
		CreatedAt:       time.Now(),
		LastAccessedAt:  time.Now(),
	}
	f.byID[ch.ID] = ch
	return ch
}

func (f *fakeChannels) Create(_ context.Context, externalStoreID, name, description string) (*channel.Channel, error) {
	for _, ch := range f.byID {
		if ch.ExternalStoreID == externalStoreID {
			return nil, channel.ErrDuplicateStore
		}
	}
	ch := f.add(externalStoreID, name)
	ch.Description = description
	return ch, nil
}

func (f *fakeChannels) Get(_ context.Context, id int64) (*channel.Channel, error) {
	ch, ok := f.byID[id]
	if !ok || ch.Trashed() {
		return nil, channel.ErrNotFound
	}
	return ch, nil
}

func (f *fakeChannels) ListActive(_ context.Context, limit, offset int) ([]*channel.Channel, error) {
	var out []*channel.Channel
	for _, ch := range f.byID {
		if !ch.Trashed() {
			out = append(out, ch)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeChannels) Update(_ context.Context, externalStoreID string, name, description *string) (*channel.Channel, error) {
	for _, ch := range f.byID {
		if ch.ExternalStoreID == externalStoreID && !ch.Trashed() {
			if name != nil {
				ch.Name = *name
			}
			if description != nil {
				ch.Description = *description
			}
			return ch, nil
		}
	}
	return nil, channel.ErrNotFound
}

func (f *fakeChannels) RecordUpload(_ context.Context, externalStoreID string, sizeBytes int64) error {
	for _, ch := range f.byID {
		if ch.ExternalStoreID == externalStoreID {
			ch.FileCount++
			ch.TotalSizeBytes += sizeBytes
			return nil
		}
	}
	return channel.ErrNotFound
}

func (f *fakeChannels) CountActive(_ context.Context) (int, error) {
	n := 0
	for _, ch := range f.byID {
		if !ch.Trashed() {
			n++
		}
	}
	return n, nil
}

// fakeNotes is an in-memory NoteStore.
type fakeNotes struct {
	byID    map[int64]*note.Note
	nextID  int64
	results []note.SearchResult
}

func newFakeNotes() *fakeNotes {
	return &fakeNotes{byID: make(map[int64]*note.Note)}
}

func (f *fakeNotes) Create(_ context.Context, channelID int64, title, content string, sources []note.Source) (*note.Note, error) {
	f.nextID++
	n := &note.Note{
		ID: f.nextID, ChannelID: channelID,
		Title: title, Content: content, Sources: sources,
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}
	f.byID[n.ID] = n
	return n, nil
}

func (f *fakeNotes) Get(_ context.Context, channelID, noteID int64) (*note.Note, error) {
	n, ok := f.byID[noteID]
	if !ok || n.ChannelID != channelID || n.Trashed() {
		return nil, note.ErrNotFound
	}
	return n, nil
}

func (f *fakeNotes) ListByChannel(_ context.Context, channelID int64, limit, offset int) ([]*note.Note, error) {
	var out []*note.Note
	for _, n := range f.byID {
		if n.ChannelID == channelID && !n.Trashed() {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeNotes) Update(ctx context.Context, channelID, noteID int64, title, content *string, sources []note.Source) (*note.Note, error) {
	n, err := f.Get(ctx, channelID, noteID)
	if err != nil {
		return nil, err
	}
	if title != nil {
		n.Title = *title
	}
	if content != nil {
		n.Content = *content
	}
	if sources != nil {
		n.Sources = sources
	}
	return n, nil
}

func (f *fakeNotes) Delete(ctx context.Context, channelID, noteID int64) error {
	n, err := f.Get(ctx, channelID, noteID)
	if err != nil {
		return err
	}
	now := time.Now()
	n.DeletedAt = &now
	return nil
}

func (f *fakeNotes) Search(_ context.Context, channelID int64, query string, limit int) ([]note.SearchResult, error) {
	return f.results, nil
}

// fakeFavorites is an in-memory FavoriteStore.
type fakeFavorites struct {
	items  map[string]*favorite.Favorite
	nextID int64
}

func newFakeFavorites() *fakeFavorites {
	return &fakeFavorites{items: make(map[string]*favorite.Favorite)}
}

func favKey(t favorite.TargetType, id string) string { return string(t) + ":" + id }

func (f *fakeFavorites) Add(_ context.Context, targetType favorite.TargetType, targetID string) (*favorite.Favorite, error) {
	key := favKey(targetType, targetID)
	if fav, ok := f.items[key]; ok {
		return fav, nil
	}
	f.nextID++
	fav := &favorite.Favorite{
		ID: f.nextID, TargetType: targetType, TargetID: targetID,
		DisplayOrder: int(f.nextID), CreatedAt: time.Now(),
	}
	f.items[key] = fav
	return fav, nil
}

func (f *fakeFavorites) Remove(_ context.Context, targetType favorite.TargetType, targetID string) error {
	key := favKey(targetType, targetID)
	if _, ok := f.items[key]; !ok {
		return favorite.ErrNotFound
	}
	delete(f.items, key)
	return nil
}

func (f *fakeFavorites) List(_ context.Context, targetType favorite.TargetType) ([]*favorite.Favorite, error) {
	var out []*favorite.Favorite
	for _, fav := range f.items {
		if targetType == "" || fav.TargetType == targetType {
			out = append(out, fav)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DisplayOrder < out[j].DisplayOrder })
	return out, nil
}

func (f *fakeFavorites) IsFavorite(_ context.Context, targetType favorite.TargetType, targetID string) (bool, error) {
	_, ok := f.items[favKey(targetType, targetID)]
	return ok, nil
}

// fakeTrash is an in-memory TrashManager backed by the channel and note
// fakes.
type fakeTrash struct {
	channels      *fakeChannels
	notes         *fakeNotes
	retentionDays int
	emptyResult   *trash.EmptyResult
}

func (f *fakeTrash) RetentionDays() int { return f.retentionDays }

func (f *fakeTrash) SoftDeleteChannel(_ context.Context, externalStoreID string) error {
	for _, ch := range f.channels.byID {
		if ch.ExternalStoreID == externalStoreID && !ch.Trashed() {
			now := time.Now()
			ch.DeletedAt = &now
			return nil
		}
	}
	return trash.ErrNotFound
}

func (f *fakeTrash) SoftDeleteNote(_ context.Context, noteID int64) error {
	n, ok := f.notes.byID[noteID]
	if !ok || n.Trashed() {
		return trash.ErrNotFound
	}
	now := time.Now()
	n.DeletedAt = &now
	return nil
}

func (f *fakeTrash) RestoreChannel(_ context.Context, externalStoreID string) error {
	for _, ch := range f.channels.byID {
		if ch.ExternalStoreID == externalStoreID && ch.Trashed() {
			ch.DeletedAt = nil
			return nil
		}
	}
	return trash.ErrNotFound
}

func (f *fakeTrash) RestoreNote(_ context.Context, noteID int64) error {
	n, ok := f.notes.byID[noteID]
	if !ok || !n.Trashed() {
		return trash.ErrNotFound
	}
	n.DeletedAt = nil
	return nil
}

func (f *fakeTrash) ListTrashed(_ context.Context) ([]trash.TrashedItem, error) {
	var items []trash.TrashedItem
	for _, ch := range f.channels.byID {
		if ch.Trashed() {
			fileCount := int64(ch.FileCount)
			items = append(items, trash.TrashedItem{
				Type: trash.TypeChannel, ID: ch.ExternalStoreID, Name: ch.Name,
				Description: ch.Description, FileCount: &fileCount, DeletedAt: *ch.DeletedAt,
			})
		}
	}
	for _, n := range f.notes.byID {
		if n.Trashed() {
			channelID := n.ChannelID
			items = append(items, trash.TrashedItem{
				Type: trash.TypeNote, ID: strconv.FormatInt(n.ID, 10), Name: n.Title,
				ChannelID: &channelID, DeletedAt: *n.DeletedAt,
			})
		}
	}
	return items, nil
}

func (f *fakeTrash) PermanentDeleteChannel(_ context.Context, externalStoreID string) error {
	for id, ch := range f.channels.byID {
		if ch.ExternalStoreID == externalStoreID && ch.Trashed() {
			delete(f.channels.byID, id)
			return nil
		}
	}
	return trash.ErrNotFound
}

func (f *fakeTrash) PermanentDeleteNote(_ context.Context, noteID int64) error {
	n, ok := f.notes.byID[noteID]
	if !ok || !n.Trashed() {
		return trash.ErrNotFound
	}
	delete(f.notes.byID, noteID)
	return nil
}

func (f *fakeTrash) EmptyAll(_ context.Context, confirm bool) (*trash.EmptyResult, error) {
	if !confirm {
		return nil, trash.ErrConfirmationRequired
	}
	if f.emptyResult != nil {
		return f.emptyResult, nil
	}
	return &trash.EmptyResult{}, nil
}

func (f *fakeTrash) Stats(_ context.Context) (*trash.Stats, error) {
	stats := &trash.Stats{}
	for _, ch := range f.channels.byID {
		if ch.Trashed() {
			stats.TrashedChannels++
		}
	}
	for _, n := range f.notes.byID {
		if n.Trashed() {
			stats.TrashedNotes++
		}
	}
	stats.Total = stats.TrashedChannels + stats.TrashedNotes
	return stats, nil
}

// fakeChat is a canned ChatService.
type fakeChat struct {
	answer       *chat.Answer
	searchAnswer *chat.SearchAnswer
	events       []gemini.StreamEvent
	err          error
	cleared      []int64
	messages     []*chat.Message
}

func (f *fakeChat) Ask(_ context.Context, _ *channel.Channel, _ string) (*chat.Answer, error) {
	return f.answer, f.err
}

func (f *fakeChat) AskStream(_ context.Context, _ *channel.Channel, _ string) iter.Seq[gemini.StreamEvent] {
	return f.seq()
}

func (f *fakeChat) History(_ context.Context, _ int64, _ int) ([]*chat.Message, error) {
	return f.messages, f.err
}

func (f *fakeChat) ClearHistory(_ context.Context, channelID int64) (int64, error) {
	f.cleared = append(f.cleared, channelID)
	return int64(len(f.messages)), f.err
}

func (f *fakeChat) Search(_ context.Context, _ []*channel.Channel, _ string) (*chat.SearchAnswer, error) {
	return f.searchAnswer, f.err
}

func (f *fakeChat) SearchStream(_ context.Context, _ []*channel.Channel, _ string) iter.Seq[gemini.StreamEvent] {
	return f.seq()
}

func (f *fakeChat) seq() iter.Seq[gemini.StreamEvent] {
	return func(yield func(gemini.StreamEvent) bool) {
		for _, ev := range f.events {
			if !yield(ev) {
				return
			}
		}
	}
}

// fakeGateway is a canned Gateway.
type fakeGateway struct {
	stores        int
	createErr     error
	deleteOutcome gemini.DeleteOutcome
	deleted       []string
	documents     []gemini.Document
	listErr       error
	uploads       []string
	uploadErr     error
	result        *gemini.GenerateResult
	genErr        error
	citations     []gemini.Citation
}

func (f *fakeGateway) CreateStore(_ context.Context, displayName string) (*gemini.Store, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.stores++
	return &gemini.Store{
		Name:        fmt.Sprintf("fileSearchStores/fake-%d", f.stores),
		DisplayName: displayName,
	}, nil
}

func (f *fakeGateway) DeleteStore(_ context.Context, name string, _ bool) gemini.DeleteOutcome {
	f.deleted = append(f.deleted, name)
	if f.deleteOutcome.Status == "" {
		return gemini.DeleteOutcome{Status: gemini.DeleteStatusDeleted}
	}
	return f.deleteOutcome
}

func (f *fakeGateway) ListDocuments(_ context.Context, _ string) ([]gemini.Document, error) {
	return f.documents, f.listErr
}

func (f *fakeGateway) UploadDocument(_ context.Context, _, displayName string, content io.Reader) (*gemini.UploadResult, error) {
	if f.uploadErr != nil {
		return nil, f.uploadErr
	}
	if _, err := io.ReadAll(content); err != nil {
		return nil, err
	}
	f.uploads = append(f.uploads, displayName)
	return &gemini.UploadResult{OperationName: "operations/upload-1", Done: true}, nil
}

func (f *fakeGateway) Summarize(_ context.Context, _ string, _ gemini.SummaryStyle, _ string) (*gemini.GenerateResult, error) {
	return f.result, f.genErr
}

func (f *fakeGateway) FAQ(_ context.Context, _ string, _ int) (*gemini.GenerateResult, error) {
	return f.result, f.genErr
}

func (f *fakeGateway) StudyGuide(_ context.Context, _, _ string, _ int, _ bool) (*gemini.GenerateResult, error) {
	return f.result, f.genErr
}

func (f *fakeGateway) Quiz(_ context.Context, _ string, _ int) (*gemini.GenerateResult, error) {
	return f.result, f.genErr
}

func (f *fakeGateway) PodcastScript(_ context.Context, _ string) (*gemini.GenerateResult, error) {
	return f.result, f.genErr
}

func (f *fakeGateway) Citations(_ context.Context, _, _ string) (string, []gemini.Citation, error) {
	if f.genErr != nil {
		return "", nil, f.genErr
	}
	text := ""
	if f.result != nil {
		text = f.result.Text
	}
	return text, f.citations, nil
}

// fakeFetcher is a canned page fetcher.
type fakeFetcher struct {
	result *crawler.Result
	err    error
}

func (f *fakeFetcher) FetchURL(_ context.Context, _ string) (*crawler.Result, error) {
	return f.result, f.err
}

// fakeScheduler is a canned SchedulerControl.
type fakeScheduler struct {
	statuses []scheduler.JobStatus
	history  []scheduler.RunRecord
	ran      []string
}

func (f *fakeScheduler) Status() []scheduler.JobStatus  { return f.statuses }
func (f *fakeScheduler) History() []scheduler.RunRecord { return f.history }
func (f *fakeScheduler) RunNow(_ context.Context, name string) (*scheduler.RunRecord, error) {
	for _, st := range f.statuses {
		if st.Name == name {
			f.ran = append(f.ran, name)
			return &scheduler.RunRecord{Job: name, TriggeredBy: "manual"}, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", scheduler.ErrUnknownJob, name)
}

// testEnv bundles a server and the fakes wired into it.
type testEnv struct {
	server    *Server
	channels  *fakeChannels
	notes     *fakeNotes
	favorites *fakeFavorites
	trash     *fakeTrash
	chat      *fakeChat
	gateway   *fakeGateway
	fetcher   *fakeFetcher
	scheduler *fakeScheduler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		channels:  newFakeChannels(),
		notes:     newFakeNotes(),
		favorites: newFakeFavorites(),
		chat:      &fakeChat{},
		gateway:   &fakeGateway{},
		fetcher:   &fakeFetcher{},
		scheduler: &fakeScheduler{},
	}
	env.trash = &fakeTrash{channels: env.channels, notes: env.notes, retentionDays: 30}

	policy, err := channel.NewLifecyclePolicy(30, 90)
	if err != nil {
		t.Fatalf("NewLifecyclePolicy() unexpected error: %v", err)
	}

	server, err := NewServer(ServerConfig{
		Logger:    testutil.DiscardLogger(),
		Channels:  env.channels,
		Notes:     env.notes,
		Favorites: env.favorites,
		Trash:     env.trash,
		Chat:      env.chat,
		Gateway:   env.gateway,
		Fetcher:   env.fetcher,
		Scheduler: env.scheduler,
		Lifecycle: policy,
		Limits: UploadLimits{
			MaxFiles:          100,
			MaxChannelBytes:   500 << 20,
			MaxFileBytes:      50 << 20,
			AllowedExtensions: []string{".pdf", ".txt", ".docx"},
		},
	})
	if err != nil {
		t.Fatalf("NewServer() unexpected error: %v", err)
	}
	env.server = server
	return env
}

// do runs one request through the full middleware stack.
func (env *testEnv) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rr, req)
	return rr
}
