package api

import (
	"context"
	"errors"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chalssak/chalssak/internal/channel"
	"github.com/chalssak/chalssak/internal/chat"
	"github.com/chalssak/chalssak/internal/crawler"
	"github.com/chalssak/chalssak/internal/favorite"
	"github.com/chalssak/chalssak/internal/gemini"
	"github.com/chalssak/chalssak/internal/metrics"
	"github.com/chalssak/chalssak/internal/note"
	"github.com/chalssak/chalssak/internal/scheduler"
	"github.com/chalssak/chalssak/internal/trash"
)

// ChannelStore is the channel persistence surface the server needs.
// *channel.Store satisfies it.
type ChannelStore interface {
	Create(ctx context.Context, externalStoreID, name, description string) (*channel.Channel, error)
	Get(ctx context.Context, id int64) (*channel.Channel, error)
	ListActive(ctx context.Context, limit, offset int) ([]*channel.Channel, error)
	Update(ctx context.Context, externalStoreID string, name, description *string) (*channel.Channel, error)
	RecordUpload(ctx context.Context, externalStoreID string, sizeBytes int64) error
	CountActive(ctx context.Context) (int, error)
}

// NoteStore is the note persistence surface. *note.Store satisfies it.
type NoteStore interface {
	Create(ctx context.Context, channelID int64, title, content string, sources []note.Source) (*note.Note, error)
	Get(ctx context.Context, channelID, noteID int64) (*note.Note, error)
	ListByChannel(ctx context.Context, channelID int64, limit, offset int) ([]*note.Note, error)
	Update(ctx context.Context, channelID, noteID int64, title, content *string, sources []note.Source) (*note.Note, error)
	Delete(ctx context.Context, channelID, noteID int64) error
	Search(ctx context.Context, channelID int64, query string, limit int) ([]note.SearchResult, error)
}

// FavoriteStore is the favorites surface. *favorite.Store satisfies it.
type FavoriteStore interface {
	Add(ctx context.Context, targetType favorite.TargetType, targetID string) (*favorite.Favorite, error)
	Remove(ctx context.Context, targetType favorite.TargetType, targetID string) error
	List(ctx context.Context, targetType favorite.TargetType) ([]*favorite.Favorite, error)
	IsFavorite(ctx context.Context, targetType favorite.TargetType, targetID string) (bool, error)
}

// TrashManager is the trash surface. *trash.Manager satisfies it.
type TrashManager interface {
	SoftDeleteChannel(ctx context.Context, externalStoreID string) error
	SoftDeleteNote(ctx context.Context, noteID int64) error
	RestoreChannel(ctx context.Context, externalStoreID string) error
	RestoreNote(ctx context.Context, noteID int64) error
	ListTrashed(ctx context.Context) ([]trash.TrashedItem, error)
	PermanentDeleteChannel(ctx context.Context, externalStoreID string) error
	PermanentDeleteNote(ctx context.Context, noteID int64) error
	EmptyAll(ctx context.Context, confirm bool) (*trash.EmptyResult, error)
	Stats(ctx context.Context) (*trash.Stats, error)
	RetentionDays() int
}

// ChatService is the conversation surface. *chat.Service satisfies it.
type ChatService interface {
	Ask(ctx context.Context, ch *channel.Channel, query string) (*chat.Answer, error)
	AskStream(ctx context.Context, ch *channel.Channel, query string) iter.Seq[gemini.StreamEvent]
	History(ctx context.Context, channelID int64, limit int) ([]*chat.Message, error)
	ClearHistory(ctx context.Context, channelID int64) (int64, error)
	Search(ctx context.Context, channels []*channel.Channel, query string) (*chat.SearchAnswer, error)
	SearchStream(ctx context.Context, channels []*channel.Channel, query string) iter.Seq[gemini.StreamEvent]
}

// Gateway is the remote store and generation surface. *gemini.Client
// satisfies it.
type Gateway interface {
	CreateStore(ctx context.Context, displayName string) (*gemini.Store, error)
	DeleteStore(ctx context.Context, name string, force bool) gemini.DeleteOutcome
	ListDocuments(ctx context.Context, storeName string) ([]gemini.Document, error)
	UploadDocument(ctx context.Context, storeName, displayName string, content io.Reader) (*gemini.UploadResult, error)
	Summarize(ctx context.Context, storeName string, style gemini.SummaryStyle, documentName string) (*gemini.GenerateResult, error)
	FAQ(ctx context.Context, storeName string, count int) (*gemini.GenerateResult, error)
	StudyGuide(ctx context.Context, storeName, difficulty string, maxSections int, includeConcepts bool) (*gemini.GenerateResult, error)
	Quiz(ctx context.Context, storeName string, count int) (*gemini.GenerateResult, error)
	PodcastScript(ctx context.Context, storeName string) (*gemini.GenerateResult, error)
	Citations(ctx context.Context, storeName, query string) (string, []gemini.Citation, error)
}

// Fetcher retrieves web pages for URL ingestion. *crawler.Crawler
// satisfies it.
type Fetcher interface {
	FetchURL(ctx context.Context, rawURL string) (*crawler.Result, error)
}

// SchedulerControl exposes the job runner to the admin API.
// *scheduler.Scheduler satisfies it.
type SchedulerControl interface {
	Status() []scheduler.JobStatus
	History() []scheduler.RunRecord
	RunNow(ctx context.Context, name string) (*scheduler.RunRecord, error)
}

// UploadLimits is the per-channel capacity and upload policy.
type UploadLimits struct {
	MaxFiles          int
	MaxChannelBytes   int64
	MaxFileBytes      int64
	AllowedExtensions []string
}

// ServerConfig contains configuration for creating the API server.
type ServerConfig struct {
	Logger    *slog.Logger
	Pool      *pgxpool.Pool // Optional: nil disables the DB ping in /ready
	Channels  ChannelStore
	Notes     NoteStore
	Favorites FavoriteStore
	Trash     TrashManager
	Chat      ChatService
	Gateway   Gateway
	Fetcher   Fetcher           // Optional: nil disables URL ingestion
	Scheduler SchedulerControl  // Optional: nil disables the admin scheduler API
	Metrics   *metrics.Recorder // Optional: nil disables per-route metrics

	Lifecycle channel.LifecyclePolicy
	Limits    UploadLimits

	CORSOrigins []string
	TrustProxy  bool

	// Rate limiting. Zero values fall back to defaults.
	DefaultPerSecond float64 // sustained refill for the global bucket
	DefaultBurst     int
	ChatPerMinute    int
	UploadPerHour    int
}

// Server is the JSON API HTTP server.
type Server struct {
	mux *http.ServeMux
}

// NewServer creates a new API server with all routes configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	switch {
	case cfg.Channels == nil:
		return nil, errors.New("channel store is required")
	case cfg.Notes == nil:
		return nil, errors.New("note store is required")
	case cfg.Favorites == nil:
		return nil, errors.New("favorite store is required")
	case cfg.Trash == nil:
		return nil, errors.New("trash manager is required")
	case cfg.Chat == nil:
		return nil, errors.New("chat service is required")
	case cfg.Gateway == nil:
		return nil, errors.New("gateway is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()
	reg := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, withMetrics(cfg.Metrics, pattern, h))
	}

	// Tighter buckets for the expensive routes.
	chatPerMin := cfg.ChatPerMinute
	if chatPerMin <= 0 {
		chatPerMin = 10
	}
	uploadPerHour := cfg.UploadPerHour
	if uploadPerHour <= 0 {
		uploadPerHour = 20
	}
	chatLimit := rateLimitMiddleware(
		newRateLimiter(float64(chatPerMin)/60, chatPerMin), cfg.TrustProxy, "60", logger)
	uploadLimit := rateLimitMiddleware(
		newRateLimiter(float64(uploadPerHour)/3600, uploadPerHour), cfg.TrustProxy, "3600", logger)
	regLimited := func(pattern string, limit func(http.Handler) http.Handler, h http.HandlerFunc) {
		mux.Handle(pattern, withMetrics(cfg.Metrics, pattern, limit(h)))
	}

	chans := &channelHandler{
		channels:  cfg.Channels,
		gateway:   cfg.Gateway,
		favorites: cfg.Favorites,
		trash:     cfg.Trash,
		lifecycle: cfg.Lifecycle,
		limits:    cfg.Limits,
		logger:    logger,
	}
	reg("POST /api/v1/channels", chans.create)
	reg("GET /api/v1/channels", chans.list)
	reg("GET /api/v1/channels/{id}", chans.get)
	reg("PATCH /api/v1/channels/{id}", chans.update)
	reg("DELETE /api/v1/channels/{id}", chans.trashChannel)
	reg("GET /api/v1/channels/{id}/capacity", chans.capacity)
	reg("GET /api/v1/channels/{id}/lifecycle", chans.lifecycleStatus)

	docs := &documentHandler{
		channels: cfg.Channels,
		gateway:  cfg.Gateway,
		fetcher:  cfg.Fetcher,
		limits:   cfg.Limits,
		logger:   logger,
	}
	regLimited("POST /api/v1/channels/{id}/documents", uploadLimit, docs.upload)
	reg("GET /api/v1/channels/{id}/documents", docs.list)
	regLimited("POST /api/v1/channels/{id}/documents/url", uploadLimit, docs.uploadURL)

	ch := &chatHandler{
		channels: cfg.Channels,
		chat:     cfg.Chat,
		logger:   logger,
	}
	regLimited("POST /api/v1/channels/{id}/chat", chatLimit, ch.ask)
	regLimited("GET /api/v1/channels/{id}/chat/stream", chatLimit, ch.stream)
	reg("GET /api/v1/channels/{id}/chat/history", ch.history)
	reg("DELETE /api/v1/channels/{id}/chat/history", ch.clearHistory)
	regLimited("POST /api/v1/search", chatLimit, ch.search)
	regLimited("POST /api/v1/search/stream", chatLimit, ch.searchStream)

	gen := &generateHandler{
		channels: cfg.Channels,
		gateway:  cfg.Gateway,
		logger:   logger,
	}
	regLimited("POST /api/v1/channels/{id}/summarize", chatLimit, gen.summarize)
	regLimited("POST /api/v1/channels/{id}/faq", chatLimit, gen.faq)
	regLimited("POST /api/v1/channels/{id}/study-guide", chatLimit, gen.studyGuide)
	regLimited("POST /api/v1/channels/{id}/quiz", chatLimit, gen.quiz)
	regLimited("POST /api/v1/channels/{id}/podcast", chatLimit, gen.podcast)
	regLimited("POST /api/v1/channels/{id}/citations", chatLimit, gen.citations)

	notes := &noteHandler{
		channels: cfg.Channels,
		notes:    cfg.Notes,
		logger:   logger,
	}
	reg("POST /api/v1/channels/{id}/notes", notes.create)
	reg("GET /api/v1/channels/{id}/notes", notes.list)
	reg("GET /api/v1/channels/{id}/notes/search", notes.search)
	reg("GET /api/v1/channels/{id}/notes/{noteID}", notes.get)
	reg("PATCH /api/v1/channels/{id}/notes/{noteID}", notes.update)
	reg("DELETE /api/v1/channels/{id}/notes/{noteID}", notes.trashNote)

	tr := &trashHandler{trash: cfg.Trash, logger: logger}
	reg("GET /api/v1/trash", tr.list)
	reg("GET /api/v1/trash/stats", tr.stats)
	reg("POST /api/v1/trash/empty", tr.empty)
	reg("POST /api/v1/trash/{type}/{id}/restore", tr.restore)
	reg("DELETE /api/v1/trash/{type}/{id}", tr.purge)

	favs := &favoriteHandler{favorites: cfg.Favorites, logger: logger}
	reg("PUT /api/v1/favorites/{type}/{id}", favs.add)
	reg("DELETE /api/v1/favorites/{type}/{id}", favs.remove)
	reg("GET /api/v1/favorites", favs.list)

	admin := &adminHandler{
		channels:  cfg.Channels,
		trash:     cfg.Trash,
		scheduler: cfg.Scheduler,
		metrics:   cfg.Metrics,
		logger:    logger,
	}
	reg("GET /api/v1/admin/stats", admin.stats)
	reg("GET /api/v1/admin/scheduler", admin.schedulerStatus)
	reg("GET /api/v1/admin/scheduler/history", admin.schedulerHistory)
	reg("POST /api/v1/admin/scheduler/jobs/{name}/run", admin.runJob)

	// Global rate limiter: per-IP token bucket.
	perSec := cfg.DefaultPerSecond
	if perSec <= 0 {
		perSec = 100.0 / 60
	}
	burst := cfg.DefaultBurst
	if burst <= 0 {
		burst = 100
	}
	rl := newRateLimiter(perSec, burst)

	// Build middleware stack (outermost first):
	//   Recovery → RequestID → Logging → CORS → RateLimit → Routes
	// RequestID must be before Logging so request_id is available in log
	// attributes. CORS must be before RateLimit so preflight OPTIONS gets
	// proper CORS headers.
	var handler http.Handler = mux
	handler = rateLimitMiddleware(rl, cfg.TrustProxy, "1", logger)(handler)
	handler = corsMiddleware(cfg.CORSOrigins)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = requestIDMiddleware()(handler)
	handler = recoveryMiddleware(logger)(handler)

	// Use a top-level mux to separate health probes from the middleware
	// stack.
	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /health", health)
	topMux.Handle("GET /ready", readiness(cfg.Pool))
	topMux.Handle("/", handler)

	return &Server{mux: topMux}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// pathID parses the {id} path segment as a channel or note ID.
func pathID(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(r.PathValue(name), 10, 64)
}

// fetchChannel loads the channel named by the {id} path segment,
// writing the error response itself when the channel cannot be served.
func fetchChannel(w http.ResponseWriter, r *http.Request, channels ChannelStore, logger *slog.Logger) (*channel.Channel, bool) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "channel ID must be an integer")
		return nil, false
	}
	ch, err := channels.Get(r.Context(), id)
	if err != nil {
		writeStoreError(w, err, logger)
		return nil, false
	}
	return ch, true
}
