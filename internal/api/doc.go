// Package api provides the JSON REST API server for Chalssak.
//
// # Architecture
//
// The API server uses Go 1.22+ routing with a layered middleware stack:
//
//	Recovery → RequestID → Logging → CORS → RateLimit → Routes
//
// Health probes (/health, /ready) bypass the middleware stack via a
// top-level mux, ensuring they remain fast and unauthenticated. Chat and
// upload routes carry additional, tighter rate limit buckets.
//
// # Endpoints
//
// Health probes (no middleware):
//   - GET /health — returns {"status":"ok"}
//   - GET /ready  — pings the database
//
// Channels:
//   - POST   /api/v1/channels                 — create remote store, then local record
//   - GET    /api/v1/channels                 — active list with capacity, lifecycle, favorite decoration
//   - GET    /api/v1/channels/{id}            — get channel by ID
//   - PATCH  /api/v1/channels/{id}            — rename / change description
//   - DELETE /api/v1/channels/{id}            — move to trash (soft delete)
//   - GET    /api/v1/channels/{id}/capacity   — usage snapshot
//   - GET    /api/v1/channels/{id}/lifecycle  — activity classification
//
// Documents:
//   - POST /api/v1/channels/{id}/documents     — multipart upload (extension whitelist, size and capacity checks)
//   - GET  /api/v1/channels/{id}/documents     — list remote documents
//   - POST /api/v1/channels/{id}/documents/url — fetch a web page and ingest it as a document
//
// Chat:
//   - POST   /api/v1/channels/{id}/chat         — grounded question answering
//   - GET    /api/v1/channels/{id}/chat/stream  — SSE streaming variant
//   - GET    /api/v1/channels/{id}/chat/history — recent conversation turns
//   - DELETE /api/v1/channels/{id}/chat/history — clear conversation
//
// Search (across up to five channels):
//   - POST /api/v1/search
//   - POST /api/v1/search/stream
//
// Generation:
//   - POST /api/v1/channels/{id}/summarize | faq | study-guide | quiz | podcast | citations
//
// Notes:
//   - CRUD under /api/v1/channels/{id}/notes, plus GET .../notes/search?q=
//
// Trash:
//   - GET    /api/v1/trash
//   - POST   /api/v1/trash/{type}/{id}/restore
//   - DELETE /api/v1/trash/{type}/{id}
//   - POST   /api/v1/trash/empty (requires confirm=true)
//   - GET    /api/v1/trash/stats
//
// Favorites:
//   - PUT/DELETE /api/v1/favorites/{type}/{id}, GET /api/v1/favorites
//
// Admin:
//   - GET  /api/v1/admin/stats
//   - GET  /api/v1/admin/scheduler
//   - GET  /api/v1/admin/scheduler/history
//   - POST /api/v1/admin/scheduler/jobs/{name}/run
//
// # Error Handling
//
// Errors use an envelope format:
//
//	{"error": {"code": "...", "message": "..."}}
//
// Store sentinels map to statuses: not found → 404, validation → 400,
// capacity exceeded → 413, remote gateway failure → 502, rate limit →
// 429 with Retry-After.
//
// # SSE Streaming
//
// Chat and search stream via Server-Sent Events with typed events
// (content, sources, done, error). Responses set text/event-stream,
// Cache-Control: no-cache and X-Accel-Buffering: no.
package api
