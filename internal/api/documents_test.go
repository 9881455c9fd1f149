package api

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/chalssak/chalssak/internal/crawler"
	"github.com/chalssak/chalssak/internal/gemini"
)

// multipartUpload builds a multipart request carrying one file part.
func multipartUpload(t *testing.T, url, filename string, content []byte) *http.Request {
	t.Helper()
	body := new(bytes.Buffer)
	mw := multipart.NewWriter(body)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("creating form file: %v", err)
	}
	if _, err := fw.Write(content); err != nil {
		t.Fatalf("writing form file: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("closing multipart writer: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, url, body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestDocumentList(t *testing.T) {
	env := newTestEnv(t)
	env.channels.add("fileSearchStores/a", "alpha")
	env.gateway.documents = []gemini.Document{
		{Name: "fileSearchStores/a/documents/d1", DisplayName: "paper.pdf", SizeBytes: 2048, State: "ACTIVE"},
	}

	rr := env.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/channels/1/documents", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rr.Code, rr.Body.String())
	}

	var resp struct {
		Documents []documentResponse `json:"documents"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshaling response: %v", err)
	}
	if len(resp.Documents) != 1 {
		t.Fatalf("documents = %d, want 1", len(resp.Documents))
	}
	if d := resp.Documents[0]; d.DisplayName != "paper.pdf" || d.SizeBytes != 2048 {
		t.Errorf("document = %+v, want paper.pdf with 2048 bytes", d)
	}
}

func TestDocumentUpload(t *testing.T) {
	env := newTestEnv(t)
	ch := env.channels.add("fileSearchStores/a", "alpha")

	req := multipartUpload(t, "/api/v1/channels/1/documents", "notes.txt", []byte("hello"))
	rr := env.do(t, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d: %s", rr.Code, http.StatusCreated, rr.Body.String())
	}
	var resp struct {
		Operation string `json:"operation"`
		Done      bool   `json:"done"`
		FileName  string `json:"file_name"`
		SizeBytes int64  `json:"size_bytes"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshaling response: %v", err)
	}
	if resp.FileName != "notes.txt" || resp.SizeBytes != 5 {
		t.Errorf("response = %+v, want notes.txt of 5 bytes", resp)
	}
	if len(env.gateway.uploads) != 1 || env.gateway.uploads[0] != "notes.txt" {
		t.Errorf("gateway uploads = %v, want [notes.txt]", env.gateway.uploads)
	}
	if ch.FileCount != 1 || ch.TotalSizeBytes != 5 {
		t.Errorf("channel counters = (%d files, %d bytes), want (1, 5)", ch.FileCount, ch.TotalSizeBytes)
	}
}

func TestDocumentUploadRejectsExtension(t *testing.T) {
	env := newTestEnv(t)
	env.channels.add("fileSearchStores/a", "alpha")

	req := multipartUpload(t, "/api/v1/channels/1/documents", "malware.exe", []byte("MZ"))
	rr := env.do(t, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
	if got := errorCode(t, rr); got != "unsupported_type" {
		t.Errorf("code = %q, want unsupported_type", got)
	}
	if len(env.gateway.uploads) != 0 {
		t.Errorf("rejected file reached the gateway: %v", env.gateway.uploads)
	}
}

func TestDocumentUploadRejectsMissingFilePart(t *testing.T) {
	env := newTestEnv(t)
	env.channels.add("fileSearchStores/a", "alpha")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/channels/1/documents",
		strings.NewReader("not multipart"))
	req.Header.Set("Content-Type", "text/plain")
	rr := env.do(t, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestDocumentUploadRejectsOverCapacity(t *testing.T) {
	env := newTestEnv(t)
	ch := env.channels.add("fileSearchStores/a", "alpha")
	ch.FileCount = 100 // at the MaxFiles limit

	req := multipartUpload(t, "/api/v1/channels/1/documents", "one-more.txt", []byte("x"))
	rr := env.do(t, req)

	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want %d: %s", rr.Code, http.StatusRequestEntityTooLarge, rr.Body.String())
	}
	if got := errorCode(t, rr); got != "capacity_exceeded" {
		t.Errorf("code = %q, want capacity_exceeded", got)
	}
	if len(env.gateway.uploads) != 0 {
		t.Errorf("over-capacity file reached the gateway: %v", env.gateway.uploads)
	}
}

func TestDocumentUploadGatewayFailureKeepsCounters(t *testing.T) {
	env := newTestEnv(t)
	ch := env.channels.add("fileSearchStores/a", "alpha")
	env.gateway.uploadErr = errGateway

	req := multipartUpload(t, "/api/v1/channels/1/documents", "doc.pdf", []byte("pdf"))
	rr := env.do(t, req)

	if rr.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusBadGateway)
	}
	if ch.FileCount != 0 {
		t.Errorf("file count bumped despite failed upload: %d", ch.FileCount)
	}
}

func TestDocumentUploadURL(t *testing.T) {
	env := newTestEnv(t)
	ch := env.channels.add("fileSearchStores/a", "alpha")
	env.fetcher.result = &crawler.Result{
		URL:     "https://example.com/article",
		Title:   "Example Article",
		Content: "body text",
	}

	rr := env.do(t, httptest.NewRequest(http.MethodPost, "/api/v1/channels/1/documents/url",
		strings.NewReader(`{"url":"https://example.com/article"}`)))

	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d: %s", rr.Code, http.StatusCreated, rr.Body.String())
	}
	var resp struct {
		Title    string `json:"title"`
		FileName string `json:"file_name"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshaling response: %v", err)
	}
	if resp.Title != "Example Article" {
		t.Errorf("title = %q, want Example Article", resp.Title)
	}
	if len(env.gateway.uploads) != 1 {
		t.Fatalf("gateway uploads = %v, want one", env.gateway.uploads)
	}
	if ch.FileCount != 1 {
		t.Errorf("file count = %d, want 1", ch.FileCount)
	}
}

func TestDocumentUploadURLValidation(t *testing.T) {
	env := newTestEnv(t)
	env.channels.add("fileSearchStores/a", "alpha")

	rr := env.do(t, httptest.NewRequest(http.MethodPost, "/api/v1/channels/1/documents/url",
		strings.NewReader(`{"url":"  "}`)))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestDocumentUploadURLFetchFailure(t *testing.T) {
	env := newTestEnv(t)
	env.channels.add("fileSearchStores/a", "alpha")
	env.fetcher.err = errGateway

	rr := env.do(t, httptest.NewRequest(http.MethodPost, "/api/v1/channels/1/documents/url",
		strings.NewReader(`{"url":"https://example.com"}`)))

	if rr.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusBadGateway)
	}
	if got := errorCode(t, rr); got != "fetch_failed" {
		t.Errorf("code = %q, want fetch_failed", got)
	}
}
