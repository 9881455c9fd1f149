package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"
)

// Document is a file indexed in a remote store.
type Document struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
	SizeBytes   int64  `json:"sizeBytes,string"`
	State       string `json:"state"`
}

// UploadResult reports an initiated document upload. Done is false while
// the remote side is still indexing.
type UploadResult struct {
	OperationName string
	Done          bool
}

// ListDocuments returns all documents in a store, following pagination.
func (c *Client) ListDocuments(ctx context.Context, storeName string) ([]Document, error) {
	return withRetry(ctx, c, "listing documents", func(ctx context.Context) ([]Document, error) {
		var docs []Document
		pageToken := ""
		for {
			path := "/v1beta/" + storeName + "/documents"
			if pageToken != "" {
				path += "?pageToken=" + url.QueryEscape(pageToken)
			}

			var resp struct {
				Documents     []Document `json:"documents"`
				NextPageToken string     `json:"nextPageToken"`
			}
			if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
				return nil, err
			}
			docs = append(docs, resp.Documents...)
			if resp.NextPageToken == "" {
				return docs, nil
			}
			pageToken = resp.NextPageToken
		}
	})
}

// UploadDocument uploads file content into a store as a multipart request,
// with displayName as the document's visible filename. The remote side
// indexes asynchronously; callers do not poll for this product.
func (c *Client) UploadDocument(ctx context.Context, storeName, displayName string, content io.Reader) (*UploadResult, error) {
	if displayName == "" {
		return nil, fmt.Errorf("display name is required")
	}

	// Buffer once so retries can resend the body.
	data, err := io.ReadAll(content)
	if err != nil {
		return nil, fmt.Errorf("reading upload content: %w", err)
	}

	return withRetry(ctx, c, "uploading document", func(ctx context.Context) (*UploadResult, error) {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)

		metaPart, err := mw.CreatePart(map[string][]string{
			"Content-Type": {"application/json; charset=utf-8"},
		})
		if err != nil {
			return nil, fmt.Errorf("building metadata part: %w", err)
		}
		meta, err := json.Marshal(map[string]string{"displayName": displayName})
		if err != nil {
			return nil, fmt.Errorf("encoding metadata: %w", err)
		}
		if _, err := metaPart.Write(meta); err != nil {
			return nil, fmt.Errorf("writing metadata part: %w", err)
		}

		filePart, err := mw.CreateFormFile("file", displayName)
		if err != nil {
			return nil, fmt.Errorf("building file part: %w", err)
		}
		if _, err := filePart.Write(data); err != nil {
			return nil, fmt.Errorf("writing file part: %w", err)
		}
		if err := mw.Close(); err != nil {
			return nil, fmt.Errorf("finalizing multipart body: %w", err)
		}

		uploadURL := c.baseURL + "/upload/v1beta/" + storeName + ":uploadToFileSearchStore"
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, &buf)
		if err != nil {
			return nil, fmt.Errorf("building request: %w", err)
		}
		req.Header.Set("x-goog-api-key", c.apiKey)
		req.Header.Set("Content-Type", "multipart/related; boundary="+mw.Boundary())

		start := time.Now()
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("reading response: %w", err)
		}

		c.logger.Debug("document upload",
			"store", storeName, "file", displayName,
			"size", len(data), "status", resp.StatusCode, "elapsed", time.Since(start))

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, fmt.Errorf("status %d: %s", resp.StatusCode, excerpt(respBody))
		}

		var op struct {
			Name string `json:"name"`
			Done bool   `json:"done"`
		}
		if err := json.Unmarshal(respBody, &op); err != nil {
			return nil, fmt.Errorf("decoding operation: %w", err)
		}
		return &UploadResult{OperationName: op.Name, Done: op.Done}, nil
	})
}
