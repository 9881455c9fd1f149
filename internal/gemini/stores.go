package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Store is a remote File Search store, the backing container for a
// channel's documents.
type Store struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
	CreateTime  string `json:"createTime,omitempty"`
}

// DeleteStatus classifies the outcome of a remote store deletion. The
// distinction matters: trash purge may only remove local records for
// stores confirmed gone (Deleted or AlreadyAbsent), never for Failed.
type DeleteStatus string

const (
	// DeleteStatusDeleted means the remote store existed and was removed.
	DeleteStatusDeleted DeleteStatus = "deleted"

	// DeleteStatusAlreadyAbsent means the remote store was not there,
	// so the desired end state already holds.
	DeleteStatusAlreadyAbsent DeleteStatus = "already_absent"

	// DeleteStatusFailed means the remote state is unknown. The local
	// record must be retained.
	DeleteStatusFailed DeleteStatus = "failed"
)

// DeleteOutcome is the tagged result of DeleteStore. Err is set only for
// DeleteStatusFailed.
type DeleteOutcome struct {
	Status DeleteStatus
	Err    error
}

// Confirmed reports whether the remote store is known to be gone.
func (o DeleteOutcome) Confirmed() bool {
	return o.Status == DeleteStatusDeleted || o.Status == DeleteStatusAlreadyAbsent
}

// CreateStore creates a remote File Search store with the given display
// name and returns it. The returned Name is the external store ID bound
// to the local channel record.
func (c *Client) CreateStore(ctx context.Context, displayName string) (*Store, error) {
	if displayName == "" {
		return nil, fmt.Errorf("display name is required")
	}

	return withRetry(ctx, c, "creating store", func(ctx context.Context) (*Store, error) {
		body, err := json.Marshal(map[string]string{"displayName": displayName})
		if err != nil {
			return nil, fmt.Errorf("encoding request: %w", err)
		}

		var store Store
		if err := c.doJSON(ctx, http.MethodPost, "/v1beta/fileSearchStores", body, &store); err != nil {
			return nil, err
		}
		return &store, nil
	})
}

// GetStore fetches a remote store. Returns nil (with a logged reason)
// when the store is absent or the lookup failed; callers treat both as
// "not usable right now".
func (c *Client) GetStore(ctx context.Context, name string) *Store {
	var store Store
	err := c.doJSON(ctx, http.MethodGet, "/v1beta/"+name, nil, &store)
	if err != nil {
		c.logger.Debug("store lookup failed", "store", name, "error", err)
		return nil
	}
	return &store
}

// ListStores returns all remote File Search stores.
func (c *Client) ListStores(ctx context.Context) ([]Store, error) {
	return withRetry(ctx, c, "listing stores", func(ctx context.Context) ([]Store, error) {
		var stores []Store
		pageToken := ""
		for {
			path := "/v1beta/fileSearchStores"
			if pageToken != "" {
				path += "?pageToken=" + url.QueryEscape(pageToken)
			}

			var resp struct {
				FileSearchStores []Store `json:"fileSearchStores"`
				NextPageToken    string  `json:"nextPageToken"`
			}
			if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
				return nil, err
			}
			stores = append(stores, resp.FileSearchStores...)
			if resp.NextPageToken == "" {
				return stores, nil
			}
			pageToken = resp.NextPageToken
		}
	})
}

// DeleteStore removes a remote store and classifies what happened.
// force also removes the store's documents.
//
// No retry here: an ambiguous failure must come back as
// DeleteStatusFailed so the caller retains the local record and a later
// cleanup run tries again.
func (c *Client) DeleteStore(ctx context.Context, name string, force bool) DeleteOutcome {
	path := "/v1beta/" + name
	if force {
		path += "?force=true"
	}

	status, _, err := c.do(ctx, http.MethodDelete, path, nil)
	switch {
	case err != nil:
		return DeleteOutcome{Status: DeleteStatusFailed, Err: fmt.Errorf("deleting store %s: %w", name, err)}
	case status == http.StatusOK:
		return DeleteOutcome{Status: DeleteStatusDeleted}
	case status == http.StatusNotFound:
		return DeleteOutcome{Status: DeleteStatusAlreadyAbsent}
	default:
		return DeleteOutcome{Status: DeleteStatusFailed,
			Err: fmt.Errorf("deleting store %s: unexpected status %d", name, status)}
	}
}

// do executes one REST request and returns the status code and body.
// Non-2xx responses are not errors here; callers classify them.
func (c *Client) do(ctx context.Context, method, path string, body []byte) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("x-goog-api-key", c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("reading response: %w", err)
	}

	c.logger.Debug("gemini REST call",
		"method", method, "path", path,
		"status", resp.StatusCode, "elapsed", time.Since(start))

	return resp.StatusCode, respBody, nil
}

// doJSON executes a request and decodes a 2xx JSON response into out.
// Non-2xx responses become errors carrying the status and body excerpt.
func (c *Client) doJSON(ctx context.Context, method, path string, body []byte, out any) error {
	status, respBody, err := c.do(ctx, method, path, body)
	if err != nil {
		return err
	}
	if status < 200 || status > 299 {
		return fmt.Errorf("status %d: %s", status, excerpt(respBody))
	}
	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}

// excerpt truncates an error body for log and error messages.
func excerpt(b []byte) string {
	const n = 200
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
