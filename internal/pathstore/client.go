package pathstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"time"
)

// RetryableError marks a pathstore failure worth retrying: rate limiting,
// server errors and transport failures.
type RetryableError struct {
	StatusCode int
	Err        error
}

func (e *RetryableError) Error() string {
	return "pathstore: retryable: " + e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// Client communicates with the pathstore HTTP API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// NodeRequest is the body for PUT /kv/{key}.
type NodeRequest struct {
	Value     any     `json:"value"`
	MergeMode string  `json:"merge_mode,omitempty"`
	Salience  float64 `json:"salience,omitempty"`
	Source    string  `json:"source,omitempty"`
}

// LinkRequest is the body for PUT /links.
type LinkRequest struct {
	From          string  `json:"from_key"`
	To            string  `json:"to_key"`
	Weight        float64 `json:"weight"`
	Summary       string  `json:"summary,omitempty"`
	Bidirectional bool    `json:"bidirectional,omitempty"`
}

// PutNode stores or updates a node at the given path.
func (c *Client) PutNode(ctx context.Context, key string, req NodeRequest) error {
	if err := c.do(ctx, http.MethodPut, "/kv/"+key, req, http.StatusOK, http.StatusCreated); err != nil {
		return fmt.Errorf("put node %s: %w", key, err)
	}
	return nil
}

// DeleteNode deletes a node and optionally its children. A missing node is
// not an error.
func (c *Client) DeleteNode(ctx context.Context, key string, recursive bool) error {
	path := "/kv/" + key
	if recursive {
		path += "?children=true"
	}
	if err := c.do(ctx, http.MethodDelete, path, nil, http.StatusOK, http.StatusNoContent, http.StatusNotFound); err != nil {
		return fmt.Errorf("delete node %s: %w", key, err)
	}
	return nil
}

// PutLink creates or updates an edge between two nodes.
func (c *Client) PutLink(ctx context.Context, req LinkRequest) error {
	if err := c.do(ctx, http.MethodPut, "/links", req, http.StatusOK, http.StatusCreated); err != nil {
		return fmt.Errorf("put link: %w", err)
	}
	return nil
}

// Close releases idle connections.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

func (c *Client) do(ctx context.Context, method, path string, body any, okCodes ...int) error {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal: %w", err)
		}
		r = bytes.NewReader(b)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return &RetryableError{Err: err}
	}
	defer resp.Body.Close()
	if slices.Contains(okCodes, resp.StatusCode) {
		return nil
	}

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	statusErr := fmt.Errorf("status %d: %s", resp.StatusCode, string(respBody))
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return &RetryableError{StatusCode: resp.StatusCode, Err: statusErr}
	}
	return statusErr
}

// IsRetryable reports whether err wraps a RetryableError.
func IsRetryable(err error) bool {
	var retryErr *RetryableError
	return errors.As(err, &retryErr)
}
