package sse

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/fwojciec/cite"
)

// Interface compliance checks.
var (
	_ cite.JobSubmitter     = (*Client)(nil)
	_ cite.Transport        = (*Client)(nil)
	_ cite.DocumentResolver = (*Client)(nil)
)

// Client talks to a cite job server over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures a [Client].
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client. The client must not set a
// response timeout shorter than the longest expected stream.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New creates a [Client] for the server at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: http.DefaultClient,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Submit posts a query and returns the job carrying its answer.
func (c *Client) Submit(ctx context.Context, query, conversationID string) (cite.Job, error) {
	body, err := json.Marshal(chatRequest{Query: query, ConversationID: conversationID})
	if err != nil {
		return cite.Job{}, fmt.Errorf("sse: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+chatPath, bytes.NewReader(body))
	if err != nil {
		return cite.Job{}, fmt.Errorf("sse: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return cite.Job{}, fmt.Errorf("sse: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return cite.Job{}, parseHTTPError(resp)
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return cite.Job{}, fmt.Errorf("sse: decode chat response: %w", err)
	}
	if out.JobID == "" {
		return cite.Job{}, fmt.Errorf("sse: chat response without jobId")
	}
	return cite.Job{ID: out.JobID, ConversationID: out.ConversationID}, nil
}

// Subscribe opens the event stream of jobID. The returned subscription reads
// until the server closes the stream; cancelling ctx aborts it.
func (c *Client) Subscribe(ctx context.Context, jobID string) (cite.Subscription, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+streamPath+url.PathEscape(jobID), nil)
	if err != nil {
		return nil, fmt.Errorf("sse: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sse: %w", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil, fmt.Errorf("sse: job %s: %w", jobID, cite.ErrUnknownJob)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, parseHTTPError(resp)
	}
	return NewReader(resp.Body), nil
}

// Resolve returns the server URL of a document page. It does not contact
// the server.
func (c *Client) Resolve(_ context.Context, documentID string, pageNumber int) (cite.Document, error) {
	if documentID == "" {
		return cite.Document{}, fmt.Errorf("sse: empty document id: %w", cite.ErrDocumentNotFound)
	}
	loc := c.baseURL + pdfPath + url.PathEscape(documentID)
	if pageNumber > 0 {
		loc += fmt.Sprintf("#page=%d", pageNumber)
	}
	return cite.Document{
		ID:         documentID,
		PageNumber: pageNumber,
		Location:   loc,
	}, nil
}

func parseHTTPError(resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("sse: HTTP %d (failed to read body: %w)", resp.StatusCode, err)
	}
	var apiErr errorResponse
	if err := json.Unmarshal(body, &apiErr); err != nil || apiErr.Detail == "" {
		return fmt.Errorf("sse: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return fmt.Errorf("sse: HTTP %d: %s", resp.StatusCode, apiErr.Detail)
}
