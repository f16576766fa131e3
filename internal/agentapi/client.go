package agentapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"notebridge/internal/protocol"
)

// Config holds the connection settings for the agent service
type Config struct {
	BaseURL  string
	Username string
	Password string
	// Timeout bounds answer submission and feedback posts. The streaming
	// request is never bounded by it; the stream lives until cancelled.
	Timeout time.Duration
}

// Client talks to the agent service: one streaming session-start exchange
// plus plain request/response calls for answers and feedback.
type Client struct {
	cfg    Config
	httpc  *http.Client
	stream *http.Client
	logger *slog.Logger
}

// NewClient creates a new agent API client
func NewClient(cfg Config, logger *slog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		cfg:    cfg,
		httpc:  &http.Client{Timeout: timeout},
		stream: &http.Client{},
		logger: logger,
	}
}

// OpenStream starts a session and returns the NDJSON event stream body.
// The caller owns the returned reader and must close it; cancelling ctx
// aborts the transport.
func (c *Client) OpenStream(ctx context.Context, req protocol.StartSessionRequest) (io.ReadCloser, error) {
	httpReq, err := c.newRequest(ctx, "/session/stream", req)
	if err != nil {
		return nil, err
	}

	resp, err := c.stream.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to open session stream: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, fmt.Errorf("session stream rejected: status %d", resp.StatusCode)
	}

	return resp.Body, nil
}

// SubmitAnswer posts a clarification answer for the session
func (c *Client) SubmitAnswer(ctx context.Context, req protocol.AnswerRequest) error {
	return c.post(ctx, "/session/respond", req)
}

// PostFeedback reports a block execution outcome to the agent
func (c *Client) PostFeedback(ctx context.Context, req protocol.FeedbackRequest) error {
	return c.post(ctx, "/session/feedback", req)
}

func (c *Client) post(ctx context.Context, path string, body any) error {
	httpReq, err := c.newRequest(ctx, path, body)
	if err != nil {
		return err
	}

	resp, err := c.httpc.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	// Drain so the connection can be reused.
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s returned status %d", path, resp.StatusCode)
	}

	return nil
}

func (c *Client) newRequest(ctx context.Context, path string, body any) (*http.Request, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if c.cfg.Username != "" {
		httpReq.SetBasicAuth(c.cfg.Username, c.cfg.Password)
	}

	return httpReq, nil
}
