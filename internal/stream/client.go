// Package stream consumes the agent's NDJSON event stream: one streaming
// HTTP exchange per session, decoded incrementally into an append-only log.
package stream

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"notebridge/internal/agentapi"
	"notebridge/internal/ndjson"
	"notebridge/internal/protocol"
)

// Status is the stream's lifecycle state
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusDone    Status = "done"
	StatusError   Status = "error"
)

// ErrAlreadyStreaming is returned by Start while a stream is in flight;
// callers treat it as a no-op.
var ErrAlreadyStreaming = errors.New("stream already in flight")

// Client owns one streaming session exchange. Start is guarded: a second
// call while one stream is in flight does nothing. Decoded events land in
// the Log; a record that fails to parse is dropped, never fatal.
type Client struct {
	api    *agentapi.Client
	logger *slog.Logger

	mu      sync.Mutex
	log     *Log
	status  Status
	cancel  context.CancelFunc
	stopped bool
}

// NewClient creates an idle stream client
func NewClient(api *agentapi.Client, logger *slog.Logger) *Client {
	return &Client{
		api:    api,
		logger: logger,
		log:    NewLog(),
		status: StatusIdle,
	}
}

// Log returns the append-only event log
func (c *Client) Log() *Log {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.log
}

// Status returns the stream's lifecycle state
func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Start opens the streaming exchange and consumes it on a background
// goroutine. A second Start while one is in flight returns
// ErrAlreadyStreaming. Starting after a terminal state begins a fresh log.
func (c *Client) Start(ctx context.Context, req protocol.StartSessionRequest) error {
	c.mu.Lock()
	if c.status == StatusLoading {
		c.mu.Unlock()
		return ErrAlreadyStreaming
	}
	c.log = NewLog()
	c.status = StatusLoading
	c.stopped = false

	streamCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	log := c.log
	c.mu.Unlock()

	c.logger.Info("starting session stream", "question", req.Question)

	go c.consume(streamCtx, req, log)
	return nil
}

// Stop aborts the transport; idempotent. A stopped stream does not enter the
// error state: only involuntary aborts do.
func (c *Client) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	c.stopped = true
	if c.status == StatusLoading {
		c.status = StatusIdle
	}
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

func (c *Client) consume(ctx context.Context, req protocol.StartSessionRequest, log *Log) {
	defer log.signal()

	body, err := c.api.OpenStream(ctx, req)
	if err != nil {
		c.finish(StatusError, log)
		c.logger.Error("failed to open session stream", "error", err)
		return
	}
	defer body.Close()

	dec := ndjson.NewDecoder(body)
	for {
		data, err := dec.Next()
		if err == io.EOF {
			c.finish(StatusDone, log)
			c.logger.Info("session stream ended", "events", log.Len())
			return
		}
		if err != nil {
			if ctx.Err() != nil && c.wasStopped() {
				// Voluntary abort: state already reset by Stop.
				return
			}
			c.finish(StatusError, log)
			c.logger.Error("session stream failed", "error", err)
			return
		}

		evt, err := protocol.ParseEvent(data)
		if err != nil {
			// Drop only this record; the stream continues.
			c.logger.Warn("dropping malformed stream record",
				"record", dec.LineNum(),
				"error", err)
			continue
		}

		log.Append(evt)

		if evt.Event == protocol.EventSessionCompleted {
			c.finish(StatusDone, log)
			c.logger.Info("session completed", "events", log.Len())
			return
		}
	}
}

func (c *Client) finish(status Status, log *Log) {
	c.mu.Lock()
	// Only the goroutine that owns the current log may move the state.
	if c.log == log && c.status == StatusLoading {
		c.status = status
	}
	c.mu.Unlock()
}

func (c *Client) wasStopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopped
}
