// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

// Package httpclient is the HTTP protocol adapter. It is an ordinary
// request/response wrapper built on top of the reactor bridge: requests
// execute on the bridge's worker pool and responses come back through the
// completion router, on the host thread, to the callback target the host
// bound for the call.
package httpclient

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	reactorbridge "github.com/buke/reactor-bridge"
)

// Client issues HTTP requests through the bridge.
type Client struct {
	bridge  *reactorbridge.Bridge
	logger  *slog.Logger
	initCfg *Config

	mu sync.Mutex
	hc *http.Client
	rt runtimeConfig

	// seqMu serializes async requests when GuaranteeOrder is set, so a
	// slow request cannot be overtaken by a later one. Held only inside
	// worker ops, never on the host thread.
	seqMu sync.Mutex

	// pending maps the caller's request id to the bridge task, for the
	// cancellation entry point.
	pendingMu sync.Mutex
	pending   map[uint64]reactorbridge.TaskID
}

// NewClient creates a client on top of a started bridge.
func NewClient(bridge *reactorbridge.Bridge, opts ...func(*Client)) (*Client, error) {
	c := &Client{
		bridge:  bridge,
		logger:  slog.Default(),
		pending: make(map[uint64]reactorbridge.TaskID),
	}
	for _, opt := range opts {
		opt(c)
	}
	cfg := c.initCfg
	if cfg == nil {
		cfg = NewConfig()
	}
	if err := c.Reconfig(cfg); err != nil {
		return nil, err
	}
	return c, nil
}

// WithLogger configures the logger for the client.
func WithLogger(logger *slog.Logger) func(*Client) {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithConfig applies an initial configuration.
func WithConfig(cfg *Config) func(*Client) {
	return func(c *Client) {
		c.initCfg = cfg
	}
}

// Reconfig replaces the transport configuration. In-flight requests keep
// the transport they started with.
func (c *Client) Reconfig(cfg *Config) error {
	hc, rt, err := cfg.build()
	if err != nil {
		return fmt.Errorf("failed to build http client: %w", err)
	}
	c.mu.Lock()
	c.hc = hc
	c.rt = rt
	c.mu.Unlock()
	return nil
}

// Request starts building a request. The method must be a valid HTTP
// method; with HTTPSOnly configured, plain-http URLs are rejected here,
// before anything is submitted.
func (c *Client) Request(method, rawURL string) (*Request, error) {
	if !validMethod(method) {
		return nil, fmt.Errorf("invalid http method %q", method)
	}
	c.mu.Lock()
	hc, rt := c.hc, c.rt
	c.mu.Unlock()
	if rt.httpsOnly && !isHTTPS(rawURL) {
		return nil, fmt.Errorf("https-only client rejects url %q", rawURL)
	}
	return newRequest(c, hc, rt, method, rawURL), nil
}

// Cancel flags the async request the caller registered under id.
// Best-effort, like the bridge cancellation it forwards to.
func (c *Client) Cancel(id uint64) bool {
	c.pendingMu.Lock()
	taskID, ok := c.pending[id]
	delete(c.pending, id)
	c.pendingMu.Unlock()
	if !ok {
		return false
	}
	return c.bridge.Cancel(taskID)
}

// trackPendingSubmit runs submit and records the resulting task id, all
// under pendingMu. Submission does not block, and holding the lock across
// it means the op's clearPending cannot run before the entry exists, no
// matter how fast the worker finishes.
func (c *Client) trackPendingSubmit(id uint64, submit func() (reactorbridge.TaskID, error)) (reactorbridge.TaskID, error) {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	taskID, err := submit()
	if err != nil {
		return 0, err
	}
	c.pending[id] = taskID
	return taskID, nil
}

func (c *Client) clearPending(id uint64) {
	c.pendingMu.Lock()
	delete(c.pending, id)
	c.pendingMu.Unlock()
}

func validMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut,
		http.MethodPatch, http.MethodDelete, http.MethodOptions, http.MethodTrace:
		return true
	}
	return false
}

func isHTTPS(rawURL string) bool {
	u, err := url.Parse(rawURL)
	return err == nil && strings.EqualFold(u.Scheme, "https")
}
