// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

// Package mqttclient is the MQTT protocol adapter. Broker operations run
// on the bridge's worker pool; inbound publications and connection events
// arrive on the paho client's own goroutines and are forwarded through
// the bridge so the host only ever sees them on its own thread.
package mqttclient

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	reactorbridge "github.com/buke/reactor-bridge"
)

// ErrNotOpen is returned by broker operations before Open succeeds.
var ErrNotOpen = errors.New("mqtt client is not open")

// Client talks to one broker through the bridge.
type Client struct {
	bridge *reactorbridge.Bridge
	logger *slog.Logger
	cfg    *Config

	mu          sync.Mutex
	mc          mqtt.Client
	eventTarget reactorbridge.Target
	hasEvents   bool
}

// NewClient creates a client on top of a started bridge. The connection
// is established by Open.
func NewClient(bridge *reactorbridge.Bridge, opts ...func(*Client)) *Client {
	c := &Client{
		bridge: bridge,
		logger: slog.Default(),
		cfg:    NewConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithLogger configures the logger for the client.
func WithLogger(logger *slog.Logger) func(*Client) {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithConfig applies a connection configuration.
func WithConfig(cfg *Config) func(*Client) {
	return func(c *Client) {
		c.cfg = cfg
	}
}

// OnConnectionEvent routes connect and connection-lost notifications to
// target. Must be set before Open to observe the initial connect.
func (c *Client) OnConnectionEvent(target reactorbridge.Target) {
	c.mu.Lock()
	c.eventTarget = target
	c.hasEvents = true
	c.mu.Unlock()
}

// Open connects to the broker, blocking until the handshake finishes or
// ctx expires. rawURL may list several broker addresses separated by ';'.
func (c *Client) Open(ctx context.Context, rawURL string) error {
	opts, err := c.cfg.build(rawURL)
	if err != nil {
		return err
	}
	opts.SetOnConnectHandler(func(mqtt.Client) {
		c.emitEvent(ConnectionEvent{Connected: true})
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		c.emitEvent(ConnectionEvent{Connected: false, Reason: err.Error()})
	})

	mc := mqtt.NewClient(opts)
	if err := waitToken(ctx, mc.Connect()); err != nil {
		return err
	}
	c.mu.Lock()
	c.mc = mc
	c.mu.Unlock()
	return nil
}

// OpenAsync connects on the worker pool; the outcome goes to target.
func (c *Client) OpenAsync(rawURL string, target reactorbridge.Target) (reactorbridge.TaskID, error) {
	return c.bridge.Submit(func(ctx context.Context) (any, error) {
		return nil, c.Open(ctx, rawURL)
	}, target)
}

// IsOpen reports whether the client currently holds a broker connection.
func (c *Client) IsOpen() bool {
	c.mu.Lock()
	mc := c.mc
	c.mu.Unlock()
	return mc != nil && mc.IsConnected()
}

// Close disconnects from the broker. Safe to call on an unopened client.
func (c *Client) Close() {
	c.mu.Lock()
	mc := c.mc
	c.mc = nil
	c.mu.Unlock()
	if mc != nil {
		mc.Disconnect(250)
	}
}

// Publish sends one message, blocking until the broker acknowledges it at
// the requested QoS or ctx expires.
func (c *Client) Publish(ctx context.Context, topic string, qos byte, retained bool, payload []byte) error {
	mc, err := c.open()
	if err != nil {
		return err
	}
	return waitToken(ctx, mc.Publish(topic, qos, retained, payload))
}

// PublishAsync publishes on the worker pool; the outcome goes to target.
func (c *Client) PublishAsync(topic string, qos byte, retained bool, payload []byte, target reactorbridge.Target) (reactorbridge.TaskID, error) {
	return c.bridge.Submit(func(ctx context.Context) (any, error) {
		return nil, c.Publish(ctx, topic, qos, retained, payload)
	}, target)
}

// Subscribe registers a topic filter. Matching messages are delivered to
// msgTarget on the host thread.
func (c *Client) Subscribe(ctx context.Context, filter string, qos byte, msgTarget reactorbridge.Target) error {
	mc, err := c.open()
	if err != nil {
		return err
	}
	handler := func(_ mqtt.Client, m mqtt.Message) {
		c.emit(msgTarget, newMessage(m))
	}
	return waitToken(ctx, mc.Subscribe(filter, qos, handler))
}

// SubscribeAsync subscribes on the worker pool; the outcome goes to
// ackTarget, and matching messages to msgTarget.
func (c *Client) SubscribeAsync(filter string, qos byte, msgTarget, ackTarget reactorbridge.Target) (reactorbridge.TaskID, error) {
	return c.bridge.Submit(func(ctx context.Context) (any, error) {
		return nil, c.Subscribe(ctx, filter, qos, msgTarget)
	}, ackTarget)
}

// Unsubscribe removes topic filters.
func (c *Client) Unsubscribe(ctx context.Context, filters ...string) error {
	mc, err := c.open()
	if err != nil {
		return err
	}
	return waitToken(ctx, mc.Unsubscribe(filters...))
}

// UnsubscribeAsync unsubscribes on the worker pool; the outcome goes to
// target.
func (c *Client) UnsubscribeAsync(target reactorbridge.Target, filters ...string) (reactorbridge.TaskID, error) {
	return c.bridge.Submit(func(ctx context.Context) (any, error) {
		return nil, c.Unsubscribe(ctx, filters...)
	}, target)
}

func (c *Client) open() (mqtt.Client, error) {
	c.mu.Lock()
	mc := c.mc
	c.mu.Unlock()
	if mc == nil {
		return nil, ErrNotOpen
	}
	return mc, nil
}

func (c *Client) emitEvent(ev ConnectionEvent) {
	c.mu.Lock()
	target, ok := c.eventTarget, c.hasEvents
	c.mu.Unlock()
	if !ok {
		return
	}
	c.emit(target, ev)
}

// emit forwards a value produced on a paho goroutine to the host by
// submitting an already-resolved op. Dropped, with a log line, if the
// bridge refuses it; events have no caller to report failure to.
func (c *Client) emit(target reactorbridge.Target, value any) {
	_, err := c.bridge.Submit(func(context.Context) (any, error) {
		return value, nil
	}, target)
	if err != nil {
		c.logger.Warn("Dropped mqtt event", "error", err)
	}
}

// waitToken blocks on a paho token, honoring ctx. An expired ctx abandons
// the wait; the operation itself may still finish at the broker.
func waitToken(ctx context.Context, token mqtt.Token) error {
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}
