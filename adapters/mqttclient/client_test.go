// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package mqttclient

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	reactorbridge "github.com/buke/reactor-bridge"
)

func newTestBridge(t *testing.T) *reactorbridge.Bridge {
	t.Helper()
	bridge, err := reactorbridge.New(reactorbridge.WithWorkers(1))
	require.NoError(t, err)
	require.NoError(t, bridge.Start())
	t.Cleanup(func() { bridge.Shutdown() })
	return bridge
}

func TestConfig_Defaults(t *testing.T) {
	opts, err := NewConfig().build("tcp://localhost:1883")
	require.NoError(t, err)
	require.Len(t, opts.Servers, 1)
	require.Equal(t, "tcp://localhost:1883", opts.Servers[0].String())
	require.True(t, strings.HasPrefix(opts.ClientID, "rb-"))
	require.True(t, opts.CleanSession)
	require.True(t, opts.AutoReconnect)
}

func TestConfig_MultipleBrokers(t *testing.T) {
	opts, err := NewConfig().build("tcp://a:1883; tcp://b:1883")
	require.NoError(t, err)
	require.Len(t, opts.Servers, 2)
}

func TestConfig_Settings(t *testing.T) {
	opts, err := NewConfig().
		ClientID("fixed-id").
		Credentials("user", "pass").
		CleanSession(false).
		AutoReconnect(false).
		KeepAlive(30 * time.Second).
		Will("status/offline", []byte("gone"), 1, true).
		build("tcp://localhost:1883")
	require.NoError(t, err)
	require.Equal(t, "fixed-id", opts.ClientID)
	require.Equal(t, "user", opts.Username)
	require.Equal(t, "pass", opts.Password)
	require.False(t, opts.CleanSession)
	require.False(t, opts.AutoReconnect)
	require.True(t, opts.WillEnabled)
	require.Equal(t, "status/offline", opts.WillTopic)
	require.Equal(t, []byte("gone"), opts.WillPayload)
	require.Equal(t, byte(1), opts.WillQos)
	require.True(t, opts.WillRetained)
}

func TestConfig_Errors(t *testing.T) {
	_, err := NewConfig().build("")
	require.Error(t, err)

	_, err = NewConfig().build(" ; ")
	require.Error(t, err)

	_, err = NewConfig().AddRootCertificate([]byte("not a pem")).build("tcp://localhost:1883")
	require.Error(t, err)

	_, err = NewConfig().Certificate([]byte("bad"), []byte("bad")).build("tcp://localhost:1883")
	require.Error(t, err)
}

func TestClient_OperationsRequireOpen(t *testing.T) {
	bridge := newTestBridge(t)
	client := NewClient(bridge)

	ctx := context.Background()
	require.ErrorIs(t, client.Publish(ctx, "t", 0, false, nil), ErrNotOpen)
	require.ErrorIs(t, client.Subscribe(ctx, "t", 0, 0), ErrNotOpen)
	require.ErrorIs(t, client.Unsubscribe(ctx, "t"), ErrNotOpen)
	require.False(t, client.IsOpen())
	client.Close() // no-op before Open
}

func TestClient_OpenRejectsBadConfig(t *testing.T) {
	bridge := newTestBridge(t)
	client := NewClient(bridge, WithConfig(NewConfig().AddRootCertificate([]byte("junk"))))

	err := client.Open(context.Background(), "tcp://localhost:1883")
	require.Error(t, err)
}

func TestClient_AsyncErrorReachesTarget(t *testing.T) {
	bridge := newTestBridge(t)
	client := NewClient(bridge)

	var mu sync.Mutex
	var results []reactorbridge.Result
	target := bridge.Bind(func(r reactorbridge.Result) {
		mu.Lock()
		results = append(results, r)
		mu.Unlock()
	})

	_, err := client.PublishAsync("t", 0, false, []byte("x"), target)
	require.NoError(t, err)

	pumpUntil(t, bridge, &mu, &results, 1)
	require.ErrorIs(t, results[0].Err, ErrNotOpen)
}

func TestClient_EmitForwardsToHostThread(t *testing.T) {
	bridge := newTestBridge(t)
	client := NewClient(bridge)

	var mu sync.Mutex
	var results []reactorbridge.Result
	target := bridge.Bind(func(r reactorbridge.Result) {
		mu.Lock()
		results = append(results, r)
		mu.Unlock()
	})

	// Fire the forwarding path directly, the way a paho callback would.
	client.emit(target, &Message{Topic: "sensors/a", Payload: []byte("42")})

	pumpUntil(t, bridge, &mu, &results, 1)
	require.NoError(t, results[0].Err)
	msg := results[0].Value.(*Message)
	require.Equal(t, "sensors/a", msg.Topic)
	require.Equal(t, "42", msg.Text())
}

func TestClient_ConnectionEventsGoToBoundTarget(t *testing.T) {
	bridge := newTestBridge(t)
	client := NewClient(bridge)

	var mu sync.Mutex
	var results []reactorbridge.Result
	target := bridge.Bind(func(r reactorbridge.Result) {
		mu.Lock()
		results = append(results, r)
		mu.Unlock()
	})

	// Without a bound target events are dropped silently.
	client.emitEvent(ConnectionEvent{Connected: true})

	client.OnConnectionEvent(target)
	client.emitEvent(ConnectionEvent{Connected: false, Reason: "broker went away"})

	pumpUntil(t, bridge, &mu, &results, 1)
	require.Len(t, results, 1)
	ev := results[0].Value.(ConnectionEvent)
	require.False(t, ev.Connected)
	require.Equal(t, "broker went away", ev.Reason)
}

func TestWaitToken_ContextExpiry(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := waitToken(ctx, newStuckToken())
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func pumpUntil(t *testing.T, bridge *reactorbridge.Bridge, mu *sync.Mutex, results *[]reactorbridge.Result, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		bridge.Pump()
		mu.Lock()
		got := len(*results)
		mu.Unlock()
		if got >= n {
			return
		}
		select {
		case <-bridge.Wake():
		case <-time.After(10 * time.Millisecond):
		}
	}
	t.Fatalf("expected %d results before deadline", n)
}

// stuckToken never completes; it stands in for a broker that never
// answers.
type stuckToken struct {
	done chan struct{}
}

func newStuckToken() *stuckToken {
	return &stuckToken{done: make(chan struct{})}
}

func (s *stuckToken) Wait() bool                       { <-s.done; return true }
func (s *stuckToken) WaitTimeout(d time.Duration) bool { time.Sleep(d); return false }
func (s *stuckToken) Done() <-chan struct{}            { return s.done }
func (s *stuckToken) Error() error                     { return nil }
