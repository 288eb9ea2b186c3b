package realtime

import (
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erazemk/najdeno/internal/model"
)

func startTestNATSServer(t *testing.T) *natsserver.Server {
	t.Helper()
	opts := &natsserver.Options{
		Host:   "127.0.0.1",
		Port:   -1,
		NoLog:  true,
		NoSigs: true,
	}

	server, err := natsserver.NewServer(opts)
	require.NoError(t, err)

	go server.Start()
	if !server.ReadyForConnections(5 * time.Second) {
		t.Fatal("NATS server not ready")
	}

	t.Cleanup(func() {
		server.Shutdown()
		server.WaitForShutdown()
	})
	return server
}

func newBridge(t *testing.T, url string) (*NATSBridge, *Hub) {
	t.Helper()
	nc, err := nats.Connect(url)
	require.NoError(t, err)
	t.Cleanup(nc.Close)

	hub := NewHub()
	bridge, err := NewNATSBridge(nc, hub)
	require.NoError(t, err)
	require.NoError(t, nc.Flush())
	t.Cleanup(func() { bridge.Close() })
	return bridge, hub
}

func TestNATSBridgeRelaysBetweenInstances(t *testing.T) {
	server := startTestNATSServer(t)
	a, hubA := newBridge(t, server.ClientURL())
	_, hubB := newBridge(t, server.ClientURL())

	fromA, cancelA := hubA.Subscribe(4)
	defer cancelA()
	fromB, cancelB := hubB.Subscribe(4)
	defer cancelB()

	date := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	a.Publish(model.Item{ID: "item-1", Title: "Scarf", Status: model.ItemStatusFound, Date: date})
	require.NoError(t, a.Flush())

	local := recv(t, fromA)
	assert.Equal(t, "item-1", local.ID)

	remote := recv(t, fromB)
	assert.Equal(t, "Scarf", remote.Title)
	assert.True(t, date.Equal(remote.Date))

	// The publishing instance must not see its own event twice.
	select {
	case dup := <-fromA:
		t.Fatalf("unexpected duplicate delivery of %s", dup.ID)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestNATSBridgeIgnoresMalformed(t *testing.T) {
	server := startTestNATSServer(t)
	_, hub := newBridge(t, server.ClientURL())
	ch, cancel := hub.Subscribe(1)
	defer cancel()

	nc, err := nats.Connect(server.ClientURL())
	require.NoError(t, err)
	defer nc.Close()
	require.NoError(t, nc.Publish(Subject, []byte("{not json")))
	require.NoError(t, nc.Flush())

	select {
	case item := <-ch:
		t.Fatalf("malformed event delivered as %+v", item)
	case <-time.After(200 * time.Millisecond):
	}
}
