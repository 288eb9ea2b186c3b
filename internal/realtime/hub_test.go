package realtime

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erazemk/najdeno/internal/model"
)

func recv(t *testing.T, ch <-chan model.Item) model.Item {
	t.Helper()
	select {
	case item, ok := <-ch:
		require.True(t, ok, "channel closed")
		return item
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for item")
		return model.Item{}
	}
}

func TestHubDeliversInOrder(t *testing.T) {
	hub := NewHub()
	a, cancelA := hub.Subscribe(4)
	defer cancelA()
	b, cancelB := hub.Subscribe(4)
	defer cancelB()

	hub.Publish(model.Item{ID: "1"})
	hub.Publish(model.Item{ID: "2"})

	for _, ch := range []<-chan model.Item{a, b} {
		assert.Equal(t, "1", recv(t, ch).ID)
		assert.Equal(t, "2", recv(t, ch).ID)
	}
	assert.Equal(t, 2, hub.Subscribers())
}

func TestHubCancel(t *testing.T) {
	hub := NewHub()
	ch, cancel := hub.Subscribe(1)
	cancel()
	cancel()

	_, ok := <-ch
	assert.False(t, ok)
	assert.Equal(t, 0, hub.Subscribers())

	// Publishing with no subscribers is a no-op.
	hub.Publish(model.Item{ID: "x"})
}

func TestHubDropsForSlowSubscriber(t *testing.T) {
	hub := NewHub()
	var drops int
	hub.OnDrop = func() { drops++ }

	slow, cancel := hub.Subscribe(1)
	defer cancel()

	hub.Publish(model.Item{ID: "1"})
	hub.Publish(model.Item{ID: "2"})

	assert.Equal(t, uint64(1), hub.Dropped())
	assert.Equal(t, 1, drops)
	assert.Equal(t, "1", recv(t, slow).ID)
}

func TestHubClose(t *testing.T) {
	hub := NewHub()
	ch, cancel := hub.Subscribe(1)
	hub.Close()
	cancel()

	_, ok := <-ch
	assert.False(t, ok)

	late, _ := hub.Subscribe(1)
	_, ok = <-late
	assert.False(t, ok, "subscribing to a closed hub returns a closed channel")

	hub.Publish(model.Item{ID: "ignored"})
	hub.Close()
}

func TestHubConcurrentPublish(t *testing.T) {
	hub := NewHub()
	ch, cancel := hub.Subscribe(100)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				hub.Publish(model.Item{ID: "x"})
			}
		}()
	}
	wg.Wait()
	assert.Len(t, ch, 100)
}
