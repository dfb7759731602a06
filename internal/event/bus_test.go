package event

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_Subscribe(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	received := make(chan Event, 1)
	unsub := bus.Subscribe(TaskCompleted, func(e Event) {
		received <- e
	})
	defer unsub()

	bus.Publish(Event{Type: TaskCompleted, Data: TaskData{RunID: "r1", TaskID: "1"}})

	select {
	case e := <-received:
		assert.Equal(t, TaskCompleted, e.Type)
		assert.Equal(t, "1", e.Data.(TaskData).TaskID)
		assert.False(t, e.Time.IsZero())
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestBus_SubscribeAll(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	var count int32
	var wg sync.WaitGroup
	wg.Add(3)
	unsub := bus.SubscribeAll(func(e Event) {
		atomic.AddInt32(&count, 1)
		wg.Done()
	})
	defer unsub()

	bus.Publish(Event{Type: RunStarted})
	bus.Publish(Event{Type: PlanDrafted})
	bus.Publish(Event{Type: RegistryReloaded})

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		assert.Equal(t, int32(3), atomic.LoadInt32(&count))
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for events")
	}
}

func TestBus_PublishSyncOrder(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	var got []string
	bus.Subscribe(RunStateChanged, func(e Event) {
		got = append(got, e.Data.(RunStateData).To)
	})

	for _, state := range []string{"awaiting_approval", "applying", "completed"} {
		bus.PublishSync(Event{Type: RunStateChanged, Data: RunStateData{To: state}})
	}
	assert.Equal(t, []string{"awaiting_approval", "applying", "completed"}, got)
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	var typed, global int32
	unsubTyped := bus.Subscribe(RunStarted, func(e Event) { atomic.AddInt32(&typed, 1) })
	unsubGlobal := bus.SubscribeAll(func(e Event) { atomic.AddInt32(&global, 1) })

	bus.PublishSync(Event{Type: RunStarted})
	unsubTyped()
	unsubGlobal()
	bus.PublishSync(Event{Type: RunStarted})

	assert.Equal(t, int32(1), atomic.LoadInt32(&typed))
	assert.Equal(t, int32(1), atomic.LoadInt32(&global))
}

func TestBus_Stream(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, err := bus.Stream(ctx)
	require.NoError(t, err)

	bus.Publish(Event{Type: ScopeDenied, Data: ScopeDeniedData{RunID: "r", Path: "../../etc/passwd", Reason: "outside"}})

	select {
	case payload := <-stream:
		var decoded struct {
			Type EventType       `json:"type"`
			Data ScopeDeniedData `json:"data"`
		}
		require.NoError(t, json.Unmarshal(payload, &decoded))
		assert.Equal(t, ScopeDenied, decoded.Type)
		assert.Equal(t, "../../etc/passwd", decoded.Data.Path)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for streamed event")
	}

	cancel()
	select {
	case _, open := <-stream:
		assert.False(t, open)
	case <-time.After(time.Second):
		t.Fatal("stream not closed after cancel")
	}
}

func TestBus_Closed(t *testing.T) {
	bus := NewBus()
	require.NoError(t, bus.Close())
	require.NoError(t, bus.Close())

	called := false
	unsub := bus.Subscribe(RunStarted, func(e Event) { called = true })
	unsub()
	bus.PublishSync(Event{Type: RunStarted})
	assert.False(t, called)
}
