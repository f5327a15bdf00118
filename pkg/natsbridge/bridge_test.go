package natsbridge

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adred-codev/foxbridge/pkg/wire"
)

type fakePublisher struct {
	mu       sync.Mutex
	channels []wire.ChannelSpec
	sent     []sentMessage
	nextID   wire.ChannelID
}

type sentMessage struct {
	channel wire.ChannelID
	payload []byte
}

func (f *fakePublisher) AddChannel(spec wire.ChannelSpec) wire.ChannelID {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.channels = append(f.channels, spec)
	id := f.nextID
	f.nextID++
	return id
}

func (f *fakePublisher) SendMessage(ch wire.ChannelID, _ uint64, payload []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{channel: ch, payload: payload})
}

func newTestBridge(pub Publisher) *Bridge {
	return &Bridge{
		cfg:      Config{Encoding: "json", SchemaName: "Bridged"},
		pub:      pub,
		log:      zerolog.Nop(),
		pool:     newWorkPool(1, 16),
		channels: make(map[string]wire.ChannelID),
	}
}

func TestForwardCreatesChannelOnce(t *testing.T) {
	pub := &fakePublisher{}
	b := newTestBridge(pub)

	b.forward("fox.msg.robot.pose", []byte("one"))
	b.forward("fox.msg.robot.pose", []byte("two"))

	pub.mu.Lock()
	defer pub.mu.Unlock()
	require.Len(t, pub.channels, 1, "one channel per distinct subject")
	assert.Equal(t, "robot/pose", pub.channels[0].Topic)
	assert.Equal(t, "json", pub.channels[0].Encoding)

	require.Len(t, pub.sent, 2)
	assert.Equal(t, "one", string(pub.sent[0].payload))
	assert.Equal(t, "two", string(pub.sent[1].payload))
	assert.Equal(t, pub.sent[0].channel, pub.sent[1].channel)
}

func TestForwardDistinctSubjects(t *testing.T) {
	pub := &fakePublisher{}
	b := newTestBridge(pub)

	b.forward("fox.msg.a", []byte("x"))
	b.forward("fox.msg.b", []byte("y"))

	pub.mu.Lock()
	defer pub.mu.Unlock()
	require.Len(t, pub.channels, 2)
	assert.NotEqual(t, pub.sent[0].channel, pub.sent[1].channel)
}

func TestForwardIgnoresUnmappedSubjects(t *testing.T) {
	pub := &fakePublisher{}
	b := newTestBridge(pub)

	b.forward("unrelated.subject", []byte("x"))
	b.forward("fox.msg.", []byte("y"))

	pub.mu.Lock()
	defer pub.mu.Unlock()
	assert.Empty(t, pub.channels)
	assert.Empty(t, pub.sent)
}

func TestWorkPoolExecutesTasks(t *testing.T) {
	pool := newWorkPool(2, 8)
	ctx, cancel := context.WithCancel(context.Background())
	pool.start(ctx)

	done := make(chan struct{}, 4)
	for i := 0; i < 4; i++ {
		pool.submit(func() { done <- struct{}{} })
	}
	for i := 0; i < 4; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("task did not run")
		}
	}

	cancel()
	pool.stop()
	assert.Equal(t, int64(0), pool.droppedTasks())
}

func TestWorkPoolDropsWhenQueueFull(t *testing.T) {
	// Workers never started, so the queue fills and overflow is dropped.
	pool := newWorkPool(1, 2)

	for i := 0; i < 5; i++ {
		pool.submit(func() {})
	}
	assert.Equal(t, int64(3), pool.droppedTasks())
}
