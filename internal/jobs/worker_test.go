package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolProcessesQueuedJobs(t *testing.T) {
	completer := &stubCompleter{}
	p := newPipeline(t, completer)

	room, ids := p.seedRoomWithMessages(t, "worker one", "worker two")
	completer.response = detectionResponse("Processed by a worker", ids)

	ctx, cancel := context.WithCancel(context.Background())
	pool := NewPool(p.queue, p.service, 2, zerolog.Nop())
	pool.Start(ctx)

	require.NoError(t, p.queue.EnqueueRoomScan(ctx, room.ID, "message_threshold"))

	waitUntil(t, 5*time.Second, func() bool {
		cards, err := p.db.ListFeedCards(context.Background(), 10)
		return err == nil && len(cards) == 1
	})

	cancel()
	pool.Wait()

	cards, err := p.db.ListFeedCards(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, "Processed by a worker", cards[0].Title)
}

func TestPoolStopsOnContextCancel(t *testing.T) {
	completer := &stubCompleter{response: `{"conversations":[]}`}
	p := newPipeline(t, completer)

	ctx, cancel := context.WithCancel(context.Background())
	pool := NewPool(p.queue, p.service, 1, zerolog.Nop())
	pool.Start(ctx)

	cancel()

	done := make(chan struct{})
	go func() {
		pool.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("workers did not stop after cancel")
	}
}

func TestNewPoolClampsWorkerCount(t *testing.T) {
	completer := &stubCompleter{}
	p := newPipeline(t, completer)
	pool := NewPool(p.queue, p.service, 0, zerolog.Nop())
	assert.Equal(t, 1, pool.workers)
}

func TestNewSchedulerValidatesCron(t *testing.T) {
	completer := &stubCompleter{}
	p := newPipeline(t, completer)

	_, err := NewScheduler(p.queue, "not a cron", zerolog.Nop())
	require.Error(t, err)

	scheduler, err := NewScheduler(p.queue, "0 */2 * * *", zerolog.Nop())
	require.NoError(t, err)
	assert.NotNil(t, scheduler)
}
