package observer

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sqlitekit/internal/metrics"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func change(table string, rowid int64) TableChange {
	return TableChange{Table: table, Operation: Insert, Rowid: &rowid}
}

func TestBroadcast_DropsWithoutReceivers(t *testing.T) {
	b := newBroadcast(4)
	assert.False(t, b.send(change("t", 1)))

	rx := b.subscribe()
	assert.True(t, b.send(change("t", 2)))

	ev, ok, err := rx.TryRecv()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(2), *ev.Change.Rowid)

	rx.Close()
	assert.False(t, b.send(change("t", 3)))
}

func TestBroadcast_EveryReceiverSeesEveryChange(t *testing.T) {
	b := newBroadcast(4)
	rx1 := b.subscribe()
	rx2 := b.subscribe()
	b.send(change("t", 1))
	b.send(change("t", 2))

	for _, rx := range []*Receiver{rx1, rx2} {
		for _, want := range []int64{1, 2} {
			ev, ok, err := rx.TryRecv()
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, want, *ev.Change.Rowid)
		}
	}
}

func TestBroadcast_LateSubscriberMissesEarlierChanges(t *testing.T) {
	b := newBroadcast(4)
	early := b.subscribe()
	b.send(change("t", 1))
	late := b.subscribe()
	b.send(change("t", 2))

	ev, ok, err := late.TryRecv()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(2), *ev.Change.Rowid)

	ev, _, _ = early.TryRecv()
	assert.Equal(t, int64(1), *ev.Change.Rowid)
}

func TestBroadcast_Lagged(t *testing.T) {
	before := testutil.ToFloat64(metrics.SubscriberLagTotal)
	b := newBroadcast(3)
	rx := b.subscribe()
	for i := int64(1); i <= 5; i++ {
		b.send(change("t", i))
	}

	ev, ok, err := rx.TryRecv()
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, ev.IsLagged())
	assert.Equal(t, uint64(2), ev.Lagged)
	assert.Equal(t, before+2, testutil.ToFloat64(metrics.SubscriberLagTotal))

	// Resumes at the oldest retained change.
	for _, want := range []int64{3, 4, 5} {
		ev, ok, err := rx.TryRecv()
		require.NoError(t, err)
		require.True(t, ok)
		assert.False(t, ev.IsLagged())
		assert.Equal(t, want, *ev.Change.Rowid)
	}
	_, ok, _ = rx.TryRecv()
	assert.False(t, ok)
}

func TestReceiver_RecvBlocksUntilSend(t *testing.T) {
	b := newBroadcast(4)
	rx := b.subscribe()

	go func() {
		time.Sleep(20 * time.Millisecond)
		b.send(change("t", 7))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	ev, err := rx.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(7), *ev.Change.Rowid)
}

func TestReceiver_RecvHonoursContext(t *testing.T) {
	b := newBroadcast(4)
	rx := b.subscribe()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := rx.Recv(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestReceiver_ClosedBrokerDrainsThenErrors(t *testing.T) {
	b := newBroadcast(4)
	rx := b.subscribe()
	b.send(change("t", 1))
	b.close()

	ev, err := rx.Recv(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), *ev.Change.Rowid)

	_, err = rx.Recv(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
	assert.False(t, b.send(change("t", 2)))
}

func TestReceiver_Close(t *testing.T) {
	b := newBroadcast(4)
	rx := b.subscribe()
	rx.Close()
	rx.Close()

	_, err := rx.Recv(context.Background())
	assert.ErrorIs(t, err, ErrReceiverClosed)
}

func TestStream_FiltersButPassesLag(t *testing.T) {
	b := newBroadcast(2)
	s := NewStream(b.subscribe(), "keep")
	defer s.Close()

	b.send(change("skip", 1))
	b.send(change("keep", 2))
	b.send(change("skip", 3))
	b.send(change("keep", 4))

	ctx := context.Background()
	ev, err := s.Next(ctx)
	require.NoError(t, err)
	assert.True(t, ev.IsLagged())
	assert.Equal(t, uint64(2), ev.Lagged)

	ev, err = s.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "keep", ev.Change.Table)
	assert.Equal(t, int64(4), *ev.Change.Rowid)
}

func TestStream_NoTablesPassesEverything(t *testing.T) {
	b := newBroadcast(4)
	s := NewStream(b.subscribe())
	b.send(change("a", 1))
	b.send(change("b", 2))

	ctx := context.Background()
	ev, err := s.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", ev.Change.Table)
	ev, err = s.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "b", ev.Change.Table)
}

func TestStream_TryNextSkipsFilteredChanges(t *testing.T) {
	b := newBroadcast(4)
	s := NewStream(b.subscribe(), "keep")
	defer s.Close()

	_, ok, err := s.TryNext()
	require.NoError(t, err)
	assert.False(t, ok)

	b.send(change("skip", 1))
	b.send(change("keep", 2))
	b.send(change("skip", 3))

	ev, ok, err := s.TryNext()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(2), *ev.Change.Rowid)

	_, ok, err = s.TryNext()
	require.NoError(t, err)
	assert.False(t, ok, "trailing filtered change is consumed")
}
