package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/pumpcurve/internal/curve"
)

type memBackend struct {
	mu     sync.Mutex
	states map[string]curve.ReserveState
}

func (m *memBackend) Load(_ context.Context, id string) (curve.ReserveState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.states[id]
	return s, ok
}

func (m *memBackend) Store(_ context.Context, id string, s curve.ReserveState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[id] = s
}

var sample = curve.ReserveState{
	VirtualBaseReserves:  curve.DefaultVirtualBaseReserves,
	VirtualQuoteReserves: curve.DefaultVirtualQuoteReserves,
	RealQuoteReserves:    793_100_000_000_000,
	TotalSupply:          curve.DefaultTotalSupply,
}

func TestSnapshotsLoadStore(t *testing.T) {
	ctx := context.Background()
	c := NewSnapshots(8, time.Minute, nil, zap.NewNop())

	_, ok := c.Load(ctx, "A")
	assert.False(t, ok)

	c.Store(ctx, "A", sample)
	got, ok := c.Load(ctx, "A")
	require.True(t, ok)
	assert.Equal(t, sample, got)
	assert.Equal(t, 1, c.Len())

	c.Invalidate("A")
	_, ok = c.Load(ctx, "A")
	assert.False(t, ok)
}

func TestSnapshotsExpire(t *testing.T) {
	ctx := context.Background()
	c := NewSnapshots(8, 20*time.Millisecond, nil, zap.NewNop())

	c.Store(ctx, "A", sample)
	time.Sleep(60 * time.Millisecond)

	_, ok := c.Load(ctx, "A")
	assert.False(t, ok)
}

func TestSnapshotsBackendFill(t *testing.T) {
	ctx := context.Background()
	backend := &memBackend{states: map[string]curve.ReserveState{"A": sample}}
	c := NewSnapshots(8, time.Minute, backend, zap.NewNop())

	got, ok := c.Load(ctx, "A")
	require.True(t, ok)
	assert.Equal(t, sample, got)
	assert.Equal(t, 1, c.Len())

	c.Store(ctx, "B", sample)
	_, ok = backend.Load(ctx, "B")
	assert.True(t, ok)
}

func TestGetOrFetchSharesConcurrentMisses(t *testing.T) {
	ctx := context.Background()
	c := NewSnapshots(8, time.Minute, nil, zap.NewNop())

	var calls atomic.Int32
	release := make(chan struct{})
	fetch := func(context.Context, string) (curve.ReserveState, error) {
		calls.Add(1)
		<-release
		return sample, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := c.GetOrFetch(ctx, "A", fetch)
			assert.NoError(t, err)
			assert.Equal(t, sample, got)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())

	_, err := c.GetOrFetch(ctx, "A", fetch)
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestGetOrFetchError(t *testing.T) {
	c := NewSnapshots(8, time.Minute, nil, zap.NewNop())
	boom := errors.New("rpc down")

	_, err := c.GetOrFetch(context.Background(), "A", func(context.Context, string) (curve.ReserveState, error) {
		return curve.ReserveState{}, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, c.Len())
}
