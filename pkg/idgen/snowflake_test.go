package idgen

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerator_NextID(t *testing.T) {
	g, err := New(1, 1)
	require.NoError(t, err)

	id1, err := g.NextID()
	require.NoError(t, err)
	assert.Greater(t, id1, ID(0))

	id2, err := g.NextID()
	require.NoError(t, err)
	assert.Greater(t, id2, id1)

	// 验证唯一性与单调递增
	seen := make(map[ID]struct{}, 10000)
	last := id2
	for i := 0; i < 10000; i++ {
		id, err := g.NextID()
		require.NoError(t, err)
		_, dup := seen[id]
		require.False(t, dup, "ID should be unique")
		require.Greater(t, id, last)
		seen[id] = struct{}{}
		last = id
	}
}

func TestGenerator_InvalidParameters(t *testing.T) {
	tests := []struct {
		name         string
		datacenterID int64
		workerID     int64
		wantErr      error
	}{
		{name: "数据中心ID为负", datacenterID: -1, workerID: 1, wantErr: ErrInvalidDatacenterID},
		{name: "数据中心ID超限", datacenterID: 32, workerID: 1, wantErr: ErrInvalidDatacenterID},
		{name: "工作机器ID为负", datacenterID: 1, workerID: -1, wantErr: ErrInvalidWorkerID},
		{name: "工作机器ID超限", datacenterID: 1, workerID: 32, wantErr: ErrInvalidWorkerID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.datacenterID, tt.workerID)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestID_Parse(t *testing.T) {
	g, err := New(10, 5)
	require.NoError(t, err)

	before := time.Now().Add(-time.Second)
	id, err := g.NextID()
	require.NoError(t, err)

	info, err := id.Parse()
	require.NoError(t, err)
	assert.Equal(t, int64(10), info.DatacenterID)
	assert.Equal(t, int64(5), info.WorkerID)
	assert.GreaterOrEqual(t, info.Sequence, int64(0))
	assert.True(t, info.Time.After(before))

	_, err = ID(0).Parse()
	assert.ErrorIs(t, err, ErrInvalidID)
}

func TestGenerator_ClockBackward(t *testing.T) {
	g, err := New(0, 0)
	require.NoError(t, err)

	now := time.Now().UnixMilli()
	g.now = func() int64 { return now }
	_, err = g.NextID()
	require.NoError(t, err)

	g.now = func() int64 { return now - clockBackwardTolerance - 1 }
	_, err = g.NextID()
	assert.ErrorIs(t, err, ErrClockMovedBackwards)
}

func TestGenerator_SequenceOverflow(t *testing.T) {
	g, err := New(0, 0)
	require.NoError(t, err)

	var (
		mu   sync.Mutex
		now  = time.Now().UnixMilli()
		hits int
	)
	// 前 MaxSequence+1 次调用停留在同一毫秒，之后时间前进
	g.now = func() int64 {
		mu.Lock()
		defer mu.Unlock()
		hits++
		if hits > MaxSequence+1 {
			return now + 1
		}
		return now
	}

	var last ID
	for i := 0; i <= MaxSequence+1; i++ {
		id, err := g.NextID()
		require.NoError(t, err)
		require.Greater(t, id, last)
		last = id
	}

	info, err := last.Parse()
	require.NoError(t, err)
	assert.Equal(t, int64(0), info.Sequence)
	assert.Equal(t, now+1, info.Time.UnixMilli())
}

func TestGenerator_Concurrent(t *testing.T) {
	g, err := New(3, 7)
	require.NoError(t, err)

	const workers, perWorker = 8, 500
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		ids = make(map[ID]struct{}, workers*perWorker)
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				id, err := g.NextID()
				if !assert.NoError(t, err) {
					return
				}
				mu.Lock()
				ids[id] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Len(t, ids, workers*perWorker)
}

func BenchmarkGenerator_NextID(b *testing.B) {
	g, _ := New(1, 1)
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_, _ = g.NextID()
	}
}
