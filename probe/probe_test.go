package probe

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/velmie/jobrelay/job"
)

func TestCountingRecordsLastEvent(t *testing.T) {
	p := NewCounting()

	_, ok := p.Last()
	assert.False(t, ok)

	p.OK("a", job.Payload{"k": "v"})
	p.Failed("b", job.Payload{}, "boom")

	assert.Equal(t, 1, p.OKCount())
	assert.Equal(t, 1, p.FailedCount())

	last, ok := p.Last()
	require.True(t, ok)
	assert.Equal(t, Event{JobName: "b", Payload: job.Payload{}, Reason: "boom"}, last)

	p.OK("c", nil)
	last, _ = p.Last()
	assert.Equal(t, "c", last.JobName)
	assert.Empty(t, last.Reason)

	p.Reset()
	assert.Zero(t, p.OKCount())
	assert.Zero(t, p.FailedCount())
	_, ok = p.Last()
	assert.False(t, ok)
}

func TestCountingConcurrentReports(t *testing.T) {
	p := NewCounting()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			p.OK("a", nil)
		}()
		go func() {
			defer wg.Done()
			p.Failed("a", nil, "x")
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, p.OKCount())
	assert.Equal(t, 50, p.FailedCount())
}

func TestMultiFansOut(t *testing.T) {
	first, second := NewCounting(), NewCounting()
	p := Multi(first, nil, Nop{}, second)

	p.OK("a", nil)
	p.Failed("a", nil, "boom")

	for _, c := range []*Counting{first, second} {
		assert.Equal(t, 1, c.OKCount())
		assert.Equal(t, 1, c.FailedCount())
	}
}

func TestRedisAggregatesAcrossProbes(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	workerA := NewRedis(client, WithRedisPrefix("test:probe"))
	workerB := NewRedis(client, WithRedisPrefix("test:probe"))

	workerA.OK("a", job.Payload{"k": "v"})
	workerB.OK("b", nil)
	workerB.Failed("c", job.Payload{"__error_message": "Unexpected status code: 500"}, "Unexpected status code: 500")

	snap, err := workerA.Snapshot(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, snap.OK)
	assert.EqualValues(t, 1, snap.Failed)
	require.NotNil(t, snap.Last)
	assert.Equal(t, "c", snap.Last.JobName)
	assert.Equal(t, "Unexpected status code: 500", snap.Last.Reason)
	assert.Equal(t, "Unexpected status code: 500", snap.Last.Payload["__error_message"])

	require.NoError(t, workerA.Reset(context.Background()))
	snap, err = workerA.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Zero(t, snap.OK)
	assert.Nil(t, snap.Last)
}

func TestRedisWriteFailureIsSwallowed(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()

	p := NewRedis(client)
	assert.NotPanics(t, func() {
		p.OK("a", nil)
		p.Failed("a", nil, "boom")
	})
}

func TestPrometheusCountsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	p, err := NewPrometheus(reg, []string{"a"})
	require.NoError(t, err)

	p.OK("a", nil)
	p.OK("a", nil)
	p.Failed("a", nil, "boom")

	assert.InDelta(t, 2, testutil.ToFloat64(p.outcomes.WithLabelValues("a", outcomeOK)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(p.outcomes.WithLabelValues("a", outcomeFailed)), 0)

	_, err = NewPrometheus(reg, []string{"a"})
	require.Error(t, err)
}

func TestPrometheusFoldsUnregisteredJobNames(t *testing.T) {
	reg := prometheus.NewRegistry()
	p, err := NewPrometheus(reg, []string{"a"})
	require.NoError(t, err)

	const n = 50
	for i := 0; i < n; i++ {
		p.Failed(fmt.Sprintf("junk-%d", i), nil, "unknown job")
	}

	assert.Equal(t, 1, testutil.CollectAndCount(p.outcomes))
	assert.InDelta(t, n, testutil.ToFloat64(p.outcomes.WithLabelValues(unknownJob, outcomeFailed)), 0)
}
