package scheduler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestAddValidatesJobs(t *testing.T) {
	s := New(time.UTC)
	noop := func(context.Context) error { return nil }

	require.NoError(t, s.Add(Job{Name: "refresh", Spec: "*/15 * * * *", Run: noop}))
	assert.Error(t, s.Add(Job{Name: "refresh", Spec: "0 * * * *", Run: noop}), "duplicate name")
	assert.Error(t, s.Add(Job{Name: "bad", Spec: "not a spec", Run: noop}))
	assert.Error(t, s.Add(Job{Name: "", Spec: "0 * * * *", Run: noop}))
	assert.Error(t, s.Add(Job{Name: "nil", Spec: "0 * * * *"}))
}

func TestRunNowAndNext(t *testing.T) {
	s := New(time.UTC)
	var calls atomic.Int32
	boom := errors.New("boom")

	require.NoError(t, s.Add(Job{Name: "count", Spec: "0 3 * * *", Run: func(ctx context.Context) error {
		require.NoError(t, ctx.Err())
		calls.Add(1)
		return nil
	}}))
	require.NoError(t, s.Add(Job{Name: "fail", Spec: "0 3 * * *", Run: func(context.Context) error { return boom }}))

	require.NoError(t, s.RunNow("count"))
	assert.Equal(t, int32(1), calls.Load())
	assert.ErrorIs(t, s.RunNow("fail"), boom)
	assert.Error(t, s.RunNow("missing"))

	assert.True(t, s.Next("count").IsZero())
	s.Start()
	next := s.Next("count")
	assert.False(t, next.IsZero())
	assert.Equal(t, 3, next.In(time.UTC).Hour())
	assert.True(t, s.Next("missing").IsZero())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
}

func TestStopCancelsJobContext(t *testing.T) {
	s := New(nil)
	var seen context.Context
	require.NoError(t, s.Add(Job{Name: "ctx", Spec: "@daily", Run: func(ctx context.Context) error {
		seen = ctx
		return nil
	}}))
	require.NoError(t, s.RunNow("ctx"))
	require.NoError(t, s.Stop(context.Background()))
	assert.ErrorIs(t, seen.Err(), context.Canceled)
}

func TestSnapshotJob(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "goals.ics")
	payload := []byte("BEGIN:VCALENDAR\r\nEND:VCALENDAR\r\n")

	s := New(time.UTC)
	require.NoError(t, s.Add(SnapshotJob("export", "0 * * * *", path, func(context.Context) ([]byte, error) {
		return payload, nil
	})))
	require.NoError(t, s.RunNow("export"))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	failing := SnapshotJob("broken", "0 * * * *", path, func(context.Context) ([]byte, error) {
		return nil, errors.New("render failed")
	})
	assert.Error(t, failing.Run(context.Background()))
	got, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, payload, got, "failed render keeps the previous snapshot")

	assert.Error(t, SnapshotJob("empty", "0 * * * *", "", nil).Run(context.Background()))
}
