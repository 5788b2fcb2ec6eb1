package queue

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type mockDLQPurger struct {
	purgeFunc func(ctx context.Context, retention time.Duration) (int, error)
}

func (m *mockDLQPurger) PurgeOlderThan(ctx context.Context, retention time.Duration) (int, error) {
	if m.purgeFunc != nil {
		return m.purgeFunc(ctx, retention)
	}
	return 0, nil
}

func TestGarbageCollector_Collect_NilPurger(t *testing.T) {
	t.Parallel()
	gc := NewGarbageCollector(nil, time.Minute, 24*time.Hour, nil)
	err := gc.collect(context.Background())
	if err != nil {
		t.Errorf("collect with nil purger: %v", err)
	}
}

func TestGarbageCollector_Collect_MockPurger(t *testing.T) {
	t.Parallel()
	var called atomic.Bool
	mock := &mockDLQPurger{
		purgeFunc: func(ctx context.Context, retention time.Duration) (int, error) {
			called.Store(true)
			if retention != 24*time.Hour {
				return 0, errors.New("unexpected retention")
			}
			return 3, nil
		},
	}
	gc := NewGarbageCollector(mock, time.Minute, 24*time.Hour, nil)
	err := gc.collect(context.Background())
	if err != nil {
		t.Errorf("collect: %v", err)
	}
	if !called.Load() {
		t.Error("PurgeOlderThan was not called")
	}
}

func TestGarbageCollector_Collect_PurgerError(t *testing.T) {
	t.Parallel()
	mock := &mockDLQPurger{
		purgeFunc: func(context.Context, time.Duration) (int, error) {
			return 0, errors.New("purge failed")
		},
	}
	gc := NewGarbageCollector(mock, time.Minute, time.Hour, nil)
	err := gc.collect(context.Background())
	if err == nil {
		t.Error("expected error from collect")
	}
}

func TestGarbageCollector_Start_SweepsImmediately(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	mock := &mockDLQPurger{purgeFunc: func(context.Context, time.Duration) (int, error) {
		calls.Add(1)
		cancel()
		return 2, nil
	}}
	gc := NewGarbageCollector(mock, 24*time.Hour, time.Hour, nil)

	if err := gc.Start(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("Expected one sweep before the first tick, got %d", calls.Load())
	}
	if gc.purged != 2 {
		t.Errorf("Expected purged total 2, got %d", gc.purged)
	}
}

func TestGarbageCollector_Start_StopsOnContextCancel(t *testing.T) {
	t.Parallel()
	var called atomic.Bool
	mock := &mockDLQPurger{purgeFunc: func(context.Context, time.Duration) (int, error) {
		called.Store(true)
		return 0, nil
	}}
	gc := NewGarbageCollector(mock, 24*time.Hour, time.Hour, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := gc.Start(ctx); err == nil {
		t.Error("expected context cancelled error")
	}
	if called.Load() {
		t.Error("Expected no purge on an already cancelled context")
	}
}
