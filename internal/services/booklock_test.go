package services

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"receiptledger/internal/core"
)

func TestBookLocksSerializeSameBook(t *testing.T) {
	locks := NewBookLocks()
	ctx := context.Background()

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := locks.Lock(ctx, 1)
			if !assert.NoError(t, err) {
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside)
	assert.Equal(t, 0, locks.size())
}

func TestBookLocksIndependentBooks(t *testing.T) {
	locks := NewBookLocks()
	ctx := context.Background()

	unlock1, err := locks.Lock(ctx, 1)
	require.NoError(t, err)
	defer unlock1()

	ctx2, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	unlock2, err := locks.Lock(ctx2, 2)
	require.NoError(t, err)
	unlock2()
}

func TestBookLocksHonorContext(t *testing.T) {
	locks := NewBookLocks()
	unlock, err := locks.Lock(context.Background(), 7)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = locks.Lock(ctx, 7)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	unlock() // second call is a no-op
	assert.Equal(t, 0, locks.size())
}

func TestRestoreGateRefusesSecondRestore(t *testing.T) {
	gate := NewRestoreGate()
	end, err := gate.BeginRestore(context.Background())
	require.NoError(t, err)
	assert.True(t, gate.Restoring())

	_, err = gate.BeginRestore(context.Background())
	assert.ErrorIs(t, err, core.ErrRestoreInProgress)

	end()
	assert.False(t, gate.Restoring())
	end2, err := gate.BeginRestore(context.Background())
	require.NoError(t, err)
	end2()
}

func TestRestoreGateWaitsForOperations(t *testing.T) {
	gate := NewRestoreGate()
	leave, err := gate.Enter(context.Background())
	require.NoError(t, err)

	started := make(chan struct{})
	acquired := make(chan struct{})
	go func() {
		close(started)
		end, err := gate.BeginRestore(context.Background())
		if err == nil {
			close(acquired)
			end()
		}
	}()
	<-started

	select {
	case <-acquired:
		t.Fatal("restore started while an operation was in flight")
	case <-time.After(30 * time.Millisecond):
	}

	leave()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("restore never started")
	}
}

func TestRestoreGateEnterHonorsContext(t *testing.T) {
	gate := NewRestoreGate()
	end, err := gate.BeginRestore(context.Background())
	require.NoError(t, err)
	defer end()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		_, err := gate.Enter(ctx)
		done <- err
	}()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(2 * time.Second):
		t.Fatal("Enter ignored its context while a restore held the gate")
	}
}

func TestRestoreGateCancelledRestoreReleasesGate(t *testing.T) {
	gate := NewRestoreGate()
	leave, err := gate.Enter(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = gate.BeginRestore(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, gate.Restoring())

	leave()
	leave() // second call is a no-op

	end, err := gate.BeginRestore(context.Background())
	require.NoError(t, err)
	end()

	leave2, err := gate.Enter(context.Background())
	require.NoError(t, err)
	leave2()
}
