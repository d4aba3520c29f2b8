package services

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"receiptledger/internal/core"
)

// BookLocks serializes number allocation per receipt book. Entries are
// reference counted and dropped once nobody holds or waits on them, so the
// map only grows with concurrently active books.
type BookLocks struct {
	mu    sync.Mutex
	locks map[int64]*bookLock
}

type bookLock struct {
	sem  chan struct{}
	refs int
}

func NewBookLocks() *BookLocks {
	return &BookLocks{locks: make(map[int64]*bookLock)}
}

// Lock blocks until the book is free or ctx ends.
func (l *BookLocks) Lock(ctx context.Context, bookID int64) (unlock func(), err error) {
	l.mu.Lock()
	bl, ok := l.locks[bookID]
	if !ok {
		bl = &bookLock{sem: make(chan struct{}, 1)}
		l.locks[bookID] = bl
	}
	bl.refs++
	l.mu.Unlock()

	select {
	case bl.sem <- struct{}{}:
	case <-ctx.Done():
		l.release(bookID, bl)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-bl.sem
			l.release(bookID, bl)
		})
	}, nil
}

func (l *BookLocks) release(bookID int64, bl *bookLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	bl.refs--
	if bl.refs == 0 {
		delete(l.locks, bookID)
	}
}

func (l *BookLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

// gateSlots bounds concurrently admitted operations. A restore takes all of
// them, so it waits for in-flight operations and blocks new ones.
const gateSlots = 1 << 20

// RestoreGate lets ledger operations run concurrently with each other but
// never with a restore. A second restore is refused instead of queued.
type RestoreGate struct {
	sem        *semaphore.Weighted
	restoring  atomic.Bool
	generation atomic.Uint64
}

func NewRestoreGate() *RestoreGate {
	return &RestoreGate{sem: semaphore.NewWeighted(gateSlots)}
}

// Enter admits an ordinary operation, waiting out a running restore until
// ctx ends.
func (g *RestoreGate) Enter(ctx context.Context) (leave func(), err error) {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	var once sync.Once
	return func() { once.Do(func() { g.sem.Release(1) }) }, nil
}

// BeginRestore takes exclusive ownership once in-flight operations drain.
func (g *RestoreGate) BeginRestore(ctx context.Context) (end func(), err error) {
	if !g.restoring.CompareAndSwap(false, true) {
		return nil, core.ErrRestoreInProgress
	}
	if err := g.sem.Acquire(ctx, gateSlots); err != nil {
		g.restoring.Store(false)
		return nil, err
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			g.generation.Add(1)
			g.sem.Release(gateSlots)
			g.restoring.Store(false)
		})
	}, nil
}

// Restoring reports whether a restore currently holds or awaits the gate.
func (g *RestoreGate) Restoring() bool {
	return g.restoring.Load()
}

// Generation counts completed restores. Work started under one generation
// must not be shared with callers admitted under a later one.
func (g *RestoreGate) Generation() uint64 {
	return g.generation.Load()
}
