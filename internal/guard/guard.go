// Package guard serializes work on (user, asset) pairs and on yield sources.
package guard

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"sync"
	"time"

	"yield-router-go/internal/models"

	"golang.org/x/sync/semaphore"
)

// Guard rejects a second operation on a key while the first is in flight.
type Guard struct {
	mu     sync.Mutex
	active map[string]struct{}
}

func NewGuard() *Guard {
	return &Guard{active: make(map[string]struct{})}
}

// TryAcquire claims key or fails with ErrReentrancy. The returned release is
// safe to call more than once.
func (g *Guard) TryAcquire(key string) (func(), error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, busy := g.active[key]; busy {
		return nil, fmt.Errorf("%w: %s", models.ErrReentrancy, key)
	}
	g.active[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.active, key)
			g.mu.Unlock()
		})
	}, nil
}

// PositionKey names the guard slot of a user's position in asset. Both parts
// are quoted so ids containing the separator cannot collide.
func PositionKey(userId, asset string) string {
	return strconv.Quote(userId) + "/" + strconv.Quote(asset)
}

// Locks holds one weighted semaphore per key. Lock waits for at most the
// configured timeout and then fails with ErrSourceBusy.
type Locks struct {
	timeout time.Duration

	mu   sync.Mutex
	sems map[string]*semaphore.Weighted
}

func NewLocks(timeout time.Duration) *Locks {
	return &Locks{timeout: timeout, sems: make(map[string]*semaphore.Weighted)}
}

// Lock acquires every key in sorted order so overlapping callers cannot
// deadlock. Empty keys are ignored.
func (l *Locks) Lock(ctx context.Context, keys ...string) (func(), error) {
	ordered := make([]string, 0, len(keys))
	for _, k := range keys {
		if k != "" {
			ordered = append(ordered, k)
		}
	}
	slices.Sort(ordered)
	ordered = slices.Compact(ordered)

	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	held := make([]*semaphore.Weighted, 0, len(ordered))
	unlock := func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Release(1)
		}
	}

	for _, k := range ordered {
		sem := l.semaphore(k)
		if err := sem.Acquire(ctx, 1); err != nil {
			unlock()
			if errors.Is(err, context.DeadlineExceeded) {
				return nil, fmt.Errorf("%w: source %s: %w", models.ErrSourceBusy, k, err)
			}
			return nil, err
		}
		held = append(held, sem)
	}

	var once sync.Once
	return func() { once.Do(unlock) }, nil
}

func (l *Locks) semaphore(key string) *semaphore.Weighted {
	l.mu.Lock()
	defer l.mu.Unlock()

	sem, ok := l.sems[key]
	if !ok {
		sem = semaphore.NewWeighted(1)
		l.sems[key] = sem
	}
	return sem
}
