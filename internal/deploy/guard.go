package deploy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

// Guard controls whether runs of the same application may overlap.
type Guard interface {
	// Acquire blocks until app may be deployed or ctx is done.
	Acquire(ctx context.Context, app string) (release func(), err error)
}

// NopGuard never blocks: concurrent runs, even of one application, proceed
// in parallel over the same working directory.
type NopGuard struct{}

func (NopGuard) Acquire(context.Context, string) (func(), error) {
	return func() {}, nil
}

// AppGuard serializes runs per application. When LockDir is set, an flock
// file per application also excludes other processes sharing that directory.
type AppGuard struct {
	LockDir string
	// RetryDelay is the polling interval while waiting for the file lock.
	RetryDelay time.Duration

	mu    sync.Mutex
	slots map[string]chan struct{}
}

func NewAppGuard(lockDir string) *AppGuard {
	return &AppGuard{LockDir: lockDir}
}

func (g *AppGuard) slot(app string) chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.slots == nil {
		g.slots = make(map[string]chan struct{})
	}
	s, ok := g.slots[app]
	if !ok {
		s = make(chan struct{}, 1)
		g.slots[app] = s
	}
	return s
}

func (g *AppGuard) Acquire(ctx context.Context, app string) (release func(), err error) {
	s := g.slot(app)
	select {
	case s <- struct{}{}:
	case <-ctx.Done():
		err = ctx.Err()
		return
	}
	unlockSlot := func() { <-s }

	if g.LockDir == "" {
		release = unlockSlot
		return
	}

	var fl *flock.Flock
	if fl, err = g.lockFile(ctx, app); err != nil {
		unlockSlot()
		return
	}

	release = func() {
		_ = fl.Unlock()
		unlockSlot()
	}
	return
}

func (g *AppGuard) lockFile(ctx context.Context, app string) (fl *flock.Flock, err error) {
	if err = os.MkdirAll(g.LockDir, 0o755); err != nil {
		err = fmt.Errorf("create lock dir: %w", err)
		return
	}

	delay := g.RetryDelay
	if delay <= 0 {
		delay = 250 * time.Millisecond
	}

	fl = flock.New(filepath.Join(g.LockDir, filepath.Base(app)+".lock"))
	var ok bool
	if ok, err = fl.TryLockContext(ctx, delay); err != nil {
		err = fmt.Errorf("lock %s: %w", fl.Path(), err)
		return
	}
	if !ok {
		err = fmt.Errorf("lock %s: not acquired", fl.Path())
	}
	return
}
