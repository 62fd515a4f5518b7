package location

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/azrayildirim/mekandamobil/internal/shared/apperr"
	"github.com/azrayildirim/mekandamobil/internal/shared/geo"
)

var (
	ErrNoFix      = errors.New("no location fix yet")
	ErrInvalidFix = errors.New("coordinate out of range")
)

type Provider interface {
	Current(ctx context.Context) (Fix, error)
	// Watch calls fn for every accepted fix until stop is called or ctx ends.
	Watch(ctx context.Context, opts Options, fn func(Fix)) (stop func(), err error)
}

// Feed is the Provider of one device. The transport pushes the fixes the
// device reports; watchers run synchronously on the pushing goroutine.
type Feed struct {
	mu       sync.Mutex
	last     Fix
	hasFix   bool
	denied   bool
	watchers map[int]*watcher
	nextID   int
	now      func() time.Time
}

type watcher struct {
	opts      Options
	fn        func(Fix)
	delivered bool
	last      geo.Coordinate
}

func NewFeed() *Feed {
	return &Feed{watchers: map[int]*watcher{}, now: time.Now}
}

// Push records fix and forwards it to watchers whose distance filter accepts it.
// A push also clears an earlier Deny.
func (f *Feed) Push(fix Fix) error {
	if !fix.Coordinate.Valid() {
		return fmt.Errorf("%v: %w", fix.Coordinate, ErrInvalidFix)
	}
	if fix.RecordedAt.IsZero() {
		fix.RecordedAt = f.now()
	}

	f.mu.Lock()
	f.last = fix
	f.hasFix = true
	f.denied = false
	var due []func(Fix)
	for _, w := range f.watchers {
		if w.delivered && geo.DistanceM(w.last, fix.Coordinate) < w.opts.MinDistanceM {
			continue
		}
		w.delivered = true
		w.last = fix.Coordinate
		due = append(due, w.fn)
	}
	f.mu.Unlock()

	for _, fn := range due {
		fn(fix)
	}
	return nil
}

// Deny marks location access as refused by the device.
func (f *Feed) Deny() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.denied = true
}

func (f *Feed) Current(ctx context.Context) (Fix, error) {
	if err := ctx.Err(); err != nil {
		return Fix{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.denied {
		return Fix{}, fmt.Errorf("location: %w", apperr.ErrPermissionDenied)
	}
	if !f.hasFix {
		return Fix{}, ErrNoFix
	}
	return f.last, nil
}

func (f *Feed) Watch(ctx context.Context, opts Options, fn func(Fix)) (func(), error) {
	f.mu.Lock()
	if f.denied {
		f.mu.Unlock()
		return nil, fmt.Errorf("location: %w", apperr.ErrPermissionDenied)
	}
	id := f.nextID
	f.nextID++
	f.watchers[id] = &watcher{opts: opts, fn: fn}
	f.mu.Unlock()

	var once sync.Once
	done := make(chan struct{})
	stop := func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.watchers, id)
			f.mu.Unlock()
			close(done)
		})
	}
	go func() {
		select {
		case <-ctx.Done():
			stop()
		case <-done:
		}
	}()
	return stop, nil
}
