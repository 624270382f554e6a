// Package prefetch overlaps object-store latency with record
// conversion: a dedicated fetch worker consumes locators from a
// bounded request channel and pushes downloaded scratch paths on a
// bounded response channel, in request order. Close signals the end of
// the request stream; buffered requests are still served. Join waits
// boundedly and cancels a lagging worker.
package prefetch

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.uber.org/ratelimit"

	"sensor-replay/pkg/storage"
)

type Result struct {
	Locator string
	Path    string
	Temp    bool
	Err     error
}

type Prefetcher struct {
	requests  chan string
	responses chan Result
	closing   chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	cancel    context.CancelFunc
}

func CreatePrefetcher(ctx context.Context, reader storage.Reader, ratePerSec, depth int) *Prefetcher {
	if depth <= 0 {
		depth = 1
	}
	wctx, cancel := context.WithCancel(ctx)
	p := &Prefetcher{
		requests:  make(chan string, depth),
		responses: make(chan Result, depth),
		closing:   make(chan struct{}),
		done:      make(chan struct{}),
		cancel:    cancel,
	}
	var rl ratelimit.Limiter
	if ratePerSec > 0 {
		rl = ratelimit.New(ratePerSec)
	} else {
		rl = ratelimit.NewUnlimited()
	}
	go worker(wctx, p, reader, rl)
	return p
}

func worker(ctx context.Context, p *Prefetcher, reader storage.Reader, rl ratelimit.Limiter) {
	defer close(p.done)
	defer close(p.responses)
	for {
		select {
		case <-ctx.Done():
			return
		case locator := <-p.requests:
			if !fetch(ctx, p, reader, rl, locator) {
				return
			}
		case <-p.closing:
			// Serve whatever is still buffered, then exit
			for {
				select {
				case <-ctx.Done():
					return
				case locator := <-p.requests:
					if !fetch(ctx, p, reader, rl, locator) {
						return
					}
				default:
					return
				}
			}
		}
	}
}

func fetch(ctx context.Context, p *Prefetcher, reader storage.Reader, rl ratelimit.Limiter, locator string) bool {
	rl.Take()
	path, temp, err := reader.ReadRecord(ctx, locator)
	select {
	case p.responses <- Result{Locator: locator, Path: path, Temp: temp, Err: err}:
		return true
	case <-ctx.Done():
		return false
	}
}

// Enqueue submits a locator, blocking while the request queue is full.
// Returns false once the prefetcher is closing or its worker has shut
// down. The request channel is never closed, so an Enqueue blocked on
// a full queue unblocks on teardown instead of panicking.
func (p *Prefetcher) Enqueue(locator string) bool {
	select {
	case p.requests <- locator:
		return true
	case <-p.closing:
		return false
	case <-p.done:
		return false
	}
}

func (p *Prefetcher) Responses() <-chan Result {
	return p.responses
}

// Close signals no more requests. Safe to call more than once and
// concurrently with blocked Enqueue calls.
func (p *Prefetcher) Close() {
	p.closeOnce.Do(func() { close(p.closing) })
}

// Join waits for the worker to exit, cancelling it if the timeout
// elapses first. The post-cancel wait has the same bound; a reader
// that ignores cancellation is abandoned rather than waited on.
// Returns true on a clean exit.
func (p *Prefetcher) Join(timeout time.Duration) bool {
	select {
	case <-p.done:
		return true
	case <-time.After(timeout):
	}
	logrus.Warnf("Prefetch worker did not exit within %v, cancelling", timeout)
	p.cancel()
	select {
	case <-p.done:
	case <-time.After(timeout):
		logrus.Errorf("Prefetch worker ignored cancellation, abandoning it")
	}
	return false
}
