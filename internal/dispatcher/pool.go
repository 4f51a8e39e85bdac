package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/crystaldolphin/dolphinbot/internal/bus"
)

var (
	// ErrQueueFull is returned by Submit when the chat's lane is saturated.
	ErrQueueFull = errors.New("dispatch queue full")
	// ErrPoolClosed is returned by Submit after Stop.
	ErrPoolClosed = errors.New("dispatch pool closed")
)

const (
	defaultWorkers     = 16
	defaultQueueSize   = 64
	defaultIdleTimeout = time.Minute
)

// Dispatch is the part of a Dispatcher the pool needs.
type Dispatch interface {
	Dispatch(ctx context.Context, upd bus.Update) Result
}

// PoolOptions sizes a Pool. Zero values select defaults.
type PoolOptions struct {
	Workers     int           // handlers running at once across all chats
	QueueSize   int           // pending updates per chat
	IdleTimeout time.Duration // an idle chat lane is retired after this long
}

// Pool runs dispatches in the background. Updates of one chat are handled
// one at a time in arrival order; different chats proceed in parallel up
// to the worker limit.
type Pool struct {
	target    Dispatch
	sem       *semaphore.Weighted
	queueSize int
	idle      time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	lanes  map[string]chan bus.Update
	closed bool
	wg     sync.WaitGroup
}

// NewPool creates a Pool feeding target.
func NewPool(target Dispatch, opts PoolOptions) *Pool {
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = defaultIdleTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		target:    target,
		sem:       semaphore.NewWeighted(int64(opts.Workers)),
		queueSize: opts.QueueSize,
		idle:      opts.IdleTimeout,
		ctx:       ctx,
		cancel:    cancel,
		lanes:     make(map[string]chan bus.Update),
	}
}

// Submit enqueues upd without blocking.
func (p *Pool) Submit(upd bus.Update) error {
	key := upd.SessionKey()

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPoolClosed
	}
	lane, ok := p.lanes[key]
	if !ok {
		lane = make(chan bus.Update, p.queueSize)
		p.lanes[key] = lane
		p.wg.Add(1)
		go p.drain(key, lane)
	}

	select {
	case lane <- upd:
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrQueueFull, key)
	}
}

func (p *Pool) drain(key string, lane chan bus.Update) {
	defer p.wg.Done()

	timer := time.NewTimer(p.idle)
	defer timer.Stop()

	for {
		select {
		case upd, ok := <-lane:
			if !ok {
				return
			}
			p.run(upd)
			timer.Reset(p.idle)

		case <-timer.C:
			// Submit enqueues under the same lock, so an empty lane here
			// cannot receive anything after it is removed.
			p.mu.Lock()
			if len(lane) == 0 && !p.closed {
				delete(p.lanes, key)
				p.mu.Unlock()
				return
			}
			p.mu.Unlock()
			timer.Reset(p.idle)
		}
	}
}

func (p *Pool) run(upd bus.Update) {
	if err := p.sem.Acquire(p.ctx, 1); err != nil {
		slog.Warn("pool: update dropped on shutdown", "update", upd.Key())
		return
	}
	defer p.sem.Release(1)

	p.target.Dispatch(p.ctx, upd)
}

// Pending returns the number of queued updates across all lanes.
func (p *Pool) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, lane := range p.lanes {
		n += len(lane)
	}
	return n
}

// Lanes returns the number of active chat lanes.
func (p *Pool) Lanes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.lanes)
}

// Stop rejects new updates and waits for queued ones to finish. When ctx
// ends first, in-flight handlers are cancelled and the rest is dropped.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		for key, lane := range p.lanes {
			close(lane)
			delete(p.lanes, key)
		}
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		return ctx.Err()
	}
}

// Run blocks until ctx is cancelled, then drains the pool for at most grace.
func (p *Pool) Run(ctx context.Context, grace time.Duration) error {
	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()

	if err := p.Stop(stopCtx); err != nil {
		slog.Warn("pool: drain incomplete", "pending", p.Pending(), "err", err)
		return nil
	}
	slog.Info("pool: drained")
	return nil
}
