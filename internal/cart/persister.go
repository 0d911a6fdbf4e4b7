package cart

import (
	"context"
	"sync"
	"time"

	"github.com/fjod/go_cart/local-cart/internal/storage"
	"github.com/sirupsen/logrus"
)

// persister writes snapshots in the background. Only the newest pending snapshot is
// kept, so a slow backend costs intermediate states, never the latest one.
// Failed writes are logged and not retried.
type persister struct {
	ctx     context.Context
	storage storage.Storage
	key     string
	timeout time.Duration
	log     logrus.FieldLogger

	wake     chan struct{}
	quit     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once

	mu       sync.Mutex
	pending  *string
	issued   uint64
	written  uint64
	lastErr  error
	progress chan struct{}
}

func newPersister(ctx context.Context, st storage.Storage, key string, timeout time.Duration, log logrus.FieldLogger) *persister {
	return &persister{
		ctx:      ctx,
		storage:  st,
		key:      key,
		timeout:  timeout,
		log:      log.WithField("key", key),
		wake:     make(chan struct{}, 1),
		quit:     make(chan struct{}),
		stopped:  make(chan struct{}),
		progress: make(chan struct{}),
	}
}

func (p *persister) enqueue(payload string) {
	p.mu.Lock()
	p.pending = &payload
	p.issued++
	p.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *persister) run() {
	defer close(p.stopped)

	for {
		select {
		case <-p.wake:
			p.writePending()
		case <-p.quit:
			p.writePending()
			return
		}
	}
}

func (p *persister) writePending() {
	p.mu.Lock()
	if p.pending == nil {
		p.mu.Unlock()
		return
	}
	payload, seq := *p.pending, p.issued
	p.pending = nil
	p.mu.Unlock()

	ctx, cancel := context.WithTimeout(p.ctx, p.timeout)
	err := p.storage.SetItem(ctx, p.key, payload)
	cancel()

	if err != nil {
		p.log.WithError(err).Warn("cart snapshot write failed")
	}

	p.mu.Lock()
	p.written = seq
	p.lastErr = err
	close(p.progress)
	p.progress = make(chan struct{})
	p.mu.Unlock()
}

// flush waits until the snapshot issued last at call time has been written.
func (p *persister) flush(ctx context.Context) error {
	p.mu.Lock()
	target := p.issued
	p.mu.Unlock()

	for {
		p.mu.Lock()
		if p.written >= target {
			err := p.lastErr
			p.mu.Unlock()
			return err
		}
		progress := p.progress
		p.mu.Unlock()

		select {
		case <-progress:
		case <-p.stopped:
			p.mu.Lock()
			err := p.lastErr
			done := p.written >= target
			p.mu.Unlock()
			if !done {
				return ErrClosed
			}
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// stop writes whatever is still pending and ends the background goroutine.
func (p *persister) stop(ctx context.Context) error {
	p.stopOnce.Do(func() {
		close(p.quit)
	})

	select {
	case <-p.stopped:
	case <-ctx.Done():
		return ctx.Err()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastErr
}
