package cart

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fjod/go_cart/local-cart/internal/domain"
	"github.com/fjod/go_cart/local-cart/internal/storage"
	"github.com/sirupsen/logrus"
)

// DefaultKey is the storage key the cart snapshot lives under.
const DefaultKey = "@GoMarketplace:cart"

var (
	ErrClosed  = errors.New("cart: store is closed")
	ErrNotOpen = errors.New("cart: store was not opened, use cart.Open")
)

type Option func(*Store)

func WithKey(key string) Option {
	return func(s *Store) {
		s.key = key
	}
}

func WithLogger(log logrus.FieldLogger) Option {
	return func(s *Store) {
		s.log = log
	}
}

// WithTimeouts bounds the initial snapshot read and every snapshot write.
func WithTimeouts(load, write time.Duration) Option {
	return func(s *Store) {
		s.loadTimeout = load
		s.writeTimeout = write
	}
}

// Store owns the cart collection. Every mutation is a command applied in order by a
// single goroutine, so concurrent callers never work against the same stale copy.
// After each change the whole collection is handed to a persister that writes it in
// the background; mutation callers never wait for storage.
type Store struct {
	storage      storage.Storage
	key          string
	log          logrus.FieldLogger
	loadTimeout  time.Duration
	writeTimeout time.Duration

	commands chan command
	closing  chan struct{}
	done     chan struct{}
	loaded   chan struct{}

	ctx      context.Context
	cancel   context.CancelFunc
	loadCtx  context.Context
	stopLoad context.CancelFunc

	snapshot  atomic.Pointer[[]domain.Product]
	persister *persister

	subMu     sync.Mutex
	subs      map[int]chan []domain.Product
	nextSub   int
	published bool

	closeOnce sync.Once
	closeErr  error
}

// mutation returns the next collection and whether it differs from the current one.
// It must not modify its argument.
type mutation func(products []domain.Product) ([]domain.Product, bool)

type command struct {
	apply mutation
	done  chan struct{}
}

// Open starts a store backed by st. The snapshot is loaded in the background;
// mutations issued before the load finishes are applied on top of the loaded cart.
// Values carried by ctx (trace spans, loggers) are kept, its cancellation is not:
// the store lives until Close.
func Open(ctx context.Context, st storage.Storage, opts ...Option) (*Store, error) {
	if st == nil {
		return nil, errors.New("cart: storage is required")
	}

	s := &Store{
		storage:      st,
		key:          DefaultKey,
		log:          logrus.StandardLogger(),
		loadTimeout:  5 * time.Second,
		writeTimeout: 5 * time.Second,
		commands:     make(chan command),
		closing:      make(chan struct{}),
		done:         make(chan struct{}),
		loaded:       make(chan struct{}),
		subs:         make(map[int]chan []domain.Product),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.key == "" {
		return nil, errors.New("cart: storage key is empty")
	}

	empty := []domain.Product{}
	s.snapshot.Store(&empty)

	s.ctx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))
	s.loadCtx, s.stopLoad = context.WithTimeout(s.ctx, s.loadTimeout)
	s.persister = newPersister(s.ctx, st, s.key, s.writeTimeout, s.log)

	go s.persister.run()
	go s.run()

	return s, nil
}

func (s *Store) run() {
	defer close(s.done)

	products, ok := s.load()
	if ok {
		s.publish(products)
	} else {
		s.publishWithoutPersist(products)
	}
	close(s.loaded)

	for {
		select {
		case cmd := <-s.commands:
			if next, changed := cmd.apply(products); changed {
				products = next
				s.publish(products)
			}
			close(cmd.done)
		case <-s.closing:
			return
		}
	}
}

// load reads the stored snapshot. ok reports whether the result may be written back:
// a missing or unparsable record is replaced by the empty cart and a parsable one is
// repaired item by item, but a failed read leaves the stored record alone until the
// first mutation.
func (s *Store) load() (products []domain.Product, ok bool) {
	defer s.stopLoad()

	log := s.log.WithField("key", s.key)

	data, err := s.storage.GetItem(s.loadCtx, s.key)
	if errors.Is(err, storage.ErrNotFound) {
		log.Debug("no stored cart, starting empty")
		return []domain.Product{}, true
	}
	if err != nil {
		if errors.Is(s.loadCtx.Err(), context.Canceled) {
			// closed while loading
			return []domain.Product{}, false
		}
		log.WithError(err).Warn("cart load failed, starting empty")
		return []domain.Product{}, false
	}

	products, err = domain.UnmarshalSnapshot(data)
	if err != nil {
		log.WithError(err).Warn("stored cart is malformed, starting empty")
		return []domain.Product{}, true
	}

	products, problems := domain.Sanitize(products)
	if len(problems) > 0 {
		log.WithError(errors.Join(problems...)).
			WithField("kept", len(products)).
			Warn("stored cart had invalid items, repaired")
	}

	log.WithField("items", len(products)).Debug("cart loaded")
	return products, true
}

func (s *Store) publish(products []domain.Product) {
	s.publishWithoutPersist(products)

	payload, err := domain.MarshalSnapshot(products)
	if err != nil {
		s.log.WithError(err).Error("cart snapshot not persisted")
		return
	}
	s.persister.enqueue(payload)
}

func (s *Store) publishWithoutPersist(products []domain.Product) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	s.snapshot.Store(&products)
	s.published = true
	for _, ch := range s.subs {
		offer(ch, domain.Clone(products))
	}
}

// offer replaces whatever the subscriber has not read yet with the newest snapshot.
func offer(ch chan []domain.Product, products []domain.Product) {
	select {
	case ch <- products:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- products:
	default:
	}
}

func (s *Store) do(ctx context.Context, apply mutation) error {
	if s == nil || s.commands == nil {
		return ErrNotOpen
	}

	cmd := command{apply: apply, done: make(chan struct{})}
	select {
	case s.commands <- cmd:
	case <-s.closing:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-cmd.done:
		return nil
	case <-ctx.Done():
		// already accepted, it will still be applied
		return ctx.Err()
	}
}

// Products returns a copy of the current collection in insertion order.
func (s *Store) Products() []domain.Product {
	if s == nil || s.commands == nil {
		return []domain.Product{}
	}
	return domain.Clone(*s.snapshot.Load())
}

// AddToCart increments the quantity of an existing line item with the same id, or
// appends item with quantity 1. The quantity carried by item is ignored.
func (s *Store) AddToCart(ctx context.Context, item domain.Product) error {
	if item.ID == "" {
		return fmt.Errorf("cart: add to cart: %w", domain.ErrEmptyID)
	}

	return s.do(ctx, func(products []domain.Product) ([]domain.Product, bool) {
		next := domain.Clone(products)
		if i := domain.IndexOf(next, item.ID); i >= 0 {
			next[i].Quantity++
			return next, true
		}
		item.Quantity = 1
		return append(next, item), true
	})
}

// Increment adds one unit to the line item with the given id. Unknown ids are ignored.
func (s *Store) Increment(ctx context.Context, id string) error {
	return s.do(ctx, func(products []domain.Product) ([]domain.Product, bool) {
		i := domain.IndexOf(products, id)
		if i < 0 {
			return products, false
		}
		next := domain.Clone(products)
		next[i].Quantity++
		return next, true
	})
}

// Decrement removes one unit from the line item with the given id; the item is
// dropped once its quantity would reach zero. Unknown ids are ignored.
func (s *Store) Decrement(ctx context.Context, id string) error {
	return s.do(ctx, func(products []domain.Product) ([]domain.Product, bool) {
		i := domain.IndexOf(products, id)
		if i < 0 {
			return products, false
		}
		next := domain.Clone(products)
		if next[i].Quantity <= 1 {
			return append(next[:i], next[i+1:]...), true
		}
		next[i].Quantity--
		return next, true
	})
}

// Subscribe delivers the collection after every change. A subscriber that falls
// behind only sees the newest snapshot. The channel is closed by cancel or Close.
func (s *Store) Subscribe() (<-chan []domain.Product, func()) {
	ch := make(chan []domain.Product, 1)
	if s == nil || s.commands == nil {
		close(ch)
		return ch, func() {}
	}

	s.subMu.Lock()
	select {
	case <-s.closing:
		s.subMu.Unlock()
		close(ch)
		return ch, func() {}
	default:
	}
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	if s.published {
		ch <- domain.Clone(*s.snapshot.Load())
	}
	s.subMu.Unlock()

	cancel := func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
	}
	return ch, cancel
}

// Loaded is closed once the stored snapshot has been read. For a store that was not
// opened it is already closed.
func (s *Store) Loaded() <-chan struct{} {
	if s == nil || s.commands == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return s.loaded
}

// Flush waits for every snapshot issued so far to be written and returns the error of
// the most recent write.
func (s *Store) Flush(ctx context.Context) error {
	if s == nil || s.commands == nil {
		return ErrNotOpen
	}
	select {
	case <-s.loaded:
	case <-ctx.Done():
		return ctx.Err()
	}
	return s.persister.flush(ctx)
}

// Close stops accepting mutations, writes the last snapshot and ends all
// subscriptions. It is safe to call more than once.
func (s *Store) Close(ctx context.Context) error {
	if s == nil || s.commands == nil {
		return ErrNotOpen
	}

	s.closeOnce.Do(func() {
		close(s.closing)
		s.stopLoad()
		<-s.done

		s.closeErr = s.persister.stop(ctx)
		s.cancel()

		s.subMu.Lock()
		for id, ch := range s.subs {
			delete(s.subs, id)
			close(ch)
		}
		s.subMu.Unlock()
	})
	return s.closeErr
}
