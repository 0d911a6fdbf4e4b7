// Package breaker guards a remote Storage with a circuit breaker so a dead backend
// fails fast instead of stalling every snapshot write on connection timeouts.
package breaker

import (
	"context"
	"errors"
	"time"

	"github.com/fjod/go_cart/local-cart/internal/storage"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker/v2"
)

type Settings struct {
	Name string
	// ConsecutiveFailures trips the breaker.
	ConsecutiveFailures uint32
	// OpenTimeout is how long the breaker stays open before letting a probe through.
	OpenTimeout time.Duration
}

func DefaultSettings(name string) Settings {
	return Settings{
		Name:                name,
		ConsecutiveFailures: 5,
		OpenTimeout:         30 * time.Second,
	}
}

type Storage struct {
	next storage.Storage
	cb   *gobreaker.CircuitBreaker[string]
}

func Wrap(next storage.Storage, st Settings, log logrus.FieldLogger) *Storage {
	cb := gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        st.Name,
		MaxRequests: 1,
		Timeout:     st.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= st.ConsecutiveFailures
		},
		// a missing key is an answer and a cancelled caller says nothing about the
		// backend, neither counts as a failure
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, storage.ErrNotFound) ||
				errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("storage circuit breaker state changed")
		},
	})
	return &Storage{next: next, cb: cb}
}

func (s *Storage) GetItem(ctx context.Context, key string) (string, error) {
	return s.cb.Execute(func() (string, error) {
		return s.next.GetItem(ctx, key)
	})
}

func (s *Storage) SetItem(ctx context.Context, key, value string) error {
	_, err := s.cb.Execute(func() (string, error) {
		return "", s.next.SetItem(ctx, key, value)
	})
	return err
}

func (s *Storage) State() gobreaker.State {
	return s.cb.State()
}
