package cache

import "context"

// LookupObserver receives the outcome of each cache read.
type LookupObserver interface {
	ObserveCacheLookup(hit bool)
}

// InstrumentedStore wraps a Store and reports Get hits and misses to an
// observer. Writes and invalidations pass through untouched.
type InstrumentedStore struct {
	Store
	observer LookupObserver
}

// NewInstrumentedStore wraps store. A nil observer returns store unchanged.
func NewInstrumentedStore(store Store, observer LookupObserver) Store {
	if observer == nil {
		return store
	}
	return &InstrumentedStore{Store: store, observer: observer}
}

func (s *InstrumentedStore) Get(ctx context.Context, key string) ([]byte, bool) {
	payload, ok := s.Store.Get(ctx, key)
	s.observer.ObserveCacheLookup(ok)
	return payload, ok
}
