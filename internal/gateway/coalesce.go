package gateway

import (
	"context"
	"sync"
)

// inFlightFetch is one upstream fetch that multiple intercepted requests for
// the same URL may wait on.
type inFlightFetch struct {
	done chan struct{}
	rec  Record
	err  error
}

// fetchCoalescer collapses concurrent upstream fetches for the same key into
// one network call. Revalidating a popular weather URL from several clients
// at once must not stampede the provider.
type fetchCoalescer struct {
	mu       sync.Mutex
	inFlight map[string]*inFlightFetch
}

func newFetchCoalescer() *fetchCoalescer {
	return &fetchCoalescer{inFlight: make(map[string]*inFlightFetch)}
}

// GetOrDo returns the result of an in-flight fetch for key if one exists,
// otherwise runs fn and shares its result with any waiters. Waiting respects
// context cancellation.
func (fc *fetchCoalescer) GetOrDo(ctx context.Context, key string, fn func() (Record, error)) (Record, error) {
	fc.mu.Lock()
	if req, ok := fc.inFlight[key]; ok {
		fc.mu.Unlock()
		select {
		case <-req.done:
			return req.rec, req.err
		case <-ctx.Done():
			return Record{}, ctx.Err()
		}
	}

	req := &inFlightFetch{done: make(chan struct{})}
	fc.inFlight[key] = req
	fc.mu.Unlock()

	req.rec, req.err = fn()
	close(req.done)

	fc.mu.Lock()
	delete(fc.inFlight, key)
	fc.mu.Unlock()

	return req.rec, req.err
}
