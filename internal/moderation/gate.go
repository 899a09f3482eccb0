package moderation

import "sync"

// Gate serializes calls into the external classifier. The provider is
// rate-limited and stateless per call, so concurrency buys nothing; a single
// mutex guards all channels. Contenders never block on it: TryAcquire fails
// fast and the caller requeues the whole check instead.
type Gate struct {
	mu sync.Mutex
}

// TryAcquire takes the gate without blocking. Returns false when another
// check holds it.
func (g *Gate) TryAcquire() bool {
	return g.mu.TryLock()
}

// Release frees the gate. Must only be called after a successful TryAcquire.
func (g *Gate) Release() {
	g.mu.Unlock()
}
