package session

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/XOOChatx/Chat-X/internal/retry"
	"github.com/XOOChatx/Chat-X/pkg/connector"
)

// QRCache keeps the latest challenge per session and collapses concurrent
// generations for the same session into one call.
type QRCache struct {
	group   singleflight.Group
	mu      sync.Mutex
	entries map[string]*connector.Challenge
	ttl     time.Duration
	clock   retry.Clock
}

// NewQRCache creates a cache. Challenges without their own expiry are
// valid for ttl after issue.
func NewQRCache(ttl time.Duration, clock retry.Clock) *QRCache {
	if clock == nil {
		clock = retry.RealClock()
	}
	return &QRCache{
		entries: make(map[string]*connector.Challenge),
		ttl:     ttl,
		clock:   clock,
	}
}

// Get returns the cached challenge for id if it is still fresh
func (c *QRCache) Get(id string) (*connector.Challenge, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch, ok := c.entries[id]
	if !ok {
		return nil, false
	}
	if ch.Expired(c.clock.Now()) {
		delete(c.entries, id)
		return nil, false
	}
	return ch, true
}

// Store caches ch for id and returns the stored copy with issue and expiry
// times filled in.
func (c *QRCache) Store(id string, ch *connector.Challenge) *connector.Challenge {
	stored := *ch
	if stored.IssuedAt.IsZero() {
		stored.IssuedAt = c.clock.Now()
	}
	if stored.ExpiresAt.IsZero() && c.ttl > 0 {
		stored.ExpiresAt = stored.IssuedAt.Add(c.ttl)
	}

	c.mu.Lock()
	c.entries[id] = &stored
	c.mu.Unlock()
	return &stored
}

// Invalidate drops the cached value and detaches any in-flight generation
// so the next request starts a new one.
func (c *QRCache) Invalidate(id string) {
	c.mu.Lock()
	delete(c.entries, id)
	c.mu.Unlock()
	c.group.Forget(id)
}

// RequestChallenge returns the fresh cached challenge or joins the single
// in-flight generation for id. generate runs detached from ctx so one
// caller giving up does not cancel it for the others; it is expected to
// Store its result. Errors are never cached.
func (c *QRCache) RequestChallenge(ctx context.Context, id string, generate func() (*connector.Challenge, error)) (*connector.Challenge, error) {
	if ch, ok := c.Get(id); ok {
		return ch, nil
	}

	resCh := c.group.DoChan(id, func() (interface{}, error) {
		if ch, ok := c.Get(id); ok {
			return ch, nil
		}
		return generate()
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-resCh:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*connector.Challenge), nil
	}
}
