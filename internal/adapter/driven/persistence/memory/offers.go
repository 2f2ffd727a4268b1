package memory

import (
	"sync"
	"time"

	"github.com/Wyydra/duet/internal/core/domain"
)

// OfferCache keeps the latest unanswered offer per room. With a zero ttl
// entries live until the next answer for the room.
type OfferCache struct {
	mu     sync.Mutex
	ttl    time.Duration
	now    func() time.Time
	offers map[domain.RoomID]domain.CachedOffer
}

type OfferCacheOption func(*OfferCache)

func WithTTL(ttl time.Duration) OfferCacheOption {
	return func(c *OfferCache) {
		c.ttl = ttl
	}
}

func WithClock(now func() time.Time) OfferCacheOption {
	return func(c *OfferCache) {
		c.now = now
	}
}

func NewOfferCache(opts ...OfferCacheOption) *OfferCache {
	c := &OfferCache{
		now:    time.Now,
		offers: make(map[domain.RoomID]domain.CachedOffer),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *OfferCache) Put(offer domain.CachedOffer) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if offer.StoredAt.IsZero() {
		offer.StoredAt = c.now()
	}
	c.offers[offer.RoomID] = offer
}

func (c *OfferCache) Get(room domain.RoomID) (domain.CachedOffer, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	offer, ok := c.offers[room]
	if !ok || offer.Expired(c.now(), c.ttl) {
		return domain.CachedOffer{}, false
	}
	return offer, true
}

func (c *OfferCache) Clear(room domain.RoomID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.offers, room)
}

// Sweep drops expired entries and returns how many were removed.
func (c *OfferCache) Sweep(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for room, offer := range c.offers {
		if offer.Expired(now, c.ttl) {
			delete(c.offers, room)
			removed++
		}
	}
	return removed
}

func (c *OfferCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.offers)
}
