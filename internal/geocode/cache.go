// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geocode

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/wneessen/mylocation/internal/geobus"
)

// coordPrecision is the precision used to quantize coordinates (0.0001 degrees ≈ 11 m)
const coordPrecision = 1e-4

type cacheKey struct {
	Provider string
	LatQ     int32
	LonQ     int32
}

type cacheEntry struct {
	Addresses []Address
	Expiry    time.Time
}

// CachedGeocoder wraps a Geocoder with a TTL cache keyed by quantized coordinates. Empty
// results are kept for the shorter miss TTL, errors are never cached.
type CachedGeocoder struct {
	coder   Geocoder
	ttlHit  time.Duration
	ttlMiss time.Duration
	clock   clockwork.Clock

	mu    sync.RWMutex
	cache map[cacheKey]cacheEntry
}

func NewCachedGeocoder(coder Geocoder, ttlHit, ttlMiss time.Duration) *CachedGeocoder {
	return &CachedGeocoder{
		coder:   coder,
		ttlHit:  ttlHit,
		ttlMiss: ttlMiss,
		clock:   clockwork.NewRealClock(),
		cache:   make(map[cacheKey]cacheEntry),
	}
}

func (c *CachedGeocoder) Name() string {
	return "geocoder cache using " + c.coder.Name()
}

func (c *CachedGeocoder) Reverse(ctx context.Context, coords geobus.Coordinate) ([]Address, error) {
	key := newKey(c.coder.Name(), coords.Lat, coords.Lon)

	c.mu.RLock()
	entry, ok := c.cache[key]
	if ok && c.clock.Now().Before(entry.Expiry) {
		addrs := make([]Address, len(entry.Addresses))
		copy(addrs, entry.Addresses)
		c.mu.RUnlock()
		for i := range addrs {
			addrs[i].CacheHit = true
		}
		return addrs, nil
	}
	c.mu.RUnlock()

	addrs, err := c.coder.Reverse(ctx, coords)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	ttl := c.ttlHit
	if len(addrs) == 0 {
		ttl = c.ttlMiss
	}
	c.cache[key] = cacheEntry{
		Addresses: append([]Address(nil), addrs...),
		Expiry:    c.clock.Now().Add(ttl),
	}

	return addrs, nil
}

func quantizeCoord(val float64) int32 {
	return int32(math.Round(val / coordPrecision))
}

func newKey(provider string, lat, lon float64) cacheKey {
	return cacheKey{
		Provider: provider,
		LatQ:     quantizeCoord(lat),
		LonQ:     quantizeCoord(lon),
	}
}
