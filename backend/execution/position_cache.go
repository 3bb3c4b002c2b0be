package execution

import (
	"sync"
	"time"

	"github.com/ocho011/ict-2025-sub000/backend/models"
)

// defaultPositionTTL is how long a cached position is considered fresh
// before Get forces a caller to treat it as unknown.
const defaultPositionTTL = 5 * time.Second

type cacheEntry struct {
	position    models.Position
	refreshedAt time.Time
}

// PositionCache is the sole source of truth for live position state. No
// other component — in particular the order gateway — may maintain its own
// view of open positions; everything funnels through here so there is
// exactly one place position state can go stale or be invalidated.
//
// Get/GetFresh never block on exchange I/O: they only read what has already
// been written by UpdateFromWebSocket or Invalidate. A symbol absent from
// the cache, or present but past its TTL, must be treated by the caller as
// an uncertain state — skip the decision rather than act on stale data.
type PositionCache struct {
	mu        sync.Mutex
	ttl       time.Duration
	positions map[string]cacheEntry
	cooldown  map[string]time.Time
}

// NewPositionCache constructs an empty cache with the given freshness TTL.
// A zero ttl uses the default of 5 seconds.
func NewPositionCache(ttl time.Duration) *PositionCache {
	if ttl <= 0 {
		ttl = defaultPositionTTL
	}
	return &PositionCache{
		ttl:       ttl,
		positions: make(map[string]cacheEntry),
		cooldown:  make(map[string]time.Time),
	}
}

// Get returns the cached position for symbol if one exists and was
// refreshed within the TTL. The second return value is false both when no
// position is cached and when the cached entry has gone stale — callers
// cannot distinguish "flat" from "unknown" through Get alone and must not
// try to; use GetFresh when that distinction matters.
func (c *PositionCache) Get(symbol string) (models.Position, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.positions[symbol]
	if !ok {
		return models.Position{}, false
	}
	if time.Since(entry.refreshedAt) > c.ttl {
		return models.Position{}, false
	}
	return entry.position, true
}

// GetFresh returns the cached position for symbol regardless of TTL,
// together with the time it was last refreshed. Used by callers that need
// to reason about staleness explicitly rather than have Get hide it.
func (c *PositionCache) GetFresh(symbol string) (models.Position, time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.positions[symbol]
	if !ok {
		return models.Position{}, time.Time{}, false
	}
	return entry.position, entry.refreshedAt, true
}

// UpdateFromWebSocket applies a batch of position updates received from the
// user-data stream. Only symbols present in allowedSymbols are written;
// updates for any other symbol are dropped rather than silently cached,
// since the engine never trades a symbol it wasn't configured for. A
// zero-quantity position clears the cached entry for its symbol rather
// than leaving a flat position on record.
func (c *PositionCache) UpdateFromWebSocket(updates []models.Position, allowedSymbols map[string]bool) {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, pos := range updates {
		if allowedSymbols != nil && !allowedSymbols[pos.Symbol] {
			continue
		}
		if pos.IsZero() {
			delete(c.positions, pos.Symbol)
			continue
		}
		c.positions[pos.Symbol] = cacheEntry{position: pos, refreshedAt: now}
	}
}

// Invalidate drops the cached entry for symbol, forcing the next Get to
// report the uncertain state until a fresh update arrives.
func (c *PositionCache) Invalidate(symbol string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.positions, symbol)
}

// InCooldown reports whether symbol is currently within its post-exit
// cooldown window, during which new entries for that symbol are withheld.
func (c *PositionCache) InCooldown(symbol string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	until, ok := c.cooldown[symbol]
	if !ok {
		return false
	}
	return time.Now().Before(until)
}

// StartCooldown begins (or restarts) a cooldown window for symbol.
func (c *PositionCache) StartCooldown(symbol string, d time.Duration) {
	if d <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cooldown[symbol] = time.Now().Add(d)
}
