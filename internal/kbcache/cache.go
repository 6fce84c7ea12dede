// Package kbcache holds the per-business, time-bounded cache of business
// configuration and knowledge entries.
package kbcache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"support-agent/internal/domain"
	"support-agent/internal/logger"
	"support-agent/internal/repository"
)

const (
	defaultTTL     = 5 * time.Minute
	defaultMaxSize = 100
)

// ErrNotFound is returned when a business is unknown or could not be loaded
// and no earlier copy is cached.
var ErrNotFound = errors.New("kbcache: business not found")

// Datastore is the backing store consulted on miss or expiry. Both calls
// must be idempotent reads.
type Datastore interface {
	FetchBusinessConfig(ctx context.Context, businessID string) (domain.BusinessContext, error)
	FetchKnowledgeBase(ctx context.Context, businessID string) ([]domain.KnowledgeEntry, error)
}

type cached struct {
	business  *domain.BusinessContext
	fetchedAt time.Time
}

// Cache serves BusinessContext values for up to ttl before refreshing them.
// A failed refresh keeps serving the previous value. Items never expire on
// their own inside go-cache; freshness is decided here so stale values stay
// available as a fallback.
type Cache struct {
	store   Datastore
	ttl     time.Duration
	maxSize int
	items   *gocache.Cache
	log     *zap.Logger
	now     func() time.Time
}

// New creates a Cache over store.
func New(store Datastore, ttl time.Duration, maxSize int, log *zap.Logger) (*Cache, error) {
	if store == nil {
		return nil, errors.New("kbcache: datastore must not be nil")
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if maxSize <= 0 {
		maxSize = defaultMaxSize
	}
	return &Cache{
		store:   store,
		ttl:     ttl,
		maxSize: maxSize,
		items:   gocache.New(gocache.NoExpiration, 0),
		log:     logger.OrNop(log),
		now:     time.Now,
	}, nil
}

// Get returns the business for id, loading it on miss or expiry. Datastore
// failures never surface: they degrade to the stale copy or ErrNotFound.
func (c *Cache) Get(ctx context.Context, businessID string) (*domain.BusinessContext, error) {
	businessID = strings.TrimSpace(businessID)
	if businessID == "" {
		return nil, ErrNotFound
	}

	var stale *cached
	if x, ok := c.items.Get(businessID); ok {
		entry := x.(*cached)
		if c.now().Sub(entry.fetchedAt) < c.ttl {
			c.log.Debug("knowledge cache hit", zap.String("business_id", businessID))
			return entry.business, nil
		}
		stale = entry
		c.log.Debug("knowledge cache expired", zap.String("business_id", businessID))
	} else {
		c.log.Debug("knowledge cache miss", zap.String("business_id", businessID))
	}

	biz, err := c.load(ctx, businessID)
	switch {
	case err == nil:
		c.put(businessID, biz)
		c.log.Info("knowledge base loaded",
			zap.String("business_id", businessID),
			zap.Int("entries", len(biz.KnowledgeBase)))
		return biz, nil
	case errors.Is(err, repository.ErrBusinessNotFound):
		c.items.Delete(businessID)
		c.log.Info("business not found", zap.String("business_id", businessID))
		return nil, ErrNotFound
	case stale != nil:
		c.log.Warn("knowledge refresh failed, serving stale copy",
			zap.String("business_id", businessID),
			zap.Duration("age", c.now().Sub(stale.fetchedAt)),
			zap.Error(err))
		return stale.business, nil
	default:
		c.log.Error("knowledge load failed", zap.String("business_id", businessID), zap.Error(err))
		return nil, ErrNotFound
	}
}

func (c *Cache) load(ctx context.Context, businessID string) (*domain.BusinessContext, error) {
	biz, err := c.store.FetchBusinessConfig(ctx, businessID)
	if err != nil {
		return nil, err
	}
	entries, err := c.store.FetchKnowledgeBase(ctx, businessID)
	if err != nil {
		return nil, fmt.Errorf("kbcache: fetch knowledge base: %w", err)
	}
	biz.ID = businessID
	biz.KnowledgeBase = entries
	biz.ApplyDefaults()
	return &biz, nil
}

func (c *Cache) put(businessID string, biz *domain.BusinessContext) {
	if _, exists := c.items.Get(businessID); !exists && c.items.ItemCount() >= c.maxSize {
		c.evictOldest()
	}
	c.items.Set(businessID, &cached{business: biz, fetchedAt: c.now()}, gocache.NoExpiration)
}

func (c *Cache) evictOldest() {
	var (
		oldestKey string
		oldestAt  time.Time
	)
	for key, item := range c.items.Items() {
		entry := item.Object.(*cached)
		if oldestKey == "" || entry.fetchedAt.Before(oldestAt) {
			oldestKey, oldestAt = key, entry.fetchedAt
		}
	}
	if oldestKey != "" {
		c.items.Delete(oldestKey)
		c.log.Debug("knowledge cache evicted", zap.String("business_id", oldestKey))
	}
}

// Clear evicts one business so the next Get refetches it.
func (c *Cache) Clear(businessID string) {
	c.items.Delete(strings.TrimSpace(businessID))
	c.log.Info("knowledge cache cleared", zap.String("business_id", businessID))
}

// ClearAll evicts every business.
func (c *Cache) ClearAll() {
	c.items.Flush()
	c.log.Info("knowledge cache flushed")
}

// Len reports the number of cached businesses, fresh or stale.
func (c *Cache) Len() int {
	return c.items.ItemCount()
}
