package events

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/honeynil/TicketPurchaseService/internal/infrastructure/observability"
	"github.com/honeynil/TicketPurchaseService/internal/infrastructure/redis"
	"github.com/honeynil/TicketPurchaseService/internal/models"
)

// CachedLookup keeps single-event snapshots in Redis for a short TTL. Absent
// events are never cached and the list call always goes to the source.
type CachedLookup struct {
	next  Lookup
	cache redis.RedisClient
	ttl   time.Duration
}

func NewCachedLookup(next Lookup, cache redis.RedisClient, ttl time.Duration) *CachedLookup {
	return &CachedLookup{next: next, cache: cache, ttl: ttl}
}

func eventKey(id int64) string {
	return fmt.Sprintf("event:%d", id)
}

func (c *CachedLookup) GetEvent(ctx context.Context, id int64) (*models.Event, bool) {
	key := eventKey(id)

	raw, err := c.cache.Get(ctx, key)
	switch {
	case err == nil:
		var event models.Event
		if err := json.Unmarshal([]byte(raw), &event); err == nil {
			observability.EventCache.WithLabelValues("hit").Inc()
			return &event, true
		}
		slog.Warn("dropping unreadable cached event", "key", key)
		if err := c.cache.Del(ctx, key); err != nil {
			slog.Error("failed to delete cached event", "key", key, "error", err)
		}
	case stderrors.Is(err, redis.ErrKeyNotFound):
	default:
		slog.Error("failed to read cached event", "key", key, "error", err)
		observability.EventCache.WithLabelValues("error").Inc()
	}
	observability.EventCache.WithLabelValues("miss").Inc()

	event, ok := c.next.GetEvent(ctx, id)
	if !ok {
		return nil, false
	}

	payload, err := json.Marshal(event)
	if err != nil {
		slog.Error("failed to encode event for cache", "event_id", id, "error", err)
		return event, true
	}
	if err := c.cache.Set(ctx, key, payload, c.ttl); err != nil {
		slog.Error("failed to cache event", "key", key, "error", err)
	}
	return event, true
}

func (c *CachedLookup) ListEvents(ctx context.Context) []models.Event {
	return c.next.ListEvents(ctx)
}
