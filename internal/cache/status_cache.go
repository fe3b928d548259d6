package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"roamgate/internal/oicp"
)

const (
	statusKeyPrefix  = "roamgate:evse-status:"
	processKeyPrefix = "roamgate:process-id:"
)

// StatusCache remembers the last pushed status per EVSE so status pushes can
// be reduced to the records that actually changed, plus the partner process id
// seen per session for later correlation.
type StatusCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStatusCache returns a cache over the given redis client.
func NewStatusCache(client *redis.Client, ttl time.Duration) *StatusCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &StatusCache{client: client, ttl: ttl}
}

// SetStatus stores the status and reports whether it changed versus the
// previously cached value. An EVSE never seen before counts as changed.
func (c *StatusCache) SetStatus(ctx context.Context, id oicp.EvseID, status oicp.EVSEStatus) (bool, error) {
	key := statusKeyPrefix + id.String()
	prev, err := c.client.Get(ctx, key).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return false, err
	}
	if err := c.client.Set(ctx, key, string(status), c.ttl).Err(); err != nil {
		return false, err
	}
	return prev != string(status), nil
}

// Status reads the cached status; ok is false when none is cached.
func (c *StatusCache) Status(ctx context.Context, id oicp.EvseID) (oicp.EVSEStatus, bool, error) {
	v, err := c.client.Get(ctx, statusKeyPrefix+id.String()).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	status, err := oicp.ParseEVSEStatus(v)
	if err != nil {
		return "", false, err
	}
	return status, true, nil
}

// Changed filters a batch down to the records whose status differs from the
// cached value, updating the cache as it goes.
func (c *StatusCache) Changed(ctx context.Context, records []oicp.EVSEStatusRecord) ([]oicp.EVSEStatusRecord, error) {
	out := make([]oicp.EVSEStatusRecord, 0, len(records))
	for _, rec := range records {
		changed, err := c.SetStatus(ctx, rec.EvseID, rec.Status)
		if err != nil {
			return nil, err
		}
		if changed {
			out = append(out, rec)
		}
	}
	return out, nil
}

// StoreProcessID remembers the partner-assigned process id for a session.
func (c *StatusCache) StoreProcessID(ctx context.Context, sessionID oicp.SessionID, processID string) error {
	if processID == "" {
		return nil
	}
	return c.client.Set(ctx, processKeyPrefix+sessionID.String(), processID, c.ttl).Err()
}

// ProcessID reads the remembered process id for a session, if any.
func (c *StatusCache) ProcessID(ctx context.Context, sessionID oicp.SessionID) (string, error) {
	v, err := c.client.Get(ctx, processKeyPrefix+sessionID.String()).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return v, err
}
