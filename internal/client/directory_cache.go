package client

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
)

// Directory is the organizational lookup surface the cache decorates.
type Directory interface {
	GetSupervisor(ctx context.Context, userID string) (string, error)
	GetDepartmentHead(ctx context.Context, userID string) (string, error)
	GetRoleMembers(ctx context.Context, role string) ([]string, error)
	GetGroupMembers(ctx context.Context, group string) ([]string, error)
}

// CachedDirectory is a redis read-through cache in front of the directory
// client. Organizational lookups are the slow path when resolving approvers
// across many requests; cached answers may lag the directory by up to TTL,
// which is acceptable for supervisor/role data.
//
// Redis errors fall through to the underlying client, so a missing or broken
// cache never breaks resolution.
type CachedDirectory struct {
	inner Directory
	redis *redis.Client
	ttl   time.Duration
	log   zerolog.Logger
}

// NewCachedDirectory wraps inner with a redis cache.
func NewCachedDirectory(inner Directory, rdb *redis.Client, ttl time.Duration, log zerolog.Logger) *CachedDirectory {
	return &CachedDirectory{inner: inner, redis: rdb, ttl: ttl, log: log}
}

// GetSupervisor resolves through the cache.
func (c *CachedDirectory) GetSupervisor(ctx context.Context, userID string) (string, error) {
	return c.user(ctx, "dir:supervisor:"+userID, func() (string, error) {
		return c.inner.GetSupervisor(ctx, userID)
	})
}

// GetDepartmentHead resolves through the cache.
func (c *CachedDirectory) GetDepartmentHead(ctx context.Context, userID string) (string, error) {
	return c.user(ctx, "dir:dept-head:"+userID, func() (string, error) {
		return c.inner.GetDepartmentHead(ctx, userID)
	})
}

// GetRoleMembers resolves through the cache.
func (c *CachedDirectory) GetRoleMembers(ctx context.Context, role string) ([]string, error) {
	return c.members(ctx, "dir:role:"+role, func() ([]string, error) {
		return c.inner.GetRoleMembers(ctx, role)
	})
}

// GetGroupMembers resolves through the cache.
func (c *CachedDirectory) GetGroupMembers(ctx context.Context, group string) ([]string, error) {
	return c.members(ctx, "dir:group:"+group, func() ([]string, error) {
		return c.inner.GetGroupMembers(ctx, group)
	})
}

func (c *CachedDirectory) user(ctx context.Context, key string, fetch func() (string, error)) (string, error) {
	if cached, err := c.redis.Get(ctx, key).Result(); err == nil {
		return cached, nil
	} else if err != redis.Nil {
		c.log.Debug().Err(err).Str("key", key).Msg("directory cache read failed")
	}

	value, err := fetch()
	if err != nil {
		return "", err
	}
	if err := c.redis.Set(ctx, key, value, c.ttl).Err(); err != nil {
		c.log.Debug().Err(err).Str("key", key).Msg("directory cache write failed")
	}
	return value, nil
}

func (c *CachedDirectory) members(ctx context.Context, key string, fetch func() ([]string, error)) ([]string, error) {
	if cached, err := c.redis.Get(ctx, key).Result(); err == nil {
		var members []string
		if err := json.Unmarshal([]byte(cached), &members); err == nil {
			return members, nil
		}
	} else if err != redis.Nil {
		c.log.Debug().Err(err).Str("key", key).Msg("directory cache read failed")
	}

	members, err := fetch()
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(members); err == nil {
		if err := c.redis.Set(ctx, key, data, c.ttl).Err(); err != nil {
			c.log.Debug().Err(err).Str("key", key).Msg("directory cache write failed")
		}
	}
	return members, nil
}
