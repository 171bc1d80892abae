// Package redis mirrors room occupancy into Redis so dashboards outside the
// process can read presence. The in-memory registry stays authoritative; keys
// carry a TTL so a crashed server leaves no ghosts.
package redis

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/warefront/presence/internal/domain"
)

const keyPrefix = "presence:room:"

type Mirror struct {
	rdb *redis.Client
	ttl time.Duration
}

type Config struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

func NewMirror(cfg Config) (*Mirror, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Mirror{rdb: rdb, ttl: ttl}, nil
}

// SetOccupancy writes the count; an emptied room is deleted rather than left
// at zero, matching the registry's lazy cleanup.
func (m *Mirror) SetOccupancy(room domain.RoomID, count int) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	key := keyPrefix + string(room)
	if count <= 0 {
		return m.rdb.Del(ctx, key).Err()
	}
	return m.rdb.Set(ctx, key, strconv.Itoa(count), m.ttl).Err()
}

func (m *Mirror) Close() error { return m.rdb.Close() }
