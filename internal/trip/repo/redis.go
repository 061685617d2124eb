package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	errx "github.com/ecotravel/server/internal/core/errx"
	"github.com/ecotravel/server/internal/trip"
	logx "github.com/ecotravel/server/pkg/logger"
	"github.com/redis/go-redis/v9"
)

const (
	tripsKey    = "ecotravel:trips"
	settingsKey = "ecotravel:settings"
)

// RedisTripRepository stores trips as a Redis list of JSON documents and the
// user settings as a single JSON value. A zero TTL disables expiry.
type RedisTripRepository struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewRedisTripRepository(rdb redis.Cmdable, ttl time.Duration) *RedisTripRepository {
	return &RedisTripRepository{rdb: rdb, ttl: ttl}
}

func (r *RedisTripRepository) AddTrip(ctx context.Context, t trip.Trip) error {
	b, err := json.Marshal(t)
	if err != nil {
		logx.Error().Err(err).Str("trip_id", t.ID).Msg("failed to marshal trip")
		return fmt.Errorf("marshal trip: %w", err)
	}

	if err := r.rdb.RPush(ctx, tripsKey, b).Err(); err != nil {
		logx.Error().Err(err).Str("key", tripsKey).Msg("failed to push trip to redis")
		return errx.WrapRedis(err)
	}
	return r.touch(ctx, tripsKey)
}

func (r *RedisTripRepository) ListTrips(ctx context.Context) ([]trip.Trip, error) {
	rows, err := r.rdb.LRange(ctx, tripsKey, 0, -1).Result()
	if err != nil {
		if err == redis.Nil {
			return []trip.Trip{}, nil
		}
		logx.Error().Err(err).Str("key", tripsKey).Msg("failed to load trips from redis")
		return nil, errx.WrapRedis(err)
	}

	trips := make([]trip.Trip, 0, len(rows))
	for i, s := range rows {
		var t trip.Trip
		if err := json.Unmarshal([]byte(s), &t); err != nil {
			logx.Error().Err(err).Int("index", i).Msg("failed to unmarshal trip")
			return nil, fmt.Errorf("unmarshal trip at index %d: %w", i, err)
		}
		trips = append(trips, t)
	}
	return trips, nil
}

func (r *RedisTripRepository) LoadSettings(ctx context.Context) (trip.UserSettings, error) {
	raw, err := r.rdb.Get(ctx, settingsKey).Result()
	if err != nil {
		if err == redis.Nil {
			return trip.DefaultSettings(), nil
		}
		logx.Error().Err(err).Str("key", settingsKey).Msg("failed to load settings from redis")
		return trip.UserSettings{}, errx.WrapRedis(err)
	}

	var s trip.UserSettings
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return trip.UserSettings{}, fmt.Errorf("unmarshal settings: %w", err)
	}
	return s, nil
}

func (r *RedisTripRepository) SaveSettings(ctx context.Context, s trip.UserSettings) error {
	b, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	if err := r.rdb.Set(ctx, settingsKey, b, r.ttl).Err(); err != nil {
		logx.Error().Err(err).Str("key", settingsKey).Msg("failed to save settings to redis")
		return errx.WrapRedis(err)
	}
	return nil
}

// touch extends the TTL on write so active users keep their data warm.
func (r *RedisTripRepository) touch(ctx context.Context, key string) error {
	if r.ttl <= 0 {
		return nil
	}
	if ok, err := r.rdb.Expire(ctx, key, r.ttl).Result(); err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to set expire")
		return errx.WrapRedis(err)
	} else if !ok {
		logx.Warn().Str("key", key).Dur("ttl", r.ttl).Msg("failed to set TTL on key")
	}
	return nil
}

var _ trip.Repository = (*RedisTripRepository)(nil)
