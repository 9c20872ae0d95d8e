package geo

import (
	"context"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/example/carpool-matching/internal/models"
)

// RedisCache shares geocode results across processes. Best-effort: any
// redis error is treated as a miss.
type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(addr, password string) *RedisCache {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	return &RedisCache{client: c}
}

func (r *RedisCache) Get(ctx context.Context, name string) (models.Coord, bool) {
	m, err := r.client.HGetAll(ctx, cacheKey(name)).Result()
	if err != nil || len(m) == 0 {
		return models.Coord{}, false
	}
	lat, err1 := strconv.ParseFloat(m["lat"], 64)
	lon, err2 := strconv.ParseFloat(m["lon"], 64)
	if err1 != nil || err2 != nil {
		return models.Coord{}, false
	}
	return models.Coord{Lat: lat, Lon: lon}, true
}

func (r *RedisCache) Set(ctx context.Context, name string, c models.Coord) {
	_ = r.client.HSet(ctx, cacheKey(name), map[string]interface{}{
		"lat": strconv.FormatFloat(c.Lat, 'f', 6, 64),
		"lon": strconv.FormatFloat(c.Lon, 'f', 6, 64),
	}).Err()
}

func cacheKey(name string) string { return "geocode:" + name }
