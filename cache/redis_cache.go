package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"academic-blog-api/models"
)

type RedisCache struct {
	Cli *redis.Client
	TTL time.Duration
}

func New(addr string, db int, ttlSeconds int) *RedisCache {
	return &RedisCache{
		Cli: redis.NewClient(&redis.Options{Addr: addr, DB: db}),
		TTL: time.Duration(ttlSeconds) * time.Second,
	}
}

func IDKey(id int64) string     { return "post:id:" + strconv.FormatInt(id, 10) }
func SlugKey(slug string) string { return "post:slug:" + slug }

func (r *RedisCache) Ping(ctx context.Context) error {
	return r.Cli.Ping(ctx).Err()
}

// GetPost returns the cached post under key. A miss is (nil, nil).
func (r *RedisCache) GetPost(ctx context.Context, key string) (*models.Post, error) {
	val, err := r.Cli.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var p models.Post
	if err := json.Unmarshal(val, &p); err != nil {
		// Entry written by an older shape; drop it and treat as a miss.
		_ = r.Cli.Del(ctx, key).Err()
		return nil, nil
	}
	return &p, nil
}

func (r *RedisCache) GetByID(ctx context.Context, id int64) (*models.Post, error) {
	return r.GetPost(ctx, IDKey(id))
}

func (r *RedisCache) GetBySlug(ctx context.Context, slug string) (*models.Post, error) {
	return r.GetPost(ctx, SlugKey(slug))
}

// SetPost stores p under both its id and slug keys.
func (r *RedisCache) SetPost(ctx context.Context, p *models.Post) error {
	b, err := json.Marshal(p)
	if err != nil {
		return err
	}
	_, err = r.Cli.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, IDKey(p.ID), b, r.TTL)
		pipe.Set(ctx, SlugKey(p.Slug), b, r.TTL)
		return nil
	})
	return err
}

// Invalidate drops the entries for id and every given slug.
func (r *RedisCache) Invalidate(ctx context.Context, id int64, slugs ...string) error {
	keys := []string{IDKey(id)}
	for _, s := range slugs {
		keys = append(keys, SlugKey(s))
	}
	return r.Cli.Del(ctx, keys...).Err()
}

func (r *RedisCache) Close() error {
	return r.Cli.Close()
}
