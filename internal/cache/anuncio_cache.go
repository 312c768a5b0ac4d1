package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gmarko-dV/Integrador/internal/models"
)

const (
	anuncioKeyPrefix = "anuncio:"
	activeListKey    = "anuncios:activos"
)

// AnuncioCache keeps JSON copies of listings in Redis. A miss is reported
// as (nil, nil).
type AnuncioCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewAnuncioCache creates a listing cache whose entries expire after ttl.
func NewAnuncioCache(client *redis.Client, ttl time.Duration) *AnuncioCache {
	return &AnuncioCache{client: client, ttl: ttl}
}

func anuncioKey(id int64) string {
	return anuncioKeyPrefix + strconv.FormatInt(id, 10)
}

// Get returns the cached listing or nil on a miss.
func (c *AnuncioCache) Get(ctx context.Context, id int64) (*models.Anuncio, error) {
	data, err := c.client.Get(ctx, anuncioKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache get anuncio %d: %w", id, err)
	}
	var anuncio models.Anuncio
	if err := json.Unmarshal(data, &anuncio); err != nil {
		return nil, fmt.Errorf("cache decode anuncio %d: %w", id, err)
	}
	return &anuncio, nil
}

// Set stores a listing.
func (c *AnuncioCache) Set(ctx context.Context, anuncio *models.Anuncio) error {
	data, err := json.Marshal(anuncio)
	if err != nil {
		return fmt.Errorf("cache encode anuncio %d: %w", anuncio.ID, err)
	}
	return c.client.Set(ctx, anuncioKey(anuncio.ID), data, c.ttl).Err()
}

// GetActive returns the cached active listing page or nil on a miss.
func (c *AnuncioCache) GetActive(ctx context.Context) ([]models.Anuncio, error) {
	data, err := c.client.Get(ctx, activeListKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache get active anuncios: %w", err)
	}
	var anuncios []models.Anuncio
	if err := json.Unmarshal(data, &anuncios); err != nil {
		return nil, fmt.Errorf("cache decode active anuncios: %w", err)
	}
	return anuncios, nil
}

// SetActive stores the active listing page.
func (c *AnuncioCache) SetActive(ctx context.Context, anuncios []models.Anuncio) error {
	if anuncios == nil {
		anuncios = []models.Anuncio{}
	}
	data, err := json.Marshal(anuncios)
	if err != nil {
		return fmt.Errorf("cache encode active anuncios: %w", err)
	}
	return c.client.Set(ctx, activeListKey, data, c.ttl).Err()
}

// Invalidate drops a listing and the active page.
func (c *AnuncioCache) Invalidate(ctx context.Context, id int64) error {
	return c.client.Del(ctx, anuncioKey(id), activeListKey).Err()
}
