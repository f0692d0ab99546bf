package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"installment-engine/internal/domain/model"
	"installment-engine/internal/domain/ports/repository"
	"installment-engine/internal/infra/metrics"
	red "installment-engine/internal/infra/redis"
)

var _ repository.CouponRepository = (*couponRepoCacheDecorator)(nil)

// couponRepoCacheDecorator serves coupon lookups from Redis. Unknown codes are not cached.
type couponRepoCacheDecorator struct {
	inner repository.CouponRepository
	cache red.RedisClient
	ttl   time.Duration
}

func NewCouponRepoCacheDecorator(inner repository.CouponRepository, cache red.RedisClient, ttl time.Duration) repository.CouponRepository {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &couponRepoCacheDecorator{
		inner: inner,
		cache: cache,
		ttl:   ttl,
	}
}

func couponKey(code string) string { return fmt.Sprintf("coupon:%s", code) }

func (d *couponRepoCacheDecorator) FindByCode(ctx context.Context, tx repository.Tx, code string) (*model.Coupon, error) {
	key := couponKey(code)
	val, err := d.cache.Get(ctx, key)
	if err == nil {
		var c model.Coupon
		if json.Unmarshal([]byte(val), &c) == nil {
			metrics.IncCacheRequest("coupon", "hit")
			return &c, nil
		}
	}

	metrics.IncCacheRequest("coupon", "miss")
	c, err := d.inner.FindByCode(ctx, tx, code)
	if err != nil {
		return nil, err
	}
	if bytes, err := json.Marshal(c); err == nil {
		_ = d.cache.Set(ctx, key, bytes, d.ttl)
	}
	return c, nil
}

func (d *couponRepoCacheDecorator) Save(ctx context.Context, tx repository.Tx, c *model.Coupon) error {
	if err := d.inner.Save(ctx, tx, c); err != nil {
		return err
	}
	_ = d.cache.Del(ctx, couponKey(c.Code))
	return nil
}
