//go:build !integration

package postgres

import (
	"context"
	"time"

	"installment-engine/internal/domain/model"
	"installment-engine/internal/domain/ports/repository"
	red "installment-engine/internal/infra/redis"
)

// --- Mocks for Cache Decorator Tests ---

// mockInnerCouponRepo mocks the database repository that the coupon decorator wraps.
type mockInnerCouponRepo struct {
	FindByCodeFunc func(ctx context.Context, tx repository.Tx, code string) (*model.Coupon, error)
	SaveFunc       func(ctx context.Context, tx repository.Tx, c *model.Coupon) error
}

func (m *mockInnerCouponRepo) FindByCode(ctx context.Context, tx repository.Tx, code string) (*model.Coupon, error) {
	return m.FindByCodeFunc(ctx, tx, code)
}
func (m *mockInnerCouponRepo) Save(ctx context.Context, tx repository.Tx, c *model.Coupon) error {
	return m.SaveFunc(ctx, tx, c)
}

// mockRedisClient mocks our Redis client wrapper.
type mockRedisClient struct {
	GetFunc    func(ctx context.Context, key string) (string, error)
	SetFunc    func(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	DelFunc    func(ctx context.Context, keys ...string) error
	PingFunc   func(ctx context.Context) error
	IncrFunc   func(ctx context.Context, key string) (int64, error)
	ExpireFunc func(ctx context.Context, key string, expiration time.Duration) error
	CloseFunc  func() error
}

var _ red.RedisClient = &mockRedisClient{}

func (m *mockRedisClient) Get(ctx context.Context, key string) (string, error) {
	return m.GetFunc(ctx, key)
}
func (m *mockRedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if m.SetFunc == nil {
		return nil
	}
	return m.SetFunc(ctx, key, value, expiration)
}
func (m *mockRedisClient) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error) {
	return true, nil
}
func (m *mockRedisClient) Del(ctx context.Context, keys ...string) error {
	if m.DelFunc == nil {
		return nil
	}
	return m.DelFunc(ctx, keys...)
}
func (m *mockRedisClient) Ping(ctx context.Context) error { return m.PingFunc(ctx) }
func (m *mockRedisClient) Incr(ctx context.Context, key string) (int64, error) {
	return m.IncrFunc(ctx, key)
}
func (m *mockRedisClient) Expire(ctx context.Context, key string, expiration time.Duration) error {
	return m.ExpireFunc(ctx, key, expiration)
}
func (m *mockRedisClient) CompareAndDelete(ctx context.Context, key, value string) (bool, error) {
	return true, nil
}
func (m *mockRedisClient) Close() error { return m.CloseFunc() }
