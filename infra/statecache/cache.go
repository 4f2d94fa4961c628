// Package statecache mirrors vehicle, transport order and kernel state
// snapshots into Redis so dashboards and other services can read the fleet
// state without calling the kernel.
package statecache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kilianp07/agvkernel/core/model"
)

// Config holds the Redis connection settings.
type Config struct {
	Address  string        `json:"address"`
	Password string        `json:"password"`
	DB       int           `json:"db"`
	Prefix   string        `json:"prefix"`
	Timeout  time.Duration `json:"timeout"`
}

func (c *Config) SetDefaults() {
	if c.Address == "" {
		c.Address = "localhost:6379"
	}
	if c.Prefix == "" {
		c.Prefix = "agvkernel"
	}
	if c.Timeout <= 0 {
		c.Timeout = 3 * time.Second
	}
}

// backend is the key/set storage the cache writes to.
type backend interface {
	// Put stores val under key and adds member to set atomically.
	Put(ctx context.Context, set, member, key string, val []byte) error
	Set(ctx context.Context, key string, val []byte) error
	// Get returns nil without error for a missing key.
	Get(ctx context.Context, key string) ([]byte, error)
	Remove(ctx context.Context, set, member, key string) error
	Members(ctx context.Context, set string) ([]string, error)
	Delete(ctx context.Context, keys ...string) error
}

// Cache reads and writes state snapshots.
type Cache struct {
	b      backend
	prefix string
}

// NewRedisCache connects to Redis and checks the connection.
func NewRedisCache(ctx context.Context, cfg Config) (*Cache, *redis.Client, error) {
	cfg.SetDefaults()
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	if err := client.Ping(pctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("redis %s: %w", cfg.Address, err)
	}
	return New(client, cfg.Prefix), client, nil
}

// New returns a cache on an existing client.
func New(client redis.Cmdable, prefix string) *Cache {
	return newCache(redisBackend{c: client}, prefix)
}

func newCache(b backend, prefix string) *Cache {
	return &Cache{b: b, prefix: prefix}
}

func (c *Cache) vehiclesKey() string        { return c.prefix + ":vehicles" }
func (c *Cache) ordersKey() string          { return c.prefix + ":orders" }
func (c *Cache) kernelKey() string          { return c.prefix + ":kernel:state" }
func (c *Cache) vehicleKey(n string) string { return c.prefix + ":vehicle:" + n }
func (c *Cache) orderKey(n string) string   { return c.prefix + ":order:" + n }

func (c *Cache) PutVehicle(ctx context.Context, v model.Vehicle) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.b.Put(ctx, c.vehiclesKey(), v.Name, c.vehicleKey(v.Name), data)
}

// Vehicle returns the cached vehicle and whether it was present.
func (c *Cache) Vehicle(ctx context.Context, name string) (model.Vehicle, bool, error) {
	var v model.Vehicle
	ok, err := c.get(ctx, c.vehicleKey(name), &v)
	return v, ok, err
}

func (c *Cache) VehicleNames(ctx context.Context) ([]string, error) {
	return c.b.Members(ctx, c.vehiclesKey())
}

func (c *Cache) RemoveVehicle(ctx context.Context, name string) error {
	return c.b.Remove(ctx, c.vehiclesKey(), name, c.vehicleKey(name))
}

func (c *Cache) PutOrder(ctx context.Context, o model.TransportOrder) error {
	data, err := json.Marshal(o)
	if err != nil {
		return err
	}
	return c.b.Put(ctx, c.ordersKey(), o.Name, c.orderKey(o.Name), data)
}

// Order returns the cached transport order and whether it was present.
func (c *Cache) Order(ctx context.Context, name string) (model.TransportOrder, bool, error) {
	var o model.TransportOrder
	ok, err := c.get(ctx, c.orderKey(name), &o)
	return o, ok, err
}

func (c *Cache) OrderNames(ctx context.Context) ([]string, error) {
	return c.b.Members(ctx, c.ordersKey())
}

func (c *Cache) RemoveOrder(ctx context.Context, name string) error {
	return c.b.Remove(ctx, c.ordersKey(), name, c.orderKey(name))
}

func (c *Cache) SetKernelState(ctx context.Context, st model.KernelState) error {
	data, err := json.Marshal(st)
	if err != nil {
		return err
	}
	return c.b.Set(ctx, c.kernelKey(), data)
}

func (c *Cache) KernelState(ctx context.Context) (model.KernelState, bool, error) {
	var st model.KernelState
	ok, err := c.get(ctx, c.kernelKey(), &st)
	return st, ok, err
}

// Flush removes every cached vehicle and order.
func (c *Cache) Flush(ctx context.Context) error {
	var keys []string
	vs, err := c.VehicleNames(ctx)
	if err != nil {
		return err
	}
	for _, n := range vs {
		keys = append(keys, c.vehicleKey(n))
	}
	orders, err := c.OrderNames(ctx)
	if err != nil {
		return err
	}
	for _, n := range orders {
		keys = append(keys, c.orderKey(n))
	}
	keys = append(keys, c.vehiclesKey(), c.ordersKey())
	return c.b.Delete(ctx, keys...)
}

func (c *Cache) get(ctx context.Context, key string, out any) (bool, error) {
	data, err := c.b.Get(ctx, key)
	if err != nil || data == nil {
		return false, err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

type redisBackend struct {
	c redis.Cmdable
}

func (r redisBackend) Put(ctx context.Context, set, member, key string, val []byte) error {
	_, err := r.c.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, key, val, 0)
		pipe.SAdd(ctx, set, member)
		return nil
	})
	return err
}

func (r redisBackend) Set(ctx context.Context, key string, val []byte) error {
	return r.c.Set(ctx, key, val, 0).Err()
}

func (r redisBackend) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := r.c.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return data, err
}

func (r redisBackend) Remove(ctx context.Context, set, member, key string) error {
	_, err := r.c.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.SRem(ctx, set, member)
		return nil
	})
	return err
}

func (r redisBackend) Members(ctx context.Context, set string) ([]string, error) {
	return r.c.SMembers(ctx, set).Result()
}

func (r redisBackend) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return r.c.Del(ctx, keys...).Err()
}
