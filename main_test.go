package main

import (
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func TestRedisStores_OrdersNeverExpire(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	t.Cleanup(func() { _ = client.Close() })

	carts, orders := redisStores(client, 7*24*time.Hour)

	assert.Equal(t, 7*24*time.Hour, carts.TTL())
	assert.Zero(t, orders.TTL())
	assert.NotEqual(t, carts.Namespace(), orders.Namespace())
}
