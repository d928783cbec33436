package utils

import (
	"context"
	"testing"
	"time"
)

func TestRedisDefaultsStayBelowHeartbeatInterval(t *testing.T) {
	got := RedisConfig{}.withDefaults()

	// Presence heartbeats arrive every 10s; a redis call must never eat
	// a meaningful slice of that budget.
	if got.ReadTimeout >= 10*time.Second || got.WriteTimeout >= 10*time.Second {
		t.Fatalf("redis timeouts too close to the heartbeat interval: %+v", got)
	}
	if got.DialTimeout <= 0 || got.PingTimeout <= 0 {
		t.Fatalf("expected positive dial/ping timeouts, got %+v", got)
	}
	if got.PoolSize <= 0 {
		t.Fatalf("expected a default pool size, got %d", got.PoolSize)
	}
}

func TestRedisDefaultsKeepExplicitValues(t *testing.T) {
	got := RedisConfig{Addr: "x:1", PoolSize: 3, ReadTimeout: time.Second}.withDefaults()
	if got.Addr != "x:1" || got.PoolSize != 3 || got.ReadTimeout != time.Second {
		t.Fatalf("expected explicit values kept, got %+v", got)
	}
}

func TestOpenRedisRequiresAddr(t *testing.T) {
	if _, err := OpenRedis(context.Background(), RedisConfig{}); err == nil {
		t.Fatalf("expected error for missing addr")
	}
}
