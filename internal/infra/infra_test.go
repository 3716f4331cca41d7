package infra

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"

	"github.com/congo-pay/flash_settlement/internal/config"
	"github.com/congo-pay/flash_settlement/internal/logging"
)

func TestConnectWithoutURLsUsesFallbacks(t *testing.T) {
	b, err := Connect(context.Background(), config.Config{}, logging.Discard())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer b.Close()
	if b.DB != nil || b.Cache != nil {
		t.Fatalf("expected no backends, got %+v", b)
	}
}

func TestConnectRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()

	b, err := Connect(context.Background(), config.Config{RedisURL: "redis://" + mr.Addr()}, logging.Discard())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer b.Close()
	if b.Cache == nil {
		t.Fatalf("expected redis client")
	}

	if _, err := NewRedisClient(context.Background(), "not-a-url"); err == nil {
		t.Fatalf("expected parse error")
	}
}
