package redisclient

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"

	"github.com/ncecere/usage_reports/backend/internal/config"
)

func TestNewDisabledWithoutURL(t *testing.T) {
	if client := New(config.RedisConfig{}); client != nil {
		t.Fatalf("expected nil client without url")
	}
	if err := Ping(context.Background(), nil); err != nil {
		t.Fatalf("nil client ping: %v", err)
	}
}

func TestNewParsesURLAndBareAddr(t *testing.T) {
	server, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer server.Close()

	for _, url := range []string{"redis://" + server.Addr(), server.Addr()} {
		client := New(config.RedisConfig{URL: url, PoolSize: 2})
		if client == nil {
			t.Fatalf("expected client for %q", url)
		}
		if err := Ping(context.Background(), client); err != nil {
			t.Fatalf("ping %q: %v", url, err)
		}
		if got := client.Options().PoolSize; got != 2 {
			t.Fatalf("pool size = %d", got)
		}
		client.Close()
	}
}
