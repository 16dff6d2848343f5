package cache

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// unreachableAddr returns a local address nothing is listening on
func unreachableAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := l.Addr().String()
	l.Close()
	return addr
}

func TestNewDefaultsTTL(t *testing.T) {
	tests := []struct {
		name string
		ttl  time.Duration
		want time.Duration
	}{
		{name: "zero", ttl: 0, want: DefaultTTL},
		{name: "negative", ttl: -time.Second, want: DefaultTTL},
		{name: "explicit", ttl: time.Hour, want: time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(Options{Addr: "127.0.0.1:6379", TTL: tt.ttl})
			defer c.Close()
			if c.TTL() != tt.want {
				t.Errorf("Expected TTL %v, got %v", tt.want, c.TTL())
			}
		})
	}
}

func TestUnreachableServerIsAnErrorNotAMiss(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        unreachableAddr(t),
		DialTimeout: 200 * time.Millisecond,
		MaxRetries:  -1,
	})
	c := NewWithClient(client, time.Minute)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := c.Ping(ctx); err == nil {
		t.Fatal("Expected ping to fail")
	}

	_, ok, err := c.Get(ctx, "transcript:abc")
	if err == nil {
		t.Fatal("Expected get to fail")
	}
	if ok {
		t.Error("Failed lookup must not report a hit")
	}

	if err := c.Set(ctx, "transcript:abc", "hello"); err == nil {
		t.Error("Expected set to fail")
	}
}
