package cache

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/soilwise/soilwise/internal/log"
)

func TestKeyNormalization(t *testing.T) {
	base := Key("What is bearing capacity?")

	equivalents := []string{
		"what is bearing capacity?",
		"  What is bearing capacity?  ",
		"WHAT IS BEARING CAPACITY?",
		"\tWhat is Bearing Capacity?\n",
	}
	for _, q := range equivalents {
		if got := Key(q); got != base {
			t.Errorf("Key(%q) = %q, want %q", q, got, base)
		}
	}

	if Key("what is settlement?") == base {
		t.Error("distinct queries produced the same key")
	}
}

func TestKeyShape(t *testing.T) {
	key := Key("any query")
	if !strings.HasPrefix(key, "answer:") {
		t.Errorf("key %q missing answer: prefix", key)
	}
	if got := len(strings.TrimPrefix(key, "answer:")); got != 16 {
		t.Errorf("fingerprint length = %d, want 16", got)
	}
}

func TestUnreachableBackendDegradesSilently(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	answers := New(client, time.Hour, log.NewNop())
	ctx := context.Background()

	if _, ok := answers.Get(ctx, "query"); ok {
		t.Error("Get() reported a hit against an unreachable backend")
	}

	// Must not panic or block beyond the dial timeout.
	answers.Put(ctx, "query", "answer")
}

func TestNewDefaultsTTL(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	defer client.Close()

	answers := New(client, 0, log.NewNop())
	if answers.ttl != DefaultTTL {
		t.Errorf("ttl = %v, want %v", answers.ttl, DefaultTTL)
	}
}
