package app

import (
	"context"
	"testing"
	"time"
)

func TestNewRedisRateLimiter_PrefixNormalization(t *testing.T) {
	limiter := NewRedisRateLimiter(nil, "  custom:prefix:  ")
	if limiter.prefix != "custom:prefix" {
		t.Fatalf("expected trimmed prefix, got %q", limiter.prefix)
	}

	limiter = NewRedisRateLimiter(nil, "")
	if limiter.prefix != "htb:rate_limit" {
		t.Fatalf("expected default prefix, got %q", limiter.prefix)
	}
}

func TestConsumeRateLimit_NoopWithoutClientOrBudget(t *testing.T) {
	limiter := NewRedisRateLimiter(nil, "")

	count, retryAfter, err := limiter.ConsumeRateLimit(context.Background(), "code_submit", "buyer-1", 10, time.Minute)
	if err != nil {
		t.Fatalf("expected nil client to no-op, got %v", err)
	}
	if count != 0 || retryAfter != 0 {
		t.Fatalf("expected zero count without client, got count=%d retry=%d", count, retryAfter)
	}

	count, _, err = limiter.ConsumeRateLimit(context.Background(), "", "buyer-1", 10, time.Minute)
	if err != nil || count != 0 {
		t.Fatalf("expected empty scope to no-op, got count=%d err=%v", count, err)
	}
}
