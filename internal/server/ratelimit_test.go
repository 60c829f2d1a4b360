package server

import (
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func TestMultiLimiterBurst(t *testing.T) {
	ml := newMultiLimiter(rate.Limit(2), 2, time.Minute)
	key := "127.0.0.1"
	if !ml.allow(key) {
		t.Fatal("first allow should pass")
	}
	if !ml.allow(key) {
		t.Fatal("second allow should pass")
	}
	if ml.allow(key) {
		t.Fatal("third immediate allow should be limited")
	}
	// A different client has its own bucket.
	if !ml.allow("10.0.0.1") {
		t.Fatal("independent key should not be limited")
	}
}

func TestMultiLimiterTTLEviction(t *testing.T) {
	ml := newMultiLimiter(rate.Limit(1), 1, time.Millisecond)
	if !ml.allow("a") {
		t.Fatal("first allow should pass")
	}
	time.Sleep(5 * time.Millisecond)
	// Any later call prunes idle buckets; "a" then starts fresh.
	ml.allow("b")
	if !ml.allow("a") {
		t.Fatal("allow after ttl eviction should pass")
	}
}

func TestClientKey(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "127.0.0.1:54321"
	if got := clientKey(r); got != "127.0.0.1" {
		t.Fatalf("clientKey = %q", got)
	}
}
