package relay

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func TestNewLimiterDisabledForNonPositive(t *testing.T) {
	if l := NewLimiter(0); l != nil {
		t.Errorf("NewLimiter(0) = %v, want nil", l)
	}
	if l := NewLimiter(-100); l != nil {
		t.Errorf("NewLimiter(-100) = %v, want nil", l)
	}
}

func TestThrottlePassthroughWithNilLimiter(t *testing.T) {
	src := bytes.NewReader([]byte("passthrough"))
	r := throttle(context.Background(), src, nil)
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(got) != "passthrough" {
		t.Errorf("got %q, want %q", got, "passthrough")
	}
}

func TestThrottlePacesReads(t *testing.T) {
	payload := bytes.Repeat([]byte("x"), 4096)
	// A tight burst well under the payload size forces WaitN to actually
	// block once it's exhausted, rather than letting the whole read
	// through in one burst the way NewLimiter's 32KB burst would here.
	limiter := rate.NewLimiter(rate.Limit(100_000), 256)
	r := throttle(context.Background(), bytes.NewReader(payload), limiter)

	start := time.Now()
	got, err := io.ReadAll(r)
	elapsed := time.Since(start)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Error("throttled read did not preserve payload bytes")
	}
	if elapsed < 1*time.Millisecond {
		t.Errorf("elapsed = %v, too fast for a throttled read", elapsed)
	}
}
