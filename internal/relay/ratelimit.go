package relay

import (
	"context"
	"io"

	"golang.org/x/time/rate"
)

// NewLimiter builds a token-bucket limiter capping aggregate throughput at
// bytesPerSec across every reader that shares it (both directions of each
// connection it is handed to). A non-positive bytesPerSec disables
// limiting (nil Limiter). The burst is fixed at 32KB, generous enough to
// not choke a single AEAD chunk.
func NewLimiter(bytesPerSec int64) *rate.Limiter {
	if bytesPerSec <= 0 {
		return nil
	}
	const burst = 32 * 1024
	return rate.NewLimiter(rate.Limit(bytesPerSec), burst)
}

// throttledReader paces Read calls against a shared limiter so a relay's
// upload and download directions draw from the same token bucket. Each
// Read is capped at the limiter's burst, so WaitN is never asked for more
// tokens than the bucket can hold.
type throttledReader struct {
	ctx     context.Context
	r       io.Reader
	limiter *rate.Limiter
}

func throttle(ctx context.Context, r io.Reader, limiter *rate.Limiter) io.Reader {
	if limiter == nil {
		return r
	}
	return &throttledReader{ctx: ctx, r: r, limiter: limiter}
}

func (t *throttledReader) Read(p []byte) (int, error) {
	if b := t.limiter.Burst(); b > 0 && len(p) > b {
		p = p[:b]
	}
	n, err := t.r.Read(p)
	if n <= 0 {
		return n, err
	}
	if waitErr := t.limiter.WaitN(t.ctx, n); waitErr != nil {
		return n, waitErr
	}
	return n, err
}
