package relay

import (
	"context"
	"io"
	"time"

	"golang.org/x/time/rate"
)

// halfCloser is implemented by connections that support signaling EOF on
// one direction while leaving the other open (TCP sockets do, via
// CloseWrite).
type halfCloser interface {
	CloseWrite() error
}

// deadliner is implemented by connections that support an idle read
// deadline (net.Conn, and readWriter which forwards to one).
type deadliner interface {
	SetReadDeadline(time.Time) error
}

// idleReader pushes the read deadline of its own side, and of every peer
// side it was given, out by timeout before every Read, so the connection
// only times out once neither side has read for timeout. This is the Go
// analogue of tcprelay.cpp's timer-reset-on-readyRead: there the QTimer is
// restarted on every readable event and onTimeout() closes both sockets;
// here the deadline itself plays the timer's role and io.Copy's own
// eventual error return plays onTimeout's close.
type idleReader struct {
	r       io.Reader
	ds      []deadliner
	timeout time.Duration
}

// resetIdle wraps r with an idle deadline reset before every Read, applied
// to r and to each of peers that supports read deadlines. A non-positive
// timeout or an r that doesn't support read deadlines (throttle's wrapper,
// test fixtures built on net.Pipe-less readers) disables this and returns
// r unchanged.
func resetIdle(r io.Reader, timeout time.Duration, peers ...io.Reader) io.Reader {
	if timeout <= 0 {
		return r
	}
	d, ok := r.(deadliner)
	if !ok {
		return r
	}
	ds := []deadliner{d}
	for _, peer := range peers {
		if pd, ok := peer.(deadliner); ok {
			ds = append(ds, pd)
		}
	}
	return &idleReader{r: r, ds: ds, timeout: timeout}
}

func (ir *idleReader) Read(p []byte) (int, error) {
	deadline := time.Now().Add(ir.timeout)
	for _, d := range ir.ds {
		d.SetReadDeadline(deadline)
	}
	return ir.r.Read(p)
}

// pipe copies bidirectionally between a and b until both directions have
// seen EOF or an error, half-closing each side's write direction as its
// copy finishes so the peer observes EOF promptly rather than waiting for
// the whole relay to tear down. A non-nil limiter paces both directions
// out of the same token bucket, capping aggregate throughput. A positive
// timeout enforces the per-connection inactivity timer: it is reset on
// every read from either side, and an idle span longer than timeout closes
// the relay.
func pipe(ctx context.Context, a, b io.ReadWriter, limiter *rate.Limiter, timeout time.Duration) error {
	errCh := make(chan error, 2)

	go func() {
		_, err := io.Copy(b, throttle(ctx, resetIdle(a, timeout, b), limiter))
		if hc, ok := b.(halfCloser); ok {
			hc.CloseWrite()
		}
		errCh <- err
	}()

	go func() {
		_, err := io.Copy(a, throttle(ctx, resetIdle(b, timeout, a), limiter))
		if hc, ok := a.(halfCloser); ok {
			hc.CloseWrite()
		}
		errCh <- err
	}()

	err1 := <-errCh
	err2 := <-errCh
	if err1 != nil {
		return err1
	}
	return err2
}
