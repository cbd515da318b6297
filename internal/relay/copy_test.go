package relay

import (
	"bytes"
	"context"
	"errors"
	"net"
	"testing"
	"time"
)

func TestResetIdleDisabledForNonPositiveTimeout(t *testing.T) {
	src := bytes.NewReader([]byte("hi"))
	if r := resetIdle(src, 0); r != src {
		t.Error("resetIdle(r, 0) should return r unchanged")
	}
}

func TestResetIdlePassthroughForNonDeadliner(t *testing.T) {
	// bytes.Reader doesn't implement SetReadDeadline; resetIdle must not
	// wrap it even with a positive timeout.
	src := bytes.NewReader([]byte("hi"))
	if r := resetIdle(src, time.Second); r != src {
		t.Error("resetIdle should pass through a reader without SetReadDeadline")
	}
}

func TestPipeIdleTimeoutClosesRelay(t *testing.T) {
	aLocal, aRemote := net.Pipe()
	bLocal, bRemote := net.Pipe()
	defer aLocal.Close()
	defer bLocal.Close()
	defer aRemote.Close()
	defer bRemote.Close()

	done := make(chan error, 1)
	go func() {
		done <- pipe(context.Background(), aRemote, bRemote, nil, 20*time.Millisecond)
	}()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("pipe returned nil error, want a timeout error from the idle deadline")
		}
		var netErr net.Error
		if !errors.As(err, &netErr) || !netErr.Timeout() {
			t.Errorf("pipe error = %v, want a timeout net.Error", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("pipe did not return after its idle timeout elapsed")
	}
}

func TestPipeNoTimeoutDoesNotCloseIdleRelay(t *testing.T) {
	aLocal, aRemote := net.Pipe()
	bLocal, bRemote := net.Pipe()
	defer aLocal.Close()
	defer bLocal.Close()
	defer aRemote.Close()
	defer bRemote.Close()

	done := make(chan error, 1)
	go func() {
		done <- pipe(context.Background(), aRemote, bRemote, nil, 0)
	}()

	select {
	case err := <-done:
		t.Fatalf("pipe returned early with timeout disabled: %v", err)
	case <-time.After(50 * time.Millisecond):
		// Still running, as expected; unblock both copy directions by
		// closing both sides.
		aLocal.Close()
		bLocal.Close()
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pipe did not return after closing a side")
	}
}
