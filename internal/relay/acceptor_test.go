package relay

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/postalsys/ssgo/internal/banlist"
)

type acceptAllHandler struct {
	served chan struct{}
}

func (h *acceptAllHandler) Serve(ctx context.Context, conn net.Conn) error {
	close(h.served)
	<-ctx.Done()
	return nil
}

func TestAcceptorRejectsBannedIP(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	bans := banlist.New()

	served := make(chan struct{}, 1)
	a := NewAcceptor(AcceptorConfig{
		Listener: ln,
		Bans:     bans,
		NewRelay: func() Handler {
			return &acceptAllHandler{served: served}
		},
	})

	// Ban loopback before any connection arrives so every dial is dropped
	// pre-handshake.
	bans.Ban("127.0.0.1")

	a.Start()
	defer a.Stop()

	conn, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	buf := make([]byte, 1)
	conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
	_, err = conn.Read(buf)
	if err == nil {
		t.Fatal("expected connection to be dropped by the banned-IP check")
	}

	select {
	case <-served:
		t.Fatal("handler should never have been invoked for a banned IP")
	default:
	}
}

func TestAcceptorServesUnbannedConnections(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	served := make(chan struct{}, 1)
	a := NewAcceptor(AcceptorConfig{
		Listener: ln,
		NewRelay: func() Handler {
			return &acceptAllHandler{served: served}
		},
	})
	a.Start()
	defer a.Stop()

	conn, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	select {
	case <-served:
	case <-time.After(2 * time.Second):
		t.Fatal("handler was never invoked")
	}
}

func TestStageString(t *testing.T) {
	if StageStream.String() != "stream" {
		t.Errorf("StageStream.String() = %q", StageStream.String())
	}
	if StageDestroyed.String() != "destroyed" {
		t.Errorf("StageDestroyed.String() = %q", StageDestroyed.String())
	}
}
