package controller

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/postalsys/ssgo/internal/profile"
)

// echoOnce accepts a single connection and echoes everything it reads back,
// until EOF, then closes.
func echoOnce(t *testing.T, ln net.Listener) {
	t.Helper()
	conn, err := ln.Accept()
	if err != nil {
		return
	}
	defer conn.Close()
	io.Copy(conn, conn)
}

func freePort(t *testing.T) uint16 {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("find free port: %v", err)
	}
	defer ln.Close()
	_, portStr, _ := net.SplitHostPort(ln.Addr().String())
	port, _ := strconv.Atoi(portStr)
	return uint16(port)
}

func buildConnectRequest(host string, port uint16) []byte {
	ip := net.ParseIP(host).To4()
	buf := make([]byte, 0, 10)
	buf = append(buf, 0x05, 0x01, 0x00, 0x01)
	buf = append(buf, ip...)
	portBuf := make([]byte, 2)
	binary.BigEndian.PutUint16(portBuf, port)
	buf = append(buf, portBuf...)
	return buf
}

// TestClientServerEndToEnd spins up a server-role Controller and a
// client-role Controller pointed at it, drives a real SOCKS5 CONNECT
// through the client, and asserts the byte counters on both ends advance.
func TestClientServerEndToEnd(t *testing.T) {
	destLn, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen dest: %v", err)
	}
	defer destLn.Close()
	go echoOnce(t, destLn)

	serverProfile := profile.Default()
	serverProfile.Method = "aes-256-gcm"
	serverProfile.Password = "integration-test-password"
	serverProfile.ServerAddress = "127.0.0.1"
	serverProfile.ServerPort = freePort(t)

	serverCtl, err := New(serverProfile, Options{IsLocal: false, AutoBan: true})
	if err != nil {
		t.Fatalf("New server controller: %v", err)
	}
	if err := serverCtl.Start(context.Background()); err != nil {
		t.Fatalf("Start server controller: %v", err)
	}
	defer serverCtl.Stop()

	clientProfile := profile.Default()
	clientProfile.Method = serverProfile.Method
	clientProfile.Password = serverProfile.Password
	clientProfile.ServerAddress = serverProfile.ServerAddress
	clientProfile.ServerPort = serverProfile.ServerPort
	clientProfile.LocalAddress = "127.0.0.1"
	clientProfile.LocalPort = freePort(t)

	clientCtl, err := New(clientProfile, Options{IsLocal: true})
	if err != nil {
		t.Fatalf("New client controller: %v", err)
	}
	if err := clientCtl.Start(context.Background()); err != nil {
		t.Fatalf("Start client controller: %v", err)
	}
	defer clientCtl.Stop()

	conn, err := net.Dial("tcp", clientCtl.Addr().String())
	if err != nil {
		t.Fatalf("dial client socks5: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte{0x05, 0x01, 0x00}); err != nil {
		t.Fatalf("write greeting: %v", err)
	}
	authReply := make([]byte, 2)
	if _, err := io.ReadFull(conn, authReply); err != nil {
		t.Fatalf("read auth reply: %v", err)
	}
	if authReply[0] != 0x05 || authReply[1] != 0x00 {
		t.Fatalf("auth reply = % x, want no-auth accepted", authReply)
	}

	destHost, destPortStr, _ := net.SplitHostPort(destLn.Addr().String())
	destPortInt, _ := strconv.Atoi(destPortStr)
	req := buildConnectRequest(destHost, uint16(destPortInt))
	if _, err := conn.Write(req); err != nil {
		t.Fatalf("write connect request: %v", err)
	}

	reply := make([]byte, 10)
	if _, err := io.ReadFull(conn, reply); err != nil {
		t.Fatalf("read connect reply: %v", err)
	}
	if reply[1] != 0x00 {
		t.Fatalf("connect reply code = %d, want success", reply[1])
	}

	payload := []byte("end to end through two controllers")
	if _, err := conn.Write(payload); err != nil {
		t.Fatalf("write payload: %v", err)
	}

	got := make([]byte, len(payload))
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, err := io.ReadFull(conn, got); err != nil {
		t.Fatalf("read echoed payload: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("echoed payload = %q, want %q", got, payload)
	}

	conn.Close()
	time.Sleep(100 * time.Millisecond)

	if clientCtl.BytesSent() == 0 {
		t.Error("client BytesSent() = 0, want > 0")
	}
	if serverCtl.BytesReceived() == 0 {
		t.Error("server BytesReceived() = 0, want > 0")
	}
}

func TestHTTPProxyFrontEnd(t *testing.T) {
	destLn, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen dest: %v", err)
	}
	defer destLn.Close()
	go echoOnce(t, destLn)

	serverProfile := profile.Default()
	serverProfile.Method = "chacha20-ietf-poly1305"
	serverProfile.Password = "http-front-end-test"
	serverProfile.ServerAddress = "127.0.0.1"
	serverProfile.ServerPort = freePort(t)

	serverCtl, err := New(serverProfile, Options{IsLocal: false})
	if err != nil {
		t.Fatalf("New server controller: %v", err)
	}
	if err := serverCtl.Start(context.Background()); err != nil {
		t.Fatalf("Start server controller: %v", err)
	}
	defer serverCtl.Stop()

	clientProfile := profile.Default()
	clientProfile.Method = serverProfile.Method
	clientProfile.Password = serverProfile.Password
	clientProfile.ServerAddress = serverProfile.ServerAddress
	clientProfile.ServerPort = serverProfile.ServerPort
	clientProfile.LocalAddress = "127.0.0.1"
	clientProfile.LocalPort = freePort(t)
	clientProfile.HTTPProxy = true

	clientCtl, err := New(clientProfile, Options{IsLocal: true})
	if err != nil {
		t.Fatalf("New client controller: %v", err)
	}
	if err := clientCtl.Start(context.Background()); err != nil {
		t.Fatalf("Start client controller: %v", err)
	}
	defer clientCtl.Stop()

	if clientCtl.HTTPAddr() == nil {
		t.Fatal("HTTPAddr() = nil, want a bound address when HTTPProxy is set")
	}
	if clientCtl.Addr().String() == clientCtl.HTTPAddr().String() {
		t.Fatal("socks5 and http proxy addresses must differ when HTTPProxy is set")
	}
}
