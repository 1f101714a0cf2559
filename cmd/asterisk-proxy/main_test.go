package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/asterisk-proxy/internal/ami"
	"github.com/sweeney/asterisk-proxy/internal/config"
	"github.com/sweeney/asterisk-proxy/internal/pbx"
)

func TestSetupLogger(t *testing.T) {
	if _, err := setupLogger(config.LogConfig{Level: "debug", Format: "console"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := setupLogger(config.LogConfig{Level: "verbose", Format: "json"}); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestEngineConfig(t *testing.T) {
	got := engineConfig(config.PBXConfig{
		Prefix:           "0039",
		InternalContext:  "from-internal",
		ParkLot:          "default",
		DTMFDelay:        250 * time.Millisecond,
		ExternalContexts: []string{"from-trunk"},
	})
	if got.Prefix != "0039" || got.InternalContext != "from-internal" || got.ParkLot != "default" {
		t.Errorf("unexpected mapping %+v", got)
	}
	if got.DTMFDelay != 250*time.Millisecond || len(got.ExternalContexts) != 1 {
		t.Errorf("unexpected mapping %+v", got)
	}
}

func TestGatewayWithoutSession(t *testing.T) {
	gw := &sessionGateway{}
	if gw.Connected() {
		t.Fatal("expected disconnected gateway")
	}
	if _, err := gw.Send(context.Background(), ami.NewAction("Ping")); !errors.Is(err, ami.ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

// pipeDialer returns a dialer whose switch accepts every action.
func pipeDialer(servers chan<- net.Conn) dialFunc {
	return func(_ context.Context, _ string, opts ...ami.ClientOption) (*ami.Client, error) {
		server, client := net.Pipe()
		go func() {
			if _, err := io.WriteString(server, "Asterisk Call Manager/5.0.1\r\n"); err != nil {
				return
			}
			p := ami.NewParser(server)
			for {
				a, ok := p.Next()
				if !ok {
					return
				}
				out := fmt.Sprintf("Response: Success\r\nActionID: %s\r\nMessage: ok\r\n\r\n", a.ActionID())
				if _, err := io.WriteString(server, out); err != nil {
					return
				}
			}
		}()
		servers <- server
		return ami.NewClient(client, opts...), nil
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSessionAttachesAndDetaches(t *testing.T) {
	servers := make(chan net.Conn, 1)
	gw := &sessionGateway{}
	engine := pbx.New(gw, nil, pbx.Config{})
	defer engine.Close()

	s := &session{
		cfg:    config.AMIConfig{Host: "127.0.0.1", Port: 5038, Username: "admin", Secret: "s3cret", ActionTimeout: time.Second},
		engine: engine,
		gw:     gw,
		logger: zap.NewNop(),
		dial:   pipeDialer(servers),
	}

	errCh := make(chan error, 1)
	go func() { errCh <- s.run(context.Background()) }()

	server := <-servers
	waitFor(t, gw.Connected)
	waitFor(t, s.booted.Load)

	server.Close()
	select {
	case err := <-errCh:
		if err == nil {
			t.Fatal("expected the session to report the lost connection")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("session did not end")
	}
	if gw.Connected() {
		t.Error("expected the gateway detached")
	}
}

func TestSessionStopsOnCancel(t *testing.T) {
	servers := make(chan net.Conn, 1)
	gw := &sessionGateway{}
	engine := pbx.New(gw, nil, pbx.Config{})
	defer engine.Close()

	s := &session{
		cfg:    config.AMIConfig{Host: "127.0.0.1", Port: 5038, Username: "admin", Secret: "s3cret", ActionTimeout: time.Second},
		engine: engine,
		gw:     gw,
		logger: zap.NewNop(),
		dial:   pipeDialer(servers),
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.run(ctx) }()

	server := <-servers
	defer server.Close()
	waitFor(t, s.booted.Load)
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("expected a clean stop, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("session did not stop")
	}
}
