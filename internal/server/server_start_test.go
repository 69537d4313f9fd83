package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/example/go-kitten-tts/internal/config"
	"github.com/example/go-kitten-tts/internal/tts"
)

func freeAddr(t *testing.T) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	addr := ln.Addr().String()
	ln.Close()

	return addr
}

func TestStart_LifecycleHealthAndShutdown(t *testing.T) {
	addr := freeAddr(t)

	cfg := config.DefaultConfig()
	cfg.Server.ListenAddr = addr

	s := New(cfg, tts.New(cfg.TTS, nil), nil).WithShutdownTimeout(2 * time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)

	go func() {
		errCh <- s.Start(ctx)
	}()

	client := &http.Client{Timeout: 2 * time.Second}

	var (
		resp *http.Response
		err  error
	)

	for range 50 {
		resp, err = client.Get(fmt.Sprintf("http://%s/health", addr))
		if err == nil {
			break
		}

		time.Sleep(20 * time.Millisecond)
	}

	if err != nil {
		t.Fatalf("server never became ready: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/health status = %d; want 200", resp.StatusCode)
	}

	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode /health: %v", err)
	}

	if body["status"] != "ok" {
		t.Errorf("status = %q; want ok", body["status"])
	}

	if body["state"] != string(tts.StateIdle) {
		t.Errorf("state = %q; want %q", body["state"], tts.StateIdle)
	}

	if err := ProbeHTTP(addr); err != nil {
		t.Errorf("ProbeHTTP() error = %v", err)
	}

	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Start() returned error on shutdown: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Start() did not return within 5s of context cancel")
	}
}

func TestStart_RequiresService(t *testing.T) {
	s := New(config.DefaultConfig(), nil, nil)
	if err := s.Start(context.Background()); err == nil {
		t.Fatal("Start() = nil; want error without a tts service")
	}
}

func TestStart_ListenErrorReturned(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Server.ListenAddr = "127.0.0.1:-1"

	s := New(cfg, tts.New(cfg.TTS, nil), nil)
	if err := s.Start(context.Background()); err == nil {
		t.Fatal("Start() = nil; want listen error")
	}
}

func TestHandler_TTSBeforeLoadReturns503(t *testing.T) {
	cfg := config.DefaultConfig()

	h, err := New(cfg, tts.New(cfg.TTS, nil), nil).Handler()
	if err != nil {
		t.Fatalf("Handler() error = %v", err)
	}

	srv := httptest.NewServer(h)
	defer srv.Close()

	for _, path := range []string{"/tts", "/tts/stream"} {
		resp, err := http.Post(srv.URL+path, "application/json", strings.NewReader(`{"text":"Hello."}`))
		if err != nil {
			t.Fatalf("POST %s: %v", path, err)
		}
		resp.Body.Close()

		if resp.StatusCode != http.StatusServiceUnavailable {
			t.Errorf("POST %s status = %d; want 503", path, resp.StatusCode)
		}
	}
}

func TestProbeHTTP(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr bool
	}{
		{"healthy", http.StatusOK, false},
		{"unhealthy", http.StatusInternalServerError, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			err := ProbeHTTP(srv.Listener.Addr().String())
			if (err != nil) != tt.wantErr {
				t.Fatalf("ProbeHTTP() error = %v; wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestProbeHTTP_Unreachable(t *testing.T) {
	if err := ProbeHTTP(freeAddr(t)); err == nil {
		t.Fatal("ProbeHTTP() = nil; want connection error")
	}
}
