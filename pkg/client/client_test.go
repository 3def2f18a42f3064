package client

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	httpx "github.com/splax/servertracker/internal/http"
	"github.com/splax/servertracker/internal/repository/memory"
	envservice "github.com/splax/servertracker/internal/service/environment"
	serverservice "github.com/splax/servertracker/internal/service/server"
	"github.com/splax/servertracker/internal/validation"
	"github.com/splax/servertracker/internal/ws"
)

func TestNewNormalizesEndpoint(t *testing.T) {
	cases := map[string]string{
		"":                            "ws://localhost:5000/ws/server-tracker",
		"tracker:5000":                "ws://tracker:5000/ws/server-tracker",
		"https://tracker.example.com": "wss://tracker.example.com/ws/server-tracker",
		"ws://localhost:9000/custom":  "ws://localhost:9000/custom",
	}
	for in, want := range cases {
		cli, err := New(in)
		if err != nil {
			t.Fatalf("New(%q): %v", in, err)
		}
		if cli.Endpoint() != want {
			t.Fatalf("New(%q) endpoint = %q, want %q", in, cli.Endpoint(), want)
		}
	}
	if _, err := New("ftp://tracker"); err == nil {
		t.Fatal("expected unsupported scheme error")
	}
}

func startTracker(t *testing.T) string {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.NewSeeded()
	hub := ws.NewHub(
		envservice.New(store, logger),
		serverservice.New(store, validation.ServerValidator{}, logger),
		logger,
		ws.Options{MaxInflight: 1},
	)
	router := httpx.NewRouter(logger, hub, httpx.Options{WebsocketLimit: -1})
	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		hub.Close()
		router.Close()
		srv.Close()
	})
	return srv.URL
}

func TestConnRoundTrip(t *testing.T) {
	cli, err := New(startTracker(t))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := cli.Dial(ctx)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	envs, err := conn.CreateEnvironment(ctx, "QA")
	if err != nil {
		t.Fatalf("create environment: %v", err)
	}
	if len(envs) != 2 || envs[1].Name != "QA" {
		t.Fatalf("unexpected environments %+v", envs)
	}

	servers, err := conn.CreateServer(ctx, Server{
		EnvironmentID:   envs[1].ID,
		Name:            "qa-1",
		DomainName:      "qa1.test.com",
		IPAddress:       "10.1.0.1",
		OperatingSystem: "linux-x64",
	})
	if err != nil {
		t.Fatalf("create server: %v", err)
	}
	if len(servers) != 2 {
		t.Fatalf("expected 2 servers, got %+v", servers)
	}

	scoped, err := conn.ServersForEnvironment(ctx, envs[1].ID)
	if err != nil {
		t.Fatalf("servers for environment: %v", err)
	}
	if len(scoped) != 1 || scoped[0].Name != "qa-1" {
		t.Fatalf("unexpected scoped servers %+v", scoped)
	}

	_, err = conn.CreateServer(ctx, Server{Name: "broken"})
	var serverErr ServerError
	if !errors.As(err, &serverErr) {
		t.Fatalf("expected ServerError, got %v", err)
	}
	if serverErr.Message == "" {
		t.Fatal("expected validation message")
	}

	servers, err = conn.RemoveServer(ctx, scoped[0].ID)
	if err != nil {
		t.Fatalf("remove server: %v", err)
	}
	if len(servers) != 1 {
		t.Fatalf("expected seeded server only, got %+v", servers)
	}
}

func TestInvokeAfterCloseFails(t *testing.T) {
	cli, err := New(startTracker(t))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	conn, err := cli.Dial(context.Background())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	_ = conn.Close()
	if err := conn.Invoke(context.Background(), "GetAllServers"); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}
