package mcp

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServer_Run_StdioMode(t *testing.T) {
	s, _ := newTestServer(t, testConfig(t))

	// A cancelled context stops the stdio loop before it reads anything
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.NoError(t, s.Run(ctx))
}

func TestServer_Run_ServerMode(t *testing.T) {
	cfg := testConfig(t)
	cfg.Mode = "server"
	cfg.Port = 0
	s, _ := newTestServer(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down after cancellation")
	}
}

func TestServer_Run_AddressInUse(t *testing.T) {
	busy := httptest.NewServer(http.NotFoundHandler())
	defer busy.Close()

	cfg := testConfig(t)
	cfg.Mode = "server"
	s, _ := newTestServer(t, cfg)
	cfg.Host, cfg.Port = "127.0.0.1", busy.Listener.Addr().(*net.TCPAddr).Port

	err := s.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to serve http")
}

func TestServer_Handler(t *testing.T) {
	s, _ := newTestServer(t, testConfig(t))
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = srv.Client().Get(srv.URL + "/sessions/missing")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// The SSE transport answers on its endpoint and streams until the client
	// goes away
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/mcp/sse", nil)
	require.NoError(t, err)
	resp, err = srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")
}
