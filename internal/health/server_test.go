package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vietddude/resilience/internal/core/domain"
	"github.com/vietddude/resilience/internal/resilience/netmon"
	"github.com/vietddude/resilience/internal/resilience/sink"
)

type fakeConn struct {
	online atomic.Bool
}

func (f *fakeConn) IsOnline() bool { return f.online.Load() }

func newTestServer(t *testing.T) (*httptest.Server, *fakeConn, *sink.Sink) {
	t.Helper()

	conn := &fakeConn{}
	conn.online.Store(true)
	s := sink.New(sink.Config{MaxQueueSize: 5}, nil, nil)
	t.Cleanup(func() { _ = s.Close(context.Background()) })

	srv := httptest.NewServer(NewServer(conn, s, 0).Handler())
	t.Cleanup(srv.Close)
	return srv, conn, s
}

func getJSON(t *testing.T, url string, v any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	return resp.StatusCode
}

func TestHealthEndpoints(t *testing.T) {
	r := require.New(t)
	srv, conn, s := newTestServer(t)

	var body map[string]string
	r.Equal(http.StatusOK, getJSON(t, srv.URL+"/health", &body))
	r.Equal("healthy", body["status"])

	resp, err := http.Head(srv.URL + "/health")
	r.NoError(err)
	resp.Body.Close()
	r.Equal(http.StatusOK, resp.StatusCode)

	conn.online.Store(false)
	s.Capture(errors.New("boom"))

	r.Equal(http.StatusOK, getJSON(t, srv.URL+"/health", &body))
	r.Equal("degraded", body["status"])

	var report Report
	r.Equal(http.StatusOK, getJSON(t, srv.URL+"/health/detailed", &report))
	r.Equal(StatusDegraded, report.Status)
	r.False(report.Online)
	r.Equal(1, report.QueueSize)
	r.Equal(5, report.QueueCapacity)
}

func TestErrorsEndpoint(t *testing.T) {
	r := require.New(t)
	srv, _, s := newTestServer(t)

	for i := 1; i <= 7; i++ {
		s.Capture(fmt.Errorf("e%d", i))
	}

	var page ErrorsResponse
	r.Equal(http.StatusOK, getJSON(t, srv.URL+"/errors?limit=2", &page))
	r.Equal(5, page.Total)
	r.Len(page.Errors, 2)
	r.Equal("e7", page.Errors[0].Message)
	r.Equal("e6", page.Errors[1].Message)
	r.Equal(domain.KindClient, page.Errors[0].Kind)

	r.Equal(http.StatusOK, getJSON(t, srv.URL+"/errors", &page))
	r.Len(page.Errors, 5)
	r.Equal("e3", page.Errors[4].Message)

	r.Equal(http.StatusOK, getJSON(t, srv.URL+"/errors?limit=0", &page))
	r.Empty(page.Errors)
	r.Equal(5, page.Total)

	r.Equal(http.StatusOK, getJSON(t, srv.URL+"/errors?limit=all", &page))
	r.Len(page.Errors, 5)

	var bad map[string]string
	r.Equal(http.StatusBadRequest, getJSON(t, srv.URL+"/errors?limit=many", &bad))
	r.Contains(bad["error"], "invalid limit")

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/errors", nil)
	r.NoError(err)
	resp, err := http.DefaultClient.Do(req)
	r.NoError(err)
	resp.Body.Close()
	r.Equal(http.StatusNoContent, resp.StatusCode)
	r.Equal(0, s.Len())

	resp, err = http.Post(srv.URL+"/errors", "application/json", nil)
	r.NoError(err)
	resp.Body.Close()
	r.Equal(http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	r := require.New(t)
	srv, _, s := newTestServer(t)
	s.Capture(errors.New("counted"))

	resp, err := http.Get(srv.URL + "/metrics")
	r.NoError(err)
	defer resp.Body.Close()
	r.Equal(http.StatusOK, resp.StatusCode)
}

func TestHealthServesPeerProbe(t *testing.T) {
	r := require.New(t)
	srv, _, _ := newTestServer(t)

	prober := netmon.NewHTTPProber(srv.URL+"/health", http.MethodHead, time.Second)
	r.NoError(prober.Probe(context.Background()))
}

func TestGRPCServer(t *testing.T) {
	r := require.New(t)

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	r.NoError(err)

	g := NewGRPCServer(0)
	done := make(chan error, 1)
	go func() { done <- g.Serve(lis) }()

	prober, err := netmon.NewGRPCProber(lis.Addr().String(), "")
	r.NoError(err)
	defer prober.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	r.NoError(prober.Probe(ctx))

	g.SetServing(false)
	var apiErr *domain.APIError
	r.ErrorAs(prober.Probe(ctx), &apiErr)
	r.Equal(http.StatusServiceUnavailable, apiErr.StatusCode)

	g.SetServing(true)
	r.NoError(prober.Probe(ctx))

	r.NoError(g.Stop(ctx))
	r.NoError(<-done)
}
