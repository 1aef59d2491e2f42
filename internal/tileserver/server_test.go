package tileserver

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mapviewer/internal/explore"
	"mapviewer/internal/geo"
	"mapviewer/internal/status"
)

type stubNavigator struct {
	err  error
	last geo.Point
}

func (n *stubNavigator) GoTo(p geo.Point) error {
	if err := p.Validate(); err != nil {
		return err
	}
	n.last = p
	return n.err
}

type stubStatus struct{ snap status.Snapshot }

func (s stubStatus) Snapshot() status.Snapshot { return s.snap }

func (s stubStatus) Lines() []string { return []string{"Window: Normal", "Zoom: 7"} }

func newTestServer(t *testing.T, nav Navigator) (*httptest.Server, *origin) {
	t.Helper()
	o := newOrigin(t, http.StatusOK)
	tc := newTestCache(t, o)
	st := stubStatus{snap: status.Snapshot{Zoom: 7, Position: geo.Point{Lat: 1, Lon: 2}}}
	srv := httptest.NewServer(NewServer("", tc, st, nav).Handler())
	t.Cleanup(srv.Close)
	return srv, o
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func TestStatus(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	resp, err := http.Get(srv.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	var snap status.Snapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	assert.Equal(t, 7, snap.Zoom)
	assert.Equal(t, geo.Point{Lat: 1, Lon: 2}, snap.Position)
}

func TestStatusText(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	resp, err := http.Get(srv.URL + "/status?format=text")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "Window: Normal\nZoom: 7\n", string(body))
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/plain")
}

func TestMetricsExposed(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestTileEndpoint(t *testing.T) {
	srv, o := newTestServer(t, nil)

	tests := []struct {
		path string
		code int
	}{
		{"/tile/2/1/3.png", http.StatusOK},
		{"/tile/2/1/3", http.StatusOK},
		{"/tile/x/1/3", http.StatusBadRequest},
		{"/tile/2/9/3", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, err := http.Get(srv.URL + tt.path)
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, tt.code, resp.StatusCode)
		})
	}
	assert.Equal(t, int32(1), o.hits.Load())
}

func TestGoTo(t *testing.T) {
	tests := []struct {
		name string
		body string
		err  error
		code int
	}{
		{"accepted", `{"lat":40.7128,"lon":-74.006}`, nil, http.StatusAccepted},
		{"invalid coordinate", `{"lat":95,"lon":0}`, nil, http.StatusBadRequest},
		{"malformed", `{"lat":`, nil, http.StatusBadRequest},
		{"busy", `{"lat":1,"lon":1}`, explore.ErrBusy, http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nav := &stubNavigator{err: tt.err}
			srv, _ := newTestServer(t, nav)

			resp, err := http.Post(srv.URL+"/goto", "application/json", strings.NewReader(tt.body))
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, tt.code, resp.StatusCode)
		})
	}
}

func TestGoToWithoutNavigator(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	resp, err := http.Post(srv.URL+"/goto", "application/json", strings.NewReader(`{"lat":1,"lon":1}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestPrefetchValidatesRequest(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"bad center", `{"centerLat":120,"centerLon":0,"zoom":3,"viewportWidth":800,"viewportHeight":600}`, http.StatusBadRequest},
		{"negative viewport", `{"centerLat":0,"centerLon":0,"zoom":3,"viewportWidth":-100000,"viewportHeight":800}`, http.StatusBadRequest},
		{"zero viewport", `{"centerLat":0,"centerLon":0,"zoom":3,"viewportWidth":800,"viewportHeight":0}`, http.StatusBadRequest},
		{"huge viewport", `{"centerLat":0,"centerLon":0,"zoom":3,"viewportWidth":100000000,"viewportHeight":800}`, http.StatusBadRequest},
		{"zoom too low", `{"centerLat":0,"centerLon":0,"zoom":1,"viewportWidth":800,"viewportHeight":600}`, http.StatusBadRequest},
		{"zoom too high", `{"centerLat":0,"centerLon":0,"zoom":25,"viewportWidth":800,"viewportHeight":600}`, http.StatusBadRequest},
		{"ok", `{"centerLat":0,"centerLon":0,"zoom":3,"viewportWidth":800,"viewportHeight":600}`, http.StatusAccepted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(srv.URL+"/prefetch", "application/json", strings.NewReader(tt.body))
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}
