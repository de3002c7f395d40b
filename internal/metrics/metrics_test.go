package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestViewer_IndependentRegistries(t *testing.T) {
	// Two instances must not panic on duplicate registration.
	a := NewViewer()
	b := NewViewer()

	a.FramesReceived.WithLabelValues("cam").Inc()
	assert.Equal(t, 1.0, testutil.ToFloat64(a.FramesReceived.WithLabelValues("cam")))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.FramesReceived.WithLabelValues("cam")))
}

func TestViewer_Forget(t *testing.T) {
	v := NewViewer()
	v.FramesRendered.WithLabelValues("cam").Add(3)
	v.Forget("cam")
	assert.Equal(t, 0, testutil.CollectAndCount(v.FramesRendered))
}

func TestHandler_ServesServerMetrics(t *testing.T) {
	s := NewServer()
	s.ActiveClients.Set(2)
	s.Quality.WithLabelValues("synthetic://bars").Set(65)

	srv := httptest.NewServer(Handler(s.Registry))
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	out := string(body)
	assert.True(t, strings.Contains(out, "frameserver_active_clients 2"), out)
	assert.True(t, strings.Contains(out, `frameserver_jpeg_quality{source="synthetic://bars"} 65`), out)
}
