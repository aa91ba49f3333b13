package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddlewareLabelsByPattern(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /things/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	h := Middleware(mux)

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "GET /things/{id}", "418"))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/things/7", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)

	after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "GET /things/{id}", "418"))
	assert.Equal(t, before+1, after)
}

func TestIncEvent(t *testing.T) {
	before := testutil.ToFloat64(eventsTotal.WithLabelValues(EventMessageSent))
	IncEvent(EventMessageSent)
	assert.Equal(t, before+1, testutil.ToFloat64(eventsTotal.WithLabelValues(EventMessageSent)))
}

func TestHandlerExposesCollectors(t *testing.T) {
	IncEvent(EventItemCreated)

	srv := httptest.NewServer(Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "sosed_events_total")
}
