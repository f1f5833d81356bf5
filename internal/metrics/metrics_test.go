package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestStatus(t *testing.T) {
	assert.Equal(t, "ok", Status(nil))
	assert.Equal(t, "error", Status(errors.New("boom")))
}

func TestRegisterTwice(t *testing.T) {
	assert.NotPanics(t, func() {
		Register()
		Register()
	})
}

func TestMiddleware(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware())
	r.Get("/items/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	r.Get("/plain", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	before := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/items/{id}", "418"))
	for _, path := range []string{"/items/1", "/items/2"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusTeapot, rec.Code)
	}
	assert.Equal(t, before+2, testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/items/{id}", "418")))

	plainBefore := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/plain", "200"))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/plain", nil))
	assert.Equal(t, plainBefore+1, testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/plain", "200")))
}
