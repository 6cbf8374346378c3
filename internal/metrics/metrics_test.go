package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMiddlewareLabelsByRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/api/admin/leads/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/api/admin/leads/{id}", "418"))
	for _, id := range []string{"a", "b"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/admin/leads/"+id, nil))
		assert.Equal(t, http.StatusTeapot, rec.Code)
	}
	after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/api/admin/leads/{id}", "418"))
	assert.Equal(t, before+2, after)
}

func TestRecordHelpers(t *testing.T) {
	before := testutil.ToFloat64(LeadsCreated.WithLabelValues("true"))
	RecordLeadCreated(true)
	assert.Equal(t, before+1, testutil.ToFloat64(LeadsCreated.WithLabelValues("true")))

	before = testutil.ToFloat64(StorageErrors.WithLabelValues("put"))
	RecordStorageError("put")
	assert.Equal(t, before+1, testutil.ToFloat64(StorageErrors.WithLabelValues("put")))
}
