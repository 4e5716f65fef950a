package jobs

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthWithoutInspector(t *testing.T) {
	h := NewHandler(nil, nil)

	rr := httptest.NewRecorder()
	h.health(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"queue":"default","pending":0}`, rr.Body.String())
}

func TestHandlerMountRoutes(t *testing.T) {
	h := NewHandler(nil, nil)
	r := chi.NewRouter()
	r.Route("/jobs", h.MountRoutes)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestPreviousPeriod(t *testing.T) {
	year, month := PreviousPeriod(time.Date(2026, time.January, 3, 9, 0, 0, 0, time.UTC))
	assert.Equal(t, 2025, year)
	assert.Equal(t, 12, month)

	year, month = PreviousPeriod(time.Date(2026, time.July, 31, 23, 0, 0, 0, time.UTC))
	assert.Equal(t, 2026, year)
	assert.Equal(t, 6, month)
}
