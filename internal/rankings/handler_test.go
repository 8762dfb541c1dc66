package rankings

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/queuetimes/parkpulse/internal/snapshots"
)

func newTestRouter(store Store, now time.Time) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	handler := NewHandler(newTestService(store, recentJobs(now), now))
	handler.RegisterRoutes(router.Group("/api/v1"))
	return router
}

func doRequest(t *testing.T, router *gin.Engine, path string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	router.ServeHTTP(w, req)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w, body
}

func TestParkRankingsRejectsBadQuery(t *testing.T) {
	router := newTestRouter(&mockStore{}, time.Date(2025, 7, 4, 18, 0, 0, 0, time.UTC))

	w, body := doRequest(t, router, "/api/v1/rankings/parks?period=fortnight")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_period", body["error"])
	assert.NotEmpty(t, body["message"])

	w, body = doRequest(t, router, "/api/v1/rankings/parks?filter=disney-only")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_filter", body["error"])

	w, body = doRequest(t, router, "/api/v1/rankings/parks?limit=zero")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_limit", body["error"])
}

func TestParkRankingsEnvelope(t *testing.T) {
	now := time.Date(2025, 7, 4, 18, 40, 0, 0, time.UTC)
	store := &mockStore{}
	store.On("ListParks", mock.Anything, FilterAllParks).Return([]*snapshots.Park{
		testPark(1, "Magic Kingdom", true),
	}, nil)
	store.On("YesterdayDaily", mock.Anything, FilterAllParks).Return(map[int]*PeriodRow{
		1: {ParkID: 1, ShameSum: 12.0, OpenUnits: 4, TotalDowntimeHours: 2.5, RidesDown: 1, RidesOperating: 9},
	}, nil)

	router := newTestRouter(store, now)
	w, body := doRequest(t, router, "/api/v1/rankings/parks?period=yesterday")
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, true, body["success"])
	assert.Equal(t, "yesterday", body["period"])
	assert.Equal(t, "all-parks", body["filter"])
	assert.Equal(t, "shame", body["sort_by"])
	assert.NotEmpty(t, body["generated_at"])

	attribution, ok := body["attribution"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "Queue-Times.com", attribution["data_source"])

	data, ok := body["data"].([]interface{})
	require.True(t, ok)
	require.Len(t, data, 1)
	entry := data[0].(map[string]interface{})
	assert.Equal(t, float64(1), entry["rank"])
	assert.Equal(t, 3.0, entry["shame_score"])
}

func TestParkChartUnknownParkReturns404(t *testing.T) {
	now := time.Date(2025, 7, 4, 18, 0, 0, 0, time.UTC)
	store := &mockStore{}
	store.On("GetPark", mock.Anything, 99).Return(nil, nil)

	router := newTestRouter(store, now)
	w, body := doRequest(t, router, "/api/v1/parks/99/chart?period=live")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "park_not_found", body["error"])
}

func TestParkRidesReturnsRideList(t *testing.T) {
	now := time.Date(2025, 7, 4, 18, 0, 0, 0, time.UTC)
	store := &mockStore{}
	store.On("GetPark", mock.Anything, 1).Return(testPark(1, "Magic Kingdom", true), nil)
	tier := 1
	store.On("ListRides", mock.Anything, 1).Return([]*RideRow{
		{RideID: 10, ParkID: 1, Name: "Space Mountain", Tier: &tier},
	}, nil)

	router := newTestRouter(store, now)
	w, body := doRequest(t, router, "/api/v1/parks/1/rides")
	require.Equal(t, http.StatusOK, w.Code)

	data, ok := body["data"].([]interface{})
	require.True(t, ok)
	require.Len(t, data, 1)
	ride := data[0].(map[string]interface{})
	assert.Equal(t, "Space Mountain", ride["name"])
}
