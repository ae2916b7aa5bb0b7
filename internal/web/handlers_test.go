package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"formloc/internal/annotation"
	"formloc/internal/auth"
	"formloc/internal/cache"
	"formloc/internal/geolocation"
	"formloc/internal/submission"
	"formloc/internal/validation"
	"formloc/middleware"
	"formloc/models"
	"formloc/tests/testutils"
)

func setupServer(t *testing.T, response geolocation.Response) *testutils.TestServer {
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(response)
	}))
	t.Cleanup(provider.Close)

	factory, cleanup := testutils.SetupTestRepositoryFactory(t)
	t.Cleanup(cleanup)

	cfg := testutils.GetTestConfig()
	cfg.IPStackAccessKey = "testkey12345"

	request, err := cache.NewRequestCache(cfg.RequestCacheMaxSize)
	require.NoError(t, err)

	client := geolocation.NewClient(false)
	client.BaseURL = provider.URL

	layered := cache.NewMultiLayerCache(request, nil, factory.NewLocationRepository())
	resolver := geolocation.NewResolver(layered, client, cfg.IPStackAccessKey, cfg.SuccessCacheTTL, cfg.ErrorCacheTTL)

	settingsRepo := factory.NewFormSettingsRepository()
	submissionRepo := factory.NewSubmissionRepository()
	noteRepo := factory.NewNoteRepository()

	service := submission.NewService(settingsRepo, submissionRepo, resolver,
		validation.NewGate(resolver), annotation.NewAnnotator(noteRepo))

	handler := NewHandler(service, resolver, settingsRepo, submissionRepo, noteRepo)
	router := handler.SetupRoutes(auth.NewAuthHandlers(cfg), middleware.NewMiddleware(cfg))

	ts := testutils.NewTestServer(t, router)
	t.Cleanup(ts.Close)
	return ts
}

func usResponse() geolocation.Response {
	return geolocation.Response{CountryName: "United States", CountryCode: "US", City: "Mountain View"}
}

func TestHealthEndpoint(t *testing.T) {
	ts := setupServer(t, usResponse())

	var body map[string]string
	testutils.AssertJSONResponse(t, ts.GET("/healthz"), http.StatusOK, &body)
	assert.Equal(t, "ok", body["status"])
}

func TestCreateAndFetchSubmission(t *testing.T) {
	ts := setupServer(t, usResponse())

	var result submission.Result
	resp := ts.POST("/api/submissions", testutils.CreateTestSubmissionRequest("1", "8.8.8.8"))
	testutils.AssertJSONResponse(t, resp, http.StatusCreated, &result)

	require.NotNil(t, result.Submission)
	assert.False(t, result.Rejected)
	assert.Equal(t, "United States", result.Submission.Fields[1].Value)

	var fetched models.Submission
	testutils.AssertJSONResponse(t, ts.GET("/api/submissions/"+result.Submission.ID), http.StatusOK, &fetched)
	assert.Equal(t, result.Submission.ID, fetched.ID)

	var notes []models.SubmissionNote
	testutils.AssertJSONResponse(t, ts.GET("/api/submissions/"+result.Submission.ID+"/notes"), http.StatusOK, &notes)
	require.Len(t, notes, 1)
	assert.Contains(t, notes[0].Text, "IP Location detected")
}

func TestCreateSubmissionRejection(t *testing.T) {
	ts := setupServer(t, usResponse())
	ts.Login("test_admin", "test_password")

	resp := ts.PUT("/api/forms/1/settings", models.FormSettings{
		ValidationEnabled: true,
		AllowedCountries:  []string{"Australia"},
	})
	testutils.AssertJSONResponse(t, resp, http.StatusOK, nil)

	var result submission.Result
	resp = ts.POST("/api/submissions", testutils.CreateTestSubmissionRequest("1", "8.8.8.8"))
	testutils.AssertJSONResponse(t, resp, http.StatusOK, &result)

	assert.True(t, result.Rejected)
	assert.Equal(t, models.DefaultRejectionMessage, result.Message)
}

func TestListSubmissions(t *testing.T) {
	ts := setupServer(t, usResponse())

	var empty []models.Submission
	testutils.AssertJSONResponse(t, ts.GET("/api/submissions"), http.StatusOK, &empty)
	assert.Empty(t, empty)

	for _, formID := range []string{"1", "2", "3"} {
		resp := ts.POST("/api/submissions", testutils.CreateTestSubmissionRequest(formID, "8.8.8.8"))
		testutils.AssertJSONResponse(t, resp, http.StatusCreated, nil)
	}

	var listed []models.Submission
	testutils.AssertJSONResponse(t, ts.GET("/api/submissions"), http.StatusOK, &listed)
	assert.Len(t, listed, 3)

	testutils.AssertJSONResponse(t, ts.GET("/api/submissions?limit=2"), http.StatusOK, &listed)
	assert.Len(t, listed, 2)

	testutils.AssertErrorResponse(t, ts.GET("/api/submissions?limit=0"), http.StatusBadRequest, "Invalid limit")
}

func TestGetSubmissionNotFound(t *testing.T) {
	ts := setupServer(t, usResponse())
	testutils.AssertErrorResponse(t, ts.GET("/api/submissions/missing"), http.StatusNotFound, "Submission not found")
}

func TestGetLocation(t *testing.T) {
	ts := setupServer(t, usResponse())

	var loc models.Location
	testutils.AssertJSONResponse(t, ts.GET("/api/location/8.8.8.8"), http.StatusOK, &loc)
	assert.Equal(t, "United States", loc.CountryName)
	assert.False(t, loc.IsError)
}

func TestFormSettingsDefaultsWhenUnset(t *testing.T) {
	ts := setupServer(t, usResponse())

	var settings models.FormSettings
	testutils.AssertJSONResponse(t, ts.GET("/api/forms/9/settings"), http.StatusOK, &settings)
	assert.Equal(t, "9", settings.FormID)
	assert.False(t, settings.ValidationEnabled)
}

func TestUpdateFormSettingsRequiresAuth(t *testing.T) {
	ts := setupServer(t, usResponse())

	resp := ts.PUT("/api/forms/1/settings", models.FormSettings{})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestUpdateFormSettingsRejectsEmptyAllowList(t *testing.T) {
	ts := setupServer(t, usResponse())
	ts.Login("test_admin", "test_password")

	resp := ts.PUT("/api/forms/1/settings", models.FormSettings{ValidationEnabled: true})
	testutils.AssertErrorResponse(t, resp, http.StatusBadRequest, "at least one allowed country")
}

func TestCacheEndpointsRequireAuth(t *testing.T) {
	ts := setupServer(t, usResponse())

	resp := ts.GET("/api/cache/stats")
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = ts.POST("/api/cache/clear", nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestCacheStatsAndClear(t *testing.T) {
	ts := setupServer(t, usResponse())
	ts.Login("test_admin", "test_password")

	// Populate the cache through a lookup.
	ts.GET("/api/location/8.8.8.8").Body.Close()

	var stats cacheStatsResponse
	testutils.AssertJSONResponse(t, ts.GET("/api/cache/stats"), http.StatusOK, &stats)
	assert.Equal(t, 1, stats.MemorySize)
	assert.Equal(t, 1, stats.PersistentCount)
	assert.Equal(t, int((24 * time.Hour).Seconds()), stats.SuccessTTLSecs)
	assert.Equal(t, int(time.Hour.Seconds()), stats.ErrorTTLSecs)

	var cleared cache.ClearResult
	testutils.AssertJSONResponse(t, ts.POST("/api/cache/clear", nil), http.StatusOK, &cleared)
	assert.Equal(t, 1, cleared.PersistentCleared)
	assert.Equal(t, 1, cleared.MemoryCleared)

	testutils.AssertJSONResponse(t, ts.GET("/api/cache/stats"), http.StatusOK, &stats)
	assert.Equal(t, 0, stats.MemorySize)
	assert.Equal(t, 0, stats.PersistentCount)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	ts := setupServer(t, usResponse())

	resp := ts.POST("/login", map[string]string{"username": "test_admin", "password": "wrong"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
