package validation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"formloc/internal/cache"
	"formloc/internal/geolocation"
	"formloc/models"
	"formloc/tests/testutils"
)

func setupGate(t *testing.T, response geolocation.Response, accessKey string) (*Gate, *int32) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		json.NewEncoder(w).Encode(response)
	}))
	t.Cleanup(server.Close)

	factory, cleanup := testutils.SetupTestRepositoryFactory(t)
	t.Cleanup(cleanup)

	request, err := cache.NewRequestCache(100)
	require.NoError(t, err)

	client := geolocation.NewClient(false)
	client.BaseURL = server.URL

	layered := cache.NewMultiLayerCache(request, nil, factory.NewLocationRepository())
	resolver := geolocation.NewResolver(layered, client, accessKey, 24*time.Hour, time.Hour)
	return NewGate(resolver), &calls
}

func usResponse() geolocation.Response {
	return geolocation.Response{CountryName: "United States", CountryCode: "US", City: "Mountain View"}
}

func TestCheckPassesWhenValidationDisabled(t *testing.T) {
	gate, calls := setupGate(t, usResponse(), "testkey12345")
	settings := &models.FormSettings{FormID: "1", AllowedCountries: []string{"Australia"}}

	result := gate.Check(context.Background(), "8.8.8.8", settings)

	assert.True(t, result.Pass)
	assert.False(t, result.Resolved)
	assert.Equal(t, int32(0), atomic.LoadInt32(calls), "disabled validation must not resolve")
}

func TestCheckPassesWhenNoCountriesConfigured(t *testing.T) {
	gate, calls := setupGate(t, usResponse(), "testkey12345")
	settings := &models.FormSettings{FormID: "1", ValidationEnabled: true}

	result := gate.Check(context.Background(), "8.8.8.8", settings)

	assert.True(t, result.Pass)
	assert.False(t, result.Resolved)
	assert.Equal(t, int32(0), atomic.LoadInt32(calls), "empty allow-list must not resolve")
}

func TestCheckFailsClosedWithoutAccessKey(t *testing.T) {
	gate, calls := setupGate(t, usResponse(), "")
	settings := &models.FormSettings{FormID: "1", ValidationEnabled: true, AllowedCountries: []string{"Australia"}}

	result := gate.Check(context.Background(), "8.8.8.8", settings)

	assert.False(t, result.Pass)
	assert.True(t, result.ConfigError)
	assert.Equal(t, ConfigErrorMessage, result.Reason)
	assert.Equal(t, int32(0), atomic.LoadInt32(calls))
}

func TestCheckAllowsMatchingCountry(t *testing.T) {
	gate, _ := setupGate(t, usResponse(), "testkey12345")
	settings := testutils.CreateTestFormSettings("1", "Canada", "United States")

	result := gate.Check(context.Background(), "8.8.8.8", settings)

	assert.True(t, result.Pass)
	assert.True(t, result.Resolved)
	assert.False(t, result.APIError)
	assert.Equal(t, "United States", result.Location.CountryName)
}

func TestCheckRejectsDisallowedCountry(t *testing.T) {
	gate, _ := setupGate(t, usResponse(), "testkey12345")
	settings := testutils.CreateTestFormSettings("1", "Australia")

	result := gate.Check(context.Background(), "8.8.8.8", settings)

	assert.False(t, result.Pass)
	assert.True(t, result.Resolved)
	assert.Equal(t, models.DefaultRejectionMessage, result.Reason)
}

func TestCheckRejectionUsesCustomMessage(t *testing.T) {
	gate, _ := setupGate(t, usResponse(), "testkey12345")
	settings := &models.FormSettings{
		FormID:            "1",
		ValidationEnabled: true,
		AllowedCountries:  []string{"Australia"},
		RejectionMessage:  "Australian residents only.",
	}

	result := gate.Check(context.Background(), "8.8.8.8", settings)

	assert.False(t, result.Pass)
	assert.Equal(t, "Australian residents only.", result.Reason)
}

func TestCheckMatchIsCaseSensitive(t *testing.T) {
	gate, _ := setupGate(t, usResponse(), "testkey12345")
	settings := &models.FormSettings{FormID: "1", ValidationEnabled: true, AllowedCountries: []string{"united states"}}

	result := gate.Check(context.Background(), "8.8.8.8", settings)

	assert.False(t, result.Pass)
}

func TestCheckFailsOpenOnProviderError(t *testing.T) {
	response := geolocation.Response{Error: &geolocation.ResponseError{Code: 104, Info: "usage limit reached"}}
	gate, _ := setupGate(t, response, "testkey12345")
	settings := &models.FormSettings{FormID: "1", ValidationEnabled: true, AllowedCountries: []string{"Australia"}}

	result := gate.Check(context.Background(), "8.8.8.8", settings)

	assert.True(t, result.Pass, "provider failures must not block submitters")
	assert.True(t, result.APIError)
	assert.True(t, result.Resolved)
	assert.True(t, result.Location.IsError)
	assert.Equal(t, "usage limit reached", result.Location.ErrorMessage)
}
