package submission

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

	"formloc/db"
	"formloc/internal/annotation"
	"formloc/internal/cache"
	"formloc/internal/geolocation"
	"formloc/internal/validation"
	"formloc/models"
	"formloc/tests/testutils"
)

type pipeline struct {
	service     *Service
	settings    db.FormSettingsRepository
	submissions db.SubmissionRepository
	notes       db.NoteRepository
	calls       *int32
}

func setupPipeline(t *testing.T, response geolocation.Response, accessKey string) *pipeline {
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

	settings := factory.NewFormSettingsRepository()
	submissions := factory.NewSubmissionRepository()
	notes := factory.NewNoteRepository()
	annotator := annotation.NewAnnotator(notes)

	return &pipeline{
		service:     NewService(settings, submissions, resolver, validation.NewGate(resolver), annotator),
		settings:    settings,
		submissions: submissions,
		notes:       notes,
		calls:       &calls,
	}
}

func usResponse() geolocation.Response {
	return geolocation.Response{
		CountryName: "United States",
		CountryCode: "US",
		City:        "Mountain View",
		RegionName:  "California",
	}
}

func taggedRequest(formID string) *Request {
	return &Request{
		FormID:   formID,
		ClientIP: "8.8.8.8",
		Fields: []models.SubmissionField{
			{ID: "1", Label: "Name", Type: "text", Value: "Jane"},
			{ID: "2", Label: "Country", Type: "hidden", DefaultValue: "{user:country}"},
			{ID: "3", Type: "hidden", DefaultValue: "{user:city}"},
		},
	}
}

func TestProcessPopulatesHiddenFields(t *testing.T) {
	p := setupPipeline(t, usResponse(), "testkey12345")
	ctx := context.Background()

	result, err := p.service.Process(ctx, taggedRequest("1"))
	require.NoError(t, err)
	require.False(t, result.Rejected)

	sub := result.Submission
	assert.Equal(t, models.SubmissionAccepted, sub.Status)
	assert.Equal(t, "Jane", sub.Fields[0].Value)
	assert.Equal(t, "United States", sub.Fields[1].Value)
	assert.Equal(t, "Mountain View", sub.Fields[2].Value)
	assert.Equal(t, int32(1), atomic.LoadInt32(p.calls), "all tagged fields share one lookup")

	stored, err := p.submissions.FindByID(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, "United States", stored.Fields[1].Value)

	notes, err := p.notes.FindBySubmissionID(ctx, sub.ID)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t,
		"IP Location detected: Mountain View, United States (California). Data auto-populated in fields: Country, Hidden Field #3.",
		notes[0].Text)
}

func TestProcessValidationPassedCombinedNote(t *testing.T) {
	p := setupPipeline(t, usResponse(), "testkey12345")
	ctx := context.Background()

	_, err := p.settings.Upsert(ctx, &models.FormSettings{
		FormID:            "1",
		ValidationEnabled: true,
		AllowedCountries:  []string{"United States"},
	})
	require.NoError(t, err)

	result, err := p.service.Process(ctx, taggedRequest("1"))
	require.NoError(t, err)
	require.False(t, result.Rejected)

	notes, err := p.notes.FindBySubmissionID(ctx, result.Submission.ID)
	require.NoError(t, err)
	require.Len(t, notes, 1, "both features contribute to a single note")
	assert.Equal(t,
		"IP Location detected: Mountain View, United States (California). Data auto-populated in fields: Country, Hidden Field #3. Country validation passed.",
		notes[0].Text)
	assert.Equal(t, int32(1), atomic.LoadInt32(p.calls), "validation reuses the cached lookup")
}

func TestProcessRejectsDisallowedCountry(t *testing.T) {
	p := setupPipeline(t, usResponse(), "testkey12345")
	ctx := context.Background()

	_, err := p.settings.Upsert(ctx, &models.FormSettings{
		FormID:            "1",
		ValidationEnabled: true,
		AllowedCountries:  []string{"Australia"},
	})
	require.NoError(t, err)

	result, err := p.service.Process(ctx, &Request{FormID: "1", ClientIP: "8.8.8.8"})
	require.NoError(t, err)

	assert.True(t, result.Rejected)
	assert.Equal(t, models.DefaultRejectionMessage, result.Message)

	stored, err := p.submissions.FindByID(ctx, result.Submission.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SubmissionRejected, stored.Status)
	assert.Equal(t, models.DefaultRejectionMessage, stored.RejectReason)

	notes, err := p.notes.FindBySubmissionID(ctx, result.Submission.ID)
	require.NoError(t, err)
	assert.Empty(t, notes, "rejected submissions get no note")
}

func TestProcessFailsClosedWithoutAccessKey(t *testing.T) {
	p := setupPipeline(t, usResponse(), "")
	ctx := context.Background()

	_, err := p.settings.Upsert(ctx, &models.FormSettings{
		FormID:            "1",
		ValidationEnabled: true,
		AllowedCountries:  []string{"Australia"},
	})
	require.NoError(t, err)

	result, err := p.service.Process(ctx, &Request{FormID: "1", ClientIP: "8.8.8.8"})
	require.NoError(t, err)

	assert.True(t, result.Rejected)
	assert.Equal(t, validation.ConfigErrorMessage, result.Message)
	assert.Equal(t, int32(0), atomic.LoadInt32(p.calls))
}

func TestProcessFailsOpenOnProviderError(t *testing.T) {
	response := geolocation.Response{Error: &geolocation.ResponseError{Code: 104, Info: "usage limit reached"}}
	p := setupPipeline(t, response, "testkey12345")
	ctx := context.Background()

	_, err := p.settings.Upsert(ctx, &models.FormSettings{
		FormID:            "1",
		ValidationEnabled: true,
		AllowedCountries:  []string{"Australia"},
	})
	require.NoError(t, err)

	result, err := p.service.Process(ctx, taggedRequest("1"))
	require.NoError(t, err)

	assert.False(t, result.Rejected, "provider failures must not block submitters")
	assert.Equal(t, models.SubmissionAccepted, result.Submission.Status)
	assert.Equal(t, "", result.Submission.Fields[1].Value, "tags are blanked on error records")

	notes, err := p.notes.FindBySubmissionID(ctx, result.Submission.ID)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, models.NoteError, notes[0].Severity)
	assert.Equal(t,
		"IP Location service error: usage limit reached - Could not populate location data for fields: Country, Hidden Field #3. Default or empty values were used.",
		notes[0].Text)
}

func TestProcessSkipsLookupWithoutTaggedFields(t *testing.T) {
	p := setupPipeline(t, usResponse(), "testkey12345")
	ctx := context.Background()

	result, err := p.service.Process(ctx, &Request{
		FormID:   "1",
		ClientIP: "8.8.8.8",
		Fields: []models.SubmissionField{
			{ID: "1", Label: "Name", Type: "text", Value: "Jane"},
		},
	})
	require.NoError(t, err)

	assert.False(t, result.Rejected)
	assert.Equal(t, int32(0), atomic.LoadInt32(p.calls), "no tagged fields and no validation means no lookup")

	notes, err := p.notes.FindBySubmissionID(ctx, result.Submission.ID)
	require.NoError(t, err)
	assert.Empty(t, notes)
}

func TestProcessRequiresFormID(t *testing.T) {
	p := setupPipeline(t, usResponse(), "testkey12345")

	_, err := p.service.Process(context.Background(), &Request{ClientIP: "8.8.8.8"})
	assert.Error(t, err)
}
