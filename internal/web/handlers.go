package web

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"formloc/db"
	"formloc/internal/geolocation"
	"formloc/internal/submission"
	"formloc/internal/util"
	"formloc/models"
)

// Handler serves the JSON API consumed by the form platform and by
// operators managing the cache and per-form settings.
type Handler struct {
	submissionService *submission.Service
	resolver          *geolocation.Resolver
	settingsRepo      db.FormSettingsRepository
	submissionsRepo   db.SubmissionRepository
	notesRepo         db.NoteRepository
}

// NewHandler creates the API handler.
func NewHandler(
	submissionService *submission.Service,
	resolver *geolocation.Resolver,
	settingsRepo db.FormSettingsRepository,
	submissionsRepo db.SubmissionRepository,
	notesRepo db.NoteRepository,
) *Handler {
	return &Handler{
		submissionService: submissionService,
		resolver:          resolver,
		settingsRepo:      settingsRepo,
		submissionsRepo:   submissionsRepo,
		notesRepo:         notesRepo,
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// CreateSubmission runs a submission through the enrichment pipeline.
// Rejection is a successful pipeline outcome for the form platform, so it
// is reported in the body, not as an HTTP error.
func (h *Handler) CreateSubmission(w http.ResponseWriter, r *http.Request) {
	var req submission.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request format")
		return
	}

	result, err := h.submissionService.Process(r.Context(), &req)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	status := http.StatusCreated
	if result.Rejected {
		status = http.StatusOK
	}
	writeJSON(w, status, result)
}

const defaultSubmissionListLimit = 50

// ListSubmissions returns the most recent submissions, newest first,
// without their fields.
func (h *Handler) ListSubmissions(w http.ResponseWriter, r *http.Request) {
	limit := defaultSubmissionListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = n
	}

	submissions, err := h.submissionsRepo.FindLatest(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if submissions == nil {
		submissions = []*models.Submission{}
	}

	writeJSON(w, http.StatusOK, submissions)
}

// GetSubmission returns a stored submission with its fields.
func (h *Handler) GetSubmission(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	sub, err := h.submissionsRepo.FindByID(r.Context(), id)
	if err == db.ErrNotFound {
		writeError(w, http.StatusNotFound, "Submission not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, sub)
}

// GetSubmissionNotes returns the annotation notes for a submission.
func (h *Handler) GetSubmissionNotes(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	notes, err := h.notesRepo.FindBySubmissionID(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if notes == nil {
		notes = []*models.SubmissionNote{}
	}

	writeJSON(w, http.StatusOK, notes)
}

// GetLocation resolves an IP directly. Error classifications are part of
// the record, so the HTTP status is 200 either way.
func (h *Handler) GetLocation(w http.ResponseWriter, r *http.Request) {
	ip := mux.Vars(r)["ip"]
	writeJSON(w, http.StatusOK, h.resolver.Resolve(r.Context(), ip))
}

// cacheStatsResponse adds the TTL policy to the raw cache sizes.
type cacheStatsResponse struct {
	MemorySize      int `json:"memory_cache_size"`
	MemoryMaxSize   int `json:"memory_cache_max"`
	PersistentCount int `json:"persistent_cache_count"`
	SuccessTTLSecs  int `json:"success_cache_ttl_seconds"`
	ErrorTTLSecs    int `json:"error_cache_ttl_seconds"`
}

// CacheStats reports current cache sizes and the configured TTLs.
func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.resolver.Cache().Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, cacheStatsResponse{
		MemorySize:      stats.MemorySize,
		MemoryMaxSize:   stats.MemoryMaxSize,
		PersistentCount: stats.PersistentCount,
		SuccessTTLSecs:  int(h.resolver.SuccessTTL().Seconds()),
		ErrorTTLSecs:    int(h.resolver.ErrorTTL().Seconds()),
	})
}

// ClearCache empties all cache layers and reports per-layer counts.
func (h *Handler) ClearCache(w http.ResponseWriter, r *http.Request) {
	result, err := h.resolver.Cache().ClearAll(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	log.Printf("Cache cleared: %d persistent, %d object cache, %d memory entries",
		result.PersistentCleared, result.ObjectCleared, result.MemoryCleared)
	writeJSON(w, http.StatusOK, result)
}

// GetFormSettings returns a form's country restriction settings, or the
// defaults when none are stored.
func (h *Handler) GetFormSettings(w http.ResponseWriter, r *http.Request) {
	formID := mux.Vars(r)["formID"]

	settings, err := h.settingsRepo.FindByFormID(r.Context(), formID)
	if err == db.ErrNotFound {
		writeJSON(w, http.StatusOK, models.DefaultFormSettings(formID))
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, settings)
}

// UpdateFormSettings stores a form's country restriction settings.
func (h *Handler) UpdateFormSettings(w http.ResponseWriter, r *http.Request) {
	formID := mux.Vars(r)["formID"]

	var settings models.FormSettings
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request format")
		return
	}
	settings.FormID = formID

	if settings.ValidationEnabled && len(settings.AllowedCountries) == 0 {
		writeError(w, http.StatusBadRequest, "Country validation requires at least one allowed country")
		return
	}

	updated, err := util.RetryOnLockWithResult(func() (*models.FormSettings, error) {
		return h.settingsRepo.Upsert(r.Context(), &settings)
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, updated)
}
