package annotation

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	"formloc/db"
	"formloc/internal/util"
	"formloc/models"
)

// Facts accumulates what the geolocation features did to one submission.
// Each registration keeps at most one value per fact kind; a later
// registration for the same kind wins.
type Facts struct {
	Location         models.Location
	HasValidation    bool
	HasMergeTags     bool
	HasAPIError      bool
	AllowedCountries []string
	FieldsWithTags   []models.FieldTag
}

// Annotator collects per-submission facts from the independently triggered
// features (field population, country validation) and writes exactly one
// consolidated note per submission once it has been persisted.
type Annotator struct {
	mu      sync.Mutex
	pending map[string]*Facts
	notes   db.NoteRepository
}

// NewAnnotator creates an annotator writing through the given repository.
func NewAnnotator(notes db.NoteRepository) *Annotator {
	return &Annotator{
		pending: make(map[string]*Facts),
		notes:   notes,
	}
}

// factsFor returns the accumulator for a submission, creating it lazily.
// Callers must hold mu.
func (a *Annotator) factsFor(submissionID string) *Facts {
	facts, ok := a.pending[submissionID]
	if !ok {
		facts = &Facts{}
		a.pending[submissionID] = facts
	}
	return facts
}

// RegisterMergeTags records that location data was (or could not be)
// populated into the given fields.
func (a *Annotator) RegisterMergeTags(submissionID string, loc models.Location, fields []models.FieldTag, apiError bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	facts := a.factsFor(submissionID)
	facts.Location = loc
	facts.FieldsWithTags = fields
	facts.HasMergeTags = true
	if apiError {
		facts.HasAPIError = true
	}
}

// RegisterValidation records that country validation ran for a submission.
func (a *Annotator) RegisterValidation(submissionID string, loc models.Location, allowedCountries []string, apiError bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	facts := a.factsFor(submissionID)
	facts.Location = loc
	facts.AllowedCountries = allowedCountries
	facts.HasValidation = true
	if apiError {
		facts.HasAPIError = true
	}
}

// Pending reports whether facts are accumulated for a submission.
func (a *Annotator) Pending(submissionID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.pending[submissionID]
	return ok
}

// Discard drops accumulated facts without writing a note. Used for
// submissions that were rejected and never stored as accepted.
func (a *Annotator) Discard(submissionID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.pending, submissionID)
}

// Finalize composes and stores the single note for a submission and
// discards the accumulator. It fires at most once per submission: a second
// call for the same ID is a no-op, and a note-write failure is logged, not
// propagated, since the submission itself already succeeded.
func (a *Annotator) Finalize(ctx context.Context, submissionID string) {
	a.mu.Lock()
	facts, ok := a.pending[submissionID]
	if ok {
		delete(a.pending, submissionID)
	}
	a.mu.Unlock()

	if !ok {
		return
	}

	note := composeNote(facts)
	if note == nil {
		return
	}
	note.SubmissionID = submissionID
	note.Author = models.NoteAuthor

	err := util.RetryOnLock(func() error {
		return a.notes.Create(ctx, note)
	})
	if err != nil {
		log.Printf("Failed to attach location note to submission %s: %v", submissionID, err)
	}
}

// composeNote builds the note text and severity from accumulated facts.
// Priority order: API error first, then the combined and single-feature
// success notes. Returns nil when there is nothing worth noting.
func composeNote(facts *Facts) *models.SubmissionNote {
	if facts.HasAPIError {
		errorMessage := facts.Location.ErrorMessage
		if errorMessage == "" {
			errorMessage = "Unknown API error"
		}

		var text string
		if facts.HasMergeTags && len(facts.FieldsWithTags) > 0 {
			text = fmt.Sprintf(
				"IP Location service error: %s - Could not populate location data for fields: %s. Default or empty values were used.",
				errorMessage, fieldsText(facts.FieldsWithTags))
		} else {
			text = fmt.Sprintf(
				"IP Location service unavailable or error occurred: %s - Form submission was allowed to continue.",
				errorMessage)
		}
		return &models.SubmissionNote{Text: text, Severity: models.NoteError}
	}

	locationText := facts.Location.Text()

	switch {
	case facts.HasMergeTags && facts.HasValidation:
		return &models.SubmissionNote{
			Text: fmt.Sprintf("IP Location detected: %s. Data auto-populated in fields: %s. Country validation %s.",
				locationText, fieldsText(facts.FieldsWithTags), validationOutcome(facts)),
			Severity: models.NoteSuccess,
		}

	case facts.HasMergeTags:
		if locationText == "" || len(facts.FieldsWithTags) == 0 {
			return nil
		}
		return &models.SubmissionNote{
			Text: fmt.Sprintf("IP Location detected: %s. Data auto-populated in fields: %s.",
				locationText, fieldsText(facts.FieldsWithTags)),
			Severity: models.NoteSuccess,
		}

	case facts.HasValidation:
		severity := models.NoteSuccess
		if !countryAllowed(facts) {
			severity = models.NoteWarning
		}
		return &models.SubmissionNote{
			Text: fmt.Sprintf("IP Location detected: %s. Country validation %s.",
				locationText, validationOutcome(facts)),
			Severity: severity,
		}
	}

	return nil
}

func countryAllowed(facts *Facts) bool {
	for _, country := range facts.AllowedCountries {
		if country == facts.Location.CountryName {
			return true
		}
	}
	return false
}

func validationOutcome(facts *Facts) string {
	if countryAllowed(facts) {
		return "passed"
	}
	return "failed but submission was allowed"
}

func fieldsText(fields []models.FieldTag) string {
	labels := make([]string, len(fields))
	for i, field := range fields {
		labels[i] = field.FieldLabel
	}
	return strings.Join(labels, ", ")
}
