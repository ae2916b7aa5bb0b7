package submission

import (
	"context"
	"fmt"
	"log"

	"formloc/db"
	"formloc/internal/annotation"
	"formloc/internal/geolocation"
	"formloc/internal/util"
	"formloc/internal/validation"
	"formloc/models"
)

// Request is an inbound form submission from the form platform.
type Request struct {
	FormID   string                   `json:"form_id"`
	ClientIP string                   `json:"client_ip"`
	Fields   []models.SubmissionField `json:"fields"`
}

// Result is the pipeline outcome returned to the form platform. A rejected
// result carries the message the platform should display.
type Result struct {
	Submission *models.Submission `json:"submission"`
	Rejected   bool               `json:"rejected"`
	Message    string             `json:"message,omitempty"`
}

// Service orchestrates the submission pipeline: merge-tag field population,
// country validation, persistence, and the deferred annotation note.
type Service struct {
	settings    db.FormSettingsRepository
	submissions db.SubmissionRepository
	resolver    *geolocation.Resolver
	gate        *validation.Gate
	annotator   *annotation.Annotator
}

// NewService creates a submission service.
func NewService(
	settings db.FormSettingsRepository,
	submissions db.SubmissionRepository,
	resolver *geolocation.Resolver,
	gate *validation.Gate,
	annotator *annotation.Annotator,
) *Service {
	return &Service{
		settings:    settings,
		submissions: submissions,
		resolver:    resolver,
		gate:        gate,
		annotator:   annotator,
	}
}

// Process runs one submission through the pipeline. The submission ID is
// allocated up front so both features accumulate facts under the same key;
// the annotator is finalized exactly once, after the submission row exists.
func (s *Service) Process(ctx context.Context, req *Request) (*Result, error) {
	if req.FormID == "" {
		return nil, fmt.Errorf("form_id is required")
	}

	settings, err := s.formSettings(ctx, req.FormID)
	if err != nil {
		return nil, err
	}

	submission := &models.Submission{
		ID:       db.GenerateID(),
		FormID:   req.FormID,
		ClientIP: req.ClientIP,
		Fields:   req.Fields,
	}

	s.populateLocationFields(ctx, submission)

	gateResult := s.gate.Check(ctx, req.ClientIP, settings)
	if gateResult.Resolved || gateResult.APIError {
		s.annotator.RegisterValidation(submission.ID, gateResult.Location, settings.AllowedCountries, gateResult.APIError)
	}

	if !gateResult.Pass {
		// Hard failure: the submission never becomes an accepted entry, so
		// no note is written for it.
		s.annotator.Discard(submission.ID)

		submission.Status = models.SubmissionRejected
		submission.RejectReason = gateResult.Reason
		if err := s.store(ctx, submission); err != nil {
			return nil, err
		}

		log.Printf("Submission %s for form %s rejected: %s", submission.ID, req.FormID, gateResult.Reason)
		return &Result{Submission: submission, Rejected: true, Message: gateResult.Reason}, nil
	}

	submission.Status = models.SubmissionAccepted
	if err := s.store(ctx, submission); err != nil {
		return nil, err
	}

	// The submission is persisted; the consolidated note can be attached.
	s.annotator.Finalize(ctx, submission.ID)

	return &Result{Submission: submission}, nil
}

// populateLocationFields fills hidden fields carrying location merge tags.
// A single resolution serves every tagged field; on an error record the
// tags are replaced with empty values and the error is left to the
// annotation note.
func (s *Service) populateLocationFields(ctx context.Context, submission *models.Submission) {
	var tagged []models.FieldTag
	for _, field := range submission.Fields {
		if field.Type != "hidden" || !HasMergeTags(field.DefaultValue) {
			continue
		}
		label := field.Label
		if label == "" {
			label = "Hidden Field #" + field.ID
		}
		tagged = append(tagged, models.FieldTag{
			FieldID:    field.ID,
			FieldLabel: label,
			TagType:    FirstTagType(field.DefaultValue),
		})
	}

	if len(tagged) == 0 {
		log.Printf("Submission %s: no fields need location data, skipping lookup", submission.ID)
		return
	}

	loc := s.resolver.Resolve(ctx, submission.ClientIP)

	for i := range submission.Fields {
		field := &submission.Fields[i]
		if field.Type == "hidden" && HasMergeTags(field.DefaultValue) {
			field.Value = ReplaceMergeTags(field.DefaultValue, loc)
		}
	}

	s.annotator.RegisterMergeTags(submission.ID, loc, tagged, loc.IsError)
}

// formSettings loads the form's settings, falling back to defaults when the
// form has none stored.
func (s *Service) formSettings(ctx context.Context, formID string) (*models.FormSettings, error) {
	settings, err := s.settings.FindByFormID(ctx, formID)
	if err == db.ErrNotFound {
		return models.DefaultFormSettings(formID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load settings for form %s: %w", formID, err)
	}
	return settings, nil
}

func (s *Service) store(ctx context.Context, submission *models.Submission) error {
	err := util.RetryOnLock(func() error {
		return s.submissions.Create(ctx, submission)
	})
	if err != nil {
		return fmt.Errorf("failed to store submission: %w", err)
	}
	return nil
}
