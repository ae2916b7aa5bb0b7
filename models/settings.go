package models

import (
	"time"
)

// DefaultRejectionMessage is shown to submitters blocked by country
// validation when the form has no custom message configured.
const DefaultRejectionMessage = "Sorry, this form is only available to users from allowed countries."

// FormSettings represents per-form country restriction settings stored in
// the database.
type FormSettings struct {
	ID                string     `json:"id" db:"id" bson:"_id"`
	FormID            string     `json:"form_id" db:"form_id" bson:"form_id"`
	ValidationEnabled bool       `json:"validation_enabled" db:"validation_enabled" bson:"validation_enabled"`
	AllowedCountries  []string   `json:"allowed_countries" db:"allowed_countries" bson:"allowed_countries"`
	RejectionMessage  string     `json:"rejection_message" db:"rejection_message" bson:"rejection_message"`
	CreatedAt         *time.Time `json:"created_at" db:"created_at" bson:"created_at"`
	UpdatedAt         *time.Time `json:"updated_at" db:"updated_at" bson:"updated_at"`
}

// DefaultFormSettings returns settings for forms with no stored
// configuration: validation off, no country restrictions.
func DefaultFormSettings(formID string) *FormSettings {
	return &FormSettings{
		FormID:           formID,
		AllowedCountries: []string{},
		RejectionMessage: DefaultRejectionMessage,
	}
}

// Message returns the configured rejection message, falling back to the
// default when empty.
func (s *FormSettings) Message() string {
	if s.RejectionMessage == "" {
		return DefaultRejectionMessage
	}
	return s.RejectionMessage
}
