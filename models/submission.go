package models

import (
	"time"
)

type SubmissionStatus string

const (
	SubmissionAccepted SubmissionStatus = "accepted"
	SubmissionRejected SubmissionStatus = "rejected"
)

// Submission represents one processed form submission.
type Submission struct {
	ID           string            `db:"id" json:"id" bson:"_id"`
	FormID       string            `db:"form_id" json:"form_id" bson:"form_id"`
	ClientIP     string            `db:"client_ip" json:"client_ip" bson:"client_ip"`
	Status       SubmissionStatus  `db:"status" json:"status" bson:"status"`
	RejectReason string            `db:"reject_reason" json:"reject_reason,omitempty" bson:"reject_reason,omitempty"`
	Fields       []SubmissionField `json:"fields" bson:"fields"`
	CreatedAt    time.Time         `db:"created_at" json:"created_at" bson:"created_at"`
}

// SubmissionField is a single field of a submission. Hidden fields may carry
// a location merge tag (for example "{user:country}") as their default value,
// which the pipeline replaces with resolved location data.
type SubmissionField struct {
	ID           string `db:"field_id" json:"id" bson:"id"`
	Label        string `db:"label" json:"label" bson:"label"`
	Type         string `db:"type" json:"type" bson:"type"`
	DefaultValue string `db:"default_value" json:"default_value,omitempty" bson:"default_value,omitempty"`
	Value        string `db:"value" json:"value" bson:"value"`
}

// FieldTag records which field was auto-populated from which merge tag, in
// the order the fields appeared, for use in the submission note.
type FieldTag struct {
	FieldID    string `json:"field_id" bson:"field_id"`
	FieldLabel string `json:"field_label" bson:"field_label"`
	TagType    string `json:"tag_type" bson:"tag_type"`
}
