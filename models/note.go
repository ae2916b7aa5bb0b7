package models

import (
	"time"
)

type NoteSeverity string

const (
	NoteSuccess NoteSeverity = "success"
	NoteWarning NoteSeverity = "warning"
	NoteError   NoteSeverity = "error"
)

// NoteAuthor is the author recorded on system-generated submission notes.
const NoteAuthor = "formloc"

// SubmissionNote is a human-readable annotation attached to a stored
// submission. The annotation service writes at most one per submission.
type SubmissionNote struct {
	ID           string       `db:"id" json:"id" bson:"_id"`
	SubmissionID string       `db:"submission_id" json:"submission_id" bson:"submission_id"`
	Author       string       `db:"author" json:"author" bson:"author"`
	Text         string       `db:"text" json:"text" bson:"text"`
	Severity     NoteSeverity `db:"severity" json:"severity" bson:"severity"`
	CreatedAt    time.Time    `db:"created_at" json:"created_at" bson:"created_at"`
}
