package annotation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"formloc/db"
	"formloc/models"
	"formloc/tests/testutils"
)

func setupAnnotator(t *testing.T) (*Annotator, db.NoteRepository, db.SubmissionRepository) {
	factory, cleanup := testutils.SetupTestRepositoryFactory(t)
	t.Cleanup(cleanup)
	notes := factory.NewNoteRepository()
	return NewAnnotator(notes), notes, factory.NewSubmissionRepository()
}

func storeSubmission(t *testing.T, repo db.SubmissionRepository) string {
	sub := &models.Submission{
		ID:       db.GenerateID(),
		FormID:   "1",
		ClientIP: "8.8.8.8",
		Status:   models.SubmissionAccepted,
	}
	require.NoError(t, repo.Create(context.Background(), sub))
	return sub.ID
}

func testFieldTags() []models.FieldTag {
	return []models.FieldTag{
		{FieldID: "3", FieldLabel: "Country", TagType: "country"},
		{FieldID: "4", FieldLabel: "Hidden Field #4", TagType: "city"},
	}
}

func TestFinalizeWritesSingleCombinedNote(t *testing.T) {
	annotator, notes, submissions := setupAnnotator(t)
	ctx := context.Background()
	id := storeSubmission(t, submissions)

	loc := *testutils.CreateTestLocation("8.8.8.8")
	annotator.RegisterMergeTags(id, loc, testFieldTags(), false)
	annotator.RegisterValidation(id, loc, []string{"United States"}, false)

	annotator.Finalize(ctx, id)
	annotator.Finalize(ctx, id)

	stored, err := notes.FindBySubmissionID(ctx, id)
	require.NoError(t, err)
	require.Len(t, stored, 1, "exactly one note per submission")

	note := stored[0]
	assert.Equal(t, models.NoteAuthor, note.Author)
	assert.Equal(t, models.NoteSuccess, note.Severity)
	assert.Equal(t,
		"IP Location detected: Mountain View, United States (California). Data auto-populated in fields: Country, Hidden Field #4. Country validation passed.",
		note.Text)
}

func TestFinalizeMergeTagsOnly(t *testing.T) {
	annotator, notes, submissions := setupAnnotator(t)
	ctx := context.Background()
	id := storeSubmission(t, submissions)

	annotator.RegisterMergeTags(id, *testutils.CreateTestLocation("8.8.8.8"), testFieldTags(), false)
	annotator.Finalize(ctx, id)

	stored, err := notes.FindBySubmissionID(ctx, id)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t,
		"IP Location detected: Mountain View, United States (California). Data auto-populated in fields: Country, Hidden Field #4.",
		stored[0].Text)
	assert.Equal(t, models.NoteSuccess, stored[0].Severity)
}

func TestFinalizeValidationFailedButAllowed(t *testing.T) {
	annotator, notes, submissions := setupAnnotator(t)
	ctx := context.Background()
	id := storeSubmission(t, submissions)

	annotator.RegisterValidation(id, *testutils.CreateTestLocation("8.8.8.8"), []string{"Australia"}, false)
	annotator.Finalize(ctx, id)

	stored, err := notes.FindBySubmissionID(ctx, id)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t,
		"IP Location detected: Mountain View, United States (California). Country validation failed but submission was allowed.",
		stored[0].Text)
	assert.Equal(t, models.NoteWarning, stored[0].Severity)
}

func TestFinalizeAPIErrorWithFields(t *testing.T) {
	annotator, notes, submissions := setupAnnotator(t)
	ctx := context.Background()
	id := storeSubmission(t, submissions)

	loc := *testutils.CreateTestErrorLocation("8.8.8.8", "API Error", "usage limit reached")
	annotator.RegisterMergeTags(id, loc, testFieldTags(), true)
	annotator.Finalize(ctx, id)

	stored, err := notes.FindBySubmissionID(ctx, id)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t,
		"IP Location service error: usage limit reached - Could not populate location data for fields: Country, Hidden Field #4. Default or empty values were used.",
		stored[0].Text)
	assert.Equal(t, models.NoteError, stored[0].Severity)
}

func TestFinalizeAPIErrorWithoutFields(t *testing.T) {
	annotator, notes, submissions := setupAnnotator(t)
	ctx := context.Background()
	id := storeSubmission(t, submissions)

	loc := *testutils.CreateTestErrorLocation("8.8.8.8", "API Error", "usage limit reached")
	annotator.RegisterValidation(id, loc, []string{"Australia"}, true)
	annotator.Finalize(ctx, id)

	stored, err := notes.FindBySubmissionID(ctx, id)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t,
		"IP Location service unavailable or error occurred: usage limit reached - Form submission was allowed to continue.",
		stored[0].Text)
	assert.Equal(t, models.NoteError, stored[0].Severity)
}

func TestFinalizeWithoutFactsIsNoOp(t *testing.T) {
	annotator, notes, submissions := setupAnnotator(t)
	ctx := context.Background()
	id := storeSubmission(t, submissions)

	annotator.Finalize(ctx, id)

	stored, err := notes.FindBySubmissionID(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestDiscardDropsFacts(t *testing.T) {
	annotator, notes, submissions := setupAnnotator(t)
	ctx := context.Background()
	id := storeSubmission(t, submissions)

	annotator.RegisterMergeTags(id, *testutils.CreateTestLocation("8.8.8.8"), testFieldTags(), false)
	require.True(t, annotator.Pending(id))

	annotator.Discard(id)
	assert.False(t, annotator.Pending(id))

	annotator.Finalize(ctx, id)
	stored, err := notes.FindBySubmissionID(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, stored)
}
