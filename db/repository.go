package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"formloc/models"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/mongo"
)

var (
	ErrNotFound = errors.New("record not found")
)

// Repository defines a common interface for all repositories
type Repository interface {
	Close() error
}

// LocationRepository is the persistent layer of the IP location cache. It
// survives process restarts, so object-cache evictions do not force
// redundant provider calls within the persisted TTL window.
type LocationRepository interface {
	Repository
	// FindByIP returns the cached location for an IP, or ErrNotFound when
	// absent or expired.
	FindByIP(ctx context.Context, ip string) (*models.Location, error)
	// FindByIPWithExpiry additionally reports when the entry expires, for
	// promotion into shorter-lived cache layers.
	FindByIPWithExpiry(ctx context.Context, ip string) (*models.Location, time.Time, error)
	Upsert(ctx context.Context, loc *models.Location, ttl time.Duration) error
	Count(ctx context.Context) (int, error)
	// DeleteAll removes every cached location and reports how many were
	// deleted.
	DeleteAll(ctx context.Context) (int, error)
	CleanupExpired(ctx context.Context) (int, error)
}

// SubmissionRepository stores processed submissions.
type SubmissionRepository interface {
	Repository
	Create(ctx context.Context, submission *models.Submission) error
	FindByID(ctx context.Context, id string) (*models.Submission, error)
	FindLatest(ctx context.Context, limit int) ([]*models.Submission, error)
}

// NoteRepository stores annotation notes attached to submissions.
type NoteRepository interface {
	Repository
	Create(ctx context.Context, note *models.SubmissionNote) error
	FindBySubmissionID(ctx context.Context, submissionID string) ([]*models.SubmissionNote, error)
}

// FormSettingsRepository stores per-form country restriction settings.
type FormSettingsRepository interface {
	Repository
	FindByFormID(ctx context.Context, formID string) (*models.FormSettings, error)
	Upsert(ctx context.Context, settings *models.FormSettings) (*models.FormSettings, error)
}

// RepositoryFactory creates repositories based on the database type
type RepositoryFactory struct {
	SQLiteDB    *sql.DB
	MongoClient *mongo.Client
	DBName      string
}

// NewRepositoryFactory creates a new repository factory
func NewRepositoryFactory(sqliteDB *sql.DB, mongoClient *mongo.Client, dbName string) *RepositoryFactory {
	return &RepositoryFactory{
		SQLiteDB:    sqliteDB,
		MongoClient: mongoClient,
		DBName:      dbName,
	}
}

// NewLocationRepository creates a new location cache repository
func (f *RepositoryFactory) NewLocationRepository() LocationRepository {
	if f.SQLiteDB != nil {
		return NewSQLiteLocationRepository(f.SQLiteDB)
	}
	return NewMongoLocationRepository(f.MongoClient, f.DBName, "geolocation_cache")
}

// NewSubmissionRepository creates a new submission repository
func (f *RepositoryFactory) NewSubmissionRepository() SubmissionRepository {
	if f.SQLiteDB != nil {
		return NewSQLiteSubmissionRepository(f.SQLiteDB)
	}
	return NewMongoSubmissionRepository(f.MongoClient, f.DBName, "submissions")
}

// NewNoteRepository creates a new submission note repository
func (f *RepositoryFactory) NewNoteRepository() NoteRepository {
	if f.SQLiteDB != nil {
		return NewSQLiteNoteRepository(f.SQLiteDB)
	}
	return NewMongoNoteRepository(f.MongoClient, f.DBName, "submission_notes")
}

// NewFormSettingsRepository creates a new form settings repository
func (f *RepositoryFactory) NewFormSettingsRepository() FormSettingsRepository {
	if f.SQLiteDB != nil {
		return NewSQLiteFormSettingsRepository(f.SQLiteDB)
	}
	return NewMongoFormSettingsRepository(f.MongoClient, f.DBName, "form_settings")
}

// GenerateID generates a unique ID for a record
func GenerateID() string {
	return uuid.New().String()
}
