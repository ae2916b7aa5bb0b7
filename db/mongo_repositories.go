package db

import (
	"context"
	"fmt"
	"time"

	"formloc/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// cachedLocation wraps a location with cache bookkeeping for MongoDB storage
type cachedLocation struct {
	ID        string          `bson:"_id"`
	StoreKey  string          `bson:"store_key"`
	Location  models.Location `bson:"location"`
	CreatedAt time.Time       `bson:"created_at"`
	UpdatedAt time.Time       `bson:"updated_at"`
	ExpiresAt time.Time       `bson:"expires_at"`
}

// MongoLocationRepository implements the LocationRepository interface for MongoDB
type MongoLocationRepository struct {
	client     *mongo.Client
	database   string
	collection string
}

// NewMongoLocationRepository creates a new MongoLocationRepository
func NewMongoLocationRepository(client *mongo.Client, database, collection string) *MongoLocationRepository {
	return &MongoLocationRepository{
		client:     client,
		database:   database,
		collection: collection,
	}
}

// Close closes the MongoDB connection
func (r *MongoLocationRepository) Close() error {
	return r.client.Disconnect(context.Background())
}

func (r *MongoLocationRepository) coll() *mongo.Collection {
	return r.client.Database(r.database).Collection(r.collection)
}

// FindByIP retrieves the cached location for an IP address, honoring expiry
func (r *MongoLocationRepository) FindByIP(ctx context.Context, ip string) (*models.Location, error) {
	loc, _, err := r.FindByIPWithExpiry(ctx, ip)
	return loc, err
}

// FindByIPWithExpiry retrieves the cached location together with its expiry time
func (r *MongoLocationRepository) FindByIPWithExpiry(ctx context.Context, ip string) (*models.Location, time.Time, error) {
	var cached cachedLocation
	filter := bson.M{"store_key": StoreKey(ip), "expires_at": bson.M{"$gt": time.Now()}}
	err := r.coll().FindOne(ctx, filter).Decode(&cached)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, time.Time{}, ErrNotFound
		}
		return nil, time.Time{}, fmt.Errorf("error finding cached location: %w", err)
	}
	return &cached.Location, cached.ExpiresAt, nil
}

// Upsert stores a location with the given TTL, replacing any existing entry
// for the same IP
func (r *MongoLocationRepository) Upsert(ctx context.Context, loc *models.Location, ttl time.Duration) error {
	now := time.Now()
	opts := options.Update().SetUpsert(true)
	filter := bson.M{"store_key": StoreKey(loc.IP)}
	update := bson.M{
		"$set": bson.M{
			"location":   loc,
			"updated_at": now,
			"expires_at": now.Add(ttl),
		},
		"$setOnInsert": bson.M{
			"_id":        GenerateID(),
			"store_key":  StoreKey(loc.IP),
			"created_at": now,
		},
	}

	if _, err := r.coll().UpdateOne(ctx, filter, update, opts); err != nil {
		return fmt.Errorf("failed to upsert cached location: %w", err)
	}
	return nil
}

// Count returns the number of cached locations
func (r *MongoLocationRepository) Count(ctx context.Context) (int, error) {
	count, err := r.coll().CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("failed to count cached locations: %w", err)
	}
	return int(count), nil
}

// DeleteAll removes every cached location
func (r *MongoLocationRepository) DeleteAll(ctx context.Context) (int, error) {
	result, err := r.coll().DeleteMany(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("failed to clear cached locations: %w", err)
	}
	return int(result.DeletedCount), nil
}

// CleanupExpired removes expired cache entries
func (r *MongoLocationRepository) CleanupExpired(ctx context.Context) (int, error) {
	result, err := r.coll().DeleteMany(ctx, bson.M{"expires_at": bson.M{"$lt": time.Now()}})
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup expired locations: %w", err)
	}
	return int(result.DeletedCount), nil
}

// MongoSubmissionRepository implements the SubmissionRepository interface for MongoDB
type MongoSubmissionRepository struct {
	client     *mongo.Client
	database   string
	collection string
}

// NewMongoSubmissionRepository creates a new MongoSubmissionRepository
func NewMongoSubmissionRepository(client *mongo.Client, database, collection string) *MongoSubmissionRepository {
	return &MongoSubmissionRepository{
		client:     client,
		database:   database,
		collection: collection,
	}
}

// Close closes the MongoDB connection
func (r *MongoSubmissionRepository) Close() error {
	return r.client.Disconnect(context.Background())
}

func (r *MongoSubmissionRepository) coll() *mongo.Collection {
	return r.client.Database(r.database).Collection(r.collection)
}

// Create stores a submission
func (r *MongoSubmissionRepository) Create(ctx context.Context, submission *models.Submission) error {
	if submission.ID == "" {
		submission.ID = GenerateID()
	}
	if submission.CreatedAt.IsZero() {
		submission.CreatedAt = time.Now()
	}

	if _, err := r.coll().InsertOne(ctx, submission); err != nil {
		return fmt.Errorf("failed to create submission: %w", err)
	}
	return nil
}

// FindByID finds a submission by ID
func (r *MongoSubmissionRepository) FindByID(ctx context.Context, id string) (*models.Submission, error) {
	var submission models.Submission
	err := r.coll().FindOne(ctx, bson.M{"_id": id}).Decode(&submission)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("error finding submission: %w", err)
	}
	return &submission, nil
}

// FindLatest returns the most recent submissions
func (r *MongoSubmissionRepository) FindLatest(ctx context.Context, limit int) ([]*models.Submission, error) {
	findOptions := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := r.coll().Find(ctx, bson.M{}, findOptions)
	if err != nil {
		return nil, fmt.Errorf("error querying submissions: %w", err)
	}
	defer cursor.Close(ctx)

	var submissions []*models.Submission
	for cursor.Next(ctx) {
		var submission models.Submission
		if err := cursor.Decode(&submission); err != nil {
			return nil, fmt.Errorf("error decoding submission: %w", err)
		}
		submissions = append(submissions, &submission)
	}
	return submissions, cursor.Err()
}

// MongoNoteRepository implements the NoteRepository interface for MongoDB
type MongoNoteRepository struct {
	client     *mongo.Client
	database   string
	collection string
}

// NewMongoNoteRepository creates a new MongoNoteRepository
func NewMongoNoteRepository(client *mongo.Client, database, collection string) *MongoNoteRepository {
	return &MongoNoteRepository{
		client:     client,
		database:   database,
		collection: collection,
	}
}

// Close closes the MongoDB connection
func (r *MongoNoteRepository) Close() error {
	return r.client.Disconnect(context.Background())
}

func (r *MongoNoteRepository) coll() *mongo.Collection {
	return r.client.Database(r.database).Collection(r.collection)
}

// Create stores a submission note
func (r *MongoNoteRepository) Create(ctx context.Context, note *models.SubmissionNote) error {
	if note.ID == "" {
		note.ID = GenerateID()
	}
	if note.CreatedAt.IsZero() {
		note.CreatedAt = time.Now()
	}

	if _, err := r.coll().InsertOne(ctx, note); err != nil {
		return fmt.Errorf("failed to create submission note: %w", err)
	}
	return nil
}

// FindBySubmissionID returns all notes for a submission, oldest first
func (r *MongoNoteRepository) FindBySubmissionID(ctx context.Context, submissionID string) ([]*models.SubmissionNote, error) {
	findOptions := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	cursor, err := r.coll().Find(ctx, bson.M{"submission_id": submissionID}, findOptions)
	if err != nil {
		return nil, fmt.Errorf("error querying submission notes: %w", err)
	}
	defer cursor.Close(ctx)

	var notes []*models.SubmissionNote
	for cursor.Next(ctx) {
		var note models.SubmissionNote
		if err := cursor.Decode(&note); err != nil {
			return nil, fmt.Errorf("error decoding submission note: %w", err)
		}
		notes = append(notes, &note)
	}
	return notes, cursor.Err()
}

// MongoFormSettingsRepository implements the FormSettingsRepository interface for MongoDB
type MongoFormSettingsRepository struct {
	client     *mongo.Client
	database   string
	collection string
}

// NewMongoFormSettingsRepository creates a new MongoFormSettingsRepository
func NewMongoFormSettingsRepository(client *mongo.Client, database, collection string) *MongoFormSettingsRepository {
	return &MongoFormSettingsRepository{
		client:     client,
		database:   database,
		collection: collection,
	}
}

// Close closes the MongoDB connection
func (r *MongoFormSettingsRepository) Close() error {
	return r.client.Disconnect(context.Background())
}

func (r *MongoFormSettingsRepository) coll() *mongo.Collection {
	return r.client.Database(r.database).Collection(r.collection)
}

// FindByFormID finds settings for a form
func (r *MongoFormSettingsRepository) FindByFormID(ctx context.Context, formID string) (*models.FormSettings, error) {
	var settings models.FormSettings
	err := r.coll().FindOne(ctx, bson.M{"form_id": formID}).Decode(&settings)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("error finding form settings: %w", err)
	}
	if settings.AllowedCountries == nil {
		settings.AllowedCountries = []string{}
	}
	return &settings, nil
}

// Upsert creates or updates settings for a form
func (r *MongoFormSettingsRepository) Upsert(ctx context.Context, settings *models.FormSettings) (*models.FormSettings, error) {
	if settings.ID == "" {
		settings.ID = GenerateID()
	}
	if settings.AllowedCountries == nil {
		settings.AllowedCountries = []string{}
	}

	now := time.Now()
	settings.UpdatedAt = &now

	opts := options.Update().SetUpsert(true)
	filter := bson.M{"form_id": settings.FormID}
	update := bson.M{
		"$set": bson.M{
			"validation_enabled": settings.ValidationEnabled,
			"allowed_countries":  settings.AllowedCountries,
			"rejection_message":  settings.RejectionMessage,
			"updated_at":         now,
		},
		"$setOnInsert": bson.M{
			"_id":        settings.ID,
			"form_id":    settings.FormID,
			"created_at": now,
		},
	}

	if _, err := r.coll().UpdateOne(ctx, filter, update, opts); err != nil {
		return nil, fmt.Errorf("failed to upsert form settings: %w", err)
	}

	return r.FindByFormID(ctx, settings.FormID)
}
