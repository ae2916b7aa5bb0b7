package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"formloc/models"
)

// StoreKey derives the persistent-store key for an IP address. Dots and
// colons are outside the store key grammar; each gets its own substitute so
// IPv4 and IPv6 forms cannot collide.
func StoreKey(ip string) string {
	key := strings.ReplaceAll(ip, ".", "_")
	return strings.ReplaceAll(key, ":", "-")
}

// SQLiteLocationRepository implements the LocationRepository interface for SQLite
type SQLiteLocationRepository struct {
	db *sql.DB
}

// NewSQLiteLocationRepository creates a new SQLiteLocationRepository
func NewSQLiteLocationRepository(db *sql.DB) *SQLiteLocationRepository {
	return &SQLiteLocationRepository{db: db}
}

// Close closes the database connection
func (r *SQLiteLocationRepository) Close() error {
	return r.db.Close()
}

// FindByIP retrieves the cached location for an IP address, honoring expiry
func (r *SQLiteLocationRepository) FindByIP(ctx context.Context, ip string) (*models.Location, error) {
	loc, _, err := r.FindByIPWithExpiry(ctx, ip)
	return loc, err
}

// FindByIPWithExpiry retrieves the cached location together with its expiry time
func (r *SQLiteLocationRepository) FindByIPWithExpiry(ctx context.Context, ip string) (*models.Location, time.Time, error) {
	query := `
		SELECT ip, country_name, country_code, city, region_name, continent_name,
		       zip, latitude, longitude, is_error, error_message, expires_at
		FROM geolocation_cache
		WHERE store_key = ? AND expires_at > ?
	`

	row := r.db.QueryRowContext(ctx, query, StoreKey(ip), time.Now())

	var loc models.Location
	var countryName, countryCode, city, regionName, continentName, zip, errorMessage sql.NullString
	var latitude, longitude sql.NullFloat64
	var expiresAt time.Time

	err := row.Scan(&loc.IP, &countryName, &countryCode, &city, &regionName, &continentName,
		&zip, &latitude, &longitude, &loc.IsError, &errorMessage, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, time.Time{}, ErrNotFound
	}
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("error scanning cached location: %w", err)
	}

	if countryName.Valid {
		loc.CountryName = countryName.String
	}
	if countryCode.Valid {
		loc.CountryCode = countryCode.String
	}
	if city.Valid {
		loc.City = city.String
	}
	if regionName.Valid {
		loc.RegionName = regionName.String
	}
	if continentName.Valid {
		loc.ContinentName = continentName.String
	}
	if zip.Valid {
		loc.Zip = zip.String
	}
	if latitude.Valid {
		loc.Latitude = latitude.Float64
	}
	if longitude.Valid {
		loc.Longitude = longitude.Float64
	}
	if errorMessage.Valid {
		loc.ErrorMessage = errorMessage.String
	}

	return &loc, expiresAt, nil
}

// Upsert stores a location with the given TTL, replacing any existing entry
// for the same IP
func (r *SQLiteLocationRepository) Upsert(ctx context.Context, loc *models.Location, ttl time.Duration) error {
	now := time.Now()
	query := `
		INSERT INTO geolocation_cache (
			id, store_key, ip, country_name, country_code, city, region_name,
			continent_name, zip, latitude, longitude, is_error, error_message,
			created_at, updated_at, expires_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(store_key) DO UPDATE SET
			country_name = excluded.country_name,
			country_code = excluded.country_code,
			city = excluded.city,
			region_name = excluded.region_name,
			continent_name = excluded.continent_name,
			zip = excluded.zip,
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			is_error = excluded.is_error,
			error_message = excluded.error_message,
			updated_at = excluded.updated_at,
			expires_at = excluded.expires_at
	`

	_, err := r.db.ExecContext(ctx, query,
		GenerateID(), StoreKey(loc.IP), loc.IP, loc.CountryName, loc.CountryCode,
		loc.City, loc.RegionName, loc.ContinentName, loc.Zip, loc.Latitude,
		loc.Longitude, loc.IsError, loc.ErrorMessage, now, now, now.Add(ttl),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert cached location: %w", err)
	}

	return nil
}

// Count returns the number of cached locations, including expired ones not
// yet cleaned up
func (r *SQLiteLocationRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM geolocation_cache`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count cached locations: %w", err)
	}
	return count, nil
}

// DeleteAll removes every cached location
func (r *SQLiteLocationRepository) DeleteAll(ctx context.Context) (int, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM geolocation_cache`)
	if err != nil {
		return 0, fmt.Errorf("failed to clear cached locations: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(rows), nil
}

// CleanupExpired removes expired cache entries
func (r *SQLiteLocationRepository) CleanupExpired(ctx context.Context) (int, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM geolocation_cache WHERE expires_at < ?`, time.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup expired locations: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(rows), nil
}

// SQLiteSubmissionRepository implements the SubmissionRepository interface for SQLite
type SQLiteSubmissionRepository struct {
	db *sql.DB
}

// NewSQLiteSubmissionRepository creates a new SQLiteSubmissionRepository
func NewSQLiteSubmissionRepository(db *sql.DB) *SQLiteSubmissionRepository {
	return &SQLiteSubmissionRepository{db: db}
}

// Close closes the database connection
func (r *SQLiteSubmissionRepository) Close() error {
	return r.db.Close()
}

// Create stores a submission and its fields
func (r *SQLiteSubmissionRepository) Create(ctx context.Context, submission *models.Submission) error {
	if submission.ID == "" {
		submission.ID = GenerateID()
	}
	if submission.CreatedAt.IsZero() {
		submission.CreatedAt = time.Now()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO submissions (id, form_id, client_ip, status, reject_reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		submission.ID, submission.FormID, submission.ClientIP,
		submission.Status, submission.RejectReason, submission.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create submission: %w", err)
	}

	for _, field := range submission.Fields {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO submission_fields (submission_id, field_id, label, type, default_value, value)
			VALUES (?, ?, ?, ?, ?, ?)`,
			submission.ID, field.ID, field.Label, field.Type, field.DefaultValue, field.Value,
		)
		if err != nil {
			return fmt.Errorf("failed to create submission field: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit submission: %w", err)
	}

	return nil
}

// FindByID finds a submission by ID, including its fields
func (r *SQLiteSubmissionRepository) FindByID(ctx context.Context, id string) (*models.Submission, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, form_id, client_ip, status, reject_reason, created_at
		FROM submissions WHERE id = ?`, id)

	submission, err := scanSubmission(row)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT field_id, label, type, default_value, value
		FROM submission_fields WHERE submission_id = ? ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("error querying submission fields: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var field models.SubmissionField
		var label, fieldType, defaultValue, value sql.NullString
		if err := rows.Scan(&field.ID, &label, &fieldType, &defaultValue, &value); err != nil {
			return nil, fmt.Errorf("error scanning submission field: %w", err)
		}
		field.Label = label.String
		field.Type = fieldType.String
		field.DefaultValue = defaultValue.String
		field.Value = value.String
		submission.Fields = append(submission.Fields, field)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating submission fields: %w", err)
	}

	return submission, nil
}

// FindLatest returns the most recent submissions, without their fields
func (r *SQLiteSubmissionRepository) FindLatest(ctx context.Context, limit int) ([]*models.Submission, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, form_id, client_ip, status, reject_reason, created_at
		FROM submissions ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("error querying submissions: %w", err)
	}
	defer rows.Close()

	var submissions []*models.Submission
	for rows.Next() {
		submission, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		submissions = append(submissions, submission)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating submissions: %w", err)
	}

	return submissions, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSubmission(row rowScanner) (*models.Submission, error) {
	var submission models.Submission
	var rejectReason sql.NullString

	err := row.Scan(&submission.ID, &submission.FormID, &submission.ClientIP,
		&submission.Status, &rejectReason, &submission.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error scanning submission: %w", err)
	}

	if rejectReason.Valid {
		submission.RejectReason = rejectReason.String
	}

	return &submission, nil
}

// SQLiteNoteRepository implements the NoteRepository interface for SQLite
type SQLiteNoteRepository struct {
	db *sql.DB
}

// NewSQLiteNoteRepository creates a new SQLiteNoteRepository
func NewSQLiteNoteRepository(db *sql.DB) *SQLiteNoteRepository {
	return &SQLiteNoteRepository{db: db}
}

// Close closes the database connection
func (r *SQLiteNoteRepository) Close() error {
	return r.db.Close()
}

// Create stores a submission note
func (r *SQLiteNoteRepository) Create(ctx context.Context, note *models.SubmissionNote) error {
	if note.ID == "" {
		note.ID = GenerateID()
	}
	if note.CreatedAt.IsZero() {
		note.CreatedAt = time.Now()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO submission_notes (id, submission_id, author, text, severity, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		note.ID, note.SubmissionID, note.Author, note.Text, note.Severity, note.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create submission note: %w", err)
	}

	return nil
}

// FindBySubmissionID returns all notes for a submission, oldest first
func (r *SQLiteNoteRepository) FindBySubmissionID(ctx context.Context, submissionID string) ([]*models.SubmissionNote, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, submission_id, author, text, severity, created_at
		FROM submission_notes WHERE submission_id = ? ORDER BY created_at`, submissionID)
	if err != nil {
		return nil, fmt.Errorf("error querying submission notes: %w", err)
	}
	defer rows.Close()

	var notes []*models.SubmissionNote
	for rows.Next() {
		var note models.SubmissionNote
		err := rows.Scan(&note.ID, &note.SubmissionID, &note.Author, &note.Text,
			&note.Severity, &note.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("error scanning submission note: %w", err)
		}
		notes = append(notes, &note)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating submission notes: %w", err)
	}

	return notes, nil
}

// SQLiteFormSettingsRepository implements the FormSettingsRepository interface for SQLite
type SQLiteFormSettingsRepository struct {
	db *sql.DB
}

// NewSQLiteFormSettingsRepository creates a new SQLiteFormSettingsRepository
func NewSQLiteFormSettingsRepository(db *sql.DB) *SQLiteFormSettingsRepository {
	return &SQLiteFormSettingsRepository{db: db}
}

// Close closes the database connection
func (r *SQLiteFormSettingsRepository) Close() error {
	return r.db.Close()
}

// FindByFormID finds settings for a form
func (r *SQLiteFormSettingsRepository) FindByFormID(ctx context.Context, formID string) (*models.FormSettings, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, form_id, validation_enabled, allowed_countries, rejection_message, created_at, updated_at
		FROM form_settings WHERE form_id = ?`, formID)

	var settings models.FormSettings
	var countriesJSON string
	var rejectionMessage sql.NullString
	var createdAt, updatedAt sql.NullTime

	err := row.Scan(&settings.ID, &settings.FormID, &settings.ValidationEnabled,
		&countriesJSON, &rejectionMessage, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error scanning form settings: %w", err)
	}

	if err := json.Unmarshal([]byte(countriesJSON), &settings.AllowedCountries); err != nil {
		return nil, fmt.Errorf("error decoding allowed countries: %w", err)
	}
	if settings.AllowedCountries == nil {
		settings.AllowedCountries = []string{}
	}
	if rejectionMessage.Valid {
		settings.RejectionMessage = rejectionMessage.String
	}
	if createdAt.Valid {
		settings.CreatedAt = &createdAt.Time
	}
	if updatedAt.Valid {
		settings.UpdatedAt = &updatedAt.Time
	}

	return &settings, nil
}

// Upsert creates or updates settings for a form
func (r *SQLiteFormSettingsRepository) Upsert(ctx context.Context, settings *models.FormSettings) (*models.FormSettings, error) {
	if settings.ID == "" {
		settings.ID = GenerateID()
	}
	if settings.AllowedCountries == nil {
		settings.AllowedCountries = []string{}
	}

	countriesJSON, err := json.Marshal(settings.AllowedCountries)
	if err != nil {
		return nil, fmt.Errorf("error encoding allowed countries: %w", err)
	}

	now := time.Now()
	settings.UpdatedAt = &now
	if settings.CreatedAt == nil {
		settings.CreatedAt = &now
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO form_settings (id, form_id, validation_enabled, allowed_countries, rejection_message, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(form_id) DO UPDATE SET
			validation_enabled = excluded.validation_enabled,
			allowed_countries = excluded.allowed_countries,
			rejection_message = excluded.rejection_message,
			updated_at = excluded.updated_at`,
		settings.ID, settings.FormID, settings.ValidationEnabled,
		string(countriesJSON), settings.RejectionMessage, settings.CreatedAt, settings.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert form settings: %w", err)
	}

	return r.FindByFormID(ctx, settings.FormID)
}
