package db

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// ConnectToSQLite initializes and returns a SQLite connection
func ConnectToSQLite(dbPath string) (*sql.DB, error) {
	// Ensure the directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory for SQLite: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}

	log.Println("Connected to SQLite database")
	return db, nil
}

// InitializeSchema creates all the necessary tables if they don't exist
func InitializeSchema(db *sql.DB) error {
	// Geolocation cache table. store_key holds the IP with characters outside
	// the store key grammar substituted; the raw ip column keeps lookups
	// collision-free.
	_, err := db.Exec(`
	CREATE TABLE IF NOT EXISTS geolocation_cache (
		id TEXT PRIMARY KEY,
		store_key TEXT NOT NULL UNIQUE,
		ip TEXT NOT NULL UNIQUE,
		country_name TEXT,
		country_code TEXT,
		city TEXT,
		region_name TEXT,
		continent_name TEXT,
		zip TEXT,
		latitude REAL,
		longitude REAL,
		is_error INTEGER NOT NULL DEFAULT 0,
		error_message TEXT,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		expires_at TIMESTAMP NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("failed to create geolocation_cache table: %w", err)
	}

	// Create submissions table
	_, err = db.Exec(`
	CREATE TABLE IF NOT EXISTS submissions (
		id TEXT PRIMARY KEY,
		form_id TEXT NOT NULL,
		client_ip TEXT NOT NULL,
		status TEXT NOT NULL,
		reject_reason TEXT,
		created_at TIMESTAMP NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("failed to create submissions table: %w", err)
	}

	// Create submission_fields table
	_, err = db.Exec(`
	CREATE TABLE IF NOT EXISTS submission_fields (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		submission_id TEXT NOT NULL,
		field_id TEXT NOT NULL,
		label TEXT,
		type TEXT,
		default_value TEXT,
		value TEXT,
		FOREIGN KEY (submission_id) REFERENCES submissions(id)
	)`)
	if err != nil {
		return fmt.Errorf("failed to create submission_fields table: %w", err)
	}

	// Create submission_notes table
	_, err = db.Exec(`
	CREATE TABLE IF NOT EXISTS submission_notes (
		id TEXT PRIMARY KEY,
		submission_id TEXT NOT NULL,
		author TEXT NOT NULL,
		text TEXT NOT NULL,
		severity TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		FOREIGN KEY (submission_id) REFERENCES submissions(id)
	)`)
	if err != nil {
		return fmt.Errorf("failed to create submission_notes table: %w", err)
	}

	// Create form_settings table
	_, err = db.Exec(`
	CREATE TABLE IF NOT EXISTS form_settings (
		id TEXT PRIMARY KEY,
		form_id TEXT NOT NULL UNIQUE,
		validation_enabled INTEGER NOT NULL DEFAULT 0,
		allowed_countries TEXT NOT NULL DEFAULT '[]',
		rejection_message TEXT,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("failed to create form_settings table: %w", err)
	}

	log.Println("Database schema initialized successfully")
	return nil
}
