package util

import (
	"log"
	"strings"
	"time"
)

const (
	lockMaxRetries = 3
	lockBaseDelay  = 100 * time.Millisecond
)

// RetryOnLock retries the given function if it fails with a SQLite
// "database is locked" error, with exponential backoff (100ms, 200ms,
// 400ms). Any other error is returned immediately.
func RetryOnLock(operation func() error) error {
	var err error
	for i := 0; i < lockMaxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if !strings.Contains(err.Error(), "database is locked") {
			return err
		}

		delay := lockBaseDelay * time.Duration(1<<i)
		log.Printf("Database locked, retrying in %v...", delay)
		time.Sleep(delay)
	}
	return err
}

// RetryOnLockWithResult is RetryOnLock for operations that return a value.
func RetryOnLockWithResult[T any](operation func() (T, error)) (T, error) {
	var result T
	var err error
	for i := 0; i < lockMaxRetries; i++ {
		result, err = operation()
		if err == nil {
			return result, nil
		}

		if !strings.Contains(err.Error(), "database is locked") {
			return result, err
		}

		delay := lockBaseDelay * time.Duration(1<<i)
		log.Printf("Database locked, retrying in %v...", delay)
		time.Sleep(delay)
	}
	return result, err
}
