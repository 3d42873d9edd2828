package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{MaxAttempts: attempts, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Multiplier: 2}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"duplicated key", gorm.ErrDuplicatedKey, true},
		{"serialization failure", &pgconn.PgError{Code: "40001"}, true},
		{"deadlock", &pgconn.PgError{Code: "40P01"}, true},
		{"undefined table", &pgconn.PgError{Code: "42P01"}, false},
		{"sqlite busy", sqlite3.Error{Code: sqlite3.ErrBusy}, true},
		{"sqlite locked", sqlite3.Error{Code: sqlite3.ErrLocked}, true},
		{"sqlite constraint", sqlite3.Error{Code: sqlite3.ErrConstraint}, false},
		{"plain", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isTransient(tt.err))
		})
	}
}

func TestDoWithRetryRecoversFromConflicts(t *testing.T) {
	calls := 0
	var observed []int

	err := doWithRetry(context.Background(), fastRetry(5), isTransient,
		func(attempt int, _ error) { observed = append(observed, attempt) },
		func() error {
			calls++
			if calls < 3 {
				return &pgconn.PgError{Code: "40001"}
			}
			return nil
		})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, observed)
}

func TestDoWithRetryGivesUp(t *testing.T) {
	calls := 0
	err := doWithRetry(context.Background(), fastRetry(3), isTransient, nil, func() error {
		calls++
		return sqlite3.Error{Code: sqlite3.ErrBusy}
	})

	require.Error(t, err)
	assert.True(t, isTransient(err))
	assert.Equal(t, 3, calls)
}

func TestDoWithRetryStopsOnPermanentError(t *testing.T) {
	calls := 0
	permanent := errors.New("bad column")
	err := doWithRetry(context.Background(), fastRetry(5), isTransient, nil, func() error {
		calls++
		return permanent
	})

	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}

func TestDoWithRetryHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := doWithRetry(ctx, RetryConfig{MaxAttempts: 3, InitialDelay: time.Second}, isTransient, nil, func() error {
		return gorm.ErrDuplicatedKey
	})

	assert.ErrorIs(t, err, context.Canceled)
}
