package database

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
)

func TestRetryableDBOperation_SuccessAfterRetries(t *testing.T) {
	calls := 0
	err := retryableDBOperation(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("database is locked")
		}
		return nil
	}, "test operation")

	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryableDBOperation_NonRetryableStopsImmediately(t *testing.T) {
	calls := 0
	err := retryableDBOperation(context.Background(), func() error {
		calls++
		return errors.New("UNIQUE constraint failed: sessions.id")
	}, "insert")

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "insert failed")
	assert.Equal(t, 1, calls)
}

func TestRetryableDBOperation_GivesUpAfterBudget(t *testing.T) {
	calls := 0
	err := retryableDBOperation(context.Background(), func() error {
		calls++
		return sqlite3.Error{Code: sqlite3.ErrBusy}
	}, "busy")

	assert.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestIsRetryableDBError(t *testing.T) {
	tests := []struct {
		err       error
		retryable bool
	}{
		{nil, false},
		{sqlite3.Error{Code: sqlite3.ErrBusy}, true},
		{sqlite3.Error{Code: sqlite3.ErrLocked}, true},
		{sqlite3.Error{Code: sqlite3.ErrConstraint}, false},
		{fmt.Errorf("wrapped: %w", sqlite3.Error{Code: sqlite3.ErrIoErr}), true},
		{errors.New("disk I/O error"), true},
		{errors.New("no such table: sessions"), false},
		{context.Canceled, false},
		{fmt.Errorf("op: %w", context.DeadlineExceeded), false},
	}

	for _, tt := range tests {
		name := "nil"
		if tt.err != nil {
			name = tt.err.Error()
		}
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.retryable, isRetryableDBError(tt.err))
		})
	}
}
