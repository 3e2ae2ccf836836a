package util

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
)

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
		errType   string
	}{
		{"nil", nil, false, ""},
		{"no rows", pgx.ErrNoRows, false, "record_not_found"},
		{"duplicate key", errors.New(`duplicate key value violates unique constraint "idx_obligations_project_kind"`), false, "duplicate_key"},
		{"db connection", errors.New("connection refused"), true, "db_connection_error"},
		{"deadline", context.DeadlineExceeded, true, "timeout"},
		{"wrapped deadline", fmt.Errorf("query failed: %w", context.DeadlineExceeded), true, "timeout"},
		{"canceled", context.Canceled, false, "context_canceled"},
		{"mailer 5xx", errors.New("mailer 5xx: 503"), true, "mailer_error"},
		{"mailer unreachable", errors.New("failed to call mailer: dial tcp: no route to host"), true, "mailer_unavailable"},
		{"unknown", errors.New("something odd"), false, "unknown_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			retryable, errType := IsRetryableError(tt.err)
			if retryable != tt.retryable {
				t.Errorf("retryable = %v, want %v", retryable, tt.retryable)
			}
			if errType != tt.errType {
				t.Errorf("errType = %q, want %q", errType, tt.errType)
			}
		})
	}
}

func TestShouldRetry(t *testing.T) {
	if ShouldRetry(1, 5, false) {
		t.Error("non-retryable error should never retry")
	}
	if !ShouldRetry(1, 5, true) {
		t.Error("retryable error below the cap should retry")
	}
	if ShouldRetry(6, 5, true) {
		t.Error("retryable error past the cap should stop")
	}
}
