package logger

import (
	"context"
	"testing"
)

func TestWithJobID_And_JobIDFromContext(t *testing.T) {
	ctx := context.Background()
	jobID := "1f8b1f3e-0000-4000-8000-000000000001"

	// Initially empty
	if got := JobIDFromContext(ctx); got != "" {
		t.Errorf("JobIDFromContext() on empty ctx = %v, want empty", got)
	}

	// After setting
	ctx = WithJobID(ctx, jobID)
	if got := JobIDFromContext(ctx); got != jobID {
		t.Errorf("JobIDFromContext() = %v, want %v", got, jobID)
	}
}

func TestFromContext_WithJobID(t *testing.T) {
	base := New()
	ctx := context.Background()

	// Without job ID - should return base logger (not nil)
	logger := FromContext(ctx, base)
	if logger == nil {
		t.Error("FromContext() returned nil")
	}

	// With job ID - should return logger with job_id attached
	ctx = WithJobID(ctx, "job-42")
	loggerWithID := FromContext(ctx, base)
	if loggerWithID == nil {
		t.Error("FromContext() with job ID returned nil")
	}
}

func TestNew_ReturnsLogger(t *testing.T) {
	logger := New()
	if logger == nil {
		t.Error("New() returned nil")
	}
}
