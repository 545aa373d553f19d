package service

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/helpline-labs/support-desk/internal/clock"
	"github.com/helpline-labs/support-desk/internal/events"
	"github.com/helpline-labs/support-desk/internal/repository"
	apperrors "github.com/helpline-labs/support-desk/pkg/util"
)

func publishEvent(ctx context.Context, dispatcher events.Dispatcher, clk clock.Clock, event events.Event) {
	if dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = clk.Now()
	}
	_ = dispatcher.Publish(ctx, event)
}

// mapRepoError turns repository sentinels into caller-facing errors.
func mapRepoError(err error, resource string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.NewNotFound(resource, nil)
	case errors.Is(err, repository.ErrAlreadyExists):
		return apperrors.NewConflict(resource+" already exists", nil)
	case errors.Is(err, repository.ErrVersionConflict):
		return apperrors.NewConflict(resource+" was modified concurrently", nil)
	default:
		return apperrors.NewInternalError(err)
	}
}

func stringPreview(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}

func strPtr(s string) *string { return &s }

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func sameString(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
