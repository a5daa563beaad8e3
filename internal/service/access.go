package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/studio-makeup-api/internal/models"
	appErrors "github.com/noah-isme/studio-makeup-api/pkg/errors"
)

type txRunner interface {
	InTx(ctx context.Context, lockKeys []string, fn func(exec sqlx.ExtContext) error) error
}

type cacheInvalidator interface {
	Invalidate(ctx context.Context, pattern string) error
}

// invalidateDeadlines drops cached deadlines after a committed write. It outlives request cancellation
// so a client disconnect cannot leave stale deadlines behind.
func invalidateDeadlines(ctx context.Context, cache cacheInvalidator, logger *zap.Logger) {
	if cache == nil {
		return
	}
	invalidateCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := cache.Invalidate(invalidateCtx, deadlineCachePattern); err != nil {
		logger.Warn("deadline cache invalidation failed", zap.Error(err))
	}
}

// CanActFor reports whether actor may read or book on behalf of studentID.
func CanActFor(actor models.Actor, studentID string) error {
	if actor.UserID == "" {
		return appErrors.ErrUnauthorized
	}
	if actor.IsStaff() || actor.UserID == studentID {
		return nil
	}
	return appErrors.Clone(appErrors.ErrForbidden, "students may only act on their own classes")
}

func requireStaff(actor models.Actor) error {
	if actor.UserID == "" {
		return appErrors.ErrUnauthorized
	}
	if !actor.IsStaff() {
		return appErrors.Clone(appErrors.ErrForbidden, "staff role required")
	}
	return nil
}

// asAppError keeps typed errors intact and wraps anything else as internal.
func asAppError(err error, message string) error {
	if err == nil {
		return nil
	}
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}

// lookupError maps sql.ErrNoRows to a not found error.
func lookupError(err error, notFound, message string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, notFound)
	}
	return asAppError(err, message)
}

func invalidDestination(reason models.BlockReason, message string) error {
	err := appErrors.WithReason(appErrors.ErrInvalidDestination, string(reason))
	if message != "" {
		err.Message = message
	}
	return err
}

// Reasons produced by destination checks beyond the eligibility block reasons.
const (
	reasonNotAfterOrigin   models.BlockReason = "notAfterOrigin"
	reasonNotInFuture      models.BlockReason = "notInFuture"
	reasonSlotInactive     models.BlockReason = "slotInactive"
	reasonSlotNotOffered   models.BlockReason = "slotNotOffered"
	reasonModalityMismatch models.BlockReason = "modalityMismatch"
	reasonPastDeadline     models.BlockReason = "pastDeadline"
)

func studentDateLock(studentID string, date models.Date) string {
	return "student:" + studentID + ":" + date.String()
}

func slotDateLock(slotID string, date models.Date) string {
	return "slot:" + slotID + ":" + date.String()
}

func originLock(slotID string, date models.Date, studentID string) string {
	return "origin:" + slotID + ":" + date.String() + ":" + studentID
}
