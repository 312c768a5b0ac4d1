package services

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/gmarko-dV/Integrador/internal/events"
	"github.com/gmarko-dV/Integrador/internal/metrics"
)

// Error kinds. Match with errors.Is.
var (
	ErrValidation       = errors.New("validation error")
	ErrNotFound         = errors.New("not found")
	ErrForbidden        = errors.New("forbidden")
	ErrNotOwner         = errors.New("not owner")
	ErrUpstream         = errors.New("upstream error")
	ErrEmptyResponse    = errors.New("empty upstream response")
	ErrMalformedPayload = errors.New("malformed upstream payload")
)

// Error is a domain failure with a user-facing message.
type Error struct {
	Kind    error
	Message string
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Kind }

func newError(kind error, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func validationError(message string) error { return newError(ErrValidation, message) }
func notFoundError(message string) error   { return newError(ErrNotFound, message) }
func forbiddenError(message string) error  { return newError(ErrForbidden, message) }
func notOwnerError(message string) error   { return newError(ErrNotOwner, message) }

// BackgroundJobs queues work for the background worker. Implemented by
// tasks.Distributor.
type BackgroundJobs interface {
	NotifyVendedor(ctx context.Context, to, subject, body string) error
	ProcessImage(ctx context.Context, anuncioID int64, url string) error
}

// Deps are the collaborators shared by services. Everything except DB may
// be nil.
type Deps struct {
	Logger  *zap.Logger
	Events  events.Publisher
	Jobs    BackgroundJobs
	Metrics *metrics.Metrics
}

func (d Deps) logger() *zap.Logger {
	if d.Logger == nil {
		return zap.NewNop()
	}
	return d.Logger
}

// publish emits an event. Failures are logged and swallowed.
func (d Deps) publish(ctx context.Context, subject string, payload any) {
	if d.Events == nil {
		return
	}
	if err := d.Events.Publish(ctx, subject, payload); err != nil {
		d.logger().Warn("Failed to publish event", zap.String("subject", subject), zap.Error(err))
	}
}
