package core

import (
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	DeliveryErrorBadInput           = "DELIVERY_BAD_INPUT"
	DeliveryErrorConfigDisabled     = "DELIVERY_CONFIG_DISABLED"
	DeliveryErrorConditionNotMet    = "DELIVERY_CONDITION_NOT_MET"
	DeliveryErrorNotFound           = "DELIVERY_NOT_FOUND"
	DeliveryErrorInvalidTransition  = "DELIVERY_INVALID_TRANSITION"
	DeliveryErrorVersionConflict    = "DELIVERY_VERSION_CONFLICT"
	DeliveryErrorNotDue             = "DELIVERY_NOT_DUE"
	DeliveryErrorTransportFailed    = "DELIVERY_TRANSPORT_FAILED"
	DeliveryErrorInternal           = "DELIVERY_INTERNAL_ERROR"
	DeliveryErrorStoreNotConfigured = "DELIVERY_STORE_NOT_CONFIGURED"
)

// MapError normalizes any error into the go-errors envelope with an HTTP
// code and a delivery text code.
func MapError(err error) *goerrors.Error {
	return deliveryErrorMapper(err)
}

func deliveryErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureDeliveryErrorEnvelope(richErr)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "not found"):
		return newDeliveryError(err.Error(), goerrors.CategoryNotFound, DeliveryErrorNotFound)
	case strings.Contains(msg, "version conflict"), strings.Contains(msg, "stale"):
		return newDeliveryError(err.Error(), goerrors.CategoryConflict, DeliveryErrorVersionConflict)
	case strings.Contains(msg, "disabled"):
		return newDeliveryError(err.Error(), goerrors.CategoryOperation, DeliveryErrorConfigDisabled)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"):
		return newDeliveryError(err.Error(), goerrors.CategoryBadInput, DeliveryErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureDeliveryErrorEnvelope(mapped)
}

func newDeliveryError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureDeliveryErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func validationError(message string, fields ...goerrors.FieldError) *goerrors.Error {
	return ensureDeliveryErrorEnvelope(
		goerrors.NewValidation(message, fields...).
			WithTextCode(DeliveryErrorBadInput),
	)
}

func notFoundError(message string, id string) *goerrors.Error {
	return newDeliveryError(message, goerrors.CategoryNotFound, DeliveryErrorNotFound).
		WithMetadata(map[string]any{"delivery_id": id})
}

// VersionConflictError is returned by stores when an optimistic update loses.
func VersionConflictError(id string, expected int) *goerrors.Error {
	return newDeliveryError(
		"core: delivery "+id+" version conflict",
		goerrors.CategoryConflict,
		DeliveryErrorVersionConflict,
	).WithMetadata(map[string]any{"delivery_id": id, "expected_version": expected})
}

// NotFoundError is returned by stores when a delivery id or key is unknown.
func NotFoundError(id string) *goerrors.Error {
	return notFoundError("core: delivery "+id+" not found", id)
}

// NotDueError is returned by Claim when a delivery is settled, scheduled for
// later than now, or leased by another worker.
func NotDueError(record WebhookDelivery) *goerrors.Error {
	metadata := map[string]any{
		"delivery_id": record.ID,
		"status":      string(record.Status),
	}
	if record.NextRetryAt != nil {
		metadata["next_retry_at"] = record.NextRetryAt.UTC()
	}
	return newDeliveryError(
		"core: delivery "+record.ID+" is not due",
		goerrors.CategoryConflict,
		DeliveryErrorNotDue,
	).WithMetadata(metadata)
}

// WebhookNotFoundError is returned by config stores for unknown webhook ids.
func WebhookNotFoundError(id string) *goerrors.Error {
	return newDeliveryError("core: webhook "+id+" not found", goerrors.CategoryNotFound, DeliveryErrorNotFound).
		WithMetadata(map[string]any{"webhook_id": id})
}

func IsNotFound(err error) bool {
	var rich *goerrors.Error
	return goerrors.As(err, &rich) && rich.TextCode == DeliveryErrorNotFound
}

func IsVersionConflict(err error) bool {
	var rich *goerrors.Error
	return goerrors.As(err, &rich) && rich.TextCode == DeliveryErrorVersionConflict
}

func IsNotDue(err error) bool {
	var rich *goerrors.Error
	return goerrors.As(err, &rich) && rich.TextCode == DeliveryErrorNotDue
}

func IsInvalidTransition(err error) bool {
	var rich *goerrors.Error
	return goerrors.As(err, &rich) && rich.TextCode == DeliveryErrorInvalidTransition
}

func ensureDeliveryErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = deliveryHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultDeliveryTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultDeliveryTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return DeliveryErrorBadInput
	case goerrors.CategoryNotFound:
		return DeliveryErrorNotFound
	case goerrors.CategoryConflict:
		return DeliveryErrorVersionConflict
	case goerrors.CategoryExternal:
		return DeliveryErrorTransportFailed
	default:
		return DeliveryErrorInternal
	}
}

func deliveryHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryOperation:
		return http.StatusUnprocessableEntity
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
