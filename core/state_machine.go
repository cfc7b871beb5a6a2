package core

import (
	"fmt"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// AttemptOutcome is what a single attempt observed from the endpoint.
type AttemptOutcome struct {
	StatusCode int
	Body       string
	Error      string
}

var deliveryTransitions = map[DeliveryStatus][]DeliveryStatus{
	DeliveryStatusPending: {
		DeliveryStatusRetrying,
		DeliveryStatusDelivered,
		DeliveryStatusFailed,
		DeliveryStatusDeadLetter,
	},
	DeliveryStatusRetrying: {
		DeliveryStatusRetrying,
		DeliveryStatusDelivered,
		DeliveryStatusFailed,
		DeliveryStatusDeadLetter,
	},
	DeliveryStatusFailed:     {DeliveryStatusPending},
	DeliveryStatusDeadLetter: {DeliveryStatusPending},
	DeliveryStatusDelivered:  {},
}

// CanTransition reports whether from -> to is a legal move. DELIVERED has no
// outgoing edges; FAILED and DEAD_LETTER only return to PENDING via Reset.
func CanTransition(from DeliveryStatus, to DeliveryStatus) bool {
	for _, allowed := range deliveryTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// RecordAttempt counts an attempt that is about to be made.
func (d *WebhookDelivery) RecordAttempt(now time.Time) error {
	if d == nil {
		return fmt.Errorf("core: delivery record is nil")
	}
	if !d.Status.IsActive() {
		return invalidTransitionError(d.ID, d.Status, "attempt")
	}
	at := now.UTC()
	d.Attempts++
	d.LastAttemptAt = &at
	d.UpdatedAt = at
	return nil
}

func (d *WebhookDelivery) MarkDelivered(now time.Time, outcome AttemptOutcome) error {
	if err := d.transition(DeliveryStatusDelivered, now); err != nil {
		return err
	}
	at := now.UTC()
	d.DeliveredAt = &at
	d.NextRetryAt = nil
	d.applyOutcome(AttemptOutcome{StatusCode: outcome.StatusCode, Body: outcome.Body})
	return nil
}

func (d *WebhookDelivery) MarkRetrying(now time.Time, next time.Time, outcome AttemptOutcome) error {
	if err := d.transition(DeliveryStatusRetrying, now); err != nil {
		return err
	}
	at := next.UTC()
	d.NextRetryAt = &at
	d.applyOutcome(outcome)
	return nil
}

func (d *WebhookDelivery) MarkDeadLetter(now time.Time, outcome AttemptOutcome) error {
	if err := d.transition(DeliveryStatusDeadLetter, now); err != nil {
		return err
	}
	d.NextRetryAt = nil
	d.applyOutcome(outcome)
	return nil
}

func (d *WebhookDelivery) MarkFailed(now time.Time, outcome AttemptOutcome) error {
	if err := d.transition(DeliveryStatusFailed, now); err != nil {
		return err
	}
	d.NextRetryAt = nil
	d.applyOutcome(outcome)
	return nil
}

// Reset returns a FAILED or DEAD_LETTER record to PENDING with a fresh
// attempt budget.
func (d *WebhookDelivery) Reset(now time.Time) error {
	if err := d.transition(DeliveryStatusPending, now); err != nil {
		return err
	}
	d.Attempts = 0
	d.NextRetryAt = nil
	d.Error = ""
	d.ResponseStatus = 0
	d.ResponseBody = ""
	return nil
}

func (d *WebhookDelivery) transition(to DeliveryStatus, now time.Time) error {
	if d == nil {
		return fmt.Errorf("core: delivery record is nil")
	}
	if !CanTransition(d.Status, to) {
		return invalidTransitionError(d.ID, d.Status, string(to))
	}
	d.Status = to
	d.UpdatedAt = now.UTC()
	return nil
}

func (d *WebhookDelivery) applyOutcome(outcome AttemptOutcome) {
	d.ResponseStatus = outcome.StatusCode
	d.ResponseBody = outcome.Body
	d.Error = outcome.Error
}

func invalidTransitionError(id string, from DeliveryStatus, to string) error {
	return newDeliveryError(
		fmt.Sprintf("core: delivery %q cannot move from %s to %s", id, from, to),
		goerrors.CategoryConflict,
		DeliveryErrorInvalidTransition,
	).WithMetadata(map[string]any{
		"delivery_id": id,
		"from":        string(from),
		"to":          to,
	})
}
