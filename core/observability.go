package core

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"
)

// operation names a coordinator entry point in metric names
// (hookdelivery.<operation>.total) and in the event_type log field.
type operation string

const (
	opEnqueue      operation = "enqueue"
	opEnqueueEvent operation = "enqueue_event"
	opAttempt      operation = "attempt"
	opDispatchDue  operation = "dispatch_due"
	opReset        operation = "reset"
	opAbandon      operation = "abandon"
)

// Only bounded fields become metric tags. Delivery ids, idempotency keys and
// urls stay in logs.
var boundedTagFields = []string{"webhook_id", "outcome"}

// Attempt outcomes that end a delivery without a 2xx are logged as warnings.
var undeliveredOutcomes = []string{
	strings.ToLower(string(DeliveryStatusFailed)),
	strings.ToLower(string(DeliveryStatusDeadLetter)),
}

func (c *Coordinator) observeOperation(
	ctx context.Context,
	startedAt time.Time,
	op operation,
	err error,
	fields map[string]any,
) {
	if c == nil {
		return
	}
	elapsed := time.Since(startedAt)
	if op == "" {
		op = "unknown"
	}

	tags := deliveryTags(op, err, fields)
	c.recordCounter(ctx, "hookdelivery."+string(op)+".total", 1, tags)
	c.recordHistogram(ctx, "hookdelivery."+string(op)+".duration_ms", float64(elapsed.Milliseconds()), tags)

	entry := cloneFields(fields)
	entry["event_type"] = string(op)
	entry["status"] = tags["status"]
	entry["duration_ms"] = elapsed.Milliseconds()
	switch {
	case err != nil:
		entry["error"] = err.Error()
		if code := tags["error_code"]; code != "" {
			entry["error_code"] = code
		}
		c.logError(ctx, string(op)+" failed", entry)
	case slices.Contains(undeliveredOutcomes, tags["outcome"]):
		c.logWarn(ctx, string(op)+" settled as "+tags["outcome"], entry)
	default:
		c.logInfo(ctx, string(op)+" succeeded", entry)
	}
}

// deliveryTags builds the metric tags for one operation. A response status is
// reduced to its class (2xx..5xx) and a failure carries its DELIVERY_* code.
func deliveryTags(op operation, err error, fields map[string]any) map[string]string {
	tags := map[string]string{"operation": string(op), "status": "success"}
	if err != nil {
		tags["status"] = "failure"
		if code := MapError(err).TextCode; code != "" {
			tags["error_code"] = code
		}
	}
	for _, key := range boundedTagFields {
		if value, ok := fields[key].(string); ok && strings.TrimSpace(value) != "" {
			tags[key] = strings.TrimSpace(value)
		}
	}
	if code, ok := fields["response_status"].(int); ok && code >= 100 && code < 600 {
		tags["response_class"] = fmt.Sprintf("%dxx", code/100)
	}
	return tags
}

func (c *Coordinator) logDebug(ctx context.Context, message string, fields map[string]any) {
	c.emit(ctx, Logger.Debug, message, fields)
}

func (c *Coordinator) logInfo(ctx context.Context, message string, fields map[string]any) {
	c.emit(ctx, Logger.Info, message, fields)
}

func (c *Coordinator) logWarn(ctx context.Context, message string, fields map[string]any) {
	c.emit(ctx, Logger.Warn, message, fields)
}

func (c *Coordinator) logError(ctx context.Context, message string, fields map[string]any) {
	c.emit(ctx, Logger.Error, message, fields)
}

// emit writes one structured entry. Loggers that take a field map get it
// attached; every logger also gets the fields as sorted key/value args.
func (c *Coordinator) emit(ctx context.Context, level func(Logger, string, ...any), message string, fields map[string]any) {
	if c == nil || c.logger == nil {
		return
	}
	logger := c.logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	if fieldsLogger, ok := logger.(FieldsLogger); ok {
		logger = fieldsLogger.WithFields(cloneFields(fields))
	}
	level(logger, message, sortedArgs(fields)...)
}

func (c *Coordinator) recordCounter(ctx context.Context, name string, value int64, tags map[string]string) {
	if c == nil || c.metricsRecorder == nil {
		return
	}
	c.metricsRecorder.IncCounter(ctx, name, value, cloneTags(tags))
}

func (c *Coordinator) recordHistogram(ctx context.Context, name string, value float64, tags map[string]string) {
	if c == nil || c.metricsRecorder == nil {
		return
	}
	c.metricsRecorder.ObserveHistogram(ctx, name, value, cloneTags(tags))
}

func cloneFields(fields map[string]any) map[string]any {
	copied := make(map[string]any, len(fields)+4)
	for key, value := range fields {
		copied[key] = value
	}
	return copied
}

func sortedArgs(fields map[string]any) []any {
	if len(fields) == 0 {
		return nil
	}
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	args := make([]any, 0, len(keys)*2)
	for _, key := range keys {
		args = append(args, key, fields[key])
	}
	return args
}
