package core

import "sort"

// Aggregate counts records by status. Per-webhook Failed includes both
// FAILED and DEAD_LETTER; the top-level Failed counts FAILED only.
func Aggregate(records []WebhookDelivery) WebhookStats {
	stats := WebhookStats{ByWebhook: map[string]WebhookBreakdown{}}
	for _, record := range records {
		stats.Total++
		switch record.Status {
		case DeliveryStatusPending:
			stats.Pending++
		case DeliveryStatusRetrying:
			stats.Retrying++
		case DeliveryStatusDelivered:
			stats.Delivered++
		case DeliveryStatusFailed:
			stats.Failed++
		case DeliveryStatusDeadLetter:
			stats.DeadLetter++
		}

		breakdown := stats.ByWebhook[record.WebhookID]
		breakdown.Total++
		switch {
		case record.Status == DeliveryStatusDelivered:
			breakdown.Delivered++
		case record.Status.IsFailure():
			breakdown.Failed++
		}
		stats.ByWebhook[record.WebhookID] = breakdown
	}
	return stats
}

// Filter returns copies of the records matching filter, newest first with
// ID as tiebreak, truncated to Limit when Limit > 0.
func Filter(records []WebhookDelivery, filter DeliveryFilter) []WebhookDelivery {
	out := make([]WebhookDelivery, 0, len(records))
	for _, record := range records {
		if filter.Status != "" && record.Status != filter.Status {
			continue
		}
		if filter.WebhookID != "" && record.WebhookID != filter.WebhookID {
			continue
		}
		out = append(out, record.Clone())
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out
}
