// Package core contains the webhook delivery domain: delivery records and
// their state machine, the coordinator that enqueues, attempts and persists
// deliveries, and the contracts adapters implement (transport, stores,
// metrics). Adapters depend on this package; core does not depend on any
// concrete transport or storage.
package core
