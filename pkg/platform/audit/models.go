package audit

import (
	"time"
)

// EventCategory classifies audit events by their primary purpose so stores
// and sinks can apply different retention and routing.
type EventCategory string

const (
	// CategoryCompliance covers committed changes to the registry: new
	// participants and minted licenses. These are the ledger's paper trail.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers attempts that a trust rule refused, such as an
	// unreal requester or an untrusted organization trying to register someone.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers everything else: rejected purchases, replays,
	// fixture loads.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted by the transaction processor to capture key actions. Keep
// it transport-agnostic so stores and sinks can fan out.
type Event struct {
	Category        EventCategory `json:"category"`
	Timestamp       time.Time     `json:"timestamp"`
	TransactionID   string        `json:"transaction_id,omitempty"`
	TransactionType string        `json:"transaction_type,omitempty"`
	// Subject is the participant the event is about: the registered person
	// or the buyer.
	Subject  string `json:"subject"`
	Action   string `json:"action"`
	Decision string `json:"decision,omitempty"`
	Reason   string `json:"reason,omitempty"`
	// RequestID is the correlation ID from the HTTP request context.
	RequestID string `json:"request_id,omitempty"`
	// ActorID is the trustee or buyer that submitted the transaction when it
	// differs from Subject.
	ActorID string `json:"actor_id,omitempty"`
}

type AuditEvent string

const (
	// Registration events
	EventPersonRegistered     AuditEvent = "person_registered"
	EventRegistrationRejected AuditEvent = "registration_rejected"

	// Purchase events
	EventSongPurchased    AuditEvent = "song_purchased"
	EventPurchaseRejected AuditEvent = "purchase_rejected"

	// Processor events
	EventTransactionReplayed AuditEvent = "transaction_replayed"
	EventFixturesLoaded      AuditEvent = "fixtures_loaded"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventPersonRegistered: CategoryCompliance,
	EventSongPurchased:    CategoryCompliance,

	EventRegistrationRejected: CategorySecurity,
	EventTransactionReplayed:  CategorySecurity,

	EventPurchaseRejected: CategoryOperations,
	EventFixturesLoaded:   CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Decision values carried on events.
const (
	DecisionApplied  = "applied"
	DecisionRejected = "rejected"
)
