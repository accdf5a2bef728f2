// Package notify carries workflow notifications from the state machine to
// email transports. Events are published after the triggering transaction has
// committed; delivery is best effort and never reported back to the caller.
package notify

import (
	"context"
	"time"
)

// Kind identifies a notification.
type Kind string

// Notification kinds.
const (
	KindItemReported        Kind = "item_reported"
	KindItemApproved        Kind = "item_approved"
	KindReportRejected      Kind = "report_rejected"
	KindVerificationStarted Kind = "verification_started"
	KindAnswersSubmitted    Kind = "answers_submitted"
	KindAttemptFailed       Kind = "attempt_failed"
	KindMaxAttempts         Kind = "max_attempts"
	KindReadyForPickup      Kind = "ready_for_pickup"
	KindClaimSubmitted      Kind = "claim_submitted"
	KindClaimApproved       Kind = "claim_approved"
	KindClaimRejected       Kind = "claim_rejected"
	KindHandedOver          Kind = "handed_over"
	KindNoShow              Kind = "no_show"
)

// QA is one question and answer of a verification transcript.
type QA struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Event is a single notification addressed to one user.
type Event struct {
	Kind              Kind      `json:"kind"`
	To                string    `json:"to"`
	RecipientName     string    `json:"recipientName"`
	ItemID            string    `json:"itemId"`
	ItemName          string    `json:"itemName"`
	ItemStatus        string    `json:"itemStatus"`
	ProcessID         string    `json:"processId"`
	RemainingAttempts int       `json:"remainingAttempts,omitempty"`
	Transcript        []QA      `json:"transcript,omitempty"`
	OccurredAt        time.Time `json:"occurredAt"`
}

// Notifier delivers a single event.
type Notifier interface {
	Notify(ctx context.Context, e Event) error
}

// Publisher accepts events for asynchronous delivery. Publish must not block
// on the transport.
type Publisher interface {
	Publish(e Event)
}
