package model

import "time"

// Process tracks an item's journey from report to resolution. Each item has
// at most one process.
type Process struct {
	ID                   string    `json:"id"`
	ItemID               string    `json:"itemId"`
	UserID               string    `json:"userId"`
	RequestorUserID      *string   `json:"requestorUserId"`
	Status               string    `json:"status"`
	Message              string    `json:"message"`
	VerificationAttempts int       `json:"verificationAttempts"`
	Version              int64     `json:"version"`
	CreatedAt            time.Time `json:"createdAt"`
	UpdatedAt            time.Time `json:"updatedAt"`

	// Joined (not always populated).
	Item *Item `json:"item,omitempty"`
}

// Process statuses.
const (
	StatusPendingApproval    = "pending_approval"
	StatusApproved           = "approved"
	StatusInVerification     = "in_verification"
	StatusAwaitingReview     = "awaiting_review"
	StatusVerified           = "verified"
	StatusVerificationFailed = "verification_failed"
	StatusAwaitingSurrender  = "awaiting_surrender"
	StatusPendingRetrieval   = "pending_retrieval"
	StatusClaimRequest       = "claim_request"
	StatusHandedOver         = "handed_over"
	StatusNoShow             = "no_show"
	StatusRejected           = "rejected"
	StatusCancelled          = "cancelled"
)

// MaxVerificationAttempts is the number of wrong answers after which
// verification fails for good.
const MaxVerificationAttempts = 3

var statuses = map[string]bool{
	StatusPendingApproval:    true,
	StatusApproved:           true,
	StatusInVerification:     true,
	StatusAwaitingReview:     true,
	StatusVerified:           true,
	StatusVerificationFailed: true,
	StatusAwaitingSurrender:  true,
	StatusPendingRetrieval:   true,
	StatusClaimRequest:       true,
	StatusHandedOver:         true,
	StatusNoShow:             true,
	StatusRejected:           true,
	StatusCancelled:          true,
}

// ValidStatus reports whether s belongs to the closed set of process statuses.
func ValidStatus(s string) bool {
	return statuses[s]
}

// Terminal reports whether no further named transition may leave s.
func Terminal(s string) bool {
	return s == StatusHandedOver || s == StatusRejected || s == StatusCancelled
}

// InitialStatus returns the status a freshly reported item's process starts in.
func InitialStatus(itemStatus string) string {
	if itemStatus == ItemStatusFound {
		return StatusAwaitingSurrender
	}
	return StatusPendingApproval
}
