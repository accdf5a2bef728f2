package model

import "time"

// VerificationQuestion is one ownership-proof question of a verification or
// claim round.
type VerificationQuestion struct {
	ID             string    `json:"id"`
	ProcessID      string    `json:"processId"`
	Question       string    `json:"question"`
	Answer         string    `json:"answer,omitempty"`
	AdditionalInfo string    `json:"additionalInfo,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}
