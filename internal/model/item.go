package model

import "time"

// Item is a reported lost or found item.
type Item struct {
	ID                     string                  `json:"id"`
	Name                   string                  `json:"name"`
	Description            string                  `json:"description,omitempty"`
	Category               string                  `json:"category,omitempty"`
	Location               string                  `json:"location,omitempty"`
	Image                  string                  `json:"image,omitempty"`
	StudentID              string                  `json:"studentId,omitempty"`
	ReporterID             string                  `json:"reporterId"`
	Status                 string                  `json:"status"`
	Approved               bool                    `json:"approved"`
	Version                int64                   `json:"version"`
	CreatedAt              time.Time               `json:"createdAt"`
	UpdatedAt              time.Time               `json:"updatedAt"`
	AdditionalDescriptions []AdditionalDescription `json:"additionalDescriptions"`
}

// AdditionalDescription is an extra titled note attached to an item.
type AdditionalDescription struct {
	Title string `json:"title"`
	Text  string `json:"text"`
}

// Item statuses.
const (
	ItemStatusLost  = "lost"
	ItemStatusFound = "found"
)

// ValidItemStatus reports whether s is a known item status.
func ValidItemStatus(s string) bool {
	return s == ItemStatusLost || s == ItemStatusFound
}
