package model

import "time"

// Sources an image can come from.
const (
	SourceUpload = "upload"
	SourceURL    = "url"
)

// Image is a hosted, normalized image recorded in upload history.
// This is a pure domain model with no database-specific dependencies or tags.
type Image struct {
	ID           string    `json:"id"`
	PublicID     string    `json:"public_id"`
	URL          string    `json:"url"`
	Source       string    `json:"source"`
	OriginalName string    `json:"original_name"`
	Width        int       `json:"width"`
	Height       int       `json:"height"`
	Size         int64     `json:"size"`
	ContentType  string    `json:"content_type"`
	Backend      string    `json:"backend"`
	CreatedAt    time.Time `json:"created_at"`
}
