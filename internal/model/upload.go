package model

// ItemFailure explains why a single input could not be hosted.
type ItemFailure struct {
	Source string `json:"source"`
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// UploadResult is returned to the caller after a successful POST /upload.
// Links holds one URL per successfully hosted input, in input order;
// ImageURL is the last of them, or null when nothing was hosted.
type UploadResult struct {
	Links    []string      `json:"links"`
	ImageURL *string       `json:"imageUrl"`
	Failures []ItemFailure `json:"failures,omitempty"`
}
