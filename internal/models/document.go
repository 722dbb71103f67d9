package models

import "time"

// EncodedFilePayload is a validated upload ready to be sent inline to the model.
// Data is plain base64 without any data-URI header.
type EncodedFilePayload struct {
	Name      string `json:"name"`
	MIMEType  string `json:"mimeType"`
	Data      string `json:"data"`
	PageCount int    `json:"pageCount,omitempty"` // PDFs only; diagnostic
}

// GeneratedDocument is the Markdown returned by a successful generation.
// It is produced once per request and never modified afterwards.
type GeneratedDocument struct {
	Markdown    string    `json:"markdown"`
	GeneratedAt time.Time `json:"generatedAt"`
}
