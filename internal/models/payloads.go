package models

// These structs define the JSON payloads exchanged with the browser front end
// and the storage trigger.

// SessionResponse describes a session and its current state.
type SessionResponse struct {
	SessionID string `json:"sessionId"`
	State     string `json:"state"`
	Markdown  string `json:"markdown,omitempty"`
	Error     string `json:"error,omitempty"`
	Filename  string `json:"filename"`
}

// UploadRequest is the JSON alternative to a multipart upload. Data holds the
// FileReader data URI.
type UploadRequest struct {
	Files []UploadFile `json:"files"`
}

type UploadFile struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Data string `json:"data"`
}

// FilenameRequest updates the export filename of a session.
type FilenameRequest struct {
	Filename string `json:"filename"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

// NotesEvent is the storage object payload of a finalized-object CloudEvent.
type NotesEvent struct {
	Bucket      string `json:"bucket"`
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
	Size        string `json:"size"`
}
