package ingest

import (
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Rule errors. Their messages are shown to the user as is.
var (
	ErrNoFiles         = validation.NewError("validation_no_files", "No files selected.")
	ErrUnsupportedType = validation.NewError("validation_file_type", "Invalid file type. Please upload PDF or Markdown (.md) files.")
	ErrFileTooLarge    = validation.NewError("validation_file_size", `File {{printf "%q" .name}} is too large. Max 20MB.`)
)

// ValidationError rejects a whole batch before anything is read. Name is the
// offending file, empty for batch-level rules.
type ValidationError struct {
	Name string
	Err  error
}

func (e *ValidationError) Error() string {
	return e.Err.Error()
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Is matches rule errors by code, since parameterized copies differ from the
// package-level values.
func (e *ValidationError) Is(target error) bool {
	t, ok := target.(validation.Error)
	if !ok {
		return false
	}
	v, ok := e.Err.(validation.Error)
	return ok && v.Code() == t.Code()
}

// ReadError reports a file whose bytes could not be read locally.
type ReadError struct {
	Name string
	Err  error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("Failed to read file: %s", e.Name)
}

func (e *ReadError) Unwrap() error { return e.Err }
