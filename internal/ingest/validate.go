package ingest

import (
	"mime"
	"path/filepath"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/Lllllllleong/anecdotelm/internal/models"
)

// MaxFileSize is the per-file upload limit (20 MiB).
const MaxFileSize int64 = 20 * 1024 * 1024

const (
	mimePDF      = "application/pdf"
	mimeMarkdown = "text/markdown"
	mimePlain    = "text/plain"
)

var acceptedTypes = map[string]bool{
	mimePDF:      true,
	mimeMarkdown: true,
	mimePlain:    true,
}

var batchRules = []validation.Rule{
	validation.Required.ErrorObject(ErrNoFiles),
}

var fileRules = []validation.Rule{
	validation.By(acceptedType),
	validation.By(withinSizeLimit),
}

// Validate applies the type and size rules to every file in order and returns
// the first violation. Nothing is read.
func Validate(files []models.UploadedFile) error {
	if err := validation.Validate(files, batchRules...); err != nil {
		return &ValidationError{Err: err}
	}
	for _, f := range files {
		if err := validation.Validate(f, fileRules...); err != nil {
			return &ValidationError{Name: f.Name, Err: err}
		}
	}
	return nil
}

func acceptedType(value any) error {
	f, _ := value.(models.UploadedFile)
	if acceptedTypes[baseMediaType(f.Type)] || isMarkdownName(f.Name) {
		return nil
	}
	return ErrUnsupportedType
}

func withinSizeLimit(value any) error {
	f, _ := value.(models.UploadedFile)
	if f.Size > MaxFileSize {
		return ErrFileTooLarge.SetParams(map[string]any{"name": f.Name})
	}
	return nil
}

// ResolveMIMEType picks the MIME type sent to the model: the extension wins for
// .md, .markdown and .pdf, then an accepted declared type, then text/plain.
func ResolveMIMEType(name, declared string) string {
	switch extension(name) {
	case ".md", ".markdown":
		return mimeMarkdown
	case ".pdf":
		return mimePDF
	}
	if t := baseMediaType(declared); acceptedTypes[t] {
		return t
	}
	return mimePlain
}

func isMarkdownName(name string) bool {
	ext := extension(name)
	return ext == ".md" || ext == ".markdown"
}

func extension(name string) string {
	return strings.ToLower(filepath.Ext(name))
}

// baseMediaType drops parameters such as charset. Unparseable values are
// returned lowercased and trimmed.
func baseMediaType(t string) string {
	t = strings.TrimSpace(t)
	if t == "" {
		return ""
	}
	if mt, _, err := mime.ParseMediaType(t); err == nil {
		return mt
	}
	return strings.ToLower(t)
}
