package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Lllllllleong/anecdotelm/internal/models"
)

const (
	DefaultFilename  = "anecdote-scenarios"
	DefaultPrintName = "Anecdote Scenarios"

	markdownContentType = "text/markdown; charset=utf-8"
	htmlContentType     = "text/html; charset=utf-8"
)

var (
	ErrSurfaceUnavailable = errors.New("export surface unavailable")
	ErrNoDocument         = errors.New("no document to export")
)

// ExportError is shown to the user as an inline notice. It never changes the
// session state.
type ExportError struct {
	Op  string
	Err error
}

func (e *ExportError) Error() string {
	if errors.Is(e.Err, ErrSurfaceUnavailable) && e.Op == OpPrint {
		return "Could not open the print view. Please allow pop-ups to save as PDF."
	}
	return fmt.Sprintf("Could not export %s: %v", e.Op, e.Err)
}

func (e *ExportError) Unwrap() error { return e.Err }

const (
	OpMarkdown = "markdown"
	OpPrint    = "print"
)

// File is an export artifact handed to a Surface.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// SanitizeFilename trims the user's filename and falls back to the default.
func SanitizeFilename(name string) string {
	if trimmed := strings.TrimSpace(name); trimmed != "" {
		return trimmed
	}
	return DefaultFilename
}

func printTitle(name string) string {
	if trimmed := strings.TrimSpace(name); trimmed != "" {
		return trimmed
	}
	return DefaultPrintName
}

// Exporter produces export artifacts and hands them to surfaces. Both
// operations only read the document.
type Exporter struct {
	renderer *Renderer
	download Surface
	print    Surface
}

// NewExporter wires the two surfaces. Either may be nil; using a nil surface
// yields an ExportError.
func NewExporter(renderer *Renderer, download, print Surface) *Exporter {
	if renderer == nil {
		renderer = NewRenderer()
	}
	return &Exporter{renderer: renderer, download: download, print: print}
}

// MarkdownFile builds the download artifact. Identical inputs give identical bytes.
func MarkdownFile(doc *models.GeneratedDocument, filename string) File {
	return File{
		Name:        SanitizeFilename(filename) + ".md",
		ContentType: markdownContentType,
		Data:        []byte(doc.Markdown),
	}
}

// PrintFile renders doc into a standalone printable page.
func (e *Exporter) PrintFile(doc *models.GeneratedDocument, filename string) (File, error) {
	body, err := e.renderer.Render(doc.Markdown)
	if err != nil {
		return File{}, err
	}
	page, err := printDocument(printTitle(filename), body)
	if err != nil {
		return File{}, err
	}
	return File{
		Name:        SanitizeFilename(filename) + ".html",
		ContentType: htmlContentType,
		Data:        page,
	}, nil
}

// Render returns the display HTML for doc.
func (e *Exporter) Render(doc *models.GeneratedDocument) ([]byte, error) {
	if doc == nil {
		return nil, ErrNoDocument
	}
	return e.renderer.Render(doc.Markdown)
}

// Markdown saves the raw Markdown to the download surface.
func (e *Exporter) Markdown(ctx context.Context, doc *models.GeneratedDocument, filename string) (File, error) {
	if doc == nil {
		return File{}, &ExportError{Op: OpMarkdown, Err: ErrNoDocument}
	}
	f := MarkdownFile(doc, filename)
	return f, e.deliver(ctx, OpMarkdown, e.download, f)
}

// Print saves the printable page to the print surface.
func (e *Exporter) Print(ctx context.Context, doc *models.GeneratedDocument, filename string) (File, error) {
	if doc == nil {
		return File{}, &ExportError{Op: OpPrint, Err: ErrNoDocument}
	}
	f, err := e.PrintFile(doc, filename)
	if err != nil {
		return File{}, &ExportError{Op: OpPrint, Err: err}
	}
	return f, e.deliver(ctx, OpPrint, e.print, f)
}

func (e *Exporter) deliver(ctx context.Context, op string, s Surface, f File) error {
	if s == nil {
		return &ExportError{Op: op, Err: ErrSurfaceUnavailable}
	}
	if err := s.Save(ctx, f); err != nil {
		slog.Warn("Export surface failed", "op", op, "file", f.Name, "error", err)
		return &ExportError{Op: op, Err: err}
	}
	slog.Info("Exported document.", "op", op, "file", f.Name, "bytes", len(f.Data))
	return nil
}
