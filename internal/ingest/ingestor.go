package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/Lllllllleong/anecdotelm/internal/models"
	"golang.org/x/sync/errgroup"
)

const defaultReadConcurrency = 8

// Config tunes the ingestor.
type Config struct {
	ReadConcurrency int
}

// Ingestor turns raw file selections into encoded payloads.
type Ingestor struct {
	config    Config
	pageCount func([]byte) (int, error)
}

// New creates an Ingestor. A non-positive ReadConcurrency uses the default.
func New(config Config) *Ingestor {
	if config.ReadConcurrency <= 0 {
		config.ReadConcurrency = defaultReadConcurrency
	}
	return &Ingestor{config: config, pageCount: pdfPageCount}
}

// Ingest validates the batch and, only if every file passes, encodes it.
func (in *Ingestor) Ingest(ctx context.Context, files []models.UploadedFile) ([]models.EncodedFilePayload, error) {
	if err := Validate(files); err != nil {
		return nil, err
	}
	return in.Encode(ctx, files)
}

// Encode reads all files concurrently. The first read failure cancels the rest
// and the whole batch fails; payloads keep the input order.
func (in *Ingestor) Encode(ctx context.Context, files []models.UploadedFile) ([]models.EncodedFilePayload, error) {
	payloads := make([]models.EncodedFilePayload, len(files))

	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(in.config.ReadConcurrency)

	for i, f := range files {
		eg.Go(func() error {
			if err := gctx.Err(); err != nil {
				return &ReadError{Name: f.Name, Err: err}
			}
			payload, err := in.encodeFile(f)
			if err != nil {
				return err
			}
			payloads[i] = payload
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return payloads, nil
}

func (in *Ingestor) encodeFile(f models.UploadedFile) (models.EncodedFilePayload, error) {
	data, err := readAll(f)
	if err != nil {
		slog.Warn("Could not read uploaded file", "file", f.Name, "error", err)
		return models.EncodedFilePayload{}, &ReadError{Name: f.Name, Err: err}
	}

	payload := models.EncodedFilePayload{
		Name:     f.Name,
		MIMEType: ResolveMIMEType(f.Name, f.Type),
		Data:     StripDataURIPrefix(EncodeDataURI(baseMediaType(f.Type), data)),
	}

	if payload.MIMEType == mimePDF && in.pageCount != nil {
		pages, err := in.pageCount(data)
		if err != nil {
			slog.Warn("PDF page count unavailable; sending file anyway", "file", f.Name, "error", err)
		} else {
			payload.PageCount = pages
		}
	}

	slog.Debug("Encoded upload", "file", f.Name, "mimeType", payload.MIMEType, "bytes", len(data), "pages", payload.PageCount)
	return payload, nil
}

func readAll(f models.UploadedFile) ([]byte, error) {
	if f.Open == nil {
		return nil, fmt.Errorf("no reader for %s", f.Name)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
