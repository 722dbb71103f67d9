package gcp

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"

	"github.com/Lllllllleong/anecdotelm/internal/export"
)

// GetEnv is a helper to read an environment variable or return a default value.
func GetEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// SaveToGCSAtomically writes content to a GCS object only if it doesn't already exist.
// An existing object is not a failure: exports are idempotent.
func SaveToGCSAtomically(ctx context.Context, bucket *storage.BucketHandle, objectName, contentType string, content []byte) error {
	writer := bucket.Object(objectName).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	writer.ContentType = contentType

	if _, err := io.Copy(writer, bytes.NewReader(content)); err != nil {
		_ = writer.Close()
		if isPreconditionFailed(err) {
			slog.Info("Object already exists; skipping.", "object", objectName)
			return nil
		}
		slog.Error("Failed to copy content to GCS object", "object", objectName, "error", err)
		return fmt.Errorf("failed to write to GCS: %w", err)
	}

	if err := writer.Close(); err != nil {
		if isPreconditionFailed(err) {
			slog.Info("Object already exists; skipping.", "object", objectName)
			return nil
		}
		slog.Error("Failed to close GCS writer", "object", objectName, "error", err)
		return fmt.Errorf("failed to finalize GCS write: %w", err)
	}
	return nil
}

func isPreconditionFailed(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed
}

// ReadObject downloads an object into memory, refusing objects larger than limit.
func ReadObject(ctx context.Context, client *storage.Client, bucket, object string, limit int64) ([]byte, error) {
	reader, err := client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get GCS object reader for gs://%s/%s: %w", bucket, object, err)
	}
	defer reader.Close()

	data, err := io.ReadAll(io.LimitReader(reader, limit+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read gs://%s/%s: %w", bucket, object, err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("gs://%s/%s exceeds %d bytes", bucket, object, limit)
	}
	return data, nil
}

// SaveToGCS writes content to a GCS object, replacing any previous version.
func SaveToGCS(ctx context.Context, bucket *storage.BucketHandle, objectName, contentType string, content []byte) error {
	writer := bucket.Object(objectName).NewWriter(ctx)
	writer.ContentType = contentType

	if _, err := io.Copy(writer, bytes.NewReader(content)); err != nil {
		_ = writer.Close()
		slog.Error("Failed to copy content to GCS object", "object", objectName, "error", err)
		return fmt.Errorf("failed to write to GCS: %w", err)
	}
	if err := writer.Close(); err != nil {
		slog.Error("Failed to close GCS writer", "object", objectName, "error", err)
		return fmt.Errorf("failed to finalize GCS write: %w", err)
	}
	return nil
}

// BucketSurface saves export artifacts as objects under Prefix. A plain
// surface overwrites the object of the same name. A Versioned surface keys
// every object by a hash of its content, so each distinct export is kept and
// identical ones are written once.
type BucketSurface struct {
	Bucket    *storage.BucketHandle
	Prefix    string
	Versioned bool
}

func (b BucketSurface) Save(ctx context.Context, f export.File) error {
	if b.Bucket == nil {
		return export.ErrSurfaceUnavailable
	}
	objectName, ifAbsent := b.writePlan(f)
	if ifAbsent {
		return SaveToGCSAtomically(ctx, b.Bucket, objectName, f.ContentType, f.Data)
	}
	return SaveToGCS(ctx, b.Bucket, objectName, f.ContentType, f.Data)
}

// writePlan returns the object f is stored under and whether the write must
// only create it.
func (b BucketSurface) writePlan(f export.File) (string, bool) {
	if !b.Versioned {
		return b.ObjectName(f.Name), false
	}
	sum := sha256.Sum256(f.Data)
	return path.Join(b.Prefix, hex.EncodeToString(sum[:])[:12], cleanObjectPath(f.Name)), true
}

// ObjectName returns the object an artifact named name is stored under.
// Relative directories are kept; nothing escapes Prefix.
func (b BucketSurface) ObjectName(name string) string {
	return path.Join(b.Prefix, cleanObjectPath(name))
}

func cleanObjectPath(name string) string {
	return strings.TrimPrefix(path.Clean("/"+name), "/")
}
