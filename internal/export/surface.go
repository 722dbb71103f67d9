package export

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
)

// Surface is a destination for export artifacts: a browser response, a local
// directory or a storage bucket.
type Surface interface {
	Save(ctx context.Context, f File) error
}

// DirSurface writes artifacts into a local directory, creating it if needed.
type DirSurface struct {
	Dir string
}

func (d DirSurface) Save(_ context.Context, f File) error {
	if d.Dir == "" {
		return ErrSurfaceUnavailable
	}
	if err := os.MkdirAll(d.Dir, 0o755); err != nil {
		return fmt.Errorf("create export dir: %w", err)
	}
	path := filepath.Join(d.Dir, filepath.Base(f.Name))
	if err := os.WriteFile(path, f.Data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// ResponseSurface streams an artifact as an HTTP response. Attachment selects
// a download; otherwise the browser opens it in place.
type ResponseSurface struct {
	W          http.ResponseWriter
	Attachment bool
}

func (r ResponseSurface) Save(_ context.Context, f File) error {
	if r.W == nil {
		return ErrSurfaceUnavailable
	}
	disposition := "inline"
	if r.Attachment {
		disposition = "attachment"
	}
	h := r.W.Header()
	h.Set("Content-Type", f.ContentType)
	h.Set("Content-Disposition", mime.FormatMediaType(disposition, map[string]string{"filename": f.Name}))
	h.Set("Content-Length", strconv.Itoa(len(f.Data)))
	r.W.WriteHeader(http.StatusOK)
	_, err := r.W.Write(f.Data)
	return err
}

// Tee saves to every non-nil surface and joins the failures.
func Tee(surfaces ...Surface) Surface {
	return tee(surfaces)
}

type tee []Surface

func (t tee) Save(ctx context.Context, f File) error {
	var errs []error
	saved := 0
	for _, s := range t {
		if s == nil {
			continue
		}
		if err := s.Save(ctx, f); err != nil {
			errs = append(errs, err)
			continue
		}
		saved++
	}
	if saved == 0 && len(errs) == 0 {
		return ErrSurfaceUnavailable
	}
	return errors.Join(errs...)
}
