package models

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
)

// UploadedFile is a raw file selection as supplied by the user. Size is the
// declared size and is checked before any bytes are read.
type UploadedFile struct {
	Name string
	Type string
	Size int64
	Open func() (io.ReadCloser, error)
}

// FileFromBytes wraps an in-memory file.
func FileFromBytes(name, declaredType string, data []byte) UploadedFile {
	return UploadedFile{
		Name: name,
		Type: declaredType,
		Size: int64(len(data)),
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}

// FileFromMultipart adapts a parsed multipart file header.
func FileFromMultipart(fh *multipart.FileHeader) UploadedFile {
	return UploadedFile{
		Name: fh.Filename,
		Type: fh.Header.Get("Content-Type"),
		Size: fh.Size,
		Open: func() (io.ReadCloser, error) {
			return fh.Open()
		},
	}
}

// FileFromDataURI decodes a browser FileReader result ("data:<type>;base64,<data>").
// A bare base64 string without a header is accepted as well.
func FileFromDataURI(name, declaredType, dataURI string) (UploadedFile, error) {
	raw := dataURI
	if strings.HasPrefix(raw, "data:") {
		header, payload, ok := strings.Cut(raw, ",")
		if !ok {
			return UploadedFile{}, fmt.Errorf("malformed data URI for %q", name)
		}
		if declaredType == "" {
			declaredType = strings.TrimSuffix(strings.TrimPrefix(header, "data:"), ";base64")
		}
		raw = payload
	}
	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return UploadedFile{}, fmt.Errorf("decode %q: %w", name, err)
	}
	return FileFromBytes(name, declaredType, data), nil
}

// FileFromPath stats a local file. The declared type comes from the system MIME
// table, which may leave it empty.
func FileFromPath(path string) (UploadedFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return UploadedFile{}, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return UploadedFile{}, fmt.Errorf("%s is a directory", path)
	}
	return UploadedFile{
		Name: filepath.Base(path),
		Type: mime.TypeByExtension(filepath.Ext(path)),
		Size: info.Size(),
		Open: func() (io.ReadCloser, error) {
			return os.Open(path)
		},
	}, nil
}
