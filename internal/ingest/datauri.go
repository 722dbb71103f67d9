package ingest

import (
	"encoding/base64"
	"regexp"
)

var dataURIPrefix = regexp.MustCompile(`^data:(.*,)?`)

// EncodeDataURI produces the same string a browser FileReader returns from
// readAsDataURL.
func EncodeDataURI(mimeType string, data []byte) string {
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// StripDataURIPrefix removes a leading "data:...," header if present.
func StripDataURIPrefix(s string) string {
	return dataURIPrefix.ReplaceAllString(s, "")
}
