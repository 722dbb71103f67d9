package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lllllllleong/anecdotelm/internal/export"
	"github.com/Lllllllleong/anecdotelm/internal/models"
	"github.com/Lllllllleong/anecdotelm/internal/session"
)

type fakeModel struct {
	mu      sync.Mutex
	calls   int
	last    *models.GenerationRequest
	text    string
	err     error
	release chan struct{}
}

func (f *fakeModel) Name() string { return "fake" }

func (f *fakeModel) Generate(_ context.Context, req *models.GenerationRequest) (string, error) {
	f.mu.Lock()
	f.calls++
	f.last = req
	release := f.release
	f.mu.Unlock()

	if release != nil {
		<-release
	}
	return f.text, f.err
}

func (f *fakeModel) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type recordingSurface struct {
	mu    sync.Mutex
	files []export.File
	fails int
}

func (r *recordingSurface) Save(_ context.Context, f export.File) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fails > 0 {
		r.fails--
		return errors.New("bucket unavailable")
	}
	r.files = append(r.files, f)
	return nil
}

func (r *recordingSurface) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, f := range r.files {
		out = append(out, f.Name)
	}
	return out
}

func formFile(t *testing.T, mw *multipart.Writer, name, contentType string, data []byte) {
	t.Helper()
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="files"; filename="%s"`, name))
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
}

func testConfig() ScenarioConfig {
	return ScenarioConfig{SessionTTL: time.Hour, MaxSessions: 8, ReadConcurrency: 2}
}

func newTestServer(t *testing.T, model *fakeModel) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(NewScenarioFunctionWith(testConfig(), model, nil))
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, url, contentType string, body []byte) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, bytes.NewReader(body))
	require.NoError(t, err)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeSession(t *testing.T, resp *http.Response) models.SessionResponse {
	t.Helper()
	var out models.SessionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func createSession(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	resp := do(t, http.MethodPost, srv.URL+"/sessions", "", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	s := decodeSession(t, resp)
	assert.Equal(t, "IDLE", s.State)
	assert.Equal(t, export.DefaultFilename, s.Filename)
	require.NotEmpty(t, s.SessionID)
	return s.SessionID
}

func jsonUpload(t *testing.T, files ...models.UploadFile) []byte {
	t.Helper()
	body, err := json.Marshal(models.UploadRequest{Files: files})
	require.NoError(t, err)
	return body
}

func dataURI(mimeType, content string) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString([]byte(content))
}

func waitForState(t *testing.T, srv *httptest.Server, id, want string) models.SessionResponse {
	t.Helper()
	var last models.SessionResponse
	require.Eventually(t, func() bool {
		resp, err := http.Get(srv.URL + "/sessions/" + id)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		if err := json.NewDecoder(resp.Body).Decode(&last); err != nil {
			return false
		}
		return last.State == want
	}, 2*time.Second, 10*time.Millisecond)
	return last
}

func generate(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	id := createSession(t, srv)
	body := jsonUpload(t, models.UploadFile{Name: "notes.md", Data: dataURI("", "# Notes")})
	resp := do(t, http.MethodPost, srv.URL+"/sessions/"+id+"/files", "application/json", body)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	waitForState(t, srv, id, "SUCCESS")
	return id
}

func TestUploadMarkdownReachesSuccess(t *testing.T) {
	model := &fakeModel{text: "# Title\n\nIntro."}
	srv := newTestServer(t, model)
	id := createSession(t, srv)

	body := jsonUpload(t, models.UploadFile{Name: "notes.md", Data: dataURI("", strings.Repeat("a", 10*1024))})
	resp := do(t, http.MethodPost, srv.URL+"/sessions/"+id+"/files", "application/json", body)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	s := waitForState(t, srv, id, "SUCCESS")
	assert.Equal(t, "# Title\n\nIntro.", s.Markdown)
	assert.Empty(t, s.Error)

	require.Equal(t, 1, model.callCount())
	require.Len(t, model.last.Files, 1)
	assert.Equal(t, "text/markdown", model.last.Files[0].MIMEType)
}

func TestOversizedPDFIsRejectedWithoutModelCall(t *testing.T) {
	model := &fakeModel{text: "# Title"}
	srv := newTestServer(t, model)
	id := createSession(t, srv)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	formFile(t, mw, "lecture.pdf", "application/pdf", make([]byte, 25<<20))
	require.NoError(t, mw.Close())

	resp := do(t, http.MethodPost, srv.URL+"/sessions/"+id+"/files", mw.FormDataContentType(), buf.Bytes())
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var e models.ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&e))
	assert.Contains(t, e.Error, "lecture.pdf")
	assert.Contains(t, e.Error, "Max 20MB")

	assert.Zero(t, model.callCount())
	s := decodeSession(t, do(t, http.MethodGet, srv.URL+"/sessions/"+id, "", nil))
	assert.Equal(t, "IDLE", s.State)
}

func TestMultipartUpload(t *testing.T) {
	model := &fakeModel{text: "# Scenarios"}
	srv := newTestServer(t, model)
	id := createSession(t, srv)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	formFile(t, mw, "a.md", "application/octet-stream", []byte("# A"))
	formFile(t, mw, "b.bin", "application/octet-stream", []byte("plain notes"))
	require.NoError(t, mw.Close())

	resp := do(t, http.MethodPost, srv.URL+"/sessions/"+id+"/files", mw.FormDataContentType(), buf.Bytes())
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	buf.Reset()
	mw = multipart.NewWriter(&buf)
	formFile(t, mw, "a.md", "application/octet-stream", []byte("# A"))
	formFile(t, mw, "b.txt", "text/plain; charset=utf-8", []byte("plain notes"))
	require.NoError(t, mw.Close())

	resp = do(t, http.MethodPost, srv.URL+"/sessions/"+id+"/files", mw.FormDataContentType(), buf.Bytes())
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	s := waitForState(t, srv, id, "SUCCESS")
	assert.Equal(t, "# Scenarios", s.Markdown)

	require.Len(t, model.last.Files, 2)
	assert.Equal(t, "text/markdown", model.last.Files[0].MIMEType)
	assert.Equal(t, "text/plain", model.last.Files[1].MIMEType)
	decoded, err := base64.StdEncoding.DecodeString(model.last.Files[0].Data)
	require.NoError(t, err)
	assert.Equal(t, "# A", string(decoded))
}

func TestUploadWhileGeneratingConflicts(t *testing.T) {
	model := &fakeModel{text: "# Done", release: make(chan struct{})}
	srv := newTestServer(t, model)
	id := createSession(t, srv)
	body := jsonUpload(t, models.UploadFile{Name: "notes.md", Data: dataURI("text/markdown", "x")})

	resp := do(t, http.MethodPost, srv.URL+"/sessions/"+id+"/files", "application/json", body)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "GENERATING", decodeSession(t, resp).State)

	resp = do(t, http.MethodPost, srv.URL+"/sessions/"+id+"/files", "application/json", body)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = do(t, http.MethodPost, srv.URL+"/sessions/"+id+"/reset", "", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	close(model.release)
	waitForState(t, srv, id, "SUCCESS")
	assert.Equal(t, 1, model.callCount())
}

func TestGenerationFailureThenReset(t *testing.T) {
	model := &fakeModel{err: errors.New("permission denied")}
	srv := newTestServer(t, model)
	id := createSession(t, srv)

	body := jsonUpload(t, models.UploadFile{Name: "a.pdf", Type: "application/pdf", Data: dataURI("application/pdf", "%PDF-1.4")})
	resp := do(t, http.MethodPost, srv.URL+"/sessions/"+id+"/files", "application/json", body)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	s := waitForState(t, srv, id, "ERROR")
	assert.Equal(t, session.GenericFailureMessage, s.Error)
	assert.Empty(t, s.Markdown)

	resp = do(t, http.MethodPost, srv.URL+"/sessions/"+id+"/reset", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	s = decodeSession(t, resp)
	assert.Equal(t, "IDLE", s.State)
	assert.Empty(t, s.Error)

	resp = do(t, http.MethodGet, srv.URL+"/sessions/"+id+"/export/markdown", "", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestExportMarkdownDefaultName(t *testing.T) {
	model := &fakeModel{text: "# Title\n\nBody"}
	archive := &recordingSurface{}
	var archivedFor string
	f := NewScenarioFunctionWith(testConfig(), model, func(sessionID string) export.Surface {
		archivedFor = sessionID
		return archive
	})
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)

	id := generate(t, srv)
	resp := do(t, http.MethodGet, srv.URL+"/sessions/"+id+"/export/markdown", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "attachment; filename=anecdote-scenarios.md", resp.Header.Get("Content-Disposition"))
	assert.Equal(t, "text/markdown; charset=utf-8", resp.Header.Get("Content-Type"))

	var got bytes.Buffer
	_, err := got.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "# Title\n\nBody", got.String())

	assert.Equal(t, id, archivedFor)
	assert.Equal(t, []string{"anecdote-scenarios.md"}, archive.names())
}

func TestExportPrintUsesFilename(t *testing.T) {
	srv := newTestServer(t, &fakeModel{text: "# Title\n\nBody"})
	id := generate(t, srv)

	body, err := json.Marshal(models.FilenameRequest{Filename: "Week <1>"})
	require.NoError(t, err)
	resp := do(t, http.MethodPut, srv.URL+"/sessions/"+id+"/filename", "application/json", body)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Week <1>", decodeSession(t, resp).Filename)

	resp = do(t, http.MethodGet, srv.URL+"/sessions/"+id+"/export/print", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/html; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Disposition"), "inline"))

	var page bytes.Buffer
	_, err = page.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, page.String(), "<title>Week &lt;1&gt;</title>")
	assert.Contains(t, page.String(), "Title</h1>")
	assert.Contains(t, page.String(), "window.print()")
}

func TestFilenameFallsBackToDefaultAfterReset(t *testing.T) {
	srv := newTestServer(t, &fakeModel{text: "# Title"})
	id := generate(t, srv)
	assert.Equal(t, export.DefaultFilename, decodeSession(t, do(t, http.MethodGet, srv.URL+"/sessions/"+id, "", nil)).Filename)

	body, err := json.Marshal(models.FilenameRequest{Filename: "week-1"})
	require.NoError(t, err)
	resp := do(t, http.MethodPut, srv.URL+"/sessions/"+id+"/filename", "application/json", body)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "week-1", decodeSession(t, resp).Filename)

	resp = do(t, http.MethodPost, srv.URL+"/sessions/"+id+"/reset", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, export.DefaultFilename, decodeSession(t, resp).Filename)
}

func TestDocumentRendersHTML(t *testing.T) {
	srv := newTestServer(t, &fakeModel{text: "# Title\n\n> **Context:** A team."})
	id := generate(t, srv)

	resp := do(t, http.MethodGet, srv.URL+"/sessions/"+id+"/document", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var html bytes.Buffer
	_, err := html.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, html.String(), "<blockquote>")
	assert.Contains(t, html.String(), "<strong>Context:</strong>")
}

func TestFilenameRequiresDocument(t *testing.T) {
	srv := newTestServer(t, &fakeModel{text: "x"})
	id := createSession(t, srv)

	body, err := json.Marshal(models.FilenameRequest{Filename: "notes"})
	require.NoError(t, err)
	resp := do(t, http.MethodPut, srv.URL+"/sessions/"+id+"/filename", "application/json", body)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestDeleteAndUnknownSession(t *testing.T) {
	srv := newTestServer(t, &fakeModel{text: "x"})
	id := createSession(t, srv)

	resp := do(t, http.MethodDelete, srv.URL+"/sessions/"+id, "", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = do(t, http.MethodGet, srv.URL+"/sessions/"+id, "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = do(t, http.MethodDelete, srv.URL+"/sessions/"+id, "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMalformedUpload(t *testing.T) {
	srv := newTestServer(t, &fakeModel{text: "x"})
	id := createSession(t, srv)

	resp := do(t, http.MethodPost, srv.URL+"/sessions/"+id+"/files", "application/json", []byte("{"))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	body := jsonUpload(t, models.UploadFile{Name: "a.md", Data: "data:text/markdown;base64,!!!"})
	resp = do(t, http.MethodPost, srv.URL+"/sessions/"+id+"/files", "application/json", body)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = do(t, http.MethodPost, srv.URL+"/sessions/"+id+"/files", "application/json", jsonUpload(t))
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var e models.ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&e))
	assert.Equal(t, "No files selected.", e.Error)
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, &fakeModel{})
	resp := do(t, http.MethodGet, srv.URL+"/healthz", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestLoadScenarioConfig(t *testing.T) {
	t.Setenv("SESSION_TTL", "15m")
	t.Setenv("MAX_SESSIONS", "10")
	t.Setenv("READ_CONCURRENCY", "4")
	t.Setenv("EXPORT_BUCKET", "exports")

	cfg, err := loadScenarioConfig()
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, cfg.SessionTTL)
	assert.Equal(t, 10, cfg.MaxSessions)
	assert.Equal(t, 4, cfg.ReadConcurrency)
	assert.Equal(t, "exports", cfg.ExportBucket)

	t.Setenv("MAX_SESSIONS", "zero")
	_, err = loadScenarioConfig()
	assert.ErrorContains(t, err, "MAX_SESSIONS")
}
