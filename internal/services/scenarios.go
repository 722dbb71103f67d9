package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"cloud.google.com/go/storage"

	"github.com/Lllllllleong/anecdotelm/internal/export"
	"github.com/Lllllllleong/anecdotelm/internal/gcp"
	"github.com/Lllllllleong/anecdotelm/internal/generation"
	"github.com/Lllllllleong/anecdotelm/internal/ingest"
	"github.com/Lllllllleong/anecdotelm/internal/models"
	"github.com/Lllllllleong/anecdotelm/internal/session"
)

const (
	maxUploadBytes  = 256 << 20
	multipartMemory = 32 << 20
)

// ScenarioConfig holds all configuration for the scenario API.
type ScenarioConfig struct {
	SessionTTL      time.Duration
	MaxSessions     int
	ReadConcurrency int
	ExportBucket    string
	Model           gcp.ModelConfig
}

// ScenarioFunction serves the browser-facing session API.
type ScenarioFunction struct {
	registry *session.Registry
	renderer *export.Renderer
	archive  func(sessionID string) export.Surface
	mux      *http.ServeMux
}

// loadScenarioConfig loads and validates the environment for the scenario API.
func loadScenarioConfig() (*ScenarioConfig, error) {
	ttl, err := time.ParseDuration(gcp.GetEnv("SESSION_TTL", "1h"))
	if err != nil || ttl <= 0 {
		return nil, fmt.Errorf("SESSION_TTL must be a positive duration")
	}
	maxSessions, err := strconv.Atoi(gcp.GetEnv("MAX_SESSIONS", "256"))
	if err != nil || maxSessions <= 0 {
		return nil, fmt.Errorf("MAX_SESSIONS must be a positive integer")
	}
	readConcurrency, err := readConcurrencyFromEnv()
	if err != nil {
		return nil, err
	}
	return &ScenarioConfig{
		SessionTTL:      ttl,
		MaxSessions:     maxSessions,
		ReadConcurrency: readConcurrency,
		ExportBucket:    gcp.GetEnv("EXPORT_BUCKET", ""),
		Model:           gcp.LoadModelConfig(),
	}, nil
}

func readConcurrencyFromEnv() (int, error) {
	n, err := strconv.Atoi(gcp.GetEnv("READ_CONCURRENCY", "8"))
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("READ_CONCURRENCY must be a positive integer")
	}
	return n, nil
}

// NewScenarioFunction creates the API from the environment. The model backend
// is not contacted until the first upload.
func NewScenarioFunction(ctx context.Context) (*ScenarioFunction, error) {
	config, err := loadScenarioConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	model, err := gcp.NewModel(config.Model)
	if err != nil {
		return nil, fmt.Errorf("failed to create model: %w", err)
	}

	var archive func(string) export.Surface
	if config.ExportBucket != "" {
		storageClient, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create storage client: %w", err)
		}
		bucket := storageClient.Bucket(config.ExportBucket)
		archive = func(sessionID string) export.Surface {
			return gcp.BucketSurface{Bucket: bucket, Prefix: sessionID, Versioned: true}
		}
	}

	slog.Info("Scenario API initialized.", "model", model.Name(), "exportBucket", config.ExportBucket, "sessionTtl", config.SessionTTL.String())
	return NewScenarioFunctionWith(*config, model, archive), nil
}

// NewScenarioFunctionWith wires the API around an existing model. archive may
// be nil.
func NewScenarioFunctionWith(config ScenarioConfig, model generation.Model, archive func(sessionID string) export.Surface) *ScenarioFunction {
	ingestor := ingest.New(ingest.Config{ReadConcurrency: config.ReadConcurrency})
	client := generation.NewClient(model)

	f := &ScenarioFunction{
		registry: session.NewRegistry(config.MaxSessions, config.SessionTTL, func(id string) *session.Machine {
			return session.NewMachine(id, ingestor, client)
		}),
		renderer: export.NewRenderer(),
		archive:  archive,
		mux:      http.NewServeMux(),
	}

	f.mux.HandleFunc("GET /healthz", f.handleHealth)
	f.mux.HandleFunc("POST /sessions", f.handleCreate)
	f.mux.HandleFunc("GET /sessions/{id}", f.withSession(f.handleGet))
	f.mux.HandleFunc("DELETE /sessions/{id}", f.handleDelete)
	f.mux.HandleFunc("POST /sessions/{id}/files", f.withSession(f.handleUpload))
	f.mux.HandleFunc("POST /sessions/{id}/reset", f.withSession(f.handleReset))
	f.mux.HandleFunc("PUT /sessions/{id}/filename", f.withSession(f.handleFilename))
	f.mux.HandleFunc("GET /sessions/{id}/document", f.withSession(f.handleDocument))
	f.mux.HandleFunc("GET /sessions/{id}/export/markdown", f.withSession(f.handleExportMarkdown))
	f.mux.HandleFunc("GET /sessions/{id}/export/print", f.withSession(f.handleExportPrint))
	return f
}

func (f *ScenarioFunction) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mux.ServeHTTP(w, r)
}

type sessionHandler func(w http.ResponseWriter, r *http.Request, m *session.Machine)

func (f *ScenarioFunction) withSession(next sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m, err := f.registry.Get(r.PathValue("id"))
		if err != nil {
			writeError(w, err)
			return
		}
		next(w, r, m)
	}
}

func (f *ScenarioFunction) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "sessions": f.registry.Len()})
}

func (f *ScenarioFunction) handleCreate(w http.ResponseWriter, _ *http.Request) {
	m := f.registry.Create()
	writeJSON(w, http.StatusCreated, sessionView(m))
}

func (f *ScenarioFunction) handleGet(w http.ResponseWriter, _ *http.Request, m *session.Machine) {
	writeJSON(w, http.StatusOK, sessionView(m))
}

func (f *ScenarioFunction) handleDelete(w http.ResponseWriter, r *http.Request) {
	if !f.registry.Delete(r.PathValue("id")) {
		writeError(w, session.ErrNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (f *ScenarioFunction) handleUpload(w http.ResponseWriter, r *http.Request, m *session.Machine) {
	logCtx := slog.With("sessionId", m.ID())

	files, err := uploadedFiles(w, r)
	if err != nil {
		logCtx.Warn("Could not parse upload", "error", err)
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
		return
	}

	run, err := m.Begin(files)
	if err != nil {
		logCtx.Info("Upload rejected.", "error", err)
		writeError(w, err)
		return
	}

	// The run outlives the request.
	go run.Execute(context.WithoutCancel(r.Context()))

	writeJSON(w, http.StatusAccepted, sessionView(m))
}

func (f *ScenarioFunction) handleReset(w http.ResponseWriter, _ *http.Request, m *session.Machine) {
	if err := m.Reset(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionView(m))
}

func (f *ScenarioFunction) handleFilename(w http.ResponseWriter, r *http.Request, m *session.Machine) {
	var req models.FilenameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Bad Request: could not parse JSON"})
		return
	}
	if err := m.SetFilename(req.Filename); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionView(m))
}

func (f *ScenarioFunction) handleDocument(w http.ResponseWriter, _ *http.Request, m *session.Machine) {
	doc, err := m.Document()
	if err != nil {
		writeError(w, err)
		return
	}
	html, err := export.NewExporter(f.renderer, nil, nil).Render(doc)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(html)
}

func (f *ScenarioFunction) handleExportMarkdown(w http.ResponseWriter, r *http.Request, m *session.Machine) {
	doc, err := m.Document()
	if err != nil {
		writeError(w, err)
		return
	}
	filename := m.Filename()

	// Archiving is best effort; the download is what the user asked for.
	if f.archive != nil {
		if err := f.archive(m.ID()).Save(r.Context(), export.MarkdownFile(doc, filename)); err != nil {
			slog.Warn("Could not archive Markdown export", "sessionId", m.ID(), "error", err)
		}
	}

	exporter := export.NewExporter(f.renderer, export.ResponseSurface{W: w, Attachment: true}, nil)
	if _, err := exporter.Markdown(r.Context(), doc, filename); err != nil {
		slog.Error("Failed to write Markdown export", "sessionId", m.ID(), "error", err)
	}
}

func (f *ScenarioFunction) handleExportPrint(w http.ResponseWriter, r *http.Request, m *session.Machine) {
	doc, err := m.Document()
	if err != nil {
		writeError(w, err)
		return
	}

	// Rendering errors must be reported before the surface writes headers.
	file, err := export.NewExporter(f.renderer, nil, nil).PrintFile(doc, m.Filename())
	if err != nil {
		writeError(w, &export.ExportError{Op: export.OpPrint, Err: err})
		return
	}
	if err := (export.ResponseSurface{W: w}).Save(r.Context(), file); err != nil {
		slog.Error("Failed to write print view", "sessionId", m.ID(), "error", err)
	}
}

// uploadedFiles accepts a multipart form with "files" fields or a JSON body of
// data URIs.
func uploadedFiles(w http.ResponseWriter, r *http.Request) ([]models.UploadedFile, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			return nil, fmt.Errorf("could not parse multipart form: %w", err)
		}
		headers := r.MultipartForm.File["files"]
		files := make([]models.UploadedFile, 0, len(headers))
		for _, fh := range headers {
			files = append(files, detachMultipart(fh))
		}
		return files, nil
	}

	var req models.UploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, fmt.Errorf("could not parse JSON: %w", err)
	}
	files := make([]models.UploadedFile, 0, len(req.Files))
	for _, u := range req.Files {
		file, err := models.FileFromDataURI(u.Name, u.Type, u.Data)
		if err != nil {
			return nil, err
		}
		files = append(files, file)
	}
	return files, nil
}

// detachMultipart buffers a form file so it can be read after the request
// ends and its temporary files are gone. Oversized files are left unread; a
// failed read is replayed when the run opens the file.
func detachMultipart(fh *multipart.FileHeader) models.UploadedFile {
	file := models.FileFromMultipart(fh)
	if fh.Size > ingest.MaxFileSize {
		return file
	}
	data, err := readMultipart(fh)
	if err != nil {
		file.Open = func() (io.ReadCloser, error) { return nil, err }
		return file
	}
	return models.FileFromBytes(file.Name, file.Type, data)
}

func readMultipart(fh *multipart.FileHeader) ([]byte, error) {
	rc, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func sessionView(m *session.Machine) models.SessionResponse {
	state := m.Snapshot()
	resp := models.SessionResponse{
		SessionID: m.ID(),
		State:     string(state.Kind()),
		Filename:  m.Filename(),
	}
	if resp.Filename == "" {
		resp.Filename = export.DefaultFilename
	}
	switch s := state.(type) {
	case session.Success:
		resp.Markdown = s.Document.Markdown
	case session.Failed:
		resp.Error = s.Message
	}
	return resp
}

func statusFor(err error) int {
	var verr *ingest.ValidationError
	var exportErr *export.ExportError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrNotFound), errors.Is(err, session.ErrClosed):
		return http.StatusNotFound
	case errors.Is(err, session.ErrBusy), errors.Is(err, session.ErrInvalidTransition), errors.Is(err, session.ErrNoDocument):
		return http.StatusConflict
	case errors.As(err, &exportErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "Internal Server Error"
	}
	writeJSON(w, status, models.ErrorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to write response", "error", err)
	}
}
