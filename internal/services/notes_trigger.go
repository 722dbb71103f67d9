package services

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strconv"
	"strings"

	"cloud.google.com/go/storage"

	"github.com/Lllllllleong/anecdotelm/internal/export"
	"github.com/Lllllllleong/anecdotelm/internal/gcp"
	"github.com/Lllllllleong/anecdotelm/internal/generation"
	"github.com/Lllllllleong/anecdotelm/internal/ingest"
	"github.com/Lllllllleong/anecdotelm/internal/models"
	"github.com/Lllllllleong/anecdotelm/internal/session"
)

const printSuffix = ".print.html"

type NotesTriggerConfig struct {
	ScenariosBucket string
	ReadConcurrency int
	Model           gcp.ModelConfig
}

// fetchFunc downloads one object, refusing anything over limit bytes.
type fetchFunc func(ctx context.Context, bucket, object string, limit int64) ([]byte, error)

type NotesTriggerFunction struct {
	fetch    fetchFunc
	output   export.Surface
	ingestor *ingest.Ingestor
	client   *generation.Client
	renderer *export.Renderer
	config   NotesTriggerConfig
}

func loadNotesConfig() (*NotesTriggerConfig, error) {
	bucket := gcp.GetEnv("SCENARIOS_BUCKET", "")
	if bucket == "" {
		return nil, fmt.Errorf("SCENARIOS_BUCKET environment variable must be set")
	}
	readConcurrency, err := readConcurrencyFromEnv()
	if err != nil {
		return nil, err
	}
	return &NotesTriggerConfig{
		ScenariosBucket: bucket,
		ReadConcurrency: readConcurrency,
		Model:           gcp.LoadModelConfig(),
	}, nil
}

func NewNotesTrigger(ctx context.Context) (*NotesTriggerFunction, error) {
	config, err := loadNotesConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	storageClient, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Storage client: %w", err)
	}
	model, err := gcp.NewModel(config.Model)
	if err != nil {
		return nil, fmt.Errorf("failed to create model: %w", err)
	}

	fetch := func(ctx context.Context, bucket, object string, limit int64) ([]byte, error) {
		return gcp.ReadObject(ctx, storageClient, bucket, object, limit)
	}
	output := gcp.BucketSurface{Bucket: storageClient.Bucket(config.ScenariosBucket)}

	f := NewNotesTriggerWith(*config, model, fetch, output)
	slog.Info("Notes trigger initialized.", "model", model.Name(), "scenariosBucket", config.ScenariosBucket)
	return f, nil
}

// NewNotesTriggerWith wires the trigger around existing dependencies.
func NewNotesTriggerWith(config NotesTriggerConfig, model generation.Model, fetch fetchFunc, output export.Surface) *NotesTriggerFunction {
	return &NotesTriggerFunction{
		fetch:    fetch,
		output:   output,
		ingestor: ingest.New(ingest.Config{ReadConcurrency: config.ReadConcurrency}),
		client:   generation.NewClient(model),
		renderer: export.NewRenderer(),
		config:   config,
	}
}

// Process generates scenarios for one finalized notes object. Objects that
// fail validation are skipped without error so the event is not redelivered.
func (f *NotesTriggerFunction) Process(ctx context.Context, e models.NotesEvent) error {
	logCtx := slog.With("gcsBucket", e.Bucket, "gcsObject", e.Name)
	logCtx.Info("Processing new notes object.")

	if e.Bucket == f.config.ScenariosBucket {
		logCtx.Info("Object is in the output bucket. Skipping.")
		return nil
	}

	file := notesFile(ctx, e, f.fetch)
	m := session.NewMachine(e.Name, hashingEncoder{f.ingestor, logCtx}, f.client)

	run, err := m.Begin([]models.UploadedFile{file})
	if err != nil {
		logCtx.Warn("Object rejected. Skipping.", "reason", err.Error())
		return nil
	}

	state := run.Execute(ctx)
	failed, ok := state.(session.Failed)
	if ok {
		logCtx.Error("Scenario generation failed", "message", failed.Message)
		return fmt.Errorf("generate scenarios for gs://%s/%s: %s", e.Bucket, e.Name, failed.Message)
	}
	doc, err := m.Document()
	if err != nil {
		return fmt.Errorf("generate scenarios for gs://%s/%s: %w", e.Bucket, e.Name, err)
	}

	base := notesBaseName(e.Name)
	stem := notesOutputStem(e.Name)
	exporter := export.NewExporter(f.renderer, nil, nil)
	printFile, err := exporter.PrintFile(doc, base)
	if err != nil {
		logCtx.Error("Failed to render print view", "error", err)
		return err
	}
	printFile.Name = stem + printSuffix
	mdFile := export.MarkdownFile(doc, base)
	mdFile.Name = stem + ".md"

	for _, out := range []export.File{mdFile, printFile} {
		if err := f.output.Save(ctx, out); err != nil {
			logCtx.Error("Failed to save scenarios", "file", out.Name, "error", err)
			return fmt.Errorf("save %s: %w", out.Name, err)
		}
	}
	logCtx.Info("Scenarios saved.", "outputBucket", f.config.ScenariosBucket, "stem", stem)
	return nil
}

// notesFile describes the object as an upload. The declared size comes from
// the event, so validation needs no download.
func notesFile(ctx context.Context, e models.NotesEvent, fetch fetchFunc) models.UploadedFile {
	size, err := strconv.ParseInt(e.Size, 10, 64)
	if err != nil {
		size = 0
	}
	return models.UploadedFile{
		Name: path.Base(e.Name),
		Type: e.ContentType,
		Size: size,
		Open: func() (io.ReadCloser, error) {
			data, err := fetch(ctx, e.Bucket, e.Name, ingest.MaxFileSize)
			if err != nil {
				return nil, err
			}
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}

// notesBaseName strips directories and the extension: "course/week1.pdf" -> "week1".
func notesBaseName(object string) string {
	base := path.Base(object)
	if ext := path.Ext(base); ext != "" && ext != base {
		base = strings.TrimSuffix(base, ext)
	}
	if base == "" || base == "." || base == "/" {
		return export.DefaultFilename
	}
	return base
}

// notesOutputStem keeps the object's directory so same-named notes in
// different folders do not collide: "course/week1.pdf" -> "course/week1".
func notesOutputStem(object string) string {
	dir := path.Dir(object)
	if dir == "." || dir == "/" {
		return notesBaseName(object)
	}
	return path.Join(dir, notesBaseName(object))
}

// hashingEncoder logs a content hash of every encoded file for traceability.
type hashingEncoder struct {
	next   session.Encoder
	logCtx *slog.Logger
}

func (h hashingEncoder) Encode(ctx context.Context, files []models.UploadedFile) ([]models.EncodedFilePayload, error) {
	payloads, err := h.next.Encode(ctx, files)
	if err != nil {
		return nil, err
	}
	for _, p := range payloads {
		h.logCtx.Info("Encoded notes.", "file", p.Name, "mimeType", p.MIMEType, "pages", p.PageCount, "contentHash", contentHash(p.Data))
	}
	return payloads, nil
}

func contentHash(data string) string {
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:])
}
