package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"cloud.google.com/go/storage"
	"github.com/joho/godotenv"

	"github.com/Lllllllleong/anecdotelm/internal/export"
	"github.com/Lllllllleong/anecdotelm/internal/gcp"
	"github.com/Lllllllleong/anecdotelm/internal/generation"
	"github.com/Lllllllleong/anecdotelm/internal/ingest"
	"github.com/Lllllllleong/anecdotelm/internal/models"
	"github.com/Lllllllleong/anecdotelm/internal/session"
)

// Exit codes: 2 for bad input, 1 for everything else.
func main() {
	_ = godotenv.Load()
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, nil)))

	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		var verr *ingest.ValidationError
		if errors.As(err, &verr) || errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	modelCfg := gcp.LoadModelConfig()

	fs := flag.NewFlagSet("scenarios", flag.ContinueOnError)
	outDir := fs.String("o", gcp.GetEnv("OUTPUT_DIR", "."), "directory the exports are written to")
	name := fs.String("name", "", "export filename without extension (default "+export.DefaultFilename+")")
	printView := fs.Bool("print", false, "also write the printable HTML page")
	bucket := fs.String("bucket", gcp.GetEnv("EXPORT_BUCKET", ""), "also save the exports to this Cloud Storage bucket")
	backend := fs.String("backend", modelCfg.Backend, "generation backend: gemini or vertex")
	modelID := fs.String("model", modelCfg.ModelID, "model id")
	jobs := fs.Int("j", defaultJobs(), "files read concurrently (READ_CONCURRENCY)")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "usage: scenarios [flags] notes.pdf [more.md ...]\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *jobs <= 0 {
		return fmt.Errorf("-j must be a positive integer")
	}

	files := make([]models.UploadedFile, 0, fs.NArg())
	for _, p := range fs.Args() {
		f, err := models.FileFromPath(p)
		if err != nil {
			return err
		}
		files = append(files, f)
	}

	modelCfg.Backend = *backend
	modelCfg.ModelID = *modelID
	model, err := gcp.NewModel(modelCfg)
	if err != nil {
		return err
	}

	m := session.NewMachine("cli", ingest.New(ingest.Config{ReadConcurrency: *jobs}), generation.NewClient(model))
	r, err := m.Begin(files)
	if err != nil {
		return err
	}
	if failed, ok := r.Execute(ctx).(session.Failed); ok {
		return errors.New(failed.Message)
	}
	doc, err := m.Document()
	if err != nil {
		return err
	}

	surface := export.Surface(export.DirSurface{Dir: *outDir})
	if *bucket != "" {
		client, err := storage.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("failed to create storage client: %w", err)
		}
		defer client.Close()
		surface = export.Tee(surface, gcp.BucketSurface{Bucket: client.Bucket(*bucket)})
	}

	exporter := export.NewExporter(nil, surface, surface)
	f, err := exporter.Markdown(ctx, doc, *name)
	if err != nil {
		return err
	}
	fmt.Println(f.Name)
	if *printView {
		pf, err := exporter.Print(ctx, doc, *name)
		if err != nil {
			return err
		}
		fmt.Println(pf.Name)
	}
	return nil
}

// defaultJobs reads READ_CONCURRENCY, keeping 8 when it is unset or invalid.
func defaultJobs() int {
	n, err := strconv.Atoi(gcp.GetEnv("READ_CONCURRENCY", "8"))
	if err != nil || n <= 0 {
		return 8
	}
	return n
}
