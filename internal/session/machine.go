package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Lllllllleong/anecdotelm/internal/compose"
	"github.com/Lllllllleong/anecdotelm/internal/ingest"
	"github.com/Lllllllleong/anecdotelm/internal/models"
)

// GenericFailureMessage is shown for every failure that is not about the files.
const GenericFailureMessage = "Failed to generate scenarios. Please try again or ensure your API key is valid."

var (
	ErrBusy              = errors.New("session: a generation is already in progress")
	ErrInvalidTransition = errors.New("session: invalid state transition")
	ErrNoDocument        = errors.New("session: no generated document")
	ErrClosed            = errors.New("session: closed")
)

// Encoder reads and encodes a validated batch.
type Encoder interface {
	Encode(ctx context.Context, files []models.UploadedFile) ([]models.EncodedFilePayload, error)
}

// Generator performs the outbound model call.
type Generator interface {
	Generate(ctx context.Context, req *models.GenerationRequest) (*models.GeneratedDocument, error)
}

// Machine holds one user's lifecycle: Idle, Generating, Success or Error.
// Only one generation can be in flight because Generating has no edge back
// to itself.
type Machine struct {
	id        string
	encoder   Encoder
	generator Generator
	now       func() time.Time

	mu       sync.Mutex
	state    State
	epoch    uint64
	filename string
	closed   bool
}

func NewMachine(id string, encoder Encoder, generator Generator) *Machine {
	return &Machine{
		id:        id,
		encoder:   encoder,
		generator: generator,
		now:       time.Now,
		state:     Idle{},
	}
}

func (m *Machine) ID() string { return m.id }

// Snapshot returns the current state.
func (m *Machine) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Run is an accepted batch waiting to be executed.
type Run struct {
	m     *Machine
	epoch uint64
	files []models.UploadedFile
}

// Begin validates files and moves to Generating. A rejected batch leaves the
// state untouched and returns the *ingest.ValidationError.
func (m *Machine) Begin(files []models.UploadedFile) (*Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}
	from := m.state.Kind()
	if from == KindGenerating {
		return nil, ErrBusy
	}
	if !canTransition(from, KindGenerating) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, KindGenerating)
	}
	if err := ingest.Validate(files); err != nil {
		return nil, err
	}

	m.epoch++
	m.state = Generating{Epoch: m.epoch, Since: m.now()}
	slog.Info("Generation started.", "sessionId", m.id, "epoch", m.epoch, "files", len(files))

	batch := make([]models.UploadedFile, len(files))
	copy(batch, files)
	return &Run{m: m, epoch: m.epoch, files: batch}, nil
}

// Execute reads, composes and generates, then stores the outcome. It returns
// the state the machine is in afterwards.
func (r *Run) Execute(ctx context.Context) State {
	logCtx := slog.With("sessionId", r.m.id, "epoch", r.epoch)

	payloads, err := r.m.encoder.Encode(ctx, r.files)
	if err != nil {
		logCtx.Warn("Reading uploaded files failed", "error", err)
		return r.m.finish(r.epoch, Failed{Message: userMessage(err)})
	}

	req, err := compose.Compose(payloads)
	if err != nil {
		logCtx.Error("Composing the generation request failed", "error", err)
		return r.m.finish(r.epoch, Failed{Message: GenericFailureMessage})
	}

	doc, err := r.m.generator.Generate(ctx, req)
	if err != nil {
		logCtx.Error("Scenario generation failed", "error", err)
		return r.m.finish(r.epoch, Failed{Message: GenericFailureMessage})
	}
	return r.m.finish(r.epoch, Success{Document: *doc})
}

// finish applies the outcome of the run started in epoch. Outcomes of older
// epochs or of a closed machine are dropped.
func (m *Machine) finish(epoch uint64, next State) State {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed || epoch != m.epoch || !canTransition(m.state.Kind(), next.Kind()) {
		slog.Warn("Discarding stale generation result.", "sessionId", m.id, "epoch", epoch, "currentEpoch", m.epoch, "result", next.Kind())
		return m.state
	}
	m.state = next
	slog.Info("Generation finished.", "sessionId", m.id, "epoch", epoch, "state", next.Kind())
	return next
}

// Reset returns to Idle from Success or Error, dropping the document, the
// error and the export filename.
func (m *Machine) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	from := m.state.Kind()
	if !canTransition(from, KindIdle) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, KindIdle)
	}
	m.state = Idle{}
	m.filename = ""
	return nil
}

// Document returns the generated document while in Success.
func (m *Machine) Document() (*models.GeneratedDocument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.state.(Success)
	if !ok {
		return nil, ErrNoDocument
	}
	doc := s.Document
	return &doc, nil
}

// SetFilename stores the export filename. It is only editable next to a document.
func (m *Machine) SetFilename(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Kind() != KindSuccess {
		return ErrNoDocument
	}
	m.filename = name
	return nil
}

func (m *Machine) Filename() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.filename
}

// Close ends the session. A generation still in flight runs to completion but
// its result is discarded.
func (m *Machine) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.epoch++
}

func userMessage(err error) string {
	var verr *ingest.ValidationError
	var rerr *ingest.ReadError
	if errors.As(err, &verr) || errors.As(err, &rerr) {
		return err.Error()
	}
	return GenericFailureMessage
}
