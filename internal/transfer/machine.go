package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/kuncarous/nextmu-remix/internal/domain"
)

// Source is a re-openable artifact to upload.
type Source interface {
	Name() string
	Size() int64
	Open(ctx context.Context) (io.ReadCloser, error)
}

// State is a phase of the upload state machine.
type State int

const (
	StateChooseFile State = iota
	StateCalculateHash
	StateStartUpload
	StateUploadChunks
	StateFinished
)

func (s State) String() string {
	switch s {
	case StateChooseFile:
		return "choose_file"
	case StateCalculateHash:
		return "calculate_hash"
	case StateStartUpload:
		return "start_upload"
	case StateUploadChunks:
		return "upload_chunks"
	case StateFinished:
		return "finished"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ErrorKind says why a phase fell back to StateChooseFile.
type ErrorKind int

const (
	ErrorKindValidation ErrorKind = iota + 1
	ErrorKindStream
	ErrorKindRemote
	ErrorKindCanceled
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorKindValidation:
		return "validation"
	case ErrorKindStream:
		return "stream"
	case ErrorKindRemote:
		return "remote"
	case ErrorKindCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// ErrMachineBusy is returned when Run is called while a transfer is active.
var ErrMachineBusy = errors.New("transfer already in progress")

// TransferError is the typed failure carried on a fallback transition.
type TransferError struct {
	Phase    State
	Kind     ErrorKind
	Category domain.Category // set for ErrorKindRemote
	Err      error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("%s failed (%s): %v", e.Phase, e.Kind, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

// Retryable reports whether re-running the transfer may succeed. A retry
// re-negotiates and resumes from the chunks the service already holds.
func (e *TransferError) Retryable() bool {
	switch e.Kind {
	case ErrorKindStream:
		return true
	case ErrorKindRemote:
		return e.Category.Transient()
	}
	return false
}

// Transition records one state change.
type Transition struct {
	From State
	To   State
	Err  *TransferError
}

// Result describes a finished transfer.
type Result struct {
	Hash    string
	Session *domain.UploadSession
	Stats   TransmitStats
}

// Machine sequences hashing, negotiation and chunk transfer for one source.
// It is driven by a single goroutine calling Run; cancellation of ctx aborts
// whichever phase is active.
type Machine struct {
	negotiator  *Negotiator
	transmitter *Transmitter
	chunkSize   int64
	parallel    int
	logger      *slog.Logger
	progress    *Progress

	onTransition func(Transition)
	onProgress   func(Snapshot)

	mu      sync.Mutex
	state   State
	running bool
	lastErr *TransferError
}

// MachineOption configures a Machine.
type MachineOption func(*Machine)

// WithChunkSize overrides domain.ChunkSize.
func WithChunkSize(size int64) MachineOption {
	return func(m *Machine) { m.chunkSize = size }
}

// WithParallelism overrides domain.MaxParallelChunks (it can only lower it).
func WithParallelism(n int) MachineOption {
	return func(m *Machine) { m.parallel = n }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) MachineOption {
	return func(m *Machine) { m.logger = l }
}

// WithTransitionHook is called synchronously on every state change.
func WithTransitionHook(fn func(Transition)) MachineOption {
	return func(m *Machine) { m.onTransition = fn }
}

// WithProgressHook is called on every progress change, possibly from
// several goroutines at once.
func WithProgressHook(fn func(Snapshot)) MachineOption {
	return func(m *Machine) { m.onProgress = fn }
}

// NewMachine creates a Machine uploading to svc for versionID.
func NewMachine(svc domain.UpdateService, versionID string, opts ...MachineOption) *Machine {
	m := &Machine{
		chunkSize: domain.ChunkSize,
		parallel:  domain.MaxParallelChunks,
		logger:    slog.Default(),
		state:     StateChooseFile,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.progress = NewProgress(func(s Snapshot) {
		if m.onProgress != nil {
			m.onProgress(s)
		}
	})
	m.negotiator = NewNegotiator(svc, versionID)
	m.transmitter = NewTransmitter(svc, m.parallel, m.logger)
	return m
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// LastError returns the error of the most recent fallback, if any.
func (m *Machine) LastError() *TransferError {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// Progress returns the progress of the active phase.
func (m *Machine) Progress() Snapshot {
	return m.progress.Snapshot()
}

// Run uploads src. Parameters that can be checked without reading src are
// validated before hashing starts. On any failure the machine returns to StateChooseFile and
// the returned error is a *TransferError.
func (m *Machine) Run(ctx context.Context, src Source) (*Result, error) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return nil, ErrMachineBusy
	}
	m.running = true
	m.state = StateChooseFile
	m.lastErr = nil
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.running = false
		m.mu.Unlock()
	}()

	size := src.Size()
	if err := m.negotiator.Precheck(size, m.chunkSize); err != nil {
		return nil, m.fail(ctx, StateChooseFile, err)
	}

	m.transition(StateCalculateHash, nil)
	m.logger.Info("hashing artifact", "source", src.Name(), "size", size)
	hash, err := m.calculateHash(ctx, src, size)
	if err != nil {
		return nil, m.fail(ctx, StateCalculateHash, err)
	}

	m.transition(StateStartUpload, nil)
	session, err := m.negotiator.StartUpload(ctx, hash, size, m.chunkSize)
	if err != nil {
		return nil, m.fail(ctx, StateStartUpload, err)
	}
	m.logger.Info("upload negotiated",
		"upload_id", session.UploadID,
		"concurrent_id", session.ConcurrentID,
		"hash", hash,
		"existing_ranges", len(session.ExistingChunks),
	)

	m.transition(StateUploadChunks, nil)
	stats, err := m.uploadChunks(ctx, src, session)
	if err != nil {
		return nil, m.fail(ctx, StateUploadChunks, err)
	}

	m.transition(StateFinished, nil)
	m.progress.Finish(StateFinished)
	m.logger.Info("upload finished",
		"upload_id", session.UploadID,
		"chunks", stats.Chunks,
		"sent", stats.Sent,
		"skipped", stats.Skipped,
	)
	return &Result{Hash: hash, Session: session, Stats: stats}, nil
}

func (m *Machine) calculateHash(ctx context.Context, src Source, size int64) (string, error) {
	m.progress.Reset(StateCalculateHash, size)

	rc, closeSource, err := openSource(ctx, src)
	if err != nil {
		return "", err
	}
	defer closeSource()

	var read int64
	hash, err := HashStream(ctx, rc, func(n int64) {
		read += n
		m.progress.Add(n)
	})
	if err != nil {
		return "", err
	}
	if read != size {
		return "", fmt.Errorf("source %s changed size while hashing: read %d of %d bytes", src.Name(), read, size)
	}
	return hash, nil
}

func (m *Machine) uploadChunks(ctx context.Context, src Source, session *domain.UploadSession) (TransmitStats, error) {
	m.progress.Reset(StateUploadChunks, session.FileSize)

	rc, closeSource, err := openSource(ctx, src)
	if err != nil {
		return TransmitStats{}, err
	}
	defer closeSource()

	stats, err := m.transmitter.Transmit(ctx, session, rc, m.progress)
	if err != nil {
		return stats, err
	}
	if stats.Bytes != session.FileSize {
		return stats, fmt.Errorf("source %s changed size while uploading: read %d of %d bytes", src.Name(), stats.Bytes, session.FileSize)
	}
	return stats, nil
}

// openSource opens src and closes it early if ctx is cancelled, which
// unblocks a pending Read.
func openSource(ctx context.Context, src Source) (io.ReadCloser, func(), error) {
	rc, err := src.Open(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", src.Name(), err)
	}
	var once sync.Once
	closeOnce := func() { once.Do(func() { _ = rc.Close() }) }
	stop := context.AfterFunc(ctx, closeOnce)
	return rc, func() {
		stop()
		closeOnce()
	}, nil
}

func (m *Machine) transition(to State, terr *TransferError) {
	m.mu.Lock()
	from := m.state
	m.state = to
	if terr != nil {
		m.lastErr = terr
	}
	m.mu.Unlock()

	m.logger.Debug("transfer state changed", "from", from.String(), "to", to.String())
	if m.onTransition != nil {
		m.onTransition(Transition{From: from, To: to, Err: terr})
	}
}

func (m *Machine) fail(ctx context.Context, phase State, err error) *TransferError {
	terr := classify(ctx, phase, err)
	if terr.Kind == ErrorKindCanceled {
		m.logger.Info("transfer canceled", "phase", phase.String())
	} else {
		m.logger.Warn("transfer failed", "phase", phase.String(), "kind", terr.Kind.String(), "error", err)
	}
	m.transition(StateChooseFile, terr)
	return terr
}

func classify(ctx context.Context, phase State, err error) *TransferError {
	terr := &TransferError{Phase: phase, Err: err}

	var verr *domain.ValidationError
	switch {
	case errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled):
		terr.Kind = ErrorKindCanceled
	case errors.As(err, &verr):
		terr.Kind = ErrorKindValidation
	case errors.Is(err, context.DeadlineExceeded):
		terr.Kind = ErrorKindRemote
		terr.Category = domain.CategoryUnavailable
	default:
		if cat, ok := domain.CategoryOf(err); ok {
			terr.Kind = ErrorKindRemote
			terr.Category = cat
		} else {
			terr.Kind = ErrorKindStream
		}
	}
	return terr
}
