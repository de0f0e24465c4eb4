package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/p-n-ai/exam-shuffler/internal/exam"
	"github.com/p-n-ai/exam-shuffler/internal/export"
	"github.com/p-n-ai/exam-shuffler/internal/pdfdoc"
)

// settleAttempts bounds saves of a session leaving a transient state.
const settleAttempts = 3

// budgetForgetter is implemented by budgets that can drop a session's usage.
type budgetForgetter interface {
	Forget(sessionID string)
}

// File is an exported document ready for download.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Manager drives sessions by id. Operations on one session are serialized;
// processing runs in the background.
type Manager struct {
	store         Store
	processor     *Processor
	engine        *exam.Engine
	events        EventLogger
	budget        budgetForgetter
	includeImages bool
	previewDPI    float64
	exportOpts    export.Options
	now           func() time.Time
	settleBackoff time.Duration

	locks keyedMutex

	jobsMu sync.Mutex
	jobs   map[string]*job
}

type job struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithManagerEvents publishes state changes.
func WithManagerEvents(l EventLogger) ManagerOption {
	return func(m *Manager) {
		if l != nil {
			m.events = l
		}
	}
}

// WithIncludeImages sets the default of the image toggle for new uploads.
func WithIncludeImages(include bool) ManagerOption {
	return func(m *Manager) {
		m.includeImages = include
	}
}

// WithPreviewDPI sets the thumbnail resolution.
func WithPreviewDPI(dpi float64) ManagerOption {
	return func(m *Manager) {
		if dpi > 0 {
			m.previewDPI = dpi
		}
	}
}

// WithExportOptions sets titles and fonts for exported documents.
func WithExportOptions(opts export.Options) ManagerOption {
	return func(m *Manager) {
		m.exportOpts = opts
	}
}

// WithSessionBudget lets Reset clear a session's token usage.
func WithSessionBudget(b budgetForgetter) ManagerOption {
	return func(m *Manager) {
		m.budget = b
	}
}

// NewManager creates a Manager.
func NewManager(store Store, processor *Processor, engine *exam.Engine, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:         store,
		processor:     processor,
		engine:        engine,
		events:        NopEventLogger{},
		includeImages: true,
		previewDPI:    pdfdoc.PreviewDPI,
		exportOpts:    export.DefaultOptions(),
		now:           time.Now,
		settleBackoff: 100 * time.Millisecond,
		jobs:          make(map[string]*job),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create starts a new idle session.
func (m *Manager) Create(ctx context.Context) (*Session, error) {
	s := New(uuid.NewString())
	if err := m.store.Create(ctx, s); err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}
	slog.Info("session created", "session_id", s.ID)
	return s, nil
}

// Get returns a snapshot of a session.
func (m *Manager) Get(ctx context.Context, id string) (*Session, error) {
	return m.store.Get(ctx, id)
}

// Ping checks the backing store.
func (m *Manager) Ping(ctx context.Context) error {
	return m.store.Ping(ctx)
}

// Upload loads a PDF into the session.
func (m *Manager) Upload(ctx context.Context, id, name string, data []byte) (*Session, error) {
	if !pdfdoc.IsPDF(data) {
		return nil, inputError("Please upload a PDF file.", pdfdoc.ErrNotPDF)
	}
	pages, err := pdfdoc.PageCount(data)
	if err != nil {
		return nil, inputError("The PDF could not be opened.", err)
	}
	return m.update(ctx, id, func(s *Session) error {
		return s.Load(name, data, pages, m.includeImages)
	})
}

// Configure sets the page range and image toggle.
func (m *Manager) Configure(ctx context.Context, id string, in Settings) (*Session, error) {
	return m.update(ctx, id, func(s *Session) error {
		return s.Configure(in.merge(s.Options))
	})
}

// Preview renders a low resolution JPEG of one page of the upload.
func (m *Manager) Preview(ctx context.Context, id string, page int) ([]byte, error) {
	s, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.Source == nil {
		return nil, stateError("preview pages", s.State)
	}
	if page < 1 || page > s.Source.PageCount {
		return nil, inputError("Page out of range.", fmt.Errorf("%w: %d of %d", pdfdoc.ErrPageRange, page, s.Source.PageCount))
	}

	doc, err := pdfdoc.Open(s.Source.Data)
	if err != nil {
		return nil, inputError("The PDF could not be opened.", err)
	}
	defer doc.Close()
	return doc.RenderPage(page, m.previewDPI)
}

// StartProcessing moves the session to Processing and runs the page loop in
// the background. The returned channel closes when the run has been applied
// to the session.
func (m *Manager) StartProcessing(ctx context.Context, id string) (<-chan struct{}, error) {
	unlock := m.locks.Lock(id)
	defer unlock()

	s, err := m.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.BeginProcessing(); err != nil {
		return nil, err
	}
	if err := m.store.Save(ctx, s); err != nil {
		return nil, fmt.Errorf("saving session: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	j := &job{cancel: cancel, done: make(chan struct{})}
	m.jobsMu.Lock()
	if prev := m.jobs[id]; prev != nil {
		prev.cancel()
	}
	m.jobs[id] = j
	m.jobsMu.Unlock()

	m.emit(id, EventStateChanged, s.State)
	go m.process(runCtx, j, id, s.Source.Data, s.Options)
	return j.done, nil
}

func (m *Manager) process(ctx context.Context, j *job, id string, data []byte, opts Options) {
	defer close(j.done)
	defer j.cancel()

	out, runErr := m.run(ctx, id, data, opts)

	unlock := m.locks.Lock(id)
	defer unlock()

	m.jobsMu.Lock()
	current := m.jobs[id] == j
	if current {
		delete(m.jobs, id)
	}
	m.jobsMu.Unlock()
	if !current || errors.Is(runErr, context.Canceled) {
		slog.Info("discarding processing result", "session_id", id)
		return
	}

	s, err := m.store.Get(ctx, id)
	if err != nil {
		slog.Error("loading session after processing", "session_id", id, "error", err)
		return
	}
	if s.State != StateProcessing {
		return
	}

	s.Progress.FailedPages = out.FailedPages
	if runErr != nil {
		slog.Warn("processing failed", "session_id", id, "error", runErr)
		_ = s.FailProcessing(runErr)
	} else {
		_ = s.CompleteProcessing(out.Questions)
	}
	if err := m.store.Save(ctx, s); err != nil {
		slog.Error("saving session after processing", "session_id", id, "error", err)
		return
	}
	m.emit(id, EventStateChanged, s.State)
}

func (m *Manager) run(ctx context.Context, id string, data []byte, opts Options) (Outcome, error) {
	doc, err := pdfdoc.Open(data)
	if err != nil {
		return Outcome{}, inputError("The PDF could not be opened.", err)
	}
	defer doc.Close()

	return m.processor.Run(ctx, Job{SessionID: id, Pages: doc, Options: opts}, func(p Progress) {
		m.saveProgress(ctx, id, p)
	})
}

func (m *Manager) saveProgress(ctx context.Context, id string, p Progress) {
	unlock := m.locks.Lock(id)
	defer unlock()

	s, err := m.store.Get(ctx, id)
	if err != nil || s.State != StateProcessing {
		return
	}
	s.Progress = p
	if err := m.store.Save(ctx, s); err != nil {
		slog.Warn("saving progress failed", "session_id", id, "error", err)
	}
}

// Wait blocks until the session's background run, if any, has finished.
func (m *Manager) Wait(ctx context.Context, id string) error {
	m.jobsMu.Lock()
	j := m.jobs[id]
	m.jobsMu.Unlock()
	if j == nil {
		return nil
	}
	select {
	case <-j.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Reshuffle draws a new option order.
func (m *Manager) Reshuffle(ctx context.Context, id string) (*Session, error) {
	return m.update(ctx, id, func(s *Session) error {
		return s.Reshuffle(m.engine)
	})
}

// Export renders the reviewed questions. The session passes through
// Exporting and is back in Review when Export returns.
func (m *Manager) Export(ctx context.Context, id string, format export.Format) (*File, error) {
	ex, err := export.For(format, m.exportOpts)
	if err != nil {
		return nil, inputError("Unsupported export format.", err)
	}

	unlock := m.locks.Lock(id)
	defer unlock()

	s, err := m.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.BeginExport(); err != nil {
		return nil, err
	}
	if err := m.store.Save(ctx, s); err != nil {
		return nil, fmt.Errorf("saving session: %w", err)
	}

	var buf bytes.Buffer
	exportErr := ex.Export(&buf, s.Questions)
	if exportErr != nil {
		slog.Error("export failed", "session_id", id, "format", format, "error", exportErr)
	}
	_ = s.EndExport(exportErr)
	if err := m.saveSettled(ctx, s); err != nil {
		return nil, fmt.Errorf("saving session: %w", err)
	}
	if exportErr != nil {
		return nil, s.LastError
	}

	slog.Info("exported", "session_id", id, "format", format, "bytes", buf.Len())
	return &File{
		Name:        export.Filename(format, m.now()),
		ContentType: ex.ContentType(),
		Data:        buf.Bytes(),
	}, nil
}

// load reads a session for an operation holding its lock. Exports run
// entirely under that lock, so a stored Exporting state is left over from a
// failed save and is settled back to Review.
func (m *Manager) load(ctx context.Context, id string) (*Session, error) {
	s, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.State == StateExporting {
		slog.Warn("settling interrupted export", "session_id", id)
		_ = s.EndExport(nil)
	}
	return s, nil
}

// saveSettled persists a session leaving a transient state. It outlives the
// request context and retries, so a brief store outage does not strand the
// session in that state.
func (m *Manager) saveSettled(ctx context.Context, s *Session) error {
	ctx = context.WithoutCancel(ctx)
	var err error
	for attempt := 1; attempt <= settleAttempts; attempt++ {
		if err = m.store.Save(ctx, s); err == nil {
			return nil
		}
		slog.Warn("saving session failed",
			"session_id", s.ID,
			"state", s.State,
			"attempt", attempt,
			"error", err,
		)
		if attempt < settleAttempts {
			time.Sleep(time.Duration(attempt) * m.settleBackoff)
		}
	}
	return err
}

// StartExam opens exam mode.
func (m *Manager) StartExam(ctx context.Context, id string) (*Session, error) {
	return m.update(ctx, id, (*Session).StartExam)
}

// SelectOption records an answer.
func (m *Manager) SelectOption(ctx context.Context, id, questionID, optionID string) (*Session, error) {
	return m.update(ctx, id, func(s *Session) error {
		return s.SelectOption(questionID, optionID)
	})
}

// Finish grades the exam.
func (m *Manager) Finish(ctx context.Context, id string) (*Session, error) {
	return m.update(ctx, id, (*Session).Finish)
}

// Retry restarts the exam.
func (m *Manager) Retry(ctx context.Context, id string) (*Session, error) {
	return m.update(ctx, id, (*Session).Retry)
}

// BackToMenu returns from exam mode to the review.
func (m *Manager) BackToMenu(ctx context.Context, id string) (*Session, error) {
	return m.update(ctx, id, (*Session).BackToMenu)
}

// Reset cancels any processing and returns the session to Idle.
func (m *Manager) Reset(ctx context.Context, id string) (*Session, error) {
	m.jobsMu.Lock()
	if j := m.jobs[id]; j != nil {
		j.cancel()
		delete(m.jobs, id)
	}
	m.jobsMu.Unlock()

	if m.budget != nil {
		m.budget.Forget(id)
	}
	return m.update(ctx, id, func(s *Session) error {
		s.Reset()
		return nil
	})
}

// update applies fn to the stored session under the session lock and saves
// the result. A failed transition leaves the stored session unchanged.
func (m *Manager) update(ctx context.Context, id string, fn func(*Session) error) (*Session, error) {
	unlock := m.locks.Lock(id)
	defer unlock()

	s, err := m.load(ctx, id)
	if err != nil {
		return nil, err
	}
	before := s.State
	if err := fn(s); err != nil {
		return nil, err
	}
	if err := m.store.Save(ctx, s); err != nil {
		return nil, fmt.Errorf("saving session: %w", err)
	}
	if s.State != before {
		m.emit(id, EventStateChanged, s.State)
	}
	return s, nil
}

func (m *Manager) emit(id, typ string, state State) {
	if err := m.events.LogEvent(Event{SessionID: id, Type: typ, Data: map[string]any{"state": string(state)}}); err != nil {
		slog.Warn("logging session event failed", "type", typ, "error", err)
	}
}

// keyedMutex hands out one mutex per key and forgets it when unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*refMutex)
	}
	l := k.locks[key]
	if l == nil {
		l = &refMutex{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
