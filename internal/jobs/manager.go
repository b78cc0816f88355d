// Package jobs runs conversions asynchronously and tracks their progress.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/spherical/scan2docx/internal/cache"
	"github.com/spherical/scan2docx/internal/convert"
	"github.com/spherical/scan2docx/internal/domain"
	"github.com/spherical/scan2docx/internal/observability"
	"github.com/spherical/scan2docx/internal/storage"
)

var (
	// ErrNotFound is returned for an unknown job ID.
	ErrNotFound = errors.New("job not found")

	// ErrNotReady is returned when a document is requested before the job succeeded.
	ErrNotReady = errors.New("job has not succeeded")

	// ErrExpired is returned when a succeeded job's document left the cache.
	ErrExpired = errors.New("job document expired")

	// ErrShuttingDown is returned by Submit after Shutdown.
	ErrShuttingDown = errors.New("job manager is shutting down")
)

// Converter runs one conversion. *convert.Service satisfies it.
type Converter interface {
	Validate(req domain.ConversionRequest) (domain.ConversionRequest, error)
	Convert(ctx context.Context, req domain.ConversionRequest, sink domain.EventSink) (*domain.ConversionResult, error)
}

// Store persists job state. *storage.JobRepository satisfies it.
type Store interface {
	Create(ctx context.Context, job *storage.Job) error
	MarkRunning(ctx context.Context, id uuid.UUID, startedAt time.Time) error
	UpdateProgress(ctx context.Context, id uuid.UUID, stage string, done, total int) error
	Finish(ctx context.Context, job *storage.Job) error
	GetByID(ctx context.Context, id uuid.UUID) (*storage.Job, error)
	ListRecent(ctx context.Context, limit int) ([]*storage.Job, error)
}

// Config holds manager settings.
type Config struct {
	MaxConcurrent int
	CacheTTL      time.Duration
}

// Manager owns the background conversions of one process.
type Manager struct {
	conv   Converter
	store  Store
	cache  cache.Client
	ttl    time.Duration
	sem    *semaphore.Weighted
	logger *observability.Logger
	now    func() time.Time

	mu      sync.RWMutex
	entries map[uuid.UUID]*entry
	closed  bool

	baseCtx context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup
}

type entry struct {
	job    storage.Job
	cancel context.CancelFunc
	done   chan struct{}
	result *domain.ConversionResult // kept only without a cache
}

// Option configures a Manager.
type Option func(*Manager)

// WithStore persists jobs through s.
func WithStore(s Store) Option {
	return func(m *Manager) { m.store = s }
}

// WithCache stores finished documents in c.
func WithCache(c cache.Client) Option {
	return func(m *Manager) { m.cache = c }
}

// WithLogger sets the logger.
func WithLogger(l *observability.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l.WithComponent("jobs")
		}
	}
}

// WithClock overrides the clock.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewManager creates a job manager.
func NewManager(conv Converter, cfg Config, opts ...Option) *Manager {
	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = 1
	}
	ctx, stop := context.WithCancel(context.Background())
	m := &Manager{
		conv:    conv,
		ttl:     cfg.CacheTTL,
		sem:     semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		logger:  observability.NewNopLogger(),
		now:     time.Now,
		entries: make(map[uuid.UUID]*entry),
		baseCtx: ctx,
		stop:    stop,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Submit validates req, records a queued job and starts converting it in
// the background. The returned job is a snapshot.
func (m *Manager) Submit(ctx context.Context, req domain.ConversionRequest) (*storage.Job, error) {
	req, err := m.conv.Validate(req)
	if err != nil {
		return nil, err
	}

	job := storage.Job{
		ID:          uuid.New(),
		SourceName:  req.SourceName,
		Fingerprint: convert.Fingerprint(req),
		DPI:         req.DPI,
		Language:    string(req.Language),
		SegMode:     int(req.SegMode),
		Status:      storage.JobStatusQueued,
		CreatedAt:   m.now().UTC(),
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrShuttingDown
	}
	jobCtx, cancel := context.WithCancel(m.baseCtx)
	e := &entry{job: job, cancel: cancel, done: make(chan struct{})}
	m.entries[job.ID] = e
	m.wg.Add(1)
	m.mu.Unlock()

	if m.store != nil {
		if err := m.store.Create(ctx, &job); err != nil {
			m.mu.Lock()
			delete(m.entries, job.ID)
			m.mu.Unlock()
			cancel()
			close(e.done)
			m.wg.Done()
			return nil, domain.IOError("failed to record job", err)
		}
	}

	m.logger.WithContext(ctx).Info().
		Str("job_id", job.ID.String()).
		Str("source", job.SourceName).
		Msg("Job queued")

	go m.run(jobCtx, e, req)

	return &job, nil
}

func (m *Manager) run(ctx context.Context, e *entry, req domain.ConversionRequest) {
	defer m.wg.Done()
	defer close(e.done)
	defer e.cancel()

	id := e.job.ID
	log := m.logger.With().Str("job_id", id.String()).Logger()
	// Bookkeeping writes must land even after the job context is cancelled.
	bg := context.WithoutCancel(ctx)

	if err := m.sem.Acquire(ctx, 1); err != nil {
		m.finish(bg, e, nil, domain.CancelledError("cancelled while queued", err), log)
		return
	}
	defer m.sem.Release(1)

	started := m.now().UTC()
	m.update(e, func(j *storage.Job) {
		j.Status = storage.JobStatusRunning
		j.StartedAt = &started
	})
	if m.store != nil {
		if err := m.store.MarkRunning(bg, id, started); err != nil {
			log.Warn().Err(err).Msg("Failed to record job start")
		}
	}

	if result := m.cached(ctx, e.job.Fingerprint, req, log); result != nil {
		m.update(e, func(j *storage.Job) {
			j.CacheHit = true
			j.Stage = string(domain.EventComplete)
			j.PagesDone = result.Pages
			j.PagesTotal = result.Pages
		})
		m.finish(bg, e, result, nil, log)
		return
	}

	sink := func(ev domain.StreamEvent) {
		m.update(e, func(j *storage.Job) {
			j.Stage = string(ev.Type)
			j.PagesDone = ev.Completed
			j.PagesTotal = ev.Total
		})
		if m.store != nil {
			if err := m.store.UpdateProgress(bg, id, string(ev.Type), ev.Completed, ev.Total); err != nil {
				log.Warn().Err(err).Msg("Failed to record job progress")
			}
		}
	}

	result, err := m.conv.Convert(ctx, req, sink)
	m.finish(bg, e, result, err, log)
}

// cached returns a previous result for the same fingerprint, renamed for
// this request.
func (m *Manager) cached(ctx context.Context, fingerprint string, req domain.ConversionRequest, log *observability.Logger) *domain.ConversionResult {
	if m.cache == nil {
		return nil
	}
	data, err := m.cache.Get(ctx, cache.FingerprintKey(fingerprint))
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			log.Warn().Err(err).Msg("Result cache lookup failed")
		}
		return nil
	}
	result, err := decodeResult(data)
	if err != nil {
		log.Warn().Err(err).Msg("Discarding unreadable cached result")
		return nil
	}
	result.Name = convert.OutputName(req.SourceName, m.now())
	log.Info().Msg("Serving conversion from cache")
	return result
}

func (m *Manager) finish(ctx context.Context, e *entry, result *domain.ConversionResult, err error, log *observability.Logger) {
	completed := m.now().UTC()

	if err == nil && result != nil {
		if m.cache != nil {
			if cerr := m.storeResult(ctx, e.job.ID, e.job.Fingerprint, result); cerr != nil {
				log.Warn().Err(cerr).Msg("Failed to cache result")
			}
		}
	}

	m.update(e, func(j *storage.Job) {
		j.CompletedAt = &completed
		switch {
		case err == nil:
			j.Status = storage.JobStatusSucceeded
			j.OutputName = result.Name
		case domain.IsKind(err, domain.ErrorTypeCancelled):
			j.Status = storage.JobStatusCancelled
			j.ErrorKind = string(domain.ErrorTypeCancelled)
			j.Error = err.Error()
		default:
			j.Status = storage.JobStatusFailed
			j.ErrorKind = string(domain.KindOf(err))
			j.Error = err.Error()
		}
		if err == nil && m.cache == nil {
			e.result = result
		}
	})

	snapshot := m.snapshot(e)
	if m.store != nil {
		if serr := m.store.Finish(ctx, &snapshot); serr != nil {
			log.Warn().Err(serr).Msg("Failed to record job result")
		}
	}

	evt := log.Info()
	if err != nil {
		evt = log.Warn().Err(err)
	}
	evt.Str("status", string(snapshot.Status)).
		Int("pages", snapshot.PagesTotal).
		Bool("cache_hit", snapshot.CacheHit).
		Msg("Job finished")
}

func (m *Manager) storeResult(ctx context.Context, id uuid.UUID, fingerprint string, result *domain.ConversionResult) error {
	data, err := encodeResult(result)
	if err != nil {
		return err
	}
	if err := m.cache.Set(ctx, cache.JobKey(id.String()), data, m.ttl); err != nil {
		return err
	}
	// Marked pages may come from transient engine failures; identical
	// requests must run OCR again.
	if result.FailedPages > 0 {
		return nil
	}
	return m.cache.Set(ctx, cache.FingerprintKey(fingerprint), data, m.ttl)
}

func (m *Manager) update(e *entry, fn func(*storage.Job)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(&e.job)
}

func (m *Manager) snapshot(e *entry) storage.Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return e.job
}

func (m *Manager) lookup(id uuid.UUID) (*entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[id]
	return e, ok
}

// Get returns a job snapshot. Jobs from earlier processes are read from
// the store.
func (m *Manager) Get(ctx context.Context, id uuid.UUID) (*storage.Job, error) {
	if e, ok := m.lookup(id); ok {
		job := m.snapshot(e)
		return &job, nil
	}
	if m.store == nil {
		return nil, ErrNotFound
	}
	job, err := m.store.GetByID(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// List returns up to limit jobs, newest first.
func (m *Manager) List(ctx context.Context, limit int) ([]*storage.Job, error) {
	if m.store != nil {
		return m.store.ListRecent(ctx, limit)
	}

	m.mu.RLock()
	jobs := make([]*storage.Job, 0, len(m.entries))
	for _, e := range m.entries {
		job := e.job
		jobs = append(jobs, &job)
	}
	m.mu.RUnlock()

	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
	if limit > 0 && len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs, nil
}

// Document returns the finished document of a succeeded job.
func (m *Manager) Document(ctx context.Context, id uuid.UUID) (*domain.ConversionResult, error) {
	job, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status != storage.JobStatusSucceeded {
		return nil, ErrNotReady
	}

	if m.cache == nil {
		if e, ok := m.lookup(id); ok {
			m.mu.RLock()
			result := e.result
			m.mu.RUnlock()
			if result != nil {
				return result, nil
			}
		}
		return nil, ErrExpired
	}

	data, err := m.cache.Get(ctx, cache.JobKey(id.String()))
	if errors.Is(err, cache.ErrCacheMiss) {
		return nil, ErrExpired
	}
	if err != nil {
		return nil, fmt.Errorf("read job document: %w", err)
	}
	result, err := decodeResult(data)
	if err != nil {
		return nil, err
	}
	result.Name = job.OutputName
	return result, nil
}

// Cancel stops a queued or running job. Cancelling a finished job does
// nothing.
func (m *Manager) Cancel(id uuid.UUID) error {
	e, ok := m.lookup(id)
	if !ok {
		return ErrNotFound
	}
	e.cancel()
	return nil
}

// Done returns a channel closed when the job reaches a terminal state.
func (m *Manager) Done(id uuid.UUID) (<-chan struct{}, error) {
	e, ok := m.lookup(id)
	if !ok {
		return nil, ErrNotFound
	}
	return e.done, nil
}

// Shutdown stops accepting jobs, cancels the running ones and waits for
// them to record their final state or for ctx to expire.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.stop()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for jobs: %w", ctx.Err())
	}
}

type cachedResult struct {
	Document    []byte `json:"document"`
	Name        string `json:"name"`
	Title       string `json:"title"`
	Pages       int    `json:"pages"`
	ContentType string `json:"content_type"`
	FailedPages int    `json:"failed_pages,omitempty"`
}

func encodeResult(r *domain.ConversionResult) ([]byte, error) {
	data, err := json.Marshal(cachedResult{
		Document:    r.Document,
		Name:        r.Name,
		Title:       r.Title,
		Pages:       r.Pages,
		ContentType: r.ContentType,
		FailedPages: r.FailedPages,
	})
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return data, nil
}

func decodeResult(data []byte) (*domain.ConversionResult, error) {
	var c cachedResult
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}
	return &domain.ConversionResult{
		Document:    c.Document,
		Name:        c.Name,
		Title:       c.Title,
		Pages:       c.Pages,
		ContentType: c.ContentType,
		FailedPages: c.FailedPages,
	}, nil
}
