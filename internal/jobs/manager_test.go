package jobs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical/scan2docx/internal/cache"
	"github.com/spherical/scan2docx/internal/domain"
	"github.com/spherical/scan2docx/internal/storage"
)

// fakeConverter reports one page_complete event per page and returns a
// document whose bytes are the source.
type fakeConverter struct {
	pages   int
	err     error
	block   chan struct{} // when set, Convert waits for it or ctx
	// markedOnce makes the first call report one page replaced by a
	// failure marker.
	markedOnce bool
	calls   atomic.Int32
	running atomic.Int32
	peak    atomic.Int32
}

func (f *fakeConverter) Validate(req domain.ConversionRequest) (domain.ConversionRequest, error) {
	if len(req.Source) == 0 {
		return req, domain.ValidationError("no document uploaded", nil)
	}
	req.DPI = domain.ClampDPI(req.DPI)
	if req.Language == "" {
		req.Language = domain.DefaultLanguage
	}
	if req.SegMode == 0 {
		req.SegMode = domain.DefaultSegmentationMode
	}
	return req, nil
}

func (f *fakeConverter) Convert(ctx context.Context, req domain.ConversionRequest, sink domain.EventSink) (*domain.ConversionResult, error) {
	call := f.calls.Add(1)
	n := f.running.Add(1)
	defer f.running.Add(-1)
	for {
		peak := f.peak.Load()
		if n <= peak || f.peak.CompareAndSwap(peak, n) {
			break
		}
	}

	sink.Emit(domain.StreamEvent{Type: domain.EventStart, Total: f.pages})
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, domain.CancelledError("cancelled before page 1", ctx.Err())
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	for i := 1; i <= f.pages; i++ {
		sink.Emit(domain.StreamEvent{Type: domain.EventPageComplete, PageNumber: i, Completed: i, Total: f.pages})
	}
	sink.Emit(domain.StreamEvent{Type: domain.EventComplete, Completed: f.pages, Total: f.pages})
	result := &domain.ConversionResult{
		Document:    append([]byte(nil), req.Source...),
		Name:        "scan_OCR_20240309_140507.docx",
		Title:       "OCR Output - scan.pdf",
		Pages:       f.pages,
		ContentType: domain.DOCXContentType,
	}
	if f.markedOnce && call == 1 {
		result.FailedPages = 1
	}
	return result, nil
}

func fixedClock() time.Time {
	return time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC)
}

func request(src string) domain.ConversionRequest {
	return domain.ConversionRequest{Source: []byte(src), SourceName: "scan.pdf", DPI: 300, Language: "eng"}
}

func waitDone(t *testing.T, m *Manager, id uuid.UUID) {
	t.Helper()
	done, err := m.Done(id)
	require.NoError(t, err)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("job did not finish")
	}
}

func newStore(t *testing.T) *storage.JobRepository {
	t.Helper()
	ctx := context.Background()
	db, err := storage.Open(ctx, storage.Options{Driver: "sqlite", DSN: ":memory:", MaxOpenConns: 1})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, storage.Migrate(ctx, db, "sqlite"))
	return storage.NewJobRepository(db)
}

func TestManager_SubmitSucceeds(t *testing.T) {
	ctx := context.Background()
	conv := &fakeConverter{pages: 3}
	store := newStore(t)
	m := NewManager(conv, Config{MaxConcurrent: 1},
		WithStore(store), WithCache(cache.NewMemoryClient(8)), WithClock(fixedClock))
	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })

	job, err := m.Submit(ctx, request("pdf-a"))
	require.NoError(t, err)
	assert.Equal(t, storage.JobStatusQueued, job.Status)
	assert.NotEmpty(t, job.Fingerprint)
	assert.Equal(t, 300, job.DPI)
	assert.Equal(t, int(domain.SegAutomatic), job.SegMode)

	waitDone(t, m, job.ID)

	got, err := m.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.JobStatusSucceeded, got.Status)
	assert.Equal(t, 3, got.PagesDone)
	assert.Equal(t, 3, got.PagesTotal)
	assert.Equal(t, string(domain.EventComplete), got.Stage)
	assert.Equal(t, "scan_OCR_20240309_140507.docx", got.OutputName)
	assert.False(t, got.CacheHit)
	require.NotNil(t, got.StartedAt)
	require.NotNil(t, got.CompletedAt)

	persisted, err := store.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.JobStatusSucceeded, persisted.Status)
	assert.Equal(t, 3, persisted.PagesDone)

	doc, err := m.Document(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, []byte("pdf-a"), doc.Document)
	assert.Equal(t, got.OutputName, doc.Name)
}

func TestManager_ValidationFailsSynchronously(t *testing.T) {
	m := NewManager(&fakeConverter{}, Config{})
	_, err := m.Submit(context.Background(), domain.ConversionRequest{})
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.ErrorTypeValidation))

	jobs, err := m.List(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestManager_FailureRecordsKind(t *testing.T) {
	ctx := context.Background()
	conv := &fakeConverter{pages: 2, err: domain.OCRError("engine crashed", errors.New("exit status 1"))}
	m := NewManager(conv, Config{})

	job, err := m.Submit(ctx, request("pdf"))
	require.NoError(t, err)
	waitDone(t, m, job.ID)

	got, err := m.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.JobStatusFailed, got.Status)
	assert.Equal(t, "ocr", got.ErrorKind)
	assert.Contains(t, got.Error, "engine crashed")

	_, err = m.Document(ctx, job.ID)
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestManager_FingerprintCacheHit(t *testing.T) {
	ctx := context.Background()
	conv := &fakeConverter{pages: 2}
	m := NewManager(conv, Config{}, WithCache(cache.NewMemoryClient(8)), WithClock(fixedClock))

	first, err := m.Submit(ctx, request("same"))
	require.NoError(t, err)
	waitDone(t, m, first.ID)

	second, err := m.Submit(ctx, request("same"))
	require.NoError(t, err)
	waitDone(t, m, second.ID)

	assert.Equal(t, int32(1), conv.calls.Load(), "second request must be served from cache")

	got, err := m.Get(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.JobStatusSucceeded, got.Status)
	assert.True(t, got.CacheHit)
	assert.Equal(t, 2, got.PagesDone)

	a, err := m.Document(ctx, first.ID)
	require.NoError(t, err)
	b, err := m.Document(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, a.Document, b.Document)
	assert.Equal(t, "scan_OCR_20240309_140507.docx", b.Name)

	other, err := m.Submit(ctx, request("different"))
	require.NoError(t, err)
	waitDone(t, m, other.ID)
	assert.Equal(t, int32(2), conv.calls.Load())
}

func TestManager_MarkedResultNotReused(t *testing.T) {
	ctx := context.Background()
	conv := &fakeConverter{pages: 2, markedOnce: true}
	m := NewManager(conv, Config{}, WithCache(cache.NewMemoryClient(8)), WithClock(fixedClock))

	first, err := m.Submit(ctx, request("flaky"))
	require.NoError(t, err)
	waitDone(t, m, first.ID)

	doc, err := m.Document(ctx, first.ID)
	require.NoError(t, err, "the marked document stays downloadable")
	assert.Equal(t, 1, doc.FailedPages)

	second, err := m.Submit(ctx, request("flaky"))
	require.NoError(t, err)
	waitDone(t, m, second.ID)

	assert.Equal(t, int32(2), conv.calls.Load(), "a marked result must not satisfy identical requests")
	got, err := m.Get(ctx, second.ID)
	require.NoError(t, err)
	assert.False(t, got.CacheHit)

	third, err := m.Submit(ctx, request("flaky"))
	require.NoError(t, err)
	waitDone(t, m, third.ID)

	assert.Equal(t, int32(2), conv.calls.Load(), "a clean result is reused")
	got, err = m.Get(ctx, third.ID)
	require.NoError(t, err)
	assert.True(t, got.CacheHit)
}

func TestManager_DocumentWithoutCache(t *testing.T) {
	ctx := context.Background()
	m := NewManager(&fakeConverter{pages: 1}, Config{})

	job, err := m.Submit(ctx, request("bytes"))
	require.NoError(t, err)
	waitDone(t, m, job.ID)

	doc, err := m.Document(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, []byte("bytes"), doc.Document)
}

func TestManager_DocumentExpired(t *testing.T) {
	ctx := context.Background()
	c := cache.NewMemoryClient(8)
	m := NewManager(&fakeConverter{pages: 1}, Config{}, WithCache(c))

	job, err := m.Submit(ctx, request("bytes"))
	require.NoError(t, err)
	waitDone(t, m, job.ID)

	require.NoError(t, c.Delete(ctx, cache.JobKey(job.ID.String())))
	_, err = m.Document(ctx, job.ID)
	assert.ErrorIs(t, err, ErrExpired)
}

func TestManager_Cancel(t *testing.T) {
	ctx := context.Background()
	conv := &fakeConverter{pages: 1, block: make(chan struct{})}
	m := NewManager(conv, Config{})

	job, err := m.Submit(ctx, request("pdf"))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return conv.calls.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, m.Cancel(job.ID))
	waitDone(t, m, job.ID)

	got, err := m.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.JobStatusCancelled, got.Status)
	assert.Equal(t, "cancelled", got.ErrorKind)

	assert.NoError(t, m.Cancel(job.ID), "cancelling a finished job is a no-op")
	assert.ErrorIs(t, m.Cancel(uuid.New()), ErrNotFound)
}

func TestManager_ConcurrencyBound(t *testing.T) {
	ctx := context.Background()
	conv := &fakeConverter{pages: 1, block: make(chan struct{})}
	m := NewManager(conv, Config{MaxConcurrent: 2})

	var ids []uuid.UUID
	for i := 0; i < 5; i++ {
		job, err := m.Submit(ctx, request(string(rune('a'+i))))
		require.NoError(t, err)
		ids = append(ids, job.ID)
	}

	require.Eventually(t, func() bool { return conv.running.Load() == 2 }, 2*time.Second, 5*time.Millisecond)

	queued := 0
	jobs, err := m.List(ctx, 0)
	require.NoError(t, err)
	for _, j := range jobs {
		if j.Status == storage.JobStatusQueued {
			queued++
		}
	}
	assert.Equal(t, 3, queued)

	close(conv.block)
	for _, id := range ids {
		waitDone(t, m, id)
	}
	assert.LessOrEqual(t, conv.peak.Load(), int32(2))
}

func TestManager_GetFallsBackToStore(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	old := &storage.Job{SourceName: "old.pdf", Fingerprint: "x", DPI: 250, Language: "eng", SegMode: 3}
	require.NoError(t, store.Create(ctx, old))

	m := NewManager(&fakeConverter{}, Config{}, WithStore(store))
	got, err := m.Get(ctx, old.ID)
	require.NoError(t, err)
	assert.Equal(t, "old.pdf", got.SourceName)

	_, err = m.Get(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestManager_ListNewestFirst(t *testing.T) {
	ctx := context.Background()
	var mu sync.Mutex
	tick := fixedClock()
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		tick = tick.Add(time.Second)
		return tick
	}
	m := NewManager(&fakeConverter{pages: 1}, Config{}, WithClock(clock))

	first, err := m.Submit(ctx, request("1"))
	require.NoError(t, err)
	second, err := m.Submit(ctx, request("2"))
	require.NoError(t, err)
	waitDone(t, m, first.ID)
	waitDone(t, m, second.ID)

	jobs, err := m.List(ctx, 1)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, second.ID, jobs[0].ID)
}

func TestManager_Shutdown(t *testing.T) {
	ctx := context.Background()
	conv := &fakeConverter{pages: 1, block: make(chan struct{})}
	m := NewManager(conv, Config{})

	job, err := m.Submit(ctx, request("pdf"))
	require.NoError(t, err)

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, m.Shutdown(shutdownCtx))

	got, err := m.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.JobStatusCancelled, got.Status)

	_, err = m.Submit(ctx, request("late"))
	assert.ErrorIs(t, err, ErrShuttingDown)
}

func TestResultCodec(t *testing.T) {
	in := &domain.ConversionResult{Document: []byte{0x50, 0x4b, 0x03}, Name: "a.docx", Title: "t", Pages: 2, ContentType: domain.DOCXContentType, FailedPages: 1}
	data, err := encodeResult(in)
	require.NoError(t, err)
	out, err := decodeResult(data)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	_, err = decodeResult([]byte("not json"))
	assert.Error(t, err)
}
