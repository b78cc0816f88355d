package convert

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"strings"
	"sync"

	"github.com/spherical/scan2docx/internal/domain"
)

// fakeRasterizer serves n tiny gray pages. Pages listed in failOn fail to
// render; pages in blankOn come back without an image.
type fakeRasterizer struct {
	n       int
	openErr error
	failOn  map[int]error
	blankOn map[int]bool

	mu       sync.Mutex
	rendered []int
	closed   bool
	lastDPI  int
}

func (f *fakeRasterizer) Rasterize(ctx context.Context, source []byte, dpi int) (domain.PageSource, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	f.lastDPI = dpi
	return &fakePages{f: f}, nil
}

type fakePages struct{ f *fakeRasterizer }

func (p *fakePages) NumPages() int { return p.f.n }

func (p *fakePages) Page(ctx context.Context, index int) (domain.PageImage, error) {
	p.f.mu.Lock()
	defer p.f.mu.Unlock()
	if err := p.f.failOn[index]; err != nil {
		return domain.PageImage{}, err
	}
	p.f.rendered = append(p.f.rendered, index)
	if p.f.blankOn[index] {
		return domain.PageImage{Index: index}, nil
	}
	img := image.NewGray(image.Rect(0, 0, 2, 2))
	img.SetGray(0, 0, color.Gray{Y: uint8(index)})
	return domain.PageImage{Index: index, Image: img}, nil
}

func (p *fakePages) Close() error {
	p.f.mu.Lock()
	p.f.closed = true
	p.f.mu.Unlock()
	return nil
}

// fakeRecognizer returns "text of page N" unless a scripted response exists.
// It decodes the page index from the first pixel so the test can prove the
// pipeline passed the right image.
type fakeRecognizer struct {
	mu       sync.Mutex
	texts    map[int]string
	errs     map[int][]error // consumed one per call
	calls    map[int]int
	params   []domain.RecognitionParams
	onCall   func(page int)
	notRGBA  bool
	checkErr error
}

func newFakeRecognizer() *fakeRecognizer {
	return &fakeRecognizer{
		texts: map[int]string{},
		errs:  map[int][]error{},
		calls: map[int]int{},
	}
}

func (f *fakeRecognizer) Recognize(ctx context.Context, page domain.PageImage, params domain.RecognitionParams) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := page.Image.(*image.RGBA); !ok {
		f.notRGBA = true
	}
	r, _, _, _ := page.Image.At(0, 0).RGBA()
	index := int(r >> 8)
	if index != page.Index {
		return "", fmt.Errorf("image for page %d carried marker %d", page.Index, index)
	}

	f.calls[index]++
	f.params = append(f.params, params)
	if f.onCall != nil {
		f.onCall(index)
	}

	if queue := f.errs[index]; len(queue) > 0 {
		f.errs[index] = queue[1:]
		return "", queue[0]
	}
	if text, ok := f.texts[index]; ok {
		return text, nil
	}
	return fmt.Sprintf("text of page %d", index), nil
}

func (f *fakeRecognizer) Check(context.Context) error { return f.checkErr }

// languageRecognizer also verifies individual language packs.
type languageRecognizer struct {
	*fakeRecognizer
	installed map[domain.Language]bool
	checked   []domain.Language
}

func (f *languageRecognizer) CheckLanguages(_ context.Context, langs []domain.Language) error {
	f.checked = append(f.checked, langs...)
	for _, l := range langs {
		if !f.installed[l] {
			return domain.ConfigError(fmt.Sprintf("language pack %s not installed", l), nil)
		}
	}
	return nil
}

// recordingAssembler captures its input and returns it joined as bytes.
type recordingAssembler struct {
	pages []domain.PageText
	title string
	err   error
}

func (a *recordingAssembler) Assemble(pages []domain.PageText, title string) ([]byte, error) {
	if a.err != nil {
		return nil, a.err
	}
	a.pages = append([]domain.PageText(nil), pages...)
	a.title = title
	var b strings.Builder
	b.WriteString(title)
	for _, p := range pages {
		fmt.Fprintf(&b, "|%d:%s:%v", p.Index, p.Text, p.Failed)
	}
	return []byte(b.String()), nil
}

type eventLog struct {
	mu     sync.Mutex
	events []domain.StreamEvent
}

func (l *eventLog) sink() domain.EventSink {
	return func(ev domain.StreamEvent) {
		l.mu.Lock()
		l.events = append(l.events, ev)
		l.mu.Unlock()
	}
}

func (l *eventLog) types() []domain.EventType {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]domain.EventType, len(l.events))
	for i, ev := range l.events {
		out[i] = ev.Type
	}
	return out
}

var errBoom = errors.New("boom")
