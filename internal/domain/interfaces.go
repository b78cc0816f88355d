package domain

import "context"

// Rasterizer turns raw document bytes into page images
type Rasterizer interface {
	// Rasterize opens source and returns its pages at the given DPI.
	// The DPI is clamped to [MinDPI, MaxDPI] by the implementation.
	Rasterize(ctx context.Context, source []byte, dpi int) (PageSource, error)
}

// PageSource yields the pages of one opened document in PDF page order.
// Pages are rendered on demand so only the page being processed is held in
// memory.
type PageSource interface {
	NumPages() int

	// Page renders the page at the 1-based index.
	Page(ctx context.Context, index int) (PageImage, error)

	// Close releases the document handle and any temporary files
	Close() error
}

// Recognizer extracts plain text from a single page image
type Recognizer interface {
	// Recognize returns the page text. An empty string is a valid result.
	Recognize(ctx context.Context, page PageImage, params RecognitionParams) (string, error)
}

// Assembler builds the output document from ordered page texts
type Assembler interface {
	Assemble(pages []PageText, title string) ([]byte, error)
}

// EngineChecker is implemented by engines that can verify their binaries
// and data files before any work starts.
type EngineChecker interface {
	Check(ctx context.Context) error
}

// LanguageChecker is implemented by OCR engines that can verify a subset
// of language packs.
type LanguageChecker interface {
	CheckLanguages(ctx context.Context, langs []Language) error
}
