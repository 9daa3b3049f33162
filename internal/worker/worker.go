package worker

import "context"

type FigureType string

const (
	FigureTypeEmbedded   FigureType = "embedded_image"
	FigureTypePageRender FigureType = "page_render"
)

type Request struct {
	ConversionID string
	Filename     string
	Data         []byte
	Method       string // "docling" or "tesseract"
}

// Figure is one image file the worker produced. Data is read into memory
// before the working directory is removed.
type Figure struct {
	Filename string
	Page     int
	Type     FigureType
	Data     []byte
}

type Result struct {
	Markdown string
	Figures  []Figure
	// TotalPages falls back to the highest figure page observed when the
	// worker reports no page metadata, and zero when there are no figures.
	TotalPages int
	// FiguresExtracted counts content figures only; full-page renders are
	// excluded.
	FiguresExtracted int
	Method           string
	// QuestionFigureMap is the worker's own pre-computed association,
	// question number -> figure filenames. Advisory; the linker output is
	// what gets persisted.
	QuestionFigureMap map[string][]string
}

// Invoker runs one document conversion. Implementations must be safe for
// concurrent calls with distinct conversion ids.
type Invoker interface {
	Invoke(ctx context.Context, req Request) (*Result, error)
}
