package worker

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/inkmark/inkmark-backend/internal/logger"
)

// writeScript drops an executable shell stub that stands in for the converter
// CLI. The invoker calls it as: <python> <script> <pdf> -o <outdir> -m <method>,
// so inside the stub $1 is the input, $3 the output dir, $5 the method.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "converter.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("write stub script: %v", err)
	}
	return path
}

func newInvoker(t *testing.T, script string, timeout time.Duration) (Invoker, string) {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("init logger: %v", err)
	}
	workRoot := t.TempDir()
	inv, err := NewScriptInvoker(log, ScriptConfig{
		PythonPath: "/bin/sh",
		ScriptPath: script,
		WorkRoot:   workRoot,
		Timeout:    timeout,
	})
	if err != nil {
		t.Fatalf("new invoker: %v", err)
	}
	return inv, workRoot
}

const successScript = `
in="$1"
out="$3"
stem=$(basename "$in" .pdf)
mkdir -p "$out/images"
echo "Processing page 1/2..."
echo "Processing page 2/2..."
cat > "$out/$stem.md" <<'EOF'
# exam.pdf

**Total Pages:** 2
**Conversion Method:** tesseract

## Page 1

**1.** See the figure below.

![img](images/page1_img1.png)

## Page 2

**2.** No figures here.
EOF
printf 'png-bytes' > "$out/images/page1_img1.png"
printf 'render-bytes' > "$out/images/page_1_full.png"
cat > "$out/${stem}_metadata.json" <<'EOF'
{
  "source_file": "exam.pdf",
  "figures": [
    {"page": 1, "filename": "page1_img1.png", "type": "embedded_image"},
    {"page": 1, "filename": "page_1_full.png", "type": "page_render"}
  ],
  "question_figure_map": {"1": ["page1_img1.png"]}
}
EOF
`

func TestScriptInvokerSuccess(t *testing.T) {
	inv, workRoot := newInvoker(t, writeScript(t, successScript), 30*time.Second)

	result, err := inv.Invoke(context.Background(), Request{
		ConversionID: "conv-1",
		Filename:     "exam.pdf",
		Data:         []byte("%PDF-1.4 fake"),
		Method:       "tesseract",
	})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}

	if !strings.Contains(result.Markdown, "## Page 1") {
		t.Fatalf("markdown not read back: %q", result.Markdown)
	}
	if result.TotalPages != 2 {
		t.Fatalf("total pages: want=2 got=%d", result.TotalPages)
	}
	if result.Method != "tesseract" {
		t.Fatalf("method: %q", result.Method)
	}
	if result.FiguresExtracted != 1 {
		t.Fatalf("figures extracted counts embedded images only, got %d", result.FiguresExtracted)
	}
	if len(result.Figures) != 2 {
		t.Fatalf("figures: want=2 got=%d", len(result.Figures))
	}

	byName := map[string]Figure{}
	for _, f := range result.Figures {
		byName[f.Filename] = f
	}
	emb, ok := byName["page1_img1.png"]
	if !ok || emb.Type != FigureTypeEmbedded || emb.Page != 1 || string(emb.Data) != "png-bytes" {
		t.Fatalf("embedded figure: %+v", emb)
	}
	rend, ok := byName["page_1_full.png"]
	if !ok || rend.Type != FigureTypePageRender || rend.Page != 1 {
		t.Fatalf("page render figure: %+v", rend)
	}

	if got := result.QuestionFigureMap["1"]; len(got) != 1 || got[0] != "page1_img1.png" {
		t.Fatalf("question figure map: %+v", result.QuestionFigureMap)
	}

	// The per-conversion work dir is gone once Invoke returns.
	if _, err := os.Stat(filepath.Join(workRoot, "conv-1")); !os.IsNotExist(err) {
		t.Fatalf("work dir not cleaned up: %v", err)
	}
}

func TestScriptInvokerNoMetadata(t *testing.T) {
	// Without metadata the page numbers come from the filenames.
	script := `
in="$1"
out="$3"
stem=$(basename "$in" .pdf)
mkdir -p "$out/images"
printf '## Page 3\n' > "$out/$stem.md"
printf 'x' > "$out/images/page3_img1.png"
`
	inv, _ := newInvoker(t, writeScript(t, script), 30*time.Second)
	result, err := inv.Invoke(context.Background(), Request{
		ConversionID: "conv-2",
		Filename:     "doc.pdf",
		Data:         []byte("%PDF"),
		Method:       "docling",
	})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if len(result.Figures) != 1 || result.Figures[0].Page != 3 {
		t.Fatalf("page from filename: %+v", result.Figures)
	}
	// No Total Pages header either; the max figure page stands in.
	if result.TotalPages != 3 {
		t.Fatalf("total pages fallback: want=3 got=%d", result.TotalPages)
	}
	// No Conversion Method header; the requested method is reported.
	if result.Method != "docling" {
		t.Fatalf("method fallback: %q", result.Method)
	}
}

func TestScriptInvokerTimeout(t *testing.T) {
	inv, workRoot := newInvoker(t, writeScript(t, "exec sleep 5\n"), 100*time.Millisecond)

	_, err := inv.Invoke(context.Background(), Request{
		ConversionID: "conv-slow",
		Filename:     "slow.pdf",
		Data:         []byte("%PDF"),
		Method:       "tesseract",
	})
	if err == nil {
		t.Fatalf("expected timeout error")
	}
	if !strings.Contains(err.Error(), "timed out") {
		t.Fatalf("error must mention the timeout: %v", err)
	}
	if _, statErr := os.Stat(filepath.Join(workRoot, "conv-slow")); !os.IsNotExist(statErr) {
		t.Fatalf("work dir leaked after timeout: %v", statErr)
	}
}

func TestScriptInvokerMissingMarkdown(t *testing.T) {
	inv, _ := newInvoker(t, writeScript(t, "mkdir -p \"$3\"\n"), 30*time.Second)

	_, err := inv.Invoke(context.Background(), Request{
		ConversionID: "conv-empty",
		Filename:     "empty.pdf",
		Data:         []byte("%PDF"),
		Method:       "tesseract",
	})
	if err == nil || !strings.Contains(err.Error(), "no markdown output") {
		t.Fatalf("want missing-markdown error, got %v", err)
	}
}

func TestScriptInvokerNonZeroExit(t *testing.T) {
	inv, _ := newInvoker(t, writeScript(t, "echo 'converter blew up' >&2\nexit 3\n"), 30*time.Second)

	_, err := inv.Invoke(context.Background(), Request{
		ConversionID: "conv-bad",
		Filename:     "bad.pdf",
		Data:         []byte("%PDF"),
		Method:       "tesseract",
	})
	if err == nil || !strings.Contains(err.Error(), "converter blew up") {
		t.Fatalf("stderr must surface in the error, got %v", err)
	}
}

func TestScriptInvokerInputValidation(t *testing.T) {
	inv, _ := newInvoker(t, writeScript(t, "exit 0\n"), time.Second)

	if _, err := inv.Invoke(context.Background(), Request{Filename: "a.pdf", Data: []byte("x")}); err == nil {
		t.Fatalf("missing conversion id must fail")
	}
	if _, err := inv.Invoke(context.Background(), Request{ConversionID: "c", Filename: "a.pdf"}); err == nil {
		t.Fatalf("empty data must fail")
	}
}
