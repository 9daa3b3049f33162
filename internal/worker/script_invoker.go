package worker

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/inkmark/inkmark-backend/internal/logger"
)

// ScriptConfig configures the subprocess invoker around the OCR converter
// CLI: <python> <script> <pdf> -o <outdir> -m <method>.
type ScriptConfig struct {
	PythonPath string
	ScriptPath string
	WorkRoot   string
	Timeout    time.Duration
}

type scriptInvoker struct {
	log *logger.Logger
	cfg ScriptConfig
}

func NewScriptInvoker(log *logger.Logger, cfg ScriptConfig) (Invoker, error) {
	if cfg.PythonPath == "" {
		cfg.PythonPath = "python3"
	}
	if cfg.ScriptPath == "" {
		return nil, fmt.Errorf("converter script path required")
	}
	if cfg.WorkRoot == "" {
		cfg.WorkRoot = filepath.Join(os.TempDir(), "inkmark-conversions")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Minute
	}
	if err := os.MkdirAll(cfg.WorkRoot, 0o755); err != nil {
		return nil, fmt.Errorf("create work root: %w", err)
	}
	return &scriptInvoker{
		log: log.With("service", "ScriptInvoker"),
		cfg: cfg,
	}, nil
}

var progressRe = regexp.MustCompile(`Processing page (\d+)/(\d+)`)

func (si *scriptInvoker) Invoke(ctx context.Context, req Request) (*Result, error) {
	if req.ConversionID == "" {
		return nil, fmt.Errorf("conversion id required")
	}
	if len(req.Data) == 0 {
		return nil, fmt.Errorf("empty document: %s", req.Filename)
	}

	// The working directory is scoped to this conversion and removed on
	// every path.
	workDir := filepath.Join(si.cfg.WorkRoot, req.ConversionID)
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(workDir) }()

	inputName := sanitizeFilename(req.Filename)
	inputPath := filepath.Join(workDir, inputName)
	if err := os.WriteFile(inputPath, req.Data, 0o644); err != nil {
		return nil, fmt.Errorf("write input file: %w", err)
	}
	outDir := filepath.Join(workDir, "output")

	runCtx, cancel := context.WithTimeout(ctx, si.cfg.Timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, si.cfg.PythonPath, si.cfg.ScriptPath,
		inputPath,
		"-o", outDir,
		"-m", req.Method,
	)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start converter: %w", err)
	}

	// Progress lines are logging only and never gate the final result.
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if m := progressRe.FindStringSubmatch(line); m != nil {
			si.log.Debug("Converter progress",
				"conversion_id", req.ConversionID,
				"page", m[1],
				"pages", m[2],
			)
		}
	}

	waitErr := cmd.Wait()
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return nil, fmt.Errorf("conversion worker timed out after %s", si.cfg.Timeout)
	}
	if waitErr != nil {
		return nil, fmt.Errorf("converter exited with error: %w; stderr=%s", waitErr, tail(stderr.String(), 2000))
	}

	return si.collectResult(req, inputName, outDir)
}

// collectResult reads the converter's output directory. A missing markdown
// file is a hard failure; missing metadata or images are tolerated.
func (si *scriptInvoker) collectResult(req Request, inputName, outDir string) (*Result, error) {
	stem := strings.TrimSuffix(inputName, filepath.Ext(inputName))

	mdRaw, err := os.ReadFile(filepath.Join(outDir, stem+".md"))
	if err != nil {
		return nil, fmt.Errorf("converter produced no markdown output for %s: %w", req.Filename, err)
	}
	markdown := string(mdRaw)

	meta := si.readMetadata(filepath.Join(outDir, stem+"_metadata.json"), req.ConversionID)

	figures, err := si.readImages(filepath.Join(outDir, "images"), meta)
	if err != nil {
		return nil, err
	}

	embedded := 0
	maxPage := 0
	for _, f := range figures {
		if f.Type == FigureTypeEmbedded {
			embedded++
		}
		if f.Page > maxPage {
			maxPage = f.Page
		}
	}

	totalPages := parseHeaderInt(markdown, "Total Pages")
	if totalPages == 0 {
		totalPages = maxPage
	}
	method := parseHeaderString(markdown, "Conversion Method")
	if method == "" {
		method = req.Method
	}

	return &Result{
		Markdown:          markdown,
		Figures:           figures,
		TotalPages:        totalPages,
		FiguresExtracted:  embedded,
		Method:            method,
		QuestionFigureMap: meta.QuestionFigureMap,
	}, nil
}

type metadataFile struct {
	SourceFile string `json:"source_file"`
	Figures    []struct {
		Page     int    `json:"page"`
		Filename string `json:"filename"`
		Type     string `json:"type"`
	} `json:"figures"`
	QuestionFigureMap map[string][]string `json:"question_figure_map"`
}

func (si *scriptInvoker) readMetadata(path, conversionID string) metadataFile {
	var meta metadataFile
	raw, err := os.ReadFile(path)
	if err != nil {
		si.log.Warn("Converter metadata missing, relying on filenames",
			"conversion_id", conversionID, "error", err)
		return meta
	}
	if err := json.Unmarshal(raw, &meta); err != nil {
		si.log.Warn("Converter metadata unreadable, relying on filenames",
			"conversion_id", conversionID, "error", err)
		return metadataFile{}
	}
	return meta
}

func (si *scriptInvoker) readImages(imagesDir string, meta metadataFile) ([]Figure, error) {
	entries, err := os.ReadDir(imagesDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read images dir: %w", err)
	}

	pageByName := map[string]int{}
	for _, f := range meta.Figures {
		pageByName[f.Filename] = f.Page
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var figures []Figure
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(imagesDir, name))
		if err != nil {
			return nil, fmt.Errorf("read image %s: %w", name, err)
		}
		page := pageByName[name]
		if page == 0 {
			page = pageFromFilename(name)
		}
		figures = append(figures, Figure{
			Filename: name,
			Page:     page,
			Type:     figureTypeForFilename(name),
			Data:     data,
		})
	}
	return figures, nil
}

var (
	pageRenderRe = regexp.MustCompile(`^page_(\d+)_full\.\w+$`)
	embeddedRe   = regexp.MustCompile(`^page(\d+)_img\d+\.\w+$`)
)

func figureTypeForFilename(name string) FigureType {
	if pageRenderRe.MatchString(name) {
		return FigureTypePageRender
	}
	return FigureTypeEmbedded
}

func pageFromFilename(name string) int {
	if m := pageRenderRe.FindStringSubmatch(name); m != nil {
		n, _ := strconv.Atoi(m[1])
		return n
	}
	if m := embeddedRe.FindStringSubmatch(name); m != nil {
		n, _ := strconv.Atoi(m[1])
		return n
	}
	return 0
}

// parseHeaderInt reads "**Label:** 12" lines from the converter's markdown
// header.
func parseHeaderInt(markdown, label string) int {
	m := headerRe(label).FindStringSubmatch(markdown)
	if m == nil {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(m[1]))
	if err != nil {
		return 0
	}
	return n
}

func parseHeaderString(markdown, label string) string {
	m := headerRe(label).FindStringSubmatch(markdown)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

func headerRe(label string) *regexp.Regexp {
	return regexp.MustCompile(`\*\*` + regexp.QuoteMeta(label) + `:\*\*\s*([^\n]+)`)
}

func sanitizeFilename(name string) string {
	base := filepath.Base(strings.TrimSpace(name))
	if base == "" || base == "." || base == string(filepath.Separator) {
		base = "document.pdf"
	}
	base = strings.ReplaceAll(base, " ", "_")
	if filepath.Ext(base) == "" {
		base += ".pdf"
	}
	return base
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
