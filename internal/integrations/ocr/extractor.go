// Package ocr turns uploaded images, PDFs and DOCX files into plain text.
//
// Recognition and rendering are delegated to the tesseract, pdftoppm (poppler)
// and soffice (LibreOffice) command line tools. Extraction never fails loudly:
// every problem is logged and reported as an empty Result with a diagnostic.
package ocr

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"calendar-agent/internal/domain"
	"calendar-agent/internal/logging"
)

// RenderDPI is the resolution pages are rasterised at before recognition.
const RenderDPI = 300

// Format is a supported input kind.
type Format string

const (
	FormatImage Format = "image"
	FormatPDF   Format = "pdf"
	FormatDocx  Format = "docx"
)

// Result is the outcome of one extraction. Err is diagnostic only; Text is
// empty whenever Err is set.
type Result struct {
	Text string
	Err  error
}

// Config names the external binaries. Empty fields fall back to PATH lookups
// of the default names.
type Config struct {
	TesseractPath string
	PdftoppmPath  string
	SofficePath   string
	Language      string
	Logger        *slog.Logger
}

func (c *Config) defaults() {
	if c.TesseractPath == "" {
		c.TesseractPath = "tesseract"
	}
	if c.PdftoppmPath == "" {
		c.PdftoppmPath = "pdftoppm"
	}
	if c.SofficePath == "" {
		c.SofficePath = "soffice"
	}
	if c.Language == "" {
		c.Language = "eng"
	}
	c.Logger = logging.OrNop(c.Logger)
}

// Extractor is the document-to-text engine.
type Extractor struct {
	cfg    Config
	logger *slog.Logger
	run    commandRunner
}

// New creates an Extractor backed by real subprocesses.
func New(cfg Config) *Extractor {
	cfg.defaults()
	return &Extractor{cfg: cfg, logger: cfg.Logger, run: execRunner{}}
}

// Detect returns the input kind for path based on its extension.
func Detect(path string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(filepath.Ext(path), ".")) {
	case "png", "jpg", "jpeg", "gif":
		return FormatImage, nil
	case "pdf":
		return FormatPDF, nil
	case "docx":
		return FormatDocx, nil
	default:
		return "", fmt.Errorf("ocr: unsupported format %q", filepath.Ext(path))
	}
}

// Extract returns the text of the file at path. pages restricts which pages
// of a multi-page document are recognised and is ignored for images.
func (e *Extractor) Extract(ctx context.Context, path string, pages domain.PageSelection) Result {
	text, err := e.extract(ctx, path, pages)
	if err != nil {
		e.logger.Warn("ocr.extract_failed", "path", filepath.Base(path), "error", err.Error())
		return Result{Err: err}
	}
	return Result{Text: text}
}

func (e *Extractor) extract(ctx context.Context, path string, pages domain.PageSelection) (string, error) {
	format, err := Detect(path)
	if err != nil {
		return "", err
	}
	e.logger.Debug("ocr.extract", "path", filepath.Base(path), "format", format, "pages", []int(pages))

	switch format {
	case FormatImage:
		return e.extractImage(ctx, path)
	case FormatPDF:
		return e.extractPDF(ctx, path, pages)
	case FormatDocx:
		return e.extractDocx(ctx, path, pages)
	default:
		return "", fmt.Errorf("ocr: no extractor for %s", format)
	}
}

func (e *Extractor) extractImage(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("ocr: open image: %w", err)
	}
	_, _, decErr := image.DecodeConfig(f)
	_ = f.Close()
	if decErr != nil {
		return "", fmt.Errorf("ocr: decode image: %w", decErr)
	}
	return e.recognize(ctx, path)
}

func (e *Extractor) extractPDF(ctx context.Context, path string, pages domain.PageSelection) (string, error) {
	workDir, err := os.MkdirTemp("", "ocr-pages-*")
	if err != nil {
		return "", fmt.Errorf("ocr: create page dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(workDir) }()

	prefix := filepath.Join(workDir, "page")
	if _, err := e.run.Run(ctx, e.cfg.PdftoppmPath, "-r", fmt.Sprint(RenderDPI), "-png", path, prefix); err != nil {
		return "", fmt.Errorf("ocr: render pages: %w", err)
	}

	rendered, err := renderedPages(workDir)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for _, n := range pages.Filter(len(rendered)) {
		text, err := e.recognize(ctx, rendered[n-1])
		if err != nil {
			return "", fmt.Errorf("ocr: page %d: %w", n, err)
		}
		fmt.Fprintf(&sb, "--- Page %d ---\n%s\n", n, text)
	}
	return sb.String(), nil
}

func (e *Extractor) extractDocx(ctx context.Context, path string, pages domain.PageSelection) (string, error) {
	outDir, err := os.MkdirTemp("", "ocr-docx-*")
	if err != nil {
		return "", fmt.Errorf("ocr: create conversion dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(outDir) }()

	if _, err := e.run.Run(ctx, e.cfg.SofficePath, "--headless", "--convert-to", "pdf", "--outdir", outDir, path); err != nil {
		return "", fmt.Errorf("ocr: convert docx to pdf: %w", err)
	}
	pdfPath := filepath.Join(outDir, strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))+".pdf")
	if _, err := os.Stat(pdfPath); err != nil {
		return "", fmt.Errorf("ocr: converted pdf missing: %w", err)
	}
	defer func() { _ = os.Remove(pdfPath) }()

	return e.extractPDF(ctx, pdfPath, pages)
}

func (e *Extractor) recognize(ctx context.Context, imagePath string) (string, error) {
	out, err := e.run.Run(ctx, e.cfg.TesseractPath, imagePath, "stdout", "-l", e.cfg.Language)
	if err != nil {
		return "", fmt.Errorf("ocr: tesseract: %w", err)
	}
	return string(out), nil
}

// renderedPages lists pdftoppm output in page order. pdftoppm zero-pads the
// page number to the width of the page count, so lexical order is page order.
func renderedPages(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "page-*.png"))
	if err != nil {
		return nil, fmt.Errorf("ocr: list rendered pages: %w", err)
	}
	if len(matches) == 0 {
		return nil, errors.New("ocr: document rendered no pages")
	}
	sort.Strings(matches)
	return matches, nil
}
