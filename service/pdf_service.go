package service

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/matthewtan01/pdf-rag/types"
)

// TextExtractor returns the plain text of one PDF document.
type TextExtractor interface {
	ExtractText(ctx context.Context, data []byte) (string, error)
}

// CommandRunner runs an external program and returns its stdout.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(stderr.String()))
	}
	return out.Bytes(), nil
}

var pdfMagic = []byte("%PDF-")

var pagesPattern = regexp.MustCompile(`Pages:\s+(\d+)`)

// errNoText marks a page that rendered but carries no text layer.
var errNoText = errors.New("page has no text")

// PDFService extracts text page by page with poppler-utils, optionally
// falling back to tesseract OCR for pages without a text layer.
type PDFService struct {
	runner      CommandRunner
	ocrFallback bool
	logger      *zap.Logger
}

// NewPDFService creates a PDF service. A nil runner executes the real
// pdfinfo, pdftotext, pdftoppm and tesseract binaries.
func NewPDFService(runner CommandRunner, ocrFallback bool, logger *zap.Logger) *PDFService {
	if runner == nil {
		runner = execRunner{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PDFService{
		runner:      runner,
		ocrFallback: ocrFallback,
		logger:      logger,
	}
}

// ExtractText writes data to a temporary file and extracts every page.
// Pages are joined with a newline. Pages without any text are skipped; a
// failing command fails the whole document.
func (s *PDFService) ExtractText(ctx context.Context, data []byte) (string, error) {
	if !bytes.HasPrefix(data, pdfMagic) {
		return "", fmt.Errorf("%w: not a PDF document", types.ErrExtraction)
	}

	tempDir, err := os.MkdirTemp("", "pdf-rag-*")
	if err != nil {
		return "", fmt.Errorf("%w: failed to create temp directory: %v", types.ErrExtraction, err)
	}
	defer os.RemoveAll(tempDir)

	pdfPath := filepath.Join(tempDir, "document.pdf")
	if err := os.WriteFile(pdfPath, data, 0o600); err != nil {
		return "", fmt.Errorf("%w: failed to write temp file: %v", types.ErrExtraction, err)
	}

	totalPages, err := s.getNumPages(ctx, pdfPath)
	if err != nil {
		return "", fmt.Errorf("%w: %v", types.ErrExtraction, err)
	}
	s.logger.Debug("extracting pdf", zap.Int("pages", totalPages))

	pages := make([]string, 0, totalPages)
	for pageNum := 1; pageNum <= totalPages; pageNum++ {
		if err := ctx.Err(); err != nil {
			return "", fmt.Errorf("%w: %v", types.ErrExtraction, err)
		}
		text, err := s.extractPage(ctx, tempDir, pdfPath, pageNum)
		if errors.Is(err, errNoText) {
			s.logger.Debug("skipping page without text", zap.Int("page", pageNum))
			continue
		}
		if err != nil {
			return "", fmt.Errorf("%w: page %d: %v", types.ErrExtraction, pageNum, err)
		}
		pages = append(pages, text)
	}
	return strings.Join(pages, "\n"), nil
}

// extractPage tries pdftotext first, then OCR when enabled.
func (s *PDFService) extractPage(ctx context.Context, tempDir, pdfPath string, pageNum int) (string, error) {
	text, err := s.extractTextWithPdftotext(ctx, pdfPath, pageNum)
	if err == nil {
		return text, nil
	}
	if !s.ocrFallback {
		return "", err
	}
	return s.extractTextWithTesseract(ctx, tempDir, pdfPath, pageNum)
}

func (s *PDFService) extractTextWithPdftotext(ctx context.Context, pdfPath string, pageNum int) (string, error) {
	page := strconv.Itoa(pageNum)
	out, err := s.runner.Run(ctx, "pdftotext",
		"-f", page, "-l", page,
		"-enc", "UTF-8", "-nopgbrk",
		pdfPath, "-")
	if err != nil {
		return "", fmt.Errorf("failed to run pdftotext: %w", err)
	}
	if text := cleanText(string(out)); text != "" {
		return text, nil
	}
	return "", errNoText
}

func (s *PDFService) extractTextWithTesseract(ctx context.Context, tempDir, pdfPath string, pageNum int) (string, error) {
	page := strconv.Itoa(pageNum)
	prefix := filepath.Join(tempDir, "page-"+page)
	if _, err := s.runner.Run(ctx, "pdftoppm", "-f", page, "-l", page, "-png", "-singlefile", pdfPath, prefix); err != nil {
		return "", fmt.Errorf("failed to render page %d: %w", pageNum, err)
	}
	imageFile := prefix + ".png"
	defer os.Remove(imageFile)

	out, err := s.runner.Run(ctx, "tesseract", imageFile, "stdout",
		"-l", "eng",
		"--oem", "3", // LSTM engine
		"--psm", "3")
	if err != nil {
		return "", fmt.Errorf("failed to run tesseract: %w", err)
	}
	if text := cleanText(string(out)); text != "" {
		return text, nil
	}
	return "", errNoText
}

// getNumPages reads the page count from pdfinfo.
func (s *PDFService) getNumPages(ctx context.Context, pdfPath string) (int, error) {
	out, err := s.runner.Run(ctx, "pdfinfo", pdfPath)
	if err != nil {
		return 0, fmt.Errorf("error running pdfinfo: %v", err)
	}

	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		if matches := pagesPattern.FindStringSubmatch(scanner.Text()); len(matches) == 2 {
			return strconv.Atoi(matches[1])
		}
	}
	return 0, fmt.Errorf("unable to determine page count from pdfinfo")
}

var textReplacer = strings.NewReplacer(
	"\u0000", "", // null
	"\ufffd", "", // replacement character
	"\u001b", "", // escape
	"\r", "",
	"\f", "\n",
	"\uf8ff", "", // Apple logo
	"‡", "",
	"†", "",
)

func cleanText(text string) string {
	cleaned := textReplacer.Replace(text)
	for strings.Contains(cleaned, "  ") {
		cleaned = strings.ReplaceAll(cleaned, "  ", " ")
	}
	return strings.TrimSpace(cleaned)
}
