package rag

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

// DocumentLoader walks a directory tree and extracts text from the PDF
// files it finds. Files that cannot be parsed are skipped with a warning
// so one corrupt document does not abort a whole build.
type DocumentLoader struct {
	config *DocumentLoaderConfig
	logger *slog.Logger
}

// DocumentLoaderConfig holds configuration for the document loader.
type DocumentLoaderConfig struct {
	// DocumentsPath is the root directory scanned recursively for PDFs.
	DocumentsPath string `json:"documents_path"`
	// MinContentLength drops documents whose extracted text is shorter
	// than this many runes. Zero keeps everything non-empty.
	MinContentLength int `json:"min_content_length"`
}

// DefaultDocumentLoaderConfig returns the loader defaults.
func DefaultDocumentLoaderConfig() *DocumentLoaderConfig {
	return &DocumentLoaderConfig{
		DocumentsPath:    "documents",
		MinContentLength: 1,
	}
}

// NewDocumentLoader creates a loader for the configured directory.
func NewDocumentLoader(config *DocumentLoaderConfig) *DocumentLoader {
	if config == nil {
		config = DefaultDocumentLoaderConfig()
	}
	return &DocumentLoader{
		config: config,
		logger: slog.Default().With("component", "document-loader"),
	}
}

// LoadAll extracts every readable PDF under the configured root, in
// lexical walk order. The returned slice may be empty; an error is only
// returned when the root itself cannot be walked.
func (dl *DocumentLoader) LoadAll() ([]ExtractedDocument, error) {
	var docs []ExtractedDocument

	err := filepath.Walk(dl.config.DocumentsPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		if !strings.EqualFold(filepath.Ext(path), ".pdf") {
			return nil
		}

		text, err := dl.extractPDF(path)
		if err != nil {
			dl.logger.Warn("Skipping unreadable PDF",
				"path", path,
				"error", err)
			return nil
		}
		if len([]rune(text)) < dl.config.MinContentLength || strings.TrimSpace(text) == "" {
			dl.logger.Warn("Skipping PDF with no extractable text", "path", path)
			return nil
		}

		docs = append(docs, ExtractedDocument{
			Text: text,
			Metadata: DocumentMetadata{
				Source:    path,
				FileName:  filepath.Base(path),
				Directory: filepath.Dir(path),
			},
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk documents directory %s: %w", dl.config.DocumentsPath, err)
	}

	dl.logger.Info("Loaded documents",
		"path", dl.config.DocumentsPath,
		"count", len(docs))
	return docs, nil
}

// extractPDF reads one file and concatenates the plain text of its pages.
// Pages that fail to decode are skipped individually.
func (dl *DocumentLoader) extractPDF(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return "", fmt.Errorf("failed to stat file: %w", err)
	}

	reader, err := pdf.NewReader(file, info.Size())
	if err != nil {
		return "", fmt.Errorf("failed to parse PDF: %w", err)
	}

	var b strings.Builder
	pageCount := reader.NumPage()
	for i := 1; i <= pageCount; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			dl.logger.Warn("Failed to extract text from page",
				"path", path,
				"page", i,
				"error", err)
			continue
		}
		b.WriteString(text)
		b.WriteString("\n")
	}
	return b.String(), nil
}
