// Package extractor turns PDF and slide-deck files into plain text.
package extractor

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"studyrag/internal/domain"
)

// Config controls how extracted pages are joined.
type Config struct {
	PageMarkers bool `yaml:"page_markers"`
}

// Extractor dispatches on the file extension to a format-specific reader.
type Extractor struct {
	pageMarkers bool
	log         zerolog.Logger
}

// New creates an extractor for the supported formats.
func New(cfg Config, log zerolog.Logger) *Extractor {
	return &Extractor{pageMarkers: cfg.PageMarkers, log: log}
}

// Supported reports whether path has an extension Extract can handle.
func Supported(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf", ".pptx", ".ppt":
		return true
	}
	return false
}

// Extract reads the document at path and returns its text in page order.
func (e *Extractor) Extract(path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if !Supported(path) {
		return "", fmt.Errorf("%w: %q (only .pdf, .pptx and .ppt are supported)", domain.ErrUnsupportedFormat, ext)
	}
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrExtraction, err)
	}

	var (
		pages []string
		err   error
	)
	switch ext {
	case ".pdf":
		e.log.Info().Str("path", path).Msg("extracting text from pdf")
		pages, err = readPDF(path)
	default:
		e.log.Info().Str("path", path).Msg("extracting text from slide deck")
		pages, err = readSlides(path)
	}
	if err != nil {
		e.log.Error().Err(err).Str("path", path).Msg("extraction failed")
		return "", fmt.Errorf("%w: %s: %v", domain.ErrExtraction, filepath.Base(path), err)
	}

	text := e.join(pages, ext)
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: %s", domain.ErrEmptyDocument, filepath.Base(path))
	}
	e.log.Info().Str("path", path).Int("pages", len(pages)).Int("chars", len(text)).Msg("extracted text")
	return text, nil
}

func (e *Extractor) join(pages []string, ext string) string {
	if !e.pageMarkers {
		var kept []string
		for _, p := range pages {
			if strings.TrimSpace(p) != "" {
				kept = append(kept, p)
			}
		}
		return strings.Join(kept, "\n")
	}
	label := "Page"
	if ext != ".pdf" {
		label = "Slide"
	}
	var b strings.Builder
	for i, p := range pages {
		if strings.TrimSpace(p) == "" {
			continue
		}
		fmt.Fprintf(&b, "\n--- %s %d ---\n%s", label, i+1, p)
	}
	return b.String()
}
