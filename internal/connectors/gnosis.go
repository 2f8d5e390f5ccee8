package connectors

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/veritas-audit/backend/pkg/logger"
)

// Document content handed to the model is capped per file so one large
// manual cannot crowd out the rest of the repository.
const maxDocumentChars = 2000

// collectDocuments reads the Gnosis document repository (.txt, .md,
// .html) and analyzes the extracted text.
func (f *Factory) collectDocuments(ctx context.Context, question string) (*Result, error) {
	folder, err := f.toolFolder(ToolGnosis)
	if err != nil {
		return nil, err
	}

	files, err := listFiles(folder, func(name string) bool {
		return strings.HasSuffix(name, ".txt") ||
			strings.HasSuffix(name, ".md") ||
			strings.HasSuffix(name, ".html")
	})
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no documents in %s", ErrNoData, folder)
	}

	documents := map[string]string{}
	names := []string{}

	for _, file := range files {
		text, err := extractText(filepath.Join(folder, file))
		if err != nil {
			logger.Warn("Skipping unreadable document",
				zap.String("file", file),
				zap.Error(err),
			)
			continue
		}
		if text == "" {
			continue
		}
		if len(text) > maxDocumentChars {
			text = text[:maxDocumentChars]
		}

		// document names keep their extension so they line up with
		// the file names the chat layer reports
		documents[file] = text
		names = append(names, file)
	}
	sort.Strings(names)

	if len(names) == 0 {
		return nil, fmt.Errorf("%w: no readable documents in %s", ErrNoData, folder)
	}

	contextDesc := fmt.Sprintf("Gnosis document repository analysis with %d documents", len(names))

	payload, err := json.Marshal(documents)
	if err != nil {
		return nil, fmt.Errorf("failed to encode documents: %w", err)
	}

	analysis, err := f.analyzer.AnalyzeEvidence(ctx, question, contextDesc, string(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to analyze gnosis documents: %w", err)
	}
	analysis.DataPoints = len(names)

	return &Result{
		Tool:         ToolGnosis,
		Analysis:     analysis,
		Documents:    names,
		TotalRecords: len(names),
	}, nil
}

func extractText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read document: %w", err)
	}

	if strings.HasSuffix(path, ".html") {
		return StripHTML(string(data))
	}

	return strings.TrimSpace(string(data)), nil
}

// StripHTML extracts readable text from an HTML document, dropping
// script and style blocks.
func StripHTML(content string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML document: %w", err)
	}

	doc.Find("script, style").Remove()

	text := doc.Find("body").Text()
	if strings.TrimSpace(text) == "" {
		text = doc.Text()
	}

	lines := strings.Split(text, "\n")
	cleaned := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			cleaned = append(cleaned, line)
		}
	}

	return strings.Join(cleaned, "\n"), nil
}
