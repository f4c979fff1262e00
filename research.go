package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/sirupsen/logrus"
)

const maxReferenceBytes = 2 << 20

// ReferenceDoc is one fetched further-reading source, converted to markdown
// for the concept-research prompt.
type ReferenceDoc struct {
	URL      string
	Markdown string
}

// referenceFetcher retrieves reference material suggested by the lesson
// stage. Failures here degrade concept research, they never fail it.
type referenceFetcher struct {
	client    *http.Client
	converter *md.Converter
	logger    *logrus.Logger
}

func newReferenceFetcher(logger *logrus.Logger) *referenceFetcher {
	return &referenceFetcher{
		client:    &http.Client{Timeout: 30 * time.Second},
		converter: md.NewConverter("", true, nil),
		logger:    logger,
	}
}

// Fetch downloads one URL and converts the HTML body to markdown.
func (f *referenceFetcher) Fetch(ctx context.Context, url string) (string, error) {
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return "", fmt.Errorf("unsupported reference URL %q", url)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("building reference request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP %d for %s", resp.StatusCode, url)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxReferenceBytes))
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", url, err)
	}

	markdown, err := f.converter.ConvertString(string(body))
	if err != nil {
		return "", fmt.Errorf("converting %s to markdown: %w", url, err)
	}
	return markdown, nil
}

// FetchAll fetches references best-effort, logging and skipping failures.
func (f *referenceFetcher) FetchAll(ctx context.Context, urls []string) []ReferenceDoc {
	var docs []ReferenceDoc
	for _, url := range urls {
		markdown, err := f.Fetch(ctx, url)
		if err != nil {
			f.logger.WithError(err).WithField("url", url).Debug("reference fetch skipped")
			continue
		}
		docs = append(docs, ReferenceDoc{URL: url, Markdown: markdown})
	}
	return docs
}
