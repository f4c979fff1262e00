package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// captionFetcher is the contract the extractor needs from the media fetcher.
type captionFetcher interface {
	fetchCaptions(ctx context.Context, videoID, language, workDir string) ([]string, error)
}

// Extractor composes the media fetcher, the caption parsers, and the
// scratch-directory lifecycle into one extract operation. Filesystem
// operations are injected so tests can observe the cleanup path.
type Extractor struct {
	fetcher  captionFetcher
	logger   *logrus.Logger
	tempRoot string

	mkdirAll  func(path string, perm os.FileMode) error
	removeAll func(path string) error
	readFile  func(name string) ([]byte, error)
}

func newExtractor(fetcher captionFetcher, logger *logrus.Logger) *Extractor {
	return &Extractor{
		fetcher:   fetcher,
		logger:    logger,
		tempRoot:  os.TempDir(),
		mkdirAll:  os.MkdirAll,
		removeAll: os.RemoveAll,
		readFile:  os.ReadFile,
	}
}

// Extract downloads and normalizes the captions for one video. The scratch
// directory is exclusively owned by this call and removed on every exit
// path; removal failures are logged, never returned, and never mask the
// original error.
func (e *Extractor) Extract(ctx context.Context, videoID, language string) (*ExtractionResult, error) {
	id, err := sanitizeVideoID(videoID, language)
	if err != nil {
		return nil, err
	}

	scratch := filepath.Join(e.tempRoot, fmt.Sprintf("coursegen-%s-%d", id, time.Now().UnixNano()))
	if err := e.mkdirAll(scratch, 0o755); err != nil {
		return nil, errFileOperationFailure(language, "create scratch directory", scratch, err)
	}
	defer func() {
		if err := e.removeAll(scratch); err != nil {
			e.logger.WithError(err).WithField("path", scratch).Warn("scratch directory cleanup failed")
		}
	}()

	names, err := e.fetcher.fetchCaptions(ctx, id, language, scratch)
	if err != nil {
		return nil, err
	}

	chosen := bestCaptionFile(names, language)
	path := filepath.Join(scratch, chosen)
	data, err := e.readFile(path)
	if err != nil {
		return nil, errFileOperationFailure(language, "read caption file", path, err)
	}

	segments, err := parseCaptions(chosen, string(data), language)
	if err != nil {
		return nil, err
	}

	e.logger.WithFields(logrus.Fields{
		"video_id": id,
		"file":     chosen,
		"segments": len(segments),
	}).Info("transcript extracted")

	return &ExtractionResult{
		Segments:     segments,
		SourceFile:   chosen,
		SegmentCount: len(segments),
	}, nil
}

// bestCaptionFile picks the caption file to parse. Names arrive sorted
// lexicographically. A file encoding a regional variant of the requested
// language ("es-419") wins, then an exact language tag ("es."), otherwise
// the first name — a deterministic tie-break, not an error.
func bestCaptionFile(names []string, language string) string {
	for _, name := range names {
		if strings.Contains(name, "."+language+"-") {
			return name
		}
	}
	for _, name := range names {
		if strings.Contains(name, "."+language+".") {
			return name
		}
	}
	return names[0]
}

// parseCaptions dispatches to the matching parser by extension.
func parseCaptions(name, content, language string) ([]TranscriptSegment, error) {
	var segments []TranscriptSegment
	switch ext := strings.ToLower(filepath.Ext(name)); ext {
	case ".srt":
		segments = parseSRT(content)
	case ".vtt":
		segments = parseVTT(content)
	default:
		return nil, errParsingFailure(language, name, fmt.Errorf("unsupported caption format %q", ext))
	}
	if len(segments) == 0 {
		return nil, errParsingFailure(language, name, errors.New("no cues parsed"))
	}
	return segments, nil
}
