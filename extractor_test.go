package main

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCaptionFetcher returns scripted names and records invocations.
type fakeCaptionFetcher struct {
	names    []string
	err      error
	calls    int
	workDirs []string
}

func (f *fakeCaptionFetcher) fetchCaptions(_ context.Context, _, _, workDir string) ([]string, error) {
	f.calls++
	f.workDirs = append(f.workDirs, workDir)
	return f.names, f.err
}

// testExtractor wires an extractor with in-memory filesystem hooks. files
// maps caption file base names to contents; removed collects cleanup calls.
func testExtractor(fetcher captionFetcher, files map[string]string, removed *[]string) *Extractor {
	e := newExtractor(fetcher, testLogger())
	e.tempRoot = "/scratch-root"
	e.mkdirAll = func(string, os.FileMode) error { return nil }
	e.removeAll = func(path string) error {
		*removed = append(*removed, path)
		return nil
	}
	e.readFile = func(name string) ([]byte, error) {
		for base, content := range files {
			if len(name) >= len(base) && name[len(name)-len(base):] == base {
				return []byte(content), nil
			}
		}
		return nil, os.ErrNotExist
	}
	return e
}

func TestExtractHappyPath(t *testing.T) {
	fetcher := &fakeCaptionFetcher{names: []string{"dQw4w9WgXcQ.en.vtt"}}
	var removed []string
	e := testExtractor(fetcher, map[string]string{
		"dQw4w9WgXcQ.en.vtt": "WEBVTT\n\n00:00:00.000 --> 00:00:05.000\nHello world",
	}, &removed)

	result, err := e.Extract(context.Background(), "dQw4w9WgXcQ", "en")
	require.NoError(t, err)

	assert.Equal(t, "dQw4w9WgXcQ.en.vtt", result.SourceFile)
	assert.Equal(t, 1, result.SegmentCount)
	assert.Equal(t, []TranscriptSegment{{Text: "Hello world", Start: "00:00:00"}}, result.Segments)

	require.Len(t, removed, 1, "scratch directory must be removed exactly once")
	assert.Equal(t, fetcher.workDirs[0], removed[0], "cleanup must target the directory handed to the fetcher")
}

func TestExtractCleansUpOnFetchFailure(t *testing.T) {
	fetcher := &fakeCaptionFetcher{err: errVideoNotFound("en", "dQw4w9WgXcQ")}
	var removed []string
	e := testExtractor(fetcher, nil, &removed)

	_, err := e.Extract(context.Background(), "dQw4w9WgXcQ", "en")

	appErr, ok := IsAppError(err)
	require.True(t, ok)
	assert.Equal(t, codeVideoNotFound, appErr.Code)
	assert.Len(t, removed, 1, "scratch directory must be removed on the failure path too")
}

func TestExtractCleanupFailureIsNotReturned(t *testing.T) {
	fetcher := &fakeCaptionFetcher{names: []string{"dQw4w9WgXcQ.en.srt"}}
	e := newExtractor(fetcher, testLogger())
	e.tempRoot = "/scratch-root"
	e.mkdirAll = func(string, os.FileMode) error { return nil }
	e.removeAll = func(string) error { return errors.New("device busy") }
	e.readFile = func(string) ([]byte, error) {
		return []byte("1\n00:00:00,000 --> 00:00:05,000\nHello"), nil
	}

	result, err := e.Extract(context.Background(), "dQw4w9WgXcQ", "en")
	require.NoError(t, err, "cleanup failures must never surface to the caller")
	assert.Equal(t, 1, result.SegmentCount)
}

func TestExtractRejectsInvalidIdentifier(t *testing.T) {
	fetcher := &fakeCaptionFetcher{}
	var removed []string
	e := testExtractor(fetcher, nil, &removed)

	_, err := e.Extract(context.Background(), "a;rm -rf /x", "en")

	appErr, ok := IsAppError(err)
	require.True(t, ok)
	assert.Equal(t, codeInvalidIdentifier, appErr.Code)
	assert.Zero(t, fetcher.calls, "fetcher must not run for a rejected identifier")
	assert.Empty(t, removed, "no scratch directory exists before sanitization passes")
}

func TestExtractReadFailure(t *testing.T) {
	fetcher := &fakeCaptionFetcher{names: []string{"dQw4w9WgXcQ.en.vtt"}}
	var removed []string
	e := testExtractor(fetcher, map[string]string{}, &removed)

	_, err := e.Extract(context.Background(), "dQw4w9WgXcQ", "en")

	appErr, ok := IsAppError(err)
	require.True(t, ok)
	assert.Equal(t, codeFileOperationFailure, appErr.Code)
	assert.Len(t, removed, 1)
}

func TestExtractParsingFailureOnEmptyCaptions(t *testing.T) {
	fetcher := &fakeCaptionFetcher{names: []string{"dQw4w9WgXcQ.en.vtt"}}
	var removed []string
	e := testExtractor(fetcher, map[string]string{
		"dQw4w9WgXcQ.en.vtt": "WEBVTT\n\n",
	}, &removed)

	_, err := e.Extract(context.Background(), "dQw4w9WgXcQ", "en")

	appErr, ok := IsAppError(err)
	require.True(t, ok)
	assert.Equal(t, codeParsingFailure, appErr.Code)
	assert.Len(t, removed, 1)
}

func TestBestCaptionFile(t *testing.T) {
	tests := []struct {
		name     string
		names    []string
		language string
		want     string
	}{
		{
			name:     "regional variant wins",
			names:    []string{"v.en.vtt", "v.es-419.vtt", "v.es.vtt"},
			language: "es",
			want:     "v.es-419.vtt",
		},
		{
			name:     "exact language tag next",
			names:    []string{"v.en.vtt", "v.es.vtt"},
			language: "es",
			want:     "v.es.vtt",
		},
		{
			name:     "first name as deterministic fallback",
			names:    []string{"v.de.srt", "v.fr.vtt"},
			language: "es",
			want:     "v.de.srt",
		},
		{
			name:     "single candidate",
			names:    []string{"v.es.srt"},
			language: "es",
			want:     "v.es.srt",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, bestCaptionFile(tt.names, tt.language))
		})
	}
}

func TestParseCaptionsDispatch(t *testing.T) {
	srt := "1\n00:00:00,000 --> 00:00:05,000\nHello"
	vtt := "WEBVTT\n\n00:00:00.000 --> 00:00:05.000\nHello"

	segments, err := parseCaptions("v.en.srt", srt, "en")
	require.NoError(t, err)
	assert.Len(t, segments, 1)

	segments, err = parseCaptions("v.en.VTT", vtt, "en")
	require.NoError(t, err)
	assert.Len(t, segments, 1)

	_, err = parseCaptions("v.en.ass", "whatever", "en")
	appErr, ok := IsAppError(err)
	require.True(t, ok)
	assert.Equal(t, codeParsingFailure, appErr.Code)
}
