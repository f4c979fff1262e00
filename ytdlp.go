package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

// toolResult captures one external command invocation.
type toolResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// toolRunner abstracts subprocess execution for testability.
type toolRunner interface {
	Run(ctx context.Context, name string, args ...string) (toolResult, error)
}

type execToolRunner struct{}

func (execToolRunner) Run(ctx context.Context, name string, args ...string) (toolResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := toolResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	if err != nil {
		result.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		}
		return result, err
	}
	return result, nil
}

// captionExtensions are the caption file kinds the parsers understand.
var captionExtensions = map[string]bool{
	".srt": true,
	".vtt": true,
}

// mediaFetcher drives yt-dlp to download caption tracks only. It never
// creates or deletes the work directory; the caller owns that lifecycle.
type mediaFetcher struct {
	binary string
	runner toolRunner
	logger *logrus.Logger
	retry  RetryPolicy
}

func newMediaFetcher(binary string, logger *logrus.Logger, retry RetryPolicy) *mediaFetcher {
	if binary == "" {
		binary = "yt-dlp"
	}
	retry.Retryable = isRetryableToolError
	return &mediaFetcher{
		binary: binary,
		runner: execToolRunner{},
		logger: logger,
		retry:  retry,
	}
}

// fetchCaptions sanitizes the identifier, invokes yt-dlp restricted to
// workDir, and returns the caption file names written there, sorted
// lexicographically. The whole call retries under the external-tool
// predicate.
func (f *mediaFetcher) fetchCaptions(ctx context.Context, videoID, language, workDir string) ([]string, error) {
	id, err := sanitizeVideoID(videoID, language)
	if err != nil {
		return nil, err
	}

	return retryCall(ctx, f.retry, func() ([]string, error) {
		return f.fetchOnce(ctx, id, language, workDir)
	})
}

func (f *mediaFetcher) fetchOnce(ctx context.Context, id, language, workDir string) ([]string, error) {
	args := captionArgs(id, language, workDir)
	f.logger.WithFields(logrus.Fields{
		"video_id": id,
		"language": language,
	}).Debug("invoking caption downloader")

	result, err := f.runner.Run(ctx, f.binary, args...)
	if err != nil {
		classified := classifyToolError(language, id, result.ExitCode, result.Stderr)
		f.logger.WithFields(logrus.Fields{
			"video_id":  id,
			"exit_code": result.ExitCode,
			"code":      classified.Code,
		}).Warn("caption downloader failed")
		return nil, classified
	}

	names, err := listCaptionFiles(workDir)
	if err != nil {
		return nil, errFileOperationFailure(language, "list work directory", workDir, err)
	}
	// Zero exit with no caption files is a real failure, not success.
	if len(names) == 0 {
		return nil, errTranscriptNotAvailable(language, id)
	}
	return names, nil
}

// captionArgs builds the yt-dlp argv. Only the sanitized identifier is ever
// placed here, after the "--" terminator.
func captionArgs(id, language, workDir string) []string {
	subLangs := fmt.Sprintf("%s.*,%s,-live_chat", language, language)
	return []string{
		"--no-playlist",
		"--skip-download",
		"--write-subs",
		"--write-auto-subs",
		"--sub-langs", subLangs,
		"--restrict-filenames",
		"-o", "%(id)s.%(ext)s",
		"-P", workDir,
		"--",
		id,
	}
}

// listCaptionFiles filters workDir to caption extensions and pins a
// deterministic lexicographic order; directory listing order is never
// trusted.
func listCaptionFiles(workDir string) ([]string, error) {
	entries, err := os.ReadDir(workDir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if captionExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// stderrClass maps stderr substrings to a domain error kind. The table is
// ordered: the first matching class wins.
type stderrClass struct {
	markers []string
	build   func(lang, id string, exitCode int, stderr string) *AppError
}

var stderrClasses = []stderrClass{
	{
		markers: []string{
			"video unavailable",
			"private video",
			"has been removed",
			"this video is not available",
			"account associated with this video has been terminated",
		},
		build: func(lang, id string, _ int, _ string) *AppError {
			return errVideoNotFound(lang, id)
		},
	},
	{
		markers: []string{
			"no subtitles",
			"subtitles not available",
			"there are no subtitles",
			"no closed captions",
		},
		build: func(lang, id string, _ int, _ string) *AppError {
			return errTranscriptNotAvailable(lang, id)
		},
	},
	{
		markers: []string{
			"http error 429",
			"too many requests",
			"rate limit",
		},
		build: func(lang, _ string, exitCode int, stderr string) *AppError {
			return errRateLimited(lang, fmt.Errorf("tool exited with code %d: %s", exitCode, strings.TrimSpace(stderr)))
		},
	},
}

// classifyToolError turns a non-zero yt-dlp exit into a domain error using
// the stderr classification table. Unmatched output becomes a generic
// external-tool failure carrying exit code and stderr.
func classifyToolError(lang, id string, exitCode int, stderr string) *AppError {
	lowered := strings.ToLower(stderr)
	for _, class := range stderrClasses {
		for _, marker := range class.markers {
			if strings.Contains(lowered, marker) {
				return class.build(lang, id, exitCode, stderr)
			}
		}
	}
	return errExternalToolFailure(lang, exitCode, stderr)
}
