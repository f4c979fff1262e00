package main

import (
	"errors"
	"fmt"
	"strings"
)

// Error codes. Each code fixes its HTTP status at construction time.
const (
	codeVideoNotFound          = "video_not_found"
	codeTranscriptNotAvailable = "transcript_not_available"
	codeUnsupportedLanguage    = "unsupported_language"
	codeInvalidIdentifier      = "invalid_identifier"
	codeRateLimited            = "rate_limited"
	codeServiceUnavailable     = "service_unavailable"
	codeExternalToolFailure    = "external_tool_failure"
	codeFileOperationFailure   = "file_operation_failure"
	codeParsingFailure         = "parsing_failure"
)

// AppError is the domain error shape shared by every component. UserMessage
// is localized and safe to return to callers; diagnostic data (stderr, paths,
// exit codes) lives only in Context and the wrapped cause.
type AppError struct {
	Code        string
	HTTPStatus  int
	UserMessage string
	Context     map[string]any
	Err         error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.UserMessage)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// IsAppError reports whether err (or anything it wraps) is a domain error,
// returning the typed value when it is.
func IsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// User-facing messages keyed by language, then error code. Messages never
// include paths, stderr, or other internals.
var userMessages = map[string]map[string]string{
	"es": {
		codeVideoNotFound:          "El video no está disponible o no existe.",
		codeTranscriptNotAvailable: "Este video no tiene subtítulos disponibles.",
		codeUnsupportedLanguage:    "El idioma solicitado no está soportado.",
		codeInvalidIdentifier:      "El identificador del video no es válido.",
		codeRateLimited:            "Demasiadas solicitudes. Inténtalo de nuevo en unos minutos.",
		codeServiceUnavailable:     "El servicio no está disponible temporalmente. Inténtalo más tarde.",
		codeExternalToolFailure:    "No se pudo obtener la transcripción del video.",
		codeFileOperationFailure:   "Ocurrió un error al procesar los archivos de la transcripción.",
		codeParsingFailure:         "No se pudo interpretar la transcripción del video.",
		"generic":                  "Ocurrió un error inesperado. Inténtalo de nuevo.",
	},
	"en": {
		codeVideoNotFound:          "The video is unavailable or does not exist.",
		codeTranscriptNotAvailable: "This video has no captions available.",
		codeUnsupportedLanguage:    "The requested language is not supported.",
		codeInvalidIdentifier:      "The video identifier is not valid.",
		codeRateLimited:            "Too many requests. Please try again in a few minutes.",
		codeServiceUnavailable:     "The service is temporarily unavailable. Please try again later.",
		codeExternalToolFailure:    "The video transcript could not be retrieved.",
		codeFileOperationFailure:   "An error occurred while processing the transcript files.",
		codeParsingFailure:         "The video transcript could not be understood.",
		"generic":                  "An unexpected error occurred. Please try again.",
	},
}

// userMessage resolves a localized message, falling back to English for
// unknown languages. Regional variants (es-419) resolve to their base.
func userMessage(lang, code string) string {
	base := strings.ToLower(strings.TrimSpace(lang))
	if i := strings.IndexAny(base, "-_"); i > 0 {
		base = base[:i]
	}
	table, ok := userMessages[base]
	if !ok {
		table = userMessages["en"]
	}
	if msg, ok := table[code]; ok {
		return msg
	}
	return table["generic"]
}

func newAppError(code string, status int, lang string, ctx map[string]any, cause error) *AppError {
	return &AppError{
		Code:        code,
		HTTPStatus:  status,
		UserMessage: userMessage(lang, code),
		Context:     ctx,
		Err:         cause,
	}
}

func errVideoNotFound(lang, videoID string) *AppError {
	return newAppError(codeVideoNotFound, 404, lang, map[string]any{"videoId": videoID}, nil)
}

func errTranscriptNotAvailable(lang, videoID string) *AppError {
	return newAppError(codeTranscriptNotAvailable, 404, lang, map[string]any{"videoId": videoID}, nil)
}

func errUnsupportedLanguage(lang, requested string) *AppError {
	return newAppError(codeUnsupportedLanguage, 400, lang, map[string]any{"requested": requested}, nil)
}

func errInvalidIdentifier(lang, raw string) *AppError {
	return newAppError(codeInvalidIdentifier, 400, lang, map[string]any{"raw": raw}, nil)
}

func errRateLimited(lang string, cause error) *AppError {
	return newAppError(codeRateLimited, 429, lang, nil, cause)
}

func errServiceUnavailable(lang string, cause error) *AppError {
	return newAppError(codeServiceUnavailable, 503, lang, nil, cause)
}

// errExternalToolFailure keeps stderr in the cause chain so retry predicates
// can inspect it, and in Context for operator logs. Never in UserMessage.
func errExternalToolFailure(lang string, exitCode int, stderr string) *AppError {
	trimmed := strings.TrimSpace(stderr)
	if len(trimmed) > 500 {
		trimmed = trimmed[:500]
	}
	return newAppError(codeExternalToolFailure, 500, lang,
		map[string]any{"exitCode": exitCode, "stderr": trimmed},
		fmt.Errorf("tool exited with code %d: %s", exitCode, trimmed))
}

func errFileOperationFailure(lang, op, path string, cause error) *AppError {
	return newAppError(codeFileOperationFailure, 500, lang,
		map[string]any{"operation": op, "path": path},
		fmt.Errorf("%s %s: %w", op, path, cause))
}

func errParsingFailure(lang, file string, cause error) *AppError {
	return newAppError(codeParsingFailure, 500, lang,
		map[string]any{"file": file},
		fmt.Errorf("parsing %s: %w", file, cause))
}
