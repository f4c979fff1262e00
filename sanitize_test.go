package main

import (
	"errors"
	"testing"
)

func TestSanitizeVideoID(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{
			name: "valid identifier",
			raw:  "dQw4w9WgXcQ",
			want: "dQw4w9WgXcQ",
		},
		{
			name: "valid with underscore and hyphen",
			raw:  "a_b-c_d-e1Z",
			want: "a_b-c_d-e1Z",
		},
		{
			name: "surrounding whitespace is trimmed",
			raw:  "  dQw4w9WgXcQ  ",
			want: "dQw4w9WgXcQ",
		},
		{
			name:    "too short",
			raw:     "abc123",
			wantErr: true,
		},
		{
			name:    "too long",
			raw:     "dQw4w9WgXcQQ",
			wantErr: true,
		},
		{
			name:    "shell metacharacters",
			raw:     "a;rm -rf /x",
			wantErr: true,
		},
		{
			name:    "command substitution",
			raw:     "$(whoami)xy",
			wantErr: true,
		},
		{
			name:    "pipe character",
			raw:     "abcd|efghij",
			wantErr: true,
		},
		{
			name:    "embedded whitespace",
			raw:     "abcd efghij",
			wantErr: true,
		},
		{
			name:    "empty input",
			raw:     "",
			wantErr: true,
		},
		{
			name:    "unicode lookalikes",
			raw:     "abcdefghiéj",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := sanitizeVideoID(tt.raw, "en")

			if tt.wantErr {
				if err == nil {
					t.Fatalf("sanitizeVideoID(%q) expected error, got %q", tt.raw, got)
				}
				appErr, ok := IsAppError(err)
				if !ok {
					t.Fatalf("expected AppError, got %T", err)
				}
				if appErr.Code != codeInvalidIdentifier {
					t.Errorf("expected code %q, got %q", codeInvalidIdentifier, appErr.Code)
				}
				if appErr.HTTPStatus != 400 {
					t.Errorf("expected status 400, got %d", appErr.HTTPStatus)
				}
				return
			}

			if err != nil {
				t.Fatalf("sanitizeVideoID(%q) unexpected error: %v", tt.raw, err)
			}
			if got != tt.want {
				t.Errorf("sanitizeVideoID(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestSanitizeVideoIDErrorIsTyped(t *testing.T) {
	_, err := sanitizeVideoID("nope", "es")
	var appErr *AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *AppError in chain, got %T", err)
	}
	if appErr.UserMessage != userMessage("es", codeInvalidIdentifier) {
		t.Errorf("unexpected user message %q", appErr.UserMessage)
	}
}
