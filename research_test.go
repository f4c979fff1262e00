package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestReferenceFetcherConvertsHTML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body><h1>Pointers</h1><p>A pointer holds an <strong>address</strong>.</p></body></html>`))
	}))
	defer srv.Close()

	fetcher := newReferenceFetcher(testLogger())
	markdown, err := fetcher.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.Contains(markdown, "# Pointers") {
		t.Errorf("expected a markdown heading, got %q", markdown)
	}
	if !strings.Contains(markdown, "**address**") {
		t.Errorf("expected bold markdown, got %q", markdown)
	}
	if strings.Contains(markdown, "<p>") {
		t.Errorf("HTML must not survive conversion, got %q", markdown)
	}
}

func TestReferenceFetcherRejectsNonHTTPURL(t *testing.T) {
	fetcher := newReferenceFetcher(testLogger())
	for _, url := range []string{"ftp://example.com/x", "file:///etc/passwd", "javascript:alert(1)", ""} {
		if _, err := fetcher.Fetch(context.Background(), url); err == nil {
			t.Errorf("expected error for %q", url)
		}
	}
}

func TestReferenceFetcherRejectsNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	fetcher := newReferenceFetcher(testLogger())
	if _, err := fetcher.Fetch(context.Background(), srv.URL); err == nil {
		t.Error("expected error for a 404 response")
	}
}

// FetchAll degrades: failed references are skipped, good ones survive.
func TestFetchAllIsBestEffort(t *testing.T) {
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<p>ok</p>"))
	}))
	defer good.Close()
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer bad.Close()

	fetcher := newReferenceFetcher(testLogger())
	docs := fetcher.FetchAll(context.Background(), []string{bad.URL, good.URL, "not-a-url"})

	if len(docs) != 1 {
		t.Fatalf("expected 1 surviving doc, got %d", len(docs))
	}
	if docs[0].URL != good.URL {
		t.Errorf("unexpected doc %v", docs[0])
	}
}
