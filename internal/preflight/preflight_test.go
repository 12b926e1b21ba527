package preflight_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"voicenotes/internal/preflight"
	"voicenotes/internal/testsupport"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := preflight.CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := preflight.CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := preflight.CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckNtfy_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/health" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"healthy":true}`))
	}))
	defer srv.Close()

	result := preflight.CheckNtfy(context.Background(), srv.URL+"/voice-notes")
	if !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
	if result.Detail != srv.URL {
		t.Fatalf("expected server %q in detail, got %q", srv.URL, result.Detail)
	}
}

func TestCheckNtfy_Unhealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"healthy":false}`))
	}))
	defer srv.Close()

	result := preflight.CheckNtfy(context.Background(), srv.URL+"/voice-notes")
	if result.Passed {
		t.Fatal("expected failure for unhealthy server")
	}
}

func TestCheckNtfy_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	result := preflight.CheckNtfy(context.Background(), srv.URL+"/voice-notes")
	if result.Passed {
		t.Fatal("expected failure for 500")
	}
}

func TestCheckNtfy_InvalidURL(t *testing.T) {
	result := preflight.CheckNtfy(context.Background(), "not a url")
	if result.Passed || result.Detail == "" {
		t.Fatalf("expected failure with detail, got %+v", result)
	}
}

func TestRunAll_NilConfig(t *testing.T) {
	if results := preflight.RunAll(context.Background(), nil); results != nil {
		t.Fatalf("expected nil results, got %v", results)
	}
}

func TestRunAll_ReportsDirectoriesAndToolchain(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	testsupport.WriteText(t, cfg.Transcription.ModelPath, "ggml")

	results := preflight.RunAll(context.Background(), cfg)
	byName := make(map[string]preflight.Result, len(results))
	for _, r := range results {
		byName[r.Name] = r
	}
	for _, name := range []string{"Notes directory", "State directory", "Imports directory", "Whisper", "FFmpeg", "Whisper model"} {
		r, ok := byName[name]
		if !ok {
			t.Fatalf("missing check %q in %+v", name, results)
		}
		if !r.Passed {
			t.Fatalf("expected %s to pass, got: %s", name, r.Detail)
		}
	}
	if _, ok := byName["ntfy"]; ok {
		t.Fatal("ntfy check should be skipped without a topic")
	}
}

func TestRunAll_MissingModelFails(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())

	for _, r := range preflight.RunAll(context.Background(), cfg) {
		if r.Name == "Whisper model" {
			if r.Passed {
				t.Fatal("expected missing model to fail")
			}
			return
		}
	}
	t.Fatal("model check not reported")
}
