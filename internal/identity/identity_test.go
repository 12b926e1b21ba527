package identity_test

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"voicenotes/internal/identity"
)

func TestDeriveID(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		dir      string
		want     string
	}{
		{name: "time only with dated dir", filename: "160626-voice-note.wav", dir: "2025-08-10", want: "20250810160626"},
		{name: "time only with full tree", filename: "160626-voice-note.wav", dir: "/home/u/notes/2025/2025-08-10", want: "20250810160626"},
		{name: "date and time", filename: "20250810-160626-voice-note.wav", dir: "", want: "20250810160626"},
		{name: "fourteen digits", filename: "20250810160626.m4a", dir: "", want: "20250810160626"},
		{name: "bare six digits", filename: "160626.wav", dir: `C:\notes\2025\2025-08-10`, want: "20250810160626"},
		{name: "first part six digits", filename: "160626-kitchen.ogg", dir: "2025/2025-08-10", want: "20250810160626"},
		{name: "digits buried in name", filename: "rec_2025-08-10_16.06.26_final.wav", dir: "", want: "20250810160626"},
		{name: "six buried digits use dir", filename: "memo 16:06:26.wav", dir: "notes/2025/2025-08-10", want: "20250810160626"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := identity.DeriveID(tt.filename, tt.dir)
			if err != nil {
				t.Fatalf("DeriveID(%q, %q) error: %v", tt.filename, tt.dir, err)
			}
			if got != tt.want {
				t.Fatalf("DeriveID(%q, %q) = %q, want %q", tt.filename, tt.dir, got, tt.want)
			}
		})
	}
}

func TestDeriveIDUnresolvableWithoutDateSource(t *testing.T) {
	_, err := identity.DeriveID("160626.wav", "/tmp/inbox")
	if !errors.Is(err, identity.ErrUnresolvableID) {
		t.Fatalf("expected ErrUnresolvableID, got %v", err)
	}
}

func TestDeriveIDUsesFallbackDate(t *testing.T) {
	fallback := time.Date(2024, 3, 5, 22, 0, 0, 0, time.Local)
	got, err := identity.DeriveIDWithFallback("160626-voice-note.wav", "/tmp/inbox", fallback)
	if err != nil {
		t.Fatalf("DeriveIDWithFallback error: %v", err)
	}
	if got != "20240305160626" {
		t.Fatalf("got %q", got)
	}

	// Directory date wins over the fallback.
	got, err = identity.DeriveIDWithFallback("160626-voice-note.wav", "2025/2025-08-10", fallback)
	if err != nil || got != "20250810160626" {
		t.Fatalf("got %q, %v", got, err)
	}
}

func TestDeriveIDNonCanonical(t *testing.T) {
	got, err := identity.DeriveID("shopping list.wav", "2025/2025-08-10")
	if !errors.Is(err, identity.ErrNonCanonicalID) {
		t.Fatalf("expected ErrNonCanonicalID, got %v", err)
	}
	if got != "shopping list" {
		t.Fatalf("expected raw stem, got %q", got)
	}
}

func TestNormalizePathDedup(t *testing.T) {
	inputs := []string{
		`D:\x\notes\2025\2025-08-10\160626-voice-note.wav`,
		`\\?\D:\x\notes\2025\2025-08-10\160626-voice-note.wav`,
		"notes/2025/2025-08-10/160626-voice-note.wav",
		"//?/D:/x/notes/2025/2025-08-10/160626-voice-note.wav",
		"/home/u/notes/./2025/2025-08-10/160626-voice-note.wav",
	}
	const want = "2025/2025-08-10/160626-voice-note.wav"
	for _, input := range inputs {
		if got := identity.NormalizePath(input, "notes"); got != want {
			t.Errorf("NormalizePath(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestNormalizePathFallbacks(t *testing.T) {
	if got := identity.NormalizePath("/data/mynotes/2025/2025-08-10/160626.wav", "notes"); got != "2025/2025-08-10/160626.wav" {
		t.Fatalf("date pair fallback: got %q", got)
	}
	if got := identity.NormalizePath(`C:\Users\me\Desktop\memo.wav`, "notes"); got != "memo.wav" {
		t.Fatalf("filename fallback: got %q", got)
	}
	if got := identity.NormalizePath("", "notes"); got != "" {
		t.Fatalf("empty path: got %q", got)
	}
}

func TestNormalizePathUnicodeForms(t *testing.T) {
	nfd := "notes/2025/2025-08-10/cafe\u0301.wav"
	nfc := "notes/2025/2025-08-10/caf\u00e9.wav"
	if identity.NormalizePath(nfd, "notes") != identity.NormalizePath(nfc, "notes") {
		t.Fatalf("NFD and NFC spellings normalized differently")
	}
}

func TestPathTimestamp(t *testing.T) {
	got, ok := identity.PathTimestamp("2025/2025-08-10/160626-voice-note.wav")
	if !ok {
		t.Fatal("expected timestamp")
	}
	want := time.Date(2025, 8, 10, 16, 6, 26, 0, time.Local)
	if !got.Equal(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	if _, ok := identity.PathTimestamp("memo.wav"); ok {
		t.Fatal("expected no timestamp for bare filename")
	}
	if _, ok := identity.PathTimestamp("2025/2025-08-10/shopping.wav"); ok {
		t.Fatal("expected no timestamp for non-numeric stem")
	}
}

func TestSiblingPaths(t *testing.T) {
	if got := identity.TextPath("2025/2025-08-10/160626-voice-note.wav"); got != "2025/2025-08-10/160626-voice-note.txt" {
		t.Fatalf("TextPath = %q", got)
	}
	if got := identity.SidecarPath("/a.b/noext"); got != "/a.b/noext.json" {
		t.Fatalf("SidecarPath = %q", got)
	}
}

func TestStorePath(t *testing.T) {
	root := filepath.Join(t.TempDir(), "voice")
	inside := filepath.Join(root, "inbox", "memo.wav")
	if got := identity.StorePath(root, inside, "notes"); got != "inbox/memo.wav" {
		t.Fatalf("inside root: got %q", got)
	}
	outside := "/elsewhere/notes/2025/2025-08-10/160626.wav"
	if got := identity.StorePath(root, outside, "notes"); got != "2025/2025-08-10/160626.wav" {
		t.Fatalf("outside root: got %q", got)
	}
	if got := identity.AbsPath(root, "inbox/memo.wav"); got != inside {
		t.Fatalf("AbsPath = %q", got)
	}
}
