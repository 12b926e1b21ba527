package identity

import (
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

var extendedPrefixes = []string{`\\?\UNC\`, `\\?\`, `\\.\`, `//?/UNC/`, `//?/`, `//./`}

// NormalizePath converts any spelling of an audio file path into the
// store-relative form. It strips extended-length prefixes, applies Unicode
// NFC, and returns the segments after the last rootMarker directory joined
// with "/". Without a marker it returns from the first YYYY/YYYY-MM-DD pair,
// and as a last resort the bare filename.
func NormalizePath(p, rootMarker string) string {
	p = norm.NFC.String(strings.TrimSpace(p))
	for _, prefix := range extendedPrefixes {
		if len(p) >= len(prefix) && strings.EqualFold(p[:len(prefix)], prefix) {
			p = p[len(prefix):]
			break
		}
	}
	segments := splitSegments(p)
	if len(segments) == 0 {
		return ""
	}

	marker := norm.NFC.String(strings.Trim(rootMarker, `/\`))
	if marker != "" {
		for i := len(segments) - 2; i >= 0; i-- {
			if strings.EqualFold(segments[i], marker) {
				return strings.Join(segments[i+1:], "/")
			}
		}
	}

	for i := 0; i+1 < len(segments)-1; i++ {
		year := segments[i]
		day := segments[i+1]
		if len(year) == 4 && allDigits(year) && dateSegment.MatchString(day) && strings.HasPrefix(day, year+"-") {
			return strings.Join(segments[i:], "/")
		}
	}

	return segments[len(segments)-1]
}

// StorePath returns the store-relative path of p. Files under root keep
// their position relative to it; anything else goes through NormalizePath.
func StorePath(root, p, rootMarker string) string {
	if root != "" && filepath.IsAbs(p) {
		if rel, err := filepath.Rel(root, p); err == nil && rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return norm.NFC.String(filepath.ToSlash(rel))
		}
	}
	return NormalizePath(p, rootMarker)
}

// AbsPath resolves a store-relative path against root.
func AbsPath(root, relPath string) string {
	if filepath.IsAbs(relPath) {
		return relPath
	}
	return filepath.Join(root, filepath.FromSlash(relPath))
}

// TextPath returns the sibling transcript path for an audio path.
func TextPath(audioPath string) string {
	return replaceExt(audioPath, ".txt")
}

// SidecarPath returns the sibling metadata path for an audio path.
func SidecarPath(audioPath string) string {
	return replaceExt(audioPath, ".json")
}

func replaceExt(p, ext string) string {
	slash := strings.LastIndexAny(p, `/\`)
	dot := strings.LastIndexByte(p, '.')
	if dot <= slash+1 {
		return p + ext
	}
	return p[:dot] + ext
}

// PathTimestamp parses the YYYY-MM-DD/HHMMSS convention of a relative path
// into local time.
func PathTimestamp(relPath string) (time.Time, bool) {
	segments := splitSegments(relPath)
	if len(segments) < 2 {
		return time.Time{}, false
	}
	day := segments[len(segments)-2]
	if !dateSegment.MatchString(day) {
		return time.Time{}, false
	}
	stem := Stem(segments[len(segments)-1])
	clock := stem
	if len(clock) > 6 {
		clock = clock[:6]
	}
	if len(clock) != 6 || !allDigits(clock) {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation("2006-01-02150405", day+clock, time.Local)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func splitSegments(p string) []string {
	raw := strings.FieldsFunc(p, func(r rune) bool { return r == '/' || r == '\\' })
	out := raw[:0]
	for _, seg := range raw {
		if seg == "." {
			continue
		}
		out = append(out, seg)
	}
	return out
}
