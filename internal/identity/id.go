package identity

import (
	"errors"
	"path"
	"regexp"
	"strings"
	"time"
	"unicode"
)

var (
	// ErrUnresolvableID is returned when a time-only filename has no date
	// source in its directory structure or file metadata.
	ErrUnresolvableID = errors.New("identity: no date source for time-only filename")
	// ErrNonCanonicalID accompanies a best-effort id that is not 14 digits.
	ErrNonCanonicalID = errors.New("identity: non-canonical id")
)

const (
	voiceNoteSuffix = "-voice-note"
	idLayout        = "20060102150405"
	dateLayout      = "2006-01-02"
)

var dateSegment = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})$`)

// DeriveID maps an audio filename to its canonical id. dir is the directory
// containing the file and is consulted for a YYYY-MM-DD date when the name
// carries only a time of day.
func DeriveID(filename, dir string) (string, error) {
	return DeriveIDWithFallback(filename, dir, time.Time{})
}

// DeriveIDWithFallback behaves like DeriveID but uses fallback (typically the
// file's modification time) as the date source when the directory has none.
// A zero fallback disables it.
func DeriveIDWithFallback(filename, dir string, fallback time.Time) (string, error) {
	stem := Stem(filename)

	parts := strings.Split(stem, "-")
	if len(parts) == 2 && len(parts[0]) == 8 && len(parts[1]) == 6 && allDigits(parts[0]) && allDigits(parts[1]) {
		return parts[0] + parts[1], nil
	}
	if len(stem) == 14 && allDigits(stem) {
		return stem, nil
	}
	if len(stem) == 6 && allDigits(stem) {
		return withDate(stem, dir, fallback)
	}
	if len(parts[0]) == 6 && allDigits(parts[0]) {
		return withDate(parts[0], dir, fallback)
	}

	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, stem)
	switch {
	case len(digits) >= 14:
		return digits[:14], nil
	case len(digits) >= 6:
		return withDate(digits[:6], dir, fallback)
	default:
		return stem, ErrNonCanonicalID
	}
}

// Stem returns the base filename without extension or voice-note suffix.
func Stem(filename string) string {
	base := path.Base(strings.ReplaceAll(filename, `\`, "/"))
	stem := strings.TrimSuffix(base, path.Ext(base))
	return strings.TrimSuffix(stem, voiceNoteSuffix)
}

func withDate(timeOfDay, dir string, fallback time.Time) (string, error) {
	if date, ok := DateFromDir(dir); ok {
		return date.Format("20060102") + timeOfDay, nil
	}
	if !fallback.IsZero() {
		return fallback.Format("20060102") + timeOfDay, nil
	}
	return "", ErrUnresolvableID
}

// DateFromDir finds the innermost YYYY-MM-DD segment in dir.
func DateFromDir(dir string) (time.Time, bool) {
	segments := splitSegments(dir)
	for i := len(segments) - 1; i >= 0; i-- {
		if !dateSegment.MatchString(segments[i]) {
			continue
		}
		date, err := time.ParseInLocation(dateLayout, segments[i], time.Local)
		if err != nil {
			continue
		}
		return date, true
	}
	return time.Time{}, false
}

// ParseID converts a canonical id into local time.
func ParseID(id string) (time.Time, bool) {
	if len(id) != 14 || !allDigits(id) {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation(idLayout, id, time.Local)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// FormatID renders a time as a canonical id.
func FormatID(t time.Time) string {
	return t.Format(idLayout)
}

// IsCanonical reports whether id has the 14-digit shape.
func IsCanonical(id string) bool {
	return len(id) == 14 && allDigits(id)
}

func allDigits(value string) bool {
	if value == "" {
		return false
	}
	for _, r := range value {
		if r > unicode.MaxASCII || !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
