package textutil

import (
	"strings"
	"unicode"
)

const maxSlugRunes = 48

// Slug lowercases name, strips accents, and joins the remaining letter and
// digit runs with single hyphens, capped at 48 runes. Empty results become
// "import".
func Slug(name string) string {
	plain := stripMarks(folder.String(strings.TrimSpace(name)))
	var b strings.Builder
	pendingHyphen := false
	count := 0
	for _, r := range plain {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			pendingHyphen = b.Len() > 0
			continue
		}
		if count >= maxSlugRunes {
			break
		}
		if pendingHyphen {
			b.WriteByte('-')
			count++
			pendingHyphen = false
		}
		b.WriteRune(r)
		count++
	}
	out := strings.TrimRight(b.String(), "-")
	if out == "" {
		return "import"
	}
	return out
}

// SafeFileName keeps name readable but removes path separators, control
// characters, and characters that Windows or SMB shares reject.
func SafeFileName(name string) string {
	name = strings.TrimSpace(name)
	var b strings.Builder
	for _, r := range name {
		switch {
		case r == '/' || r == '\\' || r == ':':
			b.WriteByte('-')
		case r == '*' || r == '?' || r == '"' || r == '<' || r == '>' || r == '|':
		case unicode.IsControl(r):
		default:
			b.WriteRune(r)
		}
	}
	out := strings.Trim(b.String(), " .")
	if out == "" {
		return "unnamed"
	}
	return out
}

// Pick returns a when cond holds, otherwise b.
func Pick[T any](cond bool, a, b T) T {
	if cond {
		return a
	}
	return b
}
