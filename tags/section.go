package tags

import (
	"strings"
	"sync"
	"unicode"
)

const maxSectionName = 64

var sectionNames sync.Map // raw -> normalized

// SectionName normalizes a section title into a tag: lowercase, runs of
// non-alphanumerics as one underscore, at most 64 runes. Empty titles map
// to "content".
func SectionName(raw string) string {
	if v, ok := sectionNames.Load(raw); ok {
		return v.(string)
	}
	name := normalizeSection(raw)
	sectionNames.Store(raw, name)
	return name
}

func normalizeSection(raw string) string {
	var sb strings.Builder
	n := 0
	pendingSep := false
	for _, r := range strings.ToLower(raw) {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			pendingSep = sb.Len() > 0
			continue
		}
		if n >= maxSectionName {
			break
		}
		if pendingSep {
			if n+1 >= maxSectionName {
				break
			}
			sb.WriteByte('_')
			n++
			pendingSep = false
		}
		sb.WriteRune(r)
		n++
	}
	if sb.Len() == 0 {
		return "content"
	}
	return sb.String()
}
