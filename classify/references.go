package classify

import (
	"regexp"
	"strings"
)

var (
	refEntryRe = regexp.MustCompile(`^\s*(?:\[\d{1,4}\]|\d{1,4}\.\s)`)
	refStopRe  = regexp.MustCompile(`(?i)^\s*(?:appendix|appendices|acknowledg(?:e)?ments?)\b`)
)

// ExtractReferences returns the bibliography entries found after the last
// References/Bibliography heading. Entries start at "[n]" or "n." markers
// when present, otherwise at blank lines, otherwise one per line.
func ExtractReferences(text string) []string {
	locs := referencesRe.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return nil
	}
	body := text[locs[len(locs)-1][1]:]

	var lines []string
	for _, l := range strings.Split(body, "\n") {
		if refStopRe.MatchString(l) {
			break
		}
		lines = append(lines, l)
	}

	marked := false
	for _, l := range lines {
		if refEntryRe.MatchString(l) {
			marked = true
			break
		}
	}

	var entries []string
	var cur []string
	flush := func() {
		if e := strings.Join(cur, " "); len(e) >= 3 {
			entries = append(entries, e)
		}
		cur = nil
	}
	for _, l := range lines {
		t := strings.TrimSpace(l)
		if t == "" {
			if !marked {
				flush()
			}
			continue
		}
		if marked && refEntryRe.MatchString(l) {
			flush()
		}
		cur = append(cur, t)
	}
	flush()

	if !marked && len(entries) == 1 {
		// One block without any separators: one entry per line.
		entries = entries[:0]
		for _, l := range lines {
			if t := strings.TrimSpace(l); len(t) >= 3 {
				entries = append(entries, t)
			}
		}
	}
	return entries
}
