package chunk

import (
	"regexp"
	"unicode/utf8"
)

type level int

const (
	levelParagraph level = iota
	levelSentence
	levelWord
	levelRune
)

var (
	paragraphBreakRe = regexp.MustCompile(`\n[ \t]*\n\s*`)
	sentenceBreakRe  = regexp.MustCompile(`[.!?\x{2026}]+["'\x{201D}\x{2019})\]]*\s+`)
	wordBreakRe      = regexp.MustCompile(`\s+`)
)

// SplitText cuts text into pieces of at most limit runes. It packs the
// largest units that fit: paragraphs, then sentences, then words. A single
// word longer than limit is the only thing ever cut mid-word.
//
// Separators stay attached to the preceding piece, so concatenating the
// pieces reproduces text exactly.
func SplitText(text string, limit int) []string {
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}
	return pack(text, limit, levelParagraph)
}

func pack(text string, limit int, lv level) []string {
	if lv == levelRune {
		return hardSplit(text, limit)
	}
	var out []string
	cur, curLen := "", 0
	for _, u := range units(text, lv) {
		n := utf8.RuneCountInString(u)
		if n > limit {
			if cur != "" {
				out = append(out, cur)
				cur, curLen = "", 0
			}
			out = append(out, pack(u, limit, lv+1)...)
			continue
		}
		if curLen+n > limit {
			out = append(out, cur)
			cur, curLen = "", 0
		}
		cur += u
		curLen += n
	}
	if cur != "" {
		out = append(out, cur)
	}
	return out
}

// units cuts text after each separator of the given level.
func units(text string, lv level) []string {
	var re *regexp.Regexp
	switch lv {
	case levelParagraph:
		re = paragraphBreakRe
	case levelSentence:
		re = sentenceBreakRe
	default:
		re = wordBreakRe
	}
	var out []string
	last := 0
	for _, loc := range re.FindAllStringIndex(text, -1) {
		if loc[1] > last {
			out = append(out, text[last:loc[1]])
			last = loc[1]
		}
	}
	if last < len(text) {
		out = append(out, text[last:])
	}
	return out
}

func hardSplit(text string, limit int) []string {
	var out []string
	for len(text) > 0 {
		end, n := 0, 0
		for end < len(text) && n < limit {
			_, size := utf8.DecodeRuneInString(text[end:])
			end += size
			n++
		}
		out = append(out, text[:end])
		text = text[end:]
	}
	return out
}
