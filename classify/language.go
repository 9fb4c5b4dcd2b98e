package classify

import (
	"strings"
	"unicode"
)

// Language codes returned by DetectLanguage.
const (
	LangUnknown = "unknown"
	LangEnglish = "en"
)

var stopwords = map[string][]string{
	"en": {"the", "and", "of", "to", "is", "in", "that", "it", "for", "with", "as", "was", "on", "are",
		"this", "be", "by", "from", "which", "have", "not", "or", "at", "an", "we", "were", "their", "has"},
	"fr": {"le", "la", "les", "des", "et", "est", "une", "un", "du", "dans", "que", "qui", "pour", "pas",
		"sur", "au", "avec", "ce", "son", "sont", "par", "plus", "nous", "cette", "aux", "ont"},
	"de": {"der", "die", "das", "und", "ist", "nicht", "mit", "von", "den", "zu", "ein", "eine", "auf",
		"für", "sich", "dem", "auch", "wird", "werden", "im", "sind", "wir", "oder", "bei"},
	"es": {"el", "los", "las", "y", "del", "es", "por", "con", "una", "para", "se", "al", "como", "más",
		"pero", "sus", "está", "lo", "fue", "entre", "también", "hay"},
	"it": {"il", "di", "che", "è", "della", "per", "sono", "gli", "nel", "anche", "alla", "questo",
		"delle", "degli", "nella", "più", "dei", "essere", "ma", "hanno"},
	"pt": {"o", "os", "do", "da", "dos", "das", "não", "um", "uma", "em", "com", "é", "no", "na",
		"mais", "são", "foi", "pelo", "pela", "também", "ao"},
}

var languageOrder = []string{"en", "fr", "de", "es", "it", "pt"}

var stopwordIndex = func() map[string]map[string]bool {
	idx := make(map[string]map[string]bool, len(stopwords))
	for lang, words := range stopwords {
		set := make(map[string]bool, len(words))
		for _, w := range words {
			set[w] = true
		}
		idx[lang] = set
	}
	return idx
}()

const (
	langSampleWords = 2000
	langMinHits     = 3
)

// DetectLanguage guesses the language of text from stop-word frequencies
// over its leading words. It returns LangUnknown when the evidence is thin.
func DetectLanguage(text string) string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	if len(words) > langSampleWords {
		words = words[:langSampleWords]
	}
	best, bestHits := LangUnknown, 0
	for _, lang := range languageOrder {
		hits := 0
		set := stopwordIndex[lang]
		for _, w := range words {
			if set[w] {
				hits++
			}
		}
		if hits > bestHits {
			best, bestHits = lang, hits
		}
	}
	if bestHits < langMinHits || float64(bestHits) < 0.05*float64(len(words)) {
		return LangUnknown
	}
	return best
}

// Stopwords returns the union of the stop-word lists of langs, or of every
// known language when langs is empty. The result is a fresh map.
func Stopwords(langs ...string) map[string]bool {
	if len(langs) == 0 {
		langs = languageOrder
	}
	out := map[string]bool{}
	for _, l := range langs {
		for _, w := range stopwords[l] {
			out[w] = true
		}
	}
	return out
}
