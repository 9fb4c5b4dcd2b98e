// CLAUDE:SUMMARY Tag generator: base tags, extension keyword hits, frequency tokens and PDF heuristics, memoized by content fingerprint.
// CLAUDE:EXPORTS Options, Input, Generator, New, SectionName
// CLAUDE:DEPENDS docpipe, classify
package tags

import (
	"regexp"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"unicode"

	"github.com/hazyhaar/docflow/classify"
	"github.com/hazyhaar/docflow/docpipe"
)

// Options configures a Generator.
type Options struct {
	// MaxFrequencyTags caps the frequency-ranked tokens. Default: 5.
	MaxFrequencyTags int `yaml:"max_frequency_tags"`
	// MinFrequency is the occurrence count a token needs. Default: 2.
	MinFrequency int `yaml:"min_frequency"`
	// Stopwords excluded from frequency tags. Default: every language
	// known to classify.
	Stopwords map[string]bool `yaml:"-"`
	// CustomStopwords are added to Stopwords.
	CustomStopwords []string `yaml:"custom_stopwords"`
}

func (o *Options) defaults() {
	if o.MaxFrequencyTags <= 0 {
		o.MaxFrequencyTags = 5
	}
	if o.MinFrequency <= 0 {
		o.MinFrequency = 2
	}
	set := classify.Stopwords()
	for w := range o.Stopwords {
		set[w] = true
	}
	for _, w := range o.CustomStopwords {
		set[strings.ToLower(w)] = true
	}
	o.Stopwords = set
}

// Input is what a tag set is computed from.
type Input struct {
	Section  string
	Content  string
	Ext      string // with or without the leading dot
	DocType  docpipe.DocumentType
	Language string
}

type cacheKey struct {
	section, content, stopwords string
	docType                     docpipe.DocumentType
	lang, ext                   string
}

// Generator computes tag sets. Safe for concurrent use; results for equal
// inputs are computed once.
type Generator struct {
	opts    Options
	stopKey string
	cache   sync.Map // cacheKey -> []string

	hits, misses atomic.Int64
}

// New creates a Generator.
func New(opts Options) *Generator {
	opts.defaults()
	words := make([]string, 0, len(opts.Stopwords))
	for w := range opts.Stopwords {
		words = append(words, w)
	}
	sort.Strings(words)
	return &Generator{opts: opts, stopKey: docpipe.Fingerprint(strings.Join(words, "\n"))}
}

// Generate returns the sorted, de-duplicated tags of in. The returned slice
// is owned by the caller.
func (g *Generator) Generate(in Input) []string {
	ext := strings.ToLower(strings.TrimPrefix(in.Ext, "."))
	key := cacheKey{
		section:   in.Section,
		content:   docpipe.Fingerprint(in.Content),
		stopwords: g.stopKey,
		docType:   in.DocType,
		lang:      in.Language,
		ext:       ext,
	}
	if v, ok := g.cache.Load(key); ok {
		g.hits.Add(1)
		return append([]string(nil), v.([]string)...)
	}
	g.misses.Add(1)
	tags := g.compute(in, ext)
	g.cache.Store(key, tags)
	return append([]string(nil), tags...)
}

// CacheStats returns the number of memoized and computed results.
func (g *Generator) CacheStats() (hits, misses int64) {
	return g.hits.Load(), g.misses.Load()
}

func (g *Generator) compute(in Input, ext string) []string {
	set := map[string]bool{SectionName(in.Section): true}
	if ext != "" {
		set[ext] = true
	}
	if in.DocType != "" && in.DocType != docpipe.TypeGeneral {
		set["type:"+string(in.DocType)] = true
	}
	if in.Language != "" && in.Language != classify.LangEnglish && in.Language != classify.LangUnknown {
		set["lang:"+in.Language] = true
	}

	tokens := tokenize(in.Content)
	present := make(map[string]int, len(tokens))
	for _, t := range tokens {
		present[t]++
	}
	for _, kw := range extKeywords[ext] {
		if present[kw] > 0 {
			set[kw] = true
		}
	}
	for _, t := range g.frequent(present) {
		set[t] = true
	}
	if ext == "pdf" {
		for _, t := range pdfHeuristics(in.Content, present) {
			set[t] = true
		}
	}

	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// frequent returns the top tokens by count, ties broken alphabetically.
func (g *Generator) frequent(counts map[string]int) []string {
	type kv struct {
		word  string
		count int
	}
	var cands []kv
	for w, c := range counts {
		if c < g.opts.MinFrequency || len([]rune(w)) < 3 || g.opts.Stopwords[w] || programmingKeywords[w] || isNumber(w) {
			continue
		}
		cands = append(cands, kv{w, c})
	}
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].count != cands[j].count {
			return cands[i].count > cands[j].count
		}
		return cands[i].word < cands[j].word
	})
	if len(cands) > g.opts.MaxFrequencyTags {
		cands = cands[:g.opts.MaxFrequencyTags]
	}
	out := make([]string, len(cands))
	for i, c := range cands {
		out[i] = c.word
	}
	return out
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
}

func isNumber(w string) bool {
	for _, r := range w {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// PDF heuristic thresholds.
const (
	minCitations   = 3
	minMathSymbols = 5
	minAlgoWords   = 3
	minCodeLines   = 5
	minResearch    = 3
)

var (
	mathRe  = regexp.MustCompile(`[\x{2211}\x{222B}\x{2202}\x{221A}\x{2248}\x{2260}\x{2264}\x{2265}\x{00B1}\x{00D7}\x{00F7}\x{221E}\x{2208}\x{2200}\x{2203}\x{03B1}-\x{03C9}]|\\(?:frac|sum|int|alpha|beta|sqrt|mathbb)\b`)
	fenceRe = regexp.MustCompile("(?m)^\\s*```")
	codeRe  = regexp.MustCompile(`(?m)(?:[;{}]\s*$|^\s*(?:def|func|class|import|return)\b)`)
)

var algorithmWords = []string{"algorithm", "procedure", "input", "output", "repeat", "until", "iteration", "pseudocode"}

var researchWords = []string{"hypothesis", "experiment", "experiments", "methodology", "significant",
	"dataset", "evaluation", "baseline", "findings", "empirical"}

func pdfHeuristics(content string, counts map[string]int) []string {
	var out []string
	if classify.CitationCount(content) >= minCitations {
		out = append(out, "citations")
	}
	if len(mathRe.FindAllStringIndex(content, -1)) >= minMathSymbols {
		out = append(out, "math")
	}
	if countAll(counts, algorithmWords) >= minAlgoWords {
		out = append(out, "algorithm")
	}
	if len(fenceRe.FindAllStringIndex(content, -1)) >= 2 || len(codeRe.FindAllStringIndex(content, -1)) >= minCodeLines {
		out = append(out, "code")
	}
	if countAll(counts, researchWords) >= minResearch {
		out = append(out, "research")
	}
	return out
}

func countAll(counts map[string]int, words []string) int {
	n := 0
	for _, w := range words {
		n += counts[w]
	}
	return n
}
