package tags

import (
	"strings"
	"sync"
	"testing"

	"github.com/hazyhaar/docflow/docpipe"
)

func TestGenerate_BaseTags(t *testing.T) {
	g := New(Options{})
	got := g.Generate(Input{Section: "2.1 Related Work", Content: "x", Ext: ".PDF", DocType: docpipe.TypeAcademic, Language: "fr"})
	want := "2_1_related_work,lang:fr,pdf,type:academic_paper"
	if strings.Join(got, ",") != want {
		t.Errorf("tags = %v, want %s", got, want)
	}
}

func TestGenerate_DefaultsOmitted(t *testing.T) {
	g := New(Options{})
	got := g.Generate(Input{Content: "x", Ext: "txt", DocType: docpipe.TypeGeneral, Language: "en"})
	if strings.Join(got, ",") != "content,txt" {
		t.Errorf("tags = %v", got)
	}
	got = g.Generate(Input{Content: "x", Language: "unknown"})
	if strings.Join(got, ",") != "content" {
		t.Errorf("tags = %v", got)
	}
}

func TestGenerate_KeywordsAndFrequency(t *testing.T) {
	content := `package main
// The worker reads from a channel inside a goroutine. The worker closes the channel.
func worker(ch chan int) { for v := range ch { process(v) } }
func process(v int) { worker(nil); process(v) }`
	got := New(Options{}).Generate(Input{Section: "main", Content: content, Ext: ".go"})
	has := map[string]bool{}
	for _, tag := range got {
		has[tag] = true
	}
	for _, want := range []string{"go", "main", "channel", "goroutine", "worker", "process"} {
		if !has[want] {
			t.Errorf("missing %q in %v", want, got)
		}
	}
	for _, banned := range []string{"the", "func", "int"} {
		if has[banned] {
			t.Errorf("%q must be excluded: %v", banned, got)
		}
	}
}

func TestFrequent_CapAndTieBreak(t *testing.T) {
	g := New(Options{MaxFrequencyTags: 2})
	got := g.frequent(map[string]int{"zeta": 3, "alpha": 3, "beta": 5, "gamma": 1, "12345": 9, "ab": 9})
	if strings.Join(got, ",") != "beta,alpha" {
		t.Errorf("frequent = %v", got)
	}
}

func TestGenerate_PDFHeuristics(t *testing.T) {
	content := strings.Join([]string{
		"Our experiment on the dataset shows significant gains over the baseline [1], [2], [3].",
		"Let α ≤ β and Σ ≈ ∞ with x ∈ S.",
		"Algorithm 1: input graph, output tree; repeat until convergence.",
	}, "\n")
	got := New(Options{}).Generate(Input{Content: content, Ext: "pdf"})
	joined := "," + strings.Join(got, ",") + ","
	for _, want := range []string{"citations", "math", "algorithm", "research", "dataset"} {
		if !strings.Contains(joined, ","+want+",") {
			t.Errorf("missing %q in %v", want, got)
		}
	}
	if strings.Contains(joined, ",code,") {
		t.Errorf("unexpected code tag in %v", got)
	}

	plain := New(Options{}).Generate(Input{Content: content, Ext: "txt"})
	for _, tag := range plain {
		if tag == "citations" || tag == "math" {
			t.Errorf("PDF heuristics applied to txt: %v", plain)
		}
	}
}

func TestGenerate_Memoized(t *testing.T) {
	// WHAT: Equal inputs are computed once and callers get independent copies.
	// WHY: Overlapping chunks recur across a run; the cache is shared by workers.
	g := New(Options{})
	in := Input{Section: "intro", Content: "repeat repeat words words", Ext: "md"}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			g.Generate(in)
		}()
	}
	wg.Wait()

	first := g.Generate(in)
	first[0] = "mutated"
	second := g.Generate(in)
	if second[0] == "mutated" {
		t.Error("cached slice leaked to caller")
	}
	hits, misses := g.CacheStats()
	if hits+misses != 10 || misses < 1 || hits < 2 {
		t.Errorf("hits=%d misses=%d", hits, misses)
	}

	other := g.Generate(Input{Section: "intro", Content: "repeat repeat words words", Ext: "txt"})
	if strings.Join(other, ",") == strings.Join(second, ",") {
		t.Error("extension must be part of the cache key")
	}
}

func TestCustomStopwords(t *testing.T) {
	in := Input{Content: "widget widget widget gadget gadget"}
	if got := strings.Join(New(Options{}).Generate(in), ","); got != "content,gadget,widget" {
		t.Errorf("tags = %s", got)
	}
	if got := strings.Join(New(Options{CustomStopwords: []string{"Widget"}}).Generate(in), ","); got != "content,gadget" {
		t.Errorf("tags = %s", got)
	}
}

func TestSectionName(t *testing.T) {
	tests := []struct{ in, want string }{
		{"Introduction", "introduction"},
		{"  3.2 -- Results & Discussion ", "3_2_results_discussion"},
		{"Étude Préliminaire", "étude_préliminaire"},
		{"", "content"},
		{"***", "content"},
		{strings.Repeat("a", 80), strings.Repeat("a", 64)},
		{strings.Repeat("ab ", 40), strings.Repeat("ab_", 21) + "a"},
	}
	for _, tt := range tests {
		if got := SectionName(tt.in); got != tt.want {
			t.Errorf("SectionName(%q) = %q, want %q", tt.in, got, tt.want)
		}
		if got := SectionName(tt.in); got != tt.want {
			t.Errorf("cached SectionName(%q) = %q", tt.in, got)
		}
	}
}
