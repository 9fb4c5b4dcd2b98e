package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hazyhaar/docflow/chunk"
	"github.com/hazyhaar/docflow/docpipe"
	"github.com/hazyhaar/docflow/ocr"
)

func textPDF(pages int) *docpipe.Extraction {
	var texts []string
	for i := 1; i <= pages; i++ {
		texts = append(texts, fmt.Sprintf("Section %d Findings\n\n%s %s", i, prose, prose))
	}
	return &docpipe.Extraction{Text: strings.Join(texts, "\n\n"), Pages: texts, PageCount: pages}
}

func staticPDF(ext *docpipe.Extraction) docpipe.Option {
	return docpipe.WithEngines(docpipe.FormatPDF, engineFunc{name: "pdfcpu",
		fn: func(context.Context, string) (*docpipe.Extraction, error) { return ext, nil }})
}

func TestProcessPDF_TextPDF(t *testing.T) {
	// WHAT: A 10-page text PDF is not a scan, skips OCR and yields one full_content plus structured chunks.
	// WHY: Embedded text is authoritative; OCR would only add cost and noise.
	dir := t.TempDir()
	path := filepath.Join(dir, "report.pdf")
	writeTree(t, dir, map[string]string{"report.pdf": "%PDF-1.4"})

	cfg := testConfig()
	cfg.Chunk = chunk.Options{MaxChunkSize: 600, Overlap: 50}
	o := &fakeOCR{}
	p := newProcessor(t, cfg, WithOCR(o), WithPipelineOptions(staticPDF(textPDF(10))))

	res := p.ProcessPDF(context.Background(), path)
	if res.Status != StatusSuccess {
		t.Fatalf("status = %s (%s)", res.Status, res.Message)
	}
	if o.calls != 0 {
		t.Errorf("ocr invoked %d times", o.calls)
	}
	full, structured := 0, 0
	for _, d := range res.DocsData {
		switch d.Metadata["chunkType"] {
		case string(chunk.TypeFullContent):
			full++
		case string(chunk.TypeStructured):
			structured++
		default:
			t.Errorf("unexpected chunk type %v", d.Metadata["chunkType"])
		}
		if d.DocumentType == string(docpipe.TypeScan) {
			t.Error("text pdf classified as scan")
		}
	}
	if full != 1 || structured < 2 {
		t.Errorf("full=%d structured=%d", full, structured)
	}
	if res.Metadata["pageCount"] != 10 {
		t.Errorf("pageCount = %v", res.Metadata["pageCount"])
	}
}

func TestProcessPDF_ScannedPDF(t *testing.T) {
	// WHAT: A fully scanned PDF goes through OCR and is flagged as scanned.
	// WHY: Image-only pages carry no embedded text.
	dir := t.TempDir()
	path := filepath.Join(dir, "scan.pdf")
	writeTree(t, dir, map[string]string{"scan.pdf": "%PDF-1.4"})

	page := prose + " " + prose
	o := &fakeOCR{res: &ocr.Result{
		Text: page + "\n\n" + page + "\n\n" + page,
		Pages: []ocr.PageResult{
			{Page: 1, State: ocr.StateOCR, Text: page, Confidence: 91},
			{Page: 2, State: ocr.StateOCR, Text: page, Confidence: 84},
			{Page: 3, State: ocr.StateOCR, Text: page, Confidence: 88},
		},
		OCRPages: 3, ScannedPages: 3, MeanConfidence: 87.67, MedianConfidence: 88,
		Method: ocr.MethodOCR, Success: true,
	}}
	empty := &docpipe.Extraction{PageCount: 3, Pages: []string{"", "", ""}}
	p := newProcessor(t, testConfig(), WithOCR(o), WithPipelineOptions(staticPDF(empty)))

	res := p.ProcessPDF(context.Background(), path)
	if res.Status != StatusSuccess {
		t.Fatalf("status = %s (%s)", res.Status, res.Message)
	}
	if o.calls != 1 {
		t.Fatalf("ocr calls = %d", o.calls)
	}
	lead := res.DocsData[0]
	if lead.Metadata["ocrApplied"] != true || lead.Metadata["hasScannedContent"] != true {
		t.Errorf("metadata = %v", lead.Metadata)
	}
	if lead.ConfidenceScore < 0 || lead.ConfidenceScore > 100 {
		t.Errorf("confidence = %v", lead.ConfidenceScore)
	}
	if lead.DocumentType != string(docpipe.TypeScan) {
		t.Errorf("type = %s", lead.DocumentType)
	}
}

func TestProcessPDF_TotalFailure(t *testing.T) {
	// WHAT: When every engine fails the result is an error with a message and no chunks.
	// WHY: Callers branch on status; partial garbage must never be emitted.
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.pdf")
	writeTree(t, dir, map[string]string{"broken.pdf": "%PDF-1.4 junk"})

	failing := docpipe.WithEngines(docpipe.FormatPDF, engineFunc{name: "pdfcpu",
		fn: func(context.Context, string) (*docpipe.Extraction, error) {
			return nil, fmt.Errorf("malformed xref table")
		}})
	p := newProcessor(t, testConfig(), WithPipelineOptions(failing))

	res := p.ProcessPDF(context.Background(), path)
	if res.Status != StatusError {
		t.Fatalf("status = %s", res.Status)
	}
	if !strings.Contains(res.Message, "malformed xref table") {
		t.Errorf("message = %q", res.Message)
	}
	if len(res.DocsData) != 0 {
		t.Errorf("docs = %d", len(res.DocsData))
	}
}

func TestProcessPDF_NotPDF(t *testing.T) {
	p := newProcessor(t, testConfig())
	res := p.ProcessPDF(context.Background(), "notes.txt")
	if res.Status != StatusError || res.DocsData == nil {
		t.Errorf("res = %+v", res)
	}
}

func TestProcessPDF_CancelledMidway(t *testing.T) {
	// WHAT: Cancelling during analysis returns status cancelled and progress stops there.
	// WHY: Cancellation is a distinct outcome, not an error, and no later stage may report.
	dir := t.TempDir()
	path := filepath.Join(dir, "long.pdf")
	writeTree(t, dir, map[string]string{"long.pdf": "%PDF-1.4"})

	sig := NewCancellations()
	var steps []string
	progress := func(current, total int, stage string) {
		steps = append(steps, stage)
		if stage == "analyze" {
			sig.Cancel()
		}
	}
	p := newProcessor(t, testConfig(), WithCancellation(sig), WithProgress(progress),
		WithPipelineOptions(staticPDF(textPDF(3))))

	res := p.ProcessPDF(context.Background(), path)
	if res.Status != StatusCancelled {
		t.Fatalf("status = %s", res.Status)
	}
	if got := strings.Join(steps, ","); got != "extract,analyze" {
		t.Errorf("progress stages = %s", got)
	}
	if len(res.DocsData) != 0 {
		t.Errorf("cancelled file produced %d docs", len(res.DocsData))
	}
}

func TestProcessFile_TimeoutKeepsPartial(t *testing.T) {
	// WHAT: Exceeding the file deadline yields a timeout with the text extracted so far.
	// WHY: Slow documents must not lose work already done.
	dir := t.TempDir()
	path := filepath.Join(dir, "slow.pdf")
	writeTree(t, dir, map[string]string{"slow.pdf": "%PDF-1.4"})

	slow := docpipe.WithEngines(docpipe.FormatPDF, engineFunc{name: "pdfcpu",
		fn: func(ctx context.Context, _ string) (*docpipe.Extraction, error) {
			<-ctx.Done()
			return &docpipe.Extraction{Text: "first page text", PageCount: 4}, ctx.Err()
		}})
	cfg := testConfig()
	cfg.FileTimeout = 50 * time.Millisecond
	p := newProcessor(t, cfg, WithPipelineOptions(slow))

	r := p.ProcessFile(context.Background(), dir, path)
	if r.Status != StatusTimeout || r.Failure == nil || r.Failure.Kind != FailTimeout {
		t.Fatalf("status = %s failure = %v", r.Status, r.Failure)
	}
	if !r.Partial || len(r.Docs) != 1 || r.Docs[0].Content != "first page text" {
		t.Fatalf("partial = %v docs = %+v", r.Partial, r.Docs)
	}
	if r.Docs[0].Metadata["partial"] != true {
		t.Error("partial doc not marked")
	}
	if r.Stats.ErrorFiles != 1 || r.Stats.TimeoutFiles != 1 || r.Stats.TotalFiles != 1 {
		t.Errorf("stats = %+v", r.Stats)
	}
}

func TestProcessFile_Outcomes(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{
		"lib/notes.txt":  prose,
		"lib/blob.txt":   "abc\x00\x00\x01def",
		"lib/empty.txt":  "",
		"lib/legacy.xyz": "whatever",
	})
	p := newProcessor(t, testConfig())

	tests := []struct {
		name   string
		status Status
		kind   FailureKind
	}{
		{"lib/notes.txt", StatusSuccess, ""},
		{"lib/blob.txt", StatusSkipped, FailBinary},
		{"lib/empty.txt", StatusError, FailExtraction},
		{"lib/legacy.xyz", StatusSkipped, FailFiltered},
		{"lib/missing.txt", StatusSkipped, FailMetadata},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := p.ProcessFile(context.Background(), dir, filepath.Join(dir, tt.name))
			if r.Status != tt.status {
				t.Fatalf("status = %s, want %s (%v)", r.Status, tt.status, r.Failure)
			}
			if tt.kind != "" && (r.Failure == nil || r.Failure.Kind != tt.kind) {
				t.Errorf("failure = %v, want %s", r.Failure, tt.kind)
			}
			if r.GroupKey != "lib" {
				t.Errorf("group = %q", r.GroupKey)
			}
			st := r.Stats
			if st.TotalFiles != 1 || st.ProcessedFiles+st.SkippedFiles+st.ErrorFiles != 1 {
				t.Errorf("stats = %+v", st)
			}
		})
	}
}

func TestProcessFile_DocData(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{"a/notes.md": "# Budget\n\n" + prose + "\n\n# Travel\n\n" + prose})
	path := filepath.Join(dir, "a", "notes.md")
	mod := time.Date(2024, 3, 9, 14, 5, 7, 0, time.Local)
	if err := os.Chtimes(path, mod, mod); err != nil {
		t.Fatal(err)
	}
	p := newProcessor(t, testConfig())

	r := p.ProcessFile(context.Background(), dir, path)
	if r.Status != StatusSuccess || len(r.Docs) < 2 {
		t.Fatalf("status = %s docs = %d", r.Status, len(r.Docs))
	}
	for i, d := range r.Docs {
		if d.ChunkIndex != i || d.TotalChunks != len(r.Docs) {
			t.Errorf("doc %d: index %d/%d", i, d.ChunkIndex, d.TotalChunks)
		}
		if d.LastModified != "2024-03-09 14:05:07" {
			t.Errorf("lastModified = %q", d.LastModified)
		}
		if d.ContentHash != r.Docs[0].ContentHash {
			t.Error("contentHash differs between chunks of one file")
		}
		if d.Tables == nil {
			t.Error("tables must serialize as []")
		}
		if len(d.Tags) == 0 {
			t.Error("no tags")
		}
	}
	if r.Docs[0].Content != "# Budget\n\n"+prose+"\n\n# Travel\n\n"+prose {
		t.Error("full_content chunk is not the verbatim text")
	}
}
