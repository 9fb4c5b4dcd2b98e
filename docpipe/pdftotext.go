// CLAUDE:SUMMARY Secondary PDF engine backed by docconv (poppler pdftotext + pdfinfo); registered only when pdftotext is on PATH.
package docpipe

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"code.sajari.com/docconv"
)

type pdftotextEngine struct {
	maxPages int
}

func (pdftotextEngine) Name() string         { return "pdftotext" }
func (pdftotextEngine) SupportsTables() bool { return false }
func (pdftotextEngine) SupportsOCR() bool    { return false }

func (e pdftotextEngine) ExtractText(ctx context.Context, path string) (*Extraction, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	type converted struct {
		res *docconv.Response
		err error
	}
	done := make(chan converted, 1)
	go func() {
		res, err := docconv.Convert(f, "application/pdf", false)
		done <- converted{res, err}
	}()

	var c converted
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case c = <-done:
	}
	if c.err != nil {
		return nil, fmt.Errorf("docconv: %w", c.err)
	}
	if c.res == nil {
		return nil, fmt.Errorf("docconv: empty response")
	}

	ext := &Extraction{Metadata: map[string]string{}}
	for k, v := range c.res.Meta {
		if v = strings.TrimSpace(v); v != "" {
			ext.Metadata[strings.ToLower(strings.ReplaceAll(k, " ", "_"))] = v
		}
	}
	if n, err := strconv.Atoi(ext.Metadata["pages"]); err == nil {
		ext.PageCount = n
	}

	// docconv runs pdftotext with -nopgbrk, so the body has no page
	// boundaries and Pages stays empty.
	ext.Text, ext.Truncated = leadingWindow(cleanPDFText(c.res.Body), ext.PageCount, e.maxPages)
	ext.Title = ext.Metadata["title"]
	if ext.Title == "" {
		ext.Title = firstLine(ext.Text)
	}
	return ext, nil
}

// leadingWindow keeps the share of text covered by the first maxPages of
// pageCount pages.
func leadingWindow(text string, pageCount, maxPages int) (string, bool) {
	if maxPages <= 0 || pageCount <= maxPages {
		return text, false
	}
	runes := []rune(text)
	return string(runes[:len(runes)*maxPages/pageCount]), true
}
