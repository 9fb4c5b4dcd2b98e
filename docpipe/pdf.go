// CLAUDE:SUMMARY Primary PDF engine using pdfcpu: page-aware content-stream text, Info metadata and quality scoring.
// CLAUDE:DEPENDS docpipe/quality.go
// CLAUDE:EXPORTS extractPDF
package docpipe

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

type pdfcpuEngine struct {
	maxPages int
}

func (pdfcpuEngine) Name() string         { return "pdfcpu" }
func (pdfcpuEngine) SupportsTables() bool { return false }
func (pdfcpuEngine) SupportsOCR() bool    { return false }

func (e pdfcpuEngine) ExtractText(ctx context.Context, path string) (*Extraction, error) {
	return extractPDF(ctx, path, e.maxPages)
}

// extractPDF extracts text from a PDF file using pdfcpu for structure-aware parsing.
// At most maxPages pages are read. On context expiry the pages read so far are
// returned together with ctx.Err().
func extractPDF(ctx context.Context, path string, maxPages int) (ext *Extraction, err error) {
	defer func() {
		if r := recover(); r != nil {
			ext, err = nil, fmt.Errorf("pdfcpu panic: %v", r)
		}
	}()

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	conf := model.NewDefaultConfiguration()
	pctx, err := api.ReadValidateAndOptimize(f, conf)
	if err != nil {
		return nil, fmt.Errorf("pdfcpu read: %w", err)
	}

	limit := pctx.PageCount
	if maxPages > 0 && limit > maxPages {
		limit = maxPages
	}

	ext = &Extraction{
		PageCount: pctx.PageCount,
		Pages:     make([]string, 0, limit),
		Metadata:  pdfInfo(pctx),
		Truncated: limit < pctx.PageCount,
	}

	var allText strings.Builder
	totalChars := 0

	for pageNr := 1; pageNr <= limit; pageNr++ {
		if err := ctx.Err(); err != nil {
			ext.Text = allText.String()
			return ext, err
		}
		pageText := extractPageText(pctx, pageNr)
		ext.Pages = append(ext.Pages, pageText)
		if pageText == "" {
			continue
		}
		totalChars += len([]rune(pageText))

		if ext.Title == "" {
			ext.Title = firstLine(pageText)
		}
		ext.Sections = append(ext.Sections, Section{
			Text:     pageText,
			Type:     "page",
			Metadata: map[string]string{"page": strconv.Itoa(pageNr)},
		})

		if allText.Len() > 0 {
			allText.WriteString("\n\n")
		}
		allText.WriteString(pageText)
	}

	if t := ext.Metadata["title"]; t != "" {
		ext.Title = t
	}
	ext.Text = allText.String()
	ext.Quality = newQuality(ext.Text, limit, totalChars, detectImageStreams(pctx))

	if len(ext.Sections) == 0 {
		return ext, fmt.Errorf("%w in PDF", ErrNoText)
	}
	return ext, nil
}

func pdfInfo(pctx *model.Context) map[string]string {
	md := map[string]string{"page_count": strconv.Itoa(pctx.PageCount)}
	for k, v := range map[string]string{
		"title":    pctx.Title,
		"author":   pctx.Author,
		"subject":  pctx.Subject,
		"keywords": pctx.Keywords,
		"creator":  pctx.Creator,
		"producer": pctx.Producer,
	} {
		if v = strings.TrimSpace(v); v != "" {
			md[k] = v
		}
	}
	return md
}

// extractPageText extracts text from a single PDF page via pdfcpu content stream.
func extractPageText(ctx *model.Context, pageNr int) string {
	r, err := pdfcpu.ExtractPageContent(ctx, pageNr)
	if err != nil || r == nil {
		return ""
	}
	data, err := io.ReadAll(r)
	if err != nil || len(data) == 0 {
		return ""
	}
	return extractTextFromStream(data)
}

// detectImageStreams checks if the PDF contains image XObjects.
func detectImageStreams(ctx *model.Context) bool {
	if ctx.Optimize != nil {
		for pageNr := 1; pageNr <= ctx.PageCount; pageNr++ {
			objNrs := pdfcpu.ImageObjNrs(ctx, pageNr)
			if len(objNrs) > 0 {
				return true
			}
		}
	}
	// Fallback: scan XRefTable for image subtype objects.
	for _, entry := range ctx.Table {
		if entry == nil || entry.Free || entry.Compressed {
			continue
		}
		sd, ok := entry.Object.(types.StreamDict)
		if !ok {
			continue
		}
		if subtype, found := sd.Find("Subtype"); found {
			if name, isName := subtype.(types.Name); isName && name == "Image" {
				return true
			}
		}
	}
	return false
}

// pdfStringRe matches PDF string literals in parentheses: (text here)
var pdfStringRe = regexp.MustCompile(`\(((?:\\.|[^\\)])*)\)`)

// extractTextFromStream parses PDF content stream operators for text.
// Line breaks are kept: T*, ', ET and any Td/TD with a vertical move end a line.
func extractTextFromStream(data []byte) string {
	var sb strings.Builder

	newline := func() {
		if sb.Len() > 0 {
			sb.WriteByte('\n')
		}
	}

	for _, line := range bytes.Split(data, []byte{'\n'}) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}

		switch {
		// Tj / TJ: (text) Tj, [(text) -100 (more)] TJ
		case bytes.HasSuffix(line, []byte("Tj")), bytes.HasSuffix(line, []byte("TJ")):
			for _, m := range pdfStringRe.FindAllSubmatch(line, -1) {
				sb.WriteString(decodePDFString(m[1]))
			}

		// ' operator (move to next line and show text): (text) '
		case bytes.HasSuffix(line, []byte("'")) && bytes.Contains(line, []byte("(")):
			for _, m := range pdfStringRe.FindAllSubmatch(line, -1) {
				newline()
				sb.WriteString(decodePDFString(m[1]))
			}

		case bytes.HasSuffix(line, []byte("Td")), bytes.HasSuffix(line, []byte("TD")):
			if sb.Len() == 0 {
				continue
			}
			if movesVertically(line) {
				sb.WriteByte('\n')
			} else {
				sb.WriteByte(' ')
			}

		case bytes.Equal(line, []byte("T*")), bytes.Equal(line, []byte("ET")):
			newline()
		}
	}

	return cleanPDFText(sb.String())
}

// movesVertically reports whether a "tx ty Td" line has a non-zero ty.
func movesVertically(line []byte) bool {
	f := strings.Fields(string(line))
	if len(f) < 3 {
		return false
	}
	ty, err := strconv.ParseFloat(f[len(f)-2], 64)
	return err == nil && ty != 0
}

// decodePDFString handles basic PDF escape sequences.
func decodePDFString(raw []byte) string {
	var sb strings.Builder
	for i := 0; i < len(raw); i++ {
		if raw[i] == '\\' && i+1 < len(raw) {
			i++
			switch raw[i] {
			case 'n':
				sb.WriteByte('\n')
			case 'r':
				sb.WriteByte('\r')
			case 't':
				sb.WriteByte('\t')
			case '\\':
				sb.WriteByte('\\')
			case '(':
				sb.WriteByte('(')
			case ')':
				sb.WriteByte(')')
			default:
				// Octal escape (e.g. \040 for space).
				if raw[i] >= '0' && raw[i] <= '7' {
					val := int(raw[i] - '0')
					if i+1 < len(raw) && raw[i+1] >= '0' && raw[i+1] <= '7' {
						i++
						val = val*8 + int(raw[i]-'0')
						if i+1 < len(raw) && raw[i+1] >= '0' && raw[i+1] <= '7' {
							i++
							val = val*8 + int(raw[i]-'0')
						}
					}
					sb.WriteByte(byte(val))
				} else {
					sb.WriteByte(raw[i])
				}
			}
		} else {
			sb.WriteByte(raw[i])
		}
	}
	return sb.String()
}

// cleanPDFText collapses blanks inside lines, drops non-printable runes and
// keeps at most one empty line between text lines.
func cleanPDFText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	var out []string
	blank := 0
	for _, line := range strings.Split(text, "\n") {
		var sb strings.Builder
		prevSpace := false
		for _, r := range line {
			if unicode.IsSpace(r) {
				if !prevSpace && sb.Len() > 0 {
					sb.WriteByte(' ')
					prevSpace = true
				}
			} else if unicode.IsPrint(r) {
				sb.WriteRune(r)
				prevSpace = false
			}
		}
		cleaned := strings.TrimSpace(sb.String())
		if cleaned == "" {
			blank++
			if blank == 1 && len(out) > 0 {
				out = append(out, "")
			}
			continue
		}
		blank = 0
		out = append(out, cleaned)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
