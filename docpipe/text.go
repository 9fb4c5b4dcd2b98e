// CLAUDE:SUMMARY Plain text, source code and Markdown engines plus binary sniffing and section-to-text rendering.
package docpipe

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"
)

// textEngine reads UTF-8 text keeping line structure. Invalid UTF-8 is an
// error so the raw engine gets to try legacy encodings.
type textEngine struct{}

func (textEngine) Name() string         { return "text" }
func (textEngine) SupportsTables() bool { return false }
func (textEngine) SupportsOCR() bool    { return false }

func (textEngine) ExtractText(_ context.Context, path string) (*Extraction, error) {
	title, text, err := extractText(path)
	if err != nil {
		return nil, err
	}
	return &Extraction{Title: title, Text: text, Sections: []Section{{Text: text, Type: "paragraph"}}}, nil
}

// extractText extracts content from a plain text file.
func extractText(path string) (string, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", "", err
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if !utf8.Valid(data) {
		return "", "", fmt.Errorf("invalid utf-8")
	}
	text := normalizeLines(string(data))
	return firstLine(text), text, nil
}

type markdownEngine struct{}

func (markdownEngine) Name() string         { return "markdown" }
func (markdownEngine) SupportsTables() bool { return false }
func (markdownEngine) SupportsOCR() bool    { return false }

func (markdownEngine) ExtractText(_ context.Context, path string) (*Extraction, error) {
	_, text, err := extractText(path)
	if err != nil {
		return nil, err
	}
	title, sections := parseMarkdown(text)
	return &Extraction{Title: title, Text: text, Sections: sections}, nil
}

// parseMarkdown extracts structured sections from Markdown text.
// Detects headings (# lines) and splits content into sections.
func parseMarkdown(text string) (string, []Section) {
	lines := strings.Split(text, "\n")
	var sections []Section
	var title string
	var currentText strings.Builder
	inFence := false

	flushParagraph := func() {
		text := strings.TrimSpace(currentText.String())
		if text != "" {
			sections = append(sections, Section{
				Text: text,
				Type: "paragraph",
			})
		}
		currentText.Reset()
	}

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)

		if strings.HasPrefix(trimmed, "```") {
			inFence = !inFence
		}

		// Detect ATX headings: # heading, ## heading, etc.
		if !inFence && strings.HasPrefix(trimmed, "#") {
			flushParagraph()

			level := 0
			for _, ch := range trimmed {
				if ch == '#' {
					level++
				} else {
					break
				}
			}
			if level > 6 {
				level = 6
			}

			headingText := strings.TrimSpace(strings.TrimLeft(trimmed, "#"))
			headingText = strings.TrimRight(headingText, "#")
			headingText = strings.TrimSpace(headingText)

			if headingText != "" {
				if title == "" {
					title = headingText
				}
				sections = append(sections, Section{
					Title: headingText,
					Level: level,
					Text:  headingText,
					Type:  "heading",
				})
			}
			continue
		}

		// Empty line = paragraph break.
		if trimmed == "" && !inFence {
			flushParagraph()
			continue
		}

		if currentText.Len() > 0 {
			currentText.WriteByte('\n')
		}
		currentText.WriteString(line)
	}
	flushParagraph()

	if title == "" && len(sections) > 0 {
		title = firstLine(sections[0].Text)
	}

	return title, sections
}

// sectionsText renders extracted sections as text. Headings become ATX
// lines so structure survives into the single-text representation.
func sectionsText(sections []Section) string {
	var sb strings.Builder
	for _, s := range sections {
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		if s.Type == "heading" {
			level := s.Level
			if level < 1 {
				level = 1
			}
			sb.WriteString(strings.Repeat("#", level))
			sb.WriteByte(' ')
			sb.WriteString(s.Title)
			continue
		}
		sb.WriteString(s.Text)
	}
	return sb.String()
}

// normalizeLines unifies line endings and strips trailing blanks, keeping
// line and paragraph boundaries intact.
func normalizeLines(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " \t\f\v")
	}
	return strings.Trim(strings.Join(lines, "\n"), "\n")
}

func firstLine(text string) string {
	text = strings.TrimLeft(text, " \t\r\n")
	if idx := strings.IndexByte(text, '\n'); idx >= 0 {
		text = text[:idx]
	}
	text = strings.TrimSpace(strings.TrimLeft(text, "# "))
	if len(text) > 200 {
		text = truncateUTF8(text, 200)
	}
	return text
}

func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func isTextual(f Format) bool {
	switch f {
	case FormatTXT, FormatCode, FormatMD, FormatHTML:
		return true
	}
	return false
}

// sniffBinary looks at the first 8 KiB: a NUL byte outside a UTF-16 BOM
// file, or more than 30% control bytes, marks the file binary.
func sniffBinary(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	buf := make([]byte, 8192)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return false, err
	}
	buf = buf[:n]
	if n == 0 {
		return false, nil
	}
	if bytes.HasPrefix(buf, []byte{0xFF, 0xFE}) || bytes.HasPrefix(buf, []byte{0xFE, 0xFF}) {
		return false, nil
	}
	if bytes.IndexByte(buf, 0) >= 0 {
		return true, nil
	}
	ctrl := 0
	for _, b := range buf {
		if b < 0x20 && b != '\n' && b != '\r' && b != '\t' && b != '\f' && b != '\v' && b != 0x1b {
			ctrl++
		}
	}
	return float64(ctrl)/float64(n) > 0.3, nil
}
