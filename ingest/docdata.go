package ingest

import (
	"path/filepath"
	"strconv"
	"time"

	"github.com/hazyhaar/docflow/chunk"
	"github.com/hazyhaar/docflow/docpipe"
	"github.com/hazyhaar/docflow/tags"
)

// TimeLayout is the lastModified format of DocData.
const TimeLayout = "2006-01-02 15:04:05"

// DocData is the serialized unit: one chunk plus file and document metadata.
type DocData struct {
	SectionName     string          `json:"sectionName"`
	Content         string          `json:"content"`
	FilePath        string          `json:"filePath"`
	FileSize        int64           `json:"fileSize"`
	LastModified    string          `json:"lastModified"`
	Tags            []string        `json:"tags"`
	IsChunked       bool            `json:"isChunked"`
	ContentHash     string          `json:"contentHash"`
	Metadata        map[string]any  `json:"metadata"`
	DocumentType    string          `json:"documentType"`
	Language        string          `json:"language"`
	ChunkIndex      int             `json:"chunkIndex"`
	TotalChunks     int             `json:"totalChunks"`
	ConfidenceScore float64         `json:"confidenceScore"`
	Tables          []docpipe.Table `json:"tables"`
}

// Group is the output entry of one group key.
type Group struct {
	DocsData []DocData     `json:"docsData"`
	Metadata GroupMetadata `json:"metadata"`
}

// GroupMetadata summarizes one group.
type GroupMetadata struct {
	GroupKey      string         `json:"groupKey"`
	FileCount     int            `json:"fileCount"`
	ChunkCount    int            `json:"chunkCount"`
	TotalBytes    int64          `json:"totalBytes"`
	DocumentTypes map[string]int `json:"documentTypes"`
	Files         []string       `json:"files,omitempty"` // summary tier only
	Summary       bool           `json:"summary,omitempty"`
}

func (g *Group) add(r *FileResult) {
	if len(r.Docs) == 0 {
		return
	}
	g.DocsData = append(g.DocsData, r.Docs...)
	g.Metadata.FileCount++
	g.Metadata.ChunkCount += len(r.Docs)
	g.Metadata.TotalBytes += r.Size
	if g.Metadata.DocumentTypes == nil {
		g.Metadata.DocumentTypes = map[string]int{}
	}
	g.Metadata.DocumentTypes[r.Docs[0].DocumentType]++
}

// fileInfo is the file-level part shared by every DocData of a file.
type fileInfo struct {
	path    string
	size    int64
	modTime time.Time
}

// buildDocData turns chunks into DocData. Tables are attached to the lead
// chunk only: the one whose content fingerprint equals the document's.
func buildDocData(doc *docpipe.Document, chunks []chunk.Chunk, fi fileInfo, tg *tags.Generator, partial bool) []DocData {
	ext := filepath.Ext(fi.path)
	modified := fi.modTime.Format(TimeLayout)
	lead := false

	out := make([]DocData, 0, len(chunks))
	for _, c := range chunks {
		title := ""
		if len(c.SectionTitles) > 0 {
			title = c.SectionTitles[0]
		}
		section := sectionName(c, title)
		hash := docpipe.Fingerprint(c.Content)

		md := map[string]any{
			"chunkType":         string(c.Type),
			"chunkHash":         hash,
			"method":            doc.Method,
			"format":            string(doc.Format),
			"pageCount":         doc.PageCount,
			"title":             doc.Title,
			"hasScannedContent": doc.Scanned,
			"ocrApplied":        doc.OCRApplied,
			"overlap":           c.Overlap,
		}
		if len(c.SectionTitles) > 0 {
			md["sectionTitles"] = c.SectionTitles
		}
		if c.Type == chunk.TypeTable {
			md["tableIndex"] = c.TableIndex
			if c.TablePage > 0 {
				md["tablePage"] = c.TablePage
			}
		}
		if c.Backup {
			md["backup"] = true
		}
		if doc.OCRApplied {
			md["ocrPages"] = doc.OCRPages
			md["ocrSkippedPages"] = doc.OCRSkippedPages
			md["medianConfidence"] = doc.MedianConfidence
		}
		if len(doc.Warnings) > 0 {
			md["warnings"] = doc.Warnings
		}
		if partial {
			md["partial"] = true
		}
		for k, v := range doc.Metadata {
			if _, taken := md[k]; !taken {
				md[k] = v
			}
		}

		tables := []docpipe.Table{}
		if !lead && c.Type == chunk.TypeFullContent && hash == doc.Fingerprint {
			lead = true
			if len(doc.Tables) > 0 {
				tables = doc.Tables
			}
		}

		out = append(out, DocData{
			SectionName:  section,
			Content:      c.Content,
			FilePath:     fi.path,
			FileSize:     fi.size,
			LastModified: modified,
			Tags: tg.Generate(tags.Input{
				Section:  title,
				Content:  c.Content,
				Ext:      ext,
				DocType:  doc.Type,
				Language: doc.Language,
			}),
			IsChunked:       c.Total > 1,
			ContentHash:     doc.Fingerprint,
			Metadata:        md,
			DocumentType:    string(doc.Type),
			Language:        doc.Language,
			ChunkIndex:      c.Index,
			TotalChunks:     c.Total,
			ConfidenceScore: doc.Confidence,
			Tables:          tables,
		})
	}
	return out
}

func sectionName(c chunk.Chunk, title string) string {
	switch {
	case title != "":
		return tags.SectionName(title)
	case c.Type == chunk.TypeTable:
		return "table_" + strconv.Itoa(c.TableIndex+1)
	}
	return string(c.Type)
}
