package ingest

import "time"

// Stats are run counters. A worker owns the Stats of the file it
// processes; the orchestrator merges them after the file completes.
type Stats struct {
	TotalFiles     int `json:"totalFiles"`
	ProcessedFiles int `json:"processedFiles"`
	SkippedFiles   int `json:"skippedFiles"`
	ErrorFiles     int `json:"errorFiles"`

	// Subsets of the three counters above.
	CachedFiles    int `json:"cachedFiles"`
	CancelledFiles int `json:"cancelledFiles"`
	TimeoutFiles   int `json:"timeoutFiles"`
	PartialFiles   int `json:"partialFiles"`

	TotalBytes  int64 `json:"totalBytes"`
	TotalChunks int   `json:"totalChunks"`
	Tables      int   `json:"tables"`
	References  int   `json:"references"`

	OCRFiles     int `json:"ocrFiles"`
	OCRPages     int `json:"ocrPages"`
	ScannedFiles int `json:"scannedFiles"`

	DocumentTypes map[string]int `json:"documentTypes"`
	FailureKinds  map[string]int `json:"failureKinds"`

	MemoryGuardTrips int `json:"memoryGuardTrips"`

	StartTime       time.Time `json:"startTime"`
	EndTime         time.Time `json:"endTime"`
	DurationSeconds float64   `json:"durationSeconds"`
}

// Merge adds o into s.
func (s *Stats) Merge(o Stats) {
	s.TotalFiles += o.TotalFiles
	s.ProcessedFiles += o.ProcessedFiles
	s.SkippedFiles += o.SkippedFiles
	s.ErrorFiles += o.ErrorFiles
	s.CachedFiles += o.CachedFiles
	s.CancelledFiles += o.CancelledFiles
	s.TimeoutFiles += o.TimeoutFiles
	s.PartialFiles += o.PartialFiles
	s.TotalBytes += o.TotalBytes
	s.TotalChunks += o.TotalChunks
	s.Tables += o.Tables
	s.References += o.References
	s.OCRFiles += o.OCRFiles
	s.OCRPages += o.OCRPages
	s.ScannedFiles += o.ScannedFiles
	s.MemoryGuardTrips += o.MemoryGuardTrips
	s.DocumentTypes = addCounts(s.DocumentTypes, o.DocumentTypes)
	s.FailureKinds = addCounts(s.FailureKinds, o.FailureKinds)
}

func addCounts(dst, src map[string]int) map[string]int {
	if len(src) == 0 {
		return dst
	}
	if dst == nil {
		dst = make(map[string]int, len(src))
	}
	for k, v := range src {
		dst[k] += v
	}
	return dst
}

// count records the file outcome of r into its own Stats.
func (r *FileResult) count() {
	st := &r.Stats
	st.TotalFiles = 1
	switch r.Status {
	case StatusSuccess:
		st.ProcessedFiles = 1
	case StatusSkipped:
		st.SkippedFiles = 1
	case StatusCancelled:
		st.SkippedFiles = 1
		st.CancelledFiles = 1
	case StatusTimeout:
		st.ErrorFiles = 1
		st.TimeoutFiles = 1
	default:
		st.ErrorFiles = 1
	}
	if r.Partial {
		st.PartialFiles = 1
	}
	if r.Failure != nil {
		if r.Failure.Kind == FailUnchanged {
			st.CachedFiles = 1
		}
		st.FailureKinds = map[string]int{string(r.Failure.Kind): 1}
	}
}

// Metrics flattens the counters for the diagnostics store.
func (s *Stats) Metrics() map[string]float64 {
	m := map[string]float64{
		"total_files":        float64(s.TotalFiles),
		"processed_files":    float64(s.ProcessedFiles),
		"skipped_files":      float64(s.SkippedFiles),
		"error_files":        float64(s.ErrorFiles),
		"cached_files":       float64(s.CachedFiles),
		"cancelled_files":    float64(s.CancelledFiles),
		"timeout_files":      float64(s.TimeoutFiles),
		"total_bytes":        float64(s.TotalBytes),
		"total_chunks":       float64(s.TotalChunks),
		"tables":             float64(s.Tables),
		"references":         float64(s.References),
		"ocr_files":          float64(s.OCRFiles),
		"ocr_pages":          float64(s.OCRPages),
		"scanned_files":      float64(s.ScannedFiles),
		"memory_guard_trips": float64(s.MemoryGuardTrips),
		"duration_seconds":   s.DurationSeconds,
	}
	for k, v := range s.DocumentTypes {
		m["doctype_"+k] = float64(v)
	}
	return m
}
