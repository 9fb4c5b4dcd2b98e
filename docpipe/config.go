// CLAUDE:SUMMARY Configuration struct and defaults for the docpipe document extraction pipeline.
package docpipe

import "log/slog"

// Config configures the document pipeline.
type Config struct {
	// MaxFileSize is the maximum file size to process (default: 100 MB).
	MaxFileSize int64 `json:"max_file_size" yaml:"max_file_size"`

	// MaxPages caps how many PDF pages are extracted. Longer documents are
	// truncated to their leading pages and carry a warning (default: 1000).
	MaxPages int `json:"max_pages" yaml:"max_pages"`

	// MinContentChars is the stripped length a PDF engine result must reach
	// to be accepted (default: 50). Text formats only need non-empty output.
	MinContentChars int `json:"min_content_chars" yaml:"min_content_chars"`

	// Logger for debug/error messages.
	Logger *slog.Logger `json:"-" yaml:"-"`
}

func (c *Config) defaults() {
	if c.MaxFileSize <= 0 {
		c.MaxFileSize = 100 * 1024 * 1024
	}
	if c.MaxPages <= 0 {
		c.MaxPages = 1000
	}
	if c.MinContentChars <= 0 {
		c.MinContentChars = 50
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}
