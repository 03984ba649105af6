// Package extract wraps the yt-dlp library behind a small interface so
// the job runner can be exercised in tests without the real binary.
package extract

import "context"

// Progress is one throttleable status event emitted while a download
// runs. Percent, Speed and ETA are preformatted for direct display.
type Progress struct {
	Status  Status
	Percent string
	Speed   string
	ETA     string
}

// Status distinguishes in-flight updates from the terminal one.
type Status string

const (
	StatusDownloading Status = "downloading"
	StatusFinished    Status = "finished"
)

// Request describes one extraction.
type Request struct {
	URL      string
	Selector string
	// AudioOnly requests an audio transcode; AudioExt is the target
	// container extension (e.g. "m4a").
	AudioOnly bool
	AudioExt  string
	// CookiePath, when non-empty and present on disk, is handed to the
	// extractor for authenticated fetches. A vanished file is treated as
	// "no cookie", never as an error.
	CookiePath string
	OutputDir  string
}

// Result is the extraction outcome: where the file landed and what it
// is called.
type Result struct {
	Path  string
	Title string
}

// Extractor produces a local media file for a URL and streams progress
// events while doing so.
type Extractor interface {
	Extract(ctx context.Context, req Request, onProgress func(Progress)) (*Result, error)
}
