package extract

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/lrstanley/go-ytdlp"
)

// progressFlushInterval is how often the yt-dlp library surfaces raw
// progress updates; the user-facing throttle lives in the job runner.
const progressFlushInterval = 500 * time.Millisecond

// Service runs extractions through the go-ytdlp command wrapper.
type Service struct{}

// NewService returns the yt-dlp backed extractor.
func NewService() *Service {
	return &Service{}
}

// Install makes sure a yt-dlp binary is available, downloading one on
// first start if the host has none.
func Install(ctx context.Context) error {
	if _, err := ytdlp.Install(ctx, nil); err != nil {
		return fmt.Errorf("install yt-dlp: %w", err)
	}
	return nil
}

// Extract downloads a single item for req.URL into req.OutputDir and
// reports the final path and title.
func (s *Service) Extract(ctx context.Context, req Request, onProgress func(Progress)) (*Result, error) {
	dl := ytdlp.New().
		Format(req.Selector).
		NoPlaylist().
		ForceOverwrites().
		RestrictFilenames().
		Output(req.OutputDir + "/%(title)s.%(ext)s")

	if req.AudioOnly {
		dl = dl.ExtractAudio().AudioFormat(req.AudioExt)
	}
	if req.CookiePath != "" {
		// The cookie file may be swept between dispatch and here; a
		// missing file downgrades to an anonymous fetch.
		if _, err := os.Stat(req.CookiePath); err == nil {
			dl = dl.Cookies(req.CookiePath)
		}
	}

	if onProgress != nil {
		dl.ProgressFunc(progressFlushInterval, func(update ytdlp.ProgressUpdate) {
			onProgress(translateProgress(update))
		})
	}

	result, err := dl.Run(ctx, req.URL)
	if err != nil {
		return nil, fmt.Errorf("yt-dlp: %w", err)
	}

	out := &Result{}
	info, err := result.GetExtractedInfo()
	if err == nil && len(info) > 0 {
		if info[0].Filename != nil {
			out.Path = *info[0].Filename
		}
		if info[0].Title != nil {
			out.Title = *info[0].Title
		}
	}
	if out.Path == "" {
		return nil, fmt.Errorf("yt-dlp reported no output file for %s", req.URL)
	}
	return out, nil
}

// translateProgress converts a raw yt-dlp update into the display-ready
// event shape consumed by the job runner.
func translateProgress(update ytdlp.ProgressUpdate) Progress {
	p := Progress{Status: StatusDownloading, Percent: "0.0%", Speed: "N/A", ETA: "N/A"}
	if update.Status == ytdlp.ProgressStatusFinished {
		p.Status = StatusFinished
	}

	if update.TotalBytes > 0 {
		percent := float64(update.DownloadedBytes) / float64(update.TotalBytes) * 100
		p.Percent = fmt.Sprintf("%.1f%%", percent)
	}
	if !update.Started.IsZero() {
		elapsed := time.Since(update.Started)
		if elapsed.Seconds() > 0 {
			bytesPerSecond := float64(update.DownloadedBytes) / elapsed.Seconds()
			p.Speed = fmt.Sprintf("%.1fMB/s", bytesPerSecond/1024/1024)
		}
	}
	if eta := update.ETA(); eta > 0 {
		p.ETA = eta.Round(time.Second).String()
	}
	return p
}
