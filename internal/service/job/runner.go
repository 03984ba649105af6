// Package job drives one download-and-deliver operation end to end:
// extraction, throttled progress edits, the size-ceiling check, delivery
// and guaranteed cleanup of the ephemeral output file.
package job

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/grabtube/grabtube/internal/extract"
	"github.com/grabtube/grabtube/internal/model/format"
	"github.com/grabtube/grabtube/internal/telegram"
)

// maxErrorLen bounds the diagnostic text shown to the user.
const maxErrorLen = 1000

// defaultProgressInterval is the minimum spacing between progress edits,
// keeping each job under the messaging channel's edit-rate limit.
const defaultProgressInterval = 2 * time.Second

// Job is the value copy handed over by the conversation state machine.
// The runner never touches the session store.
type Job struct {
	ID     string
	UserID int64
	ChatID int64
	// StatusMessageID is the bot message progress edits land on.
	StatusMessageID int
	URL             string
	Format          format.Format
	// CookiePath is empty for anonymous downloads. The file, when set,
	// belongs to the cookie jar and is never removed by the runner.
	CookiePath string
}

// Runner executes jobs. Safe for concurrent use; each Run call is an
// independent unit of work.
type Runner struct {
	extractor        extract.Extractor
	messenger        telegram.Messenger
	downloadDir      string
	limitBytes       int64
	progressInterval time.Duration
	now              func() time.Time
}

// NewRunner wires a Runner against the extraction and messaging
// capabilities. limitMB is the delivery ceiling in megabytes.
func NewRunner(extractor extract.Extractor, messenger telegram.Messenger, downloadDir string, limitMB int64) *Runner {
	return &Runner{
		extractor:        extractor,
		messenger:        messenger,
		downloadDir:      downloadDir,
		limitBytes:       limitMB * 1024 * 1024,
		progressInterval: defaultProgressInterval,
		now:              time.Now,
	}
}

// Run performs the whole pipeline for one job. Every failure is caught
// here, logged and reported to the user; nothing propagates to the
// caller. The downloaded file, if one was produced, is removed on every
// exit path.
func (r *Runner) Run(ctx context.Context, j Job) {
	log.Printf("[job %s] start url=%s format=%s cookie=%t", j.ID, j.URL, j.Format.Key, j.CookiePath != "")

	var outputPath string
	defer func() {
		r.cleanup(j.ID, outputPath)
	}()

	result, err := r.extractor.Extract(ctx, extract.Request{
		URL:        j.URL,
		Selector:   j.Format.Selector,
		AudioOnly:  j.Format.AudioOnly,
		AudioExt:   j.Format.AudioExt,
		CookiePath: j.CookiePath,
		OutputDir:  r.downloadDir,
	}, r.progressSink(j))
	if err != nil {
		log.Printf("[job %s] extraction failed: %v", j.ID, err)
		r.report(j, "❌ Download failed: "+truncate(err.Error(), maxErrorLen))
		return
	}

	// Audio post-processing rewrites the container; measure the file
	// that actually exists afterwards.
	outputPath = result.Path
	if j.Format.AudioOnly {
		outputPath = replaceExt(outputPath, j.Format.AudioExt)
	}

	info, err := os.Stat(outputPath)
	if err != nil {
		log.Printf("[job %s] output missing at %s: %v", j.ID, outputPath, err)
		r.report(j, "❌ Download failed: output file not found.")
		return
	}

	if info.Size() > r.limitBytes {
		sizeMB := float64(info.Size()) / 1024 / 1024
		limitMB := r.limitBytes / 1024 / 1024
		log.Printf("[job %s] oversize artifact: %.2fMB > %dMB", j.ID, sizeMB, limitMB)
		r.report(j, fmt.Sprintf("❌ File is too large (%.2f MB). The limit is %d MB.", sizeMB, limitMB))
		return
	}

	r.editStatus(j, "📤 Uploading to Telegram...")

	if j.Format.AudioOnly {
		err = r.messenger.SendAudio(j.ChatID, outputPath, result.Title)
	} else {
		err = r.messenger.SendDocument(j.ChatID, outputPath, result.Title)
	}
	if err != nil {
		log.Printf("[job %s] delivery failed: %v", j.ID, err)
		r.report(j, "❌ Failed to deliver the file: "+truncate(err.Error(), maxErrorLen))
		return
	}

	log.Printf("[job %s] delivered %s (%.2fMB)", j.ID, outputPath, float64(info.Size())/1024/1024)
}

// progressSink forwards extraction progress to the status message, at
// most once per progressInterval. Delivery is best-effort: a dropped
// final "downloading" event or a failed edit never affects the job.
func (r *Runner) progressSink(j Job) func(extract.Progress) {
	var lastEdit time.Time
	return func(p extract.Progress) {
		if p.Status == extract.StatusFinished {
			r.editStatus(j, "✅ Download complete. Post-processing...")
			return
		}
		now := r.now()
		if now.Sub(lastEdit) < r.progressInterval {
			return
		}
		lastEdit = now
		r.editStatus(j, fmt.Sprintf("⏳ Downloading...\n\n- Progress: %s\n- Speed: %s\n- ETA: %s", p.Percent, p.Speed, p.ETA))
	}
}

// editStatus edits the job's status message, swallowing failures such as
// "message is not modified".
func (r *Runner) editStatus(j Job, text string) {
	if err := r.messenger.EditMessage(j.ChatID, j.StatusMessageID, text); err != nil {
		log.Printf("[job %s] status edit failed: %v", j.ID, err)
	}
}

// report surfaces a terminal error to the user, preferring an in-place
// edit of the status message and falling back to a fresh message.
func (r *Runner) report(j Job, text string) {
	if err := r.messenger.EditMessage(j.ChatID, j.StatusMessageID, text); err != nil {
		if _, err := r.messenger.SendMessage(j.ChatID, text); err != nil {
			log.Printf("[job %s] failed to report error to user: %v", j.ID, err)
		}
	}
}

// cleanup removes the ephemeral download artifact. Cookie files are
// persistent and never touched here. Failures are logged only.
func (r *Runner) cleanup(jobID, path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Printf("[job %s] cleanup failed for %s: %v", jobID, path, err)
		}
		return
	}
	log.Printf("[job %s] removed %s", jobID, path)
}

// replaceExt swaps the file extension for the post-processed one.
func replaceExt(path, ext string) string {
	if i := strings.LastIndexByte(path, '.'); i > strings.LastIndexByte(path, '/') {
		return path[:i+1] + ext
	}
	return path + "." + ext
}

// truncate bounds a diagnostic string to n runes.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
