package job

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grabtube/grabtube/internal/extract"
	"github.com/grabtube/grabtube/internal/model/format"
)

// fakeExtractor pretends to download by writing writeName into the
// requested output directory, while reporting reportName as the final
// path (post-processing may rename the real output).
type fakeExtractor struct {
	writeName  string
	reportName string
	size       int
	title      string
	err        error
	progress   []extract.Progress
	gotReq     extract.Request
}

func (f *fakeExtractor) Extract(_ context.Context, req extract.Request, onProgress func(extract.Progress)) (*extract.Result, error) {
	f.gotReq = req
	for _, p := range f.progress {
		if onProgress != nil {
			onProgress(p)
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.writeName != "" {
		path := filepath.Join(req.OutputDir, f.writeName)
		if err := os.WriteFile(path, make([]byte, f.size), 0o644); err != nil {
			return nil, err
		}
	}
	reported := f.reportName
	if reported == "" {
		reported = f.writeName
	}
	return &extract.Result{Path: filepath.Join(req.OutputDir, reported), Title: f.title}, nil
}

type fakeMessenger struct {
	mu       sync.Mutex
	edits    []string
	messages []string
	docs     []string
	audios   []string
	captions []string
	docErr   error
	editErr  error
}

func (f *fakeMessenger) SendMessage(_ int64, text string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, text)
	return len(f.messages), nil
}

func (f *fakeMessenger) SendKeyboard(_ int64, text string, _ tgbotapi.InlineKeyboardMarkup) (int, error) {
	return f.SendMessage(0, text)
}

func (f *fakeMessenger) EditMessage(_ int64, _ int, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.editErr != nil {
		return f.editErr
	}
	f.edits = append(f.edits, text)
	return nil
}

func (f *fakeMessenger) EditKeyboard(chatID int64, messageID int, text string, _ tgbotapi.InlineKeyboardMarkup) error {
	return f.EditMessage(chatID, messageID, text)
}

func (f *fakeMessenger) SendDocument(_ int64, path, caption string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.docErr != nil {
		return f.docErr
	}
	f.docs = append(f.docs, path)
	f.captions = append(f.captions, caption)
	return nil
}

func (f *fakeMessenger) SendAudio(_ int64, path, caption string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.audios = append(f.audios, path)
	f.captions = append(f.captions, caption)
	return nil
}

func (f *fakeMessenger) AnswerCallback(_, _ string, _ bool) error { return nil }

func (f *fakeMessenger) DownloadFile(string) ([]byte, error) { return nil, nil }

func newTestRunner(fe *fakeExtractor, fm *fakeMessenger, dir string, limitBytes int64) *Runner {
	return &Runner{
		extractor:        fe,
		messenger:        fm,
		downloadDir:      dir,
		limitBytes:       limitBytes,
		progressInterval: 2 * time.Second,
		now:              time.Now,
	}
}

func testJob(f format.Format) Job {
	return Job{ID: "t1", UserID: 5, ChatID: 10, StatusMessageID: 3, URL: "https://x/y", Format: f}
}

func TestRunDeliversDocumentAndCleansUp(t *testing.T) {
	dir := t.TempDir()
	fe := &fakeExtractor{writeName: "clip.mp4", size: 64, title: "Clip"}
	fm := &fakeMessenger{}
	r := newTestRunner(fe, fm, dir, 1024)

	r.Run(context.Background(), testJob(format.Format{Key: "best", Selector: "best"}))

	require.Len(t, fm.docs, 1)
	assert.Equal(t, filepath.Join(dir, "clip.mp4"), fm.docs[0])
	assert.Equal(t, []string{"Clip"}, fm.captions)
	assert.NoFileExists(t, filepath.Join(dir, "clip.mp4"), "download artifact must be removed after delivery")
}

func TestRunOversizeNeverReachesTransfer(t *testing.T) {
	dir := t.TempDir()
	fe := &fakeExtractor{writeName: "huge.mp4", size: 2048, title: "Huge"}
	fm := &fakeMessenger{}
	r := newTestRunner(fe, fm, dir, 1024)

	r.Run(context.Background(), testJob(format.Format{Key: "best", Selector: "best"}))

	assert.Empty(t, fm.docs, "oversize artifact must not be transferred")
	assert.Empty(t, fm.audios)
	require.NotEmpty(t, fm.edits)
	assert.Contains(t, fm.edits[len(fm.edits)-1], "too large")
	assert.NoFileExists(t, filepath.Join(dir, "huge.mp4"), "oversize artifact must still be cleaned up")
}

func TestRunExtractionFailureReportsTruncated(t *testing.T) {
	dir := t.TempDir()
	fe := &fakeExtractor{err: errors.New(strings.Repeat("x", 5000))}
	fm := &fakeMessenger{}
	r := newTestRunner(fe, fm, dir, 1024)

	r.Run(context.Background(), testJob(format.Format{Key: "best", Selector: "best"}))

	assert.Empty(t, fm.docs)
	require.NotEmpty(t, fm.edits)
	last := fm.edits[len(fm.edits)-1]
	assert.Contains(t, last, "Download failed")
	assert.LessOrEqual(t, len([]rune(last)), maxErrorLen+len("❌ Download failed: "))
}

func TestRunDeliveryFailureStillCleansUp(t *testing.T) {
	dir := t.TempDir()
	fe := &fakeExtractor{writeName: "clip.mp4", size: 64, title: "Clip"}
	fm := &fakeMessenger{docErr: errors.New("bot was blocked by the user")}
	r := newTestRunner(fe, fm, dir, 1024)

	r.Run(context.Background(), testJob(format.Format{Key: "best", Selector: "best"}))

	require.NotEmpty(t, fm.edits)
	assert.Contains(t, fm.edits[len(fm.edits)-1], "deliver")
	assert.NoFileExists(t, filepath.Join(dir, "clip.mp4"))
}

func TestRunAudioAdjustsExtensionAndSendsAudio(t *testing.T) {
	dir := t.TempDir()
	// The extractor reports the pre-transcode path; the transcoded .m4a
	// is what actually lands on disk.
	fe := &fakeExtractor{writeName: "song.m4a", reportName: "song.webm", size: 64, title: "Song"}
	fm := &fakeMessenger{}
	r := newTestRunner(fe, fm, dir, 1024)

	r.Run(context.Background(), testJob(format.Format{
		Key: "audio", Selector: "m4a/bestaudio/best", AudioOnly: true, AudioExt: "m4a",
	}))

	require.Len(t, fm.audios, 1)
	assert.Equal(t, filepath.Join(dir, "song.m4a"), fm.audios[0])
	assert.Empty(t, fm.docs)
	assert.NoFileExists(t, filepath.Join(dir, "song.m4a"))
	assert.True(t, fe.gotReq.AudioOnly)
}

func TestRunKeepsCookieFile(t *testing.T) {
	dir := t.TempDir()
	cookiePath := filepath.Join(dir, "5_cookies.txt")
	require.NoError(t, os.WriteFile(cookiePath, []byte("cookies"), 0o600))

	fe := &fakeExtractor{writeName: "clip.mp4", size: 64}
	fm := &fakeMessenger{}
	r := newTestRunner(fe, fm, dir, 1024)

	j := testJob(format.Format{Key: "best", Selector: "best"})
	j.CookiePath = cookiePath
	r.Run(context.Background(), j)

	assert.FileExists(t, cookiePath, "cookie artifact is persistent and never removed by a job")
	assert.Equal(t, cookiePath, fe.gotReq.CookiePath)
}

func TestProgressSinkThrottles(t *testing.T) {
	dir := t.TempDir()
	fm := &fakeMessenger{}
	r := newTestRunner(&fakeExtractor{}, fm, dir, 1024)

	base := time.Unix(1000, 0)
	ticks := []time.Duration{0, 500 * time.Millisecond, 1 * time.Second, 3 * time.Second}
	i := 0
	r.now = func() time.Time {
		tm := base.Add(ticks[i])
		if i < len(ticks)-1 {
			i++
		}
		return tm
	}

	sink := r.progressSink(testJob(format.Format{Key: "best"}))
	sink(extract.Progress{Status: extract.StatusDownloading, Percent: "10.0%"})
	sink(extract.Progress{Status: extract.StatusDownloading, Percent: "20.0%"})
	sink(extract.Progress{Status: extract.StatusDownloading, Percent: "30.0%"})
	sink(extract.Progress{Status: extract.StatusDownloading, Percent: "40.0%"})
	sink(extract.Progress{Status: extract.StatusFinished})

	require.Len(t, fm.edits, 3, "two throttled updates plus the finished notice")
	assert.Contains(t, fm.edits[0], "10.0%")
	assert.Contains(t, fm.edits[1], "40.0%")
	assert.Contains(t, fm.edits[2], "complete")
}

func TestProgressSinkSwallowsEditFailures(t *testing.T) {
	dir := t.TempDir()
	fm := &fakeMessenger{editErr: errors.New("message is not modified")}
	r := newTestRunner(&fakeExtractor{}, fm, dir, 1024)

	sink := r.progressSink(testJob(format.Format{Key: "best"}))
	assert.NotPanics(t, func() {
		sink(extract.Progress{Status: extract.StatusDownloading})
		sink(extract.Progress{Status: extract.StatusFinished})
	})
}

func TestReplaceExt(t *testing.T) {
	assert.Equal(t, "/tmp/a/song.m4a", replaceExt("/tmp/a/song.webm", "m4a"))
	assert.Equal(t, "/tmp/a.b/song.m4a", replaceExt("/tmp/a.b/song", "m4a"))
	assert.Equal(t, "song.m4a", replaceExt("song.opus", "m4a"))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab", truncate("abcdef", 2))
	assert.Equal(t, "héл", truncate("héлlo", 3))
}
