package capture

import (
	"log/slog"
	"mime"
	"os"
	"path/filepath"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/use-agent/mediatap/classify"
	"github.com/use-agent/mediatap/collector"
)

// SourceDownload marks URLs captured from a download that was canceled.
const SourceDownload = "download"

// downloadIsMedia judges a download by its suggested filename: CDP does not
// report a MIME type at this point, so the type is derived from the
// extension.
func downloadIsMedia(filename string) bool {
	if classify.HasMediaExtension(filename) {
		return true
	}
	return classify.IsMediaMIME(mime.TypeByExtension(filepath.Ext(filename)))
}

// downloadCandidate builds the candidate for a download.
func downloadCandidate(e *proto.BrowserDownloadWillBegin) collector.Candidate {
	return collector.Candidate{
		URL:    e.URL,
		Source: SourceDownload,
		Direct: downloadIsMedia(e.SuggestedFilename),
	}
}

// downloadWatcher records media downloads and cancels them: the goal is the
// URL, never the file. Other downloads are left alone.
type downloadWatcher struct {
	dir    string
	col    *collector.Collector
	cancel func(guid string) error
}

// enableDownloads routes downloads into dir and starts the watcher. It
// returns once the event subscription is in place.
func enableDownloads(browser *rod.Browser, dir string, col *collector.Collector) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	err := proto.BrowserSetDownloadBehavior{
		Behavior:      proto.BrowserSetDownloadBehaviorBehaviorAllowAndName,
		DownloadPath:  dir,
		EventsEnabled: true,
	}.Call(browser)
	if err != nil {
		return err
	}

	w := &downloadWatcher{
		dir: dir,
		col: col,
		cancel: func(guid string) error {
			return proto.BrowserCancelDownload{GUID: guid}.Call(browser)
		},
	}
	wait := browser.EachEvent(func(e *proto.BrowserDownloadWillBegin) {
		go w.handle(e)
	})
	go wait()
	return nil
}

func (w *downloadWatcher) handle(e *proto.BrowserDownloadWillBegin) {
	out := w.col.Observe(downloadCandidate(e))
	if !out.Accepted() {
		slog.Debug("download: not media, left running", "url", e.URL, "filename", e.SuggestedFilename)
		return
	}

	if err := w.cancel(e.GUID); err != nil {
		slog.Debug("download: cancel failed (may have finished)", "guid", e.GUID, "error", err)
	}
	// allowAndName stores the file under its GUID.
	if err := os.Remove(filepath.Join(w.dir, e.GUID)); err != nil && !os.IsNotExist(err) {
		slog.Debug("download: remove partial file failed", "guid", e.GUID, "error", err)
	}

	w.col.RecordDownload(collector.Download{
		ID:       e.GUID,
		URL:      e.URL,
		Filename: e.SuggestedFilename,
	})
	slog.Info("download: captured and canceled", "url", e.URL, "filename", e.SuggestedFilename)
}
