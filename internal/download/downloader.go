package download

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/errgroup"

	"github.com/Veraticus/susa-must-flow/internal/common"
	"github.com/Veraticus/susa-must-flow/internal/model"
	"github.com/Veraticus/susa-must-flow/internal/service"
)

// Result describes one saved export.
type Result struct {
	Kind  model.ExportKind
	Path  string
	Bytes int64
}

// Downloader saves export files, several at a time.
type Downloader struct {
	source   Source
	history  service.DownloadHistory
	notifier service.Notifier
	progress io.Writer
	logger   *slog.Logger
	parallel int
}

// Option configures a Downloader.
type Option func(*Downloader)

// WithHistory records each finished download.
func WithHistory(h service.DownloadHistory) Option {
	return func(d *Downloader) { d.history = h }
}

// WithNotifier reports start and completion of each file.
func WithNotifier(n service.Notifier) Option {
	return func(d *Downloader) { d.notifier = n }
}

// WithProgress draws a byte counter on w.
func WithProgress(w io.Writer) Option {
	return func(d *Downloader) { d.progress = w }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Downloader) { d.logger = l }
}

// NewDownloader creates a downloader reading from source.
func NewDownloader(source Source, opts ...Option) *Downloader {
	d := &Downloader{source: source, logger: slog.Default(), parallel: 3}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Fetch saves the requested export kinds of files into dir. No kinds means
// every available export. Files are written atomically.
func (d *Downloader) Fetch(ctx context.Context, projectID int64, files model.ResultFiles, kinds []model.ExportKind, dir string) ([]Result, error) {
	if files.TaskID == "" {
		return nil, fmt.Errorf("%w: analysis has no result task", common.ErrNotFound)
	}
	todo := requested(files, kinds)
	if len(todo) == 0 {
		return nil, fmt.Errorf("%w: no export files available", common.ErrNotFound)
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create download directory: %w", err)
	}

	var bar *progressbar.ProgressBar
	if d.progress != nil {
		bar = progressbar.NewOptions64(-1,
			progressbar.OptionSetWriter(d.progress),
			progressbar.OptionSetDescription(fmt.Sprintf("Downloading %d file(s)", len(todo))),
			progressbar.OptionShowBytes(true),
			progressbar.OptionClearOnFinish(),
		)
		defer func() { _ = bar.Finish() }()
	}

	results := make([]Result, len(todo))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.parallel)

	for i, kind := range todo {
		i, kind := i, kind
		g.Go(func() error {
			key := files.Key(kind)
			res, err := d.fetchOne(gctx, files.TaskID, key, dir, bar)
			if err != nil {
				return err
			}
			res.Kind = kind
			results[i] = res
			d.record(gctx, projectID, files.TaskID, res)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	sort.SliceStable(results, func(a, b int) bool { return kindOrder(results[a].Kind) < kindOrder(results[b].Kind) })
	return results, nil
}

func (d *Downloader) fetchOne(ctx context.Context, taskID, key, dir string, bar *progressbar.ProgressBar) (Result, error) {
	name := FileName(key)
	d.notify(model.NotificationInfo, fmt.Sprintf("Initiating download for %s...", name))

	tmp, err := os.CreateTemp(dir, ".susa-download-*")
	if err != nil {
		return Result{}, fmt.Errorf("failed to create temporary file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	var dst io.Writer = tmp
	if bar != nil {
		dst = io.MultiWriter(tmp, bar)
	}

	n, err := d.source.Fetch(ctx, taskID, key, dst)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		d.notify(model.NotificationError, fmt.Sprintf("Download of %s failed: %s", name, common.Message(err)))
		return Result{}, fmt.Errorf("failed to download %s: %w", name, err)
	}

	path := filepath.Join(dir, name)
	if err := os.Rename(tmp.Name(), path); err != nil {
		return Result{}, fmt.Errorf("failed to save %s: %w", name, err)
	}

	d.notify(model.NotificationSuccess, fmt.Sprintf("Download of %s complete!", name))
	d.logger.Info("Saved export", "file", path, "bytes", n)
	return Result{Path: path, Bytes: n}, nil
}

func (d *Downloader) record(ctx context.Context, projectID int64, taskID string, res Result) {
	if d.history == nil {
		return
	}
	err := d.history.SaveDownload(ctx, service.DownloadRecord{
		ProjectID:    projectID,
		TaskID:       taskID,
		FileName:     filepath.Base(res.Path),
		Path:         res.Path,
		Bytes:        res.Bytes,
		DownloadedAt: time.Now(),
	})
	if err != nil {
		d.logger.Warn("Failed to record download", "error", err, "file", res.Path)
	}
}

func (d *Downloader) notify(kind model.NotificationType, msg string) {
	if d.notifier != nil {
		d.notifier.Notify(kind, msg)
	}
}

func kindOrder(k model.ExportKind) int {
	for i, known := range model.AllExportKinds {
		if known == k {
			return i
		}
	}
	return len(model.AllExportKinds)
}
