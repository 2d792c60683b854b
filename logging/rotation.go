package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	// logFilePrefix anchors every log file name so retention cleanup
	// never touches foreign files sitting in the same directory.
	logFilePrefix = "farmacias-"

	// maxLogFileSize caps a single file before a numbered rollover.
	maxLogFileSize = 50 * 1024 * 1024

	// logRetentionWeeks is how many ISO weeks of logs survive cleanup.
	logRetentionWeeks = 8

	cleanupInterval = 12 * time.Hour
)

// RotatingWriter writes to a weekly log file, rolling to a numbered
// sibling when the file outgrows maxLogFileSize. It is safe for
// concurrent use by a single slog handler.
type RotatingWriter struct {
	mu       sync.Mutex
	dir      string
	week     string
	seq      int
	file     *os.File
	size     int64
	cancelFn context.CancelFunc
}

// NewRotatingWriter opens the current week's log file under dir and
// starts a background retention cleanup. Close releases both.
func NewRotatingWriter(dir string) (*RotatingWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}

	w := &RotatingWriter{dir: dir}
	if err := w.open(isoWeek(time.Now())); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	w.cancelFn = cancel
	go w.cleanupLoop(ctx)

	return w, nil
}

func isoWeek(t time.Time) string {
	year, week := t.ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}

func (w *RotatingWriter) fileName(week string, seq int) string {
	name := logFilePrefix + week
	if seq > 0 {
		name = fmt.Sprintf("%s_%02d", name, seq)
	}
	return filepath.Join(w.dir, name+".log")
}

// open opens the log file for week, resuming the highest existing
// sequence number so restarts append instead of overwriting.
func (w *RotatingWriter) open(week string) error {
	seq := w.highestSeq(week)
	path := w.fileName(week, seq)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening log file %s: %w", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("stat log file %s: %w", path, err)
	}

	if w.file != nil {
		w.file.Close()
	}
	w.file = f
	w.week = week
	w.seq = seq
	w.size = info.Size()
	return nil
}

func (w *RotatingWriter) highestSeq(week string) int {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return 0
	}
	base := logFilePrefix + week
	highest := 0
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, base) || !strings.HasSuffix(name, ".log") {
			continue
		}
		rest := strings.TrimSuffix(strings.TrimPrefix(name, base), ".log")
		if rest == "" {
			continue
		}
		var n int
		if _, err := fmt.Sscanf(rest, "_%02d", &n); err == nil && n > highest {
			highest = n
		}
	}
	return highest
}

func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	week := isoWeek(time.Now())
	if week != w.week {
		if err := w.open(week); err != nil {
			return 0, err
		}
	} else if w.size+int64(len(p)) > maxLogFileSize {
		w.seq++
		if err := w.openSeq(week, w.seq); err != nil {
			return 0, err
		}
	}

	n, err := w.file.Write(p)
	w.size += int64(n)
	return n, err
}

func (w *RotatingWriter) openSeq(week string, seq int) error {
	path := w.fileName(week, seq)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening log file %s: %w", path, err)
	}
	if w.file != nil {
		w.file.Close()
	}
	w.file = f
	w.week = week
	w.seq = seq
	w.size = 0
	return nil
}

// Close stops the cleanup goroutine and closes the current file.
func (w *RotatingWriter) Close() error {
	if w.cancelFn != nil {
		w.cancelFn()
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

func (w *RotatingWriter) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	w.cleanupOld()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.cleanupOld()
		}
	}
}

// cleanupOld removes log files beyond the retention window, keeping
// the newest logRetentionWeeks distinct weeks.
func (w *RotatingWriter) cleanupOld() {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return
	}

	weeks := make(map[string][]string)
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, logFilePrefix) || !strings.HasSuffix(name, ".log") {
			continue
		}
		week := strings.TrimSuffix(strings.TrimPrefix(name, logFilePrefix), ".log")
		if i := strings.Index(week, "_"); i >= 0 {
			week = week[:i]
		}
		weeks[week] = append(weeks[week], name)
	}

	if len(weeks) <= logRetentionWeeks {
		return
	}

	keys := make([]string, 0, len(weeks))
	for k := range weeks {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, week := range keys[:len(keys)-logRetentionWeeks] {
		for _, name := range weeks[week] {
			if err := os.Remove(filepath.Join(w.dir, name)); err != nil {
				Warn("Failed to remove old log file", "file", name, "error", err)
			}
		}
	}
}

// multiHandler fans a record out to every wrapped handler.
type multiHandler struct {
	handlers []slog.Handler
}

func (m *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (m *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	var firstErr error
	for _, h := range m.handlers {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	hs := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		hs[i] = h.WithAttrs(attrs)
	}
	return &multiHandler{handlers: hs}
}

func (m *multiHandler) WithGroup(name string) slog.Handler {
	hs := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		hs[i] = h.WithGroup(name)
	}
	return &multiHandler{handlers: hs}
}

// SetupLogger builds the application logger: text on the console and,
// when logDir is set, JSON in a weekly rotated file.
func SetupLogger(logDir string) *slog.Logger {
	level := parseLevel(os.Getenv("LOG_LEVEL"))

	console := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	if logDir == "" {
		return slog.New(console)
	}

	writer, err := NewRotatingWriter(logDir)
	if err != nil {
		slog.New(console).Warn("File logging disabled", "error", err)
		return slog.New(console)
	}

	fileHandler := slog.NewJSONHandler(writer, &slog.HandlerOptions{Level: level})
	return slog.New(&multiHandler{handlers: []slog.Handler{console, fileHandler}})
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewTestLogger returns a logger that discards everything. Tests use it
// to silence components that log through an injected logger.
func NewTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
