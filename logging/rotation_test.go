package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestIsoWeekFormat(t *testing.T) {
	got := isoWeek(time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC))
	if got != "2026-W02" {
		t.Errorf("isoWeek = %q, want 2026-W02", got)
	}

	// January 1st 2027 falls in the last ISO week of 2026.
	got = isoWeek(time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC))
	if got != "2026-W53" {
		t.Errorf("isoWeek = %q, want 2026-W53", got)
	}
}

func TestRotatingWriterCreatesWeeklyFile(t *testing.T) {
	dir := t.TempDir()

	w, err := NewRotatingWriter(dir)
	if err != nil {
		t.Fatalf("NewRotatingWriter: %v", err)
	}
	defer w.Close()

	if _, err := w.Write([]byte("hello\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 log file, found %d", len(entries))
	}

	name := entries[0].Name()
	if !strings.HasPrefix(name, logFilePrefix) || !strings.HasSuffix(name, ".log") {
		t.Errorf("unexpected log file name %q", name)
	}
	if !strings.Contains(name, isoWeek(time.Now())) {
		t.Errorf("log file %q does not carry the current week", name)
	}
}

func TestRotatingWriterAppendsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	w, err := NewRotatingWriter(dir)
	if err != nil {
		t.Fatalf("NewRotatingWriter: %v", err)
	}
	if _, err := w.Write([]byte("first\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	w.Close()

	w2, err := NewRotatingWriter(dir)
	if err != nil {
		t.Fatalf("NewRotatingWriter reopen: %v", err)
	}
	defer w2.Close()
	if _, err := w2.Write([]byte("second\n")); err != nil {
		t.Fatalf("Write after reopen: %v", err)
	}

	path := filepath.Join(dir, logFilePrefix+isoWeek(time.Now())+".log")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "first\nsecond\n" {
		t.Errorf("log content = %q, want both lines preserved", data)
	}
}

func TestCleanupKeepsRecentWeeks(t *testing.T) {
	dir := t.TempDir()

	// Seed more weeks than the retention window allows.
	weeks := []string{
		"2025-W40", "2025-W41", "2025-W42", "2025-W43", "2025-W44",
		"2025-W45", "2025-W46", "2025-W47", "2025-W48", "2025-W49",
	}
	for _, wk := range weeks {
		path := filepath.Join(dir, logFilePrefix+wk+".log")
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatalf("seeding %s: %v", path, err)
		}
	}
	// A foreign file that cleanup must never touch.
	foreign := filepath.Join(dir, "other-app.log")
	if err := os.WriteFile(foreign, []byte("x"), 0o644); err != nil {
		t.Fatalf("seeding foreign file: %v", err)
	}

	w := &RotatingWriter{dir: dir}
	w.cleanupOld()

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}

	var kept []string
	foreignSeen := false
	for _, e := range entries {
		if e.Name() == "other-app.log" {
			foreignSeen = true
			continue
		}
		kept = append(kept, e.Name())
	}

	if !foreignSeen {
		t.Error("cleanup removed a file it does not own")
	}
	if len(kept) != logRetentionWeeks {
		t.Errorf("kept %d week files, want %d", len(kept), logRetentionWeeks)
	}
	for _, name := range kept {
		if strings.Contains(name, "2025-W40") || strings.Contains(name, "2025-W41") {
			t.Errorf("oldest week file %q survived cleanup", name)
		}
	}
}

func TestSequenceRolloverNaming(t *testing.T) {
	dir := t.TempDir()
	w := &RotatingWriter{dir: dir}

	if got := w.fileName("2026-W34", 0); !strings.HasSuffix(got, "farmacias-2026-W34.log") {
		t.Errorf("base file name = %q", got)
	}
	if got := w.fileName("2026-W34", 3); !strings.HasSuffix(got, "farmacias-2026-W34_03.log") {
		t.Errorf("sequenced file name = %q", got)
	}
}
