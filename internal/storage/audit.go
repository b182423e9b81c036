package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mhutter/notewire/internal/transcript"
)

// AuditWriter appends speaker-change and correction records to a daily
// markdown file. The file is append-only; entries are never rewritten.
type AuditWriter struct {
	dir string
	mu  sync.Mutex
}

func NewAuditWriter(dir string) *AuditWriter {
	return &AuditWriter{dir: dir}
}

// AppendChange records a speaker-change event.
func (w *AuditWriter) AppendChange(ev transcript.SpeakerChangeEvent) error {
	return w.appendLine(ev.FormatMarkdown())
}

// AppendCorrection records a retroactive correction.
func (w *AuditWriter) AppendCorrection(c transcript.Correction) error {
	return w.appendLine(c.FormatMarkdown())
}

func (w *AuditWriter) appendLine(line string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", w.dir, err)
	}

	now := time.Now().UTC()
	path := filepath.Join(w.dir, now.Format("2006-01-02")+".md")

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	if _, err := fmt.Fprintf(f, "[%s] %s\n", now.Format("15:04:05"), line); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}

	return nil
}

// CurrentPath returns the audit file path for today.
func (w *AuditWriter) CurrentPath() string {
	return filepath.Join(w.dir, time.Now().UTC().Format("2006-01-02")+".md")
}
