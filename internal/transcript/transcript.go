// Package transcript records every LLM call a job makes as JSON Lines, even
// before the job's working-copy path is known.
package transcript

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Entry is one recorded model call.
type Entry struct {
	Time      time.Time `json:"time"`
	Role      string    `json:"role"` // "cto" or "coder"
	Model     string    `json:"model"`
	Messages  []Message `json:"messages"`
	Response  string    `json:"response"`
	TokensIn  int64     `json:"tokens_in"`
	TokensOut int64     `json:"tokens_out"`
	Summary   string    `json:"summary,omitempty"`
}

// Message is a minimal, JSON-friendly mirror of llm.Message so this package
// doesn't need to import internal/llm.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Recorder buffers entries until a base path is attached, then appends each
// subsequent (and every previously buffered) entry to a JSON Lines file.
// This models the two states the worker needs: calls happen before the
// job's working copy exists (planning) and after (per-step execution), and
// neither state may drop an entry.
type Recorder struct {
	mu       sync.Mutex
	path     string
	file     *os.File
	buffered []Entry
}

// NewRecorder returns a Recorder in the Buffering state.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Record appends an entry. If the recorder is still buffering (no base path
// attached yet) the entry is held in memory; otherwise it is written
// immediately.
func (r *Recorder) Record(e Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file == nil {
		r.buffered = append(r.buffered, e)
		return nil
	}
	return r.writeLocked(e)
}

// SetBasePath attaches the recorder to workdir's transcript file, creating
// parent directories as needed, and atomically drains every buffered entry
// to it in order. Calling this more than once is a programming error; the
// second call returns an error rather than reopening the file.
func (r *Recorder) SetBasePath(workdir string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file != nil {
		return fmt.Errorf("transcript: base path already attached")
	}

	dir := filepath.Join(workdir, ".autodev")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating transcript dir: %w", err)
	}

	path := filepath.Join(dir, "llm_calls.jsonl")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening transcript file: %w", err)
	}

	r.path = path
	r.file = f

	for _, e := range r.buffered {
		if err := r.writeLocked(e); err != nil {
			return fmt.Errorf("draining buffered transcript entries: %w", err)
		}
	}
	r.buffered = nil

	return nil
}

// Close flushes and closes the underlying file, if attached. Safe to call
// even if SetBasePath was never reached (a job that fails before its
// working copy is ready).
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file == nil {
		return nil
	}
	return r.file.Close()
}

// Path returns the attached transcript file path, or "" if still buffering.
func (r *Recorder) Path() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.path
}

func (r *Recorder) writeLocked(e Entry) error {
	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshalling transcript entry: %w", err)
	}
	line = append(line, '\n')
	if _, err := r.file.Write(line); err != nil {
		return fmt.Errorf("writing transcript entry: %w", err)
	}
	return nil
}
