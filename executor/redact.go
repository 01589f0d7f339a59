package executor

import (
	"io"
	"sort"
	"strings"
	"sync"
)

// Mask is the replacement text substituted for redacted values.
const Mask = "********"

// Redactor masks registered secret values in text. Values are matched
// longest-first so overlapping secrets cannot leak a suffix of a longer one.
// A Redactor is safe for concurrent use.
type Redactor struct {
	mu       sync.RWMutex
	values   []string
	replacer *strings.Replacer
}

// NewRedactor creates a Redactor with the given initial values. Empty and
// very short values are ignored: masking one- or two-byte strings would
// mangle ordinary output without hiding anything.
func NewRedactor(values ...string) *Redactor {
	r := &Redactor{}
	r.Add(values...)
	return r
}

// Add registers additional values to mask.
func (r *Redactor) Add(values ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, v := range values {
		if len(v) < 3 {
			continue
		}
		r.values = append(r.values, v)
	}

	sort.Slice(r.values, func(i, j int) bool {
		return len(r.values[i]) > len(r.values[j])
	})

	pairs := make([]string, 0, len(r.values)*2)
	for _, v := range r.values {
		pairs = append(pairs, v, Mask)
	}
	r.replacer = strings.NewReplacer(pairs...)
}

// Redact returns s with every registered value replaced by the mask.
func (r *Redactor) Redact(s string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.replacer == nil {
		return s
	}
	return r.replacer.Replace(s)
}

// Wrap returns a writer that redacts everything written through it before
// forwarding to w. Output is buffered per line so a secret split across two
// Write calls within a line is still masked; callers relaying interactive
// output should expect line granularity.
func (r *Redactor) Wrap(w io.Writer) io.Writer {
	return &redactingWriter{redactor: r, dst: w}
}

type redactingWriter struct {
	redactor *Redactor
	dst      io.Writer
	pending  []byte
}

func (w *redactingWriter) Write(p []byte) (int, error) {
	w.pending = append(w.pending, p...)

	for {
		idx := indexNewline(w.pending)
		if idx < 0 {
			break
		}
		line := string(w.pending[:idx+1])
		w.pending = w.pending[idx+1:]
		if _, err := io.WriteString(w.dst, w.redactor.Redact(line)); err != nil {
			return len(p), err
		}
	}

	return len(p), nil
}

// Flush writes any buffered partial line, redacted.
func (w *redactingWriter) Flush() error {
	if len(w.pending) == 0 {
		return nil
	}
	line := string(w.pending)
	w.pending = nil
	_, err := io.WriteString(w.dst, w.redactor.Redact(line))
	return err
}

func indexNewline(b []byte) int {
	for i, c := range b {
		if c == '\n' {
			return i
		}
	}
	return -1
}
