// Package execlog keeps the human-readable trace of gate decisions and
// action outcomes shown to users.
package execlog

import "sync"

// Log is an append-only list of lines. It never drops lines on its own;
// callers bound it with Trim.
type Log struct {
	mu      sync.RWMutex
	entries []string
	dropped int // lines removed by Trim, so sequence numbers stay stable
}

// New returns an empty Log.
func New() *Log { return &Log{} }

// Add appends one line.
func (l *Log) Add(line string) {
	l.mu.Lock()
	l.entries = append(l.entries, line)
	l.mu.Unlock()
}

// Entries returns a copy of every retained line, oldest first.
func (l *Log) Entries() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]string, len(l.entries))
	copy(out, l.entries)
	return out
}

// Tail returns up to the last n lines. n <= 0 returns everything.
func (l *Log) Tail(n int) []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	start := 0
	if n > 0 && n < len(l.entries) {
		start = len(l.entries) - n
	}
	out := make([]string, len(l.entries)-start)
	copy(out, l.entries[start:])
	return out
}

// Len returns the number of retained lines.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Since returns lines appended at or after sequence number seq and the
// sequence number to ask for next time. Lines already trimmed are skipped.
func (l *Log) Since(seq int) ([]string, int) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	next := l.dropped + len(l.entries)
	i := seq - l.dropped
	if i < 0 {
		i = 0
	}
	if i >= len(l.entries) {
		return nil, next
	}
	out := make([]string, len(l.entries)-i)
	copy(out, l.entries[i:])
	return out, next
}

// Trim keeps only the newest keep lines.
func (l *Log) Trim(keep int) {
	if keep < 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if over := len(l.entries) - keep; over > 0 {
		l.entries = append([]string(nil), l.entries[over:]...)
		l.dropped += over
	}
}
