// Package chatlog keeps a bounded in-memory transcript per monitored chat,
// for operator inspection. Not a source of truth — the store is.
package chatlog

import (
	"strings"
	"sync"
)

// maxChars caps one transcript; the buffer resets when exceeded.
const maxChars = 1_000_000

// Key builds the buffer key for a chat title and its current target id.
func Key(title, targetID string) string {
	return title + "|" + targetID
}

// Buffer is a concurrency-safe map of bounded transcripts.
type Buffer struct {
	mu   sync.Mutex
	logs map[string]*strings.Builder
}

func NewBuffer() *Buffer {
	return &Buffer{logs: map[string]*strings.Builder{}}
}

func (b *Buffer) Append(key, line string) {
	if line == "" {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	sb, ok := b.logs[key]
	if !ok {
		sb = &strings.Builder{}
		b.logs[key] = sb
	}
	if sb.Len() > maxChars {
		sb.Reset()
	}
	sb.WriteString(line)
	if !strings.HasSuffix(line, "\n") {
		sb.WriteString("\n")
	}
}

func (b *Buffer) Set(key, text string) {
	if len(text) > maxChars {
		text = text[len(text)-maxChars:]
	}
	sb := &strings.Builder{}
	sb.WriteString(text)

	b.mu.Lock()
	b.logs[key] = sb
	b.mu.Unlock()
}

func (b *Buffer) Get(key string) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sb, ok := b.logs[key]
	if !ok {
		return "", false
	}
	return sb.String(), true
}

// ReplaceKey moves a transcript to a new key when a window is reopened
// under a new target id.
func (b *Buffer) ReplaceKey(oldKey, newKey string) {
	if oldKey == "" || newKey == "" || oldKey == newKey {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	sb, ok := b.logs[oldKey]
	if !ok {
		return
	}
	delete(b.logs, oldKey)
	b.logs[newKey] = sb
}
