package app

import (
	"strings"
	"sync"

	"github.com/mirko1075/in-one-button-be/internal/domain"
)

// Buffer accumulates final transcript fragments in arrival order. Interim
// fragments never enter it. It is only mutated from the session run loop, but
// Transcript may be read from shutdown paths, hence the mutex.
type Buffer struct {
	mu        sync.Mutex
	fragments []domain.TranscriptFragment
}

func NewBuffer() *Buffer {
	return &Buffer{}
}

func (b *Buffer) Append(f domain.TranscriptFragment) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fragments = append(b.fragments, f)
}

func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.fragments)
}

// Transcript joins the buffered final texts in emission order.
func (b *Buffer) Transcript() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var sb strings.Builder
	for i, f := range b.fragments {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(f.Text)
	}
	return sb.String()
}
