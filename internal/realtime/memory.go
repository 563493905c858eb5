package realtime

import (
	"context"
	"sync"
)

// MemoryPublisher records published payloads per channel. Used in tests and
// single-process development runs.
type MemoryPublisher struct {
	mu       sync.Mutex
	messages map[string][][]byte
	Err      error // returned by Publish when set
}

func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{messages: map[string][][]byte{}}
}

func (p *MemoryPublisher) Publish(ctx context.Context, channel string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	cp := make([]byte, len(payload))
	copy(cp, payload)
	p.messages[channel] = append(p.messages[channel], cp)
	return nil
}

func (p *MemoryPublisher) Messages(channel string) [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][]byte(nil), p.messages[channel]...)
}
