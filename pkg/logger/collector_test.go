package logger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturePublisher struct {
	mu      sync.Mutex
	batches [][]DigestEntry
	done    chan struct{}
}

func (p *capturePublisher) PublishMessage(_ context.Context, _ string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.batches = append(p.batches, payload.([]DigestEntry))
	close(p.done)
	return nil
}

func TestDigest_DeduplicatesRepeatedErrors(t *testing.T) {
	pub := &capturePublisher{done: make(chan struct{})}
	d := NewDigest(DigestConfig{Interval: time.Hour, MaxUnique: 100, Topic: "logs", Publisher: pub})

	l := Nop()
	l.AttachDigest(d)
	for i := 0; i < 3; i++ {
		l.Error("datasource.fetch failed", String("call", "mempool"), Error(errors.New("timeout")))
	}
	l.Info("ignored")
	d.Close()

	select {
	case <-pub.done:
	case <-time.After(2 * time.Second):
		t.Fatal("digest was not published")
	}
	pub.mu.Lock()
	defer pub.mu.Unlock()
	require.Len(t, pub.batches, 1)
	require.Len(t, pub.batches[0], 1)
	e := pub.batches[0][0]
	assert.Equal(t, "error", e.Level)
	assert.Equal(t, 3, e.Count)
	assert.Equal(t, "mempool", e.Fields["call"])
	assert.Equal(t, "timeout", e.Fields["error"])
}

func TestNew_RejectsUnknownLevel(t *testing.T) {
	_, err := New(&Config{Level: "loud", Output: "stdout"})
	assert.Error(t, err)
}
