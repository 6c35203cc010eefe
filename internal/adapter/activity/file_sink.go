// Package activity holds the append-only activity log sinks that do not
// talk to an external system.
package activity

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/adi0301/item-lending/internal/core/domain"
)

// FileSink appends one human-readable line per event to a local log file.
type FileSink struct {
	mu sync.Mutex
	f  *os.File
}

func NewFileSink(path string) (*FileSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open activity log: %w", err)
	}
	return &FileSink{f: f}, nil
}

func (s *FileSink) Record(_ context.Context, ev domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := fmt.Fprintln(s.f, ev.String())
	return err
}

func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.f.Close()
}
