// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package shuttle

import (
	"context"
	"io"
	"sync"
)

// Memory is an in-process Store backed by a map, suitable for tests
// and for a Local universe that never leaves a single address space.
type Memory struct {
	mu      sync.Mutex
	entries map[string][]byte
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string][]byte)}
}

func (m *Memory) Persist(ctx context.Context, name string, write func(io.Writer) error) error {
	raw, err := encodeChecksummed(write)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.entries[name] = raw
	m.mu.Unlock()
	return nil
}

func (m *Memory) Load(ctx context.Context, name string, read func(io.Reader) error) error {
	m.mu.Lock()
	raw, ok := m.entries[name]
	m.mu.Unlock()
	if !ok {
		return notExist(name)
	}
	return decodeChecksummed(raw, name, read)
}

func (m *Memory) Remove(ctx context.Context, name string) error {
	m.mu.Lock()
	delete(m.entries, name)
	m.mu.Unlock()
	return nil
}
