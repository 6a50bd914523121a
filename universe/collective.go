// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package universe

import (
	"context"
	"sync"

	"github.com/grailbio/macroq/ctxsync"
)

// A Collective is a reusable rendezvous point for a fixed-size group
// of participants, used to implement Barrier and Broadcast for the
// in-process Local system. It is built directly on ctxsync.Cond, a
// context-aware condition variable also used elsewhere in this module
// to coordinate task state changes.
type Collective[T any] struct {
	mu      sync.Mutex
	cond    *ctxsync.Cond
	size    int
	arrived int
	payload T
}

// NewCollective returns a Collective for exactly size participants.
func NewCollective[T any](size int) *Collective[T] {
	c := &Collective[T]{size: size}
	c.cond = ctxsync.NewCond(&c.mu)
	return c
}

// Barrier blocks the caller until size participants have all called
// Barrier.
func (c *Collective[T]) Barrier(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.arrived++
	if c.arrived < c.size {
		return c.cond.Wait(ctx)
	}
	c.arrived = 0
	c.cond.Broadcast()
	return nil
}

// Broadcast is a combined barrier and value broadcast: the caller
// that passes isRoot=true supplies the value in *v; every caller,
// root included, receives the agreed value in *v once all size
// participants have called Broadcast.
func (c *Collective[T]) Broadcast(ctx context.Context, isRoot bool, v *T) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if isRoot {
		c.payload = *v
	}
	c.arrived++
	if c.arrived < c.size {
		if err := c.cond.Wait(ctx); err != nil {
			return err
		}
	} else {
		c.arrived = 0
		c.cond.Broadcast()
	}
	*v = c.payload
	return nil
}
