// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package universe

import (
	"context"
	"sync"

	"github.com/grailbio/macroq/ctxsync"
)

// NewLocal simulates a universe of n peer ranks using goroutines and
// channels within a single process. It returns one *Universe per
// rank, in rank order. NewLocal is the backend exercised by this
// module's own tests and is suitable for any caller that wants the
// macro-task queue's semantics without a real process pool.
//
// A single Local instance assumes Partition is called with one fixed
// k across its lifetime -- analogous to a single MPI program calling
// create_worlds once -- since subworld collectives are cached by
// subworld index.
func NewLocal(n int) []*Universe {
	l := &local{
		n:                 n,
		barrier:           NewCollective[struct{}](n),
		kAgree:            NewCollective[int](n),
		broadcast:         NewCollective[int](n),
		broadcastBytes:    NewCollective[[]byte](n),
		reduce:            newReducer(n),
		subBarriers:       make(map[int]*Collective[struct{}]),
		subBroadcast:      make(map[int]*Collective[int]),
		subBroadcastBytes: make(map[int]*Collective[[]byte]),
	}
	universes := make([]*Universe, n)
	for r := 0; r < n; r++ {
		universes[r] = &Universe{sys: &localRank{l: l, r: r}}
	}
	return universes
}

// local is the shared state behind a NewLocal pool: the "network"
// that every simulated rank's Universe talks to.
type local struct {
	n              int
	barrier        *Collective[struct{}]
	kAgree         *Collective[int]
	broadcast      *Collective[int]
	broadcastBytes *Collective[[]byte]
	reduce         *reducer

	mu                sync.Mutex
	subBarriers       map[int]*Collective[struct{}]
	subBroadcast      map[int]*Collective[int]
	subBroadcastBytes map[int]*Collective[[]byte]
}

// reducer is Reduce's rendezvous point: unlike Collective.Broadcast,
// every participant (not just a root) contributes a value, combined
// as each arrives so only the running accumulator is held rather than
// one slot per rank.
type reducer struct {
	mu      sync.Mutex
	cond    *ctxsync.Cond
	size    int
	arrived int
	acc     int
	result  int
}

func newReducer(size int) *reducer {
	r := &reducer{size: size}
	r.cond = ctxsync.NewCond(&r.mu)
	return r
}

func (r *reducer) Reduce(ctx context.Context, v int, op ReduceOp) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.arrived == 0 {
		r.acc = v
	} else {
		r.acc = op.apply(r.acc, v)
	}
	r.arrived++
	if r.arrived < r.size {
		if err := r.cond.Wait(ctx); err != nil {
			return 0, err
		}
	} else {
		r.result = r.acc
		r.arrived = 0
		r.cond.Broadcast()
	}
	return r.result, nil
}

func (l *local) subBarrierFor(index, size int) *Collective[struct{}] {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.subBarriers[index]
	if !ok {
		c = NewCollective[struct{}](size)
		l.subBarriers[index] = c
	}
	return c
}

func (l *local) subBroadcastFor(index, size int) *Collective[int] {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.subBroadcast[index]
	if !ok {
		c = NewCollective[int](size)
		l.subBroadcast[index] = c
	}
	return c
}

func (l *local) subBroadcastBytesFor(index, size int) *Collective[[]byte] {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.subBroadcastBytes[index]
	if !ok {
		c = NewCollective[[]byte](size)
		l.subBroadcastBytes[index] = c
	}
	return c
}

// localRank is the system implementation backing one simulated rank's
// Universe handle.
type localRank struct {
	l *local
	r int
}

func (s *localRank) size() int { return s.l.n }
func (s *localRank) rank() int { return s.r }

func (s *localRank) barrier(ctx context.Context) error {
	return s.l.barrier.Barrier(ctx)
}

func (s *localRank) agreeK(ctx context.Context, k int) (int, error) {
	v := k
	if err := s.l.kAgree.Broadcast(ctx, s.r == 0, &v); err != nil {
		return 0, err
	}
	return v, nil
}

func (s *localRank) broadcastInt(ctx context.Context, leader bool, v int) (int, error) {
	out := v
	if err := s.l.broadcast.Broadcast(ctx, leader, &out); err != nil {
		return 0, err
	}
	return out, nil
}

func (s *localRank) broadcastBytes(ctx context.Context, leader bool, v []byte) ([]byte, error) {
	out := v
	if err := s.l.broadcastBytes.Broadcast(ctx, leader, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *localRank) reduceInt(ctx context.Context, v int, op ReduceOp) (int, error) {
	return s.l.reduce.Reduce(ctx, v, op)
}

func (s *localRank) subBarrier(ctx context.Context, subIndex, subSize int) error {
	return s.l.subBarrierFor(subIndex, subSize).Barrier(ctx)
}

func (s *localRank) subBroadcastInt(ctx context.Context, subIndex, subSize int, leader bool, v int) (int, error) {
	out := v
	if err := s.l.subBroadcastFor(subIndex, subSize).Broadcast(ctx, leader, &out); err != nil {
		return 0, err
	}
	return out, nil
}

func (s *localRank) subBroadcastBytes(ctx context.Context, subIndex, subSize int, leader bool, v []byte) ([]byte, error) {
	out := v
	if err := s.l.subBroadcastBytesFor(subIndex, subSize).Broadcast(ctx, leader, &out); err != nil {
		return nil, err
	}
	return out, nil
}
