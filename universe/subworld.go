// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package universe

import "context"

// A Subworld is a disjoint subset of universe ranks, produced by
// Partition. Its members can perform collective operations among
// themselves without involving the rest of the universe.
type Subworld struct {
	universe *Universe
	index    int
	ranks    []int
}

// Partition splits u into k disjoint subworlds by round-robin
// assignment and returns the handle for the calling rank's subworld.
// Every rank in the universe must call Partition collectively with an
// identical k; Partition returns InvalidArgument if k is out of
// range, without waiting for the other ranks.
func Partition(ctx context.Context, u *Universe, k int) (*Subworld, error) {
	n := u.Size()
	if k < 1 || k > n {
		return nil, invalidArgument("partition: k=%d out of range for universe of size %d", k, n)
	}
	agreed, err := u.sys.agreeK(ctx, k)
	if err != nil {
		return nil, err
	}
	if agreed != k {
		return nil, invalidArgument("partition: rank %d called with k=%d but universe agreed on k=%d", u.Rank(), k, agreed)
	}
	index := u.Rank() % k
	var ranks []int
	for r := 0; r < n; r++ {
		if r%k == index {
			ranks = append(ranks, r)
		}
	}
	return &Subworld{universe: u, index: index, ranks: ranks}, nil
}

// Index returns the subworld's index, r mod k for any member rank r.
func (s *Subworld) Index() int { return s.index }

// Size returns the number of universe ranks in this subworld.
func (s *Subworld) Size() int { return len(s.ranks) }

// Ranks returns the universe ranks that belong to this subworld, in
// ascending order. The returned slice must not be modified.
func (s *Subworld) Ranks() []int { return s.ranks }

// Universe returns the universe this subworld was partitioned from.
func (s *Subworld) Universe() *Universe { return s.universe }

// Leader reports whether the calling rank is this subworld's local
// rank 0 (the smallest universe rank in the subworld).
func (s *Subworld) Leader() bool {
	return len(s.ranks) > 0 && s.ranks[0] == s.universe.Rank()
}

// Barrier blocks until every member of the subworld has called
// Barrier.
func (s *Subworld) Barrier(ctx context.Context) error {
	return s.universe.sys.subBarrier(ctx, s.index, len(s.ranks))
}

// BroadcastInt broadcasts an int value from the subworld's leader to
// every member, used by the scheduler to propagate a claimed task's
// index so that every member of the subworld agrees on which task it
// is now running.
func (s *Subworld) BroadcastInt(ctx context.Context, v int) (int, error) {
	return s.universe.sys.subBroadcastInt(ctx, s.index, len(s.ranks), s.Leader(), v)
}

// BroadcastBytes broadcasts a byte slice from the subworld's leader
// to every member, used to hand the just-claimed task's encoded form
// to every subworld member so Run executes with the same task on each
// rank.
func (s *Subworld) BroadcastBytes(ctx context.Context, v []byte) ([]byte, error) {
	return s.universe.sys.subBroadcastBytes(ctx, s.index, len(s.ranks), s.Leader(), v)
}
