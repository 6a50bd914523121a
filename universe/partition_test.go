// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package universe

import (
	"context"
	"testing"

	"golang.org/x/sync/errgroup"
)

// partitionAll runs Partition collectively across every rank in
// universes and returns each rank's resulting Subworld, in rank
// order.
func partitionAll(t *testing.T, universes []*Universe, k int) []*Subworld {
	t.Helper()
	subworlds := make([]*Subworld, len(universes))
	g, ctx := errgroup.WithContext(context.Background())
	for r, u := range universes {
		r, u := r, u
		g.Go(func() error {
			sw, err := Partition(ctx, u, k)
			if err != nil {
				return err
			}
			subworlds[r] = sw
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
	return subworlds
}

func TestPartitionDisjointAndCovering(t *testing.T) {
	for _, tc := range []struct{ n, k int }{
		{5, 1}, {5, 5}, {5, 3}, {1, 1}, {7, 2},
	} {
		universes := NewLocal(tc.n)
		subworlds := partitionAll(t, universes, tc.k)

		seen := make(map[int]int) // universe rank -> subworld index
		for idx, sw := range subworlds {
			if sw.Index() != idx%tc.k {
				t.Errorf("n=%d k=%d: rank %d got subworld index %d, want %d", tc.n, tc.k, idx, sw.Index(), idx%tc.k)
			}
			for _, r := range sw.Ranks() {
				if prior, ok := seen[r]; ok && prior != sw.Index() {
					t.Errorf("n=%d k=%d: universe rank %d assigned to two subworlds %d and %d", tc.n, tc.k, r, prior, sw.Index())
				}
				seen[r] = sw.Index()
				if r < 0 || r >= tc.n {
					t.Errorf("n=%d k=%d: subworld %d contains out-of-range rank %d", tc.n, tc.k, sw.Index(), r)
				}
			}
		}
		if len(seen) != tc.n {
			t.Errorf("n=%d k=%d: union of subworld ranks has %d members, want %d", tc.n, tc.k, len(seen), tc.n)
		}
	}
}

func TestPartitionInvalidK(t *testing.T) {
	universes := NewLocal(3)
	for _, k := range []int{0, -1, 4} {
		if _, err := Partition(context.Background(), universes[0], k); err == nil {
			t.Errorf("k=%d: expected InvalidArgument, got nil", k)
		}
	}
}

func TestSubworldLeaderAndBarrier(t *testing.T) {
	universes := NewLocal(4)
	subworlds := partitionAll(t, universes, 2)

	for idx, sw := range subworlds {
		wantLeader := sw.Ranks()[0] == idx
		if sw.Leader() != wantLeader {
			t.Errorf("rank %d: Leader()=%v, want %v", idx, sw.Leader(), wantLeader)
		}
	}

	g, ctx := errgroup.WithContext(context.Background())
	for _, sw := range subworlds {
		sw := sw
		g.Go(func() error { return sw.Barrier(ctx) })
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
}

func TestSubworldBroadcastInt(t *testing.T) {
	universes := NewLocal(4)
	subworlds := partitionAll(t, universes, 2)

	results := make([]int, len(subworlds))
	g, ctx := errgroup.WithContext(context.Background())
	for i, sw := range subworlds {
		i, sw := i, sw
		g.Go(func() error {
			v := 0
			if sw.Leader() {
				v = 42
			}
			got, err := sw.BroadcastInt(ctx, v)
			results[i] = got
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
	for i, got := range results {
		if got != 42 {
			t.Errorf("rank %d: BroadcastInt got %d, want 42", i, got)
		}
	}
}

func TestSubworldBroadcastBytes(t *testing.T) {
	universes := NewLocal(4)
	subworlds := partitionAll(t, universes, 2)

	want := []byte("claimed task payload")
	results := make([][]byte, len(subworlds))
	g, ctx := errgroup.WithContext(context.Background())
	for i, sw := range subworlds {
		i, sw := i, sw
		g.Go(func() error {
			var v []byte
			if sw.Leader() {
				v = want
			}
			got, err := sw.BroadcastBytes(ctx, v)
			results[i] = got
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
	for i, got := range results {
		if string(got) != string(want) {
			t.Errorf("rank %d: BroadcastBytes got %q, want %q", i, got, want)
		}
	}
}
