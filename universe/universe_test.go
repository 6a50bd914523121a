// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package universe

import (
	"context"
	"testing"

	"golang.org/x/sync/errgroup"
)

func TestUniverseBroadcast(t *testing.T) {
	universes := NewLocal(5)
	results := make([]int, len(universes))
	g, ctx := errgroup.WithContext(context.Background())
	for i, u := range universes {
		i, u := i, u
		g.Go(func() error {
			v := 0
			if u.Rank() == 0 {
				v = 7
			}
			got, err := u.Broadcast(ctx, v)
			results[i] = got
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
	for i, got := range results {
		if got != 7 {
			t.Errorf("rank %d: Broadcast got %d, want 7", i, got)
		}
	}
}

func TestUniverseBroadcastBytes(t *testing.T) {
	universes := NewLocal(5)
	want := []byte("universe-wide payload")
	results := make([][]byte, len(universes))
	g, ctx := errgroup.WithContext(context.Background())
	for i, u := range universes {
		i, u := i, u
		g.Go(func() error {
			var v []byte
			if u.Rank() == 0 {
				v = want
			}
			got, err := u.BroadcastBytes(ctx, v)
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

func TestUniverseReduceSum(t *testing.T) {
	universes := NewLocal(5)
	results := make([]int, len(universes))
	g, ctx := errgroup.WithContext(context.Background())
	for i, u := range universes {
		i, u := i, u
		g.Go(func() error {
			got, err := u.Reduce(ctx, u.Rank()+1, ReduceSum)
			results[i] = got
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
	const want = 1 + 2 + 3 + 4 + 5
	for i, got := range results {
		if got != want {
			t.Errorf("rank %d: Reduce(Sum) got %d, want %d", i, got, want)
		}
	}
}

func TestUniverseReduceMinMax(t *testing.T) {
	universes := NewLocal(4)

	g, ctx := errgroup.WithContext(context.Background())
	minResults := make([]int, len(universes))
	for i, u := range universes {
		i, u := i, u
		g.Go(func() error {
			got, err := u.Reduce(ctx, u.Rank()*10, ReduceMin)
			minResults[i] = got
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
	for i, got := range minResults {
		if got != 0 {
			t.Errorf("rank %d: Reduce(Min) got %d, want 0", i, got)
		}
	}

	g, ctx = errgroup.WithContext(context.Background())
	maxResults := make([]int, len(universes))
	for i, u := range universes {
		i, u := i, u
		g.Go(func() error {
			got, err := u.Reduce(ctx, u.Rank()*10, ReduceMax)
			maxResults[i] = got
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
	for i, got := range maxResults {
		if got != 30 {
			t.Errorf("rank %d: Reduce(Max) got %d, want 30", i, got)
		}
	}
}
