// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package example provides illustrative task kinds standing in for the
// quasi-Newton optimizer and eigensolver adapter that this module's
// queue was originally built to dispatch work for. Neither of those
// subsystems is specified here; SquareTask and MatrixSquareTask just
// give the scheduler and the shuttle something real to run against, a
// plain scalar payload and a heavy, subworld-bound one.
package example

import (
	"context"
	"encoding/gob"
	"io"

	"github.com/grailbio/macroq"
	"github.com/grailbio/macroq/universe"
)

// SquareInput is the payload Map binds to a fresh SquareTask per
// element of an input vector.
type SquareInput struct {
	I int
	D float64
}

// SquareTask squares its D field in place. It carries no heavy fields,
// so it does not implement macroq.ShuttlingTask: the shuttle never
// runs for it.
type SquareTask struct {
	I int
	D float64
}

// SquareTaskKind is SquareTask's registered kind tag.
const SquareTaskKind = "example.SquareTask"

func (t *SquareTask) Run(ctx context.Context, sw *universe.Subworld) error {
	t.D = t.D * t.D
	return nil
}

func (t *SquareTask) Serialize(w io.Writer) error {
	return gob.NewEncoder(w).Encode(struct {
		I int
		D float64
	}{t.I, t.D})
}

func (t *SquareTask) Deserialize(r io.Reader) error {
	var v struct {
		I int
		D float64
	}
	if err := gob.NewDecoder(r).Decode(&v); err != nil {
		return err
	}
	t.I, t.D = v.I, v.D
	return nil
}

func (t *SquareTask) KindTag() string { return SquareTaskKind }

// Bind returns a new SquareTask for one SquareInput, so a zero-valued
// SquareTask can serve as a coordinator.Cloner template for Map.
func (t *SquareTask) Bind(input interface{}) macroq.Task {
	in := input.(SquareInput)
	return &SquareTask{I: in.I, D: in.D}
}

// PrioritizedSquareTask is SquareTask plus a claim priority, for
// exercising the scheduler's priority ordering: among waiting tasks,
// higher Pri is claimed before lower, ties broken by enrollment index.
type PrioritizedSquareTask struct {
	I   int
	D   float64
	Pri int
}

// PrioritizedSquareTaskKind is PrioritizedSquareTask's registered kind
// tag.
const PrioritizedSquareTaskKind = "example.PrioritizedSquareTask"

func (t *PrioritizedSquareTask) Run(ctx context.Context, sw *universe.Subworld) error {
	t.D = t.D * t.D
	return nil
}

func (t *PrioritizedSquareTask) Serialize(w io.Writer) error {
	return gob.NewEncoder(w).Encode(struct {
		I   int
		D   float64
		Pri int
	}{t.I, t.D, t.Pri})
}

func (t *PrioritizedSquareTask) Deserialize(r io.Reader) error {
	var v struct {
		I   int
		D   float64
		Pri int
	}
	if err := gob.NewDecoder(r).Decode(&v); err != nil {
		return err
	}
	t.I, t.D, t.Pri = v.I, v.D, v.Pri
	return nil
}

func (t *PrioritizedSquareTask) KindTag() string { return PrioritizedSquareTaskKind }

// Priority implements macroq.Prioritized.
func (t *PrioritizedSquareTask) Priority() int { return t.Pri }

// PrioritizedSquareInput is the payload bound per element, carrying
// the desired claim priority alongside the scalar to square.
type PrioritizedSquareInput struct {
	I   int
	D   float64
	Pri int
}

func (t *PrioritizedSquareTask) Bind(input interface{}) macroq.Task {
	in := input.(PrioritizedSquareInput)
	return &PrioritizedSquareTask{I: in.I, D: in.D, Pri: in.Pri}
}
