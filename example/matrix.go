// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package example

import (
	"context"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"io"

	"github.com/grailbio/macroq"
	"github.com/grailbio/macroq/universe"
	"gonum.org/v1/gonum/mat"
)

// MatrixInput is the payload Map binds to a fresh MatrixSquareTask per
// element of an input vector. M stands in for the numerical object
// (the component this queue was built to schedule work for) that is
// too large to carry inline with the rest of the task and must travel
// through the shuttle instead.
type MatrixInput struct {
	I int
	D float64
	M *mat.Dense
}

// MatrixSquareTask multiplies its heavy M field by itself. M is not
// part of Serialize/Deserialize; it only ever moves through
// PersistInput/LoadInput and PersistOutput/LoadOutput, exercising the
// shuttle the way this module's teacher's own partitioned-slice tasks
// exercise a side store.
type MatrixSquareTask struct {
	I int
	D float64
	M *mat.Dense
}

// MatrixSquareTaskKind is MatrixSquareTask's registered kind tag.
const MatrixSquareTaskKind = "example.MatrixSquareTask"

func (t *MatrixSquareTask) Run(ctx context.Context, sw *universe.Subworld) error {
	if t.M == nil {
		return fmt.Errorf("example: MatrixSquareTask.Run: M not loaded")
	}
	r, c := t.M.Dims()
	if r != c {
		return fmt.Errorf("example: MatrixSquareTask.Run: M is %dx%d, not square", r, c)
	}
	var out mat.Dense
	out.Mul(t.M, t.M)
	t.M = &out
	t.D = t.D * t.D
	return nil
}

func (t *MatrixSquareTask) Serialize(w io.Writer) error {
	return gob.NewEncoder(w).Encode(struct {
		I int
		D float64
	}{t.I, t.D})
}

func (t *MatrixSquareTask) Deserialize(r io.Reader) error {
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

func (t *MatrixSquareTask) KindTag() string { return MatrixSquareTaskKind }

func (t *MatrixSquareTask) Bind(input interface{}) macroq.Task {
	in := input.(MatrixInput)
	return &MatrixSquareTask{I: in.I, D: in.D, M: in.M}
}

// PersistInput writes M to the shuttle under name and frees it, so the
// enrolling rank's memory does not have to hold every enrolled task's
// matrix for the lifetime of the batch.
func (t *MatrixSquareTask) PersistInput(ctx context.Context, sw *universe.Subworld, store macroq.Store, name string) error {
	if err := persistMatrix(ctx, store, name, t.M); err != nil {
		return err
	}
	t.M = nil
	return nil
}

// LoadInput reconstructs M from the shuttle, bound to sw: every member
// of sw calls LoadInput so that Run sees the same matrix on every
// rank.
func (t *MatrixSquareTask) LoadInput(ctx context.Context, sw *universe.Subworld, store macroq.Store, name string) error {
	m, err := loadMatrix(ctx, store, name)
	if err != nil {
		return err
	}
	t.M = m
	return nil
}

// PersistOutput writes the squared M to the shuttle under name.
func (t *MatrixSquareTask) PersistOutput(ctx context.Context, sw *universe.Subworld, store macroq.Store, name string) error {
	return persistMatrix(ctx, store, name, t.M)
}

// LoadOutput reconstructs the squared M from the shuttle.
func (t *MatrixSquareTask) LoadOutput(ctx context.Context, sw *universe.Subworld, store macroq.Store, name string) error {
	m, err := loadMatrix(ctx, store, name)
	if err != nil {
		return err
	}
	t.M = m
	return nil
}

func persistMatrix(ctx context.Context, store macroq.Store, name string, m *mat.Dense) error {
	return store.Persist(ctx, name, func(w io.Writer) error {
		raw, err := m.MarshalBinary()
		if err != nil {
			return err
		}
		var lenBuf [8]byte
		binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(raw)))
		if _, err := w.Write(lenBuf[:]); err != nil {
			return err
		}
		_, err = w.Write(raw)
		return err
	})
}

func loadMatrix(ctx context.Context, store macroq.Store, name string) (*mat.Dense, error) {
	var m mat.Dense
	err := store.Load(ctx, name, func(r io.Reader) error {
		var lenBuf [8]byte
		if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
			return err
		}
		n := binary.LittleEndian.Uint64(lenBuf[:])
		raw := make([]byte, n)
		if _, err := io.ReadFull(r, raw); err != nil {
			return err
		}
		return m.UnmarshalBinary(raw)
	})
	if err != nil {
		return nil, err
	}
	return &m, nil
}
