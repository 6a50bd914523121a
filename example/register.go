// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package example

import "github.com/grailbio/macroq"

// Register adds every task kind this package defines to reg.
func Register(reg *macroq.Registry) {
	reg.Register(SquareTaskKind, func() macroq.Task { return &SquareTask{} })
	reg.Register(PrioritizedSquareTaskKind, func() macroq.Task { return &PrioritizedSquareTask{} })
	reg.Register(MatrixSquareTaskKind, func() macroq.Task { return &MatrixSquareTask{} })
}
