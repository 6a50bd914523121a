// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package coordinator

import (
	"context"

	"github.com/grailbio/bigmachine"
	"github.com/grailbio/macroq"
	"github.com/grailbio/macroq/shuttle"
	"github.com/grailbio/macroq/universe"
)

// RunClaimLoopRequest names the coordinator a Claimer should dial to
// join the batch currently running there.
type RunClaimLoopRequest struct {
	CoordinatorAddr string
}

// RunClaimLoopResponse carries no fields; RunClaimLoop returns once the
// coordinator reports no more waiting tasks.
type RunClaimLoopResponse struct{}

// Claimer is the bigmachine service that makes a remote universe rank
// do real work, rather than only acknowledge the driver's collective
// calls the way the universe package's own Worker service does. A
// Claimer is constructed by the driver and handed to
// universe.StartBigmachine as an extra service; the driver then calls
// RunClaimLoop once per machine (see cmd/macroworker) to set that
// machine claiming and running tasks against the coordinator over the
// same net/rpc transport a co-located subworld reaches through
// LocalDispatcher.
//
// A Claimer treats the machine it runs on as a subworld of one: every
// task it claims runs to completion on that machine alone, with no
// broadcast to cooperating peers. A task kind that relies on
// sw.BroadcastInt/BroadcastBytes to coordinate several ranks on one
// Run call only gets that real coordination from ranks that share a
// subworld with the driver (handled by the in-process RunWorker loop
// cmd/macroworker also starts); Claimer trades that away for the
// ability to run at all on machines the driver has no subworld handle
// for.
type Claimer struct {
	Store    shuttle.Store
	Registry *macroq.Registry
}

// Init satisfies bigmachine's service contract; Claimer keeps no
// per-machine state beyond what the driver set on it at construction.
func (c *Claimer) Init(b *bigmachine.B) error { return nil }

// RunClaimLoop dials the coordinator at req.CoordinatorAddr and claims
// and runs tasks from it until the queue reports no more waiting
// work, exactly as RunWorker does for a subworld co-located with the
// coordinator.
func (c *Claimer) RunClaimLoop(ctx context.Context, req RunClaimLoopRequest, reply *RunClaimLoopResponse) error {
	client, err := Dial(req.CoordinatorAddr, c.Registry)
	if err != nil {
		return err
	}
	defer client.Close()

	sw, err := universe.Partition(ctx, universe.NewLocal(1)[0], 1)
	if err != nil {
		return err
	}
	return RunWorker(ctx, sw, c.Store, c.Registry, client)
}
