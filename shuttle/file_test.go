// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package shuttle

import (
	"testing"

	"github.com/grailbio/testutil"
)

func TestFileRoundTrip(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	testStoreRoundTrip(t, NewFileStore(dir))
}

func TestFileMissing(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	testStoreMissing(t, NewFileStore(dir))
}
