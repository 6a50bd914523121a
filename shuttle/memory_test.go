// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package shuttle

import (
	"bytes"
	"context"
	"io"
	"io/ioutil"
	"testing"

	"github.com/grailbio/base/errors"
)

func testStoreRoundTrip(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()
	want := []byte("some shuttled payload")

	err := store.Persist(ctx, "a", func(w io.Writer) error {
		_, err := w.Write(want)
		return err
	})
	if err != nil {
		t.Fatalf("Persist: %v", err)
	}

	var got []byte
	err = store.Load(ctx, "a", func(r io.Reader) error {
		var readErr error
		got, readErr = ioutil.ReadAll(r)
		return readErr
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("Load returned %q, want %q", got, want)
	}

	if err := store.Remove(ctx, "a"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	err = store.Load(ctx, "a", func(io.Reader) error { return nil })
	if !errors.Is(errors.NotExist, err) {
		t.Errorf("Load after Remove: got %v, want NotExist", err)
	}
}

func testStoreMissing(t *testing.T, store Store) {
	t.Helper()
	err := store.Load(context.Background(), "nope", func(io.Reader) error { return nil })
	if !errors.Is(errors.NotExist, err) {
		t.Errorf("Load of missing name: got %v, want NotExist", err)
	}
}

func TestMemoryRoundTrip(t *testing.T) {
	testStoreRoundTrip(t, NewMemory())
}

func TestMemoryMissing(t *testing.T) {
	testStoreMissing(t, NewMemory())
}

func TestMemoryRemoveMissingIsNotError(t *testing.T) {
	m := NewMemory()
	if err := m.Remove(context.Background(), "nope"); err != nil {
		t.Errorf("Remove of missing name: got %v, want nil", err)
	}
}

func TestDecodeChecksummedDetectsCorruption(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	if err := m.Persist(ctx, "a", func(w io.Writer) error {
		_, err := w.Write([]byte("payload"))
		return err
	}); err != nil {
		t.Fatalf("Persist: %v", err)
	}
	m.entries["a"][0] ^= 0xff // flip a byte in the payload

	err := m.Load(ctx, "a", func(io.Reader) error { return nil })
	if err == nil {
		t.Fatal("Load of corrupted entry: got nil error, want checksum failure")
	}
}
