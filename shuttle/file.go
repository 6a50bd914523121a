// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package shuttle

import (
	"context"
	"io"
	"io/ioutil"

	baseerrors "github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
)

// FileStore is a Store backed by grailfile, so a shuttled payload can live
// at any URL grailfile supports (local disk, S3, and so on). Each
// entry lives at "{prefix}/{name}".
type FileStore struct {
	// Prefix is the grailfile prefix under which entries are stored.
	Prefix string
}

// NewFileStore returns a FileStore rooted at prefix.
func NewFileStore(prefix string) *FileStore {
	return &FileStore{Prefix: prefix}
}

func (s *FileStore) path(name string) string {
	return file.Join(s.Prefix, name)
}

func (s *FileStore) Persist(ctx context.Context, name string, write func(io.Writer) error) error {
	raw, err := encodeChecksummed(write)
	if err != nil {
		return err
	}
	path := s.path(name)
	f, err := file.Create(ctx, path)
	if err != nil {
		return sideStoreIO(name, err)
	}
	if _, err := f.Writer(ctx).Write(raw); err != nil {
		_ = closeFile(ctx, f)
		return sideStoreIO(name, err)
	}
	if err := closeFile(ctx, f); err != nil {
		return sideStoreIO(name, err)
	}
	return nil
}

// closeNoSyncer is implemented by grailfile backends (local disk,
// most notably) that can skip an fsync on close. A payload already
// has a checksum trailer covering its bytes, so a side store entry
// that loses an un-fsynced write is caught by decodeChecksummed on
// the next Load rather than silently corrupting a batch.
type closeNoSyncer interface {
	CloseNoSync(context.Context) error
}

func closeFile(ctx context.Context, f file.File) error {
	if closer, ok := f.(closeNoSyncer); ok {
		return closer.CloseNoSync(ctx)
	}
	return f.Close(ctx)
}

func (s *FileStore) Load(ctx context.Context, name string, read func(io.Reader) error) error {
	path := s.path(name)
	f, err := file.Open(ctx, path)
	if err != nil {
		if baseerrors.Is(baseerrors.NotExist, err) {
			return notExist(name)
		}
		return sideStoreIO(name, err)
	}
	defer f.Close(ctx)
	raw, err := ioutil.ReadAll(f.Reader(ctx))
	if err != nil {
		return sideStoreIO(name, err)
	}
	return decodeChecksummed(raw, name, read)
}

func (s *FileStore) Remove(ctx context.Context, name string) error {
	path := s.path(name)
	if err := file.Remove(ctx, path); err != nil && !baseerrors.Is(baseerrors.NotExist, err) {
		return sideStoreIO(name, err)
	}
	return nil
}
