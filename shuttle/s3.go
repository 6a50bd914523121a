// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package shuttle

import (
	"bytes"
	"context"
	"io"
	"io/ioutil"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
)

// S3Store is a Store backed directly by an S3 bucket and key prefix.
// It is a second blob-store backend alongside FileStore and Memory,
// for deployments that want to address the side store without going
// through grailfile's own S3 support.
type S3Store struct {
	Bucket   string
	Prefix   string
	Client   *s3.S3
	Uploader *s3manager.Uploader
}

// NewS3Store returns an S3Store using client for a given bucket and
// key prefix.
func NewS3Store(client *s3.S3, bucket, prefix string) *S3Store {
	return &S3Store{
		Bucket:   bucket,
		Prefix:   prefix,
		Client:   client,
		Uploader: s3manager.NewUploaderWithClient(client),
	}
}

func (s *S3Store) key(name string) string {
	if s.Prefix == "" {
		return name
	}
	return s.Prefix + "/" + name
}

func (s *S3Store) Persist(ctx context.Context, name string, write func(io.Writer) error) error {
	raw, err := encodeChecksummed(write)
	if err != nil {
		return err
	}
	_, err = s.Uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(s.key(name)),
		Body:   bytes.NewReader(raw),
	})
	if err != nil {
		return sideStoreIO(name, err)
	}
	return nil
}

func (s *S3Store) Load(ctx context.Context, name string, read func(io.Reader) error) error {
	out, err := s.Client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(s.key(name)),
	})
	if err != nil {
		if aerr, ok := err.(awserr.Error); ok && aerr.Code() == s3.ErrCodeNoSuchKey {
			return notExist(name)
		}
		return sideStoreIO(name, err)
	}
	defer out.Body.Close()
	raw, err := ioutil.ReadAll(out.Body)
	if err != nil {
		return sideStoreIO(name, err)
	}
	return decodeChecksummed(raw, name, read)
}

func (s *S3Store) Remove(ctx context.Context, name string) error {
	_, err := s.Client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(s.key(name)),
	})
	if err != nil {
		return sideStoreIO(name, err)
	}
	return nil
}
