// Licensed to the Apache Software Foundation (ASF) under one
// or more contributor license agreements.  See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership.  The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License.  You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing,
// software distributed under the License is distributed on an
// "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
// KIND, either express or implied.  See the License for the
// specific language governing permissions and limitations
// under the License.

// Package io opens dataset locations on local disk or object storage and
// exposes the objects under them as random access files.
package io

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/url"
	"path"
	"strings"

	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"
)

// File is a read-only handle on a single object. It satisfies the
// parquet reader's ReaderAtSeeker requirement.
type File interface {
	io.ReadSeekCloser
	io.ReaderAt

	Size() int64
}

// FS is a view of the objects stored beneath a root key of a bucket.
type FS struct {
	bucket *blob.Bucket
	root   string
	// only is set when the location named a single object.
	only   string
	shared bool
}

// NewFS wraps bucket so that keys are resolved relative to root.
func NewFS(bucket *blob.Bucket, root string) *FS {
	return &FS{bucket: bucket, root: normalizeRoot(root)}
}

func normalizeRoot(root string) string {
	root = strings.Trim(root, "/")
	if root == "" {
		return ""
	}

	return root + "/"
}

func isLocalPath(parsed *url.URL) bool {
	// a single letter scheme is a windows drive
	return parsed.Scheme == "" || len(parsed.Scheme) == 1
}

// Open resolves location using the registered scheme factories. A location
// naming an existing object yields an FS containing only that object,
// anything else is treated as a directory prefix.
func Open(ctx context.Context, location string) (*FS, error) {
	parsed, err := url.Parse(location)
	if err != nil || isLocalPath(parsed) {
		parsed = &url.URL{Path: location}
	}

	factory, ok := defaultRegistry.get(parsed.Scheme)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrIONotFound, parsed.Scheme)
	}

	bucket, key, err := factory(ctx, parsed)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", location, err)
	}

	fs := &FS{bucket: bucket, shared: parsed.Scheme == "mem"}
	key = strings.TrimSuffix(key, "/")
	if key == "" {
		return fs, nil
	}

	exists, err := bucket.Exists(ctx, key)
	if err != nil {
		fs.Close()

		return nil, fmt.Errorf("opening %s: %w", location, err)
	}

	if exists {
		dir, base := path.Split(key)
		fs.root, fs.only = normalizeRoot(dir), base
	} else {
		fs.root = normalizeRoot(key)
	}

	return fs, nil
}

// Bucket returns the underlying bucket.
func (fs *FS) Bucket() *blob.Bucket { return fs.bucket }

// Open opens the object at key, relative to the root of fs.
func (fs *FS) Open(ctx context.Context, key string) (File, error) {
	key = strings.TrimPrefix(key, "/")
	if fs.only != "" && key != fs.only {
		return nil, fmt.Errorf("%w: %s", errNotExist, key)
	}

	name := fs.root + key
	attrs, err := fs.bucket.Attributes(ctx, name)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, fmt.Errorf("%w: %s", errNotExist, key)
		}

		return nil, err
	}

	return &blobFile{
		ctx:    ctx,
		bucket: fs.bucket,
		key:    name,
		size:   attrs.Size,
	}, nil
}

var errNotExist = errors.New("object does not exist")

// IsNotExist reports whether err was returned for a missing object.
func IsNotExist(err error) bool {
	return errors.Is(err, errNotExist)
}

// Walk yields the keys of every object below prefix, relative to the root
// of fs, in the order the bucket lists them.
func (fs *FS) Walk(ctx context.Context, prefix string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if fs.only != "" {
			if strings.HasPrefix(fs.only, prefix) {
				yield(fs.only, nil)
			}

			return
		}

		it := fs.bucket.List(&blob.ListOptions{Prefix: fs.root + prefix})
		for {
			obj, err := it.Next(ctx)
			if err == io.EOF {
				return
			}
			if err != nil {
				yield("", err)

				return
			}
			if obj.IsDir {
				continue
			}

			if !yield(strings.TrimPrefix(obj.Key, fs.root), nil) {
				return
			}
		}
	}
}

// Close releases the bucket. In-memory buckets are shared and stay open.
func (fs *FS) Close() error {
	if fs.shared {
		return nil
	}

	return fs.bucket.Close()
}
