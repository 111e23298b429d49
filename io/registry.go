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

package io

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"gocloud.dev/blob"
	"gocloud.dev/blob/fileblob"
	"gocloud.dev/blob/memblob"

	// URL openers used by the cloud schemes.
	_ "gocloud.dev/blob/azureblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/s3blob"
)

var ErrIONotFound = errors.New("io scheme not registered")

// SchemeFactory opens the bucket a location lives in and returns the key
// of the location within that bucket.
type SchemeFactory func(ctx context.Context, parsed *url.URL) (bucket *blob.Bucket, key string, err error)

type registry map[string]SchemeFactory

func (r registry) getKeys() []string {
	regMutex.Lock()
	defer regMutex.Unlock()

	return slices.Collect(maps.Keys(r))
}

func (r registry) set(scheme string, factory SchemeFactory) {
	regMutex.Lock()
	defer regMutex.Unlock()
	r[scheme] = factory
}

func (r registry) get(scheme string) (SchemeFactory, bool) {
	regMutex.Lock()
	defer regMutex.Unlock()
	factory, ok := r[scheme]

	return factory, ok
}

func (r registry) remove(scheme string) {
	regMutex.Lock()
	defer regMutex.Unlock()
	delete(r, scheme)
}

var (
	regMutex        sync.Mutex
	defaultRegistry = registry{}
)

// Register adds a new scheme factory to the registry. If the scheme is already registered, it will be replaced.
func Register(scheme string, factory SchemeFactory) {
	if factory == nil {
		panic("io: Register factory is nil")
	}
	defaultRegistry.set(scheme, factory)
}

// Unregister removes the requested scheme factory from the registry.
func Unregister(scheme string) {
	defaultRegistry.remove(scheme)
}

// GetRegisteredSchemes returns the list of registered scheme names.
func GetRegisteredSchemes() []string {
	return defaultRegistry.getKeys()
}

func init() {
	Register("file", localFactory)
	Register("", localFactory)

	Register("mem", memFactory)

	for _, scheme := range []string{"s3", "s3a", "s3n"} {
		Register(scheme, urlFactory("s3"))
	}
	Register("gs", urlFactory("gs"))
	Register("azblob", urlFactory("azblob"))
	for _, scheme := range []string{"abfs", "abfss", "wasb", "wasbs"} {
		Register(scheme, adlsFactory)
	}
}

var memBuckets = struct {
	sync.Mutex
	byHost map[string]*blob.Bucket
}{byHost: map[string]*blob.Bucket{}}

// memFactory hands out one process wide in-memory bucket per host so that
// data written under mem://host stays visible to later opens.
func memFactory(_ context.Context, parsed *url.URL) (*blob.Bucket, string, error) {
	memBuckets.Lock()
	defer memBuckets.Unlock()

	bucket, ok := memBuckets.byHost[parsed.Host]
	if !ok {
		bucket = memblob.OpenBucket(nil)
		memBuckets.byHost[parsed.Host] = bucket
	}

	return bucket, strings.TrimPrefix(parsed.Path, "/"), nil
}

// localFactory opens the directory named by the location, or the directory
// holding it when the location is a single file.
func localFactory(_ context.Context, parsed *url.URL) (*blob.Bucket, string, error) {
	dir, err := filepath.Abs(filepath.FromSlash(parsed.Path))
	if err != nil {
		return nil, "", err
	}

	info, err := os.Stat(dir)
	if err != nil {
		return nil, "", err
	}

	var key string
	if !info.IsDir() {
		dir, key = filepath.Dir(dir), filepath.Base(dir)
	}

	bucket, err := fileblob.OpenBucket(dir, nil)
	if err != nil {
		return nil, "", err
	}

	return bucket, key, nil
}

// urlFactory opens buckets through the gocloud URL mux, rewriting the scheme
// to the one the driver registers.
func urlFactory(driverScheme string) SchemeFactory {
	return func(ctx context.Context, parsed *url.URL) (*blob.Bucket, string, error) {
		bucketURL := url.URL{Scheme: driverScheme, Host: parsed.Host, RawQuery: parsed.RawQuery}
		bucket, err := blob.OpenBucket(ctx, bucketURL.String())
		if err != nil {
			return nil, "", err
		}

		return bucket, strings.TrimPrefix(parsed.Path, "/"), nil
	}
}

// adlsFactory handles container@account.dfs.core.windows.net style locations.
func adlsFactory(ctx context.Context, parsed *url.URL) (*blob.Bucket, string, error) {
	if parsed.User == nil || parsed.User.Username() == "" {
		return nil, "", fmt.Errorf("%s location %q has no container", parsed.Scheme, parsed.Redacted())
	}

	query := parsed.Query()
	if account, _, ok := strings.Cut(parsed.Host, "."); ok && query.Get("storage_account") == "" {
		query.Set("storage_account", account)
	}

	bucketURL := url.URL{Scheme: "azblob", Host: parsed.User.Username(), RawQuery: query.Encode()}
	bucket, err := blob.OpenBucket(ctx, bucketURL.String())
	if err != nil {
		return nil, "", err
	}

	return bucket, strings.TrimPrefix(parsed.Path, "/"), nil
}
