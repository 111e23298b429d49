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

package main

import (
	"context"
	"errors"
	"fmt"
	"path"
	"slices"
	"strconv"
	"strings"

	dataset "github.com/apache/arrow-dataset-go"
	dsio "github.com/apache/arrow-dataset-go/io"
	"github.com/apache/arrow-dataset-go/scan"
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/parquet"
)

const (
	partitioningNone      = "none"
	partitioningHive      = "hive"
	partitioningDirectory = "directory"
)

// source is a discovered dataset: every parquet file below a location
// together with the partition expression derived from its directory.
type source struct {
	fs           *dsio.FS
	keys         []string
	partitioning dataset.Partitioning
	fragments    []scan.Fragment
	// fileSchema is the schema of the records read from the files, schema
	// adds the partition fields to it.
	fileSchema *arrow.Schema
	schema     *arrow.Schema
}

func (s *source) Close() error { return s.fs.Close() }

func discover(ctx context.Context, location, flavor string, partitionFields []string) (*source, error) {
	fs, err := dsio.Open(ctx, location)
	if err != nil {
		return nil, err
	}

	src, err := newSource(ctx, fs, flavor, partitionFields)
	if err != nil {
		fs.Close()

		return nil, err
	}

	return src, nil
}

func newSource(ctx context.Context, fs *dsio.FS, flavor string, partitionFields []string) (*source, error) {
	keys, err := parquetKeys(ctx, fs)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, errors.New("no parquet files found")
	}

	open := func(ctx context.Context, key string) (parquet.ReaderAtSeeker, error) {
		f, err := fs.Open(ctx, key)
		if err != nil {
			return nil, err
		}

		return f, nil
	}

	fileSchema, err := scan.NewParquetFragment(keys[0], open, nil).Schema(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", keys[0], err)
	}

	src := &source{fs: fs, keys: keys, fileSchema: fileSchema, schema: fileSchema}
	dirs := make([]string, len(keys))
	for i, k := range keys {
		dirs[i] = keyDir(k)
	}

	switch flavor {
	case "", partitioningNone:
	case partitioningHive:
		src.partitioning = dataset.NewHivePartitioning(
			alignTypes(inferHiveSchema(dirs), fileSchema))
	case partitioningDirectory:
		if len(partitionFields) == 0 {
			return nil, errors.New("directory partitioning requires --partition-fields")
		}
		src.partitioning = dataset.NewDirectoryPartitioning(
			alignTypes(inferDirectorySchema(partitionFields, dirs), fileSchema))
	default:
		return nil, fmt.Errorf("unknown partitioning %q", flavor)
	}

	for i, key := range keys {
		partition := dataset.AlwaysTrue()
		if src.partitioning != nil {
			if partition, err = src.partitioning.Parse(dirs[i]); err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}
		}
		src.fragments = append(src.fragments, scan.NewParquetFragment(key, open, partition))
	}

	if src.partitioning != nil {
		src.schema = withPartitionFields(fileSchema, src.partitioning.Schema())
	}

	return src, nil
}

func parquetKeys(ctx context.Context, fs *dsio.FS) ([]string, error) {
	var keys []string
	for key, err := range fs.Walk(ctx, "") {
		if err != nil {
			return nil, err
		}

		base := path.Base(key)
		if strings.HasPrefix(base, ".") || strings.HasPrefix(base, "_") {
			continue
		}
		if strings.HasSuffix(base, ".parquet") {
			keys = append(keys, key)
		}
	}
	slices.Sort(keys)

	return keys, nil
}

func keyDir(key string) string {
	dir := path.Dir(key)
	if dir == "." {
		return ""
	}

	return dir
}

func fieldNames(schema *arrow.Schema) []string {
	names := make([]string, schema.NumFields())
	for i, f := range schema.Fields() {
		names[i] = f.Name
	}

	return names
}

// withPartitionFields appends the partition fields missing from the file
// schema so that conditions on partition keys can be typed.
func withPartitionFields(fileSchema, partSchema *arrow.Schema) *arrow.Schema {
	fields := slices.Clone(fileSchema.Fields())
	for _, f := range partSchema.Fields() {
		if !fileSchema.HasField(f.Name) {
			f.Nullable = true
			fields = append(fields, f)
		}
	}

	return arrow.NewSchema(fields, nil)
}

func inferHiveSchema(dirs []string) *arrow.Schema {
	var names []string
	values := map[string][]string{}
	for _, dir := range dirs {
		for _, seg := range strings.Split(dir, "/") {
			key, value, ok := strings.Cut(seg, "=")
			if !ok || key == "" {
				continue
			}
			if _, seen := values[key]; !seen {
				names = append(names, key)
			}
			values[key] = append(values[key], value)
		}
	}

	fields := make([]arrow.Field, len(names))
	for i, name := range names {
		fields[i] = arrow.Field{Name: name, Type: inferType(values[name]), Nullable: true}
	}

	return arrow.NewSchema(fields, nil)
}

func inferDirectorySchema(names []string, dirs []string) *arrow.Schema {
	values := make([][]string, len(names))
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		for i, seg := range strings.Split(dir, "/") {
			if i < len(names) {
				values[i] = append(values[i], seg)
			}
		}
	}

	fields := make([]arrow.Field, len(names))
	for i, name := range names {
		fields[i] = arrow.Field{Name: name, Type: inferType(values[i]), Nullable: true}
	}

	return arrow.NewSchema(fields, nil)
}

// alignTypes gives partition fields that also live in the data files the
// type they have there.
func alignTypes(partSchema, fileSchema *arrow.Schema) *arrow.Schema {
	fields := slices.Clone(partSchema.Fields())
	for i, f := range fields {
		if idx := fileSchema.FieldIndices(f.Name); len(idx) == 1 {
			fields[i].Type = fileSchema.Field(idx[0]).Type
		}
	}

	return arrow.NewSchema(fields, nil)
}

// inferType picks int32 when every non-null value is a base 10 integer
// that fits, and string otherwise.
func inferType(values []string) arrow.DataType {
	sawValue := false
	for _, v := range values {
		if v == dataset.HiveNullValue {
			continue
		}
		sawValue = true
		if _, err := strconv.ParseInt(v, 10, 32); err != nil {
			return arrow.BinaryTypes.String
		}
	}

	if !sawValue {
		return arrow.BinaryTypes.String
	}

	return arrow.PrimitiveTypes.Int32
}
