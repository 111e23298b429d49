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

package scan

import (
	"context"
	"fmt"
	"io"
	"iter"
	"sync"

	dataset "github.com/apache/arrow-dataset-go"
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/compute"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"github.com/go-kit/log/level"
)

// Fragment is an independently readable piece of a dataset, such as a
// single file, together with the guarantee that holds for all of its rows.
type Fragment interface {
	// Schema returns the schema of the batches produced by Records.
	Schema(ctx context.Context) (*arrow.Schema, error)
	// PartitionExpression is true for every row of the fragment.
	PartitionExpression() dataset.Expression
	// Records yields the batches of the fragment. The filter may be used
	// to skip data that cannot match it but is not applied row by row.
	// The caller owns the yielded records and must release them.
	Records(ctx context.Context, filter dataset.Expression) iter.Seq2[arrow.Record, error]
}

func partitionOrTrue(partition dataset.Expression) dataset.Expression {
	if partition == nil {
		return dataset.AlwaysTrue()
	}

	return partition
}

// InMemoryFragment is a fragment over record batches already in memory.
type InMemoryFragment struct {
	schema    *arrow.Schema
	records   []arrow.Record
	partition dataset.Expression
}

// NewInMemoryFragment creates a fragment over records, all of which must
// have the given schema. A nil partition expression means true.
// The fragment retains the records until Release is called.
func NewInMemoryFragment(schema *arrow.Schema, records []arrow.Record, partition dataset.Expression) (*InMemoryFragment, error) {
	for i, rec := range records {
		if !rec.Schema().Equal(schema) {
			return nil, fmt.Errorf("%w: record %d has schema %s, expected %s",
				dataset.ErrInvalidSchema, i, rec.Schema(), schema)
		}
	}

	for _, rec := range records {
		rec.Retain()
	}

	return &InMemoryFragment{
		schema:    schema,
		records:   records,
		partition: partitionOrTrue(partition),
	}, nil
}

func (f *InMemoryFragment) Schema(context.Context) (*arrow.Schema, error) { return f.schema, nil }

func (f *InMemoryFragment) PartitionExpression() dataset.Expression { return f.partition }

func (f *InMemoryFragment) Records(ctx context.Context, _ dataset.Expression) iter.Seq2[arrow.Record, error] {
	return func(yield func(arrow.Record, error) bool) {
		for _, rec := range f.records {
			if err := ctx.Err(); err != nil {
				yield(nil, err)

				return
			}

			rec.Retain()
			if !yield(rec, nil) {
				return
			}
		}
	}
}

// Release drops the references held on the fragment's records.
func (f *InMemoryFragment) Release() {
	for _, rec := range f.records {
		rec.Release()
	}
	f.records = nil
}

// OpenFunc opens the file at path for random access. If the returned
// reader is also an io.Closer it is closed once the file has been read.
type OpenFunc func(ctx context.Context, path string) (parquet.ReaderAtSeeker, error)

// ParquetFragment is a fragment backed by a single Parquet file. Row groups
// whose statistics rule out the filter are never decoded.
type ParquetFragment struct {
	path      string
	open      OpenFunc
	partition dataset.Expression

	schemaOnce sync.Once
	schema     *arrow.Schema
	schemaErr  error
}

// NewParquetFragment creates a fragment for the Parquet file at path.
// A nil partition expression means true.
func NewParquetFragment(path string, open OpenFunc, partition dataset.Expression) *ParquetFragment {
	if open == nil {
		panic(fmt.Errorf("%w: cannot create ParquetFragment without an OpenFunc",
			dataset.ErrInvalidArgument))
	}

	return &ParquetFragment{path: path, open: open, partition: partitionOrTrue(partition)}
}

// Path returns the location of the file.
func (f *ParquetFragment) Path() string { return f.path }

func (f *ParquetFragment) PartitionExpression() dataset.Expression { return f.partition }

func (f *ParquetFragment) Schema(ctx context.Context) (*arrow.Schema, error) {
	f.schemaOnce.Do(func() {
		var rdr *pqarrow.FileReader
		rdr, f.schemaErr = f.openReader(ctx, 0)
		if f.schemaErr != nil {
			return
		}
		defer rdr.ParquetReader().Close()

		f.schema, f.schemaErr = rdr.Schema()
	})

	return f.schema, f.schemaErr
}

func (f *ParquetFragment) openReader(ctx context.Context, batchSize int64) (*pqarrow.FileReader, error) {
	src, err := f.open(ctx, f.path)
	if err != nil {
		return nil, err
	}

	mem := compute.GetAllocator(ctx)
	rdr, err := file.NewParquetReader(src,
		file.WithReadProps(parquet.NewReaderProperties(mem)))
	if err != nil {
		if closer, ok := src.(io.Closer); ok {
			closer.Close()
		}

		return nil, fmt.Errorf("open parquet file %s: %w", f.path, err)
	}

	props := pqarrow.ArrowReadProperties{Parallel: true, BatchSize: batchSize}
	if props.BatchSize <= 0 {
		props.BatchSize = DefaultBatchSize
	}

	fr, err := pqarrow.NewFileReader(rdr, props, mem)
	if err != nil {
		rdr.Close()

		return nil, err
	}

	return fr, nil
}

// rowGroups returns the indices of the row groups that may contain rows
// matching filter along with the total number of row groups in the file.
func (f *ParquetFragment) rowGroups(fr *pqarrow.FileReader, schema *arrow.Schema, filter dataset.Expression) ([]int, int, error) {
	meta := fr.ParquetReader().MetaData()
	numRowGroups := fr.ParquetReader().NumRowGroups()

	selected := make([]int, 0, numRowGroups)
	for rg := range numRowGroups {
		guarantee, ok, err := RowGroupStatisticsAsExpression(meta.RowGroup(rg), schema)
		if err != nil {
			return nil, 0, err
		}

		if ok && dataset.IsTrivialFalse(filter.Assume(guarantee)) {
			continue
		}

		selected = append(selected, rg)
	}

	return selected, numRowGroups, nil
}

func (f *ParquetFragment) Records(ctx context.Context, filter dataset.Expression) iter.Seq2[arrow.Record, error] {
	if filter == nil {
		filter = dataset.AlwaysTrue()
	}

	return func(yield func(arrow.Record, error) bool) {
		state := stateFromContext(ctx)

		fr, err := f.openReader(ctx, state.batchSize)
		if err != nil {
			yield(nil, err)

			return
		}
		defer fr.ParquetReader().Close()

		schema, err := fr.Schema()
		if err != nil {
			yield(nil, err)

			return
		}

		selected, total, err := f.rowGroups(fr, schema, filter)
		if err != nil {
			yield(nil, err)

			return
		}

		if pruned := total - len(selected); pruned > 0 {
			state.stats.rowGroupsPruned.Add(int64(pruned))
			level.Debug(state.logger).Log("msg", "row groups pruned",
				"path", f.path, "pruned", pruned, "total", total)
		}

		if len(selected) == 0 {
			return
		}

		recRdr, err := fr.GetRecordReader(ctx, nil, selected)
		if err != nil {
			yield(nil, err)

			return
		}
		defer recRdr.Release()

		for recRdr.Next() {
			rec := recRdr.Record()
			rec.Retain()
			if !yield(rec, nil) {
				return
			}
		}

		if err := recRdr.Err(); err != nil && err != io.EOF {
			yield(nil, err)
		}
	}
}
