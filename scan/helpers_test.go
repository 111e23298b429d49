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

package scan_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/apache/arrow-dataset-go/scan"
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"github.com/stretchr/testify/require"
)

var (
	xsSchema = arrow.NewSchema([]arrow.Field{
		{Name: "x", Type: arrow.PrimitiveTypes.Int32, Nullable: true},
		{Name: "s", Type: arrow.BinaryTypes.String, Nullable: true},
	}, nil)

	statsSchema = arrow.NewSchema([]arrow.Field{
		{Name: "x", Type: arrow.PrimitiveTypes.Int32, Nullable: true},
		{Name: "s", Type: arrow.BinaryTypes.String, Nullable: true},
		{Name: "n", Type: arrow.PrimitiveTypes.Int32, Nullable: true},
	}, nil)
)

func recordFromJSON(t *testing.T, mem memory.Allocator, schema *arrow.Schema, js string) arrow.Record {
	t.Helper()
	rec, _, err := array.RecordFromJSON(mem, schema, strings.NewReader(js))
	require.NoError(t, err)

	return rec
}

// writeParquet writes the rows as a Parquet file with rowsPerGroup rows in
// every row group and returns its bytes.
func writeParquet(t *testing.T, schema *arrow.Schema, js string, rowsPerGroup int64) []byte {
	t.Helper()

	rec := recordFromJSON(t, memory.DefaultAllocator, schema, js)
	defer rec.Release()

	tbl := array.NewTableFromRecords(schema, []arrow.Record{rec})
	defer tbl.Release()

	var buf bytes.Buffer
	require.NoError(t, pqarrow.WriteTable(tbl, &buf, rowsPerGroup,
		parquet.NewWriterProperties(parquet.WithStats(true)),
		pqarrow.DefaultWriterProps()))

	return buf.Bytes()
}

func openBytes(data []byte) scan.OpenFunc {
	return func(context.Context, string) (parquet.ReaderAtSeeker, error) {
		return bytes.NewReader(data), nil
	}
}

func collect(t *testing.T, batches func(func(arrow.Record, error) bool)) []int32 {
	t.Helper()

	var out []int32
	for rec, err := range batches {
		require.NoError(t, err)
		col := rec.Column(0).(*array.Int32)
		for i := range col.Len() {
			if col.IsValid(i) {
				out = append(out, col.Value(i))
			}
		}
		rec.Release()
	}

	return out
}
