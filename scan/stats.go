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
	"fmt"

	dataset "github.com/apache/arrow-dataset-go"
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/arrow/scalar"
	"github.com/apache/arrow-go/v18/parquet/metadata"
)

// RowGroupStatisticsAsExpression converts the column chunk statistics of a
// single row group into a guarantee expression over the given schema.
//
// Every top-level column whose statistics carry a min and a max contributes
// field >= min AND field <= max. The range describes the non-null values
// only, so the result is meant for pruning: a filter that simplifies to
// false under it cannot select any row of the group. A column consisting
// only of nulls contributes NOT(IS_VALID(field)).
//
// ok is false when nothing is known about the row group.
func RowGroupStatisticsAsExpression(rowGroup *metadata.RowGroupMetaData, schema *arrow.Schema) (dataset.Expression, bool, error) {
	if rowGroup == nil || schema == nil {
		return nil, false, fmt.Errorf("%w: row group metadata and schema are required",
			dataset.ErrInvalidArgument)
	}

	guarantees := make([]dataset.Expression, 0, rowGroup.NumColumns())
	for pos := range rowGroup.NumColumns() {
		chunk, err := rowGroup.ColumnChunk(pos)
		if err != nil {
			return nil, false, err
		}

		path := chunk.PathInSchema()
		if len(path) != 1 {
			// nested leaf, no top-level field to describe
			continue
		}

		indices := schema.FieldIndices(path[0])
		if len(indices) != 1 {
			continue
		}
		field := schema.Field(indices[0])

		set, err := chunk.StatsSet()
		if err != nil {
			return nil, false, err
		}
		if !set {
			continue
		}

		stats, err := chunk.Statistics()
		if err != nil {
			return nil, false, err
		}
		if stats == nil {
			continue
		}

		ref := dataset.Field(field.Name)
		if stats.HasNullCount() && rowGroup.NumRows() > 0 &&
			stats.NullCount() == rowGroup.NumRows() {
			guarantees = append(guarantees, dataset.IsNull(ref))

			continue
		}

		if !stats.HasMinMax() {
			continue
		}

		minVal, maxVal, ok := statsBounds(stats, field.Type)
		if !ok {
			continue
		}

		guarantees = append(guarantees,
			dataset.GreaterThanEqual(ref, minVal),
			dataset.LessThanEqual(ref, maxVal))
	}

	if len(guarantees) == 0 {
		return dataset.AlwaysTrue(), false, nil
	}

	return dataset.AndAll(guarantees...), true, nil
}

// statsBounds converts the physical min/max of a column chunk into scalars
// of the arrow type the column is read as.
func statsBounds(stats metadata.TypedStatistics, dt arrow.DataType) (minVal, maxVal scalar.Scalar, ok bool) {
	switch s := stats.(type) {
	case *metadata.BooleanStatistics:
		if dt.ID() == arrow.BOOL {
			return scalar.NewBooleanScalar(s.Min()), scalar.NewBooleanScalar(s.Max()), true
		}
	case *metadata.Int32Statistics:
		lo, hi := s.Min(), s.Max()
		switch dt.ID() {
		case arrow.INT8:
			return scalar.NewInt8Scalar(int8(lo)), scalar.NewInt8Scalar(int8(hi)), true
		case arrow.INT16:
			return scalar.NewInt16Scalar(int16(lo)), scalar.NewInt16Scalar(int16(hi)), true
		case arrow.INT32:
			return scalar.NewInt32Scalar(lo), scalar.NewInt32Scalar(hi), true
		case arrow.UINT8:
			return scalar.NewUint8Scalar(uint8(lo)), scalar.NewUint8Scalar(uint8(hi)), true
		case arrow.UINT16:
			return scalar.NewUint16Scalar(uint16(lo)), scalar.NewUint16Scalar(uint16(hi)), true
		case arrow.UINT32:
			return scalar.NewUint32Scalar(uint32(lo)), scalar.NewUint32Scalar(uint32(hi)), true
		case arrow.DATE32:
			return scalar.NewDate32Scalar(arrow.Date32(lo)), scalar.NewDate32Scalar(arrow.Date32(hi)), true
		}
	case *metadata.Int64Statistics:
		lo, hi := s.Min(), s.Max()
		switch dt.ID() {
		case arrow.INT64:
			return scalar.NewInt64Scalar(lo), scalar.NewInt64Scalar(hi), true
		case arrow.UINT64:
			return scalar.NewUint64Scalar(uint64(lo)), scalar.NewUint64Scalar(uint64(hi)), true
		}
	case *metadata.Float32Statistics:
		if dt.ID() == arrow.FLOAT32 {
			return scalar.NewFloat32Scalar(s.Min()), scalar.NewFloat32Scalar(s.Max()), true
		}
	case *metadata.Float64Statistics:
		if dt.ID() == arrow.FLOAT64 {
			return scalar.NewFloat64Scalar(s.Min()), scalar.NewFloat64Scalar(s.Max()), true
		}
	case *metadata.ByteArrayStatistics:
		lo, hi := string(s.Min()), string(s.Max())
		switch dt.ID() {
		case arrow.STRING:
			return scalar.NewStringScalar(lo), scalar.NewStringScalar(hi), true
		case arrow.LARGE_STRING:
			return scalar.NewLargeStringScalar(lo), scalar.NewLargeStringScalar(hi), true
		case arrow.BINARY:
			return scalar.NewBinaryScalar(memory.NewBufferBytes([]byte(lo)), dt),
				scalar.NewBinaryScalar(memory.NewBufferBytes([]byte(hi)), dt), true
		}
	}

	return nil, nil, false
}
