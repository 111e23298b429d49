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

package dataset

import (
	"fmt"
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/scalar"
)

// HiveNullValue is the path value denoting a null partition value.
const HiveNullValue = "__HIVE_DEFAULT_PARTITION__"

// Partitioning derives the partition expression of a fragment from its
// path relative to the dataset root. The expression is the conjunction of
// "field == value" for every partition value found, or literal true when
// there is none.
type Partitioning interface {
	Schema() *arrow.Schema
	Parse(dir string) (Expression, error)
	// Format is the inverse of Parse for a row of partition values given in
	// schema order.
	Format(values []scalar.Scalar) (string, error)
}

// DirectoryPartitioning treats the i-th directory of a path as the value
// of the i-th field of its schema, e.g. "2009/11" for (year, month).
type DirectoryPartitioning struct {
	schema *arrow.Schema
}

func NewDirectoryPartitioning(schema *arrow.Schema) DirectoryPartitioning {
	return DirectoryPartitioning{schema: schema}
}

func (d DirectoryPartitioning) Schema() *arrow.Schema { return d.schema }

func (d DirectoryPartitioning) Parse(dir string) (Expression, error) {
	exprs := make([]Expression, 0, d.schema.NumFields())
	for i, seg := range splitSegments(dir) {
		if i >= d.schema.NumFields() {
			break
		}

		e, err := partitionEquality(d.schema.Field(i), seg)
		if err != nil {
			return nil, err
		}
		exprs = append(exprs, e)
	}

	return AndAll(exprs...), nil
}

func (d DirectoryPartitioning) Format(values []scalar.Scalar) (string, error) {
	if len(values) > d.schema.NumFields() {
		return "", fmt.Errorf("%w: %d partition values for %d fields",
			ErrInvalidArgument, len(values), d.schema.NumFields())
	}

	segments := make([]string, 0, len(values))
	for _, v := range values {
		if !v.IsValid() {
			return "", fmt.Errorf("%w: directory partitioning cannot encode null values",
				ErrInvalidArgument)
		}
		segments = append(segments, url.QueryEscape(v.String()))
	}

	return path.Join(segments...), nil
}

// HivePartitioning reads "key=value" directories. Keys missing from the
// schema are ignored and HiveNullValue is parsed as a null.
type HivePartitioning struct {
	schema *arrow.Schema
}

func NewHivePartitioning(schema *arrow.Schema) HivePartitioning {
	return HivePartitioning{schema: schema}
}

func (h HivePartitioning) Schema() *arrow.Schema { return h.schema }

func (h HivePartitioning) Parse(dir string) (Expression, error) {
	var exprs []Expression
	for _, seg := range splitSegments(dir) {
		key, value, ok := strings.Cut(seg, "=")
		if !ok {
			continue
		}

		idx := h.schema.FieldIndices(key)
		if len(idx) == 0 {
			continue
		}

		e, err := partitionEquality(h.schema.Field(idx[0]), value)
		if err != nil {
			return nil, err
		}
		exprs = append(exprs, e)
	}

	return AndAll(exprs...), nil
}

func (h HivePartitioning) Format(values []scalar.Scalar) (string, error) {
	if len(values) > h.schema.NumFields() {
		return "", fmt.Errorf("%w: %d partition values for %d fields",
			ErrInvalidArgument, len(values), h.schema.NumFields())
	}

	segments := make([]string, 0, len(values))
	for i, v := range values {
		valueStr := HiveNullValue
		if v.IsValid() {
			valueStr = v.String()
		}

		segments = append(segments, fmt.Sprintf("%s=%s",
			url.QueryEscape(h.schema.Field(i).Name), url.QueryEscape(valueStr)))
	}

	return path.Join(segments...), nil
}

func splitSegments(dir string) []string {
	dir = strings.Trim(path.Clean("/"+dir), "/")
	if dir == "" {
		return nil
	}

	return strings.Split(dir, "/")
}

func partitionEquality(field arrow.Field, raw string) (Expression, error) {
	raw, err := url.QueryUnescape(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: partition value %q for field %s: %w",
			ErrInvalidArgument, raw, field.Name, err)
	}

	if raw == HiveNullValue {
		return IsNull(Field(field.Name)), nil
	}

	value, err := parsePartitionValue(field.Type, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: partition value %q for field %s: %w",
			ErrInvalidSchema, raw, field.Name, err)
	}

	return EqualTo(Field(field.Name), value), nil
}

// parsePartitionValue reads integers in base 10 so that zero padded
// values such as "08" are accepted, everything else goes through
// scalar.ParseScalar.
func parsePartitionValue(dt arrow.DataType, raw string) (scalar.Scalar, error) {
	switch dt.ID() {
	case arrow.INT8, arrow.INT16, arrow.INT32, arrow.INT64:
		width := dt.(arrow.FixedWidthDataType).BitWidth()
		v, err := strconv.ParseInt(raw, 10, width)
		if err != nil {
			return nil, err
		}

		return scalar.MakeIntegerScalar(v, width)
	case arrow.UINT8, arrow.UINT16, arrow.UINT32, arrow.UINT64:
		width := dt.(arrow.FixedWidthDataType).BitWidth()
		v, err := strconv.ParseUint(raw, 10, width)
		if err != nil {
			return nil, err
		}

		return scalar.MakeUnsignedIntegerScalar(v, width)
	}

	return scalar.ParseScalar(dt, raw)
}
