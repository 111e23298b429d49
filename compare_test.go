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

package dataset_test

import (
	"testing"

	dataset "github.com/apache/arrow-dataset-go"
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/decimal128"
	"github.com/apache/arrow-go/v18/arrow/float16"
	"github.com/apache/arrow-go/v18/arrow/scalar"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompareOrdering(t *testing.T) {
	dec := &arrow.Decimal128Type{Precision: 10, Scale: 2}

	tests := []struct {
		name     string
		lhs, rhs scalar.Scalar
		expected dataset.Ordering
	}{
		{"int32 less", scalar.NewInt32Scalar(1), scalar.NewInt32Scalar(2), dataset.OrderLess},
		{"int32 equal", scalar.NewInt32Scalar(2), scalar.NewInt32Scalar(2), dataset.OrderEqual},
		{"int32 greater", scalar.NewInt32Scalar(3), scalar.NewInt32Scalar(2), dataset.OrderGreater},
		{"uint64", scalar.NewUint64Scalar(1 << 63), scalar.NewUint64Scalar(1), dataset.OrderGreater},
		{"float64", scalar.NewFloat64Scalar(-1.5), scalar.NewFloat64Scalar(0.25), dataset.OrderLess},
		{"bool", scalar.NewBooleanScalar(false), scalar.NewBooleanScalar(true), dataset.OrderLess},
		{"bool equal", scalar.NewBooleanScalar(true), scalar.NewBooleanScalar(true), dataset.OrderEqual},
		{"date32", scalar.NewDate32Scalar(100), scalar.NewDate32Scalar(99), dataset.OrderGreater},
		{"string", scalar.NewStringScalar("abc"), scalar.NewStringScalar("abd"), dataset.OrderLess},
		{"string prefix", scalar.NewStringScalar("ab"), scalar.NewStringScalar("abc"), dataset.OrderLess},
		{"string equal", scalar.NewStringScalar("abc"), scalar.NewStringScalar("abc"), dataset.OrderEqual},
		{
			"decimal128",
			scalar.NewDecimal128Scalar(decimal128.FromI64(250), dec),
			scalar.NewDecimal128Scalar(decimal128.FromI64(-3), dec),
			dataset.OrderGreater,
		},
		{"null lhs", scalar.MakeNullScalar(arrow.PrimitiveTypes.Int32), scalar.NewInt32Scalar(1), dataset.OrderNull},
		{"null rhs", scalar.NewInt32Scalar(1), scalar.MakeNullScalar(arrow.PrimitiveTypes.Int32), dataset.OrderNull},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ord, err := dataset.Compare(tt.lhs, tt.rhs)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, ord)
		})
	}
}

func TestCompareIsAntisymmetric(t *testing.T) {
	vals := []int64{-5, 0, 3, 3, 42}
	for _, l := range vals {
		for _, r := range vals {
			lr, err := dataset.Compare(scalar.NewInt64Scalar(l), scalar.NewInt64Scalar(r))
			require.NoError(t, err)
			rl, err := dataset.Compare(scalar.NewInt64Scalar(r), scalar.NewInt64Scalar(l))
			require.NoError(t, err)

			switch lr {
			case dataset.OrderLess:
				assert.Equal(t, dataset.OrderGreater, rl)
			case dataset.OrderGreater:
				assert.Equal(t, dataset.OrderLess, rl)
			default:
				assert.Equal(t, dataset.OrderEqual, rl)
			}
		}
	}
}

func TestCompareErrors(t *testing.T) {
	_, err := dataset.Compare(scalar.NewInt32Scalar(1), scalar.NewInt64Scalar(1))
	assert.ErrorIs(t, err, dataset.ErrType)

	// a type mismatch is reported even when one side is null
	_, err = dataset.Compare(scalar.MakeNullScalar(arrow.PrimitiveTypes.Int32), scalar.NewInt64Scalar(1))
	assert.ErrorIs(t, err, dataset.ErrType)

	_, err = dataset.Compare(scalar.NewFloat16ScalarFromFloat32(1), scalar.NewFloat16Scalar(float16.New(2)))
	assert.ErrorIs(t, err, dataset.ErrNotImplemented)

	_, err = dataset.Compare(nil, scalar.NewInt32Scalar(1))
	assert.ErrorIs(t, err, dataset.ErrInvalidArgument)
}

func TestOrderingString(t *testing.T) {
	assert.Equal(t, "LESS", dataset.OrderLess.String())
	assert.Equal(t, "NULL", dataset.OrderNull.String())
	assert.Equal(t, "Ordering(9)", dataset.Ordering(9).String())
}
