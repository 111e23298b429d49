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
	"bytes"
	"cmp"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/scalar"
)

// Ordering is the result of comparing two scalar values.
type Ordering int8

const (
	OrderLess Ordering = iota
	OrderEqual
	OrderGreater
	// OrderNull is returned when either side is null and there
	// is therefore no ordering between them.
	OrderNull
)

func (o Ordering) String() string {
	switch o {
	case OrderLess:
		return "LESS"
	case OrderEqual:
		return "EQUAL"
	case OrderGreater:
		return "GREATER"
	case OrderNull:
		return "NULL"
	}

	return fmt.Sprintf("Ordering(%d)", int8(o))
}

// Compare orders two scalars of identical type. It returns an error wrapping
// ErrType if the scalars have different types, and OrderNull if either one
// of them is null. Types without a defined ordering (for example float16 or
// nested types) return an error wrapping ErrNotImplemented.
func Compare(lhs, rhs scalar.Scalar) (Ordering, error) {
	if lhs == nil || rhs == nil {
		return OrderNull, fmt.Errorf("%w: cannot compare nil scalars", ErrInvalidArgument)
	}

	if !arrow.TypeEqual(lhs.DataType(), rhs.DataType()) {
		return OrderNull, fmt.Errorf("%w: cannot compare scalars of differing type: %s vs %s",
			ErrType, lhs.DataType(), rhs.DataType())
	}

	if !lhs.IsValid() || !rhs.IsValid() {
		return OrderNull, nil
	}

	switch l := lhs.(type) {
	case *scalar.Boolean:
		return compareBools(l.Value, rhs.(*scalar.Boolean).Value), nil
	case *scalar.Int8:
		return compareValues(l.Value, rhs.(*scalar.Int8).Value), nil
	case *scalar.Int16:
		return compareValues(l.Value, rhs.(*scalar.Int16).Value), nil
	case *scalar.Int32:
		return compareValues(l.Value, rhs.(*scalar.Int32).Value), nil
	case *scalar.Int64:
		return compareValues(l.Value, rhs.(*scalar.Int64).Value), nil
	case *scalar.Uint8:
		return compareValues(l.Value, rhs.(*scalar.Uint8).Value), nil
	case *scalar.Uint16:
		return compareValues(l.Value, rhs.(*scalar.Uint16).Value), nil
	case *scalar.Uint32:
		return compareValues(l.Value, rhs.(*scalar.Uint32).Value), nil
	case *scalar.Uint64:
		return compareValues(l.Value, rhs.(*scalar.Uint64).Value), nil
	case *scalar.Float32:
		return compareValues(l.Value, rhs.(*scalar.Float32).Value), nil
	case *scalar.Float64:
		return compareValues(l.Value, rhs.(*scalar.Float64).Value), nil
	case *scalar.Date32:
		return compareValues(l.Value, rhs.(*scalar.Date32).Value), nil
	case *scalar.Date64:
		return compareValues(l.Value, rhs.(*scalar.Date64).Value), nil
	case *scalar.Time32:
		return compareValues(l.Value, rhs.(*scalar.Time32).Value), nil
	case *scalar.Time64:
		return compareValues(l.Value, rhs.(*scalar.Time64).Value), nil
	case *scalar.Timestamp:
		return compareValues(l.Value, rhs.(*scalar.Timestamp).Value), nil
	case *scalar.Duration:
		return compareValues(l.Value, rhs.(*scalar.Duration).Value), nil
	case *scalar.Decimal128:
		r := rhs.(*scalar.Decimal128).Value
		switch {
		case l.Value.Less(r):
			return OrderLess, nil
		case l.Value == r:
			return OrderEqual, nil
		default:
			return OrderGreater, nil
		}
	case scalar.BinaryScalar:
		// byte-wise on the common prefix, then the shorter value sorts first
		return compareValues(bytes.Compare(l.Data(), rhs.(scalar.BinaryScalar).Data()), 0), nil
	}

	return OrderNull, fmt.Errorf("%w: comparison of scalars of type %s",
		ErrNotImplemented, lhs.DataType())
}

func compareValues[T cmp.Ordered](lhs, rhs T) Ordering {
	switch {
	case lhs < rhs:
		return OrderLess
	case lhs == rhs:
		return OrderEqual
	default:
		return OrderGreater
	}
}

func compareBools(lhs, rhs bool) Ordering {
	switch {
	case lhs == rhs:
		return OrderEqual
	case !lhs:
		return OrderLess
	default:
		return OrderGreater
	}
}
