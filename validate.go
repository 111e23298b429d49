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

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/compute"
)

// Validate of a field not present in the schema yields the null type, a
// scan may legitimately see fragments lacking a partition column.
func (f FieldExpr) Validate(schema *arrow.Schema) (arrow.DataType, error) {
	if fields, ok := schema.FieldsByName(f.name); ok && len(fields) > 0 {
		return fields[0].Type, nil
	}

	return arrow.Null, nil
}

func (s ScalarExpr) Validate(*arrow.Schema) (arrow.DataType, error) {
	return s.value.DataType(), nil
}

func (c CompareExpr) Validate(schema *arrow.Schema) (arrow.DataType, error) {
	lhs, err := c.left.Validate(schema)
	if err != nil {
		return nil, err
	}
	rhs, err := c.right.Validate(schema)
	if err != nil {
		return nil, err
	}

	if lhs.ID() == arrow.NULL || rhs.ID() == arrow.NULL {
		return arrow.FixedWidthTypes.Boolean, nil
	}

	if !arrow.TypeEqual(lhs, rhs) {
		return nil, fmt.Errorf("%w: cannot compare expressions of differing type, %s vs %s",
			ErrType, lhs, rhs)
	}

	return arrow.FixedWidthTypes.Boolean, nil
}

func validateBoolean(schema *arrow.Schema, operands ...Expression) (arrow.DataType, error) {
	for _, op := range operands {
		dt, err := op.Validate(schema)
		if err != nil {
			return nil, err
		}

		if !isNullOrBool(dt) {
			return nil, fmt.Errorf("%w: cannot combine expressions including one of type %s",
				ErrType, dt)
		}
	}

	return arrow.FixedWidthTypes.Boolean, nil
}

func isNullOrBool(dt arrow.DataType) bool {
	return dt.ID() == arrow.BOOL || dt.ID() == arrow.NULL
}

func (a AndExpr) Validate(schema *arrow.Schema) (arrow.DataType, error) {
	return validateBoolean(schema, a.left, a.right)
}

func (o OrExpr) Validate(schema *arrow.Schema) (arrow.DataType, error) {
	return validateBoolean(schema, o.left, o.right)
}

func (n NotExpr) Validate(schema *arrow.Schema) (arrow.DataType, error) {
	return validateBoolean(schema, n.operand)
}

func (in InExpr) Validate(schema *arrow.Schema) (arrow.DataType, error) {
	dt, err := in.operand.Validate(schema)
	if err != nil {
		return nil, err
	}

	if !arrow.TypeEqual(dt, in.set.DataType()) {
		return nil, fmt.Errorf("%w: mismatch: set type %s vs operand type %s",
			ErrType, in.set.DataType(), dt)
	}

	return arrow.FixedWidthTypes.Boolean, nil
}

func (v IsValidExpr) Validate(schema *arrow.Schema) (arrow.DataType, error) {
	if _, err := v.operand.Validate(schema); err != nil {
		return nil, err
	}

	return arrow.FixedWidthTypes.Boolean, nil
}

func (c CastExpr) Validate(schema *arrow.Schema) (arrow.DataType, error) {
	from, err := c.operand.Validate(schema)
	if err != nil {
		return nil, err
	}

	to := c.to
	if c.like != nil {
		if to, err = c.like.Validate(schema); err != nil {
			return nil, err
		}
	}

	switch {
	case arrow.TypeEqual(from, to), from.ID() == arrow.NULL:
	case !compute.CanCast(from, to):
		return nil, fmt.Errorf("%w: no cast function from %s to %s",
			ErrNotImplemented, from, to)
	}

	return to, nil
}

// InsertImplicitCasts returns a copy of expr in which the operands of every
// comparison have a common type and the operands of every boolean
// combinator are boolean. A literal operand of a comparison is cast to the
// type of the other side, otherwise the right operand is cast to the type
// of the left one. Operands of the null type are never cast. The result is
// not guaranteed to validate: a cast may still have no implementation.
func InsertImplicitCasts(expr Expression, schema *arrow.Schema) (Expression, error) {
	switch e := expr.(type) {
	case FieldExpr, ScalarExpr:
		return e, nil
	case NotExpr:
		operand, err := castToBool(e.operand, schema)
		if err != nil {
			return nil, err
		}

		return Not(operand), nil
	case AndExpr:
		left, right, err := castBothToBool(e.binaryExpr, schema)
		if err != nil {
			return nil, err
		}

		return And(left, right), nil
	case OrExpr:
		left, right, err := castBothToBool(e.binaryExpr, schema)
		if err != nil {
			return nil, err
		}

		return Or(left, right), nil
	case CompareExpr:
		left, lhs, err := insertAndValidate(e.left, schema)
		if err != nil {
			return nil, err
		}
		right, rhs, err := insertAndValidate(e.right, schema)
		if err != nil {
			return nil, err
		}

		switch {
		case arrow.TypeEqual(lhs, rhs), lhs.ID() == arrow.NULL, rhs.ID() == arrow.NULL:
		case isLiteral(left):
			left = CastTo(left, rhs, nil)
		default:
			right = CastTo(right, lhs, nil)
		}

		return Comparison(e.op, left, right), nil
	case InExpr:
		operand, err := InsertImplicitCasts(e.operand, schema)
		if err != nil {
			return nil, err
		}

		return In(operand, e.set), nil
	case IsValidExpr:
		operand, err := InsertImplicitCasts(e.operand, schema)
		if err != nil {
			return nil, err
		}

		return IsValid(operand), nil
	case CastExpr:
		operand, err := InsertImplicitCasts(e.operand, schema)
		if err != nil {
			return nil, err
		}

		return e.withOperand(operand), nil
	}

	return nil, fmt.Errorf("%w: implicit casts for %T", ErrNotImplemented, expr)
}

func isLiteral(e Expression) bool {
	_, ok := e.(ScalarExpr)

	return ok
}

func insertAndValidate(expr Expression, schema *arrow.Schema) (Expression, arrow.DataType, error) {
	out, err := InsertImplicitCasts(expr, schema)
	if err != nil {
		return nil, nil, err
	}

	dt, err := out.Validate(schema)
	if err != nil {
		return nil, nil, err
	}

	return out, dt, nil
}

func castToBool(expr Expression, schema *arrow.Schema) (Expression, error) {
	out, dt, err := insertAndValidate(expr, schema)
	if err != nil {
		return nil, err
	}

	if !isNullOrBool(dt) {
		out = CastTo(out, arrow.FixedWidthTypes.Boolean, nil)
	}

	return out, nil
}

func castBothToBool(b binaryExpr, schema *arrow.Schema) (left, right Expression, err error) {
	if left, err = castToBool(b.left, schema); err != nil {
		return nil, nil, err
	}

	if right, err = castToBool(b.right, schema); err != nil {
		return nil, nil, err
	}

	return left, right, nil
}
