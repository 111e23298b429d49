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
	"context"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/compute"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/arrow/scalar"
)

// Evaluator computes the value of an expression over a batch and applies
// the resulting selection to it. Datums and records returned by an
// Evaluator are owned by the caller, who must Release them. Intermediate
// buffers are allocated from compute.GetAllocator(ctx).
type Evaluator interface {
	Evaluate(ctx context.Context, expr Expression, batch arrow.Record) (compute.Datum, error)
	Filter(ctx context.Context, selection compute.Datum, batch arrow.Record) (arrow.Record, error)
}

// NullEvaluator never reads data: every expression evaluates to a null of
// the type it validates to and Filter returns the batch as is.
type NullEvaluator struct{}

func (NullEvaluator) Evaluate(_ context.Context, expr Expression, batch arrow.Record) (compute.Datum, error) {
	dt, err := expr.Validate(batch.Schema())
	if err != nil {
		return nil, err
	}

	return compute.NewDatum(scalar.MakeNullScalar(dt)), nil
}

func (NullEvaluator) Filter(_ context.Context, _ compute.Datum, batch arrow.Record) (arrow.Record, error) {
	batch.Retain()

	return batch, nil
}

// TreeEvaluator evaluates expressions by walking the tree bottom up and
// dispatching every node to the vectorized compute kernels. Boolean
// combinators follow Kleene logic.
type TreeEvaluator struct{}

func nullDatum() compute.Datum {
	return compute.NewDatum(scalar.MakeNullScalar(arrow.Null))
}

func boolDatum(v bool) compute.Datum {
	return compute.NewDatum(scalar.NewBooleanScalar(v))
}

// isNullDatum reports whether d carries no value at all: an invalid scalar
// or an array without a single valid slot, such as a column of null type.
func isNullDatum(d compute.Datum) bool {
	switch v := d.(type) {
	case *compute.ScalarDatum:
		return !v.Value.IsValid()
	case *compute.ArrayDatum:
		return v.Type().ID() == arrow.NULL || v.NullN() == v.Len()
	}

	return false
}

func (t TreeEvaluator) Evaluate(ctx context.Context, expr Expression, batch arrow.Record) (compute.Datum, error) {
	switch e := expr.(type) {
	case ScalarExpr:
		return compute.NewDatum(e.value), nil
	case FieldExpr:
		if idx := batch.Schema().FieldIndices(e.name); len(idx) > 0 {
			return compute.NewDatum(batch.Column(idx[0])), nil
		}

		return nullDatum(), nil
	case AndExpr:
		return t.evalKleene(ctx, "and_kleene", e.binaryExpr, batch)
	case OrExpr:
		return t.evalKleene(ctx, "or_kleene", e.binaryExpr, batch)
	case NotExpr:
		return t.evalNot(ctx, e, batch)
	case CompareExpr:
		return t.evalCompare(ctx, e, batch)
	case InExpr:
		return t.evalIn(ctx, e, batch)
	case IsValidExpr:
		return t.evalIsValid(ctx, e, batch)
	case CastExpr:
		return t.evalCast(ctx, e, batch)
	}

	return nil, fmt.Errorf("%w: evaluation of %v", ErrNotImplemented, expr)
}

func (t TreeEvaluator) evalOperands(ctx context.Context, b binaryExpr, batch arrow.Record) (lhs, rhs compute.Datum, err error) {
	if lhs, err = t.Evaluate(ctx, b.left, batch); err != nil {
		return nil, nil, err
	}

	if rhs, err = t.Evaluate(ctx, b.right, batch); err != nil {
		lhs.Release()

		return nil, nil, err
	}

	return lhs, rhs, nil
}

// broadcastBool turns d into a boolean array of length n. Scalars are
// repeated, nulls of any type and shape become null booleans.
func broadcastBool(mem memory.Allocator, d compute.Datum, n int) (compute.Datum, error) {
	if isNullDatum(d) {
		d.Release()
		arr := array.MakeArrayOfNull(mem, arrow.FixedWidthTypes.Boolean, n)
		defer arr.Release()

		return compute.NewDatum(arr), nil
	}

	sd, ok := d.(*compute.ScalarDatum)
	if !ok {
		return d, nil
	}
	defer sd.Release()

	arr, err := scalar.MakeArrayFromScalar(sd.Value, n, mem)
	if err != nil {
		return nil, err
	}
	defer arr.Release()

	return compute.NewDatum(arr), nil
}

func (t TreeEvaluator) evalKleene(ctx context.Context, fn string, b binaryExpr, batch arrow.Record) (compute.Datum, error) {
	lhs, rhs, err := t.evalOperands(ctx, b, batch)
	if err != nil {
		return nil, err
	}

	mem, n := compute.GetAllocator(ctx), int(batch.NumRows())
	if lhs, err = broadcastBool(mem, lhs, n); err != nil {
		rhs.Release()

		return nil, err
	}
	defer lhs.Release()

	if rhs, err = broadcastBool(mem, rhs, n); err != nil {
		return nil, err
	}
	defer rhs.Release()

	return compute.CallFunction(ctx, fn, nil, lhs, rhs)
}

func (t TreeEvaluator) evalNot(ctx context.Context, e NotExpr, batch arrow.Record) (compute.Datum, error) {
	operand, err := t.Evaluate(ctx, e.operand, batch)
	if err != nil {
		return nil, err
	}
	defer operand.Release()

	if isNullDatum(operand) {
		return nullDatum(), nil
	}

	if sd, ok := operand.(*compute.ScalarDatum); ok {
		b, ok := sd.Value.(*scalar.Boolean)
		if !ok {
			return nil, fmt.Errorf("%w: cannot negate scalar of type %s", ErrType, sd.Type())
		}

		return boolDatum(!b.Value), nil
	}

	return compute.CallFunction(ctx, "not", nil, operand)
}

func (t TreeEvaluator) evalCompare(ctx context.Context, e CompareExpr, batch arrow.Record) (compute.Datum, error) {
	lhs, rhs, err := t.evalOperands(ctx, e.binaryExpr, batch)
	if err != nil {
		return nil, err
	}
	defer lhs.Release()
	defer rhs.Release()

	if isNullDatum(lhs) || isNullDatum(rhs) {
		return compute.NewDatum(scalar.MakeNullScalar(arrow.FixedWidthTypes.Boolean)), nil
	}

	ls, lok := lhs.(*compute.ScalarDatum)
	rs, rok := rhs.(*compute.ScalarDatum)
	if lok && rok {
		ord, err := Compare(ls.Value, rs.Value)
		if err != nil {
			return nil, err
		}

		return boolDatum(ordered(e.op, ord)), nil
	}

	return compute.CallFunction(ctx, e.op.FuncName(), nil, lhs, rhs)
}

// ordered reports whether ord satisfies op. ord must not be OrderNull.
func ordered(op CompareOperator, ord Ordering) bool {
	switch op {
	case OpEQ:
		return ord == OrderEqual
	case OpNEQ:
		return ord != OrderEqual
	case OpLT:
		return ord == OrderLess
	case OpLTEQ:
		return ord != OrderGreater
	case OpGT:
		return ord == OrderGreater
	case OpGTEQ:
		return ord != OrderLess
	}

	return false
}

func (t TreeEvaluator) evalIn(ctx context.Context, e InExpr, batch arrow.Record) (compute.Datum, error) {
	operand, err := t.Evaluate(ctx, e.operand, batch)
	if err != nil {
		return nil, err
	}
	defer operand.Release()

	if isNullDatum(operand) {
		return boolDatum(e.set.NullN() > 0), nil
	}

	switch v := operand.(type) {
	case *compute.ScalarDatum:
		found, err := setContains(ctx, e.set, v.Value)
		if err != nil {
			return nil, err
		}

		return boolDatum(found), nil
	case *compute.ArrayDatum:
		values := v.MakeArray()
		defer values.Release()

		out, err := isIn(ctx, values, e.set)
		if err != nil {
			return nil, err
		}
		defer out.Release()

		return compute.NewDatum(out), nil
	}

	return nil, fmt.Errorf("%w: membership test of %s", ErrNotImplemented, operand.Kind())
}

// isIn tests every slot of values for membership in set. A null slot is
// true if the set holds a null and null otherwise.
func isIn(ctx context.Context, values, set arrow.Array) (arrow.Array, error) {
	if !arrow.TypeEqual(values.DataType(), set.DataType()) {
		return nil, fmt.Errorf("%w: mismatch: set type %s vs operand type %s",
			ErrType, set.DataType(), values.DataType())
	}

	matched := make([]bool, values.Len())
	valuesDatum := compute.NewDatumWithoutOwning(values)
	for i := 0; i < set.Len(); i++ {
		if set.IsNull(i) {
			continue
		}

		elem, err := scalar.GetScalar(set, i)
		if err != nil {
			return nil, err
		}

		err = func() error {
			elemDatum := compute.NewDatumWithoutOwning(elem)
			if r, ok := elem.(scalar.Releasable); ok {
				defer r.Release()
			}

			eq, err := compute.CallFunction(ctx, "equal", nil, valuesDatum, elemDatum)
			if err != nil {
				return err
			}
			defer eq.Release()

			mask := eq.(*compute.ArrayDatum).MakeArray().(*array.Boolean)
			defer mask.Release()
			for j := range matched {
				matched[j] = matched[j] || (mask.IsValid(j) && mask.Value(j))
			}

			return nil
		}()
		if err != nil {
			return nil, err
		}
	}

	setHasNull := set.NullN() > 0
	bldr := array.NewBooleanBuilder(compute.GetAllocator(ctx))
	defer bldr.Release()
	bldr.Reserve(values.Len())
	for i, m := range matched {
		switch {
		case values.IsValid(i):
			bldr.Append(m)
		case setHasNull:
			bldr.Append(true)
		default:
			bldr.AppendNull()
		}
	}

	return bldr.NewArray(), nil
}

func (t TreeEvaluator) evalIsValid(ctx context.Context, e IsValidExpr, batch arrow.Record) (compute.Datum, error) {
	operand, err := t.Evaluate(ctx, e.operand, batch)
	if err != nil {
		return nil, err
	}
	defer operand.Release()

	if isNullDatum(operand) {
		return boolDatum(false), nil
	}

	ad, ok := operand.(*compute.ArrayDatum)
	if !ok || ad.NullN() == 0 {
		return boolDatum(true), nil
	}

	// the validity bitmap of the operand is the result
	data := array.NewData(arrow.FixedWidthTypes.Boolean, ad.Value.Len(),
		[]*memory.Buffer{nil, ad.Value.Buffers()[0]}, nil, 0, ad.Value.Offset())

	return &compute.ArrayDatum{Value: data}, nil
}

func (t TreeEvaluator) evalCast(ctx context.Context, e CastExpr, batch arrow.Record) (compute.Datum, error) {
	to, err := e.Validate(batch.Schema())
	if err != nil {
		return nil, err
	}

	operand, err := t.Evaluate(ctx, e.operand, batch)
	if err != nil {
		return nil, err
	}
	defer operand.Release()

	if isNullDatum(operand) {
		return compute.NewDatum(scalar.MakeNullScalar(to)), nil
	}

	if sd, ok := operand.(*compute.ScalarDatum); ok {
		out, err := sd.Value.CastTo(to)
		if err != nil {
			return nil, err
		}

		return compute.NewDatum(out), nil
	}

	opts := e.opts
	opts.ToType = to

	return compute.CastDatum(ctx, operand, &opts)
}

// Filter applies selection to batch. A boolean array keeps the rows where
// it is true, a true scalar keeps every row and any other scalar keeps
// none.
func (TreeEvaluator) Filter(ctx context.Context, selection compute.Datum, batch arrow.Record) (arrow.Record, error) {
	switch sel := selection.(type) {
	case *compute.ArrayDatum:
		result, err := compute.Filter(ctx, compute.NewDatumWithoutOwning(batch),
			sel, *compute.DefaultFilterOptions())
		if err != nil {
			return nil, err
		}

		return result.(*compute.RecordDatum).Value, nil
	case *compute.ScalarDatum:
		if b, ok := sel.Value.(*scalar.Boolean); ok && b.IsValid() && b.Value {
			batch.Retain()

			return batch, nil
		}

		return batch.NewSlice(0, 0), nil
	}

	return nil, fmt.Errorf("%w: filtering batches against datum kind %s",
		ErrNotImplemented, selection.Kind())
}
