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
	"context"
	"strings"
	"testing"

	dataset "github.com/apache/arrow-dataset-go"
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/compute"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/arrow/scalar"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

func recordFromJSON(t *testing.T, schema *arrow.Schema, js string) arrow.Record {
	t.Helper()
	rec, _, err := array.RecordFromJSON(memory.DefaultAllocator, schema, strings.NewReader(js))
	require.NoError(t, err)
	t.Cleanup(rec.Release)

	return rec
}

func boolArray(t *testing.T, js string) arrow.Array {
	t.Helper()
	arr, _, err := array.FromJSON(memory.DefaultAllocator, arrow.FixedWidthTypes.Boolean,
		strings.NewReader(js))
	require.NoError(t, err)
	t.Cleanup(arr.Release)

	return arr
}

type TreeEvaluatorSuite struct {
	suite.Suite

	mem   *memory.CheckedAllocator
	ctx   context.Context
	ev    dataset.TreeEvaluator
	batch arrow.Record
}

func (s *TreeEvaluatorSuite) SetupTest() {
	s.mem = memory.NewCheckedAllocator(memory.DefaultAllocator)
	s.ctx = compute.WithAllocator(context.Background(), s.mem)

	rec, _, err := array.RecordFromJSON(s.mem, testSchema, strings.NewReader(`[
		{"x": 1, "s": "a", "b": true, "f": 0.5},
		{"x": 2, "s": "b", "b": false, "f": 1.5},
		{"x": null, "s": null, "b": null, "f": 2.5},
		{"x": 4, "s": "d", "b": true, "f": null}
	]`))
	s.Require().NoError(err)
	s.batch = rec
}

func (s *TreeEvaluatorSuite) TearDownTest() {
	s.batch.Release()
	s.mem.AssertSize(s.T(), 0)
}

func (s *TreeEvaluatorSuite) evaluate(expr dataset.Expression) compute.Datum {
	out, err := s.ev.Evaluate(s.ctx, expr, s.batch)
	s.Require().NoError(err)

	return out
}

func (s *TreeEvaluatorSuite) assertArray(expected string, expr dataset.Expression) {
	out := s.evaluate(expr)
	defer out.Release()

	s.Require().Equal(compute.KindArray, out.Kind())
	actual := out.(*compute.ArrayDatum).MakeArray()
	defer actual.Release()

	exp := boolArray(s.T(), expected)
	s.Truef(array.Equal(exp, actual), "expected %s, got %s", exp, actual)
}

func (s *TreeEvaluatorSuite) assertScalar(expected scalar.Scalar, expr dataset.Expression) {
	out := s.evaluate(expr)
	defer out.Release()

	s.Require().Equal(compute.KindScalar, out.Kind())
	actual := out.(*compute.ScalarDatum).Value
	s.Truef(scalar.Equals(expected, actual), "expected %s, got %s", expected, actual)
}

func (s *TreeEvaluatorSuite) TestFieldAndScalar() {
	out := s.evaluate(dataset.Field("x"))
	defer out.Release()
	s.Equal(arrow.PrimitiveTypes.Int32, out.(*compute.ArrayDatum).Type())

	s.assertScalar(scalar.NewInt32Scalar(7), dataset.Scalar(int32(7)))
	s.assertScalar(scalar.MakeNullScalar(arrow.Null), dataset.Field("missing"))
}

func (s *TreeEvaluatorSuite) TestComparison() {
	s.assertArray(`[false, false, null, true]`, dataset.GreaterThan(dataset.Field("x"), int32(2)))
	s.assertArray(`[true, false, null, false]`, dataset.EqualTo(dataset.Field("s"), "a"))
	s.assertArray(`[true, true, null, null]`, dataset.Comparison(dataset.OpLT,
		dataset.Field("f"), dataset.CastTo(dataset.Field("x"), arrow.PrimitiveTypes.Float64, nil)))

	s.assertScalar(scalar.MakeNullScalar(arrow.FixedWidthTypes.Boolean),
		dataset.EqualTo(dataset.Field("missing"), int32(1)))
	s.assertScalar(scalar.MakeNullScalar(arrow.FixedWidthTypes.Boolean),
		dataset.EqualTo(dataset.Field("x"), dataset.NullScalar(arrow.PrimitiveTypes.Int32)))
	s.assertScalar(scalar.NewBooleanScalar(true),
		dataset.LessThan(dataset.Scalar(int32(1)), int32(2)))
}

func (s *TreeEvaluatorSuite) TestKleeneLogic() {
	// every combination of true, false and null for the left and right
	schema := arrow.NewSchema([]arrow.Field{
		{Name: "l", Type: arrow.FixedWidthTypes.Boolean, Nullable: true},
		{Name: "r", Type: arrow.FixedWidthTypes.Boolean, Nullable: true},
	}, nil)
	batch, _, err := array.RecordFromJSON(s.mem, schema, strings.NewReader(`[
		{"l": true, "r": true}, {"l": true, "r": false}, {"l": true, "r": null},
		{"l": false, "r": true}, {"l": false, "r": false}, {"l": false, "r": null},
		{"l": null, "r": true}, {"l": null, "r": false}, {"l": null, "r": null}
	]`))
	s.Require().NoError(err)
	defer batch.Release()

	check := func(expected string, expr dataset.Expression) {
		out, err := s.ev.Evaluate(s.ctx, expr, batch)
		s.Require().NoError(err)
		defer out.Release()

		actual := out.(*compute.ArrayDatum).MakeArray()
		defer actual.Release()
		exp := boolArray(s.T(), expected)
		s.Truef(array.Equal(exp, actual), "%s: expected %s, got %s", expr, exp, actual)
	}

	l, r := dataset.Field("l"), dataset.Field("r")
	check(`[true, false, null, false, false, false, null, false, null]`, dataset.And(l, r))
	check(`[true, true, true, true, false, null, true, null, null]`, dataset.Or(l, r))
	check(`[false, false, false, true, true, true, null, null, null]`, dataset.Not(l))
}

func (s *TreeEvaluatorSuite) TestBooleanWithScalars() {
	b := dataset.Field("b")
	s.assertArray(`[true, false, null, true]`, dataset.And(b, dataset.AlwaysTrue()))
	s.assertArray(`[false, false, false, false]`, dataset.And(b, dataset.AlwaysFalse()))
	s.assertArray(`[true, true, true, true]`, dataset.Or(dataset.AlwaysTrue(), b))
	s.assertArray(`[true, null, null, true]`, dataset.Or(b, dataset.NullLiteral()))
	s.assertArray(`[null, false, null, null]`, dataset.And(dataset.Field("missing"), b))

	s.assertScalar(scalar.NewBooleanScalar(false), dataset.Not(dataset.AlwaysTrue()))
	s.assertScalar(scalar.MakeNullScalar(arrow.Null), dataset.Not(dataset.NullLiteral()))
}

func (s *TreeEvaluatorSuite) TestIn() {
	x := dataset.Field("x")
	s.assertArray(`[true, false, null, true]`, dataset.In(x, int32Set(s.T(), "[4, 1, 9]")))
	s.assertArray(`[false, false, true, true]`, dataset.In(x, int32Set(s.T(), "[4, null]")))

	s.assertScalar(scalar.NewBooleanScalar(false), dataset.In(dataset.Field("missing"), int32Set(s.T(), "[1]")))
	s.assertScalar(scalar.NewBooleanScalar(true), dataset.In(dataset.Field("missing"), int32Set(s.T(), "[1, null]")))
	s.assertScalar(scalar.NewBooleanScalar(true), dataset.In(dataset.Scalar(int32(9)), int32Set(s.T(), "[4, 9]")))
}

func (s *TreeEvaluatorSuite) TestIsValid() {
	s.assertArray(`[true, true, false, true]`, dataset.IsValid(dataset.Field("x")))
	s.assertArray(`[true, true, true, false]`, dataset.IsValid(dataset.Field("f")))
	s.assertScalar(scalar.NewBooleanScalar(false), dataset.IsValid(dataset.Field("missing")))
	s.assertScalar(scalar.NewBooleanScalar(true), dataset.IsValid(dataset.Scalar(int32(1))))

	s.assertArray(`[false, false, true, false]`, dataset.IsNull(dataset.Field("s")))
}

func (s *TreeEvaluatorSuite) TestCast() {
	out := s.evaluate(dataset.CastTo(dataset.Field("x"), arrow.PrimitiveTypes.Int64, nil))
	defer out.Release()

	arr := out.(*compute.ArrayDatum).MakeArray()
	defer arr.Release()
	s.Equal(`[1 2 (null) 4]`, arr.String())
	s.True(arrow.TypeEqual(arrow.PrimitiveTypes.Int64, arr.DataType()))

	s.assertScalar(scalar.NewInt32Scalar(3),
		dataset.CastTo(dataset.Scalar(int64(3)), arrow.PrimitiveTypes.Int32, nil))
	s.assertScalar(scalar.MakeNullScalar(arrow.PrimitiveTypes.Int64),
		dataset.CastTo(dataset.Field("missing"), arrow.PrimitiveTypes.Int64, nil))
}

func (s *TreeEvaluatorSuite) TestEvaluateErrors() {
	_, err := s.ev.Evaluate(s.ctx, dataset.EqualTo(dataset.Field("x"), "a"), s.batch)
	s.Error(err)

	_, err = s.ev.Evaluate(s.ctx, dataset.CastTo(dataset.Field("b"),
		arrow.ListOf(arrow.PrimitiveTypes.Int32), nil), s.batch)
	s.ErrorIs(err, dataset.ErrNotImplemented)

	_, err = s.ev.Evaluate(s.ctx, dataset.In(dataset.Field("s"), int32Set(s.T(), "[1]")), s.batch)
	s.ErrorIs(err, dataset.ErrType)
}

func (s *TreeEvaluatorSuite) TestFilter() {
	mask := boolArray(s.T(), `[true, false, null, true]`)
	out, err := s.ev.Filter(s.ctx, compute.NewDatumWithoutOwning(mask), s.batch)
	s.Require().NoError(err)
	defer out.Release()

	s.EqualValues(2, out.NumRows())
	s.Equal(`[1 4]`, out.Column(0).String())
	s.Equal(`["a" "d"]`, out.Column(1).String())

	all, err := s.ev.Filter(s.ctx, compute.NewDatum(scalar.NewBooleanScalar(true)), s.batch)
	s.Require().NoError(err)
	defer all.Release()
	s.EqualValues(4, all.NumRows())

	none, err := s.ev.Filter(s.ctx, compute.NewDatum(scalar.NewBooleanScalar(false)), s.batch)
	s.Require().NoError(err)
	defer none.Release()
	s.EqualValues(0, none.NumRows())
	s.True(none.Schema().Equal(s.batch.Schema()))

	nonBool, err := s.ev.Filter(s.ctx, compute.NewDatum(scalar.NewInt32Scalar(1)), s.batch)
	s.Require().NoError(err)
	defer nonBool.Release()
	s.EqualValues(0, nonBool.NumRows())
}

func (s *TreeEvaluatorSuite) TestEndToEnd() {
	sel, err := s.ev.Evaluate(s.ctx, dataset.GreaterThan(dataset.Field("x"), int32(2)), s.batch)
	s.Require().NoError(err)
	defer sel.Release()

	out, err := s.ev.Filter(s.ctx, sel, s.batch)
	s.Require().NoError(err)
	defer out.Release()

	s.EqualValues(1, out.NumRows())
	s.Equal(`[4]`, out.Column(0).String())
}

func (s *TreeEvaluatorSuite) TestNullTypedColumn() {
	schema := arrow.NewSchema([]arrow.Field{
		{Name: "n", Type: arrow.Null, Nullable: true},
		{Name: "b", Type: arrow.FixedWidthTypes.Boolean, Nullable: true},
	}, nil)

	nulls := array.NewNull(3)
	defer nulls.Release()
	bools, _, err := array.FromJSON(s.mem, arrow.FixedWidthTypes.Boolean, strings.NewReader(`[true, false, null]`))
	s.Require().NoError(err)
	defer bools.Release()

	s.batch.Release()
	s.batch = array.NewRecord(schema, []arrow.Array{nulls, bools}, 3)

	n, b := dataset.Field("n"), dataset.Field("b")
	s.assertScalar(scalar.NewBooleanScalar(false), dataset.IsValid(n))
	s.assertScalar(scalar.NewBooleanScalar(true), dataset.IsNull(n))
	s.assertScalar(scalar.MakeNullScalar(arrow.Null), dataset.Not(n))
	s.assertScalar(scalar.MakeNullScalar(arrow.FixedWidthTypes.Boolean), dataset.EqualTo(n, int32(1)))
	s.assertScalar(scalar.NewBooleanScalar(true), dataset.In(n, int32Set(s.T(), "[1, null]")))
	s.assertScalar(scalar.NewBooleanScalar(false), dataset.In(n, int32Set(s.T(), "[1]")))
	s.assertScalar(scalar.MakeNullScalar(arrow.PrimitiveTypes.Int64),
		dataset.CastTo(n, arrow.PrimitiveTypes.Int64, nil))

	s.assertArray(`[null, null, null]`, dataset.And(n, dataset.AlwaysTrue()))
	s.assertArray(`[null, false, null]`, dataset.And(n, b))
	s.assertArray(`[true, null, null]`, dataset.Or(n, b))
	s.assertArray(`[true, true, true]`, dataset.Or(dataset.IsNull(n), b))

	sel := s.evaluate(dataset.Or(n, b))
	defer sel.Release()
	out, err := s.ev.Filter(s.ctx, sel, s.batch)
	s.Require().NoError(err)
	defer out.Release()
	s.EqualValues(1, out.NumRows())
}

func TestTreeEvaluator(t *testing.T) {
	suite.Run(t, new(TreeEvaluatorSuite))
}

func TestNullEvaluator(t *testing.T) {
	batch := recordFromJSON(t, testSchema, `[{"x": 1, "s": "a", "b": true, "f": 0.5}]`)
	ctx := context.Background()

	var ev dataset.NullEvaluator
	out, err := ev.Evaluate(ctx, dataset.GreaterThan(dataset.Field("x"), int32(2)), batch)
	require.NoError(t, err)
	defer out.Release()

	sc := out.(*compute.ScalarDatum).Value
	assert.False(t, sc.IsValid())
	assert.Equal(t, arrow.BOOL, sc.DataType().ID())

	out2, err := ev.Evaluate(ctx, dataset.Field("s"), batch)
	require.NoError(t, err)
	defer out2.Release()
	assert.Equal(t, arrow.STRING, out2.(*compute.ScalarDatum).Type().ID())

	_, err = ev.Evaluate(ctx, dataset.Not(dataset.Field("x")), batch)
	assert.ErrorIs(t, err, dataset.ErrType)

	filtered, err := ev.Filter(ctx, out, batch)
	require.NoError(t, err)
	defer filtered.Release()
	assert.Same(t, batch, filtered)
}

// selectionMask expands a selection into a boolean array of n slots so that
// scalar and array results can be compared.
func selectionMask(t *testing.T, d compute.Datum, n int) arrow.Array {
	t.Helper()

	switch v := d.(type) {
	case *compute.ArrayDatum:
		return v.MakeArray()
	case *compute.ScalarDatum:
		sc := v.Value
		if !sc.IsValid() {
			sc = scalar.MakeNullScalar(arrow.FixedWidthTypes.Boolean)
		}
		arr, err := scalar.MakeArrayFromScalar(sc, n, memory.DefaultAllocator)
		require.NoError(t, err)

		return arr
	}

	t.Fatalf("unexpected selection kind %s", d.Kind())

	return nil
}

func TestAssumePreservesEvaluation(t *testing.T) {
	batch := recordFromJSON(t, testSchema, `[
		{"x": 1, "s": "a", "b": true, "f": 0.5},
		{"x": 2, "s": "b", "b": false, "f": 1.5},
		{"x": 3, "s": null, "b": null, "f": 2.5},
		{"x": 4, "s": "a", "b": true, "f": null},
		{"x": 5, "s": "c", "b": false, "f": 4.5},
		{"x": null, "s": "a", "b": true, "f": 5.5},
		{"x": 7, "s": "b", "b": null, "f": 6.5}
	]`)

	x, s, b := dataset.Field("x"), dataset.Field("s"), dataset.Field("b")
	gt := func(v int32) dataset.Expression { return dataset.GreaterThan(x, v) }
	nullLit := dataset.NullScalar(arrow.PrimitiveTypes.Int32)

	tests := []struct {
		name  string
		expr  dataset.Expression
		given dataset.Expression
	}{
		{"gt given gt", gt(2), gt(3)},
		{"gt given lt", gt(2), dataset.LessThan(x, int32(0))},
		{"eq given eq", dataset.EqualTo(x, int32(3)), dataset.EqualTo(x, int32(3))},
		{"neq given other eq", dataset.NotEqualTo(x, int32(3)), dataset.EqualTo(x, int32(4))},
		{"gteq given gt", dataset.GreaterThanEqual(x, int32(3)), gt(3)},
		{"lt given lteq", dataset.LessThan(x, int32(5)), dataset.LessThanEqual(x, int32(4))},
		{"and", dataset.And(gt(2), dataset.EqualTo(s, "a")), gt(3)},
		{"or", dataset.Or(gt(2), dataset.EqualTo(s, "a")), dataset.LessThan(x, int32(2))},
		{"or with column", dataset.Or(b, gt(2)), gt(3)},
		{"or beside null", dataset.Or(b, dataset.Comparison(dataset.OpGT, x, nullLit)), gt(1)},
		{"and beside null", dataset.And(b, dataset.Comparison(dataset.OpGT, x, nullLit)), gt(1)},
		{"not", dataset.Not(gt(2)), gt(5)},
		{"given not", gt(2), dataset.Not(dataset.LessThanEqual(x, int32(3)))},
		{"given or", gt(2), dataset.Or(gt(5), dataset.EqualTo(x, int32(4)))},
		{"given and", dataset.And(gt(2), dataset.LessThan(x, int32(6))), dataset.And(gt(3), dataset.LessThan(x, int32(5)))},
		{"in given eq", dataset.In(x, int32Set(t, "[1, 2, 3]")), dataset.EqualTo(x, int32(2))},
		{"in given other eq", dataset.In(x, int32Set(t, "[1, 2, 3]")), dataset.EqualTo(x, int32(7))},
		{"is valid given eq", dataset.IsValid(x), dataset.EqualTo(x, int32(2))},
		{"is null given is null", dataset.IsNull(x), dataset.IsNull(x)},
		{"is valid given is null", dataset.IsValid(x), dataset.And(dataset.EqualTo(s, "a"), dataset.IsNull(x))},
		{"comparison given is null", dataset.Or(dataset.EqualTo(x, int32(2)), b), dataset.IsNull(x)},
		{"cast", dataset.EqualTo(dataset.CastTo(x, arrow.PrimitiveTypes.Int64, nil), int64(3)), dataset.EqualTo(x, int32(3))},
	}

	ctx := context.Background()
	var ev dataset.TreeEvaluator
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sel, err := ev.Evaluate(ctx, tt.given, batch)
			require.NoError(t, err)
			defer sel.Release()

			holds, err := ev.Filter(ctx, sel, batch)
			require.NoError(t, err)
			defer holds.Release()
			n := int(holds.NumRows())

			simplified := tt.expr.Assume(tt.given)

			want, err := ev.Evaluate(ctx, tt.expr, holds)
			require.NoError(t, err)
			defer want.Release()
			got, err := ev.Evaluate(ctx, simplified, holds)
			require.NoError(t, err)
			defer got.Release()

			wantMask, gotMask := selectionMask(t, want, n), selectionMask(t, got, n)
			defer wantMask.Release()
			defer gotMask.Release()
			assert.Truef(t, array.Equal(wantMask, gotMask), "%s assuming %s: expected %s, got %s (simplified to %s)",
				tt.expr, tt.given, wantMask, gotMask, simplified)
		})
	}
}
