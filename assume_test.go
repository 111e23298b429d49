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
	"github.com/stretchr/testify/assert"
)

func TestAssumeComparisons(t *testing.T) {
	x, y := dataset.Field("x"), dataset.Field("y")
	always, never := dataset.AlwaysTrue(), dataset.AlwaysFalse()
	i32 := func(v int32) any { return v }

	tests := []struct {
		name     string
		expr     dataset.Expression
		given    dataset.Expression
		expected dataset.Expression
	}{
		{"gt given gt", dataset.GreaterThan(x, i32(2)), dataset.GreaterThan(x, i32(3)), always},
		{"gt given lt", dataset.GreaterThan(x, i32(2)), dataset.LessThan(x, i32(0)), never},
		{"pruning", dataset.GreaterThan(x, i32(10)), dataset.LessThanEqual(x, i32(5)), never},
		{"eq given eq", dataset.EqualTo(x, i32(3)), dataset.EqualTo(x, i32(3)), always},
		{"eq given other eq", dataset.EqualTo(x, i32(3)), dataset.EqualTo(x, i32(4)), never},
		{"neq given eq", dataset.NotEqualTo(x, i32(3)), dataset.EqualTo(x, i32(4)), always},
		{"neq given same eq", dataset.NotEqualTo(x, i32(3)), dataset.EqualTo(x, i32(3)), never},
		{"gteq given gt same", dataset.GreaterThanEqual(x, i32(3)), dataset.GreaterThan(x, i32(3)), always},
		{"gteq given lt same", dataset.GreaterThanEqual(x, i32(3)), dataset.LessThan(x, i32(3)), never},
		{"gt given gteq same", dataset.GreaterThan(x, i32(3)), dataset.GreaterThanEqual(x, i32(3)), dataset.GreaterThan(x, i32(3))},
		{"lteq given eq", dataset.LessThanEqual(x, i32(3)), dataset.EqualTo(x, i32(3)), always},
		{"lt given gt smaller", dataset.LessThan(x, i32(2)), dataset.GreaterThan(x, i32(1)), dataset.LessThan(x, i32(2))},
		{"lt given lteq smaller", dataset.LessThan(x, i32(5)), dataset.LessThanEqual(x, i32(4)), always},
		{"different field", dataset.GreaterThan(x, i32(2)), dataset.GreaterThan(y, i32(3)), dataset.GreaterThan(x, i32(2))},
		{"non literal rhs", dataset.GreaterThan(x, y), dataset.GreaterThan(x, i32(3)), dataset.GreaterThan(x, y)},
		{"mismatched literal types", dataset.GreaterThan(x, i32(2)), dataset.GreaterThan(x, int64(3)), dataset.GreaterThan(x, i32(2))},
		{
			"null literal",
			dataset.GreaterThan(x, i32(2)),
			dataset.Comparison(dataset.OpGT, x, dataset.NullScalar(arrow.PrimitiveTypes.Int32)),
			dataset.NullLiteral(),
		},
		{"given not", dataset.GreaterThan(x, i32(2)), dataset.Not(dataset.LessThanEqual(x, i32(3))), always},
		{"given not of field", dataset.GreaterThan(x, i32(2)), dataset.Not(x), dataset.GreaterThan(x, i32(2))},
		{
			"given and",
			dataset.GreaterThan(x, i32(2)),
			dataset.And(dataset.EqualTo(y, i32(1)), dataset.GreaterThan(x, i32(5))),
			always,
		},
		{
			"given or with same conclusion",
			dataset.GreaterThan(x, i32(2)),
			dataset.Or(dataset.GreaterThan(x, i32(5)), dataset.EqualTo(x, i32(7))),
			always,
		},
		{
			"given or with different conclusions",
			dataset.GreaterThan(x, i32(2)),
			dataset.Or(dataset.GreaterThan(x, i32(5)), dataset.LessThan(x, i32(0))),
			dataset.GreaterThan(x, i32(2)),
		},
		{"given is_valid", dataset.GreaterThan(x, i32(2)), dataset.IsValid(x), dataset.GreaterThan(x, i32(2))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := tt.expr.Assume(tt.given)
			assert.True(t, tt.expected.Equals(out), "expected %s, got %s", tt.expected, out)
		})
	}
}

func TestAssumeSubstitutesEquality(t *testing.T) {
	x, y := dataset.Field("x"), dataset.Field("y")
	three := dataset.Scalar(int32(3))

	assert.True(t, three.Equals(x.Assume(dataset.EqualTo(x, three))))
	assert.True(t, three.Equals(x.Assume(dataset.Comparison(dataset.OpEQ, three, x))))
	assert.True(t, x.Equals(x.Assume(dataset.GreaterThan(x, three))))
	assert.True(t, x.Equals(x.Assume(dataset.EqualTo(y, three))))
	assert.True(t, x.Equals(x.Assume(dataset.EqualTo(x, y))))
}

func TestAssumeBoolean(t *testing.T) {
	x, y := dataset.Field("x"), dataset.Field("y")
	b := dataset.Field("b")
	gt2 := dataset.GreaterThan(x, int32(2))
	yEq := dataset.EqualTo(y, "a")

	tests := []struct {
		name     string
		expr     dataset.Expression
		given    dataset.Expression
		expected dataset.Expression
	}{
		{"and drops true", dataset.And(gt2, yEq), dataset.GreaterThan(x, int32(5)), yEq},
		{"and false", dataset.And(gt2, yEq), dataset.LessThan(x, int32(0)), dataset.AlwaysFalse()},
		{"and unchanged", dataset.And(gt2, yEq), dataset.IsValid(x), dataset.And(gt2, yEq)},
		{"and with literal true", dataset.And(b, dataset.AlwaysTrue()), dataset.IsValid(b), b},
		{"and with literal false", dataset.And(b, dataset.AlwaysFalse()), dataset.IsValid(b), dataset.AlwaysFalse()},
		{"and keeps null beside unknown", dataset.And(b, gt2), dataset.Comparison(dataset.OpGT, x, dataset.NullScalar(arrow.PrimitiveTypes.Int32)), dataset.And(b, dataset.NullLiteral())},
		{"and both null", dataset.And(gt2, dataset.LessThan(x, int32(0))), dataset.Comparison(dataset.OpGT, x, dataset.NullScalar(arrow.PrimitiveTypes.Int32)), dataset.NullLiteral()},
		{"and null beside true", dataset.And(gt2, dataset.AlwaysTrue()), dataset.Comparison(dataset.OpGT, x, dataset.NullScalar(arrow.PrimitiveTypes.Int32)), dataset.NullLiteral()},
		{"or true", dataset.Or(gt2, yEq), dataset.GreaterThan(x, int32(5)), dataset.AlwaysTrue()},
		{"or drops false", dataset.Or(gt2, yEq), dataset.LessThan(x, int32(0)), yEq},
		{"or with literal false", dataset.Or(b, dataset.AlwaysFalse()), dataset.IsValid(b), b},
		{"or keeps null beside unknown", dataset.Or(b, gt2), dataset.Comparison(dataset.OpGT, x, dataset.NullScalar(arrow.PrimitiveTypes.Int32)), dataset.Or(b, dataset.NullLiteral())},
		{"or both null", dataset.Or(gt2, dataset.LessThan(x, int32(0))), dataset.Comparison(dataset.OpGT, x, dataset.NullScalar(arrow.PrimitiveTypes.Int32)), dataset.NullLiteral()},
		{"not of true", dataset.Not(gt2), dataset.GreaterThan(x, int32(5)), dataset.AlwaysFalse()},
		{"not of false", dataset.Not(gt2), dataset.LessThan(x, int32(0)), dataset.AlwaysTrue()},
		{"not unchanged", dataset.Not(gt2), dataset.IsValid(x), dataset.Not(gt2)},
		{
			"not keeps non trivial operand",
			dataset.Not(dataset.And(gt2, yEq)),
			dataset.GreaterThan(x, int32(5)),
			dataset.Not(dataset.And(gt2, yEq)),
		},
		{
			"nested",
			dataset.Or(dataset.And(gt2, yEq), dataset.EqualTo(x, int32(-1))),
			dataset.GreaterThan(x, int32(3)),
			yEq,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := tt.expr.Assume(tt.given)
			assert.True(t, tt.expected.Equals(out), "expected %s, got %s", tt.expected, out)
		})
	}
}

func TestAssumeInIsValidCast(t *testing.T) {
	x := dataset.Field("x")
	set := int32Set(t, "[1, 2, 3]")
	withNull := int32Set(t, "[1, null]")

	in := dataset.In(x, set)
	assert.True(t, dataset.IsTrivialTrue(in.Assume(dataset.EqualTo(x, int32(2)))))
	assert.True(t, dataset.IsTrivialFalse(in.Assume(dataset.EqualTo(x, int32(7)))))
	assert.True(t, in.Equals(in.Assume(dataset.GreaterThan(x, int32(2)))))

	nullX := dataset.EqualTo(x, dataset.NullScalar(arrow.PrimitiveTypes.Int32))
	assert.True(t, dataset.IsTrivialFalse(in.Assume(nullX)))
	assert.True(t, dataset.IsTrivialTrue(dataset.In(x, withNull).Assume(nullX)))

	valid := dataset.IsValid(x)
	assert.True(t, dataset.IsTrivialTrue(valid.Assume(dataset.EqualTo(x, int32(2)))))
	assert.True(t, dataset.IsTrivialFalse(valid.Assume(nullX)))
	assert.True(t, valid.Equals(valid.Assume(dataset.GreaterThan(x, int32(2)))))

	cast := dataset.CastTo(x, arrow.PrimitiveTypes.Int64, nil)
	assert.True(t, dataset.CastTo(dataset.Scalar(int32(2)), arrow.PrimitiveTypes.Int64, nil).Equals(
		cast.Assume(dataset.EqualTo(x, int32(2)))))

	like := dataset.CastLike(x, dataset.Field("y"), nil)
	out := like.Assume(dataset.EqualTo(dataset.Field("y"), int64(2)))
	assert.True(t, like.Equals(out), "the like expression is never simplified")
}

func TestAssumeGivenValidity(t *testing.T) {
	year, country := dataset.Field("year"), dataset.Field("country")
	nullYear := dataset.And(dataset.EqualTo(country, "US"), dataset.IsNull(year))

	assert.True(t, dataset.IsTrivialFalse(dataset.IsValid(year).Assume(nullYear)))
	assert.True(t, dataset.IsTrivialTrue(dataset.IsNull(year).Assume(nullYear)))
	assert.True(t, dataset.IsTrivialTrue(dataset.IsValid(year).Assume(dataset.IsValid(year))))
	assert.True(t, dataset.IsValid(country).Equals(dataset.IsValid(country).Assume(nullYear)))

	// a null partition value leaves comparisons on other columns intact
	filter := dataset.Or(dataset.EqualTo(year, int16(2020)), dataset.GreaterThan(dataset.Field("y"), int32(1)))
	assert.True(t, filter.Equals(filter.Assume(nullYear)), filter.Assume(nullYear).String())
}
