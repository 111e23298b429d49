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

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/compute"
	"github.com/apache/arrow-go/v18/arrow/scalar"
)

// substitute replaces expr by a literal when given is the equality of expr
// and that literal. It is the fallback Assume rule for every node that
// has no more specific one.
func substitute(expr, given Expression) Expression {
	cmp, ok := given.(CompareExpr)
	if !ok || cmp.op != OpEQ {
		return expr
	}

	if _, isLit := cmp.right.(ScalarExpr); isLit && expr.Equals(cmp.left) {
		return cmp.right
	}

	if _, isLit := cmp.left.(ScalarExpr); isLit && expr.Equals(cmp.right) {
		return cmp.left
	}

	return expr
}

func (f FieldExpr) Assume(given Expression) Expression  { return substitute(f, given) }
func (s ScalarExpr) Assume(given Expression) Expression { return substitute(s, given) }

func (c CompareExpr) Assume(given Expression) Expression {
	switch g := given.(type) {
	case CompareExpr:
		return c.assumeGivenComparison(g)
	case NotExpr:
		if inverted, ok := Invert(g.operand); ok {
			return c.Assume(inverted)
		}
	case OrExpr:
		left, right := c.Assume(g.left), c.Assume(g.right)
		// knowing that one of two conditions holds only helps when both
		// lead to the same conclusion
		if left.Equals(right) {
			return left
		}
	case AndExpr:
		return c.Assume(g.left).Assume(g.right)
	}

	return c
}

// assumeGivenComparison decides c from a comparison of the same left
// operand against another literal. For example x > 2 is always true given
// x > 3 and never true given x < 0.
func (c CompareExpr) assumeGivenComparison(given CompareExpr) Expression {
	if !c.left.Equals(given.left) {
		return c
	}

	thisRHS, ok := c.right.(ScalarExpr)
	if !ok {
		return c
	}
	givenRHS, ok := given.right.(ScalarExpr)
	if !ok {
		return c
	}

	ord, err := Compare(thisRHS.value, givenRHS.value)
	if err != nil {
		return c
	}

	var verdict implication
	switch ord {
	case OrderNull:
		return NullLiteral()
	case OrderGreater:
		verdict = impliesWhenGreater(c.op, given.op)
	case OrderLess:
		verdict = impliesWhenLess(c.op, given.op)
	case OrderEqual:
		verdict = impliesWhenEqual(c.op, given.op)
	}

	switch verdict {
	case always:
		return AlwaysTrue()
	case never:
		return AlwaysFalse()
	}

	return c
}

type implication int8

const (
	unknown implication = iota
	always
	never
)

func isOneOf(op CompareOperator, ops ...CompareOperator) bool {
	for _, o := range ops {
		if op == o {
			return true
		}
	}

	return false
}

// impliesWhenGreater handles the case where the literal of the expression
// being simplified is greater than the literal of the given comparison.
func impliesWhenGreater(op, given CompareOperator) implication {
	if !isOneOf(given, OpEQ, OpLT, OpLTEQ) {
		return unknown
	}

	switch op {
	case OpEQ, OpGT, OpGTEQ:
		return never
	case OpNEQ, OpLT, OpLTEQ:
		return always
	}

	return unknown
}

// impliesWhenLess is the mirror image of impliesWhenGreater.
func impliesWhenLess(op, given CompareOperator) implication {
	if !isOneOf(given, OpEQ, OpGT, OpGTEQ) {
		return unknown
	}

	switch op {
	case OpEQ, OpLT, OpLTEQ:
		return never
	case OpNEQ, OpGT, OpGTEQ:
		return always
	}

	return unknown
}

func impliesWhenEqual(op, given CompareOperator) implication {
	var alwaysOps, neverOps []CompareOperator
	switch op {
	case OpEQ:
		alwaysOps, neverOps = []CompareOperator{OpEQ}, []CompareOperator{OpNEQ, OpGT, OpLT}
	case OpNEQ:
		alwaysOps, neverOps = []CompareOperator{OpNEQ, OpGT, OpLT}, []CompareOperator{OpEQ}
	case OpGT:
		alwaysOps, neverOps = []CompareOperator{OpGT}, []CompareOperator{OpEQ, OpLTEQ, OpLT}
	case OpGTEQ:
		alwaysOps, neverOps = []CompareOperator{OpEQ, OpGT, OpGTEQ}, []CompareOperator{OpLT}
	case OpLT:
		alwaysOps, neverOps = []CompareOperator{OpLT}, []CompareOperator{OpEQ, OpGT, OpGTEQ}
	case OpLTEQ:
		alwaysOps, neverOps = []CompareOperator{OpEQ, OpLT, OpLTEQ}, []CompareOperator{OpGT}
	}

	switch {
	case isOneOf(given, alwaysOps...):
		return always
	case isOneOf(given, neverOps...):
		return never
	}

	return unknown
}

func (a AndExpr) Assume(given Expression) Expression {
	left, right := a.left.Assume(given), a.right.Assume(given)

	switch {
	case IsTrivialFalse(left) || IsTrivialFalse(right):
		return AlwaysFalse()
	case IsTrivialTrue(left):
		return right
	case IsTrivialTrue(right):
		return left
	case IsNullLiteral(left) && IsNullLiteral(right):
		return NullLiteral()
	}

	// null AND x is false wherever x is, so a single null operand is kept

	if left.Equals(a.left) && right.Equals(a.right) {
		return a
	}

	return And(left, right)
}

func (o OrExpr) Assume(given Expression) Expression {
	left, right := o.left.Assume(given), o.right.Assume(given)

	switch {
	case IsTrivialTrue(left) || IsTrivialTrue(right):
		return AlwaysTrue()
	case IsTrivialFalse(left):
		return right
	case IsTrivialFalse(right):
		return left
	case IsNullLiteral(left) && IsNullLiteral(right):
		return NullLiteral()
	}

	// null OR x is true wherever x is, so a single null operand is kept

	if left.Equals(o.left) && right.Equals(o.right) {
		return o
	}

	return Or(left, right)
}

// Assume on a Not only resolves trivial operands. A simplified but
// non-trivial operand is discarded and the expression kept as is.
func (n NotExpr) Assume(given Expression) Expression {
	operand := n.operand.Assume(given)

	switch {
	case IsNullLiteral(operand):
		return NullLiteral()
	case IsTrivialTrue(operand):
		return AlwaysFalse()
	case IsTrivialFalse(operand):
		return AlwaysTrue()
	}

	return n
}

func (in InExpr) Assume(given Expression) Expression {
	operand := in.operand.Assume(given)

	lit, ok := operand.(ScalarExpr)
	if !ok {
		if operand.Equals(in.operand) {
			return in
		}

		return InExpr{operand: operand, set: in.set}
	}

	if !lit.value.IsValid() {
		return boolLiteral(in.set.NullN() > 0)
	}

	found, err := setContains(context.Background(), in.set, lit.value)
	if err != nil {
		return InExpr{operand: operand, set: in.set}
	}

	return boolLiteral(found)
}

// setContains reports whether any valid slot of set equals value.
func setContains(ctx context.Context, set arrow.Array, value scalar.Scalar) (bool, error) {
	out, err := compute.CallFunction(ctx, "equal", nil,
		compute.NewDatumWithoutOwning(set), compute.NewDatum(value))
	if err != nil {
		return false, err
	}
	defer out.Release()

	mask, ok := out.(*compute.ArrayDatum)
	if !ok {
		return false, ErrType
	}

	matches := mask.MakeArray().(*array.Boolean)
	defer matches.Release()

	for i := 0; i < matches.Len(); i++ {
		if matches.IsValid(i) && matches.Value(i) {
			return true, nil
		}
	}

	return false, nil
}

func (v IsValidExpr) Assume(given Expression) Expression {
	if valid, ok := validityOf(v.operand, given); ok {
		return boolLiteral(valid)
	}

	operand := v.operand.Assume(given)
	if lit, ok := operand.(ScalarExpr); ok {
		return boolLiteral(lit.value.IsValid())
	}

	if operand.Equals(v.operand) {
		return v
	}

	return IsValidExpr{operand: operand}
}

// validityOf looks for IsValid(operand) or its negation among the
// conjuncts of given.
func validityOf(operand, given Expression) (valid, ok bool) {
	switch g := given.(type) {
	case IsValidExpr:
		return true, g.operand.Equals(operand)
	case NotExpr:
		if inner, isValid := g.operand.(IsValidExpr); isValid && inner.operand.Equals(operand) {
			return false, true
		}
	case AndExpr:
		if valid, ok := validityOf(operand, g.left); ok {
			return valid, true
		}

		return validityOf(operand, g.right)
	}

	return false, false
}

// Assume on a cast simplifies its operand. The target, including a like
// expression, is left untouched.
func (c CastExpr) Assume(given Expression) Expression {
	operand := c.operand.Assume(given)
	if operand.Equals(c.operand) {
		return c
	}

	return c.withOperand(operand)
}
