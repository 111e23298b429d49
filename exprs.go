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
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/compute"
	"github.com/apache/arrow-go/v18/arrow/scalar"
)

// CompareOperator is the ordering test performed by a comparison
// expression.
type CompareOperator int8

const (
	OpEQ CompareOperator = iota
	OpNEQ
	OpLT
	OpLTEQ
	OpGT
	OpGTEQ
)

func (op CompareOperator) String() string {
	switch op {
	case OpEQ:
		return "EQUAL"
	case OpNEQ:
		return "NOT_EQUAL"
	case OpLT:
		return "LESS"
	case OpLTEQ:
		return "LESS_EQUAL"
	case OpGT:
		return "GREATER"
	case OpGTEQ:
		return "GREATER_EQUAL"
	}

	return fmt.Sprintf("CompareOperator(%d)", int8(op))
}

// FuncName returns the name of the compute function implementing the
// operator.
func (op CompareOperator) FuncName() string {
	switch op {
	case OpEQ:
		return "equal"
	case OpNEQ:
		return "not_equal"
	case OpLT:
		return "less"
	case OpLTEQ:
		return "less_equal"
	case OpGT:
		return "greater"
	case OpGTEQ:
		return "greater_equal"
	}

	panic(fmt.Errorf("%w: unknown compare operator %d", ErrInvalidArgument, int8(op)))
}

// Invert returns the operator that is true exactly where op is false for
// non-null operands.
func (op CompareOperator) Invert() CompareOperator {
	switch op {
	case OpEQ:
		return OpNEQ
	case OpNEQ:
		return OpEQ
	case OpLT:
		return OpGTEQ
	case OpLTEQ:
		return OpGT
	case OpGT:
		return OpLTEQ
	case OpGTEQ:
		return OpLT
	}

	panic(fmt.Errorf("%w: no inversion for compare operator %d", ErrInvalidArgument, int8(op)))
}

// InvertCompareOperator is shorthand for op.Invert().
func InvertCompareOperator(op CompareOperator) CompareOperator { return op.Invert() }

// Expression is a node of an immutable filter expression tree. The set of
// implementations is closed: FieldExpr, ScalarExpr, AndExpr, OrExpr, NotExpr,
// CompareExpr, InExpr, IsValidExpr and CastExpr. Subtrees may be shared
// freely between trees since no operation modifies a node after it has been
// constructed.
type Expression interface {
	fmt.Stringer
	// Equals reports whether two trees are structurally identical.
	Equals(Expression) bool
	// Validate resolves the type the expression produces when evaluated
	// against batches of the given schema.
	Validate(schema *arrow.Schema) (arrow.DataType, error)
	// Assume returns an expression equivalent to this one wherever given
	// evaluates to true. When no simplification is possible the receiver
	// is returned as is.
	Assume(given Expression) Expression

	isExpression()
}

// FieldExpr references a column of a batch by name.
type FieldExpr struct {
	name string
}

// Field returns an expression referencing the named column.
func Field(name string) Expression { return FieldExpr{name: name} }

func (f FieldExpr) Name() string   { return f.name }
func (f FieldExpr) String() string { return "field(" + f.name + ")" }
func (FieldExpr) isExpression()    {}
func (f FieldExpr) Equals(other Expression) bool {
	rhs, ok := other.(FieldExpr)

	return ok && rhs.name == f.name
}

// ScalarExpr is a literal value, possibly a typed null.
type ScalarExpr struct {
	value scalar.Scalar
}

// Scalar returns a literal expression. v may be a scalar.Scalar or any Go
// value accepted by scalar.MakeScalar. A nil v produces an untyped null.
func Scalar(v any) Expression {
	switch v := v.(type) {
	case nil:
		return NullScalar(arrow.Null)
	case scalar.Scalar:
		return ScalarExpr{value: v}
	case Expression:
		panic(fmt.Errorf("%w: cannot use expression %s as a literal", ErrInvalidArgument, v))
	}

	return ScalarExpr{value: scalar.MakeScalar(v)}
}

// NullScalar returns a null literal of the given type.
func NullScalar(dt arrow.DataType) Expression {
	if dt == nil {
		dt = arrow.Null
	}

	return ScalarExpr{value: scalar.MakeNullScalar(dt)}
}

func (s ScalarExpr) Value() scalar.Scalar { return s.value }
func (ScalarExpr) isExpression()          {}
func (s ScalarExpr) String() string {
	if !s.value.IsValid() {
		return "scalar<" + s.value.DataType().String() + ", null>()"
	}

	return "scalar<" + s.value.DataType().String() + ">(" + s.value.String() + ")"
}

func (s ScalarExpr) Equals(other Expression) bool {
	rhs, ok := other.(ScalarExpr)

	return ok && scalar.Equals(s.value, rhs.value)
}

type binaryExpr struct {
	left, right Expression
}

func (b binaryExpr) Left() Expression  { return b.left }
func (b binaryExpr) Right() Expression { return b.right }

func (b binaryExpr) operandsEqual(other binaryExpr) bool {
	return b.left.Equals(other.left) && b.right.Equals(other.right)
}

func newBinary(kind string, left, right Expression) binaryExpr {
	if left == nil || right == nil {
		panic(fmt.Errorf("%w: cannot construct %s with nil arguments",
			ErrInvalidArgument, kind))
	}

	return binaryExpr{left: left, right: right}
}

// AndExpr is the three valued conjunction of two boolean expressions.
type AndExpr struct {
	binaryExpr
}

// And returns the conjunction of left and right. No simplification is
// performed; use Assume for that.
func And(left, right Expression) Expression {
	return AndExpr{newBinary("AndExpr", left, right)}
}

func (AndExpr) isExpression()    {}
func (a AndExpr) String() string { return eulerNotation("AND", a.left, a.right) }
func (a AndExpr) Equals(other Expression) bool {
	rhs, ok := other.(AndExpr)

	return ok && a.operandsEqual(rhs.binaryExpr)
}

// OrExpr is the three valued disjunction of two boolean expressions.
type OrExpr struct {
	binaryExpr
}

// Or returns the disjunction of left and right.
func Or(left, right Expression) Expression {
	return OrExpr{newBinary("OrExpr", left, right)}
}

func (OrExpr) isExpression()    {}
func (o OrExpr) String() string { return eulerNotation("OR", o.left, o.right) }
func (o OrExpr) Equals(other Expression) bool {
	rhs, ok := other.(OrExpr)

	return ok && o.operandsEqual(rhs.binaryExpr)
}

// CompareExpr tests the ordering of two operands of identical type.
type CompareExpr struct {
	binaryExpr
	op CompareOperator
}

// Comparison returns the comparison "left op right".
func Comparison(op CompareOperator, left, right Expression) Expression {
	return CompareExpr{binaryExpr: newBinary("CompareExpr", left, right), op: op}
}

func (c CompareExpr) Op() CompareOperator { return c.op }
func (CompareExpr) isExpression()         {}
func (c CompareExpr) String() string      { return eulerNotation(c.op.String(), c.left, c.right) }
func (c CompareExpr) Equals(other Expression) bool {
	rhs, ok := other.(CompareExpr)

	return ok && c.op == rhs.op && c.operandsEqual(rhs.binaryExpr)
}

// NotExpr is the three valued negation of a boolean expression.
type NotExpr struct {
	operand Expression
}

// Not returns the negation of operand. The operand is wrapped as is, use
// Invert to push the negation into the tree instead.
func Not(operand Expression) Expression {
	if operand == nil {
		panic(fmt.Errorf("%w: cannot create NotExpr with nil operand", ErrInvalidArgument))
	}

	return NotExpr{operand: operand}
}

func (n NotExpr) Operand() Expression { return n.operand }
func (NotExpr) isExpression()         {}
func (n NotExpr) String() string      { return eulerNotation("NOT", n.operand) }
func (n NotExpr) Equals(other Expression) bool {
	rhs, ok := other.(NotExpr)

	return ok && n.operand.Equals(rhs.operand)
}

// IsValidExpr is true wherever its operand is not null.
type IsValidExpr struct {
	operand Expression
}

func IsValid(operand Expression) Expression {
	if operand == nil {
		panic(fmt.Errorf("%w: cannot create IsValidExpr with nil operand", ErrInvalidArgument))
	}

	return IsValidExpr{operand: operand}
}

func (v IsValidExpr) Operand() Expression { return v.operand }
func (IsValidExpr) isExpression()         {}
func (v IsValidExpr) String() string      { return eulerNotation("IS_VALID", v.operand) }
func (v IsValidExpr) Equals(other Expression) bool {
	rhs, ok := other.(IsValidExpr)

	return ok && v.operand.Equals(rhs.operand)
}

// InExpr tests membership of its operand in a literal set of values.
type InExpr struct {
	operand Expression
	set     arrow.Array
}

// In returns an expression testing whether operand is contained in set.
// The set is shared, not copied, and must not be released while the
// expression is in use.
func In(operand Expression, set arrow.Array) Expression {
	if operand == nil || set == nil {
		panic(fmt.Errorf("%w: cannot create InExpr with nil arguments", ErrInvalidArgument))
	}

	return InExpr{operand: operand, set: set}
}

func (in InExpr) Operand() Expression { return in.operand }
func (in InExpr) Set() arrow.Array    { return in.set }
func (InExpr) isExpression()          {}
func (in InExpr) String() string {
	return eulerNotation("IN<"+in.set.String()+">", in.operand)
}

func (in InExpr) Equals(other Expression) bool {
	rhs, ok := other.(InExpr)

	return ok && in.operand.Equals(rhs.operand) && array.Equal(in.set, rhs.set)
}

// CastExpr converts its operand to a target type. The target is either a
// literal type or the type of a second "like" expression, resolved during
// validation.
type CastExpr struct {
	operand Expression
	to      arrow.DataType
	like    Expression
	opts    compute.CastOptions
}

// CastTo returns an expression converting operand to the given type. A nil
// opts uses safe casting.
func CastTo(operand Expression, to arrow.DataType, opts *compute.CastOptions) Expression {
	if operand == nil || to == nil {
		panic(fmt.Errorf("%w: cannot create CastExpr with nil arguments", ErrInvalidArgument))
	}

	return CastExpr{operand: operand, to: to, opts: castOptions(opts)}
}

// CastLike returns an expression converting operand to the type that like
// validates to.
func CastLike(operand, like Expression, opts *compute.CastOptions) Expression {
	if operand == nil || like == nil {
		panic(fmt.Errorf("%w: cannot create CastExpr with nil arguments", ErrInvalidArgument))
	}

	return CastExpr{operand: operand, like: like, opts: castOptions(opts)}
}

func castOptions(opts *compute.CastOptions) compute.CastOptions {
	if opts == nil {
		return *compute.SafeCastOptions(nil)
	}

	return *opts
}

func (c CastExpr) Operand() Expression { return c.operand }

// To returns the literal target type, or nil if the target is given by a
// like expression.
func (c CastExpr) To() arrow.DataType { return c.to }

// Like returns the expression whose type is the cast target, or nil.
func (c CastExpr) Like() Expression            { return c.like }
func (c CastExpr) Options() compute.CastOptions { return c.opts }
func (CastExpr) isExpression()                  {}
func (c CastExpr) String() string {
	if c.like != nil {
		return eulerNotation("CAST<TYPEOF("+c.like.String()+")>", c.operand)
	}

	return eulerNotation("CAST<"+c.to.String()+">", c.operand)
}

func (c CastExpr) Equals(other Expression) bool {
	rhs, ok := other.(CastExpr)
	if !ok || !c.operand.Equals(rhs.operand) {
		return false
	}

	if c.like != nil || rhs.like != nil {
		return c.like != nil && rhs.like != nil && c.like.Equals(rhs.like)
	}

	return arrow.TypeEqual(c.to, rhs.to)
}

// withOperand returns a copy of the cast applied to a different operand.
func (c CastExpr) withOperand(operand Expression) CastExpr {
	c.operand = operand

	return c
}

func eulerNotation(fn string, operands ...Expression) string {
	var b strings.Builder
	b.WriteString(fn)
	b.WriteByte('(')
	for i, op := range operands {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(op.String())
	}
	b.WriteByte(')')

	return b.String()
}

// Invert returns the logical negation of expr with the negation pushed
// into the tree: comparisons flip their operator, And and Or follow
// De Morgan's laws and a Not is unwrapped. It returns false when expr (or
// a required operand) has no such rewrite, in which case callers should
// wrap it in Not instead.
func Invert(expr Expression) (Expression, bool) {
	switch e := expr.(type) {
	case NotExpr:
		return e.operand, true
	case CompareExpr:
		return CompareExpr{binaryExpr: e.binaryExpr, op: e.op.Invert()}, true
	case AndExpr:
		left, right, ok := invertOperands(e.binaryExpr)
		if !ok {
			return nil, false
		}

		return Or(left, right), true
	case OrExpr:
		left, right, ok := invertOperands(e.binaryExpr)
		if !ok {
			return nil, false
		}

		return And(left, right), true
	}

	return nil, false
}

func invertOperands(b binaryExpr) (left, right Expression, ok bool) {
	if left, ok = Invert(b.left); !ok {
		return
	}
	right, ok = Invert(b.right)

	return
}

var (
	alwaysTrue  = ScalarExpr{value: scalar.NewBooleanScalar(true)}
	alwaysFalse = ScalarExpr{value: scalar.NewBooleanScalar(false)}
)

// AlwaysTrue returns the literal boolean true.
func AlwaysTrue() Expression { return alwaysTrue }

// AlwaysFalse returns the literal boolean false.
func AlwaysFalse() Expression { return alwaysFalse }

// NullLiteral returns an untyped null literal, the result of simplifying
// a predicate whose outcome is unknown.
func NullLiteral() Expression { return NullScalar(arrow.Null) }

// IsTrivialTrue reports whether expr is the literal boolean true.
func IsTrivialTrue(expr Expression) bool { return isBoolLiteral(expr, true) }

// IsTrivialFalse reports whether expr is the literal boolean false.
func IsTrivialFalse(expr Expression) bool { return isBoolLiteral(expr, false) }

// IsNullLiteral reports whether expr is a literal null of any type.
func IsNullLiteral(expr Expression) bool {
	s, ok := expr.(ScalarExpr)

	return ok && !s.value.IsValid()
}

func isBoolLiteral(expr Expression, want bool) bool {
	s, ok := expr.(ScalarExpr)
	if !ok || !s.value.IsValid() {
		return false
	}
	b, ok := s.value.(*scalar.Boolean)

	return ok && b.Value == want
}

func boolLiteral(v bool) Expression {
	if v {
		return alwaysTrue
	}

	return alwaysFalse
}
