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
	"github.com/apache/arrow-go/v18/arrow/scalar"
)

// ExprVisitor is a post-order visitor over an expression tree. Each method
// receives the results of visiting the node's operands.
type ExprVisitor[T any] interface {
	VisitField(name string) T
	VisitScalar(value scalar.Scalar) T
	VisitAnd(left, right T) T
	VisitOr(left, right T) T
	VisitNot(operand T) T
	VisitCompare(op CompareOperator, left, right T) T
	VisitIn(operand T, set arrow.Array) T
	VisitIsValid(operand T) T
	VisitCast(operand T, cast CastExpr) T
}

// VisitExpr walks expr with the given visitor. A visitor signals failure by
// panicking with an error, which is returned here.
func VisitExpr[T any](expr Expression, visitor ExprVisitor[T]) (res T, err error) {
	defer func() {
		if r := recover(); r != nil {
			switch e := r.(type) {
			case string:
				err = fmt.Errorf("error encountered during VisitExpr: %s", e)
			case error:
				err = e
			default:
				panic(r)
			}
		}
	}()

	return visitExpr(expr, visitor), err
}

func visitExpr[T any](e Expression, visitor ExprVisitor[T]) T {
	switch e := e.(type) {
	case FieldExpr:
		return visitor.VisitField(e.name)
	case ScalarExpr:
		return visitor.VisitScalar(e.value)
	case AndExpr:
		left, right := visitExpr(e.left, visitor), visitExpr(e.right, visitor)
		return visitor.VisitAnd(left, right)
	case OrExpr:
		left, right := visitExpr(e.left, visitor), visitExpr(e.right, visitor)
		return visitor.VisitOr(left, right)
	case NotExpr:
		return visitor.VisitNot(visitExpr(e.operand, visitor))
	case CompareExpr:
		left, right := visitExpr(e.left, visitor), visitExpr(e.right, visitor)
		return visitor.VisitCompare(e.op, left, right)
	case InExpr:
		return visitor.VisitIn(visitExpr(e.operand, visitor), e.set)
	case IsValidExpr:
		return visitor.VisitIsValid(visitExpr(e.operand, visitor))
	case CastExpr:
		return visitor.VisitCast(visitExpr(e.operand, visitor), e)
	}

	panic(fmt.Errorf("%w: VisitExpr type %T", ErrNotImplemented, e))
}

type fieldCollector struct{}

func (fieldCollector) VisitField(name string) []string        { return []string{name} }
func (fieldCollector) VisitScalar(scalar.Scalar) []string     { return nil }
func (fieldCollector) VisitAnd(left, right []string) []string { return append(left, right...) }
func (fieldCollector) VisitOr(left, right []string) []string  { return append(left, right...) }
func (fieldCollector) VisitNot(operand []string) []string     { return operand }
func (fieldCollector) VisitIn(operand []string, _ arrow.Array) []string {
	return operand
}
func (fieldCollector) VisitIsValid(operand []string) []string { return operand }
func (fieldCollector) VisitCast(operand []string, _ CastExpr) []string {
	return operand
}

func (fieldCollector) VisitCompare(_ CompareOperator, left, right []string) []string {
	return append(left, right...)
}

// FieldsInExpression returns the name of every field referenced by expr, in
// the order they appear. A name referenced more than once is repeated. The
// like expression of a cast only contributes a type and is not visited.
func FieldsInExpression(expr Expression) []string {
	out, err := VisitExpr[[]string](expr, fieldCollector{})
	if err != nil {
		// only reachable for a nil expression
		return nil
	}

	return out
}
