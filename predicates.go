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

import "github.com/apache/arrow-go/v18/arrow"

// operand converts v to an expression: expressions are used as is and
// anything else becomes a literal via Scalar.
func operand(v any) Expression {
	if e, ok := v.(Expression); ok {
		return e
	}

	return Scalar(v)
}

// EqualTo is a convenience wrapper for Comparison(OpEQ, t, v) where v may be
// an Expression or a Go value to wrap as a literal.
//
// Will panic if t is nil
func EqualTo(t Expression, v any) Expression { return Comparison(OpEQ, t, operand(v)) }

// NotEqualTo is a convenience wrapper for Comparison(OpNEQ, t, v)
//
// Will panic if t is nil
func NotEqualTo(t Expression, v any) Expression { return Comparison(OpNEQ, t, operand(v)) }

// LessThan is a convenience wrapper for Comparison(OpLT, t, v)
//
// Will panic if t is nil
func LessThan(t Expression, v any) Expression { return Comparison(OpLT, t, operand(v)) }

// LessThanEqual is a convenience wrapper for Comparison(OpLTEQ, t, v)
//
// Will panic if t is nil
func LessThanEqual(t Expression, v any) Expression { return Comparison(OpLTEQ, t, operand(v)) }

// GreaterThan is a convenience wrapper for Comparison(OpGT, t, v)
//
// Will panic if t is nil
func GreaterThan(t Expression, v any) Expression { return Comparison(OpGT, t, operand(v)) }

// GreaterThanEqual is a convenience wrapper for Comparison(OpGTEQ, t, v)
//
// Will panic if t is nil
func GreaterThanEqual(t Expression, v any) Expression { return Comparison(OpGTEQ, t, operand(v)) }

// IsNull is true wherever t is null. It is Not(IsValid(t)).
func IsNull(t Expression) Expression { return Not(IsValid(t)) }

// NotNull is an alias of IsValid.
func NotNull(t Expression) Expression { return IsValid(t) }

// IsIn is a convenience wrapper for In(t, set).
func IsIn(t Expression, set arrow.Array) Expression { return In(t, set) }

// AndAll folds exprs into a left-deep conjunction. An empty list is the
// literal true.
func AndAll(exprs ...Expression) Expression {
	if len(exprs) == 0 {
		return AlwaysTrue()
	}

	out := exprs[0]
	for _, e := range exprs[1:] {
		out = And(out, e)
	}

	return out
}

// OrAny folds exprs into a left-deep disjunction. An empty list is the
// literal false.
func OrAny(exprs ...Expression) Expression {
	if len(exprs) == 0 {
		return AlwaysFalse()
	}

	out := exprs[0]
	for _, e := range exprs[1:] {
		out = Or(out, e)
	}

	return out
}
