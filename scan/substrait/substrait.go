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

// Package substrait converts filter expressions to Substrait so they can
// be shipped to other engines or executed by the Arrow Substrait consumer.
package substrait

import (
	"context"
	"fmt"

	dataset "github.com/apache/arrow-dataset-go"
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/compute"
	"github.com/apache/arrow-go/v18/arrow/compute/exprs"
	"github.com/apache/arrow-go/v18/arrow/scalar"
	"github.com/substrait-io/substrait-go/v4/expr"
	"github.com/substrait-io/substrait-go/v4/types"
)

// ConvertSchema converts an Arrow schema to a substrait NamedStruct using
// the appropriate types and column names.
func ConvertSchema(schema *arrow.Schema) (res types.NamedStruct, err error) {
	typ, err := exprs.ToSubstraitType(arrow.StructOf(schema.Fields()...), false,
		exprs.NewDefaultExtensionSet())
	if err != nil {
		return res, err
	}

	res.Struct = *typ.(*types.StructType)
	res.Names = fieldNames(schema.Fields(), nil)

	return res, nil
}

// fieldNames lists field names depth first, as NamedStruct expects.
func fieldNames(fields []arrow.Field, out []string) []string {
	for _, f := range fields {
		out = append(out, f.Name)
		if st, ok := f.Type.(*arrow.StructType); ok {
			out = fieldNames(st.Fields(), out)
		}
	}

	return out
}

// ConvertExpr converts the provided expression to a substrait expression
// over the given schema. The returned extension set holds the function
// anchors the expression refers to and is needed to execute it.
//
// Set membership has no substrait counterpart here and fails with
// ErrNotImplemented, as do fields missing from the schema.
func ConvertExpr(schema *arrow.Schema, e dataset.Expression) (exprs.ExtensionIDSet, expr.Expression, error) {
	ext := exprs.NewDefaultExtensionSet()
	bldr := exprs.NewExprBuilder(ext)
	if err := bldr.SetInputSchema(schema); err != nil {
		return nil, nil, err
	}

	b, err := dataset.VisitExpr[exprs.Builder](e, &toSubstraitExpr{
		bldr: &bldr, schema: schema, ext: ext,
	})
	if err != nil {
		return nil, nil, err
	}

	out, err := b.BuildExpr()
	if err != nil {
		return nil, nil, err
	}

	return ext, out, nil
}

type toSubstraitExpr struct {
	bldr   *exprs.ExprBuilder
	schema *arrow.Schema
	ext    exprs.ExtensionIDSet
}

func (t *toSubstraitExpr) VisitField(name string) exprs.Builder {
	if len(t.schema.FieldIndices(name)) != 1 {
		panic(fmt.Errorf("%w: field %q does not resolve to a single column",
			dataset.ErrNotImplemented, name))
	}

	return t.bldr.FieldRef(name)
}

func (t *toSubstraitExpr) VisitScalar(value scalar.Scalar) exprs.Builder {
	lit, err := toSubstraitLiteral(value, t.ext)
	if err != nil {
		panic(err)
	}

	return t.bldr.Literal(lit)
}

func (t *toSubstraitExpr) VisitAnd(left, right exprs.Builder) exprs.Builder {
	return t.bldr.MustCallScalar("and_kleene", nil, left, right)
}

func (t *toSubstraitExpr) VisitOr(left, right exprs.Builder) exprs.Builder {
	return t.bldr.MustCallScalar("or_kleene", nil, left, right)
}

func (t *toSubstraitExpr) VisitNot(operand exprs.Builder) exprs.Builder {
	return t.bldr.MustCallScalar("not", nil, operand)
}

func (t *toSubstraitExpr) VisitCompare(op dataset.CompareOperator, left, right exprs.Builder) exprs.Builder {
	return t.bldr.MustCallScalar(op.FuncName(), nil, left, right)
}

func (t *toSubstraitExpr) VisitIn(exprs.Builder, arrow.Array) exprs.Builder {
	panic(fmt.Errorf("%w: set membership in substrait", dataset.ErrNotImplemented))
}

func (t *toSubstraitExpr) VisitIsValid(operand exprs.Builder) exprs.Builder {
	return t.bldr.MustCallScalar("is_not_null", nil, operand)
}

func (t *toSubstraitExpr) VisitCast(operand exprs.Builder, cast dataset.CastExpr) exprs.Builder {
	to := cast.To()
	if like := cast.Like(); like != nil {
		var err error
		if to, err = like.Validate(t.schema); err != nil {
			panic(err)
		}
	}

	return t.bldr.Must(t.bldr.Cast(operand, to))
}

var _ dataset.ExprVisitor[exprs.Builder] = (*toSubstraitExpr)(nil)

func toSubstraitLiteral(sc scalar.Scalar, ext exprs.ExtensionIDSet) (expr.Literal, error) {
	if !sc.IsValid() {
		typ, err := exprs.ToSubstraitType(sc.DataType(), true, ext)
		if err != nil {
			return nil, fmt.Errorf("%w: null literal of type %s: %w",
				dataset.ErrNotImplemented, sc.DataType(), err)
		}

		return expr.NewNullLiteral(typ), nil
	}

	switch v := sc.(type) {
	case *scalar.Boolean:
		return expr.NewPrimitiveLiteral(v.Value, false), nil
	case *scalar.Int8:
		return expr.NewPrimitiveLiteral(v.Value, false), nil
	case *scalar.Int16:
		return expr.NewPrimitiveLiteral(v.Value, false), nil
	case *scalar.Int32:
		return expr.NewPrimitiveLiteral(v.Value, false), nil
	case *scalar.Int64:
		return expr.NewPrimitiveLiteral(v.Value, false), nil
	case *scalar.Float32:
		return expr.NewPrimitiveLiteral(v.Value, false), nil
	case *scalar.Float64:
		return expr.NewPrimitiveLiteral(v.Value, false), nil
	case *scalar.String:
		return expr.NewPrimitiveLiteral(string(v.Data()), false), nil
	case *scalar.Date32:
		return expr.NewPrimitiveLiteral(types.Date(v.Value), false), nil
	case *scalar.Binary:
		return expr.NewByteSliceLiteral(v.Data(), false), nil
	}

	return nil, fmt.Errorf("%w: substrait literal for %s", dataset.ErrNotImplemented, sc.DataType())
}

// Evaluator evaluates expressions by converting them to substrait and
// executing them with the Arrow substrait consumer.
type Evaluator struct{}

func (Evaluator) Evaluate(ctx context.Context, e dataset.Expression, batch arrow.Record) (compute.Datum, error) {
	schema := batch.Schema()
	if _, err := e.Validate(schema); err != nil {
		return nil, err
	}

	ext, converted, err := ConvertExpr(schema, e)
	if err != nil {
		return nil, err
	}

	return exprs.ExecuteScalarExpression(exprs.WithExtensionIDSet(ctx, ext),
		schema, converted, compute.NewDatumWithoutOwning(batch))
}

func (Evaluator) Filter(ctx context.Context, selection compute.Datum, batch arrow.Record) (arrow.Record, error) {
	return dataset.TreeEvaluator{}.Filter(ctx, selection, batch)
}

var _ dataset.Evaluator = Evaluator{}
