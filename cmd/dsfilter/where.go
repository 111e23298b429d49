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

package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	dataset "github.com/apache/arrow-dataset-go"
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/compute"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/arrow/scalar"
)

var errCondition = errors.New("invalid condition")

var compareOps = []struct {
	token string
	op    dataset.CompareOperator
}{
	// two character tokens first so "<=" is not read as "<"
	{"==", dataset.OpEQ},
	{"!=", dataset.OpNEQ},
	{"<>", dataset.OpNEQ},
	{"<=", dataset.OpLTEQ},
	{">=", dataset.OpGTEQ},
	{"=", dataset.OpEQ},
	{"<", dataset.OpLT},
	{">", dataset.OpGT},
}

type conditionParser struct {
	schema      *arrow.Schema
	allowUnsafe bool
}

// parseConditions parses every condition and returns their conjunction.
func (p conditionParser) parseConditions(conds []string) (dataset.Expression, error) {
	exprs := make([]dataset.Expression, 0, len(conds))
	for _, c := range conds {
		e, err := p.parse(c)
		if err != nil {
			return nil, err
		}
		exprs = append(exprs, e)
	}

	return dataset.AndAll(exprs...), nil
}

// parse reads one of
//
//	name OP value
//	name in (v1, v2, ...)
//	name is [not] null
func (p conditionParser) parse(cond string) (dataset.Expression, error) {
	cond = strings.TrimSpace(cond)
	end := strings.IndexAny(cond, " \t=!<>")
	if end == 0 || cond == "" {
		return nil, fmt.Errorf("%w: %q has no field name", errCondition, cond)
	}
	if end < 0 {
		return nil, fmt.Errorf("%w: %q has no operator", errCondition, cond)
	}

	name, rest := cond[:end], strings.TrimSpace(cond[end:])
	field, err := p.field(name)
	if err != nil {
		return nil, err
	}
	ref := dataset.Field(name)

	lower := strings.ToLower(rest)
	switch {
	case strings.HasPrefix(lower, "is "):
		switch strings.Join(strings.Fields(lower[3:]), " ") {
		case "null":
			return dataset.IsNull(ref), nil
		case "not null":
			return dataset.NotNull(ref), nil
		}

		return nil, fmt.Errorf("%w: %q, expected IS NULL or IS NOT NULL", errCondition, cond)
	case strings.HasPrefix(lower, "in ") || strings.HasPrefix(lower, "in("):
		set, err := p.valueSet(field, strings.TrimSpace(rest[2:]))
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %w", errCondition, cond, err)
		}
		return dataset.IsIn(ref, set), nil
	}

	for _, c := range compareOps {
		if !strings.HasPrefix(rest, c.token) {
			continue
		}

		value, err := p.literal(field, strings.TrimSpace(rest[len(c.token):]))
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %w", errCondition, cond, err)
		}

		return dataset.Comparison(c.op, ref, value), nil
	}

	return nil, fmt.Errorf("%w: %q has no operator", errCondition, cond)
}

func (p conditionParser) field(name string) (arrow.Field, error) {
	idx := p.schema.FieldIndices(name)
	switch len(idx) {
	case 0:
		return arrow.Field{}, fmt.Errorf("%w: unknown field %q", errCondition, name)
	case 1:
		return p.schema.Field(idx[0]), nil
	}

	return arrow.Field{}, fmt.Errorf("%w: ambiguous field %q", errCondition, name)
}

func unquote(raw string) (string, bool) {
	if len(raw) >= 2 && (raw[0] == '\'' || raw[0] == '"') && raw[len(raw)-1] == raw[0] {
		return raw[1 : len(raw)-1], true
	}

	return raw, false
}

// literal types raw as the field. A value that only converts with loss is
// accepted when unsafe casts are allowed and is then cast at evaluation.
func (p conditionParser) literal(field arrow.Field, raw string) (dataset.Expression, error) {
	if raw == "" {
		return nil, errors.New("missing value")
	}

	text, quoted := unquote(raw)
	if !quoted && strings.EqualFold(text, "null") {
		return dataset.NullScalar(field.Type), nil
	}

	value, err := scalar.ParseScalar(field.Type, text)
	if err == nil {
		return dataset.Scalar(value), nil
	}

	if p.allowUnsafe {
		if f, ferr := strconv.ParseFloat(text, 64); ferr == nil && isNumeric(field.Type.ID()) {
			return dataset.CastTo(dataset.Scalar(f), field.Type, compute.UnsafeCastOptions(field.Type)), nil
		}
	}

	return nil, fmt.Errorf("value %q is not a valid %s: %w", text, field.Type, err)
}

func isNumeric(id arrow.Type) bool {
	return arrow.IsInteger(id) || arrow.IsFloating(id)
}

func (p conditionParser) valueSet(field arrow.Field, list string) (arrow.Array, error) {
	if !strings.HasPrefix(list, "(") || !strings.HasSuffix(list, ")") {
		return nil, errors.New("expected a parenthesized list")
	}

	bldr := array.NewBuilder(memory.DefaultAllocator, field.Type)
	defer bldr.Release()

	for _, item := range splitList(list[1 : len(list)-1]) {
		text, quoted := unquote(item)
		if !quoted && strings.EqualFold(text, "null") {
			bldr.AppendNull()

			continue
		}

		if err := bldr.AppendValueFromString(text); err != nil {
			return nil, fmt.Errorf("value %q is not a valid %s: %w", text, field.Type, err)
		}
	}

	if bldr.Len() == 0 {
		return nil, errors.New("empty value list")
	}

	return bldr.NewArray(), nil
}

// splitList splits on commas outside of quotes and trims every item.
func splitList(list string) []string {
	var (
		items []string
		quote byte
		start int
	)

	for i := 0; i < len(list); i++ {
		switch c := list[i]; {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == ',':
			items = append(items, strings.TrimSpace(list[start:i]))
			start = i + 1
		}
	}

	if last := strings.TrimSpace(list[start:]); last != "" || len(items) > 0 {
		items = append(items, last)
	}

	return items
}
