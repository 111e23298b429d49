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
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"strconv"

	dataset "github.com/apache/arrow-dataset-go"
	"github.com/apache/arrow-dataset-go/scan"
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/pterm/pterm"
)

type Output interface {
	// Rows prints every record of recs. The records are released.
	Rows(schema *arrow.Schema, recs iter.Seq2[arrow.Record, error]) (int64, error)
	Explain(filter dataset.Expression, plans []scan.Plan) error
	Text(string)
}

func fragmentName(i int, frag scan.Fragment) string {
	if p, ok := frag.(interface{ Path() string }); ok {
		return p.Path()
	}

	return "fragment " + strconv.Itoa(i)
}

type textOutput struct{}

func (textOutput) Rows(schema *arrow.Schema, recs iter.Seq2[arrow.Record, error]) (int64, error) {
	header := make([]string, schema.NumFields())
	for i, f := range schema.Fields() {
		header[i] = f.Name
	}

	data := pterm.TableData{header}
	var rows int64
	for rec, err := range recs {
		if err != nil {
			return rows, err
		}

		for r := range int(rec.NumRows()) {
			row := make([]string, rec.NumCols())
			for c, col := range rec.Columns() {
				row[c] = col.ValueStr(r)
			}
			data = append(data, row)
		}
		rows += rec.NumRows()
		rec.Release()
	}

	if err := pterm.DefaultTable.
		WithHasHeader(true).
		WithHeaderRowSeparator("-").
		WithData(data).Render(); err != nil {
		return rows, err
	}
	pterm.Printfln("(%d rows)", rows)

	return rows, nil
}

func (textOutput) Explain(filter dataset.Expression, plans []scan.Plan) error {
	pterm.Println("Filter: " + filter.String())

	data := pterm.TableData{{"Fragment", "Partition", "Filter", "Skip"}}
	for i, p := range plans {
		data = append(data, []string{
			fragmentName(i, p.Fragment),
			p.Fragment.PartitionExpression().String(),
			p.Filter.String(),
			strconv.FormatBool(p.Skip),
		})
	}

	return pterm.DefaultTable.
		WithBoxed(true).
		WithHasHeader(true).
		WithHeaderRowSeparator("-").
		WithData(data).Render()
}

func (textOutput) Text(val string) {
	pterm.Println(val)
}

type jsonOutput struct {
	w io.Writer
}

// Rows writes one JSON object per row.
func (j jsonOutput) Rows(_ *arrow.Schema, recs iter.Seq2[arrow.Record, error]) (int64, error) {
	var rows int64
	for rec, err := range recs {
		if err != nil {
			return rows, err
		}

		werr := array.RecordToJSON(rec, j.w)
		rows += rec.NumRows()
		rec.Release()
		if werr != nil {
			return rows, werr
		}
	}

	return rows, nil
}

type explainFragment struct {
	Fragment  string `json:"fragment"`
	Partition string `json:"partition"`
	Filter    string `json:"filter"`
	Skip      bool   `json:"skip"`
}

func (j jsonOutput) Explain(filter dataset.Expression, plans []scan.Plan) error {
	out := struct {
		Filter    string            `json:"filter"`
		Fragments []explainFragment `json:"fragments"`
	}{Filter: filter.String(), Fragments: make([]explainFragment, len(plans))}

	for i, p := range plans {
		out.Fragments[i] = explainFragment{
			Fragment:  fragmentName(i, p.Fragment),
			Partition: p.Fragment.PartitionExpression().String(),
			Filter:    p.Filter.String(),
			Skip:      p.Skip,
		}
	}

	enc := json.NewEncoder(j.w)
	enc.SetIndent("", "  ")

	return enc.Encode(out)
}

func (j jsonOutput) Text(val string) {
	data, _ := json.Marshal(map[string]string{"message": val})
	fmt.Fprintln(j.w, string(data))
}
