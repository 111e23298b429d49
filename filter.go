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
	"iter"

	"github.com/apache/arrow-go/v18/arrow"
)

// FilterBatches lazily applies filter to every batch pulled from batches.
// Batches left without rows are skipped. Iteration stops at the first
// error, which is yielded once. Every yielded record is owned by the
// consumer; input records are not released.
func FilterBatches(ctx context.Context, ev Evaluator, batches iter.Seq2[arrow.Record, error], filter Expression) iter.Seq2[arrow.Record, error] {
	return func(yield func(arrow.Record, error) bool) {
		for batch, err := range batches {
			if err != nil {
				yield(nil, err)

				return
			}

			filtered, err := filterBatch(ctx, ev, batch, filter)
			if err != nil {
				yield(nil, err)

				return
			}

			if filtered.NumRows() == 0 {
				filtered.Release()

				continue
			}

			if !yield(filtered, nil) {
				return
			}
		}
	}
}

func filterBatch(ctx context.Context, ev Evaluator, batch arrow.Record, filter Expression) (arrow.Record, error) {
	selection, err := ev.Evaluate(ctx, filter, batch)
	if err != nil {
		return nil, err
	}
	defer selection.Release()

	return ev.Filter(ctx, selection, batch)
}
