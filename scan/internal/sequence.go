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

package internal

import (
	"container/heap"
)

// Enumerated is a quick way to represent a sequenced value that can
// be processed in parallel and then needs to be reordered.
type Enumerated[T any] struct {
	Value T
	Index int
	Last  bool
}

// a simple priority queue
type pqueue[T any] struct {
	queue   []*T
	compare func(a, b *T) bool
}

func (pq *pqueue[T]) Len() int { return len(pq.queue) }
func (pq *pqueue[T]) Less(i, j int) bool {
	return pq.compare(pq.queue[i], pq.queue[j])
}

func (pq *pqueue[T]) Swap(i, j int) {
	pq.queue[i], pq.queue[j] = pq.queue[j], pq.queue[i]
}

func (pq *pqueue[T]) Push(x any) {
	pq.queue = append(pq.queue, x.(*T))
}

func (pq *pqueue[T]) Pop() any {
	old := pq.queue
	n := len(old)

	item := old[n-1]
	old[n-1] = nil
	pq.queue = old[0 : n-1]

	return item
}

// MakeSequencedChan creates a channel that outputs values in a given order
// based on the comesAfter and isNext functions. The values are read in from
// the provided source and then re-ordered before being sent to the output.
//
// Values still held in the queue when source closes are flushed in
// comesAfter order so that nothing is silently dropped.
func MakeSequencedChan[T any](bufferSize uint, source <-chan T, comesAfter, isNext func(a, b *T) bool, initial T) <-chan T {
	pq := pqueue[T]{queue: make([]*T, 0), compare: comesAfter}
	heap.Init(&pq)
	previous, out := &initial, make(chan T, bufferSize)
	go func() {
		defer close(out)
		for val := range source {
			heap.Push(&pq, &val)
			for pq.Len() > 0 && isNext(previous, pq.queue[0]) {
				previous = heap.Pop(&pq).(*T)
				out <- *previous
			}
		}

		for pq.Len() > 0 {
			out <- *heap.Pop(&pq).(*T)
		}
	}()

	return out
}

// EnumeratedBatch pairs a value produced by a fragment with the
// position of both the fragment and the value within it.
type EnumeratedBatch[F, V any] struct {
	Fragment Enumerated[F]
	Batch    Enumerated[V]
	Err      error
}

// SequenceBatches reorders batches produced concurrently by several
// fragments so that they come out fragment by fragment and batch by batch.
// Every fragment must send at least one value flagged Last, even if
// it carries no data, or the stream stalls until source is closed.
func SequenceBatches[F, V any](bufferSize uint, source <-chan EnumeratedBatch[F, V]) <-chan EnumeratedBatch[F, V] {
	isBeforeAny := func(b EnumeratedBatch[F, V]) bool {
		return b.Fragment.Index < 0
	}

	return MakeSequencedChan(bufferSize, source,
		func(left, right *EnumeratedBatch[F, V]) bool {
			switch {
			case isBeforeAny(*left):
				return true
			case isBeforeAny(*right):
				return false
			case left.Err != nil || right.Err != nil:
				return left.Err != nil
			case left.Fragment.Index == right.Fragment.Index:
				return left.Batch.Index < right.Batch.Index
			default:
				return left.Fragment.Index < right.Fragment.Index
			}
		}, func(prev, next *EnumeratedBatch[F, V]) bool {
			switch {
			case next.Err != nil:
				return true
			case isBeforeAny(*prev):
				return next.Fragment.Index == 0 && next.Batch.Index == 0
			case prev.Fragment.Index == next.Fragment.Index:
				return next.Batch.Index == prev.Batch.Index+1
			default:
				return next.Fragment.Index == prev.Fragment.Index+1 &&
					prev.Batch.Last && next.Batch.Index == 0
			}
		}, EnumeratedBatch[F, V]{Fragment: Enumerated[F]{Index: -1}})
}
