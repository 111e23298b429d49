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

package scan

import (
	"context"
	"fmt"
	"iter"
	"runtime"
	"slices"
	"sync"
	"sync/atomic"

	dataset "github.com/apache/arrow-dataset-go"
	"github.com/apache/arrow-dataset-go/scan/internal"
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/compute"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// DefaultBatchSize is the number of rows per batch read from files when
// no batch size is configured.
const DefaultBatchSize int64 = 1 << 17

// Stats reports what a scanner did so far.
type Stats struct {
	FragmentsScanned int64
	FragmentsPruned  int64
	RowGroupsPruned  int64
	RowsOut          int64
}

type counters struct {
	fragmentsScanned atomic.Int64
	fragmentsPruned  atomic.Int64
	rowGroupsPruned  atomic.Int64
	rowsOut          atomic.Int64
}

// scanState is threaded to fragments through the context.
type scanState struct {
	logger    log.Logger
	batchSize int64
	stats     *counters
}

type scanStateKey struct{}

func stateFromContext(ctx context.Context) *scanState {
	if st, ok := ctx.Value(scanStateKey{}).(*scanState); ok {
		return st
	}

	return &scanState{logger: log.NewNopLogger(), stats: &counters{}}
}

type Option func(*Scanner)

func noopOption(*Scanner) {}

// WithFilter sets the row filter. A nil filter selects every row.
func WithFilter(e dataset.Expression) Option {
	if e == nil {
		return noopOption
	}

	return func(s *Scanner) {
		s.filter = e
	}
}

// WithConcurrency sets how many fragments are read at once. When unset it
// defaults to runtime.GOMAXPROCS.
func WithConcurrency(n int) Option {
	if n <= 0 {
		return noopOption
	}

	return func(s *Scanner) {
		s.concurrency = n
	}
}

func WithLogger(logger log.Logger) Option {
	if logger == nil {
		return noopOption
	}

	return func(s *Scanner) {
		s.logger = logger
	}
}

// WithEvaluator replaces the evaluator used to filter batches.
func WithEvaluator(ev dataset.Evaluator) Option {
	if ev == nil {
		return noopOption
	}

	return func(s *Scanner) {
		s.evaluator = ev
	}
}

// WithBatchSize sets the number of rows per batch read from files.
func WithBatchSize(n int64) Option {
	if n <= 0 {
		return noopOption
	}

	return func(s *Scanner) {
		s.batchSize = n
	}
}

// WithAllocator sets the allocator used for reading and filtering.
func WithAllocator(mem memory.Allocator) Option {
	if mem == nil {
		return noopOption
	}

	return func(s *Scanner) {
		s.mem = mem
	}
}

// WithLimit stops the scan after n rows.
func WithLimit(n int64) Option {
	if n < 0 {
		return noopOption
	}

	return func(s *Scanner) {
		s.limit = n
	}
}

// Scanner reads the rows of a set of fragments that satisfy a filter.
// Fragments whose partition expression rules out the filter are skipped
// without being read.
type Scanner struct {
	fragments   []Fragment
	filter      dataset.Expression
	evaluator   dataset.Evaluator
	concurrency int
	batchSize   int64
	limit       int64
	mem         memory.Allocator
	logger      log.Logger
	id          string

	stats counters
}

func NewScanner(fragments []Fragment, opts ...Option) *Scanner {
	s := &Scanner{
		fragments:   fragments,
		filter:      dataset.AlwaysTrue(),
		evaluator:   dataset.TreeEvaluator{},
		concurrency: runtime.GOMAXPROCS(0),
		batchSize:   DefaultBatchSize,
		limit:       -1,
		logger:      log.NewNopLogger(),
		id:          uuid.NewString(),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.logger = log.With(s.logger, "scan_id", s.id)

	return s
}

// ID identifies the scanner in log output.
func (s *Scanner) ID() string { return s.id }

func (s *Scanner) Filter() dataset.Expression { return s.filter }

func (s *Scanner) Stats() Stats {
	return Stats{
		FragmentsScanned: s.stats.fragmentsScanned.Load(),
		FragmentsPruned:  s.stats.fragmentsPruned.Load(),
		RowGroupsPruned:  s.stats.rowGroupsPruned.Load(),
		RowsOut:          s.stats.rowsOut.Load(),
	}
}

func (s *Scanner) withState(ctx context.Context) context.Context {
	if s.mem != nil {
		ctx = compute.WithAllocator(ctx, s.mem)
	}

	return context.WithValue(ctx, scanStateKey{}, &scanState{
		logger:    s.logger,
		batchSize: s.batchSize,
		stats:     &s.stats,
	})
}

// Plan describes how a single fragment will be scanned.
type Plan struct {
	Fragment Fragment
	// Filter is the row filter simplified against the partition expression.
	Filter dataset.Expression
	// Skip is true when no row of the fragment can satisfy the filter.
	Skip bool
}

// Plan simplifies the filter for each fragment without reading any data.
func (s *Scanner) Plan() []Plan {
	plans := make([]Plan, len(s.fragments))
	for i, frag := range s.fragments {
		simplified := s.filter.Assume(frag.PartitionExpression())
		plans[i] = Plan{
			Fragment: frag,
			Filter:   simplified,
			Skip:     dataset.IsTrivialFalse(simplified),
		}
	}

	return plans
}

// releaseAfterYield releases each record once the consumer is done with it.
func releaseAfterYield(seq iter.Seq2[arrow.Record, error]) iter.Seq2[arrow.Record, error] {
	return func(yield func(arrow.Record, error) bool) {
		for rec, err := range seq {
			if err != nil {
				yield(nil, err)

				return
			}

			ok := yield(rec, nil)
			rec.Release()
			if !ok {
				return
			}
		}
	}
}

// fragmentBatches returns the filtered batches of a fragment, or skip=true
// when the partition expression rules the filter out.
func (s *Scanner) fragmentBatches(ctx context.Context, idx int, frag Fragment) (batches iter.Seq2[arrow.Record, error], skip bool, err error) {
	simplified := s.filter.Assume(frag.PartitionExpression())
	if dataset.IsTrivialFalse(simplified) {
		s.stats.fragmentsPruned.Add(1)
		level.Debug(s.logger).Log("msg", "fragment pruned", "fragment", idx,
			"partition", frag.PartitionExpression())

		return nil, true, nil
	}

	s.stats.fragmentsScanned.Add(1)
	records := frag.Records(ctx, simplified)
	if dataset.IsTrivialTrue(simplified) {
		level.Debug(s.logger).Log("msg", "filter satisfied by partition", "fragment", idx)

		return records, false, nil
	}

	schema, err := frag.Schema(ctx)
	if err != nil {
		return nil, false, err
	}

	filter, err := dataset.InsertImplicitCasts(simplified, schema)
	if err != nil {
		return nil, false, err
	}

	if _, err := filter.Validate(schema); err != nil {
		return nil, false, fmt.Errorf("fragment %d: %w", idx, err)
	}

	return dataset.FilterBatches(ctx, s.evaluator, releaseAfterYield(records), filter), false, nil
}

// limiter trims the stream to the configured row limit. It returns the
// record to yield, which may be a slice of rec, and whether the limit has
// been reached.
type limiter struct {
	limit, seen int64
}

func (l *limiter) apply(rec arrow.Record) (arrow.Record, bool) {
	if l.limit < 0 {
		return rec, false
	}

	remaining := l.limit - l.seen
	if rec.NumRows() > remaining {
		defer rec.Release()
		rec = rec.NewSlice(0, remaining)
	}
	l.seen += rec.NumRows()

	return rec, l.seen >= l.limit
}

// Scan yields the filtered batches of every fragment in fragment order.
// Fragments are read concurrently when the concurrency allows it.
// The caller owns the yielded records and must release them.
func (s *Scanner) Scan(ctx context.Context) iter.Seq2[arrow.Record, error] {
	if s.limit == 0 {
		return func(func(arrow.Record, error) bool) {}
	}

	if s.concurrency <= 1 || len(s.fragments) <= 1 {
		return s.scanSequential(ctx)
	}

	return s.scanConcurrent(ctx)
}

func (s *Scanner) scanSequential(ctx context.Context) iter.Seq2[arrow.Record, error] {
	return func(yield func(arrow.Record, error) bool) {
		ctx := s.withState(ctx)
		lim := limiter{limit: s.limit}

		for i, frag := range s.fragments {
			batches, skip, err := s.fragmentBatches(ctx, i, frag)
			if err != nil {
				yield(nil, err)

				return
			}

			if skip {
				continue
			}

			for rec, err := range batches {
				if err != nil {
					yield(nil, err)

					return
				}

				if rec.NumRows() == 0 {
					rec.Release()

					continue
				}

				rec, done := lim.apply(rec)
				s.stats.rowsOut.Add(rec.NumRows())
				if !yield(rec, nil) || done {
					return
				}
			}
		}
	}
}

type enumeratedRecord = internal.EnumeratedBatch[Fragment, arrow.Record]

func (s *Scanner) recordsFromFragment(ctx context.Context, frag internal.Enumerated[Fragment], out chan<- enumeratedRecord) (err error) {
	defer func() {
		if err != nil {
			out <- enumeratedRecord{Fragment: frag, Err: err}
		}
	}()

	batches, skip, err := s.fragmentBatches(ctx, frag.Index, frag.Value)
	if err != nil {
		return err
	}

	if skip {
		out <- enumeratedRecord{Fragment: frag,
			Batch: internal.Enumerated[arrow.Record]{Index: 0, Last: true}}

		return nil
	}

	var (
		idx  int
		prev arrow.Record
	)

	for rec, err := range batches {
		if err != nil {
			if prev != nil {
				prev.Release()
			}

			return err
		}

		if prev != nil {
			out <- enumeratedRecord{Fragment: frag, Batch: internal.Enumerated[arrow.Record]{
				Value: prev, Index: idx, Last: false,
			}}
			idx++
		}
		prev = rec
	}

	// prev may be nil, the fragment still has to be marked as done
	out <- enumeratedRecord{Fragment: frag, Batch: internal.Enumerated[arrow.Record]{
		Value: prev, Index: idx, Last: true,
	}}

	return nil
}

func (s *Scanner) scanConcurrent(ctx context.Context) iter.Seq2[arrow.Record, error] {
	return func(yield func(arrow.Record, error) bool) {
		ctx, cancel := context.WithCancelCause(s.withState(ctx))

		fragChan := make(chan internal.Enumerated[Fragment], len(s.fragments))
		numWorkers := min(s.concurrency, len(s.fragments))
		records := make(chan enumeratedRecord, numWorkers)

		var wg sync.WaitGroup
		wg.Add(numWorkers)
		for range numWorkers {
			go func() {
				defer wg.Done()
				for {
					select {
					case <-ctx.Done():
						return
					case frag, ok := <-fragChan:
						if !ok {
							return
						}

						if err := s.recordsFromFragment(ctx, frag, records); err != nil {
							cancel(err)

							return
						}
					}
				}
			}()
		}

		go func() {
			for i, f := range s.fragments {
				fragChan <- internal.Enumerated[Fragment]{
					Value: f, Index: i, Last: i == len(s.fragments)-1,
				}
			}
			close(fragChan)

			wg.Wait()
			close(records)
		}()

		sequenced := internal.SequenceBatches(uint(numWorkers), records)
		defer func() {
			for enum := range sequenced {
				if enum.Batch.Value != nil {
					enum.Batch.Value.Release()
				}
			}
		}()

		defer cancel(nil)

		lim := limiter{limit: s.limit}
		for {
			select {
			case <-ctx.Done():
				if err := context.Cause(ctx); err != nil {
					yield(nil, err)
				}

				return
			case enum, ok := <-sequenced:
				if !ok {
					return
				}

				if enum.Err != nil {
					yield(nil, enum.Err)

					return
				}

				rec := enum.Batch.Value
				if rec == nil {
					continue
				}

				if rec.NumRows() == 0 {
					rec.Release()

					continue
				}

				rec, done := lim.apply(rec)
				s.stats.rowsOut.Add(rec.NumRows())
				if !yield(rec, nil) || done {
					return
				}
			}
		}
	}
}

// ToTable reads every fragment, at most concurrency at a time, and
// assembles the filtered rows into a table in fragment order.
func (s *Scanner) ToTable(ctx context.Context) (arrow.Table, error) {
	ctx = s.withState(ctx)
	perFragment := make([][]arrow.Record, len(s.fragments))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(s.concurrency, 1))
	for i, frag := range s.fragments {
		g.Go(func() error {
			batches, skip, err := s.fragmentBatches(gctx, i, frag)
			if err != nil || skip {
				return err
			}

			for rec, err := range batches {
				if err != nil {
					return err
				}

				if rec.NumRows() == 0 {
					rec.Release()

					continue
				}
				perFragment[i] = append(perFragment[i], rec)
			}

			return nil
		})
	}

	err := g.Wait()
	collected := slices.Concat(perFragment...)
	defer func() {
		for _, rec := range collected {
			rec.Release()
		}
	}()

	if err != nil {
		return nil, err
	}

	all := collected
	if s.limit >= 0 {
		lim, trimmed := limiter{limit: s.limit}, make([]arrow.Record, 0, len(collected))
		for _, rec := range collected {
			if lim.seen >= lim.limit {
				break
			}

			rec.Retain()
			out, _ := lim.apply(rec)
			trimmed = append(trimmed, out)
		}
		defer func() {
			for _, rec := range trimmed {
				rec.Release()
			}
		}()
		all = trimmed
	}

	schema, err := s.resultSchema(ctx, all)
	if err != nil {
		return nil, err
	}

	var rows int64
	for _, rec := range all {
		if !rec.Schema().Equal(schema) {
			return nil, fmt.Errorf("%w: fragments produced differing schemas %s and %s",
				dataset.ErrInvalidSchema, schema, rec.Schema())
		}
		rows += rec.NumRows()
	}
	s.stats.rowsOut.Add(rows)

	return array.NewTableFromRecords(schema, all), nil
}

func (s *Scanner) resultSchema(ctx context.Context, recs []arrow.Record) (*arrow.Schema, error) {
	if len(recs) > 0 {
		return recs[0].Schema(), nil
	}

	if len(s.fragments) > 0 {
		return s.fragments[0].Schema(ctx)
	}

	return arrow.NewSchema(nil, nil), nil
}
