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
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"

	dataset "github.com/apache/arrow-dataset-go"
	"github.com/apache/arrow-dataset-go/config"
	"github.com/apache/arrow-dataset-go/scan"
	"github.com/apache/arrow-dataset-go/scan/substrait"
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/docopt/docopt-go"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

const usage = `dsfilter.

Usage:
  dsfilter scan [--where=COND]... [options] URL
  dsfilter explain [--where=COND]... [options] URL
  dsfilter -h | --help | --version

Commands:
  scan        Print the rows of the dataset matching every condition.
  explain     Print the filter each fragment would be scanned with.

Arguments:
  URL         dataset location, a local path or a file, mem, s3, gs,
              azblob or abfss URL

Options:
  -h --help                show this help messages and exit
  --where=COND             filter condition, repeatable, conditions are ANDed
                           Ex: "year >= 2021" "name in ('a', 'b')" "x is not null"
  --partitioning FLAVOR    partitioning of the directories (none/hive/directory)
  --partition-fields LIST  comma-separated field names for directory partitioning
  --output TYPE            output type (json/text)
  --concurrency N          number of fragments scanned in parallel
  --batch-size N           rows per batch read from parquet files
  --evaluator NAME         expression evaluator (tree/substrait)
  --limit N                maximum number of rows to print
  --allow-unsafe-casts     accept condition values that only convert with loss
  --profile NAME           configuration profile to use
  --config PATH            specify the path to the configuration file
  --verbose                log scan progress to stderr`

type Config struct {
	Scan    bool `docopt:"scan"`
	Explain bool `docopt:"explain"`

	URL   string   `docopt:"URL"`
	Where []string `docopt:"--where"`

	Partitioning     string `docopt:"--partitioning"`
	PartitionFields  string `docopt:"--partition-fields"`
	Output           string `docopt:"--output"`
	Concurrency      string `docopt:"--concurrency"`
	BatchSize        string `docopt:"--batch-size"`
	Evaluator        string `docopt:"--evaluator"`
	Limit            string `docopt:"--limit"`
	AllowUnsafeCasts bool   `docopt:"--allow-unsafe-casts"`
	Profile          string `docopt:"--profile"`
	Config           string `docopt:"--config"`
	Verbose          bool   `docopt:"--verbose"`
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	args, err := docopt.ParseArgs(usage, os.Args[1:], dataset.Version())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	cfg := Config{}
	if err := args.Bind(&cfg); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	fileCfg, err := config.Load(cfg.Config)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	profile, err := fileCfg.Profile(cfg.Profile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	mergeConf(&profile, &cfg)
	applyDefaults(&cfg)

	logger := newLogger(os.Stderr, cfg.Verbose)

	var output Output
	switch strings.ToLower(cfg.Output) {
	case "text":
		output = textOutput{}
	case "json":
		output = jsonOutput{w: os.Stdout}
	default:
		level.Error(logger).Log("msg", "unimplemented output type", "output", cfg.Output)
		os.Exit(2)
	}

	if err := run(ctx, cfg, output, logger); err != nil {
		level.Error(logger).Log("msg", "dsfilter failed", "err", err)
		os.Exit(1)
	}
}

func newLogger(w io.Writer, verbose bool) log.Logger {
	logger := log.NewLogfmtLogger(log.NewSyncWriter(w))
	logger = log.With(logger, "ts", log.DefaultTimestampUTC)
	if verbose {
		return level.NewFilter(logger, level.AllowDebug())
	}

	return level.NewFilter(logger, level.AllowWarn())
}

func run(ctx context.Context, cfg Config, output Output, logger log.Logger) error {
	concurrency, err := parseIntOption("--concurrency", cfg.Concurrency)
	if err != nil {
		return err
	}
	batchSize, err := parseIntOption("--batch-size", cfg.BatchSize)
	if err != nil {
		return err
	}
	limit, err := parseIntOption("--limit", cfg.Limit)
	if err != nil {
		return err
	}
	evaluator, err := newEvaluator(cfg.Evaluator)
	if err != nil {
		return err
	}

	src, err := discover(ctx, cfg.URL, cfg.Partitioning, splitFields(cfg.PartitionFields))
	if err != nil {
		return err
	}
	defer src.Close()

	level.Debug(logger).Log("msg", "dataset discovered", "url", cfg.URL,
		"fragments", len(src.fragments), "fields", src.schema.NumFields())

	filter, err := conditionParser{schema: src.schema, allowUnsafe: cfg.AllowUnsafeCasts}.
		parseConditions(cfg.Where)
	if err != nil {
		return err
	}

	scanner := scan.NewScanner(src.fragments,
		scan.WithFilter(filter),
		scan.WithConcurrency(int(concurrency)),
		scan.WithBatchSize(batchSize),
		scan.WithLimit(limit),
		scan.WithEvaluator(evaluator),
		scan.WithLogger(logger))

	switch {
	case cfg.Explain:
		return output.Explain(filter, scanner.Plan())
	case cfg.Scan:
		if err := checkResolved(scanner.Plan(), src.fileSchema); err != nil {
			return err
		}

		rows, err := output.Rows(src.fileSchema, scanner.Scan(ctx))
		if err != nil {
			return err
		}

		stats := scanner.Stats()
		level.Info(logger).Log("msg", "scan complete", "scan_id", scanner.ID(), "rows", rows,
			"fragments_scanned", stats.FragmentsScanned, "fragments_pruned", stats.FragmentsPruned,
			"row_groups_pruned", stats.RowGroupsPruned)
	}

	return nil
}

// checkResolved fails when a fragment would be scanned with a filter that
// still references a field missing from the files, which happens when a
// partition field is compared with another column.
func checkResolved(plans []scan.Plan, fileSchema *arrow.Schema) error {
	for i, p := range plans {
		if p.Skip {
			continue
		}

		missing := dataset.Difference(
			dataset.Unique(dataset.FieldsInExpression(p.Filter)), fieldNames(fileSchema))
		missing = dataset.Difference(missing, pinnedNull(p.Fragment.PartitionExpression()))
		if len(missing) > 0 {
			return fmt.Errorf("%s: filter %s references fields not stored in the file: %s",
				fragmentName(i, p.Fragment), p.Filter, strings.Join(missing, ", "))
		}
	}

	return nil
}

// pinnedNull lists the fields a partition expression fixes to null. Reading
// them as absent columns gives the right answer.
func pinnedNull(partition dataset.Expression) []string {
	switch e := partition.(type) {
	case dataset.AndExpr:
		return append(pinnedNull(e.Left()), pinnedNull(e.Right())...)
	case dataset.NotExpr:
		if v, ok := e.Operand().(dataset.IsValidExpr); ok {
			if f, ok := v.Operand().(dataset.FieldExpr); ok {
				return []string{f.Name()}
			}
		}
	}

	return nil
}

func newEvaluator(name string) (dataset.Evaluator, error) {
	switch strings.ToLower(name) {
	case "", "tree":
		return dataset.TreeEvaluator{}, nil
	case "substrait":
		return substrait.Evaluator{}, nil
	}

	return nil, fmt.Errorf("invalid --evaluator value %q, expected one of %s",
		name, strings.Join(config.Evaluators, "/"))
}

func parseIntOption(name, val string) (int64, error) {
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", name, val, err)
	}

	return n, nil
}

func splitFields(list string) []string {
	var fields []string
	for _, f := range strings.Split(list, ",") {
		if f = strings.TrimSpace(f); f != "" {
			fields = append(fields, f)
		}
	}

	return fields
}

func mergeConf(fileConf *config.ProfileConfig, resConfig *Config) {
	if len(resConfig.Partitioning) == 0 {
		resConfig.Partitioning = fileConf.Partitioning
	}
	if len(resConfig.PartitionFields) == 0 {
		resConfig.PartitionFields = strings.Join(fileConf.PartitionFields, ",")
	}
	if len(resConfig.Output) == 0 {
		resConfig.Output = fileConf.Output
	}
	if len(resConfig.Evaluator) == 0 {
		resConfig.Evaluator = fileConf.Evaluator
	}
	if len(resConfig.Concurrency) == 0 && fileConf.Concurrency > 0 {
		resConfig.Concurrency = strconv.Itoa(fileConf.Concurrency)
	}
	if len(resConfig.BatchSize) == 0 && fileConf.BatchSize > 0 {
		resConfig.BatchSize = strconv.FormatInt(fileConf.BatchSize, 10)
	}
	resConfig.AllowUnsafeCasts = resConfig.AllowUnsafeCasts || fileConf.AllowUnsafeCasts
}

func applyDefaults(cfg *Config) {
	if cfg.Partitioning == "" {
		cfg.Partitioning = partitioningHive
	}
	if cfg.Output == "" {
		cfg.Output = "text"
	}
	if cfg.Concurrency == "" {
		cfg.Concurrency = strconv.Itoa(config.DefaultConcurrency)
	}
	if cfg.BatchSize == "" {
		cfg.BatchSize = strconv.FormatInt(scan.DefaultBatchSize, 10)
	}
	if cfg.Limit == "" {
		cfg.Limit = "-1"
	}
	if cfg.Evaluator == "" {
		cfg.Evaluator = "tree"
	}
}
